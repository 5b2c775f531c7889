package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hackgods/appointment-admin-console/internal/api"
	"github.com/hackgods/appointment-admin-console/internal/appointment"
	"github.com/hackgods/appointment-admin-console/internal/logging"
)

type SimConfig struct {
	APIBaseURL      string
	Duration        time.Duration
	Workers         int
	RescheduleRatio float64
	ReminderRatio   float64
	ReadRatio       float64
}

// DataPool holds the appointments operators pick from. It is refreshed from
// the console while the simulation runs.
type DataPool struct {
	mu           sync.RWMutex
	appointments []appointment.Appointment
}

func (dp *DataPool) Replace(list []appointment.Appointment) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = list
}

func (dp *DataPool) Random(faker *gofakeit.Faker) (appointment.Appointment, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return appointment.Appointment{}, false
	}
	return dp.appointments[faker.IntRange(0, len(dp.appointments)-1)], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Reschedule OperationMetrics
	Reminder   OperationMetrics
	List       OperationMetrics
	Conflicts  OperationMetrics
	Revenue    OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	logger  *zap.Logger
	metrics Metrics
}

func main() {
	_ = godotenv.Load()

	logger, err := logging.New(getEnv("APP_ENV", "dev"), getEnv("LOG_LEVEL", "info"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	logger.Info("simulator starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Float64("reschedule", cfg.RescheduleRatio),
		zap.Float64("reminder", cfg.ReminderRatio),
		zap.Float64("read", cfg.ReadRatio))

	sim := &Simulator{
		config: cfg,
		pool:   &DataPool{},
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sim.refresh(ctx); err != nil {
		logger.Fatal("load appointments from console", zap.Error(err))
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:      strings.TrimRight(getEnv("SIM_API_BASE_URL", "http://localhost:8080"), "/"),
		Duration:        getDuration("SIM_DURATION", 30*time.Second),
		Workers:         getInt("SIM_WORKERS", 5),
		RescheduleRatio: getFloat("SIM_RESCHEDULE_RATIO", 0.5),
		ReminderRatio:   getFloat("SIM_REMINDER_RATIO", 0.1),
		ReadRatio:       getFloat("SIM_READ_RATIO", 0.4),
	}

	// Normalize ratios
	total := cfg.RescheduleRatio + cfg.ReminderRatio + cfg.ReadRatio
	if total > 0 {
		cfg.RescheduleRatio /= total
		cfg.ReminderRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.APIBaseURL == "" {
		return fmt.Errorf("SIM_API_BASE_URL is required")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

// refresh reloads the pool from the console's list view.
func (s *Simulator) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.APIBaseURL+"/admin/appointments?reload=true", nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("list appointments: status %d", resp.StatusCode)
	}
	var list api.ListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return fmt.Errorf("decode appointments: %w", err)
	}

	appts := make([]appointment.Appointment, 0, len(list.Appointments))
	for _, a := range list.Appointments {
		if _, ok := a.Start(); ok {
			appts = append(appts, a.Appointment)
		}
	}
	if len(appts) == 0 {
		return fmt.Errorf("console returned no schedulable appointments")
	}
	s.pool.Replace(appts)
	return nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info("starting simulation", zap.Duration("duration", s.config.Duration), zap.Int("workers", s.config.Workers))

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.refresh(ctx); err != nil && ctx.Err() == nil {
					s.logger.Warn("refresh appointment pool", zap.Error(err))
				}
			}
		}
	}()

	wg.Wait()
	s.logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	faker := gofakeit.New(uint64(time.Now().UnixNano()) + uint64(workerID))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := faker.Float64()
			switch {
			case r < s.config.RescheduleRatio:
				s.doReschedule(ctx, faker)
			case r < s.config.RescheduleRatio+s.config.ReminderRatio:
				s.doReminder(ctx, faker)
			default:
				switch faker.IntRange(0, 2) {
				case 0:
					s.doRead(ctx, "/admin/appointments", &s.metrics.List)
				case 1:
					s.doRead(ctx, "/admin/conflicts", &s.metrics.Conflicts)
				case 2:
					s.doRead(ctx, "/admin/revenue", &s.metrics.Revenue)
				}
			}
		}
	}
}

// doReschedule drags a random appointment to another quarter-hour slot on
// the same day, which is what operators do most on the calendar.
func (s *Simulator) doReschedule(ctx context.Context, faker *gofakeit.Faker) {
	appt, ok := s.pool.Random(faker)
	if !ok {
		return
	}
	at, _ := appt.Start()
	day := time.Date(at.Year(), at.Month(), at.Day(), 8, 0, 0, 0, time.UTC)
	target := day.Add(time.Duration(faker.IntRange(0, 39)) * 15 * time.Minute)

	body, _ := json.Marshal(api.RescheduleRequest{NewDateTime: appointment.FormatLocal(target)})
	code, latency, err := s.send(ctx, http.MethodPost, appointmentPath(appt.ID, "reschedule"), body)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Reschedule.Record(latency, err == nil && code == http.StatusOK, code == http.StatusConflict)
}

func (s *Simulator) doReminder(ctx context.Context, faker *gofakeit.Faker) {
	appt, ok := s.pool.Random(faker)
	if !ok {
		return
	}
	code, latency, err := s.send(ctx, http.MethodPost, appointmentPath(appt.ID, "reminder"), nil)
	if ctx.Err() != nil {
		return
	}
	// A cooldown rejection is the console working as intended.
	s.metrics.Reminder.Record(latency, err == nil && code == http.StatusAccepted, code == http.StatusTooManyRequests)
}

func (s *Simulator) doRead(ctx context.Context, path string, om *OperationMetrics) {
	code, latency, err := s.send(ctx, http.MethodGet, path, nil)
	if ctx.Err() != nil {
		return
	}
	om.Record(latency, err == nil && code == http.StatusOK, false)
}

func (s *Simulator) send(ctx context.Context, method, path string, body []byte) (int, time.Duration, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, latency, nil
}

func appointmentPath(id appointment.ID, action string) string {
	return "/admin/appointments/" + strings.ReplaceAll(string(id), "/", "%2F") + "/" + action
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Reschedule", "Conflicts", &s.metrics.Reschedule)
	printOperationReport("Reminder", "Cooling down", &s.metrics.Reminder)
	printOperationReport("List appointments", "", &s.metrics.List)
	printOperationReport("Conflicts view", "", &s.metrics.Conflicts)
	printOperationReport("Revenue", "", &s.metrics.Revenue)
}

func printOperationReport(name, conflictLabel string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	errs := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  %s: %d (%.1f%%)\n", conflictLabel, conflict, float64(conflict)/float64(total)*100)
	}
	if errs > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", errs, float64(errs)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
