package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/appointment-admin-console/internal/appointment"
	"github.com/hackgods/appointment-admin-console/internal/bootstrap"
	"github.com/hackgods/appointment-admin-console/internal/config"
	"github.com/hackgods/appointment-admin-console/internal/logging"
	"github.com/hackgods/appointment-admin-console/internal/notify"
	redisclient "github.com/hackgods/appointment-admin-console/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("conflict-worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.WorkerInterval),
		zap.Duration("conflict_window", cfg.ConflictWindow))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.Open(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal("backend connection error", zap.Error(err))
	}
	defer deps.Close()

	store := deps.ReportStore(cfg.ReportTTL)
	if store == nil {
		logger.Warn("no redis connection, reports will only be logged")
	}
	svc := appointment.NewService(deps.Repo, nil, notify.NewLogNotifier(logger), logger, cfg)

	// Run once at startup
	runOnce(rootCtx, svc, store, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping conflict worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, store, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *appointment.Service, store *redisclient.ReportStore, logger *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	if _, err := svc.Load(runCtx, appointment.FilterAll); err != nil {
		logger.Error("conflict run: load failed", zap.Error(err))
		return
	}

	report := svc.ConflictReport()
	for _, p := range report.Pairs {
		logger.Warn("double booking",
			zap.String("doctor_id", string(p.First.DoctorID)),
			zap.String("first_id", string(p.First.ID)),
			zap.String("first_at", p.First.AppointmentDateTime),
			zap.String("second_id", string(p.Second.ID)),
			zap.String("second_at", p.Second.AppointmentDateTime),
			zap.Duration("gap", p.Gap))
	}

	if store != nil {
		if err := store.Save(runCtx, report); err != nil {
			logger.Error("conflict run: publish report failed", zap.Error(err))
			return
		}
	}

	logger.Info("conflict run complete",
		zap.Int("appointments", report.Appointments),
		zap.Int("pairs", len(report.Pairs)),
		zap.Duration("took", time.Since(start)))
}
