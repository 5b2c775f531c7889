package appointment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/appointment-admin-console/internal/config"
	"github.com/hackgods/appointment-admin-console/internal/metrics"
	"github.com/hackgods/appointment-admin-console/internal/notify"
	redisclient "github.com/hackgods/appointment-admin-console/internal/redis"
)

const defaultUpstreamTimeout = 10 * time.Second

// Service is the admin console's view of the appointment list. It holds one
// snapshot that is only ever replaced wholesale by Load, derives the views
// from it, and validates commands against it before sending them upstream.
//
// Validation and commit are not atomic: a reschedule that passes the local
// conflict check can still clash with a booking another operator made after
// the snapshot was taken. That shows up on the next reload.
type Service struct {
	repo     Repository
	gate     redisclient.ReminderGate
	notifier notify.Notifier
	logger   *zap.Logger
	cfg      config.Config
	now      func() time.Time

	mu       sync.RWMutex
	snapshot Snapshot
	latest   uint64
}

// NewService wires the console. gate may be nil, in which case reminders are
// not rate limited.
func NewService(repo Repository, gate redisclient.ReminderGate, notifier notify.Notifier, logger *zap.Logger, cfg config.Config) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	return &Service{
		repo:     repo,
		gate:     gate,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
		snapshot: Snapshot{Filter: FilterAll},
	}
}

// WithClock replaces the wall clock used for revenue and timestamps.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Window is the configured conflict window.
func (s *Service) Window() time.Duration {
	if s.cfg.ConflictWindow <= 0 {
		return DefaultConflictWindow
	}
	return s.cfg.ConflictWindow
}

// Load replaces the snapshot with the appointments matching filter. On
// failure the previous snapshot is kept and returned with a *TransportError.
// A response that arrives after a newer Load started is dropped and
// ErrLoadSuperseded is returned with the current snapshot.
func (s *Service) Load(ctx context.Context, filter StatusFilter) (Snapshot, error) {
	if filter == "" {
		filter = FilterAll
	}

	s.mu.Lock()
	s.latest++
	gen := s.latest
	s.mu.Unlock()

	var list []Appointment
	err := s.call(ctx, "list_appointments", func(ctx context.Context) error {
		var err error
		list, err = s.repo.ListAppointments(ctx, filter.upstream())
		return err
	})
	if err != nil {
		s.notify(ctx, notify.KindTransport, notify.LevelError, "", fmt.Sprintf("Could not load appointments: %v", err))
		return s.Snapshot(), &TransportError{Op: "load appointments", Err: err}
	}

	if filter.IsAll() {
		list = withoutCancelled(list)
	}
	if bad := Malformed(list); len(bad) > 0 {
		ids := make([]string, 0, len(bad))
		for _, a := range bad {
			ids = append(ids, string(a.ID))
		}
		s.logger.Warn("appointments with unreadable date time left out of calendar views",
			zap.Int("count", len(bad)), zap.Strings("appointment_ids", ids))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.latest {
		s.logger.Debug("discarding superseded appointment load",
			zap.Uint64("generation", gen), zap.Uint64("latest", s.latest))
		return s.snapshot.clone(), ErrLoadSuperseded
	}

	s.snapshot = Snapshot{
		Appointments: list,
		Filter:       filter,
		LoadedAt:     s.now(),
		Generation:   gen,
	}
	metrics.SetSnapshotSize(len(list))
	metrics.SetConflictPairs(len(DetectConflicts(list, s.Window())))

	return s.snapshot.clone(), nil
}

// Ensure loads when nothing has been loaded yet, when the filter changed, or
// when force is set. Otherwise it returns the current snapshot.
func (s *Service) Ensure(ctx context.Context, filter StatusFilter, force bool) (Snapshot, error) {
	if filter == "" {
		filter = FilterAll
	}
	current := s.Snapshot()
	if force || current.LoadedAt.IsZero() || current.Filter != filter {
		return s.Load(ctx, filter)
	}
	return current, nil
}

func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.clone()
}

func (s *Service) Conflicts() []ConflictPair {
	return DetectConflicts(s.Snapshot().Appointments, s.Window())
}

func (s *Service) Revenue() RevenueSummary {
	return ComputeRevenue(s.Snapshot().Appointments, s.now())
}

func (s *Service) Now() time.Time { return s.now() }

func (s *Service) ConflictReport() ConflictReport {
	snap := s.Snapshot()
	pairs := DetectConflicts(snap.Appointments, s.Window())
	if pairs == nil {
		pairs = []ConflictPair{}
	}
	return ConflictReport{
		GeneratedAt:  s.now(),
		Filter:       snap.Filter,
		Appointments: len(snap.Appointments),
		Pairs:        pairs,
	}
}

// Reschedule moves an appointment to req.NewDateTime. The move is checked
// against the snapshot first and a clash fails with *ConflictError without
// contacting the service. A committed move triggers a full reload.
func (s *Service) Reschedule(ctx context.Context, req RescheduleRequest) error {
	id := req.AppointmentID
	if id == "" {
		metrics.RescheduleOutcome("invalid")
		return s.invalid(ctx, "appointmentId", "is required", "")
	}
	if req.NewDateTime.IsZero() {
		metrics.RescheduleOutcome("invalid")
		return s.invalid(ctx, "newDateTime", "is required", id)
	}
	target := Naive(req.NewDateTime)

	snap := s.Snapshot()
	moving, ok := find(snap.Appointments, id)
	if !ok {
		metrics.RescheduleOutcome("invalid")
		return fmt.Errorf("reschedule %s: %w", id, ErrAppointmentNotFound)
	}
	if moving.IsCancelled() {
		metrics.RescheduleOutcome("invalid")
		return s.invalid(ctx, "status", "cancelled appointments cannot be rescheduled", id)
	}

	if existing, clash := FindConflict(snap.Appointments, moving, target, s.Window()); clash {
		metrics.RescheduleOutcome("conflict")
		cerr := &ConflictError{Moving: moving, Existing: existing, Target: target}
		s.notify(ctx, notify.KindConflict, notify.LevelWarning, id,
			fmt.Sprintf("%s already has an appointment at %s; choose another slot", doctorLabel(existing), existing.AppointmentDateTime))
		return cerr
	}

	err := s.call(ctx, "reschedule_appointment", func(ctx context.Context) error {
		return s.repo.RescheduleAppointment(ctx, moving.ID, FormatLocal(target))
	})
	if err != nil {
		metrics.RescheduleOutcome("failed")
		s.notify(ctx, notify.KindTransport, notify.LevelError, id, fmt.Sprintf("Could not reschedule appointment: %v", err))
		return &TransportError{Op: "reschedule appointment", Err: err}
	}

	metrics.RescheduleOutcome("committed")
	s.notify(ctx, notify.KindSuccess, notify.LevelInfo, id, fmt.Sprintf("Appointment moved to %s", FormatLocal(target)))
	s.reload(ctx)
	return nil
}

// RescheduleManual is the typed-in variant of Reschedule.
func (s *Service) RescheduleManual(ctx context.Context, id ID, date, clock string) error {
	target, err := ParseManual(date, clock)
	if err != nil {
		metrics.RescheduleOutcome("invalid")
		return s.invalid(ctx, "dateTime", "date must be YYYY-MM-DD and time HH:mm", id)
	}
	return s.Reschedule(ctx, RescheduleRequest{AppointmentID: id, NewDateTime: target})
}

// Delete cancels an appointment, or removes one that is already cancelled.
// The service answering "already cancelled" counts as success.
func (s *Service) Delete(ctx context.Context, id ID) error {
	if id == "" {
		return s.invalid(ctx, "appointmentId", "is required", "")
	}
	removed, err := s.deleteOne(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		s.reload(ctx)
	}
	return nil
}

// deleteOne reports whether the snapshot was already reconciled locally.
func (s *Service) deleteOne(ctx context.Context, id ID) (bool, error) {
	current, ok := find(s.Snapshot().Appointments, id)
	if !ok {
		return false, fmt.Errorf("delete %s: %w", id, ErrAppointmentNotFound)
	}

	err := s.call(ctx, "cancel_or_delete_appointment", func(ctx context.Context) error {
		return s.repo.CancelOrDeleteAppointment(ctx, id)
	})
	switch {
	case errors.Is(err, ErrAlreadyCancelled):
		s.removeLocal(id)
		s.notify(ctx, notify.KindInfo, notify.LevelInfo, id, "Appointment was already cancelled and has been removed")
		return true, nil
	case err != nil:
		s.notify(ctx, notify.KindTransport, notify.LevelError, id, fmt.Sprintf("Could not cancel appointment: %v", err))
		return false, &TransportError{Op: "cancel appointment", Err: err}
	}

	if current.IsCancelled() {
		s.removeLocal(id)
		s.notify(ctx, notify.KindSuccess, notify.LevelInfo, id, "Appointment deleted")
		return true, nil
	}
	s.notify(ctx, notify.KindSuccess, notify.LevelInfo, id, "Appointment cancelled")
	return false, nil
}

// SendReminder asks the service to remind the patient. Reminders for the same
// appointment are gated by the configured cooldown.
func (s *Service) SendReminder(ctx context.Context, id ID) error {
	if id == "" {
		return s.invalid(ctx, "appointmentId", "is required", "")
	}
	if _, ok := find(s.Snapshot().Appointments, id); !ok {
		return fmt.Errorf("send reminder %s: %w", id, ErrAppointmentNotFound)
	}

	release := func(context.Context) error { return nil }
	if s.gate != nil {
		r, err := s.gate.Acquire(ctx, string(id))
		switch {
		case errors.Is(err, redisclient.ErrCoolingDown):
			s.notify(ctx, notify.KindValidation, notify.LevelWarning, id, "A reminder was sent recently for this appointment")
			return err
		case err != nil:
			s.logger.Warn("reminder gate unavailable, sending without cooldown",
				zap.String("appointment_id", string(id)), zap.Error(err))
		default:
			release = r
		}
	}

	err := s.call(ctx, "send_reminder", func(ctx context.Context) error {
		return s.repo.SendReminder(ctx, id)
	})
	if err != nil {
		if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
			s.logger.Warn("release reminder gate", zap.String("appointment_id", string(id)), zap.Error(rerr))
		}
		s.notify(ctx, notify.KindTransport, notify.LevelError, id, fmt.Sprintf("Could not send reminder: %v", err))
		return &TransportError{Op: "send reminder", Err: err}
	}

	s.notify(ctx, notify.KindSuccess, notify.LevelInfo, id, "Reminder sent")
	return nil
}

type BulkResult struct {
	Succeeded []ID          `json:"succeeded"`
	Failed    map[ID]string `json:"failed"`
}

// BulkCancel deletes every selected appointment and reloads once at the end.
func (s *Service) BulkCancel(ctx context.Context, ids []ID) (BulkResult, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return BulkResult{}, s.invalid(ctx, "ids", "select at least one appointment", "")
	}

	res := BulkResult{Succeeded: []ID{}, Failed: map[ID]string{}}
	for _, id := range ids {
		if _, err := s.deleteOne(ctx, id); err != nil {
			res.Failed[id] = err.Error()
			continue
		}
		res.Succeeded = append(res.Succeeded, id)
	}

	s.reload(ctx)
	s.notify(ctx, notify.KindInfo, notify.LevelInfo, "",
		fmt.Sprintf("Cancelled %d of %d appointments", len(res.Succeeded), len(ids)))
	return res, nil
}

// BulkRemind sends a reminder for every selected appointment.
func (s *Service) BulkRemind(ctx context.Context, ids []ID) (BulkResult, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return BulkResult{}, s.invalid(ctx, "ids", "select at least one appointment", "")
	}

	res := BulkResult{Succeeded: []ID{}, Failed: map[ID]string{}}
	for _, id := range ids {
		if err := s.SendReminder(ctx, id); err != nil {
			res.Failed[id] = err.Error()
			continue
		}
		res.Succeeded = append(res.Succeeded, id)
	}
	return res, nil
}

// call bounds one upstream call with the configured timeout.
func (s *Service) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	timeout := s.cfg.UpstreamTimeout
	if timeout <= 0 {
		timeout = defaultUpstreamTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := fn(callCtx)
	metrics.ObserveUpstream(op, start, err)
	if err != nil {
		s.logger.Warn("appointment service call failed", zap.String("op", op), zap.Error(err))
	}
	return err
}

func (s *Service) reload(ctx context.Context) {
	s.mu.RLock()
	filter := s.snapshot.Filter
	s.mu.RUnlock()

	if _, err := s.Load(ctx, filter); err != nil && !errors.Is(err, ErrLoadSuperseded) {
		s.logger.Warn("reload after command failed", zap.Error(err))
	}
}

func (s *Service) removeLocal(id ID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]Appointment, 0, len(s.snapshot.Appointments))
	for _, a := range s.snapshot.Appointments {
		if a.ID != id {
			kept = append(kept, a)
		}
	}
	s.snapshot.Appointments = kept
	metrics.SetSnapshotSize(len(kept))
	metrics.SetConflictPairs(len(DetectConflicts(kept, s.Window())))
}

func (s *Service) invalid(ctx context.Context, field, reason string, id ID) error {
	verr := &ValidationError{Field: field, Reason: reason}
	s.notify(ctx, notify.KindValidation, notify.LevelWarning, id, verr.Error())
	return verr
}

func (s *Service) notify(ctx context.Context, kind notify.Kind, level notify.Level, id ID, msg string) {
	s.notifier.Notify(ctx, notify.Notification{
		Kind:          kind,
		Level:         level,
		Message:       msg,
		AppointmentID: string(id),
		At:            s.now(),
	})
}

func (snap Snapshot) clone() Snapshot {
	out := snap
	out.Appointments = append([]Appointment(nil), snap.Appointments...)
	return out
}

func find(list []Appointment, id ID) (Appointment, bool) {
	for _, a := range list {
		if a.ID == id {
			return a, true
		}
	}
	return Appointment{}, false
}

func withoutCancelled(list []Appointment) []Appointment {
	out := make([]Appointment, 0, len(list))
	for _, a := range list {
		if !a.IsCancelled() {
			out = append(out, a)
		}
	}
	return out
}

func dedupe(ids []ID) []ID {
	seen := make(map[ID]bool, len(ids))
	out := make([]ID, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func doctorLabel(a Appointment) string {
	if a.DoctorName != "" {
		return a.DoctorName
	}
	return "The doctor"
}
