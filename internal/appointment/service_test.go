package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/appointment-admin-console/internal/config"
	"github.com/hackgods/appointment-admin-console/internal/notify"
	redisclient "github.com/hackgods/appointment-admin-console/internal/redis"
)

var fixedNow = time.Date(2025, 12, 10, 12, 0, 0, 0, time.UTC)

type fakeRepo struct {
	mu    sync.Mutex
	items []Appointment

	listErr     error
	rescheduled []string
	cancelled   []ID
	reminded    []ID
	commitErr   error
	reminderErr error
	listCalls   int

	// onList runs before a list call returns; call counts from 1.
	onList func(ctx context.Context, call int) error
}

func (f *fakeRepo) ListAppointments(ctx context.Context, status string) ([]Appointment, error) {
	f.mu.Lock()
	f.listCalls++
	call := f.listCalls
	hook := f.onList
	f.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, call); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]Appointment, 0, len(f.items))
	for _, a := range f.items {
		if status == "" || string(a.Status) == status {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeRepo) RescheduleAppointment(_ context.Context, id ID, newLocalDateTime string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rescheduled = append(f.rescheduled, string(id)+"@"+newLocalDateTime)
	if f.commitErr != nil {
		return f.commitErr
	}
	for i := range f.items {
		if f.items[i].ID == id {
			f.items[i].AppointmentDateTime = newLocalDateTime
		}
	}
	return nil
}

func (f *fakeRepo) CancelOrDeleteAppointment(_ context.Context, id ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	for i := range f.items {
		if f.items[i].ID != id {
			continue
		}
		if f.items[i].IsCancelled() {
			return ErrAlreadyCancelled
		}
		f.items[i].Status = StatusCancelled
		return nil
	}
	return ErrAppointmentNotFound
}

func (f *fakeRepo) SendReminder(_ context.Context, id ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reminded = append(f.reminded, id)
	return f.reminderErr
}

func (f *fakeRepo) set(id ID, mutate func(*Appointment)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items {
		if f.items[i].ID == id {
			mutate(&f.items[i])
		}
	}
}

func (f *fakeRepo) commits() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.rescheduled...)
}

type fakeGate struct {
	mu       sync.Mutex
	held     map[string]bool
	err      error
	released int
}

func (g *fakeGate) Acquire(_ context.Context, id string) (func(context.Context) error, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	if g.held == nil {
		g.held = map[string]bool{}
	}
	if g.held[id] {
		return nil, redisclient.ErrCoolingDown
	}
	g.held[id] = true
	return func(context.Context) error {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.held, id)
		g.released++
		return nil
	}, nil
}

func newTestService(t *testing.T, repo *fakeRepo, gate redisclient.ReminderGate) (*Service, *notify.Feed) {
	t.Helper()
	feed := notify.NewFeed(50)
	cfg := config.Config{UpstreamTimeout: time.Second, ConflictWindow: DefaultConflictWindow}
	svc := NewService(repo, gate, feed, nil, cfg).WithClock(func() time.Time { return fixedNow })
	return svc, feed
}

func loaded(t *testing.T, repo *fakeRepo, gate redisclient.ReminderGate) (*Service, *notify.Feed) {
	t.Helper()
	svc, feed := newTestService(t, repo, gate)
	_, err := svc.Load(context.Background(), FilterAll)
	require.NoError(t, err)
	return svc, feed
}

func TestEndToEndScenario(t *testing.T) {
	ctx := context.Background()
	repo := &fakeRepo{items: []Appointment{
		appt("a1", "D1", "2025-12-10T09:00:00", StatusConfirmed),
		appt("a2", "D1", "2025-12-10T09:15:00", StatusConfirmed),
		appt("a3", "D1", "2025-12-10T14:00:00", StatusConfirmed),
	}}
	svc, feed := loaded(t, repo, nil)

	pairs := svc.Conflicts()
	require.Len(t, pairs, 1)
	assert.Equal(t, map[ID]bool{"a1": true, "a2": true}, ConflictingIDs(pairs))
	assert.Equal(t, 0.0, svc.Revenue().Today)

	fee := 2500.0
	repo.set("a3", func(a *Appointment) {
		a.Status = StatusCompleted
		a.ConsultationFee = &fee
	})
	_, err := svc.Load(ctx, FilterAll)
	require.NoError(t, err)
	assert.Equal(t, RevenueSummary{Total: 2500, Today: 2500, ThisWeek: 2500, ThisMonth: 2500}, svc.Revenue())
	assert.Equal(t, pairSet(pairs), pairSet(svc.Conflicts()))

	// Nudging a2 within the morning block is refused locally.
	err = svc.RescheduleManual(ctx, "a2", "2025-12-10", "09:05")
	var cerr *ConflictError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ID("a1"), cerr.Existing.ID)
	assert.Empty(t, repo.commits())
	assert.Equal(t, notify.KindConflict, feed.Recent(1)[0].Kind)

	// Moving a2 away resolves the clash after the reload.
	require.NoError(t, svc.RescheduleManual(ctx, "a2", "2025-12-10", "11:00"))
	assert.Equal(t, []string{"a2@2025-12-10T11:00:00"}, repo.commits())
	assert.Empty(t, svc.Conflicts())
	assert.Equal(t, notify.KindSuccess, feed.Recent(1)[0].Kind)
}

func TestReschedulePreCheck(t *testing.T) {
	newRepo := func() *fakeRepo {
		return &fakeRepo{items: []Appointment{
			appt("existing", "D", "2025-12-10T10:00:00", StatusConfirmed),
			appt("moving", "D", "2025-12-10T16:00:00", StatusConfirmed),
		}}
	}
	at := func(s string) time.Time {
		v, err := ParseDateTime(s)
		require.NoError(t, err)
		return v
	}

	t.Run("inside the window fails without a commit", func(t *testing.T) {
		repo := newRepo()
		svc, _ := loaded(t, repo, nil)

		err := svc.Reschedule(context.Background(), RescheduleRequest{AppointmentID: "moving", NewDateTime: at("2025-12-10T10:15:00")})
		var cerr *ConflictError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, ID("existing"), cerr.Existing.ID)
		assert.Empty(t, repo.commits())
		assert.Equal(t, 1, repo.listCalls)
	})

	t.Run("outside the window commits once and reloads", func(t *testing.T) {
		repo := newRepo()
		svc, _ := loaded(t, repo, nil)

		err := svc.Reschedule(context.Background(), RescheduleRequest{AppointmentID: "moving", NewDateTime: at("2025-12-10T11:00:00")})
		require.NoError(t, err)
		assert.Equal(t, []string{"moving@2025-12-10T11:00:00"}, repo.commits())
		assert.Equal(t, 2, repo.listCalls)
	})
}

func TestLoadFailureKeepsSnapshot(t *testing.T) {
	repo := &fakeRepo{items: []Appointment{appt("a1", "D1", "2025-12-10T09:00:00", StatusConfirmed)}}
	svc, feed := loaded(t, repo, nil)
	before := svc.Snapshot()

	repo.listErr = errors.New("connection refused")
	snap, err := svc.Load(context.Background(), FilterAll)

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, before, snap)
	assert.Equal(t, before, svc.Snapshot())
	assert.Equal(t, notify.KindTransport, feed.Recent(1)[0].Kind)
}

func TestLoadTimesOut(t *testing.T) {
	repo := &fakeRepo{onList: func(ctx context.Context, _ int) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	feed := notify.NewFeed(5)
	svc := NewService(repo, nil, feed, nil, config.Config{UpstreamTimeout: 20 * time.Millisecond})

	_, err := svc.Load(context.Background(), FilterAll)
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLoadFilters(t *testing.T) {
	repo := &fakeRepo{items: []Appointment{
		appt("live", "D1", "2025-12-10T09:00:00", StatusConfirmed),
		appt("gone", "D1", "2025-12-10T09:05:00", StatusCancelled),
	}}
	svc, _ := newTestService(t, repo, nil)
	ctx := context.Background()

	snap, err := svc.Load(ctx, FilterAll)
	require.NoError(t, err)
	assert.Equal(t, []ID{"live"}, ids(snap.Appointments))

	snap, err = svc.Load(ctx, "CANCELLED")
	require.NoError(t, err)
	assert.Equal(t, []ID{"gone"}, ids(snap.Appointments))
	assert.Equal(t, StatusFilter("CANCELLED"), snap.Filter)
}

func TestEnsure(t *testing.T) {
	repo := &fakeRepo{items: []Appointment{appt("a1", "D1", "2025-12-10T09:00:00", StatusConfirmed)}}
	svc, _ := newTestService(t, repo, nil)
	ctx := context.Background()

	_, err := svc.Ensure(ctx, FilterAll, false)
	require.NoError(t, err)
	_, err = svc.Ensure(ctx, FilterAll, false)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.listCalls)

	_, err = svc.Ensure(ctx, FilterAll, true)
	require.NoError(t, err)
	_, err = svc.Ensure(ctx, "COMPLETED", false)
	require.NoError(t, err)
	assert.Equal(t, 3, repo.listCalls)
}

func TestLoadSupersededResponseIsDropped(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	repo := &fakeRepo{items: []Appointment{appt("a1", "D1", "2025-12-10T09:00:00", StatusConfirmed)}}
	repo.onList = func(ctx context.Context, call int) error {
		if call == 1 {
			close(started)
			<-release
			repo.set("a1", func(a *Appointment) { a.PatientName = "stale" })
		}
		return nil
	}
	svc, _ := newTestService(t, repo, nil)
	ctx := context.Background()

	type result struct {
		snap Snapshot
		err  error
	}
	first := make(chan result, 1)
	go func() {
		snap, err := svc.Load(ctx, FilterAll)
		first <- result{snap, err}
	}()
	<-started

	second, err := svc.Load(ctx, FilterAll)
	require.NoError(t, err)
	assert.Equal(t, "Patient a1", second.Appointments[0].PatientName)

	close(release)
	got := <-first
	assert.ErrorIs(t, got.err, ErrLoadSuperseded)
	assert.Equal(t, second.Generation, got.snap.Generation)
	assert.Equal(t, "Patient a1", svc.Snapshot().Appointments[0].PatientName)
}

func TestRescheduleValidation(t *testing.T) {
	repo := &fakeRepo{items: []Appointment{
		appt("a1", "D1", "2025-12-10T09:00:00", StatusConfirmed),
		appt("c1", "D1", "2025-12-10T15:00:00", StatusCancelled),
	}}
	svc, _ := newTestService(t, repo, nil)
	ctx := context.Background()
	_, err := svc.Load(ctx, "")
	require.NoError(t, err)

	var verr *ValidationError
	err = svc.RescheduleManual(ctx, "a1", "2025-12-10", "9am")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "dateTime", verr.Field)

	err = svc.RescheduleManual(ctx, "a1", "", "10:00")
	require.ErrorAs(t, err, &verr)

	err = svc.Reschedule(ctx, RescheduleRequest{AppointmentID: "a1"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "newDateTime", verr.Field)

	err = svc.Reschedule(ctx, RescheduleRequest{NewDateTime: fixedNow})
	require.ErrorAs(t, err, &verr)

	err = svc.Reschedule(ctx, RescheduleRequest{AppointmentID: "nope", NewDateTime: fixedNow})
	assert.ErrorIs(t, err, ErrAppointmentNotFound)

	assert.Empty(t, repo.commits())
}

func TestRescheduleCancelledIsRejected(t *testing.T) {
	repo := &fakeRepo{items: []Appointment{appt("c1", "D1", "2025-12-10T15:00:00", StatusCancelled)}}
	svc, _ := newTestService(t, repo, nil)
	ctx := context.Background()
	_, err := svc.Load(ctx, "CANCELLED")
	require.NoError(t, err)

	var verr *ValidationError
	require.ErrorAs(t, svc.RescheduleManual(ctx, "c1", "2025-12-11", "10:00"), &verr)
	assert.Equal(t, "status", verr.Field)
	assert.Empty(t, repo.commits())
}

func TestRescheduleCommitsOnceThenReloads(t *testing.T) {
	repo := &fakeRepo{items: []Appointment{
		appt("a1", "D1", "2025-12-10T09:00:00", StatusConfirmed),
		appt("a2", "D1", "2025-12-10T10:00:00", StatusConfirmed),
	}}
	svc, _ := loaded(t, repo, nil)

	target := time.Date(2025, 12, 11, 9, 0, 0, 0, time.FixedZone("UTC+5", 5*3600))
	require.NoError(t, svc.Reschedule(context.Background(), RescheduleRequest{AppointmentID: "a2", NewDateTime: target}))

	assert.Equal(t, []string{"a2@2025-12-11T09:00:00"}, repo.commits())
	assert.Equal(t, 2, repo.listCalls)
	moved, ok := find(svc.Snapshot().Appointments, "a2")
	require.True(t, ok)
	assert.Equal(t, "2025-12-11T09:00:00", moved.AppointmentDateTime)
}

func TestRescheduleToAnotherDayIgnoresEarlierClash(t *testing.T) {
	repo := &fakeRepo{items: []Appointment{
		appt("a1", "D1", "2025-12-10T23:50:00", StatusConfirmed),
		appt("a2", "D1", "2025-12-09T10:00:00", StatusConfirmed),
	}}
	svc, _ := loaded(t, repo, nil)

	require.NoError(t, svc.RescheduleManual(context.Background(), "a2", "2025-12-11", "00:05"))
	assert.Len(t, repo.commits(), 1)
}

func TestRescheduleCommitFailure(t *testing.T) {
	repo := &fakeRepo{items: []Appointment{appt("a1", "D1", "2025-12-10T09:00:00", StatusConfirmed)}}
	svc, feed := loaded(t, repo, nil)
	before := svc.Snapshot()
	repo.commitErr = errors.New("503 service unavailable")

	err := svc.RescheduleManual(context.Background(), "a1", "2025-12-10", "16:00")
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 1, repo.listCalls, "no reload after a failed commit")
	assert.Equal(t, before, svc.Snapshot())
	assert.Equal(t, notify.LevelError, feed.Recent(1)[0].Level)
}

func TestDelete(t *testing.T) {
	t.Run("active appointment is cancelled and reloaded", func(t *testing.T) {
		repo := &fakeRepo{items: []Appointment{
			appt("a1", "D1", "2025-12-10T09:00:00", StatusConfirmed),
			appt("a2", "D1", "2025-12-10T11:00:00", StatusConfirmed),
		}}
		svc, _ := loaded(t, repo, nil)

		require.NoError(t, svc.Delete(context.Background(), "a1"))
		assert.Equal(t, []ID{"a1"}, repo.cancelled)
		assert.Equal(t, 2, repo.listCalls)
		assert.Equal(t, []ID{"a2"}, ids(svc.Snapshot().Appointments))
	})

	t.Run("already cancelled upstream counts as success", func(t *testing.T) {
		repo := &fakeRepo{items: []Appointment{appt("a1", "D1", "2025-12-10T09:00:00", StatusConfirmed)}}
		svc, feed := loaded(t, repo, nil)
		repo.set("a1", func(a *Appointment) { a.Status = StatusCancelled })

		require.NoError(t, svc.Delete(context.Background(), "a1"))
		assert.Empty(t, svc.Snapshot().Appointments)
		assert.Equal(t, 1, repo.listCalls)
		assert.Equal(t, notify.KindInfo, feed.Recent(1)[0].Kind)
	})

	t.Run("cancelled appointment in the cancelled view is removed locally", func(t *testing.T) {
		repo := &fakeRepo{items: []Appointment{appt("c1", "D1", "2025-12-10T09:00:00", StatusCancelled)}}
		svc, _ := newTestService(t, repo, nil)
		_, err := svc.Load(context.Background(), "CANCELLED")
		require.NoError(t, err)

		require.NoError(t, svc.Delete(context.Background(), "c1"))
		assert.Empty(t, svc.Snapshot().Appointments)
	})

	t.Run("transport failure", func(t *testing.T) {
		repo := &fakeRepo{items: []Appointment{appt("a1", "D1", "2025-12-10T09:00:00", StatusConfirmed)}}
		svc, _ := loaded(t, repo, nil)
		repo.items = nil

		var terr *TransportError
		require.ErrorAs(t, svc.Delete(context.Background(), "a1"), &terr)
		assert.Len(t, svc.Snapshot().Appointments, 1)
	})

	t.Run("unknown id", func(t *testing.T) {
		svc, _ := loaded(t, &fakeRepo{}, nil)
		assert.ErrorIs(t, svc.Delete(context.Background(), "missing"), ErrAppointmentNotFound)
	})
}

func TestSendReminder(t *testing.T) {
	ctx := context.Background()

	t.Run("cooldown blocks the second reminder", func(t *testing.T) {
		repo := &fakeRepo{items: []Appointment{appt("a1", "D1", "2025-12-10T09:00:00", StatusConfirmed)}}
		gate := &fakeGate{}
		svc, _ := loaded(t, repo, gate)

		require.NoError(t, svc.SendReminder(ctx, "a1"))
		assert.ErrorIs(t, svc.SendReminder(ctx, "a1"), redisclient.ErrCoolingDown)
		assert.Equal(t, []ID{"a1"}, repo.reminded)
	})

	t.Run("failed send reopens the gate", func(t *testing.T) {
		repo := &fakeRepo{
			items:       []Appointment{appt("a1", "D1", "2025-12-10T09:00:00", StatusConfirmed)},
			reminderErr: errors.New("smtp down"),
		}
		gate := &fakeGate{}
		svc, _ := loaded(t, repo, gate)

		var terr *TransportError
		require.ErrorAs(t, svc.SendReminder(ctx, "a1"), &terr)
		assert.Equal(t, 1, gate.released)

		repo.reminderErr = nil
		assert.NoError(t, svc.SendReminder(ctx, "a1"))
	})

	t.Run("unavailable gate does not block", func(t *testing.T) {
		repo := &fakeRepo{items: []Appointment{appt("a1", "D1", "2025-12-10T09:00:00", StatusConfirmed)}}
		svc, _ := loaded(t, repo, &fakeGate{err: errors.New("redis: connection refused")})

		require.NoError(t, svc.SendReminder(ctx, "a1"))
		assert.Len(t, repo.reminded, 1)
	})
}

func TestBulk(t *testing.T) {
	ctx := context.Background()
	repo := &fakeRepo{items: []Appointment{
		appt("a1", "D1", "2025-12-10T09:00:00", StatusConfirmed),
		appt("a2", "D2", "2025-12-10T09:00:00", StatusConfirmed),
	}}
	svc, _ := loaded(t, repo, &fakeGate{})

	var verr *ValidationError
	_, err := svc.BulkCancel(ctx, nil)
	require.ErrorAs(t, err, &verr)
	_, err = svc.BulkRemind(ctx, []ID{"", ""})
	require.ErrorAs(t, err, &verr)

	res, err := svc.BulkRemind(ctx, []ID{"a1", "a2", "a1", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, []ID{"a1", "a2"}, res.Succeeded)
	assert.Contains(t, res.Failed, ID("ghost"))

	res, err = svc.BulkCancel(ctx, []ID{"a1", "a2"})
	require.NoError(t, err)
	assert.Equal(t, []ID{"a1", "a2"}, res.Succeeded)
	assert.Empty(t, res.Failed)
	assert.Empty(t, svc.Snapshot().Appointments)
}

func TestConflictReport(t *testing.T) {
	repo := &fakeRepo{items: []Appointment{
		appt("a1", "D1", "2025-12-10T09:00:00", StatusConfirmed),
		appt("a2", "D1", "2025-12-10T09:20:00", StatusConfirmed),
	}}
	svc, _ := loaded(t, repo, nil)

	report := svc.ConflictReport()
	assert.Equal(t, fixedNow, report.GeneratedAt)
	assert.Equal(t, 2, report.Appointments)
	assert.Len(t, report.Pairs, 1)

	empty, _ := newTestService(t, &fakeRepo{}, nil)
	assert.NotNil(t, empty.ConflictReport().Pairs)
}

func TestSnapshotIsACopy(t *testing.T) {
	repo := &fakeRepo{items: []Appointment{appt("a1", "D1", "2025-12-10T09:00:00", StatusConfirmed)}}
	svc, _ := loaded(t, repo, nil)

	snap := svc.Snapshot()
	snap.Appointments[0].Status = StatusCancelled
	assert.Equal(t, StatusConfirmed, svc.Snapshot().Appointments[0].Status)
}
