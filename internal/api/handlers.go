package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/hackgods/appointment-admin-console/internal/appointment"
	"github.com/hackgods/appointment-admin-console/internal/notify"
	redisclient "github.com/hackgods/appointment-admin-console/internal/redis"
)

var validate = validator.New()

// ReportLoader reads the last conflict report published by the worker.
type ReportLoader interface {
	Load(ctx context.Context, dst any) error
}

type handlers struct {
	svc     *appointment.Service
	feed    *notify.Feed
	reports ReportLoader
}

// current returns the snapshot, loading it on first use. A failed load still
// returns whatever was loaded before, flagged as stale.
func (h *handlers) current(ctx context.Context, filter appointment.StatusFilter, force bool) (appointment.Snapshot, string, error) {
	snap, err := h.svc.Ensure(ctx, filter, force)
	switch {
	case err == nil, errors.Is(err, appointment.ErrLoadSuperseded):
		return snap, "", nil
	case !snap.LoadedAt.IsZero():
		return snap, err.Error(), nil
	default:
		return snap, "", err
	}
}

func (h *handlers) listAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	force, _ := strconv.ParseBool(q.Get("reload"))

	snap, warning, err := h.current(r.Context(), appointment.ParseStatusFilter(q.Get("status")), force)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	list := appointment.FilterList(snap.Appointments, appointment.ListQuery{
		Search:   q.Get("search"),
		DoctorID: appointment.ID(q.Get("doctorId")),
		Clinic:   q.Get("clinic"),
	})
	resp := ListResponse{
		Filter:     snap.Filter,
		LoadedAt:   snap.LoadedAt,
		Generation: snap.Generation,
		Count:      len(list),
		Stale:      warning != "",
		Warning:    warning,
	}

	switch view := q.Get("view"); view {
	case "", "list":
		flagged := appointment.ConflictingIDs(h.svc.Conflicts())
		resp.Appointments = make([]AppointmentView, 0, len(list))
		for _, a := range list {
			resp.Appointments = append(resp.Appointments, AppointmentView{Appointment: a, Conflict: flagged[a.ID]})
		}
	case "timeline":
		resp.Days = appointment.GroupByDay(list)
	case "clinic":
		resp.Clinics = appointment.GroupByClinic(list)
	default:
		writeError(w, http.StatusBadRequest, "invalid_view", "view must be list, timeline or clinic")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) calendar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	today := h.svc.Now()

	anchor := today
	if raw := q.Get("anchor"); raw != "" {
		parsed, err := appointment.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_anchor", "anchor must be YYYY-MM-DD")
			return
		}
		anchor = parsed
	}

	snap, _, err := h.current(r.Context(), h.svc.Snapshot().Filter, false)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	byDate := appointment.GroupByDate(snap.Appointments)

	resp := CalendarResponse{Mode: q.Get("mode"), Anchor: appointment.DateKey(anchor)}
	switch resp.Mode {
	case "", "month":
		resp.Mode = "month"
		resp.Days = appointment.MonthGrid(byDate, anchor, today)
	case "week":
		resp.Days = appointment.WeekColumns(byDate, anchor, today)
	default:
		writeError(w, http.StatusBadRequest, "invalid_mode", "mode must be month or week")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) conflicts(w http.ResponseWriter, r *http.Request) {
	if _, _, err := h.current(r.Context(), h.svc.Snapshot().Filter, false); err != nil {
		writeServiceError(w, err)
		return
	}
	report := h.svc.ConflictReport()
	writeJSON(w, http.StatusOK, conflictsResponse(report.Pairs, h.svc.Window()))
}

func (h *handlers) conflictReport(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		writeError(w, http.StatusNotFound, "report_unavailable", "conflict reports are not configured")
		return
	}
	var report appointment.ConflictReport
	if err := h.reports.Load(r.Context(), &report); err != nil {
		if errors.Is(err, redisclient.ErrNoReport) {
			writeError(w, http.StatusNotFound, "report_unavailable", "no conflict report has been published yet")
			return
		}
		writeError(w, http.StatusBadGateway, "report_store_unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *handlers) revenue(w http.ResponseWriter, r *http.Request) {
	if _, _, err := h.current(r.Context(), h.svc.Snapshot().Filter, false); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RevenueResponse{
		RevenueSummary: h.svc.Revenue(),
		AsOf:           appointment.FormatLocal(h.svc.Now()),
	})
}

func (h *handlers) reschedule(w http.ResponseWriter, r *http.Request) {
	id := appointment.ID(strings.TrimSpace(chi.URLParam(r, "id")))

	var req RescheduleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if _, _, err := h.current(r.Context(), h.svc.Snapshot().Filter, false); err != nil {
		writeServiceError(w, err)
		return
	}

	var (
		target time.Time
		err    error
	)
	if req.NewDateTime != "" {
		target, err = appointment.ParseDateTime(req.NewDateTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date_time", "newDateTime must be YYYY-MM-DDTHH:mm:ss")
			return
		}
		err = h.svc.Reschedule(r.Context(), appointment.RescheduleRequest{AppointmentID: id, NewDateTime: target})
	} else {
		target, _ = appointment.ParseManual(req.Date, req.Time)
		err = h.svc.RescheduleManual(r.Context(), id, req.Date, req.Time)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, CommandResponse{
		Status:        "rescheduled",
		AppointmentID: string(id),
		NewDateTime:   appointment.FormatLocal(appointment.Naive(target)),
	})
}

func (h *handlers) deleteAppointment(w http.ResponseWriter, r *http.Request) {
	id := appointment.ID(strings.TrimSpace(chi.URLParam(r, "id")))
	if _, _, err := h.current(r.Context(), h.svc.Snapshot().Filter, false); err != nil {
		writeServiceError(w, err)
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CommandResponse{Status: "deleted", AppointmentID: string(id)})
}

func (h *handlers) sendReminder(w http.ResponseWriter, r *http.Request) {
	id := appointment.ID(strings.TrimSpace(chi.URLParam(r, "id")))
	if _, _, err := h.current(r.Context(), h.svc.Snapshot().Filter, false); err != nil {
		writeServiceError(w, err)
		return
	}
	if err := h.svc.SendReminder(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, CommandResponse{Status: "reminder_sent", AppointmentID: string(id)})
}

func (h *handlers) bulk(run func(context.Context, []appointment.ID) (appointment.BulkResult, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BulkRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if _, _, err := h.current(r.Context(), h.svc.Snapshot().Filter, false); err != nil {
			writeServiceError(w, err)
			return
		}

		ids := make([]appointment.ID, 0, len(req.IDs))
		for _, id := range req.IDs {
			ids = append(ids, appointment.ID(strings.TrimSpace(id)))
		}
		res, err := run(r.Context(), ids)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (h *handlers) notifications(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}
	items := []notify.Notification{}
	if h.feed != nil {
		items = h.feed.Recent(limit)
	}
	writeJSON(w, http.StatusOK, items)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	return true
}

func conflictsResponse(pairs []appointment.ConflictPair, window time.Duration) ConflictsResponse {
	out := ConflictsResponse{
		WindowMinutes: window.Minutes(),
		Count:         len(pairs),
		Pairs:         make([]ConflictPairResponse, 0, len(pairs)),
	}
	for _, p := range pairs {
		out.Pairs = append(out.Pairs, ConflictPairResponse{First: p.First, Second: p.Second, GapMinutes: p.Gap.Minutes()})
	}
	return out
}
