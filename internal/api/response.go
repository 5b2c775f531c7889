package api

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/hackgods/appointment-admin-console/internal/appointment"
	redisclient "github.com/hackgods/appointment-admin-console/internal/redis"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeServiceError maps the console's error taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		conflict   *appointment.ConflictError
		validation *appointment.ValidationError
		transport  *appointment.TransportError
	)
	switch {
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, "appointment_conflict", err.Error())
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, redisclient.ErrCoolingDown):
		writeError(w, http.StatusTooManyRequests, "reminder_cooling_down", "a reminder was sent recently, try again later")
	case errors.As(err, &transport):
		writeError(w, http.StatusBadGateway, "upstream_unavailable", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
