package api

import (
	"time"

	"github.com/hackgods/appointment-admin-console/internal/appointment"
)

// RescheduleRequest carries either a full timestamp (drag and drop) or the
// separate date and time fields of the manual form.
type RescheduleRequest struct {
	NewDateTime string `json:"newDateTime" validate:"required_without=Date"`
	Date        string `json:"date" validate:"required_without=NewDateTime"`
	Time        string `json:"time" validate:"required_with=Date"`
}

type BulkRequest struct {
	IDs []string `json:"ids" validate:"max=500"`
}

type AppointmentView struct {
	appointment.Appointment
	Conflict bool `json:"conflict"`
}

type ListResponse struct {
	Filter       appointment.StatusFilter             `json:"filter"`
	LoadedAt     time.Time                            `json:"loadedAt"`
	Generation   uint64                               `json:"generation"`
	Count        int                                  `json:"count"`
	Stale        bool                                 `json:"stale,omitempty"`
	Warning      string                               `json:"warning,omitempty"`
	Appointments []AppointmentView                    `json:"appointments,omitempty"`
	Days         []appointment.DayBucket              `json:"days,omitempty"`
	Clinics      map[string][]appointment.Appointment `json:"clinics,omitempty"`
}

type CalendarResponse struct {
	Mode   string                    `json:"mode"`
	Anchor string                    `json:"anchor"`
	Days   []appointment.CalendarDay `json:"days"`
}

type ConflictPairResponse struct {
	First      appointment.Appointment `json:"first"`
	Second     appointment.Appointment `json:"second"`
	GapMinutes float64                 `json:"gapMinutes"`
}

type ConflictsResponse struct {
	WindowMinutes float64                `json:"windowMinutes"`
	Count         int                    `json:"count"`
	Pairs         []ConflictPairResponse `json:"pairs"`
}

type RevenueResponse struct {
	appointment.RevenueSummary
	AsOf string `json:"asOf"`
}

type CommandResponse struct {
	Status        string `json:"status"`
	AppointmentID string `json:"appointmentId"`
	NewDateTime   string `json:"newDateTime,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
