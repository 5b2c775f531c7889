package appointment

import (
	"context"
	"errors"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	// ErrAlreadyCancelled is reported by the service when a cancel/delete
	// targets an appointment that is already cancelled.
	ErrAlreadyCancelled = errors.New("appointment already cancelled")
)

// Repository is the appointment service the console reads from and sends
// commands to.
type Repository interface {
	// ListAppointments returns every appointment, or only those with the
	// given status when status is non-empty.
	ListAppointments(ctx context.Context, status string) ([]Appointment, error)

	// Commands
	RescheduleAppointment(ctx context.Context, id ID, newLocalDateTime string) error
	CancelOrDeleteAppointment(ctx context.Context, id ID) error
	SendReminder(ctx context.Context, id ID) error
}
