package appointment

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrLoadSuperseded is returned by Load when a newer load started while
	// this one was in flight. The returned snapshot is the current one.
	ErrLoadSuperseded = errors.New("appointment load superseded by a newer request")
)

// TransportError wraps a failed call to the appointment service.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ConflictError rejects a reschedule that would double-book the doctor.
type ConflictError struct {
	Moving   Appointment
	Existing Appointment
	Target   time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("appointment %s at %s clashes with appointment %s at %s for doctor %s",
		e.Moving.ID, FormatLocal(e.Target), e.Existing.ID, e.Existing.AppointmentDateTime, e.Existing.DoctorID)
}

// ValidationError rejects operator input before anything is sent upstream.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
