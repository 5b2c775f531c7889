package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentDeleted     = "APPOINTMENT_DELETED"
	EventReminderRequested      = "REMINDER_REQUESTED"
)

// PgRepository serves the Repository contract straight from the appointment
// tables, for deployments where the console sits next to the database.
type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a        Appointment
		id       uuid.UUID
		doctorID *uuid.UUID
		startsAt time.Time
		status   string
	)

	err := row.Scan(
		&id,
		&doctorID,
		&a.PatientName,
		&a.DoctorName,
		&startsAt,
		&status,
		&a.ConsultationFee,
		&a.ClinicName,
		&a.Reason,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.ID = ID(id.String())
	if doctorID != nil {
		a.DoctorID = ID(doctorID.String())
	}
	a.AppointmentDateTime = FormatLocal(startsAt)
	a.Status = NormalizeStatus(status)
	return &a, nil
}

func parseRowID(id ID) (uuid.UUID, error) {
	u, err := uuid.Parse(string(id))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrAppointmentNotFound, id)
	}
	return u, nil
}

// Interface methods

func (r *PgRepository) ListAppointments(ctx context.Context, status string) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.doctor_id, a.patient_name, COALESCE(d.name, ''), a.appointment_date_time,
		       a.status, a.consultation_fee, a.clinic_name, a.reason
		FROM appointments a
		LEFT JOIN doctors d ON d.id = a.doctor_id
		WHERE $1 = '' OR a.status = $1
		ORDER BY a.appointment_date_time
	`, status)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) RescheduleAppointment(ctx context.Context, id ID, newLocalDateTime string) error {
	rowID, err := parseRowID(id)
	if err != nil {
		return err
	}
	startsAt, err := ParseDateTime(newLocalDateTime)
	if err != nil {
		return fmt.Errorf("reschedule %s: %w", id, err)
	}

	var previous time.Time
	err = r.pool.QueryRow(ctx, `
		WITH old AS (
			SELECT appointment_date_time FROM appointments WHERE id = $1 AND status <> 'CANCELLED'
		)
		UPDATE appointments
		SET appointment_date_time = $2,
		    updated_at = now()
		FROM old
		WHERE appointments.id = $1
		RETURNING old.appointment_date_time
	`, rowID, startsAt).Scan(&previous)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAppointmentNotFound
		}
		return fmt.Errorf("reschedule %s: %w", id, err)
	}

	return r.insertEvent(ctx, rowID, EventAppointmentRescheduled, map[string]any{
		"from": FormatLocal(previous),
		"to":   newLocalDateTime,
	})
}

// CancelOrDeleteAppointment cancels an active appointment. An appointment that
// is already cancelled is removed for good and ErrAlreadyCancelled returned.
func (r *PgRepository) CancelOrDeleteAppointment(ctx context.Context, id ID) error {
	rowID, err := parseRowID(id)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin cancel: %w", err)
	}
	defer tx.Rollback(ctx)

	var status string
	err = tx.QueryRow(ctx, `SELECT status FROM appointments WHERE id = $1 FOR UPDATE`, rowID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAppointmentNotFound
		}
		return fmt.Errorf("load appointment status: %w", err)
	}

	if NormalizeStatus(status) == StatusCancelled {
		if _, err := tx.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, rowID); err != nil {
			return fmt.Errorf("delete appointment: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit delete: %w", err)
		}
		if err := r.insertEvent(ctx, rowID, EventAppointmentDeleted, map[string]any{}); err != nil {
			return err
		}
		return ErrAlreadyCancelled
	}

	if _, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'CANCELLED',
		    updated_at = now()
		WHERE id = $1
	`, rowID); err != nil {
		return fmt.Errorf("cancel appointment: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit cancel: %w", err)
	}

	return r.insertEvent(ctx, rowID, EventAppointmentCancelled, map[string]any{"previous_status": status})
}

func (r *PgRepository) SendReminder(ctx context.Context, id ID) error {
	rowID, err := parseRowID(id)
	if err != nil {
		return err
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, rowID).Scan(&exists); err != nil {
		return fmt.Errorf("check appointment: %w", err)
	}
	if !exists {
		return ErrAppointmentNotFound
	}

	return r.insertEvent(ctx, rowID, EventReminderRequested, map[string]any{})
}

func (r *PgRepository) insertEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, now())
	`, eventType, appointmentID, data)
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}
