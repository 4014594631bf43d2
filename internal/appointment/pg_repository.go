package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/careloop/scheduling/internal/availability"
)

const appointmentColumns = `id, provider_id, patient_id, booked_by_id, issue, priority,
	notes, provider_notes, preferred_date, appointment_date, duration_minutes,
	status, created_at, updated_at`

// DB is the subset of pgxpool.Pool the repository needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	db DB
}

func NewPgRepository(db DB) *PgRepository {
	return &PgRepository{db: db}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var providerID *uuid.UUID
	var notes, providerNotes *string
	var preferredDate, appointmentDate *time.Time

	err := row.Scan(
		&a.ID,
		&providerID,
		&a.PatientID,
		&a.BookedByID,
		&a.Issue,
		&a.Priority,
		&notes,
		&providerNotes,
		&preferredDate,
		&appointmentDate,
		&a.DurationMinutes,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.ProviderID = providerID
	a.Notes = notes
	a.ProviderNotes = providerNotes
	a.PreferredDate = preferredDate
	a.AppointmentDate = appointmentDate
	return &a, nil
}

func (r *PgRepository) Create(ctx context.Context, a *Appointment) (*Appointment, error) {
	id := uuid.New()

	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments
			(id, provider_id, patient_id, booked_by_id, issue, priority, notes,
			 preferred_date, appointment_date, duration_minutes, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 'pending', now(), now())
		RETURNING `+appointmentColumns+`
	`, id, a.ProviderID, a.PatientID, a.BookedByID, a.Issue, a.Priority,
		a.Notes, a.PreferredDate, a.AppointmentDate, a.DurationMinutes)

	return scanAppointment(row)
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

// Claim performs the compare-and-swap on provider_id. Under concurrent
// claims the WHERE clause lets exactly one statement match; the loser is
// told apart from a missing row by a follow-up read.
func (r *PgRepository) Claim(ctx context.Context, id, providerID uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET provider_id = $2,
		    updated_at = now()
		WHERE id = $1
		  AND provider_id IS NULL
		  AND status = 'pending'
		RETURNING `+appointmentColumns+`
	`, id, providerID)

	claimed, err := scanAppointment(row)
	if err == nil {
		return claimed, nil
	}
	if !errors.Is(err, ErrAppointmentNotFound) {
		return nil, err
	}

	existing, getErr := r.GetByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if existing.ProviderID != nil {
		return nil, ErrAlreadyClaimed
	}
	// Unassigned but no longer pending: swept to cancelled in the meantime.
	return nil, fmt.Errorf("claim appointment %s in status %s: %w", id, existing.Status, ErrStaleStatus)
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)

	updated, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrStaleStatus
		}
		return nil, err
	}
	return updated, nil
}

func (r *PgRepository) UpdateProviderNotes(ctx context.Context, id uuid.UUID, notes string) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET provider_notes = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status IN ('pending', 'confirmed')
		RETURNING `+appointmentColumns+`
	`, id, notes)

	updated, err := scanAppointment(row)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, ErrAppointmentNotFound) {
		return nil, err
	}

	// No row matched: tell a missing appointment apart from one that moved
	// to a terminal status between the caller's read and this write.
	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrStaleStatus
}

// CancelUnassigned is the sweep's write. Like Claim it is a conditional
// update: a record that gained a provider or left pending since the stale
// scan is not touched.
func (r *PgRepository) CancelUnassigned(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
		    updated_at = now()
		WHERE id = $1
		  AND provider_id IS NULL
		  AND status = 'pending'
		RETURNING `+appointmentColumns+`
	`, id)

	cancelled, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrStaleStatus
		}
		return nil, err
	}
	return cancelled, nil
}

func (r *PgRepository) ListUnassigned(ctx context.Context, limit, offset int) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id IS NULL
		  AND status = 'pending'
		ORDER BY
			CASE priority
				WHEN 'urgent' THEN 0
				WHEN 'high' THEN 1
				WHEN 'normal' THEN 2
				ELSE 3
			END,
			created_at
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) FindStaleUnassigned(ctx context.Context, before time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id IS NULL
		  AND status = 'pending'
		  AND created_at < $1
	`, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) ListBookedBetween(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]availability.BookedInterval, error) {
	rows, err := r.db.Query(ctx, `
		SELECT appointment_date, duration_minutes
		FROM appointments
		WHERE provider_id = $1
		  AND status <> 'cancelled'
		  AND appointment_date IS NOT NULL
		  AND appointment_date < $3
		  AND appointment_date + make_interval(mins => duration_minutes) > $2
	`, providerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []availability.BookedInterval
	for rows.Next() {
		var start time.Time
		var minutes int
		if err := rows.Scan(&start, &minutes); err != nil {
			return nil, err
		}
		result = append(result, availability.BookedInterval{
			Start: start,
			End:   start.Add(time.Duration(minutes) * time.Minute),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
