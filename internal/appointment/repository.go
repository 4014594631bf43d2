package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/careloop/scheduling/internal/availability"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrAlreadyClaimed      = errors.New("appointment already claimed")
	ErrStaleStatus         = errors.New("appointment status changed concurrently")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	Create(ctx context.Context, a *Appointment) (*Appointment, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Claim is the atomic conditional assignment: it succeeds only while
	// provider_id is still null and status is pending, and exactly one of
	// any set of concurrent callers wins.
	Claim(ctx context.Context, id, providerID uuid.UUID) (*Appointment, error)

	// UpdateStatus applies the transition only if the row still holds the
	// expected current status.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)

	// UpdateProviderNotes writes the notes only while the appointment is
	// still active (pending or confirmed).
	UpdateProviderNotes(ctx context.Context, id uuid.UUID, notes string) (*Appointment, error)

	// CancelUnassigned retires a request only while it is still unassigned
	// and pending, so a concurrent claim always wins over the sweep.
	CancelUnassigned(ctx context.Context, id uuid.UUID) (*Appointment, error)

	ListUnassigned(ctx context.Context, limit, offset int) ([]Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)

	// FindStaleUnassigned returns unassigned pending requests created before
	// the cutoff. Used by the sweep worker.
	FindStaleUnassigned(ctx context.Context, before time.Time) ([]Appointment, error)

	// ListBookedBetween feeds the slot generator's already-booked layer with
	// the provider's non-cancelled scheduled intervals.
	ListBookedBetween(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]availability.BookedInterval, error)
}
