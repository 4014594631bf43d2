package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal statuses permit no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

var allowedTransitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Appointment is the ledger record. ProviderID is nil until the request is
// either booked directly with a provider or claimed; an unassigned record is
// always pending.
type Appointment struct {
	ID              uuid.UUID
	ProviderID      *uuid.UUID
	PatientID       uuid.UUID
	BookedByID      uuid.UUID
	Issue           string
	Priority        Priority
	Notes           *string
	ProviderNotes   *string
	PreferredDate   *time.Time
	AppointmentDate *time.Time
	DurationMinutes int
	Status          Status
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Draft is the caller-supplied input to Create. ID, status and timestamps
// are assigned by the ledger.
type Draft struct {
	ProviderID      *uuid.UUID
	PatientID       uuid.UUID
	BookedByID      uuid.UUID
	Issue           string
	Priority        Priority
	Notes           *string
	PreferredDate   *time.Time
	AppointmentDate *time.Time
	DurationMinutes int
}
