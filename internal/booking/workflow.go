// Package booking models the patient-facing booking flow as an explicit
// state machine value. Transitions are pure functions: each returns the next
// workflow value, so a failed validation leaves the caller's state untouched
// and the flow is testable without any UI harness.
package booking

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/careloop/scheduling/internal/appointment"
	"github.com/careloop/scheduling/internal/availability"
	"github.com/careloop/scheduling/internal/directory"
)

type Step int

const (
	StepSelectingProvider Step = iota
	StepSelectingDateTime
	StepEnteringDetails
	StepSubmitted
)

func (s Step) String() string {
	switch s {
	case StepSelectingProvider:
		return "selecting_provider"
	case StepSelectingDateTime:
		return "selecting_datetime"
	case StepEnteringDetails:
		return "entering_details"
	case StepSubmitted:
		return "submitted"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

var (
	ErrWrongStep           = errors.New("operation not allowed in current step")
	ErrProviderNotBookable = errors.New("provider is not bookable")
	ErrMissingProfile      = errors.New("provider has no availability profile")
	ErrSlotUnavailable     = errors.New("selected slot is not available")
	ErrDateOutOfWindow     = errors.New("date is outside the booking window")
	ErrEmptyIssue          = errors.New("issue is required")
	ErrPatientNotLinked    = errors.New("patient is not linked to the caller")
	ErrWorkflowDone        = errors.New("workflow already submitted")
)

// Details is the form content of the entering-details step.
type Details struct {
	Issue     string
	Priority  appointment.Priority
	Notes     string
	PatientID uuid.UUID
}

// Workflow is the immutable state of one booking flow instance.
type Workflow struct {
	Step     Step
	BookedBy uuid.UUID

	Provider *directory.Provider
	Profile  *availability.Profile

	Date *availability.Date
	Slot *availability.Slot

	Details Details
}

// New starts a flow for the acting caller.
func New(bookedBy uuid.UUID) Workflow {
	return Workflow{Step: StepSelectingProvider, BookedBy: bookedBy}
}

// SelectProvider picks a provider and loads their profile, moving to
// date/time selection.
func (w Workflow) SelectProvider(provider *directory.Provider, profile *availability.Profile) (Workflow, error) {
	if w.Step == StepSubmitted {
		return w, ErrWorkflowDone
	}
	if w.Step != StepSelectingProvider {
		return w, fmt.Errorf("%w: %s", ErrWrongStep, w.Step)
	}
	if provider == nil || !provider.IsVerified {
		return w, ErrProviderNotBookable
	}
	if profile == nil {
		return w, ErrMissingProfile
	}
	if err := profile.Validate(); err != nil {
		return w, err
	}

	next := w
	next.Provider = provider
	next.Profile = profile
	next.Step = StepSelectingDateTime
	return next, nil
}

// SelectSlot picks a date and an available slot for the chosen provider.
// Slots must come from a generator run the caller performed against this
// profile; the date must fall inside the advance booking window from now.
func (w Workflow) SelectSlot(date availability.Date, slot availability.Slot, now time.Time) (Workflow, error) {
	if w.Step == StepSubmitted {
		return w, ErrWorkflowDone
	}
	if w.Step != StepSelectingDateTime {
		return w, fmt.Errorf("%w: %s", ErrWrongStep, w.Step)
	}
	if !slot.Available {
		return w, ErrSlotUnavailable
	}
	if slot.ProviderID != w.Provider.ID || slot.Date != date {
		return w, ErrSlotUnavailable
	}

	loc, err := w.Profile.Location()
	if err != nil {
		return w, err
	}
	today := availability.DateOf(now.In(loc))
	last := today.AddDays(w.Profile.AdvanceBookingDays)
	if date.At(0, loc).Before(today.At(0, loc)) || date.At(0, loc).After(last.At(0, loc)) {
		return w, ErrDateOutOfWindow
	}
	if !date.At(slot.Start, loc).After(now) {
		return w, ErrSlotUnavailable
	}

	next := w
	d := date
	s := slot
	next.Date = &d
	next.Slot = &s
	next.Step = StepEnteringDetails
	return next, nil
}

// EnterDetails captures the form content and validates the target patient
// against the caller's linked identities. linkedPatients is supplied by the
// identity collaborator; the caller may always book for themselves.
func (w Workflow) EnterDetails(details Details, linkedPatients []uuid.UUID) (Workflow, error) {
	if w.Step == StepSubmitted {
		return w, ErrWorkflowDone
	}
	if w.Step != StepEnteringDetails {
		return w, fmt.Errorf("%w: %s", ErrWrongStep, w.Step)
	}

	details.Issue = strings.TrimSpace(details.Issue)
	if details.Issue == "" {
		return w, ErrEmptyIssue
	}
	if details.Priority == "" {
		details.Priority = appointment.PriorityNormal
	}
	if !details.Priority.Valid() {
		return w, fmt.Errorf("invalid priority %q", details.Priority)
	}

	if details.PatientID == uuid.Nil {
		details.PatientID = w.BookedBy
	}
	if details.PatientID != w.BookedBy && !containsID(linkedPatients, details.PatientID) {
		return w, ErrPatientNotLinked
	}

	next := w
	next.Details = details
	return next, nil
}

// Back returns to the previous step. Leaving date/time selection discards
// the chosen slot: by the time the caller returns, "now" has moved and the
// slots must be regenerated anyway.
func (w Workflow) Back() Workflow {
	next := w
	switch w.Step {
	case StepSelectingDateTime:
		next.Provider = nil
		next.Profile = nil
		next.Step = StepSelectingProvider
	case StepEnteringDetails:
		next.Date = nil
		next.Slot = nil
		next.Step = StepSelectingDateTime
	}
	return next
}

// Draft builds the ledger input for submission. The workflow stays in
// EnteringDetails until Complete is called, so a failed create lets the
// caller retry without re-entering earlier steps.
func (w Workflow) Draft() (appointment.Draft, error) {
	if w.Step != StepEnteringDetails {
		return appointment.Draft{}, fmt.Errorf("%w: %s", ErrWrongStep, w.Step)
	}
	if strings.TrimSpace(w.Details.Issue) == "" {
		return appointment.Draft{}, ErrEmptyIssue
	}
	if w.Provider == nil || w.Date == nil || w.Slot == nil {
		return appointment.Draft{}, fmt.Errorf("%w: missing selections", ErrWrongStep)
	}

	loc, err := w.Profile.Location()
	if err != nil {
		return appointment.Draft{}, err
	}

	providerID := w.Provider.ID
	startAt := w.Date.At(w.Slot.Start, loc)

	draft := appointment.Draft{
		ProviderID:      &providerID,
		PatientID:       w.Details.PatientID,
		BookedByID:      w.BookedBy,
		Issue:           w.Details.Issue,
		Priority:        w.Details.Priority,
		AppointmentDate: &startAt,
		DurationMinutes: w.Slot.DurationMinutes,
	}
	if w.Details.Notes != "" {
		notes := w.Details.Notes
		draft.Notes = &notes
	}
	return draft, nil
}

// Complete marks the flow submitted after the ledger accepted the draft.
func (w Workflow) Complete() (Workflow, error) {
	if w.Step != StepEnteringDetails {
		return w, fmt.Errorf("%w: %s", ErrWrongStep, w.Step)
	}
	next := w
	next.Step = StepSubmitted
	return next, nil
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
