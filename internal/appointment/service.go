package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careloop/scheduling/internal/availability"
	"github.com/careloop/scheduling/internal/directory"
	redisclient "github.com/careloop/scheduling/internal/redis"
)

var (
	ErrEmptyIssue             = errors.New("issue is required")
	ErrMissingPatient         = errors.New("patient is required")
	ErrInvalidPriority        = errors.New("invalid priority")
	ErrInvalidStatus          = errors.New("invalid status")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrNotOwner               = errors.New("appointment is owned by another provider")
	ErrSlotNoLongerAvailable  = errors.New("slot is no longer available")
	ErrScheduleBusy           = errors.New("schedule is busy, please retry")
	ErrProviderNotBookable    = errors.New("provider is not bookable")
	ErrMissingAppointmentDate = errors.New("appointment date is required when booking a provider directly")
	ErrNotesLocked            = errors.New("provider notes can no longer be edited")
)

// Notifier is informed after successful ledger writes. Calls are
// fire-and-forget: the ledger never waits on delivery.
type Notifier interface {
	AppointmentCreated(ctx context.Context, a *Appointment)
	AppointmentClaimed(ctx context.Context, a *Appointment)
	AppointmentStatusChanged(ctx context.Context, a *Appointment, previous Status)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) AppointmentCreated(context.Context, *Appointment)               {}
func (NopNotifier) AppointmentClaimed(context.Context, *Appointment)               {}
func (NopNotifier) AppointmentStatusChanged(context.Context, *Appointment, Status) {}

const notifyTimeout = 5 * time.Second

type Service struct {
	repo      Repository
	profiles  availability.ProfileStore
	providers directory.Directory
	locker    redisclient.Locker
	notifier  Notifier
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(repo Repository, profiles availability.ProfileStore, providers directory.Directory, locker redisclient.Locker, notifier Notifier, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		profiles:  profiles,
		providers: providers,
		locker:    locker,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// Create records a new appointment request. When a provider is chosen up
// front, the requested slot is re-validated against the generator inside a
// schedule lock so a slot seen as free by the client cannot be double-booked
// between query and submit.
func (s *Service) Create(ctx context.Context, draft Draft) (*Appointment, error) {
	draft.Issue = strings.TrimSpace(draft.Issue)
	if draft.Issue == "" {
		return nil, ErrEmptyIssue
	}
	if draft.PatientID == uuid.Nil {
		return nil, ErrMissingPatient
	}
	if draft.Priority == "" {
		draft.Priority = PriorityNormal
	}
	if !draft.Priority.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPriority, draft.Priority)
	}
	if draft.BookedByID == uuid.Nil {
		draft.BookedByID = draft.PatientID
	}

	a := &Appointment{
		ProviderID:      draft.ProviderID,
		PatientID:       draft.PatientID,
		BookedByID:      draft.BookedByID,
		Issue:           draft.Issue,
		Priority:        draft.Priority,
		Notes:           draft.Notes,
		PreferredDate:   draft.PreferredDate,
		AppointmentDate: draft.AppointmentDate,
		DurationMinutes: draft.DurationMinutes,
	}

	if draft.ProviderID == nil {
		created, err := s.repo.Create(ctx, a)
		if err != nil {
			return nil, fmt.Errorf("create appointment: %w", err)
		}
		s.notifyAsync(func(nctx context.Context) { s.notifier.AppointmentCreated(nctx, created) })
		return created, nil
	}

	provider, err := s.providers.GetByID(ctx, *draft.ProviderID)
	if err != nil {
		return nil, err
	}
	if !provider.IsVerified {
		return nil, ErrProviderNotBookable
	}
	if draft.AppointmentDate == nil {
		return nil, ErrMissingAppointmentDate
	}

	profile, err := s.profiles.Get(ctx, provider.ID)
	if err != nil {
		return nil, err
	}
	loc, err := profile.Location()
	if err != nil {
		return nil, err
	}
	if a.DurationMinutes == 0 {
		a.DurationMinutes = profile.SlotDurationMinutes
	}

	startAt := draft.AppointmentDate.In(loc)

	var created *Appointment
	err = s.locker.WithScheduleLock(ctx, provider.ID, startAt, func(lockCtx context.Context) error {
		// Inside the critical section, regenerate the day and confirm the
		// requested slot is still free.
		date := availability.DateOf(startAt)
		booked, err := s.repo.ListBookedBetween(lockCtx, provider.ID, date.At(0, loc), date.AddDays(1).At(0, loc))
		if err != nil {
			return fmt.Errorf("list booked intervals: %w", err)
		}

		slots, err := availability.Generate(profile, date, s.now(), booked)
		if err != nil {
			return err
		}

		want := availability.TimeOfDay(startAt.Hour()*60 + startAt.Minute())
		var match *availability.Slot
		for i := range slots {
			if slots[i].Start == want {
				match = &slots[i]
				break
			}
		}
		if match == nil || !match.Available {
			return ErrSlotNoLongerAvailable
		}

		created, err = s.repo.Create(lockCtx, a)
		if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrScheduleBusy
		}
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", created.ID.String()).
		Str("provider_id", provider.ID.String()).
		Time("appointment_date", *created.AppointmentDate).
		Msg("appointment booked")

	s.notifyAsync(func(nctx context.Context) { s.notifier.AppointmentCreated(nctx, created) })

	return created, nil
}

// Claim assigns an unassigned pending request to exactly one provider. The
// decision is the repository's conditional write; under a race the loser
// gets ErrAlreadyClaimed.
func (s *Service) Claim(ctx context.Context, id, providerID uuid.UUID) (*Appointment, error) {
	provider, err := s.providers.GetByID(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if !provider.IsVerified {
		return nil, ErrProviderNotBookable
	}

	claimed, err := s.repo.Claim(ctx, id, providerID)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", claimed.ID.String()).
		Str("provider_id", providerID.String()).
		Msg("appointment claimed")

	s.notifyAsync(func(nctx context.Context) { s.notifier.AppointmentClaimed(nctx, claimed) })

	return claimed, nil
}

// UpdateStatus moves an appointment through the status machine. Only the
// owning provider may do so, and terminal statuses permit no transitions.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, to Status, actorProviderID uuid.UUID) (*Appointment, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}

	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.ProviderID == nil || *appt.ProviderID != actorProviderID {
		return nil, ErrNotOwner
	}
	if !CanTransition(appt.Status, to) {
		return nil, fmt.Errorf("%s -> %s: %w", appt.Status, to, ErrInvalidTransition)
	}

	updated, err := s.repo.UpdateStatus(ctx, id, appt.Status, to)
	if err != nil {
		if errors.Is(err, ErrStaleStatus) {
			// Someone else moved the status between our read and write.
			return nil, fmt.Errorf("%s -> %s: %w", appt.Status, to, ErrInvalidTransition)
		}
		return nil, fmt.Errorf("update status: %w", err)
	}

	previous := appt.Status
	s.notifyAsync(func(nctx context.Context) { s.notifier.AppointmentStatusChanged(nctx, updated, previous) })

	return updated, nil
}

// UpdateProviderNotes edits the owning provider's notes while the
// appointment is still active.
func (s *Service) UpdateProviderNotes(ctx context.Context, id uuid.UUID, actorProviderID uuid.UUID, notes string) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.ProviderID == nil || *appt.ProviderID != actorProviderID {
		return nil, ErrNotOwner
	}
	if appt.Status != StatusPending && appt.Status != StatusConfirmed {
		return nil, ErrNotesLocked
	}

	updated, err := s.repo.UpdateProviderNotes(ctx, id, notes)
	if err != nil {
		if errors.Is(err, ErrStaleStatus) {
			// Moved to a terminal status between our read and the write.
			return nil, ErrNotesLocked
		}
		return nil, fmt.Errorf("update provider notes: %w", err)
	}
	return updated, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListUnassigned(ctx context.Context, limit, offset int) ([]Appointment, error) {
	limit, offset = clampPage(limit, offset)
	return s.repo.ListUnassigned(ctx, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	limit, offset = clampPage(limit, offset)
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// SweepStaleUnassigned cancels unassigned pending requests older than
// staleAfter. Intended to be called periodically by the sweep worker;
// pending -> cancelled is the only legal way to retire them.
func (s *Service) SweepStaleUnassigned(ctx context.Context, staleAfter time.Duration) (int, error) {
	cutoff := s.now().Add(-staleAfter)
	stale, err := s.repo.FindStaleUnassigned(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("find stale unassigned appointments: %w", err)
	}

	swept := 0
	for _, appt := range stale {
		updated, err := s.repo.CancelUnassigned(ctx, appt.ID)
		if err != nil {
			if errors.Is(err, ErrStaleStatus) {
				// Claimed or retired since we read it; leave it alone.
				continue
			}
			s.logger.Error().Err(err).
				Str("appointment_id", appt.ID.String()).
				Msg("failed to cancel stale appointment")
			continue
		}
		swept++
		s.notifyAsync(func(nctx context.Context) { s.notifier.AppointmentStatusChanged(nctx, updated, StatusPending) })
	}

	return swept, nil
}

func (s *Service) notifyAsync(fn func(ctx context.Context)) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
