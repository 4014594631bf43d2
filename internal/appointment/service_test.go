package appointment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/careloop/scheduling/internal/availability"
	"github.com/careloop/scheduling/internal/directory"
)

// -- In-memory collaborators --

type memRepo struct {
	mu     sync.Mutex
	appts  map[uuid.UUID]*Appointment
	nextID func() uuid.UUID
}

func newMemRepo() *memRepo {
	return &memRepo{appts: make(map[uuid.UUID]*Appointment), nextID: uuid.New}
}

func (m *memRepo) Create(_ context.Context, a *Appointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *a
	stored.ID = m.nextID()
	stored.Status = StatusPending
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	m.appts[stored.ID] = &stored

	out := stored
	return &out, nil
}

func (m *memRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	out := *a
	return &out, nil
}

func (m *memRepo) Claim(_ context.Context, id, providerID uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.ProviderID != nil {
		return nil, ErrAlreadyClaimed
	}
	if a.Status != StatusPending {
		return nil, ErrStaleStatus
	}

	pid := providerID
	a.ProviderID = &pid
	a.UpdatedAt = time.Now()

	out := *a
	return &out, nil
}

func (m *memRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status != from {
		return nil, ErrStaleStatus
	}
	a.Status = to
	a.UpdatedAt = time.Now()

	out := *a
	return &out, nil
}

func (m *memRepo) UpdateProviderNotes(_ context.Context, id uuid.UUID, notes string) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status != StatusPending && a.Status != StatusConfirmed {
		return nil, ErrStaleStatus
	}
	n := notes
	a.ProviderNotes = &n
	a.UpdatedAt = time.Now()

	out := *a
	return &out, nil
}

func (m *memRepo) CancelUnassigned(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appts[id]
	if !ok {
		return nil, ErrStaleStatus
	}
	if a.ProviderID != nil || a.Status != StatusPending {
		return nil, ErrStaleStatus
	}
	a.Status = StatusCancelled
	a.UpdatedAt = time.Now()

	out := *a
	return &out, nil
}

func (m *memRepo) ListUnassigned(_ context.Context, limit, offset int) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Appointment
	for _, a := range m.appts {
		if a.ProviderID == nil && a.Status == StatusPending {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Appointment
	for _, a := range m.appts {
		if a.PatientID == patientID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memRepo) FindStaleUnassigned(_ context.Context, before time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Appointment
	for _, a := range m.appts {
		if a.ProviderID == nil && a.Status == StatusPending && a.CreatedAt.Before(before) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memRepo) ListBookedBetween(_ context.Context, providerID uuid.UUID, from, to time.Time) ([]availability.BookedInterval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []availability.BookedInterval
	for _, a := range m.appts {
		if a.ProviderID == nil || *a.ProviderID != providerID {
			continue
		}
		if a.Status == StatusCancelled || a.AppointmentDate == nil {
			continue
		}
		start := *a.AppointmentDate
		end := start.Add(time.Duration(a.DurationMinutes) * time.Minute)
		if start.Before(to) && from.Before(end) {
			out = append(out, availability.BookedInterval{Start: start, End: end})
		}
	}
	return out, nil
}

type inlineLocker struct {
	mu sync.Mutex
}

func (l *inlineLocker) WithScheduleLock(ctx context.Context, _ uuid.UUID, _ time.Time, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(ctx)
}

type stubDirectory struct {
	providers map[uuid.UUID]*directory.Provider
}

func (d stubDirectory) GetByID(_ context.Context, id uuid.UUID) (*directory.Provider, error) {
	p, ok := d.providers[id]
	if !ok {
		return nil, directory.ErrProviderNotFound
	}
	return p, nil
}

func (d stubDirectory) ListBookable(_ context.Context) ([]directory.Provider, error) {
	var out []directory.Provider
	for _, p := range d.providers {
		if p.IsVerified {
			out = append(out, *p)
		}
	}
	return out, nil
}

type stubProfiles struct {
	profile *availability.Profile
}

func (s stubProfiles) Get(_ context.Context, providerID uuid.UUID) (*availability.Profile, error) {
	if s.profile == nil || s.profile.ProviderID != providerID {
		return nil, availability.ErrProfileNotFound
	}
	return s.profile, nil
}

func (s stubProfiles) Put(context.Context, *availability.Profile) error { return nil }
func (s stubProfiles) PutCustomSlots(context.Context, uuid.UUID, availability.Date, []availability.CustomSlot) error {
	return nil
}
func (s stubProfiles) DeleteCustomSlots(context.Context, uuid.UUID, availability.Date) error {
	return nil
}
func (s stubProfiles) PutBlockedSlots(context.Context, uuid.UUID, availability.Date, []availability.BlockedSlot) error {
	return nil
}
func (s stubProfiles) DeleteBlockedSlots(context.Context, uuid.UUID, availability.Date) error {
	return nil
}

// -- Fixtures --

type fixture struct {
	svc      *Service
	repo     *memRepo
	provider *directory.Provider
	profile  *availability.Profile
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	provider := &directory.Provider{ID: uuid.New(), Name: "Dr. Priya Raman", IsVerified: true}

	start, err := availability.ParseTimeOfDay("09:00")
	require.NoError(t, err)
	end, err := availability.ParseTimeOfDay("12:00")
	require.NoError(t, err)

	hours := make(map[time.Weekday]availability.DayHours)
	for d := time.Sunday; d <= time.Saturday; d++ {
		hours[d] = availability.DayHours{Enabled: true, Start: start, End: end}
	}

	profile := &availability.Profile{
		ProviderID:          provider.ID,
		WeeklyHours:         hours,
		SlotDurationMinutes: 30,
		AdvanceBookingDays:  30,
		Timezone:            "UTC",
	}

	repo := newMemRepo()
	svc := NewService(
		repo,
		stubProfiles{profile: profile},
		stubDirectory{providers: map[uuid.UUID]*directory.Provider{provider.ID: provider}},
		&inlineLocker{},
		NopNotifier{},
		zerolog.Nop(),
	)

	now := time.Date(2026, 9, 7, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	return &fixture{svc: svc, repo: repo, provider: provider, profile: profile, now: now}
}

// -- Create --

func TestCreateUnassigned(t *testing.T) {
	f := newFixture(t)
	patientID := uuid.New()

	created, err := f.svc.Create(context.Background(), Draft{
		PatientID: patientID,
		Issue:     "  recurring back pain  ",
	})
	require.NoError(t, err)
	require.Nil(t, created.ProviderID)
	require.Equal(t, StatusPending, created.Status)
	require.Equal(t, "recurring back pain", created.Issue)
	require.Equal(t, PriorityNormal, created.Priority)
	require.Equal(t, patientID, created.BookedByID)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, Draft{PatientID: uuid.New(), Issue: "   "})
	require.ErrorIs(t, err, ErrEmptyIssue)

	_, err = f.svc.Create(ctx, Draft{Issue: "x"})
	require.ErrorIs(t, err, ErrMissingPatient)

	_, err = f.svc.Create(ctx, Draft{PatientID: uuid.New(), Issue: "x", Priority: Priority("asap")})
	require.ErrorIs(t, err, ErrInvalidPriority)

	_, err = f.svc.Create(ctx, Draft{PatientID: uuid.New(), Issue: "x", ProviderID: &f.provider.ID})
	require.ErrorIs(t, err, ErrMissingAppointmentDate)

	unknown := uuid.New()
	at := time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC)
	_, err = f.svc.Create(ctx, Draft{PatientID: uuid.New(), Issue: "x", ProviderID: &unknown, AppointmentDate: &at})
	require.ErrorIs(t, err, directory.ErrProviderNotFound)
}

func TestCreateBooksAvailableSlot(t *testing.T) {
	f := newFixture(t)
	at := time.Date(2026, 9, 7, 9, 30, 0, 0, time.UTC)

	created, err := f.svc.Create(context.Background(), Draft{
		PatientID:       uuid.New(),
		Issue:           "annual physical",
		ProviderID:      &f.provider.ID,
		AppointmentDate: &at,
	})
	require.NoError(t, err)
	require.Equal(t, f.provider.ID, *created.ProviderID)
	require.Equal(t, at, *created.AppointmentDate)
	require.Equal(t, 30, created.DurationMinutes)
	require.Equal(t, StatusPending, created.Status)
}

func TestCreateRejectsTakenSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC)

	_, err := f.svc.Create(ctx, Draft{
		PatientID:       uuid.New(),
		Issue:           "first come",
		ProviderID:      &f.provider.ID,
		AppointmentDate: &at,
	})
	require.NoError(t, err)

	// Same slot again: the in-lock regeneration now sees it booked.
	_, err = f.svc.Create(ctx, Draft{
		PatientID:       uuid.New(),
		Issue:           "second come",
		ProviderID:      &f.provider.ID,
		AppointmentDate: &at,
	})
	require.ErrorIs(t, err, ErrSlotNoLongerAvailable)

	// The neighbouring slot is untouched.
	later := at.Add(30 * time.Minute)
	_, err = f.svc.Create(ctx, Draft{
		PatientID:       uuid.New(),
		Issue:           "second come",
		ProviderID:      &f.provider.ID,
		AppointmentDate: &later,
	})
	require.NoError(t, err)
}

func TestCreateRejectsOffGridSlot(t *testing.T) {
	f := newFixture(t)
	at := time.Date(2026, 9, 7, 9, 10, 0, 0, time.UTC) // not a generated start

	_, err := f.svc.Create(context.Background(), Draft{
		PatientID:       uuid.New(),
		Issue:           "odd time",
		ProviderID:      &f.provider.ID,
		AppointmentDate: &at,
	})
	require.ErrorIs(t, err, ErrSlotNoLongerAvailable)
}

func TestCreateRejectsPastSlot(t *testing.T) {
	f := newFixture(t)
	at := time.Date(2026, 9, 7, 7, 0, 0, 0, time.UTC) // before opening and before now

	_, err := f.svc.Create(context.Background(), Draft{
		PatientID:       uuid.New(),
		Issue:           "too early",
		ProviderID:      &f.provider.ID,
		AppointmentDate: &at,
	})
	require.ErrorIs(t, err, ErrSlotNoLongerAvailable)
}

// -- Claim --

func TestClaimRace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, Draft{PatientID: uuid.New(), Issue: "urgent rash", Priority: PriorityUrgent})
	require.NoError(t, err)

	const contenders = 8
	providers := make([]*directory.Provider, contenders)
	dir := stubDirectory{providers: make(map[uuid.UUID]*directory.Provider)}
	for i := range providers {
		p := &directory.Provider{ID: uuid.New(), Name: "Dr. Contender", IsVerified: true}
		providers[i] = p
		dir.providers[p.ID] = p
	}
	f.svc.providers = dir

	var wg sync.WaitGroup
	results := make([]error, contenders)
	winners := make([]*Appointment, contenders)

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			winners[i], results[i] = f.svc.Claim(ctx, created.ID, providers[i].ID)
		}(i)
	}
	wg.Wait()

	var wonBy *uuid.UUID
	successes := 0
	for i, err := range results {
		if err == nil {
			successes++
			wonBy = winners[i].ProviderID
		} else {
			require.ErrorIs(t, err, ErrAlreadyClaimed)
		}
	}
	require.Equal(t, 1, successes, "exactly one claim must win")

	// The winner sticks: the record still belongs to it and stays pending.
	final, err := f.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, *wonBy, *final.ProviderID)
	require.Equal(t, StatusPending, final.Status)

	// A late claim also loses.
	_, err = f.svc.Claim(ctx, created.ID, providers[0].ID)
	require.ErrorIs(t, err, ErrAlreadyClaimed)
}

func TestClaimUnknownOrUnverifiedProvider(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, Draft{PatientID: uuid.New(), Issue: "rash"})
	require.NoError(t, err)

	_, err = f.svc.Claim(ctx, created.ID, uuid.New())
	require.ErrorIs(t, err, directory.ErrProviderNotFound)

	f.provider.IsVerified = false
	_, err = f.svc.Claim(ctx, created.ID, f.provider.ID)
	require.ErrorIs(t, err, ErrProviderNotBookable)
}

// -- Status machine --

func (f *fixture) claimedAppointment(t *testing.T, status Status) *Appointment {
	t.Helper()

	created, err := f.svc.Create(context.Background(), Draft{PatientID: uuid.New(), Issue: "follow-up"})
	require.NoError(t, err)

	claimed, err := f.svc.Claim(context.Background(), created.ID, f.provider.ID)
	require.NoError(t, err)

	if status != StatusPending {
		f.repo.mu.Lock()
		f.repo.appts[claimed.ID].Status = status
		f.repo.mu.Unlock()
	}

	got, err := f.svc.Get(context.Background(), claimed.ID)
	require.NoError(t, err)
	return got
}

func TestUpdateStatusTransitions(t *testing.T) {
	all := []Status{StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled}
	legal := map[Status][]Status{
		StatusPending:   {StatusConfirmed, StatusCancelled},
		StatusConfirmed: {StatusCompleted, StatusCancelled},
	}

	for _, from := range all {
		for _, to := range all {
			f := newFixture(t)
			appt := f.claimedAppointment(t, from)

			updated, err := f.svc.UpdateStatus(context.Background(), appt.ID, to, f.provider.ID)

			allowed := false
			for _, next := range legal[from] {
				if next == to {
					allowed = true
				}
			}

			if allowed {
				require.NoError(t, err, "%s -> %s", from, to)
				require.Equal(t, to, updated.Status)
			} else {
				require.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", from, to)
			}
		}
	}
}

func TestUpdateStatusOwnership(t *testing.T) {
	f := newFixture(t)
	appt := f.claimedAppointment(t, StatusPending)

	_, err := f.svc.UpdateStatus(context.Background(), appt.ID, StatusConfirmed, uuid.New())
	require.ErrorIs(t, err, ErrNotOwner)

	// Unassigned appointments cannot be transitioned at all.
	created, err := f.svc.Create(context.Background(), Draft{PatientID: uuid.New(), Issue: "waiting"})
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(context.Background(), created.ID, StatusConfirmed, f.provider.ID)
	require.ErrorIs(t, err, ErrNotOwner)
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	f := newFixture(t)
	appt := f.claimedAppointment(t, StatusPending)

	_, err := f.svc.UpdateStatus(context.Background(), appt.ID, Status("archived"), f.provider.ID)
	require.ErrorIs(t, err, ErrInvalidStatus)
}

// -- Provider notes --

func TestUpdateProviderNotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt := f.claimedAppointment(t, StatusPending)
	updated, err := f.svc.UpdateProviderNotes(ctx, appt.ID, f.provider.ID, "ordered bloodwork")
	require.NoError(t, err)
	require.Equal(t, "ordered bloodwork", *updated.ProviderNotes)

	_, err = f.svc.UpdateProviderNotes(ctx, appt.ID, uuid.New(), "nope")
	require.ErrorIs(t, err, ErrNotOwner)

	done := f.claimedAppointment(t, StatusCompleted)
	_, err = f.svc.UpdateProviderNotes(ctx, done.ID, f.provider.ID, "late note")
	require.ErrorIs(t, err, ErrNotesLocked)

	gone := f.claimedAppointment(t, StatusCancelled)
	_, err = f.svc.UpdateProviderNotes(ctx, gone.ID, f.provider.ID, "late note")
	require.ErrorIs(t, err, ErrNotesLocked)
}

// transitionAfterReadRepo completes the appointment right after the service's
// ownership read, landing a terminal status in the window before the notes
// write.
type transitionAfterReadRepo struct {
	*memRepo
}

func (r *transitionAfterReadRepo) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := r.memRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.memRepo.mu.Lock()
	r.memRepo.appts[id].Status = StatusCompleted
	r.memRepo.mu.Unlock()
	return a, nil
}

func TestUpdateProviderNotesConcurrentCompletion(t *testing.T) {
	f := newFixture(t)
	appt := f.claimedAppointment(t, StatusConfirmed)

	f.svc.repo = &transitionAfterReadRepo{memRepo: f.repo}

	_, err := f.svc.UpdateProviderNotes(context.Background(), appt.ID, f.provider.ID, "post-hoc note")
	require.ErrorIs(t, err, ErrNotesLocked)

	got, err := f.repo.GetByID(context.Background(), appt.ID)
	require.NoError(t, err)
	require.Nil(t, got.ProviderNotes)
}

// -- Sweep --

func TestSweepStaleUnassigned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale, err := f.svc.Create(ctx, Draft{PatientID: uuid.New(), Issue: "never picked up"})
	require.NoError(t, err)
	fresh, err := f.svc.Create(ctx, Draft{PatientID: uuid.New(), Issue: "just filed"})
	require.NoError(t, err)
	claimed := f.claimedAppointment(t, StatusPending)

	// Age the stale and claimed records past the cutoff.
	old := f.now.Add(-30 * 24 * time.Hour)
	f.repo.mu.Lock()
	f.repo.appts[stale.ID].CreatedAt = old
	f.repo.appts[claimed.ID].CreatedAt = old
	f.repo.mu.Unlock()

	swept, err := f.svc.SweepStaleUnassigned(ctx, 14*24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, swept)

	got, err := f.svc.Get(ctx, stale.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, got.Status)

	got, err = f.svc.Get(ctx, fresh.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)

	got, err = f.svc.Get(ctx, claimed.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)
}

// claimDuringSweepRepo claims the first stale candidate as soon as the sweep
// has read its list, landing in the window before the cancel write.
type claimDuringSweepRepo struct {
	*memRepo
	providerID uuid.UUID
}

func (r *claimDuringSweepRepo) FindStaleUnassigned(ctx context.Context, before time.Time) ([]Appointment, error) {
	stale, err := r.memRepo.FindStaleUnassigned(ctx, before)
	if err != nil || len(stale) == 0 {
		return stale, err
	}
	if _, err := r.memRepo.Claim(ctx, stale[0].ID, r.providerID); err != nil {
		return nil, err
	}
	return stale, nil
}

func TestSweepSkipsJustClaimed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, Draft{PatientID: uuid.New(), Issue: "left waiting"})
	require.NoError(t, err)

	old := f.now.Add(-30 * 24 * time.Hour)
	f.repo.mu.Lock()
	f.repo.appts[created.ID].CreatedAt = old
	f.repo.mu.Unlock()

	f.svc.repo = &claimDuringSweepRepo{memRepo: f.repo, providerID: f.provider.ID}

	swept, err := f.svc.SweepStaleUnassigned(ctx, 14*24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 0, swept)

	// The claim that raced the sweep sticks: still pending, still owned.
	got, err := f.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)
	require.Equal(t, f.provider.ID, *got.ProviderID)
}
