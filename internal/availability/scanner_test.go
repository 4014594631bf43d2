package availability

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type stubProfiles struct {
	profile *Profile
}

func (s stubProfiles) Get(_ context.Context, providerID uuid.UUID) (*Profile, error) {
	if s.profile == nil || s.profile.ProviderID != providerID {
		return nil, ErrProfileNotFound
	}
	return s.profile, nil
}

type stubBooked struct {
	intervals []BookedInterval
}

func (s stubBooked) ListBookedBetween(_ context.Context, _ uuid.UUID, from, to time.Time) ([]BookedInterval, error) {
	var out []BookedInterval
	for _, iv := range s.intervals {
		if iv.Start.Before(to) && from.Before(iv.End) {
			out = append(out, iv)
		}
	}
	return out, nil
}

// Open every day 09:00-12:00, 30-minute slots.
func everyDayProfile(t *testing.T) *Profile {
	t.Helper()
	hours := make(map[time.Weekday]DayHours)
	for d := time.Sunday; d <= time.Saturday; d++ {
		hours[d] = DayHours{Enabled: true, Start: mustTime(t, "09:00"), End: mustTime(t, "12:00")}
	}
	return &Profile{
		ProviderID:          uuid.New(),
		WeeklyHours:         hours,
		SlotDurationMinutes: 30,
		AdvanceBookingDays:  30,
		Timezone:            "UTC",
	}
}

func bookDay(t *testing.T, date Date) BookedInterval {
	t.Helper()
	return BookedInterval{
		Start: date.At(mustTime(t, "09:00"), time.UTC),
		End:   date.At(mustTime(t, "12:00"), time.UTC),
	}
}

func TestNextAvailableSkipsBookedDays(t *testing.T) {
	p := everyDayProfile(t)
	today := mustDate(t, "2026-09-07")
	now := today.At(mustTime(t, "08:00"), time.UTC)

	var booked []BookedInterval
	for i := 0; i <= 3; i++ {
		booked = append(booked, bookDay(t, today.AddDays(i)))
	}

	scanner := NewScanner(stubProfiles{profile: p}, stubBooked{intervals: booked})

	slot, err := scanner.NextAvailable(context.Background(), p.ProviderID, 7, 30, now)
	require.NoError(t, err)
	require.NotNil(t, slot)
	require.Equal(t, today.AddDays(4), slot.Date)
	require.Equal(t, "09:00", slot.Start.String())
	require.True(t, slot.Available)

	// Horizon exhausted before the free day.
	slot, err = scanner.NextAvailable(context.Background(), p.ProviderID, 2, 30, now)
	require.NoError(t, err)
	require.Nil(t, slot)
}

func TestNextAvailableCappedByAdvanceBookingDays(t *testing.T) {
	p := everyDayProfile(t)
	p.AdvanceBookingDays = 2
	today := mustDate(t, "2026-09-07")
	now := today.At(mustTime(t, "08:00"), time.UTC)

	var booked []BookedInterval
	for i := 0; i <= 3; i++ {
		booked = append(booked, bookDay(t, today.AddDays(i)))
	}

	scanner := NewScanner(stubProfiles{profile: p}, stubBooked{intervals: booked})

	slot, err := scanner.NextAvailable(context.Background(), p.ProviderID, 7, 30, now)
	require.NoError(t, err)
	require.Nil(t, slot)
}

func TestNextAvailableSameDayLaterSlot(t *testing.T) {
	p := everyDayProfile(t)
	today := mustDate(t, "2026-09-07")
	now := today.At(mustTime(t, "10:10"), time.UTC)

	scanner := NewScanner(stubProfiles{profile: p}, stubBooked{})

	slot, err := scanner.NextAvailable(context.Background(), p.ProviderID, 7, 30, now)
	require.NoError(t, err)
	require.NotNil(t, slot)
	require.Equal(t, today, slot.Date)
	require.Equal(t, "10:30", slot.Start.String())
}

func TestNextAvailableUnknownProvider(t *testing.T) {
	scanner := NewScanner(stubProfiles{}, stubBooked{})
	_, err := scanner.NextAvailable(context.Background(), uuid.New(), 7, 30, time.Now())
	require.ErrorIs(t, err, ErrProfileNotFound)
}

func TestSummaryCounts(t *testing.T) {
	p := everyDayProfile(t)
	// Tuesday closed.
	p.WeeklyHours[time.Tuesday] = DayHours{Enabled: false}

	today := mustDate(t, "2026-09-07") // Monday
	now := today.At(mustTime(t, "08:00"), time.UTC)

	// One booked slot on Monday.
	booked := []BookedInterval{{
		Start: today.At(mustTime(t, "09:00"), time.UTC),
		End:   today.At(mustTime(t, "09:30"), time.UTC),
	}}

	scanner := NewScanner(stubProfiles{profile: p}, stubBooked{intervals: booked})

	summaries, err := scanner.Summary(context.Background(), p.ProviderID, 3, now)
	require.NoError(t, err)
	require.Len(t, summaries, 3)

	monday := summaries[0]
	require.Equal(t, "Monday", monday.DayName)
	require.True(t, monday.IsAvailable)
	require.Equal(t, 6, monday.TotalCount)
	require.Equal(t, 5, monday.AvailableCount)
	require.InDelta(t, 83.33, monday.AvailablePercentage, 0.01)
	require.NotNil(t, monday.OpenStart)
	require.Equal(t, "09:00", monday.OpenStart.String())
	require.Equal(t, "12:00", monday.OpenEnd.String())

	tuesday := summaries[1]
	require.False(t, tuesday.IsAvailable)
	require.Equal(t, 0, tuesday.TotalCount)
	require.Equal(t, float64(0), tuesday.AvailablePercentage)
	require.Nil(t, tuesday.OpenStart)

	wednesday := summaries[2]
	require.Equal(t, 6, wednesday.TotalCount)
	require.Equal(t, 6, wednesday.AvailableCount)
	require.Equal(t, float64(100), wednesday.AvailablePercentage)
}

func TestSlotsUsesLedgerState(t *testing.T) {
	p := everyDayProfile(t)
	today := mustDate(t, "2026-09-07")
	now := today.At(mustTime(t, "08:00"), time.UTC)

	booked := []BookedInterval{{
		Start: today.At(mustTime(t, "11:00"), time.UTC),
		End:   today.At(mustTime(t, "11:30"), time.UTC),
	}}

	scanner := NewScanner(stubProfiles{profile: p}, stubBooked{intervals: booked})

	slots, err := scanner.Slots(context.Background(), p.ProviderID, today, now)
	require.NoError(t, err)
	require.Len(t, slots, 6)

	hit := slotAt(t, slots, "11:00")
	require.False(t, hit.Available)
	require.Equal(t, ReasonBooked, hit.Reason)
}
