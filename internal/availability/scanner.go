package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BookedSource reads occupied intervals from the appointment ledger. The
// scanner fetches the whole range once per call so every day in a scan sees
// the same snapshot.
type BookedSource interface {
	ListBookedBetween(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]BookedInterval, error)
}

// ProfileSource is the read side of the profile store.
type ProfileSource interface {
	Get(ctx context.Context, providerID uuid.UUID) (*Profile, error)
}

// DaySummary is one row of the N-day availability overview.
type DaySummary struct {
	Date                Date       `json:"date"`
	DayName             string     `json:"day_name"`
	IsAvailable         bool       `json:"is_available"`
	OpenStart           *TimeOfDay `json:"open_start,omitempty"`
	OpenEnd             *TimeOfDay `json:"open_end,omitempty"`
	AvailableCount      int        `json:"available_count"`
	TotalCount          int        `json:"total_count"`
	AvailablePercentage float64    `json:"available_percentage"`
}

// Scanner answers day-range availability queries by invoking the generator
// once per day. All methods are read-only and safe for concurrent use.
type Scanner struct {
	profiles ProfileSource
	booked   BookedSource
}

func NewScanner(profiles ProfileSource, booked BookedSource) *Scanner {
	return &Scanner{profiles: profiles, booked: booked}
}

// Slots returns the generated slots for one provider and date.
func (s *Scanner) Slots(ctx context.Context, providerID uuid.UUID, date Date, now time.Time) ([]Slot, error) {
	profile, err := s.profiles.Get(ctx, providerID)
	if err != nil {
		return nil, err
	}
	loc, err := profile.Location()
	if err != nil {
		return nil, err
	}

	booked, err := s.booked.ListBookedBetween(ctx, providerID, date.At(0, loc), date.AddDays(1).At(0, loc))
	if err != nil {
		return nil, fmt.Errorf("list booked intervals: %w", err)
	}

	return Generate(profile, date, now, booked)
}

// NextAvailable scans forward from now and returns the first available slot,
// or nil when the horizon is exhausted. The scan never exceeds the profile's
// own advance booking window. durationMinutes is advisory: profiles carry a
// single slot duration, so a mismatched request is answered with the
// profile's duration.
func (s *Scanner) NextAvailable(ctx context.Context, providerID uuid.UUID, horizonDays, durationMinutes int, now time.Time) (*Slot, error) {
	profile, err := s.profiles.Get(ctx, providerID)
	if err != nil {
		return nil, err
	}
	loc, err := profile.Location()
	if err != nil {
		return nil, err
	}

	if horizonDays > profile.AdvanceBookingDays {
		horizonDays = profile.AdvanceBookingDays
	}
	if horizonDays < 0 {
		return nil, nil
	}

	today := DateOf(now.In(loc))
	booked, err := s.booked.ListBookedBetween(ctx, providerID, today.At(0, loc), today.AddDays(horizonDays+1).At(0, loc))
	if err != nil {
		return nil, fmt.Errorf("list booked intervals: %w", err)
	}

	for i := 0; i <= horizonDays; i++ {
		date := today.AddDays(i)
		slots, err := Generate(profile, date, now, booked)
		if err != nil {
			return nil, err
		}
		for _, slot := range slots {
			if slot.Available {
				found := slot
				return &found, nil
			}
		}
	}

	return nil, nil
}

// Summary returns one DaySummary per day starting today, computed from a
// single profile and ledger snapshot.
func (s *Scanner) Summary(ctx context.Context, providerID uuid.UUID, daysAhead int, now time.Time) ([]DaySummary, error) {
	profile, err := s.profiles.Get(ctx, providerID)
	if err != nil {
		return nil, err
	}
	loc, err := profile.Location()
	if err != nil {
		return nil, err
	}

	today := DateOf(now.In(loc))
	booked, err := s.booked.ListBookedBetween(ctx, providerID, today.At(0, loc), today.AddDays(daysAhead).At(0, loc))
	if err != nil {
		return nil, fmt.Errorf("list booked intervals: %w", err)
	}

	summaries := make([]DaySummary, 0, daysAhead)
	for i := 0; i < daysAhead; i++ {
		date := today.AddDays(i)
		slots, err := Generate(profile, date, now, booked)
		if err != nil {
			return nil, err
		}

		summary := DaySummary{
			Date:    date,
			DayName: date.Weekday().String(),
		}
		if day, ok := profile.WeeklyHours[date.Weekday()]; ok && day.Enabled {
			start, end := day.Start, day.End
			summary.OpenStart = &start
			summary.OpenEnd = &end
		}
		for _, slot := range slots {
			summary.TotalCount++
			if slot.Available {
				summary.AvailableCount++
			}
		}
		if summary.TotalCount > 0 {
			summary.AvailablePercentage = float64(summary.AvailableCount) / float64(summary.TotalCount) * 100
		}
		summary.IsAvailable = summary.AvailableCount > 0

		summaries = append(summaries, summary)
	}

	return summaries, nil
}
