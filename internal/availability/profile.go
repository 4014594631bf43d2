package availability

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidInterval = errors.New("interval start must be before end")
	ErrInvalidDuration = errors.New("slot duration must be at least one minute")
	ErrInvalidBuffer   = errors.New("buffer minutes must not be negative")
	ErrInvalidHorizon  = errors.New("advance booking days must not be negative")
	ErrInvalidTimezone = errors.New("timezone must be a valid IANA zone")
)

// DayHours is one weekday's opening interval. Disabled means closed that day.
type DayHours struct {
	Enabled bool      `json:"enabled"`
	Start   TimeOfDay `json:"start"`
	End     TimeOfDay `json:"end"`
}

// BreakTime is a recurring daily break, applied on every open day.
type BreakTime struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
	Label string    `json:"label,omitempty"`
}

// CustomSlot is a date-specific override. It is authoritative for the spans
// it covers and can both grant and revoke availability.
type CustomSlot struct {
	Start     TimeOfDay `json:"start"`
	End       TimeOfDay `json:"end"`
	Available bool      `json:"is_available"`
	Notes     string    `json:"notes,omitempty"`
}

// BlockedSlot is a date-specific hard block with a caller-visible reason.
type BlockedSlot struct {
	Start  TimeOfDay `json:"start"`
	End    TimeOfDay `json:"end"`
	Reason string    `json:"reason"`
	Notes  string    `json:"notes,omitempty"`
}

// Profile is a provider's full scheduling configuration. All wall-clock
// values are interpreted in Timezone.
type Profile struct {
	ProviderID          uuid.UUID                 `json:"provider_id"`
	WeeklyHours         map[time.Weekday]DayHours `json:"weekly_hours"`
	BreakTimes          []BreakTime               `json:"break_times"`
	SlotDurationMinutes int                       `json:"slot_duration_minutes"`
	BufferMinutes       int                       `json:"buffer_minutes"`
	AdvanceBookingDays  int                       `json:"advance_booking_days"`
	Timezone            string                    `json:"timezone"`
	CustomSlots         map[Date][]CustomSlot     `json:"custom_slots,omitempty"`
	BlockedSlots        map[Date][]BlockedSlot    `json:"blocked_slots,omitempty"`
	UpdatedAt           time.Time                 `json:"updated_at"`
}

// Validate rejects malformed configuration before it reaches the generator.
// The generator itself only ever sees profiles that pass here.
func (p *Profile) Validate() error {
	if p.SlotDurationMinutes < 1 {
		return ErrInvalidDuration
	}
	if p.BufferMinutes < 0 {
		return ErrInvalidBuffer
	}
	if p.AdvanceBookingDays < 0 {
		return ErrInvalidHorizon
	}
	if _, err := time.LoadLocation(p.Timezone); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidTimezone, p.Timezone)
	}

	for day, hours := range p.WeeklyHours {
		if !hours.Enabled {
			continue
		}
		// A zero-length day (start == end) is legal and yields no slots.
		if err := checkInterval(hours.Start, hours.End, true); err != nil {
			return fmt.Errorf("weekly hours for %s: %w", day, err)
		}
	}
	for _, b := range p.BreakTimes {
		if err := checkInterval(b.Start, b.End, false); err != nil {
			return fmt.Errorf("break %q: %w", b.Label, err)
		}
	}
	for date, slots := range p.CustomSlots {
		for _, cs := range slots {
			if err := checkInterval(cs.Start, cs.End, false); err != nil {
				return fmt.Errorf("custom slot on %s: %w", date, err)
			}
		}
	}
	for date, slots := range p.BlockedSlots {
		for _, bs := range slots {
			if err := checkInterval(bs.Start, bs.End, false); err != nil {
				return fmt.Errorf("blocked slot on %s: %w", date, err)
			}
		}
	}

	return nil
}

func (p *Profile) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, p.Timezone)
	}
	return loc, nil
}

func checkInterval(start, end TimeOfDay, allowEmpty bool) error {
	if !start.Valid() || !end.Valid() {
		return ErrInvalidInterval
	}
	if allowEmpty && start == end {
		return nil
	}
	if start >= end {
		return ErrInvalidInterval
	}
	return nil
}

func overlaps(aStart, aEnd, bStart, bEnd TimeOfDay) bool {
	return aStart < bEnd && bStart < aEnd
}
