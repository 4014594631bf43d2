package availability

import (
	"time"

	"github.com/google/uuid"
)

const (
	ReasonBreakTime = "Break time"
	ReasonBooked    = "Booked"
	ReasonPastTime  = "Past time"
)

// Slot is a derived candidate window. Slots are computed on demand and never
// persisted; the ledger's booked state is an input, not a cache.
type Slot struct {
	ProviderID      uuid.UUID `json:"provider_id"`
	Date            Date      `json:"date"`
	Start           TimeOfDay `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Available       bool      `json:"available"`
	Reason          string    `json:"reason,omitempty"`
}

// BookedInterval is an occupied stretch of a provider's calendar, taken from
// non-cancelled appointments.
type BookedInterval struct {
	Start time.Time
	End   time.Time
}

type span struct {
	start TimeOfDay
	end   TimeOfDay
}

type verdict struct {
	available bool
	reason    string
}

// layer inspects one candidate span and either decides its availability or
// passes. Layers run in a fixed order; a later decisive layer supersedes an
// earlier one, and the past-time layer always decides when it fires.
type layer func(s span) (verdict, bool)

// Generate computes the ordered candidate slots for one calendar date.
// It is a pure function of its arguments: now is explicit so callers and
// tests control the clock, and booked carries the ledger state read at call
// time.
func Generate(p *Profile, date Date, now time.Time, booked []BookedInterval) ([]Slot, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	loc, err := p.Location()
	if err != nil {
		return nil, err
	}

	day, ok := p.WeeklyHours[date.Weekday()]
	if !ok || !day.Enabled || day.Start >= day.End {
		return nil, nil
	}

	layers := []layer{
		breakLayer(p.BreakTimes),
		blockLayer(p.BlockedSlots[date]),
		customLayer(p.CustomSlots[date]),
		bookedLayer(date, booked, loc),
		pastLayer(date, now, loc),
	}

	step := p.SlotDurationMinutes + p.BufferMinutes
	var slots []Slot
	for start := day.Start; start.AddMinutes(p.SlotDurationMinutes) <= day.End; start = start.AddMinutes(step) {
		sp := span{start: start, end: start.AddMinutes(p.SlotDurationMinutes)}

		v := verdict{available: true}
		for _, l := range layers {
			if next, decided := l(sp); decided {
				v = next
			}
		}

		slots = append(slots, Slot{
			ProviderID:      p.ProviderID,
			Date:            date,
			Start:           start,
			DurationMinutes: p.SlotDurationMinutes,
			Available:       v.available,
			Reason:          v.reason,
		})
	}

	return slots, nil
}

func breakLayer(breaks []BreakTime) layer {
	return func(s span) (verdict, bool) {
		for _, b := range breaks {
			if overlaps(s.start, s.end, b.Start, b.End) {
				return verdict{available: false, reason: ReasonBreakTime}, true
			}
		}
		return verdict{}, false
	}
}

func blockLayer(blocks []BlockedSlot) layer {
	return func(s span) (verdict, bool) {
		for _, b := range blocks {
			if overlaps(s.start, s.end, b.Start, b.End) {
				return verdict{available: false, reason: b.Reason}, true
			}
		}
		return verdict{}, false
	}
}

// customLayer is authoritative for the spans it covers: the override's flag
// wins over breaks and blocks in either direction.
func customLayer(customs []CustomSlot) layer {
	return func(s span) (verdict, bool) {
		for _, c := range customs {
			if overlaps(s.start, s.end, c.Start, c.End) {
				return verdict{available: c.Available, reason: c.Notes}, true
			}
		}
		return verdict{}, false
	}
}

func bookedLayer(date Date, booked []BookedInterval, loc *time.Location) layer {
	return func(s span) (verdict, bool) {
		slotStart := date.At(s.start, loc)
		slotEnd := date.At(s.end, loc)
		for _, b := range booked {
			if slotStart.Before(b.End) && b.Start.Before(slotEnd) {
				return verdict{available: false, reason: ReasonBooked}, true
			}
		}
		return verdict{}, false
	}
}

// pastLayer is the hard veto: a slot whose start is at or before now is
// unavailable no matter what any earlier layer decided.
func pastLayer(date Date, now time.Time, loc *time.Location) layer {
	return func(s span) (verdict, bool) {
		if !date.At(s.start, loc).After(now) {
			return verdict{available: false, reason: ReasonPastTime}, true
		}
		return verdict{}, false
	}
}
