package availability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgProfileStore struct {
	db DB
}

func NewPgProfileStore(db DB) *PgProfileStore {
	return &PgProfileStore{db: db}
}

func (s *PgProfileStore) Get(ctx context.Context, providerID uuid.UUID) (*Profile, error) {
	row := s.db.QueryRow(ctx, `
		SELECT provider_id, weekly_hours, break_times, slot_duration_minutes,
		       buffer_minutes, advance_booking_days, timezone, updated_at
		FROM availability_profiles
		WHERE provider_id = $1
	`, providerID)

	p, err := scanProfile(row)
	if err != nil {
		return nil, err
	}

	p.CustomSlots = make(map[Date][]CustomSlot)
	if err := s.loadOverrides(ctx, providerID, "custom_slot_overrides", func(date Date, raw []byte) error {
		var slots []CustomSlot
		if err := json.Unmarshal(raw, &slots); err != nil {
			return err
		}
		p.CustomSlots[date] = slots
		return nil
	}); err != nil {
		return nil, fmt.Errorf("load custom slots: %w", err)
	}

	p.BlockedSlots = make(map[Date][]BlockedSlot)
	if err := s.loadOverrides(ctx, providerID, "blocked_slot_overrides", func(date Date, raw []byte) error {
		var slots []BlockedSlot
		if err := json.Unmarshal(raw, &slots); err != nil {
			return err
		}
		p.BlockedSlots[date] = slots
		return nil
	}); err != nil {
		return nil, fmt.Errorf("load blocked slots: %w", err)
	}

	return p, nil
}

func (s *PgProfileStore) Put(ctx context.Context, p *Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	weekly, err := json.Marshal(p.WeeklyHours)
	if err != nil {
		return fmt.Errorf("encode weekly hours: %w", err)
	}
	breaks, err := json.Marshal(p.BreakTimes)
	if err != nil {
		return fmt.Errorf("encode break times: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO availability_profiles
			(provider_id, weekly_hours, break_times, slot_duration_minutes,
			 buffer_minutes, advance_booking_days, timezone, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (provider_id) DO UPDATE SET
			weekly_hours = EXCLUDED.weekly_hours,
			break_times = EXCLUDED.break_times,
			slot_duration_minutes = EXCLUDED.slot_duration_minutes,
			buffer_minutes = EXCLUDED.buffer_minutes,
			advance_booking_days = EXCLUDED.advance_booking_days,
			timezone = EXCLUDED.timezone,
			updated_at = now()
	`, p.ProviderID, weekly, breaks, p.SlotDurationMinutes,
		p.BufferMinutes, p.AdvanceBookingDays, p.Timezone)
	if err != nil {
		return fmt.Errorf("upsert availability profile: %w", err)
	}

	return nil
}

func (s *PgProfileStore) PutCustomSlots(ctx context.Context, providerID uuid.UUID, date Date, slots []CustomSlot) error {
	for _, cs := range slots {
		if err := checkInterval(cs.Start, cs.End, false); err != nil {
			return fmt.Errorf("custom slot on %s: %w", date, err)
		}
	}
	return s.putOverride(ctx, "custom_slot_overrides", providerID, date, slots)
}

func (s *PgProfileStore) DeleteCustomSlots(ctx context.Context, providerID uuid.UUID, date Date) error {
	return s.deleteOverride(ctx, "custom_slot_overrides", providerID, date)
}

func (s *PgProfileStore) PutBlockedSlots(ctx context.Context, providerID uuid.UUID, date Date, slots []BlockedSlot) error {
	for _, bs := range slots {
		if err := checkInterval(bs.Start, bs.End, false); err != nil {
			return fmt.Errorf("blocked slot on %s: %w", date, err)
		}
	}
	return s.putOverride(ctx, "blocked_slot_overrides", providerID, date, slots)
}

func (s *PgProfileStore) DeleteBlockedSlots(ctx context.Context, providerID uuid.UUID, date Date) error {
	return s.deleteOverride(ctx, "blocked_slot_overrides", providerID, date)
}

// Helpers

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	var weekly, breaks []byte

	err := row.Scan(
		&p.ProviderID,
		&weekly,
		&breaks,
		&p.SlotDurationMinutes,
		&p.BufferMinutes,
		&p.AdvanceBookingDays,
		&p.Timezone,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(weekly, &p.WeeklyHours); err != nil {
		return nil, fmt.Errorf("decode weekly hours: %w", err)
	}
	if err := json.Unmarshal(breaks, &p.BreakTimes); err != nil {
		return nil, fmt.Errorf("decode break times: %w", err)
	}

	return &p, nil
}

func (s *PgProfileStore) loadOverrides(ctx context.Context, providerID uuid.UUID, table string, apply func(Date, []byte) error) error {
	rows, err := s.db.Query(ctx, fmt.Sprintf(`
		SELECT date, slots FROM %s WHERE provider_id = $1
	`, table), providerID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var day time.Time
		var raw []byte
		if err := rows.Scan(&day, &raw); err != nil {
			return err
		}
		if err := apply(DateOf(day), raw); err != nil {
			return err
		}
	}

	return rows.Err()
}

func (s *PgProfileStore) putOverride(ctx context.Context, table string, providerID uuid.UUID, date Date, slots any) error {
	raw, err := json.Marshal(slots)
	if err != nil {
		return fmt.Errorf("encode override slots: %w", err)
	}

	_, err = s.db.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (provider_id, date, slots, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (provider_id, date) DO UPDATE SET
			slots = EXCLUDED.slots,
			updated_at = now()
	`, table), providerID, date.String(), raw)
	if err != nil {
		return fmt.Errorf("upsert override: %w", err)
	}

	return nil
}

func (s *PgProfileStore) deleteOverride(ctx context.Context, table string, providerID uuid.UUID, date Date) error {
	_, err := s.db.Exec(ctx, fmt.Sprintf(`
		DELETE FROM %s WHERE provider_id = $1 AND date = $2
	`, table), providerID, date.String())
	if err != nil {
		return fmt.Errorf("delete override: %w", err)
	}
	return nil
}
