package availability

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrProfileNotFound = errors.New("availability profile not found")

// ProfileStore persists provider scheduling configuration. Writes are
// last-write-wins at field-group level: Put replaces the whole base profile,
// the per-date methods replace one date's override list. Only the owning
// provider's settings workflow writes here.
type ProfileStore interface {
	Get(ctx context.Context, providerID uuid.UUID) (*Profile, error)
	Put(ctx context.Context, p *Profile) error

	PutCustomSlots(ctx context.Context, providerID uuid.UUID, date Date, slots []CustomSlot) error
	DeleteCustomSlots(ctx context.Context, providerID uuid.UUID, date Date) error

	PutBlockedSlots(ctx context.Context, providerID uuid.UUID, date Date, slots []BlockedSlot) error
	DeleteBlockedSlots(ctx context.Context, providerID uuid.UUID, date Date) error
}
