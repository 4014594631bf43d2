package directory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrProviderNotFound = errors.New("provider not found")

// Provider is the directory's view of a care provider. Only verified
// providers are bookable.
type Provider struct {
	ID             uuid.UUID
	Name           string
	Specialization *string
	IsVerified     bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Directory is the read-only provider listing the booking flow starts from.
type Directory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Provider, error)
	ListBookable(ctx context.Context) ([]Provider, error)
}
