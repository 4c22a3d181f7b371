package agency

import (
	"context"

	"github.com/google/uuid"
)

// Directory resolves the tenant hierarchy. Lookups return shared.ErrNotFound
// when the record does not exist.
type Directory interface {
	FindAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	FindAgency(ctx context.Context, id uuid.UUID) (*Agency, error)
	FindOfferLetter(ctx context.Context, id uuid.UUID) (*OfferLetter, error)
}

// AgencyRepository persists agencies
type AgencyRepository interface {
	Directory
	CreateAgency(ctx context.Context, a *Agency) error
	CountAgenciesForAccount(ctx context.Context, accountID uuid.UUID) (int64, error)
}
