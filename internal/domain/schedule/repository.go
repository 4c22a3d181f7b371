package schedule

import (
	"context"
	"time"

	"github.com/edubill/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// ItemFilter defines filtering options for schedule item queries
type ItemFilter struct {
	shared.Filter
	AccountID     uuid.UUID
	AgencyID      *uuid.UUID
	OfferLetterID *uuid.UUID
	ItemIDs       []uuid.UUID
	Statuses      []ItemStatus
	DueFrom       *time.Time
	DueTo         *time.Time

	// Unbilled keeps only items without an open (not cancelled or refunded) transaction
	Unbilled bool
}

// PaymentScheduleItemRepository persists schedule items. All lookups are
// account-scoped; a row from another account is reported as not found.
type PaymentScheduleItemRepository interface {
	FindByID(ctx context.Context, accountID, id uuid.UUID) (*PaymentScheduleItem, error)
	FindByIDs(ctx context.Context, accountID uuid.UUID, ids []uuid.UUID) ([]PaymentScheduleItem, error)
	FindAll(ctx context.Context, filter ItemFilter) ([]PaymentScheduleItem, error)

	// FindOverdue returns active items whose due date is before asOf
	FindOverdue(ctx context.Context, accountID uuid.UUID, agencyID *uuid.UUID, asOf time.Time) ([]PaymentScheduleItem, error)

	// FindUpcoming returns active items due within [from, to]
	FindUpcoming(ctx context.Context, accountID uuid.UUID, agencyID *uuid.UUID, from, to time.Time) ([]PaymentScheduleItem, error)

	CountActiveChildren(ctx context.Context, accountID, parentID uuid.UUID) (int64, error)

	Create(ctx context.Context, item *PaymentScheduleItem) error
	CreateBatch(ctx context.Context, items []*PaymentScheduleItem) error

	// Update persists item if the stored row still has expectedVersion and
	// expectedStatus; otherwise it returns shared.ErrConcurrencyConflict.
	Update(ctx context.Context, item *PaymentScheduleItem, expectedStatus ItemStatus, expectedVersion int) error
}
