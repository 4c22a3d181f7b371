package billing

import (
	"context"
	"time"

	"github.com/edubill/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionFilter defines filtering options for transaction queries
type TransactionFilter struct {
	shared.Filter
	AccountID             uuid.UUID
	AgencyID              *uuid.UUID
	PaymentScheduleItemID *uuid.UUID
	Statuses              []TransactionStatus
	DueBefore             *time.Time
}

// RevenueRow is one aggregate bucket of the revenue breakdown
type RevenueRow struct {
	Currency        string
	Status          TransactionStatus
	TransactionType TransactionType
	Count           int64
	Total           decimal.Decimal
}

// BillingTransactionRepository persists transactions. All lookups are
// account-scoped; a row from another account is reported as not found.
type BillingTransactionRepository interface {
	FindByID(ctx context.Context, accountID, id uuid.UUID) (*BillingTransaction, error)
	FindAll(ctx context.Context, filter TransactionFilter) ([]BillingTransaction, error)

	// ExistsOpenForItem reports whether a non-cancelled, non-refunded
	// transaction already exists for the schedule item
	ExistsOpenForItem(ctx context.Context, accountID, itemID uuid.UUID) (bool, error)

	// HasAnyForItem reports whether the schedule item was ever billed
	HasAnyForItem(ctx context.Context, accountID, itemID uuid.UUID) (bool, error)

	// FindOverdue returns outstanding transactions due before asOf
	FindOverdue(ctx context.Context, accountID uuid.UUID, agencyID *uuid.UUID, asOf time.Time) ([]BillingTransaction, error)

	FindDisputed(ctx context.Context, accountID uuid.UUID, agencyID *uuid.UUID) ([]BillingTransaction, error)

	// RevenueBreakdown sums signed amounts by currency, status and type for
	// transactions due within window
	RevenueBreakdown(ctx context.Context, accountID uuid.UUID, agencyID *uuid.UUID, window shared.TimeWindow) ([]RevenueRow, error)

	// Create inserts a new transaction. A second open transaction for the
	// same schedule item fails with shared.ErrAlreadyExists.
	Create(ctx context.Context, tx *BillingTransaction) error

	// CompareAndSwap persists tx only if the stored row still has
	// expectedStatus and expectedVersion, else shared.ErrConcurrencyConflict.
	CompareAndSwap(ctx context.Context, tx *BillingTransaction, expectedStatus TransactionStatus, expectedVersion int) error
}
