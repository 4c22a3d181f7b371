package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/edubill/backend/internal/domain/billing"
	"github.com/edubill/backend/internal/domain/schedule"
	"github.com/edubill/backend/internal/domain/shared"
	"github.com/edubill/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// terminalStatuses release the one-open-transaction-per-item slot
var terminalStatuses = []billing.TransactionStatus{billing.StatusCancelled, billing.StatusRefunded}

var outstandingStatuses = []billing.TransactionStatus{
	billing.StatusPending, billing.StatusClaimed, billing.StatusPartiallyPaid, billing.StatusOverdue,
}

// GormBillingTransactionRepository implements billing.BillingTransactionRepository using GORM
type GormBillingTransactionRepository struct {
	db *gorm.DB
}

// NewGormBillingTransactionRepository creates a new GormBillingTransactionRepository
func NewGormBillingTransactionRepository(db *gorm.DB) *GormBillingTransactionRepository {
	return &GormBillingTransactionRepository{db: db}
}

// FindByID finds a transaction by ID within an account
func (r *GormBillingTransactionRepository) FindByID(ctx context.Context, accountID, id uuid.UUID) (*billing.BillingTransaction, error) {
	var model models.BillingTransactionModel
	if err := conn(ctx, r.db).
		Where("account_id = ? AND id = ?", accountID, id).
		First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain()
}

// FindAll finds transactions matching filter. AgencyID matches that agency only,
// not its sub-agencies.
func (r *GormBillingTransactionRepository) FindAll(ctx context.Context, filter billing.TransactionFilter) ([]billing.BillingTransaction, error) {
	query := conn(ctx, r.db).Model(&models.BillingTransactionModel{}).
		Where("account_id = ?", filter.AccountID)
	query = withinAgencyChain(query, filter.AgencyID)
	if filter.PaymentScheduleItemID != nil {
		query = query.Where("payment_schedule_item_id = ?", *filter.PaymentScheduleItemID)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if filter.DueBefore != nil {
		query = query.Where("due_date < ?", schedule.DateOnly(*filter.DueBefore))
	}
	query = query.Order(transactionSort.clause(filter.OrderBy, filter.OrderDir) + ", id ASC").
		Offset(filter.Offset()).
		Limit(filter.Limit())

	var txModels []models.BillingTransactionModel
	if err := query.Find(&txModels).Error; err != nil {
		return nil, err
	}
	return toTransactions(txModels)
}

// ExistsOpenForItem reports whether a non-cancelled, non-refunded transaction exists for the item
func (r *GormBillingTransactionRepository) ExistsOpenForItem(ctx context.Context, accountID, itemID uuid.UUID) (bool, error) {
	var count int64
	err := conn(ctx, r.db).Model(&models.BillingTransactionModel{}).
		Where("account_id = ? AND payment_schedule_item_id = ? AND status NOT IN ?", accountID, itemID, terminalStatuses).
		Count(&count).Error
	return count > 0, err
}

// HasAnyForItem reports whether any transaction ever referenced the item
func (r *GormBillingTransactionRepository) HasAnyForItem(ctx context.Context, accountID, itemID uuid.UUID) (bool, error) {
	var count int64
	err := conn(ctx, r.db).Model(&models.BillingTransactionModel{}).
		Where("account_id = ? AND payment_schedule_item_id = ?", accountID, itemID).
		Count(&count).Error
	return count > 0, err
}

// FindOverdue returns transactions still awaiting money that are due before asOf
func (r *GormBillingTransactionRepository) FindOverdue(ctx context.Context, accountID uuid.UUID, agencyID *uuid.UUID, asOf time.Time) ([]billing.BillingTransaction, error) {
	query := conn(ctx, r.db).
		Where("account_id = ? AND due_date < ? AND status IN ?", accountID, schedule.DateOnly(asOf),
			outstandingStatuses)
	query = withinAgencyChain(query, agencyID)
	var txModels []models.BillingTransactionModel
	if err := query.Order("due_date ASC, id ASC").Find(&txModels).Error; err != nil {
		return nil, err
	}
	return toTransactions(txModels)
}

// FindDisputed returns transactions currently in dispute
func (r *GormBillingTransactionRepository) FindDisputed(ctx context.Context, accountID uuid.UUID, agencyID *uuid.UUID) ([]billing.BillingTransaction, error) {
	query := conn(ctx, r.db).
		Where("account_id = ? AND status = ?", accountID, billing.StatusDisputed)
	query = withinAgencyChain(query, agencyID)
	var txModels []models.BillingTransactionModel
	if err := query.Order("updated_at DESC").Find(&txModels).Error; err != nil {
		return nil, err
	}
	return toTransactions(txModels)
}

type revenueRow struct {
	Currency        string
	Status          string
	TransactionType string
	Count           int64
	Total           decimal.Decimal
}

// RevenueBreakdown sums signed amounts grouped by currency, status and type
func (r *GormBillingTransactionRepository) RevenueBreakdown(ctx context.Context, accountID uuid.UUID, agencyID *uuid.UUID, window shared.TimeWindow) ([]billing.RevenueRow, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}
	query := conn(ctx, r.db).Model(&models.BillingTransactionModel{}).
		Select("currency, status, transaction_type, COUNT(*) AS count, COALESCE(SUM(signed_amount), 0) AS total").
		Where("account_id = ?", accountID)
	query = withinAgencyChain(query, agencyID)
	if !window.From.IsZero() {
		query = query.Where("due_date >= ?", schedule.DateOnly(window.From))
	}
	if !window.To.IsZero() {
		query = query.Where("due_date < ?", schedule.DateOnly(window.To))
	}

	var rows []revenueRow
	if err := query.
		Group("currency, status, transaction_type").
		Order("currency, status, transaction_type").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	result := make([]billing.RevenueRow, len(rows))
	for i, row := range rows {
		result[i] = billing.RevenueRow{
			Currency:        row.Currency,
			Status:          billing.TransactionStatus(row.Status),
			TransactionType: billing.TransactionType(row.TransactionType),
			Count:           row.Count,
			Total:           row.Total,
		}
	}
	return result, nil
}

// Create inserts a new transaction. The partial unique index turns a second
// open transaction for the same schedule item into shared.ErrAlreadyExists.
func (r *GormBillingTransactionRepository) Create(ctx context.Context, tx *billing.BillingTransaction) error {
	err := conn(ctx, r.db).Create(models.BillingTransactionModelFromDomain(tx)).Error
	if err = translateError(err); errors.Is(err, shared.ErrAlreadyExists) && tx.PaymentScheduleItemID != nil {
		return shared.ErrAlreadyExists.
			WithDetail("entity", "billing transaction").
			WithDetail("paymentScheduleItemId", tx.PaymentScheduleItemID.String())
	}
	return err
}

// CompareAndSwap persists tx when the stored row still matches expectedStatus and expectedVersion
func (r *GormBillingTransactionRepository) CompareAndSwap(ctx context.Context, tx *billing.BillingTransaction, expectedStatus billing.TransactionStatus, expectedVersion int) error {
	model := models.BillingTransactionModelFromDomain(tx)
	result := conn(ctx, r.db).
		Model(model).
		Where("account_id = ? AND status = ? AND version = ?", tx.AccountID, expectedStatus, expectedVersion).
		Select("*").
		Omit("id", "created_at", "account_id").
		Updates(model)
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict.
			WithDetail("entity", "billing transaction").
			WithDetail("id", tx.ID.String()).
			WithDetail("expectedStatus", string(expectedStatus))
	}
	return nil
}

func toTransactions(txModels []models.BillingTransactionModel) ([]billing.BillingTransaction, error) {
	txs := make([]billing.BillingTransaction, 0, len(txModels))
	for i := range txModels {
		tx, err := txModels[i].ToDomain()
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, nil
}

var _ billing.BillingTransactionRepository = (*GormBillingTransactionRepository)(nil)
