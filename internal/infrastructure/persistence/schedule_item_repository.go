package persistence

import (
	"context"
	"time"

	"github.com/edubill/backend/internal/domain/schedule"
	"github.com/edubill/backend/internal/domain/shared"
	"github.com/edubill/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormPaymentScheduleItemRepository implements schedule.PaymentScheduleItemRepository using GORM
type GormPaymentScheduleItemRepository struct {
	db *gorm.DB
}

// NewGormPaymentScheduleItemRepository creates a new GormPaymentScheduleItemRepository
func NewGormPaymentScheduleItemRepository(db *gorm.DB) *GormPaymentScheduleItemRepository {
	return &GormPaymentScheduleItemRepository{db: db}
}

// FindByID finds a schedule item by ID within an account
func (r *GormPaymentScheduleItemRepository) FindByID(ctx context.Context, accountID, id uuid.UUID) (*schedule.PaymentScheduleItem, error) {
	var model models.PaymentScheduleItemModel
	if err := conn(ctx, r.db).
		Where("account_id = ? AND id = ?", accountID, id).
		First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain()
}

// FindByIDs returns the items of ids that exist within the account, in due date order
func (r *GormPaymentScheduleItemRepository) FindByIDs(ctx context.Context, accountID uuid.UUID, ids []uuid.UUID) ([]schedule.PaymentScheduleItem, error) {
	if len(ids) == 0 {
		return []schedule.PaymentScheduleItem{}, nil
	}
	var itemModels []models.PaymentScheduleItemModel
	if err := conn(ctx, r.db).
		Where("account_id = ? AND id IN ?", accountID, ids).
		Order("scheduled_due_date ASC, priority ASC, id ASC").
		Find(&itemModels).Error; err != nil {
		return nil, err
	}
	return toScheduleItems(itemModels)
}

// FindAll finds schedule items matching filter
func (r *GormPaymentScheduleItemRepository) FindAll(ctx context.Context, filter schedule.ItemFilter) ([]schedule.PaymentScheduleItem, error) {
	var itemModels []models.PaymentScheduleItemModel
	query := conn(ctx, r.db).Model(&models.PaymentScheduleItemModel{}).
		Where("account_id = ?", filter.AccountID)
	query = r.applyFilter(query, filter)

	if err := query.Find(&itemModels).Error; err != nil {
		return nil, err
	}
	return toScheduleItems(itemModels)
}

// FindOverdue returns active items due strictly before asOf
func (r *GormPaymentScheduleItemRepository) FindOverdue(ctx context.Context, accountID uuid.UUID, agencyID *uuid.UUID, asOf time.Time) ([]schedule.PaymentScheduleItem, error) {
	var itemModels []models.PaymentScheduleItemModel
	query := conn(ctx, r.db).
		Where("account_id = ? AND status = ? AND is_active = ? AND scheduled_due_date < ?",
			accountID, schedule.ItemStatusActive, true, schedule.DateOnly(asOf))
	query = withinAgencyChain(query, agencyID)
	if err := query.Order("scheduled_due_date ASC, priority ASC").Find(&itemModels).Error; err != nil {
		return nil, err
	}
	return toScheduleItems(itemModels)
}

// FindUpcoming returns active items due within [from, to]
func (r *GormPaymentScheduleItemRepository) FindUpcoming(ctx context.Context, accountID uuid.UUID, agencyID *uuid.UUID, from, to time.Time) ([]schedule.PaymentScheduleItem, error) {
	var itemModels []models.PaymentScheduleItemModel
	query := conn(ctx, r.db).
		Where("account_id = ? AND status = ? AND is_active = ? AND scheduled_due_date >= ? AND scheduled_due_date <= ?",
			accountID, schedule.ItemStatusActive, true, schedule.DateOnly(from), schedule.DateOnly(to))
	query = withinAgencyChain(query, agencyID)
	if err := query.Order("scheduled_due_date ASC, priority ASC").Find(&itemModels).Error; err != nil {
		return nil, err
	}
	return toScheduleItems(itemModels)
}

// CountActiveChildren counts the active items generated from parentID
func (r *GormPaymentScheduleItemRepository) CountActiveChildren(ctx context.Context, accountID, parentID uuid.UUID) (int64, error) {
	var count int64
	err := conn(ctx, r.db).Model(&models.PaymentScheduleItemModel{}).
		Where("account_id = ? AND parent_item_id = ? AND status = ?", accountID, parentID, schedule.ItemStatusActive).
		Count(&count).Error
	return count, err
}

// Create inserts a new schedule item
func (r *GormPaymentScheduleItemRepository) Create(ctx context.Context, item *schedule.PaymentScheduleItem) error {
	model, err := models.PaymentScheduleItemModelFromDomain(item)
	if err != nil {
		return err
	}
	return translateError(conn(ctx, r.db).Create(model).Error)
}

// CreateBatch inserts several items in one statement
func (r *GormPaymentScheduleItemRepository) CreateBatch(ctx context.Context, items []*schedule.PaymentScheduleItem) error {
	if len(items) == 0 {
		return nil
	}
	batch := make([]*models.PaymentScheduleItemModel, 0, len(items))
	for _, item := range items {
		model, err := models.PaymentScheduleItemModelFromDomain(item)
		if err != nil {
			return err
		}
		batch = append(batch, model)
	}
	return translateError(conn(ctx, r.db).CreateInBatches(batch, 100).Error)
}

// Update persists item when the stored row still matches expectedStatus and expectedVersion
func (r *GormPaymentScheduleItemRepository) Update(ctx context.Context, item *schedule.PaymentScheduleItem, expectedStatus schedule.ItemStatus, expectedVersion int) error {
	model, err := models.PaymentScheduleItemModelFromDomain(item)
	if err != nil {
		return err
	}
	result := conn(ctx, r.db).
		Model(model).
		Where("account_id = ? AND status = ? AND version = ?", item.AccountID, expectedStatus, expectedVersion).
		Select("*").
		Omit("id", "created_at", "account_id").
		Updates(model)
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict.
			WithDetail("entity", "payment schedule item").
			WithDetail("id", item.ID.String())
	}
	return nil
}

func (r *GormPaymentScheduleItemRepository) applyFilter(query *gorm.DB, filter schedule.ItemFilter) *gorm.DB {
	query = withinAgencyChain(query, filter.AgencyID)
	if filter.OfferLetterID != nil {
		query = query.Where("offer_letter_id = ?", *filter.OfferLetterID)
	}
	if len(filter.ItemIDs) > 0 {
		query = query.Where("id IN ?", filter.ItemIDs)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if filter.DueFrom != nil {
		query = query.Where("scheduled_due_date >= ?", schedule.DateOnly(*filter.DueFrom))
	}
	if filter.DueTo != nil {
		query = query.Where("scheduled_due_date <= ?", schedule.DateOnly(*filter.DueTo))
	}
	if filter.Unbilled {
		query = query.Where("NOT EXISTS (SELECT 1 FROM billing_transactions bt"+
			" WHERE bt.payment_schedule_item_id = payment_schedule_items.id AND bt.status NOT IN ?)", terminalStatuses)
	}
	query = query.Order(scheduleItemSort.clause(filter.OrderBy, filter.OrderDir))
	return query.Offset(filter.Offset()).Limit(filter.Limit())
}

func toScheduleItems(itemModels []models.PaymentScheduleItemModel) ([]schedule.PaymentScheduleItem, error) {
	items := make([]schedule.PaymentScheduleItem, 0, len(itemModels))
	for i := range itemModels {
		item, err := itemModels[i].ToDomain()
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, nil
}

var _ schedule.PaymentScheduleItemRepository = (*GormPaymentScheduleItemRepository)(nil)
