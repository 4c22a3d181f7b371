package persistence

import (
	"context"

	"github.com/edubill/backend/internal/domain/history"
	"github.com/edubill/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormBillingEventHistoryStore implements history.Store using GORM.
// Writes other than Append go through the model hooks, which reject
// frozen columns and deletes.
type GormBillingEventHistoryStore struct {
	db *gorm.DB
}

// NewGormBillingEventHistoryStore creates a new GormBillingEventHistoryStore
func NewGormBillingEventHistoryStore(db *gorm.DB) *GormBillingEventHistoryStore {
	return &GormBillingEventHistoryStore{db: db}
}

// Append writes a new record
func (s *GormBillingEventHistoryStore) Append(ctx context.Context, e *history.Event) error {
	return translateError(conn(ctx, s.db).Create(models.BillingEventHistoryModelFromDomain(e)).Error)
}

// FindByID finds a record by ID within an account
func (s *GormBillingEventHistoryStore) FindByID(ctx context.Context, accountID, id uuid.UUID) (*history.Event, error) {
	var model models.BillingEventHistoryModel
	if err := conn(ctx, s.db).
		Where("account_id = ? AND id = ?", accountID, id).
		First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// Timeline returns the events of a transaction, oldest first
func (s *GormBillingEventHistoryStore) Timeline(ctx context.Context, accountID, transactionID uuid.UUID, includeHidden bool) ([]history.Event, error) {
	query := conn(ctx, s.db).
		Where("account_id = ? AND billing_transaction_id = ?", accountID, transactionID)
	if !includeHidden {
		query = query.Where("is_visible = ?", true)
	}
	var rows []models.BillingEventHistoryModel
	if err := query.Order("event_date ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toEvents(rows), nil
}

// ActivitySummary counts visible events per type
func (s *GormBillingEventHistoryStore) ActivitySummary(ctx context.Context, q history.ScopeQuery) (map[history.EventType]int64, error) {
	var rows []struct {
		EventType string
		Count     int64
	}
	err := s.scoped(ctx, q).
		Model(&models.BillingEventHistoryModel{}).
		Select("event_type, COUNT(*) AS count").
		Where("is_visible = ?", true).
		Group("event_type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	summary := make(map[history.EventType]int64, len(rows))
	for _, row := range rows {
		summary[history.EventType(row.EventType)] = row.Count
	}
	return summary, nil
}

// UserActivity returns events triggered by an actor, newest first
func (s *GormBillingEventHistoryStore) UserActivity(ctx context.Context, q history.UserActivityQuery) ([]history.Event, error) {
	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var rows []models.BillingEventHistoryModel
	err := s.scoped(ctx, q.ScopeQuery).
		Where("triggered_by = ? AND is_visible = ?", q.UserID, true).
		Order("event_date DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toEvents(rows), nil
}

// Amend applies a permitted patch to a stored record
func (s *GormBillingEventHistoryStore) Amend(ctx context.Context, accountID, id uuid.UUID, p history.Patch) (*history.Event, error) {
	current, err := s.FindByID(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	next, err := history.Revise(current, p)
	if err != nil {
		return nil, err
	}
	model := models.BillingEventHistoryModel{ID: id}
	if err := conn(ctx, s.db).
		Model(&model).
		Where("account_id = ?", accountID).
		Updates(models.MutableColumnValues(next)).Error; err != nil {
		return nil, err
	}
	return next, nil
}

// Delete is rejected by the model hook after the record is resolved in scope
func (s *GormBillingEventHistoryStore) Delete(ctx context.Context, accountID, id uuid.UUID) error {
	var model models.BillingEventHistoryModel
	if err := conn(ctx, s.db).
		Where("account_id = ? AND id = ?", accountID, id).
		First(&model).Error; err != nil {
		return translateError(err)
	}
	return conn(ctx, s.db).Delete(&model).Error
}

func (s *GormBillingEventHistoryStore) scoped(ctx context.Context, q history.ScopeQuery) *gorm.DB {
	query := conn(ctx, s.db).Where("account_id = ?", q.AccountID)
	query = withinAgencyChain(query, q.AgencyID)
	if !q.Window.From.IsZero() {
		query = query.Where("event_date >= ?", q.Window.From.UTC())
	}
	if !q.Window.To.IsZero() {
		query = query.Where("event_date < ?", q.Window.To.UTC())
	}
	return query
}

func toEvents(rows []models.BillingEventHistoryModel) []history.Event {
	events := make([]history.Event, len(rows))
	for i := range rows {
		events[i] = *rows[i].ToDomain()
	}
	return events
}

var _ history.Store = (*GormBillingEventHistoryStore)(nil)
