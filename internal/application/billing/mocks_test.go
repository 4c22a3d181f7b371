package billing

import (
	"context"
	"time"

	"github.com/edubill/backend/internal/domain/billing"
	"github.com/edubill/backend/internal/domain/history"
	"github.com/edubill/backend/internal/domain/schedule"
	"github.com/edubill/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockTransactionRepository is a mock implementation of BillingTransactionRepository
type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) FindByID(ctx context.Context, accountID, id uuid.UUID) (*billing.BillingTransaction, error) {
	args := m.Called(ctx, accountID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.BillingTransaction), args.Error(1)
}

func (m *MockTransactionRepository) FindAll(ctx context.Context, filter billing.TransactionFilter) ([]billing.BillingTransaction, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.BillingTransaction), args.Error(1)
}

func (m *MockTransactionRepository) ExistsOpenForItem(ctx context.Context, accountID, itemID uuid.UUID) (bool, error) {
	args := m.Called(ctx, accountID, itemID)
	return args.Bool(0), args.Error(1)
}

func (m *MockTransactionRepository) HasAnyForItem(ctx context.Context, accountID, itemID uuid.UUID) (bool, error) {
	args := m.Called(ctx, accountID, itemID)
	return args.Bool(0), args.Error(1)
}

func (m *MockTransactionRepository) FindOverdue(ctx context.Context, accountID uuid.UUID, agencyID *uuid.UUID, asOf time.Time) ([]billing.BillingTransaction, error) {
	args := m.Called(ctx, accountID, agencyID, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.BillingTransaction), args.Error(1)
}

func (m *MockTransactionRepository) FindDisputed(ctx context.Context, accountID uuid.UUID, agencyID *uuid.UUID) ([]billing.BillingTransaction, error) {
	args := m.Called(ctx, accountID, agencyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.BillingTransaction), args.Error(1)
}

func (m *MockTransactionRepository) RevenueBreakdown(ctx context.Context, accountID uuid.UUID, agencyID *uuid.UUID, window shared.TimeWindow) ([]billing.RevenueRow, error) {
	args := m.Called(ctx, accountID, agencyID, window)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.RevenueRow), args.Error(1)
}

func (m *MockTransactionRepository) Create(ctx context.Context, tx *billing.BillingTransaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockTransactionRepository) CompareAndSwap(ctx context.Context, tx *billing.BillingTransaction, expectedStatus billing.TransactionStatus, expectedVersion int) error {
	args := m.Called(ctx, tx, expectedStatus, expectedVersion)
	return args.Error(0)
}

// MockItemRepository is a mock implementation of PaymentScheduleItemRepository
type MockItemRepository struct {
	mock.Mock
}

func (m *MockItemRepository) FindByID(ctx context.Context, accountID, id uuid.UUID) (*schedule.PaymentScheduleItem, error) {
	args := m.Called(ctx, accountID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schedule.PaymentScheduleItem), args.Error(1)
}

func (m *MockItemRepository) FindByIDs(ctx context.Context, accountID uuid.UUID, ids []uuid.UUID) ([]schedule.PaymentScheduleItem, error) {
	args := m.Called(ctx, accountID, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schedule.PaymentScheduleItem), args.Error(1)
}

func (m *MockItemRepository) FindAll(ctx context.Context, filter schedule.ItemFilter) ([]schedule.PaymentScheduleItem, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schedule.PaymentScheduleItem), args.Error(1)
}

func (m *MockItemRepository) FindOverdue(ctx context.Context, accountID uuid.UUID, agencyID *uuid.UUID, asOf time.Time) ([]schedule.PaymentScheduleItem, error) {
	args := m.Called(ctx, accountID, agencyID, asOf)
	return args.Get(0).([]schedule.PaymentScheduleItem), args.Error(1)
}

func (m *MockItemRepository) FindUpcoming(ctx context.Context, accountID uuid.UUID, agencyID *uuid.UUID, from, to time.Time) ([]schedule.PaymentScheduleItem, error) {
	args := m.Called(ctx, accountID, agencyID, from, to)
	return args.Get(0).([]schedule.PaymentScheduleItem), args.Error(1)
}

func (m *MockItemRepository) CountActiveChildren(ctx context.Context, accountID, parentID uuid.UUID) (int64, error) {
	args := m.Called(ctx, accountID, parentID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockItemRepository) Create(ctx context.Context, item *schedule.PaymentScheduleItem) error {
	return m.Called(ctx, item).Error(0)
}

func (m *MockItemRepository) CreateBatch(ctx context.Context, items []*schedule.PaymentScheduleItem) error {
	return m.Called(ctx, items).Error(0)
}

func (m *MockItemRepository) Update(ctx context.Context, item *schedule.PaymentScheduleItem, expectedStatus schedule.ItemStatus, expectedVersion int) error {
	return m.Called(ctx, item, expectedStatus, expectedVersion).Error(0)
}

// MockHistoryStore is a mock implementation of history.Store
type MockHistoryStore struct {
	mock.Mock
}

func (m *MockHistoryStore) Append(ctx context.Context, e *history.Event) error {
	return m.Called(ctx, e).Error(0)
}

func (m *MockHistoryStore) FindByID(ctx context.Context, accountID, id uuid.UUID) (*history.Event, error) {
	args := m.Called(ctx, accountID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*history.Event), args.Error(1)
}

func (m *MockHistoryStore) Timeline(ctx context.Context, accountID, transactionID uuid.UUID, includeHidden bool) ([]history.Event, error) {
	args := m.Called(ctx, accountID, transactionID, includeHidden)
	return args.Get(0).([]history.Event), args.Error(1)
}

func (m *MockHistoryStore) ActivitySummary(ctx context.Context, q history.ScopeQuery) (map[history.EventType]int64, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(map[history.EventType]int64), args.Error(1)
}

func (m *MockHistoryStore) UserActivity(ctx context.Context, q history.UserActivityQuery) ([]history.Event, error) {
	args := m.Called(ctx, q)
	return args.Get(0).([]history.Event), args.Error(1)
}

func (m *MockHistoryStore) Amend(ctx context.Context, accountID, id uuid.UUID, p history.Patch) (*history.Event, error) {
	args := m.Called(ctx, accountID, id, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*history.Event), args.Error(1)
}

func (m *MockHistoryStore) Delete(ctx context.Context, accountID, id uuid.UUID) error {
	return m.Called(ctx, accountID, id).Error(0)
}
