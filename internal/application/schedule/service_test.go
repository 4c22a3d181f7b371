package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/edubill/backend/internal/domain/schedule"
	"github.com/edubill/backend/internal/domain/shared"
	"github.com/edubill/backend/internal/domain/shared/valueobject"
	"github.com/edubill/backend/internal/infrastructure/cache"
	"github.com/edubill/backend/internal/testutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

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
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schedule.PaymentScheduleItem), args.Error(1)
}

func (m *MockItemRepository) FindUpcoming(ctx context.Context, accountID uuid.UUID, agencyID *uuid.UUID, from, to time.Time) ([]schedule.PaymentScheduleItem, error) {
	args := m.Called(ctx, accountID, agencyID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schedule.PaymentScheduleItem), args.Error(1)
}

func (m *MockItemRepository) CountActiveChildren(ctx context.Context, accountID, parentID uuid.UUID) (int64, error) {
	args := m.Called(ctx, accountID, parentID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockItemRepository) Create(ctx context.Context, item *schedule.PaymentScheduleItem) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *MockItemRepository) CreateBatch(ctx context.Context, items []*schedule.PaymentScheduleItem) error {
	args := m.Called(ctx, items)
	return args.Error(0)
}

func (m *MockItemRepository) Update(ctx context.Context, item *schedule.PaymentScheduleItem, expectedStatus schedule.ItemStatus, expectedVersion int) error {
	args := m.Called(ctx, item, expectedStatus, expectedVersion)
	return args.Error(0)
}

// MockBillingLookup is a mock implementation of BillingLookup
type MockBillingLookup struct {
	mock.Mock
}

func (m *MockBillingLookup) HasAnyForItem(ctx context.Context, accountID, itemID uuid.UUID) (bool, error) {
	args := m.Called(ctx, accountID, itemID)
	return args.Bool(0), args.Error(1)
}

type fixture struct {
	tenant    *testutil.Tenant
	items     *MockItemRepository
	billing   *MockBillingLookup
	txm       *testutil.InlineTransactionManager
	published *testutil.RecordingPublisher
	svc       *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		tenant:    testutil.NewTenant(t),
		items:     new(MockItemRepository),
		billing:   new(MockBillingLookup),
		txm:       &testutil.InlineTransactionManager{},
		published: testutil.NewRecordingPublisher(),
	}
	locks := cache.NewInMemoryLockStore()
	t.Cleanup(func() { _ = locks.Close() })
	f.svc = NewService(f.items, f.billing, f.tenant.Guard, f.txm, locks, Options{})
	f.svc.SetClock(testutil.FixedClock(testutil.Now))
	f.svc.SetEventPublisher(f.published)
	return f
}

func (f *fixture) newItem(t *testing.T, recurring *schedule.RecurringDetails) *schedule.PaymentScheduleItem {
	t.Helper()
	item, err := schedule.NewPaymentScheduleItem(schedule.NewItemParams{
		AccountID:     f.tenant.AccountID,
		AgencyID:      f.tenant.Agency.ID,
		OfferLetterID: f.tenant.Offer.ID,
		ItemType:      schedule.ItemTypeTuition,
		Description:   "Semester tuition",
		Amount:        valueobject.MustMoney("1000", valueobject.USD),
		DueDate:       time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		IsRecurring:   recurring != nil,
		Recurring:     recurring,
		CreatedBy:     f.tenant.ActorID,
	}, testutil.Now)
	require.NoError(t, err)
	return item
}

func (f *fixture) createRequest() CreateItemRequest {
	return CreateItemRequest{
		AgencyID:      f.tenant.Agency.ID,
		OfferLetterID: f.tenant.Offer.ID,
		ItemType:      "tuition",
		Amount:        decimal.NewFromInt(1000),
		Currency:      "USD",
		DueDate:       time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestService_Create(t *testing.T) {
	t.Run("stores an active item", func(t *testing.T) {
		f := newFixture(t)
		f.items.On("Create", mock.Anything, mock.AnythingOfType("*schedule.PaymentScheduleItem")).Return(nil)

		resp, err := f.svc.Create(context.Background(), f.tenant.Caller(), f.createRequest())

		require.NoError(t, err)
		assert.Equal(t, "active", resp.Status)
		assert.Equal(t, "2024-03-01", resp.DueDate)
		assert.Equal(t, 5, resp.Priority)
		assert.True(t, decimal.NewFromInt(1000).Equal(resp.Amount))
		f.items.AssertExpectations(t)
	})

	t.Run("offer letter of another agency is a scope violation", func(t *testing.T) {
		f := newFixture(t)
		other := f.tenant.Directory.AddAgency(t, f.tenant.AccountID, nil)
		req := f.createRequest()
		req.OfferLetterID = f.tenant.Directory.AddOfferLetter(f.tenant.AccountID, other.ID).ID

		_, err := f.svc.Create(context.Background(), f.tenant.Caller(), req)

		assert.ErrorIs(t, err, shared.ErrScopeViolation)
		f.items.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("agency outside the caller chain is rejected", func(t *testing.T) {
		f := newFixture(t)
		sibling := f.tenant.Directory.AddAgency(t, f.tenant.AccountID, nil)

		_, err := f.svc.Create(context.Background(), f.tenant.AgencyCaller(sibling.ID), f.createRequest())

		assert.ErrorIs(t, err, shared.ErrScopeViolation)
	})

	t.Run("inactive account is rejected", func(t *testing.T) {
		f := newFixture(t)
		f.tenant.Directory.AddAccount(f.tenant.AccountID, false)

		_, err := f.svc.Create(context.Background(), f.tenant.Caller(), f.createRequest())

		assert.ErrorIs(t, err, shared.ErrScopeViolation)
	})

	t.Run("unknown currency is a validation error", func(t *testing.T) {
		f := newFixture(t)
		req := f.createRequest()
		req.Currency = "XYZ"

		_, err := f.svc.Create(context.Background(), f.tenant.Caller(), req)

		assert.ErrorIs(t, err, shared.ErrValidation)
	})

	t.Run("unknown frequency", func(t *testing.T) {
		f := newFixture(t)
		req := f.createRequest()
		req.IsRecurring = true
		n := 3
		req.Recurring = &RecurringInput{Frequency: "fortnightly", Occurrences: &n}

		_, err := f.svc.Create(context.Background(), f.tenant.Caller(), req)

		assert.ErrorIs(t, err, shared.ErrInvalidFrequency)
	})

	t.Run("missing actor", func(t *testing.T) {
		f := newFixture(t)
		caller := f.tenant.Caller()
		caller.ActorID = uuid.Nil

		_, err := f.svc.Create(context.Background(), caller, f.createRequest())

		assert.ErrorIs(t, err, shared.ErrValidation)
	})
}

func TestService_Retire(t *testing.T) {
	f := newFixture(t)
	item := f.newItem(t, nil)
	f.items.On("FindByID", mock.Anything, f.tenant.AccountID, item.ID).Return(item, nil)
	f.items.On("Update", mock.Anything, mock.MatchedBy(func(next *schedule.PaymentScheduleItem) bool {
		return next.Status == schedule.ItemStatusRetired && next.Version == item.Version+1
	}), schedule.ItemStatusActive, item.Version).Return(nil)

	resp, err := f.svc.Retire(context.Background(), f.tenant.Caller(), item.ID, "programme withdrawn")

	require.NoError(t, err)
	assert.Equal(t, "retired", resp.Status)
	assert.Equal(t, "programme withdrawn", resp.RetirementReason)
	assert.False(t, resp.IsActive)
	assert.Equal(t, schedule.ItemStatusActive, item.Status, "loaded item must not be mutated")
	assert.Len(t, f.published.OfType(schedule.EventTypeItemStatusChanged), 1)
}

func TestService_TerminalItemRejectsFurtherTransitions(t *testing.T) {
	f := newFixture(t)
	item := f.newItem(t, nil)
	completed, err := item.Complete(f.tenant.ActorID, testutil.Now)
	require.NoError(t, err)
	f.items.On("FindByID", mock.Anything, f.tenant.AccountID, item.ID).Return(completed, nil)
	ctx := context.Background()

	_, err = f.svc.Retire(ctx, f.tenant.Caller(), item.ID, "late")
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
	_, err = f.svc.Cancel(ctx, f.tenant.Caller(), item.ID, "late")
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
	_, err = f.svc.Complete(ctx, f.tenant.Caller(), item.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
	_, err = f.svc.Replace(ctx, f.tenant.Caller(), item.ID, ReplaceItemRequest{Reason: "late"})
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)

	f.items.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, f.published.Events())
}

func TestService_TransitionConflict(t *testing.T) {
	f := newFixture(t)
	item := f.newItem(t, nil)
	f.items.On("FindByID", mock.Anything, f.tenant.AccountID, item.ID).Return(item, nil)
	f.items.On("Update", mock.Anything, mock.Anything, schedule.ItemStatusActive, item.Version).Return(shared.ErrConcurrencyConflict)

	_, err := f.svc.Complete(context.Background(), f.tenant.Caller(), item.ID)

	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	assert.Empty(t, f.published.Events(), "events are only published after a successful write")
}

func TestService_LoadOutsideAgencyChain(t *testing.T) {
	f := newFixture(t)
	item := f.newItem(t, nil)
	sibling := f.tenant.Directory.AddAgency(t, f.tenant.AccountID, nil)
	f.items.On("FindByID", mock.Anything, f.tenant.AccountID, item.ID).Return(item, nil)

	_, err := f.svc.Get(context.Background(), f.tenant.AgencyCaller(sibling.ID), item.ID)

	assert.ErrorIs(t, err, shared.ErrScopeViolation)
}

func TestService_Replace(t *testing.T) {
	f := newFixture(t)
	item := f.newItem(t, nil)
	f.items.On("FindByID", mock.Anything, f.tenant.AccountID, item.ID).Return(item, nil)

	var created *schedule.PaymentScheduleItem
	f.items.On("Create", mock.Anything, mock.AnythingOfType("*schedule.PaymentScheduleItem")).
		Run(func(args mock.Arguments) { created = args.Get(1).(*schedule.PaymentScheduleItem) }).
		Return(nil)
	f.items.On("Update", mock.Anything, mock.Anything, schedule.ItemStatusActive, item.Version).Return(nil)

	amount := decimal.NewFromInt(1200)
	resp, err := f.svc.Replace(context.Background(), f.tenant.Caller(), item.ID, ReplaceItemRequest{
		Reason: "fee increase",
		Amount: &amount,
	})

	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, 1, f.txm.Calls())
	assert.Equal(t, "replaced", resp.Original.Status)
	assert.Equal(t, created.ID, *resp.Original.ReplacedByID)
	assert.Equal(t, item.ID, *resp.Replacement.ParentItemID)
	assert.True(t, amount.Equal(resp.Replacement.Amount))
	assert.Equal(t, "USD", resp.Replacement.Currency)
	assert.Equal(t, "active", resp.Replacement.Status)
}

func TestService_ReplaceRollsBackWhenOriginalConflicts(t *testing.T) {
	f := newFixture(t)
	item := f.newItem(t, nil)
	f.items.On("FindByID", mock.Anything, f.tenant.AccountID, item.ID).Return(item, nil)
	f.items.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.items.On("Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(shared.ErrConcurrencyConflict)

	_, err := f.svc.Replace(context.Background(), f.tenant.Caller(), item.ID, ReplaceItemRequest{Reason: "fee increase"})

	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	assert.Empty(t, f.published.Events())
}

func TestService_Update(t *testing.T) {
	t.Run("frozen fields on a billed closed item", func(t *testing.T) {
		f := newFixture(t)
		item := f.newItem(t, nil)
		completed, err := item.Complete(f.tenant.ActorID, testutil.Now)
		require.NoError(t, err)
		f.items.On("FindByID", mock.Anything, f.tenant.AccountID, item.ID).Return(completed, nil)
		f.billing.On("HasAnyForItem", mock.Anything, f.tenant.AccountID, item.ID).Return(true, nil)

		amount := decimal.NewFromInt(900)
		_, err = f.svc.Update(context.Background(), f.tenant.Caller(), item.ID, UpdateItemRequest{Amount: &amount})

		assert.ErrorIs(t, err, shared.ErrFieldImmutable)
	})

	t.Run("description stays editable", func(t *testing.T) {
		f := newFixture(t)
		item := f.newItem(t, nil)
		completed, err := item.Complete(f.tenant.ActorID, testutil.Now)
		require.NoError(t, err)
		f.items.On("FindByID", mock.Anything, f.tenant.AccountID, item.ID).Return(completed, nil)
		f.billing.On("HasAnyForItem", mock.Anything, f.tenant.AccountID, item.ID).Return(true, nil)
		f.items.On("Update", mock.Anything, mock.Anything, schedule.ItemStatusCompleted, completed.Version).Return(nil)

		desc := "Semester 1 tuition"
		resp, err := f.svc.Update(context.Background(), f.tenant.Caller(), item.ID, UpdateItemRequest{Description: &desc})

		require.NoError(t, err)
		assert.Equal(t, desc, resp.Description)
	})

	t.Run("no changes skip the write", func(t *testing.T) {
		f := newFixture(t)
		item := f.newItem(t, nil)
		f.items.On("FindByID", mock.Anything, f.tenant.AccountID, item.ID).Return(item, nil)
		f.billing.On("HasAnyForItem", mock.Anything, f.tenant.AccountID, item.ID).Return(false, nil)

		desc := item.Description
		_, err := f.svc.Update(context.Background(), f.tenant.Caller(), item.ID, UpdateItemRequest{Description: &desc})

		require.NoError(t, err)
		f.items.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestService_GenerateRecurring(t *testing.T) {
	three := 3
	rule := &schedule.RecurringDetails{Frequency: schedule.FrequencyMonthly, Occurrences: &three}

	t.Run("monthly rule expands into three children", func(t *testing.T) {
		f := newFixture(t)
		parent := f.newItem(t, rule)
		f.items.On("FindByID", mock.Anything, f.tenant.AccountID, parent.ID).Return(parent, nil)
		f.items.On("CountActiveChildren", mock.Anything, f.tenant.AccountID, parent.ID).Return(int64(0), nil)
		f.items.On("CreateBatch", mock.Anything, mock.Anything).Return(nil)

		resp, err := f.svc.GenerateRecurring(context.Background(), f.tenant.Caller(), parent.ID)

		require.NoError(t, err)
		require.Equal(t, 3, resp.Count)
		assert.Equal(t, "2024-02-15", resp.Items[0].DueDate)
		assert.Equal(t, "2024-03-15", resp.Items[1].DueDate)
		assert.Equal(t, "2024-04-15", resp.Items[2].DueDate)
		for _, child := range resp.Items {
			assert.Equal(t, parent.ID, *child.ParentItemID)
			assert.False(t, child.IsRecurring)
		}
		assert.Len(t, f.published.OfType(schedule.EventTypeItemsGenerated), 1)
	})

	t.Run("second expansion is rejected", func(t *testing.T) {
		f := newFixture(t)
		parent := f.newItem(t, rule)
		f.items.On("FindByID", mock.Anything, f.tenant.AccountID, parent.ID).Return(parent, nil)
		f.items.On("CountActiveChildren", mock.Anything, f.tenant.AccountID, parent.ID).Return(int64(3), nil)

		_, err := f.svc.GenerateRecurring(context.Background(), f.tenant.Caller(), parent.ID)

		assert.ErrorIs(t, err, shared.ErrRecurringAlreadyExpanded)
		f.items.AssertNotCalled(t, "CreateBatch", mock.Anything, mock.Anything)
	})

	t.Run("non recurring item", func(t *testing.T) {
		f := newFixture(t)
		item := f.newItem(t, nil)
		f.items.On("FindByID", mock.Anything, f.tenant.AccountID, item.ID).Return(item, nil)
		f.items.On("CountActiveChildren", mock.Anything, f.tenant.AccountID, item.ID).Return(int64(0), nil)

		_, err := f.svc.GenerateRecurring(context.Background(), f.tenant.Caller(), item.ID)

		assert.ErrorIs(t, err, shared.ErrValidation)
	})
}

func TestService_ExpandPending(t *testing.T) {
	f := newFixture(t)
	two := 2
	fresh := f.newItem(t, &schedule.RecurringDetails{Frequency: schedule.FrequencyQuarterly, Occurrences: &two})
	expanded := f.newItem(t, &schedule.RecurringDetails{Frequency: schedule.FrequencyWeekly, Occurrences: &two})
	plain := f.newItem(t, nil)

	f.items.On("FindAll", mock.Anything, mock.MatchedBy(func(filter schedule.ItemFilter) bool {
		return filter.AccountID == f.tenant.AccountID && filter.Page == 1
	})).Return([]schedule.PaymentScheduleItem{*fresh, *expanded, *plain}, nil)
	f.items.On("CountActiveChildren", mock.Anything, f.tenant.AccountID, fresh.ID).Return(int64(0), nil)
	f.items.On("CountActiveChildren", mock.Anything, f.tenant.AccountID, expanded.ID).Return(int64(2), nil)
	f.items.On("CreateBatch", mock.Anything, mock.Anything).Return(nil)

	summary, err := f.svc.ExpandPending(context.Background(), f.tenant.Caller())

	require.NoError(t, err)
	assert.Equal(t, ExpansionSummary{Expanded: 1, Children: 2, AlreadyExpanded: 1}, summary)
}

func TestService_ListUpcoming(t *testing.T) {
	f := newFixture(t)
	from := schedule.DateOnly(testutil.Now)
	f.items.On("FindUpcoming", mock.Anything, f.tenant.AccountID, (*uuid.UUID)(nil), from, from.AddDate(0, 0, 30)).
		Return([]schedule.PaymentScheduleItem{*f.newItem(t, nil)}, nil)

	items, err := f.svc.ListUpcoming(context.Background(), f.tenant.Caller(), 0)

	require.NoError(t, err)
	assert.Len(t, items, 1)

	_, err = f.svc.ListUpcoming(context.Background(), f.tenant.Caller(), 400)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestService_ListOverdueRepositoryError(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("connection reset")
	agencyID := f.tenant.Agency.ID
	f.items.On("FindOverdue", mock.Anything, f.tenant.AccountID, &agencyID, mock.Anything).Return(nil, boom)

	_, err := f.svc.ListOverdue(context.Background(), f.tenant.AgencyCaller(agencyID), nil)

	assert.ErrorIs(t, err, boom)
}
