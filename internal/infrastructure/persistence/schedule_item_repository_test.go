package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/edubill/backend/internal/domain/schedule"
	"github.com/edubill/backend/internal/domain/shared"
	"github.com/edubill/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormPaymentScheduleItemRepository_CreateAndFind(t *testing.T) {
	db := newTestDB(t)
	f := seedTenant(t, db)
	repo := NewGormPaymentScheduleItemRepository(db)
	ctx := context.Background()

	occurrences := 3
	item := newTestItem(t, f, "1250.50", time.Date(2024, 4, 15, 0, 0, 0, 0, time.UTC))
	item.IsRecurring = true
	item.RecurringDetails = &schedule.RecurringDetails{Frequency: schedule.FrequencyMonthly, Occurrences: &occurrences}
	require.NoError(t, repo.Create(ctx, item))

	t.Run("round trips every field", func(t *testing.T) {
		found, err := repo.FindByID(ctx, f.AccountID, item.ID)
		require.NoError(t, err)
		assert.True(t, item.ScheduledAmount.Equals(found.ScheduledAmount))
		assert.Equal(t, item.ScheduledDueDate, found.ScheduledDueDate)
		assert.Equal(t, schedule.ItemStatusActive, found.Status)
		assert.Equal(t, 1, found.Version)
		assert.Equal(t, testNow, found.CreatedAt)
		require.NotNil(t, found.RecurringDetails)
		assert.Equal(t, schedule.FrequencyMonthly, found.RecurringDetails.Frequency)
		assert.Equal(t, 3, *found.RecurringDetails.Occurrences)
	})

	t.Run("other account sees not found", func(t *testing.T) {
		_, err := repo.FindByID(ctx, uuid.New(), item.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("FindByIDs skips unknown ids", func(t *testing.T) {
		items, err := repo.FindByIDs(ctx, f.AccountID, []uuid.UUID{item.ID, uuid.New()})
		require.NoError(t, err)
		assert.Len(t, items, 1)

		items, err = repo.FindByIDs(ctx, f.AccountID, nil)
		require.NoError(t, err)
		assert.Empty(t, items)
	})
}

func TestGormPaymentScheduleItemRepository_Windows(t *testing.T) {
	db := newTestDB(t)
	f := seedTenant(t, db)
	repo := NewGormPaymentScheduleItemRepository(db)
	ctx := context.Background()

	day := func(m time.Month, d int) time.Time { return time.Date(2024, m, d, 0, 0, 0, 0, time.UTC) }
	past := newTestItem(t, f, "100", day(2, 20))
	today := newTestItem(t, f, "200", day(3, 1))
	soon := newTestItem(t, f, "300", day(3, 20))
	later := newTestItem(t, f, "400", day(6, 1))
	for _, it := range []*schedule.PaymentScheduleItem{past, today, soon, later} {
		createItem(t, db, it)
	}

	t.Run("overdue is strictly before as-of", func(t *testing.T) {
		items, err := repo.FindOverdue(ctx, f.AccountID, nil, testNow)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, past.ID, items[0].ID)
	})

	t.Run("upcoming is inclusive on both ends", func(t *testing.T) {
		items, err := repo.FindUpcoming(ctx, f.AccountID, &f.AgencyID, day(3, 1), day(3, 20))
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, today.ID, items[0].ID)
		assert.Equal(t, soon.ID, items[1].ID)
	})

	t.Run("FindAll filters and pages", func(t *testing.T) {
		from := day(3, 1)
		items, err := repo.FindAll(ctx, schedule.ItemFilter{
			Filter:    shared.Filter{Page: 1, PageSize: 2, OrderBy: "scheduled_due_date", OrderDir: "asc"},
			AccountID: f.AccountID,
			Statuses:  []schedule.ItemStatus{schedule.ItemStatusActive},
			DueFrom:   &from,
		})
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, today.ID, items[0].ID)
		assert.Equal(t, soon.ID, items[1].ID)
	})

	t.Run("FindAll ignores unknown sort columns", func(t *testing.T) {
		items, err := repo.FindAll(ctx, schedule.ItemFilter{
			Filter:    shared.Filter{OrderBy: "amount; DROP TABLE payment_schedule_items"},
			AccountID: f.AccountID,
		})
		require.NoError(t, err)
		assert.Len(t, items, 4)
	})
}

func TestGormPaymentScheduleItemRepository_UnbilledFilter(t *testing.T) {
	db := newTestDB(t)
	f := seedTenant(t, db)
	repo := NewGormPaymentScheduleItemRepository(db)
	transactions := NewGormBillingTransactionRepository(db)
	ctx := context.Background()

	due := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	open := newTestItem(t, f, "100", due)
	cancelled := newTestItem(t, f, "200", due)
	fresh := newTestItem(t, f, "300", due)
	for _, it := range []*schedule.PaymentScheduleItem{open, cancelled, fresh} {
		createItem(t, db, it)
	}
	require.NoError(t, transactions.Create(ctx, newTestTransaction(t, f, open).Transaction))
	voided := newTestTransaction(t, f, cancelled).Transaction
	require.NoError(t, transactions.Create(ctx, voided))
	require.NoError(t, db.Model(&models.BillingTransactionModel{}).
		Where("id = ?", voided.ID).Update("status", "cancelled").Error)

	items, err := repo.FindAll(ctx, schedule.ItemFilter{
		AccountID: f.AccountID,
		Statuses:  []schedule.ItemStatus{schedule.ItemStatusActive},
		Unbilled:  true,
	})
	require.NoError(t, err)
	ids := []uuid.UUID{}
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{cancelled.ID, fresh.ID}, ids)
}

func TestGormPaymentScheduleItemRepository_CreateBatchAndChildren(t *testing.T) {
	db := newTestDB(t)
	f := seedTenant(t, db)
	repo := NewGormPaymentScheduleItemRepository(db)
	ctx := context.Background()

	occurrences := 4
	parent := newTestItem(t, f, "500", time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))
	parent.IsRecurring = true
	parent.RecurringDetails = &schedule.RecurringDetails{Frequency: schedule.FrequencyMonthly, Occurrences: &occurrences}
	createItem(t, db, parent)

	children, err := schedule.GenerateOccurrences(parent, schedule.GeneratorOptions{ActorID: f.ActorID, Now: testNow})
	require.NoError(t, err)
	require.NoError(t, repo.CreateBatch(ctx, children))
	require.NoError(t, repo.CreateBatch(ctx, nil))

	count, err := repo.CountActiveChildren(ctx, f.AccountID, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)

	stored, err := repo.FindByID(ctx, f.AccountID, children[0].ID)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), stored.ScheduledDueDate)
	require.NotNil(t, stored.ParentItemID)
	assert.Equal(t, parent.ID, *stored.ParentItemID)
	assert.Equal(t, 1, stored.OccurrenceIndex)
}

func TestGormPaymentScheduleItemRepository_UpdateIsCompareAndSwap(t *testing.T) {
	db := newTestDB(t)
	f := seedTenant(t, db)
	repo := NewGormPaymentScheduleItemRepository(db)
	ctx := context.Background()

	item := newTestItem(t, f, "900", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	createItem(t, db, item)

	retired, err := item.Retire(f.ActorID, "offer withdrawn", testNow.Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, repo.Update(ctx, retired, item.Status, item.Version))

	stored, err := repo.FindByID(ctx, f.AccountID, item.ID)
	require.NoError(t, err)
	assert.Equal(t, schedule.ItemStatusRetired, stored.Status)
	assert.False(t, stored.IsActive)
	assert.Equal(t, 2, stored.Version)
	assert.Equal(t, "offer withdrawn", stored.RetirementReason)
	assert.Equal(t, testNow, stored.CreatedAt)

	// a writer holding the original snapshot loses
	completed, err := item.Complete(f.ActorID, testNow.Add(2*time.Hour))
	require.NoError(t, err)
	err = repo.Update(ctx, completed, item.Status, item.Version)
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)

	stored, err = repo.FindByID(ctx, f.AccountID, item.ID)
	require.NoError(t, err)
	assert.Equal(t, schedule.ItemStatusRetired, stored.Status)
}
