package bootstrap

import (
	"context"
	"testing"
	"time"

	billingapp "github.com/edubill/backend/internal/application/billing"
	scheduleapp "github.com/edubill/backend/internal/application/schedule"
	"github.com/edubill/backend/internal/domain/agency"
	"github.com/edubill/backend/internal/infrastructure/cache"
	"github.com/edubill/backend/internal/infrastructure/config"
	"github.com/edubill/backend/internal/infrastructure/persistence"
	"github.com/edubill/backend/internal/infrastructure/persistence/models"
	"github.com/edubill/backend/internal/infrastructure/scheduler"
	"github.com/edubill/backend/internal/testutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSweepSteps_EndToEnd(t *testing.T) {
	database, err := persistence.NewDatabase(&config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, persistence.AutoMigrate(database.DB))

	account := models.AccountModel{Name: "Northwind Education", IsActive: true}
	account.ID = uuid.New()
	require.NoError(t, database.DB.Create(&account).Error)
	branch := models.AgencyModel{AccountID: account.ID, Name: "Sydney Branch", IsActive: true}
	branch.ID = uuid.New()
	require.NoError(t, database.DB.Create(&branch).Error)
	offer := models.OfferLetterModel{AccountID: account.ID, AgencyID: branch.ID, StudentID: uuid.New(), IsActive: true}
	offer.ID = uuid.New()
	require.NoError(t, database.DB.Create(&offer).Error)

	locks := cache.NewInMemoryLockStore()
	t.Cleanup(func() { _ = locks.Close() })
	services := NewServices(Deps{DB: database.DB, Locks: locks, Logger: zaptest.NewLogger(t)})
	services.Schedule.SetClock(testutil.FixedClock(testutil.Now))
	services.Transactions.SetClock(testutil.FixedClock(testutil.Now))

	ctx := context.Background()
	caller := agency.SystemCaller(account.ID)
	item, err := services.Schedule.Create(ctx, caller, scheduleapp.CreateItemRequest{
		AgencyID:      branch.ID,
		OfferLetterID: offer.ID,
		ItemType:      "tuition",
		Amount:        decimal.RequireFromString("1200.00"),
		Currency:      "AUD",
		DueDate:       time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	ids, err := services.Accounts.ListActiveAccountIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{account.ID}, ids)

	exec := scheduler.NewSweepExecutor(services.SweepSteps(), zaptest.NewLogger(t))
	job := scheduler.NewJob(account.ID, scheduler.AllJobKinds(), testutil.Now, 0)
	require.NoError(t, exec.Execute(ctx, job))

	// Freshly billed transactions are pending and not yet eligible for overdue
	pending, err := services.Transactions.List(ctx, caller, billingapp.ListTransactionsRequest{Status: "pending"})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NotNil(t, pending[0].PaymentScheduleItemID)
	assert.Equal(t, item.ID, *pending[0].PaymentScheduleItemID)

	_, err = services.Transactions.Claim(ctx, caller, pending[0].ID, billingapp.ClaimRequest{})
	require.NoError(t, err)

	// The next sweep bills nothing new and flags the claimed transaction
	require.NoError(t, exec.Execute(ctx, scheduler.NewJob(account.ID, nil, testutil.Now, 0)))
	all, err := services.Transactions.List(ctx, caller, billingapp.ListTransactionsRequest{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "overdue", all[0].Status)
}
