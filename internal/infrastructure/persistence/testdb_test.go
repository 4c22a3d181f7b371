package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/edubill/backend/internal/domain/agency"
	"github.com/edubill/backend/internal/domain/billing"
	"github.com/edubill/backend/internal/domain/schedule"
	"github.com/edubill/backend/internal/domain/shared/valueobject"
	"github.com/edubill/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// newTestDB opens a migrated in-memory sqlite database on a single connection
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), newGormConfig(logger.Default.LogMode(logger.Silent)))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, AutoMigrate(db))
	return db
}

// tenantFixture is an account with one agency and one offer letter
type tenantFixture struct {
	AccountID uuid.UUID
	AgencyID  uuid.UUID
	Offer     *agency.OfferLetter
	ActorID   uuid.UUID
}

func seedTenant(t *testing.T, db *gorm.DB) tenantFixture {
	t.Helper()
	f := tenantFixture{
		AccountID: uuid.New(),
		AgencyID:  uuid.New(),
		ActorID:   uuid.New(),
	}
	f.Offer = &agency.OfferLetter{
		ID:        uuid.New(),
		AccountID: f.AccountID,
		AgencyID:  f.AgencyID,
		StudentID: uuid.New(),
		IsActive:  true,
	}

	account := models.AccountModel{Name: "Northwind Education", IsActive: true}
	account.ID = f.AccountID
	account.CreatedAt = testNow
	require.NoError(t, db.Create(&account).Error)

	ag := models.AgencyModel{AccountID: f.AccountID, Name: "Sydney Branch", IsActive: true}
	ag.ID = f.AgencyID
	ag.CreatedAt = testNow
	require.NoError(t, db.Create(&ag).Error)

	offer := models.OfferLetterModel{
		AccountID: f.AccountID,
		AgencyID:  f.AgencyID,
		StudentID: f.Offer.StudentID,
		IsActive:  true,
	}
	offer.ID = f.Offer.ID
	offer.CreatedAt = testNow
	require.NoError(t, db.Create(&offer).Error)
	return f
}

func newTestItem(t *testing.T, f tenantFixture, amount string, due time.Time) *schedule.PaymentScheduleItem {
	t.Helper()
	item, err := schedule.NewPaymentScheduleItem(schedule.NewItemParams{
		AccountID:     f.AccountID,
		AgencyID:      f.AgencyID,
		OfferLetterID: f.Offer.ID,
		ItemType:      schedule.ItemTypeTuition,
		Description:   "Semester tuition",
		Amount:        valueobject.MustMoney(amount, valueobject.AUD),
		DueDate:       due,
		CreatedBy:     f.ActorID,
	}, testNow)
	require.NoError(t, err)
	return item
}

func newTestTransaction(t *testing.T, f tenantFixture, item *schedule.PaymentScheduleItem) *billing.Outcome {
	t.Helper()
	out, err := billing.NewFromScheduleItem(item, f.Offer, f.ActorID, testNow)
	require.NoError(t, err)
	return out
}

func createItem(t *testing.T, db *gorm.DB, item *schedule.PaymentScheduleItem) {
	t.Helper()
	require.NoError(t, NewGormPaymentScheduleItemRepository(db).Create(context.Background(), item))
}
