package persistence

import (
	"fmt"

	"github.com/edubill/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// OpenTransactionIndex enforces at most one open transaction per schedule item
const OpenTransactionIndex = "ux_billing_transactions_open_item"

// AutoMigrate creates the billing schema from the persistence models. It is
// used by the sqlite driver and tests; postgres deployments run migrations/.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.AccountModel{},
		&models.AgencyModel{},
		&models.OfferLetterModel{},
		&models.PaymentScheduleItemModel{},
		&models.BillingTransactionModel{},
		&models.BillingEventHistoryModel{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	stmts := []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS " + OpenTransactionIndex +
			" ON billing_transactions (payment_schedule_item_id)" +
			" WHERE payment_schedule_item_id IS NOT NULL AND status NOT IN ('cancelled', 'refunded')",
		"CREATE INDEX IF NOT EXISTS ix_billing_event_histories_timeline" +
			" ON billing_event_histories (billing_transaction_id, event_date, id)",
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
