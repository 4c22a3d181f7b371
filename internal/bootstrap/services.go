// Package bootstrap assembles the billing services over one database so the
// server, the job runner and the end-to-end tests share the same wiring.
package bootstrap

import (
	agencyapp "github.com/edubill/backend/internal/application/agency"
	billingapp "github.com/edubill/backend/internal/application/billing"
	historyapp "github.com/edubill/backend/internal/application/history"
	scheduleapp "github.com/edubill/backend/internal/application/schedule"
	"github.com/edubill/backend/internal/domain/agency"
	"github.com/edubill/backend/internal/domain/shared"
	"github.com/edubill/backend/internal/infrastructure/config"
	"github.com/edubill/backend/internal/infrastructure/persistence"
	"github.com/edubill/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps are the infrastructure pieces the services run on. Publisher and
// Metrics are optional.
type Deps struct {
	DB        *gorm.DB
	Locks     shared.LockStore
	Billing   config.BillingConfig
	Publisher shared.EventPublisher
	Metrics   *telemetry.BillingMetrics
	Logger    *zap.Logger
}

// Services holds the application services of the billing core
type Services struct {
	Accounts     *persistence.GormAgencyRepository
	Guard        *agency.ScopeGuard
	Agencies     *agencyapp.Service
	Schedule     *scheduleapp.Service
	Transactions *billingapp.TransactionService
	History      *historyapp.Service
	Dispatcher   *historyapp.NotificationDispatcher
}

// NewServices wires repositories, guard and services
func NewServices(d Deps) *Services {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}

	agencies := persistence.NewGormAgencyRepository(d.DB)
	items := persistence.NewGormPaymentScheduleItemRepository(d.DB)
	transactions := persistence.NewGormBillingTransactionRepository(d.DB)
	store := persistence.NewGormBillingEventHistoryStore(d.DB)
	txManager := persistence.NewGormTransactionManager(d.DB)
	guard := agency.NewScopeGuard(agencies)

	scheduleService := scheduleapp.NewService(items, transactions, guard, txManager, d.Locks, scheduleapp.Options{
		MaxRecurringOccurrences: d.Billing.MaxRecurringOccurrences,
		ExpansionLockTTL:        d.Billing.GenerationLockTTL,
		DefaultUpcomingDays:     d.Billing.DefaultUpcomingDays,
	})
	transactionService := billingapp.NewTransactionService(transactions, items, store, guard, txManager, d.Locks, billingapp.Options{
		GenerationLockTTL:    d.Billing.GenerationLockTTL,
		GenerationBatchLimit: d.Billing.GenerationBatchLimit,
	})
	historyService := historyapp.NewService(store, transactions, guard)

	if d.Publisher != nil {
		scheduleService.SetEventPublisher(d.Publisher)
		transactionService.SetEventPublisher(d.Publisher)
	}
	if d.Metrics != nil {
		transactionService.SetMetrics(d.Metrics)
		historyService.SetMetrics(d.Metrics)
	}

	return &Services{
		Accounts:     agencies,
		Guard:        guard,
		Agencies:     agencyapp.NewService(agencies, guard),
		Schedule:     scheduleService,
		Transactions: transactionService,
		History:      historyService,
		Dispatcher:   historyapp.NewNotificationDispatcher(store, log.Named("notifications")),
	}
}
