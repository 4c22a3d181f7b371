package billing

import (
	"context"
	"testing"
	"time"

	"github.com/edubill/backend/internal/domain/agency"
	"github.com/edubill/backend/internal/domain/history"
	"github.com/edubill/backend/internal/domain/schedule"
	"github.com/edubill/backend/internal/domain/shared"
	"github.com/edubill/backend/internal/domain/shared/valueobject"
	"github.com/edubill/backend/internal/infrastructure/cache"
	"github.com/edubill/backend/internal/infrastructure/config"
	"github.com/edubill/backend/internal/infrastructure/persistence"
	"github.com/edubill/backend/internal/infrastructure/persistence/models"
	"github.com/edubill/backend/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

// LifecycleSuite drives the service against a migrated sqlite database
type LifecycleSuite struct {
	suite.Suite
	db        *gorm.DB
	items     *persistence.GormPaymentScheduleItemRepository
	store     *persistence.GormBillingEventHistoryStore
	svc       *TransactionService
	published *testutil.RecordingPublisher
	caller    agency.Caller
	offer     models.OfferLetterModel
	agencyID  uuid.UUID
	locks     *cache.InMemoryLockStore
}

func TestLifecycleSuite(t *testing.T) {
	suite.Run(t, new(LifecycleSuite))
}

func (s *LifecycleSuite) SetupTest() {
	database, err := persistence.NewDatabase(&config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = database.Close() })
	s.Require().NoError(persistence.AutoMigrate(database.DB))
	s.db = database.DB

	accountID, agencyID := uuid.New(), uuid.New()
	account := models.AccountModel{Name: "Northwind Education", IsActive: true}
	account.ID = accountID
	s.Require().NoError(s.db.Create(&account).Error)
	ag := models.AgencyModel{AccountID: accountID, Name: "Sydney Branch", IsActive: true}
	ag.ID = agencyID
	s.Require().NoError(s.db.Create(&ag).Error)
	s.offer = models.OfferLetterModel{AccountID: accountID, AgencyID: agencyID, StudentID: uuid.New(), IsActive: true}
	s.offer.ID = uuid.New()
	s.Require().NoError(s.db.Create(&s.offer).Error)
	s.agencyID = agencyID

	locks := cache.NewInMemoryLockStore()
	s.T().Cleanup(func() { _ = locks.Close() })

	s.locks = locks
	s.items = persistence.NewGormPaymentScheduleItemRepository(s.db)
	s.store = persistence.NewGormBillingEventHistoryStore(s.db)
	s.published = testutil.NewRecordingPublisher()
	s.svc = s.newService(Options{})
	s.caller = agency.Caller{Scope: agency.NewScope(accountID, nil), ActorID: uuid.New()}
}

func (s *LifecycleSuite) newService(opts Options) *TransactionService {
	svc := NewTransactionService(
		persistence.NewGormBillingTransactionRepository(s.db),
		s.items,
		s.store,
		agency.NewScopeGuard(persistence.NewGormAgencyRepository(s.db)),
		persistence.NewGormTransactionManager(s.db),
		s.locks,
		opts,
	)
	svc.SetClock(testutil.FixedClock(testutil.Now))
	svc.SetEventPublisher(s.published)
	return svc
}

func (s *LifecycleSuite) createItem(amount string, due time.Time) *schedule.PaymentScheduleItem {
	item, err := schedule.NewPaymentScheduleItem(schedule.NewItemParams{
		AccountID:     s.caller.AccountID,
		AgencyID:      s.agencyID,
		OfferLetterID: s.offer.ID,
		ItemType:      schedule.ItemTypeTuition,
		Description:   "Semester tuition",
		Amount:        valueobject.MustMoney(amount, valueobject.AUD),
		DueDate:       due,
		CreatedBy:     s.caller.ActorID,
	}, testutil.Now)
	s.Require().NoError(err)
	s.Require().NoError(s.items.Create(context.Background(), item))
	return item
}

func (s *LifecycleSuite) timeline(txID uuid.UUID) []history.EventType {
	events, err := s.store.Timeline(context.Background(), s.caller.AccountID, txID, true)
	s.Require().NoError(err)
	out := make([]history.EventType, len(events))
	for i, e := range events {
		out[i] = e.EventType
	}
	return out
}

func (s *LifecycleSuite) TestDisputedInvoiceIsResolvedAndReconciledOnce() {
	ctx := context.Background()
	item := s.createItem("1000", time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC))

	result, err := s.svc.GenerateFromScheduleItems(ctx, s.caller, GenerateRequest{})
	s.Require().NoError(err)
	s.Require().Len(result.Created, 1)
	created := result.Created[0]
	s.Equal("pending", created.Status)
	s.Equal(&item.ID, created.PaymentScheduleItemID)
	s.Equal(s.offer.StudentID, created.DebtorID)
	s.Equal("2024-02-15", created.DueDate)

	_, err = s.svc.Claim(ctx, s.caller, created.ID, ClaimRequest{})
	s.Require().NoError(err)
	_, err = s.svc.Dispute(ctx, s.caller, created.ID, DisputeRequest{Reason: "amount contested"})
	s.Require().NoError(err)
	paid, err := s.svc.ResolveDispute(ctx, s.caller, created.ID, ResolveDisputeRequest{Status: "paid", Notes: "student paid in full"})
	s.Require().NoError(err)
	s.Equal("paid", paid.Status)
	s.NotNil(paid.PaidDate)
	s.Equal("paid", string(paid.Metadata.ResolutionStatus))

	reconciled, err := s.svc.Reconcile(ctx, s.caller, created.ID, ReconcileRequest{BankStatementRef: "STMT-2024-03"})
	s.Require().NoError(err)
	s.True(reconciled.Reconciliation.IsReconciled)

	_, err = s.svc.Reconcile(ctx, s.caller, created.ID, ReconcileRequest{BankStatementRef: "STMT-2024-04"})
	s.ErrorIs(err, shared.ErrInvalidTransition)

	_, err = s.svc.Cancel(ctx, s.caller, created.ID, ReasonRequest{Reason: "late change"})
	s.ErrorIs(err, shared.ErrFieldImmutable)

	s.Equal([]history.EventType{
		history.EventTransactionCreated,
		history.EventTransactionClaimed,
		history.EventTransactionDisputed,
		history.EventDisputeResolved,
		history.EventTransactionReconciled,
	}, s.timeline(created.ID))
	s.Len(s.published.OfType(history.EventTypeRecorded), 5)
}

func (s *LifecycleSuite) TestGenerationIsIdempotent() {
	ctx := context.Background()
	s.createItem("1000", time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC))
	s.createItem("750", time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC))
	s.createItem("500", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))

	first, err := s.svc.GenerateFromScheduleItems(ctx, s.caller, GenerateRequest{})
	s.Require().NoError(err)
	s.Len(first.Created, 2)

	second, err := s.svc.GenerateFromScheduleItems(ctx, s.caller, GenerateRequest{})
	s.Require().NoError(err)
	s.Empty(second.Created)
	s.Zero(second.Skipped(), "billed items are no longer selected")

	billed := []uuid.UUID{*first.Created[0].PaymentScheduleItemID, *first.Created[1].PaymentScheduleItemID}
	third, err := s.svc.GenerateFromScheduleItems(ctx, s.caller, GenerateRequest{ItemIDs: billed})
	s.Require().NoError(err)
	s.Empty(third.Created)
	s.Equal(2, third.SkippedAlreadyBilled)

	var count int64
	s.Require().NoError(s.db.Model(&models.BillingTransactionModel{}).Count(&count).Error)
	s.Equal(int64(2), count)
}

func (s *LifecycleSuite) TestScopedRunsWorkThroughTheBacklog() {
	ctx := context.Background()
	svc := s.newService(Options{GenerationBatchLimit: 2})
	first := s.createItem("100", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	second := s.createItem("200", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	third := s.createItem("300", time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))

	run, err := svc.GenerateFromScheduleItems(ctx, s.caller, GenerateRequest{})
	s.Require().NoError(err)
	s.Require().Len(run.Created, 2)
	s.Equal(&first.ID, run.Created[0].PaymentScheduleItemID)
	s.Equal(&second.ID, run.Created[1].PaymentScheduleItemID)

	run, err = svc.GenerateFromScheduleItems(ctx, s.caller, GenerateRequest{})
	s.Require().NoError(err)
	s.Require().Len(run.Created, 1)
	s.Equal(&third.ID, run.Created[0].PaymentScheduleItemID)
	s.Zero(run.SkippedAlreadyBilled)

	run, err = svc.GenerateFromScheduleItems(ctx, s.caller, GenerateRequest{})
	s.Require().NoError(err)
	s.Empty(run.Created)

	var count int64
	s.Require().NoError(s.db.Model(&models.BillingTransactionModel{}).Count(&count).Error)
	s.Equal(int64(3), count)
}

func (s *LifecycleSuite) TestCancelledTransactionFreesTheItem() {
	ctx := context.Background()
	item := s.createItem("1000", time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC))
	req := GenerateRequest{ItemIDs: []uuid.UUID{item.ID}}

	first, err := s.svc.GenerateFromScheduleItems(ctx, s.caller, req)
	s.Require().NoError(err)
	s.Require().Len(first.Created, 1)
	_, err = s.svc.Cancel(ctx, s.caller, first.Created[0].ID, ReasonRequest{Reason: "issued in error"})
	s.Require().NoError(err)

	second, err := s.svc.GenerateFromScheduleItems(ctx, s.caller, req)
	s.Require().NoError(err)
	s.Len(second.Created, 1)
	s.NotEqual(first.Created[0].ID, second.Created[0].ID)
}

func (s *LifecycleSuite) TestFlagOverdueWritesOneRecordPerTransaction() {
	ctx := context.Background()
	s.createItem("1000", time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC))
	result, err := s.svc.GenerateFromScheduleItems(ctx, s.caller, GenerateRequest{})
	s.Require().NoError(err)
	txID := result.Created[0].ID
	_, err = s.svc.Claim(ctx, s.caller, txID, ClaimRequest{})
	s.Require().NoError(err)

	first, err := s.svc.FlagOverdue(ctx, s.caller, nil)
	s.Require().NoError(err)
	s.Equal(1, first.Flagged)

	second, err := s.svc.FlagOverdue(ctx, s.caller, nil)
	s.Require().NoError(err)
	s.Zero(second.Flagged)

	s.Equal([]history.EventType{
		history.EventTransactionCreated,
		history.EventTransactionClaimed,
		history.EventTransactionOverdue,
	}, s.timeline(txID))
}

func TestLifecycle_OtherAccountSeesNothing(t *testing.T) {
	s := new(LifecycleSuite)
	s.SetT(t)
	s.SetupTest()
	item := s.createItem("1000", time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC))
	result, err := s.svc.GenerateFromScheduleItems(context.Background(), s.caller, GenerateRequest{})
	require.NoError(t, err)
	require.Len(t, result.Created, 1)

	stranger := agency.Caller{Scope: agency.NewScope(uuid.New(), nil), ActorID: uuid.New()}
	account := models.AccountModel{Name: "Contoso", IsActive: true}
	account.ID = stranger.AccountID
	require.NoError(t, s.db.Create(&account).Error)

	_, err = s.svc.Get(context.Background(), stranger, result.Created[0].ID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	other, err := s.svc.GenerateFromScheduleItems(context.Background(), stranger, GenerateRequest{ItemIDs: []uuid.UUID{item.ID}})
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{item.ID}, other.NotFound)
}
