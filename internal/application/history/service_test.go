package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/edubill/backend/internal/domain/agency"
	"github.com/edubill/backend/internal/domain/billing"
	"github.com/edubill/backend/internal/domain/history"
	"github.com/edubill/backend/internal/domain/shared"
	"github.com/edubill/backend/internal/domain/shared/valueobject"
	"github.com/edubill/backend/internal/infrastructure/config"
	"github.com/edubill/backend/internal/infrastructure/logger"
	"github.com/edubill/backend/internal/infrastructure/persistence"
	"github.com/edubill/backend/internal/infrastructure/persistence/models"
	"github.com/edubill/backend/internal/testutil"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fixture struct {
	store    *persistence.GormBillingEventHistoryStore
	svc      *Service
	caller   agency.Caller
	admin    agency.Caller
	agencyID uuid.UUID
	tx       *billing.BillingTransaction
	events   []*history.Event
	logs     *observer.ObservedLogs
	ctx      context.Context
}

// newFixture stores a claimed transaction with its two audit records
func newFixture(t *testing.T) *fixture {
	t.Helper()
	database, err := persistence.NewDatabase(&config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	db := database.DB
	require.NoError(t, persistence.AutoMigrate(db))

	accountID, agencyID := uuid.New(), uuid.New()
	account := models.AccountModel{Name: "Northwind Education", IsActive: true}
	account.ID = accountID
	require.NoError(t, db.Create(&account).Error)
	ag := models.AgencyModel{AccountID: accountID, Name: "Sydney Branch", IsActive: true}
	ag.ID = agencyID
	require.NoError(t, db.Create(&ag).Error)

	core, logs := observer.New(zapcore.DebugLevel)
	f := &fixture{
		store:    persistence.NewGormBillingEventHistoryStore(db),
		caller:   agency.Caller{Scope: agency.NewScope(accountID, nil), ActorID: uuid.New()},
		agencyID: agencyID,
		logs:     logs,
		ctx:      logger.WithContext(context.Background(), zap.New(core)),
	}
	f.admin = f.caller
	f.admin.Privileged = true
	repo := persistence.NewGormBillingTransactionRepository(db)
	f.svc = NewService(f.store, repo, agency.NewScopeGuard(persistence.NewGormAgencyRepository(db)))

	created, err := billing.New(billing.NewTransactionParams{
		AccountID:       accountID,
		AgencyID:        agencyID,
		DebtorType:      billing.DebtorStudent,
		DebtorID:        uuid.New(),
		Amount:          valueobject.MustMoney("1000", valueobject.USD),
		TransactionType: billing.TypeInvoice,
		DueDate:         time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		CreatedBy:       f.caller.ActorID,
	}, testutil.Now)
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), created.Transaction))
	require.NoError(t, f.store.Append(context.Background(), created.Event))

	claimed, err := created.Transaction.Claim(f.caller.ActorID, nil, testutil.Now.Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, repo.CompareAndSwap(context.Background(), claimed.Transaction, claimed.ExpectedStatus, claimed.ExpectedVersion))
	require.NoError(t, f.store.Append(context.Background(), claimed.Event))

	f.tx = claimed.Transaction
	f.events = []*history.Event{created.Event, claimed.Event}
	return f
}

func TestService_Timeline(t *testing.T) {
	t.Run("returns records oldest first", func(t *testing.T) {
		f := newFixture(t)

		events, err := f.svc.Timeline(f.ctx, f.caller, f.tx.ID, false)

		require.NoError(t, err)
		assert.Equal(t, []string{"transaction_created", "transaction_claimed"},
			lo.Map(events, func(e EventResponse, _ int) string { return e.EventType }))
	})

	t.Run("hidden records need a privileged caller", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Hide(f.ctx, f.admin, f.events[0].ID)
		require.NoError(t, err)

		visible, err := f.svc.Timeline(f.ctx, f.caller, f.tx.ID, false)
		require.NoError(t, err)
		assert.Len(t, visible, 1)

		_, err = f.svc.Timeline(f.ctx, f.caller, f.tx.ID, true)
		assert.ErrorIs(t, err, shared.ErrForbidden)

		all, err := f.svc.Timeline(f.ctx, f.admin, f.tx.ID, true)
		require.NoError(t, err)
		assert.Len(t, all, 2)
		assert.False(t, all[0].IsVisible)
	})

	t.Run("another account cannot read the timeline", func(t *testing.T) {
		f := newFixture(t)
		stranger := agency.Caller{Scope: agency.NewScope(uuid.New(), nil), ActorID: uuid.New()}

		_, err := f.svc.Timeline(f.ctx, stranger, f.tx.ID, false)

		assert.Error(t, err)
	})
}

func TestService_Hide(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Hide(f.ctx, f.caller, f.events[1].ID)

	assert.ErrorIs(t, err, shared.ErrForbidden)
	stored, err := f.store.FindByID(context.Background(), f.caller.AccountID, f.events[1].ID)
	require.NoError(t, err)
	assert.True(t, stored.IsVisible)
}

func TestService_AuditImmutability(t *testing.T) {
	t.Run("changing the event type is refused and logged", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.Amend(f.ctx, f.admin, f.events[0].ID, AmendRequest{EventType: lo.ToPtr("payment_received")})

		assert.ErrorIs(t, err, shared.ErrImmutableRecordViolation)
		entries := f.logs.FilterMessage("audit record integrity violation").All()
		require.Len(t, entries, 1)
		assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
		assert.Equal(t, true, entries[0].ContextMap()["integrity_violation"])
	})

	t.Run("changing the event data is refused", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.Amend(f.ctx, f.admin, f.events[0].ID, AmendRequest{EventData: map[string]any{"amount": "1"}})

		assert.ErrorIs(t, err, shared.ErrImmutableRecordViolation)
	})

	t.Run("deletion always fails", func(t *testing.T) {
		f := newFixture(t)

		err := f.svc.Delete(f.ctx, f.admin, f.events[0].ID)

		assert.ErrorIs(t, err, shared.ErrDeleteForbidden)
		_, err = f.store.FindByID(context.Background(), f.caller.AccountID, f.events[0].ID)
		assert.NoError(t, err)
		assert.Equal(t, 1, f.logs.FilterField(logger.IntegrityViolation).Len())
	})
}

func TestService_ActivityQueries(t *testing.T) {
	f := newFixture(t)

	summary, err := f.svc.ActivitySummary(f.ctx, f.caller, WindowRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.Total)
	assert.Equal(t, int64(1), summary.Counts["transaction_claimed"])

	from := testutil.Now.Add(30 * time.Minute)
	windowed, err := f.svc.ActivitySummary(f.ctx, f.caller, WindowRequest{From: &from})
	require.NoError(t, err)
	assert.Equal(t, int64(1), windowed.Total)

	activity, err := f.svc.UserActivity(f.ctx, f.caller, f.caller.ActorID, UserActivityRequest{})
	require.NoError(t, err)
	require.Len(t, activity, 2)
	assert.Equal(t, "transaction_claimed", activity[0].EventType)

	_, err = f.svc.UserActivity(f.ctx, f.caller, uuid.Nil, UserActivityRequest{})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

type failingNotifier struct{}

func (failingNotifier) Notify(context.Context, RecordNotification) (string, error) {
	return "", errors.New("smtp unavailable")
}

func TestNotificationDispatcher(t *testing.T) {
	t.Run("marks the record notified", func(t *testing.T) {
		f := newFixture(t)
		d := NewNotificationDispatcher(f.store, zap.NewNop()).WithClock(testutil.FixedClock(testutil.Now))

		require.NoError(t, d.Handle(context.Background(), history.NewRecordedEvent(f.events[1])))

		stored, err := f.store.FindByID(context.Background(), f.caller.AccountID, f.events[1].ID)
		require.NoError(t, err)
		assert.True(t, stored.Notification.Sent)
		assert.Equal(t, "log", stored.Notification.Channel)
		require.NotNil(t, stored.Notification.SentAt)
		assert.True(t, testutil.Now.Equal(*stored.Notification.SentAt))
		assert.Equal(t, history.EventTransactionClaimed, stored.EventType)
	})

	t.Run("failed delivery leaves the record untouched", func(t *testing.T) {
		f := newFixture(t)
		d := NewNotificationDispatcher(f.store, zap.NewNop()).WithNotifier(failingNotifier{})

		err := d.Handle(context.Background(), history.NewRecordedEvent(f.events[0]))

		assert.Error(t, err)
		stored, err := f.store.FindByID(context.Background(), f.caller.AccountID, f.events[0].ID)
		require.NoError(t, err)
		assert.False(t, stored.Notification.Sent)
	})

	t.Run("subscribes to recorded events only", func(t *testing.T) {
		d := NewNotificationDispatcher(nil, zap.NewNop())
		assert.Equal(t, []string{history.EventTypeRecorded}, d.EventTypes())
	})
}
