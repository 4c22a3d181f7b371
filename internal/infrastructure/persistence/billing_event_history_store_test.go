package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/edubill/backend/internal/domain/history"
	"github.com/edubill/backend/internal/domain/shared"
	"github.com/edubill/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

type HistoryStoreSuite struct {
	suite.Suite
	db    *gorm.DB
	store *GormBillingEventHistoryStore
	ctx   context.Context
	f     tenantFixture
	txID  uuid.UUID
}

func TestHistoryStoreSuite(t *testing.T) {
	suite.Run(t, new(HistoryStoreSuite))
}

func (s *HistoryStoreSuite) SetupTest() {
	s.db = newTestDB(s.T())
	s.store = NewGormBillingEventHistoryStore(s.db)
	s.ctx = context.Background()
	s.f = seedTenant(s.T(), s.db)
	s.txID = uuid.New()
}

func (s *HistoryStoreSuite) appendEvent(eventType history.EventType, at time.Time, actor uuid.UUID) *history.Event {
	e, err := history.NewEvent(history.NewEventParams{
		AccountID:     s.f.AccountID,
		AgencyID:      s.f.AgencyID,
		TransactionID: s.txID,
		Type:          eventType,
		ActorID:       actor,
		OccurredAt:    at,
		Data:          history.EventData{"newStatus": "claimed"},
	})
	s.Require().NoError(err)
	s.Require().NoError(s.store.Append(s.ctx, e))
	return e
}

func (s *HistoryStoreSuite) TestTimelineIsOrderedByEventDate() {
	claimed := s.appendEvent(history.EventTransactionClaimed, testNow.Add(time.Hour), s.f.ActorID)
	created := s.appendEvent(history.EventTransactionCreated, testNow, s.f.ActorID)
	paid := s.appendEvent(history.EventPaymentReceived, testNow.Add(2*time.Hour), s.f.ActorID)

	events, err := s.store.Timeline(s.ctx, s.f.AccountID, s.txID, false)
	s.Require().NoError(err)
	s.Require().Len(events, 3)
	s.Equal(created.ID, events[0].ID)
	s.Equal(claimed.ID, events[1].ID)
	s.Equal(paid.ID, events[2].ID)
	s.Equal("claimed", events[1].EventData["newStatus"])

	events, err = s.store.Timeline(s.ctx, uuid.New(), s.txID, true)
	s.Require().NoError(err)
	s.Empty(events)
}

func (s *HistoryStoreSuite) TestAmendHidesAndTracksNotification() {
	e := s.appendEvent(history.EventTransactionCreated, testNow, s.f.ActorID)
	hidden := false
	amended, err := s.store.Amend(s.ctx, s.f.AccountID, e.ID, history.Patch{IsVisible: &hidden})
	s.Require().NoError(err)
	s.False(amended.IsVisible)

	events, err := s.store.Timeline(s.ctx, s.f.AccountID, s.txID, false)
	s.Require().NoError(err)
	s.Empty(events)
	events, err = s.store.Timeline(s.ctx, s.f.AccountID, s.txID, true)
	s.Require().NoError(err)
	s.Len(events, 1)

	sentAt := testNow.Add(time.Minute)
	_, err = s.store.Amend(s.ctx, s.f.AccountID, e.ID, history.Patch{
		Notification: &history.Notification{Sent: true, SentAt: &sentAt, Channel: "email"},
	})
	s.Require().NoError(err)

	stored, err := s.store.FindByID(s.ctx, s.f.AccountID, e.ID)
	s.Require().NoError(err)
	s.True(stored.Notification.Sent)
	s.Equal("email", stored.Notification.Channel)
	s.Equal(history.EventTransactionCreated, stored.EventType)
	s.Equal(e.EventDate, stored.EventDate)
	s.False(stored.IsVisible)
}

func (s *HistoryStoreSuite) TestAmendRejectsFrozenFields() {
	e := s.appendEvent(history.EventTransactionCreated, testNow, s.f.ActorID)
	changed := history.EventPaymentReceived
	_, err := s.store.Amend(s.ctx, s.f.AccountID, e.ID, history.Patch{EventType: &changed})
	s.ErrorIs(err, shared.ErrImmutableRecordViolation)

	_, err = s.store.Amend(s.ctx, uuid.New(), e.ID, history.Patch{})
	s.ErrorIs(err, shared.ErrNotFound)
}

func (s *HistoryStoreSuite) TestHooksRejectDirectWrites() {
	e := s.appendEvent(history.EventTransactionCreated, testNow, s.f.ActorID)
	model := models.BillingEventHistoryModel{ID: e.ID}

	err := s.db.Model(&model).Update("event_type", string(history.EventPaymentReceived)).Error
	s.ErrorIs(err, shared.ErrImmutableRecordViolation)

	err = s.db.Model(&model).Updates(map[string]any{"is_visible": false, "triggered_by": uuid.New()}).Error
	s.ErrorIs(err, shared.ErrImmutableRecordViolation)

	row := models.BillingEventHistoryModelFromDomain(e)
	row.EventData = nil
	s.ErrorIs(s.db.Save(row).Error, shared.ErrImmutableRecordViolation)

	err = s.db.Where("id = ?", e.ID).Delete(&models.BillingEventHistoryModel{}).Error
	s.ErrorIs(err, shared.ErrDeleteForbidden)

	stored, err := s.store.FindByID(s.ctx, s.f.AccountID, e.ID)
	s.Require().NoError(err)
	s.Equal(history.EventTransactionCreated, stored.EventType)
	s.True(stored.IsVisible)
}

func (s *HistoryStoreSuite) TestDeleteIsForbidden() {
	e := s.appendEvent(history.EventTransactionCreated, testNow, s.f.ActorID)

	s.ErrorIs(s.store.Delete(s.ctx, s.f.AccountID, e.ID), shared.ErrDeleteForbidden)
	s.ErrorIs(s.store.Delete(s.ctx, uuid.New(), e.ID), shared.ErrNotFound)

	_, err := s.store.FindByID(s.ctx, s.f.AccountID, e.ID)
	s.NoError(err)
}

func (s *HistoryStoreSuite) TestAppendNeverOverwrites() {
	e := s.appendEvent(history.EventTransactionCreated, testNow, s.f.ActorID)
	s.ErrorIs(s.store.Append(s.ctx, e), shared.ErrAlreadyExists)
}

func (s *HistoryStoreSuite) TestActivitySummaryAndUserActivity() {
	other := uuid.New()
	s.appendEvent(history.EventTransactionCreated, testNow, s.f.ActorID)
	s.appendEvent(history.EventTransactionClaimed, testNow.Add(time.Hour), s.f.ActorID)
	s.appendEvent(history.EventTransactionClaimed, testNow.Add(2*time.Hour), other)
	hiddenEvent := s.appendEvent(history.EventStatusChanged, testNow.Add(3*time.Hour), s.f.ActorID)
	hidden := false
	_, err := s.store.Amend(s.ctx, s.f.AccountID, hiddenEvent.ID, history.Patch{IsVisible: &hidden})
	s.Require().NoError(err)

	summary, err := s.store.ActivitySummary(s.ctx, history.ScopeQuery{AccountID: s.f.AccountID, AgencyID: &s.f.AgencyID})
	s.Require().NoError(err)
	s.Equal(map[history.EventType]int64{
		history.EventTransactionCreated: 1,
		history.EventTransactionClaimed: 2,
	}, summary)

	windowed, err := s.store.ActivitySummary(s.ctx, history.ScopeQuery{
		AccountID: s.f.AccountID,
		Window:    shared.TimeWindow{From: testNow.Add(30 * time.Minute), To: testNow.Add(90 * time.Minute)},
	})
	s.Require().NoError(err)
	s.Equal(map[history.EventType]int64{history.EventTransactionClaimed: 1}, windowed)

	activity, err := s.store.UserActivity(s.ctx, history.UserActivityQuery{
		ScopeQuery: history.ScopeQuery{AccountID: s.f.AccountID},
		UserID:     s.f.ActorID,
		Limit:      10,
	})
	s.Require().NoError(err)
	s.Require().Len(activity, 2)
	s.Equal(history.EventTransactionClaimed, activity[0].EventType)
	s.Equal(history.EventTransactionCreated, activity[1].EventType)
}

func (s *HistoryStoreSuite) TestAgencyScopeCoversSubAgencies() {
	agencyModel := func(parent *uuid.UUID) uuid.UUID {
		m := models.AgencyModel{AccountID: s.f.AccountID, ParentAgencyID: parent, Name: "Desk", IsActive: true}
		m.ID = uuid.New()
		s.Require().NoError(s.db.Create(&m).Error)
		return m.ID
	}
	desk := agencyModel(&s.f.AgencyID)
	sibling := agencyModel(nil)

	appendFor := func(agencyID uuid.UUID, eventType history.EventType) {
		e, err := history.NewEvent(history.NewEventParams{
			AccountID:     s.f.AccountID,
			AgencyID:      agencyID,
			TransactionID: uuid.New(),
			Type:          eventType,
			ActorID:       s.f.ActorID,
			OccurredAt:    testNow,
		})
		s.Require().NoError(err)
		s.Require().NoError(s.store.Append(s.ctx, e))
	}
	appendFor(s.f.AgencyID, history.EventTransactionCreated)
	appendFor(desk, history.EventTransactionClaimed)
	appendFor(sibling, history.EventTransactionCancelled)

	summary, err := s.store.ActivitySummary(s.ctx, history.ScopeQuery{AccountID: s.f.AccountID, AgencyID: &s.f.AgencyID})
	s.Require().NoError(err)
	s.Equal(map[history.EventType]int64{
		history.EventTransactionCreated: 1,
		history.EventTransactionClaimed: 1,
	}, summary)

	activity, err := s.store.UserActivity(s.ctx, history.UserActivityQuery{
		ScopeQuery: history.ScopeQuery{AccountID: s.f.AccountID, AgencyID: &desk},
		UserID:     s.f.ActorID,
	})
	s.Require().NoError(err)
	s.Require().Len(activity, 1)
	s.Equal(history.EventTransactionClaimed, activity[0].EventType)
}
