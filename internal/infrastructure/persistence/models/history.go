package models

import (
	"time"

	"github.com/edubill/backend/internal/domain/history"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BillingEventHistoryModel is the persistence model for an audit record.
// The hooks below keep gorm from rewriting frozen columns or deleting rows;
// the postgres trigger in the migrations enforces the same at storage level.
type BillingEventHistoryModel struct {
	ID                   uuid.UUID         `gorm:"type:uuid;primary_key"`
	AccountID            uuid.UUID         `gorm:"type:uuid;not null;index"`
	AgencyID             uuid.UUID         `gorm:"type:uuid;not null;index"`
	BillingTransactionID uuid.UUID         `gorm:"type:uuid;not null;index"`
	EventType            history.EventType `gorm:"type:varchar(40);not null;index"`
	EventDate            time.Time         `gorm:"not null;index"`
	EventData            datatypes.JSONMap `gorm:"type:jsonb"`
	TriggeredBy          uuid.UUID         `gorm:"type:uuid;not null;index"`
	IsVisible            bool              `gorm:"not null;default:true"`
	NotificationSent     bool              `gorm:"not null;default:false"`
	NotificationSentAt   *time.Time
	NotificationChannel  string    `gorm:"type:varchar(50)"`
	CreatedAt            time.Time `gorm:"not null;autoCreateTime:false"`
}

// TableName returns the table name for GORM
func (BillingEventHistoryModel) TableName() string {
	return "billing_event_histories"
}

// BeforeUpdate only lets through map updates restricted to the mutable columns
func (m *BillingEventHistoryModel) BeforeUpdate(tx *gorm.DB) error {
	columns, ok := tx.Statement.Dest.(map[string]any)
	if !ok {
		return history.ImmutableField("record")
	}
	for column := range columns {
		if _, allowed := history.MutableColumns[column]; !allowed {
			return history.ImmutableField(column)
		}
	}
	return nil
}

// BeforeDelete rejects every delete
func (m *BillingEventHistoryModel) BeforeDelete(tx *gorm.DB) error {
	return history.DeleteForbidden(m.ID.String())
}

// ToDomain converts the persistence model to a domain Event
func (m *BillingEventHistoryModel) ToDomain() *history.Event {
	data := history.EventData(plainMap(m.EventData))
	if data == nil {
		data = history.EventData{}
	}
	return &history.Event{
		ID:                   m.ID,
		AccountID:            m.AccountID,
		AgencyID:             m.AgencyID,
		BillingTransactionID: m.BillingTransactionID,
		EventType:            m.EventType,
		EventDate:            m.EventDate.UTC(),
		EventData:            data,
		TriggeredBy:          m.TriggeredBy,
		IsVisible:            m.IsVisible,
		Notification: history.Notification{
			Sent:    m.NotificationSent,
			SentAt:  utcPtr(m.NotificationSentAt),
			Channel: m.NotificationChannel,
		},
		CreatedAt: m.CreatedAt.UTC(),
	}
}

// BillingEventHistoryModelFromDomain creates a persistence model from a domain Event
func BillingEventHistoryModelFromDomain(e *history.Event) *BillingEventHistoryModel {
	return &BillingEventHistoryModel{
		ID:                   e.ID,
		AccountID:            e.AccountID,
		AgencyID:             e.AgencyID,
		BillingTransactionID: e.BillingTransactionID,
		EventType:            e.EventType,
		EventDate:            e.EventDate.UTC(),
		EventData:            datatypes.JSONMap(e.EventData),
		TriggeredBy:          e.TriggeredBy,
		IsVisible:            e.IsVisible,
		NotificationSent:     e.Notification.Sent,
		NotificationSentAt:   utcPtr(e.Notification.SentAt),
		NotificationChannel:  e.Notification.Channel,
		CreatedAt:            e.CreatedAt.UTC(),
	}
}

// MutableColumnValues renders the permitted part of an event as column updates
func MutableColumnValues(e *history.Event) map[string]any {
	return map[string]any{
		"is_visible":           e.IsVisible,
		"notification_sent":    e.Notification.Sent,
		"notification_sent_at": utcPtr(e.Notification.SentAt),
		"notification_channel": e.Notification.Channel,
	}
}
