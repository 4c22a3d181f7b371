package history

import (
	"time"

	"github.com/edubill/backend/internal/domain/history"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// WindowRequest bounds a history query to [from, to)
type WindowRequest struct {
	From     *time.Time `form:"from" time_format:"2006-01-02"`
	To       *time.Time `form:"to" time_format:"2006-01-02"`
	AgencyID *uuid.UUID `form:"agency_id"`
}

// UserActivityRequest selects one actor's events
type UserActivityRequest struct {
	WindowRequest
	Limit int `form:"limit" binding:"omitempty,min=1,max=500"`
}

// AmendRequest carries a patch to an audit record. Only is_visible and
// notification are writable; any other field is refused.
type AmendRequest struct {
	AccountID            *uuid.UUID            `json:"account_id"`
	AgencyID             *uuid.UUID            `json:"agency_id"`
	BillingTransactionID *uuid.UUID            `json:"billing_transaction_id"`
	EventType            *string               `json:"event_type"`
	EventDate            *time.Time            `json:"event_date"`
	EventData            map[string]any        `json:"event_data"`
	TriggeredBy          *uuid.UUID            `json:"triggered_by"`
	IsVisible            *bool                 `json:"is_visible"`
	Notification         *NotificationResponse `json:"notification"`
}

// NotificationResponse is the delivery tracking of an event
type NotificationResponse struct {
	Sent    bool       `json:"sent"`
	SentAt  *time.Time `json:"sent_at,omitempty"`
	Channel string     `json:"channel,omitempty"`
}

// EventResponse represents an audit record in API responses
type EventResponse struct {
	ID                   uuid.UUID            `json:"id"`
	AccountID            uuid.UUID            `json:"account_id"`
	AgencyID             uuid.UUID            `json:"agency_id"`
	BillingTransactionID uuid.UUID            `json:"billing_transaction_id"`
	EventType            string               `json:"event_type"`
	EventDate            time.Time            `json:"event_date"`
	EventData            map[string]any       `json:"event_data"`
	TriggeredBy          uuid.UUID            `json:"triggered_by"`
	IsVisible            bool                 `json:"is_visible"`
	Notification         NotificationResponse `json:"notification"`
	CreatedAt            time.Time            `json:"created_at"`
}

// ActivitySummaryResponse counts visible events per type
type ActivitySummaryResponse struct {
	From   *time.Time       `json:"from,omitempty"`
	To     *time.Time       `json:"to,omitempty"`
	Total  int64            `json:"total"`
	Counts map[string]int64 `json:"counts"`
}

// ToEventResponse converts a domain record to a response
func ToEventResponse(e *history.Event) EventResponse {
	return EventResponse{
		ID:                   e.ID,
		AccountID:            e.AccountID,
		AgencyID:             e.AgencyID,
		BillingTransactionID: e.BillingTransactionID,
		EventType:            string(e.EventType),
		EventDate:            e.EventDate,
		EventData:            e.EventData,
		TriggeredBy:          e.TriggeredBy,
		IsVisible:            e.IsVisible,
		Notification: NotificationResponse{
			Sent:    e.Notification.Sent,
			SentAt:  e.Notification.SentAt,
			Channel: e.Notification.Channel,
		},
		CreatedAt: e.CreatedAt,
	}
}

// ToEventResponses converts a slice of records
func ToEventResponses(events []history.Event) []EventResponse {
	return lo.Map(events, func(e history.Event, _ int) EventResponse {
		return ToEventResponse(&e)
	})
}

func (r AmendRequest) toPatch() history.Patch {
	p := history.Patch{
		AccountID:            r.AccountID,
		AgencyID:             r.AgencyID,
		BillingTransactionID: r.BillingTransactionID,
		EventDate:            r.EventDate,
		TriggeredBy:          r.TriggeredBy,
		IsVisible:            r.IsVisible,
	}
	if r.EventType != nil {
		t := history.EventType(*r.EventType)
		p.EventType = &t
	}
	if r.EventData != nil {
		p.EventData = history.EventData(r.EventData)
	}
	if r.Notification != nil {
		p.Notification = &history.Notification{
			Sent:    r.Notification.Sent,
			SentAt:  r.Notification.SentAt,
			Channel: r.Notification.Channel,
		}
	}
	return p
}
