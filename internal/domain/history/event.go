// Package history is the append-only audit trail of billing transaction
// lifecycle events.
package history

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/edubill/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// EventType is the closed set of audited lifecycle events
type EventType string

const (
	EventTransactionCreated    EventType = "transaction_created"
	EventTransactionUpdated    EventType = "transaction_updated"
	EventStatusChanged         EventType = "status_changed"
	EventTransactionClaimed    EventType = "transaction_claimed"
	EventPaymentReceived       EventType = "payment_received"
	EventTransactionDisputed   EventType = "transaction_disputed"
	EventDisputeResolved       EventType = "dispute_resolved"
	EventTransactionCancelled  EventType = "transaction_cancelled"
	EventTransactionRefunded   EventType = "transaction_refunded"
	EventTransactionApproved   EventType = "transaction_approved"
	EventTransactionReconciled EventType = "transaction_reconciled"
	EventTransactionOverdue    EventType = "transaction_overdue"
)

// AllEventTypes lists every event type in declaration order
var AllEventTypes = []EventType{
	EventTransactionCreated,
	EventTransactionUpdated,
	EventStatusChanged,
	EventTransactionClaimed,
	EventPaymentReceived,
	EventTransactionDisputed,
	EventDisputeResolved,
	EventTransactionCancelled,
	EventTransactionRefunded,
	EventTransactionApproved,
	EventTransactionReconciled,
	EventTransactionOverdue,
}

// IsValid checks the type is part of the enumeration
func (t EventType) IsValid() bool {
	for _, et := range AllEventTypes {
		if et == t {
			return true
		}
	}
	return false
}

// EventData is the free-form payload of an event
type EventData map[string]any

// Value implements driver.Valuer for database storage
func (d EventData) Value() (driver.Value, error) {
	if d == nil {
		return "{}", nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for database retrieval
func (d *EventData) Scan(value any) error {
	if value == nil {
		*d = EventData{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("type assertion to []byte or string failed")
	}
	return json.Unmarshal(bytes, d)
}

// Notification tracks delivery of the event to subscribers. It is the only
// substructure that may change after the record is written.
type Notification struct {
	Sent    bool       `json:"sent"`
	SentAt  *time.Time `json:"sentAt,omitempty"`
	Channel string     `json:"channel,omitempty"`
}

// Event is one immutable audit record
type Event struct {
	ID                   uuid.UUID
	AccountID            uuid.UUID
	AgencyID             uuid.UUID
	BillingTransactionID uuid.UUID
	EventType            EventType
	EventDate            time.Time
	EventData            EventData
	TriggeredBy          uuid.UUID
	IsVisible            bool
	Notification         Notification
	CreatedAt            time.Time
}

// GetAccountID returns the owning account
func (e *Event) GetAccountID() uuid.UUID { return e.AccountID }

// GetAgencyID returns the owning agency
func (e *Event) GetAgencyID() uuid.UUID { return e.AgencyID }

// NewEventParams carries the attributes of a new record
type NewEventParams struct {
	AccountID     uuid.UUID
	AgencyID      uuid.UUID
	TransactionID uuid.UUID
	Type          EventType
	ActorID       uuid.UUID
	OccurredAt    time.Time
	Data          EventData
}

// NewEvent builds a visible, not-yet-notified record. IDs are UUIDv7 so
// records written in the same instant still sort in creation order.
func NewEvent(p NewEventParams) (*Event, error) {
	if p.AccountID == uuid.Nil {
		return nil, shared.NewValidationError("accountId", "is required")
	}
	if p.TransactionID == uuid.Nil {
		return nil, shared.NewValidationError("billingTransactionId", "is required")
	}
	if p.ActorID == uuid.Nil {
		return nil, shared.NewValidationError("triggeredBy", "is required")
	}
	if !p.Type.IsValid() {
		return nil, shared.NewValidationError("eventType", fmt.Sprintf("unknown event type %q", p.Type))
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate event id: %w", err)
	}
	data := p.Data
	if data == nil {
		data = EventData{}
	}
	at := p.OccurredAt.UTC()
	return &Event{
		ID:                   id,
		AccountID:            p.AccountID,
		AgencyID:             p.AgencyID,
		BillingTransactionID: p.TransactionID,
		EventType:            p.Type,
		EventDate:            at,
		EventData:            data,
		TriggeredBy:          p.ActorID,
		IsVisible:            true,
		CreatedAt:            at,
	}, nil
}
