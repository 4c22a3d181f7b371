package history

import (
	"github.com/edubill/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// EventTypeRecorded is published after an audit record is committed
const EventTypeRecorded = "billing.event.recorded"

// RecordedEvent announces a committed audit record to in-process subscribers
type RecordedEvent struct {
	shared.BaseDomainEvent
	RecordID      uuid.UUID `json:"record_id"`
	TransactionID uuid.UUID `json:"transaction_id"`
	AgencyID      uuid.UUID `json:"agency_id"`
	HistoryType   EventType `json:"history_type"`
}

// NewRecordedEvent wraps e for publication on the event bus
func NewRecordedEvent(e *Event) *RecordedEvent {
	return &RecordedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeRecorded, "BillingEventHistory", e.ID, e.AccountID, e.EventDate),
		RecordID:        e.ID,
		TransactionID:   e.BillingTransactionID,
		AgencyID:        e.AgencyID,
		HistoryType:     e.EventType,
	}
}
