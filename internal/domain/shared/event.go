package shared

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent is a fact about a committed change, addressed by the aggregate
// that produced it and the account that owns it
type DomainEvent interface {
	EventID() uuid.UUID
	EventType() string
	OccurredAt() time.Time
	AggregateID() uuid.UUID
	AggregateType() string
	AccountID() uuid.UUID
}

// BaseDomainEvent implements DomainEvent for embedding
type BaseDomainEvent struct {
	ID             uuid.UUID `json:"id"`
	Type           string    `json:"type"`
	Timestamp      time.Time `json:"timestamp"`
	AggID          uuid.UUID `json:"aggregate_id"`
	AggType        string    `json:"aggregate_type"`
	AccountIDValue uuid.UUID `json:"account_id"`
}

func (e *BaseDomainEvent) EventID() uuid.UUID     { return e.ID }
func (e *BaseDomainEvent) EventType() string      { return e.Type }
func (e *BaseDomainEvent) OccurredAt() time.Time  { return e.Timestamp }
func (e *BaseDomainEvent) AggregateID() uuid.UUID { return e.AggID }
func (e *BaseDomainEvent) AggregateType() string  { return e.AggType }
func (e *BaseDomainEvent) AccountID() uuid.UUID   { return e.AccountIDValue }

// NewBaseDomainEvent stamps an event raised by aggregate aggID at at
func NewBaseDomainEvent(eventType, aggType string, aggID, accountID uuid.UUID, at time.Time) BaseDomainEvent {
	return BaseDomainEvent{
		ID:             NewID(),
		Type:           eventType,
		Timestamp:      at.UTC(),
		AggID:          aggID,
		AggType:        aggType,
		AccountIDValue: accountID,
	}
}
