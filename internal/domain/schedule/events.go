package schedule

import (
	"time"

	"github.com/edubill/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// AggregateType is the aggregate name used on schedule item events
const AggregateType = "PaymentScheduleItem"

// Event types
const (
	EventTypeItemStatusChanged = "schedule.item.status_changed"
	EventTypeItemsGenerated    = "schedule.items.generated"
)

// ItemStatusChangedEvent is raised when a schedule item leaves active
type ItemStatusChangedEvent struct {
	shared.BaseDomainEvent
	AgencyID     uuid.UUID  `json:"agency_id"`
	FromStatus   ItemStatus `json:"from_status"`
	ToStatus     ItemStatus `json:"to_status"`
	ActorID      uuid.UUID  `json:"actor_id"`
	Reason       string     `json:"reason,omitempty"`
	ReplacedByID *uuid.UUID `json:"replaced_by_id,omitempty"`
}

// NewItemStatusChangedEvent builds the event for a transition from before to after
func NewItemStatusChangedEvent(before, after *PaymentScheduleItem, actorID uuid.UUID, reason string, at time.Time) *ItemStatusChangedEvent {
	return &ItemStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeItemStatusChanged, AggregateType, after.ID, after.AccountID, at),
		AgencyID:        after.AgencyID,
		FromStatus:      before.Status,
		ToStatus:        after.Status,
		ActorID:         actorID,
		Reason:          reason,
		ReplacedByID:    after.ReplacedByID,
	}
}

// ItemsGeneratedEvent is raised when a recurring parent is expanded
type ItemsGeneratedEvent struct {
	shared.BaseDomainEvent
	ChildIDs []uuid.UUID `json:"child_ids"`
	ActorID  uuid.UUID   `json:"actor_id"`
}

// NewItemsGeneratedEvent builds the expansion event for parent
func NewItemsGeneratedEvent(parent *PaymentScheduleItem, children []*PaymentScheduleItem, actorID uuid.UUID, at time.Time) *ItemsGeneratedEvent {
	ids := make([]uuid.UUID, 0, len(children))
	for _, c := range children {
		ids = append(ids, c.ID)
	}
	return &ItemsGeneratedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeItemsGenerated, AggregateType, parent.ID, parent.AccountID, at),
		ChildIDs:        ids,
		ActorID:         actorID,
	}
}
