package history

import (
	"fmt"
	"time"

	"github.com/edubill/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Patch describes a requested change to a stored record. Only IsVisible and
// Notification are permitted; every other field is frozen.
type Patch struct {
	AccountID            *uuid.UUID
	AgencyID             *uuid.UUID
	BillingTransactionID *uuid.UUID
	EventType            *EventType
	EventDate            *time.Time
	EventData            EventData
	TriggeredBy          *uuid.UUID

	IsVisible    *bool
	Notification *Notification
}

// Revise applies p to a copy of e, failing with ImmutableRecordViolation on
// the first frozen field the patch touches.
func Revise(e *Event, p Patch) (*Event, error) {
	switch {
	case p.AccountID != nil:
		return nil, ImmutableField("accountId")
	case p.AgencyID != nil:
		return nil, ImmutableField("agencyId")
	case p.BillingTransactionID != nil:
		return nil, ImmutableField("billingTransactionId")
	case p.EventType != nil:
		return nil, ImmutableField("eventType")
	case p.EventDate != nil:
		return nil, ImmutableField("eventDate")
	case p.EventData != nil:
		return nil, ImmutableField("eventData")
	case p.TriggeredBy != nil:
		return nil, ImmutableField("triggeredBy")
	}
	next := *e
	if p.IsVisible != nil {
		next.IsVisible = *p.IsVisible
	}
	if p.Notification != nil {
		n := *p.Notification
		if n.SentAt != nil {
			at := n.SentAt.UTC()
			n.SentAt = &at
		}
		next.Notification = n
	}
	return &next, nil
}

// MutableColumns are the storage columns a record may ever have rewritten
var MutableColumns = map[string]struct{}{
	"is_visible":           {},
	"notification_sent":    {},
	"notification_sent_at": {},
	"notification_channel": {},
}

// ImmutableField reports an attempted change to a frozen audit field
func ImmutableField(field string) error {
	return &shared.DomainError{
		Code:    shared.CodeImmutableRecordViolation,
		Message: fmt.Sprintf("billing event history field %s is immutable", field),
		Details: map[string]any{"entity": "billing event history", "field": field},
	}
}

// DeleteForbidden reports an attempted deletion of an audit record
func DeleteForbidden(id string) error {
	return &shared.DomainError{
		Code:    shared.CodeDeleteForbidden,
		Message: "billing event history records cannot be deleted",
		Details: map[string]any{"entity": "billing event history", "id": id},
	}
}
