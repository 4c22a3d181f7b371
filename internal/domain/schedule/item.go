// Package schedule models payment schedule items: planned charges and
// commissions that have not been realized as billing transactions yet.
package schedule

import (
	"strings"
	"time"

	"github.com/edubill/backend/internal/domain/shared"
	"github.com/edubill/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

const (
	entityName = "payment schedule item"

	defaultPriority = 5
	maxPriority     = 10
)

// ItemType classifies what a schedule item charges for
type ItemType string

const (
	ItemTypeTuition    ItemType = "tuition"
	ItemTypeCommission ItemType = "commission"
	ItemTypeFee        ItemType = "fee"
	ItemTypeDeposit    ItemType = "deposit"
	ItemTypePenalty    ItemType = "penalty"
	ItemTypeRefund     ItemType = "refund"
)

// IsValid checks if the item type is valid
func (t ItemType) IsValid() bool {
	switch t {
	case ItemTypeTuition, ItemTypeCommission, ItemTypeFee, ItemTypeDeposit, ItemTypePenalty, ItemTypeRefund:
		return true
	}
	return false
}

// ItemStatus is the lifecycle state of a schedule item
type ItemStatus string

const (
	ItemStatusActive    ItemStatus = "active"
	ItemStatusRetired   ItemStatus = "retired"
	ItemStatusReplaced  ItemStatus = "replaced"
	ItemStatusCancelled ItemStatus = "cancelled"
	ItemStatusCompleted ItemStatus = "completed"
)

// IsValid checks if the status is valid
func (s ItemStatus) IsValid() bool {
	switch s {
	case ItemStatusActive, ItemStatusRetired, ItemStatusReplaced, ItemStatusCancelled, ItemStatusCompleted:
		return true
	}
	return false
}

// IsTerminal returns true for every state other than active
func (s ItemStatus) IsTerminal() bool {
	return s != ItemStatusActive
}

// PaymentScheduleItem is a scheduled obligation drawn from an offer letter
type PaymentScheduleItem struct {
	shared.AgencyAggregateRoot
	OfferLetterID    uuid.UUID
	ItemType         ItemType
	MilestoneType    string
	Description      string
	ScheduledAmount  valueobject.Money
	ScheduledDueDate time.Time
	Priority         int
	IsRecurring      bool
	RecurringDetails *RecurringDetails
	Status           ItemStatus
	IsActive         bool
	ParentItemID     *uuid.UUID
	OccurrenceIndex  int

	ReplacedByID      *uuid.UUID
	ReplacementReason string
	RetiredAt         *time.Time
	RetiredBy         *uuid.UUID
	RetirementReason  string
	CompletedAt       *time.Time
	CompletedBy       *uuid.UUID
}

// NewItemParams carries the attributes of a new schedule item
type NewItemParams struct {
	AccountID     uuid.UUID
	AgencyID      uuid.UUID
	OfferLetterID uuid.UUID
	ItemType      ItemType
	MilestoneType string
	Description   string
	Amount        valueobject.Money
	DueDate       time.Time
	Priority      int
	IsRecurring   bool
	Recurring     *RecurringDetails
	ParentItemID  *uuid.UUID
	CreatedBy     uuid.UUID
}

// NewPaymentScheduleItem validates params and creates an active item.
// Cross-entity ownership is the scope guard's job and is not checked here.
func NewPaymentScheduleItem(p NewItemParams, now time.Time) (*PaymentScheduleItem, error) {
	if p.AccountID == uuid.Nil {
		return nil, shared.NewValidationError("accountId", "is required")
	}
	if p.AgencyID == uuid.Nil {
		return nil, shared.NewValidationError("agencyId", "is required")
	}
	if p.OfferLetterID == uuid.Nil {
		return nil, shared.NewValidationError("offerLetterId", "is required")
	}
	if p.CreatedBy == uuid.Nil {
		return nil, shared.NewValidationError("actorId", "is required")
	}
	if !p.ItemType.IsValid() {
		return nil, shared.NewValidationError("itemType", "must be one of tuition, commission, fee, deposit, penalty, refund")
	}
	if err := validateAmount(p.Amount); err != nil {
		return nil, err
	}
	if p.DueDate.IsZero() {
		return nil, shared.NewValidationError("scheduledDueDate", "is required")
	}
	priority, err := normalizePriority(p.Priority)
	if err != nil {
		return nil, err
	}
	due := DateOnly(p.DueDate)

	var recurring *RecurringDetails
	if p.IsRecurring {
		if p.Recurring == nil {
			return nil, shared.NewValidationError("recurringDetails", "is required for recurring items")
		}
		if err := p.Recurring.Validate(due); err != nil {
			return nil, err
		}
		recurring = p.Recurring.normalized()
	} else if p.Recurring != nil {
		return nil, shared.NewValidationError("recurringDetails", "is only allowed on recurring items")
	}

	item := &PaymentScheduleItem{
		AgencyAggregateRoot: shared.NewAgencyAggregateRoot(p.AccountID, p.AgencyID, p.CreatedBy, now),
		OfferLetterID:       p.OfferLetterID,
		ItemType:            p.ItemType,
		MilestoneType:       strings.TrimSpace(p.MilestoneType),
		Description:         strings.TrimSpace(p.Description),
		ScheduledAmount:     p.Amount,
		ScheduledDueDate:    due,
		Priority:            priority,
		IsRecurring:         p.IsRecurring,
		RecurringDetails:    recurring,
		Status:              ItemStatusActive,
		IsActive:            true,
		ParentItemID:        p.ParentItemID,
	}
	return item, nil
}

// Billable reports whether the item may produce a billing transaction
func (i *PaymentScheduleItem) Billable() bool {
	return i.Status == ItemStatusActive && i.IsActive
}

// Retire moves an active item to retired. A reason is mandatory.
func (i *PaymentScheduleItem) Retire(actorID uuid.UUID, reason string, now time.Time) (*PaymentScheduleItem, error) {
	if err := i.requireActive(ItemStatusRetired); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, shared.NewValidationError("reason", "is required to retire an item")
	}
	next := i.close(ItemStatusRetired, actorID, now)
	at := now.UTC()
	next.RetiredAt = &at
	next.RetiredBy = &actorID
	next.RetirementReason = reason
	next.AddDomainEvent(NewItemStatusChangedEvent(i, next, actorID, reason, now))
	return next, nil
}

// Replace marks an active item as superseded by newItemID. The replacement
// must already exist; this does not create it.
func (i *PaymentScheduleItem) Replace(newItemID uuid.UUID, reason string, actorID uuid.UUID, now time.Time) (*PaymentScheduleItem, error) {
	if err := i.requireActive(ItemStatusReplaced); err != nil {
		return nil, err
	}
	if newItemID == uuid.Nil {
		return nil, shared.NewValidationError("newItemId", "is required")
	}
	if newItemID == i.ID {
		return nil, shared.NewValidationError("newItemId", "an item cannot replace itself")
	}
	next := i.close(ItemStatusReplaced, actorID, now)
	next.ReplacedByID = &newItemID
	next.ReplacementReason = strings.TrimSpace(reason)
	next.AddDomainEvent(NewItemStatusChangedEvent(i, next, actorID, next.ReplacementReason, now))
	return next, nil
}

// Complete marks an active item as fulfilled
func (i *PaymentScheduleItem) Complete(actorID uuid.UUID, now time.Time) (*PaymentScheduleItem, error) {
	if err := i.requireActive(ItemStatusCompleted); err != nil {
		return nil, err
	}
	next := i.close(ItemStatusCompleted, actorID, now)
	at := now.UTC()
	next.CompletedAt = &at
	next.CompletedBy = &actorID
	next.AddDomainEvent(NewItemStatusChangedEvent(i, next, actorID, "", now))
	return next, nil
}

// Cancel moves an active item to cancelled, recording the reason in the retirement fields
func (i *PaymentScheduleItem) Cancel(actorID uuid.UUID, reason string, now time.Time) (*PaymentScheduleItem, error) {
	if err := i.requireActive(ItemStatusCancelled); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, shared.NewValidationError("reason", "is required to cancel an item")
	}
	next := i.close(ItemStatusCancelled, actorID, now)
	at := now.UTC()
	next.RetiredAt = &at
	next.RetiredBy = &actorID
	next.RetirementReason = reason
	next.AddDomainEvent(NewItemStatusChangedEvent(i, next, actorID, reason, now))
	return next, nil
}

// ItemUpdate lists editable attributes; nil fields are left unchanged
type ItemUpdate struct {
	OfferLetterID    *uuid.UUID
	ItemType         *ItemType
	MilestoneType    *string
	Description      *string
	ScheduledAmount  *valueobject.Money
	ScheduledDueDate *time.Time
	Priority         *int
}

// ApplyUpdate returns a copy with the update applied. When the item is no
// longer active and has already been billed, amount, item type and offer
// letter are frozen.
func (i *PaymentScheduleItem) ApplyUpdate(u ItemUpdate, billed bool, actorID uuid.UUID, now time.Time) (*PaymentScheduleItem, []string, error) {
	frozen := i.Status != ItemStatusActive && billed
	next := i.clone()
	var changed []string

	if u.ScheduledAmount != nil && !u.ScheduledAmount.Equals(i.ScheduledAmount) {
		if frozen {
			return nil, nil, shared.NewFieldImmutable(entityName, "scheduledAmount", "item is "+string(i.Status)+" and already billed")
		}
		if err := validateAmount(*u.ScheduledAmount); err != nil {
			return nil, nil, err
		}
		next.ScheduledAmount = *u.ScheduledAmount
		changed = append(changed, "scheduledAmount")
	}
	if u.ItemType != nil && *u.ItemType != i.ItemType {
		if frozen {
			return nil, nil, shared.NewFieldImmutable(entityName, "itemType", "item is "+string(i.Status)+" and already billed")
		}
		if !u.ItemType.IsValid() {
			return nil, nil, shared.NewValidationError("itemType", "must be one of tuition, commission, fee, deposit, penalty, refund")
		}
		next.ItemType = *u.ItemType
		changed = append(changed, "itemType")
	}
	if u.OfferLetterID != nil && *u.OfferLetterID != i.OfferLetterID {
		if frozen {
			return nil, nil, shared.NewFieldImmutable(entityName, "offerLetterId", "item is "+string(i.Status)+" and already billed")
		}
		if *u.OfferLetterID == uuid.Nil {
			return nil, nil, shared.NewValidationError("offerLetterId", "is required")
		}
		next.OfferLetterID = *u.OfferLetterID
		changed = append(changed, "offerLetterId")
	}
	if u.MilestoneType != nil && strings.TrimSpace(*u.MilestoneType) != i.MilestoneType {
		next.MilestoneType = strings.TrimSpace(*u.MilestoneType)
		changed = append(changed, "milestoneType")
	}
	if u.Description != nil && strings.TrimSpace(*u.Description) != i.Description {
		next.Description = strings.TrimSpace(*u.Description)
		changed = append(changed, "description")
	}
	if u.ScheduledDueDate != nil {
		if u.ScheduledDueDate.IsZero() {
			return nil, nil, shared.NewValidationError("scheduledDueDate", "is required")
		}
		if due := DateOnly(*u.ScheduledDueDate); !due.Equal(i.ScheduledDueDate) {
			next.ScheduledDueDate = due
			changed = append(changed, "scheduledDueDate")
		}
	}
	if u.Priority != nil && *u.Priority != i.Priority {
		p, err := normalizePriority(*u.Priority)
		if err != nil {
			return nil, nil, err
		}
		next.Priority = p
		changed = append(changed, "priority")
	}

	if len(changed) == 0 {
		return i, nil, nil
	}
	next.MarkUpdatedBy(actorID)
	next.Touch(now)
	return next, changed, nil
}

func (i *PaymentScheduleItem) requireActive(target ItemStatus) error {
	if i.Status != ItemStatusActive {
		return shared.NewInvalidTransition(entityName, string(i.Status), string(target))
	}
	return nil
}

func (i *PaymentScheduleItem) close(status ItemStatus, actorID uuid.UUID, now time.Time) *PaymentScheduleItem {
	next := i.clone()
	next.Status = status
	next.IsActive = false
	next.MarkUpdatedBy(actorID)
	next.Touch(now)
	return next
}

func (i *PaymentScheduleItem) clone() *PaymentScheduleItem {
	c := *i
	c.ClearDomainEvents()
	if i.RecurringDetails != nil {
		c.RecurringDetails = i.RecurringDetails.normalized()
	}
	return &c
}

func validateAmount(m valueobject.Money) error {
	if !m.Currency().IsValid() {
		return shared.NewValidationError("scheduledAmount.currency", "is not a supported currency")
	}
	if !m.IsPositive() {
		return shared.NewValidationError("scheduledAmount", "must be greater than zero")
	}
	return nil
}

func normalizePriority(p int) (int, error) {
	if p == 0 {
		return defaultPriority, nil
	}
	if p < 1 || p > maxPriority {
		return 0, shared.NewValidationError("priority", "must be between 1 and 10")
	}
	return p, nil
}

// DateOnly truncates t to midnight UTC of its UTC calendar day
func DateOnly(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
