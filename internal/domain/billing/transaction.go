// Package billing models billing transactions: realized receivable and
// payable entries together with the state machine that governs them.
package billing

import (
	"strings"
	"time"

	"github.com/edubill/backend/internal/domain/agency"
	"github.com/edubill/backend/internal/domain/history"
	"github.com/edubill/backend/internal/domain/schedule"
	"github.com/edubill/backend/internal/domain/shared"
	"github.com/edubill/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

const entityName = "billing transaction"

// BillingTransaction is a ledger entry derived from a schedule item or entered manually
type BillingTransaction struct {
	shared.AgencyAggregateRoot
	PaymentScheduleItemID *uuid.UUID
	DebtorType            DebtorType
	DebtorID              uuid.UUID
	Amount                valueobject.Money
	TransactionType       TransactionType
	Status                TransactionStatus
	DueDate               time.Time
	ClaimedDate           *time.Time
	PaidDate              *time.Time
	PaymentMethod         string
	Description           string
	Approvals             Approvals
	Reconciliation        Reconciliation
	Metadata              Metadata
}

// Outcome is the result of a pure operation: the next state, the audit
// record describing it and the compare-and-swap token the write must match.
type Outcome struct {
	Transaction     *BillingTransaction
	Event           *history.Event
	ExpectedStatus  TransactionStatus
	ExpectedVersion int
}

// Changed reports whether the operation produced anything to persist
func (o *Outcome) Changed() bool {
	return o.Event != nil
}

// NewTransactionParams carries the attributes of a manually created transaction
type NewTransactionParams struct {
	AccountID             uuid.UUID
	AgencyID              uuid.UUID
	PaymentScheduleItemID *uuid.UUID
	DebtorType            DebtorType
	DebtorID              uuid.UUID
	Amount                valueobject.Money
	TransactionType       TransactionType
	DueDate               time.Time
	PaymentMethod         string
	Description           string
	CreatedBy             uuid.UUID
}

// New creates a pending transaction and its transaction_created record
func New(p NewTransactionParams, now time.Time) (*Outcome, error) {
	if p.AccountID == uuid.Nil {
		return nil, shared.NewValidationError("accountId", "is required")
	}
	if p.AgencyID == uuid.Nil {
		return nil, shared.NewValidationError("agencyId", "is required")
	}
	if p.CreatedBy == uuid.Nil {
		return nil, shared.NewValidationError("actorId", "is required")
	}
	if !p.DebtorType.IsValid() {
		return nil, shared.NewValidationError("debtorType", "must be agency or student")
	}
	if p.DebtorID == uuid.Nil {
		return nil, shared.NewValidationError("debtorId", "is required")
	}
	if !p.TransactionType.IsValid() {
		return nil, shared.NewValidationError("transactionType", "must be one of invoice, payment, refund, adjustment, penalty")
	}
	if err := validateSignedAmount(p.Amount); err != nil {
		return nil, err
	}
	if p.DueDate.IsZero() {
		return nil, shared.NewValidationError("dueDate", "is required")
	}

	tx := &BillingTransaction{
		AgencyAggregateRoot:   shared.NewAgencyAggregateRoot(p.AccountID, p.AgencyID, p.CreatedBy, now),
		PaymentScheduleItemID: p.PaymentScheduleItemID,
		DebtorType:            p.DebtorType,
		DebtorID:              p.DebtorID,
		Amount:                p.Amount,
		TransactionType:       p.TransactionType,
		Status:                StatusPending,
		DueDate:               schedule.DateOnly(p.DueDate),
		PaymentMethod:         strings.TrimSpace(p.PaymentMethod),
		Description:           strings.TrimSpace(p.Description),
		Approvals:             Approvals{},
	}

	data := tx.baseData()
	data["newStatus"] = string(StatusPending)
	data["dueDate"] = formatDate(tx.DueDate)
	data["debtorType"] = string(tx.DebtorType)
	data["debtorId"] = tx.DebtorID.String()
	data["transactionType"] = string(tx.TransactionType)
	if tx.PaymentScheduleItemID != nil {
		data["paymentScheduleItemId"] = tx.PaymentScheduleItemID.String()
	}
	ev, err := tx.newEvent(history.EventTransactionCreated, p.CreatedBy, now, data)
	if err != nil {
		return nil, err
	}
	return &Outcome{Transaction: tx, Event: ev}, nil
}

// NewFromScheduleItem realizes a due schedule item as a pending transaction.
// Commission items are owed by the agency, everything else by the student
// on the offer letter.
func NewFromScheduleItem(item *schedule.PaymentScheduleItem, offer *agency.OfferLetter, actorID uuid.UUID, now time.Time) (*Outcome, error) {
	if !item.Billable() {
		return nil, shared.NewInvalidTransition("payment schedule item", string(item.Status), "billed")
	}

	debtorType, debtorID := DebtorStudent, uuid.Nil
	if item.ItemType == schedule.ItemTypeCommission {
		debtorType, debtorID = DebtorAgency, item.AgencyID
	} else {
		if offer == nil {
			return nil, shared.NewValidationError("offerLetterId", "offer letter is required to bill a student")
		}
		debtorID = offer.StudentID
	}

	amount := item.ScheduledAmount
	txType := TypeInvoice
	switch item.ItemType {
	case schedule.ItemTypePenalty:
		txType = TypePenalty
	case schedule.ItemTypeRefund:
		txType = TypeRefund
		amount = amount.Abs().Negate()
	}

	itemID := item.ID
	description := item.Description
	if description == "" {
		description = string(item.ItemType)
	}
	return New(NewTransactionParams{
		AccountID:             item.AccountID,
		AgencyID:              item.AgencyID,
		PaymentScheduleItemID: &itemID,
		DebtorType:            debtorType,
		DebtorID:              debtorID,
		Amount:                amount,
		TransactionType:       txType,
		DueDate:               item.ScheduledDueDate,
		Description:           description,
		CreatedBy:             actorID,
	}, now)
}

func (t *BillingTransaction) clone() *BillingTransaction {
	c := *t
	c.ClearDomainEvents()
	c.Approvals = make(Approvals, len(t.Approvals))
	copy(c.Approvals, t.Approvals)
	return &c
}

func (t *BillingTransaction) baseData() history.EventData {
	return history.EventData{
		"amount":   t.Amount.Amount().String(),
		"currency": string(t.Amount.Currency()),
	}
}

func (t *BillingTransaction) newEvent(eventType history.EventType, actorID uuid.UUID, now time.Time, data history.EventData) (*history.Event, error) {
	return history.NewEvent(history.NewEventParams{
		AccountID:     t.AccountID,
		AgencyID:      t.AgencyID,
		TransactionID: t.ID,
		Type:          eventType,
		ActorID:       actorID,
		OccurredAt:    now,
		Data:          data,
	})
}

func validateSignedAmount(m valueobject.Money) error {
	if !m.Currency().IsValid() {
		return shared.NewValidationError("signedAmount.currency", "is not a supported currency")
	}
	if m.IsZero() {
		return shared.NewValidationError("signedAmount", "must not be zero")
	}
	return nil
}

func formatDate(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
