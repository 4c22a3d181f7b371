package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/edubill/backend/internal/domain/history"
	"github.com/edubill/backend/internal/domain/shared"
	"github.com/edubill/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// StatusOptions carries the optional inputs of a generic status update
type StatusOptions struct {
	Date          *time.Time
	PaymentMethod string
	Reason        string
}

// UpdateStatus moves the transaction to target. Targets with a dedicated
// operation are routed through it so their guards and side effects apply.
func (t *BillingTransaction) UpdateStatus(actorID uuid.UUID, target TransactionStatus, opts StatusOptions, now time.Time) (*Outcome, error) {
	if !target.IsValid() {
		return nil, shared.NewValidationError("status", fmt.Sprintf("unknown status %q", target))
	}
	switch target {
	case StatusClaimed:
		return t.Claim(actorID, opts.Date, now)
	case StatusPaid:
		return t.MarkAsPaid(actorID, opts.Date, opts.PaymentMethod, now)
	case StatusDisputed:
		return t.Dispute(actorID, opts.Reason, opts.Date, now)
	case StatusCancelled:
		return t.Cancel(actorID, opts.Reason, now)
	case StatusRefunded:
		return t.Refund(actorID, opts.Reason, now)
	case StatusOverdue:
		return t.MarkOverdue(actorID, now)
	}

	if err := t.checkTransition(target); err != nil {
		return nil, err
	}
	data := t.baseData()
	if m := strings.TrimSpace(opts.PaymentMethod); m != "" {
		data["paymentMethod"] = m
	}
	return t.apply(target, history.EventStatusChanged, actorID, now, data, func(next *BillingTransaction) {
		if m := strings.TrimSpace(opts.PaymentMethod); m != "" {
			next.PaymentMethod = m
		}
	})
}

// Claim moves a pending transaction to claimed. claimDate defaults to now.
func (t *BillingTransaction) Claim(actorID uuid.UUID, claimDate *time.Time, now time.Time) (*Outcome, error) {
	if err := t.checkTransition(StatusClaimed, StatusPending); err != nil {
		return nil, err
	}
	at := dateOr(claimDate, now)
	data := t.baseData()
	data["claimedDate"] = formatDate(at)
	return t.apply(StatusClaimed, history.EventTransactionClaimed, actorID, now, data, func(next *BillingTransaction) {
		next.ClaimedDate = &at
	})
}

// MarkAsPaid settles a claimed, partially paid or overdue transaction.
// An existing paid date is kept.
func (t *BillingTransaction) MarkAsPaid(actorID uuid.UUID, paidDate *time.Time, paymentMethod string, now time.Time) (*Outcome, error) {
	if err := t.checkTransition(StatusPaid, StatusClaimed, StatusPartiallyPaid, StatusOverdue); err != nil {
		return nil, err
	}
	at := t.resolvedPaidDate(paidDate, now)
	method := strings.TrimSpace(paymentMethod)
	data := t.baseData()
	data["paidDate"] = formatDate(at)
	if method != "" {
		data["paymentMethod"] = method
	}
	return t.apply(StatusPaid, history.EventPaymentReceived, actorID, now, data, func(next *BillingTransaction) {
		next.PaidDate = &at
		if method != "" {
			next.PaymentMethod = method
		}
	})
}

// Dispute parks the transaction in disputed. A reason is mandatory.
func (t *BillingTransaction) Dispute(actorID uuid.UUID, reason string, date *time.Time, now time.Time) (*Outcome, error) {
	if err := t.checkTransition(StatusDisputed); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, shared.NewValidationError("reason", "is required to dispute a transaction")
	}
	at := dateOr(date, now)
	data := t.baseData()
	data["reason"] = reason
	data["disputeDate"] = formatDate(at)
	return t.apply(StatusDisputed, history.EventTransactionDisputed, actorID, now, data, func(next *BillingTransaction) {
		next.Metadata.DisputeReason = reason
		next.Metadata.DisputeDate = &at
		next.Metadata.DisputedBy = &actorID
		next.Metadata.ResolutionStatus = ""
		next.Metadata.ResolvedAt = nil
		next.Metadata.ResolvedBy = nil
		next.Metadata.ResolutionNotes = ""
	})
}

// ResolveDispute closes a dispute into paid, cancelled or refunded
func (t *BillingTransaction) ResolveDispute(actorID uuid.UUID, newStatus TransactionStatus, date *time.Time, notes string, now time.Time) (*Outcome, error) {
	if err := t.checkTransition(newStatus, StatusDisputed); err != nil {
		return nil, err
	}
	at := dateOr(date, now)
	notes = strings.TrimSpace(notes)
	var paidAt time.Time
	data := t.baseData()
	data["resolution"] = string(newStatus)
	data["resolvedAt"] = formatDate(at)
	if notes != "" {
		data["notes"] = notes
	}
	if newStatus == StatusPaid {
		paidAt = t.resolvedPaidDate(date, now)
		data["paidDate"] = formatDate(paidAt)
	}
	return t.apply(newStatus, history.EventDisputeResolved, actorID, now, data, func(next *BillingTransaction) {
		next.Metadata.ResolutionStatus = newStatus
		next.Metadata.ResolutionNotes = notes
		next.Metadata.ResolvedAt = &at
		next.Metadata.ResolvedBy = &actorID
		switch newStatus {
		case StatusPaid:
			next.PaidDate = &paidAt
		case StatusCancelled:
			next.Metadata.CancelledAt = &at
			next.Metadata.CancelledBy = &actorID
		case StatusRefunded:
			next.Metadata.RefundedAt = &at
			next.Metadata.RefundedBy = &actorID
		}
	})
}

// Cancel voids the transaction. Paid and refunded transactions cannot be cancelled.
func (t *BillingTransaction) Cancel(actorID uuid.UUID, reason string, now time.Time) (*Outcome, error) {
	if err := t.checkTransition(StatusCancelled); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	at := now.UTC()
	data := t.baseData()
	if reason != "" {
		data["reason"] = reason
	}
	return t.apply(StatusCancelled, history.EventTransactionCancelled, actorID, now, data, func(next *BillingTransaction) {
		next.Metadata.CancellationReason = reason
		next.Metadata.CancelledAt = &at
		next.Metadata.CancelledBy = &actorID
	})
}

// Refund reverses a paid transaction
func (t *BillingTransaction) Refund(actorID uuid.UUID, reason string, now time.Time) (*Outcome, error) {
	if err := t.checkTransition(StatusRefunded, StatusPaid); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	at := now.UTC()
	data := t.baseData()
	if reason != "" {
		data["reason"] = reason
	}
	return t.apply(StatusRefunded, history.EventTransactionRefunded, actorID, now, data, func(next *BillingTransaction) {
		next.Metadata.RefundReason = reason
		next.Metadata.RefundedAt = &at
		next.Metadata.RefundedBy = &actorID
	})
}

// MarkOverdue flags a claimed or partially paid transaction past its due date
func (t *BillingTransaction) MarkOverdue(actorID uuid.UUID, now time.Time) (*Outcome, error) {
	if err := t.checkTransition(StatusOverdue); err != nil {
		return nil, err
	}
	data := t.baseData()
	data["dueDate"] = formatDate(t.DueDate)
	return t.apply(StatusOverdue, history.EventTransactionOverdue, actorID, now, data, nil)
}

// AddApproval appends an approval. An actor approves a level at most once.
func (t *BillingTransaction) AddApproval(actorID uuid.UUID, level, comments string, now time.Time) (*Outcome, error) {
	level = strings.TrimSpace(level)
	if level == "" {
		return nil, shared.NewValidationError("level", "is required")
	}
	if actorID == uuid.Nil {
		return nil, shared.NewValidationError("actorId", "is required")
	}
	if t.Approvals.Has(actorID, level) {
		return nil, &shared.DomainError{
			Code:    shared.CodeDuplicateApproval,
			Message: fmt.Sprintf("%s %s already approved at level %s by %s", entityName, t.ID, level, actorID),
			Details: map[string]any{"entity": entityName, "id": t.ID.String(), "level": level, "approvedBy": actorID.String()},
		}
	}
	approval := Approval{Level: level, ApprovedBy: actorID, ApprovedAt: now.UTC(), Comments: strings.TrimSpace(comments)}

	next := t.clone()
	next.Approvals = append(next.Approvals, approval)
	next.MarkUpdatedBy(actorID)
	next.Touch(now)

	data := t.baseData()
	data["status"] = string(t.Status)
	data["level"] = level
	data["approvalCount"] = len(next.Approvals)
	if approval.Comments != "" {
		data["comments"] = approval.Comments
	}
	return t.outcome(next, history.EventTransactionApproved, actorID, now, data)
}

// Reconcile matches a paid transaction to a bank statement. It can happen once.
func (t *BillingTransaction) Reconcile(actorID uuid.UUID, bankStatementRef string, now time.Time) (*Outcome, error) {
	if t.Reconciliation.IsReconciled {
		return nil, &shared.DomainError{
			Code:    shared.CodeInvalidTransition,
			Message: fmt.Sprintf("%s %s is already reconciled", entityName, t.ID),
			Details: map[string]any{"entity": entityName, "id": t.ID.String(), "rule": "already_reconciled"},
		}
	}
	if t.Status != StatusPaid {
		return nil, shared.NewInvalidTransition(entityName, string(t.Status), "reconciled")
	}
	ref := strings.TrimSpace(bankStatementRef)
	if ref == "" {
		return nil, shared.NewValidationError("bankStatementRef", "is required")
	}
	at := now.UTC()
	next := t.clone()
	next.Reconciliation = Reconciliation{
		IsReconciled:     true,
		ReconciledDate:   &at,
		ReconciledBy:     &actorID,
		BankStatementRef: ref,
	}
	next.MarkUpdatedBy(actorID)
	next.Touch(now)

	data := t.baseData()
	data["status"] = string(t.Status)
	data["bankStatementRef"] = ref
	data["reconciledDate"] = formatDate(at)
	return t.outcome(next, history.EventTransactionReconciled, actorID, now, data)
}

// TransactionUpdate lists editable attributes; nil fields are left unchanged
type TransactionUpdate struct {
	Amount          *valueobject.Money
	DebtorType      *DebtorType
	DebtorID        *uuid.UUID
	TransactionType *TransactionType
	DueDate         *time.Time
	PaidDate        *time.Time
	PaymentMethod   *string
	Description     *string
}

// Update edits non-lifecycle attributes under the restricted-field policy:
// settled transactions freeze amount, debtor and type; reconciled ones also
// freeze the paid date. Status only changes through the lifecycle operations.
func (t *BillingTransaction) Update(actorID uuid.UUID, u TransactionUpdate, now time.Time) (*Outcome, error) {
	settled := t.Status.IsFinanciallySettled()
	reconciled := t.Reconciliation.IsReconciled
	next := t.clone()
	changes := map[string]any{}

	freeze := func(field string) error {
		if reconciled && (field == "signedAmount" || field == "paidDate") {
			return shared.NewFieldImmutable(entityName, field, "transaction is reconciled")
		}
		if settled && field != "paidDate" {
			return shared.NewFieldImmutable(entityName, field, "transaction is "+string(t.Status))
		}
		return nil
	}

	if u.Amount != nil && !u.Amount.Equals(t.Amount) {
		if err := freeze("signedAmount"); err != nil {
			return nil, err
		}
		if err := validateSignedAmount(*u.Amount); err != nil {
			return nil, err
		}
		changes["signedAmount"] = change(t.Amount.String(), u.Amount.String())
		next.Amount = *u.Amount
	}
	if u.DebtorType != nil && *u.DebtorType != t.DebtorType {
		if err := freeze("debtorType"); err != nil {
			return nil, err
		}
		if !u.DebtorType.IsValid() {
			return nil, shared.NewValidationError("debtorType", "must be agency or student")
		}
		changes["debtorType"] = change(string(t.DebtorType), string(*u.DebtorType))
		next.DebtorType = *u.DebtorType
	}
	if u.DebtorID != nil && *u.DebtorID != t.DebtorID {
		if err := freeze("debtorId"); err != nil {
			return nil, err
		}
		if *u.DebtorID == uuid.Nil {
			return nil, shared.NewValidationError("debtorId", "is required")
		}
		changes["debtorId"] = change(t.DebtorID.String(), u.DebtorID.String())
		next.DebtorID = *u.DebtorID
	}
	if u.TransactionType != nil && *u.TransactionType != t.TransactionType {
		if err := freeze("transactionType"); err != nil {
			return nil, err
		}
		if !u.TransactionType.IsValid() {
			return nil, shared.NewValidationError("transactionType", "must be one of invoice, payment, refund, adjustment, penalty")
		}
		changes["transactionType"] = change(string(t.TransactionType), string(*u.TransactionType))
		next.TransactionType = *u.TransactionType
	}
	if u.PaidDate != nil && (t.PaidDate == nil || !u.PaidDate.Equal(*t.PaidDate)) {
		if reconciled {
			return nil, shared.NewFieldImmutable(entityName, "paidDate", "transaction is reconciled")
		}
		at := u.PaidDate.UTC()
		changes["paidDate"] = change(optionalDate(t.PaidDate), formatDate(at))
		next.PaidDate = &at
	}
	if u.DueDate != nil {
		if u.DueDate.IsZero() {
			return nil, shared.NewValidationError("dueDate", "is required")
		}
		due := u.DueDate.UTC()
		due = time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC)
		if !due.Equal(t.DueDate) {
			changes["dueDate"] = change(formatDate(t.DueDate), formatDate(due))
			next.DueDate = due
		}
	}
	if u.PaymentMethod != nil && strings.TrimSpace(*u.PaymentMethod) != t.PaymentMethod {
		m := strings.TrimSpace(*u.PaymentMethod)
		changes["paymentMethod"] = change(t.PaymentMethod, m)
		next.PaymentMethod = m
	}
	if u.Description != nil && strings.TrimSpace(*u.Description) != t.Description {
		d := strings.TrimSpace(*u.Description)
		changes["description"] = change(t.Description, d)
		next.Description = d
	}

	if len(changes) == 0 {
		return &Outcome{Transaction: t, ExpectedStatus: t.Status, ExpectedVersion: t.Version}, nil
	}
	next.MarkUpdatedBy(actorID)
	next.Touch(now)

	data := t.baseData()
	data["status"] = string(t.Status)
	data["changes"] = changes
	return t.outcome(next, history.EventTransactionUpdated, actorID, now, data)
}

// checkTransition validates target against the table, the reconciliation
// freeze and, when given, an operation-specific set of source states.
func (t *BillingTransaction) checkTransition(target TransactionStatus, allowedFrom ...TransactionStatus) error {
	if t.Reconciliation.IsReconciled {
		return shared.NewFieldImmutable(entityName, "status", "transaction is reconciled")
	}
	if len(allowedFrom) > 0 && !containsStatus(allowedFrom, t.Status) {
		return shared.NewInvalidTransition(entityName, string(t.Status), string(target))
	}
	if !t.Status.CanTransitionTo(target) {
		return shared.NewInvalidTransition(entityName, string(t.Status), string(target))
	}
	return nil
}

func (t *BillingTransaction) apply(target TransactionStatus, eventType history.EventType, actorID uuid.UUID, now time.Time, data history.EventData, mutate func(next *BillingTransaction)) (*Outcome, error) {
	next := t.clone()
	next.Status = target
	if mutate != nil {
		mutate(next)
	}
	next.MarkUpdatedBy(actorID)
	next.Touch(now)

	data["previousStatus"] = string(t.Status)
	data["newStatus"] = string(target)
	return t.outcome(next, eventType, actorID, now, data)
}

func (t *BillingTransaction) outcome(next *BillingTransaction, eventType history.EventType, actorID uuid.UUID, now time.Time, data history.EventData) (*Outcome, error) {
	ev, err := next.newEvent(eventType, actorID, now, data)
	if err != nil {
		return nil, err
	}
	return &Outcome{
		Transaction:     next,
		Event:           ev,
		ExpectedStatus:  t.Status,
		ExpectedVersion: t.Version,
	}, nil
}

func (t *BillingTransaction) resolvedPaidDate(requested *time.Time, now time.Time) time.Time {
	if t.PaidDate != nil {
		return *t.PaidDate
	}
	return dateOr(requested, now)
}

func containsStatus(list []TransactionStatus, s TransactionStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func dateOr(d *time.Time, now time.Time) time.Time {
	if d != nil && !d.IsZero() {
		return d.UTC()
	}
	return now.UTC()
}

func optionalDate(d *time.Time) any {
	if d == nil {
		return nil
	}
	return formatDate(*d)
}

func change(from, to any) map[string]any {
	return map[string]any{"from": from, "to": to}
}
