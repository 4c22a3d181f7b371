package billing

// TransactionStatus is the lifecycle state of a billing transaction
type TransactionStatus string

const (
	StatusPending       TransactionStatus = "pending"
	StatusClaimed       TransactionStatus = "claimed"
	StatusPartiallyPaid TransactionStatus = "partially_paid"
	StatusPaid          TransactionStatus = "paid"
	StatusOverdue       TransactionStatus = "overdue"
	StatusDisputed      TransactionStatus = "disputed"
	StatusCancelled     TransactionStatus = "cancelled"
	StatusRefunded      TransactionStatus = "refunded"
)

// transitions is the closed transition table. Anything absent is rejected.
var transitions = map[TransactionStatus][]TransactionStatus{
	StatusPending:       {StatusClaimed, StatusCancelled, StatusDisputed},
	StatusClaimed:       {StatusPartiallyPaid, StatusPaid, StatusOverdue, StatusCancelled, StatusDisputed},
	StatusPartiallyPaid: {StatusPaid, StatusOverdue, StatusCancelled, StatusDisputed},
	StatusOverdue:       {StatusPaid, StatusCancelled, StatusDisputed},
	StatusDisputed:      {StatusPaid, StatusCancelled, StatusRefunded},
	StatusPaid:          {StatusRefunded, StatusDisputed},
	StatusCancelled:     {},
	StatusRefunded:      {},
}

// AllStatuses lists every status
var AllStatuses = []TransactionStatus{
	StatusPending, StatusClaimed, StatusPartiallyPaid, StatusPaid,
	StatusOverdue, StatusDisputed, StatusCancelled, StatusRefunded,
}

// IsValid checks if the status is valid
func (s TransactionStatus) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal returns true for cancelled and refunded
func (s TransactionStatus) IsTerminal() bool {
	return s == StatusCancelled || s == StatusRefunded
}

// IsOpen reports whether the status counts against the one-open-transaction-per-item rule
func (s TransactionStatus) IsOpen() bool {
	return !s.IsTerminal()
}

// IsFinanciallySettled returns true once amount and debtor are frozen
func (s TransactionStatus) IsFinanciallySettled() bool {
	return s == StatusPaid || s == StatusCancelled || s == StatusRefunded
}

// IsOutstanding returns true while money is still expected
func (s TransactionStatus) IsOutstanding() bool {
	switch s {
	case StatusPending, StatusClaimed, StatusPartiallyPaid, StatusOverdue:
		return true
	}
	return false
}

// CanTransitionTo reports whether target appears in the transition table for s
func (s TransactionStatus) CanTransitionTo(target TransactionStatus) bool {
	for _, t := range transitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the statuses reachable from s
func (s TransactionStatus) AllowedTransitions() []TransactionStatus {
	out := make([]TransactionStatus, len(transitions[s]))
	copy(out, transitions[s])
	return out
}

// ClosedStatuses are excluded from the open-transaction uniqueness rule
var ClosedStatuses = []TransactionStatus{StatusCancelled, StatusRefunded}

// TransactionType classifies the ledger entry
type TransactionType string

const (
	TypeInvoice    TransactionType = "invoice"
	TypePayment    TransactionType = "payment"
	TypeRefund     TransactionType = "refund"
	TypeAdjustment TransactionType = "adjustment"
	TypePenalty    TransactionType = "penalty"
)

// IsValid checks if the transaction type is valid
func (t TransactionType) IsValid() bool {
	switch t {
	case TypeInvoice, TypePayment, TypeRefund, TypeAdjustment, TypePenalty:
		return true
	}
	return false
}

// DebtorType identifies who owes the amount
type DebtorType string

const (
	DebtorAgency  DebtorType = "agency"
	DebtorStudent DebtorType = "student"
)

// IsValid checks if the debtor type is valid
func (d DebtorType) IsValid() bool {
	return d == DebtorAgency || d == DebtorStudent
}
