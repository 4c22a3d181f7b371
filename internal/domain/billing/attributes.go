package billing

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Approval is one sign-off on a transaction
type Approval struct {
	Level      string    `json:"level"`
	ApprovedBy uuid.UUID `json:"approvedBy"`
	ApprovedAt time.Time `json:"approvedAt"`
	Comments   string    `json:"comments,omitempty"`
}

// Approvals is an append-only list, unique per (approver, level)
type Approvals []Approval

// Has reports whether actor already approved at level
func (a Approvals) Has(actor uuid.UUID, level string) bool {
	for _, ap := range a {
		if ap.ApprovedBy == actor && ap.Level == level {
			return true
		}
	}
	return false
}

// Value implements driver.Valuer for database storage
func (a Approvals) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for database retrieval
func (a *Approvals) Scan(value any) error {
	if value == nil {
		*a = Approvals{}
		return nil
	}
	bytes, err := asBytes(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, a)
}

// Reconciliation records the match against a bank statement. One-way.
type Reconciliation struct {
	IsReconciled     bool
	ReconciledDate   *time.Time
	ReconciledBy     *uuid.UUID
	BankStatementRef string
}

// Metadata holds the operator-supplied context of dispute, cancellation and refund
type Metadata struct {
	DisputeReason      string            `json:"disputeReason,omitempty"`
	DisputeDate        *time.Time        `json:"disputeDate,omitempty"`
	DisputedBy         *uuid.UUID        `json:"disputedBy,omitempty"`
	ResolutionStatus   TransactionStatus `json:"resolutionStatus,omitempty"`
	ResolutionNotes    string            `json:"resolutionNotes,omitempty"`
	ResolvedAt         *time.Time        `json:"resolvedAt,omitempty"`
	ResolvedBy         *uuid.UUID        `json:"resolvedBy,omitempty"`
	CancellationReason string            `json:"cancellationReason,omitempty"`
	CancelledAt        *time.Time        `json:"cancelledAt,omitempty"`
	CancelledBy        *uuid.UUID        `json:"cancelledBy,omitempty"`
	RefundReason       string            `json:"refundReason,omitempty"`
	RefundedAt         *time.Time        `json:"refundedAt,omitempty"`
	RefundedBy         *uuid.UUID        `json:"refundedBy,omitempty"`
}

// Value implements driver.Valuer for database storage
func (m Metadata) Value() (driver.Value, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for database retrieval
func (m *Metadata) Scan(value any) error {
	if value == nil {
		*m = Metadata{}
		return nil
	}
	bytes, err := asBytes(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, m)
}

func asBytes(value any) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	return nil, errors.New("type assertion to []byte or string failed")
}
