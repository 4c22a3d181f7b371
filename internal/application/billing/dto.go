package billing

import (
	"time"

	"github.com/edubill/backend/internal/domain/billing"
	"github.com/edubill/backend/internal/domain/shared"
	"github.com/edubill/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// ==================== Transaction Requests ====================

// CreateTransactionRequest represents a request to create a transaction manually
type CreateTransactionRequest struct {
	AgencyID              uuid.UUID       `json:"agency_id" binding:"required"`
	PaymentScheduleItemID *uuid.UUID      `json:"payment_schedule_item_id"`
	DebtorType            string          `json:"debtor_type" binding:"required,oneof=agency student"`
	DebtorID              uuid.UUID       `json:"debtor_id" binding:"required"`
	Amount                decimal.Decimal `json:"amount" binding:"required"`
	Currency              string          `json:"currency" binding:"required,len=3"`
	TransactionType       string          `json:"transaction_type" binding:"required"`
	DueDate               time.Time       `json:"due_date" binding:"required"`
	PaymentMethod         string          `json:"payment_method" binding:"max=50"`
	Description           string          `json:"description" binding:"max=500"`
}

// UpdateTransactionRequest represents a partial update; nil fields are left unchanged
type UpdateTransactionRequest struct {
	Amount          *decimal.Decimal `json:"amount"`
	Currency        *string          `json:"currency" binding:"omitempty,len=3"`
	DebtorType      *string          `json:"debtor_type" binding:"omitempty,oneof=agency student"`
	DebtorID        *uuid.UUID       `json:"debtor_id"`
	TransactionType *string          `json:"transaction_type"`
	DueDate         *time.Time       `json:"due_date"`
	PaidDate        *time.Time       `json:"paid_date"`
	PaymentMethod   *string          `json:"payment_method" binding:"omitempty,max=50"`
	Description     *string          `json:"description" binding:"omitempty,max=500"`
}

// UpdateStatusRequest moves a transaction to an arbitrary permitted status
type UpdateStatusRequest struct {
	Status        string     `json:"status" binding:"required"`
	Date          *time.Time `json:"date"`
	PaymentMethod string     `json:"payment_method" binding:"max=50"`
	Reason        string     `json:"reason" binding:"max=500"`
}

// ClaimRequest represents a claim; the date defaults to now
type ClaimRequest struct {
	ClaimDate *time.Time `json:"claim_date"`
}

// PayRequest records a payment
type PayRequest struct {
	PaidDate      *time.Time `json:"paid_date"`
	PaymentMethod string     `json:"payment_method" binding:"max=50"`
}

// DisputeRequest opens a dispute
type DisputeRequest struct {
	Reason string     `json:"reason" binding:"required,max=500"`
	Date   *time.Time `json:"date"`
}

// ResolveDisputeRequest closes a dispute with its outcome
type ResolveDisputeRequest struct {
	Status string     `json:"status" binding:"required,oneof=paid cancelled refunded"`
	Date   *time.Time `json:"date"`
	Notes  string     `json:"notes" binding:"max=1000"`
}

// ReasonRequest carries the optional reason of cancel and refund
type ReasonRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// ApprovalRequest adds a sign-off at a level
type ApprovalRequest struct {
	Level    string `json:"level" binding:"required,max=50"`
	Comments string `json:"comments" binding:"max=1000"`
}

// ReconcileRequest matches a paid transaction against a bank statement
type ReconcileRequest struct {
	BankStatementRef string `json:"bank_statement_ref" binding:"required,max=100"`
}

// ListTransactionsRequest filters the transaction listing
type ListTransactionsRequest struct {
	Page                  int        `form:"page" binding:"omitempty,min=1"`
	PageSize              int        `form:"page_size" binding:"omitempty,min=1,max=500"`
	Status                string     `form:"status"`
	PaymentScheduleItemID *uuid.UUID `form:"payment_schedule_item_id"`
	DueBefore             *time.Time `form:"due_before" time_format:"2006-01-02"`
}

// GenerateRequest selects schedule items to realize as transactions. Without
// explicit ids every active item in scope due on or before DueDate is used.
type GenerateRequest struct {
	AgencyID *uuid.UUID  `json:"agency_id"`
	ItemIDs  []uuid.UUID `json:"item_ids"`
	DueDate  *time.Time  `json:"due_date"`
}

// RevenueSummaryRequest is the window of the revenue summary
type RevenueSummaryRequest struct {
	From *time.Time `form:"from" time_format:"2006-01-02"`
	To   *time.Time `form:"to" time_format:"2006-01-02"`
}

// ==================== Transaction Responses ====================

// ApprovalResponse is one sign-off
type ApprovalResponse struct {
	Level      string    `json:"level"`
	ApprovedBy uuid.UUID `json:"approved_by"`
	ApprovedAt time.Time `json:"approved_at"`
	Comments   string    `json:"comments,omitempty"`
}

// ReconciliationResponse is the bank statement match
type ReconciliationResponse struct {
	IsReconciled     bool       `json:"is_reconciled"`
	ReconciledDate   *time.Time `json:"reconciled_date,omitempty"`
	ReconciledBy     *uuid.UUID `json:"reconciled_by,omitempty"`
	BankStatementRef string     `json:"bank_statement_ref,omitempty"`
}

// TransactionResponse represents a billing transaction in API responses
type TransactionResponse struct {
	ID                    uuid.UUID              `json:"id"`
	AccountID             uuid.UUID              `json:"account_id"`
	AgencyID              uuid.UUID              `json:"agency_id"`
	PaymentScheduleItemID *uuid.UUID             `json:"payment_schedule_item_id,omitempty"`
	DebtorType            string                 `json:"debtor_type"`
	DebtorID              uuid.UUID              `json:"debtor_id"`
	Amount                decimal.Decimal        `json:"amount"`
	Currency              string                 `json:"currency"`
	TransactionType       string                 `json:"transaction_type"`
	Status                string                 `json:"status"`
	AllowedTransitions    []string               `json:"allowed_transitions"`
	DueDate               string                 `json:"due_date"`
	ClaimedDate           *time.Time             `json:"claimed_date,omitempty"`
	PaidDate              *time.Time             `json:"paid_date,omitempty"`
	PaymentMethod         string                 `json:"payment_method,omitempty"`
	Description           string                 `json:"description,omitempty"`
	Approvals             []ApprovalResponse     `json:"approvals"`
	Reconciliation        ReconciliationResponse `json:"reconciliation"`
	Metadata              billing.Metadata       `json:"metadata"`
	CreatedBy             *uuid.UUID             `json:"created_by,omitempty"`
	UpdatedBy             *uuid.UUID             `json:"updated_by,omitempty"`
	Version               int                    `json:"version"`
	CreatedAt             time.Time              `json:"created_at"`
	UpdatedAt             time.Time              `json:"updated_at"`
}

// GenerationFailure describes one item the pipeline could not bill
type GenerationFailure struct {
	ItemID  uuid.UUID `json:"item_id"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

// GenerationResult reports a pipeline run. Skips are not errors.
type GenerationResult struct {
	Created              []TransactionResponse `json:"created"`
	SkippedInactive      int                   `json:"skipped_inactive"`
	SkippedAlreadyBilled int                   `json:"skipped_already_billed"`
	SkippedNotDue        int                   `json:"skipped_not_due"`
	SkippedLocked        int                   `json:"skipped_locked"`
	SkippedOtherAgency   int                   `json:"skipped_other_agency"`
	NotFound             []uuid.UUID           `json:"not_found,omitempty"`
	Failed               []GenerationFailure   `json:"failed,omitempty"`
}

// Skipped totals every skip reason
func (r *GenerationResult) Skipped() int {
	return r.SkippedInactive + r.SkippedAlreadyBilled + r.SkippedNotDue + r.SkippedLocked +
		r.SkippedOtherAgency + len(r.NotFound)
}

// RevenueBucket is one (status, type) bucket within a currency
type RevenueBucket struct {
	Status          string          `json:"status"`
	TransactionType string          `json:"transaction_type"`
	Count           int64           `json:"count"`
	Total           decimal.Decimal `json:"total"`
}

// CurrencyRevenue sums one currency's transactions
type CurrencyRevenue struct {
	Currency    string          `json:"currency"`
	Count       int64           `json:"count"`
	Billed      decimal.Decimal `json:"billed"`
	Collected   decimal.Decimal `json:"collected"`
	Outstanding decimal.Decimal `json:"outstanding"`
	Disputed    decimal.Decimal `json:"disputed"`
	Refunded    decimal.Decimal `json:"refunded"`
	Cancelled   decimal.Decimal `json:"cancelled"`
	Buckets     []RevenueBucket `json:"buckets"`
}

// RevenueSummaryResponse groups revenue by currency; amounts are never summed across currencies
type RevenueSummaryResponse struct {
	From       *time.Time        `json:"from,omitempty"`
	To         *time.Time        `json:"to,omitempty"`
	Currencies []CurrencyRevenue `json:"currencies"`
}

// FlagOverdueResult reports an overdue sweep
type FlagOverdueResult struct {
	Examined  int `json:"examined"`
	Flagged   int `json:"flagged"`
	Conflicts int `json:"conflicts"`
	Failed    int `json:"failed"`
}

// ToTransactionResponse converts a domain transaction to a response
func ToTransactionResponse(tx *billing.BillingTransaction) TransactionResponse {
	return TransactionResponse{
		ID:                    tx.ID,
		AccountID:             tx.AccountID,
		AgencyID:              tx.AgencyID,
		PaymentScheduleItemID: tx.PaymentScheduleItemID,
		DebtorType:            string(tx.DebtorType),
		DebtorID:              tx.DebtorID,
		Amount:                tx.Amount.Amount(),
		Currency:              tx.Amount.Currency().String(),
		TransactionType:       string(tx.TransactionType),
		Status:                string(tx.Status),
		AllowedTransitions: lo.Map(tx.Status.AllowedTransitions(), func(s billing.TransactionStatus, _ int) string {
			return string(s)
		}),
		DueDate:       tx.DueDate.Format(time.DateOnly),
		ClaimedDate:   tx.ClaimedDate,
		PaidDate:      tx.PaidDate,
		PaymentMethod: tx.PaymentMethod,
		Description:   tx.Description,
		Approvals: lo.Map(tx.Approvals, func(a billing.Approval, _ int) ApprovalResponse {
			return ApprovalResponse{Level: a.Level, ApprovedBy: a.ApprovedBy, ApprovedAt: a.ApprovedAt, Comments: a.Comments}
		}),
		Reconciliation: ReconciliationResponse{
			IsReconciled:     tx.Reconciliation.IsReconciled,
			ReconciledDate:   tx.Reconciliation.ReconciledDate,
			ReconciledBy:     tx.Reconciliation.ReconciledBy,
			BankStatementRef: tx.Reconciliation.BankStatementRef,
		},
		Metadata:  tx.Metadata,
		CreatedBy: tx.CreatedBy,
		UpdatedBy: tx.UpdatedBy,
		Version:   tx.Version,
		CreatedAt: tx.CreatedAt,
		UpdatedAt: tx.UpdatedAt,
	}
}

// ToTransactionResponses converts a slice of transactions
func ToTransactionResponses(txs []billing.BillingTransaction) []TransactionResponse {
	out := make([]TransactionResponse, len(txs))
	for i := range txs {
		out[i] = ToTransactionResponse(&txs[i])
	}
	return out
}

func parseMoney(field string, amount decimal.Decimal, currency string) (valueobject.Money, error) {
	c, err := valueobject.ParseCurrency(currency)
	if err != nil {
		return valueobject.Money{}, shared.NewValidationError(field+".currency", err.Error())
	}
	return valueobject.NewMoney(amount, c)
}
