package models

import (
	"fmt"
	"time"

	"github.com/edubill/backend/internal/domain/billing"
	"github.com/edubill/backend/internal/domain/schedule"
	"github.com/edubill/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillingTransactionModel is the persistence model for the BillingTransaction aggregate root.
// The partial unique index on payment_schedule_item_id is created by persistence.AutoMigrate
// and by the SQL migrations, since gorm tags cannot express the WHERE clause.
type BillingTransactionModel struct {
	AgencyAggregateModel
	PaymentScheduleItemID *uuid.UUID                `gorm:"type:uuid;index"`
	DebtorType            billing.DebtorType        `gorm:"type:varchar(20);not null"`
	DebtorID              uuid.UUID                 `gorm:"type:uuid;not null;index"`
	SignedAmount          decimal.Decimal           `gorm:"type:decimal(18,4);not null"`
	Currency              string                    `gorm:"type:varchar(3);not null"`
	TransactionType       billing.TransactionType   `gorm:"type:varchar(20);not null"`
	Status                billing.TransactionStatus `gorm:"type:varchar(20);not null;default:'pending';index"`
	DueDate               time.Time                 `gorm:"type:date;not null;index"`
	ClaimedDate           *time.Time
	PaidDate              *time.Time
	PaymentMethod         string            `gorm:"type:varchar(50)"`
	Description           string            `gorm:"type:text"`
	Approvals             billing.Approvals `gorm:"type:jsonb"`
	IsReconciled          bool              `gorm:"not null;default:false"`
	ReconciledDate        *time.Time
	ReconciledBy          *uuid.UUID       `gorm:"type:uuid"`
	BankStatementRef      string           `gorm:"type:varchar(100)"`
	Metadata              billing.Metadata `gorm:"type:jsonb"`
}

// TableName returns the table name for GORM
func (BillingTransactionModel) TableName() string {
	return "billing_transactions"
}

// ToDomain converts the persistence model to a domain BillingTransaction.
func (m *BillingTransactionModel) ToDomain() (*billing.BillingTransaction, error) {
	amount, err := valueobject.NewMoney(m.SignedAmount, valueobject.Currency(m.Currency))
	if err != nil {
		return nil, fmt.Errorf("billing transaction %s: %w", m.ID, err)
	}
	approvals := m.Approvals
	if approvals == nil {
		approvals = billing.Approvals{}
	}
	return &billing.BillingTransaction{
		AgencyAggregateRoot:   m.ToDomainAgencyAggregateRoot(),
		PaymentScheduleItemID: m.PaymentScheduleItemID,
		DebtorType:            m.DebtorType,
		DebtorID:              m.DebtorID,
		Amount:                amount,
		TransactionType:       m.TransactionType,
		Status:                m.Status,
		DueDate:               schedule.DateOnly(m.DueDate),
		ClaimedDate:           utcPtr(m.ClaimedDate),
		PaidDate:              utcPtr(m.PaidDate),
		PaymentMethod:         m.PaymentMethod,
		Description:           m.Description,
		Approvals:             approvals,
		Reconciliation: billing.Reconciliation{
			IsReconciled:     m.IsReconciled,
			ReconciledDate:   utcPtr(m.ReconciledDate),
			ReconciledBy:     m.ReconciledBy,
			BankStatementRef: m.BankStatementRef,
		},
		Metadata: m.Metadata,
	}, nil
}

// BillingTransactionModelFromDomain creates a persistence model from a domain transaction.
func BillingTransactionModelFromDomain(t *billing.BillingTransaction) *BillingTransactionModel {
	approvals := t.Approvals
	if approvals == nil {
		approvals = billing.Approvals{}
	}
	m := &BillingTransactionModel{
		PaymentScheduleItemID: t.PaymentScheduleItemID,
		DebtorType:            t.DebtorType,
		DebtorID:              t.DebtorID,
		SignedAmount:          t.Amount.Amount(),
		Currency:              string(t.Amount.Currency()),
		TransactionType:       t.TransactionType,
		Status:                t.Status,
		DueDate:               schedule.DateOnly(t.DueDate),
		ClaimedDate:           utcPtr(t.ClaimedDate),
		PaidDate:              utcPtr(t.PaidDate),
		PaymentMethod:         t.PaymentMethod,
		Description:           t.Description,
		Approvals:             approvals,
		IsReconciled:          t.Reconciliation.IsReconciled,
		ReconciledDate:        utcPtr(t.Reconciliation.ReconciledDate),
		ReconciledBy:          t.Reconciliation.ReconciledBy,
		BankStatementRef:      t.Reconciliation.BankStatementRef,
		Metadata:              t.Metadata,
	}
	m.FromDomainAgencyAggregateRoot(t.AgencyAggregateRoot)
	return m
}
