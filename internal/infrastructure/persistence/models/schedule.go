package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/edubill/backend/internal/domain/schedule"
	"github.com/edubill/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PaymentScheduleItemModel is the persistence model for the PaymentScheduleItem aggregate root.
type PaymentScheduleItemModel struct {
	AgencyAggregateModel
	OfferLetterID     uuid.UUID           `gorm:"type:uuid;not null;index"`
	ItemType          schedule.ItemType   `gorm:"type:varchar(20);not null"`
	MilestoneType     string              `gorm:"type:varchar(100)"`
	Description       string              `gorm:"type:text"`
	ScheduledAmount   decimal.Decimal     `gorm:"type:decimal(18,4);not null"`
	Currency          string              `gorm:"type:varchar(3);not null"`
	ScheduledDueDate  time.Time           `gorm:"type:date;not null;index"`
	Priority          int                 `gorm:"not null;default:5"`
	IsRecurring       bool                `gorm:"not null;default:false"`
	RecurringDetails  datatypes.JSON      `gorm:"type:jsonb"`
	Status            schedule.ItemStatus `gorm:"type:varchar(20);not null;default:'active';index"`
	IsActive          bool                `gorm:"not null;default:true"`
	ParentItemID      *uuid.UUID          `gorm:"type:uuid;index"`
	OccurrenceIndex   int                 `gorm:"not null;default:0"`
	ReplacedByID      *uuid.UUID          `gorm:"type:uuid"`
	ReplacementReason string              `gorm:"type:varchar(500)"`
	RetiredAt         *time.Time
	RetiredBy         *uuid.UUID `gorm:"type:uuid"`
	RetirementReason  string     `gorm:"type:varchar(500)"`
	CompletedAt       *time.Time
	CompletedBy       *uuid.UUID `gorm:"type:uuid"`
}

// TableName returns the table name for GORM
func (PaymentScheduleItemModel) TableName() string {
	return "payment_schedule_items"
}

// ToDomain converts the persistence model to a domain PaymentScheduleItem.
func (m *PaymentScheduleItemModel) ToDomain() (*schedule.PaymentScheduleItem, error) {
	amount, err := valueobject.NewMoney(m.ScheduledAmount, valueobject.Currency(m.Currency))
	if err != nil {
		return nil, fmt.Errorf("schedule item %s: %w", m.ID, err)
	}
	var recurring *schedule.RecurringDetails
	if len(m.RecurringDetails) > 0 && string(m.RecurringDetails) != "null" {
		recurring = &schedule.RecurringDetails{}
		if err := json.Unmarshal(m.RecurringDetails, recurring); err != nil {
			return nil, fmt.Errorf("schedule item %s recurring details: %w", m.ID, err)
		}
	}
	return &schedule.PaymentScheduleItem{
		AgencyAggregateRoot: m.ToDomainAgencyAggregateRoot(),
		OfferLetterID:       m.OfferLetterID,
		ItemType:            m.ItemType,
		MilestoneType:       m.MilestoneType,
		Description:         m.Description,
		ScheduledAmount:     amount,
		ScheduledDueDate:    schedule.DateOnly(m.ScheduledDueDate),
		Priority:            m.Priority,
		IsRecurring:         m.IsRecurring,
		RecurringDetails:    recurring,
		Status:              m.Status,
		IsActive:            m.IsActive,
		ParentItemID:        m.ParentItemID,
		OccurrenceIndex:     m.OccurrenceIndex,
		ReplacedByID:        m.ReplacedByID,
		ReplacementReason:   m.ReplacementReason,
		RetiredAt:           utcPtr(m.RetiredAt),
		RetiredBy:           m.RetiredBy,
		RetirementReason:    m.RetirementReason,
		CompletedAt:         utcPtr(m.CompletedAt),
		CompletedBy:         m.CompletedBy,
	}, nil
}

// PaymentScheduleItemModelFromDomain creates a persistence model from a domain item.
func PaymentScheduleItemModelFromDomain(i *schedule.PaymentScheduleItem) (*PaymentScheduleItemModel, error) {
	m := &PaymentScheduleItemModel{
		OfferLetterID:     i.OfferLetterID,
		ItemType:          i.ItemType,
		MilestoneType:     i.MilestoneType,
		Description:       i.Description,
		ScheduledAmount:   i.ScheduledAmount.Amount(),
		Currency:          string(i.ScheduledAmount.Currency()),
		ScheduledDueDate:  schedule.DateOnly(i.ScheduledDueDate),
		Priority:          i.Priority,
		IsRecurring:       i.IsRecurring,
		Status:            i.Status,
		IsActive:          i.IsActive,
		ParentItemID:      i.ParentItemID,
		OccurrenceIndex:   i.OccurrenceIndex,
		ReplacedByID:      i.ReplacedByID,
		ReplacementReason: i.ReplacementReason,
		RetiredAt:         utcPtr(i.RetiredAt),
		RetiredBy:         i.RetiredBy,
		RetirementReason:  i.RetirementReason,
		CompletedAt:       utcPtr(i.CompletedAt),
		CompletedBy:       i.CompletedBy,
	}
	m.FromDomainAgencyAggregateRoot(i.AgencyAggregateRoot)
	if i.RecurringDetails != nil {
		raw, err := json.Marshal(i.RecurringDetails)
		if err != nil {
			return nil, fmt.Errorf("encode recurring details: %w", err)
		}
		m.RecurringDetails = datatypes.JSON(raw)
	}
	return m, nil
}
