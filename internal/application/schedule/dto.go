package schedule

import (
	"time"

	"github.com/edubill/backend/internal/domain/schedule"
	"github.com/edubill/backend/internal/domain/shared"
	"github.com/edubill/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RecurringInput is the recurrence rule of a create request
type RecurringInput struct {
	Frequency   string     `json:"frequency" binding:"required"`
	EndDate     *time.Time `json:"end_date"`
	Occurrences *int       `json:"occurrences" binding:"omitempty,min=1"`
}

// CreateItemRequest represents a request to create a payment schedule item
type CreateItemRequest struct {
	AgencyID      uuid.UUID       `json:"agency_id" binding:"required"`
	OfferLetterID uuid.UUID       `json:"offer_letter_id" binding:"required"`
	ItemType      string          `json:"item_type" binding:"required"`
	MilestoneType string          `json:"milestone_type" binding:"max=100"`
	Description   string          `json:"description" binding:"max=500"`
	Amount        decimal.Decimal `json:"amount" binding:"required"`
	Currency      string          `json:"currency" binding:"required,len=3"`
	DueDate       time.Time       `json:"due_date" binding:"required"`
	Priority      int             `json:"priority" binding:"omitempty,min=1,max=10"`
	IsRecurring   bool            `json:"is_recurring"`
	Recurring     *RecurringInput `json:"recurring_details"`
}

// UpdateItemRequest represents a partial update; nil fields are left unchanged
type UpdateItemRequest struct {
	OfferLetterID *uuid.UUID       `json:"offer_letter_id"`
	ItemType      *string          `json:"item_type"`
	MilestoneType *string          `json:"milestone_type" binding:"omitempty,max=100"`
	Description   *string          `json:"description" binding:"omitempty,max=500"`
	Amount        *decimal.Decimal `json:"amount"`
	Currency      *string          `json:"currency" binding:"omitempty,len=3"`
	DueDate       *time.Time       `json:"due_date"`
	Priority      *int             `json:"priority" binding:"omitempty,min=1,max=10"`
}

// ReasonRequest carries the mandatory reason of retire and cancel
type ReasonRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

// ReplaceItemRequest describes the replacement created for an item
type ReplaceItemRequest struct {
	Reason      string           `json:"reason" binding:"max=500"`
	Amount      *decimal.Decimal `json:"amount"`
	Currency    *string          `json:"currency" binding:"omitempty,len=3"`
	DueDate     *time.Time       `json:"due_date"`
	Description *string          `json:"description" binding:"omitempty,max=500"`
	Priority    *int             `json:"priority" binding:"omitempty,min=1,max=10"`
}

// ListItemsRequest filters the item listing
type ListItemsRequest struct {
	Page          int        `form:"page" binding:"omitempty,min=1"`
	PageSize      int        `form:"page_size" binding:"omitempty,min=1,max=500"`
	OfferLetterID *uuid.UUID `form:"offer_letter_id"`
	Status        string     `form:"status"`
	DueFrom       *time.Time `form:"due_from" time_format:"2006-01-02"`
	DueTo         *time.Time `form:"due_to" time_format:"2006-01-02"`
}

// RecurringResponse is the recurrence rule of an item
type RecurringResponse struct {
	Frequency   string     `json:"frequency"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	Occurrences *int       `json:"occurrences,omitempty"`
}

// ItemResponse represents a payment schedule item in API responses
type ItemResponse struct {
	ID                uuid.UUID          `json:"id"`
	AccountID         uuid.UUID          `json:"account_id"`
	AgencyID          uuid.UUID          `json:"agency_id"`
	OfferLetterID     uuid.UUID          `json:"offer_letter_id"`
	ItemType          string             `json:"item_type"`
	MilestoneType     string             `json:"milestone_type,omitempty"`
	Description       string             `json:"description,omitempty"`
	Amount            decimal.Decimal    `json:"amount"`
	Currency          string             `json:"currency"`
	DueDate           string             `json:"due_date"`
	Priority          int                `json:"priority"`
	IsRecurring       bool               `json:"is_recurring"`
	Recurring         *RecurringResponse `json:"recurring_details,omitempty"`
	Status            string             `json:"status"`
	IsActive          bool               `json:"is_active"`
	ParentItemID      *uuid.UUID         `json:"parent_item_id,omitempty"`
	OccurrenceIndex   int                `json:"occurrence_index,omitempty"`
	ReplacedByID      *uuid.UUID         `json:"replaced_by_id,omitempty"`
	ReplacementReason string             `json:"replacement_reason,omitempty"`
	RetiredAt         *time.Time         `json:"retired_at,omitempty"`
	RetiredBy         *uuid.UUID         `json:"retired_by,omitempty"`
	RetirementReason  string             `json:"retirement_reason,omitempty"`
	CompletedAt       *time.Time         `json:"completed_at,omitempty"`
	CompletedBy       *uuid.UUID         `json:"completed_by,omitempty"`
	CreatedBy         *uuid.UUID         `json:"created_by,omitempty"`
	UpdatedBy         *uuid.UUID         `json:"updated_by,omitempty"`
	Version           int                `json:"version"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// ReplaceResponse returns both sides of a replacement
type ReplaceResponse struct {
	Original    ItemResponse `json:"original"`
	Replacement ItemResponse `json:"replacement"`
}

// GenerateRecurringResponse lists the children created for a recurring parent
type GenerateRecurringResponse struct {
	ParentID uuid.UUID      `json:"parent_id"`
	Count    int            `json:"count"`
	Items    []ItemResponse `json:"items"`
}

// ToItemResponse converts a domain item to a response
func ToItemResponse(item *schedule.PaymentScheduleItem) ItemResponse {
	resp := ItemResponse{
		ID:                item.ID,
		AccountID:         item.AccountID,
		AgencyID:          item.AgencyID,
		OfferLetterID:     item.OfferLetterID,
		ItemType:          string(item.ItemType),
		MilestoneType:     item.MilestoneType,
		Description:       item.Description,
		Amount:            item.ScheduledAmount.Amount(),
		Currency:          item.ScheduledAmount.Currency().String(),
		DueDate:           item.ScheduledDueDate.Format(time.DateOnly),
		Priority:          item.Priority,
		IsRecurring:       item.IsRecurring,
		Status:            string(item.Status),
		IsActive:          item.IsActive,
		ParentItemID:      item.ParentItemID,
		OccurrenceIndex:   item.OccurrenceIndex,
		ReplacedByID:      item.ReplacedByID,
		ReplacementReason: item.ReplacementReason,
		RetiredAt:         item.RetiredAt,
		RetiredBy:         item.RetiredBy,
		RetirementReason:  item.RetirementReason,
		CompletedAt:       item.CompletedAt,
		CompletedBy:       item.CompletedBy,
		CreatedBy:         item.CreatedBy,
		UpdatedBy:         item.UpdatedBy,
		Version:           item.Version,
		CreatedAt:         item.CreatedAt,
		UpdatedAt:         item.UpdatedAt,
	}
	if r := item.RecurringDetails; r != nil {
		resp.Recurring = &RecurringResponse{
			Frequency:   string(r.Frequency),
			EndDate:     r.EndDate,
			Occurrences: r.Occurrences,
		}
	}
	return resp
}

// ToItemResponses converts a slice of items
func ToItemResponses(items []schedule.PaymentScheduleItem) []ItemResponse {
	out := make([]ItemResponse, len(items))
	for i := range items {
		out[i] = ToItemResponse(&items[i])
	}
	return out
}

func (r RecurringInput) toDomain() *schedule.RecurringDetails {
	return &schedule.RecurringDetails{
		Frequency:   schedule.Frequency(r.Frequency),
		EndDate:     r.EndDate,
		Occurrences: r.Occurrences,
	}
}

func parseMoney(field string, amount decimal.Decimal, currency string) (valueobject.Money, error) {
	c, err := valueobject.ParseCurrency(currency)
	if err != nil {
		return valueobject.Money{}, shared.NewValidationError(field+".currency", err.Error())
	}
	return valueobject.NewMoney(amount, c)
}
