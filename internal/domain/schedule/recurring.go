package schedule

import (
	"fmt"
	"time"

	"github.com/edubill/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// DefaultMaxOccurrences caps a single expansion
const DefaultMaxOccurrences = 520

// Frequency is the cadence of a recurring item
type Frequency string

const (
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyAnnually  Frequency = "annually"
)

// IsValid checks if the frequency is known
func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyAnnually:
		return true
	}
	return false
}

// Advance returns anchor moved forward by n periods. Calendar periods are
// computed from the anchor, not chained, and clamp to the end of short months.
func (f Frequency) Advance(anchor time.Time, n int) (time.Time, error) {
	switch f {
	case FrequencyWeekly:
		return anchor.AddDate(0, 0, 7*n), nil
	case FrequencyMonthly:
		return addMonthsClamped(anchor, n), nil
	case FrequencyQuarterly:
		return addMonthsClamped(anchor, 3*n), nil
	case FrequencyAnnually:
		return addMonthsClamped(anchor, 12*n), nil
	}
	return time.Time{}, invalidFrequency(f)
}

// RecurringDetails is the recurrence rule of a recurring item
type RecurringDetails struct {
	Frequency   Frequency  `json:"frequency"`
	EndDate     *time.Time `json:"endDate,omitempty"`
	Occurrences *int       `json:"occurrences,omitempty"`
}

// Validate checks the rule against the item's first due date. Exactly one
// terminal condition is required on write.
func (r *RecurringDetails) Validate(firstDue time.Time) error {
	if r.Frequency == "" {
		return shared.NewValidationError("recurringDetails.frequency", "is required")
	}
	if !r.Frequency.IsValid() {
		return invalidFrequency(r.Frequency)
	}
	switch {
	case r.EndDate == nil && r.Occurrences == nil:
		return shared.NewValidationError("recurringDetails", "one of endDate or occurrences is required")
	case r.EndDate != nil && r.Occurrences != nil:
		return shared.NewValidationError("recurringDetails", "only one of endDate or occurrences may be set")
	}
	if r.Occurrences != nil && *r.Occurrences < 1 {
		return shared.NewValidationError("recurringDetails.occurrences", "must be at least 1")
	}
	if r.EndDate != nil && DateOnly(*r.EndDate).Before(DateOnly(firstDue)) {
		return shared.NewValidationError("recurringDetails.endDate", "must not be before the scheduled due date")
	}
	return nil
}

func (r *RecurringDetails) normalized() *RecurringDetails {
	c := &RecurringDetails{Frequency: r.Frequency}
	if r.EndDate != nil {
		end := DateOnly(*r.EndDate)
		c.EndDate = &end
	}
	if r.Occurrences != nil {
		n := *r.Occurrences
		c.Occurrences = &n
	}
	return c
}

// GeneratorOptions tunes GenerateOccurrences
type GeneratorOptions struct {
	ActorID        uuid.UUID
	Now            time.Time
	MaxOccurrences int
}

// GenerateOccurrences expands a recurring parent into concrete child items.
// Children copy amount, item type, milestone and priority from the parent and
// differ only in due date, description and occurrence index. The end date is
// inclusive of a child falling exactly on it. When both terminal conditions
// are present the first one reached stops generation.
//
// Calling it twice for the same parent yields duplicates; callers guard that.
func GenerateOccurrences(parent *PaymentScheduleItem, opts GeneratorOptions) ([]*PaymentScheduleItem, error) {
	if !parent.IsRecurring {
		return nil, shared.NewValidationError("isRecurring", "item is not recurring")
	}
	if parent.Status != ItemStatusActive {
		return nil, &shared.DomainError{
			Code:    shared.CodeInvalidState,
			Message: fmt.Sprintf("cannot expand %s item %s", parent.Status, parent.ID),
			Details: map[string]any{"entity": entityName, "status": string(parent.Status)},
		}
	}
	rule := parent.RecurringDetails
	if rule == nil {
		return nil, shared.NewValidationError("recurringDetails", "is required for recurring items")
	}
	if !rule.Frequency.IsValid() {
		return nil, invalidFrequency(rule.Frequency)
	}
	if rule.EndDate == nil && rule.Occurrences == nil {
		return nil, shared.NewValidationError("recurringDetails", "one of endDate or occurrences is required")
	}
	limit := opts.MaxOccurrences
	if limit <= 0 {
		limit = DefaultMaxOccurrences
	}
	actor := opts.ActorID
	if actor == uuid.Nil && parent.CreatedBy != nil {
		actor = *parent.CreatedBy
	}

	var children []*PaymentScheduleItem
	for n := 1; ; n++ {
		if rule.Occurrences != nil && len(children) >= *rule.Occurrences {
			break
		}
		due, err := rule.Frequency.Advance(parent.ScheduledDueDate, n)
		if err != nil {
			return nil, err
		}
		if rule.EndDate != nil && due.After(*rule.EndDate) {
			break
		}
		if len(children) >= limit {
			return nil, shared.NewValidationError("recurringDetails", fmt.Sprintf("rule expands to more than %d occurrences", limit))
		}
		children = append(children, newOccurrence(parent, n, due, actor, opts.Now))
	}
	return children, nil
}

func newOccurrence(parent *PaymentScheduleItem, index int, due time.Time, actor uuid.UUID, now time.Time) *PaymentScheduleItem {
	parentID := parent.ID
	desc := parent.Description
	if desc == "" {
		desc = string(parent.ItemType)
	}
	return &PaymentScheduleItem{
		AgencyAggregateRoot: shared.NewAgencyAggregateRoot(parent.AccountID, parent.AgencyID, actor, now),
		OfferLetterID:       parent.OfferLetterID,
		ItemType:            parent.ItemType,
		MilestoneType:       parent.MilestoneType,
		Description:         fmt.Sprintf("%s (occurrence %d)", desc, index),
		ScheduledAmount:     parent.ScheduledAmount,
		ScheduledDueDate:    due,
		Priority:            parent.Priority,
		Status:              ItemStatusActive,
		IsActive:            true,
		ParentItemID:        &parentID,
		OccurrenceIndex:     index,
	}
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func invalidFrequency(f Frequency) error {
	return &shared.DomainError{
		Code:    shared.CodeInvalidFrequency,
		Message: fmt.Sprintf("unknown recurrence frequency %q", string(f)),
		Details: map[string]any{"field": "recurringDetails.frequency", "value": string(f)},
	}
}
