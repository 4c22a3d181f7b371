// Package schedule implements the payment schedule item use cases.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/edubill/backend/internal/domain/agency"
	"github.com/edubill/backend/internal/domain/schedule"
	"github.com/edubill/backend/internal/domain/shared"
	"github.com/edubill/backend/internal/infrastructure/logger"
	"github.com/edubill/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	spanService = "schedule"
	entityName  = "payment schedule item"

	maxUpcomingDays = 366
)

// BillingLookup answers whether a schedule item has ever been billed
type BillingLookup interface {
	HasAnyForItem(ctx context.Context, accountID, itemID uuid.UUID) (bool, error)
}

// Options tunes the service
type Options struct {
	MaxRecurringOccurrences int
	ExpansionLockTTL        time.Duration
	DefaultUpcomingDays     int
}

// Service handles payment schedule item operations
type Service struct {
	items          schedule.PaymentScheduleItemRepository
	billing        BillingLookup
	guard          *agency.ScopeGuard
	txManager      shared.TransactionManager
	locks          shared.LockStore
	eventPublisher shared.EventPublisher
	clock          shared.Clock
	opts           Options
}

// NewService creates a new schedule Service
func NewService(
	items schedule.PaymentScheduleItemRepository,
	billing BillingLookup,
	guard *agency.ScopeGuard,
	txManager shared.TransactionManager,
	locks shared.LockStore,
	opts Options,
) *Service {
	if opts.MaxRecurringOccurrences <= 0 {
		opts.MaxRecurringOccurrences = schedule.DefaultMaxOccurrences
	}
	if opts.ExpansionLockTTL <= 0 {
		opts.ExpansionLockTTL = 30 * time.Second
	}
	if opts.DefaultUpcomingDays <= 0 {
		opts.DefaultUpcomingDays = 30
	}
	return &Service{
		items:     items,
		billing:   billing,
		guard:     guard,
		txManager: txManager,
		locks:     locks,
		clock:     shared.SystemClock,
		opts:      opts,
	}
}

// SetEventPublisher sets the publisher that receives item events after commit
func (s *Service) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// SetClock replaces the wall clock
func (s *Service) SetClock(clock shared.Clock) {
	s.clock = clock
}

// Create validates references against the caller's scope and stores a new active item
func (s *Service) Create(ctx context.Context, caller agency.Caller, req CreateItemRequest) (_ *ItemResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, "Create",
		telemetry.UUIDAttr(telemetry.AttrAccountID, caller.AccountID),
		telemetry.UUIDAttr(telemetry.AttrAgencyID, req.AgencyID),
	)
	defer telemetry.EndSpan(span, &err)

	if err = s.checkCaller(ctx, caller); err != nil {
		return nil, err
	}
	if _, err = s.guard.CheckAgency(ctx, caller.Scope, req.AgencyID); err != nil {
		return nil, err
	}
	if _, err = s.guard.CheckOfferLetter(ctx, caller.Scope, req.AgencyID, req.OfferLetterID); err != nil {
		return nil, err
	}

	amount, err := parseMoney("amount", req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}
	var recurring *schedule.RecurringDetails
	if req.Recurring != nil {
		recurring = req.Recurring.toDomain()
	}
	item, err := schedule.NewPaymentScheduleItem(schedule.NewItemParams{
		AccountID:     caller.AccountID,
		AgencyID:      req.AgencyID,
		OfferLetterID: req.OfferLetterID,
		ItemType:      schedule.ItemType(req.ItemType),
		MilestoneType: req.MilestoneType,
		Description:   req.Description,
		Amount:        amount,
		DueDate:       req.DueDate,
		Priority:      req.Priority,
		IsRecurring:   req.IsRecurring,
		Recurring:     recurring,
		CreatedBy:     caller.ActorID,
	}, s.clock())
	if err != nil {
		return nil, err
	}
	if err = s.items.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("create schedule item: %w", err)
	}

	logger.L(ctx).Info("payment schedule item created",
		zap.String("item_id", item.ID.String()),
		zap.String("item_type", string(item.ItemType)),
		zap.Bool("recurring", item.IsRecurring),
	)
	resp := ToItemResponse(item)
	return &resp, nil
}

// Get returns one item visible to the caller
func (s *Service) Get(ctx context.Context, caller agency.Caller, id uuid.UUID) (*ItemResponse, error) {
	item, err := s.load(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	resp := ToItemResponse(item)
	return &resp, nil
}

// List returns a page of items. An agency-bound caller sees its own agency's items.
func (s *Service) List(ctx context.Context, caller agency.Caller, req ListItemsRequest) ([]ItemResponse, error) {
	if err := s.checkCaller(ctx, caller); err != nil {
		return nil, err
	}
	filter := schedule.ItemFilter{
		Filter:        shared.Filter{Page: req.Page, PageSize: req.PageSize, OrderBy: "scheduled_due_date", OrderDir: "asc"},
		AccountID:     caller.AccountID,
		AgencyID:      caller.AgencyID,
		OfferLetterID: req.OfferLetterID,
		DueFrom:       req.DueFrom,
		DueTo:         req.DueTo,
	}
	if req.Status != "" {
		status := schedule.ItemStatus(req.Status)
		if !status.IsValid() {
			return nil, shared.NewValidationError("status", fmt.Sprintf("unknown status %q", req.Status))
		}
		filter.Statuses = []schedule.ItemStatus{status}
	}
	items, err := s.items.FindAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	return ToItemResponses(items), nil
}

// Update edits item attributes. Once the item has left active and has been
// billed, amount, item type and offer letter are frozen.
func (s *Service) Update(ctx context.Context, caller agency.Caller, id uuid.UUID, req UpdateItemRequest) (_ *ItemResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, "Update", telemetry.UUIDAttr(telemetry.AttrScheduleItem, id))
	defer telemetry.EndSpan(span, &err)

	item, err := s.load(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if req.OfferLetterID != nil {
		if _, err = s.guard.CheckOfferLetter(ctx, caller.Scope, item.AgencyID, *req.OfferLetterID); err != nil {
			return nil, err
		}
	}
	update, err := toItemUpdate(item, req)
	if err != nil {
		return nil, err
	}
	billed, err := s.billing.HasAnyForItem(ctx, caller.AccountID, item.ID)
	if err != nil {
		return nil, fmt.Errorf("check billing for item: %w", err)
	}
	next, changed, err := item.ApplyUpdate(update, billed, caller.ActorID, s.clock())
	if err != nil {
		return nil, err
	}
	if len(changed) == 0 {
		resp := ToItemResponse(item)
		return &resp, nil
	}
	if err = s.items.Update(ctx, next, item.Status, item.Version); err != nil {
		return nil, err
	}

	logger.L(ctx).Info("payment schedule item updated",
		zap.String("item_id", item.ID.String()),
		zap.Strings("fields", changed),
	)
	resp := ToItemResponse(next)
	return &resp, nil
}

// Retire moves an active item to retired
func (s *Service) Retire(ctx context.Context, caller agency.Caller, id uuid.UUID, reason string) (*ItemResponse, error) {
	return s.transition(ctx, caller, id, "Retire", func(item *schedule.PaymentScheduleItem, now time.Time) (*schedule.PaymentScheduleItem, error) {
		return item.Retire(caller.ActorID, reason, now)
	})
}

// Complete marks an active item as fulfilled
func (s *Service) Complete(ctx context.Context, caller agency.Caller, id uuid.UUID) (*ItemResponse, error) {
	return s.transition(ctx, caller, id, "Complete", func(item *schedule.PaymentScheduleItem, now time.Time) (*schedule.PaymentScheduleItem, error) {
		return item.Complete(caller.ActorID, now)
	})
}

// Cancel moves an active item to cancelled
func (s *Service) Cancel(ctx context.Context, caller agency.Caller, id uuid.UUID, reason string) (*ItemResponse, error) {
	return s.transition(ctx, caller, id, "Cancel", func(item *schedule.PaymentScheduleItem, now time.Time) (*schedule.PaymentScheduleItem, error) {
		return item.Cancel(caller.ActorID, reason, now)
	})
}

// Replace creates a replacement derived from the item and marks the item
// replaced by it. Both writes commit together or not at all.
func (s *Service) Replace(ctx context.Context, caller agency.Caller, id uuid.UUID, req ReplaceItemRequest) (_ *ReplaceResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, "Replace", telemetry.UUIDAttr(telemetry.AttrScheduleItem, id))
	defer telemetry.EndSpan(span, &err)

	original, err := s.load(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	replacement, err := newReplacement(original, req, caller.ActorID, now)
	if err != nil {
		return nil, err
	}
	replaced, err := original.Replace(replacement.ID, req.Reason, caller.ActorID, now)
	if err != nil {
		return nil, err
	}

	err = s.txManager.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.items.Create(ctx, replacement); err != nil {
			return fmt.Errorf("create replacement: %w", err)
		}
		return s.items.Update(ctx, replaced, original.Status, original.Version)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, replaced.GetDomainEvents()...)

	logger.L(ctx).Info("payment schedule item replaced",
		zap.String("item_id", original.ID.String()),
		zap.String("replacement_id", replacement.ID.String()),
	)
	return &ReplaceResponse{
		Original:    ToItemResponse(replaced),
		Replacement: ToItemResponse(replacement),
	}, nil
}

// GenerateRecurring expands a recurring parent into its child items. A
// parent that already has active children is rejected.
func (s *Service) GenerateRecurring(ctx context.Context, caller agency.Caller, id uuid.UUID) (_ *GenerateRecurringResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, "GenerateRecurring", telemetry.UUIDAttr(telemetry.AttrScheduleItem, id))
	defer telemetry.EndSpan(span, &err)

	parent, err := s.load(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	return s.expand(ctx, caller, parent)
}

// ExpansionSummary reports the outcome of ExpandPending
type ExpansionSummary struct {
	Expanded        int `json:"expanded"`
	Children        int `json:"children"`
	AlreadyExpanded int `json:"already_expanded"`
	Failed          int `json:"failed"`
}

// ExpandPending expands every active recurring parent in the caller's scope
// that has no active children yet. Failures are counted, not returned.
func (s *Service) ExpandPending(ctx context.Context, caller agency.Caller) (summary ExpansionSummary, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, "ExpandPending", telemetry.UUIDAttr(telemetry.AttrAccountID, caller.AccountID))
	defer telemetry.EndSpan(span, &err)

	if err = s.checkCaller(ctx, caller); err != nil {
		return summary, err
	}
	filter := schedule.ItemFilter{
		Filter:    shared.Filter{Page: 1, PageSize: 500, OrderBy: "scheduled_due_date", OrderDir: "asc"},
		AccountID: caller.AccountID,
		AgencyID:  caller.AgencyID,
		Statuses:  []schedule.ItemStatus{schedule.ItemStatusActive},
	}
	for {
		page, err := s.items.FindAll(ctx, filter)
		if err != nil {
			return summary, err
		}
		parents := lo.Filter(page, func(item schedule.PaymentScheduleItem, _ int) bool {
			return item.IsRecurring
		})
		for i := range parents {
			resp, err := s.expand(ctx, caller, &parents[i])
			switch {
			case err == nil:
				summary.Expanded++
				summary.Children += resp.Count
			case errors.Is(err, shared.ErrRecurringAlreadyExpanded):
				summary.AlreadyExpanded++
			default:
				summary.Failed++
				logger.L(ctx).Warn("recurring expansion failed",
					zap.String("item_id", parents[i].ID.String()),
					zap.Error(err),
				)
			}
		}
		if len(page) < filter.Limit() {
			break
		}
		filter.Page++
	}

	logger.L(ctx).Info("recurring expansion finished",
		zap.Int("expanded", summary.Expanded),
		zap.Int("children", summary.Children),
		zap.Int("already_expanded", summary.AlreadyExpanded),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

// ListOverdue returns active items due before asOf, defaulting to today
func (s *Service) ListOverdue(ctx context.Context, caller agency.Caller, asOf *time.Time) ([]ItemResponse, error) {
	if err := s.checkCaller(ctx, caller); err != nil {
		return nil, err
	}
	at := schedule.DateOnly(s.clock())
	if asOf != nil {
		at = schedule.DateOnly(*asOf)
	}
	items, err := s.items.FindOverdue(ctx, caller.AccountID, caller.AgencyID, at)
	if err != nil {
		return nil, err
	}
	return ToItemResponses(items), nil
}

// ListUpcoming returns active items due within the next days days
func (s *Service) ListUpcoming(ctx context.Context, caller agency.Caller, days int) ([]ItemResponse, error) {
	if err := s.checkCaller(ctx, caller); err != nil {
		return nil, err
	}
	if days <= 0 {
		days = s.opts.DefaultUpcomingDays
	}
	if days > maxUpcomingDays {
		return nil, shared.NewValidationError("days", fmt.Sprintf("must be at most %d", maxUpcomingDays))
	}
	from := schedule.DateOnly(s.clock())
	items, err := s.items.FindUpcoming(ctx, caller.AccountID, caller.AgencyID, from, from.AddDate(0, 0, days))
	if err != nil {
		return nil, err
	}
	return ToItemResponses(items), nil
}

func (s *Service) expand(ctx context.Context, caller agency.Caller, parent *schedule.PaymentScheduleItem) (*GenerateRecurringResponse, error) {
	if s.locks != nil {
		key := "expand:" + parent.ID.String()
		ok, err := s.locks.TryLock(ctx, key, s.opts.ExpansionLockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire expansion lock: %w", err)
		}
		if !ok {
			return nil, shared.ErrConcurrencyConflict.
				WithDetail("entity", entityName).
				WithDetail("id", parent.ID.String()).
				WithDetail("rule", "expansion_in_progress")
		}
		defer func() {
			if err := s.locks.Unlock(context.WithoutCancel(ctx), key); err != nil {
				logger.L(ctx).Warn("release expansion lock", zap.String("key", key), zap.Error(err))
			}
		}()
	}

	existing, err := s.items.CountActiveChildren(ctx, parent.AccountID, parent.ID)
	if err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, shared.ErrRecurringAlreadyExpanded.
			WithDetail("id", parent.ID.String()).
			WithDetail("activeChildren", existing)
	}

	now := s.clock()
	children, err := schedule.GenerateOccurrences(parent, schedule.GeneratorOptions{
		ActorID:        caller.ActorID,
		Now:            now,
		MaxOccurrences: s.opts.MaxRecurringOccurrences,
	})
	if err != nil {
		return nil, err
	}
	err = s.txManager.WithinTransaction(ctx, func(ctx context.Context) error {
		return s.items.CreateBatch(ctx, children)
	})
	if err != nil {
		return nil, fmt.Errorf("store recurring children: %w", err)
	}
	s.publish(ctx, schedule.NewItemsGeneratedEvent(parent, children, caller.ActorID, now))

	logger.L(ctx).Info("recurring item expanded",
		zap.String("item_id", parent.ID.String()),
		zap.Int("children", len(children)),
	)
	resp := &GenerateRecurringResponse{ParentID: parent.ID, Count: len(children), Items: make([]ItemResponse, len(children))}
	for i, c := range children {
		resp.Items[i] = ToItemResponse(c)
	}
	return resp, nil
}

func (s *Service) transition(
	ctx context.Context,
	caller agency.Caller,
	id uuid.UUID,
	op string,
	apply func(item *schedule.PaymentScheduleItem, now time.Time) (*schedule.PaymentScheduleItem, error),
) (_ *ItemResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, op, telemetry.UUIDAttr(telemetry.AttrScheduleItem, id))
	defer telemetry.EndSpan(span, &err)

	item, err := s.load(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	next, err := apply(item, s.clock())
	if err != nil {
		return nil, err
	}
	if err = s.items.Update(ctx, next, item.Status, item.Version); err != nil {
		return nil, err
	}
	s.publish(ctx, next.GetDomainEvents()...)

	span.SetAttributes(
		telemetry.AttrStatusFrom.String(string(item.Status)),
		telemetry.AttrStatusTo.String(string(next.Status)),
	)
	logger.L(ctx).Info("payment schedule item transitioned",
		zap.String("item_id", item.ID.String()),
		zap.String("from", string(item.Status)),
		zap.String("to", string(next.Status)),
	)
	resp := ToItemResponse(next)
	return &resp, nil
}

func (s *Service) checkCaller(ctx context.Context, caller agency.Caller) error {
	if err := caller.Validate(); err != nil {
		return err
	}
	return s.guard.CheckAccount(ctx, caller.Scope)
}

func (s *Service) load(ctx context.Context, caller agency.Caller, id uuid.UUID) (*schedule.PaymentScheduleItem, error) {
	if err := s.checkCaller(ctx, caller); err != nil {
		return nil, err
	}
	item, err := s.items.FindByID(ctx, caller.AccountID, id)
	if err != nil {
		return nil, err
	}
	if err := s.guard.CheckOwnership(ctx, caller.Scope, entityName, id, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Service) publish(ctx context.Context, events ...shared.DomainEvent) {
	if s.eventPublisher == nil || len(events) == 0 {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events...); err != nil {
		logger.L(ctx).Warn("publish schedule events", zap.Error(err))
	}
}

func toItemUpdate(item *schedule.PaymentScheduleItem, req UpdateItemRequest) (schedule.ItemUpdate, error) {
	u := schedule.ItemUpdate{
		OfferLetterID:    req.OfferLetterID,
		MilestoneType:    req.MilestoneType,
		Description:      req.Description,
		ScheduledDueDate: req.DueDate,
		Priority:         req.Priority,
	}
	if req.ItemType != nil {
		t := schedule.ItemType(*req.ItemType)
		u.ItemType = &t
	}
	if req.Amount != nil || req.Currency != nil {
		amount := item.ScheduledAmount.Amount()
		if req.Amount != nil {
			amount = *req.Amount
		}
		currency := item.ScheduledAmount.Currency().String()
		if req.Currency != nil {
			currency = *req.Currency
		}
		m, err := parseMoney("amount", amount, currency)
		if err != nil {
			return u, err
		}
		u.ScheduledAmount = &m
	}
	return u, nil
}

func newReplacement(original *schedule.PaymentScheduleItem, req ReplaceItemRequest, actorID uuid.UUID, now time.Time) (*schedule.PaymentScheduleItem, error) {
	amount := original.ScheduledAmount
	if req.Amount != nil || req.Currency != nil {
		value := lo.FromPtrOr(req.Amount, original.ScheduledAmount.Amount())
		currency := lo.FromPtrOr(req.Currency, original.ScheduledAmount.Currency().String())
		m, err := parseMoney("amount", value, currency)
		if err != nil {
			return nil, err
		}
		amount = m
	}
	parentID := original.ID
	return schedule.NewPaymentScheduleItem(schedule.NewItemParams{
		AccountID:     original.AccountID,
		AgencyID:      original.AgencyID,
		OfferLetterID: original.OfferLetterID,
		ItemType:      original.ItemType,
		MilestoneType: original.MilestoneType,
		Description:   lo.FromPtrOr(req.Description, original.Description),
		Amount:        amount,
		DueDate:       lo.FromPtrOr(req.DueDate, original.ScheduledDueDate),
		Priority:      lo.FromPtrOr(req.Priority, original.Priority),
		IsRecurring:   original.IsRecurring,
		Recurring:     original.RecurringDetails,
		ParentItemID:  &parentID,
		CreatedBy:     actorID,
	}, now)
}
