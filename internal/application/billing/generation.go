package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/edubill/backend/internal/domain/agency"
	"github.com/edubill/backend/internal/domain/billing"
	"github.com/edubill/backend/internal/domain/schedule"
	"github.com/edubill/backend/internal/domain/shared"
	"github.com/edubill/backend/internal/infrastructure/logger"
	"github.com/edubill/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

type itemOutcome int

const (
	itemCreated itemOutcome = iota
	itemInactive
	itemAlreadyBilled
	itemNotDue
	itemLocked
	itemFailed
)

// GenerateFromScheduleItems realizes due schedule items as pending
// transactions. Each item is handled independently: a failure on one item is
// reported in the result and never aborts the batch. Running it twice never
// bills an item twice.
func (s *TransactionService) GenerateFromScheduleItems(ctx context.Context, caller agency.Caller, req GenerateRequest) (result *GenerationResult, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, "GenerateFromScheduleItems",
		telemetry.UUIDAttr(telemetry.AttrAccountID, caller.AccountID),
	)
	defer telemetry.EndSpan(span, &err)

	started := time.Now()
	if err = s.checkCaller(ctx, caller); err != nil {
		return nil, err
	}
	if req.AgencyID != nil {
		if _, err = s.guard.CheckAgency(ctx, caller.Scope, *req.AgencyID); err != nil {
			return nil, err
		}
	}
	dueBy := s.asOf(req.DueDate)

	result = &GenerationResult{Created: []TransactionResponse{}}
	items, err := s.selectItems(ctx, caller, req, dueBy, result)
	if err != nil {
		return nil, err
	}

	for i := range items {
		item := &items[i]
		if req.AgencyID != nil && item.AgencyID != *req.AgencyID {
			err := s.guard.CheckOwnership(ctx, agency.Scope{AccountID: caller.AccountID, AgencyID: req.AgencyID},
				"payment schedule item", item.ID, item)
			if errors.Is(err, shared.ErrScopeViolation) {
				result.SkippedOtherAgency++
				continue
			}
			if err != nil {
				result.Failed = append(result.Failed, toGenerationFailure(item.ID, err))
				continue
			}
		}
		tx, outcome, err := s.generateOne(ctx, caller, item, dueBy)
		switch outcome {
		case itemCreated:
			result.Created = append(result.Created, ToTransactionResponse(tx))
		case itemInactive:
			result.SkippedInactive++
		case itemAlreadyBilled:
			result.SkippedAlreadyBilled++
		case itemNotDue:
			result.SkippedNotDue++
		case itemLocked:
			result.SkippedLocked++
		case itemFailed:
			result.Failed = append(result.Failed, toGenerationFailure(item.ID, err))
			logger.L(ctx).Warn("schedule item not billed",
				zap.String("item_id", item.ID.String()),
				zap.Error(err),
			)
		}
	}

	s.metrics.GenerationFinished(ctx, len(result.Created), result.Skipped(), len(result.Failed), time.Since(started))
	logger.L(ctx).Info("transaction generation finished",
		zap.String("account_id", caller.AccountID.String()),
		zap.Int("created", len(result.Created)),
		zap.Int("skipped", result.Skipped()),
		zap.Int("failed", len(result.Failed)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return result, nil
}

// selectItems resolves the explicit id list, or the unbilled active items due
// by dueBy in the caller's scope, oldest first. Unknown ids are recorded as not found.
func (s *TransactionService) selectItems(
	ctx context.Context,
	caller agency.Caller,
	req GenerateRequest,
	dueBy time.Time,
	result *GenerationResult,
) ([]schedule.PaymentScheduleItem, error) {
	if len(req.ItemIDs) == 0 {
		agencyID := req.AgencyID
		if agencyID == nil {
			agencyID = caller.AgencyID
		}
		return s.items.FindAll(ctx, schedule.ItemFilter{
			Filter:    shared.Filter{Page: 1, PageSize: s.opts.GenerationBatchLimit, OrderBy: "scheduled_due_date", OrderDir: "asc"},
			AccountID: caller.AccountID,
			AgencyID:  agencyID,
			Statuses:  []schedule.ItemStatus{schedule.ItemStatusActive},
			DueTo:     &dueBy,
			Unbilled:  true,
		})
	}

	ids := lo.Uniq(req.ItemIDs)
	if len(ids) > s.opts.GenerationBatchLimit {
		return nil, shared.NewValidationError("item_ids", fmt.Sprintf("at most %d items per request", s.opts.GenerationBatchLimit))
	}
	items, err := s.items.FindByIDs(ctx, caller.AccountID, ids)
	if err != nil {
		return nil, err
	}
	found := lo.Map(items, func(it schedule.PaymentScheduleItem, _ int) uuid.UUID { return it.ID })
	result.NotFound = lo.Without(ids, found...)
	return items, nil
}

// generateOne bills a single item under a per-item lock
func (s *TransactionService) generateOne(
	ctx context.Context,
	caller agency.Caller,
	item *schedule.PaymentScheduleItem,
	dueBy time.Time,
) (*billing.BillingTransaction, itemOutcome, error) {
	if !item.Billable() {
		return nil, itemInactive, nil
	}
	if item.ScheduledDueDate.After(dueBy) {
		return nil, itemNotDue, nil
	}
	if err := s.guard.CheckOwnership(ctx, caller.Scope, "payment schedule item", item.ID, item); err != nil {
		return nil, itemFailed, err
	}

	key := "generate:" + item.ID.String()
	acquired, err := s.locks.TryLock(ctx, key, s.opts.GenerationLockTTL)
	if err != nil {
		return nil, itemFailed, err
	}
	if !acquired {
		return nil, itemLocked, nil
	}
	defer func() {
		if err := s.locks.Unlock(context.WithoutCancel(ctx), key); err != nil {
			logger.L(ctx).Warn("release generation lock", zap.String("key", key), zap.Error(err))
		}
	}()

	exists, err := s.transactions.ExistsOpenForItem(ctx, caller.AccountID, item.ID)
	if err != nil {
		return nil, itemFailed, err
	}
	if exists {
		return nil, itemAlreadyBilled, nil
	}

	var offer *agency.OfferLetter
	if item.ItemType != schedule.ItemTypeCommission {
		offer, err = s.guard.CheckOfferLetter(ctx, caller.Scope, item.AgencyID, item.OfferLetterID)
		if err != nil {
			return nil, itemFailed, err
		}
	}

	out, err := billing.NewFromScheduleItem(item, offer, caller.ActorID, s.clock())
	if err != nil {
		return nil, itemFailed, err
	}
	if err := s.persistNew(ctx, out); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			return nil, itemAlreadyBilled, nil
		}
		return nil, itemFailed, err
	}
	return out.Transaction, itemCreated, nil
}

func toGenerationFailure(itemID uuid.UUID, err error) GenerationFailure {
	f := GenerationFailure{ItemID: itemID, Code: "INTERNAL_ERROR", Message: "failed to bill schedule item"}
	var de *shared.DomainError
	if errors.As(err, &de) {
		f.Code = de.Code
		f.Message = de.Message
	}
	return f
}
