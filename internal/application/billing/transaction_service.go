// Package billing implements the billing transaction use cases and the
// pipeline that realizes schedule items as transactions.
package billing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/edubill/backend/internal/domain/agency"
	"github.com/edubill/backend/internal/domain/billing"
	"github.com/edubill/backend/internal/domain/history"
	"github.com/edubill/backend/internal/domain/schedule"
	"github.com/edubill/backend/internal/domain/shared"
	"github.com/edubill/backend/internal/infrastructure/logger"
	"github.com/edubill/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	spanService = "billing"
	entityName  = "billing transaction"
)

// Options tunes the service
type Options struct {
	GenerationLockTTL    time.Duration
	GenerationBatchLimit int
}

// TransactionService handles billing transaction operations
type TransactionService struct {
	transactions   billing.BillingTransactionRepository
	items          schedule.PaymentScheduleItemRepository
	history        history.Store
	guard          *agency.ScopeGuard
	txManager      shared.TransactionManager
	locks          shared.LockStore
	metrics        *telemetry.BillingMetrics
	eventPublisher shared.EventPublisher
	clock          shared.Clock
	opts           Options
}

// NewTransactionService creates a new TransactionService
func NewTransactionService(
	transactions billing.BillingTransactionRepository,
	items schedule.PaymentScheduleItemRepository,
	store history.Store,
	guard *agency.ScopeGuard,
	txManager shared.TransactionManager,
	locks shared.LockStore,
	opts Options,
) *TransactionService {
	if opts.GenerationLockTTL <= 0 {
		opts.GenerationLockTTL = 30 * time.Second
	}
	if opts.GenerationBatchLimit <= 0 {
		opts.GenerationBatchLimit = 500
	}
	return &TransactionService{
		transactions: transactions,
		items:        items,
		history:      store,
		guard:        guard,
		txManager:    txManager,
		locks:        locks,
		clock:        shared.SystemClock,
		opts:         opts,
	}
}

// SetEventPublisher sets the publisher that receives audit events after commit
func (s *TransactionService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// SetMetrics sets the billing counters. A nil value disables them.
func (s *TransactionService) SetMetrics(metrics *telemetry.BillingMetrics) {
	s.metrics = metrics
}

// SetClock replaces the wall clock
func (s *TransactionService) SetClock(clock shared.Clock) {
	s.clock = clock
}

// Create records a manual transaction. A linked schedule item must carry the
// transaction's own account and agency.
func (s *TransactionService) Create(ctx context.Context, caller agency.Caller, req CreateTransactionRequest) (_ *TransactionResponse, err error) {
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
	if req.PaymentScheduleItemID != nil {
		itemID := *req.PaymentScheduleItemID
		item, err := s.items.FindByID(ctx, caller.AccountID, itemID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return nil, shared.NewScopeViolation("payment schedule item", itemID.String(), "schedule item does not exist")
			}
			return nil, err
		}
		if err := s.guard.CheckLinkedItem(caller.AccountID, req.AgencyID, itemID, item); err != nil {
			return nil, err
		}
		if !item.Billable() {
			return nil, shared.NewInvalidTransition("payment schedule item", string(item.Status), "billed")
		}
	}

	amount, err := parseMoney("amount", req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}
	out, err := billing.New(billing.NewTransactionParams{
		AccountID:             caller.AccountID,
		AgencyID:              req.AgencyID,
		PaymentScheduleItemID: req.PaymentScheduleItemID,
		DebtorType:            billing.DebtorType(req.DebtorType),
		DebtorID:              req.DebtorID,
		Amount:                amount,
		TransactionType:       billing.TransactionType(req.TransactionType),
		DueDate:               req.DueDate,
		PaymentMethod:         req.PaymentMethod,
		Description:           req.Description,
		CreatedBy:             caller.ActorID,
	}, s.clock())
	if err != nil {
		return nil, err
	}
	if err = s.persistNew(ctx, out); err != nil {
		return nil, err
	}
	resp := ToTransactionResponse(out.Transaction)
	return &resp, nil
}

// Get returns one transaction visible to the caller
func (s *TransactionService) Get(ctx context.Context, caller agency.Caller, id uuid.UUID) (*TransactionResponse, error) {
	tx, err := s.load(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	resp := ToTransactionResponse(tx)
	return &resp, nil
}

// List returns a page of transactions. An agency-bound caller sees its own agency's transactions.
func (s *TransactionService) List(ctx context.Context, caller agency.Caller, req ListTransactionsRequest) ([]TransactionResponse, error) {
	if err := s.checkCaller(ctx, caller); err != nil {
		return nil, err
	}
	filter := billing.TransactionFilter{
		Filter:                shared.Filter{Page: req.Page, PageSize: req.PageSize, OrderBy: "due_date", OrderDir: "asc"},
		AccountID:             caller.AccountID,
		AgencyID:              caller.AgencyID,
		PaymentScheduleItemID: req.PaymentScheduleItemID,
		DueBefore:             req.DueBefore,
	}
	if req.Status != "" {
		status := billing.TransactionStatus(req.Status)
		if !status.IsValid() {
			return nil, shared.NewValidationError("status", fmt.Sprintf("unknown status %q", req.Status))
		}
		filter.Statuses = []billing.TransactionStatus{status}
	}
	txs, err := s.transactions.FindAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	return ToTransactionResponses(txs), nil
}

// Update edits non-lifecycle attributes under the restricted-field policy
func (s *TransactionService) Update(ctx context.Context, caller agency.Caller, id uuid.UUID, req UpdateTransactionRequest) (*TransactionResponse, error) {
	return s.mutate(ctx, caller, id, "Update", func(tx *billing.BillingTransaction, now time.Time) (*billing.Outcome, error) {
		u, err := toTransactionUpdate(tx, req)
		if err != nil {
			return nil, err
		}
		return tx.Update(caller.ActorID, u, now)
	})
}

// UpdateStatus moves the transaction to any status the transition table permits
func (s *TransactionService) UpdateStatus(ctx context.Context, caller agency.Caller, id uuid.UUID, req UpdateStatusRequest) (*TransactionResponse, error) {
	return s.mutate(ctx, caller, id, "UpdateStatus", func(tx *billing.BillingTransaction, now time.Time) (*billing.Outcome, error) {
		return tx.UpdateStatus(caller.ActorID, billing.TransactionStatus(req.Status), billing.StatusOptions{
			Date:          req.Date,
			PaymentMethod: req.PaymentMethod,
			Reason:        req.Reason,
		}, now)
	})
}

// Claim moves a pending transaction to claimed
func (s *TransactionService) Claim(ctx context.Context, caller agency.Caller, id uuid.UUID, req ClaimRequest) (*TransactionResponse, error) {
	return s.mutate(ctx, caller, id, "Claim", func(tx *billing.BillingTransaction, now time.Time) (*billing.Outcome, error) {
		return tx.Claim(caller.ActorID, req.ClaimDate, now)
	})
}

// MarkAsPaid settles a claimed, partially paid or overdue transaction
func (s *TransactionService) MarkAsPaid(ctx context.Context, caller agency.Caller, id uuid.UUID, req PayRequest) (*TransactionResponse, error) {
	return s.mutate(ctx, caller, id, "MarkAsPaid", func(tx *billing.BillingTransaction, now time.Time) (*billing.Outcome, error) {
		return tx.MarkAsPaid(caller.ActorID, req.PaidDate, req.PaymentMethod, now)
	})
}

// Dispute opens a dispute
func (s *TransactionService) Dispute(ctx context.Context, caller agency.Caller, id uuid.UUID, req DisputeRequest) (*TransactionResponse, error) {
	return s.mutate(ctx, caller, id, "Dispute", func(tx *billing.BillingTransaction, now time.Time) (*billing.Outcome, error) {
		return tx.Dispute(caller.ActorID, req.Reason, req.Date, now)
	})
}

// ResolveDispute closes a dispute as paid, cancelled or refunded
func (s *TransactionService) ResolveDispute(ctx context.Context, caller agency.Caller, id uuid.UUID, req ResolveDisputeRequest) (*TransactionResponse, error) {
	return s.mutate(ctx, caller, id, "ResolveDispute", func(tx *billing.BillingTransaction, now time.Time) (*billing.Outcome, error) {
		return tx.ResolveDispute(caller.ActorID, billing.TransactionStatus(req.Status), req.Date, req.Notes, now)
	})
}

// Cancel cancels a transaction that is neither paid nor refunded
func (s *TransactionService) Cancel(ctx context.Context, caller agency.Caller, id uuid.UUID, req ReasonRequest) (*TransactionResponse, error) {
	return s.mutate(ctx, caller, id, "Cancel", func(tx *billing.BillingTransaction, now time.Time) (*billing.Outcome, error) {
		return tx.Cancel(caller.ActorID, req.Reason, now)
	})
}

// Refund refunds a paid transaction
func (s *TransactionService) Refund(ctx context.Context, caller agency.Caller, id uuid.UUID, req ReasonRequest) (*TransactionResponse, error) {
	return s.mutate(ctx, caller, id, "Refund", func(tx *billing.BillingTransaction, now time.Time) (*billing.Outcome, error) {
		return tx.Refund(caller.ActorID, req.Reason, now)
	})
}

// AddApproval appends a sign-off. The same actor cannot approve a level twice.
func (s *TransactionService) AddApproval(ctx context.Context, caller agency.Caller, id uuid.UUID, req ApprovalRequest) (*TransactionResponse, error) {
	return s.mutate(ctx, caller, id, "AddApproval", func(tx *billing.BillingTransaction, now time.Time) (*billing.Outcome, error) {
		return tx.AddApproval(caller.ActorID, req.Level, req.Comments, now)
	})
}

// Reconcile marks a paid transaction reconciled. It is one-way.
func (s *TransactionService) Reconcile(ctx context.Context, caller agency.Caller, id uuid.UUID, req ReconcileRequest) (*TransactionResponse, error) {
	return s.mutate(ctx, caller, id, "Reconcile", func(tx *billing.BillingTransaction, now time.Time) (*billing.Outcome, error) {
		return tx.Reconcile(caller.ActorID, req.BankStatementRef, now)
	})
}

// ListOverdue returns outstanding transactions due before asOf, defaulting to today
func (s *TransactionService) ListOverdue(ctx context.Context, caller agency.Caller, asOf *time.Time) ([]TransactionResponse, error) {
	if err := s.checkCaller(ctx, caller); err != nil {
		return nil, err
	}
	txs, err := s.transactions.FindOverdue(ctx, caller.AccountID, caller.AgencyID, s.asOf(asOf))
	if err != nil {
		return nil, err
	}
	return ToTransactionResponses(txs), nil
}

// ListDisputed returns the transactions currently in dispute
func (s *TransactionService) ListDisputed(ctx context.Context, caller agency.Caller) ([]TransactionResponse, error) {
	if err := s.checkCaller(ctx, caller); err != nil {
		return nil, err
	}
	txs, err := s.transactions.FindDisputed(ctx, caller.AccountID, caller.AgencyID)
	if err != nil {
		return nil, err
	}
	return ToTransactionResponses(txs), nil
}

// RevenueSummary totals transactions due within [from, to) per currency
func (s *TransactionService) RevenueSummary(ctx context.Context, caller agency.Caller, req RevenueSummaryRequest) (_ *RevenueSummaryResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, "RevenueSummary", telemetry.UUIDAttr(telemetry.AttrAccountID, caller.AccountID))
	defer telemetry.EndSpan(span, &err)

	if err = s.checkCaller(ctx, caller); err != nil {
		return nil, err
	}
	window := shared.TimeWindow{From: lo.FromPtr(req.From), To: lo.FromPtr(req.To)}
	if err = window.Validate(); err != nil {
		return nil, err
	}
	rows, err := s.transactions.RevenueBreakdown(ctx, caller.AccountID, caller.AgencyID, window)
	if err != nil {
		return nil, err
	}
	return &RevenueSummaryResponse{From: req.From, To: req.To, Currencies: summarizeRevenue(rows)}, nil
}

// FlagOverdue moves claimed and partially paid transactions past their due
// date to overdue, one audit record each. A lost race is counted, not returned.
func (s *TransactionService) FlagOverdue(ctx context.Context, caller agency.Caller, asOf *time.Time) (result FlagOverdueResult, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, "FlagOverdue", telemetry.UUIDAttr(telemetry.AttrAccountID, caller.AccountID))
	defer telemetry.EndSpan(span, &err)

	if err = s.checkCaller(ctx, caller); err != nil {
		return result, err
	}
	txs, err := s.transactions.FindOverdue(ctx, caller.AccountID, caller.AgencyID, s.asOf(asOf))
	if err != nil {
		return result, err
	}
	candidates := lo.Filter(txs, func(tx billing.BillingTransaction, _ int) bool {
		return tx.Status.CanTransitionTo(billing.StatusOverdue)
	})
	result.Examined = len(txs)
	for i := range candidates {
		tx := &candidates[i]
		out, err := tx.MarkOverdue(caller.ActorID, s.clock())
		if err == nil {
			_, err = s.commit(ctx, tx, out)
		}
		switch {
		case err == nil:
			result.Flagged++
		case errors.Is(err, shared.ErrConcurrencyConflict):
			result.Conflicts++
		default:
			result.Failed++
			logger.L(ctx).Warn("flag overdue failed", zap.String("transaction_id", tx.ID.String()), zap.Error(err))
		}
	}
	s.metrics.OverdueFlagged(ctx, result.Flagged)

	logger.L(ctx).Info("overdue sweep finished",
		zap.Int("examined", result.Examined),
		zap.Int("flagged", result.Flagged),
		zap.Int("conflicts", result.Conflicts),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// mutate runs a pure operation against the current persisted state and
// writes its result together with the audit record.
func (s *TransactionService) mutate(
	ctx context.Context,
	caller agency.Caller,
	id uuid.UUID,
	op string,
	apply func(tx *billing.BillingTransaction, now time.Time) (*billing.Outcome, error),
) (_ *TransactionResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, op, telemetry.UUIDAttr(telemetry.AttrTransactionID, id))
	defer telemetry.EndSpan(span, &err)

	tx, err := s.load(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	out, err := apply(tx, s.clock())
	if err != nil {
		return nil, err
	}
	next, err := s.commit(ctx, tx, out)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		telemetry.AttrStatusFrom.String(string(tx.Status)),
		telemetry.AttrStatusTo.String(string(next.Status)),
	)
	resp := ToTransactionResponse(next)
	return &resp, nil
}

// commit persists out with a compare-and-swap on the loaded state and appends
// its audit record in the same database transaction. An outcome without a
// record is a no-op.
func (s *TransactionService) commit(ctx context.Context, current *billing.BillingTransaction, out *billing.Outcome) (*billing.BillingTransaction, error) {
	if !out.Changed() {
		return current, nil
	}
	err := s.txManager.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.transactions.CompareAndSwap(ctx, out.Transaction, out.ExpectedStatus, out.ExpectedVersion); err != nil {
			return err
		}
		if err := s.history.Append(ctx, out.Event); err != nil {
			return fmt.Errorf("append audit record: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			s.metrics.Conflict(ctx)
		} else {
			logger.L(ctx).Error("billing transaction write failed",
				zap.String("transaction_id", current.ID.String()),
				zap.String("event_type", string(out.Event.EventType)),
				zap.Error(err),
			)
		}
		return nil, err
	}

	next := out.Transaction
	s.metrics.StatusChanged(ctx, string(current.Status), string(next.Status))
	logger.L(ctx).Info("billing transaction changed",
		zap.String("transaction_id", next.ID.String()),
		zap.String("event_type", string(out.Event.EventType)),
		zap.String("from", string(current.Status)),
		zap.String("to", string(next.Status)),
	)
	s.publish(ctx, out.Event)
	return next, nil
}

// persistNew inserts a new transaction and its transaction_created record atomically
func (s *TransactionService) persistNew(ctx context.Context, out *billing.Outcome) error {
	tx := out.Transaction
	err := s.txManager.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.transactions.Create(ctx, tx); err != nil {
			return err
		}
		if err := s.history.Append(ctx, out.Event); err != nil {
			return fmt.Errorf("append audit record: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.metrics.TransactionCreated(ctx, string(tx.TransactionType), tx.Amount.Currency().String())
	logger.L(ctx).Info("billing transaction created",
		zap.String("transaction_id", tx.ID.String()),
		zap.String("transaction_type", string(tx.TransactionType)),
		zap.String("amount", tx.Amount.String()),
	)
	s.publish(ctx, out.Event)
	return nil
}

func (s *TransactionService) publish(ctx context.Context, e *history.Event) {
	if s.eventPublisher == nil || e == nil {
		return
	}
	if err := s.eventPublisher.Publish(ctx, history.NewRecordedEvent(e)); err != nil {
		logger.L(ctx).Warn("publish audit event", zap.String("event_id", e.ID.String()), zap.Error(err))
	}
}

func (s *TransactionService) checkCaller(ctx context.Context, caller agency.Caller) error {
	if err := caller.Validate(); err != nil {
		return err
	}
	return s.guard.CheckAccount(ctx, caller.Scope)
}

func (s *TransactionService) load(ctx context.Context, caller agency.Caller, id uuid.UUID) (*billing.BillingTransaction, error) {
	if err := s.checkCaller(ctx, caller); err != nil {
		return nil, err
	}
	tx, err := s.transactions.FindByID(ctx, caller.AccountID, id)
	if err != nil {
		return nil, err
	}
	if err := s.guard.CheckOwnership(ctx, caller.Scope, entityName, id, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *TransactionService) asOf(at *time.Time) time.Time {
	if at != nil {
		return schedule.DateOnly(*at)
	}
	return schedule.DateOnly(s.clock())
}

func toTransactionUpdate(tx *billing.BillingTransaction, req UpdateTransactionRequest) (billing.TransactionUpdate, error) {
	u := billing.TransactionUpdate{
		DebtorID:      req.DebtorID,
		DueDate:       req.DueDate,
		PaidDate:      req.PaidDate,
		PaymentMethod: req.PaymentMethod,
		Description:   req.Description,
	}
	if req.DebtorType != nil {
		d := billing.DebtorType(*req.DebtorType)
		u.DebtorType = &d
	}
	if req.TransactionType != nil {
		t := billing.TransactionType(*req.TransactionType)
		u.TransactionType = &t
	}
	if req.Amount != nil || req.Currency != nil {
		m, err := parseMoney("amount",
			lo.FromPtrOr(req.Amount, tx.Amount.Amount()),
			lo.FromPtrOr(req.Currency, tx.Amount.Currency().String()),
		)
		if err != nil {
			return u, err
		}
		u.Amount = &m
	}
	return u, nil
}

// summarizeRevenue folds breakdown rows into per-currency totals. Cancelled
// amounts are reported separately and never counted as billed.
func summarizeRevenue(rows []billing.RevenueRow) []CurrencyRevenue {
	byCurrency := lo.GroupBy(rows, func(r billing.RevenueRow) string { return r.Currency })
	out := make([]CurrencyRevenue, 0, len(byCurrency))
	for currency, group := range byCurrency {
		c := CurrencyRevenue{
			Currency:    currency,
			Billed:      decimal.Zero,
			Collected:   decimal.Zero,
			Outstanding: decimal.Zero,
			Disputed:    decimal.Zero,
			Refunded:    decimal.Zero,
			Cancelled:   decimal.Zero,
		}
		for _, r := range group {
			c.Count += r.Count
			c.Buckets = append(c.Buckets, RevenueBucket{
				Status:          string(r.Status),
				TransactionType: string(r.TransactionType),
				Count:           r.Count,
				Total:           r.Total,
			})
			switch {
			case r.Status == billing.StatusCancelled:
				c.Cancelled = c.Cancelled.Add(r.Total)
				continue
			case r.Status == billing.StatusPaid:
				c.Collected = c.Collected.Add(r.Total)
			case r.Status == billing.StatusRefunded:
				c.Refunded = c.Refunded.Add(r.Total)
			case r.Status == billing.StatusDisputed:
				c.Disputed = c.Disputed.Add(r.Total)
			case r.Status.IsOutstanding():
				c.Outstanding = c.Outstanding.Add(r.Total)
			}
			c.Billed = c.Billed.Add(r.Total)
		}
		sort.Slice(c.Buckets, func(i, j int) bool {
			if c.Buckets[i].Status != c.Buckets[j].Status {
				return c.Buckets[i].Status < c.Buckets[j].Status
			}
			return c.Buckets[i].TransactionType < c.Buckets[j].TransactionType
		})
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out
}
