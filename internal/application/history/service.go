// Package history exposes the read side of the billing audit trail and the
// few writes it permits.
package history

import (
	"context"
	"errors"

	"github.com/edubill/backend/internal/domain/agency"
	"github.com/edubill/backend/internal/domain/billing"
	"github.com/edubill/backend/internal/domain/history"
	"github.com/edubill/backend/internal/domain/shared"
	"github.com/edubill/backend/internal/infrastructure/logger"
	"github.com/edubill/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const spanService = "history"

// TransactionLookup resolves the transaction a timeline belongs to
type TransactionLookup interface {
	FindByID(ctx context.Context, accountID, id uuid.UUID) (*billing.BillingTransaction, error)
}

// Service handles audit trail queries
type Service struct {
	store        history.Store
	transactions TransactionLookup
	guard        *agency.ScopeGuard
	metrics      *telemetry.BillingMetrics
}

// NewService creates a new history Service
func NewService(store history.Store, transactions TransactionLookup, guard *agency.ScopeGuard) *Service {
	return &Service{store: store, transactions: transactions, guard: guard}
}

// SetMetrics sets the billing counters
func (s *Service) SetMetrics(metrics *telemetry.BillingMetrics) {
	s.metrics = metrics
}

// Timeline returns a transaction's events oldest first. Hidden records are
// only returned to privileged callers.
func (s *Service) Timeline(ctx context.Context, caller agency.Caller, transactionID uuid.UUID, includeHidden bool) (_ []EventResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, "Timeline", telemetry.UUIDAttr(telemetry.AttrTransactionID, transactionID))
	defer telemetry.EndSpan(span, &err)

	if err = s.checkCaller(ctx, caller); err != nil {
		return nil, err
	}
	if includeHidden && !caller.Privileged {
		return nil, shared.ErrForbidden.WithDetail("rule", "hidden records require a privileged actor")
	}
	tx, err := s.transactions.FindByID(ctx, caller.AccountID, transactionID)
	if err != nil {
		return nil, err
	}
	if err = s.guard.CheckOwnership(ctx, caller.Scope, "billing transaction", transactionID, tx); err != nil {
		return nil, err
	}
	events, err := s.store.Timeline(ctx, caller.AccountID, transactionID, includeHidden)
	if err != nil {
		return nil, err
	}
	return ToEventResponses(events), nil
}

// ActivitySummary counts visible events per type within the window
func (s *Service) ActivitySummary(ctx context.Context, caller agency.Caller, req WindowRequest) (*ActivitySummaryResponse, error) {
	q, err := s.scopeQuery(ctx, caller, req)
	if err != nil {
		return nil, err
	}
	counts, err := s.store.ActivitySummary(ctx, q)
	if err != nil {
		return nil, err
	}
	resp := &ActivitySummaryResponse{From: req.From, To: req.To, Counts: make(map[string]int64, len(counts))}
	for t, n := range counts {
		resp.Counts[string(t)] = n
		resp.Total += n
	}
	return resp, nil
}

// UserActivity returns the events an actor triggered, newest first
func (s *Service) UserActivity(ctx context.Context, caller agency.Caller, userID uuid.UUID, req UserActivityRequest) ([]EventResponse, error) {
	if userID == uuid.Nil {
		return nil, shared.NewValidationError("userId", "is required")
	}
	q, err := s.scopeQuery(ctx, caller, req.WindowRequest)
	if err != nil {
		return nil, err
	}
	events, err := s.store.UserActivity(ctx, history.UserActivityQuery{ScopeQuery: q, UserID: userID, Limit: req.Limit})
	if err != nil {
		return nil, err
	}
	return ToEventResponses(events), nil
}

// Hide soft-deletes a record. It is the only removal the trail permits.
func (s *Service) Hide(ctx context.Context, caller agency.Caller, id uuid.UUID) (*EventResponse, error) {
	if !caller.Privileged {
		if err := caller.Validate(); err != nil {
			return nil, err
		}
		return nil, shared.ErrForbidden.WithDetail("rule", "hiding audit records requires a privileged actor")
	}
	return s.Amend(ctx, caller, id, AmendRequest{IsVisible: lo.ToPtr(false)})
}

// Amend applies a patch to a record. Changing a frozen field is refused and
// reported as an integrity violation.
func (s *Service) Amend(ctx context.Context, caller agency.Caller, id uuid.UUID, req AmendRequest) (_ *EventResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, "Amend")
	defer telemetry.EndSpan(span, &err)

	if _, err = s.load(ctx, caller, id); err != nil {
		return nil, err
	}
	p := req.toPatch()
	if p.IsVisible != nil && !caller.Privileged {
		return nil, shared.ErrForbidden.WithDetail("rule", "changing visibility requires a privileged actor")
	}
	next, err := s.store.Amend(ctx, caller.AccountID, id, p)
	if err != nil {
		s.reportIntegrity(ctx, caller, id, "amend", err)
		return nil, err
	}
	logger.L(ctx).Info("audit record amended",
		zap.String("event_id", id.String()),
		zap.Bool("is_visible", next.IsVisible),
		zap.Bool("notified", next.Notification.Sent),
	)
	resp := ToEventResponse(next)
	return &resp, nil
}

// Delete always fails. The attempt is logged as an integrity violation.
func (s *Service) Delete(ctx context.Context, caller agency.Caller, id uuid.UUID) error {
	if _, err := s.load(ctx, caller, id); err != nil {
		return err
	}
	err := s.store.Delete(ctx, caller.AccountID, id)
	if err == nil {
		err = history.DeleteForbidden(id.String())
	}
	s.reportIntegrity(ctx, caller, id, "delete", err)
	return err
}

func (s *Service) load(ctx context.Context, caller agency.Caller, id uuid.UUID) (*history.Event, error) {
	if err := s.checkCaller(ctx, caller); err != nil {
		return nil, err
	}
	e, err := s.store.FindByID(ctx, caller.AccountID, id)
	if err != nil {
		return nil, err
	}
	if err := s.guard.CheckOwnership(ctx, caller.Scope, "billing event history", id, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Service) reportIntegrity(ctx context.Context, caller agency.Caller, id uuid.UUID, op string, err error) {
	if !errors.Is(err, shared.ErrImmutableRecordViolation) && !errors.Is(err, shared.ErrDeleteForbidden) {
		return
	}
	s.metrics.IntegrityViolation(ctx, caller.AccountID.String(), op)
	logger.L(ctx).Error("audit record integrity violation",
		logger.IntegrityViolation,
		zap.String("operation", op),
		zap.String("event_id", id.String()),
		zap.String("actor_id", caller.ActorID.String()),
		zap.Error(err),
	)
}

func (s *Service) checkCaller(ctx context.Context, caller agency.Caller) error {
	if err := caller.Validate(); err != nil {
		return err
	}
	return s.guard.CheckAccount(ctx, caller.Scope)
}

// scopeQuery narrows to the caller's agency chain, or to the chain of a
// requested agency the caller may see
func (s *Service) scopeQuery(ctx context.Context, caller agency.Caller, req WindowRequest) (history.ScopeQuery, error) {
	q := history.ScopeQuery{AccountID: caller.AccountID, AgencyID: caller.AgencyID}
	if err := s.checkCaller(ctx, caller); err != nil {
		return q, err
	}
	if req.AgencyID != nil {
		if _, err := s.guard.CheckAgency(ctx, caller.Scope, *req.AgencyID); err != nil {
			return q, err
		}
		q.AgencyID = req.AgencyID
	}
	q.Window = shared.TimeWindow{From: lo.FromPtr(req.From), To: lo.FromPtr(req.To)}
	return q, q.Window.Validate()
}
