package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// MeterName names the meter that owns the billing instruments
const MeterName = "edubill.billing"

var (
	attrStatusFrom   = attribute.Key("status_from")
	attrStatusTo     = attribute.Key("status_to")
	attrTxType       = attribute.Key("transaction_type")
	attrCurrency     = attribute.Key("currency")
	attrOutcome      = attribute.Key("outcome")
	attrViolation    = attribute.Key("violation")
	attrAccountLabel = attribute.Key("account_id")
)

// Generation outcomes
const (
	OutcomeGenerated = "generated"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// BillingMetrics holds the instruments emitted by the billing services.
// A nil *BillingMetrics is valid and records nothing.
type BillingMetrics struct {
	transactionsCreated *Counter
	statusTransitions   *Counter
	generationItems     *Counter
	generationDuration  *Histogram
	overdueFlagged      *Counter
	integrityViolations *Counter
	conflicts           *Counter
}

// NewBillingMetrics registers the billing instruments on mp
func NewBillingMetrics(mp *MeterProvider) (*BillingMetrics, error) {
	meter := mp.Meter(MeterName)
	bm := &BillingMetrics{}
	var errs []error
	counter := func(name, desc string) *Counter {
		c, err := NewCounter(meter, name, desc, "{count}")
		errs = append(errs, err)
		return c
	}
	bm.transactionsCreated = counter("billing.transactions.created", "Billing transactions created")
	bm.statusTransitions = counter("billing.transactions.transitions", "Billing transaction status changes")
	bm.generationItems = counter("billing.generation.items", "Schedule items processed by the generation pipeline")
	bm.overdueFlagged = counter("billing.transactions.overdue_flagged", "Transactions moved to overdue by the sweep")
	bm.integrityViolations = counter("billing.history.integrity_violations", "Rejected attempts to mutate or delete audit history")
	bm.conflicts = counter("billing.transactions.conflicts", "Compare-and-swap updates that lost a race")

	h, err := NewHistogram(meter, "billing.generation.duration", "Duration of one generation run", "s",
		0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30)
	errs = append(errs, err)
	bm.generationDuration = h

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return bm, nil
}

// TransactionCreated counts a new transaction
func (bm *BillingMetrics) TransactionCreated(ctx context.Context, txType, currency string) {
	if bm == nil {
		return
	}
	bm.transactionsCreated.Inc(ctx, attrTxType.String(txType), attrCurrency.String(currency))
}

// StatusChanged counts a committed status transition
func (bm *BillingMetrics) StatusChanged(ctx context.Context, from, to string) {
	if bm == nil || from == to {
		return
	}
	bm.statusTransitions.Inc(ctx, attrStatusFrom.String(from), attrStatusTo.String(to))
}

// GenerationFinished records the per-item outcomes and duration of one run
func (bm *BillingMetrics) GenerationFinished(ctx context.Context, generated, skipped, failed int, elapsed time.Duration) {
	if bm == nil {
		return
	}
	bm.generationItems.Add(ctx, int64(generated), attrOutcome.String(OutcomeGenerated))
	bm.generationItems.Add(ctx, int64(skipped), attrOutcome.String(OutcomeSkipped))
	bm.generationItems.Add(ctx, int64(failed), attrOutcome.String(OutcomeFailed))
	bm.generationDuration.RecordDuration(ctx, elapsed)
}

// OverdueFlagged counts transactions moved to overdue
func (bm *BillingMetrics) OverdueFlagged(ctx context.Context, n int) {
	if bm == nil || n == 0 {
		return
	}
	bm.overdueFlagged.Add(ctx, int64(n))
}

// IntegrityViolation counts a rejected mutation of audit history
func (bm *BillingMetrics) IntegrityViolation(ctx context.Context, accountID, kind string) {
	if bm == nil {
		return
	}
	bm.integrityViolations.Inc(ctx, attrAccountLabel.String(accountID), attrViolation.String(kind))
}

// Conflict counts a lost compare-and-swap
func (bm *BillingMetrics) Conflict(ctx context.Context) {
	if bm == nil {
		return
	}
	bm.conflicts.Inc(ctx)
}
