// Package event is the in-process pub/sub used to fan committed billing
// audit records out to notification and metrics subscribers.
package event

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/edubill/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// InMemoryEventBus dispatches synchronously on the publisher's goroutine.
// Events reach it only after their transaction commits, so a failing or
// panicking subscriber is logged and counted and never fails Publish.
type InMemoryEventBus struct {
	subs     subscriptions
	log      *zap.Logger
	running  atomic.Bool
	failures atomic.Int64
}

func NewInMemoryEventBus(log *zap.Logger) *InMemoryEventBus {
	if log == nil {
		log = zap.NewNop()
	}
	return &InMemoryEventBus{log: log}
}

func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	for _, ev := range events {
		for _, h := range b.subs.matching(ev.EventType()) {
			if err := deliver(ctx, h, ev); err != nil {
				b.failures.Add(1)
				b.log.Error("Event subscriber failed",
					zap.String("event_type", ev.EventType()),
					zap.Stringer("event_id", ev.EventID()),
					zap.Stringer("account_id", ev.AccountID()),
					zap.Stringer("aggregate_id", ev.AggregateID()),
					zap.Error(err),
				)
			}
		}
	}
	return nil
}

// Subscribe registers h for eventTypes, or for h.EventTypes() when none are
// passed. An empty type list subscribes to everything.
func (b *InMemoryEventBus) Subscribe(h shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = h.EventTypes()
	}
	b.subs.add(h, eventTypes)
	b.log.Debug("Subscriber added", zap.Strings("event_types", eventTypes))
}

func (b *InMemoryEventBus) Unsubscribe(h shared.EventHandler) {
	b.subs.remove(h)
}

func (b *InMemoryEventBus) Start(context.Context) error {
	b.running.Store(true)
	b.log.Info("Event bus started", zap.Int("subscribers", b.subs.len()))
	return nil
}

// Stop has nothing to drain: dispatch is synchronous
func (b *InMemoryEventBus) Stop(context.Context) error {
	b.running.Store(false)
	b.log.Info("Event bus stopped", zap.Int64("subscriber_failures", b.failures.Load()))
	return nil
}

func (b *InMemoryEventBus) Running() bool   { return b.running.Load() }
func (b *InMemoryEventBus) Failures() int64 { return b.failures.Load() }

func deliver(ctx context.Context, h shared.EventHandler, ev shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panicked: %v", r)
		}
	}()
	return h.Handle(ctx, ev)
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)
