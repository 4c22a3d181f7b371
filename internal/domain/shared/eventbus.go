package shared

import "context"

// EventPublisher is how services announce committed changes. Publishing
// happens after commit, so a publisher error never rolls anything back.
type EventPublisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
}

// EventHandler reacts to published events. EventTypes lists the types it
// wants; nil means every event.
type EventHandler interface {
	EventTypes() []string
	Handle(ctx context.Context, event DomainEvent) error
}

// EventBus is an EventPublisher that handlers can subscribe to
type EventBus interface {
	EventPublisher
	Subscribe(handler EventHandler, eventTypes ...string)
	Unsubscribe(handler EventHandler)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
