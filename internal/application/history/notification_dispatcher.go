package history

import (
	"context"
	"fmt"

	"github.com/edubill/backend/internal/domain/history"
	"github.com/edubill/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Notifier delivers an audit record to subscribers outside the process
type Notifier interface {
	// Notify sends n and returns the channel it went out on
	Notify(ctx context.Context, n RecordNotification) (string, error)
}

// RecordNotification is the payload handed to a Notifier
type RecordNotification struct {
	AccountID     string `json:"account_id"`
	AgencyID      string `json:"agency_id"`
	TransactionID string `json:"transaction_id"`
	RecordID      string `json:"record_id"`
	EventType     string `json:"event_type"`
}

// logNotifier writes the notification to the log
type logNotifier struct {
	logger *zap.Logger
}

func (n logNotifier) Notify(_ context.Context, rn RecordNotification) (string, error) {
	n.logger.Info("billing event notification",
		zap.String("account_id", rn.AccountID),
		zap.String("transaction_id", rn.TransactionID),
		zap.String("record_id", rn.RecordID),
		zap.String("event_type", rn.EventType),
	)
	return "log", nil
}

// NotificationDispatcher handles RecordedEvent: it delivers the committed
// record and stamps its notification tracking
type NotificationDispatcher struct {
	store    history.Store
	notifier Notifier
	logger   *zap.Logger
	clock    shared.Clock
}

// NewNotificationDispatcher creates a dispatcher that logs notifications
// until WithNotifier installs a real channel
func NewNotificationDispatcher(store history.Store, logger *zap.Logger) *NotificationDispatcher {
	return &NotificationDispatcher{
		store:    store,
		notifier: logNotifier{logger: logger},
		logger:   logger,
		clock:    shared.SystemClock,
	}
}

// WithNotifier sets the delivery channel
func (d *NotificationDispatcher) WithNotifier(notifier Notifier) *NotificationDispatcher {
	d.notifier = notifier
	return d
}

// WithClock replaces the wall clock
func (d *NotificationDispatcher) WithClock(clock shared.Clock) *NotificationDispatcher {
	d.clock = clock
	return d
}

// EventTypes returns the event types this handler is interested in
func (d *NotificationDispatcher) EventTypes() []string {
	return []string{history.EventTypeRecorded}
}

// Handle delivers the record and marks it notified
func (d *NotificationDispatcher) Handle(ctx context.Context, event shared.DomainEvent) error {
	recorded, ok := event.(*history.RecordedEvent)
	if !ok {
		d.logger.Error("unexpected event type",
			zap.String("expected", history.EventTypeRecorded),
			zap.String("actual", event.EventType()),
		)
		return fmt.Errorf("unexpected event type: expected %s, got %s", history.EventTypeRecorded, event.EventType())
	}

	channel, err := d.notifier.Notify(ctx, RecordNotification{
		AccountID:     recorded.AccountID().String(),
		AgencyID:      recorded.AgencyID.String(),
		TransactionID: recorded.TransactionID.String(),
		RecordID:      recorded.RecordID.String(),
		EventType:     string(recorded.HistoryType),
	})
	if err != nil {
		d.logger.Warn("billing event notification failed",
			zap.String("record_id", recorded.RecordID.String()),
			zap.Error(err),
		)
		return err
	}

	at := d.clock().UTC()
	_, err = d.store.Amend(ctx, recorded.AccountID(), recorded.RecordID, history.Patch{
		Notification: &history.Notification{Sent: true, SentAt: &at, Channel: channel},
	})
	if err != nil {
		return fmt.Errorf("mark record %s notified: %w", recorded.RecordID, err)
	}
	return nil
}

var _ shared.EventHandler = (*NotificationDispatcher)(nil)
