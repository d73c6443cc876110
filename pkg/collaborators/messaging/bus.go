package messaging

import (
	"context"
	"fmt"

	"github.com/dubaigit/task-mail-sub006/pkg/eventbus"
	"github.com/dubaigit/task-mail-sub006/pkg/events"
)

// BusNotifier delivers notifications by publishing them on the event bus.
type BusNotifier struct {
	publisher eventbus.EventPublisher
}

func NewBusNotifier(publisher eventbus.EventPublisher) *BusNotifier {
	return &BusNotifier{publisher: publisher}
}

func (n *BusNotifier) Notify(ctx context.Context, notification Notification) (Receipt, error) {
	event := events.NotificationRequested{
		BaseEvent:      events.NewBaseEvent(events.NotificationRequestedEvent),
		IdempotencyKey: notification.IdempotencyKey,
		Channel:        notification.Channel,
		Recipients:     notification.Recipients,
		Title:          notification.Title,
		Message:        notification.Message,
		Data:           notification.Data,
	}

	err := n.publisher.Publish(ctx, notification.IdempotencyKey, event)
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to publish notification: %w", err)
	}

	return Receipt{MessageID: event.ID}, nil
}
