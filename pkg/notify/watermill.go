package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// WatermillNotifier sends notifications over any watermill pub/sub. With the
// gochannel pub/sub it serves single-process deployments and tests.
type WatermillNotifier struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	topic      string
	logger     *slog.Logger
}

func NewWatermillNotifier(pub message.Publisher, sub message.Subscriber, topic string, logger *slog.Logger) *WatermillNotifier {
	if topic == "" {
		topic = Channel
	}

	return &WatermillNotifier{
		publisher:  pub,
		subscriber: sub,
		topic:      topic,
		logger:     logger.With("module", "watermill_notifier", "topic", topic),
	}
}

func (n *WatermillNotifier) Publish(_ context.Context, msg Message) error {
	payload, err := encode(msg)
	if err != nil {
		return err
	}

	err = n.publisher.Publish(n.topic, message.NewMessage(watermill.NewUUID(), payload))
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", n.topic, err)
	}

	return nil
}

func (n *WatermillNotifier) Subscribe(ctx context.Context) (<-chan Message, error) {
	messages, err := n.subscriber.Subscribe(ctx, n.topic)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", n.topic, err)
	}

	out := make(chan Message, subscriberBuffer)

	go func() {
		defer close(out)

		for raw := range messages {
			raw.Ack()

			msg, err := decode(raw.Payload)
			if err != nil {
				n.logger.WarnContext(ctx, "Dropping malformed notification", "error", err)

				continue
			}

			if !deliver(ctx, out, msg) {
				return
			}
		}
	}()

	return out, nil
}

func (n *WatermillNotifier) Close() error {
	err := n.publisher.Close()
	if err != nil {
		return fmt.Errorf("failed to close publisher: %w", err)
	}

	return nil
}
