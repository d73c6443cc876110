package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisNotifier uses Redis pub/sub.
type RedisNotifier struct {
	client  redis.UniversalClient
	channel string
	logger  *slog.Logger
}

func NewRedisNotifier(client redis.UniversalClient, channel string, logger *slog.Logger) *RedisNotifier {
	if channel == "" {
		channel = Channel
	}

	return &RedisNotifier{
		client:  client,
		channel: channel,
		logger:  logger.With("module", "redis_notifier", "channel", channel),
	}
}

func (n *RedisNotifier) Publish(ctx context.Context, msg Message) error {
	payload, err := encode(msg)
	if err != nil {
		return err
	}

	err = n.client.Publish(ctx, n.channel, payload).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", n.channel, err)
	}

	return nil
}

func (n *RedisNotifier) Subscribe(ctx context.Context) (<-chan Message, error) {
	pubsub := n.client.Subscribe(ctx, n.channel)

	// Wait for the subscription confirmation so no publish is lost after return.
	_, err := pubsub.Receive(ctx)
	if err != nil {
		_ = pubsub.Close()

		return nil, fmt.Errorf("failed to subscribe to %s: %w", n.channel, err)
	}

	out := make(chan Message, subscriberBuffer)
	messages := pubsub.Channel()

	go func() {
		defer close(out)

		defer func() {
			if err := pubsub.Close(); err != nil {
				n.logger.ErrorContext(ctx, "Failed to close subscription", "error", err)
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return

			case raw, ok := <-messages:
				if !ok {
					return
				}

				msg, err := decode([]byte(raw.Payload))
				if err != nil {
					n.logger.WarnContext(ctx, "Dropping malformed notification", "error", err)

					continue
				}

				if !deliver(ctx, out, msg) {
					return
				}
			}
		}
	}()

	return out, nil
}

func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
