package notify

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

const (
	minReconnectInterval = 10 * time.Second
	maxReconnectInterval = time.Minute
	listenerPingInterval = 90 * time.Second
	connectTimeout       = 15 * time.Second
)

// PostgresNotifier publishes with pg_notify and listens with a dedicated
// pq.Listener connection.
type PostgresNotifier struct {
	db          *sql.DB
	databaseURL string
	channel     string
	logger      *slog.Logger
}

func NewPostgresNotifier(db *sql.DB, databaseURL, channel string, logger *slog.Logger) *PostgresNotifier {
	if channel == "" {
		channel = Channel
	}

	return &PostgresNotifier{
		db:          db,
		databaseURL: databaseURL,
		channel:     channel,
		logger:      logger.With("module", "postgres_notifier", "channel", channel),
	}
}

func (n *PostgresNotifier) Publish(ctx context.Context, msg Message) error {
	payload, err := encode(msg)
	if err != nil {
		return err
	}

	_, err = n.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", n.channel, string(payload))
	if err != nil {
		return fmt.Errorf("failed to notify %s: %w", n.channel, err)
	}

	return nil
}

func (n *PostgresNotifier) Subscribe(ctx context.Context) (<-chan Message, error) {
	listener := pq.NewListener(n.databaseURL, minReconnectInterval, maxReconnectInterval,
		func(event pq.ListenerEventType, err error) {
			if err != nil {
				n.logger.ErrorContext(ctx, "Listener connection event", "event", event, "error", err)
			}
		})

	err := listener.Listen(n.channel)
	if err != nil {
		_ = listener.Close()

		return nil, fmt.Errorf("failed to listen on %s: %w", n.channel, err)
	}

	err = waitConnected(ctx, listener)
	if err != nil {
		_ = listener.Close()

		return nil, err
	}

	out := make(chan Message, subscriberBuffer)

	go func() {
		defer close(out)

		defer func() {
			if err := listener.Close(); err != nil {
				n.logger.ErrorContext(ctx, "Failed to close listener", "error", err)
			}
		}()

		ping := time.NewTicker(listenerPingInterval)
		defer ping.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case notification := <-listener.Notify:
				// nil after a reconnect: notifications may have been missed,
				// so wake the workers once.
				if notification == nil {
					if !deliver(ctx, out, Message{}) {
						return
					}

					continue
				}

				msg, err := decode([]byte(notification.Extra))
				if err != nil {
					n.logger.WarnContext(ctx, "Dropping malformed notification", "error", err)

					continue
				}

				if !deliver(ctx, out, msg) {
					return
				}

			case <-ping.C:
				go func() {
					if err := listener.Ping(); err != nil {
						n.logger.WarnContext(ctx, "Listener ping failed", "error", err)
					}
				}()
			}
		}
	}()

	return out, nil
}

// waitConnected blocks until the listener connection is up. Channels are
// listened on before the connection is marked ready, so a successful ping
// means no later publish can be missed.
func waitConnected(ctx context.Context, listener *pq.Listener) error {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if listener.Ping() == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("listener did not connect: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Close is a no-op; the database handle belongs to the persistence layer and
// each listener is closed with its subscription context.
func (n *PostgresNotifier) Close() error {
	return nil
}
