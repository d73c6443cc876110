// Package messaging is the client of the outbound mail and notification transport.
package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dubaigit/task-mail-sub006/pkg/collaborators"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout   = 15 * time.Second
	DefaultRateLimit = 10
)

type Reply struct {
	IdempotencyKey string   `json:"-"`
	InReplyTo      string   `json:"in_reply_to"`
	To             []string `json:"to"`
	Subject        string   `json:"subject"`
	Body           string   `json:"body"`
}

type Forward struct {
	IdempotencyKey string   `json:"-"`
	EventID        string   `json:"event_id"`
	To             []string `json:"to"`
	Note           string   `json:"note,omitempty"`
}

type Notification struct {
	IdempotencyKey string         `json:"idempotency_key"`
	Channel        string         `json:"channel"`
	Recipients     []string       `json:"recipients,omitempty"`
	Title          string         `json:"title"`
	Message        string         `json:"message"`
	Data           map[string]any `json:"data,omitempty"`
}

// Receipt acknowledges a delivered message.
type Receipt struct {
	MessageID string `json:"message_id"`
}

type Mailer interface {
	SendReply(ctx context.Context, reply Reply) (Receipt, error)
}

type Forwarder interface {
	Forward(ctx context.Context, forward Forward) (Receipt, error)
}

type Notifier interface {
	Notify(ctx context.Context, notification Notification) (Receipt, error)
}

// Client sends mail and notifications through the HTTP messaging transport.
// Calls are rate limited and carry the idempotency key so retries are deduplicated.
type Client struct {
	http    *collaborators.JSONClient
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewClient(baseURL string, timeout time.Duration, ratePerSecond int, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	if ratePerSecond <= 0 {
		ratePerSecond = DefaultRateLimit
	}

	logger = logger.With("module", "messaging")

	return &Client{
		http:    collaborators.NewJSONClient("messaging", baseURL, timeout, logger),
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), ratePerSecond*2),
		logger:  logger,
	}
}

func (c *Client) SendReply(ctx context.Context, reply Reply) (Receipt, error) {
	return c.send(ctx, "/v1/messages/reply", reply.IdempotencyKey, reply)
}

func (c *Client) Forward(ctx context.Context, forward Forward) (Receipt, error) {
	return c.send(ctx, "/v1/messages/forward", forward.IdempotencyKey, forward)
}

func (c *Client) Notify(ctx context.Context, notification Notification) (Receipt, error) {
	return c.send(ctx, "/v1/notifications", notification.IdempotencyKey, notification)
}

func (c *Client) send(ctx context.Context, path, idempotencyKey string, body any) (Receipt, error) {
	err := c.limiter.Wait(ctx)
	if err != nil {
		return Receipt{}, fmt.Errorf("rate limiter: %w", err)
	}

	var receipt Receipt

	err = c.http.Post(ctx, path, map[string]string{collaborators.IdempotencyKeyHeader: idempotencyKey}, body, &receipt)
	if err != nil {
		return Receipt{}, err
	}

	c.logger.DebugContext(ctx, "Message delivered", "path", path, "message_id", receipt.MessageID)

	return receipt, nil
}
