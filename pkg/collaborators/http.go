// Package collaborators holds the shared HTTP plumbing for the external services
// the automation core calls: the classification service and the messaging transport.
package collaborators

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/dubaigit/task-mail-sub006/pkg/models"
	"github.com/sony/gobreaker"
)

const IdempotencyKeyHeader = "Idempotency-Key"

// StatusError is returned when a collaborator answers with a non-2xx status.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s responded with status %d: %s", e.Service, e.StatusCode, e.Body)
}

// IsRetryable reports whether a collaborator failure is transient. Timeouts,
// transport errors, open breakers, 429 and 5xx are retryable; other 4xx are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return false
}

// NewBreaker builds the circuit breaker used in front of a collaborator.
func NewBreaker(name string, logger *slog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)

			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			// 4xx responses do not count against the breaker.
			return err == nil || !IsRetryable(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	})
}

// JSONClient posts JSON requests to a collaborator through a circuit breaker.
type JSONClient struct {
	service string
	baseURL string
	timeout time.Duration
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewJSONClient(service, baseURL string, timeout time.Duration, logger *slog.Logger) *JSONClient {
	return &JSONClient{
		service: service,
		baseURL: baseURL,
		timeout: timeout,
		http:    &http.Client{},
		breaker: NewBreaker(service, logger),
	}
}

// Post sends in as JSON to path and decodes the response into out.
func (c *JSONClient) Post(ctx context.Context, path string, headers map[string]string, in, out any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.do(ctx, path, headers, in, out)
	})

	return err
}

func (c *JSONClient) do(ctx context.Context, path string, headers map[string]string, in, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", c.service, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", c.service, err)
	}

	req.Header.Set("Content-Type", "application/json")

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", c.service, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", c.service, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Service: c.service, StatusCode: resp.StatusCode, Body: models.Truncate(string(body), 256)}
	}

	if out == nil || len(body) == 0 {
		return nil
	}

	err = json.Unmarshal(body, out)
	if err != nil {
		return fmt.Errorf("failed to decode %s response: %w", c.service, err)
	}

	return nil
}
