// Package retry holds the retry policy shared by action dispatch and queue rescheduling.
package retry

import (
	"context"
	"time"
)

const (
	DefaultActionAttempts = 3
	DefaultActionDelay    = time.Second
	DefaultQueueDelay     = 5 * time.Minute
)

// Policy describes how many times an operation is attempted and how long to
// wait between attempts. Multiplier > 1 gives exponential backoff capped at MaxDelay.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

// ActionPolicy is used for action handler invocations.
func ActionPolicy() Policy {
	return Policy{MaxAttempts: DefaultActionAttempts, Delay: DefaultActionDelay}
}

// QueuePolicy is used when a queue item fails; the fixed five minute delay
// applies between every attempt.
func QueuePolicy() Policy {
	return Policy{MaxAttempts: 1, Delay: DefaultQueueDelay}
}

// Backoff returns the wait before the given retry, counted from 1.
func (p Policy) Backoff(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}

	delay := p.Delay
	if p.Multiplier > 1 {
		for i := 1; i < retry; i++ {
			delay = time.Duration(float64(delay) * p.Multiplier)
			if p.MaxDelay > 0 && delay >= p.MaxDelay {
				return p.MaxDelay
			}
		}
	}

	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}

	return delay
}

// Attempts returns the number of attempts, never less than one.
func (p Policy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}

	return p.MaxAttempts
}

// CanRetry reports whether another attempt is allowed after the given attempt (1-based).
func (p Policy) CanRetry(attempt int) bool {
	return attempt < p.Attempts()
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
