package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultVisibilityTimeout = 15 * time.Minute
	DefaultSweepSchedule     = "@every 1m"
)

var ErrVisibilityTimeout = errors.New("visibility timeout must be longer than the item timeout")

// CheckVisibilityTimeout rejects a visibility timeout that a live worker could
// outlast. Workers renew their claim before each workflow and a claimed item
// never runs past itemTimeout, so a longer visibility timeout only releases
// claims of workers that are gone.
func CheckVisibilityTimeout(visibilityTimeout, itemTimeout time.Duration) error {
	if visibilityTimeout <= itemTimeout {
		return fmt.Errorf("%w: %s <= %s", ErrVisibilityTimeout, visibilityTimeout, itemTimeout)
	}

	return nil
}

// StaleRequeuer returns abandoned claims to the queue.
type StaleRequeuer interface {
	RequeueStale(ctx context.Context, olderThan time.Time) (int64, error)
}

// Janitor periodically requeues items whose worker stopped without finishing
// them. Together with idempotent actions this gives at-least-once processing.
// Each release counts as a retry, so an item that keeps killing its worker
// ends up failed.
type Janitor struct {
	store             StaleRequeuer
	schedule          string
	visibilityTimeout time.Duration
	logger            *slog.Logger
	now               func() time.Time
}

func NewJanitor(store StaleRequeuer, schedule string, visibilityTimeout time.Duration, logger *slog.Logger) (*Janitor, error) {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}

	if visibilityTimeout <= 0 {
		visibilityTimeout = DefaultVisibilityTimeout
	}

	_, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule '%s': %w", schedule, err)
	}

	return &Janitor{
		store:             store,
		schedule:          schedule,
		visibilityTimeout: visibilityTimeout,
		logger:            logger.With("module", "queue_janitor"),
		now:               time.Now,
	}, nil
}

// Sweep requeues every claim older than the visibility timeout.
func (j *Janitor) Sweep(ctx context.Context) (int64, error) {
	requeued, err := j.store.RequeueStale(ctx, j.now().UTC().Add(-j.visibilityTimeout))
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stale items: %w", err)
	}

	if requeued > 0 {
		j.logger.WarnContext(ctx, "Requeued stale queue items", "count", requeued)
	}

	return requeued, nil
}

// Run sweeps on the schedule until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := c.AddFunc(j.schedule, func() {
		if _, err := j.Sweep(ctx); err != nil {
			j.logger.ErrorContext(ctx, "Sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	j.logger.InfoContext(ctx, "Starting queue janitor", "schedule", j.schedule, "visibility_timeout", j.visibilityTimeout)

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()

	return nil
}
