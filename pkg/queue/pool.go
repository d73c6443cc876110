package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dubaigit/task-mail-sub006/pkg/notify"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultWorkers      = 4
	DefaultPollInterval = 5 * time.Second
)

// ItemProcessor takes one due item to its next state.
type ItemProcessor interface {
	ProcessNext(ctx context.Context, workerID string) (bool, error)
}

// Pool runs a fixed number of workers. Each worker drains due items, then
// sleeps until the poll ticker fires, a wake notification arrives or the
// context ends.
type Pool struct {
	processor    ItemProcessor
	subscriber   notify.Subscriber
	workers      int
	pollInterval time.Duration
	name         string
	logger       *slog.Logger
}

type PoolOption func(*Pool)

// WithSubscriber wakes idle workers when high priority work is enqueued.
func WithSubscriber(subscriber notify.Subscriber) PoolOption {
	return func(p *Pool) { p.subscriber = subscriber }
}

func WithWorkers(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

// WithName prefixes worker ids, which are recorded as the claim owner.
func WithName(name string) PoolOption {
	return func(p *Pool) { p.name = name }
}

func NewPool(processor ItemProcessor, logger *slog.Logger, opts ...PoolOption) *Pool {
	p := &Pool{
		processor:    processor,
		workers:      DefaultWorkers,
		pollInterval: DefaultPollInterval,
		name:         "worker",
		logger:       logger.With("module", "worker_pool"),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Run blocks until ctx is cancelled and every worker has finished its current item.
func (p *Pool) Run(ctx context.Context) error {
	wake := make(chan struct{}, p.workers)

	if p.subscriber != nil {
		messages, err := p.subscriber.Subscribe(ctx)
		if err != nil {
			p.logger.WarnContext(ctx, "Notifications unavailable, relying on polling", "error", err)
		} else {
			go p.forward(ctx, messages, wake)
		}
	}

	p.logger.InfoContext(ctx, "Starting worker pool", "workers", p.workers, "poll_interval", p.pollInterval)

	g, ctx := errgroup.WithContext(ctx)

	for i := range p.workers {
		workerID := fmt.Sprintf("%s-%d", p.name, i+1)

		g.Go(func() error {
			return p.work(ctx, workerID, wake)
		})
	}

	err := g.Wait()

	p.logger.InfoContext(context.WithoutCancel(ctx), "Worker pool stopped")

	return err
}

// forward turns notifications into wake signals. A message without an item
// id follows a lost connection and always wakes.
func (p *Pool) forward(ctx context.Context, messages <-chan notify.Message, wake chan<- struct{}) {
	for msg := range messages {
		if msg.ItemID != "" && !msg.Wakes() {
			continue
		}

		select {
		case wake <- struct{}{}:
		case <-ctx.Done():
			return
		default:
			// every worker already has a pending wake
		}
	}
}

func (p *Pool) work(ctx context.Context, workerID string, wake <-chan struct{}) error {
	logger := p.logger.With("worker_id", workerID)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		p.drain(ctx, logger, workerID)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-wake:
		}
	}
}

// drain processes items until the queue has nothing due or a store error occurs.
func (p *Pool) drain(ctx context.Context, logger *slog.Logger, workerID string) {
	for ctx.Err() == nil {
		processed, err := p.processor.ProcessNext(ctx, workerID)
		if err != nil {
			logger.ErrorContext(ctx, "Worker failed to process queue", "error", err)

			return
		}

		if !processed {
			return
		}
	}
}
