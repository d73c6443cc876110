package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/dubaigit/task-mail-sub006/pkg/conditions"
	"github.com/dubaigit/task-mail-sub006/pkg/eventbus"
	"github.com/dubaigit/task-mail-sub006/pkg/events"
	"github.com/dubaigit/task-mail-sub006/pkg/metrics"
	"github.com/dubaigit/task-mail-sub006/pkg/models"
	"github.com/dubaigit/task-mail-sub006/pkg/otelhelper"
	"github.com/dubaigit/task-mail-sub006/pkg/persistence"
	"github.com/dubaigit/task-mail-sub006/pkg/retry"
	"github.com/dubaigit/task-mail-sub006/pkg/workflow"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	maxLastErrorLength = 512

	// DefaultItemTimeout bounds the processing of one claimed item.
	DefaultItemTimeout = 5 * time.Minute

	transitionTimeout = 10 * time.Second
)

var ErrCancelled = errors.New("cancelled by request")

// Store is the part of the persistence layer the processor needs.
type Store interface {
	Claim(ctx context.Context, workerID string, now time.Time) (*models.QueueItem, error)
	Complete(ctx context.Context, id, workerID string) error
	Reschedule(ctx context.Context, id, workerID string, retryCount int, scheduledAt time.Time, lastError string) error
	Fail(ctx context.Context, id, workerID string, lastError string) error
	Extend(ctx context.Context, id, workerID string, now time.Time) error
	IsCancelRequested(ctx context.Context, id string) (bool, error)
	EventByID(ctx context.Context, id string) (*models.Event, error)
	ExecutionByID(ctx context.Context, id string) (*models.WorkflowExecution, error)
}

// Workflows supplies active definitions and their compiled plans.
type Workflows interface {
	Active(ctx context.Context) ([]*models.Workflow, error)
	Plan(def *models.Workflow) (*workflow.Plan, error)
}

// Runner executes one compiled plan.
type Runner interface {
	Execute(ctx context.Context, plan *workflow.Plan, ec *models.ExecutionContext, opts workflow.ExecuteOptions) (*models.WorkflowExecution, error)
}

type Processor struct {
	store     Store
	workflows Workflows
	matcher   *workflow.TriggerMatcher
	runner    Runner
	stats     conditions.SenderStats
	bus       eventbus.EventPublisher
	policy    retry.Policy
	timeout   time.Duration
	metrics   *metrics.Collector
	tracer    trace.Tracer
	logger    *slog.Logger
	now       func() time.Time
}

type ProcessorOption func(*Processor)

// WithSenderStats records every processed sender for frequency conditions.
func WithSenderStats(stats conditions.SenderStats) ProcessorOption {
	return func(p *Processor) { p.stats = stats }
}

// WithEventBus publishes execution and failure events.
func WithEventBus(bus eventbus.EventPublisher) ProcessorOption {
	return func(p *Processor) { p.bus = bus }
}

func WithRetryPolicy(policy retry.Policy) ProcessorOption {
	return func(p *Processor) { p.policy = policy }
}

// WithItemTimeout bounds how long one claimed item may run. It must stay
// below the stale-claim visibility timeout.
func WithItemTimeout(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func WithProcessorMetrics(collector *metrics.Collector) ProcessorOption {
	return func(p *Processor) { p.metrics = collector }
}

func WithProcessorTracer(tracer trace.Tracer) ProcessorOption {
	return func(p *Processor) { p.tracer = tracer }
}

func WithClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) { p.now = now }
}

func NewProcessor(store Store, workflows Workflows, runner Runner, logger *slog.Logger, opts ...ProcessorOption) *Processor {
	p := &Processor{
		store:     store,
		workflows: workflows,
		matcher:   workflow.NewTriggerMatcher(logger),
		runner:    runner,
		policy:    retry.QueuePolicy(),
		timeout:   DefaultItemTimeout,
		tracer:    otelhelper.Tracer(),
		logger:    logger.With("module", "queue_processor"),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// ExecutionID is stable for a queue item and workflow, so a retried item
// reuses the execution record and the action idempotency keys of its earlier
// attempts.
func ExecutionID(itemID, workflowID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(itemID+":"+workflowID)).String()
}

// ProcessNext claims one due item and takes it to its next state. It reports
// false when nothing was due. The error is set only when the queue itself
// could not be read or updated.
//
// Once claimed, the item is processed to the end even if ctx is cancelled;
// only the item timeout cuts it short, and then it follows the retry path.
func (p *Processor) ProcessNext(ctx context.Context, workerID string) (bool, error) {
	item, err := p.store.Claim(ctx, workerID, p.now().UTC())
	if err != nil {
		if persistence.IsQueueEmpty(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to claim queue item: %w", err)
	}

	workCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	workCtx, span := otelhelper.StartSpan(workCtx, p.tracer, "queue.process",
		attribute.String(otelhelper.QueueItemIDKey, item.ID),
		attribute.String(otelhelper.EventIDKey, item.EventID),
		attribute.String(otelhelper.PriorityKey, string(item.Priority)),
		attribute.String(otelhelper.WorkerIDKey, workerID),
	)
	defer span.End()

	logger := p.logger.With("queue_item_id", item.ID, "event_id", item.EventID, "worker_id", workerID, "attempt", item.RetryCount+1)
	started := p.now()

	err = p.process(workCtx, logger, item, workerID)

	storeCtx, cancelStore := context.WithTimeout(trace.ContextWithSpan(context.WithoutCancel(ctx), span), transitionTimeout)
	defer cancelStore()

	var status models.QueueStatus

	if !persistence.IsClaimLost(err) {
		status, err = p.settle(storeCtx, logger, item, workerID, err)
	}

	if persistence.IsClaimLost(err) {
		logger.WarnContext(storeCtx, "Lost the claim on queue item, leaving it to its current owner", "error", err)

		return true, nil
	}

	p.metrics.ObserveQueueItem(string(status), p.now().Sub(started))

	if err != nil {
		otelhelper.SetError(span, err)
		logger.ErrorContext(storeCtx, "Failed to update queue item", "status", status, "error", err)

		return true, fmt.Errorf("failed to update queue item %s: %w", item.ID, err)
	}

	logger.InfoContext(storeCtx, "Processed queue item", "status", status)

	return true, nil
}

// settle records the processing outcome on the claimed item.
func (p *Processor) settle(ctx context.Context, logger *slog.Logger, item *models.QueueItem, workerID string, outcome error) (models.QueueStatus, error) {
	switch {
	case outcome == nil:
		return models.QueueStatusCompleted, p.store.Complete(ctx, item.ID, workerID)
	case errors.Is(outcome, ErrCancelled):
		logger.InfoContext(ctx, "Queue item cancelled")

		return models.QueueStatusFailed, p.store.Fail(ctx, item.ID, workerID, ErrCancelled.Error())
	default:
		otelhelper.SetError(trace.SpanFromContext(ctx), outcome)

		return p.retryOrFail(ctx, logger, item, workerID, outcome)
	}
}

// process runs the item's event through every matching workflow. A panic is
// turned into an error so the item follows the retry path.
func (p *Processor) process(ctx context.Context, logger *slog.Logger, item *models.QueueItem, workerID string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.ErrorContext(ctx, "Queue item processing panicked", "panic", rec, "stack", string(debug.Stack()))
			err = fmt.Errorf("processing panicked: %v", rec)
		}
	}()

	if p.cancelRequested(ctx, item.ID) {
		return ErrCancelled
	}

	event, err := p.store.EventByID(ctx, item.EventID)
	if err != nil {
		return fmt.Errorf("failed to load event: %w", err)
	}

	p.recordSender(ctx, logger, item, event)

	active, err := p.workflows.Active(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active workflows: %w", err)
	}

	matches := p.matcher.MatchWorkflows(event, active)
	failures := make([]error, 0)

	for _, match := range matches {
		if err := ctx.Err(); err != nil {
			failures = append(failures, fmt.Errorf("stopped before workflow %s: %w", match.Workflow.ID, err))

			break
		}

		err := p.store.Extend(ctx, item.ID, workerID, p.now().UTC())
		if persistence.IsClaimLost(err) {
			return err
		}

		if err != nil {
			logger.WarnContext(ctx, "Failed to extend claim", "error", err)
		}

		err = p.run(ctx, logger, item, event, match)

		switch {
		case errors.Is(err, ErrCancelled):
			return err
		case err != nil:
			failures = append(failures, err)
		}
	}

	return errors.Join(failures...)
}

func (p *Processor) run(ctx context.Context, logger *slog.Logger, item *models.QueueItem, event *models.Event, match workflow.Match) error {
	def := match.Workflow
	executionID := ExecutionID(item.ID, def.ID)

	previous, err := p.store.ExecutionByID(ctx, executionID)
	if err == nil && previous.Status.Terminal() && previous.Status != models.ExecutionStatusFailed {
		logger.InfoContext(ctx, "Skipping workflow finished on an earlier attempt", "workflow_id", def.ID, "status", previous.Status)

		return nil
	}

	plan, err := p.workflows.Plan(def)
	if err != nil {
		return fmt.Errorf("workflow %s: %w", def.ID, err)
	}

	ec := models.NewExecutionContext(executionID, def.ID, event, false)

	execution, err := p.runner.Execute(ctx, plan, ec, workflow.ExecuteOptions{
		QueueItemID:     item.ID,
		MatchedTriggers: match.Triggers,
		CancelCheck: func(ctx context.Context) bool {
			return p.cancelRequested(ctx, item.ID)
		},
	})
	if err != nil {
		return fmt.Errorf("workflow %s: %w", def.ID, err)
	}

	p.publish(ctx, logger, execution.WorkflowID, events.ExecutionCompleted{
		BaseEvent:   events.NewBaseEvent(events.ExecutionCompletedEvent),
		ExecutionID: execution.ID,
		WorkflowID:  execution.WorkflowID,
		EventID:     execution.EventID,
		Status:      string(execution.Status),
		DurationMs:  execution.DurationMs,
		Actions:     len(execution.Actions),
	})

	if execution.Status == models.ExecutionStatusPartial && p.cancelRequested(ctx, item.ID) {
		return ErrCancelled
	}

	if execution.Status == models.ExecutionStatusFailed {
		return fmt.Errorf("workflow %s: %s", def.ID, execution.ErrorMessage)
	}

	return nil
}

// retryOrFail reschedules the item while it has retries left and fails it otherwise.
func (p *Processor) retryOrFail(ctx context.Context, logger *slog.Logger, item *models.QueueItem, workerID string, cause error) (models.QueueStatus, error) {
	message := models.Truncate(cause.Error(), maxLastErrorLength)

	if item.RetryCount < item.MaxRetries {
		retryCount := item.RetryCount + 1
		scheduledAt := p.now().UTC().Add(p.policy.Backoff(retryCount))

		logger.WarnContext(ctx, "Queue item failed, rescheduling",
			"retry_count", retryCount,
			"scheduled_at", scheduledAt,
			"error", message)

		return models.QueueStatusRetrying, p.store.Reschedule(ctx, item.ID, workerID, retryCount, scheduledAt, message)
	}

	logger.ErrorContext(ctx, "Queue item failed permanently", "retry_count", item.RetryCount, "error", message)

	err := p.store.Fail(ctx, item.ID, workerID, message)
	if err != nil {
		return models.QueueStatusFailed, err
	}

	p.publish(ctx, logger, item.EventID, events.QueueItemFailed{
		BaseEvent:   events.NewBaseEvent(events.QueueItemFailedEvent),
		QueueItemID: item.ID,
		EventID:     item.EventID,
		RetryCount:  item.RetryCount,
		Error:       message,
	})

	return models.QueueStatusFailed, nil
}

func (p *Processor) cancelRequested(ctx context.Context, itemID string) bool {
	cancelled, err := p.store.IsCancelRequested(ctx, itemID)
	if err != nil {
		p.logger.WarnContext(ctx, "Failed to read cancel flag", "queue_item_id", itemID, "error", err)

		return false
	}

	return cancelled
}

// recordSender counts the message once, on its first attempt.
func (p *Processor) recordSender(ctx context.Context, logger *slog.Logger, item *models.QueueItem, event *models.Event) {
	if p.stats == nil || item.RetryCount > 0 || event.From == "" {
		return
	}

	at := event.ReceivedAt
	if at.IsZero() {
		at = p.now()
	}

	err := p.stats.Record(ctx, event.From, at)
	if err != nil {
		logger.WarnContext(ctx, "Failed to record sender", "error", err)
	}
}

func (p *Processor) publish(ctx context.Context, logger *slog.Logger, key string, event eventbus.Event) {
	if p.bus == nil {
		return
	}

	err := p.bus.Publish(ctx, key, event)
	if err != nil {
		logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
