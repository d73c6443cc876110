package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dubaigit/task-mail-sub006/pkg/metrics"
	"github.com/dubaigit/task-mail-sub006/pkg/models"
	"github.com/dubaigit/task-mail-sub006/pkg/otelhelper"
	"github.com/dubaigit/task-mail-sub006/pkg/retry"
	"github.com/dubaigit/task-mail-sub006/pkg/template"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ActionLog persists action execution records. Each attempt overwrites the
// record with the same ID.
type ActionLog interface {
	SaveActionExecution(ctx context.Context, action *models.ActionExecution) error
}

// Dispatcher runs action nodes through the registry, retrying retryable
// failures according to its policy.
type Dispatcher struct {
	registry *Registry
	log      ActionLog
	policy   retry.Policy
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Collector
	tracer   trace.Tracer
}

type DispatcherOption func(*Dispatcher)

// WithActionLog persists every attempt. Without it records live only in the returned execution.
func WithActionLog(log ActionLog) DispatcherOption {
	return func(d *Dispatcher) { d.log = log }
}

func WithPolicy(policy retry.Policy) DispatcherOption {
	return func(d *Dispatcher) { d.policy = policy }
}

func WithMetrics(collector *metrics.Collector) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = collector }
}

func WithTracer(tracer trace.Tracer) DispatcherOption {
	return func(d *Dispatcher) { d.tracer = tracer }
}

// WithSleep replaces the wait between attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) DispatcherOption {
	return func(d *Dispatcher) { d.sleep = sleep }
}

func NewDispatcher(registry *Registry, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		policy:   retry.ActionPolicy(),
		sleep:    retry.Sleep,
		now:      time.Now,
		logger:   logger.With("module", "action_dispatcher"),
		tracer:   otelhelper.Tracer(),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// IdempotencyKey identifies one action of one execution across retries.
func IdempotencyKey(executionID, nodeID string) string {
	return executionID + ":" + nodeID
}

// Dispatch invokes the handler for node and returns the terminal record.
// An error is returned only for an unregistered action type or when the
// record cannot be persisted; handler failures are reported in the record.
func (d *Dispatcher) Dispatch(ctx context.Context, node *models.WorkflowNode, view models.ContextView) (*models.ActionExecution, error) {
	handler, ok := d.registry.Lookup(node.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, node.Type)
	}

	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "action.dispatch",
		attribute.String(otelhelper.ExecutionIDKey, view.ExecutionID()),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.ActionTypeKey, node.Type),
	)
	defer span.End()

	logger := d.logger.With("execution_id", view.ExecutionID(), "node_id", node.ID, "action_type", node.Type)

	record := &models.ActionExecution{
		ID:          uuid.Must(uuid.NewV7()).String(),
		ExecutionID: view.ExecutionID(),
		NodeID:      node.ID,
		ActionType:  node.Type,
		DryRun:      view.DryRun(),
		ExecutedAt:  d.now().UTC(),
	}

	props, err := template.RenderProperties(node.Properties, view)
	if err != nil {
		record.Config = node.Properties
		d.finish(record, Fatal(fmt.Errorf("%w: %w", ErrInvalidConfig, err)))
		otelhelper.SetError(span, err)

		return record, d.save(ctx, logger, record)
	}

	record.Config = props

	req := Request{
		NodeID:         node.ID,
		Props:          props,
		View:           view,
		IdempotencyKey: IdempotencyKey(view.ExecutionID(), node.ID),
	}

	if view.DryRun() {
		d.finish(record, d.simulate(handler, req))
		d.metrics.ObserveAction(node.Type, string(record.Status))

		return record, nil
	}

	for attempt := 1; ; attempt++ {
		result := d.invoke(ctx, handler, req)
		record.RetryCount = attempt - 1

		if !result.Success && result.Retryable && d.policy.CanRetry(attempt) && ctx.Err() == nil {
			record.Status = models.ActionStatusRetry
			record.ErrorMessage = errorMessage(result)

			logger.WarnContext(ctx, "Action attempt failed, retrying", "attempt", attempt, "error", record.ErrorMessage)

			err := d.save(ctx, logger, record)
			if err != nil {
				return record, err
			}

			err = d.sleep(ctx, d.policy.Backoff(attempt))
			if err == nil {
				continue
			}

			result = Fatal(fmt.Errorf("retry interrupted: %w", err))
		}

		d.finish(record, result)

		break
	}

	if record.Status == models.ActionStatusFailed {
		logger.ErrorContext(ctx, "Action failed", "retries", record.RetryCount, "error", record.ErrorMessage)
		otelhelper.SetError(span, errors.New(record.ErrorMessage))
	} else {
		logger.InfoContext(ctx, "Action succeeded", "retries", record.RetryCount)
	}

	d.metrics.ObserveAction(node.Type, string(record.Status))

	return record, d.save(ctx, logger, record)
}

func (d *Dispatcher) invoke(ctx context.Context, handler Handler, req Request) (result Result) {
	defer func() {
		if rec := recover(); rec != nil {
			result = Fatal(fmt.Errorf("action handler panicked: %v", rec))
		}
	}()

	return handler.Execute(ctx, req)
}

func (d *Dispatcher) simulate(handler Handler, req Request) (result Result) {
	defer func() {
		if rec := recover(); rec != nil {
			result = Fatal(fmt.Errorf("action handler panicked: %v", rec))
		}
	}()

	return handler.Simulate(req)
}

func (d *Dispatcher) finish(record *models.ActionExecution, result Result) {
	if result.Success {
		record.Status = models.ActionStatusSuccess
		record.Result = result.Payload
		record.ErrorMessage = ""

		return
	}

	record.Status = models.ActionStatusFailed
	record.ErrorMessage = errorMessage(result)
}

func errorMessage(result Result) string {
	if result.Err == nil {
		return "action failed"
	}

	return result.Err.Error()
}

func (d *Dispatcher) save(ctx context.Context, logger *slog.Logger, record *models.ActionExecution) error {
	if d.log == nil || record.DryRun {
		return nil
	}

	err := d.log.SaveActionExecution(ctx, record)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to persist action execution", "error", err)

		return fmt.Errorf("failed to persist action execution %s: %w", record.ID, err)
	}

	return nil
}
