package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dubaigit/task-mail-sub006/pkg/eventbus"
	"github.com/dubaigit/task-mail-sub006/pkg/events"
	"github.com/dubaigit/task-mail-sub006/pkg/metrics"
	"github.com/dubaigit/task-mail-sub006/pkg/models"
	"github.com/dubaigit/task-mail-sub006/pkg/notify"
	"github.com/dubaigit/task-mail-sub006/pkg/persistence"
	"github.com/dubaigit/task-mail-sub006/pkg/queue"
	"github.com/dubaigit/task-mail-sub006/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	defaultExecutionsLimit = 50
	defaultFailedLimit     = 100
)

// Automation is the entry point for transports.
type Automation struct {
	store     persistence.Persistence
	workflows *workflow.Repository
	runner    queue.Runner
	notifier  notify.Publisher
	bus       eventbus.EventPublisher
	metrics   *metrics.Collector
	validate  *validator.Validate
	logger    *slog.Logger
}

type Option func(*Automation)

// WithNotifier announces every new queue item to idle workers.
func WithNotifier(notifier notify.Publisher) Option {
	return func(a *Automation) { a.notifier = notifier }
}

func WithEventBus(bus eventbus.EventPublisher) Option {
	return func(a *Automation) { a.bus = bus }
}

func WithMetrics(collector *metrics.Collector) Option {
	return func(a *Automation) { a.metrics = collector }
}

// NewAutomation creates the service. runner executes test runs; in production
// it is the same executor the workers use.
func NewAutomation(store persistence.Persistence, workflows *workflow.Repository, runner queue.Runner, logger *slog.Logger, opts ...Option) *Automation {
	a := &Automation{
		store:     store,
		workflows: workflows,
		runner:    runner,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger.With("module", "automation_service"),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// HealthCheck checks the health of the persistence layer.
func (a *Automation) HealthCheck(ctx context.Context) (string, bool) {
	if a.store == nil {
		return "Persistence layer not initialized", false
	}

	err := a.store.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Enqueue stores the event and queues it for processing. An empty priority is
// derived from the event. Enqueueing the same event id again returns the
// existing item.
func (a *Automation) Enqueue(ctx context.Context, event *models.Event, priority models.Priority) (*models.QueueItem, error) {
	const op = "Enqueue"

	if event == nil {
		return nil, classify(op, fmt.Errorf("%w: event is required", ErrInvalidEvent))
	}

	if event.Type == "" {
		event.Type = models.EventTypeEmailReceived
	}

	err := a.validate.Struct(event)
	if err != nil {
		return nil, classify(op, fmt.Errorf("%w: %w", ErrInvalidEvent, err))
	}

	if priority == "" {
		priority = queue.DerivePriority(event)
	}

	if !priority.Valid() {
		return nil, classify(op, fmt.Errorf("%w: %q", ErrInvalidPriority, priority))
	}

	err = a.store.SaveEvent(ctx, event)
	if err != nil {
		return nil, classify(op, fmt.Errorf("failed to save event: %w", err))
	}

	item := &models.QueueItem{
		EventID:   event.ID,
		EventType: event.Type,
		Priority:  priority,
	}

	created, err := a.store.Enqueue(ctx, item)
	if err != nil {
		return nil, classify(op, fmt.Errorf("failed to enqueue event: %w", err))
	}

	logger := a.logger.With("event_id", event.ID, "queue_item_id", item.ID, "priority", item.Priority)

	if !created {
		logger.InfoContext(ctx, "Event already queued")

		return item, nil
	}

	a.metrics.ObserveEnqueue(string(item.Priority))
	logger.InfoContext(ctx, "Enqueued event")

	a.announce(ctx, logger, item)
	a.publish(ctx, logger, event.ID, events.EventEnqueued{
		BaseEvent:   events.NewBaseEvent(events.EventEnqueuedEvent),
		EventID:     event.ID,
		QueueItemID: item.ID,
		Priority:    string(item.Priority),
	})

	return item, nil
}

// GetExecution returns an execution with its action records.
func (a *Automation) GetExecution(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	execution, err := a.store.ExecutionByID(ctx, id)
	if err != nil {
		return nil, classify("GetExecution", err)
	}

	return execution, nil
}

// ListExecutions returns the latest executions of a workflow, newest first.
func (a *Automation) ListExecutions(ctx context.Context, workflowID string, limit int) ([]*models.WorkflowExecution, error) {
	const op = "ListExecutions"

	_, err := a.workflows.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, classify(op, err)
	}

	if limit <= 0 {
		limit = defaultExecutionsLimit
	}

	executions, err := a.store.ExecutionsByWorkflow(ctx, workflowID, limit)
	if err != nil {
		return nil, classify(op, err)
	}

	return executions, nil
}

// TestWorkflow compiles def and runs it against event without queueing. Trigger
// filters are not applied: the graph runs as if every trigger matched. A dry
// run simulates every action and stores nothing.
func (a *Automation) TestWorkflow(ctx context.Context, def *models.Workflow, event *models.Event, dryRun bool) (*models.WorkflowExecution, error) {
	const op = "TestWorkflow"

	if def == nil {
		return nil, classify(op, ErrWorkflowNil)
	}

	if event == nil {
		return nil, classify(op, fmt.Errorf("%w: event is required", ErrInvalidEvent))
	}

	if def.ID == "" {
		def.ID = uuid.Must(uuid.NewV7()).String()
	}

	err := a.workflows.Validate(def)
	if err != nil {
		return nil, classify(op, err)
	}

	plan, err := workflow.Compile(def)
	if err != nil {
		return nil, classify(op, err)
	}

	if event.ID == "" {
		event.ID = uuid.Must(uuid.NewV7()).String()
	}

	if event.Type == "" {
		event.Type = models.EventTypeEmailReceived
	}

	ec := models.NewExecutionContext(uuid.Must(uuid.NewV7()).String(), def.ID, event, dryRun)

	execution, err := a.runner.Execute(ctx, plan, ec, workflow.ExecuteOptions{})
	if err != nil {
		return execution, newServiceError(op, CodeExecutionFailed, err)
	}

	a.logger.InfoContext(ctx, "Tested workflow",
		"workflow_id", def.ID,
		"execution_id", execution.ID,
		"dry_run", dryRun,
		"status", execution.Status)

	return execution, nil
}

// SaveWorkflow creates or updates a definition; see workflow.Repository.Save.
func (a *Automation) SaveWorkflow(ctx context.Context, def *models.Workflow) (*models.Workflow, error) {
	if def == nil {
		return nil, classify("SaveWorkflow", ErrWorkflowNil)
	}

	saved, err := a.workflows.Save(ctx, def)
	if err != nil {
		return nil, classify("SaveWorkflow", err)
	}

	return saved, nil
}

func (a *Automation) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	def, err := a.workflows.FetchByID(ctx, id)
	if err != nil {
		return nil, classify("GetWorkflow", err)
	}

	return def, nil
}

func (a *Automation) ListWorkflows(ctx context.Context) ([]*models.Workflow, error) {
	workflows, err := a.workflows.FetchAll(ctx)
	if err != nil {
		return nil, classify("ListWorkflows", err)
	}

	return workflows, nil
}

func (a *Automation) DeleteWorkflow(ctx context.Context, id string) error {
	return classify("DeleteWorkflow", a.workflows.Delete(ctx, id))
}

// ActivateWorkflow makes a definition eligible for matching. The definition
// must compile.
func (a *Automation) ActivateWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	def, err := a.workflows.SetActive(ctx, id, true)
	if err != nil {
		return nil, classify("ActivateWorkflow", err)
	}

	return def, nil
}

func (a *Automation) DeactivateWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	def, err := a.workflows.SetActive(ctx, id, false)
	if err != nil {
		return nil, classify("DeactivateWorkflow", err)
	}

	return def, nil
}

func (a *Automation) GetQueueItem(ctx context.Context, id string) (*models.QueueItem, error) {
	item, err := a.store.QueueItemByID(ctx, id)
	if err != nil {
		return nil, classify("GetQueueItem", err)
	}

	return item, nil
}

// CancelQueueItem flags an item for cancellation. A pending item fails when it
// is claimed; a running one stops before its next node.
func (a *Automation) CancelQueueItem(ctx context.Context, id string) (*models.QueueItem, error) {
	const op = "CancelQueueItem"

	item, err := a.store.QueueItemByID(ctx, id)
	if err != nil {
		return nil, classify(op, err)
	}

	if item.Status == models.QueueStatusCompleted || item.Status == models.QueueStatusFailed {
		return nil, newServiceError(op, CodeInvalidQueueOperation,
			fmt.Errorf("%w: item is %s", persistence.ErrInvalidTransition, item.Status))
	}

	err = a.store.RequestCancel(ctx, id)
	if err != nil {
		return nil, classify(op, err)
	}

	a.logger.InfoContext(ctx, "Requested queue item cancellation", "queue_item_id", id)

	item.CancelRequested = true

	return item, nil
}

// ListFailedItems returns items that exhausted their retries or were cancelled.
func (a *Automation) ListFailedItems(ctx context.Context, limit int) ([]*models.QueueItem, error) {
	if limit <= 0 {
		limit = defaultFailedLimit
	}

	items, err := a.store.QueueItemsByStatus(ctx, models.QueueStatusFailed, limit)
	if err != nil {
		return nil, classify("ListFailedItems", err)
	}

	return items, nil
}

// RetryQueueItem returns a failed item to the queue with a fresh retry budget.
func (a *Automation) RetryQueueItem(ctx context.Context, id string) (*models.QueueItem, error) {
	const op = "RetryQueueItem"

	err := a.store.Requeue(ctx, id)
	if err != nil {
		return nil, classify(op, err)
	}

	item, err := a.store.QueueItemByID(ctx, id)
	if err != nil {
		return nil, classify(op, err)
	}

	logger := a.logger.With("queue_item_id", id, "priority", item.Priority)
	logger.InfoContext(ctx, "Requeued failed item")

	a.announce(ctx, logger, item)

	return item, nil
}

func (a *Automation) announce(ctx context.Context, logger *slog.Logger, item *models.QueueItem) {
	if a.notifier == nil {
		return
	}

	err := a.notifier.Publish(ctx, notify.Message{ItemID: item.ID, Priority: item.Priority})
	if err != nil {
		logger.WarnContext(ctx, "Failed to notify workers", "error", err)
	}
}

func (a *Automation) publish(ctx context.Context, logger *slog.Logger, key string, event eventbus.Event) {
	if a.bus == nil {
		return
	}

	err := a.bus.Publish(ctx, key, event)
	if err != nil {
		logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
