// Package persistence provides the storage abstraction for workflows, events,
// the automation queue, execution logs and tasks.
package persistence

import (
	"context"
	"time"

	"github.com/dubaigit/task-mail-sub006/pkg/models"
)

type WorkflowStore interface {
	Workflows(ctx context.Context) ([]*models.Workflow, error)
	ActiveWorkflows(ctx context.Context) ([]*models.Workflow, error)
	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error
}

type EventStore interface {
	// SaveEvent stores an event; saving an existing id keeps the first copy.
	SaveEvent(ctx context.Context, event *models.Event) error
	EventByID(ctx context.Context, id string) (*models.Event, error)
}

// QueueStore is the durable automation queue.
type QueueStore interface {
	// Enqueue inserts item unless an item for the same event exists. It
	// reports whether a new item was created and fills item with the stored row.
	Enqueue(ctx context.Context, item *models.QueueItem) (bool, error)

	// Claim atomically takes the highest ranked due item and marks it
	// processing. Concurrent callers never receive the same item.
	// ErrQueueEmpty is returned when nothing is due.
	Claim(ctx context.Context, workerID string, now time.Time) (*models.QueueItem, error)

	// Complete, Reschedule, Fail and Extend act only for the worker holding
	// the claim; anyone else gets ErrClaimLost.
	Complete(ctx context.Context, id, workerID string) error

	// Reschedule moves a processing item to retrying with the given retry
	// count; it becomes claimable again at scheduledAt.
	Reschedule(ctx context.Context, id, workerID string, retryCount int, scheduledAt time.Time, lastError string) error

	Fail(ctx context.Context, id, workerID string, lastError string) error

	// Extend renews the claim so the stale sweep leaves the item alone.
	Extend(ctx context.Context, id, workerID string, now time.Time) error

	RequestCancel(ctx context.Context, id string) error
	IsCancelRequested(ctx context.Context, id string) (bool, error)

	QueueItemByID(ctx context.Context, id string) (*models.QueueItem, error)
	QueueItemsByStatus(ctx context.Context, status models.QueueStatus, limit int) ([]*models.QueueItem, error)

	// Requeue returns a failed item to pending with a fresh retry budget.
	Requeue(ctx context.Context, id string) error

	// RequeueStale releases items claimed before olderThan. Each release
	// counts as a retry: items with retries left go back to pending, the rest
	// fail. It returns the number of items released.
	RequeueStale(ctx context.Context, olderThan time.Time) (int64, error)
}

// ExecutionStore holds execution and action logs. Action executions are
// upserted by id so every retry attempt overwrites the same record.
type ExecutionStore interface {
	SaveExecution(ctx context.Context, execution *models.WorkflowExecution) error
	ExecutionByID(ctx context.Context, id string) (*models.WorkflowExecution, error)
	ExecutionsByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.WorkflowExecution, error)
	SaveActionExecution(ctx context.Context, action *models.ActionExecution) error
}

type TaskStore interface {
	// CreateTask inserts a task; an existing id is left untouched.
	CreateTask(ctx context.Context, task *models.Task) error
	TasksByEvent(ctx context.Context, eventID string) ([]*models.Task, error)
}

type Persistence interface {
	WorkflowStore
	EventStore
	QueueStore
	ExecutionStore
	TaskStore

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
