// Package memory provides an in-process implementation of the persistence
// interfaces for tests, dry runs and single-process deployments.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/dubaigit/task-mail-sub006/pkg/models"
	"github.com/dubaigit/task-mail-sub006/pkg/persistence"
	"github.com/google/uuid"
)

// Persistence keeps every record in maps guarded by one mutex. Records are
// copied on the way in and out so callers never share state with the store.
type Persistence struct {
	mu         sync.Mutex
	workflows  map[string]models.Workflow
	events     map[string]models.Event
	queue      map[string]*models.QueueItem
	byEvent    map[string]string
	executions map[string]models.WorkflowExecution
	actions    map[string]models.ActionExecution
	tasks      map[string]models.Task
	now        func() time.Time
}

func NewPersistence() *Persistence {
	return &Persistence{
		workflows:  make(map[string]models.Workflow),
		events:     make(map[string]models.Event),
		queue:      make(map[string]*models.QueueItem),
		byEvent:    make(map[string]string),
		executions: make(map[string]models.WorkflowExecution),
		actions:    make(map[string]models.ActionExecution),
		tasks:      make(map[string]models.Task),
		now:        time.Now,
	}
}

func (p *Persistence) HealthCheck(context.Context) error {
	return nil
}

func (p *Persistence) Close(context.Context) error {
	return nil
}

func (p *Persistence) Workflows(context.Context) ([]*models.Workflow, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.sortedWorkflows(func(*models.Workflow) bool { return true }), nil
}

func (p *Persistence) ActiveWorkflows(context.Context) ([]*models.Workflow, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.sortedWorkflows(func(w *models.Workflow) bool { return w.IsActive }), nil
}

func (p *Persistence) sortedWorkflows(keep func(*models.Workflow) bool) []*models.Workflow {
	workflows := make([]*models.Workflow, 0, len(p.workflows))

	for _, workflow := range p.workflows {
		if keep(&workflow) {
			workflows = append(workflows, &workflow)
		}
	}

	slices.SortFunc(workflows, func(a, b *models.Workflow) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return workflows
}

func (p *Persistence) SaveWorkflow(_ context.Context, workflow *models.Workflow) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.workflows[workflow.ID] = *workflow

	return nil
}

func (p *Persistence) WorkflowByID(_ context.Context, id string) (*models.Workflow, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	workflow, ok := p.workflows[id]
	if !ok {
		return nil, persistence.NewWorkflowError("WorkflowByID", id, persistence.ErrWorkflowNotFound)
	}

	return &workflow, nil
}

func (p *Persistence) DeleteWorkflow(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.workflows[id]; !ok {
		return persistence.NewWorkflowError("DeleteWorkflow", id, persistence.ErrWorkflowNotFound)
	}

	delete(p.workflows, id)

	return nil
}

func (p *Persistence) SaveEvent(_ context.Context, event *models.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.events[event.ID]; !exists {
		p.events[event.ID] = *event
	}

	return nil
}

func (p *Persistence) EventByID(_ context.Context, id string) (*models.Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	event, ok := p.events[id]
	if !ok {
		return nil, persistence.ErrEventNotFound
	}

	return &event, nil
}

func (p *Persistence) Enqueue(_ context.Context, item *models.QueueItem) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if id, exists := p.byEvent[item.EventID]; exists {
		*item = *p.queue[id]

		return false, nil
	}

	now := p.now().UTC()
	stored := *item

	if stored.ID == "" {
		stored.ID = uuid.Must(uuid.NewV7()).String()
	}

	if stored.Status == "" {
		stored.Status = models.QueueStatusPending
	}

	if stored.MaxRetries == 0 {
		stored.MaxRetries = models.DefaultMaxRetries
	}

	if stored.ScheduledAt.IsZero() {
		stored.ScheduledAt = now
	}

	stored.CreatedAt = now
	stored.UpdatedAt = now

	p.queue[stored.ID] = &stored
	p.byEvent[stored.EventID] = stored.ID
	*item = stored

	return true, nil
}

func (p *Persistence) Claim(_ context.Context, workerID string, now time.Time) (*models.QueueItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var next *models.QueueItem

	for _, item := range p.queue {
		if !item.Claimable(now) {
			continue
		}

		if next == nil || item.ClaimsBefore(next) {
			next = item
		}
	}

	if next == nil {
		return nil, persistence.ErrQueueEmpty
	}

	claimedAt := now.UTC()
	next.Status = models.QueueStatusProcessing
	next.ClaimedAt = &claimedAt
	next.ClaimedBy = workerID
	next.UpdatedAt = claimedAt

	claimed := *next

	return &claimed, nil
}

// transition applies fn to an item workerID is processing.
func (p *Persistence) transition(op, id, workerID string, fn func(item *models.QueueItem, now time.Time)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	item, ok := p.queue[id]
	if !ok {
		return persistence.NewQueueError(op, id, persistence.ErrQueueItemNotFound)
	}

	if item.Status != models.QueueStatusProcessing || item.ClaimedBy != workerID {
		return persistence.NewQueueError(op, id, persistence.ErrClaimLost)
	}

	now := p.now().UTC()
	fn(item, now)
	item.UpdatedAt = now

	return nil
}

func (p *Persistence) Complete(_ context.Context, id, workerID string) error {
	return p.transition("Complete", id, workerID, func(item *models.QueueItem, now time.Time) {
		item.Status = models.QueueStatusCompleted
		item.CompletedAt = &now
		item.LastError = ""
	})
}

func (p *Persistence) Reschedule(_ context.Context, id, workerID string, retryCount int, scheduledAt time.Time, lastError string) error {
	return p.transition("Reschedule", id, workerID, func(item *models.QueueItem, _ time.Time) {
		item.Status = models.QueueStatusRetrying
		item.RetryCount = retryCount
		item.ScheduledAt = scheduledAt.UTC()
		item.LastError = lastError
		item.ClaimedAt = nil
		item.ClaimedBy = ""
	})
}

func (p *Persistence) Fail(_ context.Context, id, workerID string, lastError string) error {
	return p.transition("Fail", id, workerID, func(item *models.QueueItem, now time.Time) {
		item.Status = models.QueueStatusFailed
		item.LastError = lastError
		item.CompletedAt = &now
	})
}

func (p *Persistence) Extend(_ context.Context, id, workerID string, now time.Time) error {
	return p.transition("Extend", id, workerID, func(item *models.QueueItem, _ time.Time) {
		claimedAt := now.UTC()
		item.ClaimedAt = &claimedAt
	})
}

func (p *Persistence) RequestCancel(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	item, ok := p.queue[id]
	if !ok {
		return persistence.NewQueueError("RequestCancel", id, persistence.ErrQueueItemNotFound)
	}

	item.CancelRequested = true
	item.UpdatedAt = p.now().UTC()

	return nil
}

func (p *Persistence) IsCancelRequested(_ context.Context, id string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	item, ok := p.queue[id]
	if !ok {
		return false, persistence.NewQueueError("IsCancelRequested", id, persistence.ErrQueueItemNotFound)
	}

	return item.CancelRequested, nil
}

func (p *Persistence) QueueItemByID(_ context.Context, id string) (*models.QueueItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	item, ok := p.queue[id]
	if !ok {
		return nil, persistence.NewQueueError("QueueItemByID", id, persistence.ErrQueueItemNotFound)
	}

	found := *item

	return &found, nil
}

func (p *Persistence) QueueItemsByStatus(_ context.Context, status models.QueueStatus, limit int) ([]*models.QueueItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	items := make([]*models.QueueItem, 0)

	for _, item := range p.queue {
		if item.Status == status {
			found := *item
			items = append(items, &found)
		}
	}

	slices.SortFunc(items, func(a, b *models.QueueItem) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})

	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	return items, nil
}

func (p *Persistence) Requeue(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	item, ok := p.queue[id]
	if !ok {
		return persistence.NewQueueError("Requeue", id, persistence.ErrQueueItemNotFound)
	}

	if item.Status != models.QueueStatusFailed {
		return persistence.NewQueueError("Requeue", id, persistence.ErrInvalidTransition)
	}

	now := p.now().UTC()
	item.Status = models.QueueStatusPending
	item.RetryCount = 0
	item.ScheduledAt = now
	item.CancelRequested = false
	item.ClaimedAt = nil
	item.ClaimedBy = ""
	item.CompletedAt = nil
	item.UpdatedAt = now

	return nil
}

func (p *Persistence) RequeueStale(_ context.Context, olderThan time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var count int64

	now := p.now().UTC()

	for _, item := range p.queue {
		if item.Status != models.QueueStatusProcessing || item.ClaimedAt == nil || !item.ClaimedAt.Before(olderThan) {
			continue
		}

		if item.RetryCount < item.MaxRetries {
			item.Status = models.QueueStatusPending
			item.RetryCount++
		} else {
			item.Status = models.QueueStatusFailed
			item.CompletedAt = &now
		}

		item.LastError = persistence.StaleClaimError
		item.ClaimedAt = nil
		item.ClaimedBy = ""
		item.UpdatedAt = now
		count++
	}

	return count, nil
}

func (p *Persistence) SaveExecution(_ context.Context, execution *models.WorkflowExecution) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	stored := *execution
	stored.NodeResults = maps.Clone(execution.NodeResults)
	stored.ExecutionPath = slices.Clone(execution.ExecutionPath)
	stored.Actions = nil
	p.executions[execution.ID] = stored

	return nil
}

func (p *Persistence) ExecutionByID(_ context.Context, id string) (*models.WorkflowExecution, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	execution, ok := p.executions[id]
	if !ok {
		return nil, persistence.ErrExecutionNotFound
	}

	return p.withActions(execution), nil
}

func (p *Persistence) ExecutionsByWorkflow(_ context.Context, workflowID string, limit int) ([]*models.WorkflowExecution, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	executions := make([]*models.WorkflowExecution, 0)

	for _, execution := range p.executions {
		if execution.WorkflowID == workflowID {
			executions = append(executions, p.withActions(execution))
		}
	}

	slices.SortFunc(executions, func(a, b *models.WorkflowExecution) int {
		return b.StartedAt.Compare(a.StartedAt)
	})

	if limit > 0 && len(executions) > limit {
		executions = executions[:limit]
	}

	return executions, nil
}

func (p *Persistence) withActions(execution models.WorkflowExecution) *models.WorkflowExecution {
	execution.Actions = make([]*models.ActionExecution, 0)

	for _, action := range p.actions {
		if action.ExecutionID == execution.ID {
			execution.Actions = append(execution.Actions, &action)
		}
	}

	slices.SortFunc(execution.Actions, func(a, b *models.ActionExecution) int {
		return a.ExecutedAt.Compare(b.ExecutedAt)
	})

	return &execution
}

func (p *Persistence) SaveActionExecution(_ context.Context, action *models.ActionExecution) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.actions[action.ID] = *action

	return nil
}

func (p *Persistence) CreateTask(_ context.Context, task *models.Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.tasks[task.ID]; !exists {
		p.tasks[task.ID] = *task
	}

	return nil
}

func (p *Persistence) TasksByEvent(_ context.Context, eventID string) ([]*models.Task, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tasks := make([]*models.Task, 0)

	for _, task := range p.tasks {
		if task.SourceEventID == eventID {
			tasks = append(tasks, &task)
		}
	}

	slices.SortFunc(tasks, func(a, b *models.Task) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return tasks, nil
}
