package postgresql_test

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dubaigit/task-mail-sub006/pkg/models"
	"github.com/dubaigit/task-mail-sub006/pkg/persistence"
	"github.com/dubaigit/task-mail-sub006/pkg/persistence/postgresql"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Children first, parents last
	for _, table := range []string{
		"tasks", "action_executions", "workflow_executions", "automation_queue", "events",
		"workflow_connections", "workflow_nodes", "workflows", "schema_migrations",
	} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping PostgreSQL test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("automation_test"),
			postgres.WithUsername("automation"),
			postgres.WithPassword("automation"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func newWorkflow() *models.Workflow {
	now := time.Now().UTC().Truncate(time.Millisecond)

	return &models.Workflow{
		ID:          uuid.NewString(),
		Name:        "Invoice intake",
		Description: "Create a task for invoices",
		Version:     1,
		IsActive:    true,
		Owner:       "finance",
		Nodes: []*models.WorkflowNode{
			{
				ID:         "trigger",
				Kind:       models.NodeKindTrigger,
				Type:       models.NodeTypeEmailTrigger,
				Properties: models.Properties{"senderFilter": "example.com"},
			},
			{
				ID:         "has-invoice",
				Kind:       models.NodeKindCondition,
				Type:       models.NodeTypeConditionContent,
				Properties: models.Properties{"field": "subject", "operator": "contains", "value": "invoice"},
			},
			{
				ID:         "task",
				Kind:       models.NodeKindAction,
				Type:       models.NodeTypeActionTask,
				Properties: models.Properties{"priority": "high"},
				PositionX:  300,
			},
		},
		Connections: []*models.Connection{
			{ID: "c1", SourceNode: "trigger", TargetNode: "has-invoice"},
			{
				ID:         "c2",
				SourceNode: "has-invoice",
				SourcePort: models.PortTrue,
				TargetNode: "task",
				Guards: []models.Guard{
					{Type: models.NodeTypeConditionSender, Properties: models.Properties{"domains": []any{"example.com"}}},
				},
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	for _, table := range []string{"workflows", "automation_queue", "workflow_executions", "tasks"} {
		var exists bool

		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 3, version)
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	assert.NoError(t, p.HealthCheck(ctx))
}

func TestWorkflowRepository_SaveAndRetrieve(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	workflow := newWorkflow()
	require.NoError(t, p.SaveWorkflow(ctx, workflow))

	retrieved, err := p.WorkflowByID(ctx, workflow.ID)
	require.NoError(t, err)

	assert.Equal(t, workflow.Name, retrieved.Name)
	assert.Equal(t, workflow.Owner, retrieved.Owner)
	assert.Equal(t, 1, retrieved.Version)
	require.Len(t, retrieved.Nodes, 3)
	assert.Equal(t, []string{"trigger", "has-invoice", "task"}, []string{retrieved.Nodes[0].ID, retrieved.Nodes[1].ID, retrieved.Nodes[2].ID})
	assert.Equal(t, "example.com", retrieved.Nodes[0].Properties.String("senderFilter"))
	assert.Equal(t, 300, retrieved.Nodes[2].PositionX)

	require.Len(t, retrieved.Connections, 2)
	assert.Nil(t, retrieved.Connections[0].Guards)
	require.Len(t, retrieved.Connections[1].Guards, 1)
	assert.Equal(t, []string{"example.com"}, retrieved.Connections[1].Guards[0].Properties.StringSlice("domains"))

	_, err = p.WorkflowByID(ctx, uuid.NewString())
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestWorkflowRepository_UpdateReplacesGraph(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	workflow := newWorkflow()
	require.NoError(t, p.SaveWorkflow(ctx, workflow))

	workflow.Version = 2
	workflow.Nodes = workflow.Nodes[:2]
	workflow.Connections = workflow.Connections[:1]
	workflow.IsActive = false
	require.NoError(t, p.SaveWorkflow(ctx, workflow))

	retrieved, err := p.WorkflowByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, retrieved.Version)
	assert.Len(t, retrieved.Nodes, 2)
	assert.Len(t, retrieved.Connections, 1)

	active, err := p.ActiveWorkflows(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := p.Workflows(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestWorkflowRepository_Delete(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	workflow := newWorkflow()
	require.NoError(t, p.SaveWorkflow(ctx, workflow))
	require.NoError(t, p.DeleteWorkflow(ctx, workflow.ID))

	_, err := p.WorkflowByID(ctx, workflow.ID)
	assert.True(t, persistence.IsWorkflowNotFound(err))

	err = p.DeleteWorkflow(ctx, workflow.ID)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func saveEvent(ctx context.Context, t *testing.T, p *postgresql.Persistence) *models.Event {
	t.Helper()

	event := &models.Event{
		ID:         uuid.NewString(),
		Type:       models.EventTypeEmailReceived,
		From:       "billing@example.com",
		Subject:    "Invoice 42",
		ReceivedAt: time.Now().UTC(),
	}
	require.NoError(t, p.SaveEvent(ctx, event))

	return event
}

func TestEventRepository_FirstCopyWins(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	event := saveEvent(ctx, t, p)

	duplicate := *event
	duplicate.Subject = "changed"
	require.NoError(t, p.SaveEvent(ctx, &duplicate))

	stored, err := p.EventByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, "Invoice 42", stored.Subject)

	_, err = p.EventByID(ctx, "missing")
	assert.True(t, persistence.IsEventNotFound(err))
}

func TestQueueRepository_EnqueueIsIdempotentPerEvent(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	event := saveEvent(ctx, t, p)

	first := &models.QueueItem{EventID: event.ID, EventType: event.Type, Priority: models.PriorityHigh}
	created, err := p.Enqueue(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.QueueStatusPending, first.Status)
	assert.Equal(t, models.DefaultMaxRetries, first.MaxRetries)

	second := &models.QueueItem{EventID: event.ID, EventType: event.Type, Priority: models.PriorityLow}
	created, err = p.Enqueue(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.PriorityHigh, second.Priority)
}

func TestQueueRepository_ClaimOrder(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	for _, priority := range []models.Priority{models.PriorityLow, models.PriorityUrgent, models.PriorityNormal, models.PriorityHigh} {
		event := saveEvent(ctx, t, p)
		_, err := p.Enqueue(ctx, &models.QueueItem{EventID: event.ID, EventType: event.Type, Priority: priority})
		require.NoError(t, err)
	}

	now := time.Now().Add(time.Second)
	claimed := make([]models.Priority, 0, 4)

	for range 4 {
		item, err := p.Claim(ctx, "worker-1", now)
		require.NoError(t, err)
		assert.Equal(t, models.QueueStatusProcessing, item.Status)
		assert.Equal(t, "worker-1", item.ClaimedBy)

		claimed = append(claimed, item.Priority)
	}

	assert.Equal(t, []models.Priority{models.PriorityUrgent, models.PriorityHigh, models.PriorityNormal, models.PriorityLow}, claimed)

	_, err := p.Claim(ctx, "worker-1", now)
	assert.True(t, persistence.IsQueueEmpty(err))
}

func TestQueueRepository_ConcurrentClaimsAreExclusive(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	const items = 10

	for range items {
		event := saveEvent(ctx, t, p)
		_, err := p.Enqueue(ctx, &models.QueueItem{EventID: event.ID, EventType: event.Type, Priority: models.PriorityNormal})
		require.NoError(t, err)
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		claimed = make(map[string]string)
	)

	now := time.Now().Add(time.Second)

	for w := range 4 {
		wg.Add(1)

		go func(worker string) {
			defer wg.Done()

			for {
				item, err := p.Claim(ctx, worker, now)
				if err != nil {
					return
				}

				mu.Lock()
				_, dup := claimed[item.ID]
				assert.False(t, dup, "item %s claimed twice", item.ID)
				claimed[item.ID] = worker
				mu.Unlock()
			}
		}(fmt.Sprintf("worker-%d", w))
	}

	wg.Wait()
	assert.Len(t, claimed, items)
}

func TestQueueRepository_Transitions(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	event := saveEvent(ctx, t, p)
	item := &models.QueueItem{EventID: event.ID, EventType: event.Type, Priority: models.PriorityNormal}
	_, err := p.Enqueue(ctx, item)
	require.NoError(t, err)

	err = p.Complete(ctx, item.ID, "w")
	assert.True(t, persistence.IsInvalidTransition(err), "pending items cannot complete")

	now := time.Now().Add(time.Second)
	_, err = p.Claim(ctx, "w", now)
	require.NoError(t, err)

	retryAt := now.Add(5 * time.Minute)
	require.NoError(t, p.Reschedule(ctx, item.ID, "w", 1, retryAt, "smtp unavailable"))

	stored, err := p.QueueItemByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusRetrying, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	assert.Equal(t, "smtp unavailable", stored.LastError)
	assert.Nil(t, stored.ClaimedAt)

	_, err = p.Claim(ctx, "w", now)
	assert.True(t, persistence.IsQueueEmpty(err), "retrying item is not due yet")

	_, err = p.Claim(ctx, "w", retryAt)
	require.NoError(t, err)
	require.NoError(t, p.Fail(ctx, item.ID, "w", "gave up"))

	failed, err := p.QueueItemsByStatus(ctx, models.QueueStatusFailed, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "gave up", failed[0].LastError)

	require.NoError(t, p.Requeue(ctx, item.ID))

	stored, err = p.QueueItemByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusPending, stored.Status)
	assert.Zero(t, stored.RetryCount)

	err = p.Requeue(ctx, item.ID)
	assert.True(t, persistence.IsInvalidTransition(err))

	err = p.Complete(ctx, "missing", "w")
	assert.True(t, persistence.IsQueueItemNotFound(err))
}

func TestQueueRepository_CancelAndStale(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	event := saveEvent(ctx, t, p)
	item := &models.QueueItem{EventID: event.ID, EventType: event.Type, Priority: models.PriorityNormal}
	_, err := p.Enqueue(ctx, item)
	require.NoError(t, err)

	requested, err := p.IsCancelRequested(ctx, item.ID)
	require.NoError(t, err)
	assert.False(t, requested)

	require.NoError(t, p.RequestCancel(ctx, item.ID))

	requested, err = p.IsCancelRequested(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, requested)

	_, err = p.Claim(ctx, "w", time.Now())
	require.NoError(t, err)

	count, err := p.RequeueStale(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	stored, err := p.QueueItemByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusPending, stored.Status)
	assert.Equal(t, 1, stored.RetryCount, "a released claim uses up a retry")
	assert.Equal(t, persistence.StaleClaimError, stored.LastError)

	for range models.DefaultMaxRetries - 1 {
		_, err = p.Claim(ctx, "w", time.Now())
		require.NoError(t, err)

		_, err = p.RequeueStale(ctx, time.Now().Add(time.Minute))
		require.NoError(t, err)
	}

	_, err = p.Claim(ctx, "w", time.Now())
	require.NoError(t, err)

	count, err = p.RequeueStale(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	stored, err = p.QueueItemByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusFailed, stored.Status)
	assert.Equal(t, models.DefaultMaxRetries, stored.RetryCount)
	assert.NotNil(t, stored.CompletedAt)
}

func TestQueueRepository_TransitionsRequireClaimOwner(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	event := saveEvent(ctx, t, p)
	item := &models.QueueItem{EventID: event.ID, EventType: event.Type, Priority: models.PriorityNormal}
	_, err := p.Enqueue(ctx, item)
	require.NoError(t, err)

	_, err = p.Claim(ctx, "worker-a", time.Now())
	require.NoError(t, err)

	_, err = p.RequeueStale(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)

	claimed, err := p.Claim(ctx, "worker-b", time.Now())
	require.NoError(t, err)
	require.Equal(t, item.ID, claimed.ID)

	err = p.Complete(ctx, item.ID, "worker-a")
	assert.True(t, persistence.IsClaimLost(err), "a late worker cannot finish another worker's claim")
	assert.True(t, persistence.IsClaimLost(p.Extend(ctx, item.ID, "worker-a", time.Now())))

	require.NoError(t, p.Extend(ctx, item.ID, "worker-b", time.Now().Add(time.Hour)))

	count, err := p.RequeueStale(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, count, "an extended claim is not stale")

	require.NoError(t, p.Complete(ctx, item.ID, "worker-b"))

	stored, err := p.QueueItemByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusCompleted, stored.Status)
}

func TestExecutionRepository_SaveAndLoad(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	started := time.Now().UTC().Truncate(time.Millisecond)
	execution := &models.WorkflowExecution{
		ID:              uuid.NewString(),
		WorkflowID:      "wf-1",
		WorkflowVersion: 2,
		EventID:         "evt-1",
		Status:          models.ExecutionStatusRunning,
		StartedAt:       started,
	}
	require.NoError(t, p.SaveExecution(ctx, execution))

	for attempt, status := range []models.ActionStatus{models.ActionStatusRetry, models.ActionStatusSuccess} {
		require.NoError(t, p.SaveActionExecution(ctx, &models.ActionExecution{
			ID:          execution.ID + ":task",
			ExecutionID: execution.ID,
			NodeID:      "task",
			ActionType:  models.NodeTypeActionTask,
			Status:      status,
			RetryCount:  attempt,
			Result:      map[string]any{"task_id": "t-1"},
			ExecutedAt:  started.Add(time.Duration(attempt) * time.Second),
		}))
	}

	completed := started.Add(2 * time.Second)
	execution.Status = models.ExecutionStatusSuccess
	execution.ExecutionPath = []string{"trigger", "task"}
	execution.NodeResults = map[string]models.NodeResult{
		"task": {NodeID: "task", Kind: models.NodeKindAction, Status: models.NodeStatusSuccess, Passed: true},
	}
	execution.CompletedAt = &completed
	execution.DurationMs = 2000
	require.NoError(t, p.SaveExecution(ctx, execution))

	stored, err := p.ExecutionByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, stored.Status)
	assert.Equal(t, []string{"trigger", "task"}, stored.ExecutionPath)
	assert.True(t, stored.NodeResults["task"].Passed)
	require.NotNil(t, stored.CompletedAt)
	require.Len(t, stored.Actions, 1)
	assert.Equal(t, models.ActionStatusSuccess, stored.Actions[0].Status)
	assert.Equal(t, 1, stored.Actions[0].RetryCount)
	assert.Equal(t, "t-1", stored.Actions[0].Result["task_id"])

	list, err := p.ExecutionsByWorkflow(ctx, "wf-1", 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = p.ExecutionByID(ctx, "missing")
	assert.True(t, persistence.IsExecutionNotFound(err))
}

func TestTaskRepository_CreateIsIdempotent(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	task := &models.Task{
		ID:            uuid.NewSHA1(uuid.NameSpaceOID, []byte("exec-1:task")).String(),
		ExecutionID:   "exec-1",
		NodeID:        "task",
		SourceEventID: "evt-1",
		Title:         "Pay invoice",
		Priority:      models.PriorityHigh,
		CreatedAt:     time.Now().UTC(),
	}

	require.NoError(t, p.CreateTask(ctx, task))

	retitled := *task
	retitled.Title = "other"
	require.NoError(t, p.CreateTask(ctx, &retitled))

	tasks, err := p.TasksByEvent(ctx, "evt-1")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Pay invoice", tasks[0].Title)
	assert.Nil(t, tasks[0].DueAt)
}
