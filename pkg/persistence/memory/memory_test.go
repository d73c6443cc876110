package memory_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dubaigit/task-mail-sub006/pkg/models"
	"github.com/dubaigit/task-mail-sub006/pkg/persistence"
	"github.com/dubaigit/task-mail-sub006/pkg/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enqueue(t *testing.T, p *memory.Persistence, eventID string, priority models.Priority) *models.QueueItem {
	t.Helper()

	item := &models.QueueItem{EventID: eventID, EventType: models.EventTypeEmailReceived, Priority: priority}
	created, err := p.Enqueue(context.Background(), item)
	require.NoError(t, err)
	require.True(t, created)

	return item
}

func TestPersistence_ClaimHonorsPriority(t *testing.T) {
	p := memory.NewPersistence()
	ctx := context.Background()

	for i, priority := range []models.Priority{models.PriorityLow, models.PriorityUrgent, models.PriorityNormal, models.PriorityHigh} {
		enqueue(t, p, fmt.Sprintf("evt-%d", i), priority)
	}

	now := time.Now().Add(time.Second)
	order := make([]models.Priority, 0, 4)

	for range 4 {
		item, err := p.Claim(ctx, "w1", now)
		require.NoError(t, err)

		order = append(order, item.Priority)
	}

	assert.Equal(t, []models.Priority{models.PriorityUrgent, models.PriorityHigh, models.PriorityNormal, models.PriorityLow}, order)

	_, err := p.Claim(ctx, "w1", now)
	assert.ErrorIs(t, err, persistence.ErrQueueEmpty)
}

func TestPersistence_EnqueueDeduplicatesEvents(t *testing.T) {
	p := memory.NewPersistence()

	first := enqueue(t, p, "evt-1", models.PriorityHigh)

	again := &models.QueueItem{EventID: "evt-1", Priority: models.PriorityLow}
	created, err := p.Enqueue(context.Background(), again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, models.PriorityHigh, again.Priority)
}

func TestPersistence_ConcurrentClaimsAreExclusive(t *testing.T) {
	p := memory.NewPersistence()
	ctx := context.Background()

	const items = 50

	for i := range items {
		enqueue(t, p, fmt.Sprintf("evt-%d", i), models.PriorityNormal)
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		claimed = make(map[string]int)
	)

	now := time.Now().Add(time.Second)

	for w := range 8 {
		wg.Add(1)

		go func(worker string) {
			defer wg.Done()

			for {
				item, err := p.Claim(ctx, worker, now)
				if err != nil {
					return
				}

				mu.Lock()
				claimed[item.ID]++
				mu.Unlock()
			}
		}(fmt.Sprintf("w%d", w))
	}

	wg.Wait()

	assert.Len(t, claimed, items)

	for id, count := range claimed {
		assert.Equal(t, 1, count, "item %s claimed more than once", id)
	}
}

func TestPersistence_Transitions(t *testing.T) {
	p := memory.NewPersistence()
	ctx := context.Background()

	item := enqueue(t, p, "evt-1", models.PriorityNormal)

	err := p.Complete(ctx, item.ID, "w1")
	assert.True(t, persistence.IsInvalidTransition(err))

	now := time.Now().Add(time.Second)
	_, err = p.Claim(ctx, "w1", now)
	require.NoError(t, err)

	retryAt := now.Add(5 * time.Minute)
	require.NoError(t, p.Reschedule(ctx, item.ID, "w1", 1, retryAt, "timeout"))

	stored, err := p.QueueItemByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusRetrying, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	assert.Empty(t, stored.ClaimedBy)

	_, err = p.Claim(ctx, "w1", now)
	require.ErrorIs(t, err, persistence.ErrQueueEmpty)

	_, err = p.Claim(ctx, "w1", retryAt)
	require.NoError(t, err)
	require.NoError(t, p.Fail(ctx, item.ID, "w1", "gave up"))

	failed, err := p.QueueItemsByStatus(ctx, models.QueueStatusFailed, 0)
	require.NoError(t, err)
	require.Len(t, failed, 1)

	require.NoError(t, p.Requeue(ctx, item.ID))
	assert.True(t, persistence.IsInvalidTransition(p.Requeue(ctx, item.ID)))

	stored, err = p.QueueItemByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusPending, stored.Status)
	assert.Zero(t, stored.RetryCount)

	assert.True(t, persistence.IsQueueItemNotFound(p.Complete(ctx, "missing", "w1")))
}

func TestPersistence_RequeueStale(t *testing.T) {
	p := memory.NewPersistence()
	ctx := context.Background()

	item := enqueue(t, p, "evt-1", models.PriorityNormal)

	_, err := p.Claim(ctx, "w1", time.Now())
	require.NoError(t, err)

	count, err := p.RequeueStale(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, count)

	count, err = p.RequeueStale(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	stored, err := p.QueueItemByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusPending, stored.Status)
	assert.Equal(t, 1, stored.RetryCount, "a released claim uses up a retry")
	assert.Equal(t, persistence.StaleClaimError, stored.LastError)
}

func TestPersistence_RequeueStaleFailsExhaustedItems(t *testing.T) {
	p := memory.NewPersistence()
	ctx := context.Background()

	item := enqueue(t, p, "evt-1", models.PriorityNormal)

	for range models.DefaultMaxRetries {
		_, err := p.Claim(ctx, "w1", time.Now().Add(time.Second))
		require.NoError(t, err)

		count, err := p.RequeueStale(ctx, time.Now().Add(time.Minute))
		require.NoError(t, err)
		require.Equal(t, int64(1), count)
	}

	_, err := p.Claim(ctx, "w1", time.Now().Add(time.Second))
	require.NoError(t, err)

	_, err = p.RequeueStale(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)

	stored, err := p.QueueItemByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusFailed, stored.Status)
	assert.Equal(t, models.DefaultMaxRetries, stored.RetryCount)
	assert.NotNil(t, stored.CompletedAt)
}

func TestPersistence_TransitionsRequireClaimOwner(t *testing.T) {
	p := memory.NewPersistence()
	ctx := context.Background()

	item := enqueue(t, p, "evt-1", models.PriorityNormal)

	_, err := p.Claim(ctx, "worker-a", time.Now())
	require.NoError(t, err)

	_, err = p.RequeueStale(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)

	assert.True(t, persistence.IsClaimLost(p.Complete(ctx, item.ID, "worker-a")), "released claims cannot be completed")

	claimed, err := p.Claim(ctx, "worker-b", time.Now().Add(time.Second))
	require.NoError(t, err)
	require.Equal(t, item.ID, claimed.ID)

	assert.True(t, persistence.IsClaimLost(p.Complete(ctx, item.ID, "worker-a")))
	assert.True(t, persistence.IsClaimLost(p.Extend(ctx, item.ID, "worker-a", time.Now())))

	stored, err := p.QueueItemByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusProcessing, stored.Status)
	assert.Equal(t, "worker-b", stored.ClaimedBy)

	renewed := time.Now().Add(time.Hour)
	require.NoError(t, p.Extend(ctx, item.ID, "worker-b", renewed))

	count, err := p.RequeueStale(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, count, "an extended claim is not stale")

	retryAt := time.Now().Add(5 * time.Minute)
	require.NoError(t, p.Reschedule(ctx, item.ID, "worker-b", 2, retryAt, "timeout"))

	stored, err = p.QueueItemByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusRetrying, stored.Status)
}

func TestPersistence_CancelRequest(t *testing.T) {
	p := memory.NewPersistence()
	ctx := context.Background()

	item := enqueue(t, p, "evt-1", models.PriorityNormal)
	require.NoError(t, p.RequestCancel(ctx, item.ID))

	requested, err := p.IsCancelRequested(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, requested)

	assert.True(t, persistence.IsQueueItemNotFound(p.RequestCancel(ctx, "missing")))
}

func TestPersistence_ExecutionCopies(t *testing.T) {
	p := memory.NewPersistence()
	ctx := context.Background()

	execution := &models.WorkflowExecution{
		ID:            "exec-1",
		WorkflowID:    "wf-1",
		Status:        models.ExecutionStatusRunning,
		ExecutionPath: []string{"trigger"},
		StartedAt:     time.Now(),
	}
	require.NoError(t, p.SaveExecution(ctx, execution))

	execution.ExecutionPath[0] = "mutated"

	require.NoError(t, p.SaveActionExecution(ctx, &models.ActionExecution{ID: "exec-1:a", ExecutionID: "exec-1", Status: models.ActionStatusRetry}))
	require.NoError(t, p.SaveActionExecution(ctx, &models.ActionExecution{ID: "exec-1:a", ExecutionID: "exec-1", Status: models.ActionStatusSuccess, RetryCount: 1}))

	stored, err := p.ExecutionByID(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"trigger"}, stored.ExecutionPath)
	require.Len(t, stored.Actions, 1)
	assert.Equal(t, models.ActionStatusSuccess, stored.Actions[0].Status)

	_, err = p.ExecutionByID(ctx, "missing")
	assert.True(t, persistence.IsExecutionNotFound(err))
}

func TestPersistence_Workflows(t *testing.T) {
	p := memory.NewPersistence()
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, p.SaveWorkflow(ctx, &models.Workflow{ID: "a", Name: "first", IsActive: true, CreatedAt: now}))
	require.NoError(t, p.SaveWorkflow(ctx, &models.Workflow{ID: "b", Name: "second", CreatedAt: now.Add(time.Second)}))

	all, err := p.Workflows(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)

	active, err := p.ActiveWorkflows(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "a", active[0].ID)

	require.NoError(t, p.DeleteWorkflow(ctx, "a"))
	_, err = p.WorkflowByID(ctx, "a")
	assert.True(t, persistence.IsWorkflowNotFound(err))
}
