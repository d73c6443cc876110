package queue_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dubaigit/task-mail-sub006/pkg/actions"
	"github.com/dubaigit/task-mail-sub006/pkg/actions/task"
	"github.com/dubaigit/task-mail-sub006/pkg/conditions"
	"github.com/dubaigit/task-mail-sub006/pkg/eventbus"
	"github.com/dubaigit/task-mail-sub006/pkg/events"
	"github.com/dubaigit/task-mail-sub006/pkg/models"
	"github.com/dubaigit/task-mail-sub006/pkg/persistence/memory"
	"github.com/dubaigit/task-mail-sub006/pkg/queue"
	"github.com/dubaigit/task-mail-sub006/pkg/retry"
	"github.com/dubaigit/task-mail-sub006/pkg/testutil"
	"github.com/dubaigit/task-mail-sub006/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type runnerFunc func(ctx context.Context, plan *workflow.Plan, ec *models.ExecutionContext, opts workflow.ExecuteOptions) (*models.WorkflowExecution, error)

func (f runnerFunc) Execute(ctx context.Context, plan *workflow.Plan, ec *models.ExecutionContext, opts workflow.ExecuteOptions) (*models.WorkflowExecution, error) {
	return f(ctx, plan, ec, opts)
}

// succeed returns a finished execution without walking the plan.
func succeed(plan *workflow.Plan, ec *models.ExecutionContext) *models.WorkflowExecution {
	return &models.WorkflowExecution{
		ID:         ec.ExecutionID(),
		WorkflowID: plan.WorkflowID,
		EventID:    ec.Event().ID,
		Status:     models.ExecutionStatusSuccess,
	}
}

type recordingBus struct {
	mu        sync.Mutex
	published []eventbus.Event
}

func (b *recordingBus) Publish(_ context.Context, _ string, event eventbus.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.published = append(b.published, event)

	return nil
}

func (b *recordingBus) ofType(eventType events.EventType) []eventbus.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	found := make([]eventbus.Event, 0)

	for _, event := range b.published {
		if event.GetType() == eventType {
			found = append(found, event)
		}
	}

	return found
}

type fixture struct {
	store *memory.Persistence
	repo  *workflow.Repository
	bus   *recordingBus
	stats *conditions.MemorySenderStats
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewPersistence()

	return &fixture{
		store: store,
		repo:  workflow.NewRepository(store, workflow.NewPlanCache(), testLogger()),
		bus:   &recordingBus{},
		stats: conditions.NewMemorySenderStats(),
		now:   time.Now(),
	}
}

func (f *fixture) processor(runner queue.Runner, opts ...queue.ProcessorOption) *queue.Processor {
	return queue.NewProcessor(f.store, f.repo, runner, testLogger(), append([]queue.ProcessorOption{
		queue.WithEventBus(f.bus),
		queue.WithSenderStats(f.stats),
		queue.WithRetryPolicy(retry.QueuePolicy()),
		queue.WithClock(func() time.Time { return f.now }),
	}, opts...)...)
}

// executor is the real executor with the task handler writing to the fixture store.
func (f *fixture) executor() *workflow.Executor {
	logger := testLogger()

	dispatcher := actions.NewDispatcher(
		actions.NewRegistry(task.NewHandler(f.store)),
		logger,
		actions.WithActionLog(f.store),
		actions.WithSleep(func(context.Context, time.Duration) error { return nil }),
	)

	return workflow.NewExecutor(
		conditions.NewDefaultRegistry(conditions.Dependencies{Stats: f.stats, Logger: logger}),
		dispatcher,
		logger,
		workflow.WithExecutionStore(f.store),
	)
}

func (f *fixture) saveWorkflow(t *testing.T, def *models.Workflow) *models.Workflow {
	t.Helper()

	saved, err := f.repo.Save(context.Background(), def)
	require.NoError(t, err)

	return saved
}

func (f *fixture) enqueue(t *testing.T, event *models.Event) *models.QueueItem {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, f.store.SaveEvent(ctx, event))

	item := &models.QueueItem{
		EventID:     event.ID,
		EventType:   event.Type,
		Priority:    queue.DerivePriority(event),
		ScheduledAt: f.now.UTC(),
	}

	created, err := f.store.Enqueue(ctx, item)
	require.NoError(t, err)
	require.True(t, created)

	return item
}

func (f *fixture) item(t *testing.T, id string) *models.QueueItem {
	t.Helper()

	item, err := f.store.QueueItemByID(context.Background(), id)
	require.NoError(t, err)

	return item
}

func TestProcessor_EmptyQueue(t *testing.T) {
	f := newFixture(t)

	processed, err := f.processor(f.executor()).ProcessNext(context.Background(), "w-1")
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestProcessor_InvoiceEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	def := f.saveWorkflow(t, testutil.CreateInvoiceWorkflow())

	event := testutil.CreateTestEvent(testutil.WithReceivedAt(f.now))
	item := f.enqueue(t, event)

	processed, err := f.processor(f.executor()).ProcessNext(ctx, "w-1")
	require.NoError(t, err)
	require.True(t, processed)

	assert.Equal(t, models.QueueStatusCompleted, f.item(t, item.ID).Status)

	execution, err := f.store.ExecutionByID(ctx, queue.ExecutionID(item.ID, def.ID))
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, execution.Status)
	assert.Equal(t, item.ID, execution.QueueItemID)
	assert.Equal(t, []string{"trigger", "has-invoice", "create-task"}, execution.ExecutionPath)

	tasks, err := f.store.TasksByEvent(ctx, event.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Process Invoice 1042", tasks[0].Title)

	count, err := f.stats.Count(ctx, event.From, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	assert.Len(t, f.bus.ofType(events.ExecutionCompletedEvent), 1)
}

func TestProcessor_NoMatchingWorkflowCompletes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.saveWorkflow(t, testutil.CreateInvoiceWorkflow())

	item := f.enqueue(t, testutil.CreateTestEvent(testutil.WithFrom("someone@other.org")))

	called := false
	processor := f.processor(runnerFunc(func(context.Context, *workflow.Plan, *models.ExecutionContext, workflow.ExecuteOptions) (*models.WorkflowExecution, error) {
		called = true

		return nil, errors.New("unexpected")
	}))

	processed, err := processor.ProcessNext(ctx, "w-1")
	require.NoError(t, err)
	require.True(t, processed)

	assert.False(t, called)
	assert.Equal(t, models.QueueStatusCompleted, f.item(t, item.ID).Status)
}

func TestProcessor_RetryLaw(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.saveWorkflow(t, testutil.CreateInvoiceWorkflow())

	item := f.enqueue(t, testutil.CreateTestEvent(testutil.WithReceivedAt(f.now)))

	attempts := 0
	processor := f.processor(runnerFunc(func(context.Context, *workflow.Plan, *models.ExecutionContext, workflow.ExecuteOptions) (*models.WorkflowExecution, error) {
		attempts++

		return nil, errors.New("store unavailable")
	}))

	for attempt := 1; attempt <= models.DefaultMaxRetries; attempt++ {
		processed, err := processor.ProcessNext(ctx, "w-1")
		require.NoError(t, err)
		require.True(t, processed)

		current := f.item(t, item.ID)
		assert.Equal(t, models.QueueStatusRetrying, current.Status)
		assert.Equal(t, attempt, current.RetryCount)
		assert.Equal(t, f.now.UTC().Add(retry.QueuePolicy().Delay), current.ScheduledAt)
		assert.Contains(t, current.LastError, "store unavailable")

		processed, err = processor.ProcessNext(ctx, "w-1")
		require.NoError(t, err)
		assert.False(t, processed, "a rescheduled item is not due before its delay")

		f.now = f.now.Add(retry.QueuePolicy().Delay)
	}

	processed, err := processor.ProcessNext(ctx, "w-1")
	require.NoError(t, err)
	require.True(t, processed)

	final := f.item(t, item.ID)
	assert.Equal(t, models.QueueStatusFailed, final.Status)
	assert.Equal(t, models.DefaultMaxRetries+1, attempts)
	assert.Len(t, f.bus.ofType(events.QueueItemFailedEvent), 1)

	count, err := f.stats.Count(ctx, testutil.CreateTestEvent().From, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "a sender is counted once per message")
}

func TestProcessor_PanicIsRetried(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.saveWorkflow(t, testutil.CreateInvoiceWorkflow())

	item := f.enqueue(t, testutil.CreateTestEvent())

	processor := f.processor(runnerFunc(func(context.Context, *workflow.Plan, *models.ExecutionContext, workflow.ExecuteOptions) (*models.WorkflowExecution, error) {
		panic("nil map")
	}))

	processed, err := processor.ProcessNext(ctx, "w-1")
	require.NoError(t, err)
	require.True(t, processed)

	current := f.item(t, item.ID)
	assert.Equal(t, models.QueueStatusRetrying, current.Status)
	assert.Contains(t, current.LastError, "panicked")
}

func TestProcessor_CancelRequested(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.saveWorkflow(t, testutil.CreateInvoiceWorkflow())

	item := f.enqueue(t, testutil.CreateTestEvent())
	require.NoError(t, f.store.RequestCancel(ctx, item.ID))

	called := false
	processor := f.processor(runnerFunc(func(context.Context, *workflow.Plan, *models.ExecutionContext, workflow.ExecuteOptions) (*models.WorkflowExecution, error) {
		called = true

		return nil, nil
	}))

	processed, err := processor.ProcessNext(ctx, "w-1")
	require.NoError(t, err)
	require.True(t, processed)

	assert.False(t, called)

	current := f.item(t, item.ID)
	assert.Equal(t, models.QueueStatusFailed, current.Status)
	assert.Equal(t, queue.ErrCancelled.Error(), current.LastError)
	assert.Empty(t, f.bus.ofType(events.QueueItemFailedEvent))
}

func TestProcessor_RetrySkipsFinishedWorkflows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	healthy := f.saveWorkflow(t, testutil.CreateInvoiceWorkflow())
	flaky := f.saveWorkflow(t, testutil.CreateInvoiceWorkflow())

	item := f.enqueue(t, testutil.CreateTestEvent())

	calls := map[string]int{}
	processor := f.processor(runnerFunc(func(ctx context.Context, plan *workflow.Plan, ec *models.ExecutionContext, _ workflow.ExecuteOptions) (*models.WorkflowExecution, error) {
		calls[plan.WorkflowID]++

		if plan.WorkflowID == flaky.ID && calls[plan.WorkflowID] == 1 {
			return nil, errors.New("transient")
		}

		execution := succeed(plan, ec)

		return execution, f.store.SaveExecution(ctx, execution)
	}))

	processed, err := processor.ProcessNext(ctx, "w-1")
	require.NoError(t, err)
	require.True(t, processed)
	assert.Equal(t, models.QueueStatusRetrying, f.item(t, item.ID).Status)

	f.now = f.now.Add(retry.DefaultQueueDelay)

	processed, err = processor.ProcessNext(ctx, "w-1")
	require.NoError(t, err)
	require.True(t, processed)

	assert.Equal(t, models.QueueStatusCompleted, f.item(t, item.ID).Status)
	assert.Equal(t, 1, calls[healthy.ID])
	assert.Equal(t, 2, calls[flaky.ID])
}

func TestProcessor_ShutdownFinishesClaimedItem(t *testing.T) {
	f := newFixture(t)
	def := f.saveWorkflow(t, testutil.CreateInvoiceWorkflow())

	event := testutil.CreateTestEvent(testutil.WithReceivedAt(f.now))
	item := f.enqueue(t, event)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	processed, err := f.processor(f.executor()).ProcessNext(ctx, "w-1")
	require.NoError(t, err)
	require.True(t, processed)

	assert.Equal(t, models.QueueStatusCompleted, f.item(t, item.ID).Status)

	execution, err := f.store.ExecutionByID(context.Background(), queue.ExecutionID(item.ID, def.ID))
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, execution.Status)

	tasks, err := f.store.TasksByEvent(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestProcessor_ItemTimeoutIsRetried(t *testing.T) {
	f := newFixture(t)
	f.saveWorkflow(t, testutil.CreateInvoiceWorkflow())

	item := f.enqueue(t, testutil.CreateTestEvent())

	processor := f.processor(runnerFunc(func(ctx context.Context, _ *workflow.Plan, _ *models.ExecutionContext, _ workflow.ExecuteOptions) (*models.WorkflowExecution, error) {
		<-ctx.Done()

		return nil, ctx.Err()
	}), queue.WithItemTimeout(20*time.Millisecond))

	processed, err := processor.ProcessNext(context.Background(), "w-1")
	require.NoError(t, err)
	require.True(t, processed)

	current := f.item(t, item.ID)
	assert.Equal(t, models.QueueStatusRetrying, current.Status)
	assert.Equal(t, 1, current.RetryCount)
	assert.Contains(t, current.LastError, context.DeadlineExceeded.Error())
}

func TestProcessor_LostClaimIsLeftToNewOwner(t *testing.T) {
	f := newFixture(t)
	f.saveWorkflow(t, testutil.CreateInvoiceWorkflow())
	f.saveWorkflow(t, testutil.CreateInvoiceWorkflow())

	item := f.enqueue(t, testutil.CreateTestEvent())

	calls := 0
	processor := f.processor(runnerFunc(func(ctx context.Context, plan *workflow.Plan, ec *models.ExecutionContext, _ workflow.ExecuteOptions) (*models.WorkflowExecution, error) {
		calls++

		// The sweep releases the slow claim and another worker picks it up.
		_, err := f.store.RequeueStale(ctx, f.now.Add(time.Hour))
		require.NoError(t, err)

		_, err = f.store.Claim(ctx, "w-2", f.now)
		require.NoError(t, err)

		return succeed(plan, ec), nil
	}))

	processed, err := processor.ProcessNext(context.Background(), "w-1")
	require.NoError(t, err)
	require.True(t, processed)

	assert.Equal(t, 1, calls, "work stops once the claim is gone")

	current := f.item(t, item.ID)
	assert.Equal(t, models.QueueStatusProcessing, current.Status)
	assert.Equal(t, "w-2", current.ClaimedBy)
}

func TestExecutionID(t *testing.T) {
	assert.Equal(t, queue.ExecutionID("item", "wf"), queue.ExecutionID("item", "wf"))
	assert.NotEqual(t, queue.ExecutionID("item", "wf"), queue.ExecutionID("item", "other"))
}
