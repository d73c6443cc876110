package queue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dubaigit/task-mail-sub006/pkg/channels/gochannel"
	"github.com/dubaigit/task-mail-sub006/pkg/models"
	"github.com/dubaigit/task-mail-sub006/pkg/notify"
	"github.com/dubaigit/task-mail-sub006/pkg/queue"
	"github.com/dubaigit/task-mail-sub006/pkg/testutil"
	"github.com/dubaigit/task-mail-sub006/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingRunner records how often each event was executed.
type countingRunner struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingRunner) Execute(_ context.Context, plan *workflow.Plan, ec *models.ExecutionContext, _ workflow.ExecuteOptions) (*models.WorkflowExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counts[ec.Event().ID]++

	return succeed(plan, ec), nil
}

func (r *countingRunner) snapshot() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]int, len(r.counts))
	for k, v := range r.counts {
		out[k] = v
	}

	return out
}

func TestPool_EachItemProcessedOnce(t *testing.T) {
	f := newFixture(t)
	f.saveWorkflow(t, testutil.CreateInvoiceWorkflow())

	const items = 40

	eventIDs := make([]string, 0, items)
	for range items {
		event := testutil.CreateTestEvent()
		f.enqueue(t, event)
		eventIDs = append(eventIDs, event.ID)
	}

	runner := &countingRunner{counts: map[string]int{}}
	pool := queue.NewPool(f.processor(runner), testLogger(),
		queue.WithWorkers(6),
		queue.WithPollInterval(10*time.Millisecond),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- pool.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		completed, err := f.store.QueueItemsByStatus(context.Background(), models.QueueStatusCompleted, 0)

		return err == nil && len(completed) == items
	}, 5*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop")
	}

	counts := runner.snapshot()
	for _, id := range eventIDs {
		assert.Equal(t, 1, counts[id], "event %s", id)
	}
}

// blockingRunner holds every execution until released.
type blockingRunner struct {
	started chan struct{}
	release chan struct{}
}

func (r *blockingRunner) Execute(_ context.Context, plan *workflow.Plan, ec *models.ExecutionContext, _ workflow.ExecuteOptions) (*models.WorkflowExecution, error) {
	r.started <- struct{}{}
	<-r.release

	return succeed(plan, ec), nil
}

func TestPool_ShutdownWaitsForCurrentItem(t *testing.T) {
	f := newFixture(t)
	f.saveWorkflow(t, testutil.CreateInvoiceWorkflow())

	item := f.enqueue(t, testutil.CreateTestEvent())

	runner := &blockingRunner{started: make(chan struct{}, 1), release: make(chan struct{})}
	pool := queue.NewPool(f.processor(runner), testLogger(),
		queue.WithWorkers(1),
		queue.WithPollInterval(10*time.Millisecond),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- pool.Run(ctx)
	}()

	select {
	case <-runner.started:
	case <-time.After(2 * time.Second):
		t.Fatal("item was not picked up")
	}

	cancel()

	select {
	case <-done:
		t.Fatal("pool stopped before the current item finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(runner.release)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop")
	}

	assert.Equal(t, models.QueueStatusCompleted, f.item(t, item.ID).Status)
}

func TestPool_NotificationWakesWorkers(t *testing.T) {
	f := newFixture(t)
	f.saveWorkflow(t, testutil.CreateInvoiceWorkflow())

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	notifier := notify.NewWatermillNotifier(pub, sub, "", testLogger())

	t.Cleanup(func() {
		_ = notifier.Close()
	})

	runner := &countingRunner{counts: map[string]int{}}
	pool := queue.NewPool(f.processor(runner), testLogger(),
		queue.WithWorkers(2),
		queue.WithPollInterval(time.Hour),
		queue.WithSubscriber(notifier),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = pool.Run(ctx)
	}()

	event := testutil.CreateTestEvent(func(e *models.Event) { e.Importance = models.ImportanceUrgent })
	item := f.enqueue(t, event)

	// The subscription starts with the pool, so keep announcing until it is picked up.
	require.Eventually(t, func() bool {
		_ = notifier.Publish(ctx, notify.Message{ItemID: item.ID, Priority: item.Priority})

		current, err := f.store.QueueItemByID(context.Background(), item.ID)

		return err == nil && current.Status == models.QueueStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)
}

func TestPool_LowPriorityWaitsForPoll(t *testing.T) {
	f := newFixture(t)
	f.saveWorkflow(t, testutil.CreateInvoiceWorkflow())

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	notifier := notify.NewWatermillNotifier(pub, sub, "", testLogger())

	t.Cleanup(func() {
		_ = notifier.Close()
	})

	runner := &countingRunner{counts: map[string]int{}}
	pool := queue.NewPool(f.processor(runner), testLogger(),
		queue.WithWorkers(1),
		queue.WithPollInterval(time.Hour),
		queue.WithSubscriber(notifier),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = pool.Run(ctx)
	}()

	// Let the worker finish its first drain before enqueueing.
	time.Sleep(100 * time.Millisecond)

	item := f.enqueue(t, testutil.CreateTestEvent(func(e *models.Event) { e.Importance = models.ImportanceLow }))

	for range 5 {
		require.NoError(t, notifier.Publish(ctx, notify.Message{ItemID: item.ID, Priority: item.Priority}))
		time.Sleep(20 * time.Millisecond)
	}

	assert.Equal(t, models.QueueStatusPending, f.item(t, item.ID).Status)
}
