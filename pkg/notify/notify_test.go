package notify_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/alicebob/miniredis/v2"
	"github.com/dubaigit/task-mail-sub006/pkg/channels/gochannel"
	"github.com/dubaigit/task-mail-sub006/pkg/models"
	"github.com/dubaigit/task-mail-sub006/pkg/notify"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func receive(t *testing.T, messages <-chan notify.Message) notify.Message {
	t.Helper()

	select {
	case msg := <-messages:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not delivered")

		return notify.Message{}
	}
}

// roundTrip publishes two messages and checks they arrive in order, then that
// the subscription channel closes with its context.
func roundTrip(t *testing.T, notifier notify.Notifier) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())

	messages, err := notifier.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, notifier.Publish(ctx, notify.Message{ItemID: "item-1", Priority: models.PriorityUrgent}))
	require.NoError(t, notifier.Publish(ctx, notify.Message{ItemID: "item-2", Priority: models.PriorityLow}))

	first := receive(t, messages)
	assert.Equal(t, "item-1", first.ItemID)
	assert.Equal(t, models.PriorityUrgent, first.Priority)

	second := receive(t, messages)
	assert.Equal(t, "item-2", second.ItemID)

	cancel()

	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-messages:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRedisNotifier(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})

	notifier := notify.NewRedisNotifier(client, "", testLogger())

	t.Cleanup(func() {
		_ = notifier.Close()
	})

	roundTrip(t, notifier)
}

func TestWatermillNotifier(t *testing.T) {
	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	notifier := notify.NewWatermillNotifier(pub, sub, "", testLogger())

	t.Cleanup(func() {
		_ = notifier.Close()
	})

	roundTrip(t, notifier)
}

func TestMessage_Wakes(t *testing.T) {
	assert.True(t, notify.Message{Priority: models.PriorityUrgent}.Wakes())
	assert.True(t, notify.Message{Priority: models.PriorityHigh}.Wakes())
	assert.False(t, notify.Message{Priority: models.PriorityNormal}.Wakes())
	assert.False(t, notify.Message{Priority: models.PriorityLow}.Wakes())
}
