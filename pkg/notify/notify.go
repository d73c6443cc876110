// Package notify carries "new work" signals from the enqueue side to idle
// workers so they do not have to wait for their next poll.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dubaigit/task-mail-sub006/pkg/models"
)

// Channel is the default channel or topic name.
const Channel = "automation_queue"

const subscriberBuffer = 64

// Message announces a newly enqueued queue item.
type Message struct {
	ItemID   string          `json:"item_id"`
	Priority models.Priority `json:"priority"`
}

// Wakes reports whether workers should be woken right away for this message.
// Low and normal items are left to the poll loop.
func (m Message) Wakes() bool {
	return m.Priority.Rank() >= models.PriorityHigh.Rank()
}

type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Subscriber delivers messages until ctx is cancelled, then closes the channel.
// Delivery is best effort; a lost message only delays work until the next poll.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan Message, error)
}

type Notifier interface {
	Publisher
	Subscriber
	Close() error
}

func encode(msg Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode notification: %w", err)
	}

	return payload, nil
}

func decode(payload []byte) (Message, error) {
	var msg Message

	err := json.Unmarshal(payload, &msg)
	if err != nil {
		return Message{}, fmt.Errorf("failed to decode notification: %w", err)
	}

	return msg, nil
}

// deliver hands msg to out unless ctx is done first.
func deliver(ctx context.Context, out chan<- Message, msg Message) bool {
	select {
	case out <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}
