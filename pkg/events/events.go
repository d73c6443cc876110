// Package events defines the lifecycle notifications published on the event bus.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const Topic = "mail-automation.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	EventEnqueuedEvent         EventType = "event.enqueued"
	ExecutionCompletedEvent    EventType = "workflow.execution.completed"
	QueueItemFailedEvent       EventType = "queue.item.failed"
	NotificationRequestedEvent EventType = "notification.requested"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	WorkerID  string         `json:"worker_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
}

type EventEnqueued struct {
	BaseEvent

	EventID     string `json:"event_id"`
	QueueItemID string `json:"queue_item_id"`
	Priority    string `json:"priority"`
}

func (e EventEnqueued) GetType() EventType {
	return EventEnqueuedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	WorkflowID  string `json:"workflow_id"`
	EventID     string `json:"event_id"`
	Status      string `json:"status"`
	DurationMs  int64  `json:"duration_ms"`
	Actions     int    `json:"actions"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type QueueItemFailed struct {
	BaseEvent

	QueueItemID string `json:"queue_item_id"`
	EventID     string `json:"event_id"`
	RetryCount  int    `json:"retry_count"`
	Error       string `json:"error"`
}

func (e QueueItemFailed) GetType() EventType {
	return QueueItemFailedEvent
}

// NotificationRequested carries a notify action to whatever consumes the bus.
type NotificationRequested struct {
	BaseEvent

	IdempotencyKey string         `json:"idempotency_key"`
	Channel        string         `json:"channel"`
	Recipients     []string       `json:"recipients,omitempty"`
	Title          string         `json:"title"`
	Message        string         `json:"message"`
	Data           map[string]any `json:"data,omitempty"`
}

func (e NotificationRequested) GetType() EventType {
	return NotificationRequestedEvent
}
