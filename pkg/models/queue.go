package models

import "time"

// DefaultMaxRetries is the number of retries a queue item gets before it fails for good.
const DefaultMaxRetries = 3

// Priority orders queue items; higher rank is claimed first.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Rank maps a priority to its sort weight. Unknown values rank as normal.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 3
	case PriorityHigh:
		return 2
	case PriorityLow:
		return 0
	default:
		return 1
	}
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// QueueStatus is the state of a queue item.
type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusCompleted  QueueStatus = "completed"
	QueueStatusFailed     QueueStatus = "failed"
	QueueStatusRetrying   QueueStatus = "retrying"
)

// QueueItem is one unit of durable work: an event waiting to be matched and executed.
type QueueItem struct {
	ID              string      `json:"id"`
	EventID         string      `json:"event_id"`
	EventType       string      `json:"event_type"`
	Priority        Priority    `json:"priority"`
	Status          QueueStatus `json:"status"`
	RetryCount      int         `json:"retry_count"`
	MaxRetries      int         `json:"max_retries"`
	ScheduledAt     time.Time   `json:"scheduled_at"`
	ClaimedAt       *time.Time  `json:"claimed_at,omitempty"`
	ClaimedBy       string      `json:"claimed_by,omitempty"`
	CancelRequested bool        `json:"cancel_requested"`
	LastError       string      `json:"last_error,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
	CompletedAt     *time.Time  `json:"completed_at,omitempty"`
}

// Claimable reports whether the item may be picked up at now.
func (q *QueueItem) Claimable(now time.Time) bool {
	return (q.Status == QueueStatusPending || q.Status == QueueStatusRetrying) && !q.ScheduledAt.After(now)
}

// ClaimsBefore orders two claimable items: higher priority first, then earlier schedule.
func (q *QueueItem) ClaimsBefore(other *QueueItem) bool {
	if q.Priority.Rank() != other.Priority.Rank() {
		return q.Priority.Rank() > other.Priority.Rank()
	}

	if !q.ScheduledAt.Equal(other.ScheduledAt) {
		return q.ScheduledAt.Before(other.ScheduledAt)
	}

	return q.CreatedAt.Before(other.CreatedAt)
}
