package models

import "time"

// ExecutionStatus is the lifecycle state of a workflow execution.
type ExecutionStatus string

const (
	ExecutionStatusPending ExecutionStatus = "pending"
	ExecutionStatusRunning ExecutionStatus = "running"
	ExecutionStatusSuccess ExecutionStatus = "success"
	ExecutionStatusFailed  ExecutionStatus = "failed"
	ExecutionStatusPartial ExecutionStatus = "partial"
	// ExecutionStatusNoOp marks a run where no action node executed.
	ExecutionStatusNoOp ExecutionStatus = "no_op"
)

// Terminal reports whether the execution can no longer change.
func (s ExecutionStatus) Terminal() bool {
	return s != ExecutionStatusPending && s != ExecutionStatusRunning
}

// WorkflowExecution is the persisted trace of one workflow run against one event.
type WorkflowExecution struct {
	ID              string                `json:"id"`
	WorkflowID      string                `json:"workflow_id"`
	WorkflowVersion int                   `json:"workflow_version"`
	EventID         string                `json:"event_id"`
	QueueItemID     string                `json:"queue_item_id,omitempty"`
	Status          ExecutionStatus       `json:"status"`
	NodeResults     map[string]NodeResult `json:"node_results"`
	ExecutionPath   []string              `json:"execution_path"`
	Actions         []*ActionExecution    `json:"actions,omitempty"`
	ErrorMessage    string                `json:"error_message,omitempty"`
	DurationMs      int64                 `json:"duration_ms"`
	DryRun          bool                  `json:"dry_run"`
	StartedAt       time.Time             `json:"started_at"`
	CompletedAt     *time.Time            `json:"completed_at,omitempty"`
}

// ActionStatus is the state of a single action invocation.
type ActionStatus string

const (
	ActionStatusSuccess ActionStatus = "success"
	ActionStatusFailed  ActionStatus = "failed"
	ActionStatusSkipped ActionStatus = "skipped"
	ActionStatusRetry   ActionStatus = "retry"
)

// ActionExecution records the invocation of one action node, updated per attempt.
type ActionExecution struct {
	ID           string         `json:"id"`
	ExecutionID  string         `json:"execution_id"`
	NodeID       string         `json:"node_id"`
	ActionType   string         `json:"action_type"`
	Config       Properties     `json:"config,omitempty"`
	Status       ActionStatus   `json:"status"`
	Result       map[string]any `json:"result,omitempty"`
	RetryCount   int            `json:"retry_count"`
	ErrorMessage string         `json:"error_message,omitempty"`
	DryRun       bool           `json:"dry_run"`
	ExecutedAt   time.Time      `json:"executed_at"`
}

// Task is a follow-up item created by the task action.
type Task struct {
	ID            string     `json:"id"`
	ExecutionID   string     `json:"execution_id"`
	NodeID        string     `json:"node_id"`
	SourceEventID string     `json:"source_event_id"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	Priority      Priority   `json:"priority"`
	Assignee      string     `json:"assignee,omitempty"`
	DueAt         *time.Time `json:"due_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
