package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrEventNotFound indicates an event was not found by the given identifier.
	ErrEventNotFound = errors.New("event not found")

	// ErrExecutionNotFound indicates an execution was not found by the given identifier.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrQueueItemNotFound indicates a queue item was not found by the given identifier.
	ErrQueueItemNotFound = errors.New("queue item not found")

	// ErrQueueEmpty indicates no queue item is due for processing.
	ErrQueueEmpty = errors.New("queue is empty")

	// ErrInvalidTransition indicates a queue item is not in a state that allows the operation.
	ErrInvalidTransition = errors.New("invalid queue item transition")

	// ErrClaimLost indicates the worker no longer holds the claim on a queue item.
	ErrClaimLost = fmt.Errorf("%w: claim not held by worker", ErrInvalidTransition)
)

// StaleClaimError is the last error recorded on an item whose claim expired.
const StaleClaimError = "claim expired before the worker finished"


// WorkflowError wraps workflow-related errors with additional context.
type WorkflowError struct {
	Op         string // Operation being performed (e.g., "WorkflowByID", "SaveWorkflow")
	WorkflowID string
	Err        error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for workflow errors.
func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWorkflowError creates a new workflow error with context.
func NewWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{
		Op:         op,
		WorkflowID: workflowID,
		Err:        err,
	}
}

// QueueError wraps queue-related errors with the item involved.
type QueueError struct {
	Op     string
	ItemID string
	Err    error
}

func (e *QueueError) Error() string {
	return fmt.Sprintf("%s operation failed for queue item %s: %v", e.Op, e.ItemID, e.Err)
}

func (e *QueueError) Unwrap() error {
	return e.Err
}

func (e *QueueError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewQueueError(op, itemID string, err error) *QueueError {
	return &QueueError{Op: op, ItemID: itemID, Err: err}
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

func IsQueueItemNotFound(err error) bool {
	return errors.Is(err, ErrQueueItemNotFound)
}

func IsEventNotFound(err error) bool {
	return errors.Is(err, ErrEventNotFound)
}

// IsQueueEmpty checks if a claim found nothing to do.
func IsQueueEmpty(err error) bool {
	return errors.Is(err, ErrQueueEmpty)
}

func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

// IsClaimLost checks if a worker acted on an item it no longer holds.
func IsClaimLost(err error) bool {
	return errors.Is(err, ErrClaimLost)
}
