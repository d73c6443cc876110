// Package services exposes the automation core to transports: event intake,
// workflow management, test runs and queue operations.
package services

import (
	"errors"
	"fmt"

	"github.com/dubaigit/task-mail-sub006/pkg/persistence"
	"github.com/dubaigit/task-mail-sub006/pkg/workflow"
)

// Error codes returned in ServiceError.Code and used as API problem types.
const (
	CodeWorkflowNotFound      = "WORKFLOW_NOT_FOUND"
	CodeCompilationFailed     = "WORKFLOW_COMPILATION_FAILED"
	CodeCircularDependency    = "CIRCULAR_DEPENDENCY"
	CodeExecutionFailed       = "EXECUTION_FAILED"
	CodeExecutionNotFound     = "EXECUTION_NOT_FOUND"
	CodeQueueItemNotFound     = "QUEUE_ITEM_NOT_FOUND"
	CodeInvalidRequest        = "INVALID_REQUEST"
	CodeInvalidQueueOperation = "INVALID_QUEUE_OPERATION"
)

// Validation errors (400 Bad Request).
var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrInvalidEvent    = errors.New("invalid event")
	ErrInvalidPriority = errors.New("invalid priority")
	ErrWorkflowNil     = errors.New("workflow cannot be nil")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func newServiceError(op, code string, err error) *ServiceError {
	return &ServiceError{Op: op, Code: code, Message: err.Error(), Err: err}
}

// Code returns the code of a ServiceError anywhere in err's chain.
func Code(err error) string {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Code
	}

	return ""
}

// IsValidationError checks if an error should return HTTP 400.
func IsValidationError(err error) bool {
	switch Code(err) {
	case CodeInvalidRequest, CodeCompilationFailed, CodeCircularDependency:
		return true
	default:
		return false
	}
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	switch Code(err) {
	case CodeWorkflowNotFound, CodeExecutionNotFound, CodeQueueItemNotFound:
		return true
	default:
		return false
	}
}

// IsConflictError checks if an error should return HTTP 409.
func IsConflictError(err error) bool {
	return Code(err) == CodeInvalidQueueOperation
}

// classify maps lower layer errors to a service error. Unknown errors are
// wrapped without a code and end up as 500s.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case Code(err) != "":
		return err
	case workflow.IsCircularDependency(err):
		return newServiceError(op, CodeCircularDependency, err)
	case workflow.IsCompilationFailed(err):
		return newServiceError(op, CodeCompilationFailed, err)
	case persistence.IsWorkflowNotFound(err):
		return newServiceError(op, CodeWorkflowNotFound, err)
	case persistence.IsExecutionNotFound(err):
		return newServiceError(op, CodeExecutionNotFound, err)
	case persistence.IsQueueItemNotFound(err):
		return newServiceError(op, CodeQueueItemNotFound, err)
	case persistence.IsInvalidTransition(err):
		return newServiceError(op, CodeInvalidQueueOperation, err)
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrInvalidEvent),
		errors.Is(err, ErrInvalidPriority), errors.Is(err, ErrWorkflowNil):
		return newServiceError(op, CodeInvalidRequest, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
