package workflow

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCompilationFailed is the root of every definition error found at compile time.
	ErrCompilationFailed = errors.New("workflow compilation failed")

	// ErrCircularDependency indicates the non-trigger node graph contains a cycle.
	ErrCircularDependency = errors.New("circular dependency")

	// ErrUnknownNodeType indicates a node kind or type outside the closed set.
	ErrUnknownNodeType = errors.New("unknown node type")

	// ErrInvalidConnection indicates a connection with a missing endpoint or an illegal target.
	ErrInvalidConnection = errors.New("invalid connection")

	// ErrInvalidProperties indicates node properties rejected by the node type's schema.
	ErrInvalidProperties = errors.New("invalid node properties")

	// ErrNoTrigger indicates a workflow without any trigger node.
	ErrNoTrigger = errors.New("workflow has no trigger node")
)

// CompilationError wraps a definition error with the offending node, if any.
type CompilationError struct {
	WorkflowID string
	NodeID     string
	Err        error
}

func (e *CompilationError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("workflow %s: node %s: %v", e.WorkflowID, e.NodeID, e.Err)
	}

	return fmt.Sprintf("workflow %s: %v", e.WorkflowID, e.Err)
}

func (e *CompilationError) Unwrap() error {
	return e.Err
}

func (e *CompilationError) Is(target error) bool {
	return target == ErrCompilationFailed || errors.Is(e.Err, target)
}

// CircularDependencyError lists the nodes that could not be ordered.
type CircularDependencyError struct {
	WorkflowID string
	NodeIDs    []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("workflow %s: circular dependency between nodes %s", e.WorkflowID, strings.Join(e.NodeIDs, ", "))
}

func (e *CircularDependencyError) Is(target error) bool {
	return target == ErrCircularDependency
}

func newCompilationError(workflowID, nodeID string, err error) *CompilationError {
	return &CompilationError{WorkflowID: workflowID, NodeID: nodeID, Err: err}
}

func IsCircularDependency(err error) bool {
	return errors.Is(err, ErrCircularDependency)
}

func IsCompilationFailed(err error) bool {
	return errors.Is(err, ErrCompilationFailed)
}
