package models

import (
	"errors"
	"fmt"
	"maps"
	"sync"
)

// ErrResultRecorded is returned when a node result is written twice.
var ErrResultRecorded = errors.New("node result already recorded")

// ContextView is the read-only side of an execution context handed to
// condition evaluators and action handlers.
type ContextView interface {
	ExecutionID() string
	WorkflowID() string
	Event() *Event
	DryRun() bool
	Result(nodeID string) (NodeResult, bool)
	Results() map[string]NodeResult
}

// ExecutionContext is owned by one executor run. Node results are append-only.
type ExecutionContext struct {
	mu          sync.RWMutex
	executionID string
	workflowID  string
	event       *Event
	dryRun      bool
	results     map[string]NodeResult
}

func NewExecutionContext(executionID, workflowID string, event *Event, dryRun bool) *ExecutionContext {
	return &ExecutionContext{
		executionID: executionID,
		workflowID:  workflowID,
		event:       event,
		dryRun:      dryRun,
		results:     make(map[string]NodeResult),
	}
}

func (c *ExecutionContext) ExecutionID() string { return c.executionID }

func (c *ExecutionContext) WorkflowID() string { return c.workflowID }

func (c *ExecutionContext) Event() *Event { return c.event }

func (c *ExecutionContext) DryRun() bool { return c.dryRun }

// Record stores the result for a node. A node may only be recorded once.
func (c *ExecutionContext) Record(result NodeResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.results[result.NodeID]; exists {
		return fmt.Errorf("%w: %s", ErrResultRecorded, result.NodeID)
	}

	c.results[result.NodeID] = result

	return nil
}

func (c *ExecutionContext) Result(nodeID string) (NodeResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result, ok := c.results[nodeID]

	return result, ok
}

// Results returns a copy of all recorded results.
func (c *ExecutionContext) Results() map[string]NodeResult {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return maps.Clone(c.results)
}
