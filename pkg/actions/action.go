// Package actions dispatches action nodes to their handlers and retries transient failures.
package actions

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/dubaigit/task-mail-sub006/pkg/collaborators"
	"github.com/dubaigit/task-mail-sub006/pkg/models"
)

var (
	ErrUnknownAction = errors.New("unknown action type")
	ErrInvalidConfig = errors.New("invalid action configuration")
)

// Request is what a handler receives for one attempt.
type Request struct {
	NodeID         string
	Props          models.Properties
	View           models.ContextView
	IdempotencyKey string
}

// Result is the outcome of one handler attempt.
type Result struct {
	Success   bool
	Payload   map[string]any
	Retryable bool
	Err       error
}

func Succeeded(payload map[string]any) Result {
	return Result{Success: true, Payload: payload}
}

// Fatal marks a failure that must not be retried.
func Fatal(err error) Result {
	return Result{Err: err}
}

func Retryable(err error) Result {
	return Result{Err: err, Retryable: true}
}

// FromError classifies a collaborator error as retryable or fatal.
func FromError(err error) Result {
	if collaborators.IsRetryable(err) {
		return Retryable(err)
	}

	return Fatal(err)
}

// InvalidConfig builds a fatal result for a missing or malformed property.
func InvalidConfig(format string, args ...any) Result {
	return Fatal(fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...)))
}

// Handler performs one kind of action. Simulate must not touch any collaborator.
type Handler interface {
	Type() string
	Execute(ctx context.Context, req Request) Result
	Simulate(req Request) Result
}

// Registry maps action node types to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry(handlers ...Handler) *Registry {
	registry := &Registry{handlers: make(map[string]Handler)}

	for _, handler := range handlers {
		registry.Register(handler)
	}

	return registry
}

func (r *Registry) Register(handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[handler.Type()] = handler
}

func (r *Registry) Lookup(actionType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, ok := r.handlers[actionType]

	return handler, ok
}

func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}

	slices.Sort(types)

	return types
}
