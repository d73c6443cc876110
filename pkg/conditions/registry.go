// Package conditions evaluates condition nodes and connection guards against an event.
package conditions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/dubaigit/task-mail-sub006/pkg/models"
)

var (
	ErrUnknownCondition = errors.New("unknown condition type")
	ErrUnknownOperator  = errors.New("unknown condition operator")
)

// Outcome is the result of evaluating a condition. Evaluation failures are
// reported as a not-met outcome with a warning.
type Outcome struct {
	Met     bool           `json:"met"`
	Detail  map[string]any `json:"detail,omitempty"`
	Warning string         `json:"warning,omitempty"`
}

// Evaluator decides whether one kind of condition holds.
type Evaluator interface {
	Type() string
	Evaluate(ctx context.Context, props models.Properties, view models.ContextView) (Outcome, error)
}

// Registry maps condition node types to evaluators.
type Registry struct {
	mu         sync.RWMutex
	evaluators map[string]Evaluator
	logger     *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		evaluators: make(map[string]Evaluator),
		logger:     logger.With("module", "conditions"),
	}
}

func (r *Registry) Register(evaluator Evaluator) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.evaluators[evaluator.Type()] = evaluator
}

func (r *Registry) Lookup(conditionType string) (Evaluator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	evaluator, ok := r.evaluators[conditionType]

	return evaluator, ok
}

func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.evaluators))
	for t := range r.evaluators {
		types = append(types, t)
	}

	slices.Sort(types)

	return types
}

// Evaluate runs the evaluator registered for conditionType. It never fails:
// unknown types, evaluator errors and panics all yield a not-met outcome.
func (r *Registry) Evaluate(ctx context.Context, conditionType string, props models.Properties, view models.ContextView) (outcome Outcome) {
	evaluator, ok := r.Lookup(conditionType)
	if !ok {
		return notMet(fmt.Errorf("%w: %s", ErrUnknownCondition, conditionType))
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.ErrorContext(ctx, "Condition evaluator panicked", "type", conditionType, "panic", rec)
			outcome = notMet(fmt.Errorf("evaluator panicked: %v", rec))
		}
	}()

	outcome, err := evaluator.Evaluate(ctx, props, view)
	if err != nil {
		r.logger.WarnContext(ctx, "Condition evaluation failed", "type", conditionType, "error", err)

		return notMet(err)
	}

	return outcome
}

func notMet(err error) Outcome {
	return Outcome{Met: false, Warning: err.Error()}
}

// Dependencies are the collaborators the built-in evaluators need.
// Nil collaborators disable the operators that require them.
type Dependencies struct {
	Classifier Classifier
	Stats      SenderStats
	Logger     *slog.Logger
}

// NewDefaultRegistry registers every built-in condition evaluator.
func NewDefaultRegistry(deps Dependencies) *Registry {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := NewRegistry(logger)
	registry.Register(NewContentEvaluator(deps.Classifier))
	registry.Register(NewSenderEvaluator(deps.Stats))
	registry.Register(NewTimeEvaluator())
	registry.Register(NewAIEvaluator(deps.Classifier, 0))
	registry.Register(NewExpressionEvaluator())

	return registry
}
