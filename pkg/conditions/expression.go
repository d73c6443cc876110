package conditions

import (
	"context"
	"fmt"
	"sync"

	"github.com/dubaigit/task-mail-sub006/pkg/models"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ExpressionEvaluator runs a boolean expr-lang expression over the event
// and the results recorded so far. Compiled programs are cached per expression.
//
// Properties: expression. The environment exposes `event` and `results`
// (node id to {status, passed, data}).
type ExpressionEvaluator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

func NewExpressionEvaluator() *ExpressionEvaluator {
	return &ExpressionEvaluator{cache: make(map[string]*vm.Program)}
}

func (e *ExpressionEvaluator) Type() string {
	return models.NodeTypeConditionExpression
}

func (e *ExpressionEvaluator) Evaluate(_ context.Context, props models.Properties, view models.ContextView) (Outcome, error) {
	expression := props.String("expression")
	if expression == "" {
		return Outcome{}, fmt.Errorf("expression is required")
	}

	env := expressionEnv(view)

	program, err := e.program(expression, env)
	if err != nil {
		return Outcome{}, err
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to run expression: %w", err)
	}

	met, ok := result.(bool)
	if !ok {
		return Outcome{}, fmt.Errorf("expression %q did not evaluate to a boolean, got %T", expression, result)
	}

	return Outcome{Met: met}, nil
}

func (e *ExpressionEvaluator) program(expression string, env map[string]any) (*vm.Program, error) {
	e.mu.RLock()
	program, ok := e.cache[expression]
	e.mu.RUnlock()

	if ok {
		return program, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if program, ok = e.cache[expression]; ok {
		return program, nil
	}

	program, err := expr.Compile(expression, expr.Env(env), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("failed to compile expression: %w", err)
	}

	e.cache[expression] = program

	return program, nil
}

func expressionEnv(view models.ContextView) map[string]any {
	results := make(map[string]any)

	for id, result := range view.Results() {
		results[id] = map[string]any{
			"status": string(result.Status),
			"passed": result.Passed,
			"data":   result.Data,
		}
	}

	return map[string]any{
		"event":   view.Event().AsMap(),
		"results": results,
	}
}
