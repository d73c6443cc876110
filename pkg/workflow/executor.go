package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dubaigit/task-mail-sub006/pkg/conditions"
	"github.com/dubaigit/task-mail-sub006/pkg/metrics"
	"github.com/dubaigit/task-mail-sub006/pkg/models"
	"github.com/dubaigit/task-mail-sub006/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const maxErrorMessageLength = 512

var errExecutionCancelled = errors.New("execution cancelled")

// ConditionEvaluator evaluates condition nodes and connection guards.
// It reports failures as a not-met outcome.
type ConditionEvaluator interface {
	Evaluate(ctx context.Context, conditionType string, props models.Properties, view models.ContextView) conditions.Outcome
}

// ActionDispatcher runs one action node to a terminal record.
type ActionDispatcher interface {
	Dispatch(ctx context.Context, node *models.WorkflowNode, view models.ContextView) (*models.ActionExecution, error)
}

// ExecutionStore persists execution records.
type ExecutionStore interface {
	SaveExecution(ctx context.Context, execution *models.WorkflowExecution) error
}

type Executor struct {
	conditions ConditionEvaluator
	actions    ActionDispatcher
	store      ExecutionStore
	logger     *slog.Logger
	metrics    *metrics.Collector
	tracer     trace.Tracer
	now        func() time.Time
}

type ExecutorOption func(*Executor)

// WithExecutionStore persists every non dry-run execution at start and end.
func WithExecutionStore(store ExecutionStore) ExecutorOption {
	return func(e *Executor) { e.store = store }
}

func WithExecutorMetrics(collector *metrics.Collector) ExecutorOption {
	return func(e *Executor) { e.metrics = collector }
}

func WithExecutorTracer(tracer trace.Tracer) ExecutorOption {
	return func(e *Executor) { e.tracer = tracer }
}

func NewExecutor(conditions ConditionEvaluator, actions ActionDispatcher, logger *slog.Logger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		conditions: conditions,
		actions:    actions,
		logger:     logger.With("module", "workflow_executor"),
		tracer:     otelhelper.Tracer(),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// ExecuteOptions tunes one run.
type ExecuteOptions struct {
	QueueItemID string
	// MatchedTriggers lists the trigger nodes that accepted the event.
	// Empty means every trigger is treated as matched.
	MatchedTriggers []string
	// CancelCheck is consulted between nodes; returning true stops the run.
	CancelCheck func(ctx context.Context) bool
}

// Execute walks plan against the execution context and returns the finished
// execution record. The returned error is set only when the record could not
// be persisted; the record is returned in every case.
func (e *Executor) Execute(ctx context.Context, plan *Plan, ec *models.ExecutionContext, opts ExecuteOptions) (*models.WorkflowExecution, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.execute",
		attribute.String(otelhelper.WorkflowIDKey, plan.WorkflowID),
		attribute.String(otelhelper.ExecutionIDKey, ec.ExecutionID()),
		attribute.String(otelhelper.EventIDKey, ec.Event().ID),
	)
	defer span.End()

	logger := e.logger.With("workflow_id", plan.WorkflowID, "execution_id", ec.ExecutionID(), "dry_run", ec.DryRun())

	execution := &models.WorkflowExecution{
		ID:              ec.ExecutionID(),
		WorkflowID:      plan.WorkflowID,
		WorkflowVersion: plan.Version,
		EventID:         ec.Event().ID,
		QueueItemID:     opts.QueueItemID,
		Status:          models.ExecutionStatusRunning,
		NodeResults:     map[string]models.NodeResult{},
		ExecutionPath:   []string{},
		DryRun:          ec.DryRun(),
		StartedAt:       e.now().UTC(),
	}

	if err := e.save(ctx, execution); err != nil {
		logger.ErrorContext(ctx, "Failed to persist execution start", "error", err)
		otelhelper.SetError(span, err)

		return execution, err
	}

	logger.InfoContext(ctx, "Starting workflow execution", "nodes", len(plan.Order))

	err := e.walk(ctx, plan, ec, execution, opts)

	execution.NodeResults = ec.Results()
	execution.Status = finalStatus(execution, err)

	if err != nil && !errors.Is(err, errExecutionCancelled) {
		execution.ErrorMessage = models.Truncate(err.Error(), maxErrorMessageLength)
		otelhelper.SetError(span, err)
	}

	completed := e.now().UTC()
	execution.CompletedAt = &completed
	execution.DurationMs = completed.Sub(execution.StartedAt).Milliseconds()

	span.SetAttributes(attribute.String("execution.status", string(execution.Status)))
	e.metrics.ObserveExecution(string(execution.Status), completed.Sub(execution.StartedAt))

	logger.InfoContext(ctx, "Completed workflow execution",
		"status", execution.Status,
		"actions", len(execution.Actions),
		"duration_ms", execution.DurationMs)

	if err := e.save(context.WithoutCancel(ctx), execution); err != nil {
		logger.ErrorContext(ctx, "Failed to persist execution result", "error", err)

		return execution, err
	}

	return execution, nil
}

// walk visits every ordered node. It returns errExecutionCancelled when the
// run was stopped and any other error for an unhandled failure.
func (e *Executor) walk(ctx context.Context, plan *Plan, ec *models.ExecutionContext, execution *models.WorkflowExecution, opts ExecuteOptions) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("execution panicked: %v", rec)
		}
	}()

	for _, i := range plan.Triggers {
		node := plan.Nodes[i]
		passed := len(opts.MatchedTriggers) == 0 || slices.Contains(opts.MatchedTriggers, node.ID)

		if err := e.record(ec, node, models.NodeKindTrigger, models.NodeStatusSuccess, passed, nil); err != nil {
			return err
		}

		if passed {
			execution.ExecutionPath = append(execution.ExecutionPath, node.ID)
		}
	}

	for pos, i := range plan.Order {
		stop := ctx.Err()
		if stop != nil {
			stop = fmt.Errorf("execution interrupted: %w", stop)
		} else if opts.CancelCheck != nil && opts.CancelCheck(ctx) {
			stop = errExecutionCancelled
		}

		if stop != nil {
			for _, rest := range plan.Order[pos:] {
				if err := e.skip(ec, plan, rest); err != nil {
					return err
				}
			}

			return stop
		}

		node := plan.Nodes[i]
		kind := plan.Kinds[i]

		if !e.shouldRun(ctx, plan, ec, i) {
			if err := e.skip(ec, plan, i); err != nil {
				return err
			}

			continue
		}

		execution.ExecutionPath = append(execution.ExecutionPath, node.ID)

		switch kind {
		case models.NodeKindCondition:
			outcome := e.conditions.Evaluate(ctx, node.Type, node.Properties, ec)
			result := e.result(node, kind, models.NodeStatusSuccess, outcome.Met, outcome.Detail)
			result.Warning = outcome.Warning

			if err := ec.Record(result); err != nil {
				return err
			}

		case models.NodeKindLogic:
			passed, evaluated := combine(node.Type, plan, ec, plan.LogicInputs[i])
			if err := e.record(ec, node, kind, models.NodeStatusSuccess, passed, map[string]any{"inputs": evaluated}); err != nil {
				return err
			}

		case models.NodeKindAction:
			action, err := e.actions.Dispatch(ctx, node, ec)
			if err != nil {
				return fmt.Errorf("action %s: %w", node.ID, err)
			}

			execution.Actions = append(execution.Actions, action)

			status := models.NodeStatusSuccess
			if action.Status != models.ActionStatusSuccess {
				status = models.NodeStatusFailed
			}

			result := e.result(node, kind, status, status == models.NodeStatusSuccess, action.Result)
			result.Error = action.ErrorMessage

			if err := ec.Record(result); err != nil {
				return err
			}

		default:
			return fmt.Errorf("%w: %s", ErrUnknownNodeType, node.Type)
		}
	}

	return nil
}

// shouldRun decides whether node i is reached. Nodes without incoming edges
// hang off the trigger. Logic nodes run once any of their inputs ran; other
// nodes need at least one live incoming edge.
func (e *Executor) shouldRun(ctx context.Context, plan *Plan, ec *models.ExecutionContext, i int) bool {
	in := plan.In[i]

	if plan.Kinds[i] == models.NodeKindLogic {
		inputs := plan.LogicInputs[i]
		if len(inputs) == 0 {
			return len(in) == 0
		}

		for _, j := range inputs {
			if source, ok := ec.Result(plan.Nodes[j].ID); ok && source.Executed() {
				return true
			}
		}

		return false
	}

	if len(in) == 0 {
		return true
	}

	for _, edge := range in {
		source, ok := ec.Result(plan.Nodes[edge.From].ID)
		if !ok || !source.Executed() {
			continue
		}

		if e.edgeLive(ctx, edge, source, ec) {
			return true
		}
	}

	return false
}

// edgeLive follows the positive port of a passing source or the false port of
// a failing one, then checks the connection guards. Edges out of an action
// do not depend on its outcome.
func (e *Executor) edgeLive(ctx context.Context, edge Edge, source models.NodeResult, ec *models.ExecutionContext) bool {
	if source.Kind != models.NodeKindAction && edge.Connection.FromFalsePort() == source.Passed {
		return false
	}

	for _, guard := range edge.Connection.Guards {
		if !e.conditions.Evaluate(ctx, guard.Type, guard.Properties, ec).Met {
			return false
		}
	}

	return true
}

// combine applies boolean logic to the executed inputs. With no executed
// inputs AND yields true, OR yields false and NOT yields false.
func combine(nodeType string, plan *Plan, ec *models.ExecutionContext, inputs []int) (bool, int) {
	allPassed, anyPassed := true, false
	evaluated := 0

	for _, j := range inputs {
		result, ok := ec.Result(plan.Nodes[j].ID)
		if !ok || !result.Executed() {
			continue
		}

		evaluated++
		allPassed = allPassed && result.Passed
		anyPassed = anyPassed || result.Passed
	}

	switch nodeType {
	case models.NodeTypeLogicOr:
		return anyPassed, evaluated
	case models.NodeTypeLogicNot:
		return !allPassed, evaluated
	default:
		return allPassed, evaluated
	}
}

func (e *Executor) skip(ec *models.ExecutionContext, plan *Plan, i int) error {
	return e.record(ec, plan.Nodes[i], plan.Kinds[i], models.NodeStatusSkipped, false, nil)
}

func (e *Executor) record(ec *models.ExecutionContext, node *models.WorkflowNode, kind models.NodeKind, status models.NodeStatus, passed bool, data map[string]any) error {
	return ec.Record(e.result(node, kind, status, passed, data))
}

func (e *Executor) result(node *models.WorkflowNode, kind models.NodeKind, status models.NodeStatus, passed bool, data map[string]any) models.NodeResult {
	return models.NodeResult{
		NodeID:    node.ID,
		Kind:      kind,
		Status:    status,
		Passed:    passed,
		Data:      data,
		Timestamp: e.now().UTC(),
	}
}

func (e *Executor) save(ctx context.Context, execution *models.WorkflowExecution) error {
	if e.store == nil || execution.DryRun {
		return nil
	}

	err := e.store.SaveExecution(ctx, execution)
	if err != nil {
		return fmt.Errorf("failed to persist execution %s: %w", execution.ID, err)
	}

	return nil
}

// finalStatus derives the execution status from the walk outcome and the
// executed actions.
func finalStatus(execution *models.WorkflowExecution, err error) models.ExecutionStatus {
	switch {
	case errors.Is(err, errExecutionCancelled):
		return models.ExecutionStatusPartial
	case err != nil:
		return models.ExecutionStatusFailed
	case len(execution.Actions) == 0:
		return models.ExecutionStatusNoOp
	}

	for _, action := range execution.Actions {
		if action.Status != models.ActionStatusSuccess {
			return models.ExecutionStatusPartial
		}
	}

	return models.ExecutionStatusSuccess
}
