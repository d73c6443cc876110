package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dubaigit/task-mail-sub006/pkg/models"
	"github.com/dubaigit/task-mail-sub006/pkg/persistence"
	"github.com/lib/pq"
)

// ExecutionRepository stores workflow executions and their action log.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

const executionColumns = `
	id
  , workflow_id
  , workflow_version
  , event_id
  , COALESCE(queue_item_id, '')
  , status
  , node_results
  , execution_path
  , COALESCE(error_message, '')
  , duration_ms
  , started_at
  , completed_at
`

// SaveExecution upserts an execution; the executor saves once when it starts and once when it finishes.
func (r *ExecutionRepository) SaveExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	results := execution.NodeResults
	if results == nil {
		results = map[string]models.NodeResult{}
	}

	nodeResults, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("failed to marshal node results: %w", err)
	}

	var completedAt sql.NullTime
	if execution.CompletedAt != nil {
		completedAt = sql.NullTime{Time: execution.CompletedAt.UTC(), Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflow_executions
			(id, workflow_id, workflow_version, event_id, queue_item_id, status, node_results,
			 execution_path, error_message, duration_ms, started_at, completed_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, NULLIF($9, ''), $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			node_results = EXCLUDED.node_results,
			execution_path = EXCLUDED.execution_path,
			error_message = EXCLUDED.error_message,
			duration_ms = EXCLUDED.duration_ms,
			completed_at = EXCLUDED.completed_at
	`,
		execution.ID,
		execution.WorkflowID,
		execution.WorkflowVersion,
		execution.EventID,
		execution.QueueItemID,
		execution.Status,
		nodeResults,
		pq.Array(emptySlice(execution.ExecutionPath)),
		execution.ErrorMessage,
		execution.DurationMs,
		execution.StartedAt.UTC(),
		completedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}

	return nil
}

func scanExecution(row rowScanner) (*models.WorkflowExecution, error) {
	var (
		execution   models.WorkflowExecution
		nodeResults []byte
		completedAt sql.NullTime
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.WorkflowVersion,
		&execution.EventID,
		&execution.QueueItemID,
		&execution.Status,
		&nodeResults,
		pq.Array(&execution.ExecutionPath),
		&execution.ErrorMessage,
		&execution.DurationMs,
		&execution.StartedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(nodeResults, &execution.NodeResults)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal node results: %w", err)
	}

	if completedAt.Valid {
		execution.CompletedAt = &completedAt.Time
	}

	return &execution, nil
}

// ExecutionByID returns the execution with its action log ordered by execution time.
func (r *ExecutionRepository) ExecutionByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM workflow_executions WHERE id = $1`, id)

	execution, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("execution %s: %w", id, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to get execution: %w", err)
	}

	execution.Actions, err = r.actionsByExecution(ctx, id)
	if err != nil {
		return nil, err
	}

	return execution, nil
}

func (r *ExecutionRepository) ExecutionsByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.WorkflowExecution, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+executionColumns+`
		FROM workflow_executions
		WHERE workflow_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, workflowID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	executions := make([]*models.WorkflowExecution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

// SaveActionExecution upserts by id so every retry attempt overwrites the same row.
func (r *ExecutionRepository) SaveActionExecution(ctx context.Context, action *models.ActionExecution) error {
	config, err := json.Marshal(emptyIfNil(action.Config))
	if err != nil {
		return fmt.Errorf("failed to marshal action config: %w", err)
	}

	var result []byte
	if action.Result != nil {
		result, err = json.Marshal(action.Result)
		if err != nil {
			return fmt.Errorf("failed to marshal action result: %w", err)
		}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO action_executions
			(id, execution_id, node_id, action_type, config, status, result, retry_count, error_message, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			result = EXCLUDED.result,
			retry_count = EXCLUDED.retry_count,
			error_message = EXCLUDED.error_message,
			executed_at = EXCLUDED.executed_at
	`,
		action.ID,
		action.ExecutionID,
		action.NodeID,
		action.ActionType,
		config,
		action.Status,
		result,
		action.RetryCount,
		action.ErrorMessage,
		action.ExecutedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save action execution: %w", err)
	}

	return nil
}

func (r *ExecutionRepository) actionsByExecution(ctx context.Context, executionID string) ([]*models.ActionExecution, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, execution_id, node_id, action_type, config, status, result, retry_count,
			COALESCE(error_message, ''), executed_at
		FROM action_executions
		WHERE execution_id = $1
		ORDER BY executed_at
	`, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query action executions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	actions := make([]*models.ActionExecution, 0)

	for rows.Next() {
		var (
			action models.ActionExecution
			config []byte
			result []byte
		)

		err := rows.Scan(
			&action.ID,
			&action.ExecutionID,
			&action.NodeID,
			&action.ActionType,
			&config,
			&action.Status,
			&result,
			&action.RetryCount,
			&action.ErrorMessage,
			&action.ExecutedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action execution: %w", err)
		}

		err = json.Unmarshal(config, &action.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal action config: %w", err)
		}

		if result != nil {
			err = json.Unmarshal(result, &action.Result)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal action result: %w", err)
			}
		}

		actions = append(actions, &action)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating action executions: %w", err)
	}

	return actions, nil
}
