package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dubaigit/task-mail-sub006/pkg/models"
)

type TaskRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewTaskRepository(db *sql.DB, logger *slog.Logger) *TaskRepository {
	return &TaskRepository{db: db, logger: logger}
}

// CreateTask inserts the task. Task ids derive from the idempotency key, so a
// repeated insert is a no-op.
func (r *TaskRepository) CreateTask(ctx context.Context, task *models.Task) error {
	var dueAt sql.NullTime
	if task.DueAt != nil {
		dueAt = sql.NullTime{Time: task.DueAt.UTC(), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tasks
			(id, execution_id, node_id, source_event_id, title, description, priority, assignee, due_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10)
		ON CONFLICT (id) DO NOTHING
	`,
		task.ID,
		task.ExecutionID,
		task.NodeID,
		task.SourceEventID,
		task.Title,
		task.Description,
		task.Priority,
		task.Assignee,
		dueAt,
		task.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	return nil
}

func (r *TaskRepository) TasksByEvent(ctx context.Context, eventID string) ([]*models.Task, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, execution_id, node_id, source_event_id, title, description, priority,
			COALESCE(assignee, ''), due_at, created_at
		FROM tasks
		WHERE source_event_id = $1
		ORDER BY created_at
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	tasks := make([]*models.Task, 0)

	for rows.Next() {
		var (
			task  models.Task
			dueAt sql.NullTime
		)

		err := rows.Scan(
			&task.ID,
			&task.ExecutionID,
			&task.NodeID,
			&task.SourceEventID,
			&task.Title,
			&task.Description,
			&task.Priority,
			&task.Assignee,
			&dueAt,
			&task.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}

		if dueAt.Valid {
			task.DueAt = &dueAt.Time
		}

		tasks = append(tasks, &task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}
