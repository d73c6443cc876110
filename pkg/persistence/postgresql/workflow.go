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

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

const workflowColumns = `
	id
  , name
  , description
  , version
  , is_active
  , COALESCE(owner, '')
  , created_at
  , updated_at
`

// Workflows returns all workflows, oldest first.
func (r *WorkflowRepository) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	return r.query(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE deleted_at IS NULL ORDER BY created_at`)
}

// ActiveWorkflows returns the workflows eligible for matching.
func (r *WorkflowRepository) ActiveWorkflows(ctx context.Context) ([]*models.Workflow, error) {
	return r.query(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE deleted_at IS NULL AND is_active ORDER BY created_at`)
}

func (r *WorkflowRepository) query(ctx context.Context, query string, args ...any) ([]*models.Workflow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	for _, workflow := range workflows {
		err := r.loadGraph(ctx, workflow)
		if err != nil {
			return nil, err
		}
	}

	return workflows, nil
}

func (r *WorkflowRepository) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id = $1 AND deleted_at IS NULL`, id)

	workflow, err := scanWorkflow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("WorkflowByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	err = r.loadGraph(ctx, workflow)
	if err != nil {
		return nil, err
	}

	return workflow, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var workflow models.Workflow

	err := row.Scan(
		&workflow.ID,
		&workflow.Name,
		&workflow.Description,
		&workflow.Version,
		&workflow.IsActive,
		&workflow.Owner,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &workflow, nil
}

// SaveWorkflow upserts the workflow and replaces its nodes and connections.
func (r *WorkflowRepository) SaveWorkflow(ctx context.Context, workflow *models.Workflow) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflows (id, name, description, version, is_active, owner, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			version = EXCLUDED.version,
			is_active = EXCLUDED.is_active,
			owner = EXCLUDED.owner,
			updated_at = EXCLUDED.updated_at,
			deleted_at = NULL
	`,
		workflow.ID,
		workflow.Name,
		workflow.Description,
		workflow.Version,
		workflow.IsActive,
		workflow.Owner,
		workflow.CreatedAt,
		workflow.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow base: %w", err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM workflow_connections WHERE workflow_id = $1", workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to delete existing connections: %w", err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM workflow_nodes WHERE workflow_id = $1", workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to delete existing nodes: %w", err)
	}

	err = saveNodes(ctx, tx, workflow)
	if err != nil {
		return err
	}

	err = saveConnections(ctx, tx, workflow)
	if err != nil {
		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func saveNodes(ctx context.Context, tx *sql.Tx, workflow *models.Workflow) error {
	for position, node := range workflow.Nodes {
		properties, err := json.Marshal(emptyIfNil(node.Properties))
		if err != nil {
			return fmt.Errorf("failed to marshal properties of node %s: %w", node.ID, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflow_nodes
				(workflow_id, id, position, kind, node_type, name, properties, inputs, outputs, position_x, position_y)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`,
			workflow.ID,
			node.ID,
			position,
			node.Kind,
			node.Type,
			node.Name,
			properties,
			pq.Array(emptySlice(node.Inputs)),
			pq.Array(emptySlice(node.Outputs)),
			node.PositionX,
			node.PositionY,
		)
		if err != nil {
			return fmt.Errorf("failed to save node %s: %w", node.ID, err)
		}
	}

	return nil
}

func saveConnections(ctx context.Context, tx *sql.Tx, workflow *models.Workflow) error {
	for position, connection := range workflow.Connections {
		guards := connection.Guards
		if guards == nil {
			guards = []models.Guard{}
		}

		guardsJSON, err := json.Marshal(guards)
		if err != nil {
			return fmt.Errorf("failed to marshal guards of connection %s: %w", connection.ID, err)
		}

		id := connection.ID
		if id == "" {
			id = fmt.Sprintf("%s-%d", workflow.ID, position)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflow_connections
				(workflow_id, id, position, source_node_id, source_port, target_node_id, target_port, guards)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`,
			workflow.ID,
			id,
			position,
			connection.SourceNode,
			connection.SourcePort,
			connection.TargetNode,
			connection.TargetPort,
			guardsJSON,
		)
		if err != nil {
			return fmt.Errorf("failed to save connection %s: %w", id, err)
		}
	}

	return nil
}

func (r *WorkflowRepository) loadGraph(ctx context.Context, workflow *models.Workflow) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, kind, node_type, name, properties, inputs, outputs, position_x, position_y
		FROM workflow_nodes
		WHERE workflow_id = $1
		ORDER BY position
	`, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query workflow nodes: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	workflow.Nodes = make([]*models.WorkflowNode, 0)

	for rows.Next() {
		var (
			node       models.WorkflowNode
			properties []byte
		)

		err := rows.Scan(
			&node.ID,
			&node.Kind,
			&node.Type,
			&node.Name,
			&properties,
			pq.Array(&node.Inputs),
			pq.Array(&node.Outputs),
			&node.PositionX,
			&node.PositionY,
		)
		if err != nil {
			return fmt.Errorf("failed to scan node: %w", err)
		}

		err = json.Unmarshal(properties, &node.Properties)
		if err != nil {
			return fmt.Errorf("failed to unmarshal properties of node %s: %w", node.ID, err)
		}

		workflow.Nodes = append(workflow.Nodes, &node)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating nodes: %w", err)
	}

	connRows, err := r.db.QueryContext(ctx, `
		SELECT id, source_node_id, source_port, target_node_id, target_port, guards
		FROM workflow_connections
		WHERE workflow_id = $1
		ORDER BY position
	`, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query workflow connections: %w", err)
	}

	defer closeRows(ctx, r.logger, connRows)

	workflow.Connections = make([]*models.Connection, 0)

	for connRows.Next() {
		var (
			connection models.Connection
			guards     []byte
		)

		err := connRows.Scan(
			&connection.ID,
			&connection.SourceNode,
			&connection.SourcePort,
			&connection.TargetNode,
			&connection.TargetPort,
			&guards,
		)
		if err != nil {
			return fmt.Errorf("failed to scan connection: %w", err)
		}

		err = json.Unmarshal(guards, &connection.Guards)
		if err != nil {
			return fmt.Errorf("failed to unmarshal guards of connection %s: %w", connection.ID, err)
		}

		if len(connection.Guards) == 0 {
			connection.Guards = nil
		}

		workflow.Connections = append(workflow.Connections, &connection)
	}

	if err := connRows.Err(); err != nil {
		return fmt.Errorf("error iterating connections: %w", err)
	}

	return nil
}

// DeleteWorkflow soft deletes a workflow by setting deleted_at timestamp.
func (r *WorkflowRepository) DeleteWorkflow(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE workflows SET deleted_at = NOW(), is_active = false WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewWorkflowError("DeleteWorkflow", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

func emptyIfNil(props models.Properties) models.Properties {
	if props == nil {
		return models.Properties{}
	}

	return props
}

func emptySlice(values []string) []string {
	if values == nil {
		return []string{}
	}

	return values
}
