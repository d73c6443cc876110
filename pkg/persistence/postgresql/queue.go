package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dubaigit/task-mail-sub006/pkg/models"
	"github.com/dubaigit/task-mail-sub006/pkg/persistence"
	"github.com/google/uuid"
)

// QueueRepository is the automation queue. Claims use FOR UPDATE SKIP LOCKED
// so any number of workers can poll the same table.
type QueueRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewQueueRepository(db *sql.DB, logger *slog.Logger) *QueueRepository {
	return &QueueRepository{db: db, logger: logger}
}

const queueColumns = `
	id
  , event_id
  , event_type
  , priority
  , status
  , retry_count
  , max_retries
  , scheduled_at
  , claimed_at
  , COALESCE(claimed_by, '')
  , cancel_requested
  , COALESCE(last_error, '')
  , created_at
  , updated_at
  , completed_at
`

func scanQueueItem(row rowScanner) (*models.QueueItem, error) {
	var (
		item        models.QueueItem
		claimedAt   sql.NullTime
		completedAt sql.NullTime
	)

	err := row.Scan(
		&item.ID,
		&item.EventID,
		&item.EventType,
		&item.Priority,
		&item.Status,
		&item.RetryCount,
		&item.MaxRetries,
		&item.ScheduledAt,
		&claimedAt,
		&item.ClaimedBy,
		&item.CancelRequested,
		&item.LastError,
		&item.CreatedAt,
		&item.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if claimedAt.Valid {
		item.ClaimedAt = &claimedAt.Time
	}

	if completedAt.Valid {
		item.CompletedAt = &completedAt.Time
	}

	return &item, nil
}

func (r *QueueRepository) Enqueue(ctx context.Context, item *models.QueueItem) (bool, error) {
	now := time.Now().UTC()

	if item.ID == "" {
		item.ID = uuid.Must(uuid.NewV7()).String()
	}

	if item.Status == "" {
		item.Status = models.QueueStatusPending
	}

	if item.MaxRetries == 0 {
		item.MaxRetries = models.DefaultMaxRetries
	}

	if item.ScheduledAt.IsZero() {
		item.ScheduledAt = now
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO automation_queue
			(id, event_id, event_type, priority, priority_rank, status, retry_count, max_retries, scheduled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		ON CONFLICT (event_id) DO NOTHING
	`,
		item.ID,
		item.EventID,
		item.EventType,
		item.Priority,
		item.Priority.Rank(),
		item.Status,
		item.RetryCount,
		item.MaxRetries,
		item.ScheduledAt.UTC(),
		now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to enqueue item: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	row := r.db.QueryRowContext(ctx, `SELECT `+queueColumns+` FROM automation_queue WHERE event_id = $1`, item.EventID)

	stored, err := scanQueueItem(row)
	if err != nil {
		return false, fmt.Errorf("failed to read queued item: %w", err)
	}

	*item = *stored

	return inserted == 1, nil
}

func (r *QueueRepository) Claim(ctx context.Context, workerID string, now time.Time) (*models.QueueItem, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE automation_queue
		SET status = 'processing', claimed_at = $1, claimed_by = $2, updated_at = $1
		WHERE id = (
			SELECT id FROM automation_queue
			WHERE status IN ('pending', 'retrying') AND scheduled_at <= $1
			ORDER BY priority_rank DESC, scheduled_at ASC, created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+queueColumns, now.UTC(), workerID)

	item, err := scanQueueItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrQueueEmpty
		}

		return nil, fmt.Errorf("failed to claim queue item: %w", err)
	}

	return item, nil
}

// transition runs an update guarded by status = 'processing' and the claim
// owner, and tells a missing item apart from a lost claim.
func (r *QueueRepository) transition(ctx context.Context, op, id, workerID, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, append([]any{id, workerID}, args...)...)
	if err != nil {
		return persistence.NewQueueError(op, id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 1 {
		return nil
	}

	var exists bool

	err = r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM automation_queue WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return persistence.NewQueueError(op, id, err)
	}

	if !exists {
		return persistence.NewQueueError(op, id, persistence.ErrQueueItemNotFound)
	}

	return persistence.NewQueueError(op, id, persistence.ErrClaimLost)
}

func (r *QueueRepository) Complete(ctx context.Context, id, workerID string) error {
	return r.transition(ctx, "Complete", id, workerID, `
		UPDATE automation_queue
		SET status = 'completed', completed_at = NOW(), updated_at = NOW(), last_error = NULL
		WHERE id = $1 AND status = 'processing' AND claimed_by = $2
	`)
}

func (r *QueueRepository) Reschedule(ctx context.Context, id, workerID string, retryCount int, scheduledAt time.Time, lastError string) error {
	return r.transition(ctx, "Reschedule", id, workerID, `
		UPDATE automation_queue
		SET status = 'retrying', retry_count = $3, scheduled_at = $4, last_error = $5,
			claimed_at = NULL, claimed_by = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'processing' AND claimed_by = $2
	`, retryCount, scheduledAt.UTC(), lastError)
}

func (r *QueueRepository) Fail(ctx context.Context, id, workerID string, lastError string) error {
	return r.transition(ctx, "Fail", id, workerID, `
		UPDATE automation_queue
		SET status = 'failed', last_error = $3, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'processing' AND claimed_by = $2
	`, lastError)
}

func (r *QueueRepository) Extend(ctx context.Context, id, workerID string, now time.Time) error {
	return r.transition(ctx, "Extend", id, workerID, `
		UPDATE automation_queue
		SET claimed_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'processing' AND claimed_by = $2
	`, now.UTC())
}

func (r *QueueRepository) RequestCancel(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE automation_queue SET cancel_requested = true, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return persistence.NewQueueError("RequestCancel", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewQueueError("RequestCancel", id, persistence.ErrQueueItemNotFound)
	}

	return nil
}

func (r *QueueRepository) IsCancelRequested(ctx context.Context, id string) (bool, error) {
	var requested bool

	err := r.db.QueryRowContext(ctx, `SELECT cancel_requested FROM automation_queue WHERE id = $1`, id).Scan(&requested)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, persistence.NewQueueError("IsCancelRequested", id, persistence.ErrQueueItemNotFound)
		}

		return false, persistence.NewQueueError("IsCancelRequested", id, err)
	}

	return requested, nil
}

func (r *QueueRepository) QueueItemByID(ctx context.Context, id string) (*models.QueueItem, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+queueColumns+` FROM automation_queue WHERE id = $1`, id)

	item, err := scanQueueItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewQueueError("QueueItemByID", id, persistence.ErrQueueItemNotFound)
		}

		return nil, persistence.NewQueueError("QueueItemByID", id, err)
	}

	return item, nil
}

func (r *QueueRepository) QueueItemsByStatus(ctx context.Context, status models.QueueStatus, limit int) ([]*models.QueueItem, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+queueColumns+`
		FROM automation_queue
		WHERE status = $1
		ORDER BY updated_at DESC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue items: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	items := make([]*models.QueueItem, 0)

	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", err)
		}

		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queue items: %w", err)
	}

	return items, nil
}

func (r *QueueRepository) Requeue(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE automation_queue
		SET status = 'pending', retry_count = 0, scheduled_at = NOW(), cancel_requested = false,
			claimed_at = NULL, claimed_by = NULL, completed_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'failed'
	`, id)
	if err != nil {
		return persistence.NewQueueError("Requeue", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 1 {
		return nil
	}

	_, err = r.QueueItemByID(ctx, id)
	if err != nil {
		return err
	}

	return persistence.NewQueueError("Requeue", id, persistence.ErrInvalidTransition)
}

func (r *QueueRepository) RequeueStale(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE automation_queue
		SET status = CASE WHEN retry_count < max_retries THEN 'pending' ELSE 'failed' END,
			retry_count = CASE WHEN retry_count < max_retries THEN retry_count + 1 ELSE retry_count END,
			completed_at = CASE WHEN retry_count < max_retries THEN NULL ELSE NOW() END,
			last_error = $2, claimed_at = NULL, claimed_by = NULL, updated_at = NOW()
		WHERE status = 'processing' AND claimed_at < $1
	`, olderThan.UTC(), persistence.StaleClaimError)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stale items: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return count, nil
}
