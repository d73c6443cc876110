package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dubaigit/task-mail-sub006/pkg/models"
	"github.com/dubaigit/task-mail-sub006/pkg/persistence"
)

// EventRepository stores the incoming events referenced by queue items.
type EventRepository struct {
	db *sql.DB
}

func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// SaveEvent inserts the event. A second save of the same id is ignored.
func (r *EventRepository) SaveEvent(ctx context.Context, event *models.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO events (id, event_type, payload, received_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, event.ID, event.Type, payload, event.ReceivedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}

	return nil
}

func (r *EventRepository) EventByID(ctx context.Context, id string) (*models.Event, error) {
	var payload []byte

	err := r.db.QueryRowContext(ctx, `SELECT payload FROM events WHERE id = $1`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("event %s: %w", id, persistence.ErrEventNotFound)
		}

		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	var event models.Event

	err = json.Unmarshal(payload, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	return &event, nil
}
