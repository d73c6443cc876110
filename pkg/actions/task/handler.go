// Package task implements the ACTION_TASK handler.
package task

import (
	"context"
	"fmt"
	"time"

	"github.com/dubaigit/task-mail-sub006/pkg/actions"
	"github.com/dubaigit/task-mail-sub006/pkg/models"
	"github.com/google/uuid"
)

// Store persists tasks. Creating the same task ID twice must be a no-op.
type Store interface {
	CreateTask(ctx context.Context, task *models.Task) error
}

// Handler creates a follow-up task for the triggering message. The task ID is
// derived from the idempotency key so retries never create duplicates.
//
// Properties: title, description, priority, assignee, due_in_hours.
type Handler struct {
	store Store
	now   func() time.Time
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store, now: time.Now}
}

func (h *Handler) Type() string {
	return models.NodeTypeActionTask
}

func (h *Handler) build(req actions.Request) (*models.Task, *actions.Result) {
	event := req.View.Event()

	title := req.Props.StringDefault("title", event.Subject)
	if title == "" {
		result := actions.InvalidConfig("task title is required")

		return nil, &result
	}

	priority := models.Priority(req.Props.StringDefault("priority", string(models.PriorityNormal)))
	if !priority.Valid() {
		result := actions.InvalidConfig("invalid task priority %q", priority)

		return nil, &result
	}

	now := h.now().UTC()
	task := &models.Task{
		ID:            uuid.NewSHA1(uuid.NameSpaceOID, []byte(req.IdempotencyKey)).String(),
		ExecutionID:   req.View.ExecutionID(),
		NodeID:        req.NodeID,
		SourceEventID: event.ID,
		Title:         title,
		Description:   req.Props.String("description"),
		Priority:      priority,
		Assignee:      req.Props.String("assignee"),
		CreatedAt:     now,
	}

	if hours := req.Props.Float("due_in_hours", 0); hours > 0 {
		due := now.Add(time.Duration(hours * float64(time.Hour)))
		task.DueAt = &due
	}

	return task, nil
}

func (h *Handler) Execute(ctx context.Context, req actions.Request) actions.Result {
	task, invalid := h.build(req)
	if invalid != nil {
		return *invalid
	}

	err := h.store.CreateTask(ctx, task)
	if err != nil {
		return actions.Retryable(fmt.Errorf("failed to create task: %w", err))
	}

	return actions.Succeeded(map[string]any{
		"task_id":  task.ID,
		"title":    task.Title,
		"priority": string(task.Priority),
	})
}

func (h *Handler) Simulate(req actions.Request) actions.Result {
	task, invalid := h.build(req)
	if invalid != nil {
		return *invalid
	}

	return actions.Succeeded(map[string]any{
		"simulated": true,
		"task_id":   task.ID,
		"title":     task.Title,
		"priority":  string(task.Priority),
	})
}
