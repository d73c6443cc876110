// Package notify implements the ACTION_NOTIFY handler.
package notify

import (
	"context"

	"github.com/dubaigit/task-mail-sub006/pkg/actions"
	"github.com/dubaigit/task-mail-sub006/pkg/collaborators/messaging"
	"github.com/dubaigit/task-mail-sub006/pkg/models"
)

const DefaultChannel = "inbox"

// Handler sends a notification about the triggering message.
//
// Properties: channel, recipients, title, message.
type Handler struct {
	notifier messaging.Notifier
}

func NewHandler(notifier messaging.Notifier) *Handler {
	return &Handler{notifier: notifier}
}

func (h *Handler) Type() string {
	return models.NodeTypeActionNotify
}

func (h *Handler) notification(req actions.Request) messaging.Notification {
	event := req.View.Event()

	return messaging.Notification{
		IdempotencyKey: req.IdempotencyKey,
		Channel:        req.Props.StringDefault("channel", DefaultChannel),
		Recipients:     req.Props.StringSlice("recipients"),
		Title:          req.Props.StringDefault("title", "New message: "+event.Subject),
		Message:        req.Props.StringDefault("message", "From "+event.From),
		Data: map[string]any{
			"event_id":     event.ID,
			"workflow_id":  req.View.WorkflowID(),
			"execution_id": req.View.ExecutionID(),
		},
	}
}

func (h *Handler) Execute(ctx context.Context, req actions.Request) actions.Result {
	notification := h.notification(req)

	receipt, err := h.notifier.Notify(ctx, notification)
	if err != nil {
		return actions.FromError(err)
	}

	return actions.Succeeded(map[string]any{
		"message_id": receipt.MessageID,
		"channel":    notification.Channel,
	})
}

func (h *Handler) Simulate(req actions.Request) actions.Result {
	notification := h.notification(req)

	return actions.Succeeded(map[string]any{
		"simulated": true,
		"channel":   notification.Channel,
		"title":     notification.Title,
	})
}
