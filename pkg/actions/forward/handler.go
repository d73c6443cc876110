// Package forward implements the ACTION_FORWARD handler.
package forward

import (
	"context"

	"github.com/dubaigit/task-mail-sub006/pkg/actions"
	"github.com/dubaigit/task-mail-sub006/pkg/collaborators/messaging"
	"github.com/dubaigit/task-mail-sub006/pkg/models"
)

// Handler forwards the triggering message.
//
// Properties: to (required), note.
type Handler struct {
	forwarder messaging.Forwarder
}

func NewHandler(forwarder messaging.Forwarder) *Handler {
	return &Handler{forwarder: forwarder}
}

func (h *Handler) Type() string {
	return models.NodeTypeActionForward
}

func (h *Handler) Execute(ctx context.Context, req actions.Request) actions.Result {
	to := req.Props.StringSlice("to")
	if len(to) == 0 {
		return actions.InvalidConfig("forward recipients are required")
	}

	receipt, err := h.forwarder.Forward(ctx, messaging.Forward{
		IdempotencyKey: req.IdempotencyKey,
		EventID:        req.View.Event().ID,
		To:             to,
		Note:           req.Props.String("note"),
	})
	if err != nil {
		return actions.FromError(err)
	}

	return actions.Succeeded(map[string]any{"message_id": receipt.MessageID, "to": to})
}

func (h *Handler) Simulate(req actions.Request) actions.Result {
	to := req.Props.StringSlice("to")
	if len(to) == 0 {
		return actions.InvalidConfig("forward recipients are required")
	}

	return actions.Succeeded(map[string]any{"simulated": true, "to": to})
}
