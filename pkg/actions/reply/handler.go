// Package reply implements the ACTION_REPLY handler.
package reply

import (
	"context"
	"errors"
	"time"

	"github.com/dubaigit/task-mail-sub006/pkg/actions"
	"github.com/dubaigit/task-mail-sub006/pkg/collaborators/classifier"
	"github.com/dubaigit/task-mail-sub006/pkg/collaborators/messaging"
	"github.com/dubaigit/task-mail-sub006/pkg/models"
)

const DefaultGenerateTimeout = 20 * time.Second

var ErrNoGenerator = errors.New("content generation is not configured")

// Generator drafts reply content.
type Generator interface {
	GenerateContent(ctx context.Context, req classifier.GenerateRequest) (classifier.Generated, error)
}

// Handler replies to the sender of the triggering message.
//
// Properties: to (defaults to the sender), subject (defaults to "Re: <subject>"),
// body, generate, instructions.
type Handler struct {
	mailer    messaging.Mailer
	generator Generator
	timeout   time.Duration
}

func NewHandler(mailer messaging.Mailer, generator Generator) *Handler {
	return &Handler{mailer: mailer, generator: generator, timeout: DefaultGenerateTimeout}
}

func (h *Handler) Type() string {
	return models.NodeTypeActionReply
}

type draft struct {
	to      []string
	subject string
	body    string
}

func (h *Handler) resolve(req actions.Request) (draft, *actions.Result) {
	event := req.View.Event()

	to := req.Props.StringSlice("to")
	if len(to) == 0 && event.From != "" {
		to = []string{event.From}
	}

	if len(to) == 0 {
		result := actions.InvalidConfig("no recipient for reply")

		return draft{}, &result
	}

	return draft{
		to:      to,
		subject: req.Props.StringDefault("subject", "Re: "+event.Subject),
		body:    req.Props.String("body"),
	}, nil
}

func (h *Handler) Execute(ctx context.Context, req actions.Request) actions.Result {
	d, invalid := h.resolve(req)
	if invalid != nil {
		return *invalid
	}

	if req.Props.Bool("generate", false) {
		if h.generator == nil {
			return actions.Fatal(ErrNoGenerator)
		}

		genCtx, cancel := context.WithTimeout(ctx, h.timeout)
		generated, err := h.generator.GenerateContent(genCtx, classifier.GenerateRequest{
			Template:     d.body,
			Instructions: req.Props.String("instructions"),
			Event:        req.View.Event(),
		})

		cancel()

		if err != nil {
			return actions.FromError(err)
		}

		d.body = generated.Content
		if generated.Subject != "" {
			d.subject = generated.Subject
		}
	}

	if d.body == "" {
		return actions.InvalidConfig("reply body is empty")
	}

	receipt, err := h.mailer.SendReply(ctx, messaging.Reply{
		IdempotencyKey: req.IdempotencyKey,
		InReplyTo:      req.View.Event().ID,
		To:             d.to,
		Subject:        d.subject,
		Body:           d.body,
	})
	if err != nil {
		return actions.FromError(err)
	}

	return actions.Succeeded(map[string]any{
		"message_id": receipt.MessageID,
		"to":         d.to,
		"subject":    d.subject,
	})
}

func (h *Handler) Simulate(req actions.Request) actions.Result {
	d, invalid := h.resolve(req)
	if invalid != nil {
		return *invalid
	}

	return actions.Succeeded(map[string]any{
		"simulated": true,
		"to":        d.to,
		"subject":   d.subject,
		"generate":  req.Props.Bool("generate", false),
	})
}
