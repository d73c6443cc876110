package models

import (
	"strings"
	"time"
)

const EventTypeEmailReceived = "email_received"

// Importance is the sender supplied importance of a message.
type Importance string

const (
	ImportanceLow    Importance = "low"
	ImportanceNormal Importance = "normal"
	ImportanceHigh   Importance = "high"
	ImportanceUrgent Importance = "urgent"
)

// Event is an incoming mail event that may trigger workflows.
type Event struct {
	ID         string            `json:"id"                   validate:"required"`
	Type       string            `json:"type"                 validate:"required"`
	From       string            `json:"from,omitempty"       validate:"omitempty,email"`
	To         []string          `json:"to,omitempty"`
	Subject    string            `json:"subject,omitempty"`
	Body       string            `json:"body,omitempty"`
	Mailbox    string            `json:"mailbox,omitempty"`
	ReceivedAt time.Time         `json:"received_at"`
	Flagged    bool              `json:"flagged,omitempty"`
	Importance Importance        `json:"importance,omitempty" validate:"omitempty,oneof=low normal high urgent"`
	Headers    map[string]string `json:"headers,omitempty"`
	Metadata   map[string]any    `json:"metadata,omitempty"`
}

// SenderDomain returns the lower-cased domain of the sender address.
func (e *Event) SenderDomain() string {
	at := strings.LastIndex(e.From, "@")
	if at < 0 {
		return ""
	}

	return strings.ToLower(e.From[at+1:])
}

// Header looks up a header case-insensitively.
func (e *Event) Header(name string) string {
	for key, value := range e.Headers {
		if strings.EqualFold(key, name) {
			return value
		}
	}

	return ""
}

// AsMap exposes the event to templates and expressions.
func (e *Event) AsMap() map[string]any {
	return map[string]any{
		"id":          e.ID,
		"type":        e.Type,
		"from":        e.From,
		"to":          e.To,
		"subject":     e.Subject,
		"body":        e.Body,
		"mailbox":     e.Mailbox,
		"received_at": e.ReceivedAt,
		"flagged":     e.Flagged,
		"importance":  string(e.Importance),
		"headers":     e.Headers,
		"metadata":    e.Metadata,
		"domain":      e.SenderDomain(),
	}
}
