// Package classifier is the client of the external classification and generation service.
package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dubaigit/task-mail-sub006/pkg/collaborators"
	"github.com/dubaigit/task-mail-sub006/pkg/models"
)

const DefaultTimeout = 10 * time.Second

// ConditionRequest asks the service whether a natural language condition holds for an event.
type ConditionRequest struct {
	Condition string         `json:"condition"`
	Event     *models.Event  `json:"event"`
	Context   map[string]any `json:"context,omitempty"`
}

// Judgment is the service's answer to a ConditionRequest.
type Judgment struct {
	Met        bool    `json:"met"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// GenerateRequest asks the service to draft message content for an event.
type GenerateRequest struct {
	Template     string        `json:"template,omitempty"`
	Instructions string        `json:"instructions,omitempty"`
	Event        *models.Event `json:"event"`
}

type Generated struct {
	Subject string `json:"subject,omitempty"`
	Content string `json:"content"`
}

// Classifier is implemented by Client and by test doubles.
type Classifier interface {
	EvaluateCondition(ctx context.Context, req ConditionRequest) (Judgment, error)
	GenerateContent(ctx context.Context, req GenerateRequest) (Generated, error)
}

// Client talks to the classification service over HTTP.
type Client struct {
	http   *collaborators.JSONClient
	logger *slog.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	logger = logger.With("module", "classifier")

	return &Client{
		http:   collaborators.NewJSONClient("classifier", baseURL, timeout, logger),
		logger: logger,
	}
}

func (c *Client) EvaluateCondition(ctx context.Context, req ConditionRequest) (Judgment, error) {
	var judgment Judgment

	err := c.http.Post(ctx, "/v1/conditions/evaluate", nil, req, &judgment)
	if err != nil {
		return Judgment{}, fmt.Errorf("failed to evaluate condition: %w", err)
	}

	c.logger.DebugContext(ctx, "Condition evaluated", "event_id", eventID(req.Event), "met", judgment.Met, "confidence", judgment.Confidence)

	return judgment, nil
}

func (c *Client) GenerateContent(ctx context.Context, req GenerateRequest) (Generated, error) {
	var generated Generated

	err := c.http.Post(ctx, "/v1/content/generate", nil, req, &generated)
	if err != nil {
		return Generated{}, fmt.Errorf("failed to generate content: %w", err)
	}

	return generated, nil
}

func eventID(event *models.Event) string {
	if event == nil {
		return ""
	}

	return event.ID
}
