package conditions

import (
	"context"
	"fmt"
	"time"

	"github.com/dubaigit/task-mail-sub006/pkg/collaborators/classifier"
	"github.com/dubaigit/task-mail-sub006/pkg/models"
)

const (
	DefaultConfidenceThreshold = 0.7
	DefaultAITimeout           = 10 * time.Second
)

// AIEvaluator asks the classification service whether a natural language
// condition holds. A judgment below the confidence threshold is not met.
//
// Properties: prompt, threshold.
type AIEvaluator struct {
	classifier Classifier
	timeout    time.Duration
}

func NewAIEvaluator(classifier Classifier, timeout time.Duration) *AIEvaluator {
	if timeout <= 0 {
		timeout = DefaultAITimeout
	}

	return &AIEvaluator{classifier: classifier, timeout: timeout}
}

func (e *AIEvaluator) Type() string {
	return models.NodeTypeConditionAI
}

func (e *AIEvaluator) Evaluate(ctx context.Context, props models.Properties, view models.ContextView) (Outcome, error) {
	if e.classifier == nil {
		return Outcome{}, ErrNoClassifier
	}

	prompt := props.String("prompt")
	if prompt == "" {
		return Outcome{}, fmt.Errorf("prompt is required")
	}

	return judge(ctx, e.classifier, prompt, view.Event(), props.Float("threshold", DefaultConfidenceThreshold), e.timeout)
}

func judge(ctx context.Context, c Classifier, condition string, event *models.Event, threshold float64, timeout time.Duration) (Outcome, error) {
	if timeout <= 0 {
		timeout = DefaultAITimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	judgment, err := c.EvaluateCondition(ctx, classifier.ConditionRequest{Condition: condition, Event: event})
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{
		Met: judgment.Met && judgment.Confidence >= threshold,
		Detail: map[string]any{
			"confidence": judgment.Confidence,
			"threshold":  threshold,
			"reasoning":  judgment.Reasoning,
		},
	}, nil
}
