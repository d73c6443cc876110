package conditions

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/dubaigit/task-mail-sub006/pkg/collaborators/classifier"
	"github.com/dubaigit/task-mail-sub006/pkg/models"
)

const (
	OperatorContains    = "contains"
	OperatorNotContains = "not_contains"
	OperatorRegex       = "regex"
	OperatorAIAnalysis  = "ai_analysis"
)

var ErrNoClassifier = errors.New("classifier is not configured")

// Classifier is the part of the classification service conditions depend on.
type Classifier interface {
	EvaluateCondition(ctx context.Context, req classifier.ConditionRequest) (classifier.Judgment, error)
}

// ContentEvaluator matches text in the subject or body of the event.
//
// Properties: operator, value, field (body|subject|all), case_sensitive,
// threshold (ai_analysis only).
type ContentEvaluator struct {
	classifier Classifier
	patterns   sync.Map
}

func NewContentEvaluator(classifier Classifier) *ContentEvaluator {
	return &ContentEvaluator{classifier: classifier}
}

func (e *ContentEvaluator) Type() string {
	return models.NodeTypeConditionContent
}

func (e *ContentEvaluator) Evaluate(ctx context.Context, props models.Properties, view models.ContextView) (Outcome, error) {
	event := view.Event()
	text := contentField(event, props.StringDefault("field", "body"))
	value := props.String("value")
	caseSensitive := props.Bool("case_sensitive", false)

	switch operator := props.StringDefault("operator", OperatorContains); operator {
	case OperatorContains:
		return Outcome{Met: contains(text, value, caseSensitive)}, nil
	case OperatorNotContains:
		return Outcome{Met: !contains(text, value, caseSensitive)}, nil
	case OperatorRegex:
		re, err := e.compile(value, caseSensitive)
		if err != nil {
			return Outcome{}, fmt.Errorf("invalid pattern %q: %w", value, err)
		}

		return Outcome{Met: re.MatchString(text)}, nil
	case OperatorAIAnalysis:
		if e.classifier == nil {
			return Outcome{}, ErrNoClassifier
		}

		return judge(ctx, e.classifier, value, event, props.Float("threshold", DefaultConfidenceThreshold), 0)
	default:
		return Outcome{}, fmt.Errorf("%w: %s", ErrUnknownOperator, operator)
	}
}

func (e *ContentEvaluator) compile(pattern string, caseSensitive bool) (*regexp.Regexp, error) {
	if !caseSensitive {
		pattern = "(?i)" + pattern
	}

	if cached, ok := e.patterns.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	e.patterns.Store(pattern, re)

	return re, nil
}

func contentField(event *models.Event, field string) string {
	switch field {
	case "subject":
		return event.Subject
	case "all":
		return event.Subject + "\n" + event.Body
	default:
		return event.Body
	}
}

func contains(text, value string, caseSensitive bool) bool {
	if caseSensitive {
		return strings.Contains(text, value)
	}

	return strings.Contains(strings.ToLower(text), strings.ToLower(value))
}
