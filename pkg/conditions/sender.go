package conditions

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dubaigit/task-mail-sub006/pkg/models"
)

const (
	OperatorInList             = "in_list"
	OperatorDomainMatch        = "domain_match"
	OperatorFrequencyThreshold = "frequency_threshold"

	DefaultFrequencyWindow = 24 * time.Hour
)

var ErrNoSenderStats = errors.New("sender statistics are not configured")

// SenderEvaluator matches the sender address, its domain, or how often it has written.
//
// Properties: operator, senders (in_list), domains (domain_match),
// threshold and window_hours (frequency_threshold).
type SenderEvaluator struct {
	stats SenderStats
}

func NewSenderEvaluator(stats SenderStats) *SenderEvaluator {
	return &SenderEvaluator{stats: stats}
}

func (e *SenderEvaluator) Type() string {
	return models.NodeTypeConditionSender
}

func (e *SenderEvaluator) Evaluate(ctx context.Context, props models.Properties, view models.ContextView) (Outcome, error) {
	sender := strings.ToLower(strings.TrimSpace(view.Event().From))

	switch operator := props.StringDefault("operator", OperatorInList); operator {
	case OperatorInList:
		senders := props.StringSlice("senders")
		met := slices.ContainsFunc(senders, func(s string) bool {
			return strings.EqualFold(strings.TrimSpace(s), sender)
		})

		return Outcome{Met: met}, nil
	case OperatorDomainMatch:
		return Outcome{Met: DomainMatches(sender, props.StringSlice("domains"))}, nil
	case OperatorFrequencyThreshold:
		if e.stats == nil {
			return Outcome{}, ErrNoSenderStats
		}

		window := time.Duration(props.Float("window_hours", DefaultFrequencyWindow.Hours()) * float64(time.Hour))
		threshold := int64(props.Int("threshold", 1))

		count, err := e.stats.Count(ctx, sender, window)
		if err != nil {
			return Outcome{}, fmt.Errorf("failed to read sender frequency: %w", err)
		}

		return Outcome{
			Met:    count >= threshold,
			Detail: map[string]any{"count": count, "threshold": threshold},
		}, nil
	default:
		return Outcome{}, fmt.Errorf("%w: %s", ErrUnknownOperator, operator)
	}
}

// DomainMatches reports whether address ends with "@domain" for any domain.
// A leading "@" in the configured domain is optional.
func DomainMatches(address string, domains []string) bool {
	address = strings.ToLower(address)

	for _, domain := range domains {
		domain = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(domain), "@"))
		if domain != "" && strings.HasSuffix(address, "@"+domain) {
			return true
		}
	}

	return false
}
