package workflow

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/dubaigit/task-mail-sub006/pkg/conditions"
	"github.com/dubaigit/task-mail-sub006/pkg/models"
)

// TriggerMatcher decides which workflows are interested in an event.
type TriggerMatcher struct {
	logger   *slog.Logger
	patterns sync.Map
	now      func() time.Time
}

// Match is a workflow selected for an event together with the trigger nodes
// that accepted it.
type Match struct {
	Workflow *models.Workflow
	Triggers []string
}

func NewTriggerMatcher(logger *slog.Logger) *TriggerMatcher {
	return &TriggerMatcher{
		logger: logger.With("module", "trigger_matcher"),
		now:    time.Now,
	}
}

// MatchWorkflows returns the active workflows with at least one matching trigger.
func (tm *TriggerMatcher) MatchWorkflows(event *models.Event, workflows []*models.Workflow) []Match {
	var matches []Match

	for _, workflow := range workflows {
		if !workflow.IsActive {
			continue
		}

		var matched []string

		for _, trigger := range workflow.TriggerNodes() {
			if tm.Matches(trigger, event) {
				matched = append(matched, trigger.ID)
			}
		}

		if len(matched) > 0 {
			matches = append(matches, Match{Workflow: workflow, Triggers: matched})
			tm.logger.Debug("Found matching workflow", "workflow_id", workflow.ID, "triggers", matched)
		}
	}

	tm.logger.Info("Completed trigger matching",
		"event_id", event.ID,
		"workflows_count", len(workflows),
		"matches_found", len(matches))

	return matches
}

// Matches reports whether every filter configured on the trigger node accepts the event.
// Unset filters accept everything.
func (tm *TriggerMatcher) Matches(node *models.WorkflowNode, event *models.Event) bool {
	if node == nil || event == nil || !node.IsTrigger() {
		return false
	}

	props := node.Properties

	if eventType := props.String("eventType"); eventType != "" && !strings.EqualFold(eventType, event.Type) {
		return false
	}

	if senders := props.StringSlice("senderFilter"); len(senders) > 0 && !senderMatches(event.From, senders) {
		return false
	}

	if pattern := props.String("subjectPattern"); pattern != "" && !tm.subjectMatches(pattern, event.Subject) {
		return false
	}

	if mailboxes := props.StringSlice("mailboxFilter"); len(mailboxes) > 0 && !mailboxMatches(event.Mailbox, mailboxes) {
		return false
	}

	if window := props.Map("timeWindow"); window != nil {
		ok, err := inTimeWindow(window, tm.eventTime(event))
		if err != nil {
			tm.logger.Warn("Invalid trigger time window", "node_id", node.ID, "error", err)

			return false
		}

		if !ok {
			return false
		}
	}

	return true
}

func (tm *TriggerMatcher) eventTime(event *models.Event) time.Time {
	if event.ReceivedAt.IsZero() {
		return tm.now()
	}

	return event.ReceivedAt
}

func (tm *TriggerMatcher) subjectMatches(pattern, subject string) bool {
	if cached, ok := tm.patterns.Load(pattern); ok {
		re, _ := cached.(*regexp.Regexp)

		return re != nil && re.MatchString(subject)
	}

	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		tm.logger.Warn("Invalid subject pattern", "pattern", pattern, "error", err)
		tm.patterns.Store(pattern, (*regexp.Regexp)(nil))

		return false
	}

	tm.patterns.Store(pattern, re)

	return re.MatchString(subject)
}

// senderMatches accepts an exact address for entries with a local part and a
// domain suffix otherwise.
func senderMatches(from string, filters []string) bool {
	for _, filter := range filters {
		if strings.Index(filter, "@") > 0 {
			if strings.EqualFold(strings.TrimSpace(from), filter) {
				return true
			}

			continue
		}

		if conditions.DomainMatches(from, []string{filter}) {
			return true
		}
	}

	return false
}

func mailboxMatches(mailbox string, filters []string) bool {
	mailbox = strings.ToLower(mailbox)

	for _, filter := range filters {
		if strings.Contains(mailbox, strings.ToLower(filter)) {
			return true
		}
	}

	return false
}

// inTimeWindow checks t against a start/end clock range in the window's
// timezone. A start after the end wraps past midnight.
func inTimeWindow(window models.Properties, t time.Time) (bool, error) {
	start, err := parseClock(window.String("start"))
	if err != nil {
		return false, err
	}

	end, err := parseClock(window.String("end"))
	if err != nil {
		return false, err
	}

	if tz := window.String("timezone"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return false, fmt.Errorf("invalid timezone %q: %w", tz, err)
		}

		t = t.In(loc)
	}

	minute := t.Hour()*60 + t.Minute()

	if start <= end {
		return minute >= start && minute <= end, nil
	}

	return minute >= start || minute <= end, nil
}

func parseClock(value string) (int, error) {
	parsed, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", value, err)
	}

	return parsed.Hour()*60 + parsed.Minute(), nil
}
