package conditions

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dubaigit/task-mail-sub006/pkg/models"
)

const (
	OperatorBusinessHours = "business_hours"
	OperatorWithinHours   = "within_hours"
	OperatorDayOfWeek     = "day_of_week"
)

var defaultBusinessDays = []string{"monday", "tuesday", "wednesday", "thursday", "friday"}

// TimeEvaluator checks when the event arrived.
//
// Properties: operator, start_hour, end_hour, days, timezone (business_hours),
// hours (within_hours), days and timezone (day_of_week).
type TimeEvaluator struct {
	now func() time.Time
}

func NewTimeEvaluator() *TimeEvaluator {
	return &TimeEvaluator{now: time.Now}
}

// NewTimeEvaluatorWithClock is used by tests to pin the current time.
func NewTimeEvaluatorWithClock(now func() time.Time) *TimeEvaluator {
	return &TimeEvaluator{now: now}
}

func (e *TimeEvaluator) Type() string {
	return models.NodeTypeConditionTime
}

func (e *TimeEvaluator) Evaluate(_ context.Context, props models.Properties, view models.ContextView) (Outcome, error) {
	at := view.Event().ReceivedAt
	if at.IsZero() {
		at = e.now()
	}

	loc, err := loadLocation(props.String("timezone"))
	if err != nil {
		return Outcome{}, err
	}

	local := at.In(loc)

	switch operator := props.StringDefault("operator", OperatorBusinessHours); operator {
	case OperatorBusinessHours:
		days := props.StringSlice("days")
		if len(days) == 0 {
			days = defaultBusinessDays
		}

		start := props.Int("start_hour", 9)
		end := props.Int("end_hour", 17)
		met := dayIn(local.Weekday(), days) && local.Hour() >= start && local.Hour() < end

		return Outcome{Met: met}, nil
	case OperatorWithinHours:
		hours := props.Float("hours", 24)
		age := e.now().Sub(at)

		return Outcome{
			Met:    age >= 0 && age <= time.Duration(hours*float64(time.Hour)),
			Detail: map[string]any{"age_minutes": int(age.Minutes())},
		}, nil
	case OperatorDayOfWeek:
		return Outcome{Met: dayIn(local.Weekday(), props.StringSlice("days"))}, nil
	default:
		return Outcome{}, fmt.Errorf("%w: %s", ErrUnknownOperator, operator)
	}
}

func dayIn(day time.Weekday, days []string) bool {
	name := strings.ToLower(day.String())

	return slices.ContainsFunc(days, func(d string) bool {
		d = strings.ToLower(strings.TrimSpace(d))

		return d == name || (len(d) == 3 && strings.HasPrefix(name, d))
	})
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
	}

	return loc, nil
}
