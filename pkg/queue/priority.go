// Package queue drains the automation queue: a processor runs one claimed
// item through trigger matching and execution, a pool of workers drives the
// processor and a janitor returns abandoned claims.
package queue

import (
	"strings"

	"github.com/dubaigit/task-mail-sub006/pkg/models"
)

// DerivePriority ranks an event for the queue from its importance, flag and
// headers. Explicit importance wins over the flag; mailing list traffic is
// low unless marked otherwise.
func DerivePriority(event *models.Event) models.Priority {
	switch {
	case event.Importance == models.ImportanceUrgent || headerPriority(event) == models.PriorityUrgent:
		return models.PriorityUrgent
	case event.Importance == models.ImportanceHigh || event.Flagged || headerPriority(event) == models.PriorityHigh:
		return models.PriorityHigh
	case event.Importance == models.ImportanceLow || headerPriority(event) == models.PriorityLow || isBulk(event):
		return models.PriorityLow
	default:
		return models.PriorityNormal
	}
}

// headerPriority reads X-Priority ("1 (Highest)" .. "5 (Lowest)") and the
// Importance header.
func headerPriority(event *models.Event) models.Priority {
	if xp := strings.TrimSpace(event.Header("X-Priority")); xp != "" {
		switch xp[0] {
		case '1':
			return models.PriorityUrgent
		case '2':
			return models.PriorityHigh
		case '4', '5':
			return models.PriorityLow
		}
	}

	switch strings.ToLower(strings.TrimSpace(event.Header("Importance"))) {
	case "urgent":
		return models.PriorityUrgent
	case "high":
		return models.PriorityHigh
	case "low":
		return models.PriorityLow
	}

	return ""
}

func isBulk(event *models.Event) bool {
	switch strings.ToLower(strings.TrimSpace(event.Header("Precedence"))) {
	case "bulk", "list", "junk":
		return true
	}

	return event.Header("List-Id") != "" || event.Header("List-Unsubscribe") != ""
}
