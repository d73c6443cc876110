package web

import "github.com/dubaigit/task-mail-sub006/pkg/models"

// EnqueueRequest is the body of POST /events. An empty priority is derived
// from the event headers and flags.
type EnqueueRequest struct {
	Event    *models.Event   `json:"event"`
	Priority models.Priority `json:"priority,omitempty"`
}

// TestWorkflowRequest is the body of POST /workflows/test. DryRun defaults to
// true so a test never sends mail unless asked to.
type TestWorkflowRequest struct {
	Workflow *models.Workflow `json:"workflow"`
	Event    *models.Event    `json:"event"`
	DryRun   *bool            `json:"dry_run,omitempty"`
}

func (r TestWorkflowRequest) IsDryRun() bool {
	return r.DryRun == nil || *r.DryRun
}

type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
