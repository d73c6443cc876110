package template

import (
	"testing"

	"github.com/dubaigit/task-mail-sub006/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderWithContext(t *testing.T) {
	ec := models.NewExecutionContext("exec-1", "wf-1", &models.Event{
		ID:      "evt-1",
		From:    "billing@acme.com",
		Subject: "Invoice #42",
	}, false)
	require.NoError(t, ec.Record(models.NodeResult{NodeID: "ai", Status: models.NodeStatusSuccess, Passed: true}))

	tests := []struct {
		name     string
		template string
		expected string
	}{
		{"plain string", "no templates here", "no templates here"},
		{"event field", "Re: {{.event.subject}}", "Re: Invoice #42"},
		{"execution", "{{.execution.id}}/{{.execution.workflow_id}}", "exec-1/wf-1"},
		{"node result", "{{if .results.ai.passed}}yes{{else}}no{{end}}", "yes"},
		{"upper", "{{upper .event.domain}}", "ACME.COM"},
		{"default", `{{default "unknown" .event.mailbox}}`, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := RenderWithContext(tt.template, ec)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestRender_InvalidTemplate(t *testing.T) {
	_, err := Render("{{.event.subject", map[string]any{})
	require.Error(t, err)
}

func TestRenderProperties(t *testing.T) {
	ec := models.NewExecutionContext("exec-1", "wf-1", &models.Event{ID: "evt-1", Subject: "Invoice"}, false)

	props := models.Properties{
		"title":    "Pay {{.event.subject}}",
		"priority": 3,
		"tags":     []any{"finance", "{{.event.id}}"},
		"nested":   map[string]any{"note": "from {{.execution.id}}"},
	}

	rendered, err := RenderProperties(props, ec)
	require.NoError(t, err)

	assert.Equal(t, "Pay Invoice", rendered["title"])
	assert.Equal(t, 3, rendered["priority"])
	assert.Equal(t, []any{"finance", "evt-1"}, rendered["tags"])
	assert.Equal(t, "from exec-1", rendered.Map("nested").String("note"))
	assert.Equal(t, "Pay {{.event.subject}}", props["title"], "input must not be modified")
}
