// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/dubaigit/task-mail-sub006/pkg/models"
	"github.com/google/uuid"
)

// CreateTestNode creates a test WorkflowNode with default values that can be overridden.
func CreateTestNode(overrides ...func(*models.WorkflowNode)) *models.WorkflowNode {
	node := &models.WorkflowNode{
		ID:         uuid.New().String(),
		Kind:       models.NodeKindAction,
		Type:       models.NodeTypeActionNotify,
		Name:       "Test Node",
		Properties: models.Properties{"title": "test"},
		PositionX:  100,
		PositionY:  200,
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// Trigger creates an EMAIL_TRIGGER node.
func Trigger(id string, props models.Properties) *models.WorkflowNode {
	return CreateTestNode(WithID(id), WithType(models.NodeTypeEmailTrigger), WithProperties(props))
}

// Condition creates a condition node of the given type.
func Condition(id, conditionType string, props models.Properties) *models.WorkflowNode {
	return CreateTestNode(WithID(id), WithType(conditionType), WithProperties(props))
}

// Action creates an action node of the given type.
func Action(id, actionType string, props models.Properties) *models.WorkflowNode {
	return CreateTestNode(WithID(id), WithType(actionType), WithProperties(props))
}

// Logic creates a logic node; inputs may be empty to use incoming edges.
func Logic(id, logicType string, inputs ...string) *models.WorkflowNode {
	props := models.Properties{}
	if len(inputs) > 0 {
		list := make([]any, 0, len(inputs))
		for _, input := range inputs {
			list = append(list, input)
		}

		props["inputs"] = list
	}

	return CreateTestNode(WithID(id), WithType(logicType), WithProperties(props))
}

// WithProperties sets the node properties.
func WithProperties(props models.Properties) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		if props == nil {
			props = models.Properties{}
		}

		n.Properties = props
	}
}

// WithName sets the node name.
func WithName(name string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Name = name
	}
}

// WithPosition sets the node position.
func WithPosition(x, y int) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.PositionX = x
		n.PositionY = y
	}
}

// WithType sets the node type and derives its kind.
func WithType(nodeType string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Type = nodeType
		if kind, ok := models.KindOf(nodeType); ok {
			n.Kind = kind
		}
	}
}

// WithID sets the node ID.
func WithID(id string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.ID = id
	}
}

// Connect links the default port of source to target.
func Connect(source, target string) *models.Connection {
	return &models.Connection{ID: source + "->" + target, SourceNode: source, TargetNode: target}
}

// ConnectPort links a named source port to target.
func ConnectPort(source, port, target string) *models.Connection {
	return &models.Connection{ID: source + ":" + port + "->" + target, SourceNode: source, SourcePort: port, TargetNode: target}
}

// CreateTestWorkflow creates an active workflow with the given graph.
func CreateTestWorkflow(nodes []*models.WorkflowNode, connections ...*models.Connection) *models.Workflow {
	if connections == nil {
		connections = []*models.Connection{}
	}

	return &models.Workflow{
		ID:          uuid.New().String(),
		Name:        "Test Workflow",
		Description: "A workflow for testing",
		Version:     1,
		IsActive:    true,
		Owner:       "test-user",
		Nodes:       nodes,
		Connections: connections,
	}
}

// CreateInvoiceWorkflow creates the canonical example: mail from example.com
// whose body mentions an invoice becomes a task.
func CreateInvoiceWorkflow() *models.Workflow {
	return CreateTestWorkflow(
		[]*models.WorkflowNode{
			Trigger("trigger", models.Properties{"senderFilter": []any{"example.com"}}),
			Condition("has-invoice", models.NodeTypeConditionContent, models.Properties{"operator": "contains", "value": "invoice"}),
			Action("create-task", models.NodeTypeActionTask, models.Properties{"title": "Process {{.event.subject}}", "priority": "high"}),
		},
		Connect("trigger", "has-invoice"),
		ConnectPort("has-invoice", models.PortTrue, "create-task"),
	)
}

// CreateTestEvent creates a received-mail event with default values that can be overridden.
func CreateTestEvent(overrides ...func(*models.Event)) *models.Event {
	event := &models.Event{
		ID:         uuid.New().String(),
		Type:       models.EventTypeEmailReceived,
		From:       "billing@example.com",
		To:         []string{"inbox@acme.test"},
		Subject:    "Invoice 1042",
		Body:       "Please find the invoice attached.",
		Mailbox:    "INBOX",
		ReceivedAt: time.Date(2024, time.March, 4, 10, 0, 0, 0, time.UTC),
	}

	for _, override := range overrides {
		override(event)
	}

	return event
}

// WithFrom sets the event sender.
func WithFrom(from string) func(*models.Event) {
	return func(e *models.Event) {
		e.From = from
	}
}

// WithReceivedAt sets the event receive time.
func WithReceivedAt(t time.Time) func(*models.Event) {
	return func(e *models.Event) {
		e.ReceivedAt = t
	}
}

// WithBody sets the event body.
func WithBody(body string) func(*models.Event) {
	return func(e *models.Event) {
		e.Body = body
	}
}
