package models

import "time"

// Workflow is a user-authored automation graph. Version is bumped on every
// content change and, together with ID, identifies a compiled plan.
type Workflow struct {
	ID          string          `json:"id"                    yaml:"id"`
	Name        string          `json:"name"                  validate:"required,min=3" yaml:"name"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Version     int             `json:"version"               yaml:"version"`
	IsActive    bool            `json:"is_active"             yaml:"is_active"`
	Nodes       []*WorkflowNode `json:"nodes"                 validate:"required,min=1,dive" yaml:"nodes"`
	Connections []*Connection   `json:"connections"           validate:"dive"               yaml:"connections"`
	Owner       string          `json:"owner,omitempty"       yaml:"owner,omitempty"`
	CreatedAt   time.Time       `json:"created_at"            yaml:"-"`
	UpdatedAt   time.Time       `json:"updated_at"            yaml:"-"`
}

// NodeByID returns the node with the given id, or nil.
func (w *Workflow) NodeByID(id string) *WorkflowNode {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// TriggerNodes returns the workflow's trigger nodes in declaration order.
func (w *Workflow) TriggerNodes() []*WorkflowNode {
	triggers := make([]*WorkflowNode, 0, 1)

	for _, node := range w.Nodes {
		if node.IsTrigger() {
			triggers = append(triggers, node)
		}
	}

	return triggers
}
