// Package models defines the workflow graph, queue and execution records of the mail automation core.
package models

import (
	"slices"
	"time"
)

// NodeKind is the closed set of node variants a workflow graph may contain.
type NodeKind string

const (
	NodeKindTrigger   NodeKind = "trigger"
	NodeKindCondition NodeKind = "condition"
	NodeKindAction    NodeKind = "action"
	NodeKindLogic     NodeKind = "logic"
)

// Built-in node types, grouped by kind.
const (
	NodeTypeEmailTrigger = "EMAIL_TRIGGER"

	NodeTypeConditionContent    = "CONDITION_CONTENT"
	NodeTypeConditionSender     = "CONDITION_SENDER"
	NodeTypeConditionTime       = "CONDITION_TIME"
	NodeTypeConditionAI         = "CONDITION_AI"
	NodeTypeConditionExpression = "CONDITION_EXPRESSION"

	NodeTypeActionReply   = "ACTION_REPLY"
	NodeTypeActionTask    = "ACTION_TASK"
	NodeTypeActionForward = "ACTION_FORWARD"
	NodeTypeActionNotify  = "ACTION_NOTIFY"

	NodeTypeLogicAnd = "LOGIC_AND"
	NodeTypeLogicOr  = "LOGIC_OR"
	NodeTypeLogicNot = "LOGIC_NOT"
)

var nodeTypesByKind = map[NodeKind][]string{
	NodeKindTrigger: {NodeTypeEmailTrigger},
	NodeKindCondition: {
		NodeTypeConditionContent,
		NodeTypeConditionSender,
		NodeTypeConditionTime,
		NodeTypeConditionAI,
		NodeTypeConditionExpression,
	},
	NodeKindAction: {
		NodeTypeActionReply,
		NodeTypeActionTask,
		NodeTypeActionForward,
		NodeTypeActionNotify,
	},
	NodeKindLogic: {NodeTypeLogicAnd, NodeTypeLogicOr, NodeTypeLogicNot},
}

// KindOf returns the kind a node type belongs to.
func KindOf(nodeType string) (NodeKind, bool) {
	for kind, types := range nodeTypesByKind {
		if slices.Contains(types, nodeType) {
			return kind, true
		}
	}

	return "", false
}

// NodeTypes returns the node types registered for a kind.
func NodeTypes(kind NodeKind) []string {
	return slices.Clone(nodeTypesByKind[kind])
}

// Port names understood by the executor. Condition and logic nodes route
// their "true" (or default) port when met and their "false" port otherwise.
const (
	PortDefault = "output"
	PortTrue    = "true"
	PortFalse   = "false"
	PortInput   = "input"
)

// WorkflowNode represents a node instance in a workflow.
type WorkflowNode struct {
	ID         string     `json:"id"                   validate:"required"                                  yaml:"id"`
	Kind       NodeKind   `json:"kind"                 validate:"required,oneof=trigger condition action logic" yaml:"kind"`
	Type       string     `json:"type"                 validate:"required"                                  yaml:"type"`
	Name       string     `json:"name"                                                                      yaml:"name"`
	Properties Properties `json:"properties,omitempty"                                                      yaml:"properties,omitempty"`
	Inputs     []string   `json:"inputs,omitempty"                                                          yaml:"inputs,omitempty"`
	Outputs    []string   `json:"outputs,omitempty"                                                         yaml:"outputs,omitempty"`
	PositionX  int        `json:"position_x"                                                                yaml:"position_x"`
	PositionY  int        `json:"position_y"                                                                yaml:"position_y"`
}

func (n *WorkflowNode) IsTrigger() bool {
	return n.Kind == NodeKindTrigger
}

func (n *WorkflowNode) IsCondition() bool {
	return n.Kind == NodeKindCondition
}

func (n *WorkflowNode) IsAction() bool {
	return n.Kind == NodeKindAction
}

func (n *WorkflowNode) IsLogic() bool {
	return n.Kind == NodeKindLogic
}

// Guard is an extra condition attached to a connection. The connection is
// live only when every guard is met.
type Guard struct {
	Type       string     `json:"type"       validate:"required" yaml:"type"`
	Properties Properties `json:"properties"                     yaml:"properties"`
}

// Connection is a directed edge between two node ports.
type Connection struct {
	ID         string  `json:"id"                  yaml:"id"`
	SourceNode string  `json:"source_node"         validate:"required" yaml:"source_node"`
	SourcePort string  `json:"source_port"         yaml:"source_port"`
	TargetNode string  `json:"target_node"         validate:"required" yaml:"target_node"`
	TargetPort string  `json:"target_port"         yaml:"target_port"`
	Guards     []Guard `json:"guards,omitempty"    yaml:"guards,omitempty"`
}

// FromFalsePort reports whether the edge leaves a condition's negative branch.
func (c *Connection) FromFalsePort() bool {
	return c.SourcePort == PortFalse
}

// NodeStatus defines the possible outcomes of a node during one run.
type NodeStatus string

const (
	NodeStatusSuccess NodeStatus = "success"
	NodeStatusFailed  NodeStatus = "failed"
	NodeStatusSkipped NodeStatus = "skipped"
)

// NodeResult is the recorded outcome of one node in one execution.
type NodeResult struct {
	NodeID    string         `json:"node_id"`
	Kind      NodeKind       `json:"kind"`
	Status    NodeStatus     `json:"status"`
	Passed    bool           `json:"passed"`
	Data      map[string]any `json:"data,omitempty"`
	Warning   string         `json:"warning,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Executed reports whether the node ran, as opposed to being skipped.
func (r NodeResult) Executed() bool {
	return r.Status != NodeStatusSkipped
}
