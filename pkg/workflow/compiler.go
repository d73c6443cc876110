// Package workflow compiles workflow definitions into execution plans, matches
// events against trigger nodes and walks compiled plans.
package workflow

import (
	"errors"
	"fmt"
	"slices"

	"github.com/dubaigit/task-mail-sub006/pkg/models"
)

// Edge is a connection resolved to node positions in the plan arena.
type Edge struct {
	From       int
	To         int
	Connection *models.Connection
}

// Plan is a compiled workflow: nodes live in an arena indexed by position,
// adjacency lists are built once and Order holds the non-trigger nodes in
// topological order. A plan is immutable once compiled.
type Plan struct {
	WorkflowID string
	Version    int
	Workflow   *models.Workflow

	Nodes    []*models.WorkflowNode
	Kinds    []models.NodeKind
	Order    []int
	Triggers []int
	Out      [][]Edge
	In       [][]Edge
	// LogicInputs lists the declared input node positions of logic nodes.
	LogicInputs map[int][]int

	index map[string]int
}

// Index returns the arena position of a node id.
func (p *Plan) Index(nodeID string) (int, bool) {
	i, ok := p.index[nodeID]

	return i, ok
}

// OrderedNodes returns the non-trigger nodes in execution order.
func (p *Plan) OrderedNodes() []*models.WorkflowNode {
	nodes := make([]*models.WorkflowNode, 0, len(p.Order))
	for _, i := range p.Order {
		nodes = append(nodes, p.Nodes[i])
	}

	return nodes
}

// TriggerNodes returns the plan's trigger nodes in declaration order.
func (p *Plan) TriggerNodes() []*models.WorkflowNode {
	nodes := make([]*models.WorkflowNode, 0, len(p.Triggers))
	for _, i := range p.Triggers {
		nodes = append(nodes, p.Nodes[i])
	}

	return nodes
}

// Compile validates a definition and orders its nodes. Definition errors are
// reported as *CompilationError; cycles as *CircularDependencyError.
func Compile(def *models.Workflow) (*Plan, error) {
	if def == nil {
		return nil, newCompilationError("", "", errors.New("workflow is nil"))
	}

	plan := &Plan{
		WorkflowID:  def.ID,
		Version:     def.Version,
		Workflow:    def,
		Nodes:       make([]*models.WorkflowNode, 0, len(def.Nodes)),
		Kinds:       make([]models.NodeKind, 0, len(def.Nodes)),
		LogicInputs: make(map[int][]int),
		index:       make(map[string]int, len(def.Nodes)),
	}

	for _, node := range def.Nodes {
		if err := plan.addNode(node); err != nil {
			return nil, err
		}
	}

	if len(plan.Triggers) == 0 {
		return nil, newCompilationError(def.ID, "", ErrNoTrigger)
	}

	plan.Out = make([][]Edge, len(plan.Nodes))
	plan.In = make([][]Edge, len(plan.Nodes))

	for _, conn := range def.Connections {
		if err := plan.addEdge(conn); err != nil {
			return nil, err
		}
	}

	if err := plan.resolveLogicInputs(); err != nil {
		return nil, err
	}

	if err := plan.sort(); err != nil {
		return nil, err
	}

	return plan, nil
}

func (p *Plan) addNode(node *models.WorkflowNode) error {
	if node == nil || node.ID == "" {
		return newCompilationError(p.WorkflowID, "", errors.New("node without id"))
	}

	if _, exists := p.index[node.ID]; exists {
		return newCompilationError(p.WorkflowID, node.ID, errors.New("duplicate node id"))
	}

	kind, ok := models.KindOf(node.Type)
	if !ok {
		return newCompilationError(p.WorkflowID, node.ID, fmt.Errorf("%w: %s", ErrUnknownNodeType, node.Type))
	}

	if node.Kind != "" && node.Kind != kind {
		return newCompilationError(p.WorkflowID, node.ID,
			fmt.Errorf("%w: %s is a %s node, declared as %s", ErrUnknownNodeType, node.Type, kind, node.Kind))
	}

	if err := ValidateProperties(node.Type, node.Properties); err != nil {
		return newCompilationError(p.WorkflowID, node.ID, err)
	}

	p.index[node.ID] = len(p.Nodes)
	p.Nodes = append(p.Nodes, node)
	p.Kinds = append(p.Kinds, kind)

	if kind == models.NodeKindTrigger {
		p.Triggers = append(p.Triggers, len(p.Nodes)-1)
	}

	return nil
}

func (p *Plan) addEdge(conn *models.Connection) error {
	if conn == nil {
		return newCompilationError(p.WorkflowID, "", fmt.Errorf("%w: nil connection", ErrInvalidConnection))
	}

	from, ok := p.index[conn.SourceNode]
	if !ok {
		return newCompilationError(p.WorkflowID, conn.SourceNode,
			fmt.Errorf("%w: %s references unknown source node", ErrInvalidConnection, conn.ID))
	}

	to, ok := p.index[conn.TargetNode]
	if !ok {
		return newCompilationError(p.WorkflowID, conn.TargetNode,
			fmt.Errorf("%w: %s references unknown target node", ErrInvalidConnection, conn.ID))
	}

	if p.Kinds[to] == models.NodeKindTrigger {
		return newCompilationError(p.WorkflowID, conn.TargetNode,
			fmt.Errorf("%w: %s targets a trigger node", ErrInvalidConnection, conn.ID))
	}

	if conn.FromFalsePort() && p.Kinds[from] == models.NodeKindTrigger {
		return newCompilationError(p.WorkflowID, conn.SourceNode,
			fmt.Errorf("%w: %s leaves a trigger from the false port", ErrInvalidConnection, conn.ID))
	}

	for _, guard := range conn.Guards {
		kind, ok := models.KindOf(guard.Type)
		if !ok || kind != models.NodeKindCondition {
			return newCompilationError(p.WorkflowID, conn.SourceNode,
				fmt.Errorf("%w: guard %s on %s", ErrUnknownNodeType, guard.Type, conn.ID))
		}

		if err := ValidateProperties(guard.Type, guard.Properties); err != nil {
			return newCompilationError(p.WorkflowID, conn.SourceNode, fmt.Errorf("guard on %s: %w", conn.ID, err))
		}
	}

	edge := Edge{From: from, To: to, Connection: conn}
	p.Out[from] = append(p.Out[from], edge)
	p.In[to] = append(p.In[to], edge)

	return nil
}

// resolveLogicInputs maps a logic node's declared inputs, falling back to the
// sources of its incoming edges.
func (p *Plan) resolveLogicInputs() error {
	for i, node := range p.Nodes {
		if p.Kinds[i] != models.NodeKindLogic {
			continue
		}

		declared := node.Properties.StringSlice("inputs")
		if len(declared) == 0 {
			inputs := make([]int, 0, len(p.In[i]))
			for _, edge := range p.In[i] {
				if !slices.Contains(inputs, edge.From) {
					inputs = append(inputs, edge.From)
				}
			}

			p.LogicInputs[i] = inputs

			continue
		}

		inputs := make([]int, 0, len(declared))

		for _, id := range declared {
			j, ok := p.index[id]
			if !ok {
				return newCompilationError(p.WorkflowID, node.ID,
					fmt.Errorf("%w: logic input %s does not exist", ErrInvalidConnection, id))
			}

			inputs = append(inputs, j)
		}

		p.LogicInputs[i] = inputs
	}

	return nil
}

// sort runs Kahn's algorithm over the non-trigger nodes. Declared logic
// inputs count as dependencies even without a connection. Ready nodes are
// taken in declaration order so the result is deterministic for a definition.
func (p *Plan) sort() error {
	successors := p.dependencies()
	inDegree := make([]int, len(p.Nodes))
	remaining := 0

	for i := range p.Nodes {
		if p.Kinds[i] != models.NodeKindTrigger {
			remaining++
		}

		for _, next := range successors[i] {
			inDegree[next]++
		}
	}

	ready := make([]int, 0, remaining)

	for i := range p.Nodes {
		if p.Kinds[i] != models.NodeKindTrigger && inDegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	p.Order = make([]int, 0, remaining)

	for len(ready) > 0 {
		current := ready[0]
		ready = ready[1:]
		p.Order = append(p.Order, current)

		for _, next := range successors[current] {
			inDegree[next]--
			if inDegree[next] == 0 {
				pos, _ := slices.BinarySearch(ready, next)
				ready = slices.Insert(ready, pos, next)
			}
		}
	}

	if len(p.Order) == remaining {
		return nil
	}

	// Nodes left over are on a cycle or downstream of one; report only the
	// ones that can reach themselves.
	cyclic := make([]string, 0, remaining-len(p.Order))

	for i, node := range p.Nodes {
		if p.Kinds[i] != models.NodeKindTrigger && inDegree[i] > 0 && reaches(successors, i, i) {
			cyclic = append(cyclic, node.ID)
		}
	}

	return &CircularDependencyError{WorkflowID: p.WorkflowID, NodeIDs: cyclic}
}

// reaches reports whether target can be reached from start in one or more steps.
func reaches(successors [][]int, start, target int) bool {
	seen := make([]bool, len(successors))
	stack := slices.Clone(successors[start])

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if current == target {
			return true
		}

		if seen[current] {
			continue
		}

		seen[current] = true
		stack = append(stack, successors[current]...)
	}

	return false
}

// dependencies returns, per node, the distinct non-trigger nodes that must
// run after it.
func (p *Plan) dependencies() [][]int {
	successors := make([][]int, len(p.Nodes))

	link := func(from, to int) {
		if p.Kinds[from] == models.NodeKindTrigger || slices.Contains(successors[from], to) {
			return
		}

		successors[from] = append(successors[from], to)
	}

	for from, edges := range p.Out {
		for _, edge := range edges {
			link(from, edge.To)
		}
	}

	for i, inputs := range p.LogicInputs {
		for _, j := range inputs {
			link(j, i)
		}
	}

	return successors
}
