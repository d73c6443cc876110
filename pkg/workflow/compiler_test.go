package workflow_test

import (
	"testing"

	"github.com/dubaigit/task-mail-sub006/pkg/models"
	"github.com/dubaigit/task-mail-sub006/pkg/testutil"
	"github.com/dubaigit/task-mail-sub006/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orderIDs(plan *workflow.Plan) []string {
	ids := make([]string, 0, len(plan.Order))
	for _, node := range plan.OrderedNodes() {
		ids = append(ids, node.ID)
	}

	return ids
}

func TestCompile_TopologicalOrder(t *testing.T) {
	// Declared out of dependency order on purpose.
	def := testutil.CreateTestWorkflow(
		[]*models.WorkflowNode{
			testutil.Action("notify", models.NodeTypeActionNotify, nil),
			testutil.Condition("is-urgent", models.NodeTypeConditionContent, models.Properties{"value": "urgent"}),
			testutil.Trigger("trigger", nil),
			testutil.Condition("from-vip", models.NodeTypeConditionSender, models.Properties{"operator": "in_list", "senders": "ceo@acme.test"}),
			testutil.Logic("both", models.NodeTypeLogicAnd),
		},
		testutil.Connect("trigger", "is-urgent"),
		testutil.Connect("trigger", "from-vip"),
		testutil.Connect("is-urgent", "both"),
		testutil.Connect("from-vip", "both"),
		testutil.Connect("both", "notify"),
	)

	plan, err := workflow.Compile(def)
	require.NoError(t, err)

	assert.Equal(t, []string{"is-urgent", "from-vip", "both", "notify"}, orderIDs(plan))
	require.Len(t, plan.TriggerNodes(), 1)
	assert.Equal(t, "trigger", plan.TriggerNodes()[0].ID)

	position := make(map[string]int)
	for i, id := range orderIDs(plan) {
		position[id] = i
	}

	for _, conn := range def.Connections {
		if conn.SourceNode == "trigger" {
			continue
		}

		assert.Less(t, position[conn.SourceNode], position[conn.TargetNode], "%s must precede %s", conn.SourceNode, conn.TargetNode)
	}

	both, ok := plan.Index("both")
	require.True(t, ok)
	assert.Len(t, plan.LogicInputs[both], 2)
}

func TestCompile_DeterministicTies(t *testing.T) {
	def := testutil.CreateTestWorkflow(
		[]*models.WorkflowNode{
			testutil.Trigger("trigger", nil),
			testutil.Action("c", models.NodeTypeActionNotify, nil),
			testutil.Action("a", models.NodeTypeActionNotify, nil),
			testutil.Action("b", models.NodeTypeActionNotify, nil),
		},
	)

	for range 5 {
		plan, err := workflow.Compile(def)
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "a", "b"}, orderIDs(plan))
	}
}

func TestCompile_CircularDependency(t *testing.T) {
	def := testutil.CreateTestWorkflow(
		[]*models.WorkflowNode{
			testutil.Trigger("trigger", nil),
			testutil.Condition("a", models.NodeTypeConditionContent, models.Properties{"value": "x"}),
			testutil.Condition("b", models.NodeTypeConditionContent, models.Properties{"value": "y"}),
			testutil.Action("done", models.NodeTypeActionNotify, nil),
		},
		testutil.Connect("trigger", "a"),
		testutil.Connect("a", "b"),
		testutil.Connect("b", "a"),
		testutil.Connect("b", "done"),
	)

	_, err := workflow.Compile(def)
	require.Error(t, err)
	assert.True(t, workflow.IsCircularDependency(err))

	var cycle *workflow.CircularDependencyError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"a", "b"}, cycle.NodeIDs, "nodes only downstream of the cycle are not reported")
}

func TestCompile_CircularDependencyReportsEveryCycle(t *testing.T) {
	def := testutil.CreateTestWorkflow(
		[]*models.WorkflowNode{
			testutil.Trigger("trigger", nil),
			testutil.Condition("a", models.NodeTypeConditionContent, models.Properties{"value": "x"}),
			testutil.Condition("b", models.NodeTypeConditionContent, models.Properties{"value": "y"}),
			testutil.Condition("bridge", models.NodeTypeConditionContent, models.Properties{"value": "z"}),
			testutil.Condition("c", models.NodeTypeConditionContent, models.Properties{"value": "x"}),
			testutil.Condition("d", models.NodeTypeConditionContent, models.Properties{"value": "y"}),
			testutil.Action("done", models.NodeTypeActionNotify, nil),
		},
		testutil.Connect("trigger", "a"),
		testutil.Connect("a", "b"),
		testutil.Connect("b", "a"),
		testutil.Connect("b", "bridge"),
		testutil.Connect("bridge", "c"),
		testutil.Connect("c", "d"),
		testutil.Connect("d", "c"),
		testutil.Connect("d", "done"),
	)

	_, err := workflow.Compile(def)

	var cycle *workflow.CircularDependencyError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"a", "b", "c", "d"}, cycle.NodeIDs)
}

func TestCompile_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		def     *models.Workflow
		wantErr error
	}{
		{
			name: "unknown node type",
			def: testutil.CreateTestWorkflow([]*models.WorkflowNode{
				testutil.Trigger("trigger", nil),
				testutil.CreateTestNode(testutil.WithID("x"), testutil.WithType("ACTION_TELEPORT")),
			}),
			wantErr: workflow.ErrUnknownNodeType,
		},
		{
			name: "kind does not match type",
			def: testutil.CreateTestWorkflow([]*models.WorkflowNode{
				testutil.Trigger("trigger", nil),
				testutil.CreateTestNode(testutil.WithID("x"), testutil.WithType(models.NodeTypeActionNotify), func(n *models.WorkflowNode) {
					n.Kind = models.NodeKindCondition
				}),
			}),
			wantErr: workflow.ErrUnknownNodeType,
		},
		{
			name: "no trigger",
			def: testutil.CreateTestWorkflow([]*models.WorkflowNode{
				testutil.Action("a", models.NodeTypeActionNotify, nil),
			}),
			wantErr: workflow.ErrNoTrigger,
		},
		{
			name: "unknown target",
			def: testutil.CreateTestWorkflow(
				[]*models.WorkflowNode{testutil.Trigger("trigger", nil)},
				testutil.Connect("trigger", "ghost"),
			),
			wantErr: workflow.ErrInvalidConnection,
		},
		{
			name: "edge into trigger",
			def: testutil.CreateTestWorkflow(
				[]*models.WorkflowNode{
					testutil.Trigger("trigger", nil),
					testutil.Action("a", models.NodeTypeActionNotify, nil),
				},
				testutil.Connect("a", "trigger"),
			),
			wantErr: workflow.ErrInvalidConnection,
		},
		{
			name: "invalid properties",
			def: testutil.CreateTestWorkflow([]*models.WorkflowNode{
				testutil.Trigger("trigger", nil),
				testutil.Action("t", models.NodeTypeActionTask, models.Properties{"priority": "whenever"}),
			}),
			wantErr: workflow.ErrInvalidProperties,
		},
		{
			name: "missing required property",
			def: testutil.CreateTestWorkflow([]*models.WorkflowNode{
				testutil.Trigger("trigger", nil),
				testutil.Action("f", models.NodeTypeActionForward, nil),
			}),
			wantErr: workflow.ErrInvalidProperties,
		},
		{
			name: "guard that is not a condition",
			def: testutil.CreateTestWorkflow(
				[]*models.WorkflowNode{
					testutil.Trigger("trigger", nil),
					testutil.Action("a", models.NodeTypeActionNotify, nil),
				},
				&models.Connection{ID: "c", SourceNode: "trigger", TargetNode: "a", Guards: []models.Guard{{Type: models.NodeTypeActionTask}}},
			),
			wantErr: workflow.ErrUnknownNodeType,
		},
		{
			name: "unknown logic input",
			def: testutil.CreateTestWorkflow([]*models.WorkflowNode{
				testutil.Trigger("trigger", nil),
				testutil.Logic("and", models.NodeTypeLogicAnd, "ghost"),
			}),
			wantErr: workflow.ErrInvalidConnection,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := workflow.Compile(tt.def)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, workflow.IsCompilationFailed(err))
		})
	}
}

func TestCompile_UnknownTypeNamesNode(t *testing.T) {
	def := testutil.CreateTestWorkflow([]*models.WorkflowNode{
		testutil.Trigger("trigger", nil),
		testutil.CreateTestNode(testutil.WithID("mystery"), testutil.WithType("ACTION_TELEPORT")),
	})

	_, err := workflow.Compile(def)

	var compileErr *workflow.CompilationError
	require.ErrorAs(t, err, &compileErr)
	assert.Equal(t, "mystery", compileErr.NodeID)
	assert.Contains(t, err.Error(), "ACTION_TELEPORT")
}

func TestPlanCache(t *testing.T) {
	cache := workflow.NewPlanCache()
	def := testutil.CreateInvoiceWorkflow()

	first, err := cache.Plan(def)
	require.NoError(t, err)

	again, err := cache.Plan(def)
	require.NoError(t, err)
	assert.Same(t, first, again)

	next := *def
	next.Version = 2

	second, err := cache.Plan(&next)
	require.NoError(t, err)
	assert.NotSame(t, first, second)

	_, ok := cache.Get(def.ID, 1)
	assert.False(t, ok, "older version is evicted")

	cache.Put(first)

	cached, ok := cache.Get(def.ID, 2)
	require.True(t, ok, "older plan never replaces a newer one")
	assert.Same(t, second, cached)

	cache.Invalidate(def.ID)
	assert.Zero(t, cache.Len())
}
