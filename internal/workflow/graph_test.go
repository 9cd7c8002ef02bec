package workflow

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/folio/internal/sqlite"
	"github.com/mesh-intelligence/folio/pkg/types"
)

type denyGate struct{}

func (denyGate) Allowed(types.Feature, string) bool { return false }

func newBackend(t *testing.T) *sqlite.Backend {
	t.Helper()
	b := sqlite.NewBackend()
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}))
	t.Cleanup(func() { b.Detach() })
	return b
}

func newTestGraph(t *testing.T) *Graph {
	t.Helper()
	repo, err := newBackend(t).Workflows()
	require.NoError(t, err)
	return NewGraph(repo, Config{})
}

func stepNames(steps []*types.WorkflowStep) []string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.StepName
	}
	return names
}

func TestCreateWorkflow_DefaultGraphs(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()

	tests := []struct {
		name        string
		wf          *types.Workflow
		steps       []string
		orders      []int
		transitions int
		typ         types.TransitionType
	}{
		{
			name:   "basic approval",
			wf:     &types.Workflow{Name: "basic", Kind: types.WorkflowKindApproval, Basic: true},
			steps:  []string{"edit", "published", "archived"},
			orders: []int{1, 2, 3},
		},
		{
			name:        "advanced approval",
			wf:          &types.Workflow{Name: "advanced", Kind: types.WorkflowKindApproval},
			steps:       []string{"edit", "published", "archived"},
			orders:      []int{0, 0, 0},
			transitions: 2,
			typ:         types.TransitionManual,
		},
		{
			name:        "automation",
			wf:          &types.Workflow{Name: "auto", Kind: types.WorkflowKindAutomation, Basic: true},
			steps:       []string{"start", "finished"},
			orders:      []int{0, 0},
			transitions: 1,
			typ:         types.TransitionAutomatic,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			steps, err := g.CreateWorkflow(ctx, tt.wf)
			require.NoError(t, err)
			assert.Equal(t, tt.steps, stepNames(steps))

			stored, err := g.Steps(ctx, tt.wf.WorkflowID)
			require.NoError(t, err)
			require.Len(t, stored, len(tt.orders))
			for i, s := range stored {
				assert.Equal(t, tt.orders[i], s.StepOrder, s.StepName)
			}

			trans, err := g.Transitions(ctx, tt.wf.WorkflowID)
			require.NoError(t, err)
			require.Len(t, trans, tt.transitions)
			for i, tr := range trans {
				assert.Equal(t, tt.typ, tr.TransitionType)
				assert.Equal(t, steps[i].StepID, tr.StartStepID)
				assert.Equal(t, steps[i+1].StepID, tr.EndStepID)
			}
		})
	}
}

func TestCreateWorkflow_LicenseDenied(t *testing.T) {
	repo, err := newBackend(t).Workflows()
	require.NoError(t, err)
	g := NewGraph(repo, Config{Gate: denyGate{}})

	_, err = g.CreateWorkflow(context.Background(), &types.Workflow{Name: "auto", Kind: types.WorkflowKindAutomation})
	var licErr *types.LicenseError
	require.ErrorAs(t, err, &licErr)
	assert.Equal(t, types.FeatureAutomation, licErr.Feature)

	all, err := repo.ListWorkflows(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestConnectSteps_NonBranching(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()

	wf := &types.Workflow{Name: "custom", Kind: types.WorkflowKindApproval}
	steps, err := g.CreateWorkflow(ctx, wf)
	require.NoError(t, err)
	edit, archived := steps[0], steps[2]

	_, err = g.ConnectSteps(ctx, edit.StepID, uuid.Nil, archived.StepID, types.TransitionManual)
	assert.ErrorIs(t, err, types.ErrDuplicateTransition, "edit already leads to published")

	require.NoError(t, g.Disconnect(ctx, mustOutgoing(t, g, edit).TransitionID))
	tr, err := g.ConnectSteps(ctx, edit.StepID, uuid.Nil, archived.StepID, "")
	require.NoError(t, err)
	assert.Equal(t, types.TransitionManual, tr.TransitionType)

	next, err := g.NextSteps(ctx, edit.StepID)
	require.NoError(t, err)
	assert.Equal(t, []string{"archived"}, stepNames(next))
}

func mustOutgoing(t *testing.T, g *Graph, step *types.WorkflowStep) *types.WorkflowTransition {
	t.Helper()
	trans, err := g.Transitions(context.Background(), step.StepWorkflowID)
	require.NoError(t, err)
	for _, tr := range trans {
		if tr.StartStepID == step.StepID {
			return tr
		}
	}
	t.Fatalf("step %s has no outgoing transition", step.StepName)
	return nil
}

func TestConnectSteps_Branching(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()

	wf := &types.Workflow{Name: "routing", Kind: types.WorkflowKindAutomation}
	steps, err := g.CreateWorkflow(ctx, wf)
	require.NoError(t, err)
	finished := steps[1]

	timeout := types.NewSourcePoint("late", types.SourcePointTimeout)
	yes := types.NewSourcePoint("yes", types.SourcePointSwitchCase)
	no := types.NewSourcePoint("no", types.SourcePointSwitchDefault)
	cond := &types.WorkflowStep{
		StepWorkflowID: wf.WorkflowID,
		StepName:       "check",
		StepType:       types.StepTypeCondition,
		Definition:     types.StepDefinition{SourcePoints: []types.SourcePoint{timeout, yes, no}},
	}
	require.NoError(t, g.AddStep(ctx, cond))

	first, err := g.ConnectSteps(ctx, cond.StepID, uuid.Nil, finished.StepID, types.TransitionAutomatic)
	require.NoError(t, err)
	assert.Equal(t, yes.GUID, first.SourcePointGUID, "nil resolves to the first non-timeout exit")

	_, err = g.ConnectSteps(ctx, cond.StepID, yes.GUID, finished.StepID, types.TransitionAutomatic)
	assert.ErrorIs(t, err, types.ErrDuplicateTransition)

	_, err = g.ConnectSteps(ctx, cond.StepID, no.GUID, finished.StepID, types.TransitionAutomatic)
	require.NoError(t, err)
	_, err = g.ConnectSteps(ctx, cond.StepID, timeout.GUID, finished.StepID, types.TransitionAutomatic)
	require.NoError(t, err)

	_, err = g.ConnectSteps(ctx, cond.StepID, uuid.New(), finished.StepID, types.TransitionAutomatic)
	assert.ErrorIs(t, err, types.ErrSourcePointNotFound)

	next, err := g.NextSteps(ctx, cond.StepID)
	require.NoError(t, err)
	assert.Len(t, next, 3)
}

func TestConnectSteps_AcrossWorkflows(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()

	a, err := g.CreateWorkflow(ctx, &types.Workflow{Name: "a", Kind: types.WorkflowKindApproval, Basic: true})
	require.NoError(t, err)
	b, err := g.CreateWorkflow(ctx, &types.Workflow{Name: "b", Kind: types.WorkflowKindApproval, Basic: true})
	require.NoError(t, err)

	_, err = g.ConnectSteps(ctx, a[0].StepID, uuid.Nil, b[0].StepID, types.TransitionManual)
	assert.ErrorIs(t, err, types.ErrStepWorkflowMismatch)
}

func TestNextSteps_BasicFollowsOrder(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()

	wf := &types.Workflow{Name: "basic", Kind: types.WorkflowKindApproval, Basic: true}
	steps, err := g.CreateWorkflow(ctx, wf)
	require.NoError(t, err)

	review := &types.WorkflowStep{StepWorkflowID: wf.WorkflowID, StepName: "review", StepType: types.StepTypeStandard}
	require.NoError(t, g.AddStep(ctx, review))
	assert.Equal(t, 4, review.StepOrder)

	next, err := g.NextSteps(ctx, steps[0].StepID)
	require.NoError(t, err)
	assert.Equal(t, []string{"published"}, stepNames(next))

	next, err = g.NextSteps(ctx, review.StepID)
	require.NoError(t, err)
	assert.Empty(t, next)
}

func TestDeleteStep_CascadesTransitions(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()

	wf := &types.Workflow{Name: "advanced", Kind: types.WorkflowKindApproval}
	steps, err := g.CreateWorkflow(ctx, wf)
	require.NoError(t, err)

	require.NoError(t, g.DeleteStep(ctx, steps[1].StepID))
	trans, err := g.Transitions(ctx, wf.WorkflowID)
	require.NoError(t, err)
	assert.Empty(t, trans)

	assert.ErrorIs(t, g.DeleteStep(ctx, steps[1].StepID), types.ErrNotFound)
}

func TestSetSecurity(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()

	steps, err := g.CreateWorkflow(ctx, &types.Workflow{Name: "advanced", Kind: types.WorkflowKindApproval})
	require.NoError(t, err)

	step, err := g.SetSecurity(ctx, steps[1].StepID, types.SecurityAllExceptAssigned, types.SecurityDefault)
	require.NoError(t, err)
	assert.Equal(t, types.NewStepSecurity(types.SecurityAllExceptAssigned, types.SecurityOnlyAssigned), step.Security)

	stored, err := g.Steps(ctx, step.StepWorkflowID)
	require.NoError(t, err)
	assert.Equal(t, types.SecurityAllExceptAssigned, stored[1].Security.Users)

	cond := &types.WorkflowStep{StepWorkflowID: step.StepWorkflowID, StepName: "route", StepType: types.StepTypeCondition}
	require.NoError(t, g.AddStep(ctx, cond))
	_, err = g.SetSecurity(ctx, cond.StepID, types.SecurityOnlyAssigned, types.SecurityOnlyAssigned)
	assert.ErrorIs(t, err, types.ErrInvalidStepType)
}
