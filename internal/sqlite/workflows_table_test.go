package sqlite

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/folio/pkg/types"
)

func newTestWorkflow(t *testing.T, s *Store, name string) *types.Workflow {
	t.Helper()
	wf := &types.Workflow{Name: name, Kind: types.WorkflowKindApproval}
	require.NoError(t, s.CreateWorkflow(context.Background(), wf))
	return wf
}

func TestWorkflows_CreateAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	wf := newTestWorkflow(t, s, "publishing")
	got, err := s.GetWorkflow(ctx, wf.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, wf, got)

	err = s.CreateWorkflow(ctx, &types.Workflow{Name: "publishing", Kind: types.WorkflowKindApproval})
	assert.ErrorIs(t, err, types.ErrDuplicateName)

	err = s.CreateWorkflow(ctx, &types.Workflow{Name: "x", Kind: "bogus"})
	assert.ErrorIs(t, err, types.ErrInvalidWorkflowKind)

	all, err := s.ListWorkflows(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSteps_DefinitionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	wf := newTestWorkflow(t, s, "wf")

	own := types.NewStepSecurity(types.SecurityAllExceptAssigned, types.SecurityDefault)
	sp := types.NewSourcePoint("approve", types.SourcePointStandard)
	sp.Security = &own
	step := &types.WorkflowStep{
		StepWorkflowID: wf.WorkflowID,
		StepName:       "choose",
		StepType:       types.StepTypeUserchoice,
		Definition:     types.StepDefinition{SourcePoints: []types.SourcePoint{sp}},
		Security:       types.NewStepSecurity(types.SecurityDefault, types.SecurityAllExceptAssigned),
	}
	require.NoError(t, s.InsertStep(ctx, step))

	got, err := s.GetStep(ctx, step.StepID)
	require.NoError(t, err)
	assert.Equal(t, step, got)

	p, ok := got.SourcePoint(sp.GUID)
	require.True(t, ok)
	require.NotNil(t, p.Security)
	assert.Equal(t, types.SecurityAllExceptAssigned, p.Security.Users)
}

func TestSteps_OrderAndDeleteCascade(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	wf := newTestWorkflow(t, s, "wf")

	var ids []int64
	for _, order := range []int{3, 1, 2} {
		st := &types.WorkflowStep{StepWorkflowID: wf.WorkflowID, StepName: "s", StepType: types.StepTypeStandard, StepOrder: order}
		require.NoError(t, s.InsertStep(ctx, st))
		ids = append(ids, st.StepID)
	}

	steps, err := s.ListSteps(ctx, wf.WorkflowID)
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{steps[0].StepOrder, steps[1].StepOrder, steps[2].StepOrder})

	tr := &types.WorkflowTransition{StartStepID: ids[1], EndStepID: ids[2], WorkflowID: wf.WorkflowID}
	require.NoError(t, s.InsertTransition(ctx, tr))
	assert.Equal(t, types.TransitionManual, tr.TransitionType)
	require.NoError(t, s.AddStepUser(ctx, types.StepUser{StepID: ids[1], UserID: 1}))

	require.NoError(t, s.DeleteStep(ctx, ids[1]))
	_, err = s.GetTransition(ctx, tr.TransitionID)
	assert.ErrorIs(t, err, types.ErrNotFound)
	assigned, err := s.IsUserAssigned(ctx, ids[1], 1, uuid.Nil)
	require.NoError(t, err)
	assert.False(t, assigned)
}

func TestTransitions_CountPerSourcePoint(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	wf := newTestWorkflow(t, s, "wf")

	a := &types.WorkflowStep{StepWorkflowID: wf.WorkflowID, StepName: "a", StepType: types.StepTypeCondition}
	b := &types.WorkflowStep{StepWorkflowID: wf.WorkflowID, StepName: "b", StepType: types.StepTypeStandard}
	require.NoError(t, s.InsertStep(ctx, a))
	require.NoError(t, s.InsertStep(ctx, b))

	g1, g2 := uuid.New(), uuid.New()
	require.NoError(t, s.InsertTransition(ctx, &types.WorkflowTransition{
		StartStepID: a.StepID, EndStepID: b.StepID, WorkflowID: wf.WorkflowID, SourcePointGUID: g1,
	}))

	total, err := s.CountOutgoingTransitions(ctx, a.StepID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	n, err := s.CountOutgoingTransitions(ctx, a.StepID, &g1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.CountOutgoingTransitions(ctx, a.StepID, &g2)
	require.NoError(t, err)
	assert.Zero(t, n)

	out, err := s.ListOutgoingTransitions(ctx, a.StepID)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, g1, out[0].SourcePointGUID)

	require.NoError(t, s.DeleteTransition(ctx, out[0].TransitionID))
	all, err := s.ListTransitions(ctx, wf.WorkflowID)
	require.NoError(t, err)
	assert.Empty(t, all)
}
