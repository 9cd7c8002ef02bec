package workflow

import (
	"context"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/folio/internal/metrics"
	"github.com/mesh-intelligence/folio/pkg/types"
)

type securityFixture struct {
	graph     *Graph
	eval      *Evaluator
	workflows types.WorkflowRepository
	security  types.SecurityStore
	metrics   *metrics.Metrics
	step      *types.WorkflowStep
	users     map[string]*types.User
	reviewers *types.Role
}

// newSecurityFixture builds an advanced approval workflow and assigns alice
// to its published step by name and the reviewers role (carol) to it. dave
// manages workflows, erin is an admin, bob has nothing.
func newSecurityFixture(t *testing.T) *securityFixture {
	t.Helper()
	b := newBackend(t)
	ctx := context.Background()

	workflows, err := b.Workflows()
	require.NoError(t, err)
	security, err := b.Security()
	require.NoError(t, err)

	f := &securityFixture{
		workflows: workflows,
		security:  security,
		metrics:   metrics.New(prometheus.NewRegistry()),
		users:     map[string]*types.User{},
	}
	cfg := Config{Metrics: f.metrics}
	f.graph = NewGraph(workflows, cfg)
	f.eval = NewEvaluator(workflows, security, cfg)

	steps, err := f.graph.CreateWorkflow(ctx, &types.Workflow{Name: "publishing", Kind: types.WorkflowKindApproval})
	require.NoError(t, err)
	f.step = steps[1]

	for _, u := range []*types.User{
		{UserName: "alice", Privilege: types.PrivilegeEditor},
		{UserName: "bob", Privilege: types.PrivilegeEditor},
		{UserName: "carol", Privilege: types.PrivilegeEditor},
		{UserName: "dave", Privilege: types.PrivilegeEditor, Permissions: []types.Permission{
			{Resource: types.ResourceWorkflow, Name: types.PermissionManage},
		}},
		{UserName: "erin", Privilege: types.PrivilegeAdmin},
	} {
		require.NoError(t, security.CreateUser(ctx, u))
		f.users[u.UserName] = u
	}

	f.reviewers = &types.Role{RoleName: "reviewers"}
	require.NoError(t, security.CreateRole(ctx, f.reviewers))
	require.NoError(t, security.AddUserRole(ctx, f.users["carol"].UserID, f.reviewers.RoleID))

	require.NoError(t, f.eval.AssignUser(ctx, f.step, uuid.Nil, f.users["alice"].UserID))
	require.NoError(t, f.eval.AssignRole(ctx, f.step, uuid.Nil, f.reviewers.RoleID))
	return f
}

func (f *securityFixture) setSecurity(t *testing.T, users, roles types.SecurityMode) {
	t.Helper()
	f.step.Security = types.NewStepSecurity(users, roles)
	require.NoError(t, f.workflows.UpdateStep(context.Background(), f.step))
}

func (f *securityFixture) can(t *testing.T, name string, step *types.WorkflowStep, guid uuid.UUID, siteID int64) bool {
	t.Helper()
	ok, err := f.eval.CanUserApprove(context.Background(), nil, f.users[name], step, guid, siteID)
	require.NoError(t, err)
	return ok
}

func TestCanUserApprove_Policies(t *testing.T) {
	tests := []struct {
		name  string
		users types.SecurityMode
		roles types.SecurityMode
		want  map[string]bool
	}{
		{
			name:  "default is only assigned, OR-combined",
			users: types.SecurityDefault,
			roles: types.SecurityDefault,
			want:  map[string]bool{"alice": true, "bob": false, "carol": true, "dave": true, "erin": true},
		},
		{
			name:  "all except assigned users AND-combines with roles",
			users: types.SecurityAllExceptAssigned,
			roles: types.SecurityOnlyAssigned,
			want:  map[string]bool{"alice": false, "bob": false, "carol": true, "dave": true, "erin": true},
		},
		{
			name:  "all except on both",
			users: types.SecurityAllExceptAssigned,
			roles: types.SecurityAllExceptAssigned,
			want:  map[string]bool{"alice": false, "bob": true, "carol": false, "dave": true, "erin": true},
		},
		{
			name:  "only assigned users, all except roles",
			users: types.SecurityOnlyAssigned,
			roles: types.SecurityAllExceptAssigned,
			want:  map[string]bool{"alice": true, "bob": true, "carol": false, "dave": true, "erin": true},
		},
	}

	f := newSecurityFixture(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.setSecurity(t, tt.users, tt.roles)
			for name, want := range tt.want {
				assert.Equal(t, want, f.can(t, name, f.step, uuid.Nil, 0), name)
			}
		})
	}
}

func TestCanUserApprove_ExcludedByNameDespiteRole(t *testing.T) {
	f := newSecurityFixture(t)
	ctx := context.Background()
	require.NoError(t, f.security.AddUserRole(ctx, f.users["alice"].UserID, f.reviewers.RoleID))

	f.setSecurity(t, types.SecurityOnlyAssigned, types.SecurityOnlyAssigned)
	assert.True(t, f.can(t, "alice", f.step, uuid.Nil, 0))

	f.setSecurity(t, types.SecurityAllExceptAssigned, types.SecurityOnlyAssigned)
	assert.False(t, f.can(t, "alice", f.step, uuid.Nil, 0))
}

func TestCanUserApprove_SiteRoles(t *testing.T) {
	f := newSecurityFixture(t)
	ctx := context.Background()

	site := &types.Role{RoleName: "intranet-reviewers", SiteID: 5}
	require.NoError(t, f.security.CreateRole(ctx, site))
	require.NoError(t, f.security.AddUserRole(ctx, f.users["bob"].UserID, site.RoleID))
	require.NoError(t, f.eval.AssignRole(ctx, f.step, uuid.Nil, site.RoleID))

	assert.True(t, f.can(t, "bob", f.step, uuid.Nil, 5))
	assert.False(t, f.can(t, "bob", f.step, uuid.Nil, 6))
}

func TestCanUserApprove_SourcePoints(t *testing.T) {
	f := newSecurityFixture(t)
	ctx := context.Background()

	own := types.NewSourcePoint("approve", types.SourcePointStandard)
	own.Security = &types.StepSecurity{Users: types.SecurityOnlyAssigned}
	inherit := types.NewSourcePoint("reject", types.SourcePointStandard)

	// Condition steps carry no security of their own.
	cond := &types.WorkflowStep{
		StepWorkflowID: f.step.StepWorkflowID,
		StepName:       "route",
		StepType:       types.StepTypeCondition,
		Definition:     types.StepDefinition{SourcePoints: []types.SourcePoint{own, inherit}},
	}
	require.NoError(t, f.graph.AddStep(ctx, cond))
	require.NoError(t, f.eval.AssignUser(ctx, cond, own.GUID, f.users["bob"].UserID))

	assert.True(t, f.can(t, "bob", cond, own.GUID, 0))
	assert.False(t, f.can(t, "alice", cond, own.GUID, 0))
	assert.False(t, f.can(t, "bob", cond, inherit.GUID, 0), "inheriting a step without security denies")
	assert.False(t, f.can(t, "bob", cond, uuid.Nil, 0))
	assert.True(t, f.can(t, "dave", cond, inherit.GUID, 0))

	_, err := f.eval.CanUserApprove(ctx, nil, f.users["bob"], cond, uuid.New(), 0)
	assert.ErrorIs(t, err, types.ErrSourcePointNotFound)
	assert.ErrorIs(t, f.eval.AssignUser(ctx, cond, uuid.New(), f.users["bob"].UserID), types.ErrSourcePointNotFound)
}

func TestCanUserApprove_ScopeMemoizes(t *testing.T) {
	f := newSecurityFixture(t)
	ctx := context.Background()
	scope := NewApprovalScope()
	alice := f.users["alice"]

	ok, err := f.eval.CanUserApprove(ctx, scope, alice, f.step, uuid.Nil, 0)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, f.eval.UnassignUser(ctx, f.step, uuid.Nil, alice.UserID))
	ok, err = f.eval.CanUserApprove(ctx, scope, alice, f.step, uuid.Nil, 0)
	require.NoError(t, err)
	assert.True(t, ok, "answer is served from the scope")
	assert.Equal(t, 1, scope.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ApprovalCacheHitsTotal))

	ok, err = f.eval.CanUserApprove(ctx, NewApprovalScope(), alice, f.step, uuid.Nil, 0)
	require.NoError(t, err)
	assert.False(t, ok, "a fresh scope sees the change")
}

func TestCanUserApprove_ZeroValueScope(t *testing.T) {
	f := newSecurityFixture(t)
	scope := &ApprovalScope{}

	ok, err := f.eval.CanUserApprove(context.Background(), scope, f.users["alice"], f.step, uuid.Nil, 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, scope.Len())
}

func TestCanUserApprove_Errors(t *testing.T) {
	f := newSecurityFixture(t)
	ctx := context.Background()

	_, err := f.eval.CanUserApprove(ctx, nil, nil, f.step, uuid.Nil, 0)
	assert.ErrorIs(t, err, types.ErrNoUser)

	denied := NewEvaluator(f.workflows, f.security, Config{Gate: denyGate{}})
	_, err = denied.CanUserApprove(ctx, nil, f.users["dave"], f.step, uuid.Nil, 0)
	var licErr *types.LicenseError
	require.ErrorAs(t, err, &licErr)
	assert.Equal(t, types.FeatureWorkflow, licErr.Feature)
}

func TestUsersWhoCanApprove_AgreesWithCanUserApprove(t *testing.T) {
	f := newSecurityFixture(t)
	ctx := context.Background()

	all := []string{"administrator", "alice", "bob", "carol", "dave", "erin"}
	admin, err := f.security.GetUserByName(ctx, "administrator")
	require.NoError(t, err)
	f.users["administrator"] = admin

	for _, mode := range []struct{ users, roles types.SecurityMode }{
		{types.SecurityOnlyAssigned, types.SecurityOnlyAssigned},
		{types.SecurityAllExceptAssigned, types.SecurityOnlyAssigned},
		{types.SecurityAllExceptAssigned, types.SecurityAllExceptAssigned},
		{types.SecurityOnlyAssigned, types.SecurityAllExceptAssigned},
	} {
		f.setSecurity(t, mode.users, mode.roles)

		var want []string
		for _, name := range all {
			if f.can(t, name, f.step, uuid.Nil, 0) {
				want = append(want, name)
			}
		}
		got, err := f.eval.UsersWhoCanApprove(ctx, f.step, uuid.Nil, 0, ApproverOptions{IncludeRoles: true})
		require.NoError(t, err)
		names := make([]string, len(got))
		for i, u := range got {
			names[i] = u.UserName
		}
		sort.Strings(names)
		assert.Equal(t, want, names, "users=%s roles=%s", mode.users, mode.roles)
	}
}

func TestUsersWhoCanApprove_NamesOnlyWithoutRoles(t *testing.T) {
	f := newSecurityFixture(t)
	ctx := context.Background()

	got, err := f.eval.UsersWhoCanApprove(ctx, f.step, uuid.Nil, 0, ApproverOptions{})
	require.NoError(t, err)
	names := make([]string, len(got))
	for i, u := range got {
		names[i] = u.UserName
	}
	assert.Equal(t, []string{"administrator", "alice", "dave", "erin"}, names)

	start, err := f.graph.CreateWorkflow(ctx, &types.Workflow{Name: "auto", Kind: types.WorkflowKindAutomation})
	require.NoError(t, err)
	got, err = f.eval.UsersWhoCanApprove(ctx, start[0], uuid.Nil, 0, ApproverOptions{IncludeRoles: true})
	require.NoError(t, err)
	names = names[:0]
	for _, u := range got {
		names = append(names, u.UserName)
	}
	assert.Equal(t, []string{"administrator", "erin"}, names, "steps without security list managers only")
}
