package workflow

import (
	"context"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"

	"github.com/mesh-intelligence/folio/internal/metrics"
	"github.com/mesh-intelligence/folio/pkg/types"
)

// Evaluator decides who may approve a workflow step.
type Evaluator struct {
	workflows types.WorkflowStore
	security  types.SecurityStore
	gate      types.FeatureGate
	metrics   *metrics.Metrics
}

// NewEvaluator creates an evaluator. Events in cfg are not used.
func NewEvaluator(workflows types.WorkflowStore, security types.SecurityStore, cfg Config) *Evaluator {
	return &Evaluator{workflows: workflows, security: security, gate: cfg.Gate, metrics: cfg.Metrics}
}

// resolveSecurity picks the security that governs approval through guid and
// the binding key its assignments are stored under. ok is false when
// nothing restricts the step, in which case only managers approve.
func resolveSecurity(step *types.WorkflowStep, guid uuid.UUID) (sec types.StepSecurity, bindKey uuid.UUID, ok bool, err error) {
	if guid != uuid.Nil {
		sp, found := step.SourcePoint(guid)
		if !found {
			return sec, uuid.Nil, false, fmt.Errorf("step %q, source point %s: %w", step.StepName, guid, types.ErrSourcePointNotFound)
		}
		if sp.Security != nil {
			return types.NewStepSecurity(sp.Security.Users, sp.Security.Roles), guid, true, nil
		}
	}
	if !step.StepType.AllowsSecurity() {
		return sec, uuid.Nil, false, nil
	}
	return step.Security, uuid.Nil, true, nil
}

func isManager(u *types.User, wf *types.Workflow) bool {
	return u.IsAdmin() || u.HasPermission(wf.Kind.ManageResource(), types.PermissionManage)
}

// CanUserApprove reports whether user may approve step, or the step's exit
// guid when guid is not uuid.Nil, on the given site. Managers of the
// workflow kind and admins always may. Answers are memoized in scope.
func (e *Evaluator) CanUserApprove(ctx context.Context, scope *ApprovalScope, user *types.User,
	step *types.WorkflowStep, guid uuid.UUID, siteID int64) (bool, error) {
	if user == nil {
		return false, types.ErrNoUser
	}
	key := approvalKey{userID: user.UserID, stepID: step.StepID, guid: guid, siteID: siteID}
	if allowed, ok := scope.get(key); ok {
		e.metrics.RecordApproval(allowed, true)
		return allowed, nil
	}

	wf, err := e.workflows.GetWorkflow(ctx, step.StepWorkflowID)
	if err != nil {
		return false, err
	}
	if err := types.CheckFeature(ctx, e.gate, featureFor(wf.Kind)); err != nil {
		return false, err
	}

	allowed, err := e.evaluate(ctx, user, wf, step, guid, siteID)
	if err != nil {
		return false, err
	}
	scope.put(key, allowed)
	e.metrics.RecordApproval(allowed, false)
	return allowed, nil
}

func (e *Evaluator) evaluate(ctx context.Context, user *types.User, wf *types.Workflow,
	step *types.WorkflowStep, guid uuid.UUID, siteID int64) (bool, error) {
	if isManager(user, wf) {
		return true, nil
	}
	sec, bindKey, ok, err := resolveSecurity(step, guid)
	if err != nil || !ok {
		return false, err
	}

	assigned, err := e.security.IsUserAssigned(ctx, step.StepID, user.UserID, bindKey)
	if err != nil {
		return false, err
	}
	usersResult := assigned
	if sec.Users == types.SecurityAllExceptAssigned {
		usersResult = !assigned
	}

	// AND when users are excluded by name, OR otherwise. Roles are only
	// queried when usersResult leaves the answer open.
	combineAnd := sec.Users == types.SecurityAllExceptAssigned
	if combineAnd && !usersResult {
		return false, nil
	}
	if !combineAnd && usersResult {
		return true, nil
	}
	return e.rolesResult(ctx, user, step.StepID, bindKey, siteID, sec.Roles)
}

func (e *Evaluator) rolesResult(ctx context.Context, user *types.User, stepID int64, bindKey uuid.UUID,
	siteID int64, mode types.SecurityMode) (bool, error) {
	stepRoles, err := e.security.StepRoleIDs(ctx, stepID, bindKey)
	if err != nil {
		return false, err
	}
	inRole := false
	if len(stepRoles) > 0 {
		userRoles, err := e.security.UserRoleIDs(ctx, user.UserID, siteID)
		if err != nil {
			return false, err
		}
		shared := mapset.NewThreadUnsafeSet(stepRoles...).Intersect(mapset.NewThreadUnsafeSet(userRoles...))
		inRole = shared.Cardinality() > 0
	}
	if mode == types.SecurityAllExceptAssigned {
		return !inRole, nil
	}
	return inRole, nil
}

// ApproverOptions tunes UsersWhoCanApprove.
type ApproverOptions struct {
	// IncludeRoles adds members of assigned roles when assignments combine
	// with OR. Without it only users assigned by name are returned besides
	// the managers.
	IncludeRoles bool
}

// UsersWhoCanApprove lists the users who may approve step through guid on
// the given site, ordered by name. Managers and admins are always listed.
func (e *Evaluator) UsersWhoCanApprove(ctx context.Context, step *types.WorkflowStep, guid uuid.UUID,
	siteID int64, opts ApproverOptions) ([]*types.User, error) {
	wf, err := e.workflows.GetWorkflow(ctx, step.StepWorkflowID)
	if err != nil {
		return nil, err
	}
	if err := types.CheckFeature(ctx, e.gate, featureFor(wf.Kind)); err != nil {
		return nil, err
	}
	sec, bindKey, ok, err := resolveSecurity(step, guid)
	if err != nil {
		return nil, err
	}
	return e.security.FindApprovers(ctx, types.ApproverCriteria{
		StepID:          step.StepID,
		SourcePointGUID: bindKey,
		SiteID:          siteID,
		ManageResource:  wf.Kind.ManageResource(),
		ManagersOnly:    !ok,
		Security:        sec,
		IncludeRoles:    opts.IncludeRoles,
	})
}

// AssignUser lets a user approve step, or its exit guid.
func (e *Evaluator) AssignUser(ctx context.Context, step *types.WorkflowStep, guid uuid.UUID, userID int64) error {
	if err := checkSourcePoint(step, guid); err != nil {
		return err
	}
	return e.security.AddStepUser(ctx, types.StepUser{StepID: step.StepID, UserID: userID, SourcePointGUID: guid})
}

// UnassignUser removes a user assignment.
func (e *Evaluator) UnassignUser(ctx context.Context, step *types.WorkflowStep, guid uuid.UUID, userID int64) error {
	return e.security.RemoveStepUser(ctx, types.StepUser{StepID: step.StepID, UserID: userID, SourcePointGUID: guid})
}

// AssignRole lets members of a role approve step, or its exit guid.
func (e *Evaluator) AssignRole(ctx context.Context, step *types.WorkflowStep, guid uuid.UUID, roleID int64) error {
	if err := checkSourcePoint(step, guid); err != nil {
		return err
	}
	return e.security.AddStepRole(ctx, types.StepRole{StepID: step.StepID, RoleID: roleID, SourcePointGUID: guid})
}

// UnassignRole removes a role assignment.
func (e *Evaluator) UnassignRole(ctx context.Context, step *types.WorkflowStep, guid uuid.UUID, roleID int64) error {
	return e.security.RemoveStepRole(ctx, types.StepRole{StepID: step.StepID, RoleID: roleID, SourcePointGUID: guid})
}

func checkSourcePoint(step *types.WorkflowStep, guid uuid.UUID) error {
	if guid == uuid.Nil {
		return nil
	}
	if _, ok := step.SourcePoint(guid); !ok {
		return fmt.Errorf("step %q, source point %s: %w", step.StepName, guid, types.ErrSourcePointNotFound)
	}
	return nil
}
