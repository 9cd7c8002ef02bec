package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/folio/pkg/types"
)

// AddStepUser assigns a user to a step or one of its source points.
func (s *Store) AddStepUser(ctx context.Context, b types.StepUser) error {
	_, err := s.q.ExecContext(ctx,
		"INSERT OR IGNORE INTO workflow_step_users (step_id, user_id, source_point_guid) VALUES (?, ?, ?)",
		b.StepID, b.UserID, guidKey(b.SourcePointGUID))
	if err != nil {
		return fmt.Errorf("assigning user %d to step %d: %w", b.UserID, b.StepID, err)
	}
	return nil
}

// RemoveStepUser drops a user assignment.
func (s *Store) RemoveStepUser(ctx context.Context, b types.StepUser) error {
	res, err := s.q.ExecContext(ctx,
		"DELETE FROM workflow_step_users WHERE step_id = ? AND user_id = ? AND source_point_guid = ?",
		b.StepID, b.UserID, guidKey(b.SourcePointGUID))
	if err != nil {
		return fmt.Errorf("removing user %d from step %d: %w", b.UserID, b.StepID, err)
	}
	return requireAffected(res, fmt.Sprintf("user %d on step %d", b.UserID, b.StepID))
}

// AddStepRole assigns a role to a step or one of its source points.
func (s *Store) AddStepRole(ctx context.Context, b types.StepRole) error {
	_, err := s.q.ExecContext(ctx,
		"INSERT OR IGNORE INTO workflow_step_roles (step_id, role_id, source_point_guid) VALUES (?, ?, ?)",
		b.StepID, b.RoleID, guidKey(b.SourcePointGUID))
	if err != nil {
		return fmt.Errorf("assigning role %d to step %d: %w", b.RoleID, b.StepID, err)
	}
	return nil
}

// RemoveStepRole drops a role assignment.
func (s *Store) RemoveStepRole(ctx context.Context, b types.StepRole) error {
	res, err := s.q.ExecContext(ctx,
		"DELETE FROM workflow_step_roles WHERE step_id = ? AND role_id = ? AND source_point_guid = ?",
		b.StepID, b.RoleID, guidKey(b.SourcePointGUID))
	if err != nil {
		return fmt.Errorf("removing role %d from step %d: %w", b.RoleID, b.StepID, err)
	}
	return requireAffected(res, fmt.Sprintf("role %d on step %d", b.RoleID, b.StepID))
}

// IsUserAssigned reports whether the user is bound to the step and source
// point.
func (s *Store) IsUserAssigned(ctx context.Context, stepID, userID int64, guid uuid.UUID) (bool, error) {
	var n int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM workflow_step_users
         WHERE step_id = ? AND user_id = ? AND source_point_guid = ?`,
		stepID, userID, guidKey(guid)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking assignment of user %d: %w", userID, err)
	}
	return n > 0, nil
}

// StepRoleIDs returns the roles bound to the step and source point.
func (s *Store) StepRoleIDs(ctx context.Context, stepID int64, guid uuid.UUID) ([]int64, error) {
	return s.queryIDs(ctx,
		`SELECT role_id FROM workflow_step_roles
         WHERE step_id = ? AND source_point_guid = ? ORDER BY role_id`,
		stepID, guidKey(guid))
}

// FindApprovers turns the criteria into one query. Holders of the manage
// permission and admins always match. Assigned users and assigned role
// members are combined with AND when users are excluded by assignment and
// with OR otherwise; the role predicate joins an OR only when IncludeRoles
// is set.
func (s *Store) FindApprovers(ctx context.Context, c types.ApproverCriteria) ([]*types.User, error) {
	where, args := approverPredicate(c)
	rows, err := s.q.QueryContext(ctx,
		"SELECT u.user_id, u.user_name, u.privilege FROM users u WHERE "+where+" ORDER BY u.user_name",
		args...)
	if err != nil {
		return nil, fmt.Errorf("finding approvers of step %d: %w", c.StepID, err)
	}

	var users []*types.User
	for rows.Next() {
		u, err := hydrateUser(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("hydrating user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating approvers: %w", err)
	}
	rows.Close()

	for _, u := range users {
		if u.Permissions, err = s.permissions(ctx, u.UserID); err != nil {
			return nil, err
		}
	}
	return users, nil
}

func approverPredicate(c types.ApproverCriteria) (string, []any) {
	managers := `(u.privilege >= ? OR u.user_id IN (
        SELECT user_id FROM user_permissions WHERE lower(resource) = lower(?) AND lower(permission) = ?))`
	args := []any{int(types.PrivilegeAdmin), c.ManageResource, types.PermissionManage}
	if c.ManagersOnly {
		return managers, args
	}

	guid := guidKey(c.SourcePointGUID)

	usersPred := fmt.Sprintf(`u.user_id %s (
        SELECT user_id FROM workflow_step_users WHERE step_id = ? AND source_point_guid = ?)`,
		membership(c.Security.Users))
	usersArgs := []any{c.StepID, guid}

	rolesPred := fmt.Sprintf(`u.user_id %s (
        SELECT ur.user_id FROM user_roles ur JOIN roles r ON r.role_id = ur.role_id
        WHERE (r.site_id = 0 OR r.site_id = ?) AND ur.role_id IN (
            SELECT role_id FROM workflow_step_roles WHERE step_id = ? AND source_point_guid = ?))`,
		membership(c.Security.Roles))
	rolesArgs := []any{c.SiteID, c.StepID, guid}

	var assigned string
	switch {
	case c.Security.Users == types.SecurityAllExceptAssigned:
		assigned = "(" + usersPred + " AND " + rolesPred + ")"
		args = append(append(args, usersArgs...), rolesArgs...)
	case c.IncludeRoles:
		assigned = "(" + usersPred + " OR " + rolesPred + ")"
		args = append(append(args, usersArgs...), rolesArgs...)
	default:
		assigned = usersPred
		args = append(args, usersArgs...)
	}
	return strings.Join([]string{managers, assigned}, " OR "), args
}

func membership(m types.SecurityMode) string {
	if m == types.SecurityAllExceptAssigned {
		return "NOT IN"
	}
	return "IN"
}
