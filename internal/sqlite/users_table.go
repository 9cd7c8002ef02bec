package sqlite

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/folio/pkg/types"
)

// CreateUser inserts a user and its permissions.
func (s *Store) CreateUser(ctx context.Context, u *types.User) error {
	if u.UserName == "" {
		return types.ErrInvalidData
	}
	return s.inTx(ctx, func(tx *Store) error {
		res, err := tx.q.ExecContext(ctx,
			"INSERT INTO users (user_name, privilege) VALUES (?, ?)", u.UserName, int(u.Privilege))
		if err != nil {
			return fmt.Errorf("inserting user %q: %w", u.UserName, uniqueViolation(err))
		}
		if u.UserID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("reading user ID: %w", err)
		}
		for _, p := range u.Permissions {
			if err := tx.GrantPermission(ctx, u.UserID, p); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetUser retrieves a user with its permissions.
func (s *Store) GetUser(ctx context.Context, userID int64) (*types.User, error) {
	if userID <= 0 {
		return nil, types.ErrInvalidID
	}
	row := s.q.QueryRowContext(ctx,
		"SELECT user_id, user_name, privilege FROM users WHERE user_id = ?", userID)
	return s.loadUser(ctx, row, fmt.Sprintf("user %d", userID))
}

// GetUserByName retrieves a user by its unique name.
func (s *Store) GetUserByName(ctx context.Context, name string) (*types.User, error) {
	row := s.q.QueryRowContext(ctx,
		"SELECT user_id, user_name, privilege FROM users WHERE user_name = ?", name)
	return s.loadUser(ctx, row, fmt.Sprintf("user %q", name))
}

func (s *Store) loadUser(ctx context.Context, row rowScanner, what string) (*types.User, error) {
	u, err := hydrateUser(row)
	if err != nil {
		return nil, notFound(err, what)
	}
	if u.Permissions, err = s.permissions(ctx, u.UserID); err != nil {
		return nil, err
	}
	return u, nil
}

// GrantPermission records a (resource, permission) grant. Granting twice is
// a no-op.
func (s *Store) GrantPermission(ctx context.Context, userID int64, p types.Permission) error {
	if p.Resource == "" || p.Name == "" {
		return types.ErrInvalidData
	}
	_, err := s.q.ExecContext(ctx,
		"INSERT OR IGNORE INTO user_permissions (user_id, resource, permission) VALUES (?, ?, ?)",
		userID, p.Resource, p.Name)
	if err != nil {
		return fmt.Errorf("granting %s to user %d: %w", p, userID, err)
	}
	return nil
}

func (s *Store) permissions(ctx context.Context, userID int64) ([]types.Permission, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT resource, permission FROM user_permissions WHERE user_id = ? ORDER BY resource, permission",
		userID)
	if err != nil {
		return nil, fmt.Errorf("loading permissions: %w", err)
	}
	defer rows.Close()

	var perms []types.Permission
	for rows.Next() {
		var p types.Permission
		if err := rows.Scan(&p.Resource, &p.Name); err != nil {
			return nil, fmt.Errorf("scanning permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// CreateRole inserts a role; the name is unique per site.
func (s *Store) CreateRole(ctx context.Context, r *types.Role) error {
	if r.RoleName == "" {
		return types.ErrInvalidData
	}
	res, err := s.q.ExecContext(ctx,
		"INSERT INTO roles (role_name, site_id) VALUES (?, ?)", r.RoleName, r.SiteID)
	if err != nil {
		return fmt.Errorf("inserting role %q: %w", r.RoleName, uniqueViolation(err))
	}
	if r.RoleID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("reading role ID: %w", err)
	}
	return nil
}

// GetRoleByName looks a role up by name within a site.
func (s *Store) GetRoleByName(ctx context.Context, name string, siteID int64) (*types.Role, error) {
	var r types.Role
	err := s.q.QueryRowContext(ctx,
		"SELECT role_id, role_name, site_id FROM roles WHERE role_name = ? AND site_id = ?",
		name, siteID).Scan(&r.RoleID, &r.RoleName, &r.SiteID)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("role %q", name))
	}
	return &r, nil
}

// AddUserRole puts a user into a role.
func (s *Store) AddUserRole(ctx context.Context, userID, roleID int64) error {
	_, err := s.q.ExecContext(ctx,
		"INSERT OR IGNORE INTO user_roles (user_id, role_id) VALUES (?, ?)", userID, roleID)
	if err != nil {
		return fmt.Errorf("adding user %d to role %d: %w", userID, roleID, err)
	}
	return nil
}

// UserRoleIDs returns the user's roles on siteID plus its global roles.
func (s *Store) UserRoleIDs(ctx context.Context, userID, siteID int64) ([]int64, error) {
	return s.queryIDs(ctx,
		`SELECT ur.role_id FROM user_roles ur JOIN roles r ON r.role_id = ur.role_id
         WHERE ur.user_id = ? AND (r.site_id = 0 OR r.site_id = ?)
         ORDER BY ur.role_id`,
		userID, siteID)
}

// CreateSite inserts a site.
func (s *Store) CreateSite(ctx context.Context, site *types.Site) error {
	if site.SiteName == "" {
		return types.ErrInvalidData
	}
	res, err := s.q.ExecContext(ctx, "INSERT INTO sites (site_name) VALUES (?)", site.SiteName)
	if err != nil {
		return fmt.Errorf("inserting site %q: %w", site.SiteName, uniqueViolation(err))
	}
	if site.SiteID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("reading site ID: %w", err)
	}
	return nil
}

// GetSite retrieves a site by ID.
func (s *Store) GetSite(ctx context.Context, siteID int64) (*types.Site, error) {
	var site types.Site
	err := s.q.QueryRowContext(ctx,
		"SELECT site_id, site_name FROM sites WHERE site_id = ?", siteID).Scan(&site.SiteID, &site.SiteName)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("site %d", siteID))
	}
	return &site, nil
}

// GetSiteByName retrieves a site by its unique name.
func (s *Store) GetSiteByName(ctx context.Context, name string) (*types.Site, error) {
	var site types.Site
	err := s.q.QueryRowContext(ctx,
		"SELECT site_id, site_name FROM sites WHERE site_name = ?", name).Scan(&site.SiteID, &site.SiteName)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("site %q", name))
	}
	return &site, nil
}

func (s *Store) queryIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying IDs: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning ID: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating IDs: %w", err)
	}
	return ids, nil
}

func hydrateUser(row rowScanner) (*types.User, error) {
	var u types.User
	var privilege int
	if err := row.Scan(&u.UserID, &u.UserName, &privilege); err != nil {
		return nil, err
	}
	u.Privilege = types.PrivilegeLevel(privilege)
	return &u, nil
}
