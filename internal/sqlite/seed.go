package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/mesh-intelligence/folio/pkg/types"
)

// Built-in identities seeded on first startup.
const (
	AdminUserName  = "administrator"
	EditorRoleName = "editors"
)

var builtInPermissions = []types.Permission{
	{Resource: types.ResourceWorkflow, Name: types.PermissionManage},
	{Resource: types.ResourceAutomation, Name: types.PermissionManage},
}

// seedBuiltIns creates the administrator account and the global editors role
// when the users table is empty. It is a no-op on later starts.
func seedBuiltIns(db *sql.DB) error {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return fmt.Errorf("counting users: %w", err)
	}
	if count > 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning seed transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec("INSERT INTO users (user_name, privilege) VALUES (?, ?)",
		AdminUserName, int(types.PrivilegeGlobalAdmin))
	if err != nil {
		return fmt.Errorf("seeding user %s: %w", AdminUserName, err)
	}
	adminID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading seeded user ID: %w", err)
	}
	for _, p := range builtInPermissions {
		if _, err := tx.Exec(
			"INSERT INTO user_permissions (user_id, resource, permission) VALUES (?, ?, ?)",
			adminID, p.Resource, p.Name,
		); err != nil {
			return fmt.Errorf("seeding permission %s: %w", p, err)
		}
	}

	if _, err := tx.Exec("INSERT OR IGNORE INTO roles (role_name, site_id) VALUES (?, 0)", EditorRoleName); err != nil {
		return fmt.Errorf("seeding role %s: %w", EditorRoleName, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing seed transaction: %w", err)
	}
	return nil
}
