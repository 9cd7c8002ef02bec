package types

import (
	"fmt"
	"strings"
)

// PrivilegeLevel is the coarse privilege of a user account.
type PrivilegeLevel int

// Privilege levels. Values are persisted; do not reorder.
const (
	PrivilegeNone PrivilegeLevel = iota
	PrivilegeEditor
	PrivilegeAdmin
	PrivilegeGlobalAdmin
)

func (p PrivilegeLevel) String() string {
	switch p {
	case PrivilegeEditor:
		return "editor"
	case PrivilegeAdmin:
		return "admin"
	case PrivilegeGlobalAdmin:
		return "global-admin"
	}
	return "none"
}

// ParsePrivilegeLevel maps a level name to its value.
func ParsePrivilegeLevel(s string) (PrivilegeLevel, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return PrivilegeNone, nil
	case "editor":
		return PrivilegeEditor, nil
	case "admin":
		return PrivilegeAdmin, nil
	case "global-admin":
		return PrivilegeGlobalAdmin, nil
	}
	return PrivilegeNone, fmt.Errorf("%w: privilege %q", ErrInvalidData, s)
}

// Permission resources and names.
const (
	ResourceWorkflow   = "cms.workflow"
	ResourceAutomation = "cms.automation"
	PermissionManage   = "manage"
)

// Permission is a (resource, name) grant.
type Permission struct {
	Resource string
	Name     string
}

func (p Permission) String() string {
	return p.Resource + ":" + p.Name
}

// ParsePermission parses "resource:name".
func ParsePermission(s string) (Permission, error) {
	res, name, ok := strings.Cut(s, ":")
	if !ok || res == "" || name == "" {
		return Permission{}, fmt.Errorf("%w: permission %q", ErrInvalidData, s)
	}
	return Permission{Resource: res, Name: name}, nil
}

// User is an acting identity.
type User struct {
	UserID      int64
	UserName    string
	Privilege   PrivilegeLevel
	Permissions []Permission
}

// IsGlobalAdmin reports whether the user holds the global admin privilege.
func (u *User) IsGlobalAdmin() bool {
	return u.Privilege >= PrivilegeGlobalAdmin
}

// IsAdmin reports whether the user holds at least the admin privilege.
func (u *User) IsAdmin() bool {
	return u.Privilege >= PrivilegeAdmin
}

// HasPermission reports whether the user was granted the permission.
func (u *User) HasPermission(resource, name string) bool {
	for _, p := range u.Permissions {
		if strings.EqualFold(p.Resource, resource) && strings.EqualFold(p.Name, name) {
			return true
		}
	}
	return false
}

// Role groups users per site. SiteID 0 is a global role.
type Role struct {
	RoleID   int64
	RoleName string
	SiteID   int64
}

// Site scopes settings, roles and objects.
type Site struct {
	SiteID   int64
	SiteName string
}
