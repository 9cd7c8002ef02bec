package types

import (
	"context"

	"github.com/google/uuid"
)

// ObjectRef identifies an object that owns version history.
type ObjectRef struct {
	ObjectType string
	ObjectID   int64
	SiteID     int64
}

// VersionStore persists version history entries.
type VersionStore interface {
	// GetVersion returns ErrNotFound when the entry does not exist.
	GetVersion(ctx context.Context, versionID int64) (*VersionHistoryEntry, error)

	// GetLatestVersion returns the entry with the highest VersionID for the
	// object, or ErrNotFound when it has no history.
	GetLatestVersion(ctx context.Context, objectType string, objectID int64) (*VersionHistoryEntry, error)

	// ListVersions returns the object's history, newest first.
	ListVersions(ctx context.Context, objectType string, objectID int64) ([]*VersionHistoryEntry, error)

	CountVersions(ctx context.Context, objectType string, objectID int64) (int, error)

	// ListVersionIDs returns IDs of major (or minor) entries, newest first.
	ListVersionIDs(ctx context.Context, objectType string, objectID int64, major bool) ([]int64, error)

	// InsertVersion assigns v.VersionID.
	InsertVersion(ctx context.Context, v *VersionHistoryEntry) error
	UpdateVersion(ctx context.Context, v *VersionHistoryEntry) error

	// DeleteVersion removes one entry. Callers detach check-out references
	// first.
	DeleteVersion(ctx context.Context, versionID int64) error

	// DeleteObjectVersions removes the whole history of an object.
	DeleteObjectVersions(ctx context.Context, objectType string, objectID int64) (int64, error)

	// ReparentVersions moves history rows from oldID to newID.
	ReparentVersions(ctx context.Context, objectType string, oldID, newID int64) (int64, error)

	// ListRecycleBin returns deleted entries for a site; a negative siteID
	// lists every site.
	ListRecycleBin(ctx context.Context, siteID int64) ([]*VersionHistoryEntry, error)

	// ListVersionedObjects returns every object that owns history.
	ListVersionedObjects(ctx context.Context) ([]ObjectRef, error)
}

// ApplyRequest replays a serialized snapshot into the object store.
type ApplyRequest struct {
	VersionXML      string
	BinaryXML       string
	ProcessChildren bool
	// SiteID overrides the snapshot's site when non-zero.
	SiteID int64
	// SiteBindings are added to the object when non-nil.
	SiteBindings []int64
}

// ObjectStore is the live object collaborator.
type ObjectStore interface {
	GetObject(ctx context.Context, objectType string, objectID int64) (*VersionedObject, error)

	// SaveObject inserts the object when ObjectID is 0, assigning an ID and
	// GUID, and updates it otherwise. Checkout state is not written.
	SaveObject(ctx context.Context, obj *VersionedObject) error

	// DeleteObject removes the object, its children and its site bindings.
	DeleteObject(ctx context.Context, objectType string, objectID int64) error

	ListChildren(ctx context.Context, parentID int64) ([]*VersionedObject, error)

	SetCheckout(ctx context.Context, objectType string, objectID int64, state CheckoutState) error

	// ClearCheckoutReferences nulls every CheckedOutVersionID pointing at
	// versionID and returns the number of objects touched.
	ClearCheckoutReferences(ctx context.Context, versionID int64) (int64, error)

	// ApplySnapshot updates the object named by the snapshot, or inserts it
	// under a new ID when it no longer exists, and returns the result.
	ApplySnapshot(ctx context.Context, req ApplyRequest) (*VersionedObject, error)

	GetSite(ctx context.Context, siteID int64) (*Site, error)
}

// Repository combines the stores used by the version manager.
// InTx runs fn inside a transaction; a repository already inside one runs
// fn directly in it.
type Repository interface {
	VersionStore
	ObjectStore
	InTx(ctx context.Context, fn func(Repository) error) error
}

// WorkflowStore persists workflows, steps and transitions.
type WorkflowStore interface {
	CreateWorkflow(ctx context.Context, wf *Workflow) error
	GetWorkflow(ctx context.Context, workflowID int64) (*Workflow, error)
	ListWorkflows(ctx context.Context) ([]*Workflow, error)

	InsertStep(ctx context.Context, step *WorkflowStep) error
	UpdateStep(ctx context.Context, step *WorkflowStep) error
	GetStep(ctx context.Context, stepID int64) (*WorkflowStep, error)
	// ListSteps orders by StepOrder then StepID.
	ListSteps(ctx context.Context, workflowID int64) ([]*WorkflowStep, error)
	// DeleteStep removes the step with its transitions and bindings.
	DeleteStep(ctx context.Context, stepID int64) error

	InsertTransition(ctx context.Context, t *WorkflowTransition) error
	GetTransition(ctx context.Context, transitionID int64) (*WorkflowTransition, error)
	DeleteTransition(ctx context.Context, transitionID int64) error
	ListTransitions(ctx context.Context, workflowID int64) ([]*WorkflowTransition, error)
	ListOutgoingTransitions(ctx context.Context, stepID int64) ([]*WorkflowTransition, error)
	// CountOutgoingTransitions counts transitions leaving the step; a nil
	// guid counts every source point.
	CountOutgoingTransitions(ctx context.Context, stepID int64, guid *uuid.UUID) (int, error)
}

// WorkflowRepository is a WorkflowStore with transactions.
type WorkflowRepository interface {
	WorkflowStore
	InTx(ctx context.Context, fn func(WorkflowRepository) error) error
}

// ApproverCriteria is the resolved security of a step or source point,
// turned by the store into an IN / NOT IN predicate over users.
type ApproverCriteria struct {
	StepID          int64
	SourcePointGUID uuid.UUID
	SiteID          int64
	// ManageResource grants approval to holders of its manage permission.
	ManageResource string
	// ManagersOnly is set when no step security applies.
	ManagersOnly bool
	Security     StepSecurity
	// IncludeRoles adds the role predicate when combining with OR.
	IncludeRoles bool
}

// SecurityStore resolves users, roles and step assignments.
type SecurityStore interface {
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, userID int64) (*User, error)
	GetUserByName(ctx context.Context, name string) (*User, error)
	GrantPermission(ctx context.Context, userID int64, p Permission) error

	CreateRole(ctx context.Context, r *Role) error
	GetRoleByName(ctx context.Context, name string, siteID int64) (*Role, error)
	AddUserRole(ctx context.Context, userID, roleID int64) error
	// UserRoleIDs returns the user's roles on the site plus global roles.
	UserRoleIDs(ctx context.Context, userID, siteID int64) ([]int64, error)

	CreateSite(ctx context.Context, s *Site) error
	GetSiteByName(ctx context.Context, name string) (*Site, error)

	AddStepUser(ctx context.Context, b StepUser) error
	RemoveStepUser(ctx context.Context, b StepUser) error
	AddStepRole(ctx context.Context, b StepRole) error
	RemoveStepRole(ctx context.Context, b StepRole) error
	IsUserAssigned(ctx context.Context, stepID, userID int64, guid uuid.UUID) (bool, error)
	StepRoleIDs(ctx context.Context, stepID int64, guid uuid.UUID) ([]int64, error)

	// FindApprovers returns users matching the criteria, ordered by name.
	FindApprovers(ctx context.Context, c ApproverCriteria) ([]*User, error)
}
