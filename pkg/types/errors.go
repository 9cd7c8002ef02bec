package types

import (
	"errors"
	"fmt"
)

// Backend lifecycle errors.
var (
	ErrBackendDetached = errors.New("backend is detached")
	ErrAlreadyAttached = errors.New("backend is already attached")
)

// Store errors.
var (
	ErrNotFound          = errors.New("entity not found")
	ErrInvalidID         = errors.New("invalid entity ID")
	ErrInvalidData       = errors.New("invalid entity data")
	ErrDuplicateName     = errors.New("name already exists")
	ErrUnknownObjectType = errors.New("unknown object type")
	ErrInvalidSnapshot   = errors.New("invalid version snapshot")

	ErrVersioningUnsupported = errors.New("object type does not support versioning")
)

// Context errors.
var (
	ErrNoUser = errors.New("no user in context")
)

// Workflow errors.
var (
	ErrInvalidWorkflowKind  = errors.New("invalid workflow kind")
	ErrInvalidStepType      = errors.New("invalid step type")
	ErrInvalidSecurityMode  = errors.New("invalid security mode")
	ErrSourcePointNotFound  = errors.New("source point not found on step")
	ErrDuplicateTransition  = errors.New("step already has an outgoing transition")
	ErrStepWorkflowMismatch = errors.New("steps belong to different workflows")
)

// Check-out state machine errors, carried by *VersioningError.
var (
	ErrAlreadyCheckedOut = errors.New("object is already checked out")
	ErrNotCheckedOut     = errors.New("object is not checked out")
	ErrNotCheckoutOwner  = errors.New("object is checked out by another user")
)

// VersioningError reports a violated check-out/check-in precondition.
type VersioningError struct {
	Op         string
	ObjectType string
	ObjectID   int64
	Err        error
}

func (e *VersioningError) Error() string {
	return fmt.Sprintf("%s %s %d: %v", e.Op, e.ObjectType, e.ObjectID, e.Err)
}

func (e *VersioningError) Unwrap() error {
	return e.Err
}
