package types

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// WorkflowKind selects the default step graph and the permission that
// bypasses step security.
type WorkflowKind string

// Workflow kinds.
const (
	WorkflowKindApproval   WorkflowKind = "approval"
	WorkflowKindAutomation WorkflowKind = "automation"
)

// ParseWorkflowKind validates a kind name.
func ParseWorkflowKind(s string) (WorkflowKind, error) {
	switch WorkflowKind(strings.ToLower(s)) {
	case WorkflowKindApproval:
		return WorkflowKindApproval, nil
	case WorkflowKindAutomation:
		return WorkflowKindAutomation, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidWorkflowKind, s)
}

// ManageResource is the permission resource whose "manage" permission lets a
// user approve any step of a workflow of this kind.
func (k WorkflowKind) ManageResource() string {
	if k == WorkflowKindAutomation {
		return ResourceAutomation
	}
	return ResourceWorkflow
}

// Workflow is a workflow definition owning steps and transitions.
type Workflow struct {
	WorkflowID  int64
	Name        string
	DisplayName string
	Kind        WorkflowKind
	// Basic marks a linear approval workflow where StepOrder implies flow
	// and no explicit transitions exist.
	Basic bool
}

// StepType enumerates workflow step kinds.
type StepType int

// Step types. Values are persisted; do not reorder.
const (
	StepTypeUndefined StepType = iota
	StepTypeStart
	StepTypeDocumentEdit
	StepTypeDocumentPublished
	StepTypeDocumentArchived
	StepTypeStandard
	StepTypeAction
	StepTypeFinished
	StepTypeNote
	StepTypeMultichoice
	StepTypeCondition
	StepTypeUserchoice
	StepTypeWait
	StepTypeMultichoiceFirstWin
)

var stepTypeNames = map[StepType]string{
	StepTypeUndefined:           "undefined",
	StepTypeStart:               "start",
	StepTypeDocumentEdit:        "edit",
	StepTypeDocumentPublished:   "published",
	StepTypeDocumentArchived:    "archived",
	StepTypeStandard:            "standard",
	StepTypeAction:              "action",
	StepTypeFinished:            "finished",
	StepTypeNote:                "note",
	StepTypeMultichoice:         "multichoice",
	StepTypeCondition:           "condition",
	StepTypeUserchoice:          "userchoice",
	StepTypeWait:                "wait",
	StepTypeMultichoiceFirstWin: "multichoice-first-win",
}

func (t StepType) String() string {
	if n, ok := stepTypeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("steptype(%d)", int(t))
}

// ParseStepType maps a step type name back to its value.
func ParseStepType(s string) (StepType, error) {
	for t, n := range stepTypeNames {
		if n == strings.ToLower(s) {
			return t, nil
		}
	}
	return StepTypeUndefined, fmt.Errorf("%w: %q", ErrInvalidStepType, s)
}

// AllowsSecurity reports whether approvers can be configured on the step
// itself. Steps that do not allow it can still carry source points with
// their own security.
func (t StepType) AllowsSecurity() bool {
	switch t {
	case StepTypeDocumentEdit, StepTypeDocumentPublished, StepTypeDocumentArchived,
		StepTypeStandard, StepTypeMultichoice, StepTypeMultichoiceFirstWin,
		StepTypeUserchoice:
		return true
	}
	return false
}

// AllowsBranching reports whether the step exits through declared source
// points rather than a single implicit exit.
func (t StepType) AllowsBranching() bool {
	switch t {
	case StepTypeCondition, StepTypeMultichoice, StepTypeMultichoiceFirstWin,
		StepTypeUserchoice, StepTypeWait:
		return true
	}
	return false
}

// SecurityMode is the inclusion policy for assigned users or roles.
type SecurityMode int

// Security modes. Default is resolved to OnlyAssigned by NewStepSecurity.
const (
	SecurityDefault SecurityMode = iota
	SecurityOnlyAssigned
	SecurityAllExceptAssigned
)

func (m SecurityMode) String() string {
	switch m {
	case SecurityOnlyAssigned:
		return "only-assigned"
	case SecurityAllExceptAssigned:
		return "all-except-assigned"
	}
	return "default"
}

// ParseSecurityMode maps a mode name to its value.
func ParseSecurityMode(s string) (SecurityMode, error) {
	switch strings.ToLower(s) {
	case "", "default":
		return SecurityDefault, nil
	case "only-assigned":
		return SecurityOnlyAssigned, nil
	case "all-except-assigned":
		return SecurityAllExceptAssigned, nil
	}
	return SecurityDefault, fmt.Errorf("%w: %q", ErrInvalidSecurityMode, s)
}

// StepSecurity holds resolved user and role policies. Neither field is ever
// SecurityDefault once built by NewStepSecurity.
type StepSecurity struct {
	Users SecurityMode
	Roles SecurityMode
}

// NewStepSecurity resolves SecurityDefault to SecurityOnlyAssigned.
func NewStepSecurity(users, roles SecurityMode) StepSecurity {
	return StepSecurity{Users: resolveMode(users), Roles: resolveMode(roles)}
}

func resolveMode(m SecurityMode) SecurityMode {
	if m == SecurityAllExceptAssigned {
		return m
	}
	return SecurityOnlyAssigned
}

// SourcePointType classifies an exit of a branching step.
type SourcePointType string

// Source point types.
const (
	SourcePointStandard      SourcePointType = "standard"
	SourcePointSwitchCase    SourcePointType = "case"
	SourcePointSwitchDefault SourcePointType = "default"
	SourcePointTimeout       SourcePointType = "timeout"
)

// SourcePoint is a named exit on a branching step.
type SourcePoint struct {
	GUID  uuid.UUID       `json:"guid"`
	Name  string          `json:"name"`
	Label string          `json:"label,omitempty"`
	Type  SourcePointType `json:"type"`
	// Security overrides the step's settings; nil inherits them.
	Security *StepSecurity `json:"security,omitempty"`
}

// NewSourcePoint builds a source point with a fresh GUID.
func NewSourcePoint(name string, typ SourcePointType) SourcePoint {
	return SourcePoint{GUID: uuid.Must(uuid.NewV7()), Name: name, Type: typ}
}

// StepDefinition is the serialized definition of a step.
type StepDefinition struct {
	SourcePoints []SourcePoint `json:"source_points,omitempty"`
}

// WorkflowStep is a node of the workflow graph.
type WorkflowStep struct {
	StepID         int64
	StepWorkflowID int64
	StepName       string
	DisplayName    string
	StepType       StepType
	// StepOrder orders steps of basic workflows; 0 otherwise.
	StepOrder  int
	Definition StepDefinition
	Security   StepSecurity
}

// SourcePoint returns the declared source point with the given GUID.
func (s *WorkflowStep) SourcePoint(guid uuid.UUID) (*SourcePoint, bool) {
	for i := range s.Definition.SourcePoints {
		if s.Definition.SourcePoints[i].GUID == guid {
			return &s.Definition.SourcePoints[i], true
		}
	}
	return nil, false
}

// FirstNonTimeoutSourcePoint returns the first declared exit that is not a
// timeout.
func (s *WorkflowStep) FirstNonTimeoutSourcePoint() (*SourcePoint, bool) {
	for i := range s.Definition.SourcePoints {
		if s.Definition.SourcePoints[i].Type != SourcePointTimeout {
			return &s.Definition.SourcePoints[i], true
		}
	}
	return nil, false
}

// HasSourcePoints reports whether the step declares any exits.
func (s *WorkflowStep) HasSourcePoints() bool {
	return len(s.Definition.SourcePoints) > 0
}

// IsBranching reports whether outgoing transitions are counted per source
// point.
func (s *WorkflowStep) IsBranching() bool {
	return s.StepType.AllowsBranching() || s.HasSourcePoints()
}

// TransitionType selects whether a transition fires on user action.
type TransitionType string

// Transition types.
const (
	TransitionManual    TransitionType = "manual"
	TransitionAutomatic TransitionType = "automatic"
)

// WorkflowTransition is a directed edge between two steps.
type WorkflowTransition struct {
	TransitionID    int64
	StartStepID     int64
	EndStepID       int64
	WorkflowID      int64
	SourcePointGUID uuid.UUID // uuid.Nil for non-branching steps.
	TransitionType  TransitionType
}

// StepUser binds a user to a step or source point for approval.
type StepUser struct {
	StepID          int64
	UserID          int64
	SourcePointGUID uuid.UUID
}

// StepRole binds a role to a step or source point for approval.
type StepRole struct {
	StepID          int64
	RoleID          int64
	SourcePointGUID uuid.UUID
}
