// Package workflow builds workflow step graphs and decides who may approve a
// step.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/folio/internal/metrics"
	"github.com/mesh-intelligence/folio/pkg/types"
)

const eventSource = "WorkflowStepGraph"

// Config carries the collaborators shared by Graph and Evaluator.
type Config struct {
	Gate    types.FeatureGate
	Events  types.EventLog
	Metrics *metrics.Metrics
}

// Graph edits the steps and transitions of workflows.
type Graph struct {
	repo    types.WorkflowRepository
	gate    types.FeatureGate
	events  types.EventLog
	metrics *metrics.Metrics
}

// NewGraph creates a graph editor over repo.
func NewGraph(repo types.WorkflowRepository, cfg Config) *Graph {
	g := &Graph{repo: repo, gate: cfg.Gate, events: cfg.Events, metrics: cfg.Metrics}
	if g.events == nil {
		g.events = types.NopEventLog{}
	}
	return g
}

// featureFor is the licensed feature guarding workflows of the given kind.
func featureFor(kind types.WorkflowKind) types.Feature {
	if kind == types.WorkflowKindAutomation {
		return types.FeatureAutomation
	}
	return types.FeatureWorkflow
}

// CreateWorkflow stores wf and generates its default steps:
//
//	approval, basic:    Edit, Published, Archived ordered 1, 2, 3
//	approval, advanced: the same steps joined by manual transitions
//	automation:         Start joined to Finished by an automatic transition
func (g *Graph) CreateWorkflow(ctx context.Context, wf *types.Workflow) ([]*types.WorkflowStep, error) {
	defer g.metrics.ObserveOperation("create_workflow", time.Now())
	kind, err := types.ParseWorkflowKind(string(wf.Kind))
	if err != nil {
		return nil, err
	}
	wf.Kind = kind
	if kind == types.WorkflowKindAutomation {
		wf.Basic = false
	}
	if err := types.CheckFeature(ctx, g.gate, featureFor(kind)); err != nil {
		return nil, err
	}

	var steps []*types.WorkflowStep
	err = g.repo.InTx(ctx, func(r types.WorkflowRepository) error {
		if err := r.CreateWorkflow(ctx, wf); err != nil {
			return err
		}
		steps = defaultSteps(wf)
		for _, s := range steps {
			if err := r.InsertStep(ctx, s); err != nil {
				return err
			}
		}
		if wf.Basic {
			return nil
		}

		typ := types.TransitionManual
		if kind == types.WorkflowKindAutomation {
			typ = types.TransitionAutomatic
		}
		for i := 0; i+1 < len(steps); i++ {
			t := &types.WorkflowTransition{
				StartStepID:    steps[i].StepID,
				EndStepID:      steps[i+1].StepID,
				WorkflowID:     wf.WorkflowID,
				TransitionType: typ,
			}
			if err := r.InsertTransition(ctx, t); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		g.events.LogException(eventSource, "CREATEWORKFLOW", err)
		return nil, err
	}
	return steps, nil
}

func defaultSteps(wf *types.Workflow) []*types.WorkflowStep {
	type def struct {
		name string
		typ  types.StepType
	}
	defs := []def{
		{"edit", types.StepTypeDocumentEdit},
		{"published", types.StepTypeDocumentPublished},
		{"archived", types.StepTypeDocumentArchived},
	}
	if wf.Kind == types.WorkflowKindAutomation {
		defs = []def{
			{"start", types.StepTypeStart},
			{"finished", types.StepTypeFinished},
		}
	}

	steps := make([]*types.WorkflowStep, len(defs))
	for i, d := range defs {
		steps[i] = &types.WorkflowStep{
			StepWorkflowID: wf.WorkflowID,
			StepName:       d.name,
			DisplayName:    d.typ.String(),
			StepType:       d.typ,
			Security:       types.NewStepSecurity(types.SecurityDefault, types.SecurityDefault),
		}
		if wf.Basic {
			steps[i].StepOrder = i + 1
		}
	}
	return steps
}

// AddStep appends a step to an existing workflow. Basic workflows place it
// after the last ordered step.
func (g *Graph) AddStep(ctx context.Context, step *types.WorkflowStep) error {
	if step.StepType == types.StepTypeUndefined {
		return types.ErrInvalidStepType
	}
	step.Security = types.NewStepSecurity(step.Security.Users, step.Security.Roles)
	return g.repo.InTx(ctx, func(r types.WorkflowRepository) error {
		wf, err := r.GetWorkflow(ctx, step.StepWorkflowID)
		if err != nil {
			return err
		}
		if wf.Basic && step.StepOrder == 0 {
			steps, err := r.ListSteps(ctx, wf.WorkflowID)
			if err != nil {
				return err
			}
			for _, s := range steps {
				if s.StepOrder >= step.StepOrder {
					step.StepOrder = s.StepOrder + 1
				}
			}
		}
		return r.InsertStep(ctx, step)
	})
}

// SetSecurity replaces the approval policy of a step. Steps whose type
// carries no security reject it with ErrInvalidStepType.
func (g *Graph) SetSecurity(ctx context.Context, stepID int64, users, roles types.SecurityMode) (*types.WorkflowStep, error) {
	var step *types.WorkflowStep
	err := g.repo.InTx(ctx, func(r types.WorkflowRepository) error {
		var err error
		if step, err = r.GetStep(ctx, stepID); err != nil {
			return err
		}
		if !step.StepType.AllowsSecurity() {
			return fmt.Errorf("step %q of type %s: %w", step.StepName, step.StepType, types.ErrInvalidStepType)
		}
		step.Security = types.NewStepSecurity(users, roles)
		return r.UpdateStep(ctx, step)
	})
	if err != nil {
		return nil, err
	}
	return step, nil
}

// Steps returns a workflow's steps in display order.
func (g *Graph) Steps(ctx context.Context, workflowID int64) ([]*types.WorkflowStep, error) {
	return g.repo.ListSteps(ctx, workflowID)
}

// Transitions returns a workflow's transitions.
func (g *Graph) Transitions(ctx context.Context, workflowID int64) ([]*types.WorkflowTransition, error) {
	return g.repo.ListTransitions(ctx, workflowID)
}

// ConnectSteps adds a transition leaving startStepID through the source
// point guid. uuid.Nil on a step that declares source points selects its
// first non-timeout exit.
func (g *Graph) ConnectSteps(ctx context.Context, startStepID int64, guid uuid.UUID, endStepID int64,
	typ types.TransitionType) (*types.WorkflowTransition, error) {
	var t *types.WorkflowTransition
	err := g.repo.InTx(ctx, func(r types.WorkflowRepository) error {
		start, err := r.GetStep(ctx, startStepID)
		if err != nil {
			return err
		}
		end, err := r.GetStep(ctx, endStepID)
		if err != nil {
			return err
		}
		if start.StepWorkflowID != end.StepWorkflowID {
			return fmt.Errorf("connecting step %d to %d: %w", start.StepID, end.StepID, types.ErrStepWorkflowMismatch)
		}

		if guid == uuid.Nil && start.HasSourcePoints() {
			sp, ok := start.FirstNonTimeoutSourcePoint()
			if !ok {
				return fmt.Errorf("step %q: %w", start.StepName, types.ErrSourcePointNotFound)
			}
			guid = sp.GUID
		}
		if err := validateStepIntegrity(ctx, r, start, guid); err != nil {
			return err
		}

		t = &types.WorkflowTransition{
			StartStepID:     start.StepID,
			EndStepID:       end.StepID,
			WorkflowID:      start.StepWorkflowID,
			SourcePointGUID: guid,
			TransitionType:  typ,
		}
		return r.InsertTransition(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ValidateStepIntegrity checks that a new transition may leave step through
// guid. A non-branching step allows one outgoing transition in total; a
// branching step allows one per declared source point.
func (g *Graph) ValidateStepIntegrity(ctx context.Context, step *types.WorkflowStep, guid uuid.UUID) error {
	return validateStepIntegrity(ctx, g.repo, step, guid)
}

func validateStepIntegrity(ctx context.Context, r types.WorkflowStore, step *types.WorkflowStep, guid uuid.UUID) error {
	var filter *uuid.UUID
	if step.IsBranching() {
		if _, ok := step.SourcePoint(guid); !ok {
			return fmt.Errorf("step %q, source point %s: %w", step.StepName, guid, types.ErrSourcePointNotFound)
		}
		filter = &guid
	}
	n, err := r.CountOutgoingTransitions(ctx, step.StepID, filter)
	if err != nil {
		return err
	}
	if n > 0 {
		if filter != nil {
			return fmt.Errorf("step %q, source point %s: %w", step.StepName, guid, types.ErrDuplicateTransition)
		}
		return fmt.Errorf("step %q: %w", step.StepName, types.ErrDuplicateTransition)
	}
	return nil
}

// Disconnect removes a transition.
func (g *Graph) Disconnect(ctx context.Context, transitionID int64) error {
	return g.repo.DeleteTransition(ctx, transitionID)
}

// DeleteStep removes a step together with its transitions and approver
// bindings.
func (g *Graph) DeleteStep(ctx context.Context, stepID int64) error {
	return g.repo.DeleteStep(ctx, stepID)
}

// NextSteps returns the steps reachable from stepID in one move. Basic
// workflows follow StepOrder; the others follow transitions.
func (g *Graph) NextSteps(ctx context.Context, stepID int64) ([]*types.WorkflowStep, error) {
	step, err := g.repo.GetStep(ctx, stepID)
	if err != nil {
		return nil, err
	}
	wf, err := g.repo.GetWorkflow(ctx, step.StepWorkflowID)
	if err != nil {
		return nil, err
	}

	if wf.Basic {
		steps, err := g.repo.ListSteps(ctx, wf.WorkflowID)
		if err != nil {
			return nil, err
		}
		for _, s := range steps {
			if s.StepOrder > step.StepOrder {
				return []*types.WorkflowStep{s}, nil
			}
		}
		return nil, nil
	}

	out, err := g.repo.ListOutgoingTransitions(ctx, stepID)
	if err != nil {
		return nil, err
	}
	next := make([]*types.WorkflowStep, 0, len(out))
	for _, t := range out {
		s, err := g.repo.GetStep(ctx, t.EndStepID)
		if errors.Is(err, types.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		next = append(next, s)
	}
	return next, nil
}
