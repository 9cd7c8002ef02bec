package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/folio/pkg/types"
)

// CreateWorkflow inserts a workflow definition.
func (s *Store) CreateWorkflow(ctx context.Context, wf *types.Workflow) error {
	if wf.Name == "" {
		return types.ErrInvalidData
	}
	if _, err := types.ParseWorkflowKind(string(wf.Kind)); err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx,
		"INSERT INTO workflows (name, display_name, kind, basic) VALUES (?, ?, ?, ?)",
		wf.Name, wf.DisplayName, string(wf.Kind), boolToInt(wf.Basic))
	if err != nil {
		return fmt.Errorf("inserting workflow %q: %w", wf.Name, uniqueViolation(err))
	}
	if wf.WorkflowID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("reading workflow ID: %w", err)
	}
	return nil
}

// GetWorkflow retrieves a workflow by ID.
func (s *Store) GetWorkflow(ctx context.Context, workflowID int64) (*types.Workflow, error) {
	if workflowID <= 0 {
		return nil, types.ErrInvalidID
	}
	row := s.q.QueryRowContext(ctx,
		"SELECT workflow_id, name, display_name, kind, basic FROM workflows WHERE workflow_id = ?", workflowID)
	wf, err := hydrateWorkflow(row)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("workflow %d", workflowID))
	}
	return wf, nil
}

// ListWorkflows returns all workflows ordered by name.
func (s *Store) ListWorkflows(ctx context.Context) ([]*types.Workflow, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT workflow_id, name, display_name, kind, basic FROM workflows ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing workflows: %w", err)
	}
	defer rows.Close()

	var wfs []*types.Workflow
	for rows.Next() {
		wf, err := hydrateWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("hydrating workflow: %w", err)
		}
		wfs = append(wfs, wf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating workflows: %w", err)
	}
	return wfs, nil
}

const stepColumns = `step_id, workflow_id, step_name, display_name, step_type, step_order,
    definition, users_security, roles_security`

// InsertStep persists a step and assigns its StepID.
func (s *Store) InsertStep(ctx context.Context, step *types.WorkflowStep) error {
	if step.StepWorkflowID <= 0 || step.StepName == "" {
		return types.ErrInvalidData
	}
	def, err := json.Marshal(step.Definition)
	if err != nil {
		return fmt.Errorf("marshaling step definition: %w", err)
	}
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO workflow_steps (workflow_id, step_name, display_name, step_type, step_order,
            definition, users_security, roles_security)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		step.StepWorkflowID, step.StepName, step.DisplayName, int(step.StepType), step.StepOrder,
		string(def), int(step.Security.Users), int(step.Security.Roles))
	if err != nil {
		return fmt.Errorf("inserting step %q: %w", step.StepName, err)
	}
	if step.StepID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("reading step ID: %w", err)
	}
	return nil
}

// UpdateStep rewrites a step in place.
func (s *Store) UpdateStep(ctx context.Context, step *types.WorkflowStep) error {
	if step.StepID <= 0 {
		return types.ErrInvalidID
	}
	def, err := json.Marshal(step.Definition)
	if err != nil {
		return fmt.Errorf("marshaling step definition: %w", err)
	}
	res, err := s.q.ExecContext(ctx,
		`UPDATE workflow_steps SET step_name = ?, display_name = ?, step_type = ?, step_order = ?,
            definition = ?, users_security = ?, roles_security = ?
         WHERE step_id = ?`,
		step.StepName, step.DisplayName, int(step.StepType), step.StepOrder,
		string(def), int(step.Security.Users), int(step.Security.Roles), step.StepID)
	if err != nil {
		return fmt.Errorf("updating step %d: %w", step.StepID, err)
	}
	return requireAffected(res, fmt.Sprintf("step %d", step.StepID))
}

// GetStep retrieves a step by ID.
func (s *Store) GetStep(ctx context.Context, stepID int64) (*types.WorkflowStep, error) {
	if stepID <= 0 {
		return nil, types.ErrInvalidID
	}
	row := s.q.QueryRowContext(ctx,
		"SELECT "+stepColumns+" FROM workflow_steps WHERE step_id = ?", stepID)
	step, err := hydrateStep(row)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("step %d", stepID))
	}
	return step, nil
}

// ListSteps returns a workflow's steps ordered by StepOrder then StepID.
func (s *Store) ListSteps(ctx context.Context, workflowID int64) ([]*types.WorkflowStep, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT "+stepColumns+" FROM workflow_steps WHERE workflow_id = ? ORDER BY step_order, step_id",
		workflowID)
	if err != nil {
		return nil, fmt.Errorf("listing steps: %w", err)
	}
	defer rows.Close()

	var steps []*types.WorkflowStep
	for rows.Next() {
		step, err := hydrateStep(rows)
		if err != nil {
			return nil, fmt.Errorf("hydrating step: %w", err)
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating steps: %w", err)
	}
	return steps, nil
}

// DeleteStep removes a step. Transitions and user/role bindings cascade.
func (s *Store) DeleteStep(ctx context.Context, stepID int64) error {
	res, err := s.q.ExecContext(ctx, "DELETE FROM workflow_steps WHERE step_id = ?", stepID)
	if err != nil {
		return fmt.Errorf("deleting step %d: %w", stepID, err)
	}
	return requireAffected(res, fmt.Sprintf("step %d", stepID))
}

const transitionColumns = `transition_id, start_step_id, end_step_id, workflow_id,
    source_point_guid, transition_type`

// InsertTransition persists a transition and assigns its TransitionID.
func (s *Store) InsertTransition(ctx context.Context, t *types.WorkflowTransition) error {
	if t.StartStepID <= 0 || t.EndStepID <= 0 || t.WorkflowID <= 0 {
		return types.ErrInvalidData
	}
	if t.TransitionType == "" {
		t.TransitionType = types.TransitionManual
	}
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO workflow_transitions (start_step_id, end_step_id, workflow_id, source_point_guid, transition_type)
         VALUES (?, ?, ?, ?, ?)`,
		t.StartStepID, t.EndStepID, t.WorkflowID, guidKey(t.SourcePointGUID), string(t.TransitionType))
	if err != nil {
		return fmt.Errorf("inserting transition: %w", err)
	}
	if t.TransitionID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("reading transition ID: %w", err)
	}
	return nil
}

// GetTransition retrieves a transition by ID.
func (s *Store) GetTransition(ctx context.Context, transitionID int64) (*types.WorkflowTransition, error) {
	if transitionID <= 0 {
		return nil, types.ErrInvalidID
	}
	row := s.q.QueryRowContext(ctx,
		"SELECT "+transitionColumns+" FROM workflow_transitions WHERE transition_id = ?", transitionID)
	t, err := hydrateTransition(row)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("transition %d", transitionID))
	}
	return t, nil
}

// DeleteTransition removes a transition.
func (s *Store) DeleteTransition(ctx context.Context, transitionID int64) error {
	res, err := s.q.ExecContext(ctx, "DELETE FROM workflow_transitions WHERE transition_id = ?", transitionID)
	if err != nil {
		return fmt.Errorf("deleting transition %d: %w", transitionID, err)
	}
	return requireAffected(res, fmt.Sprintf("transition %d", transitionID))
}

// ListTransitions returns a workflow's transitions ordered by ID.
func (s *Store) ListTransitions(ctx context.Context, workflowID int64) ([]*types.WorkflowTransition, error) {
	return s.queryTransitions(ctx,
		"SELECT "+transitionColumns+" FROM workflow_transitions WHERE workflow_id = ? ORDER BY transition_id",
		workflowID)
}

// ListOutgoingTransitions returns the transitions leaving a step.
func (s *Store) ListOutgoingTransitions(ctx context.Context, stepID int64) ([]*types.WorkflowTransition, error) {
	return s.queryTransitions(ctx,
		"SELECT "+transitionColumns+" FROM workflow_transitions WHERE start_step_id = ? ORDER BY transition_id",
		stepID)
}

// CountOutgoingTransitions counts transitions leaving a step, restricted to
// one source point when guid is non-nil.
func (s *Store) CountOutgoingTransitions(ctx context.Context, stepID int64, guid *uuid.UUID) (int, error) {
	query := "SELECT COUNT(*) FROM workflow_transitions WHERE start_step_id = ?"
	args := []any{stepID}
	if guid != nil {
		query += " AND source_point_guid = ?"
		args = append(args, guidKey(*guid))
	}
	var n int
	if err := s.q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting transitions of step %d: %w", stepID, err)
	}
	return n, nil
}

func (s *Store) queryTransitions(ctx context.Context, query string, args ...any) ([]*types.WorkflowTransition, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying transitions: %w", err)
	}
	defer rows.Close()

	var ts []*types.WorkflowTransition
	for rows.Next() {
		t, err := hydrateTransition(rows)
		if err != nil {
			return nil, fmt.Errorf("hydrating transition: %w", err)
		}
		ts = append(ts, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transitions: %w", err)
	}
	return ts, nil
}

func hydrateWorkflow(row rowScanner) (*types.Workflow, error) {
	var wf types.Workflow
	var kind string
	var basic int
	if err := row.Scan(&wf.WorkflowID, &wf.Name, &wf.DisplayName, &kind, &basic); err != nil {
		return nil, err
	}
	wf.Kind = types.WorkflowKind(kind)
	wf.Basic = basic != 0
	return &wf, nil
}

func hydrateStep(row rowScanner) (*types.WorkflowStep, error) {
	var step types.WorkflowStep
	var stepType, users, roles int
	var def string
	if err := row.Scan(&step.StepID, &step.StepWorkflowID, &step.StepName, &step.DisplayName,
		&stepType, &step.StepOrder, &def, &users, &roles); err != nil {
		return nil, err
	}
	step.StepType = types.StepType(stepType)
	step.Security = types.NewStepSecurity(types.SecurityMode(users), types.SecurityMode(roles))
	if def != "" {
		if err := json.Unmarshal([]byte(def), &step.Definition); err != nil {
			return nil, fmt.Errorf("parsing step definition: %w", err)
		}
	}
	return &step, nil
}

func hydrateTransition(row rowScanner) (*types.WorkflowTransition, error) {
	var t types.WorkflowTransition
	var guid, typ string
	if err := row.Scan(&t.TransitionID, &t.StartStepID, &t.EndStepID, &t.WorkflowID, &guid, &typ); err != nil {
		return nil, err
	}
	g, err := parseGUIDKey(guid)
	if err != nil {
		return nil, err
	}
	t.SourcePointGUID = g
	t.TransitionType = types.TransitionType(typ)
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
