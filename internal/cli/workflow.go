package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/folio/pkg/types"
)

func newWorkflowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Define workflows and their step graphs",
	}
	cmd.AddCommand(
		newWorkflowCreateCmd(),
		newWorkflowListCmd(),
		newWorkflowStepsCmd(),
		newWorkflowAddStepCmd(),
		newWorkflowSecureCmd(),
		newWorkflowConnectCmd(),
		newWorkflowDisconnectCmd(),
		newWorkflowNextCmd(),
	)
	return cmd
}

func newWorkflowCreateCmd() *cobra.Command {
	var (
		kind  string
		basic bool
		title string
	)
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a workflow with its default steps",
		Long: "Approval workflows start with edit, published and archived steps; basic ones\n" +
			"are ordered, advanced ones are joined by manual transitions. Automation\n" +
			"workflows start with start and finished joined by an automatic transition.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				wf := &types.Workflow{Name: args[0], DisplayName: title, Kind: types.WorkflowKind(kind), Basic: basic}
				steps, err := s.graph.CreateWorkflow(s.ctx, wf)
				if err != nil {
					return err
				}
				out := struct {
					Workflow *types.Workflow
					Steps    []*types.WorkflowStep
				}{wf, steps}
				return emit(cmd, out, func(w io.Writer) {
					fmt.Fprintf(w, "Created %s workflow %q (id %d)\n", wf.Kind, wf.Name, wf.WorkflowID)
					printSteps(w, steps)
				})
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(types.WorkflowKindApproval), "workflow kind (approval, automation)")
	cmd.Flags().BoolVar(&basic, "basic", false, "linear approval workflow ordered by step")
	cmd.Flags().StringVar(&title, "title", "", "display name")
	return cmd
}

func newWorkflowListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workflows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				wfs, err := s.store.ListWorkflows(s.ctx)
				if err != nil {
					return err
				}
				return emit(cmd, wfs, func(w io.Writer) {
					if len(wfs) == 0 {
						fmt.Fprintln(w, "No workflows found.")
						return
					}
					rows := make([][]string, len(wfs))
					for i, wf := range wfs {
						rows[i] = []string{strconv.FormatInt(wf.WorkflowID, 10), wf.Name, string(wf.Kind), strconv.FormatBool(wf.Basic)}
					}
					printTable(w, []string{"ID", "NAME", "KIND", "BASIC"}, rows)
				})
			})
		},
	}
}

func printSteps(w io.Writer, steps []*types.WorkflowStep) {
	rows := make([][]string, len(steps))
	for i, st := range steps {
		exits := make([]string, len(st.Definition.SourcePoints))
		for j, sp := range st.Definition.SourcePoints {
			exits[j] = fmt.Sprintf("%s(%s)=%s", sp.Name, sp.Type, sp.GUID)
		}
		rows[i] = []string{
			strconv.FormatInt(st.StepID, 10),
			st.StepName,
			st.StepType.String(),
			strconv.Itoa(st.StepOrder),
			st.Security.Users.String() + "/" + st.Security.Roles.String(),
			strings.Join(exits, " "),
		}
	}
	printTable(w, []string{"ID", "NAME", "TYPE", "ORDER", "SECURITY", "EXITS"}, rows)
}

func newWorkflowStepsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "steps <workflow-id>",
		Short: "List the steps and transitions of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("workflow ID", args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, func(s *session) error {
				steps, err := s.graph.Steps(s.ctx, id)
				if err != nil {
					return err
				}
				trans, err := s.graph.Transitions(s.ctx, id)
				if err != nil {
					return err
				}
				out := struct {
					Steps       []*types.WorkflowStep
					Transitions []*types.WorkflowTransition
				}{steps, trans}
				return emit(cmd, out, func(w io.Writer) {
					printSteps(w, steps)
					if len(trans) == 0 {
						return
					}
					fmt.Fprintln(w)
					rows := make([][]string, len(trans))
					for i, t := range trans {
						exit := "-"
						if t.SourcePointGUID != uuid.Nil {
							exit = t.SourcePointGUID.String()
						}
						rows[i] = []string{strconv.FormatInt(t.TransitionID, 10), strconv.FormatInt(t.StartStepID, 10),
							exit, strconv.FormatInt(t.EndStepID, 10), string(t.TransitionType)}
					}
					printTable(w, []string{"TRANSITION", "FROM", "EXIT", "TO", "TYPE"}, rows)
				})
			})
		},
	}
}

// parseSourcePoint parses "name:type".
func parseSourcePoint(arg string) (types.SourcePoint, error) {
	name, typ, _ := strings.Cut(arg, ":")
	if name == "" {
		return types.SourcePoint{}, usagef("invalid source point %q (expected name[:type])", arg)
	}
	switch t := types.SourcePointType(typ); t {
	case "":
		return types.NewSourcePoint(name, types.SourcePointStandard), nil
	case types.SourcePointStandard, types.SourcePointSwitchCase, types.SourcePointSwitchDefault, types.SourcePointTimeout:
		return types.NewSourcePoint(name, t), nil
	}
	return types.SourcePoint{}, usagef("invalid source point type %q", typ)
}

func newWorkflowAddStepCmd() *cobra.Command {
	var (
		stepType string
		title    string
		exits    []string
		order    int
	)
	cmd := &cobra.Command{
		Use:   "add-step <workflow-id> <name>",
		Short: "Add a step to a workflow",
		Example: `  folio workflow add-step 1 review --type standard
  folio workflow add-step 2 route --type condition --exit yes:case --exit no:default --exit late:timeout`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("workflow ID", args[0])
			if err != nil {
				return err
			}
			typ, err := types.ParseStepType(stepType)
			if err != nil {
				return err
			}
			step := &types.WorkflowStep{StepWorkflowID: id, StepName: args[1], DisplayName: title, StepType: typ, StepOrder: order}
			for _, e := range exits {
				sp, err := parseSourcePoint(e)
				if err != nil {
					return err
				}
				step.Definition.SourcePoints = append(step.Definition.SourcePoints, sp)
			}
			return withSession(cmd, func(s *session) error {
				if err := s.graph.AddStep(s.ctx, step); err != nil {
					return err
				}
				return emit(cmd, step, func(w io.Writer) { printSteps(w, []*types.WorkflowStep{step}) })
			})
		},
	}
	cmd.Flags().StringVar(&stepType, "type", types.StepTypeStandard.String(), "step type")
	cmd.Flags().StringVar(&title, "title", "", "display name")
	cmd.Flags().StringArrayVar(&exits, "exit", nil, "source point as name[:standard|case|default|timeout] (repeatable)")
	cmd.Flags().IntVar(&order, "order", 0, "position in a basic workflow (default: after the last step)")
	return cmd
}

func newWorkflowSecureCmd() *cobra.Command {
	var users, roles string
	cmd := &cobra.Command{
		Use:   "secure <step-id>",
		Short: "Set how assigned users and roles are applied to a step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("step ID", args[0])
			if err != nil {
				return err
			}
			um, err := types.ParseSecurityMode(users)
			if err != nil {
				return err
			}
			rm, err := types.ParseSecurityMode(roles)
			if err != nil {
				return err
			}
			return withSession(cmd, func(s *session) error {
				step, err := s.graph.SetSecurity(s.ctx, id, um, rm)
				if err != nil {
					return err
				}
				return emit(cmd, step, func(w io.Writer) { printSteps(w, []*types.WorkflowStep{step}) })
			})
		},
	}
	cmd.Flags().StringVar(&users, "users", "default", "user policy (only-assigned, all-except-assigned)")
	cmd.Flags().StringVar(&roles, "roles", "default", "role policy (only-assigned, all-except-assigned)")
	return cmd
}

// parseGUID parses an optional source point GUID.
func parseGUID(arg string) (uuid.UUID, error) {
	if arg == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, usagef("invalid source point %q", arg)
	}
	return id, nil
}

func newWorkflowConnectCmd() *cobra.Command {
	var exit, typ string
	cmd := &cobra.Command{
		Use:   "connect <from-step-id> <to-step-id>",
		Short: "Add a transition between two steps",
		Long: "Connect adds a transition leaving the first step. Branching steps need one\n" +
			"transition per exit; without --exit the first non-timeout exit is used.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseID("step ID", args[0])
			if err != nil {
				return err
			}
			to, err := parseID("step ID", args[1])
			if err != nil {
				return err
			}
			guid, err := parseGUID(exit)
			if err != nil {
				return err
			}
			tt := types.TransitionType(typ)
			if tt != types.TransitionManual && tt != types.TransitionAutomatic {
				return usagef("invalid transition type %q", typ)
			}
			return withSession(cmd, func(s *session) error {
				t, err := s.graph.ConnectSteps(s.ctx, from, guid, to, tt)
				if err != nil {
					return err
				}
				return emit(cmd, t, func(w io.Writer) {
					fmt.Fprintf(w, "Connected step %d to %d (transition %d)\n", t.StartStepID, t.EndStepID, t.TransitionID)
				})
			})
		},
	}
	cmd.Flags().StringVar(&exit, "exit", "", "source point GUID on the first step")
	cmd.Flags().StringVar(&typ, "type", string(types.TransitionManual), "transition type (manual, automatic)")
	return cmd
}

func newWorkflowDisconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect <transition-id>",
		Short: "Remove a transition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("transition ID", args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, func(s *session) error {
				if err := s.graph.Disconnect(s.ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed transition %d\n", id)
				return nil
			})
		},
	}
}

func newWorkflowNextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "next <step-id>",
		Short: "List the steps reachable from a step in one move",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("step ID", args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, func(s *session) error {
				next, err := s.graph.NextSteps(s.ctx, id)
				if err != nil {
					return err
				}
				return emit(cmd, next, func(w io.Writer) {
					if len(next) == 0 {
						fmt.Fprintln(w, "No next steps.")
						return
					}
					printSteps(w, next)
				})
			})
		},
	}
}
