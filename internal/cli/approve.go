package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/folio/internal/workflow"
	"github.com/mesh-intelligence/folio/pkg/types"
)

func newApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve",
		Short: "Decide and configure who may approve workflow steps",
	}
	cmd.AddCommand(newApproveCheckCmd(), newApproveApproversCmd(), newAssignUserCmd(), newAssignRoleCmd())
	return cmd
}

// stepTarget is the step, exit and site an approval command addresses.
type stepTarget struct {
	exit   string
	siteID int64
}

func (t *stepTarget) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&t.exit, "exit", "", "source point GUID (default: the step itself)")
	cmd.Flags().Int64Var(&t.siteID, "site", 0, "site whose roles apply")
}

func (t *stepTarget) resolve(s *session, arg string) (*types.WorkflowStep, error) {
	id, err := parseID("step ID", arg)
	if err != nil {
		return nil, err
	}
	return s.store.GetStep(s.ctx, id)
}

func newApproveCheckCmd() *cobra.Command {
	var (
		target stepTarget
		as     string
	)
	cmd := &cobra.Command{
		Use:   "check <step-id>",
		Short: "Report whether a user may approve a step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			guid, err := parseGUID(target.exit)
			if err != nil {
				return err
			}
			return withSession(cmd, func(s *session) error {
				step, err := target.resolve(s, args[0])
				if err != nil {
					return err
				}
				user := s.user
				if as != "" {
					if user, err = s.store.GetUserByName(s.ctx, as); err != nil {
						return fmt.Errorf("user %q: %w", as, err)
					}
				}
				ok, err := s.approvals.CanUserApprove(s.ctx, workflow.NewApprovalScope(), user, step, guid, target.siteID)
				if err != nil {
					return err
				}
				out := map[string]any{"user": user.UserName, "step": step.StepID, "allowed": ok}
				return emit(cmd, out, func(w io.Writer) {
					verdict := "may not"
					if ok {
						verdict = "may"
					}
					fmt.Fprintf(w, "%s %s approve step %q\n", user.UserName, verdict, step.StepName)
				})
			})
		},
	}
	target.register(cmd)
	cmd.Flags().StringVar(&as, "as", "", "user to check (default: the acting user)")
	return cmd
}

func newApproveApproversCmd() *cobra.Command {
	var (
		target  stepTarget
		noRoles bool
	)
	cmd := &cobra.Command{
		Use:   "approvers <step-id>",
		Short: "List the users who may approve a step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			guid, err := parseGUID(target.exit)
			if err != nil {
				return err
			}
			return withSession(cmd, func(s *session) error {
				step, err := target.resolve(s, args[0])
				if err != nil {
					return err
				}
				users, err := s.approvals.UsersWhoCanApprove(s.ctx, step, guid, target.siteID,
					workflow.ApproverOptions{IncludeRoles: !noRoles})
				if err != nil {
					return err
				}
				return emit(cmd, users, func(w io.Writer) {
					if len(users) == 0 {
						fmt.Fprintln(w, "No approvers.")
						return
					}
					rows := make([][]string, len(users))
					for i, u := range users {
						rows[i] = []string{strconv.FormatInt(u.UserID, 10), u.UserName, u.Privilege.String()}
					}
					printTable(w, []string{"ID", "USER", "PRIVILEGE"}, rows)
				})
			})
		},
	}
	target.register(cmd)
	cmd.Flags().BoolVar(&noRoles, "no-roles", false, "list only users assigned by name besides managers")
	return cmd
}

func newAssignUserCmd() *cobra.Command {
	var (
		target stepTarget
		remove bool
	)
	cmd := &cobra.Command{
		Use:   "assign-user <step-id> <user>",
		Short: "Assign a user to a step or exit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			guid, err := parseGUID(target.exit)
			if err != nil {
				return err
			}
			return withSession(cmd, func(s *session) error {
				step, err := target.resolve(s, args[0])
				if err != nil {
					return err
				}
				u, err := s.store.GetUserByName(s.ctx, args[1])
				if err != nil {
					return fmt.Errorf("user %q: %w", args[1], err)
				}
				if remove {
					err = s.approvals.UnassignUser(s.ctx, step, guid, u.UserID)
				} else {
					err = s.approvals.AssignUser(s.ctx, step, guid, u.UserID)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s user %s on step %q\n", assignVerb(remove), u.UserName, step.StepName)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&target.exit, "exit", "", "source point GUID (default: the step itself)")
	cmd.Flags().BoolVar(&remove, "remove", false, "remove the assignment instead")
	return cmd
}

func newAssignRoleCmd() *cobra.Command {
	var (
		target stepTarget
		remove bool
	)
	cmd := &cobra.Command{
		Use:   "assign-role <step-id> <role>",
		Short: "Assign a role to a step or exit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			guid, err := parseGUID(target.exit)
			if err != nil {
				return err
			}
			return withSession(cmd, func(s *session) error {
				step, err := target.resolve(s, args[0])
				if err != nil {
					return err
				}
				role, err := s.store.GetRoleByName(s.ctx, args[1], target.siteID)
				if err != nil {
					return fmt.Errorf("role %q: %w", args[1], err)
				}
				if remove {
					err = s.approvals.UnassignRole(s.ctx, step, guid, role.RoleID)
				} else {
					err = s.approvals.AssignRole(s.ctx, step, guid, role.RoleID)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s role %s on step %q\n", assignVerb(remove), role.RoleName, step.StepName)
				return nil
			})
		},
	}
	target.register(cmd)
	cmd.Flags().BoolVar(&remove, "remove", false, "remove the assignment instead")
	return cmd
}

func assignVerb(remove bool) string {
	if remove {
		return "Unassigned"
	}
	return "Assigned"
}
