package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/folio/pkg/types"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	cmd.AddCommand(newUserAddCmd(), newUserGrantCmd())
	return cmd
}

func newUserAddCmd() *cobra.Command {
	var privilege string
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := types.ParsePrivilegeLevel(privilege)
			if err != nil {
				return err
			}
			return withSession(cmd, func(s *session) error {
				u := &types.User{UserName: args[0], Privilege: level}
				if err := s.store.CreateUser(s.ctx, u); err != nil {
					return err
				}
				return emit(cmd, u, func(w io.Writer) {
					fmt.Fprintf(w, "Created user %s (id %d, %s)\n", u.UserName, u.UserID, u.Privilege)
				})
			})
		},
	}
	cmd.Flags().StringVar(&privilege, "privilege", "editor", "privilege level (none, editor, admin, global-admin)")
	return cmd
}

func newUserGrantCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "grant <name> <resource:permission>",
		Short:   "Grant a permission to a user",
		Example: "  folio user grant dave cms.workflow:manage",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := types.ParsePermission(args[1])
			if err != nil {
				return err
			}
			return withSession(cmd, func(s *session) error {
				u, err := s.store.GetUserByName(s.ctx, args[0])
				if err != nil {
					return fmt.Errorf("user %q: %w", args[0], err)
				}
				if err := s.store.GrantPermission(s.ctx, u.UserID, p); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Granted %s to %s\n", p, u.UserName)
				return nil
			})
		},
	}
}

func newRoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Manage roles",
	}
	cmd.AddCommand(newRoleAddCmd(), newRoleAssignCmd())
	return cmd
}

func newRoleAddCmd() *cobra.Command {
	var siteID int64
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a role, global unless --site is given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				r := &types.Role{RoleName: args[0], SiteID: siteID}
				if err := s.store.CreateRole(s.ctx, r); err != nil {
					return err
				}
				return emit(cmd, r, func(w io.Writer) {
					fmt.Fprintf(w, "Created role %s (id %d, site %d)\n", r.RoleName, r.RoleID, r.SiteID)
				})
			})
		},
	}
	cmd.Flags().Int64Var(&siteID, "site", 0, "site the role belongs to")
	return cmd
}

func newRoleAssignCmd() *cobra.Command {
	var siteID int64
	cmd := &cobra.Command{
		Use:   "assign <role> <user>",
		Short: "Add a user to a role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				r, err := s.store.GetRoleByName(s.ctx, args[0], siteID)
				if err != nil {
					return fmt.Errorf("role %q: %w", args[0], err)
				}
				u, err := s.store.GetUserByName(s.ctx, args[1])
				if err != nil {
					return fmt.Errorf("user %q: %w", args[1], err)
				}
				if err := s.store.AddUserRole(s.ctx, u.UserID, r.RoleID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s to role %s\n", u.UserName, r.RoleName)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&siteID, "site", 0, "site the role belongs to")
	return cmd
}

func newSiteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "site",
		Short: "Manage sites",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <name>",
		Short: "Create a site; its name scopes settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				site := &types.Site{SiteName: args[0]}
				if err := s.store.CreateSite(s.ctx, site); err != nil {
					return err
				}
				settings := s.settings.Snapshot(site.SiteName)
				out := struct {
					Site     *types.Site
					Settings map[string]int
				}{site, settings}
				return emit(cmd, out, func(w io.Writer) {
					fmt.Fprintf(w, "Created site %s (id %d)\n", site.SiteName, site.SiteID)
					for _, name := range []string{
						types.SettingVersionHistoryLength,
						types.SettingMajorVersionHistoryLength,
						types.SettingUseLastVersionInterval,
						types.SettingPromoteToMajorInterval,
					} {
						fmt.Fprintf(w, "  %s = %d\n", name, settings[name])
					}
				})
			})
		},
	})
	return cmd
}

func newEventsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the most recent event log entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				events, err := s.store.ListEvents(s.ctx, limit)
				if err != nil {
					return err
				}
				return emit(cmd, events, func(w io.Writer) {
					if len(events) == 0 {
						fmt.Fprintln(w, "No events.")
						return
					}
					rows := make([][]string, len(events))
					for i, e := range events {
						rows[i] = []string{strconv.FormatInt(e.EventID, 10), formatTime(e.CreatedAt), e.EventType,
							e.Source, e.Code, e.UserName, e.Message}
					}
					printTable(w, []string{"ID", "WHEN", "TYPE", "SOURCE", "CODE", "USER", "MESSAGE"}, rows)
				})
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of events (0 for all)")
	return cmd
}
