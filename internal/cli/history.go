package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/folio/internal/versioning"
	"github.com/mesh-intelligence/folio/pkg/types"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and manage version history",
	}
	cmd.AddCommand(
		newHistoryListCmd(),
		newHistoryShowCmd(),
		newHistoryRollbackCmd(),
		newHistoryRestoreCmd(),
		newHistoryDestroyCmd(),
		newHistoryPruneCmd(),
		newHistoryExportCmd(),
		newHistoryImportCmd(),
		newRecycleBinCmd(),
	)
	return cmd
}

func printEntries(cmd *cobra.Command, entries []*types.VersionHistoryEntry, empty string) error {
	return emit(cmd, entries, func(w io.Writer) {
		if len(entries) == 0 {
			fmt.Fprintln(w, empty)
			return
		}
		rows := make([][]string, len(entries))
		for i, e := range entries {
			deleted := ""
			if e.IsDeleted() {
				deleted = formatTime(e.DeletedWhen)
			}
			rows[i] = []string{
				strconv.FormatInt(e.VersionID, 10),
				e.ObjectType,
				strconv.FormatInt(e.ObjectID, 10),
				e.ObjectName,
				e.VersionNumber,
				strconv.FormatInt(e.ModifiedByUserID, 10),
				formatTime(e.ModifiedWhen),
				deleted,
				e.VersionComment,
			}
		}
		printTable(w, []string{"ENTRY", "TYPE", "OBJECT", "NAME", "VERSION", "BY", "MODIFIED", "DELETED", "COMMENT"}, rows)
	})
}

func newHistoryListCmd() *cobra.Command {
	var objectType string
	cmd := &cobra.Command{
		Use:   "list <object-id>",
		Short: "List the version history of an object, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("object ID", args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, func(s *session) error {
				entries, err := s.versions.GetObjectHistory(s.ctx, objectType, id)
				if err != nil {
					return err
				}
				return printEntries(cmd, entries, "No versions found.")
			})
		},
	}
	typeFlag(cmd, &objectType)
	return cmd
}

func newHistoryShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <entry-id>",
		Short: "Show one version and the object state it captured",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("entry ID", args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, func(s *session) error {
				entry, err := s.versions.GetVersion(s.ctx, id)
				if err != nil {
					return err
				}
				snap, err := types.UnmarshalSnapshot(entry.VersionXML)
				if err != nil {
					return err
				}
				obj := snap.Object()
				if obj.BinaryData, err = types.UnmarshalBinaryData(entry.VersionBinaryDataXML); err != nil {
					return err
				}
				out := struct {
					Entry  *types.VersionHistoryEntry
					Object *types.VersionedObject
				}{entry, obj}
				return emit(cmd, out, func(w io.Writer) {
					fmt.Fprintf(w, "Version %s of %s %d (entry %d) by user %d at %s\n",
						entry.VersionNumber, entry.ObjectType, entry.ObjectID, entry.VersionID,
						entry.ModifiedByUserID, formatTime(entry.ModifiedWhen))
					if entry.VersionComment != "" {
						fmt.Fprintf(w, "Comment: %s\n", entry.VersionComment)
					}
					if entry.IsDeleted() {
						fmt.Fprintf(w, "Deleted by user %d at %s\n", entry.DeletedByUserID, formatTime(entry.DeletedWhen))
					}
					printObject(w, obj)
				})
			})
		},
	}
}

func newHistoryRollbackCmd() *cobra.Command {
	var noChildren, noNewVersion bool
	cmd := &cobra.Command{
		Use:   "rollback <entry-id>",
		Short: "Restore an object to the state captured by a version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("entry ID", args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, func(s *session) error {
				obj, err := s.versions.RollbackVersion(s.ctx, id, !noChildren, !noNewVersion)
				if err != nil {
					return err
				}
				return emit(cmd, obj, func(w io.Writer) {
					fmt.Fprintf(w, "Rolled %s %d back to entry %d\n", obj.ObjectType, obj.ObjectID, id)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&noChildren, "no-children", false, "leave child objects untouched")
	cmd.Flags().BoolVar(&noNewVersion, "no-new-version", false, "do not record the rollback as a new version")
	return cmd
}

func newHistoryRestoreCmd() *cobra.Command {
	var (
		siteID     int64
		noChildren bool
	)
	cmd := &cobra.Command{
		Use:   "restore <entry-id>",
		Short: "Restore a deleted object from the recycle bin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("entry ID", args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, func(s *session) error {
				obj, err := s.versions.RestoreObject(s.ctx, id, siteID, !noChildren)
				if err != nil {
					return err
				}
				return emit(cmd, obj, func(w io.Writer) {
					fmt.Fprintf(w, "Restored %s %q as object %d\n", obj.ObjectType, obj.Name, obj.ObjectID)
				})
			})
		},
	}
	cmd.Flags().Int64Var(&siteID, "site", 0, "site to bind a restored global object to")
	cmd.Flags().BoolVar(&noChildren, "no-children", false, "do not restore child objects")
	return cmd
}

func newHistoryDestroyCmd() *cobra.Command {
	var (
		objectType string
		all        bool
	)
	cmd := &cobra.Command{
		Use:   "destroy <entry-id> | --all <object-id>",
		Short: "Permanently remove a version or an object's whole history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			what := "entry ID"
			if all {
				what = "object ID"
			}
			id, err := parseID(what, args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, func(s *session) error {
				if !all {
					if err := s.versions.DestroyVersion(s.ctx, id); err != nil {
						return err
					}
					return emit(cmd, map[string]int64{"destroyed": 1}, func(w io.Writer) {
						fmt.Fprintf(w, "Destroyed entry %d\n", id)
					})
				}
				n, err := s.versions.DestroyObjectHistory(s.ctx, objectType, id)
				if err != nil {
					return err
				}
				return emit(cmd, map[string]int64{"destroyed": n}, func(w io.Writer) {
					fmt.Fprintf(w, "Destroyed %d entries of %s %d\n", n, objectType, id)
				})
			})
		},
	}
	typeFlag(cmd, &objectType)
	cmd.Flags().BoolVar(&all, "all", false, "destroy every entry of the object")
	return cmd
}

func newHistoryPruneCmd() *cobra.Command {
	var (
		objectType string
		objectID   int64
		watch      bool
	)
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Trim version history to the configured lengths",
		Long: "Prune removes the oldest minor and major versions beyond\n" +
			"VersionHistoryLength and MajorVersionHistoryLength, resolved per site.\n" +
			"Without --id every object with history is pruned. --watch keeps\n" +
			"pruning on the configured prune.interval until interrupted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				if objectID != 0 {
					return pruneOne(cmd, s, objectType, objectID)
				}
				task := versioning.NewPruneTask(s.versions, s.cfg.GetDuration(cfgKeyPruneEvery), s.events.Logger())
				if watch {
					ctx, stop := signal.NotifyContext(s.ctx, os.Interrupt, syscall.SIGTERM)
					defer stop()
					task.Run(ctx)
					return nil
				}
				if msg := task.Execute(s.ctx); msg != "" {
					return errors.New(msg)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Prune completed")
				return nil
			})
		},
	}
	typeFlag(cmd, &objectType)
	cmd.Flags().Int64Var(&objectID, "id", 0, "prune a single object")
	cmd.Flags().BoolVar(&watch, "watch", false, "run on the configured interval until interrupted")
	return cmd
}

func pruneOne(cmd *cobra.Command, s *session, objectType string, objectID int64) error {
	obj, err := s.store.GetObject(s.ctx, objectType, objectID)
	if err != nil {
		return err
	}
	siteName := ""
	if obj.SiteID != 0 {
		site, err := s.store.GetSite(s.ctx, obj.SiteID)
		if err != nil {
			return err
		}
		siteName = site.SiteName
	}
	n, err := s.versions.DeleteOlderVersions(s.ctx, objectType, objectID, siteName)
	if err != nil {
		return err
	}
	return emit(cmd, map[string]int{"removed": n}, func(w io.Writer) {
		fmt.Fprintf(w, "Removed %d entries of %s %d\n", n, objectType, objectID)
	})
}

func newHistoryExportCmd() *cobra.Command {
	var (
		objectType string
		objectID   int64
	)
	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Write version history to a JSON Lines archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				var ref *types.ObjectRef
				if objectID != 0 {
					ref = &types.ObjectRef{ObjectType: objectType, ObjectID: objectID}
				}
				n, err := s.store.ExportHistory(s.ctx, args[0], ref)
				if err != nil {
					return err
				}
				return emit(cmd, map[string]int{"exported": n}, func(w io.Writer) {
					fmt.Fprintf(w, "Exported %d entries to %s\n", n, args[0])
				})
			})
		},
	}
	typeFlag(cmd, &objectType)
	cmd.Flags().Int64Var(&objectID, "id", 0, "export a single object")
	return cmd
}

func newHistoryImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Load version history from a JSON Lines archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				n, err := s.store.ImportHistory(s.ctx, args[0])
				if err != nil {
					return err
				}
				return emit(cmd, map[string]int{"imported": n}, func(w io.Writer) {
					fmt.Fprintf(w, "Imported %d entries from %s\n", n, args[0])
				})
			})
		},
	}
}

func newRecycleBinCmd() *cobra.Command {
	var siteID int64
	cmd := &cobra.Command{
		Use:   "recycle-bin",
		Short: "List deleted objects that can be restored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				entries, err := s.versions.GetRecycleBin(s.ctx, siteID)
				if err != nil {
					return err
				}
				return printEntries(cmd, entries, "Recycle bin is empty.")
			})
		},
	}
	cmd.Flags().Int64Var(&siteID, "site", 0, "site ID")
	return cmd
}
