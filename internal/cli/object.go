package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/folio/pkg/types"
)

// objectFlags are shared by object create and update.
type objectFlags struct {
	name     string
	siteID   int64
	parentID int64
	fields   map[string]string
	binaries map[string]string
	bindings []int64
}

func (f *objectFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "object name")
	cmd.Flags().Int64Var(&f.siteID, "site", 0, "owning site ID (0 for global objects)")
	cmd.Flags().Int64Var(&f.parentID, "parent", 0, "parent object ID")
	cmd.Flags().StringToStringVar(&f.fields, "field", nil, "field value as name=value (repeatable)")
	cmd.Flags().StringToStringVar(&f.binaries, "binary", nil, "binary attachment as name=path (repeatable)")
	cmd.Flags().Int64SliceVar(&f.bindings, "bind", nil, "site IDs a global object is bound to")
}

// apply copies the flags that were set onto obj.
func (f *objectFlags) apply(cmd *cobra.Command, obj *types.VersionedObject) error {
	if cmd.Flags().Changed("name") {
		obj.Name = f.name
	}
	if cmd.Flags().Changed("site") {
		obj.SiteID = f.siteID
	}
	if cmd.Flags().Changed("parent") {
		obj.ParentID = f.parentID
	}
	if cmd.Flags().Changed("bind") {
		obj.SiteBindings = f.bindings
	}
	for k, v := range f.fields {
		obj.SetField(k, v)
	}
	for k, path := range f.binaries {
		data, err := os.ReadFile(path)
		if err != nil {
			return usagef("read binary %q: %s", k, err)
		}
		if obj.BinaryData == nil {
			obj.BinaryData = make(map[string][]byte)
		}
		obj.BinaryData[k] = data
	}
	return nil
}

func parseID(what, arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, usagef("invalid %s %q", what, arg)
	}
	return id, nil
}

// typeFlag registers the --type flag used by commands addressing one object.
func typeFlag(cmd *cobra.Command, dst *string) {
	cmd.Flags().StringVar(dst, "type", types.ObjectTypePage, "object type")
}

func loadObject(s *session, objectType, arg string) (*types.VersionedObject, error) {
	id, err := parseID("object ID", arg)
	if err != nil {
		return nil, err
	}
	if _, err := s.versions.Types().Lookup(objectType); err != nil {
		return nil, fmt.Errorf("%q: %w", objectType, err)
	}
	return s.store.GetObject(s.ctx, objectType, id)
}

func newObjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "object",
		Short: "Create, edit and delete stored objects",
	}
	cmd.AddCommand(newObjectCreateCmd(), newObjectUpdateCmd(), newObjectShowCmd(), newObjectListCmd(), newObjectDeleteCmd())
	return cmd
}

func newObjectCreateCmd() *cobra.Command {
	var (
		objectType string
		f          objectFlags
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an object and record its first version",
		Example: `  folio object create --type cms.page --name home --site 1 --field body=hello
  folio object create --type cms.template --name layout --bind 1 --bind 2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				obj := &types.VersionedObject{ObjectType: objectType}
				if err := f.apply(cmd, obj); err != nil {
					return err
				}
				if obj.Name == "" {
					return usagef("--name is required")
				}
				entry, err := s.versions.SaveObject(s.ctx, obj)
				if err != nil {
					return err
				}
				return printSaved(cmd, obj, entry)
			})
		},
	}
	typeFlag(cmd, &objectType)
	f.register(cmd)
	return cmd
}

func newObjectUpdateCmd() *cobra.Command {
	var (
		objectType string
		f          objectFlags
		unset      []string
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Edit an object and record a version",
		Long: "Update applies the given changes and records a version. Edits made within\n" +
			"UseLastVersionInterval of the previous minor version are folded into it.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				obj, err := loadObject(s, objectType, args[0])
				if err != nil {
					return err
				}
				if err := f.apply(cmd, obj); err != nil {
					return err
				}
				for _, k := range unset {
					delete(obj.Fields, k)
					delete(obj.BinaryData, k)
				}
				entry, err := s.versions.SaveObject(s.ctx, obj)
				if err != nil {
					return err
				}
				return printSaved(cmd, obj, entry)
			})
		},
	}
	typeFlag(cmd, &objectType)
	f.register(cmd)
	cmd.Flags().StringSliceVar(&unset, "unset", nil, "field or attachment names to remove")
	return cmd
}

func printSaved(cmd *cobra.Command, obj *types.VersionedObject, entry *types.VersionHistoryEntry) error {
	out := struct {
		Object  *types.VersionedObject
		Version *types.VersionHistoryEntry `json:",omitempty"`
	}{obj, entry}
	return emit(cmd, out, func(w io.Writer) {
		if entry == nil {
			fmt.Fprintf(w, "Saved %s %d (no version history)\n", obj.ObjectType, obj.ObjectID)
			return
		}
		fmt.Fprintf(w, "Saved %s %d as version %s (entry %d)\n", obj.ObjectType, obj.ObjectID, entry.VersionNumber, entry.VersionID)
	})
}

func newObjectShowCmd() *cobra.Command {
	var objectType string
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an object's fields and check-out state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				obj, err := loadObject(s, objectType, args[0])
				if err != nil {
					return err
				}
				return emit(cmd, obj, func(w io.Writer) { printObject(w, obj) })
			})
		},
	}
	typeFlag(cmd, &objectType)
	return cmd
}

func printObject(w io.Writer, obj *types.VersionedObject) {
	fmt.Fprintf(w, "%s %d %q\n", obj.ObjectType, obj.ObjectID, obj.Name)
	fmt.Fprintf(w, "  guid:     %s\n", obj.GUID)
	fmt.Fprintf(w, "  site:     %d\n", obj.SiteID)
	if obj.ParentID != 0 {
		fmt.Fprintf(w, "  parent:   %d\n", obj.ParentID)
	}
	if len(obj.SiteBindings) > 0 {
		fmt.Fprintf(w, "  bound to: %s\n", types.FormatSiteBindingIDs(obj.SiteBindings))
	}
	fmt.Fprintf(w, "  modified: %s\n", formatTime(obj.ModifiedWhen))
	if c := obj.Checkout; c.IsCheckedOut() {
		fmt.Fprintf(w, "  checked out by user %d since %s (working version %d)\n",
			c.CheckedOutByUserID, formatTime(c.CheckedOutWhen), c.CheckedOutVersionID)
	}
	for _, k := range obj.FieldNames() {
		fmt.Fprintf(w, "  %s = %s\n", k, obj.Fields[k])
	}
	for k, data := range obj.BinaryData {
		fmt.Fprintf(w, "  %s: %d bytes\n", k, len(data))
	}
}

func newObjectListCmd() *cobra.Command {
	var (
		objectType string
		siteID     int64
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List objects of a type on a site",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				objs, err := s.store.ListObjects(s.ctx, objectType, siteID)
				if err != nil {
					return err
				}
				return emit(cmd, objs, func(w io.Writer) {
					if len(objs) == 0 {
						fmt.Fprintln(w, "No objects found.")
						return
					}
					rows := make([][]string, len(objs))
					for i, o := range objs {
						state := ""
						if o.Checkout.IsCheckedOut() {
							state = fmt.Sprintf("checked out by %d", o.Checkout.CheckedOutByUserID)
						}
						rows[i] = []string{strconv.FormatInt(o.ObjectID, 10), o.Name, strconv.FormatInt(o.SiteID, 10),
							formatTime(o.ModifiedWhen), state}
					}
					printTable(w, []string{"ID", "NAME", "SITE", "MODIFIED", "STATE"}, rows)
				})
			})
		},
	}
	typeFlag(cmd, &objectType)
	cmd.Flags().Int64Var(&siteID, "site", 0, "site ID")
	return cmd
}

func newObjectDeleteCmd() *cobra.Command {
	var objectType string
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Move an object to the recycle bin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				obj, err := loadObject(s, objectType, args[0])
				if err != nil {
					return err
				}
				entry, err := s.versions.DeleteObject(s.ctx, obj)
				if err != nil {
					return err
				}
				return emit(cmd, entry, func(w io.Writer) {
					if entry == nil {
						fmt.Fprintf(w, "Deleted %s %d\n", obj.ObjectType, obj.ObjectID)
						return
					}
					fmt.Fprintf(w, "Deleted %s %d; restore with: folio history restore %d\n",
						obj.ObjectType, obj.ObjectID, entry.VersionID)
				})
			})
		},
	}
	typeFlag(cmd, &objectType)
	return cmd
}
