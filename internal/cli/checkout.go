package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newCheckoutCmd() *cobra.Command {
	var objectType string
	cmd := &cobra.Command{
		Use:   "checkout <object-id>",
		Short: "Lock an object for editing by the acting user",
		Long: "Checkout records the current state as a new minor version and makes it the\n" +
			"working version. Later edits by the owner are written into it until checkin.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				obj, err := loadObject(s, objectType, args[0])
				if err != nil {
					return err
				}
				if err := s.versions.CheckOut(s.ctx, obj); err != nil {
					return err
				}
				return emit(cmd, obj.Checkout, func(w io.Writer) {
					fmt.Fprintf(w, "Checked out %s %d to %s", obj.ObjectType, obj.ObjectID, s.user.UserName)
					if v := obj.Checkout.CheckedOutVersionID; v != 0 {
						fmt.Fprintf(w, " (working version %d)", v)
					}
					fmt.Fprintln(w)
				})
			})
		},
	}
	typeFlag(cmd, &objectType)
	return cmd
}

func newCheckinCmd() *cobra.Command {
	var objectType, number, comment string
	cmd := &cobra.Command{
		Use:   "checkin <object-id>",
		Short: "Release the acting user's lock on an object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				obj, err := loadObject(s, objectType, args[0])
				if err != nil {
					return err
				}
				entry, err := s.versions.CheckIn(s.ctx, obj, number, comment)
				if err != nil {
					return err
				}
				return emit(cmd, entry, func(w io.Writer) {
					if entry == nil {
						fmt.Fprintf(w, "Checked in %s %d\n", obj.ObjectType, obj.ObjectID)
						return
					}
					fmt.Fprintf(w, "Checked in %s %d as version %s\n", obj.ObjectType, obj.ObjectID, entry.VersionNumber)
				})
			})
		},
	}
	typeFlag(cmd, &objectType)
	cmd.Flags().StringVar(&number, "number", "", "version number to give the checked-in version")
	cmd.Flags().StringVar(&comment, "comment", "", "version comment")
	return cmd
}

func newUndoCheckoutCmd() *cobra.Command {
	var objectType string
	cmd := &cobra.Command{
		Use:   "undo-checkout <object-id>",
		Short: "Discard the working version and release the lock",
		Long: "Undo-checkout destroys the working version and rolls the object back to the\n" +
			"latest remaining version. Only the owner or a global admin may undo.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				obj, err := loadObject(s, objectType, args[0])
				if err != nil {
					return err
				}
				restored, err := s.versions.UndoCheckOut(s.ctx, obj)
				if err != nil {
					return err
				}
				return emit(cmd, restored, func(w io.Writer) {
					fmt.Fprintf(w, "Undid checkout of %s %d\n", restored.ObjectType, restored.ObjectID)
				})
			})
		},
	}
	typeFlag(cmd, &objectType)
	return cmd
}
