// Package cli implements the folio command-line interface.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/folio/internal/paths"
	"github.com/mesh-intelligence/folio/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// defaultUser is the account seeded by the sqlite backend. Commands act as
// this user unless --user names another.
const defaultUser = "administrator"

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	jsonMode  bool
	user      string
	domain    string
}

var flags rootFlags

// NewRootCmd creates the top-level "folio" command with global flags and
// all subcommands registered.
func NewRootCmd() *cobra.Command {
	flags = rootFlags{}

	root := &cobra.Command{
		Use:   "folio",
		Short: "Object version history and workflow approval",
		Long: "Folio keeps version history for stored objects, enforces check-out\n" +
			"locks, trims history by site settings, and evaluates who may\n" +
			"approve workflow steps.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configDir, "config-dir", "", "configuration directory (default: $(CWD)/.folio)")
	pf.StringVar(&flags.dataDir, "data-dir", "", "data directory (default: $(CWD)/.folio-db)")
	pf.BoolVar(&flags.jsonMode, "json", false, "output in JSON format")
	pf.StringVar(&flags.user, "user", "", "acting user name (default: "+defaultUser+")")
	pf.StringVar(&flags.domain, "domain", "", "domain used for license checks")

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(),
		newObjectCmd(),
		newHistoryCmd(),
		newCheckoutCmd(),
		newCheckinCmd(),
		newUndoCheckoutCmd(),
		newWorkflowCmd(),
		newApproveCmd(),
		newUserCmd(),
		newRoleCmd(),
		newSiteCmd(),
		newEventsCmd(),
	)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{msg: err.Error()}
	})
	markArgErrors(root)
	return root
}

// markArgErrors makes positional argument failures exit as user errors.
func markArgErrors(cmd *cobra.Command) {
	if validate := cmd.Args; validate != nil {
		cmd.Args = func(c *cobra.Command, args []string) error {
			if err := validate(c, args); err != nil {
				return &usageError{msg: err.Error()}
			}
			return nil
		}
	}
	for _, sub := range cmd.Commands() {
		markArgErrors(sub)
	}
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	os.Exit(run(NewRootCmd(), os.Args[1:], os.Stderr))
}

func run(root *cobra.Command, args []string, stderr io.Writer) int {
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return exitSuccess
	}
	fmt.Fprintf(stderr, "folio: %s\n", err)
	return exitCode(err)
}

// exitCode maps an error to exitUserError when the caller can fix it by
// changing the input, and to exitSysError otherwise.
func exitCode(err error) int {
	var (
		verr *types.VersioningError
		lerr *types.LicenseError
		uerr *usageError
	)
	switch {
	case err == nil:
		return exitSuccess
	case errors.As(err, &verr), errors.As(err, &lerr), errors.As(err, &uerr):
		return exitUserError
	}
	for _, target := range userErrors {
		if errors.Is(err, target) {
			return exitUserError
		}
	}
	return exitSysError
}

var userErrors = []error{
	types.ErrNotFound,
	types.ErrInvalidID,
	types.ErrInvalidData,
	types.ErrDuplicateName,
	types.ErrUnknownObjectType,
	types.ErrVersioningUnsupported,
	types.ErrNoUser,
	types.ErrInvalidWorkflowKind,
	types.ErrInvalidStepType,
	types.ErrInvalidSecurityMode,
	types.ErrSourcePointNotFound,
	types.ErrDuplicateTransition,
	types.ErrStepWorkflowMismatch,
	types.ErrBackendEmpty,
	types.ErrBackendUnknown,
}

// usageError marks bad arguments that cobra's own validation cannot catch.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// resolveConfigDir returns the configuration directory following
// --config-dir > FOLIO_CONFIG_DIR > $(CWD)/.folio > platform default.
func resolveConfigDir() (string, error) {
	return paths.ResolveConfigDir(flags.configDir)
}

// resolveDataDir returns the data directory following --data-dir >
// config.yaml data_dir > FOLIO_DATA_DIR > $(CWD)/.folio-db.
func resolveDataDir(configDataDir string) (string, error) {
	return paths.ResolveDataDir(flags.dataDir, configDataDir)
}
