package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/reactsync/internal/moderation"
)

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session for the account",
		Long: `Delete the stored session credential for the configured account. The next
command that needs a session performs a full login with the app password.

Example:
  reactsync logout --handle mod.example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogout(rootOpts, cmd)
		},
	}
}

// LogoutResult is the logout command's JSON output.
type LogoutResult struct {
	Handle string `json:"handle"`
}

func runLogout(opts *RootOptions, cmd *cobra.Command) error {
	rt, err := newRuntime(opts)
	if err != nil {
		return err
	}
	defer rt.closeAndLog()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	handle := moderation.NormalizeHandle(rt.cfg.Account.Handle)
	if handle == "" {
		return NewExitError(ExitCommandError,
			"account handle is required (--handle, account.handle or REACTSYNC_HANDLE)")
	}
	st, err := rt.sessions()
	if err != nil {
		return err
	}
	if err := st.DeleteSession(ctx, handle); err != nil {
		return WrapExitError(ExitFailure, "failed to delete session", err)
	}

	if opts.Format == "json" {
		return newFormatter(cmd, opts).Success(LogoutResult{Handle: handle})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Forgot stored session for %s\n", handle)
	return nil
}
