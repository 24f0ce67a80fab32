package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewLoginCommand creates the login command.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authenticate and store a reusable session",
		Long: `Authenticate the configured account.

A stored session is resumed when the platform still accepts it; otherwise
the app password (account.password or REACTSYNC_PASSWORD) is used for a full
login and the new session is stored.

Example:
  reactsync login --handle mod.example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(rootOpts, cmd)
		},
	}
}

func runLogin(opts *RootOptions, cmd *cobra.Command) error {
	rt, err := newRuntime(opts)
	if err != nil {
		return err
	}
	defer rt.closeAndLog()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	acct, err := rt.authenticate(ctx, rt.client())
	if err != nil {
		return err
	}

	if opts.Format == "json" {
		return newFormatter(cmd, opts).Success(acct)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", acct.Handle, acct.DID)
	return nil
}
