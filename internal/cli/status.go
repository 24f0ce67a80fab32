package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/reactsync/internal/moderation"
	"github.com/roach88/reactsync/internal/pipeline"
	"github.com/roach88/reactsync/internal/ratelimit"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Limit int
}

// StatusResult is the status command's output.
type StatusResult struct {
	Staged     int                     `json:"staged"`
	Done       int                     `json:"done"`
	RateLimit  []ratelimit.WindowUsage `json:"rate_limit"`
	RecentDone []moderation.DoneRecord `json:"recent_done"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show staged and done counts and rate-limit usage",
		Long: `Show how many candidates are staged and done, current consumption of each
rate-limit window, and the most recently processed accounts.

Examples:
  reactsync status
  reactsync status --limit 25 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 10, "number of recent done records to show")

	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	rt, err := newRuntime(opts.RootOptions)
	if err != nil {
		return err
	}
	defer rt.closeAndLog()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	st, err := rt.candidates()
	if err != nil {
		return err
	}
	limiter, err := rt.limiter(ctx)
	if err != nil {
		return err
	}

	var result StatusResult
	if result.Staged, err = st.CountStaged(ctx); err != nil {
		return WrapExitError(ExitFailure, "failed to count staged", err)
	}
	if result.Done, err = st.CountDone(ctx); err != nil {
		return WrapExitError(ExitFailure, "failed to count done", err)
	}
	if result.RateLimit, err = limiter.Usage(ctx, pipeline.AddToListLabel); err != nil {
		return WrapExitError(ExitFailure, "failed to read rate limit usage", err)
	}
	if result.RecentDone, err = st.ListDone(ctx, opts.Limit); err != nil {
		return WrapExitError(ExitFailure, "failed to list done", err)
	}

	if opts.Format == "json" {
		return newFormatter(cmd, opts.RootOptions).Success(result)
	}
	writeStatusText(cmd.OutOrStdout(), result)
	return nil
}

func writeStatusText(w io.Writer, r StatusResult) {
	fmt.Fprintln(w, "=== Candidates ===")
	fmt.Fprintf(w, "  staged: %d\n", r.Staged)
	fmt.Fprintf(w, "  done:   %d\n", r.Done)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "=== Rate Limit (%s) ===\n", pipeline.AddToListLabel)
	for _, u := range r.RateLimit {
		fmt.Fprintf(w, "  %d/%d per %s\n", u.Used, u.Limit, u.Period)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Recently Done ===")
	if len(r.RecentDone) == 0 {
		fmt.Fprintln(w, "  (none)")
		return
	}
	for _, rec := range r.RecentDone {
		fmt.Fprintf(w, "  %s  %s  %s  run=%s\n",
			rec.DoneAt.UTC().Format(time.RFC3339), rec.Subject, displayHandle(rec.Handle), rec.RunID)
	}
}

func displayHandle(h string) string {
	if h == "" {
		return "-"
	}
	return "@" + h
}
