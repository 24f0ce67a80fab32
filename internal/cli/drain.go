package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/reactsync/internal/pipeline"
)

// DrainOptions holds flags for the drain command.
type DrainOptions struct {
	*RootOptions
	List string

	// RunIDs overrides the UUIDv7 run ID generator (for testing).
	RunIDs pipeline.RunIDGenerator
}

// NewDrainCommand creates the drain command.
func NewDrainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DrainOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Add staged accounts to a moderation list",
		Long: `Run one drain pass: add every staged account to the list, within the
configured rate limits.

When the limiter cannot grant an action within rate_limit.max_wait the pass
stops and the remaining accounts stay staged for the next run. An account
whose action fails also stays staged; the pass continues with the next one.

Example:
  reactsync drain --list https://bsky.app/profile/mod.example.com/lists/3klist`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDrain(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.List, "list", "", "target list URL or at:// URI (required)")
	_ = cmd.MarkFlagRequired("list")

	return cmd
}

func runDrain(opts *DrainOptions, cmd *cobra.Command) error {
	rt, err := newRuntime(opts.RootOptions)
	if err != nil {
		return err
	}
	defer rt.closeAndLog()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	result, err := drain(ctx, rt, cmd, opts.List, opts.RunIDs)
	if err != nil {
		return err
	}

	formatter := newFormatter(cmd, opts.RootOptions)
	formatter.VerboseLog("run %s: %d actions waited for rate-limit capacity", result.RunID, result.Waited)
	if opts.Format == "json" {
		return formatter.Success(result)
	}
	writeDrainText(cmd.OutOrStdout(), result)
	return nil
}

func drain(ctx context.Context, rt *runtime, cmd *cobra.Command, listRef string, runIDs pipeline.RunIDGenerator) (pipeline.DrainResult, error) {
	st, err := rt.candidates()
	if err != nil {
		return pipeline.DrainResult{}, err
	}
	limiter, err := rt.limiter(ctx)
	if err != nil {
		return pipeline.DrainResult{}, err
	}

	client := rt.client()
	if _, err := rt.authenticate(ctx, client); err != nil {
		return pipeline.DrainResult{}, err
	}

	drainOpts := []pipeline.DrainerOption{
		pipeline.WithDrainReporter(rt.reporter(cmd)),
		pipeline.WithDrainLogger(rt.logger),
	}
	if runIDs != nil {
		drainOpts = append(drainOpts, pipeline.WithRunIDGenerator(runIDs))
	}

	result, err := pipeline.NewDrainer(st, client, limiter, drainOpts...).Drain(ctx, listRef)
	if err != nil {
		return result, failureFor("drain failed", err)
	}
	return result, nil
}

func writeDrainText(w io.Writer, r pipeline.DrainResult) {
	fmt.Fprintf(w, "Drain run %s into %s\n", r.RunID, r.List)
	fmt.Fprintf(w, "  staged at start: %d\n", r.Total)
	fmt.Fprintf(w, "  added:           %d\n", r.Added)
	fmt.Fprintf(w, "  already done:    %d\n", r.AlreadyDone)
	fmt.Fprintf(w, "  failed:          %d\n", len(r.Failures))
	fmt.Fprintf(w, "  remaining:       %d\n", r.Remaining)
	if r.Halted {
		fmt.Fprintln(w, "Rate limit reached; remaining candidates stay staged for the next run.")
	}
	if len(r.Failures) > 0 {
		fmt.Fprintln(w, "Failures (left staged):")
		for _, f := range r.Failures {
			fmt.Fprintf(w, "  %s (%s): %s\n", f.Subject, f.Handle, f.Error)
		}
	}
}
