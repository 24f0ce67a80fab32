package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/reactsync/internal/pipeline"
)

// SyncResult is the combined output of the sync command.
type SyncResult struct {
	Ingest pipeline.IngestResult `json:"ingest"`
	Drain  pipeline.DrainResult  `json:"drain"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DrainOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync <post-url>",
		Short: "Ingest a post's likers, then drain them into a list",
		Long: `Run ingest followed by one drain pass.

The drain pass covers every staged account, including ones staged by
earlier ingest runs. If ingestion fails the drain pass is skipped.

Example:
  reactsync sync https://bsky.app/profile/alice.bsky.social/post/3kabc \
    --list https://bsky.app/profile/mod.example.com/lists/3klist`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.List, "list", "", "target list URL or at:// URI (required)")
	_ = cmd.MarkFlagRequired("list")

	return cmd
}

func runSync(opts *DrainOptions, cmd *cobra.Command, postRef string) error {
	rt, err := newRuntime(opts.RootOptions)
	if err != nil {
		return err
	}
	defer rt.closeAndLog()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	var result SyncResult
	result.Ingest, err = ingest(ctx, rt, cmd, postRef)
	if err != nil {
		return err
	}
	result.Drain, err = drain(ctx, rt, cmd, opts.List, opts.RunIDs)
	if err != nil {
		return err
	}

	if opts.Format == "json" {
		return newFormatter(cmd, opts.RootOptions).Success(result)
	}
	w := cmd.OutOrStdout()
	writeIngestText(w, result.Ingest)
	fmt.Fprintln(w)
	writeDrainText(w, result.Drain)
	return nil
}
