package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/reactsync/internal/pipeline"
)

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <post-url>",
		Short: "Stage every account that liked a post",
		Long: `Walk every page of a post's likes and stage one candidate per account.

Accounts already staged or already processed are skipped. If a page fails,
accounts from earlier pages stay staged and the command can simply be re-run.

Examples:
  reactsync ingest https://bsky.app/profile/alice.bsky.social/post/3kabc
  reactsync ingest at://did:plc:abc/app.bsky.feed.post/3kabc --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(rootOpts, cmd, args[0])
		},
	}
}

func runIngest(opts *RootOptions, cmd *cobra.Command, postRef string) error {
	rt, err := newRuntime(opts)
	if err != nil {
		return err
	}
	defer rt.closeAndLog()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	result, err := ingest(ctx, rt, cmd, postRef)
	if err != nil {
		return err
	}

	if opts.Format == "json" {
		return newFormatter(cmd, opts).Success(result)
	}
	writeIngestText(cmd.OutOrStdout(), result)
	return nil
}

func ingest(ctx context.Context, rt *runtime, cmd *cobra.Command, postRef string) (pipeline.IngestResult, error) {
	st, err := rt.candidates()
	if err != nil {
		return pipeline.IngestResult{}, err
	}

	ingester := pipeline.NewIngester(rt.client(), st,
		pipeline.WithIngestReporter(rt.reporter(cmd)),
		pipeline.WithIngestLogger(rt.logger))

	result, err := ingester.Ingest(ctx, postRef)
	if err != nil {
		return result, failureFor("ingest failed", err)
	}
	return result, nil
}

func writeIngestText(w io.Writer, r pipeline.IngestResult) {
	fmt.Fprintf(w, "Ingested likes for %s\n", r.PostURI)
	fmt.Fprintf(w, "  pages:      %d\n", r.Pages)
	fmt.Fprintf(w, "  seen:       %d\n", r.Seen)
	fmt.Fprintf(w, "  staged:     %d\n", r.Staged)
	fmt.Fprintf(w, "  duplicates: %d\n", r.Duplicates)
}
