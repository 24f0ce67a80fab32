package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/reactsync/internal/bsky"
)

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <post-url>",
		Short: "Show a post's author, text and like count",
		Long: `Fetch a post and print its author, text and like count. Useful for
checking a URL before ingesting it. No login is needed.

Example:
  reactsync inspect https://bsky.app/profile/alice.bsky.social/post/3kabc`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(rootOpts, cmd, args[0])
		},
	}
}

func runInspect(opts *RootOptions, cmd *cobra.Command, postRef string) error {
	rt, err := newRuntime(opts)
	if err != nil {
		return err
	}
	defer rt.closeAndLog()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	client := rt.client()
	uri, err := client.ResolvePost(ctx, postRef)
	if err != nil {
		return failureFor("inspect failed", err)
	}
	post, err := client.GetPost(ctx, uri)
	if err != nil {
		return failureFor("inspect failed", err)
	}

	if opts.Format == "json" {
		return newFormatter(cmd, opts).Success(post)
	}
	writePostText(cmd.OutOrStdout(), post)
	return nil
}

func writePostText(w io.Writer, p bsky.Post) {
	author := "@" + p.Author.Handle
	if p.Author.DisplayName != "" {
		author = fmt.Sprintf("%s (@%s)", p.Author.DisplayName, p.Author.Handle)
	}
	fmt.Fprintf(w, "Post:    %s\n", p.URI)
	fmt.Fprintf(w, "Author:  %s %s\n", author, p.Author.DID)
	fmt.Fprintf(w, "Created: %s\n", p.CreatedAt)
	fmt.Fprintf(w, "Likes:   %d\n", p.LikeCount)
	fmt.Fprintln(w)
	fmt.Fprintln(w, p.Text)
}
