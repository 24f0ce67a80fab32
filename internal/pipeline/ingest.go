package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/reactsync/internal/bsky"
	"github.com/roach88/reactsync/internal/moderation"
	"github.com/roach88/reactsync/internal/progress"
)

// ReactionSource is the read side of the platform client.
type ReactionSource interface {
	ResolvePost(ctx context.Context, postRef string) (string, error)
	GetLikes(ctx context.Context, uri, cursor string) (bsky.LikesPage, error)
}

// Stager persists candidates. Implemented by *store.Store.
type Stager interface {
	Stage(ctx context.Context, c moderation.Candidate) (inserted bool, err error)
}

// Clock supplies timestamps for staged and done rows.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// ErrCursorRepeated is returned when the source hands back a cursor it has
// already served, which would otherwise loop forever.
var ErrCursorRepeated = errors.New("likes cursor repeated")

// IngestResult summarizes one ingestion call.
type IngestResult struct {
	PostURI    string `json:"post_uri"`
	Pages      int    `json:"pages"`
	Seen       int    `json:"seen"`
	Staged     int    `json:"staged"`
	Duplicates int    `json:"duplicates"`
	Skipped    int    `json:"skipped"`
}

// Ingester stages the likers of a post.
type Ingester struct {
	source   ReactionSource
	stager   Stager
	clock    Clock
	reporter progress.Reporter
	logger   *slog.Logger
}

// IngesterOption configures an Ingester.
type IngesterOption func(*Ingester)

// WithIngestClock overrides the clock used for staged_at.
func WithIngestClock(c Clock) IngesterOption {
	return func(i *Ingester) { i.clock = c }
}

// WithIngestReporter sets the progress reporter. Pages are the unit of work.
func WithIngestReporter(r progress.Reporter) IngesterOption {
	return func(i *Ingester) { i.reporter = r }
}

// WithIngestLogger sets the logger.
func WithIngestLogger(l *slog.Logger) IngesterOption {
	return func(i *Ingester) { i.logger = l }
}

// NewIngester creates an ingester.
func NewIngester(source ReactionSource, stager Stager, opts ...IngesterOption) *Ingester {
	i := &Ingester{
		source:   source,
		stager:   stager,
		clock:    systemClock{},
		reporter: progress.Nop{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Ingest resolves postRef and stages every actor that liked it, following
// cursors until the source returns none.
//
// Staging is incremental: when a page fails the error is returned along
// with the counts so far, and rows from earlier pages stay staged.
func (i *Ingester) Ingest(ctx context.Context, postRef string) (IngestResult, error) {
	var result IngestResult

	uri, err := i.source.ResolvePost(ctx, postRef)
	if err != nil {
		return result, fmt.Errorf("ingest %s: %w", postRef, err)
	}
	result.PostURI = uri
	logger := i.logger.With("post", uri)
	logger.Info("ingesting likes")

	i.reporter.Start("ingest", 0)
	defer i.reporter.Finish()

	cursor := ""
	seenCursors := map[string]bool{}
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		page, err := i.source.GetLikes(ctx, uri, cursor)
		if err != nil {
			return result, fmt.Errorf("ingest %s: page %d: %w", uri, result.Pages+1, err)
		}
		result.Pages++

		for _, actor := range page.Actors {
			result.Seen++
			if actor.DID == "" {
				result.Skipped++
				logger.Warn("skipping actor without DID", "handle", actor.Handle)
				continue
			}
			inserted, err := i.stager.Stage(ctx, moderation.Candidate{
				Subject:  actor.DID,
				Handle:   moderation.NormalizeHandle(actor.Handle),
				Source:   uri,
				Action:   moderation.ActionAddToList,
				StagedAt: i.clock.Now(),
			})
			if err != nil {
				return result, fmt.Errorf("ingest %s: %w", uri, err)
			}
			if inserted {
				result.Staged++
			} else {
				result.Duplicates++
				logger.Debug("duplicate candidate skipped", "subject", actor.DID, "handle", actor.Handle)
			}
		}
		i.reporter.Step()

		if page.Cursor == "" {
			break
		}
		seenCursors[cursor] = true
		if seenCursors[page.Cursor] {
			return result, fmt.Errorf("ingest %s: page %d: %w: %q", uri, result.Pages, ErrCursorRepeated, page.Cursor)
		}
		cursor = page.Cursor
	}

	logger.Info("ingest complete",
		"pages", result.Pages,
		"seen", result.Seen,
		"staged", result.Staged,
		"duplicates", result.Duplicates,
		"skipped", result.Skipped)
	return result, nil
}
