package pipeline

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/roach88/reactsync/internal/moderation"
	"github.com/roach88/reactsync/internal/progress"
	"github.com/roach88/reactsync/internal/ratelimit"
)

// AddToListLabel is the rate-limit bucket consumed by add-to-list actions.
const AddToListLabel = "add-to-list-action"

// CandidateStore is the staged/done table surface the drain stage uses.
// Implemented by *store.Store.
type CandidateStore interface {
	IterateStaged(ctx context.Context) iter.Seq2[moderation.Candidate, error]
	CountStaged(ctx context.Context) (int, error)
	IsDone(ctx context.Context, subject string) (bool, error)
	DropStaged(ctx context.Context, subject string) (removed bool, err error)
	MarkDone(ctx context.Context, subject, targetList, runID string, doneAt time.Time) error
}

// ListWriter is the write side of the platform client.
type ListWriter interface {
	ResolveList(ctx context.Context, listRef string) (string, error)
	AddToList(ctx context.Context, item moderation.ListItem) error
}

// Limiter gates external actions. Implemented by *ratelimit.Limiter.
type Limiter interface {
	TryAcquire(ctx context.Context, label string) (ratelimit.Outcome, error)
}

// Failure records one candidate whose action failed during a pass.
type Failure struct {
	Subject string `json:"subject"`
	Handle  string `json:"handle"`
	Error   string `json:"error"`
}

// DrainResult summarizes one drain pass.
type DrainResult struct {
	RunID       string    `json:"run_id"`
	List        string    `json:"list"`
	Total       int       `json:"total"`
	Added       int       `json:"added"`
	AlreadyDone int       `json:"already_done"`
	Waited      int       `json:"waited"`
	Failures    []Failure `json:"failures,omitempty"`
	Halted      bool      `json:"halted"`
	Remaining   int       `json:"remaining"`
}

// Drainer applies staged actions.
type Drainer struct {
	candidates CandidateStore
	lists      ListWriter
	limiter    Limiter
	runIDs     RunIDGenerator
	clock      Clock
	reporter   progress.Reporter
	logger     *slog.Logger
}

// DrainerOption configures a Drainer.
type DrainerOption func(*Drainer)

// WithRunIDGenerator overrides the UUIDv7 run ID generator.
func WithRunIDGenerator(g RunIDGenerator) DrainerOption {
	return func(d *Drainer) { d.runIDs = g }
}

// WithDrainClock overrides the clock used for list items and done_at.
func WithDrainClock(c Clock) DrainerOption {
	return func(d *Drainer) { d.clock = c }
}

// WithDrainReporter sets the progress reporter.
func WithDrainReporter(r progress.Reporter) DrainerOption {
	return func(d *Drainer) { d.reporter = r }
}

// WithDrainLogger sets the logger.
func WithDrainLogger(l *slog.Logger) DrainerOption {
	return func(d *Drainer) { d.logger = l }
}

// NewDrainer creates a drainer.
func NewDrainer(candidates CandidateStore, lists ListWriter, limiter Limiter, opts ...DrainerOption) *Drainer {
	d := &Drainer{
		candidates: candidates,
		lists:      lists,
		limiter:    limiter,
		runIDs:     UUIDv7Generator{},
		clock:      systemClock{},
		reporter:   progress.Nop{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Drain runs one pass over the staged table, adding each subject to the list
// named by listRef.
//
// Per candidate, in table order:
//  1. Already done: drop the staged row and continue.
//  2. Acquire rate-limit permission. Refused halts the pass.
//  3. Add the subject to the list. Failure leaves it staged and continues.
//  4. Move the candidate to the done table.
//
// The returned error is non-nil only for list resolution failures, store
// failures, invariant violations and cancellation. The result is populated
// up to the point of failure.
func (d *Drainer) Drain(ctx context.Context, listRef string) (DrainResult, error) {
	var result DrainResult

	list, err := d.lists.ResolveList(ctx, listRef)
	if err != nil {
		return result, fmt.Errorf("drain: %w", err)
	}
	result.List = list
	result.RunID = d.runIDs.Generate()
	logger := d.logger.With("run_id", result.RunID, "list", list)

	total, err := d.candidates.CountStaged(ctx)
	if err != nil {
		return result, fmt.Errorf("drain: %w", err)
	}
	result.Total = total
	logger.Info("drain pass started", "staged", total)

	if err := d.pass(ctx, logger, &result); err != nil {
		return result, err
	}

	remaining, err := d.candidates.CountStaged(ctx)
	if err != nil {
		return result, fmt.Errorf("drain: %w", err)
	}
	result.Remaining = remaining

	logger.Info("drain pass finished",
		"added", result.Added,
		"already_done", result.AlreadyDone,
		"failed", len(result.Failures),
		"halted", result.Halted,
		"remaining", result.Remaining)
	return result, nil
}

func (d *Drainer) pass(ctx context.Context, logger *slog.Logger, result *DrainResult) error {
	for c, err := range progress.Track(d.candidates.IterateStaged(ctx), "drain", result.Total, d.reporter) {
		if err != nil {
			return fmt.Errorf("drain: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		done, err := d.candidates.IsDone(ctx, c.Subject)
		if err != nil {
			return fmt.Errorf("drain: %w", err)
		}
		if done {
			logger.Info("already processed", "subject", c.Subject, "handle", c.Handle)
			if _, err := d.candidates.DropStaged(ctx, c.Subject); err != nil {
				return fmt.Errorf("drain: %w", err)
			}
			result.AlreadyDone++
			continue
		}

		outcome, err := d.limiter.TryAcquire(ctx, AddToListLabel)
		if err != nil {
			return fmt.Errorf("drain: %w", err)
		}
		if !outcome.Allowed() {
			logger.Info("rate limit exhausted, halting pass", "subject", c.Subject)
			result.Halted = true
			return nil
		}
		if outcome == ratelimit.WaitedThenGranted {
			result.Waited++
		}

		item := moderation.NewListItem(c, result.List, d.clock.Now())
		if err := d.lists.AddToList(ctx, item); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("add to list failed", "subject", c.Subject, "handle", c.Handle, "error", err)
			result.Failures = append(result.Failures, Failure{
				Subject: c.Subject,
				Handle:  c.Handle,
				Error:   err.Error(),
			})
			continue
		}

		if err := d.candidates.MarkDone(ctx, c.Subject, result.List, result.RunID, item.CreatedAt); err != nil {
			return fmt.Errorf("drain: %w", err)
		}
		result.Added++
		logger.Debug("added to list", "subject", c.Subject, "handle", c.Handle)
	}
	return nil
}
