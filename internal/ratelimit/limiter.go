package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// Outcome is the result of TryAcquire.
type Outcome int

const (
	// Refused means capacity would not free up within MaxWait.
	Refused Outcome = iota
	// Granted means every window had capacity immediately.
	Granted
	// WaitedThenGranted means the caller blocked before capacity freed up.
	WaitedThenGranted
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case Granted:
		return "granted"
	case WaitedThenGranted:
		return "waited-then-granted"
	case Refused:
		return "refused"
	default:
		return "unknown"
	}
}

// Allowed reports whether the outcome permits the action.
func (o Outcome) Allowed() bool {
	return o == Granted || o == WaitedThenGranted
}

// Window caps hits within a rolling period.
type Window struct {
	Limit  int
	Period time.Duration
}

// String renders the window as "limit/period".
func (w Window) String() string {
	return fmt.Sprintf("%d/%s", w.Limit, w.Period)
}

// BucketStore persists the hit log. Implemented by *store.Store (SQLite)
// and *RedisBuckets.
type BucketStore interface {
	// RateHits returns hit times for label at or after since, oldest first.
	RateHits(ctx context.Context, label string, since time.Time) ([]time.Time, error)
	// RecordRateHit persists one hit.
	RecordRateHit(ctx context.Context, label string, at time.Time) error
	// PruneRateHits drops hits recorded before the given time.
	PruneRateHits(ctx context.Context, label string, before time.Time) error
}

// ErrNoWindows is returned by New when no windows are configured.
var ErrNoWindows = errors.New("ratelimit: at least one window is required")

// Limiter is a persisted multi-window limiter.
//
// The limiter itself holds no counters; every decision re-reads the bucket
// store. It assumes a single writer per bucket store.
type Limiter struct {
	buckets BucketStore
	windows []Window
	longest time.Duration
	maxWait time.Duration
	clock   Clock
	logger  *slog.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the wall clock. Used by tests.
func WithClock(c Clock) Option {
	return func(l *Limiter) {
		l.clock = c
	}
}

// WithLogger sets the logger used for wait/refusal messages.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// New creates a limiter over buckets enforcing every window.
// maxWait bounds how long TryAcquire may block in total; zero means never
// block.
func New(buckets BucketStore, windows []Window, maxWait time.Duration, opts ...Option) (*Limiter, error) {
	if buckets == nil {
		return nil, errors.New("ratelimit: bucket store is required")
	}
	if len(windows) == 0 {
		return nil, ErrNoWindows
	}
	if maxWait < 0 {
		return nil, fmt.Errorf("ratelimit: negative max wait %s", maxWait)
	}

	ws := make([]Window, len(windows))
	copy(ws, windows)
	sort.Slice(ws, func(i, j int) bool { return ws[i].Period < ws[j].Period })

	for _, w := range ws {
		if w.Limit <= 0 {
			return nil, fmt.Errorf("ratelimit: window %s: limit must be positive", w)
		}
		if w.Period <= 0 {
			return nil, fmt.Errorf("ratelimit: window %s: period must be positive", w)
		}
	}

	l := &Limiter{
		buckets: buckets,
		windows: ws,
		longest: ws[len(ws)-1].Period,
		maxWait: maxWait,
		clock:   SystemClock{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// TryAcquire asks permission for one hit on label.
//
// The hit is granted only when every window has capacity, and is then
// recorded durably before returning. If capacity frees up within the
// remaining wait budget, TryAcquire sleeps and re-evaluates; otherwise it
// returns Refused without sleeping.
func (l *Limiter) TryAcquire(ctx context.Context, label string) (Outcome, error) {
	var waited time.Duration

	for {
		now := l.clock.Now()

		wait, err := l.delay(ctx, label, now)
		if err != nil {
			return Refused, fmt.Errorf("try acquire %s: %w", label, err)
		}

		if wait <= 0 {
			if err := l.buckets.RecordRateHit(ctx, label, now); err != nil {
				return Refused, fmt.Errorf("try acquire %s: %w", label, err)
			}
			if err := l.buckets.PruneRateHits(ctx, label, now.Add(-l.longest)); err != nil {
				// Stale rows only cost space; the grant stands.
				l.logger.Warn("rate limit prune failed", "label", label, "error", err)
			}
			if waited > 0 {
				return WaitedThenGranted, nil
			}
			return Granted, nil
		}

		if waited+wait > l.maxWait {
			l.logger.Info("rate limit exhausted",
				"label", label,
				"needed_wait", wait,
				"waited", waited,
				"max_wait", l.maxWait)
			return Refused, nil
		}

		l.logger.Info("rate limit reached, waiting", "label", label, "wait", wait)
		if err := l.clock.Sleep(ctx, wait); err != nil {
			return Refused, fmt.Errorf("try acquire %s: %w", label, err)
		}
		waited += wait
	}
}

// delay returns how long until every window has capacity for one more hit.
func (l *Limiter) delay(ctx context.Context, label string, now time.Time) (time.Duration, error) {
	hits, err := l.buckets.RateHits(ctx, label, now.Add(-l.longest))
	if err != nil {
		return 0, err
	}

	var wait time.Duration
	for _, w := range l.windows {
		inWindow := hitsAfter(hits, now.Add(-w.Period))
		if len(inWindow) < w.Limit {
			continue
		}
		// The window frees one slot when its (len-limit)th oldest hit expires.
		freeAt := inWindow[len(inWindow)-w.Limit].Add(w.Period)
		if d := freeAt.Sub(now); d > wait {
			wait = d
		}
	}
	return wait, nil
}

// WindowUsage reports consumption of one window.
type WindowUsage struct {
	Window Window `json:"-"`
	Limit  int    `json:"limit"`
	Period string `json:"period"`
	Used   int    `json:"used"`
}

// Usage reports how much of each window label has consumed right now.
func (l *Limiter) Usage(ctx context.Context, label string) ([]WindowUsage, error) {
	now := l.clock.Now()
	hits, err := l.buckets.RateHits(ctx, label, now.Add(-l.longest))
	if err != nil {
		return nil, fmt.Errorf("usage %s: %w", label, err)
	}

	usage := make([]WindowUsage, 0, len(l.windows))
	for _, w := range l.windows {
		usage = append(usage, WindowUsage{
			Window: w,
			Limit:  w.Limit,
			Period: w.Period.String(),
			Used:   len(hitsAfter(hits, now.Add(-w.Period))),
		})
	}
	return usage, nil
}

// hitsAfter returns the suffix of sorted hits strictly after cutoff.
// A hit exactly one period old has expired.
func hitsAfter(hits []time.Time, cutoff time.Time) []time.Time {
	i := sort.Search(len(hits), func(i int) bool { return hits[i].After(cutoff) })
	return hits[i:]
}
