// Package progress surfaces incremental progress over a finite sequence.
// Reporters are purely observational.
package progress

import (
	"io"
	"iter"
	"log/slog"
	"sync"
	"time"

	pretty "github.com/jedib0t/go-pretty/v6/progress"
)

// Reporter observes a bounded unit of work.
type Reporter interface {
	Start(label string, total int)
	Step()
	Finish()
}

// Track wraps seq so that r sees one Step per yielded item.
// Finish is called when iteration ends, including on early break.
func Track[T any](seq iter.Seq2[T, error], label string, total int, r Reporter) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		r.Start(label, total)
		defer r.Finish()
		for v, err := range seq {
			if err == nil {
				r.Step()
			}
			if !yield(v, err) {
				return
			}
		}
	}
}

// Nop discards progress.
type Nop struct{}

func (Nop) Start(string, int) {}
func (Nop) Step()             {}
func (Nop) Finish()           {}

// LogReporter logs progress through slog every Every steps.
type LogReporter struct {
	Logger *slog.Logger
	Every  int

	mu    sync.Mutex
	label string
	total int
	done  int
}

// NewLogReporter creates a reporter logging every n steps.
func NewLogReporter(logger *slog.Logger, n int) *LogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	if n <= 0 {
		n = 100
	}
	return &LogReporter{Logger: logger, Every: n}
}

func (r *LogReporter) Start(label string, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.label, r.total, r.done = label, total, 0
	r.Logger.Info("progress started", "label", label, "total", total)
}

func (r *LogReporter) Step() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done++
	if r.done%r.Every == 0 {
		r.Logger.Info("progress", "label", r.label, "done", r.done, "total", r.total)
	}
}

func (r *LogReporter) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Logger.Info("progress finished", "label", r.label, "done", r.done, "total", r.total)
}

// WriterReporter renders a go-pretty progress tracker to W.
type WriterReporter struct {
	W               io.Writer
	UpdateFrequency time.Duration

	mu       sync.Mutex
	tracker  *pretty.Tracker
	rendered chan struct{}
}

// NewWriterReporter creates a reporter drawing to w.
func NewWriterReporter(w io.Writer) *WriterReporter {
	return &WriterReporter{W: w, UpdateFrequency: 100 * time.Millisecond}
}

// Start begins rendering a tracker for label. A total of zero renders an
// indeterminate tracker.
func (r *WriterReporter) Start(label string, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pw := pretty.NewWriter()
	pw.SetOutputWriter(r.W)
	pw.SetAutoStop(true)
	pw.SetTrackerLength(25)
	pw.SetUpdateFrequency(r.UpdateFrequency)
	pw.SetStyle(pretty.StyleDefault)
	pw.Style().Visibility.ETA = false
	pw.Style().Visibility.Speed = false

	r.tracker = &pretty.Tracker{Message: label, Total: int64(total), Units: pretty.UnitsDefault}
	pw.AppendTracker(r.tracker)
	r.rendered = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		pw.Render()
	}(r.rendered)
}

func (r *WriterReporter) Step() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tracker != nil {
		r.tracker.Increment(1)
	}
}

// Finish marks the tracker done and waits for the final frame.
func (r *WriterReporter) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tracker == nil {
		return
	}
	r.tracker.MarkAsDone()
	<-r.rendered
	r.tracker = nil
}
