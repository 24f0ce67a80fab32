package progress

import (
	"bytes"
	"errors"
	"iter"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingReporter struct {
	label    string
	total    int
	steps    int
	finished int
}

func (r *countingReporter) Start(label string, total int) { r.label, r.total = label, total }
func (r *countingReporter) Step()                         { r.steps++ }
func (r *countingReporter) Finish()                       { r.finished++ }

func seqOf(items []string, failAt int) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for i, s := range items {
			if i == failAt {
				yield("", errors.New("boom"))
				return
			}
			if !yield(s, nil) {
				return
			}
		}
	}
}

func TestTrack_StepsEveryItem(t *testing.T) {
	r := &countingReporter{}

	var got []string
	for s, err := range Track(seqOf([]string{"a", "b", "c"}, -1), "drain", 3, r) {
		require.NoError(t, err)
		got = append(got, s)
	}

	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Equal(t, "drain", r.label)
	assert.Equal(t, 3, r.total)
	assert.Equal(t, 3, r.steps)
	assert.Equal(t, 1, r.finished)
}

func TestTrack_EarlyBreakFinishes(t *testing.T) {
	r := &countingReporter{}

	for range Track(seqOf([]string{"a", "b", "c"}, -1), "drain", 3, r) {
		break
	}
	assert.Equal(t, 1, r.steps)
	assert.Equal(t, 1, r.finished)
}

func TestTrack_ErrorsAreNotSteps(t *testing.T) {
	r := &countingReporter{}

	var errs int
	for _, err := range Track(seqOf([]string{"a", "b"}, 1), "drain", 2, r) {
		if err != nil {
			errs++
		}
	}
	assert.Equal(t, 1, errs)
	assert.Equal(t, 1, r.steps)
}

func TestWriterReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewWriterReporter(&buf)
	r.UpdateFrequency = 5 * time.Millisecond

	r.Start("ingest", 2)
	r.Step()
	r.Step()
	r.Finish()

	out := buf.String()
	assert.Contains(t, out, "ingest")
	assert.Contains(t, out, "done!")
}

func TestWriterReporter_UnknownTotal(t *testing.T) {
	var buf bytes.Buffer
	r := NewWriterReporter(&buf)
	r.UpdateFrequency = 5 * time.Millisecond

	r.Start("ingest", 0)
	r.Step()
	r.Finish()

	assert.Contains(t, buf.String(), "ingest")
}

func TestWriterReporter_FinishWithoutStart(t *testing.T) {
	var buf bytes.Buffer
	r := NewWriterReporter(&buf)

	r.Finish()
	assert.Empty(t, buf.String())
}

func TestLogReporter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	r := NewLogReporter(logger, 2)

	r.Start("drain", 3)
	for i := 0; i < 3; i++ {
		r.Step()
	}
	r.Finish()

	out := buf.String()
	assert.Contains(t, out, "progress started")
	assert.Contains(t, out, "done=2")
	assert.Contains(t, out, "progress finished")
	assert.Contains(t, out, "done=3")
}
