package pipeline

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/reactsync/internal/bsky"
	"github.com/roach88/reactsync/internal/ratelimit"
	"github.com/roach88/reactsync/internal/store"
	"github.com/roach88/reactsync/internal/testutil"
)

const (
	testPost = "at://did:plc:author/app.bsky.feed.post/3kpost"
	testList = "at://did:plc:me/app.bsky.graph.list/3klist"
	testRun  = "run-test"
)

func createTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func createTestLimiter(t *testing.T, st *store.Store, clock *testutil.FakeClock, limit int, maxWait time.Duration) *ratelimit.Limiter {
	t.Helper()
	l, err := ratelimit.New(st, []ratelimit.Window{{Limit: limit, Period: time.Hour}}, maxWait, ratelimit.WithClock(clock))
	require.NoError(t, err)
	return l
}

type drainFixture struct {
	store    *store.Store
	platform *testutil.FakePlatform
	clock    *testutil.FakeClock
	drainer  *Drainer
}

func newDrainFixture(t *testing.T, capacity int) *drainFixture {
	t.Helper()
	st := createTestStore(t)
	clock := testutil.NewFakeClock(time.Time{})
	platform := testutil.NewFakePlatform()
	limiter := createTestLimiter(t, st, clock, capacity, 0)
	return &drainFixture{
		store:    st,
		platform: platform,
		clock:    clock,
		drainer: NewDrainer(st, platform, limiter,
			WithRunIDGenerator(testutil.NewFixedRunIDGenerator(testRun)),
			WithDrainClock(clock)),
	}
}

func bskyPage(next, did, handle string) bsky.LikesPage {
	return bsky.LikesPage{Cursor: next, Actors: []bsky.Actor{{DID: did, Handle: handle}}}
}

type stepCounter struct {
	label    string
	total    int
	steps    int
	finished bool
}

func (s *stepCounter) Start(label string, total int) { s.label, s.total = label, total }
func (s *stepCounter) Step()                         { s.steps++ }
func (s *stepCounter) Finish()                       { s.finished = true }
