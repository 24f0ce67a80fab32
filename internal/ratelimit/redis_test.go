package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reactsync/internal/testutil"
)

func newTestRedisBuckets(t *testing.T) (*RedisBuckets, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b := NewRedisBuckets(client, "")
	t.Cleanup(func() { b.Close() })
	return b, mr
}

func TestRedisBuckets_RecordQueryPrune(t *testing.T) {
	b, mr := newTestRedisBuckets(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, b.RecordRateHit(ctx, "add", base))
	require.NoError(t, b.RecordRateHit(ctx, "add", base))
	require.NoError(t, b.RecordRateHit(ctx, "add", base.Add(time.Minute)))

	assert.True(t, mr.Exists(DefaultRedisPrefix+"add"))

	hits, err := b.RateHits(ctx, "add", base)
	require.NoError(t, err)
	require.Len(t, hits, 3, "same-instant hits are distinct members")
	assert.True(t, hits[2].Equal(base.Add(time.Minute)))

	require.NoError(t, b.PruneRateHits(ctx, "add", base.Add(time.Second)))

	hits, err = b.RateHits(ctx, "add", base.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

func TestRedisBuckets_DrivesLimiter(t *testing.T) {
	b, _ := newTestRedisBuckets(t)
	clock := testutil.NewFakeClock(time.Time{})
	l := newTestLimiter(t, b, clock, 0, Window{Limit: 2, Period: time.Hour})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		outcome, err := l.TryAcquire(ctx, testLabel)
		require.NoError(t, err)
		require.Equal(t, Granted, outcome)
	}

	outcome, err := l.TryAcquire(ctx, testLabel)
	require.NoError(t, err)
	assert.Equal(t, Refused, outcome)
}

func TestDialRedisBuckets(t *testing.T) {
	mr := miniredis.RunT(t)

	b, err := DialRedisBuckets(context.Background(), mr.Addr())
	require.NoError(t, err)
	require.NoError(t, b.Close())

	mr.Close()
	_, err = DialRedisBuckets(context.Background(), mr.Addr())
	require.Error(t, err)
}

func TestParseMember_Malformed(t *testing.T) {
	_, err := parseMember("nocolon")
	require.Error(t, err)

	_, err = parseMember("abc:def")
	require.Error(t, err)
}
