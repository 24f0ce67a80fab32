package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces bucket keys.
const DefaultRedisPrefix = "reactsync:ratelimit:"

// RedisBuckets keeps the hit log in one sorted set per label.
//
// Scores are unix microseconds (exact in a float64); members carry the exact
// nanosecond timestamp plus a UUID so concurrent hits never collide.
type RedisBuckets struct {
	client *redis.Client
	prefix string
}

// NewRedisBuckets wraps an existing client. An empty prefix uses
// DefaultRedisPrefix.
func NewRedisBuckets(client *redis.Client, prefix string) *RedisBuckets {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisBuckets{client: client, prefix: prefix}
}

// DialRedisBuckets connects to addr and verifies the connection.
func DialRedisBuckets(ctx context.Context, addr string) (*RedisBuckets, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return NewRedisBuckets(client, ""), nil
}

// Close closes the underlying client.
func (b *RedisBuckets) Close() error {
	return b.client.Close()
}

func (b *RedisBuckets) key(label string) string {
	return b.prefix + label
}

// RateHits implements BucketStore.
func (b *RedisBuckets) RateHits(ctx context.Context, label string, since time.Time) ([]time.Time, error) {
	members, err := b.client.ZRangeByScore(ctx, b.key(label), &redis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixMicro(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("query rate hits %s: %w", label, err)
	}

	hits := make([]time.Time, 0, len(members))
	for _, m := range members {
		at, err := parseMember(m)
		if err != nil {
			return nil, fmt.Errorf("query rate hits %s: %w", label, err)
		}
		if at.Before(since) {
			// Same microsecond as since but earlier nanoseconds.
			continue
		}
		hits = append(hits, at)
	}
	return hits, nil
}

// RecordRateHit implements BucketStore.
func (b *RedisBuckets) RecordRateHit(ctx context.Context, label string, at time.Time) error {
	member := fmt.Sprintf("%d:%s", at.UnixNano(), uuid.NewString())
	err := b.client.ZAdd(ctx, b.key(label), redis.Z{
		Score:  float64(at.UnixMicro()),
		Member: member,
	}).Err()
	if err != nil {
		return fmt.Errorf("record rate hit %s: %w", label, err)
	}
	return nil
}

// PruneRateHits implements BucketStore.
func (b *RedisBuckets) PruneRateHits(ctx context.Context, label string, before time.Time) error {
	max := "(" + strconv.FormatInt(before.UnixMicro(), 10)
	if err := b.client.ZRemRangeByScore(ctx, b.key(label), "-inf", max).Err(); err != nil {
		return fmt.Errorf("prune rate hits %s: %w", label, err)
	}
	return nil
}

func parseMember(m string) (time.Time, error) {
	nsPart, _, ok := strings.Cut(m, ":")
	if !ok {
		return time.Time{}, fmt.Errorf("malformed member %q", m)
	}
	ns, err := strconv.ParseInt(nsPart, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed member %q: %w", m, err)
	}
	return time.Unix(0, ns), nil
}
