// Package ratelimit implements a persisted multi-window rate limiter.
//
// Each Window caps the number of hits within a rolling period (for example
// 1000 per hour and 10000 per day). TryAcquire grants a hit only when every
// window has capacity. State lives in a BucketStore, never in memory alone,
// so consumption survives process restarts.
//
// When a window is exhausted the caller blocks until capacity frees up,
// bounded by MaxWait. Past that bound the call fails closed with Refused.
// Refused is a flow-control outcome, not an error: errors are reserved for
// storage failures and context cancellation.
package ratelimit
