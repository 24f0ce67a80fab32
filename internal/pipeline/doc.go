// Package pipeline implements the two stages of a reaction sync.
//
// Ingester walks every page of a post's likes and stages one candidate per
// actor. Drainer sweeps the staged table once per pass, gating each external
// action on the persisted rate limiter and moving successes to the done
// table.
//
// # Failure Handling
//
//   - Resolution errors abort the ingestion call; rows staged by earlier
//     pages stay staged.
//   - A refused rate-limit acquisition halts the whole drain pass. The
//     remaining candidates stay staged for the next invocation.
//   - An external action failure is logged and the candidate stays staged;
//     the pass continues.
//   - Store failures and invariant violations stop the pass immediately.
//
// Every stage is single-threaded and run-to-completion. Safety across crashes
// and re-runs comes from the store's idempotency rules, not from locking.
package pipeline
