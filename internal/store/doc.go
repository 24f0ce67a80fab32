// Package store provides SQLite-backed durable tables for reactsync.
//
// The store holds four tables:
//   - staged: candidates awaiting a moderation action, in insertion order
//   - done: subjects whose action was applied, with the target list
//   - sessions: reusable session credentials per account handle
//   - rate_hits: the persisted rate-limit hit log
//
// # Invariants
//
// A subject is present in at most one of staged and done, at most once.
// Stage is a no-op for a subject already present in either table.
//
// MarkDone inserts into done and deletes from staged inside one
// transaction, done insert first. If the process dies between the two
// statements SQLite rolls both back; if a done row exists alongside a staged
// row anyway (e.g. written by an older binary), the drain pass sees IsDone and
// drops the staged row instead of applying the action again.
//
// Lookups return (value, found, err). Absence is never an error.
//
// # Database Configuration
//
//   - WAL mode
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - single connection: the store assumes a single writer per database
package store
