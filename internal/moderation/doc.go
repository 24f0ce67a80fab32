// Package moderation defines the values that flow through the reaction sync
// pipeline.
//
// A Candidate is one distinct reaction actor observed on a source post. It is
// created staged by ingestion and later either moved to the done table (with
// the target list recorded) or dropped because it was already done.
//
// # Identity
//
// Subject is the only identity. A subject is either staged or done, never both
// and never twice. The done table records one target list per subject, so
// adding the same subject to a second list needs an extended identity of
// (subject, target list). That is a known single-list constraint.
//
// # Errors
//
// Error carries an ErrorCode for the failure classes the pipeline reacts to.
// Rate-limit exhaustion is deliberately absent: it is a flow-control outcome,
// not an error.
package moderation
