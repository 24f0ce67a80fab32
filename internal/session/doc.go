// Package session keeps one reusable platform credential per account handle.
//
// Authenticate prefers the stored credential and falls back to a full login
// only when none is stored or the platform rejects it. After that the stored
// credential changes only when the platform client reports a refresh through
// SessionRefreshed; ordinary use never writes.
package session
