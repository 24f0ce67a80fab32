// Package bsky is a small ATProto XRPC client covering the calls the
// reaction sync pipeline needs: handle resolution, post likes, post lookup,
// session negotiation and list-item creation.
//
// Public reads go to the AppView host without authentication. Session and
// record calls go to the PDS host with a bearer access token. Every request is
// paced by a token-bucket limiter and transient failures (network errors,
// 5xx, 429) are retried with exponential backoff.
//
// When an authenticated call fails with ExpiredToken the client refreshes the
// session once, notifies the registered session.RefreshHandler with the
// rotated credential, and retries the call.
package bsky
