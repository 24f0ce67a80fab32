package bsky

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reactsync/internal/moderation"
)

func testCredentialBlob(t *testing.T, access, refresh string) string {
	t.Helper()
	blob, err := credential{DID: "did:plc:me", Handle: "me.test", AccessJwt: access, RefreshJwt: refresh}.encode()
	require.NoError(t, err)
	return blob
}

func TestLogin(t *testing.T) {
	srv := newXRPCServer(t)
	srv.handle("com.atproto.server.createSession", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["identifier"] != "me.test" || body["password"] != "app-pw" {
			writeXRPCError(w, http.StatusUnauthorized, "AuthenticationRequired", "Invalid identifier or password")
			return
		}
		writeJSON(w, map[string]string{
			"did": "did:plc:me", "handle": "me.test", "accessJwt": "a1", "refreshJwt": "r1",
		})
	})
	c := newTestClient(srv)

	acct, err := c.Login(context.Background(), "me.test", "app-pw")
	require.NoError(t, err)
	assert.Equal(t, "did:plc:me", acct.DID)
	cur, err := c.current()
	require.NoError(t, err)
	assert.Equal(t, "did:plc:me", cur.DID)

	cred, err := decodeCredential(acct.Credential)
	require.NoError(t, err)
	assert.Equal(t, "a1", cred.AccessJwt)
	assert.Equal(t, "r1", cred.RefreshJwt)
}

func TestLogin_BadPasswordIsCredentialError(t *testing.T) {
	srv := newXRPCServer(t)
	srv.handle("com.atproto.server.createSession", func(w http.ResponseWriter, r *http.Request) {
		writeXRPCError(w, http.StatusUnauthorized, "AuthenticationRequired", "Invalid identifier or password")
	})
	c := newTestClient(srv)

	_, err := c.Login(context.Background(), "me.test", "wrong")
	require.Error(t, err)
	assert.True(t, moderation.IsCredentialError(err))
	assert.Equal(t, 1, srv.count("com.atproto.server.createSession"), "4xx is not retried")
}

func TestResume_ValidCredential(t *testing.T) {
	srv := newXRPCServer(t)
	srv.handle("com.atproto.server.getSession", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer a1", r.Header.Get("Authorization"))
		writeJSON(w, map[string]string{"did": "did:plc:me", "handle": "me.test"})
	})
	c := newTestClient(srv)
	handler := &recordingHandler{}
	c.SetRefreshHandler(handler)

	acct, err := c.Resume(context.Background(), testCredentialBlob(t, "a1", "r1"))
	require.NoError(t, err)
	assert.Equal(t, "did:plc:me", acct.DID)
	assert.Empty(t, handler.calls, "no refresh, no notification")
	assert.Zero(t, srv.count("com.atproto.server.refreshSession"))
}

func TestResume_ExpiredAccessTokenRefreshesAndNotifies(t *testing.T) {
	srv := newXRPCServer(t)
	srv.handle("com.atproto.server.getSession", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer a2" {
			writeXRPCError(w, http.StatusBadRequest, "ExpiredToken", "Token has expired")
			return
		}
		writeJSON(w, map[string]string{"did": "did:plc:me", "handle": "me.test"})
	})
	srv.handle("com.atproto.server.refreshSession", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer r1", r.Header.Get("Authorization"))
		writeJSON(w, map[string]string{
			"did": "did:plc:me", "handle": "me.test", "accessJwt": "a2", "refreshJwt": "r2",
		})
	})
	c := newTestClient(srv)
	handler := &recordingHandler{}
	c.SetRefreshHandler(handler)

	acct, err := c.Resume(context.Background(), testCredentialBlob(t, "a1", "r1"))
	require.NoError(t, err)

	cred, err := decodeCredential(acct.Credential)
	require.NoError(t, err)
	assert.Equal(t, "a2", cred.AccessJwt)

	require.Len(t, handler.calls, 1)
	assert.True(t, strings.HasPrefix(handler.calls[0], "me.test|"))
	assert.Contains(t, handler.calls[0], `"refreshJwt":"r2"`)
	assert.Equal(t, 2, srv.count("com.atproto.server.getSession"))
}

func TestResume_RejectedRefreshIsCredentialError(t *testing.T) {
	srv := newXRPCServer(t)
	srv.handle("com.atproto.server.getSession", func(w http.ResponseWriter, r *http.Request) {
		writeXRPCError(w, http.StatusBadRequest, "ExpiredToken", "Token has expired")
	})
	srv.handle("com.atproto.server.refreshSession", func(w http.ResponseWriter, r *http.Request) {
		writeXRPCError(w, http.StatusBadRequest, "ExpiredToken", "Token has been revoked")
	})
	c := newTestClient(srv)

	_, err := c.Resume(context.Background(), testCredentialBlob(t, "a1", "r1"))
	require.Error(t, err)
	assert.True(t, moderation.IsCredentialError(err))
}

func TestResume_GarbledCredential(t *testing.T) {
	c := newTestClient(newXRPCServer(t))

	_, err := c.Resume(context.Background(), "not json")
	require.Error(t, err)
	assert.True(t, moderation.IsCredentialError(err))
}

func TestResolvePost(t *testing.T) {
	srv := newXRPCServer(t)
	srv.handle("com.atproto.identity.resolveHandle", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("handle") {
		case "alice.test":
			writeJSON(w, map[string]string{"did": "did:plc:alice"})
		default:
			writeXRPCError(w, http.StatusBadRequest, "InvalidRequest", "Unable to resolve handle")
		}
	})
	c := newTestClient(srv)
	ctx := context.Background()

	uri, err := c.ResolvePost(ctx, "https://bsky.app/profile/alice.test/post/3kpost")
	require.NoError(t, err)
	assert.Equal(t, "at://did:plc:alice/app.bsky.feed.post/3kpost", uri)

	uri, err = c.ResolvePost(ctx, "at://did:plc:bob/app.bsky.feed.post/3kother")
	require.NoError(t, err)
	assert.Equal(t, "at://did:plc:bob/app.bsky.feed.post/3kother", uri)
	assert.Equal(t, 1, srv.count("com.atproto.identity.resolveHandle"), "DIDs are not resolved")

	_, err = c.ResolvePost(ctx, "https://bsky.app/profile/ghost.test/post/3kpost")
	require.Error(t, err)
	assert.True(t, moderation.IsResolutionError(err))
}

func TestResolveList(t *testing.T) {
	srv := newXRPCServer(t)
	srv.handle("com.atproto.identity.resolveHandle", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"did": "did:plc:mod"})
	})
	c := newTestClient(srv)

	uri, err := c.ResolveList(context.Background(), "https://bsky.app/profile/mod.test/lists/3klist")
	require.NoError(t, err)
	assert.Equal(t, "at://did:plc:mod/app.bsky.graph.list/3klist", uri)
}

func TestGetLikes_Paging(t *testing.T) {
	srv := newXRPCServer(t)
	srv.handle("app.bsky.feed.getLikes", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "at://did:plc:alice/app.bsky.feed.post/3kpost", q.Get("uri"))
		assert.Equal(t, "100", q.Get("limit"))
		switch q.Get("cursor") {
		case "":
			writeJSON(w, map[string]any{
				"cursor": "A",
				"likes": []map[string]any{
					{"actor": map[string]string{"did": "did:plc:x", "handle": "x.test"}},
					{"actor": map[string]string{"did": "did:plc:y", "handle": "y.test"}},
				},
			})
		case "A":
			writeJSON(w, map[string]any{"likes": []map[string]any{}})
		}
	})
	c := newTestClient(srv)
	ctx := context.Background()
	uri := "at://did:plc:alice/app.bsky.feed.post/3kpost"

	page, err := c.GetLikes(ctx, uri, "")
	require.NoError(t, err)
	assert.Equal(t, "A", page.Cursor)
	require.Len(t, page.Actors, 2)
	assert.Equal(t, Actor{DID: "did:plc:x", Handle: "x.test"}, page.Actors[0])

	page, err = c.GetLikes(ctx, uri, "A")
	require.NoError(t, err)
	assert.Empty(t, page.Cursor)
	assert.Empty(t, page.Actors)
}

func TestGetPost(t *testing.T) {
	srv := newXRPCServer(t)
	srv.handle("app.bsky.feed.getPosts", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("uris") != "at://did:plc:alice/app.bsky.feed.post/3kpost" {
			writeJSON(w, map[string]any{"posts": []any{}})
			return
		}
		writeJSON(w, map[string]any{"posts": []map[string]any{{
			"uri":       "at://did:plc:alice/app.bsky.feed.post/3kpost",
			"author":    map[string]string{"did": "did:plc:alice", "handle": "alice.test", "displayName": "Alice"},
			"record":    map[string]string{"text": "hello", "createdAt": "2026-01-01T00:00:00Z"},
			"likeCount": 42,
		}}})
	})
	c := newTestClient(srv)
	ctx := context.Background()

	post, err := c.GetPost(ctx, "at://did:plc:alice/app.bsky.feed.post/3kpost")
	require.NoError(t, err)
	assert.Equal(t, "hello", post.Text)
	assert.Equal(t, "Alice", post.Author.DisplayName)
	assert.Equal(t, 42, post.LikeCount)

	_, err = c.GetPost(ctx, "at://did:plc:alice/app.bsky.feed.post/missing")
	require.Error(t, err)
	assert.True(t, moderation.IsResolutionError(err))
}

func loggedInClient(t *testing.T, srv *xrpcServer) *Client {
	t.Helper()
	c := newTestClient(srv)
	c.setCurrent(credential{DID: "did:plc:me", Handle: "me.test", AccessJwt: "a1", RefreshJwt: "r1"})
	return c
}

func TestAddToList(t *testing.T) {
	srv := newXRPCServer(t)
	var got createRecordInput
	var record listItemRecord
	srv.handle("com.atproto.repo.createRecord", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer a1", r.Header.Get("Authorization"))
		var raw struct {
			createRecordInput
			Record json.RawMessage `json:"record"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		got = raw.createRecordInput
		require.NoError(t, json.Unmarshal(raw.Record, &record))
		writeJSON(w, map[string]string{"uri": "at://did:plc:me/app.bsky.graph.listitem/3kitem", "cid": "bafy"})
	})
	c := loggedInClient(t, srv)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err := c.AddToList(context.Background(), moderation.ListItem{
		Subject:   "did:plc:x",
		List:      "at://did:plc:me/app.bsky.graph.list/3klist",
		CreatedAt: at,
	})
	require.NoError(t, err)

	assert.Equal(t, "did:plc:me", got.Repo)
	assert.Equal(t, CollectionListItem, got.Collection)
	assert.Equal(t, listItemRecord{
		Type:      CollectionListItem,
		Subject:   "did:plc:x",
		List:      "at://did:plc:me/app.bsky.graph.list/3klist",
		CreatedAt: "2026-03-01T12:00:00Z",
	}, record)
}

func TestAddToList_FailureIsExternalActionError(t *testing.T) {
	srv := newXRPCServer(t)
	srv.handle("com.atproto.repo.createRecord", func(w http.ResponseWriter, r *http.Request) {
		writeXRPCError(w, http.StatusBadRequest, "InvalidRequest", "Record/list must be a list")
	})
	c := loggedInClient(t, srv)

	err := c.AddToList(context.Background(), moderation.ListItem{Subject: "did:plc:x", List: "bad"})
	require.Error(t, err)
	assert.True(t, moderation.IsExternalActionError(err))
}

func TestAddToList_RequiresSession(t *testing.T) {
	c := newTestClient(newXRPCServer(t))

	err := c.AddToList(context.Background(), moderation.ListItem{Subject: "did:plc:x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestAddToList_TransientFailureIsNotReplayed(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   string
	}{
		{"bad_gateway", http.StatusBadGateway, "UpstreamFailure"},
		{"unavailable", http.StatusServiceUnavailable, "Unavailable"},
		{"rate_limited", http.StatusTooManyRequests, "RateLimitExceeded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newXRPCServer(t)
			srv.handle("com.atproto.repo.createRecord", func(w http.ResponseWriter, r *http.Request) {
				// The first write may have been committed upstream; later
				// attempts would succeed and create a second listitem.
				if srv.count("com.atproto.repo.createRecord") == 1 {
					writeXRPCError(w, tt.status, tt.code, "try again")
					return
				}
				writeJSON(w, map[string]string{"uri": "at://did:plc:me/app.bsky.graph.listitem/3kitem", "cid": "bafy"})
			})
			c := loggedInClient(t, srv)

			err := c.AddToList(context.Background(), moderation.ListItem{
				Subject: "did:plc:x",
				List:    "at://did:plc:me/app.bsky.graph.list/3klist",
			})
			require.Error(t, err)
			assert.True(t, moderation.IsExternalActionError(err))
			assert.Equal(t, 1, srv.count("com.atproto.repo.createRecord"))
		})
	}
}

func TestAddToList_ExpiredTokenRefreshesAndResendsOnce(t *testing.T) {
	srv := newXRPCServer(t)
	srv.handle("com.atproto.repo.createRecord", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer a2" {
			writeXRPCError(w, http.StatusBadRequest, "ExpiredToken", "Token has expired")
			return
		}
		writeJSON(w, map[string]string{"uri": "at://did:plc:me/app.bsky.graph.listitem/3kitem", "cid": "bafy"})
	})
	srv.handle("com.atproto.server.refreshSession", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{
			"did": "did:plc:me", "handle": "me.test", "accessJwt": "a2", "refreshJwt": "r2",
		})
	})
	c := loggedInClient(t, srv)

	err := c.AddToList(context.Background(), moderation.ListItem{
		Subject: "did:plc:x",
		List:    "at://did:plc:me/app.bsky.graph.list/3klist",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, srv.count("com.atproto.repo.createRecord"))
	assert.Equal(t, 1, srv.count("com.atproto.server.refreshSession"))
}

func TestRetry_TransientFailures(t *testing.T) {
	srv := newXRPCServer(t)
	srv.handle("com.atproto.identity.resolveHandle", func(w http.ResponseWriter, r *http.Request) {
		if srv.count("com.atproto.identity.resolveHandle") < 3 {
			writeXRPCError(w, http.StatusBadGateway, "UpstreamFailure", "try again")
			return
		}
		writeJSON(w, map[string]string{"did": "did:plc:alice"})
	})
	c := newTestClient(srv)

	did, err := c.ResolveHandle(context.Background(), "alice.test")
	require.NoError(t, err)
	assert.Equal(t, "did:plc:alice", did)
	assert.Equal(t, 3, srv.count("com.atproto.identity.resolveHandle"))
}

func TestRetry_GivesUp(t *testing.T) {
	srv := newXRPCServer(t)
	srv.handle("app.bsky.feed.getLikes", func(w http.ResponseWriter, r *http.Request) {
		writeXRPCError(w, http.StatusServiceUnavailable, "Unavailable", "down")
	})
	c := newTestClient(srv)

	_, err := c.GetLikes(context.Background(), "at://did:plc:a/app.bsky.feed.post/1", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "giving up after 3 attempts")
	assert.Equal(t, 3, srv.count("app.bsky.feed.getLikes"))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(&APIError{StatusCode: 500}))
	assert.True(t, isRetryable(&APIError{StatusCode: http.StatusTooManyRequests}))
	assert.False(t, isRetryable(&APIError{StatusCode: 400}))
	assert.True(t, isRetryable(&transportError{err: assert.AnError}))
	assert.False(t, isRetryable(context.Canceled))
}
