package bsky

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/roach88/reactsync/internal/moderation"
	"github.com/roach88/reactsync/internal/session"
)

// ErrNotAuthenticated is returned by calls that need a session before
// Login or Resume succeeded.
var ErrNotAuthenticated = errors.New("bsky: not authenticated")

// credential is the opaque blob persisted by the session store.
type credential struct {
	DID        string `json:"did"`
	Handle     string `json:"handle"`
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
}

func (c credential) encode() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode credential: %w", err)
	}
	return string(data), nil
}

func decodeCredential(s string) (credential, error) {
	var c credential
	if err := json.Unmarshal([]byte(s), &c); err != nil {
		return credential{}, fmt.Errorf("decode credential: %w", err)
	}
	if c.DID == "" || c.AccessJwt == "" || c.RefreshJwt == "" {
		return credential{}, errors.New("decode credential: incomplete credential")
	}
	return c, nil
}

func (c credential) account() (session.Account, error) {
	blob, err := c.encode()
	if err != nil {
		return session.Account{}, err
	}
	return session.Account{Handle: c.Handle, DID: c.DID, Credential: blob}, nil
}

func (c *Client) current() (credential, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.auth == nil {
		return credential{}, ErrNotAuthenticated
	}
	return *c.auth, nil
}

func (c *Client) setCurrent(cred credential) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.auth = &cred
}

// Login creates a new session with an app password.
func (c *Client) Login(ctx context.Context, handle, password string) (session.Account, error) {
	var resp credential
	err := c.send(ctx, xrpcCall{
		host:   c.pdsHost,
		method: http.MethodPost,
		nsid:   "com.atproto.server.createSession",
		body: map[string]string{
			"identifier": handle,
			"password":   password,
		},
	}, &resp)
	if isAuthRejection(err) {
		return session.Account{}, moderation.NewCredentialError(handle, err)
	}
	if err != nil {
		return session.Account{}, fmt.Errorf("login %s: %w", handle, err)
	}

	c.setCurrent(resp)
	return resp.account()
}

// Resume adopts a stored credential and verifies it with getSession,
// refreshing the access token if it has expired. A credential the server no
// longer accepts yields a moderation credential error.
func (c *Client) Resume(ctx context.Context, blob string) (session.Account, error) {
	cred, err := decodeCredential(blob)
	if err != nil {
		return session.Account{}, moderation.NewCredentialError("", err)
	}
	c.setCurrent(cred)

	var resp struct {
		DID    string `json:"did"`
		Handle string `json:"handle"`
	}
	err = c.authed(ctx, xrpcCall{
		method: http.MethodGet,
		nsid:   "com.atproto.server.getSession",
	}, &resp)
	if isAuthRejection(err) {
		return session.Account{}, moderation.NewCredentialError(cred.Handle, err)
	}
	if err != nil {
		return session.Account{}, fmt.Errorf("resume %s: %w", cred.Handle, err)
	}

	cur, err := c.current()
	if err != nil {
		return session.Account{}, err
	}
	if resp.Handle != "" && resp.Handle != cur.Handle {
		cur.Handle = resp.Handle
		c.setCurrent(cur)
	}
	return cur.account()
}

// refreshSession rotates the token pair and notifies the refresh handler.
func (c *Client) refreshSession(ctx context.Context) (credential, error) {
	cred, err := c.current()
	if err != nil {
		return credential{}, err
	}

	var resp credential
	err = c.send(ctx, xrpcCall{
		host:   c.pdsHost,
		method: http.MethodPost,
		nsid:   "com.atproto.server.refreshSession",
		token:  cred.RefreshJwt,
	}, &resp)
	if isAuthRejection(err) {
		return credential{}, moderation.NewCredentialError(cred.Handle, err)
	}
	if err != nil {
		return credential{}, fmt.Errorf("refresh session %s: %w", cred.Handle, err)
	}
	if resp.DID == "" {
		resp.DID = cred.DID
	}
	if resp.Handle == "" {
		resp.Handle = cred.Handle
	}
	c.setCurrent(resp)

	c.mu.Lock()
	handler := c.refresh
	c.mu.Unlock()
	if handler != nil {
		blob, err := resp.encode()
		if err != nil {
			return credential{}, err
		}
		handler.SessionRefreshed(resp.Handle, blob)
	}
	return resp, nil
}
