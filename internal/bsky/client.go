package bsky

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/roach88/reactsync/internal/session"
)

// Defaults for Config fields left zero.
const (
	DefaultPDSHost           = "https://bsky.social"
	DefaultAppViewHost       = "https://public.api.bsky.app"
	DefaultRequestsPerSecond = 5.0

	userAgent = "reactsync/1"
)

// Config configures a Client.
type Config struct {
	PDSHost           string
	AppViewHost       string
	RequestsPerSecond float64
	HTTPClient        *http.Client
	Retry             RetryConfig
	Logger            *slog.Logger
}

// Client talks XRPC to a PDS and an AppView.
//
// Thread-safety: Client is safe for concurrent use; the session is guarded
// by an internal mutex.
type Client struct {
	pdsHost     string
	appviewHost string
	httpClient  *http.Client
	limiter     *rate.Limiter
	retry       RetryConfig
	logger      *slog.Logger

	mu      sync.Mutex
	auth    *credential
	refresh session.RefreshHandler
}

// New creates a client. Zero Config fields take their defaults.
func New(cfg Config) *Client {
	if cfg.PDSHost == "" {
		cfg.PDSHost = DefaultPDSHost
	}
	if cfg.AppViewHost == "" {
		cfg.AppViewHost = DefaultAppViewHost
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		pdsHost:     strings.TrimRight(cfg.PDSHost, "/"),
		appviewHost: strings.TrimRight(cfg.AppViewHost, "/"),
		httpClient:  cfg.HTTPClient,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		retry:       cfg.Retry.withDefaults(),
		logger:      cfg.Logger,
	}
}

// SetRefreshHandler registers the receiver of rotated credentials.
func (c *Client) SetRefreshHandler(h session.RefreshHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refresh = h
}

// xrpcCall describes one XRPC request.
type xrpcCall struct {
	host   string
	method string
	nsid   string
	params url.Values
	body   any
	token  string

	// noRetry sends the request once. Set for writes the server does not
	// deduplicate, where a replay after an ambiguous failure could apply
	// the write twice.
	noRetry bool
}

// send performs call with pacing and retries, decoding the response into out
// when out is non-nil.
func (c *Client) send(ctx context.Context, call xrpcCall, out any) error {
	if call.noRetry {
		return c.sendOnce(ctx, call, out)
	}
	return withRetry(ctx, c.retry, c.logger, call.nsid, func() error {
		return c.sendOnce(ctx, call, out)
	})
}

func (c *Client) sendOnce(ctx context.Context, call xrpcCall, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	endpoint := call.host + "/xrpc/" + call.nsid
	if len(call.params) > 0 {
		endpoint += "?" + call.params.Encode()
	}

	var body io.Reader
	if call.body != nil {
		data, err := json.Marshal(call.body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", call.nsid, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, call.method, endpoint, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", call.nsid, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if call.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if call.token != "" {
		req.Header.Set("Authorization", "Bearer "+call.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &transportError{err: fmt.Errorf("%s: %w", call.nsid, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", call.nsid, err)
	}
	return nil
}

// query issues an unauthenticated GET against the AppView.
func (c *Client) query(ctx context.Context, nsid string, params url.Values, out any) error {
	return c.send(ctx, xrpcCall{
		host:   c.appviewHost,
		method: http.MethodGet,
		nsid:   nsid,
		params: params,
	}, out)
}

// authed issues a call against the PDS with the current access token,
// refreshing once on ExpiredToken. The resend after a refresh is safe for
// noRetry calls too: the server rejected the first attempt outright.
func (c *Client) authed(ctx context.Context, call xrpcCall, out any) error {
	cred, err := c.current()
	if err != nil {
		return err
	}
	call.host = c.pdsHost
	call.token = cred.AccessJwt

	err = c.send(ctx, call, out)
	if !isExpiredToken(err) {
		return err
	}

	c.logger.Debug("access token expired, refreshing", "handle", cred.Handle)
	refreshed, err := c.refreshSession(ctx)
	if err != nil {
		return err
	}
	call.token = refreshed.AccessJwt
	return c.send(ctx, call, out)
}
