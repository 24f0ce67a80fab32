package bsky

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// xrpcServer is a scripted XRPC endpoint. Handlers are keyed by NSID.
type xrpcServer struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	calls    map[string]int
}

func newXRPCServer(t *testing.T) *xrpcServer {
	t.Helper()
	s := &xrpcServer{
		handlers: map[string]http.HandlerFunc{},
		calls:    map[string]int{},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nsid := strings.TrimPrefix(r.URL.Path, "/xrpc/")
		s.mu.Lock()
		s.calls[nsid]++
		h := s.handlers[nsid]
		s.mu.Unlock()
		if h == nil {
			writeXRPCError(w, http.StatusNotImplemented, "MethodNotImplemented", nsid)
			return
		}
		h(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *xrpcServer) handle(nsid string, h http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[nsid] = h
}

func (s *xrpcServer) count(nsid string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[nsid]
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeXRPCError(w http.ResponseWriter, status int, name, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": name, "message": message})
}

func newTestClient(s *xrpcServer) *Client {
	return New(Config{
		PDSHost:           s.URL,
		AppViewHost:       s.URL,
		RequestsPerSecond: 1000,
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
		},
	})
}

type recordingHandler struct {
	mu    sync.Mutex
	calls []string
}

func (h *recordingHandler) SessionRefreshed(handle, credential string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, handle+"|"+credential)
}
