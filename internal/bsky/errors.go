package bsky

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// APIError is an XRPC error response.
type APIError struct {
	StatusCode int
	Name       string `json:"error"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("xrpc %d %s", e.StatusCode, e.Name)
	}
	return fmt.Sprintf("xrpc %d %s: %s", e.StatusCode, e.Name, e.Message)
}

// transportError wraps failures below the HTTP layer.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func decodeAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(data, apiErr)
	if apiErr.Name == "" {
		apiErr.Name = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// isRetryable reports whether err is worth another attempt.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var te *transportError
	if errors.As(err, &te) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

func hasErrorName(err error, names ...string) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, n := range names {
		if apiErr.Name == n {
			return true
		}
	}
	return false
}

func isExpiredToken(err error) bool {
	return hasErrorName(err, "ExpiredToken")
}

// isAuthRejection reports whether the server refused the token outright.
func isAuthRejection(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusUnauthorized ||
		hasErrorName(err, "ExpiredToken", "InvalidToken", "AuthenticationRequired", "AuthFactorTokenRequired")
}
