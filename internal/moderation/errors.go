package moderation

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes pipeline errors.
type ErrorCode string

const (
	// ErrCodeResolution indicates an actor or post reference could not be
	// resolved. It aborts only the ingestion call in progress.
	ErrCodeResolution ErrorCode = "RESOLUTION"

	// ErrCodeCredential indicates a stored session is no longer accepted.
	// Callers recover by falling back to a full login.
	ErrCodeCredential ErrorCode = "CREDENTIAL"

	// ErrCodeExternalAction indicates the platform rejected or failed an
	// action for a single candidate.
	ErrCodeExternalAction ErrorCode = "EXTERNAL_ACTION"

	// ErrCodeInvariant indicates the durable tables disagree with the
	// staged/done invariant. Processing must stop.
	ErrCodeInvariant ErrorCode = "INVARIANT"
)

// Error is a classified pipeline error.
type Error struct {
	Code    ErrorCode
	Message string

	// Ref is the reference involved (post URL, subject, handle), if any.
	Ref string

	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Ref != "" {
		msg = fmt.Sprintf("%s (ref=%s)", msg, e.Ref)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewResolutionError reports that ref could not be resolved.
func NewResolutionError(ref string, err error) *Error {
	return &Error{Code: ErrCodeResolution, Message: "could not resolve reference", Ref: ref, Err: err}
}

// NewCredentialError reports a rejected session credential.
func NewCredentialError(handle string, err error) *Error {
	return &Error{Code: ErrCodeCredential, Message: "session credential rejected", Ref: handle, Err: err}
}

// NewExternalActionError reports a failed action against subject.
func NewExternalActionError(subject string, err error) *Error {
	return &Error{Code: ErrCodeExternalAction, Message: "external action failed", Ref: subject, Err: err}
}

// NewInvariantError reports an invariant violation for subject.
func NewInvariantError(subject, message string, err error) *Error {
	return &Error{Code: ErrCodeInvariant, Message: message, Ref: subject, Err: err}
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsResolutionError reports whether err is a resolution error.
// Uses errors.As to handle wrapped errors.
func IsResolutionError(err error) bool {
	return hasCode(err, ErrCodeResolution)
}

// IsCredentialError reports whether err is a credential error.
func IsCredentialError(err error) bool {
	return hasCode(err, ErrCodeCredential)
}

// IsExternalActionError reports whether err is an external action error.
func IsExternalActionError(err error) bool {
	return hasCode(err, ErrCodeExternalAction)
}

// IsInvariantError reports whether err is an invariant violation.
func IsInvariantError(err error) bool {
	return hasCode(err, ErrCodeInvariant)
}
