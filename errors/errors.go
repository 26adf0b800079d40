// Package errors defines the sentinel error taxonomy shared by every
// core component. Handlers map these to HTTP status in one place
// instead of scattering http.Error calls through business logic.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for HTTP status mapping and machine codes.
type Kind int

const (
	KindValidation Kind = iota
	KindAuth
	KindForbidden
	KindNotFound
	KindConflict
	KindForbiddenState
	KindUpstream
	KindIntegrity
)

// Error is the typed error carried through the core. Code is an
// optional machine-readable token (e.g. "MESSAGE_LIMIT_REACHED")
// surfaced to clients alongside Message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Status maps a Kind to its default HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindForbiddenState:
		return http.StatusForbidden
	case KindUpstream:
		return http.StatusBadGateway
	case KindIntegrity:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func Validation(msg string) *Error        { return &Error{Kind: KindValidation, Message: msg} }
func Validationf(f string, a ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(f, a...)}
}
func Auth(msg string) *Error      { return &Error{Kind: KindAuth, Message: msg} }
func Forbidden(msg string) *Error { return &Error{Kind: KindForbidden, Message: msg} }
func NotFound(msg string) *Error  { return &Error{Kind: KindNotFound, Message: msg} }
func Conflict(msg string) *Error  { return &Error{Kind: KindConflict, Message: msg} }

// ForbiddenState carries a machine code for gate failures the client
// is expected to branch on (MESSAGE_LIMIT_REACHED, CONVERSATION_BLOCKED).
func ForbiddenState(code, msg string) *Error {
	return &Error{Kind: KindForbiddenState, Code: code, Message: msg}
}

func Upstream(msg string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: msg, Err: err}
}

// Integrity marks a permanent reconciliation-needed failure (payment
// succeeded but a downstream write failed). Never retried in-request.
func Integrity(msg string, err error) *Error {
	return &Error{Kind: KindIntegrity, Message: msg, Err: err}
}

// As is a thin wrapper around errors.As for call sites that only need
// the typed *Error back.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

var (
	ErrMessageLimitReached  = "MESSAGE_LIMIT_REACHED"
	ErrConversationBlocked  = "CONVERSATION_BLOCKED"
	ErrConversationReported = "CONVERSATION_REPORTED"
)
