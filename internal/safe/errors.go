// Package safe defines the fixed error taxonomy that is allowed to cross the
// dispatcher boundary. Every error surfaced to a tool caller is one of these
// codes plus an optional bounded hint; nothing else escapes, so token material
// and raw upstream bytes can never leak into a response or audit line.
package safe

import (
	"errors"
	"fmt"
	"strings"
)

const (
	CodeUserInput = "user_input"
	CodeForbidden = "forbidden"
	CodeNotFound  = "not_found"
	CodeConfig    = "config"
	CodeUpstream  = "upstream"
	CodeNetwork   = "network"
	CodeInternal  = "internal"
)

// maxDetail caps the message carried by masked internal errors.
const maxDetail = 200

// Error is a classified, secret-free error. Message and Hint are safe to show
// to callers and to write into audit events.
type Error struct {
	Code    string
	Message string
	Hint    string
}

func (e *Error) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func UserInput(format string, args ...any) *Error {
	return &Error{Code: CodeUserInput, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) *Error {
	return &Error{Code: CodeForbidden, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func Config(format string, args ...any) *Error {
	return &Error{Code: CodeConfig, Message: fmt.Sprintf(format, args...)}
}

// Upstream reports a non-retryable remote API failure. The hint must come
// from the remote body's declared message field, never from raw bytes.
func Upstream(message, hint string) *Error {
	return &Error{Code: CodeUpstream, Message: message, Hint: TrimHint(hint)}
}

func Network(format string, args ...any) *Error {
	return &Error{Code: CodeNetwork, Message: fmt.Sprintf(format, args...)}
}

func Internal(message string) *Error {
	return &Error{Code: CodeInternal, Message: clip(message)}
}

// From classifies err into the taxonomy. A *Error passes through unchanged;
// anything else is masked to an internal error with a length-capped detail.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return Internal(err.Error())
}

// TrimHint collapses a remote message into a single bounded line.
func TrimHint(hint string) string {
	hint = strings.TrimSpace(hint)
	if i := strings.IndexAny(hint, "\r\n"); i >= 0 {
		hint = hint[:i]
	}
	return clip(hint)
}

func clip(s string) string {
	if len(s) > maxDetail {
		return s[:maxDetail]
	}
	return s
}
