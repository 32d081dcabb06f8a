package jira

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind is the category of a failed tracker call.
type Kind int

const (
	KindTracker        Kind = iota // any other non-200 status
	KindTransport                  // connection failure or redirect loop
	KindDecode                     // unexpected JSON shape
	KindAuthentication             // 401
	KindAuthorization              // 403
	KindNotFound                   // 404
	KindProxyAuth                  // 407
	KindMalformedQuery             // 400
)

// Sentinel errors usable with errors.Is.
var (
	ErrTracker        = &Error{Kind: KindTracker}
	ErrTransport      = &Error{Kind: KindTransport}
	ErrDecode         = &Error{Kind: KindDecode}
	ErrAuthentication = &Error{Kind: KindAuthentication}
	ErrAuthorization  = &Error{Kind: KindAuthorization}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrProxyAuth      = &Error{Kind: KindProxyAuth}
	ErrMalformedQuery = &Error{Kind: KindMalformedQuery}
)

// String returns a human readable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport failure"
	case KindDecode:
		return "decode failure"
	case KindAuthentication:
		return "authentication failure"
	case KindAuthorization:
		return "authorization failure"
	case KindNotFound:
		return "resource not found"
	case KindProxyAuth:
		return "proxy authentication required"
	case KindMalformedQuery:
		return "malformed query"
	default:
		return "tracker failure"
	}
}

// Error is a classified tracker failure.
type Error struct {
	Kind   Kind
	Status int    // HTTP status, 0 for transport and decode failures
	Op     string // request path or operation name
	Body   string // truncated response body
	Err    error  // underlying cause, if any
}

// Error implements error.
func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so the sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Classify maps a non-200 HTTP status to a classified error. It returns nil for 200.
func Classify(status int, op string, body []byte) error {
	if status == http.StatusOK {
		return nil
	}
	e := &Error{Status: status, Op: op, Body: string(trim(body, 2048))}
	switch status {
	case http.StatusBadRequest:
		e.Kind = KindMalformedQuery
	case http.StatusUnauthorized:
		e.Kind = KindAuthentication
	case http.StatusForbidden:
		e.Kind = KindAuthorization
	case http.StatusNotFound:
		e.Kind = KindNotFound
	case http.StatusProxyAuthRequired:
		e.Kind = KindProxyAuth
	default:
		e.Kind = KindTracker
	}
	return e
}

// KindOf returns the Kind of err, or KindTracker when err is not classified.
func KindOf(err error) Kind {
	var de *DecodeError
	if errors.As(err, &de) {
		return KindDecode
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTracker
}

// abandoned classifies a caller giving up on a cached lookup as a transport failure.
// Other errors are returned unchanged.
func abandoned(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTransport, Op: op, Err: err}
	}
	return err
}

// DecodeError is a decode failure that keeps the offending payload.
type DecodeError struct {
	What string // what was being decoded, e.g. "issue"
	Raw  string
	Err  error
}

// Error implements error.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.What, e.Err)
}

// Unwrap returns the underlying cause.
func (e *DecodeError) Unwrap() error { return e.Err }

// Is lets DecodeError match ErrDecode.
func (e *DecodeError) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == KindDecode
}

// trim returns at most n bytes from b.
func trim(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
