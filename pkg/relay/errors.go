package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
)

// Kind classifies why a session failed or ended early.
type Kind int

const (
	// KindInternal is an unexpected failure inside the relay itself.
	KindInternal Kind = iota

	// KindCancelled is a client-initiated or timeout cancellation. It is not
	// an error from the client's point of view.
	KindCancelled

	// KindUpstream is a rejection or failure of the upstream connection.
	KindUpstream

	// KindDecode is a failure to decode upstream data.
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "internal"
	case KindCancelled:
		return "cancelled"
	case KindUpstream:
		return "upstream"
	case KindDecode:
		return "decode"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is the closed error type produced at every relay failure point.
type Error struct {
	Kind Kind

	// Status is the HTTP status to answer with when the failure happens
	// before anything was committed downstream. Zero means unknown.
	Status int

	// Message is the client-safe description written to error responses and
	// error frames.
	Message string

	// Body is the upstream response body for rejections, forwarded as is.
	Body []byte

	// ContentType is the upstream Content-Type accompanying Body.
	ContentType string

	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the status for a synchronous error response.
func (e *Error) HTTPStatus() int {
	if e.Status > 0 {
		return e.Status
	}
	return http.StatusInternalServerError
}

// Unauthorized reports whether the upstream refused our credentials.
func (e *Error) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized
}

// StatusCoder is implemented by errors that carry an HTTP status code.
type StatusCoder interface {
	StatusCode() int
}

// Cancelled wraps a cancellation cause.
func Cancelled(cause error) *Error {
	return &Error{Kind: KindCancelled, Message: "stream cancelled", Err: cause}
}

// UpstreamFailure wraps an upstream failure with the status to report.
func UpstreamFailure(status int, message string, cause error) *Error {
	return &Error{Kind: KindUpstream, Status: status, Message: message, Err: cause}
}

// Decode wraps a failure to decode upstream data.
func Decode(cause error) *Error {
	return &Error{Kind: KindDecode, Message: "invalid upstream data", Err: cause}
}

// Internal wraps an unexpected failure.
func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: cause}
}

// AsError returns err as an *Error when it is one, or nil.
func AsError(err error) *Error {
	var re *Error
	if errors.As(err, &re) {
		return re
	}
	return nil
}

// statusOf returns the status code carried by err, or 0.
func statusOf(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	if re := AsError(err); re != nil {
		return re.Status
	}
	return 0
}

// isCancellation reports whether err is the kind of error produced by
// tearing down a connection on purpose.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, http.ErrBodyReadAfterClose)
}
