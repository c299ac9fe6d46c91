// Package apperror defines the error taxonomy shared by every clinic service.
// Services return *Error values (possibly wrapped); handlers translate them to
// HTTP responses with ToHTTP.
package apperror

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Kind classifies a failure so callers can decide whether to retry.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindState
	KindConflict
	KindNotFound
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindState:
		return "state"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is a classified failure. Msg is safe to show to the end user.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	if e.Op == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func newf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Validation reports bad input shape or range.
func Validation(op, format string, args ...interface{}) error {
	return newf(KindValidation, op, format, args...)
}

// State reports an illegal transition for the current lifecycle state.
func State(op, format string, args ...interface{}) error {
	return newf(KindState, op, format, args...)
}

// Conflict reports a duplicate or a lost concurrent race.
func Conflict(op, format string, args ...interface{}) error {
	return newf(KindConflict, op, format, args...)
}

// NotFound reports a stale or unknown reference.
func NotFound(op, format string, args ...interface{}) error {
	return newf(KindNotFound, op, format, args...)
}

// Timeout reports that a bounded operation exceeded its deadline.
func Timeout(op string, err error) error {
	return &Error{Kind: KindTimeout, Op: op, Msg: "operation timed out", Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain. Context deadline
// and cancellation errors that were never classified count as timeouts.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable is true only for conflicts and timeouts.
func Retryable(err error) bool {
	k := KindOf(err)
	return k == KindConflict || k == KindTimeout
}

// Wrap classifies an infrastructure error returned while performing op.
// Already classified errors pass through unchanged; context expiry becomes a
// Timeout; everything else is wrapped with op for the logs.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Timeout(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Message returns the user-facing message for err.
func Message(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Msg
	}
	return "internal error"
}

// HTTPStatus maps an error to the status code handlers respond with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindState, KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ToHTTP converts err into an *echo.HTTPError. Unclassified errors keep their
// detail in Internal so the request logger records it without leaking it.
func ToHTTP(err error) *echo.HTTPError {
	he := echo.NewHTTPError(HTTPStatus(err), map[string]interface{}{
		"error":     Message(err),
		"kind":      KindOf(err).String(),
		"retryable": Retryable(err),
	})
	he.Internal = err
	return he
}
