package common

import (
	"errors"
	"fmt"
)

// Quote failure kinds. Match them with errors.Is on any error returned by a quote client.
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrTimeout           = errors.New("timeout")
	ErrMalformedResponse = errors.New("malformed response")
	ErrTransportFailure  = errors.New("transport failure")
	ErrNotYetPublished   = errors.New("not yet published")
)

// QuoteError carries the failing operation and fund code alongside the failure kind.
type QuoteError struct {
	Op   string // "estimate", "real", "info", "search"
	Code string
	Kind error
	Err  error
}

func (e *QuoteError) Error() string {
	target := e.Code
	if target == "" {
		target = "-"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v: %v", e.Op, target, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, target, e.Kind)
}

// Is reports whether target is this error's kind.
func (e *QuoteError) Is(target error) bool {
	return e.Kind == target
}

func (e *QuoteError) Unwrap() error {
	return e.Err
}

// NewQuoteError builds a QuoteError. err may be nil.
func NewQuoteError(op, code string, kind, err error) *QuoteError {
	return &QuoteError{Op: op, Code: code, Kind: kind, Err: err}
}

// IsTransient reports whether a failure is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrTransportFailure)
}

// ErrorKind returns a short label for logging.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, ErrTransportFailure):
		return "transport_failure"
	case errors.Is(err, ErrNotYetPublished):
		return "not_yet_published"
	default:
		return "unknown"
	}
}
