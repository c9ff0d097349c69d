package lite3

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// Option validation errors
var ErrInvalidSeedHost = errors.New("seed host is required")

var ErrInvalidSeedPort = errors.New("seed port must be between 1 and 65535")

var ErrInvalidTimeout = errors.New("timeout must be greater than or equal to 0")

var ErrInvalidProbeTimeout = errors.New("probe timeout must be greater than 0")

var ErrInvalidConcurrency = errors.New("concurrency must be greater than 0")

var ErrInvalidRefreshMaxRetries = errors.New("refresh max retries must be greater than or equal to 0")

var ErrInvalidRefreshBackoff = errors.New("refresh backoff must be greater than 0")

var ErrInvalidRefreshTimeout = errors.New("refresh timeout must be greater than 0")

var ErrInvalidRefreshAfterFailures = errors.New("refresh after failures must be greater than or equal to 0")

var ErrInvalidPlacement = errors.New("placement must be ring or rendezvous")

// ErrorKind is the coarse classification of a failed operation.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindConnectionRefused
	KindNetwork
	KindTimeout
	KindBadRequest
	KindNotFound
	KindServerError
	KindSerialization
)

func (k ErrorKind) String() string {
	switch k {
	case KindConnectionRefused:
		return "connection_refused"
	case KindNetwork:
		return "network_error"
	case KindTimeout:
		return "timeout"
	case KindBadRequest:
		return "bad_request"
	case KindNotFound:
		return "not_found"
	case KindServerError:
		return "server_error"
	case KindSerialization:
		return "serialization_error"
	default:
		return "unknown"
	}
}

// Error is the error value returned by every key-value operation.
type Error struct {
	Kind    ErrorKind
	Message string
	// Status is the HTTP status for KindServerError, zero otherwise.
	Status int
	Err    error
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
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

// Is reports whether target is an *Error of the same kind, so callers can
// write errors.Is(err, lite3.ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Kind sentinels for use with errors.Is
var (
	ErrConnectionRefused = &Error{Kind: KindConnectionRefused, Message: "connection refused"}
	ErrNetwork           = &Error{Kind: KindNetwork, Message: "network error"}
	ErrTimeout           = &Error{Kind: KindTimeout, Message: "timeout"}
	ErrBadRequest        = &Error{Kind: KindBadRequest, Message: "bad request"}
	ErrNotFound          = &Error{Kind: KindNotFound, Message: "key not found"}
	ErrServerError       = &Error{Kind: KindServerError, Message: "server error"}
	ErrSerialization     = &Error{Kind: KindSerialization, Message: "serialization error"}
)

// KindOf returns the kind of err, KindUnknown for foreign errors and for nil.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// isTransportKind reports whether the kind means the node could not be
// talked to, as opposed to the node answering with a failure.
func isTransportKind(k ErrorKind) bool {
	return k == KindNetwork || k == KindTimeout || k == KindConnectionRefused
}

// transportError classifies an error returned by the HTTP transport.
func transportError(op string, err error) *Error {
	var ne net.Error
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return &Error{Kind: KindConnectionRefused, Message: op, Err: err}
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &ne) && ne.Timeout():
		return &Error{Kind: KindTimeout, Message: op, Err: err}
	default:
		return &Error{Kind: KindNetwork, Message: op, Err: err}
	}
}
