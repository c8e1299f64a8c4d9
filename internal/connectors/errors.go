package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies a source failure so operators and retry policies can tell them apart.
type ErrorKind string

// Error kinds.
const (
	KindNetwork       ErrorKind = "network"
	KindTimeout       ErrorKind = "timeout"
	KindHTTPStatus    ErrorKind = "http_status"
	KindParse         ErrorKind = "parse"
	KindConfiguration ErrorKind = "configuration"
	KindStorage       ErrorKind = "storage"
	KindCanceled      ErrorKind = "canceled"
)

// ErrUnsupportedConnector is returned by the factory for an unknown connector type.
var ErrUnsupportedConnector = errors.New("unsupported connector type")

// Error is a classified failure raised while syncing one data source.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewError wraps err with a kind and the operation that failed.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatusError is returned when a vendor answers with a non-200 status.
type HTTPStatusError struct {
	StatusCode int
	URL        string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// IsRetryable reports whether the vendor is likely to recover on its own.
func (e *HTTPStatusError) IsRetryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// KindOf classifies any error. Errors carrying no recognizable shape count as network failures.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var connErr *Error
	if errors.As(err, &connErr) {
		return connErr.Kind
	}

	return classify(err)
}

func classify(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return KindHTTPStatus
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return KindParse
	}

	if errors.Is(err, ErrUnsupportedConnector) {
		return KindConfiguration
	}

	return KindNetwork
}

// Classify wraps err into an *Error using the inferred kind, keeping an existing classification.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var connErr *Error
	if errors.As(err, &connErr) {
		return err
	}
	return NewError(classify(err), op, err)
}
