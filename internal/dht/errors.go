package dht

import (
	"errors"
	"fmt"
)

// KError is a protocol/method-level error, carried on the wire in an "e"
// message. A handler returns one when the input is valid bencode but
// semantically rejected.
type KError struct {
	Code    int
	Message string
}

const (
	ErrorGeneric       = 201
	ErrorServer        = 202
	ErrorProtocol      = 203
	ErrorMethodUnknown = 204
)

func (e *KError) Error() string {
	return fmt.Sprintf("krpc error %d: %s", e.Code, e.Message)
}

// TransError is surfaced to API callers: either the remote returned a
// KError, a local I/O failure occurred, or the query timed out.
type TransError struct {
	Inner *KError
	Cause error
}

var (
	// ErrTimeout indicates the query deadline elapsed with no response.
	ErrTimeout = errors.New("dht: query timed out")

	// ErrShuttingDown is returned to every outstanding caller when the
	// service is finalized.
	ErrShuttingDown = errors.New("dht: shutting down")
)

func (e *TransError) Error() string {
	if e.Inner != nil {
		return e.Inner.Error()
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return "dht: transaction error"
}

func (e *TransError) Unwrap() error {
	return e.Cause
}

// NewTimeoutError returns a TransError wrapping ErrTimeout.
func NewTimeoutError() *TransError {
	return &TransError{Cause: ErrTimeout}
}

// NewShutdownError returns a TransError wrapping ErrShuttingDown.
func NewShutdownError() *TransError {
	return &TransError{Cause: ErrShuttingDown}
}

// NewIOError wraps an I/O failure as a TransError.
func NewIOError(cause error) *TransError {
	return &TransError{Cause: fmt.Errorf("dht: io error: %w", cause)}
}

// NewKTransError wraps a remote KError as a TransError.
func NewKTransError(inner *KError) *TransError {
	return &TransError{Inner: inner}
}
