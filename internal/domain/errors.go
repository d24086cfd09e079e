package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies signaling and session failures.
type ErrorKind string

const (
	ErrorKindTransport ErrorKind = "transport"
	ErrorKindProtocol  ErrorKind = "protocol"
	ErrorKindState     ErrorKind = "state"
)

// NoStatusCode marks errors that did not come with an HTTP status.
const NoStatusCode = -1

// SignalingError is returned by signaling clients and the session controller.
type SignalingError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *SignalingError) Error() string {
	msg := e.Message
	if e.StatusCode != NoStatusCode {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, msg)
}

func (e *SignalingError) Unwrap() error {
	return e.Err
}

// Is matches another SignalingError of the same kind and message so sentinels
// work with errors.Is.
func (e *SignalingError) Is(target error) bool {
	var other *SignalingError
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind && other.Message == e.Message && other.StatusCode == e.StatusCode
}

func NewTransportError(message string, err error) *SignalingError {
	return &SignalingError{Kind: ErrorKindTransport, StatusCode: NoStatusCode, Message: message, Err: err}
}

func NewProtocolError(statusCode int, message string) *SignalingError {
	return &SignalingError{Kind: ErrorKindProtocol, StatusCode: statusCode, Message: message}
}

func NewStateError(message string) *SignalingError {
	return &SignalingError{Kind: ErrorKindState, StatusCode: NoStatusCode, Message: message}
}

var (
	ErrNotConnected       = NewStateError("session is not connected")
	ErrDataChannelNotOpen = NewStateError("data channel is not open")
)

// KindOf returns the kind of a SignalingError in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var sigErr *SignalingError
	if errors.As(err, &sigErr) {
		return sigErr.Kind
	}
	return ""
}

// StatusCodeOf returns the HTTP status carried by err, or NoStatusCode.
func StatusCodeOf(err error) int {
	var sigErr *SignalingError
	if errors.As(err, &sigErr) {
		return sigErr.StatusCode
	}
	return NoStatusCode
}
