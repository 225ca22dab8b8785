package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/vay-org/motionsdk-go/protocol"
)

// ErrorKind buckets session failures for the consumer.
type ErrorKind int

const (
	// ErrorKindOther is the catch-all for unclassified failures.
	ErrorKindOther ErrorKind = iota

	// ErrorKindConnection covers transport-level failures (DNS, TLS, socket).
	ErrorKindConnection

	// ErrorKindTimeout means no response arrived within the transport window.
	ErrorKindTimeout

	// ErrorKindInvalidInput means the server rejected a configuration or
	// frame payload as malformed or oversized.
	ErrorKindInvalidInput

	// ErrorKindServer is a server-side failure unrelated to the request.
	ErrorKindServer
)

// String returns a readable name for the kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrorKindConnection:
		return "connection"
	case ErrorKindTimeout:
		return "timeout"
	case ErrorKindInvalidInput:
		return "invalidInput"
	case ErrorKindServer:
		return "server"
	default:
		return "other"
	}
}

// Error is a classified session failure delivered to the error handler.
// Code is the service error code when the failure originated server-side,
// zero otherwise. Seq is set when the error is addressed to a frame.
type Error struct {
	Kind    ErrorKind
	Code    int
	Seq     int64
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("session error (%s, code %d): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("session error (%s): %s", e.Kind, e.Message)
}

// classifyServerError maps a service error message to an Error.
func classifyServerError(msg *protocol.ErrorMessage) *Error {
	var kind ErrorKind
	switch msg.Code {
	case protocol.CodeInvalidConfiguration,
		protocol.CodeUnauthorized,
		protocol.CodeInvalidFrame,
		protocol.CodeFrameTooLarge:
		kind = ErrorKindInvalidInput
	case protocol.CodeTimeout:
		kind = ErrorKindTimeout
	case protocol.CodeInternal:
		kind = ErrorKindServer
	default:
		kind = ErrorKindOther
	}
	return &Error{Kind: kind, Code: msg.Code, Seq: msg.Seq, Message: msg.Message}
}

// classifyTransportError maps a transport failure to an Error.
func classifyTransportError(err error) *Error {
	kind := ErrorKindOther

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		kind = ErrorKindTimeout
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			kind = ErrorKindTimeout
		} else {
			kind = ErrorKindConnection
		}
	}
	return &Error{Kind: kind, Message: err.Error()}
}
