package jsonrpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeParseError        = -32700
	CodeInvalidRequest    = -32600
	CodeMethodNotFound    = -32601
	CodeInvalidParams     = -32602
	CodeInternalError     = -32603
	CodeMethodNotCallable = -32604
)

// Codes used by older Twisted-based servers. Peers speaking to those servers
// may configure handlers and dispatchers with them.
const (
	LegacyNotFound = 8001
	LegacyFailure  = 8002
)

// Fault kinds. A decoded or constructed Fault unwraps to one of these, so
// local code can use errors.Is while the wire only carries code and message.
var (
	ErrFault          = errors.New("fault")
	ErrParse          = errors.New("parse error")
	ErrInvalidRequest = errors.New("invalid request")
	ErrInvalidParams  = errors.New("invalid params")
	ErrNoSuchFunction = errors.New("no such function")
	ErrNotCallable    = errors.New("not callable")
	ErrInternal       = errors.New("internal error")
)

// Fault is a protocol-level error. It is the only error that crosses the wire.
type Fault struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`

	kind error
}

func (f *Fault) Error() string {
	if f == nil {
		return "jsonrpc: fault: <nil>"
	}
	return fmt.Sprintf("jsonrpc: fault %d: %s", f.Code, f.Message)
}

// Unwrap returns the fault kind.
func (f *Fault) Unwrap() error {
	if f == nil || f.kind == nil {
		return ErrFault
	}
	return f.kind
}

// Kind returns the short name used for the pre-1.0 "fault" discriminator.
func (f *Fault) Kind() string {
	switch f.Unwrap() {
	case ErrParse:
		return "ParseError"
	case ErrInvalidRequest:
		return "InvalidRequest"
	case ErrInvalidParams:
		return "InvalidParams"
	case ErrNoSuchFunction:
		return "NoSuchFunction"
	case ErrNotCallable:
		return "NotCallable"
	case ErrInternal:
		return "InternalError"
	}
	return "Fault"
}

// NewFault creates an application fault.
func NewFault(code int, message string) *Fault {
	return &Fault{Code: code, Message: message, kind: ErrFault}
}

// WithData returns a copy of f carrying data.
func (f *Fault) WithData(data any) *Fault {
	c := *f
	c.Data = data
	return &c
}

func newFault(kind error, code int, message string) *Fault {
	return &Fault{Code: code, Message: message, kind: kind}
}

// ParseError reports malformed envelope bytes.
func ParseError(message string) *Fault {
	return newFault(ErrParse, CodeParseError, message)
}

// InvalidRequest reports a well-formed document that is not a request.
func InvalidRequest(message string) *Fault {
	return newFault(ErrInvalidRequest, CodeInvalidRequest, message)
}

// InvalidParams reports positional arguments that cannot be bound.
func InvalidParams(message string) *Fault {
	return newFault(ErrInvalidParams, CodeInvalidParams, message)
}

// NoSuchFunction reports a method path that does not resolve.
func NoSuchFunction(code int, message string) *Fault {
	return newFault(ErrNoSuchFunction, code, message)
}

// NotCallable reports a method path that resolves to something that cannot be invoked.
func NotCallable(code int, message string) *Fault {
	return newFault(ErrNotCallable, code, message)
}

// InternalError is the generic fault substituted for unexpected errors.
func InternalError(code int, message string) *Fault {
	return newFault(ErrInternal, code, message)
}

// kindForCode guesses the fault kind of a decoded fault from the standard codes.
func kindForCode(code int) error {
	switch code {
	case CodeParseError:
		return ErrParse
	case CodeInvalidRequest:
		return ErrInvalidRequest
	case CodeInvalidParams:
		return ErrInvalidParams
	case CodeMethodNotFound:
		return ErrNoSuchFunction
	case CodeMethodNotCallable:
		return ErrNotCallable
	case CodeInternalError:
		return ErrInternal
	}
	return ErrFault
}

// AsFault returns the Fault carried by err, if any.
func AsFault(err error) (*Fault, bool) {
	var f *Fault
	if errors.As(err, &f) && f != nil {
		return f, true
	}
	return nil, false
}

// TransportError is a connection-level failure seen by a client. The outcome
// of the call is unknown; it never travels over the wire.
type TransportError struct {
	// Op is the failed step, e.g. "dial", "write", "read", "status".
	Op string
	// Status is the HTTP status code for Op == "status".
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e == nil {
		return "jsonrpc: transport error: <nil>"
	}
	if e.Op == "status" {
		return fmt.Sprintf("jsonrpc: transport: unexpected HTTP status %d %s", e.Status, http.StatusText(e.Status))
	}
	if e.Err == nil {
		return "jsonrpc: transport: " + e.Op
	}
	return "jsonrpc: transport: " + e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsTransportError reports whether err is a transport-level failure.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// isAbandoned reports whether err means the caller gave up on the call.
func isAbandoned(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
