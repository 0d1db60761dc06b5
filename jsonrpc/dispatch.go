package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"
)

// MessageHandler is the contract between the core and a transport: one
// complete, de-framed request in, one encoded response out. A nil response
// with a nil error means nothing is sent back (a notification).
type MessageHandler interface {
	ServeMessage(ctx context.Context, data []byte) ([]byte, error)
}

// Dispatcher resolves, invokes and encodes calls. It holds no per-call state
// and is safe for concurrent use.
type Dispatcher struct {
	resolver        Resolver
	failureCode     int
	fallbackVersion Version
	logger          *slog.Logger
	metrics         *Metrics
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithFailureCode sets the code of the generic fault that replaces
// unexpected method errors and unserializable results.
func WithFailureCode(code int) DispatcherOption {
	return func(d *Dispatcher) {
		d.failureCode = code
	}
}

// WithFallbackVersion sets the envelope used to answer requests whose version
// cannot be determined because they do not parse.
func WithFallbackVersion(v Version) DispatcherOption {
	return func(d *Dispatcher) {
		d.fallbackVersion = v
	}
}

// WithLogger sets the logger for method failures.
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMetrics records call outcomes and latency.
func WithMetrics(m *Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// NewDispatcher creates a Dispatcher over r.
func NewDispatcher(r Resolver, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		resolver:        r,
		failureCode:     CodeInternalError,
		fallbackVersion: Version2,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// FailureCode returns the code of the generic failure fault.
func (d *Dispatcher) FailureCode() int {
	return d.failureCode
}

// Dispatch resolves method, invokes it with params and waits for the result.
//
// The returned error is a *Fault, except when ctx ends before an asynchronous
// result settles; then the context error is returned and the call should be
// abandoned by the transport.
func (d *Dispatcher) Dispatch(ctx context.Context, method string, params Params) (result any, err error) {
	started := time.Now()
	resolved := false
	defer func() {
		d.metrics.observe(method, resolved, err, time.Since(started))
	}()

	m, err := d.resolver.Resolve(method)
	if err != nil {
		return nil, toFault(err, d.failureCode)
	}
	resolved = true

	result, err = d.invoke(ctx, method, m, params)
	if err == nil {
		if f, ok := result.(*Future); ok && f != nil {
			result, err = f.Wait(ctx)
		}
	}
	if err != nil {
		if isAbandoned(err) && ctx.Err() != nil {
			return nil, err
		}
		return nil, d.normalize(method, err)
	}
	return result, nil
}

func (d *Dispatcher) invoke(ctx context.Context, method string, m *Method, params Params) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("jsonrpc panic", "method", method, "panic", r, "stack", string(debug.Stack()))
			result, err = nil, InternalError(d.failureCode, msgFailure)
		}
	}()
	return m.Func(ctx, params)
}

// normalize passes faults through and logs and hides everything else.
func (d *Dispatcher) normalize(method string, err error) *Fault {
	if f, ok := AsFault(err); ok {
		return f
	}
	d.logger.Error("jsonrpc method failed", "method", method, "error", err)
	return InternalError(d.failureCode, msgFailure)
}

// Go dispatches on a new goroutine and returns the pending outcome.
func (d *Dispatcher) Go(ctx context.Context, method string, params Params) *Future {
	return Go(func() (any, error) {
		return d.Dispatch(ctx, method, params)
	})
}

// EncodeResponse encodes result for v, using the dispatcher's failure code
// when the result cannot be serialized.
func (d *Dispatcher) EncodeResponse(v Version, id []byte, result any) ([]byte, error) {
	return encodeResponse(v, id, result, d.failureCode)
}

// ServeMessage implements MessageHandler. A JSON array is served as a 2.0
// batch.
func (d *Dispatcher) ServeMessage(ctx context.Context, data []byte) ([]byte, error) {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		return d.serveBatch(ctx, trimmed)
	}
	return d.serveOne(ctx, data, d.fallbackVersion)
}

// serveBatch answers each entry in order and returns the responses as an
// array. Notifications are left out; a batch of only notifications gets no
// response.
func (d *Dispatcher) serveBatch(ctx context.Context, data []byte) ([]byte, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return d.EncodeResponse(Version2, nil, ParseError("parse error"))
	}
	if len(entries) == 0 {
		return d.EncodeResponse(Version2, nil, InvalidRequest("empty batch"))
	}

	var out bytes.Buffer
	for _, entry := range entries {
		var resp []byte
		var err error
		if trimmed := bytes.TrimSpace(entry); len(trimmed) == 0 || trimmed[0] != '{' {
			resp, err = d.EncodeResponse(Version2, nil, InvalidRequest("request must be an object"))
		} else {
			resp, err = d.serveOne(ctx, entry, Version2)
		}
		if err != nil {
			return nil, err
		}
		if resp == nil {
			continue
		}
		if out.Len() == 0 {
			out.WriteByte('[')
		} else {
			out.WriteByte(',')
		}
		out.Write(resp)
	}
	if out.Len() == 0 {
		return nil, nil
	}
	out.WriteByte(']')
	return out.Bytes(), nil
}

// serveOne answers a single request. Requests that do not parse are answered
// in the fallback version.
func (d *Dispatcher) serveOne(ctx context.Context, data []byte, fallback Version) ([]byte, error) {
	req, err := DecodeRequest(data)
	if err != nil {
		if req == nil {
			return d.EncodeResponse(fallback, nil, err)
		}
		if req.Notification {
			return nil, nil
		}
		return d.EncodeResponse(req.Version, req.ID, err)
	}

	result, err := d.Dispatch(ctx, req.Method, req.Params)
	if err != nil {
		if _, ok := AsFault(err); !ok {
			return nil, fmt.Errorf("jsonrpc: %s abandoned: %w", req.Method, err)
		}
		result = err
	}
	if req.Notification {
		return nil, nil
	}
	return d.EncodeResponse(req.Version, req.ID, result)
}

var _ MessageHandler = (*Dispatcher)(nil)
