// Package web is the HTTP binding of rpcserve.
//
// A Resource accepts a JSON-RPC request as the body of a POST and writes the
// encoded response as the body of the reply. Every JSON-RPC outcome, faults
// included, is sent with status 200; other statuses only report HTTP-level
// problems (wrong method, oversized body, rate limits, authentication).
//
// Requests pass through a chain of Processors before they reach the
// dispatcher:
//
//  1. Processors run in order. Each may inspect or annotate the request,
//     register a Defer hook, or stop the chain by returning an error.
//  2. The Resource decodes the body and dispatches the call.
//  3. A Renderer writes the status, headers and body.
//
// Errors returned from the chain become plain-text HTTP errors; an *HTTPError
// chooses the status.
package web

import (
	"context"
	"errors"
	"io"
	"net/http"
)

// HTTPError is an error that maps directly to an HTTP status code.
type HTTPError struct {
	Status int
	// Message is a short, human-readable description suitable for an HTTP error body.
	Message string
	Cause   error
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "web: error: <nil>"
	}
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
		if msg == "" {
			msg = "unknown error"
		}
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *HTTPError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Error creates a new HTTPError. An err that already carries an HTTPError is
// returned unchanged.
func Error(status int, message string, err error) error {
	var he *HTTPError
	if errors.As(err, &he) {
		return err
	}
	return &HTTPError{Status: status, Message: message, Cause: err}
}

// Renderer writes a response.
//
// Renderers MUST call w.WriteHeader and may set Content-Type before doing so.
// A returned error means the response could not be written.
type Renderer interface {
	Render(w http.ResponseWriter, r *http.Request) error
}

// RendererFunc adapts a function to a Renderer.
type RendererFunc func(w http.ResponseWriter, r *http.Request) error

func (f RendererFunc) Render(w http.ResponseWriter, r *http.Request) error {
	return f(w, r)
}

// Processor is middleware-style logic that runs before the Renderer.
//
// Protocol:
//   - Processors MUST call next(...), unless they intend to
//     short-circuit the request by returning an error.
//   - Processors MUST NOT call w.WriteHeader(...).
//   - Processors MUST NOT write to the response body.
//
// If any processor returns a non-nil error, the chain stops immediately and
// that error becomes the HTTP response.
type Processor interface {
	Process(w http.ResponseWriter, r *http.Request, next func(w http.ResponseWriter, r *http.Request) error) error
}

// ProcessorFunc adapts a function to a Processor.
type ProcessorFunc func(w http.ResponseWriter, r *http.Request, next func(w http.ResponseWriter, r *http.Request) error) error

func (f ProcessorFunc) Process(w http.ResponseWriter, r *http.Request, next func(w http.ResponseWriter, r *http.Request) error) error {
	return f(w, r, next)
}

// EndpointFunc produces the Renderer for a request once all processors ran.
type EndpointFunc func(w http.ResponseWriter, r *http.Request) (Renderer, error)

// Handler runs Processors and then Endpoint, and renders the result.
type Handler struct {
	Endpoint   EndpointFunc
	Processors []Processor
}

type hooksKey struct{}

// Defer registers a function to be called before the response headers are
// written. fn must not call WriteHeader itself. Outside a Handler it is a no-op.
func Defer(ctx context.Context, fn func(http.ResponseWriter)) {
	hooks, ok := ctx.Value(hooksKey{}).(*[]func(http.ResponseWriter))
	if ok && hooks != nil {
		*hooks = append(*hooks, fn)
	}
}

// Commit runs the functions registered with Defer, last first, and forgets them.
func Commit(ctx context.Context, w http.ResponseWriter) {
	hooks, ok := ctx.Value(hooksKey{}).(*[]func(http.ResponseWriter))
	if ok && hooks != nil {
		for i := len(*hooks) - 1; i >= 0; i-- {
			(*hooks)[i](w)
		}
		*hooks = nil
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Endpoint == nil {
		http.Error(w, "web: nil EndpointFunc", http.StatusInternalServerError)
		return
	}

	if r.Context().Value(hooksKey{}) == nil {
		var hooks []func(http.ResponseWriter)
		r = r.WithContext(context.WithValue(r.Context(), hooksKey{}, &hooks))
	}

	var run func(i int, w2 http.ResponseWriter, r2 *http.Request) error
	run = func(i int, w2 http.ResponseWriter, r2 *http.Request) error {
		if i < len(h.Processors) {
			if h.Processors[i] == nil {
				return errors.New("web: nil processor")
			}
			return h.Processors[i].Process(w2, r2, func(w3 http.ResponseWriter, r3 *http.Request) error {
				return run(i+1, w3, r3)
			})
		}

		renderer, err := h.Endpoint(w2, r2)
		if err != nil {
			return err
		}
		if renderer == nil {
			return errors.New("web: nil renderer")
		}
		if c, ok := renderer.(io.Closer); ok {
			defer c.Close()
		}
		Commit(r2.Context(), w2)
		return renderer.Render(w2, r2)
	}

	if err := run(0, w, r); err != nil {
		status := http.StatusInternalServerError
		var message string
		var he *HTTPError
		if errors.As(err, &he) && he != nil {
			if he.Status >= 100 {
				status = he.Status
			}
			message = he.Message
			if message == "" {
				message = http.StatusText(status)
			}
		} else {
			message = err.Error()
		}
		Commit(r.Context(), w)
		http.Error(w, message, status)
	}
}
