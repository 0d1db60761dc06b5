package web

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/mnehpets/rpcserve/jsonrpc"
)

// DefaultMaxBodyBytes bounds the size of a request body.
const DefaultMaxBodyBytes = 1 << 20

// Resource is an http.Handler that serves JSON-RPC over POST.
type Resource struct {
	handler      jsonrpc.MessageHandler
	processors   []Processor
	maxBodyBytes int64
	logger       *slog.Logger
	chain        *Handler
}

// ResourceOption configures a Resource.
type ResourceOption func(*Resource)

// WithProcessors appends processors that run before every call.
func WithProcessors(p ...Processor) ResourceOption {
	return func(res *Resource) {
		res.processors = append(res.processors, p...)
	}
}

// WithMaxBodyBytes sets the largest request body accepted; larger bodies get 413.
func WithMaxBodyBytes(n int64) ResourceOption {
	return func(res *Resource) {
		if n > 0 {
			res.maxBodyBytes = n
		}
	}
}

// WithLogger sets the logger for abandoned calls.
func WithLogger(l *slog.Logger) ResourceOption {
	return func(res *Resource) {
		if l != nil {
			res.logger = l
		}
	}
}

// NewResource creates a Resource that hands each request body to h.
func NewResource(h jsonrpc.MessageHandler, opts ...ResourceOption) *Resource {
	res := &Resource{
		handler:      h,
		maxBodyBytes: DefaultMaxBodyBytes,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(res)
	}
	res.chain = &Handler{Endpoint: res.call, Processors: res.processors}
	return res
}

// ServeHTTP implements http.Handler.
func (res *Resource) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res.chain.ServeHTTP(w, r)
}

func (res *Resource) call(w http.ResponseWriter, r *http.Request) (Renderer, error) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		return nil, Error(http.StatusMethodNotAllowed, "", nil)
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil || (mt != "application/json" && mt != "text/json") {
			return nil, Error(http.StatusUnsupportedMediaType, "", nil)
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, res.maxBodyBytes))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, Error(http.StatusRequestEntityTooLarge, "", err)
		}
		return nil, Error(http.StatusBadRequest, "unreadable request body", err)
	}

	resp, err := res.handler.ServeMessage(r.Context(), body)
	if err != nil {
		res.logger.Warn("jsonrpc call abandoned", "path", r.URL.Path, "remote", r.RemoteAddr, "error", err)
		return nil, Error(http.StatusServiceUnavailable, "", err)
	}
	if resp == nil {
		return &NoContentRenderer{}, nil
	}
	return &JSONRenderer{Body: resp}, nil
}
