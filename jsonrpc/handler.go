package jsonrpc

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// DefaultSeparator separates a sub-handler prefix from the rest of a method path.
const DefaultSeparator = "."

var (
	ErrHandlerCycle  = errors.New("jsonrpc: sub-handler would create a cycle")
	ErrInvalidName   = errors.New("jsonrpc: invalid method or prefix name")
	ErrDuplicateName = errors.New("jsonrpc: method already registered")
)

// Resolver maps a method path to a Method.
//
// Resolve fails with a Fault: NoSuchFunction when nothing is registered under
// the path, NotCallable when the entry exists but cannot be invoked.
type Resolver interface {
	Resolve(path string) (*Method, error)
}

// Handler is a method namespace: locally registered methods plus named
// sub-handlers, forming a tree.
//
// Registration is safe at any time, but the intended use is to build the tree
// before serving.
type Handler struct {
	separator       string
	notFoundCode    int
	notCallableCode int

	mu          sync.RWMutex
	methods     map[string]*Method
	subHandlers map[string]*Handler
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithSeparator changes the prefix separator.
func WithSeparator(sep string) HandlerOption {
	return func(h *Handler) {
		if sep != "" {
			h.separator = sep
		}
	}
}

// WithNotFoundCode sets the code of NoSuchFunction faults raised by this handler.
func WithNotFoundCode(code int) HandlerOption {
	return func(h *Handler) {
		h.notFoundCode = code
	}
}

// WithNotCallableCode sets the code of NotCallable faults raised by this handler.
func WithNotCallableCode(code int) HandlerOption {
	return func(h *Handler) {
		h.notCallableCode = code
	}
}

// NewHandler creates an empty Handler.
func NewHandler(opts ...HandlerOption) *Handler {
	h := &Handler{
		separator:       DefaultSeparator,
		notFoundCode:    CodeMethodNotFound,
		notCallableCode: CodeMethodNotCallable,
		methods:         make(map[string]*Method),
		subHandlers:     make(map[string]*Handler),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Separator returns the prefix separator.
func (h *Handler) Separator() string {
	return h.separator
}

// NotFoundCode returns the code used for NoSuchFunction faults.
func (h *Handler) NotFoundCode() int {
	return h.notFoundCode
}

func (h *Handler) validName(name string) bool {
	return name != "" && !strings.Contains(name, h.separator)
}

// Register adds a method under name. A Method with a nil Func is kept in the
// table but resolves to NotCallable.
func (h *Handler) Register(name string, m *Method) error {
	if !h.validName(name) || m == nil {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.methods[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	h.methods[name] = m
	return nil
}

// RegisterFunc adapts fn with NewMethod and registers it under name.
func (h *Handler) RegisterFunc(name string, fn any, opts ...MethodOption) error {
	m, err := NewMethod(fn, opts...)
	if err != nil {
		return fmt.Errorf("register %q: %w", name, err)
	}
	return h.Register(name, m)
}

// MustRegister is like RegisterFunc but panics on error.
func (h *Handler) MustRegister(name string, fn any, opts ...MethodOption) {
	if err := h.RegisterFunc(name, fn, opts...); err != nil {
		panic(err)
	}
}

// mountMu serializes PutSubHandler so the cycle check and the insert see the
// same tree.
var mountMu sync.Mutex

// PutSubHandler mounts sub under prefix, replacing any previous sub-handler.
// The tree must stay acyclic: h itself or any handler that already contains
// h is rejected.
func (h *Handler) PutSubHandler(prefix string, sub *Handler) error {
	if !h.validName(prefix) || sub == nil {
		return fmt.Errorf("%w: %q", ErrInvalidName, prefix)
	}
	mountMu.Lock()
	defer mountMu.Unlock()
	if sub == h || sub.contains(h) {
		return fmt.Errorf("%w: %q", ErrHandlerCycle, prefix)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subHandlers[prefix] = sub
	return nil
}

// contains reports whether target is h or reachable below h.
func (h *Handler) contains(target *Handler) bool {
	seen := map[*Handler]bool{}
	todo := []*Handler{h}
	for len(todo) > 0 {
		n := todo[0]
		todo = todo[1:]
		if n == target {
			return true
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		n.mu.RLock()
		for _, s := range n.subHandlers {
			todo = append(todo, s)
		}
		n.mu.RUnlock()
	}
	return false
}

// SubHandler returns the sub-handler mounted at prefix.
func (h *Handler) SubHandler(prefix string) (*Handler, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.subHandlers[prefix]
	return s, ok
}

// SubHandlerPrefixes returns the mounted prefixes in sorted order.
func (h *Handler) SubHandlerPrefixes() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	prefixes := make([]string, 0, len(h.subHandlers))
	for p := range h.subHandlers {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)
	return prefixes
}

// ListLocalMethods returns the names of this handler's own methods, sorted.
// Sub-handlers are not included.
func (h *Handler) ListLocalMethods() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.methods))
	for n := range h.methods {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve implements Resolver. The path is split on the first separator: the
// prefix names a sub-handler which resolves the remainder.
func (h *Handler) Resolve(path string) (*Method, error) {
	if prefix, rest, ok := strings.Cut(path, h.separator); ok {
		sub, found := h.SubHandler(prefix)
		if !found {
			return nil, NoSuchFunction(h.notFoundCode, "no such sub-handler "+prefix)
		}
		return sub.Resolve(rest)
	}

	h.mu.RLock()
	m, ok := h.methods[path]
	h.mu.RUnlock()
	if !ok {
		return nil, NoSuchFunction(h.notFoundCode, "function "+path+" not found")
	}
	if m.Func == nil {
		return nil, NotCallable(h.notCallableCode, "function "+path+" not callable")
	}
	return m, nil
}

var _ Resolver = (*Handler)(nil)
