package jsonrpc

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const (
	testFailure        = 666
	testNotFound       = 23
	testSessionExpired = 42
)

var errSecret = errors.New("secret internal detail: db password is hunter2")

// newTestHandler builds the method tree used across the package tests.
func newTestHandler() *Handler {
	h := NewHandler(WithNotFoundCode(testNotFound))

	h.MustRegister("add", func(a, b float64) float64 { return a + b },
		WithDoc("\n    This function add two numbers.\n    "),
		WithSignature([]string{"int", "int", "int"}, []string{"double", "double", "double"}))
	h.MustRegister("pair", func(s string, n int) []any { return []any{s, n} },
		WithDoc("This function puts the two arguments in an array."),
		WithSignature([]string{"array", "string", "int"}))
	h.MustRegister("defer", func(x any) *Future { return Resolved(x) },
		WithDoc("Help for defer."))
	h.MustRegister("deferFail", func() *Future { return Rejected(errSecret) })
	h.MustRegister("fail", func() (any, error) { return nil, errSecret })
	h.MustRegister("fault", func() error { return NewFault(12, "hello") })
	h.MustRegister("deferFault", func() *Future { return Rejected(NewFault(17, "hi")) })
	h.MustRegister("complex", func() map[string]any {
		return map[string]any{"a": []any{"b", "c", 12, []any{}}, "D": "foo"}
	})
	h.MustRegister("dict", func(m map[string]any, key string) any { return m[key] },
		WithHelp("Help for dict."))
	h.MustRegister("echo", func(ctx context.Context, s string) (string, error) { return s, nil })
	h.MustRegister("panic", func() int { panic("boom: " + errSecret.Error()) })
	h.MustRegister("sleep", func(ms int, v any) *Future {
		return Go(func() (any, error) {
			time.Sleep(time.Duration(ms) * time.Millisecond)
			return v, nil
		})
	})
	h.MustRegister("unserializable", func() any { return make(chan int) })
	return h
}

// sessionResolver maps unknown SESSION* paths to a session-expired fault.
type sessionResolver struct {
	*Handler
}

func (r sessionResolver) Resolve(path string) (*Method, error) {
	m, err := r.Handler.Resolve(path)
	if err != nil && errors.Is(err, ErrNoSuchFunction) && strings.HasPrefix(path, "SESSION") {
		return nil, NewFault(testSessionExpired, "Session non-existant/expired.")
	}
	return m, err
}

// logBuffer is a goroutine-safe log sink.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDispatcher(opts ...DispatcherOption) *Dispatcher {
	opts = append([]DispatcherOption{WithFailureCode(testFailure), WithLogger(discardLogger())}, opts...)
	return NewDispatcher(sessionResolver{newTestHandler()}, opts...)
}
