package jsonrpc

import (
	"context"
	"fmt"
	"sync"
)

// Future is a result that settles later. Methods return a *Future to produce
// their result asynchronously; the Dispatcher waits for it without holding up
// any other call.
type Future struct {
	once  sync.Once
	done  chan struct{}
	value any
	err   error
}

// NewFuture returns an unsettled Future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolved returns a Future already settled with v.
func Resolved(v any) *Future {
	f := NewFuture()
	f.Resolve(v)
	return f
}

// Rejected returns a Future already settled with err.
func Rejected(err error) *Future {
	f := NewFuture()
	f.Reject(err)
	return f
}

// Go runs fn on a new goroutine and settles the Future with its outcome.
// A panic in fn rejects the Future.
func Go(fn func() (any, error)) *Future {
	f := NewFuture()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				f.Reject(fmt.Errorf("jsonrpc: panic: %v", r))
			}
		}()
		v, err := fn()
		f.settle(v, err)
	}()
	return f
}

// Resolve settles the Future with v. Only the first settlement counts.
func (f *Future) Resolve(v any) bool {
	return f.settle(v, nil)
}

// Reject settles the Future with err. Only the first settlement counts.
func (f *Future) Reject(err error) bool {
	if err == nil {
		err = fmt.Errorf("jsonrpc: future rejected with nil error")
	}
	return f.settle(nil, err)
}

func (f *Future) settle(v any, err error) bool {
	settled := false
	f.once.Do(func() {
		f.value, f.err = v, err
		close(f.done)
		settled = true
	})
	return settled
}

// Done is closed once the Future settles.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the Future settles or ctx is done.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
