// Package demo holds the method tree published by the example servers.
package demo

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mnehpets/rpcserve/jsonrpc"
)

// NewHandler returns a root handler with echo, a "math" and a "testing"
// sub-handler and the system introspection methods.
func NewHandler() (*jsonrpc.Handler, error) {
	root := jsonrpc.NewHandler()
	if err := root.RegisterFunc("echo", func(s string) string { return s },
		jsonrpc.WithHelp("Return the argument unchanged."),
		jsonrpc.WithSignature([]string{"string", "string"})); err != nil {
		return nil, err
	}
	if err := root.RegisterFunc("sleep", sleep,
		jsonrpc.WithHelp("Wait for the given number of milliseconds and return it.")); err != nil {
		return nil, err
	}

	math := jsonrpc.NewHandler()
	math.MustRegister("add", func(a, b float64) float64 { return a + b },
		jsonrpc.WithHelp("Return sum of arguments."),
		jsonrpc.WithSignature([]string{"double", "double", "double"}))
	math.MustRegister("divide", func(a, b float64) (float64, error) {
		if b == 0 {
			return 0, jsonrpc.NewFault(1, "division by zero")
		}
		return a / b, nil
	}, jsonrpc.WithHelp("Divide a by b."))

	testing := jsonrpc.NewHandler()
	testing.MustRegister("getList", func() []int { return []int{1, 2, 3, 4, 5, 6} },
		jsonrpc.WithHelp("Return a short list of numbers."))
	testing.MustRegister("fail", func() error { return errors.New("something broke on the server") },
		jsonrpc.WithHelp("Always fail; the cause is logged, not returned."))

	if err := root.PutSubHandler("math", math); err != nil {
		return nil, err
	}
	if err := root.PutSubHandler("testing", testing); err != nil {
		return nil, err
	}
	if err := jsonrpc.AddIntrospection(root); err != nil {
		return nil, err
	}
	return root, nil
}

func sleep(ctx context.Context, ms int) *jsonrpc.Future {
	f := jsonrpc.NewFuture()
	var (
		mu   sync.Mutex
		stop func() bool
	)
	// The timer may fire before stop is assigned.
	mu.Lock()
	defer mu.Unlock()
	t := time.AfterFunc(time.Duration(ms)*time.Millisecond, func() {
		mu.Lock()
		stop()
		mu.Unlock()
		f.Resolve(ms)
	})
	stop = context.AfterFunc(ctx, func() {
		if t.Stop() {
			f.Reject(ctx.Err())
		}
	})
	return f
}
