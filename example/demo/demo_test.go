package demo

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mnehpets/rpcserve/jsonrpc"
)

func call(t *testing.T, d *jsonrpc.Dispatcher, ctx context.Context, method string, args ...any) (any, error) {
	t.Helper()
	var params jsonrpc.Params
	for _, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			t.Fatal(err)
		}
		params = append(params, b)
	}
	return d.Dispatch(ctx, method, params)
}

func TestDemoMethods(t *testing.T) {
	root, err := NewHandler()
	if err != nil {
		t.Fatal(err)
	}
	d := jsonrpc.NewDispatcher(root, jsonrpc.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	ctx := context.Background()

	if v, err := call(t, d, ctx, "math.add", 3, 5); err != nil || v != 8.0 {
		t.Errorf("math.add = %v, %v", v, err)
	}
	if v, err := call(t, d, ctx, "echo", "bite me"); err != nil || v != "bite me" {
		t.Errorf("echo = %v, %v", v, err)
	}
	if _, err := call(t, d, ctx, "math.divide", 1, 0); err == nil {
		t.Error("divide by zero succeeded")
	} else if f, ok := jsonrpc.AsFault(err); !ok || f.Code != 1 {
		t.Errorf("divide fault = %v", err)
	}
	if v, err := call(t, d, ctx, "sleep", 5); err != nil || v != 5 {
		t.Errorf("sleep = %v, %v", v, err)
	}

	v, err := call(t, d, ctx, "system.listMethods")
	if err != nil {
		t.Fatal(err)
	}
	if methods, ok := v.([]string); !ok || len(methods) != 9 {
		t.Errorf("listMethods = %#v", v)
	}
}

func TestSleepHonoursCancellation(t *testing.T) {
	root, _ := NewHandler()
	d := jsonrpc.NewDispatcher(root)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := call(t, d, ctx, "sleep", 5000); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v", err)
	}
}

// hookContext counts context.AfterFunc registrations that are still live.
type hookContext struct {
	context.Context
	mu   sync.Mutex
	live int
}

// Value hides the parent's cancelCtx so context.AfterFunc goes through
// the AfterFunc method below.
func (c *hookContext) Value(any) any { return nil }

func (c *hookContext) AfterFunc(f func()) func() bool {
	c.mu.Lock()
	c.live++
	c.mu.Unlock()
	stop := context.AfterFunc(c.Context, f)
	var once sync.Once
	return func() bool {
		stopped := stop()
		once.Do(func() {
			c.mu.Lock()
			c.live--
			c.mu.Unlock()
		})
		return stopped
	}
}

func (c *hookContext) Live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

func TestSleepReleasesContextHook(t *testing.T) {
	root, _ := NewHandler()
	d := jsonrpc.NewDispatcher(root)
	parent, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx := &hookContext{Context: parent}

	for i := 0; i < 3; i++ {
		if v, err := call(t, d, ctx, "sleep", 1); err != nil || v != 1 {
			t.Fatalf("sleep = %v, %v", v, err)
		}
	}
	if n := ctx.Live(); n != 0 {
		t.Errorf("%d context hooks still registered", n)
	}
}
