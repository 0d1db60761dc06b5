package jsonrpc

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
)

func TestResolveNested(t *testing.T) {
	root := NewHandler()
	math := NewHandler()
	trig := NewHandler()
	trig.MustRegister("zero", func() int { return 0 })
	math.MustRegister("neg", func(x int) int { return -x })
	if err := math.PutSubHandler("trig", trig); err != nil {
		t.Fatalf("PutSubHandler: %v", err)
	}
	if err := root.PutSubHandler("math", math); err != nil {
		t.Fatalf("PutSubHandler: %v", err)
	}

	for _, path := range []string{"math.neg", "math.trig.zero"} {
		m, err := root.Resolve(path)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", path, err)
		}
		if m.Func == nil {
			t.Fatalf("Resolve(%q): nil func", path)
		}
	}

	m, _ := root.Resolve("math.neg")
	got, err := m.Func(context.Background(), Params{[]byte("4")})
	if err != nil || got != -4 {
		t.Errorf("math.neg(4) = %v, %v", got, err)
	}
}

func TestResolveFailures(t *testing.T) {
	root := NewHandler(WithNotFoundCode(testNotFound))
	sub := NewHandler(WithNotFoundCode(99))
	sub.MustRegister("here", func() {})
	if err := root.PutSubHandler("sub", sub); err != nil {
		t.Fatal(err)
	}
	if err := root.Register("stub", &Method{Doc: "declared but not callable"}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path    string
		kind    error
		code    int
		message string
	}{
		{"missing", ErrNoSuchFunction, testNotFound, "function missing not found"},
		{"nope.here", ErrNoSuchFunction, testNotFound, "no such sub-handler nope"},
		{"sub.missing", ErrNoSuchFunction, 99, "function missing not found"},
		{"sub.here.deeper", ErrNoSuchFunction, 99, "no such sub-handler here"},
		{"stub", ErrNotCallable, CodeMethodNotCallable, "function stub not callable"},
		{"", ErrNoSuchFunction, testNotFound, "function  not found"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, err := root.Resolve(tt.path)
			if !errors.Is(err, tt.kind) {
				t.Fatalf("got %v, want kind %v", err, tt.kind)
			}
			f, _ := AsFault(err)
			if f.Code != tt.code || f.Message != tt.message {
				t.Errorf("got (%d, %q), want (%d, %q)", f.Code, f.Message, tt.code, tt.message)
			}
		})
	}
}

func TestCustomSeparator(t *testing.T) {
	root := NewHandler(WithSeparator("/"))
	sub := NewHandler(WithSeparator("/"))
	sub.MustRegister("a.b", func() string { return "dotted" })
	if err := root.PutSubHandler("x", sub); err != nil {
		t.Fatal(err)
	}
	if _, err := root.Resolve("x/a.b"); err != nil {
		t.Errorf("Resolve(x/a.b): %v", err)
	}
	if _, err := root.Resolve("x.a.b"); !errors.Is(err, ErrNoSuchFunction) {
		t.Errorf("Resolve(x.a.b) = %v, want NoSuchFunction", err)
	}
}

func TestRegisterRejects(t *testing.T) {
	h := NewHandler()
	if err := h.RegisterFunc("a.b", func() {}); !errors.Is(err, ErrInvalidName) {
		t.Errorf("dotted name: got %v", err)
	}
	if err := h.RegisterFunc("", func() {}); !errors.Is(err, ErrInvalidName) {
		t.Errorf("empty name: got %v", err)
	}
	if err := h.RegisterFunc("x", 42); err == nil {
		t.Error("non-func accepted")
	}
	h.MustRegister("x", func() {})
	if err := h.RegisterFunc("x", func() {}); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("duplicate: got %v", err)
	}
	if err := h.PutSubHandler("a.b", NewHandler()); !errors.Is(err, ErrInvalidName) {
		t.Errorf("dotted prefix: got %v", err)
	}
	if err := h.PutSubHandler("p", nil); !errors.Is(err, ErrInvalidName) {
		t.Errorf("nil sub: got %v", err)
	}
}

func TestPutSubHandlerRejectsCycles(t *testing.T) {
	a, b, c := NewHandler(), NewHandler(), NewHandler()
	if err := a.PutSubHandler("self", a); !errors.Is(err, ErrHandlerCycle) {
		t.Errorf("self: got %v", err)
	}
	if err := a.PutSubHandler("b", b); err != nil {
		t.Fatal(err)
	}
	if err := b.PutSubHandler("c", c); err != nil {
		t.Fatal(err)
	}
	if err := c.PutSubHandler("a", a); !errors.Is(err, ErrHandlerCycle) {
		t.Errorf("indirect: got %v", err)
	}
	// Sharing a sub-handler under two prefixes is not a cycle.
	if err := a.PutSubHandler("c", c); err != nil {
		t.Errorf("shared: got %v", err)
	}
}

func TestPutSubHandlerConcurrentCycle(t *testing.T) {
	for i := 0; i < 200; i++ {
		a, b := NewHandler(), NewHandler()
		var wg sync.WaitGroup
		errs := make([]error, 2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs[0] = a.PutSubHandler("b", b)
		}()
		go func() {
			defer wg.Done()
			errs[1] = b.PutSubHandler("a", a)
		}()
		wg.Wait()

		if (errs[0] == nil) == (errs[1] == nil) {
			t.Fatalf("round %d: got %v and %v, want exactly one mount", i, errs[0], errs[1])
		}
		for _, err := range errs {
			if err != nil && !errors.Is(err, ErrHandlerCycle) {
				t.Fatalf("round %d: got %v", i, err)
			}
		}
	}
}

func TestPutSubHandlerReplaces(t *testing.T) {
	root := NewHandler()
	first, second := NewHandler(), NewHandler()
	first.MustRegister("which", func() string { return "first" })
	second.MustRegister("which", func() string { return "second" })
	root.PutSubHandler("p", first)
	root.PutSubHandler("p", second)

	m, err := root.Resolve("p.which")
	if err != nil {
		t.Fatal(err)
	}
	got, _ := m.Func(context.Background(), nil)
	if got != "second" {
		t.Errorf("got %v, want second", got)
	}
}

func TestListing(t *testing.T) {
	h := NewHandler()
	h.MustRegister("b", func() {})
	h.MustRegister("a", func() {})
	h.PutSubHandler("z", NewHandler())
	h.PutSubHandler("y", NewHandler())

	if got, want := h.ListLocalMethods(), []string{"a", "b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ListLocalMethods = %v, want %v", got, want)
	}
	if got, want := h.SubHandlerPrefixes(), []string{"y", "z"}; !reflect.DeepEqual(got, want) {
		t.Errorf("SubHandlerPrefixes = %v, want %v", got, want)
	}
	if _, ok := h.SubHandler("y"); !ok {
		t.Error("SubHandler(y) not found")
	}
	if _, ok := h.SubHandler("w"); ok {
		t.Error("SubHandler(w) found")
	}
}
