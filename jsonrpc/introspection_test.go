package jsonrpc

import (
	"reflect"
	"testing"
)

func newIntrospectedDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	h := newTestHandler()
	if err := AddIntrospection(h); err != nil {
		t.Fatalf("AddIntrospection: %v", err)
	}
	return NewDispatcher(h, WithFailureCode(testFailure), WithLogger(discardLogger()))
}

func TestListMethods(t *testing.T) {
	d := newIntrospectedDispatcher(t)
	got, err := serve(t, d, Version2, "system.listMethods")
	if err != nil {
		t.Fatalf("listMethods: %v", err)
	}
	want := []any{
		"add", "complex", "defer", "deferFail", "deferFault", "dict", "echo",
		"fail", "fault", "pair", "panic", "sleep",
		"system.listMethods", "system.methodHelp", "system.methodSignature",
		"unserializable",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v\nwant %v", got, want)
	}
}

func TestListMethodsNested(t *testing.T) {
	root := NewHandler()
	root.MustRegister("top", func() {})
	a := NewHandler()
	a.MustRegister("one", func() {})
	b := NewHandler()
	b.MustRegister("two", func() {})
	a.PutSubHandler("b", b)
	root.PutSubHandler("a", a)

	want := []string{"a.b.two", "a.one", "top"}
	if got := listMethods(root); !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestMethodHelp(t *testing.T) {
	d := newIntrospectedDispatcher(t)
	tests := map[string]string{
		"defer":              "Help for defer.",
		"fail":               "",
		"dict":               "Help for dict.",
		"add":                "This function add two numbers.",
		"system.listMethods": "Return a list of the method names implemented by this server.",
	}
	for method, want := range tests {
		got, err := serve(t, d, Version1, "system.methodHelp", method)
		if err != nil {
			t.Errorf("methodHelp(%s): %v", method, err)
			continue
		}
		if got != want {
			t.Errorf("methodHelp(%s) = %q, want %q", method, got, want)
		}
	}
}

func TestMethodSignature(t *testing.T) {
	d := newIntrospectedDispatcher(t)
	tests := map[string]any{
		"defer": "",
		"add": []any{
			[]any{"int", "int", "int"},
			[]any{"double", "double", "double"},
		},
		"pair": []any{[]any{"array", "string", "int"}},
	}
	for method, want := range tests {
		got, err := serve(t, d, VersionPre1, "system.methodSignature", method)
		if err != nil {
			t.Errorf("methodSignature(%s): %v", method, err)
			continue
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("methodSignature(%s) = %#v, want %#v", method, got, want)
		}
	}
}

func TestIntrospectionUnknownMethod(t *testing.T) {
	d := newIntrospectedDispatcher(t)
	for _, m := range []string{"system.methodHelp", "system.methodSignature"} {
		_, err := serve(t, d, Version2, m, "nope")
		f, ok := AsFault(err)
		if !ok {
			t.Fatalf("%s(nope): got %v, want fault", m, err)
		}
		if f.Code != testNotFound || f.Message != "function nope not found" {
			t.Errorf("%s(nope): got (%d, %q)", m, f.Code, f.Message)
		}
	}
}

func TestIntrospectionSeesLaterRegistrations(t *testing.T) {
	h := NewHandler()
	AddIntrospection(h)
	h.MustRegister("late", func() {})
	got := listMethods(h)
	want := []string{"late", "system.listMethods", "system.methodHelp", "system.methodSignature"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
