package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
)

// Params holds the positional arguments of a request as raw JSON values.
type Params []json.RawMessage

// Len returns the number of positional arguments.
func (p Params) Len() int {
	return len(p)
}

// Decode unmarshals argument i into v.
func (p Params) Decode(i int, v any) error {
	if i < 0 || i >= len(p) {
		return InvalidParams("missing param " + strconv.Itoa(i))
	}
	if err := json.Unmarshal(p[i], v); err != nil {
		return InvalidParams("invalid param " + strconv.Itoa(i) + ": " + err.Error())
	}
	return nil
}

// Bind unmarshals the arguments into dst, one pointer per argument.
// The argument count must match exactly.
func (p Params) Bind(dst ...any) error {
	if len(p) != len(dst) {
		return InvalidParams(fmt.Sprintf("expected %d params, got %d", len(dst), len(p)))
	}
	for i := range dst {
		if err := p.Decode(i, dst[i]); err != nil {
			return err
		}
	}
	return nil
}

// Func is the callable stored in a MethodTable. The result may be a *Future
// when it is produced asynchronously.
type Func func(ctx context.Context, params Params) (any, error)

// Method is a method table entry with its introspection metadata.
type Method struct {
	Func Func
	// Help is returned by methodHelp in preference to Doc.
	Help string
	Doc  string
	// Signature lists [returnType, argType1, ...] tuples.
	Signature [][]string
}

// MethodOption configures a Method.
type MethodOption func(*Method)

// WithHelp sets the help text.
func WithHelp(help string) MethodOption {
	return func(m *Method) {
		m.Help = help
	}
}

// WithDoc sets the documentation string.
func WithDoc(doc string) MethodOption {
	return func(m *Method) {
		m.Doc = doc
	}
}

// WithSignature appends type signatures, each [returnType, argType1, ...].
func WithSignature(sigs ...[]string) MethodOption {
	return func(m *Method) {
		m.Signature = append(m.Signature, sigs...)
	}
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	paramsType  = reflect.TypeOf(Params(nil))
)

// NewMethod adapts an ordinary Go function into a Method.
//
// Accepted shapes:
//
//	func(ctx context.Context, params Params) (any, error)
//	func([ctx context.Context,] a A, b B, ...) (R, error)
//	func([ctx context.Context,] a A, b B, ...) R
//	func([ctx context.Context,] a A, b B, ...) error
//
// Positional arguments are unmarshaled into the parameter types; a trailing
// variadic parameter absorbs any remaining arguments.
func NewMethod(fn any, opts ...MethodOption) (*Method, error) {
	var f Func
	switch fn := fn.(type) {
	case Func:
		f = fn
	case func(context.Context, Params) (any, error):
		f = fn
	default:
		var err error
		f, err = reflectFunc(fn)
		if err != nil {
			return nil, err
		}
	}
	m := &Method{Func: f}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// MustMethod is like NewMethod but panics on an invalid function.
func MustMethod(fn any, opts ...MethodOption) *Method {
	m, err := NewMethod(fn, opts...)
	if err != nil {
		panic(err)
	}
	return m
}

func reflectFunc(fn any) (Func, error) {
	fv := reflect.ValueOf(fn)
	if !fv.IsValid() || fv.Kind() != reflect.Func || fv.IsNil() {
		return nil, errors.New("jsonrpc: method must be a non-nil func")
	}
	ft := fv.Type()

	first := 0
	if ft.NumIn() > 0 && ft.In(0) == contextType {
		first = 1
	}
	for i := first; i < ft.NumIn(); i++ {
		if ft.In(i) == contextType || ft.In(i) == paramsType {
			return nil, fmt.Errorf("jsonrpc: unsupported parameter %d of %s", i, ft)
		}
	}

	var hasResult, hasErr bool
	switch ft.NumOut() {
	case 0:
	case 1:
		hasErr = ft.Out(0) == errorType
		hasResult = !hasErr
	case 2:
		if ft.Out(1) != errorType {
			return nil, fmt.Errorf("jsonrpc: second result of %s must be error", ft)
		}
		hasResult, hasErr = true, true
	default:
		return nil, fmt.Errorf("jsonrpc: %s returns too many values", ft)
	}

	nargs := ft.NumIn() - first
	variadic := ft.IsVariadic()

	return func(ctx context.Context, params Params) (any, error) {
		if variadic {
			if len(params) < nargs-1 {
				return nil, InvalidParams(fmt.Sprintf("expected at least %d params, got %d", nargs-1, len(params)))
			}
		} else if len(params) != nargs {
			return nil, InvalidParams(fmt.Sprintf("expected %d params, got %d", nargs, len(params)))
		}

		in := make([]reflect.Value, 0, first+len(params))
		if first == 1 {
			in = append(in, reflect.ValueOf(ctx))
		}
		for i, raw := range params {
			var t reflect.Type
			if variadic && i >= nargs-1 {
				t = ft.In(ft.NumIn() - 1).Elem()
			} else {
				t = ft.In(first + i)
			}
			arg := reflect.New(t)
			if err := json.Unmarshal(raw, arg.Interface()); err != nil {
				return nil, InvalidParams("invalid param " + strconv.Itoa(i) + ": " + err.Error())
			}
			in = append(in, arg.Elem())
		}

		out := fv.Call(in)

		var result any
		var err error
		if hasResult {
			result = out[0].Interface()
		}
		if hasErr {
			if e := out[len(out)-1]; !e.IsNil() {
				err = e.Interface().(error)
			}
		}
		return result, err
	}, nil
}
