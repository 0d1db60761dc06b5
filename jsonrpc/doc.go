// Package jsonrpc is the transport-independent core of rpcserve: the envelope
// codec for pre-1.0, 1.0 and 2.0 JSON-RPC, the method tree, and the dispatcher
// shared by the netstring, web and auth bindings.
//
// # Basic Usage
//
// Build a handler tree, wrap it in a Dispatcher and hand the Dispatcher to a
// transport:
//
//	h := jsonrpc.NewHandler()
//	h.MustRegister("add", func(a, b int) int { return a + b },
//	    jsonrpc.WithDoc("Add two numbers."),
//	    jsonrpc.WithSignature([]string{"int", "int", "int"}))
//
//	math := jsonrpc.NewHandler()
//	math.MustRegister("mul", func(ctx context.Context, a, b float64) (float64, error) {
//	    return a * b, nil
//	})
//	h.PutSubHandler("math", math) // -> "math.mul"
//
//	jsonrpc.AddIntrospection(h) // -> "system.listMethods", ...
//
//	d := jsonrpc.NewDispatcher(h)
//	http.Handle("/rpc", web.NewResource(d))
//
// # Method Signatures
//
// Methods are ordinary functions. Positional params are unmarshaled into the
// function's parameters; an optional leading context.Context receives the
// request context. The function may return (R, error), R, or error:
//
//	func(ctx context.Context, a, b int) (int, error)
//	func(s string, n int) []any
//	func(values ...float64) float64
//
// Functions with the signature func(context.Context, Params) (any, error) are
// registered as-is and bind their own arguments with Params.Bind.
//
// # Asynchronous Results
//
// A method may return a *Future instead of a value. The dispatcher waits for
// it before encoding the response; every call runs on its own goroutine, so a
// slow Future never holds up other calls:
//
//	h.MustRegister("slow", func(x string) *jsonrpc.Future {
//	    return jsonrpc.Go(func() (any, error) {
//	        time.Sleep(time.Second)
//	        return x, nil
//	    })
//	})
//
// # Error Handling
//
// Return a *Fault to send a specific code and message to the caller:
//
//	return nil, jsonrpc.NewFault(12, "hello")
//
// Any other error (and any panic) is logged and replaced on the wire by a
// generic fault whose code is set with WithFailureCode. Clients get faults
// back as *Fault values and match on Code; connection-level problems are
// reported as *TransportError instead.
//
// Standard codes are defined as constants:
//   - CodeParseError (-32700)
//   - CodeInvalidRequest (-32600)
//   - CodeMethodNotFound (-32601)
//   - CodeInvalidParams (-32602)
//   - CodeInternalError (-32603)
//   - CodeMethodNotCallable (-32604)
package jsonrpc
