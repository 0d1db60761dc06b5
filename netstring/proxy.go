package netstring

import (
	"context"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/mnehpets/rpcserve/jsonrpc"
)

// Proxy calls a remote netstring server. Every call opens its own TCP
// connection, sends one request, reads one response and hangs up.
type Proxy struct {
	addr         string
	version      jsonrpc.Version
	dialer       Dialer
	maxLength    int
	writeTimeout time.Duration
}

// NewProxy returns a Proxy for the server at addr ("host:port"). The default
// envelope is pre-1.0; use WithVersion for 1.0 or 2.0 peers.
func NewProxy(addr string, opts ...Option) *Proxy {
	c := newConfig(opts)
	if c.version < 0 {
		c.version = jsonrpc.VersionPre1
	}
	return &Proxy{
		addr:         addr,
		version:      c.version,
		dialer:       c.dialer,
		maxLength:    c.maxLength,
		writeTimeout: c.writeTimeout,
	}
}

// Version returns the envelope version the Proxy speaks.
func (p *Proxy) Version() jsonrpc.Version {
	return p.version
}

// Call invokes method with positional params and decodes the result into
// reply, which may be nil. A remote fault is returned as a *jsonrpc.Fault;
// connection problems as a *jsonrpc.TransportError.
func (p *Proxy) Call(ctx context.Context, method string, reply any, params ...any) error {
	var id any
	if p.version != jsonrpc.VersionPre1 {
		id = uuid.NewString()
	}
	req, err := jsonrpc.EncodeRequest(p.version, method, params, id)
	if err != nil {
		return err
	}

	conn, err := p.dialer.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		return transportError(ctx, "dial", err)
	}
	defer conn.Close()
	stop := interruptOnDone(ctx, conn)
	defer stop()

	if p.writeTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(p.writeTimeout))
	}
	if err := WriteNetstring(conn, req); err != nil {
		return transportError(ctx, "write", err)
	}
	resp, err := NewReader(conn, p.maxLength).ReadNetstring()
	if err != nil {
		return transportError(ctx, "read", err)
	}
	return jsonrpc.DecodeResponse(p.version, resp, reply)
}

// interruptOnDone unblocks pending I/O on conn when ctx ends, after ctx.Err
// is already set.
func interruptOnDone(ctx context.Context, conn net.Conn) (stop func() bool) {
	return context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
}

// transportError reports the context error in place of the I/O error it caused.
func transportError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	return &jsonrpc.TransportError{Op: op, Err: err}
}
