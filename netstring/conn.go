package netstring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mnehpets/rpcserve/jsonrpc"
)

// ErrClosed is the cause of the TransportError returned by calls on a closed Conn.
var ErrClosed = errors.New("netstring: connection closed")

// Conn is a persistent client connection. Calls may be issued concurrently;
// responses are matched to callers by request id, so Conn only speaks 1.0
// and 2.0 envelopes.
type Conn struct {
	conn         net.Conn
	version      jsonrpc.Version
	writeTimeout time.Duration
	logger       *slog.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	pending  map[string]chan *jsonrpc.Response
	err      error
	readDone chan struct{}
}

// Dial connects to the netstring server at addr. The default envelope is 2.0.
func Dial(ctx context.Context, addr string, opts ...Option) (*Conn, error) {
	c := newConfig(opts)
	if err := checkConnVersion(c); err != nil {
		return nil, err
	}
	nc, err := c.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, transportError(ctx, "dial", err)
	}
	return newConn(nc, c), nil
}

// NewConn wraps an established connection.
func NewConn(nc net.Conn, opts ...Option) (*Conn, error) {
	c := newConfig(opts)
	if err := checkConnVersion(c); err != nil {
		return nil, err
	}
	return newConn(nc, c), nil
}

func checkConnVersion(c *config) error {
	if c.version < 0 {
		c.version = jsonrpc.Version2
	}
	if c.version == jsonrpc.VersionPre1 {
		return fmt.Errorf("netstring: Conn needs request ids, %v has none", c.version)
	}
	return nil
}

func newConn(nc net.Conn, c *config) *Conn {
	conn := &Conn{
		conn:         nc,
		version:      c.version,
		writeTimeout: c.writeTimeout,
		logger:       c.logger,
		pending:      make(map[string]chan *jsonrpc.Response),
		readDone:     make(chan struct{}),
	}
	go conn.readLoop(NewReader(nc, c.maxLength))
	return conn
}

// Call invokes method and decodes the result into reply, which may be nil.
// If ctx ends first the call is abandoned and a late response is dropped.
func (c *Conn) Call(ctx context.Context, method string, reply any, params ...any) error {
	id := uuid.NewString()
	req, err := jsonrpc.EncodeRequest(c.version, method, params, id)
	if err != nil {
		return err
	}

	ch := make(chan *jsonrpc.Response, 1)
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return err
	}
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(req); err != nil {
		return transportError(ctx, "write", err)
	}

	select {
	case resp := <-ch:
		return decodeResult(resp, reply)
	case <-ctx.Done():
		return &jsonrpc.TransportError{Op: "read", Err: ctx.Err()}
	case <-c.readDone:
		select {
		case resp := <-ch:
			return decodeResult(resp, reply)
		default:
			return c.failure()
		}
	}
}

// Notify sends a 2.0 notification. No response is expected.
func (c *Conn) Notify(ctx context.Context, method string, params ...any) error {
	if err := c.failure(); err != nil {
		return err
	}
	req, err := jsonrpc.EncodeNotification(method, params)
	if err != nil {
		return err
	}
	if err := c.write(req); err != nil {
		return transportError(ctx, "write", err)
	}
	return nil
}

func (c *Conn) write(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return WriteNetstring(c.conn, frame)
}

func decodeResult(resp *jsonrpc.Response, reply any) error {
	if resp.Fault != nil {
		return resp.Fault
	}
	if reply == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, reply); err != nil {
		return fmt.Errorf("netstring: decode result: %w", err)
	}
	return nil
}

func (c *Conn) readLoop(r *Reader) {
	defer close(c.readDone)
	for {
		data, err := r.ReadNetstring()
		if err != nil {
			c.fail(&jsonrpc.TransportError{Op: "read", Err: err})
			return
		}
		resp, err := jsonrpc.ParseResponse(c.version, data)
		if err != nil {
			c.logger.Warn("netstring response dropped", "error", err)
			continue
		}
		var id string
		if err := json.Unmarshal(resp.ID, &id); err != nil {
			c.logger.Warn("netstring response without a known id", "id", string(resp.ID))
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[id]
		delete(c.pending, id)
		c.mu.Unlock()
		if !ok {
			// The caller gave up.
			continue
		}
		ch <- resp
	}
}

func (c *Conn) fail(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
}

func (c *Conn) failure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close closes the connection. Calls still waiting fail with a TransportError.
func (c *Conn) Close() error {
	c.mu.Lock()
	if errors.Is(c.err, ErrClosed) {
		c.mu.Unlock()
		return nil
	}
	c.err = &jsonrpc.TransportError{Op: "close", Err: ErrClosed}
	c.mu.Unlock()
	err := c.conn.Close()
	<-c.readDone
	return err
}
