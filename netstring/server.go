package netstring

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mnehpets/rpcserve/jsonrpc"
)

// ErrServerClosed is returned by Serve after Close.
var ErrServerClosed = errors.New("netstring: server closed")

// Server answers JSON-RPC requests framed as netstrings.
//
// Each connection is read on its own goroutine and each request is handled on
// its own goroutine, so a slow call never holds up the other calls of the
// same connection. Responses are written in completion order. At most
// WithMaxInFlight calls run at once per connection.
type Server struct {
	handler      jsonrpc.MessageHandler
	maxLength    int
	maxInFlight  int64
	writeTimeout time.Duration
	logger       *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	done     chan struct{}
}

// NewServer creates a Server that hands each de-framed request to h.
func NewServer(h jsonrpc.MessageHandler, opts ...Option) *Server {
	c := newConfig(opts)
	return &Server{
		handler:      h,
		maxLength:    c.maxLength,
		maxInFlight:  int64(c.maxInFlight),
		writeTimeout: c.writeTimeout,
		logger:       c.logger,
		conns:        make(map[net.Conn]struct{}),
		done:         make(chan struct{}),
	}
}

// ListenAndServe listens on the TCP address addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done or Close is called.
// It returns nil after a shutdown and ln is closed on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.listener = ln
	s.mu.Unlock()
	defer ln.Close()

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()

	s.logger.Info("netstring server listening", "addr", ln.Addr().String())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			s.logger.Warn("netstring accept failed", "error", err)
			return err
		}
		if !s.track(conn) {
			conn.Close()
			return nil
		}
		go s.serveConn(ctx, conn)
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
}

// serveConn reads frames until the peer stops sending. After a clean EOF the
// calls already in flight still get their answers; a framing error or a
// closed server abandons them.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.untrack(conn)

	remote := conn.RemoteAddr().String()
	var (
		writeMu sync.Mutex
		calls   sync.WaitGroup
	)
	sem := semaphore.NewWeighted(s.maxInFlight)
	r := NewReader(conn, s.maxLength)
	for {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		msg, err := r.ReadNetstring()
		if err != nil {
			sem.Release(1)
			switch {
			case errors.Is(err, io.EOF):
			case errors.Is(err, net.ErrClosed):
				cancel()
			default:
				s.logger.Warn("netstring read failed", "remote", remote, "error", err)
				cancel()
			}
			break
		}

		calls.Add(1)
		go func() {
			defer calls.Done()
			defer sem.Release(1)
			resp, err := s.handler.ServeMessage(ctx, msg)
			if err != nil {
				s.logger.Debug("netstring call abandoned", "remote", remote, "error", err)
				return
			}
			if resp == nil {
				return
			}
			writeMu.Lock()
			defer writeMu.Unlock()
			if s.writeTimeout > 0 {
				conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			}
			if err := WriteNetstring(conn, resp); err != nil {
				s.logger.Warn("netstring write failed", "remote", remote, "error", err)
			}
		}()
	}
	calls.Wait()
}

// Close stops the listener and closes every open connection. Calls in flight
// on those connections see their context cancelled.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	for conn := range s.conns {
		conn.Close()
	}
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// Addr returns the listener address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}
