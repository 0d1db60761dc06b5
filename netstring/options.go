package netstring

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/mnehpets/rpcserve/jsonrpc"
)

// Dialer opens client connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// DefaultMaxInFlight bounds the calls a server runs at once for one connection.
const DefaultMaxInFlight = 64

type config struct {
	maxLength    int
	maxInFlight  int
	writeTimeout time.Duration
	logger       *slog.Logger
	version      jsonrpc.Version
	dialer       Dialer
}

// Option configures a Server, Proxy or Conn. Options that do not apply to
// the value being built are ignored.
type Option func(*config)

func newConfig(opts []Option) *config {
	c := &config{
		maxLength:    DefaultMaxLength,
		maxInFlight:  DefaultMaxInFlight,
		writeTimeout: 30 * time.Second,
		logger:       slog.Default(),
		version:      -1,
		dialer:       &net.Dialer{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithMaxLength sets the largest frame payload accepted from the peer.
func WithMaxLength(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxLength = n
		}
	}
}

// WithMaxInFlight bounds the calls a Server runs at once for one connection.
// The server stops reading from a peer that has n calls pending.
func WithMaxInFlight(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxInFlight = n
		}
	}
}

// WithLogger sets the logger for connection errors.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithWriteTimeout bounds each frame write. Zero disables the deadline.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *config) {
		c.writeTimeout = d
	}
}

// WithVersion selects the envelope used by a Proxy or Conn.
func WithVersion(v jsonrpc.Version) Option {
	return func(c *config) {
		c.version = v
	}
}

// WithDialer replaces the dialer used by a Proxy or Conn.
func WithDialer(d Dialer) Option {
	return func(c *config) {
		if d != nil {
			c.dialer = d
		}
	}
}
