package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/mnehpets/rpcserve/web"
)

// DefaultSessionTTL is the lifetime of a session cookie issued by a Guard.
const DefaultSessionTTL = 12 * time.Hour

// Guard is a web.Processor that admits only authenticated requests.
type Guard struct {
	realm          string
	authenticators []Authenticator
	cookie         *SessionCookie
	sessionTTL     time.Duration
	logger         *slog.Logger
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithSession makes the Guard issue cookie after a successful login and accept
// it on later requests in place of credentials. ttl <= 0 selects
// DefaultSessionTTL.
func WithSession(cookie *SessionCookie, ttl time.Duration) GuardOption {
	return func(g *Guard) {
		g.cookie = cookie
		if ttl <= 0 {
			ttl = DefaultSessionTTL
		}
		g.sessionTTL = ttl
	}
}

// WithLogger sets the logger for rejected credentials.
func WithLogger(l *slog.Logger) GuardOption {
	return func(g *Guard) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGuard creates a Guard for realm. Authenticators are tried in order; the
// first to accept the request wins.
func NewGuard(realm string, authenticators []Authenticator, opts ...GuardOption) (*Guard, error) {
	if len(authenticators) == 0 {
		return nil, errors.New("auth: guard needs at least one authenticator")
	}
	for _, a := range authenticators {
		if a == nil {
			return nil, errors.New("auth: nil authenticator")
		}
	}
	g := &Guard{
		realm:          realm,
		authenticators: authenticators,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Process implements web.Processor.
func (g *Guard) Process(w http.ResponseWriter, r *http.Request, next func(w http.ResponseWriter, r *http.Request) error) error {
	p, stale := g.fromSession(r)
	if p.Subject != "" {
		return next(w, r.WithContext(WithPrincipal(r.Context(), p)))
	}

	var rejected error
	for _, a := range g.authenticators {
		p, err := a.Authenticate(r)
		if errors.Is(err, ErrNoCredentials) {
			continue
		}
		if err != nil {
			rejected = err
			continue
		}
		if g.cookie != nil {
			c, err := g.cookie.Seal(p, g.sessionTTL)
			if err != nil {
				return web.Error(http.StatusInternalServerError, "", err)
			}
			web.Defer(r.Context(), func(w http.ResponseWriter) {
				http.SetCookie(w, c)
			})
		}
		return next(w, r.WithContext(WithPrincipal(r.Context(), p)))
	}

	if stale {
		gone := g.cookie.Clear()
		web.Defer(r.Context(), func(w http.ResponseWriter) {
			http.SetCookie(w, gone)
		})
	}
	if rejected != nil {
		g.logger.Info("authentication failed", "realm", g.realm, "remote", r.RemoteAddr, "error", rejected)
	} else {
		rejected = ErrNoCredentials
	}
	seen := make(map[string]bool, len(g.authenticators))
	for _, a := range g.authenticators {
		c := a.Challenge(g.realm)
		if !seen[c] {
			seen[c] = true
			w.Header().Add("WWW-Authenticate", c)
		}
	}
	return web.Error(http.StatusUnauthorized, "", rejected)
}

// fromSession returns the principal sealed in the session cookie. stale
// reports a cookie that was present but could not be opened.
func (g *Guard) fromSession(r *http.Request) (p Principal, stale bool) {
	if g.cookie == nil {
		return Principal{}, false
	}
	c, err := r.Cookie(g.cookie.Name())
	if err != nil {
		return Principal{}, false
	}
	p, err = g.cookie.Open(c)
	if err != nil || p.Subject == "" {
		g.logger.Debug("session cookie rejected", "remote", r.RemoteAddr, "error", err)
		return Principal{}, true
	}
	return p, false
}
