// Package auth is the authenticated HTTP binding of rpcserve.
//
// A Guard is a web.Processor placed in front of a web.Resource. It asks each
// configured Authenticator to identify the caller and stores the resulting
// Principal in the request context, where methods registered with a
// context.Context parameter can read it with PrincipalFromContext. Requests
// without acceptable credentials are answered with 401 and a WWW-Authenticate
// challenge per scheme; they never reach the dispatcher.
//
// Optionally the Guard seals the Principal into an encrypted session cookie
// after a successful login, so later requests can skip the password check.
package auth

import (
	"context"
	"errors"
	"net/http"
)

var (
	// ErrNoCredentials is returned by an Authenticator when the request carries
	// no credentials for its scheme.
	ErrNoCredentials = errors.New("auth: no credentials")
	// ErrBadCredentials is returned when credentials were present but rejected.
	ErrBadCredentials = errors.New("auth: invalid credentials")
)

// Principal identifies an authenticated caller.
type Principal struct {
	Subject string `cbor:"1,keysasint"`
	// Scheme is the authentication scheme that established the principal,
	// e.g. "Basic" or "Bearer".
	Scheme string `cbor:"2,keysasint"`
}

// Authenticator extracts and verifies one kind of credential.
type Authenticator interface {
	// Authenticate returns ErrNoCredentials when r has nothing for this
	// authenticator to check.
	Authenticate(r *http.Request) (Principal, error)
	// Challenge returns the WWW-Authenticate value for realm.
	Challenge(realm string) string
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the caller established by a Guard.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func challenge(scheme, realm string) string {
	return scheme + ` realm="` + realm + `"`
}
