package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// MinSecretSize is the smallest HS256 secret accepted by JWTBearer and IssueToken.
const MinSecretSize = 32

// DefaultLeeway is the clock skew tolerated when checking token times.
const DefaultLeeway = time.Minute

var errShortSecret = fmt.Errorf("auth: HS256 secret must be at least %d bytes", MinSecretSize)

// bearerToken returns the token from an "Authorization: Bearer" header.
func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// JWTBearer accepts HS256 JSON Web Tokens minted with a shared secret, such
// as those returned by IssueToken.
type JWTBearer struct {
	secret []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

// NewJWTBearer creates a JWTBearer. Tokens must carry issuer as "iss", a
// subject and an expiry.
func NewJWTBearer(secret []byte, issuer string) (*JWTBearer, error) {
	if len(secret) < MinSecretSize {
		return nil, errShortSecret
	}
	return &JWTBearer{secret: secret, issuer: issuer, leeway: DefaultLeeway, now: time.Now}, nil
}

func (b *JWTBearer) Authenticate(r *http.Request) (Principal, error) {
	raw, ok := bearerToken(r)
	if !ok {
		return Principal{}, ErrNoCredentials
	}
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrBadCredentials, err)
	}
	var claims jwt.Claims
	if err := tok.Claims(b.secret, &claims); err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrBadCredentials, err)
	}
	if err := claims.ValidateWithLeeway(jwt.Expected{Issuer: b.issuer, Time: b.now()}, b.leeway); err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrBadCredentials, err)
	}
	if claims.Subject == "" || claims.Expiry == nil {
		return Principal{}, fmt.Errorf("%w: token needs sub and exp", ErrBadCredentials)
	}
	return Principal{Subject: claims.Subject, Scheme: "Bearer"}, nil
}

func (b *JWTBearer) Challenge(realm string) string {
	return challenge("Bearer", realm)
}

// IssueToken mints an HS256 token for subject valid for ttl. Clients send it
// with web.WithTokenSource and an oauth2.StaticTokenSource.
func IssueToken(secret []byte, issuer, subject string, ttl time.Duration) (string, error) {
	if len(secret) < MinSecretSize {
		return "", errShortSecret
	}
	if subject == "" || ttl <= 0 {
		return "", errors.New("auth: token needs a subject and a positive ttl")
	}
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: secret}, (&jose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		return "", err
	}
	now := time.Now()
	claims := jwt.Claims{
		Issuer:    issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		Expiry:    jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.Signed(signer).Claims(claims).Serialize()
}

// OIDCBearer accepts OpenID Connect ID tokens presented as bearer tokens.
type OIDCBearer struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCBearer discovers issuer and verifies tokens issued to clientID.
func NewOIDCBearer(ctx context.Context, issuer, clientID string) (*OIDCBearer, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to query provider %q: %v", issuer, err)
	}
	return NewOIDCBearerWithVerifier(provider.Verifier(&oidc.Config{ClientID: clientID})), nil
}

// NewOIDCBearerWithVerifier uses an already configured verifier, e.g. one
// built from oidc.NewVerifier and a static key set.
func NewOIDCBearerWithVerifier(v *oidc.IDTokenVerifier) *OIDCBearer {
	return &OIDCBearer{verifier: v}
}

func (b *OIDCBearer) Authenticate(r *http.Request) (Principal, error) {
	raw, ok := bearerToken(r)
	if !ok {
		return Principal{}, ErrNoCredentials
	}
	tok, err := b.verifier.Verify(r.Context(), raw)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrBadCredentials, err)
	}
	return Principal{Subject: tok.Subject, Scheme: "Bearer"}, nil
}

func (b *OIDCBearer) Challenge(realm string) string {
	return challenge("Bearer", realm)
}
