package auth

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrCookieFormat  = errors.New("auth: invalid session cookie format")
	ErrCookieInvalid = errors.New("auth: invalid session cookie")
	ErrCookieExpired = errors.New("auth: session cookie expired")
	ErrCookieConfig  = errors.New("auth: invalid session cookie configuration")
)

// maxCookieLen bounds the attacker-controlled data decoded for a cookie value.
const maxCookieLen = 4096

// KeySize is the length of a session cookie key.
const KeySize = chacha20poly1305.KeySize

// sessionClaims is the sealed cookie payload.
type sessionClaims struct {
	Principal Principal `cbor:"1,keysasint"`
	Expires   time.Time `cbor:"2,keysasint"`
}

// SessionCookie seals a Principal into an encrypted, authenticated cookie.
//
// Format: keyID "." base64url(nonce || AEAD.Seal(claims))
// The additional data binds the cookie name, domain, path and secure flag.
// keys holds every key accepted when opening; keyID selects the one used to
// seal, so keys can be rotated by adding a new ID and switching keyID.
type SessionCookie struct {
	name     string
	path     string
	domain   string
	secure   bool
	sameSite http.SameSite

	keyID   string
	keys    map[string][]byte
	newAEAD func([]byte) (cipher.AEAD, error)
	now     func() time.Time
}

// CookieOption configures a SessionCookie.
type CookieOption func(*SessionCookie)

// WithCookiePath sets the cookie path. Defaults to "/".
func WithCookiePath(path string) CookieOption {
	return func(sc *SessionCookie) {
		sc.path = path
	}
}

// WithCookieDomain sets the cookie domain.
func WithCookieDomain(domain string) CookieOption {
	return func(sc *SessionCookie) {
		sc.domain = domain
	}
}

// WithSecure sets the Secure flag. Defaults to true.
func WithSecure(secure bool) CookieOption {
	return func(sc *SessionCookie) {
		sc.secure = secure
	}
}

// WithSameSite sets the SameSite attribute. Defaults to Lax.
func WithSameSite(s http.SameSite) CookieOption {
	return func(sc *SessionCookie) {
		sc.sameSite = s
	}
}

// WithAEAD replaces XChaCha20-Poly1305, e.g. with AES-GCM.
func WithAEAD(f func([]byte) (cipher.AEAD, error)) CookieOption {
	return func(sc *SessionCookie) {
		sc.newAEAD = f
	}
}

// NewSessionCookie creates a SessionCookie named name sealing with keys[keyID].
func NewSessionCookie(name, keyID string, keys map[string][]byte, opts ...CookieOption) (*SessionCookie, error) {
	sc := &SessionCookie{
		name:     name,
		path:     "/",
		secure:   true,
		sameSite: http.SameSiteLaxMode,
		keyID:    keyID,
		keys:     keys,
		newAEAD:  chacha20poly1305.NewX,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(sc)
	}
	if name == "" || sc.newAEAD == nil {
		return nil, ErrCookieConfig
	}
	if _, ok := keys[keyID]; !ok {
		return nil, fmt.Errorf("%w: key %q not found", ErrCookieConfig, keyID)
	}
	for id, k := range keys {
		if strings.Contains(id, ".") {
			return nil, fmt.Errorf("%w: key id %q contains '.'", ErrCookieConfig, id)
		}
		if _, err := sc.newAEAD(k); err != nil {
			return nil, fmt.Errorf("invalid key %s: %w", id, err)
		}
	}
	if sc.path == "" {
		sc.path = "/"
	}
	return sc, nil
}

// Name returns the cookie name.
func (sc *SessionCookie) Name() string {
	return sc.name
}

func (sc *SessionCookie) aad() []byte {
	secure := "f"
	if sc.secure {
		secure = "t"
	}
	return []byte(sc.name + ":" + sc.domain + ":" + sc.path + ":" + secure)
}

// Seal returns a cookie carrying p that expires after ttl.
func (sc *SessionCookie) Seal(p Principal, ttl time.Duration) (*http.Cookie, error) {
	if ttl < time.Second {
		return nil, fmt.Errorf("%w: ttl %v", ErrCookieConfig, ttl)
	}
	expires := sc.now().Add(ttl)
	plain, err := cbor.Marshal(sessionClaims{Principal: p, Expires: expires})
	if err != nil {
		return nil, err
	}
	aead, err := sc.newAEAD(sc.keys[sc.keyID])
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	sealed := aead.Seal(nonce, nonce, plain, sc.aad())

	return &http.Cookie{
		Name:     sc.name,
		Value:    sc.keyID + "." + base64.RawURLEncoding.EncodeToString(sealed),
		Path:     sc.path,
		Domain:   sc.domain,
		MaxAge:   int(ttl / time.Second),
		Expires:  expires,
		Secure:   sc.secure,
		HttpOnly: true,
		SameSite: sc.sameSite,
	}, nil
}

// Open verifies c and returns the sealed Principal.
func (sc *SessionCookie) Open(c *http.Cookie) (Principal, error) {
	if c == nil || c.Value == "" || len(c.Value) > maxCookieLen {
		return Principal{}, ErrCookieFormat
	}
	keyID, enc, ok := strings.Cut(c.Value, ".")
	if !ok || keyID == "" || enc == "" {
		return Principal{}, ErrCookieFormat
	}
	key, ok := sc.keys[keyID]
	if !ok {
		return Principal{}, ErrCookieInvalid
	}
	sealed, err := base64.RawURLEncoding.DecodeString(enc)
	if err != nil {
		return Principal{}, ErrCookieFormat
	}
	aead, err := sc.newAEAD(key)
	if err != nil {
		return Principal{}, err
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return Principal{}, ErrCookieFormat
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, sc.aad())
	if err != nil {
		return Principal{}, ErrCookieInvalid
	}

	var claims sessionClaims
	if err := cbor.Unmarshal(plain, &claims); err != nil {
		return Principal{}, ErrCookieInvalid
	}
	if !sc.now().Before(claims.Expires) {
		return Principal{}, ErrCookieExpired
	}
	return claims.Principal, nil
}

// Clear returns a cookie that removes the session cookie from the client.
func (sc *SessionCookie) Clear() *http.Cookie {
	return &http.Cookie{
		Name:     sc.name,
		Path:     sc.path,
		Domain:   sc.domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   sc.secure,
		HttpOnly: true,
		SameSite: sc.sameSite,
	}
}
