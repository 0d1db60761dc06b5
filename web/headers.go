package web

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
)

// SecurityHeaders is a Processor that sets response headers suited to a JSON
// API and, when origins are configured, answers CORS requests so browser
// clients can call the Resource.
//
// Defaults:
//   - Strict-Transport-Security: max-age=31536000; includeSubDomains
//   - Referrer-Policy: no-referrer
//   - X-Content-Type-Options: nosniff
//   - X-Frame-Options: DENY
//   - Content-Security-Policy: default-src 'none'; frame-ancestors 'none'
//   - Cross-Origin-Resource-Policy: same-origin
//   - Cache-Control: no-store
type SecurityHeaders struct {
	headers http.Header

	origins          []string
	allowCredentials bool
	allowHeaders     []string
	maxAge           int
}

// HeaderOption configures SecurityHeaders.
type HeaderOption func(*SecurityHeaders)

// WithHSTS sets the Strict-Transport-Security max age in seconds; 0 drops
// the header.
func WithHSTS(maxAge int, includeSubDomains bool) HeaderOption {
	return func(s *SecurityHeaders) {
		if maxAge <= 0 {
			s.headers.Del("Strict-Transport-Security")
			return
		}
		v := "max-age=" + strconv.Itoa(maxAge)
		if includeSubDomains {
			v += "; includeSubDomains"
		}
		s.headers.Set("Strict-Transport-Security", v)
	}
}

// WithResponseHeader sets an extra response header, or removes a default when value
// is empty.
func WithResponseHeader(name, value string) HeaderOption {
	return func(s *SecurityHeaders) {
		if value == "" {
			s.headers.Del(name)
			return
		}
		s.headers.Set(name, value)
	}
}

// WithCORS allows cross-origin calls from origins. "*" allows any origin
// unless credentials are allowed.
func WithCORS(origins []string, allowCredentials bool) HeaderOption {
	return func(s *SecurityHeaders) {
		s.origins = origins
		s.allowCredentials = allowCredentials
	}
}

// NewSecurityHeaders creates SecurityHeaders with API defaults.
func NewSecurityHeaders(opts ...HeaderOption) *SecurityHeaders {
	s := &SecurityHeaders{
		headers: http.Header{
			"Strict-Transport-Security":    {"max-age=31536000; includeSubDomains"},
			"Referrer-Policy":              {"no-referrer"},
			"X-Content-Type-Options":       {"nosniff"},
			"X-Frame-Options":              {"DENY"},
			"Content-Security-Policy":      {"default-src 'none'; frame-ancestors 'none'"},
			"Cross-Origin-Resource-Policy": {"same-origin"},
			"Cache-Control":                {"no-store"},
		},
		allowHeaders: []string{"Content-Type", "Authorization"},
		maxAge:       3600,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Process implements Processor.
func (s *SecurityHeaders) Process(w http.ResponseWriter, r *http.Request, next func(w http.ResponseWriter, r *http.Request) error) error {
	h := w.Header()
	for name, values := range s.headers {
		h[name] = slices.Clone(values)
	}

	origin := r.Header.Get("Origin")
	if origin == "" || len(s.origins) == 0 {
		return next(w, r)
	}
	if allowed := s.allowOrigin(origin); allowed != "" {
		h.Set("Access-Control-Allow-Origin", allowed)
		h.Add("Vary", "Origin")
		if s.allowCredentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}
	}
	if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
		h.Set("Access-Control-Allow-Methods", http.MethodPost)
		h.Set("Access-Control-Allow-Headers", strings.Join(s.allowHeaders, ", "))
		h.Set("Access-Control-Max-Age", strconv.Itoa(s.maxAge))
		return Error(http.StatusNoContent, "", nil)
	}
	return next(w, r)
}

func (s *SecurityHeaders) allowOrigin(origin string) string {
	for _, allowed := range s.origins {
		switch {
		case allowed == origin:
			return origin
		case allowed == "*" && !s.allowCredentials:
			return "*"
		}
	}
	return ""
}
