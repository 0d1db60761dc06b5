package web

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a Processor that limits requests per client IP with a token
// bucket. Requests over the limit get 429 with a Retry-After header.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time

	mu    sync.Mutex
	byKey map[string]*rateLimitEntry
	hits  uint64
}

type rateLimitEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit returns a RateLimiter allowing rps requests per second per client
// with bursts of up to burst.
func RateLimit(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: 10 * time.Minute,
		now:     time.Now,
		byKey:   make(map[string]*rateLimitEntry),
	}
}

// Process implements Processor.
func (l *RateLimiter) Process(w http.ResponseWriter, r *http.Request, next func(w http.ResponseWriter, r *http.Request) error) error {
	if !l.allow(clientKey(r), l.now()) {
		retry := 1
		if l.limit > 0 {
			retry = int(1/float64(l.limit)) + 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		return Error(http.StatusTooManyRequests, "", nil)
	}
	return next(w, r)
}

func (l *RateLimiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.byKey[key]
	if !ok {
		entry = &rateLimitEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byKey[key] = entry
	}
	entry.lastSeen = now
	allowed := entry.limiter.AllowN(now, 1)

	l.hits++
	if l.hits%512 == 0 {
		cutoff := now.Add(-l.idleTTL)
		for k, v := range l.byKey {
			if v.lastSeen.Before(cutoff) {
				delete(l.byKey, k)
			}
		}
	}
	return allowed
}

func clientKey(r *http.Request) string {
	remote := strings.TrimSpace(r.RemoteAddr)
	if remote == "" {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return remote
	}
	return host
}
