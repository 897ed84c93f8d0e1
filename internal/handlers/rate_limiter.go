package handlers

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gemvault/api/internal/platform/httpx"
)

type rateLimiter interface {
	Allow(key string) (bool, time.Time)
}

// windowLimiter admits limit requests per key within each fixed window.
type windowLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time
	mu     sync.Mutex
	store  map[string]rateEntry
}

type rateEntry struct {
	count int
	reset time.Time
}

func newWindowLimiter(limit int, window time.Duration, clock func() time.Time) rateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &windowLimiter{
		limit:  limit,
		window: window,
		clock:  clock,
		store:  make(map[string]rateEntry),
	}
}

// Allow records a hit for key and reports whether it fits the window, plus when the window resets.
func (l *windowLimiter) Allow(key string) (bool, time.Time) {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.store[key]
	if !ok || now.After(entry.reset) {
		entry = rateEntry{count: 1, reset: now.Add(l.window)}
		l.store[key] = entry
		l.pruneExpiredLocked(now)
		return true, entry.reset
	}
	if entry.count >= l.limit {
		return false, entry.reset
	}
	entry.count++
	l.store[key] = entry
	return true, entry.reset
}

func (l *windowLimiter) pruneExpiredLocked(now time.Time) {
	for key, entry := range l.store {
		if now.After(entry.reset) {
			delete(l.store, key)
		}
	}
}

// limitByClient rejects requests from a client address once it exhausts the limiter.
func limitByClient(l rateLimiter, clock func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, reset := l.Allow(clientKey(r))
			if !ok {
				retry := int(reset.Sub(clock()).Seconds()) + 1
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many attempts, try again later", http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
