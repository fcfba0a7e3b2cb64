package middleware

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/PhilHem/gamepanel/backend/handlers"
)

// LimitStore counts hits per key in fixed windows.
type LimitStore interface {
	// Hit records one attempt and returns the attempts so far in the current
	// window and the time until that window resets.
	Hit(ctx context.Context, key string, window time.Duration) (count int, resetIn time.Duration, err error)
	Reset(ctx context.Context, key string) error
}

// KeyFunc extracts the rate limit key from a request.
type KeyFunc func(r *http.Request) string

// RateLimiter limits requests per key in fixed windows.
type RateLimiter struct {
	store  LimitStore
	limit  int
	window time.Duration
	key    KeyFunc
	field  string
	reset  bool
}

type RateLimitOption func(*RateLimiter)

func WithStore(s LimitStore) RateLimitOption {
	return func(rl *RateLimiter) { rl.store = s }
}

func WithKeyFunc(fn KeyFunc) RateLimitOption {
	return func(rl *RateLimiter) { rl.key = fn }
}

// WithErrorField sets the form field the 429 error is reported on.
func WithErrorField(field string) RateLimitOption {
	return func(rl *RateLimiter) { rl.field = field }
}

// WithResetOnSuccess clears the key's counter once the wrapped handler
// answers with a status below 400.
func WithResetOnSuccess() RateLimitOption {
	return func(rl *RateLimiter) { rl.reset = true }
}

// NewRateLimiter creates a new rate limiter keyed by client IP and backed by
// an in-memory store unless overridden.
func NewRateLimiter(limit int, window time.Duration, opts ...RateLimitOption) *RateLimiter {
	rl := &RateLimiter{
		limit:  limit,
		window: window,
		key:    IPKey,
		field:  "email",
	}
	for _, opt := range opts {
		opt(rl)
	}
	if rl.store == nil {
		rl.store = NewMemoryLimitStore(window)
	}
	return rl
}

// getIP extracts the IP from the request. Run chi's RealIP first when
// behind a proxy.
func getIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func IPKey(r *http.Request) string {
	return getIP(r)
}

// LoginKey keys attempts by client IP and the submitted email, so one
// attacker cannot lock out every account from one address.
func LoginKey(r *http.Request) string {
	email := strings.ToLower(strings.TrimSpace(r.FormValue("email")))
	if email == "" {
		email = "guest"
	}
	sum := sha1.Sum([]byte(getIP(r) + "|" + email))
	return hex.EncodeToString(sum[:])
}

// Limit returns a middleware that rate limits requests
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := "ratelimit:" + rl.key(r)

		count, resetIn, err := rl.store.Hit(r.Context(), key, rl.window)
		if err != nil {
			slog.ErrorContext(r.Context(), "rate limit store failed", "source", "ratelimit", "error", err.Error())
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(0, rl.limit-count)))

		if count > rl.limit {
			retryAfter := int(math.Ceil(resetIn.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			slog.WarnContext(r.Context(), "rate limit exceeded", "source", "ratelimit", "path", r.URL.Path, "ip", getIP(r))
			handlers.WriteErrors(w, http.StatusTooManyRequests, map[string]string{
				rl.field: tooManyMessage(retryAfter),
			})
			return
		}

		if !rl.reset {
			next.ServeHTTP(w, r)
			return
		}
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if ww.Status() < http.StatusBadRequest {
			if err := rl.store.Reset(r.Context(), key); err != nil {
				slog.ErrorContext(r.Context(), "rate limit reset failed", "source", "ratelimit", "error", err.Error())
			}
		}
	})
}

func tooManyMessage(retryAfter int) string {
	minutes := int(math.Ceil(float64(retryAfter) / 60))
	unit := "minutes"
	if minutes == 1 {
		unit = "minute"
	}
	return fmt.Sprintf("Too many attempts. Please try again in %d %s.", minutes, unit)
}

type visitor struct {
	count   int
	resetAt time.Time
}

// MemoryLimitStore keeps counters in process memory. Counters are lost on
// restart and not shared between instances.
type MemoryLimitStore struct {
	visitors  map[string]*visitor
	mu        sync.Mutex
	now       func() time.Time
	sweep     time.Duration
	lastSweep time.Time
}

// NewMemoryLimitStore creates a store that drops expired counters at most
// once per sweep interval, during Hit. A zero sweep never drops them.
func NewMemoryLimitStore(sweep time.Duration) *MemoryLimitStore {
	return &MemoryLimitStore{
		visitors: make(map[string]*visitor),
		now:      time.Now,
		sweep:    sweep,
	}
}

// sweepLocked removes expired entries. s.mu must be held.
func (s *MemoryLimitStore) sweepLocked(now time.Time) {
	if s.sweep <= 0 {
		return
	}
	if s.lastSweep.IsZero() {
		s.lastSweep = now
		return
	}
	if now.Sub(s.lastSweep) < s.sweep {
		return
	}
	s.lastSweep = now
	for key, v := range s.visitors {
		if !now.Before(v.resetAt) {
			delete(s.visitors, key)
		}
	}
}

func (s *MemoryLimitStore) Hit(_ context.Context, key string, window time.Duration) (int, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now)
	v, ok := s.visitors[key]
	if !ok || !now.Before(v.resetAt) {
		v = &visitor{resetAt: now.Add(window)}
		s.visitors[key] = v
	}
	v.count++
	return v.count, v.resetAt.Sub(now), nil
}

// Len returns the number of tracked keys.
func (s *MemoryLimitStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.visitors)
}

func (s *MemoryLimitStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.visitors, key)
	s.mu.Unlock()
	return nil
}
