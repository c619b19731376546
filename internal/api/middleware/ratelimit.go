package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/api/problem"
	"github.com/Togather-Foundation/rsvp/internal/config"
	"golang.org/x/time/rate"
)

type RateLimitTier string

const (
	TierPublic        RateLimitTier = "public"
	TierAuthenticated RateLimitTier = "authenticated"
	TierLogin         RateLimitTier = "login" // register and login attempts
)

// limiterTTL is how long an idle client's limiter is kept.
const limiterTTL = 15 * time.Minute

type rateLimitKey string

const rateLimitTierKey rateLimitKey = "rateLimitTier"

func WithRateLimitTier(ctx context.Context, tier RateLimitTier) context.Context {
	return context.WithValue(ctx, rateLimitTierKey, tier)
}

// WithRateLimitTierHandler selects the tier RateLimit applies to a route. It
// must run before RateLimit.
func WithRateLimitTierHandler(tier RateLimitTier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithRateLimitTier(r.Context(), tier)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimiter throttles each client IP per tier with a token bucket that
// refills at the tier's per-minute rate.
type RateLimiter struct {
	store *limiterStore
	env   string
}

func NewRateLimiter(cfg config.RateLimitConfig, env string) *RateLimiter {
	return &RateLimiter{store: newLimiterStore(cfg), env: env}
}

// Handler applies the tier selected for the request, TierPublic by default.
func (l *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tier := TierPublic
		if value, ok := r.Context().Value(rateLimitTierKey).(RateLimitTier); ok {
			tier = value
		}

		limiter := l.store.limiter(tier, clientKey(r))
		if limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		if !limiter.Allow() {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(l.store.perMinute[tier])))
			problem.Write(w, r, http.StatusTooManyRequests, problem.TypeRateLimited, "Too many requests", problem.ErrRateLimited, l.env)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Stop ends the background cleanup.
func (l *RateLimiter) Stop() {
	l.store.Stop()
}

// retryAfterSeconds is the time for one token to refill, rounded up.
func retryAfterSeconds(perMinute int) int {
	if perMinute <= 0 {
		return 60
	}
	return (60 + perMinute - 1) / perMinute
}

type limiterStore struct {
	mu          sync.Mutex
	limiters    map[string]*limiterEntry
	perMinute   map[RateLimitTier]int
	stopCleanup chan struct{}
	stopOnce    sync.Once
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLimiterStore(cfg config.RateLimitConfig) *limiterStore {
	store := &limiterStore{
		limiters: make(map[string]*limiterEntry),
		perMinute: map[RateLimitTier]int{
			TierPublic:        cfg.PublicPerMinute,
			TierAuthenticated: cfg.AuthenticatedPerMinute,
			TierLogin:         cfg.LoginPerMinute,
		},
		stopCleanup: make(chan struct{}),
	}

	go store.cleanupLoop()

	return store
}

// limiter returns the bucket for key in tier, or nil when the tier is
// unlimited.
func (s *limiterStore) limiter(tier RateLimitTier, key string) *rate.Limiter {
	limit := s.perMinute[tier]
	if limit <= 0 {
		return nil
	}

	lookup := string(tier) + ":" + key

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.limiters[lookup]; ok {
		entry.lastSeen = time.Now()
		return entry.limiter
	}

	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(limit)), limit)
	s.limiters[lookup] = &limiterEntry{
		limiter:  limiter,
		lastSeen: time.Now(),
	}
	return limiter
}

func (s *limiterStore) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup(time.Now())
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanup drops limiters idle for longer than limiterTTL.
func (s *limiterStore) cleanup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, entry := range s.limiters {
		if now.Sub(entry.lastSeen) > limiterTTL {
			delete(s.limiters, key)
		}
	}
}

func (s *limiterStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
}

// clientKey is the connection's remote IP. Forwarding headers are ignored
// because any client can set them.
func clientKey(r *http.Request) string {
	if r == nil {
		return ""
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
