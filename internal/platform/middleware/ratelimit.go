package middleware

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	dErrors "enlist/pkg/domain-errors"
	"enlist/pkg/platform/httputil"
	"enlist/pkg/requestcontext"
)

// IPRateLimiter keeps one token bucket per client IP and evicts idle buckets.
type IPRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	rps     rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type RateLimitOption func(*IPRateLimiter)

func WithIdleTTL(d time.Duration) RateLimitOption {
	return func(l *IPRateLimiter) { l.idleTTL = d }
}

func WithRateLimitLogger(logger *slog.Logger) RateLimitOption {
	return func(l *IPRateLimiter) { l.logger = logger }
}

// NewIPRateLimiter builds a limiter. A non-positive rps disables limiting.
func NewIPRateLimiter(rps float64, burst int, opts ...RateLimitOption) *IPRateLimiter {
	l := &IPRateLimiter{
		entries: make(map[string]*limiterEntry),
		rps:     rate.Limit(rps),
		burst:   max(burst, 1),
		idleTTL: 15 * time.Minute,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow consumes a token for key.
func (l *IPRateLimiter) Allow(key string) (bool, time.Duration) {
	if l.rps <= 0 {
		return true, 0
	}
	now := l.now()

	l.mu.Lock()
	ent, ok := l.entries[key]
	if !ok {
		ent = &limiterEntry{lim: rate.NewLimiter(l.rps, l.burst)}
		l.entries[key] = ent
	}
	ent.lastSeen = now
	l.mu.Unlock()

	res := ent.lim.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Cleanup removes buckets idle for longer than the idle TTL.
func (l *IPRateLimiter) Cleanup() {
	cutoff := l.now().Add(-l.idleTTL)
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, ent := range l.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(l.entries, k)
		}
	}
}

// StartJanitor runs Cleanup every interval until ctx is cancelled.
func (l *IPRateLimiter) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				l.Cleanup()
			}
		}
	}()
}

// Middleware rejects requests over the per-IP budget with 429.
func (l *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := requestcontext.ClientIP(r.Context())
		if ip == "" {
			ip = ClientIPFromRequest(r)
		}
		allowed, retryAfter := l.Allow(ip)
		if !allowed {
			l.logger.WarnContext(r.Context(), "rate limit exceeded",
				"path", r.URL.Path,
				"request_id", requestcontext.RequestID(r.Context()),
			)
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many requests"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
