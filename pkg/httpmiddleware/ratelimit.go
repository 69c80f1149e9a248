package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	// Max requests per Window for a single key.
	Max    int
	Window time.Duration
	// KeyFunc defaults to the client IP.
	KeyFunc func(*http.Request) string
}

// window holds the counts of the current and previous fixed windows; the
// sliding estimate weighs the previous one by its remaining overlap.
type window struct {
	prev, curr float64
	start      time.Time
}

type limiter struct {
	max    int
	period time.Duration
	key    func(*http.Request) string
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

func newLimiter(cfg RateLimitConfig) *limiter {
	l := &limiter{
		max:     cfg.Max,
		period:  cfg.Window,
		key:     cfg.KeyFunc,
		now:     time.Now,
		windows: make(map[string]*window),
	}
	if l.key == nil {
		l.key = clientIP
	}
	return l
}

// take consumes one request for key if the sliding count allows it.
func (l *limiter) take(key string, now time.Time) (remaining int, reset time.Time, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, found := l.windows[key]
	if !found {
		w = &window{start: now.Truncate(l.period)}
		l.windows[key] = w
	}
	if elapsed := now.Sub(w.start); elapsed >= l.period {
		w.prev = w.curr
		if elapsed >= 2*l.period {
			w.prev = 0
		}
		w.curr = 0
		w.start = now.Truncate(l.period)
	}

	overlap := max(0, 1-now.Sub(w.start).Seconds()/l.period.Seconds())
	count := w.prev*overlap + w.curr
	reset = w.start.Add(l.period)
	if count >= float64(l.max) {
		return 0, reset, false
	}
	w.curr++
	return max(0, int(float64(l.max)-count-1)), reset, true
}

// evict drops keys idle for two full windows.
func (l *limiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, w := range l.windows {
		if now.Sub(w.start) >= 2*l.period {
			delete(l.windows, key)
		}
	}
}

func (l *limiter) middleware(next http.Handler) http.Handler {
	limit := strconv.Itoa(l.max)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := l.now()
		remaining, reset, ok := l.take(l.key(r), now)

		h := w.Header()
		h.Set("X-RateLimit-Limit", limit)
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
		if !ok {
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(max(0, reset.Sub(now).Seconds())))))
			WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimit limits requests per key with a sliding window and answers 429
// once the limit is reached. Idle keys are never evicted.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newLimiter(cfg).middleware
}

// RateLimitWithCleanup is RateLimit with a goroutine that evicts idle keys
// until ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go func() {
		ticker := time.NewTicker(2 * l.period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				l.evict(now)
			}
		}
	}()
	return l.middleware
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// peer address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
