package shield

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig is a fixed-window limit applied per client IP and route.
type RateLimitConfig struct {
	MaxRequests   int  `yaml:"max_requests"`
	WindowSeconds int  `yaml:"window_seconds"`
	Enabled       bool `yaml:"enabled"`
}

func (c RateLimitConfig) active() bool {
	return c.Enabled && c.MaxRequests > 0 && c.WindowSeconds > 0
}

type clientRoute struct {
	ip    string
	route string
}

// window counts the requests a client made to a route since start.
type window struct {
	start time.Time
	count int
}

// RateLimiter counts requests in clock-aligned windows: all clients roll
// over to a fresh window at the same instant.
type RateLimiter struct {
	cfg  RateLimitConfig
	size time.Duration
	now  func() time.Time

	mu      sync.Mutex
	windows map[clientRoute]*window
}

// NewRateLimiter creates a limiter. A disabled or zero config lets every
// request through.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		cfg:     cfg,
		size:    time.Duration(cfg.WindowSeconds) * time.Second,
		now:     time.Now,
		windows: make(map[clientRoute]*window),
	}
}

// StartGC drops counters of past windows once per window until done is
// closed. It is a no-op for an inactive limiter.
func (rl *RateLimiter) StartGC(done <-chan struct{}) {
	if !rl.cfg.active() {
		return
	}
	go func() {
		tick := time.NewTicker(rl.size)
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-tick.C:
				rl.gc()
			}
		}
	}()
}

func (rl *RateLimiter) gc() {
	current := rl.now().Truncate(rl.size)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for k, w := range rl.windows {
		if w.start.Before(current) {
			delete(rl.windows, k)
		}
	}
}

// allow records one request and reports whether it fits the limit, plus
// the time left until the current window closes.
func (rl *RateLimiter) allow(ip, route string) (bool, time.Duration) {
	if !rl.cfg.active() {
		return true, 0
	}
	now := rl.now()
	start := now.Truncate(rl.size)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	k := clientRoute{ip: ip, route: route}
	w, ok := rl.windows[k]
	if !ok || w.start != start {
		w = &window{start: start}
		rl.windows[k] = w
	}
	w.count++
	return w.count <= rl.cfg.MaxRequests, start.Add(rl.size).Sub(now)
}

// Middleware answers 429 with a JSON error and Retry-After once a client
// exceeds the limit on a route.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, route := ExtractIP(r), r.Method+" "+r.URL.Path
		ok, left := rl.allow(ip, route)
		if ok {
			next.ServeHTTP(w, r)
			return
		}

		retry := int(math.Ceil(left.Seconds()))
		slog.Warn("shield: rate limited", "ip", ip, "route", route, "retry_after_s", retry)
		w.Header().Set("Retry-After", strconv.Itoa(max(retry, 1)))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
	})
}

// ExtractIP returns the first X-Forwarded-For hop, falling back to the
// host part of RemoteAddr.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
