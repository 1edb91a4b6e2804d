package api

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	Enabled       bool          `yaml:"enabled"`
	RequestsPerIP int           `yaml:"requests_per_ip"`
	WindowSize    time.Duration `yaml:"window_size"`
	BurstSize     int           `yaml:"burst_size"`
	CleanupPeriod time.Duration `yaml:"cleanup_period"`
	ExemptPaths   []string      `yaml:"exempt_paths"`
	TrustProxy    bool          `yaml:"trust_proxy"`
}

// DefaultRateLimitConfig returns the default rate limit settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:       true,
		RequestsPerIP: 300,
		WindowSize:    time.Minute,
		BurstSize:     50,
		CleanupPeriod: 5 * time.Minute,
		ExemptPaths:   []string{"/health"},
		TrustProxy:    false,
	}
}

// rateLimiter is a fixed-window per-IP limiter with periodic cleanup of
// expired entries.
type rateLimiter struct {
	cfg         RateLimitConfig
	clients     map[string]*clientWindow
	mu          sync.Mutex
	exemptPaths map[string]bool
	stop        chan struct{}
	stopOnce    sync.Once
	logger      *slog.Logger
}

type clientWindow struct {
	count     int
	windowEnd time.Time
}

func newRateLimiter(cfg RateLimitConfig, logger *slog.Logger) *rateLimiter {
	exempt := make(map[string]bool, len(cfg.ExemptPaths))
	for _, path := range cfg.ExemptPaths {
		exempt[path] = true
	}
	rl := &rateLimiter{
		cfg:         cfg,
		clients:     make(map[string]*clientWindow),
		exemptPaths: exempt,
		stop:        make(chan struct{}),
		logger:      logger,
	}
	go rl.cleanupLoop()
	return rl
}

// allow reports whether a request from ip fits in the current window and
// returns the remaining budget and window reset time.
func (rl *rateLimiter) allow(ip string) (bool, int, time.Time) {
	now := time.Now()
	limit := rl.cfg.RequestsPerIP + rl.cfg.BurstSize

	rl.mu.Lock()
	defer rl.mu.Unlock()

	client, ok := rl.clients[ip]
	if !ok || now.After(client.windowEnd) {
		client = &clientWindow{windowEnd: now.Add(rl.cfg.WindowSize)}
		rl.clients[ip] = client
	}

	if client.count >= limit {
		return false, 0, client.windowEnd
	}
	client.count++
	return true, limit - client.count, client.windowEnd
}

func (rl *rateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cfg.CleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stop:
			return
		}
	}
}

func (rl *rateLimiter) cleanup() {
	threshold := time.Now().Add(-2 * rl.cfg.WindowSize)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for ip, client := range rl.clients {
		if client.windowEnd.Before(threshold) {
			delete(rl.clients, ip)
			removed++
		}
	}
	if removed > 0 {
		rl.logger.Debug("rate limiter cleanup", "removed", removed, "remaining", len(rl.clients))
	}
}

func (rl *rateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// RateLimitMiddleware applies per-IP rate limiting with standard headers and
// a 429 envelope on rejection. The stop function halts the limiter's cleanup
// goroutine; callers must invoke it when the handler is discarded.
func RateLimitMiddleware(cfg RateLimitConfig, logger *slog.Logger) (func(http.Handler) http.Handler, func()) {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }, func() {}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CleanupPeriod <= 0 {
		cfg.CleanupPeriod = DefaultRateLimitConfig().CleanupPeriod
	}
	limiter := newRateLimiter(cfg, logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter.exemptPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			ip := clientIP(r, cfg.TrustProxy)
			allowed, remaining, resetTime := limiter.allow(ip)

			limit := cfg.RequestsPerIP + cfg.BurstSize
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetTime.Unix()))

			if !allowed {
				logger.Warn("rate limit exceeded",
					"ip", ip,
					"path", r.URL.Path,
					"method", r.Method,
				)
				retryAfter := int(time.Until(resetTime).Seconds()) + 1
				w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}

			next.ServeHTTP(w, r)
		})
	}, limiter.Stop
}

// clientIP extracts the client IP. With trustProxy the rightmost
// X-Forwarded-For entry wins: it was set by the proxy closest to us and
// cannot be spoofed by the client.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			for i := len(parts) - 1; i >= 0; i-- {
				if ip := strings.TrimSpace(parts[i]); ip != "" {
					return ip
				}
			}
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return xri
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
