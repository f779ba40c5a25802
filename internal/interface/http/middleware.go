package http

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/qa-trainer/internal/infra/config"
)

func errorHandlingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		httpErr := asHTTPError(c.Errors.Last().Err)
		message := httpErr.Message
		if message == "" {
			message = httpErr.Error()
		}

		attrs := []any{"code", httpErr.Code, "status", httpErr.Status, "path", c.Request.URL.Path, "error", httpErr.Err}
		if httpErr.Status >= http.StatusInternalServerError {
			logger.Error("request failed", attrs...)
		} else {
			logger.Warn("request failed", attrs...)
		}

		c.JSON(httpErr.Status, gin.H{
			"error": gin.H{
				"code":    httpErr.Code,
				"message": message,
			},
		})
	}
}

func rateLimitMiddleware(cfg config.RateLimitConfig, logger *slog.Logger) gin.HandlerFunc {
	if !cfg.Enabled || cfg.RequestsPerMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	limiter := newClientLimiter(cfg, time.Now)
	return func(c *gin.Context) {
		ip := c.ClientIP()
		wait, ok := limiter.take(ip)
		if ok {
			c.Next()
			return
		}
		logger.Warn("rate limit exceeded", "ip", ip, "path", c.Request.URL.Path)
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		abortWithError(c, NewHTTPError(http.StatusTooManyRequests, "rate_limit_exceeded", "too many requests", nil))
	}
}

// clientLimiter is a token bucket per client address.
type clientLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	perSec  float64
	burst   float64
	idle    time.Duration
	now     func() time.Time
	swept   time.Time
}

type bucket struct {
	tokens float64
	seen   time.Time
}

func newClientLimiter(cfg config.RateLimitConfig, now func() time.Time) *clientLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &clientLimiter{
		buckets: make(map[string]*bucket),
		perSec:  float64(cfg.RequestsPerMinute) / 60,
		burst:   float64(burst),
		idle:    5 * time.Minute,
		now:     now,
	}
}

// take consumes a token for key. When none is left it returns how long
// until one is available.
func (l *clientLimiter) take(key string) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.burst, seen: now}
		l.buckets[key] = b
	} else {
		b.tokens = math.Min(l.burst, b.tokens+now.Sub(b.seen).Seconds()*l.perSec)
		b.seen = now
	}
	if now.Sub(l.swept) > l.idle {
		for k, other := range l.buckets {
			if now.Sub(other.seen) > l.idle {
				delete(l.buckets, k)
			}
		}
		l.swept = now
	}
	if b.tokens < 1 {
		return time.Duration((1 - b.tokens) / l.perSec * float64(time.Second)), false
	}
	b.tokens--
	return 0, true
}
