package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/plantbox/plantbox-api/internal/logging"
	"github.com/plantbox/plantbox-api/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RequestIDHeader carries the request id in and out
const RequestIDHeader = "X-Request-ID"

const loggerKey = "logger"

// RequestID assigns every request an id and a request-scoped logger
func RequestID(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		c.Set(loggerKey, logging.WithRequestID(logger, id))
		c.Next()
	}
}

// requestLogger returns the logger set by RequestID, or fallback
func requestLogger(c *gin.Context, fallback *zap.Logger) *zap.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if l, ok := v.(*zap.Logger); ok {
			return l
		}
	}
	return fallback
}

// AccessLog writes one structured line per request
func AccessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		l := requestLogger(c, logger)
		if status >= http.StatusInternalServerError {
			l.Error("Request failed", fields...)
			return
		}
		l.Info("Request handled", fields...)
	}
}

// Recovery turns panics into 500 responses and logs them
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		requestLogger(c, logger).Error("Panic while handling request",
			zap.Any("panic", recovered),
			zap.String("path", c.Request.URL.Path),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	})
}

// Metrics observes request durations by matched route
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.ObserveRequest(c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}

// RateLimiter is a per-client token bucket for ingest routes
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a limiter allowing rps requests per second with burst
func NewRateLimiter(rps rate.Limit, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rps,
		burst:    burst,
		stopCh:   make(chan struct{}),
	}
}

func (rl *RateLimiter) getLimiter(clientIP string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[clientIP]
	rl.mu.RUnlock()
	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if limiter, exists := rl.limiters[clientIP]; exists {
		return limiter
	}
	limiter = rate.NewLimiter(rl.rate, rl.burst)
	rl.limiters[clientIP] = limiter
	return limiter
}

// Start periodically forgets idle clients until Stop
func (rl *RateLimiter) Start(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.mu.Lock()
				for ip, limiter := range rl.limiters {
					// a full bucket means no recent traffic
					if limiter.Tokens() >= float64(rl.burst) {
						delete(rl.limiters, ip)
					}
				}
				rl.mu.Unlock()
			case <-rl.stopCh:
				return
			}
		}
	}()
}

// Stop ends the cleanup loop
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Middleware rejects requests over the limit with 429
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.getLimiter(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
