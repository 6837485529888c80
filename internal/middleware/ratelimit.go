package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizguard/internal/config"
	"github.com/stemsi/quizguard/internal/response"
)

// RateLimiter is a per-IP fixed-window limiter backed by Redis, so every
// server replica shares the same counters.
type RateLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	log    zerolog.Logger
}

// NewRateLimiter allows limit requests per window for each client IP.
func NewRateLimiter(rdb *redis.Client, limit int, window time.Duration, log zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		rdb:    rdb,
		limit:  limit,
		window: window,
		log:    log.With().Str("component", "rate_limiter").Logger(),
	}
}

// Middleware rejects requests over the limit with 429. Redis failures fail open.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.limit <= 0 {
			c.Next()
			return
		}

		slot := time.Now().UnixNano() / int64(rl.window)
		key := config.CacheKey.RateLimitKey(c.ClientIP(), strconv.FormatInt(slot, 10))

		ctx := c.Request.Context()
		pipe := rl.rdb.TxPipeline()
		incr := pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, rl.window)
		if _, err := pipe.Exec(ctx); err != nil {
			rl.log.Warn().Err(err).Msg("Rate limit check failed, allowing request")
			c.Next()
			return
		}

		n := incr.Val()
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(max(int64(rl.limit)-n, 0), 10))
		if n > int64(rl.limit) {
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}
		c.Next()
	}
}
