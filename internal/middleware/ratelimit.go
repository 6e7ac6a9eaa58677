package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/edumirror/backend/pkg/response"
)

// Counter counts hits for key, expiring it after window.
type Counter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisCounter is a Counter on INCR + EXPIRE.
type RedisCounter struct {
	client *redis.Client
}

// NewRedisCounter creates a Redis-backed Counter.
func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

func (r *RedisCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// RateLimit allows limit requests per client IP per window. Counter errors
// let the request through. A nil counter, limit <= 0 or window <= 0 disables it.
func RateLimit(counter Counter, limit int, window time.Duration, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		if counter == nil || limit <= 0 || window <= 0 {
			c.Next()
			return
		}
		bucket := time.Now().UnixNano() / int64(window)
		key := fmt.Sprintf("edumirror:ratelimit:%s:%d", c.ClientIP(), bucket)
		n, err := counter.Hit(c.Request.Context(), key, window)
		if err != nil {
			logger.Warn("rate limit counter unavailable", zap.Error(err))
			c.Next()
			return
		}
		remaining := int64(limit) - n
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		if n > int64(limit) {
			c.Header("Retry-After", strconv.Itoa(int(window/time.Second)))
			response.Abort(c, http.StatusTooManyRequests, response.CodeRateLimited, "too many requests, try again later")
			return
		}
		c.Next()
	}
}
