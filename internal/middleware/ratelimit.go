package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// RateLimit 返回一个基于 Redis 固定窗口计数的限流中间件。
// 按已认证用户限流，未认证请求按客户端 IP。
// Redis 不可用时放行，限流不能成为可用性瓶颈。
func RateLimit(client *redis.Client, limit int, window time.Duration) gin.HandlerFunc {
	if limit <= 0 {
		panic("rate limit must be positive")
	}

	return func(c *gin.Context) {
		subject := c.ClientIP()
		if userID := c.GetUint("user_id"); userID != 0 {
			subject = fmt.Sprintf("u:%d", userID)
		}
		key := fmt.Sprintf("ratelimit:%s:%d", subject, time.Now().Unix()/int64(window.Seconds()))

		pipe := client.Pipeline()
		count := pipe.Incr(c.Request.Context(), key)
		pipe.Expire(c.Request.Context(), key, window)
		if _, err := pipe.Exec(c.Request.Context()); err != nil {
			logrus.WithError(err).Warn("RateLimit middleware: redis unavailable, allowing request")
			c.Next()
			return
		}

		if count.Val() > int64(limit) {
			c.Header("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			c.Abort()
			return
		}
		c.Next()
	}
}
