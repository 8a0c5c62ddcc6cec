package middlewares

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/ShoppingRoom/utils/ratelimit"
)

// RateLimit 按用户限流，未识别身份的请求按客户端 IP 限流
func RateLimit(limiter ratelimit.Limiter, endpoint string, rule ratelimit.Rule) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := "ip:" + c.ClientIP()
		if id, ok := c.Get(UserIDKey); ok {
			subject = fmt.Sprintf("user:%v", id)
		}
		key := endpoint + ":" + subject

		allowed, err := limiter.Allow(c.Request.Context(), key, rule)
		if err != nil {
			c.Error(err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "rate limiter unavailable"})
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests, please slow down"})
			return
		}
		c.Next()
	}
}
