package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/repository"
)

// RateLimit 返回一个基于客户端 IP 的速率限制中间件。
// 计数存储在 Redis，经由 StateRepository 访问。
func RateLimit(stateRepo repository.StateRepository, maxRequests int, window time.Duration) gin.HandlerFunc {
	if stateRepo == nil {
		panic("StateRepository cannot be nil for RateLimit middleware")
	}
	if maxRequests <= 0 || window <= 0 {
		panic("maxRequests and window must be positive for RateLimit middleware")
	}

	return func(c *gin.Context) {
		// 反向代理之后需要保证 ClientIP 拿到的是真实地址
		limited, err := stateRepo.CheckRateLimit(c.Request.Context(), c.ClientIP(), maxRequests, window)
		if err != nil {
			// 限流器自身故障不应拖垮请求路径，放行并记录
			logrus.WithError(err).Error("RateLimit: check failed, allowing request")
			c.Next()
			return
		}
		if limited {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			c.Abort()
			return
		}
		c.Next()
	}
}
