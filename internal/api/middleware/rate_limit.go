package middleware

import (
	"Lattice/internal/pkg/consts"
	"Lattice/internal/pkg/redis"
	"Lattice/internal/pkg/response"
	log "log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// SendRateLimitMiddleware 发消息限流：按用户的固定窗口计数
// 窗口一分钟，上限由配置给定；Redis 不可用时放行，限流只是护栏不是正确性约束。
func SendRateLimitMiddleware(limitPerMinute int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limitPerMinute <= 0 {
			c.Next()
			return
		}

		userID := c.GetUint64("user_id")
		key := consts.SendRateLimitKey + strconv.FormatUint(userID, 10)

		count, err := redis.IncrWindow(c.Request.Context(), key, time.Minute)
		if err != nil {
			log.Warn("限流计数失败，跳过限流", "userID", userID, "err", err)
			c.Next()
			return
		}

		if count > int64(limitPerMinute) {
			response.Fail(c, response.TooManyRequests, "发送过于频繁，请稍后再试")
			c.Abort()
			return
		}

		c.Next()
	}
}
