package middleware

import (
	"Lattice/internal/api/dto"
	lredis "Lattice/internal/pkg/redis"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func setupRateLimitRouter(limit int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("user_id", uint64(7))
		c.Next()
	})
	r.Use(SendRateLimitMiddleware(limit))
	r.POST("/send", func(c *gin.Context) {
		c.JSON(http.StatusOK, dto.Response{Code: 200, Message: "success"})
	})
	return r
}

func doSend(t *testing.T, r *gin.Engine) *dto.Response {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/send", nil)
	r.ServeHTTP(w, req)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return &resp
}

func TestSendRateLimitWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	lredis.Rdb = goredis.NewClient(&goredis.Options{Addr: mr.Addr()})

	r := setupRateLimitRouter(2)

	require.Equal(t, 200, doSend(t, r).Code)
	require.Equal(t, 200, doSend(t, r).Code)
	require.Equal(t, 429, doSend(t, r).Code)

	// 窗口过期后计数清零
	mr.FastForward(61 * time.Second)
	require.Equal(t, 200, doSend(t, r).Code)
}

func TestSendRateLimitDisabled(t *testing.T) {
	mr := miniredis.RunT(t)
	lredis.Rdb = goredis.NewClient(&goredis.Options{Addr: mr.Addr()})

	r := setupRateLimitRouter(0)
	for i := 0; i < 5; i++ {
		require.Equal(t, 200, doSend(t, r).Code)
	}
}

func TestSendRateLimitRedisDownFailsOpen(t *testing.T) {
	// Redis 不可用时限流退化为放行
	lredis.Rdb = goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1"})

	r := setupRateLimitRouter(1)
	require.Equal(t, 200, doSend(t, r).Code)
	require.Equal(t, 200, doSend(t, r).Code)
}
