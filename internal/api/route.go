package api

import (
	"Lattice/internal/api/config"
	"Lattice/internal/api/middleware"
	"Lattice/internal/pkg/logger"
	"net/http"

	"github.com/gin-gonic/gin"
)

func SetupRouter(group *HandlersGroup, cfg *config.Config) *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"localhost"})

	// TraceId & Logger & CORS
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.AuditMiddleware())
	r.Use(middleware.CORSMiddleware())
	logger.SetupGin(r)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"Code":    200,
				"Message": "pong",
				"Data":    nil,
			})
		})

		chatGroup := apiGroup.Group("/chat")
		{
			// WS 握手自带 token 鉴权，不走 Auth 中间件
			chatGroup.GET("/ws", group.WsHandler.Connect)

			authGroup := chatGroup.Group("")
			authGroup.Use(middleware.AuthMiddleware())
			{
				authGroup.POST("/conversations", group.ChatHandler.GetOrCreateConversation)
				authGroup.POST("/members", group.ChatHandler.AddMembers)
				authGroup.GET("/messages", group.ChatHandler.ListMessages)
				authGroup.POST("/read", group.ChatHandler.MarkRead)
				authGroup.GET("/inbox", group.ChatHandler.ListInbox)

				sendGroup := authGroup.Group("")
				sendGroup.Use(middleware.SendRateLimitMiddleware(cfg.RateLimit.SendPerMinute))
				{
					sendGroup.POST("/send", group.ChatHandler.SendMessage)
				}
			}
		}

		blockGroup := apiGroup.Group("/blocks")
		{
			blockGroup.Use(middleware.AuthMiddleware())
			{
				blockGroup.POST("", group.BlockHandler.Block)
				blockGroup.DELETE("/:blocked_id", group.BlockHandler.Unblock)
				blockGroup.GET("", group.BlockHandler.ListBlocks)
			}
		}
	}

	return r
}
