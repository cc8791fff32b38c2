package handler

import (
	"Lattice/internal/pkg/consts"
	"Lattice/internal/pkg/redis"
	"Lattice/internal/pkg/response"
	"Lattice/internal/pkg/security"
	"Lattice/internal/pkg/ws"
	"Lattice/internal/service"
	log "log/slog"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// typingFrame 客户端上行的 typing 帧
type typingFrame struct {
	Type string `json:"type"`
	Data struct {
		ConversationID uint64 `json:"conversation_id"`
		IsTyping       bool   `json:"is_typing"`
	} `json:"data"`
}

type WsHandler struct {
	registry *ws.Registry
	chatSvc  service.ChatService
}

func NewWsHandler(registry *ws.Registry, chatSvc service.ChatService) *WsHandler {
	return &WsHandler{registry: registry, chatSvc: chatSvc}
}

// Connect GET /api/chat/ws?token=
// 鉴权必须在注册在线表之前完成，握手被拒绝的连接不会留下任何在线痕迹。
func (s *WsHandler) Connect(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, service.UnauthorizedError)
		return
	}

	// 吊销名单检查与 REST 侧同一口径
	if signature, err := security.ExtractSignature(token); err == nil {
		if value, err := redis.GetValue(c.Request.Context(), consts.TokenRevokedKey+signature); err == nil && value != "" {
			response.Error(c, service.UnauthorizedError)
			return
		}
	}

	claims, err := security.ValidateToken(token)
	if err != nil {
		log.Warn("WS 鉴权失败", "err", err)
		response.Error(c, service.UnauthorizedError)
		return
	}
	userID := claims.UserID

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WS 协议升级失败", "err", err)
		return
	}

	connID := uuid.NewString()
	client := ws.NewClient(connID, userID, conn)

	// 单活语义：同一用户的旧连接被新连接顶掉
	if old := s.registry.Connect(userID, client); old != nil {
		old.Close()
	}
	log.Info("用户 WS 连接已建立", "userID", userID, "connID", connID)

	go client.WritePump()

	defer func() {
		// 只摘除自己这条连接，迟到的断开不能误伤新连接
		if s.registry.Disconnect(userID, connID) {
			log.Info("用户 WS 连接已断开", "userID", userID, "connID", connID)
		}
		client.Close()
	}()

	// 读循环：消费上行 typing 帧，其他帧忽略
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var frame typingFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			continue
		}
		if frame.Type != "typing" || frame.Data.ConversationID == 0 {
			continue
		}

		s.chatSvc.NotifyTyping(c.Request.Context(), userID, frame.Data.ConversationID, frame.Data.IsTyping)
	}
}
