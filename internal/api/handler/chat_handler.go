package handler

import (
	"Lattice/internal/api/dto"
	"Lattice/internal/pkg/response"
	"Lattice/internal/service"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	chatSvc service.ChatService
}

func NewChatHandler(chatSvc service.ChatService) *ChatHandler {
	return &ChatHandler{chatSvc: chatSvc}
}

// GetOrCreateConversation POST /api/chat/conversations
func (s *ChatHandler) GetOrCreateConversation(c *gin.Context) {
	userID := c.GetUint64("user_id")

	var req dto.GetOrCreateConversationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}

	resp, err := s.chatSvc.GetOrCreateConversation(c, userID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, resp)
}

// AddMembers POST /api/chat/members
func (s *ChatHandler) AddMembers(c *gin.Context) {
	userID := c.GetUint64("user_id")

	var req dto.AddMembersReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}

	if err := s.chatSvc.AddMembers(c, userID, &req); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// SendMessage POST /api/chat/send
func (s *ChatHandler) SendMessage(c *gin.Context) {
	userID := c.GetUint64("user_id")

	var req dto.SendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}

	msg, err := s.chatSvc.SendMessage(c, userID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, msg)
}

// ListMessages GET /api/chat/messages
func (s *ChatHandler) ListMessages(c *gin.Context) {
	userID := c.GetUint64("user_id")

	var req dto.ListMessagesReq
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, err)
		return
	}

	msgs, err := s.chatSvc.ListMessages(c, userID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, msgs)
}

// MarkRead POST /api/chat/read
func (s *ChatHandler) MarkRead(c *gin.Context) {
	userID := c.GetUint64("user_id")

	var req dto.MarkReadReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}

	if err := s.chatSvc.MarkRead(c, userID, &req); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// ListInbox GET /api/chat/inbox
func (s *ChatHandler) ListInbox(c *gin.Context) {
	userID := c.GetUint64("user_id")

	rows, err := s.chatSvc.ListInbox(c, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, rows)
}
