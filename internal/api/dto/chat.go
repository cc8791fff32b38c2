package dto

import "time"

// GetOrCreateConversationReq 获取或创建会话请求体
type GetOrCreateConversationReq struct {
	UserIDs    []uint64 `json:"user_ids" binding:"required,min=2"`
	Type       string   `json:"type" binding:"required,oneof=individual group"`
	Title      string   `json:"title"`
	SourceType string   `json:"source_type"`
	SourceID   string   `json:"source_id"`
}

// ConversationResp 会话创建/查询响应
type ConversationResp struct {
	ConversationID uint64 `json:"conversation_id"`
	Type           string `json:"type"`
	Created        bool   `json:"created"` // 本次调用是否新建了会话
}

// AddMembersReq 补充会话成员请求体
type AddMembersReq struct {
	ConversationID uint64   `json:"conversation_id" binding:"required"`
	UserIDs        []uint64 `json:"user_ids" binding:"required,min=1"`
}

// SendMessageReq 发送消息请求体
type SendMessageReq struct {
	ConversationID uint64 `json:"conversation_id" binding:"required"`
	Content        string `json:"content" binding:"required"`
	ContentType    string `json:"content_type" binding:"required,oneof=text image"`
}

// MessageDTO 消息明细响应
type MessageDTO struct {
	ID             string    `json:"id"`
	ConversationID uint64    `json:"conversation_id"`
	SenderID       uint64    `json:"sender_id"`
	SenderName     string    `json:"sender_name,omitempty"`
	Content        string    `json:"content"`
	ContentType    string    `json:"content_type"`
	Seq            uint64    `json:"seq"`
	CreatedAt      time.Time `json:"created_at"`
}

// ListMessagesReq 历史消息分页请求
type ListMessagesReq struct {
	ConversationID uint64 `form:"conversation_id" binding:"required"`
	Limit          int64  `form:"limit"`
	Offset         int64  `form:"offset"`
}

// MarkReadReq 标记已读请求体
type MarkReadReq struct {
	ConversationID uint64 `json:"conversation_id" binding:"required"`
	LastMessageID  string `json:"last_message_id" binding:"required"`
}

// InboxRowDTO 收件箱条目
type InboxRowDTO struct {
	ConversationID uint64    `json:"conversation_id"`
	Type           string    `json:"type"`
	Title          string    `json:"title"`   // 单聊为对手方用户名，群聊为会话标题
	PeerID         uint64    `json:"peer_id"` // 对手方 ID（单聊有效）
	UnreadCount    uint64    `json:"unread_count"`
	LastMsgContent string    `json:"last_msg_content"`
	LastMsgType    string    `json:"last_msg_type"`
	LastSenderID   uint64    `json:"last_sender_id"`
	LastMessageAt  time.Time `json:"last_message_at"`
}
