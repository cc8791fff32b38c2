package ws

import (
	"Lattice/internal/pkg/consts"
	"time"
)

// Envelope 统一的下行事件信封：type + data
type Envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// NewMessageEvent new_message 事件载荷
type NewMessageEvent struct {
	MessageID      string    `json:"message_id"`
	ConversationID uint64    `json:"conversation_id"`
	SenderID       uint64    `json:"sender_id"`
	SenderName     string    `json:"sender_name"`
	Content        string    `json:"content"`
	ContentType    string    `json:"content_type"`
	CreatedAt      time.Time `json:"created_at"`
}

// TypingEvent user_typing 事件载荷
// 纯易失信号，不落库不补发，错过即错过。
type TypingEvent struct {
	ConversationID uint64 `json:"conversation_id"`
	UserID         uint64 `json:"user_id"`
	Username       string `json:"username"`
	IsTyping       bool   `json:"is_typing"`
}

func NewMessageEnvelope(data *NewMessageEvent) *Envelope {
	return &Envelope{Type: consts.EventNewMessage, Data: data}
}

func TypingEnvelope(data *TypingEvent) *Envelope {
	return &Envelope{Type: consts.EventUserTyping, Data: data}
}
