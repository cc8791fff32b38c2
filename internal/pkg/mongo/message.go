package mongo

import (
	"time"
)

// Message 消息明细模型
// 只增不改：消息一经写入不再变更或删除，会话内的全序由 Seq 决定
// （Seq 在 MySQL 里按提交顺序分配，天然充当 created_at 的决胜位）。
type Message struct {
	ID             string    `bson:"_id" json:"id"`
	ConversationID uint64    `bson:"conversation_id" json:"conversationId"`
	SenderID       uint64    `bson:"sender_id" json:"senderId"`
	ContentType    string    `bson:"content_type" json:"contentType"` // text / image
	Content        string    `bson:"content" json:"content"`
	Seq            uint64    `bson:"seq" json:"seq"`
	CreatedAt      time.Time `bson:"created_at" json:"createdAt"`
}
