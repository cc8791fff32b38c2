package model

import "time"

// Conversation 会话主表
type Conversation struct {
	ID        uint64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Type      int8    `gorm:"not null;default:1" json:"type"` // 1-单聊, 2-群聊
	Title     *string `gorm:"type:varchar(100)" json:"title"`
	CreatedBy uint64  `gorm:"not null;default:0" json:"createdBy"`

	// 去重键：单聊用 uid1_uid2（小号在前），带来源的群聊用 (source_type, source_id)
	PeerKey    *string `gorm:"uniqueIndex;type:varchar(64)" json:"peerKey"`
	SourceType *string `gorm:"uniqueIndex:idx_conv_source;type:varchar(32)" json:"sourceType"`
	SourceID   *string `gorm:"uniqueIndex:idx_conv_source;type:varchar(64)" json:"sourceId"`

	// 定序与会话预览
	MaxMsgSeq      uint64    `gorm:"not null;default:0" json:"maxMsgSeq"`
	LastMsgContent string    `gorm:"type:varchar(255)" json:"lastMsgContent"`
	LastMsgType    string    `gorm:"type:varchar(16);not null;default:'text'" json:"lastMsgType"`
	LastSenderID   uint64    `gorm:"not null;default:0" json:"lastSenderId"`
	LastMessageAt  time.Time `gorm:"index" json:"lastMessageAt"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Conversation) TableName() string { return "conversations" }

// ConversationMember 会话成员表
type ConversationMember struct {
	ID             uint64  `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID uint64  `gorm:"uniqueIndex:idx_conv_user" json:"conversationId"`
	UserID         uint64  `gorm:"uniqueIndex:idx_conv_user;index" json:"userId"`
	ReadMsgSeq     uint64  `gorm:"not null;default:0" json:"readMsgSeq"` // 已读进度
	LastReadMsgID  *string `gorm:"type:varchar(32)" json:"lastReadMsgId"`

	JoinedAt time.Time `json:"joinedAt"`

	Conversation Conversation `gorm:"foreignKey:ConversationID;references:ID" json:"conversation"`

	// 虚拟字段：仅读不写，存储 SQL 计算结果 (max_msg_seq - read_msg_seq)
	UnreadCount uint64 `gorm:"->" json:"unreadCount"`
}

func (ConversationMember) TableName() string { return "conversation_members" }
