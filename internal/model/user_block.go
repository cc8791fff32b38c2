package model

import "time"

// UserBlock 拉黑关系（单向边：blocker 拉黑 blocked）
// 发送消息时按双向语义校验，任一方向存在即拦截；
// 单向建模保留“谁拉黑了谁”，只有拉黑方可以解除。
type UserBlock struct {
	ID        uint64  `gorm:"primaryKey;autoIncrement" json:"id"`
	BlockerID uint64  `gorm:"uniqueIndex:idx_block_pair;index" json:"blockerId"`
	BlockedID uint64  `gorm:"uniqueIndex:idx_block_pair" json:"blockedId"`
	Comment   *string `gorm:"type:varchar(255)" json:"comment"`
	CreatedAt time.Time `json:"createdAt"`
}

func (UserBlock) TableName() string { return "user_blocks" }
