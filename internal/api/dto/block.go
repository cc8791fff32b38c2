package dto

import "time"

// CreateBlockReq 拉黑请求体
type CreateBlockReq struct {
	BlockedID uint64  `json:"blocked_id" binding:"required"`
	Comment   *string `json:"comment"`
}

// BlockDTO 拉黑记录响应
type BlockDTO struct {
	ID        uint64    `json:"id"`
	BlockerID uint64    `json:"blocker_id"`
	BlockedID uint64    `json:"blocked_id"`
	Comment   *string   `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
