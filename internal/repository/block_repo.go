package repository

import (
	"Lattice/internal/model"
	"context"

	"gorm.io/gorm"
)

type BlockRepo interface {
	Create(ctx context.Context, block *model.UserBlock) error
	Delete(ctx context.Context, blockerID, blockedID uint64) (bool, error)
	ExistsBetween(ctx context.Context, userA, userB uint64) (bool, error)
	HasBlockAmongMembers(ctx context.Context, convID, senderID uint64) (bool, error)
	ListByBlocker(ctx context.Context, blockerID uint64) ([]*model.UserBlock, error)
}

type blockRepoImpl struct {
	db *gorm.DB
}

func NewBlockRepo(db *gorm.DB) BlockRepo {
	return &blockRepoImpl{db: db}
}

// Create 创建拉黑关系，重复拉黑透传 gorm.ErrDuplicatedKey
func (s *blockRepoImpl) Create(ctx context.Context, block *model.UserBlock) error {
	return s.db.WithContext(ctx).Create(block).Error
}

// Delete 解除拉黑，返回是否真的删掉了记录
func (s *blockRepoImpl) Delete(ctx context.Context, blockerID, blockedID uint64) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Delete(&model.UserBlock{})
	return res.RowsAffected > 0, res.Error
}

// ExistsBetween 双向检查两个用户间是否存在拉黑关系（任一方向都算）
func (s *blockRepoImpl) ExistsBetween(ctx context.Context, userA, userB uint64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.UserBlock{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)",
			userA, userB, userB, userA).
		Count(&count).Error
	return count > 0, err
}

// HasBlockAmongMembers 发送否决检查：发送者与会话内任一其他成员之间
// 只要任一方向存在拉黑关系，投递即被整体否决。
// 一条联表 COUNT 搞定，避免逐成员查询。
func (s *blockRepoImpl) HasBlockAmongMembers(ctx context.Context, convID, senderID uint64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM user_blocks b
		 JOIN conversation_members m
		   ON m.conversation_id = ? AND m.user_id <> ?
		 WHERE (b.blocker_id = ? AND b.blocked_id = m.user_id)
		    OR (b.blocker_id = m.user_id AND b.blocked_id = ?)`,
		convID, senderID, senderID, senderID,
	).Scan(&count).Error
	return count > 0, err
}

// ListByBlocker 查询某用户发起的全部拉黑记录
func (s *blockRepoImpl) ListByBlocker(ctx context.Context, blockerID uint64) ([]*model.UserBlock, error) {
	var blocks []*model.UserBlock
	err := s.db.WithContext(ctx).
		Where("blocker_id = ?", blockerID).
		Order("created_at DESC").
		Find(&blocks).Error
	return blocks, err
}
