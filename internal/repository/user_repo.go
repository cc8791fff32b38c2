package repository

import (
	"Lattice/internal/model"
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserRepo interface {
	GetUserById(ctx context.Context, userID uint64) (*model.User, error)
	GetUserByIds(ctx context.Context, userIDs []uint64) (map[uint64]*model.User, error)
	UpsertUser(ctx context.Context, user *model.User) error
	MarkUserDeleted(ctx context.Context, userID uint64) error
}

type userRepoImpl struct {
	db *gorm.DB
}

func NewUserRepo(db *gorm.DB) UserRepo {
	return &userRepoImpl{db: db}
}

// GetUserById 根据用户 ID 获取镜像信息，不存在返回 nil
func (s *userRepoImpl) GetUserById(ctx context.Context, userID uint64) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).First(&user, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// GetUserByIds 批量获取用户镜像，按 ID 建映射方便上层回填
func (s *userRepoImpl) GetUserByIds(ctx context.Context, userIDs []uint64) (map[uint64]*model.User, error) {
	result := make(map[uint64]*model.User, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}

	var users []*model.User
	if err := s.db.WithContext(ctx).Where("id IN ?", userIDs).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		result[u.ID] = u
	}
	return result, nil
}

// UpsertUser 用户镜像同步：存在则更新，不存在则插入
// 由 Kafka 消费侧调用，保证消费幂等。
func (s *userRepoImpl) UpsertUser(ctx context.Context, user *model.User) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"username", "avatar_url", "is_deleted"}),
		}).
		Create(user).Error
}

// MarkUserDeleted 软删标记，镜像行保留，历史消息的发送者信息不受影响
func (s *userRepoImpl) MarkUserDeleted(ctx context.Context, userID uint64) error {
	return s.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Update("is_deleted", true).Error
}
