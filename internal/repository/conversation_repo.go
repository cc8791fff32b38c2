package repository

import (
	"Lattice/internal/model"
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ConversationRepo interface {
	CreateConversation(ctx context.Context, conv *model.Conversation, members []*model.ConversationMember) error
	GetConversation(ctx context.Context, convID uint64) (*model.Conversation, error)
	GetConversationByPeerKey(ctx context.Context, peerKey string) (*model.Conversation, error)
	GetConversationBySource(ctx context.Context, sourceType, sourceID string) (*model.Conversation, error)

	AddMembers(ctx context.Context, convID uint64, userIDs []uint64) error
	IsMember(ctx context.Context, convID uint64, userID uint64) (bool, error)
	GetMemberIDs(ctx context.Context, convID uint64) ([]uint64, error)

	AllocateSeq(ctx context.Context, convID, senderID uint64, preview, contentType string) (uint64, error)
	AdvanceReadSeq(ctx context.Context, convID, userID, seq uint64, msgID string) (bool, error)

	GetUserConversationMemList(ctx context.Context, userID uint64) ([]*model.ConversationMember, error)

	ListConversationIDs(ctx context.Context) ([]uint64, error)
	ResyncWithLedger(ctx context.Context, convID, seq uint64, content, contentType string, senderID uint64, at time.Time) error
}

type conversationRepoImpl struct {
	db *gorm.DB
}

func NewConversationRepo(db *gorm.DB) ConversationRepo {
	return &conversationRepoImpl{db: db}
}

// CreateConversation 开启事务创建会话及初始成员
// 去重键（peer_key / source）上的唯一冲突原样透传 gorm.ErrDuplicatedKey，
// 由上层重新按键查询竞争胜出的那一行。
func (s *conversationRepoImpl) CreateConversation(ctx context.Context, conv *model.Conversation, members []*model.ConversationMember) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conv).Error; err != nil {
			return err
		}
		for _, m := range members {
			m.ConversationID = conv.ID
			m.JoinedAt = time.Now()
			if err := tx.Create(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetConversation 根据会话 ID 获取会话
func (s *conversationRepoImpl) GetConversation(ctx context.Context, convID uint64) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.db.WithContext(ctx).First(&conv, convID).Error
	return &conv, err
}

// GetConversationByPeerKey 根据单聊去重键获取会话
func (s *conversationRepoImpl) GetConversationByPeerKey(ctx context.Context, peerKey string) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.db.WithContext(ctx).Where("peer_key = ?", peerKey).First(&conv).Error
	return &conv, err
}

// GetConversationBySource 根据来源去重键获取会话
func (s *conversationRepoImpl) GetConversationBySource(ctx context.Context, sourceType, sourceID string) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.db.WithContext(ctx).
		Where("source_type = ? AND source_id = ?", sourceType, sourceID).
		First(&conv).Error
	return &conv, err
}

// AddMembers 幂等补充成员，已在会话中的用户直接跳过
func (s *conversationRepoImpl) AddMembers(ctx context.Context, convID uint64, userIDs []uint64) error {
	if len(userIDs) == 0 {
		return nil
	}
	members := make([]*model.ConversationMember, 0, len(userIDs))
	for _, uid := range userIDs {
		members = append(members, &model.ConversationMember{
			ConversationID: convID,
			UserID:         uid,
			JoinedAt:       time.Now(),
		})
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(members).Error
}

// IsMember 检查用户是否是会话成员
func (s *conversationRepoImpl) IsMember(ctx context.Context, convID uint64, userID uint64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", convID, userID).
		Count(&count).Error
	return count > 0, err
}

// GetMemberIDs 获取会话全部成员 ID
func (s *conversationRepoImpl) GetMemberIDs(ctx context.Context, convID uint64) ([]uint64, error) {
	var ids []uint64
	err := s.db.WithContext(ctx).Model(&model.ConversationMember{}).
		Where("conversation_id = ?", convID).
		Order("user_id").
		Pluck("user_id", &ids).Error
	return ids, err
}

// AllocateSeq 核心定序逻辑：利用行锁确保 Seq 绝对递增
// 同一个事务里顺带更新会话预览，并把发送者自己的已读进度推到新 Seq，
// 发送者永远不会把自己的消息算进未读。
func (s *conversationRepoImpl) AllocateSeq(ctx context.Context, convID, senderID uint64, preview, contentType string) (uint64, error) {
	var maxSeq uint64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Conversation{}).Where("id = ?", convID).
			Updates(map[string]interface{}{
				"max_msg_seq":      gorm.Expr("max_msg_seq + 1"),
				"last_msg_content": preview,
				"last_msg_type":    contentType,
				"last_sender_id":   senderID,
				"last_message_at":  time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		if err := tx.Model(&model.Conversation{}).Select("max_msg_seq").
			Where("id = ?", convID).Scan(&maxSeq).Error; err != nil {
			return err
		}

		return tx.Model(&model.ConversationMember{}).
			Where("conversation_id = ? AND user_id = ? AND read_msg_seq < ?", convID, senderID, maxSeq).
			Update("read_msg_seq", maxSeq).Error
	})
	return maxSeq, err
}

// AdvanceReadSeq 推进已读进度（已读回执）
// 单调保护：read_msg_seq 只进不退，重复或乱序到达的 markRead 不产生效果，
// 与并发 send 也不会把未读数错置回 0 —— send 提交后 max_msg_seq 已越过这里写入的值。
func (s *conversationRepoImpl) AdvanceReadSeq(ctx context.Context, convID, userID, seq uint64, msgID string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ? AND read_msg_seq < ?", convID, userID, seq).
		Updates(map[string]interface{}{
			"read_msg_seq":     seq,
			"last_read_msg_id": msgID,
		})
	return res.RowsAffected > 0, res.Error
}

// GetUserConversationMemList 收件箱联表查询，未读数在 SQL 里现算
func (s *conversationRepoImpl) GetUserConversationMemList(ctx context.Context, userID uint64) ([]*model.ConversationMember, error) {
	var members []*model.ConversationMember
	// 使用 Conversation__ 别名配合 GORM 的嵌套填充特性
	err := s.db.WithContext(ctx).Table("conversation_members m").
		Select("m.*, "+
			"c.id AS `Conversation__id`, c.type AS `Conversation__type`, "+
			"c.title AS `Conversation__title`, "+
			"c.peer_key AS `Conversation__peer_key`, "+
			"c.source_type AS `Conversation__source_type`, "+
			"c.source_id AS `Conversation__source_id`, "+
			"c.max_msg_seq AS `Conversation__max_msg_seq`, "+
			"c.last_msg_content AS `Conversation__last_msg_content`, "+
			"c.last_msg_type AS `Conversation__last_msg_type`, "+
			"c.last_sender_id AS `Conversation__last_sender_id`, "+
			"c.last_message_at AS `Conversation__last_message_at`, "+
			"(c.max_msg_seq - m.read_msg_seq) AS unread_count").
		Joins("JOIN conversations c ON m.conversation_id = c.id").
		Where("m.user_id = ?", userID).
		Order("c.last_message_at DESC").
		Find(&members).Error
	return members, err
}

// ListConversationIDs 校准任务用，全量会话 ID
func (s *conversationRepoImpl) ListConversationIDs(ctx context.Context) ([]uint64, error) {
	var ids []uint64
	err := s.db.WithContext(ctx).Model(&model.Conversation{}).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

// ResyncWithLedger 把会话的定序水位与预览整体回写成账本的真实状态
// 落账失败会让 max_msg_seq 计入一条不存在的消息，未读数是
// max_msg_seq - read_msg_seq 的派生值，这种幻影未读 markRead 永远清不掉。
// 水位收敛到账本最新 seq，越过水位的成员已读进度一并压回。
func (s *conversationRepoImpl) ResyncWithLedger(ctx context.Context, convID, seq uint64, content, contentType string, senderID uint64, at time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Conversation{}).Where("id = ?", convID).
			Updates(map[string]interface{}{
				"max_msg_seq":      seq,
				"last_msg_content": content,
				"last_msg_type":    contentType,
				"last_sender_id":   senderID,
				"last_message_at":  at,
			}).Error; err != nil {
			return err
		}
		return tx.Model(&model.ConversationMember{}).
			Where("conversation_id = ? AND read_msg_seq > ?", convID, seq).
			Update("read_msg_seq", seq).Error
	})
}
