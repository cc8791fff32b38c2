package kafka

import (
	"Lattice/internal/model"
	"Lattice/internal/repository"
	"context"
	"errors"
	log "log/slog"

	"github.com/IBM/sarama"
)

// UserHandler 消费身份服务 users 表的 Canal 变更流，维护本地用户镜像
// 镜像只服务展示（发送者用户名、收件箱标题、typing 用户名），不是身份事实源。
type UserHandler struct {
	userRepo repository.UserRepo
}

func NewUserHandler(userRepo repository.UserRepo) *UserHandler {
	return &UserHandler{
		userRepo: userRepo,
	}
}

func (s *UserHandler) Setup(sarama.ConsumerGroupSession) error {
	log.Info("user consumer setup")
	return nil
}

func (s *UserHandler) Cleanup(sarama.ConsumerGroupSession) error {
	log.Info("user consumer cleanup")
	return nil
}

func (s *UserHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	log.Info("topic-user consume claim")
	err := pullMessageBatch(session, claim, s.logic)
	if err != nil {
		log.Error("process batch error", "err", err)
		return err
	}
	log.Info("topic-user consume claim end")
	return nil
}

func (s *UserHandler) logic(ctx context.Context, msg *sarama.ConsumerMessage) error {
	canalMsg, err := ToCanalMessage(msg, "users")
	if err != nil {
		return err
	}
	if len(canalMsg.Data) == 0 {
		return errors.New("canal message data is empty")
	}

	for _, row := range canalMsg.Data {
		userID := StrToUint64(row["id"])
		if userID == 0 {
			continue
		}

		if canalMsg.Type == "DELETE" || row["is_deleted"] == "1" {
			if err := s.userRepo.MarkUserDeleted(ctx, userID); err != nil {
				return err
			}
			continue
		}

		username, _ := row["username"].(string)
		avatarURL, _ := row["avatar_url"].(string)
		user := &model.User{
			ID:        userID,
			Username:  username,
			AvatarURL: avatarURL,
		}
		if err := s.userRepo.UpsertUser(ctx, user); err != nil {
			return err
		}
	}
	return nil
}
