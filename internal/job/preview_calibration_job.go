package job

import (
	"Lattice/internal/pkg/consts"
	"Lattice/internal/pkg/mongo"
	"Lattice/internal/repository"
	"context"
	"errors"
	log "log/slog"
	"time"
)

// PreviewCalibrationJob 会话预览校准任务
// sendMessage 在 MySQL 定序提交之后、Mongo 落账失败会留下漂移：
// 预览指向一条账本里不存在的消息，max_msg_seq 也多计了一条，
// 接收方会挂着一条永远读不掉的幻影未读。这里每天按账本里
// 真实的最新一条回写各会话的水位与 last_* 预览，把漂移收敛掉。
type PreviewCalibrationJob struct {
	convRepo repository.ConversationRepo
	msgRepo  mongo.MessageRepo
}

func NewPreviewCalibrationJob(convRepo repository.ConversationRepo, msgRepo mongo.MessageRepo) *PreviewCalibrationJob {
	return &PreviewCalibrationJob{
		convRepo: convRepo,
		msgRepo:  msgRepo,
	}
}

func (s *PreviewCalibrationJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	log.Info("start preview calibration job")

	convIDs, err := s.convRepo.ListConversationIDs(ctx)
	if err != nil {
		log.Error("failed to list conversations", "err", err)
		return
	}

	fixed := 0
	for _, convID := range convIDs {
		if err := s.calibrate(ctx, convID); err != nil {
			log.Error("calibrate conversation failed", "convID", convID, "err", err)
			continue
		}
		fixed++
	}

	log.Info("preview calibration job finished", "total", len(convIDs), "processed", fixed)
}

func (s *PreviewCalibrationJob) calibrate(ctx context.Context, convID uint64) error {
	conv, err := s.convRepo.GetConversation(ctx, convID)
	if err != nil {
		return err
	}

	latest, err := s.msgRepo.LatestMessage(ctx, convID)
	if err != nil {
		if errors.Is(err, mongo.ErrMessageNotFound) {
			if conv.MaxMsgSeq == 0 {
				// 还没有任何消息的会话没有可校准的状态
				return nil
			}
			// 消耗过 seq 但一条都没落账：水位清零，预览清空
			return s.convRepo.ResyncWithLedger(ctx, convID, 0, "", consts.ContentTypeText, 0, conv.CreatedAt)
		}
		return err
	}

	// 水位与预览都和账本一致就不动
	if conv.MaxMsgSeq == latest.Seq &&
		conv.LastSenderID == latest.SenderID &&
		conv.LastMsgContent == latest.Content &&
		conv.LastMsgType == latest.ContentType {
		return nil
	}

	return s.convRepo.ResyncWithLedger(ctx, convID, latest.Seq, latest.Content, latest.ContentType, latest.SenderID, latest.CreatedAt)
}
