package service

import (
	"Lattice/internal/api/dto"
	"Lattice/internal/model"
	"Lattice/internal/pkg/consts"
	"Lattice/internal/pkg/mongo"
	"Lattice/internal/pkg/ws"
	"Lattice/internal/repository"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"gorm.io/gorm"
)

// EventDispatcher 下行事件分发面，由 ws.Dispatcher 实现
// 按依赖注入而不是全局单例持有，测试时可以换成假传输。
type EventDispatcher interface {
	DispatchNewMessage(ctx context.Context, convID uint64, event *ws.NewMessageEvent)
	DispatchTyping(ctx context.Context, convID uint64, event *ws.TypingEvent)
}

// ChatService 会话与消息服务接口定义
type ChatService interface {
	GetOrCreateConversation(ctx context.Context, creatorID uint64, req *dto.GetOrCreateConversationReq) (*dto.ConversationResp, error)
	AddMembers(ctx context.Context, userID uint64, req *dto.AddMembersReq) error
	SendMessage(ctx context.Context, senderID uint64, req *dto.SendMessageReq) (*dto.MessageDTO, error)
	ListMessages(ctx context.Context, userID uint64, req *dto.ListMessagesReq) ([]*dto.MessageDTO, error)
	MarkRead(ctx context.Context, userID uint64, req *dto.MarkReadReq) error
	ListInbox(ctx context.Context, userID uint64) ([]*dto.InboxRowDTO, error)
	NotifyTyping(ctx context.Context, userID uint64, convID uint64, isTyping bool)
}

type chatServiceImpl struct {
	convRepo   repository.ConversationRepo
	blockRepo  repository.BlockRepo
	userRepo   repository.UserRepo
	msgRepo    mongo.MessageRepo
	dispatcher EventDispatcher
}

func NewChatService(
	convRepo repository.ConversationRepo,
	blockRepo repository.BlockRepo,
	userRepo repository.UserRepo,
	msgRepo mongo.MessageRepo,
	dispatcher EventDispatcher,
) ChatService {
	return &chatServiceImpl{
		convRepo:   convRepo,
		blockRepo:  blockRepo,
		userRepo:   userRepo,
		msgRepo:    msgRepo,
		dispatcher: dispatcher,
	}
}

// GetOrCreateConversation 获取或创建会话
// 去重口径：单聊按无序用户对，带来源的群聊按 (source_type, source_id)，
// 无来源的群聊每次都新建。并发竞争靠唯一索引裁决，输掉的一方
// 捕获唯一冲突后重查胜出行，对调用方永远不是错误。
func (s *chatServiceImpl) GetOrCreateConversation(ctx context.Context, creatorID uint64, req *dto.GetOrCreateConversationReq) (*dto.ConversationResp, error) {
	convType, err := parseConvType(req.Type)
	if err != nil {
		return nil, err
	}
	if err := validateParticipants(req.UserIDs, creatorID); err != nil {
		return nil, err
	}

	switch {
	case convType == consts.ConvTypeIndividual:
		if len(req.UserIDs) != 2 {
			return nil, ErrParamInvalid
		}
		return s.getOrCreateIndividual(ctx, creatorID, req.UserIDs)
	case (req.SourceType == "") != (req.SourceID == ""):
		// 来源键必须成对给出，半拉的键既去不了重也不该静默新建
		return nil, ErrParamInvalid
	case req.SourceType != "":
		return s.getOrCreateSourcedGroup(ctx, creatorID, req)
	default:
		// 无来源群聊没有去重键，直接创建
		conv, err := s.createConversation(ctx, creatorID, consts.ConvTypeGroup, req.Title, nil, "", "", req.UserIDs)
		if err != nil {
			return nil, err
		}
		return &dto.ConversationResp{ConversationID: conv.ID, Type: req.Type, Created: true}, nil
	}
}

func (s *chatServiceImpl) getOrCreateIndividual(ctx context.Context, creatorID uint64, userIDs []uint64) (*dto.ConversationResp, error) {
	peerKey := buildPeerKey(userIDs[0], userIDs[1])

	conv, err := s.convRepo.GetConversationByPeerKey(ctx, peerKey)
	if err == nil {
		return &dto.ConversationResp{ConversationID: conv.ID, Type: consts.ConvTypeNameIndividual}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	conv, err = s.createConversation(ctx, creatorID, consts.ConvTypeIndividual, "", &peerKey, "", "", userIDs)
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// 竞争输了，重查胜出的那一行
			winner, rerr := s.convRepo.GetConversationByPeerKey(ctx, peerKey)
			if rerr != nil {
				return nil, rerr
			}
			return &dto.ConversationResp{ConversationID: winner.ID, Type: consts.ConvTypeNameIndividual}, nil
		}
		return nil, err
	}
	return &dto.ConversationResp{ConversationID: conv.ID, Type: consts.ConvTypeNameIndividual, Created: true}, nil
}

func (s *chatServiceImpl) getOrCreateSourcedGroup(ctx context.Context, creatorID uint64, req *dto.GetOrCreateConversationReq) (*dto.ConversationResp, error) {
	conv, err := s.convRepo.GetConversationBySource(ctx, req.SourceType, req.SourceID)
	if err == nil {
		// 幂等补员：不在会话里的参与者加进来
		if err := s.convRepo.AddMembers(ctx, conv.ID, req.UserIDs); err != nil {
			return nil, err
		}
		return &dto.ConversationResp{ConversationID: conv.ID, Type: consts.ConvTypeNameGroup}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	conv, err = s.createConversation(ctx, creatorID, consts.ConvTypeGroup, req.Title, nil, req.SourceType, req.SourceID, req.UserIDs)
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			winner, rerr := s.convRepo.GetConversationBySource(ctx, req.SourceType, req.SourceID)
			if rerr != nil {
				return nil, rerr
			}
			if aerr := s.convRepo.AddMembers(ctx, winner.ID, req.UserIDs); aerr != nil {
				return nil, aerr
			}
			return &dto.ConversationResp{ConversationID: winner.ID, Type: consts.ConvTypeNameGroup}, nil
		}
		return nil, err
	}
	return &dto.ConversationResp{ConversationID: conv.ID, Type: consts.ConvTypeNameGroup, Created: true}, nil
}

func (s *chatServiceImpl) createConversation(ctx context.Context, creatorID uint64, convType int8, title string, peerKey *string, sourceType, sourceID string, userIDs []uint64) (*model.Conversation, error) {
	conv := &model.Conversation{
		Type:          convType,
		CreatedBy:     creatorID,
		PeerKey:       peerKey,
		LastMessageAt: time.Now(),
	}
	if title != "" {
		conv.Title = &title
	}
	if sourceType != "" {
		conv.SourceType = &sourceType
		conv.SourceID = &sourceID
	}

	members := make([]*model.ConversationMember, 0, len(userIDs))
	for _, uid := range userIDs {
		members = append(members, &model.ConversationMember{UserID: uid})
	}

	if err := s.convRepo.CreateConversation(ctx, conv, members); err != nil {
		return nil, err
	}
	return conv, nil
}

// AddMembers 幂等补充群成员，调用者必须已在会话中
func (s *chatServiceImpl) AddMembers(ctx context.Context, userID uint64, req *dto.AddMembersReq) error {
	isMember, err := s.convRepo.IsMember(ctx, req.ConversationID, userID)
	if err != nil {
		return err
	}
	if !isMember {
		return ErrNotConversationMember
	}
	return s.convRepo.AddMembers(ctx, req.ConversationID, req.UserIDs)
}

// SendMessage 发送消息
// 同步段：成员校验 → 拉黑否决 → MySQL 原子定序（含预览与发送者已读推进）→ Mongo 落账。
// 任何一步失败整个调用失败，落账失败对调用方呈现为存储暂不可用。
// 异步段：向在线成员分发 new_message，尽力而为，不影响已落账的结果。
func (s *chatServiceImpl) SendMessage(ctx context.Context, senderID uint64, req *dto.SendMessageReq) (*dto.MessageDTO, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, ErrParamInvalid
	}
	if req.ContentType != consts.ContentTypeText && req.ContentType != consts.ContentTypeImage {
		return nil, ErrParamInvalid
	}

	isMember, err := s.convRepo.IsMember(ctx, req.ConversationID, senderID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, ErrNotConversationMember
	}

	// 对称否决：发送者与任一其他成员之间任一方向存在拉黑即拦截
	blocked, err := s.blockRepo.HasBlockAmongMembers(ctx, req.ConversationID, senderID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, ErrMessageBlocked
	}

	seq, err := s.convRepo.AllocateSeq(ctx, req.ConversationID, senderID, req.Content, req.ContentType)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}

	msg := &mongo.Message{
		ID:             uuid.NewString(),
		ConversationID: req.ConversationID,
		SenderID:       senderID,
		ContentType:    req.ContentType,
		Content:        req.Content,
		Seq:            seq,
		CreatedAt:      time.Now(),
	}

	writeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.msgRepo.SaveMessage(writeCtx, msg); err != nil {
		// Seq 已消耗但消息未落账，预览校准任务会回收这段漂移
		log.Error("消息落账失败", "convID", req.ConversationID, "seq", seq, "err", err)
		return nil, ErrStorageUnavailable
	}

	senderName := s.lookupUsername(ctx, senderID)
	go s.dispatcher.DispatchNewMessage(context.Background(), req.ConversationID, &ws.NewMessageEvent{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       senderID,
		SenderName:     senderName,
		Content:        msg.Content,
		ContentType:    msg.ContentType,
		CreatedAt:      msg.CreatedAt,
	})

	return s.toMessageDTO(msg, senderName), nil
}

// ListMessages 按 seq 升序分页拉取历史
// offset 分页在并发写入下不保证稳定，活跃会话客户端应重拉尾部而不是信任固定偏移。
func (s *chatServiceImpl) ListMessages(ctx context.Context, userID uint64, req *dto.ListMessagesReq) ([]*dto.MessageDTO, error) {
	isMember, err := s.convRepo.IsMember(ctx, req.ConversationID, userID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, ErrNotConversationMember
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}

	msgs, err := s.msgRepo.ListMessages(ctx, req.ConversationID, limit, offset)
	if err != nil {
		return nil, err
	}

	senderIDs := make([]uint64, 0, len(msgs))
	for _, m := range msgs {
		senderIDs = append(senderIDs, m.SenderID)
	}
	// 发送者名是展示性字段，查失败降级为空，不影响消息本体
	users, err := s.userRepo.GetUserByIds(ctx, senderIDs)
	if err != nil {
		log.Error("批量查询发送者失败", "convID", req.ConversationID, "err", err)
	}

	res := make([]*dto.MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		name := ""
		if u, ok := users[m.SenderID]; ok {
			name = u.Username
		}
		res = append(res, s.toMessageDTO(m, name))
	}
	return res, nil
}

// MarkRead 标记已读
// 把消息 ID 解析成账本里的 seq 再做单调推进，重复或回退的请求不产生效果，
// 未读数是 max_msg_seq - read_msg_seq 的派生值，这里不维护任何计数器。
func (s *chatServiceImpl) MarkRead(ctx context.Context, userID uint64, req *dto.MarkReadReq) error {
	isMember, err := s.convRepo.IsMember(ctx, req.ConversationID, userID)
	if err != nil {
		return err
	}
	if !isMember {
		return ErrNotConversationMember
	}

	msg, err := s.msgRepo.GetMessage(ctx, req.ConversationID, req.LastMessageID)
	if err != nil {
		if errors.Is(err, mongo.ErrMessageNotFound) {
			return ErrMessageNotFound
		}
		return err
	}

	_, err = s.convRepo.AdvanceReadSeq(ctx, req.ConversationID, userID, msg.Seq, msg.ID)
	return err
}

// ListInbox 收件箱：每个会话一行，按最近消息时间倒序
// 未读数在联表 SQL 里按 max_msg_seq - read_msg_seq 现算，
// 单聊标题回填为对手方用户名。
func (s *chatServiceImpl) ListInbox(ctx context.Context, userID uint64) ([]*dto.InboxRowDTO, error) {
	members, err := s.convRepo.GetUserConversationMemList(ctx, userID)
	if err != nil {
		return nil, err
	}

	// 先收齐单聊对手方 ID，一次性批量查用户名
	peerIDs := make([]uint64, 0, len(members))
	for _, m := range members {
		if m.Conversation.Type == consts.ConvTypeIndividual && m.Conversation.PeerKey != nil {
			if peerID, err := parsePeerID(*m.Conversation.PeerKey, userID); err == nil {
				peerIDs = append(peerIDs, peerID)
			}
		}
	}
	users, err := s.userRepo.GetUserByIds(ctx, peerIDs)
	if err != nil {
		return nil, err
	}

	res := make([]*dto.InboxRowDTO, 0, len(members))
	for _, m := range members {
		row := &dto.InboxRowDTO{}
		_ = copier.Copy(row, &m.Conversation)
		row.ConversationID = m.ConversationID
		row.Type = convTypeName(m.Conversation.Type)
		row.UnreadCount = m.UnreadCount

		if m.Conversation.Type == consts.ConvTypeIndividual && m.Conversation.PeerKey != nil {
			if peerID, err := parsePeerID(*m.Conversation.PeerKey, userID); err == nil {
				row.PeerID = peerID
				if u, ok := users[peerID]; ok {
					row.Title = u.Username
				}
			}
		} else if m.Conversation.Title != nil {
			row.Title = *m.Conversation.Title
		}
		res = append(res, row)
	}
	return res, nil
}

// NotifyTyping 转发输入中信号，易失事件，非成员直接丢弃不报错
func (s *chatServiceImpl) NotifyTyping(ctx context.Context, userID uint64, convID uint64, isTyping bool) {
	isMember, err := s.convRepo.IsMember(ctx, convID, userID)
	if err != nil || !isMember {
		return
	}
	s.dispatcher.DispatchTyping(ctx, convID, &ws.TypingEvent{
		ConversationID: convID,
		UserID:         userID,
		Username:       s.lookupUsername(ctx, userID),
		IsTyping:       isTyping,
	})
}

func (s *chatServiceImpl) lookupUsername(ctx context.Context, userID uint64) string {
	u, err := s.userRepo.GetUserById(ctx, userID)
	if err != nil || u == nil {
		return ""
	}
	return u.Username
}

func (s *chatServiceImpl) toMessageDTO(m *mongo.Message, senderName string) *dto.MessageDTO {
	return &dto.MessageDTO{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		SenderName:     senderName,
		Content:        m.Content,
		ContentType:    m.ContentType,
		Seq:            m.Seq,
		CreatedAt:      m.CreatedAt,
	}
}

func validateParticipants(userIDs []uint64, creatorID uint64) error {
	seen := make(map[uint64]struct{}, len(userIDs))
	creatorIn := false
	for _, uid := range userIDs {
		if uid == 0 {
			return ErrParamInvalid
		}
		if _, dup := seen[uid]; dup {
			return ErrParamInvalid
		}
		seen[uid] = struct{}{}
		if uid == creatorID {
			creatorIn = true
		}
	}
	if len(seen) < 2 || !creatorIn {
		return ErrParamInvalid
	}
	return nil
}

func parseConvType(name string) (int8, error) {
	switch name {
	case consts.ConvTypeNameIndividual:
		return consts.ConvTypeIndividual, nil
	case consts.ConvTypeNameGroup:
		return consts.ConvTypeGroup, nil
	default:
		return 0, ErrParamInvalid
	}
}

func convTypeName(t int8) string {
	if t == consts.ConvTypeIndividual {
		return consts.ConvTypeNameIndividual
	}
	return consts.ConvTypeNameGroup
}

// buildPeerKey 单聊去重键：小 ID 在前保证无序对的唯一表示
func buildPeerKey(a, b uint64) string {
	if a < b {
		return fmt.Sprintf("%d_%d", a, b)
	}
	return fmt.Sprintf("%d_%d", b, a)
}

func parsePeerID(peerKey string, currentUserID uint64) (uint64, error) {
	var u1, u2 uint64
	if _, err := fmt.Sscanf(peerKey, "%d_%d", &u1, &u2); err != nil {
		return 0, err
	}
	if u1 == currentUserID {
		return u2, nil
	}
	return u1, nil
}
