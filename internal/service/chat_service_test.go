package service

import (
	"Lattice/internal/api/dto"
	"Lattice/internal/job"
	"Lattice/internal/model"
	"Lattice/internal/pkg/mongo"
	"Lattice/internal/pkg/ws"
	"Lattice/internal/repository"
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fakeLedger 内存版消息账本，替代 MongoDB
type fakeLedger struct {
	mu       sync.Mutex
	msgs     []*mongo.Message
	failSave bool
}

func (f *fakeLedger) SaveMessage(_ context.Context, msg *mongo.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSave {
		return errors.New("ledger down")
	}
	cp := *msg
	f.msgs = append(f.msgs, &cp)
	return nil
}

func (f *fakeLedger) ListMessages(_ context.Context, convID uint64, limit, offset int64) ([]*mongo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var matched []*mongo.Message
	for _, m := range f.msgs {
		if m.ConversationID == convID {
			matched = append(matched, m)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Seq < matched[j].Seq })

	if offset >= int64(len(matched)) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit < int64(len(matched)) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (f *fakeLedger) GetMessage(_ context.Context, convID uint64, msgID string) (*mongo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.msgs {
		if m.ID == msgID && m.ConversationID == convID {
			return m, nil
		}
	}
	return nil, mongo.ErrMessageNotFound
}

func (f *fakeLedger) LatestMessage(_ context.Context, convID uint64) (*mongo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *mongo.Message
	for _, m := range f.msgs {
		if m.ConversationID == convID && (latest == nil || m.Seq > latest.Seq) {
			latest = m
		}
	}
	if latest == nil {
		return nil, mongo.ErrMessageNotFound
	}
	return latest, nil
}

// fakeDispatcher 把事件投进通道，测试侧同步消费
type fakeDispatcher struct {
	newMsgCh chan *ws.NewMessageEvent
	typingCh chan *ws.TypingEvent
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{
		newMsgCh: make(chan *ws.NewMessageEvent, 16),
		typingCh: make(chan *ws.TypingEvent, 16),
	}
}

func (f *fakeDispatcher) DispatchNewMessage(_ context.Context, _ uint64, event *ws.NewMessageEvent) {
	f.newMsgCh <- event
}

func (f *fakeDispatcher) DispatchTyping(_ context.Context, _ uint64, event *ws.TypingEvent) {
	f.typingCh <- event
}

type chatTestEnv struct {
	db         *gorm.DB
	svc        ChatService
	blockSvc   BlockService
	ledger     *fakeLedger
	dispatcher *fakeDispatcher
}

func setupChatEnv(t *testing.T) *chatTestEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.Conversation{},
		&model.ConversationMember{},
		&model.UserBlock{},
		&model.User{},
	))

	// 用户镜像，给发送者名与收件箱标题用
	require.NoError(t, db.Create([]*model.User{
		{ID: 1, Username: "alice"},
		{ID: 2, Username: "bob"},
		{ID: 3, Username: "carol"},
	}).Error)

	convRepo := repository.NewConversationRepo(db)
	blockRepo := repository.NewBlockRepo(db)
	userRepo := repository.NewUserRepo(db)
	ledger := &fakeLedger{}
	dispatcher := newFakeDispatcher()

	return &chatTestEnv{
		db:         db,
		svc:        NewChatService(convRepo, blockRepo, userRepo, ledger, dispatcher),
		blockSvc:   NewBlockService(blockRepo),
		ledger:     ledger,
		dispatcher: dispatcher,
	}
}

func individualReq(a, b uint64) *dto.GetOrCreateConversationReq {
	return &dto.GetOrCreateConversationReq{UserIDs: []uint64{a, b}, Type: "individual"}
}

func TestGetOrCreateIndividualRepeated(t *testing.T) {
	env := setupChatEnv(t)
	ctx := context.Background()

	first, err := env.svc.GetOrCreateConversation(ctx, 1, individualReq(1, 2))
	require.NoError(t, err)
	require.True(t, first.Created)

	// 任一参与者重复调用都回到同一个会话
	second, err := env.svc.GetOrCreateConversation(ctx, 2, individualReq(2, 1))
	require.NoError(t, err)
	require.False(t, second.Created)
	require.Equal(t, first.ConversationID, second.ConversationID)

	var count int64
	require.NoError(t, env.db.Model(&model.Conversation{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestGetOrCreateIndividualConcurrent(t *testing.T) {
	env := setupChatEnv(t)
	ctx := context.Background()

	const n = 8
	ids := make([]uint64, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			resp, err := env.svc.GetOrCreateConversation(ctx, 1, individualReq(1, 2))
			if err != nil {
				errs[i] = err
				return
			}
			ids[i] = resp.ConversationID
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, ids[0], ids[i])
	}

	var count int64
	require.NoError(t, env.db.Model(&model.Conversation{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestGetOrCreateValidation(t *testing.T) {
	env := setupChatEnv(t)
	ctx := context.Background()

	cases := []*dto.GetOrCreateConversationReq{
		{UserIDs: []uint64{1, 1}, Type: "individual"},       // 重复参与者
		{UserIDs: []uint64{2, 3}, Type: "individual"},       // 发起者不在参与者里
		{UserIDs: []uint64{1, 2, 3}, Type: "individual"},    // 单聊必须恰好两人
		{UserIDs: []uint64{1, 2}, Type: "channel"},          // 非法类型
		{UserIDs: []uint64{1, 0}, Type: "individual"},       // 非法用户 ID

		// 来源键缺半边：既去不了重也不该静默新建
		{UserIDs: []uint64{1, 2}, Type: "group", SourceType: "listing"},
		{UserIDs: []uint64{1, 2}, Type: "group", SourceID: "42"},
	}
	for _, req := range cases {
		_, err := env.svc.GetOrCreateConversation(ctx, 1, req)
		require.ErrorIs(t, err, ErrParamInvalid)
	}
}

func TestGetOrCreateSourcedGroupIdempotent(t *testing.T) {
	env := setupChatEnv(t)
	ctx := context.Background()

	req := &dto.GetOrCreateConversationReq{
		UserIDs:    []uint64{1, 2},
		Type:       "group",
		Title:      "listing-42",
		SourceType: "listing",
		SourceID:   "42",
	}
	first, err := env.svc.GetOrCreateConversation(ctx, 1, req)
	require.NoError(t, err)
	require.True(t, first.Created)

	// 同一来源再次发起：复用会话并幂等补员
	again := &dto.GetOrCreateConversationReq{
		UserIDs:    []uint64{1, 3},
		Type:       "group",
		SourceType: "listing",
		SourceID:   "42",
	}
	second, err := env.svc.GetOrCreateConversation(ctx, 1, again)
	require.NoError(t, err)
	require.False(t, second.Created)
	require.Equal(t, first.ConversationID, second.ConversationID)

	ids, err := repository.NewConversationRepo(env.db).GetMemberIDs(ctx, first.ConversationID)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2, 3}, ids)
}

func TestGetOrCreateUnsourcedGroupAlwaysCreates(t *testing.T) {
	env := setupChatEnv(t)
	ctx := context.Background()

	req := &dto.GetOrCreateConversationReq{UserIDs: []uint64{1, 2, 3}, Type: "group", Title: "trip"}
	first, err := env.svc.GetOrCreateConversation(ctx, 1, req)
	require.NoError(t, err)
	second, err := env.svc.GetOrCreateConversation(ctx, 1, req)
	require.NoError(t, err)
	require.NotEqual(t, first.ConversationID, second.ConversationID)
}

func TestSendMessageAndUnread(t *testing.T) {
	env := setupChatEnv(t)
	ctx := context.Background()

	conv, err := env.svc.GetOrCreateConversation(ctx, 1, individualReq(1, 2))
	require.NoError(t, err)

	// A 发 k=3 条，B 的未读恰好是 3
	var lastMsgID string
	for i := 0; i < 3; i++ {
		msg, err := env.svc.SendMessage(ctx, 1, &dto.SendMessageReq{
			ConversationID: conv.ConversationID,
			Content:        "hi",
			ContentType:    "text",
		})
		require.NoError(t, err)
		require.EqualValues(t, i+1, msg.Seq)
		lastMsgID = msg.ID
	}

	inbox, err := env.svc.ListInbox(ctx, 2)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	require.EqualValues(t, 3, inbox[0].UnreadCount)
	require.Equal(t, "hi", inbox[0].LastMsgContent)
	require.Equal(t, "alice", inbox[0].Title)
	require.EqualValues(t, 1, inbox[0].PeerID)

	// B 读到第 k 条后未读归零
	require.NoError(t, env.svc.MarkRead(ctx, 2, &dto.MarkReadReq{
		ConversationID: conv.ConversationID,
		LastMessageID:  lastMsgID,
	}))

	inbox, err = env.svc.ListInbox(ctx, 2)
	require.NoError(t, err)
	require.EqualValues(t, 0, inbox[0].UnreadCount)

	// 发送者自己从头到尾都没有未读
	inbox, err = env.svc.ListInbox(ctx, 1)
	require.NoError(t, err)
	require.EqualValues(t, 0, inbox[0].UnreadCount)
	require.Equal(t, "bob", inbox[0].Title)
}

func TestSendMessageBlockedBothDirections(t *testing.T) {
	env := setupChatEnv(t)
	ctx := context.Background()

	conv, err := env.svc.GetOrCreateConversation(ctx, 1, individualReq(1, 2))
	require.NoError(t, err)

	send := func(sender uint64) error {
		_, err := env.svc.SendMessage(ctx, sender, &dto.SendMessageReq{
			ConversationID: conv.ConversationID,
			Content:        "hi",
			ContentType:    "text",
		})
		return err
	}

	require.NoError(t, send(1))

	// 1 拉黑 2：双方都被拦
	_, err = env.blockSvc.Block(ctx, 1, &dto.CreateBlockReq{BlockedID: 2})
	require.NoError(t, err)
	require.ErrorIs(t, send(1), ErrMessageBlocked)
	require.ErrorIs(t, send(2), ErrMessageBlocked)

	// 解除后恢复
	require.NoError(t, env.blockSvc.Unblock(ctx, 1, 2))
	require.NoError(t, send(1))
	require.NoError(t, send(2))
}

func TestSendMessageValidation(t *testing.T) {
	env := setupChatEnv(t)
	ctx := context.Background()

	conv, err := env.svc.GetOrCreateConversation(ctx, 1, individualReq(1, 2))
	require.NoError(t, err)

	_, err = env.svc.SendMessage(ctx, 1, &dto.SendMessageReq{ConversationID: conv.ConversationID, Content: "   ", ContentType: "text"})
	require.ErrorIs(t, err, ErrParamInvalid)

	_, err = env.svc.SendMessage(ctx, 1, &dto.SendMessageReq{ConversationID: conv.ConversationID, Content: "hi", ContentType: "video"})
	require.ErrorIs(t, err, ErrParamInvalid)

	// 非成员发送按不存在处理
	_, err = env.svc.SendMessage(ctx, 3, &dto.SendMessageReq{ConversationID: conv.ConversationID, Content: "hi", ContentType: "text"})
	require.ErrorIs(t, err, ErrNotConversationMember)
}

func TestSendMessageStorageFailure(t *testing.T) {
	env := setupChatEnv(t)
	ctx := context.Background()

	conv, err := env.svc.GetOrCreateConversation(ctx, 1, individualReq(1, 2))
	require.NoError(t, err)

	env.ledger.failSave = true
	_, err = env.svc.SendMessage(ctx, 1, &dto.SendMessageReq{ConversationID: conv.ConversationID, Content: "hi", ContentType: "text"})
	require.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestCalibrationHealsFailedAppendUnread(t *testing.T) {
	env := setupChatEnv(t)
	ctx := context.Background()

	conv, err := env.svc.GetOrCreateConversation(ctx, 1, individualReq(1, 2))
	require.NoError(t, err)

	msg, err := env.svc.SendMessage(ctx, 1, &dto.SendMessageReq{ConversationID: conv.ConversationID, Content: "real", ContentType: "text"})
	require.NoError(t, err)

	// 落账失败：seq 已消耗但账本里没有这条消息
	env.ledger.failSave = true
	_, err = env.svc.SendMessage(ctx, 1, &dto.SendMessageReq{ConversationID: conv.ConversationID, Content: "lost", ContentType: "text"})
	require.ErrorIs(t, err, ErrStorageUnavailable)
	env.ledger.failSave = false

	// 读完账本里真实的最后一条，幻影 seq 仍把未读挂在 1
	require.NoError(t, env.svc.MarkRead(ctx, 2, &dto.MarkReadReq{ConversationID: conv.ConversationID, LastMessageID: msg.ID}))
	inbox, err := env.svc.ListInbox(ctx, 2)
	require.NoError(t, err)
	require.EqualValues(t, 1, inbox[0].UnreadCount)

	// 校准任务把水位收敛回账本后未读归零，预览指回真实消息
	job.NewPreviewCalibrationJob(repository.NewConversationRepo(env.db), env.ledger).Run()

	inbox, err = env.svc.ListInbox(ctx, 2)
	require.NoError(t, err)
	require.EqualValues(t, 0, inbox[0].UnreadCount)
	require.Equal(t, "real", inbox[0].LastMsgContent)
}

func TestListMessagesSenderLookupFailSoft(t *testing.T) {
	env := setupChatEnv(t)
	ctx := context.Background()

	conv, err := env.svc.GetOrCreateConversation(ctx, 1, individualReq(1, 2))
	require.NoError(t, err)
	_, err = env.svc.SendMessage(ctx, 1, &dto.SendMessageReq{ConversationID: conv.ConversationID, Content: "hi", ContentType: "text"})
	require.NoError(t, err)

	// 用户镜像不可用时历史照常返回，发送者名降级为空
	require.NoError(t, env.db.Migrator().DropTable(&model.User{}))

	msgs, err := env.svc.ListMessages(ctx, 2, &dto.ListMessagesReq{ConversationID: conv.ConversationID})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "hi", msgs[0].Content)
	require.Empty(t, msgs[0].SenderName)
}

func TestSendMessageDispatchesEvent(t *testing.T) {
	env := setupChatEnv(t)
	ctx := context.Background()

	conv, err := env.svc.GetOrCreateConversation(ctx, 1, individualReq(1, 2))
	require.NoError(t, err)

	msg, err := env.svc.SendMessage(ctx, 1, &dto.SendMessageReq{ConversationID: conv.ConversationID, Content: "hi", ContentType: "text"})
	require.NoError(t, err)

	select {
	case event := <-env.dispatcher.newMsgCh:
		require.Equal(t, msg.ID, event.MessageID)
		require.Equal(t, "alice", event.SenderName)
		require.Equal(t, "hi", event.Content)
	case <-time.After(time.Second):
		t.Fatal("no new_message event dispatched")
	}
}

func TestMarkReadIdempotentAndMonotonic(t *testing.T) {
	env := setupChatEnv(t)
	ctx := context.Background()

	conv, err := env.svc.GetOrCreateConversation(ctx, 1, individualReq(1, 2))
	require.NoError(t, err)

	var msgIDs []string
	for i := 0; i < 3; i++ {
		msg, err := env.svc.SendMessage(ctx, 1, &dto.SendMessageReq{ConversationID: conv.ConversationID, Content: "m", ContentType: "text"})
		require.NoError(t, err)
		msgIDs = append(msgIDs, msg.ID)
	}

	markRead := func(msgID string) error {
		return env.svc.MarkRead(ctx, 2, &dto.MarkReadReq{ConversationID: conv.ConversationID, LastMessageID: msgID})
	}

	require.NoError(t, markRead(msgIDs[1]))

	unread := func() uint64 {
		inbox, err := env.svc.ListInbox(ctx, 2)
		require.NoError(t, err)
		return inbox[0].UnreadCount
	}
	require.EqualValues(t, 1, unread())

	// 重复与回退都是空操作，未读数永不回升
	require.NoError(t, markRead(msgIDs[1]))
	require.NoError(t, markRead(msgIDs[0]))
	require.EqualValues(t, 1, unread())

	require.NoError(t, markRead(msgIDs[2]))
	require.EqualValues(t, 0, unread())

	// 指向不存在的消息
	err = markRead("no-such-id")
	require.ErrorIs(t, err, ErrMessageNotFound)
}

func TestListMessagesOrderAndPagination(t *testing.T) {
	env := setupChatEnv(t)
	ctx := context.Background()

	conv, err := env.svc.GetOrCreateConversation(ctx, 1, individualReq(1, 2))
	require.NoError(t, err)

	contents := []string{"m1", "m2", "m3", "m4", "m5"}
	for _, c := range contents {
		_, err := env.svc.SendMessage(ctx, 1, &dto.SendMessageReq{ConversationID: conv.ConversationID, Content: c, ContentType: "text"})
		require.NoError(t, err)
	}

	page1, err := env.svc.ListMessages(ctx, 2, &dto.ListMessagesReq{ConversationID: conv.ConversationID, Limit: 2, Offset: 0})
	require.NoError(t, err)
	page2, err := env.svc.ListMessages(ctx, 2, &dto.ListMessagesReq{ConversationID: conv.ConversationID, Limit: 2, Offset: 2})
	require.NoError(t, err)

	// 两页拼起来恰好是 m1..m4，无缝无重
	var got []string
	var lastSeq uint64
	for _, m := range append(page1, page2...) {
		require.Greater(t, m.Seq, lastSeq)
		lastSeq = m.Seq
		got = append(got, m.Content)
	}
	require.Equal(t, []string{"m1", "m2", "m3", "m4"}, got)

	// 非成员拉历史被拒
	_, err = env.svc.ListMessages(ctx, 3, &dto.ListMessagesReq{ConversationID: conv.ConversationID})
	require.ErrorIs(t, err, ErrNotConversationMember)
}

func TestNotifyTyping(t *testing.T) {
	env := setupChatEnv(t)
	ctx := context.Background()

	conv, err := env.svc.GetOrCreateConversation(ctx, 1, individualReq(1, 2))
	require.NoError(t, err)

	env.svc.NotifyTyping(ctx, 1, conv.ConversationID, true)

	select {
	case event := <-env.dispatcher.typingCh:
		require.EqualValues(t, 1, event.UserID)
		require.Equal(t, "alice", event.Username)
		require.True(t, event.IsTyping)
	case <-time.After(time.Second):
		t.Fatal("no user_typing event dispatched")
	}

	// 非成员的 typing 被静默丢弃
	env.svc.NotifyTyping(ctx, 3, conv.ConversationID, true)
	select {
	case <-env.dispatcher.typingCh:
		t.Fatal("typing from non-member must be dropped")
	case <-time.After(50 * time.Millisecond):
	}
}
