package ws

import (
	"context"
	log "log/slog"

	"golang.org/x/sync/errgroup"
)

// MemberSource 提供会话成员清单，由会话仓储适配实现
type MemberSource interface {
	GetMemberIDs(ctx context.Context, convID uint64) ([]uint64, error)
}

// Dispatcher 下行事件分发器
// 至多一次语义：只推给此刻在线的成员，单个成员推送失败只记日志，
// 既不重试也不影响其他成员，离线成员靠未读数和收件箱兜底。
type Dispatcher struct {
	registry *Registry
	members  MemberSource
}

func NewDispatcher(registry *Registry, members MemberSource) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		members:  members,
	}
}

// DispatchNewMessage 向会话内除发送者以外的在线成员广播 new_message
func (s *Dispatcher) DispatchNewMessage(ctx context.Context, convID uint64, event *NewMessageEvent) {
	s.broadcast(ctx, convID, event.SenderID, NewMessageEnvelope(event))
}

// DispatchTyping 广播 user_typing，信号丢了就丢了
func (s *Dispatcher) DispatchTyping(ctx context.Context, convID uint64, event *TypingEvent) {
	s.broadcast(ctx, convID, event.UserID, TypingEnvelope(event))
}

func (s *Dispatcher) broadcast(ctx context.Context, convID, exclude uint64, env *Envelope) {
	memberIDs, err := s.members.GetMemberIDs(ctx, convID)
	if err != nil {
		log.Error("分发前查询会话成员失败", "convID", convID, "err", err)
		return
	}

	online := s.registry.OnlineAmong(memberIDs, exclude)
	if len(online) == 0 {
		return
	}

	g := new(errgroup.Group)
	for _, p := range online {
		p := p
		g.Go(func() error {
			if err := p.Push(env); err != nil {
				log.Warn("事件推送失败", "convID", convID, "connID", p.ConnID(), "event", env.Type, "err", err)
			}
			// 推送失败不具传染性，永远返回 nil
			return nil
		})
	}
	_ = g.Wait()
}
