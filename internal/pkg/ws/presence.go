package ws

import (
	"sync"
)

// Pusher 在线会话的推送面，Registry 只关心这一层抽象
type Pusher interface {
	// Push 尽力投递一条下行事件，失败返回错误但不重试
	Push(env *Envelope) error
	// ConnID 本次连接的唯一标识
	ConnID() string
	// Close 关闭底层连接
	Close()
}

// Registry 进程内在线表：userID → 当前活跃会话
// 单活语义：同一用户后连的会话顶掉先连的（last-connect-wins）。
type Registry struct {
	mu       sync.RWMutex
	sessions map[uint64]Pusher
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[uint64]Pusher),
	}
}

// Connect 注册用户的活跃会话，返回被顶掉的旧会话（没有则为 nil）
func (s *Registry) Connect(userID uint64, p Pusher) Pusher {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.sessions[userID]
	s.sessions[userID] = p
	return old
}

// Disconnect 注销会话
// 只有当前活跃会话的 connID 匹配才真正摘除：
// 旧连接迟到的断开回调不能误伤同一用户的新连接。
func (s *Registry) Disconnect(userID uint64, connID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.sessions[userID]
	if !ok || cur.ConnID() != connID {
		return false
	}
	delete(s.sessions, userID)
	return true
}

// Get 获取用户当前活跃会话
func (s *Registry) Get(userID uint64) (Pusher, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.sessions[userID]
	return p, ok
}

// OnlineAmong 从成员列表里筛出在线用户的会话，排除 exclude（通常是发送者自己）
func (s *Registry) OnlineAmong(memberIDs []uint64, exclude uint64) []Pusher {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var online []Pusher
	for _, uid := range memberIDs {
		if uid == exclude {
			continue
		}
		if p, ok := s.sessions[uid]; ok {
			online = append(online, p)
		}
	}
	return online
}

// Count 当前在线人数
func (s *Registry) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
