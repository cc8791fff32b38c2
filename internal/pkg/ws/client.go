package ws

import (
	"errors"
	log "log/slog"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 64
)

// ErrSendBufferFull 客户端消费过慢导致发送缓冲溢出
var ErrSendBufferFull = errors.New("ws send buffer full")

// Client 封装一条 Websocket 连接，实现 Pusher
// 所有写操作都经由 send 通道串行化到 writePump，规避 gorilla 的并发写限制。
type Client struct {
	connID string
	userID uint64
	conn   *websocket.Conn

	send      chan []byte
	closeOnce sync.Once
	done      chan struct{}
}

func NewClient(connID string, userID uint64, conn *websocket.Conn) *Client {
	return &Client{
		connID: connID,
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
}

func (s *Client) ConnID() string {
	return s.connID
}

func (s *Client) UserID() uint64 {
	return s.userID
}

// Push 序列化事件并投入发送缓冲，非阻塞
// 缓冲满说明客户端长时间不读，按推送失败处理，由读端超时机制收尾。
func (s *Client) Push(env *Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}

	select {
	case s.send <- payload:
		return nil
	case <-s.done:
		return errors.New("ws connection closed")
	default:
		return ErrSendBufferFull
	}
}

func (s *Client) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// WritePump 写循环：串行消费发送缓冲并定期发 ping
// 每条连接只允许跑一个 WritePump，由连接入口的 goroutine 持有。
func (s *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Close()
	}()

	for {
		select {
		case payload := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Warn("WS 推送失败", "userID", s.userID, "err", err)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}
