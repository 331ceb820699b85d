package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pingInterval = 15 * time.Second
	writeTimeout = 5 * time.Second
	readLimit    = 4 * 1024
)

// Message WebSocket 消息
type Message struct {
	Type string `json:"type"`
	Page string `json:"page,omitempty"`
}

// PageSocket 把一个会话的页面变化推送到 WebSocket 连接
// 客户端也可以发送 {"type":"page","page":"..."} 切换页面
type PageSocket struct {
	conn   *websocket.Conn
	game   *GameService
	touch  func()
	logger *zap.Logger
	mutex  sync.Mutex
}

// NewPageSocket 创建页面推送连接，每收到一条客户端消息调用一次 touch
func NewPageSocket(conn *websocket.Conn, game *GameService, touch func(), logger *zap.Logger) *PageSocket {
	if touch == nil {
		touch = func() {}
	}
	return &PageSocket{conn: conn, game: game, touch: touch, logger: logger}
}

// Serve 阻塞直到连接断开、会话结束或 ctx 取消
func (ps *PageSocket) Serve(ctx context.Context) {
	defer ps.conn.Close()

	pages, cancel := ps.game.SubscribePages()
	defer cancel()

	// 订阅之后再发当前页面，避免漏掉中间的变化
	if err := ps.write(Message{Type: "page", Page: ps.game.CurrentPage()}); err != nil {
		ps.logger.Warn("发送初始页面失败", zap.Error(err))
		return
	}

	done := make(chan struct{})
	go ps.handleMessages(ctx, done)

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			ps.close(websocket.CloseGoingAway, "服务关闭")
			return
		case <-done:
			return
		case page, ok := <-pages:
			if !ok {
				ps.close(websocket.CloseNormalClosure, "会话已结束")
				return
			}
			if err := ps.write(Message{Type: "page", Page: page}); err != nil {
				ps.logger.Warn("推送页面失败", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := ps.ping(); err != nil {
				ps.logger.Info("心跳检测失败，断开连接", zap.Error(err))
				return
			}
		}
	}
}

// handleMessages 读取客户端消息，连接断开时关闭 done
func (ps *PageSocket) handleMessages(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	ps.conn.SetReadLimit(readLimit)

	for {
		_, p, err := ps.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ps.logger.Debug("读取消息失败", zap.Error(err))
			}
			return
		}
		ps.touch()

		var msg Message
		if err := json.Unmarshal(p, &msg); err != nil {
			ps.logger.Debug("解析消息失败", zap.Error(err))
			continue
		}
		switch msg.Type {
		case "page":
			if err := ps.game.UpdatePage(ctx, msg.Page); errors.Is(err, ErrSessionClosed) {
				return
			} else if err != nil {
				ps.logger.Error("切换页面失败", zap.Error(err))
				_ = ps.write(Message{Type: "error"})
			}
		default:
			ps.logger.Debug("未知的消息类型", zap.String("type", msg.Type))
		}
	}
}

func (ps *PageSocket) write(msg Message) error {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	if err := ps.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return ps.conn.WriteJSON(msg)
}

func (ps *PageSocket) ping() error {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()
	return ps.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(time.Second))
}

func (ps *PageSocket) close(code int, reason string) {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	msg := websocket.FormatCloseMessage(code, reason)
	if err := ps.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(100*time.Millisecond)); err != nil {
		ps.logger.Debug("发送关闭消息失败", zap.Error(err))
	}
}
