package services

import (
	"sync"

	"go.uber.org/zap"
)

// pageBuffer 每个订阅者的缓冲长度，满了之后丢弃新值
const pageBuffer = 16

// PageStream 当前页面的广播流
// 不回放历史值：订阅者只能收到订阅之后的页面变化
type PageStream struct {
	subscribers map[chan string]struct{}
	closed      bool
	logger      *zap.Logger
	mutex       sync.Mutex
}

// NewPageStream 创建页面广播流
func NewPageStream(logger *zap.Logger) *PageStream {
	return &PageStream{
		subscribers: make(map[chan string]struct{}),
		logger:      logger,
	}
}

// Subscribe 订阅页面变化，返回的函数用于取消订阅
func (ps *PageStream) Subscribe() (<-chan string, func()) {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	ch := make(chan string, pageBuffer)
	if ps.closed {
		close(ch)
		return ch, func() {}
	}
	ps.subscribers[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			ps.mutex.Lock()
			defer ps.mutex.Unlock()
			if _, ok := ps.subscribers[ch]; ok {
				delete(ps.subscribers, ch)
				close(ch)
			}
		})
	}
}

// Publish 向所有订阅者发送页面，不阻塞
func (ps *PageStream) Publish(page string) {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	if ps.closed {
		return
	}
	for ch := range ps.subscribers {
		select {
		case ch <- page:
		default:
			ps.logger.Warn("订阅者缓冲已满，丢弃页面", zap.String("page", page))
		}
	}
}

// SubscriberCount 当前订阅者数量
func (ps *PageStream) SubscriberCount() int {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()
	return len(ps.subscribers)
}

// Close 关闭所有订阅者的通道
func (ps *PageStream) Close() {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	if ps.closed {
		return
	}
	ps.closed = true
	for ch := range ps.subscribers {
		close(ch)
		delete(ps.subscribers, ch)
	}
}
