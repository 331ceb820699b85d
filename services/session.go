package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qianlnk/werewolf-companion/storage"
	"go.uber.org/zap"
)

var ErrSessionNotFound = errors.New("会话不存在")

// Session 一个会话对应浏览器里的一个标签页
type Session struct {
	ID       string
	Game     *GameService
	lastSeen time.Time
}

// SessionManager 会话管理器
type SessionManager struct {
	sessions map[string]*Session
	store    storage.Store
	logger   *zap.Logger
	now      func() time.Time
	mutex    sync.Mutex
}

// NewSessionManager 创建会话管理器
func NewSessionManager(store storage.Store, logger *zap.Logger) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
		store:    store,
		logger:   logger,
		now:      time.Now,
	}
}

// Create 新建会话
func (sm *SessionManager) Create(ctx context.Context) (*Session, error) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	id := uuid.New().String()
	game, err := NewGameService(ctx, sm.sessionStore(id), sm.logger.With(zap.String("session", id)))
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	session := &Session{ID: id, Game: game, lastSeen: sm.now()}
	sm.sessions[id] = session
	sm.logger.Info("会话已创建", zap.String("session", id))
	return session, nil
}

// Get 获取会话；内存中没有时尝试从存储恢复
func (sm *SessionManager) Get(ctx context.Context, id string) (*Session, error) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	if session, exists := sm.sessions[id]; exists {
		session.lastSeen = sm.now()
		return session, nil
	}

	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrSessionNotFound
	}
	store := sm.sessionStore(id)
	if _, err := store.Get(ctx, GameDataKey); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	game, err := NewGameService(ctx, store, sm.logger.With(zap.String("session", id)))
	if err != nil {
		return nil, fmt.Errorf("restore session: %w", err)
	}
	session := &Session{ID: id, Game: game, lastSeen: sm.now()}
	sm.sessions[id] = session
	sm.logger.Info("会话已从存储恢复", zap.String("session", id))
	return session, nil
}

// End 结束会话并删除存储的数据
func (sm *SessionManager) End(ctx context.Context, id string) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	if session, exists := sm.sessions[id]; exists {
		return sm.end(ctx, session)
	}

	// 进程重启后尚未加载的会话只需删除存储
	store := sm.sessionStore(id)
	if _, err := store.Get(ctx, GameDataKey); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	return sm.deleteStored(ctx, id)
}

// Sweep 结束空闲超过 maxIdle 的会话，返回结束的数量
// 存储支持 storage.Lister 时，也会删除未加载且长时间没有写入的会话
func (sm *SessionManager) Sweep(ctx context.Context, maxIdle time.Duration) int {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	cutoff := sm.now().Add(-maxIdle)
	ended := 0
	for _, session := range sm.sessions {
		if session.lastSeen.After(cutoff) {
			continue
		}
		if err := sm.end(ctx, session); err != nil {
			sm.logger.Error("清理会话失败", zap.String("session", session.ID), zap.Error(err))
			continue
		}
		ended++
	}
	return ended + sm.sweepStored(ctx, cutoff)
}

// sweepStored 调用方需持有锁
func (sm *SessionManager) sweepStored(ctx context.Context, cutoff time.Time) int {
	lister, ok := sm.store.(storage.Lister)
	if !ok {
		return 0
	}
	times, err := lister.ModTimes(ctx, storage.SessionKeyPrefix)
	if err != nil {
		sm.logger.Error("列出存储中的会话失败", zap.Error(err))
		return 0
	}

	// 以会话中最近写入的键为准
	latest := make(map[string]time.Time)
	for key, updatedAt := range times {
		id, ok := storage.SessionIDFromKey(key)
		if !ok {
			continue
		}
		if updatedAt.After(latest[id]) {
			latest[id] = updatedAt
		}
	}

	ended := 0
	for id, updatedAt := range latest {
		if _, loaded := sm.sessions[id]; loaded || updatedAt.After(cutoff) {
			continue
		}
		if err := sm.deleteStored(ctx, id); err != nil {
			sm.logger.Error("清理存储中的会话失败", zap.String("session", id), zap.Error(err))
			continue
		}
		sm.logger.Info("已清理存储中的过期会话", zap.String("session", id))
		ended++
	}
	return ended
}

// Touch 刷新会话的活跃时间
func (sm *SessionManager) Touch(id string) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	if session, exists := sm.sessions[id]; exists {
		session.lastSeen = sm.now()
	}
}

// Count 内存中的会话数
func (sm *SessionManager) Count() int {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()
	return len(sm.sessions)
}

// end 调用方需持有锁
func (sm *SessionManager) end(ctx context.Context, session *Session) error {
	session.Game.Close()
	delete(sm.sessions, session.ID)

	if err := sm.deleteStored(ctx, session.ID); err != nil {
		return err
	}
	sm.logger.Info("会话已结束", zap.String("session", session.ID))
	return nil
}

func (sm *SessionManager) deleteStored(ctx context.Context, id string) error {
	store := sm.sessionStore(id)
	if err := store.Delete(ctx, GameDataKey); err != nil {
		return err
	}
	return store.Delete(ctx, RoleDataKey)
}

func (sm *SessionManager) sessionStore(id string) storage.Store {
	return storage.WithPrefix(sm.store, storage.SessionPrefix(id))
}
