package storage

import (
	"context"
	"strings"
)

// SessionKeyPrefix 所有会话键的公共前缀
const SessionKeyPrefix = "session:"

// Namespaced 给所有键加上前缀，用于隔离不同会话
type Namespaced struct {
	store  Store
	prefix string
}

// WithPrefix 包装存储，Close 不会关闭底层存储
func WithPrefix(store Store, prefix string) *Namespaced {
	return &Namespaced{store: store, prefix: prefix}
}

// SessionPrefix 会话键前缀 session:<id>:
func SessionPrefix(sessionID string) string {
	return SessionKeyPrefix + sessionID + ":"
}

// SessionIDFromKey 从 session:<id>:<name> 中取出会话 id
func SessionIDFromKey(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, SessionKeyPrefix)
	if !ok {
		return "", false
	}
	id, _, ok := strings.Cut(rest, ":")
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

func (n *Namespaced) Get(ctx context.Context, key string) (string, error) {
	return n.store.Get(ctx, n.prefix+key)
}

func (n *Namespaced) Set(ctx context.Context, key, value string) error {
	return n.store.Set(ctx, n.prefix+key, value)
}

func (n *Namespaced) Delete(ctx context.Context, key string) error {
	return n.store.Delete(ctx, n.prefix+key)
}

func (n *Namespaced) Close() error { return nil }
