// Package storage 提供会话级的字符串键值存储
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound       = errors.New("键不存在")
	ErrUnknownBackend = errors.New("未知的存储后端")
)

// Store 字符串键值存储，语义等同浏览器的 sessionStorage
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Lister 能按前缀列出键及其最后写入时间的存储
// 用于清理进程重启前留下、之后再没有访问过的会话
type Lister interface {
	ModTimes(ctx context.Context, prefix string) (map[string]time.Time, error)
}

// Options 打开存储所需的配置
type Options struct {
	Backend       string
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PostgresDSN   string
}

// Open 按后端名称打开存储
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return OpenSQLite(ctx, opts.SQLitePath)
	case "redis":
		return OpenRedis(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisDB)
	case "postgres":
		return OpenPostgres(ctx, opts.PostgresDSN)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, opts.Backend)
	}
}
