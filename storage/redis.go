package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore 基于 Redis 的存储
type RedisStore struct {
	rdb *redis.Client
}

// OpenRedis 连接 Redis 并做一次 Ping
func OpenRedis(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	if addr == "" {
		addr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, error) {
	value, err := r.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

// Set 不设置过期时间，会话过期由 SessionManager 清理
func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := r.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// ModTimes 用 OBJECT IDLETIME 估算前缀下各键的最后访问时间
func (r *RedisStore) ModTimes(ctx context.Context, prefix string) (map[string]time.Time, error) {
	now := time.Now()
	times := make(map[string]time.Time)

	iter := r.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		idle, err := r.rdb.ObjectIdleTime(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("idle time %s: %w", key, err)
		}
		times[key] = now.Add(-idle)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", prefix, err)
	}
	return times, nil
}

func (r *RedisStore) Close() error {
	return r.rdb.Close()
}
