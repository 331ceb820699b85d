package storage

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	updatedAt time.Time
}

// MemoryStore 进程内存储，进程退出即丢失
type MemoryStore struct {
	data  map[string]memoryEntry
	now   func() time.Time
	mutex sync.RWMutex
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	entry, exists := m.data[key]
	if !exists {
		return "", ErrNotFound
	}
	return entry.value, nil
}

func (m *MemoryStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.data[key] = memoryEntry{value: value, updatedAt: m.now()}
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	delete(m.data, key)
	return nil
}

// ModTimes 列出前缀下所有键的最后写入时间
func (m *MemoryStore) ModTimes(ctx context.Context, prefix string) (map[string]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	times := make(map[string]time.Time)
	for key, entry := range m.data {
		if strings.HasPrefix(key, prefix) {
			times[key] = entry.updatedAt
		}
	}
	return times, nil
}

func (m *MemoryStore) Close() error { return nil }
