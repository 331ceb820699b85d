package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionEntry 会话键值行
type SessionEntry struct {
	Key       string `gorm:"primaryKey"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

// PostgresStore 基于 gorm + PostgreSQL 的存储
type PostgresStore struct {
	db *gorm.DB
}

// OpenPostgres 连接数据库并迁移表结构
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&SessionEntry{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Get(ctx context.Context, key string) (string, error) {
	var entry SessionEntry
	err := p.db.WithContext(ctx).Where("key = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return entry.Value, nil
}

func (p *PostgresStore) Set(ctx context.Context, key, value string) error {
	entry := SessionEntry{Key: key, Value: value}
	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, key string) error {
	if err := p.db.WithContext(ctx).Where("key = ?", key).Delete(&SessionEntry{}).Error; err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// ModTimes 列出前缀下所有键的最后写入时间
func (p *PostgresStore) ModTimes(ctx context.Context, prefix string) (map[string]time.Time, error) {
	var entries []SessionEntry
	err := p.db.WithContext(ctx).
		Select("key", "updated_at").
		Where("left(key, ?) = ?", len(prefix), prefix).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}

	times := make(map[string]time.Time, len(entries))
	for _, entry := range entries {
		times[entry.Key] = entry.UpdatedAt
	}
	return times, nil
}

func (p *PostgresStore) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
