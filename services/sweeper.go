package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// StartSweeper 按 cron 表达式定期清理空闲会话，返回的函数用于停止
func StartSweeper(sm *SessionManager, schedule string, maxIdle time.Duration, logger *zap.Logger) (func(), error) {
	c := cron.New()

	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		ended := sm.Sweep(ctx, maxIdle)
		logger.Info("空闲会话清理完成",
			zap.Int("ended", ended),
			zap.Int("remaining", sm.Count()),
		)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	c.Start()
	return func() {
		<-c.Stop().Done()
	}, nil
}
