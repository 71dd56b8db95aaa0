package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"fastmedia/gateway/internal/models"
)

// Publisher 批处理进度发布
type Publisher interface {
	Publish(ctx context.Context, msg *models.ProgressMessage) error
}

// NoopPublisher 未启用 Redis 时使用
type NoopPublisher struct{}

// Publish 丢弃消息
func (NoopPublisher) Publish(context.Context, *models.ProgressMessage) error { return nil }

// Channel 批次进度频道名
func Channel(batchID string) string {
	return fmt.Sprintf("progress:%s", batchID)
}

// ProgressPublisher 基于 Redis Pub/Sub 的进度发布器
type ProgressPublisher struct {
	redis  *redis.Client
	logger *zap.Logger
}

// NewProgressPublisher 创建进度发布器
func NewProgressPublisher(redisClient *redis.Client, logger *zap.Logger) *ProgressPublisher {
	return &ProgressPublisher{
		redis:  redisClient,
		logger: logger,
	}
}

// Publish 发布进度消息
func (p *ProgressPublisher) Publish(ctx context.Context, msg *models.ProgressMessage) error {
	channel := Channel(msg.BatchID)

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal progress message: %w", err)
	}

	if err := p.redis.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish progress: %w", err)
	}

	p.logger.Debug("progress published",
		zap.String("channel", channel),
		zap.Int("finished", msg.Finished),
		zap.Int("total", msg.Total))
	return nil
}
