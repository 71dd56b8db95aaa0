package adapter

import (
	"context"
	"time"

	"go.uber.org/zap"

	"fastmedia/gateway/internal/models"
	"fastmedia/gateway/internal/utils"
)

// Target 单次解析的目标
type Target struct {
	// URL 标准化后的输入地址
	URL string
	// PageURL 跳转后的落地页, 未跳转时等于 URL
	PageURL string
	// ContentID 从地址中提取的内容ID, 可能为空
	ContentID string
	Platform  models.Platform
}

// Strategy 解析策略: 把地址解析为视频资源
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, target *Target) (*models.VideoAsset, error)
}

// Locator 在所有策略之前执行一次, 补全跳转后的落地页与内容ID; 从不失败
type Locator func(ctx context.Context, target *Target)

// Chain 平台策略链, 按顺序尝试直到成功
type Chain struct {
	platform   models.Platform
	locate     Locator
	strategies []Strategy
	logger     *zap.Logger
}

// NewChain 创建策略链
func NewChain(platform models.Platform, locate Locator, logger *zap.Logger, strategies ...Strategy) *Chain {
	return &Chain{
		platform:   platform,
		locate:     locate,
		strategies: strategies,
		logger:     logger,
	}
}

// Strategies 策略名称(按尝试顺序)
func (c *Chain) Strategies() []string {
	names := make([]string, 0, len(c.strategies))
	for _, s := range c.strategies {
		names = append(names, s.Name())
	}
	return names
}

// Resolve 依次尝试策略; 全部失败时返回聚合错误
func (c *Chain) Resolve(ctx context.Context, url string) (*models.VideoAsset, error) {
	target := &Target{URL: url, PageURL: url, Platform: c.platform}
	if c.locate != nil {
		c.locate(ctx, target)
	}

	attempts := make([]utils.Attempt, 0, len(c.strategies))
	for _, s := range c.strategies {
		start := time.Now()
		asset, err := s.Attempt(ctx, target)
		if err == nil && !usable(asset) {
			err = utils.ErrNoPlayURL
		}
		if err == nil {
			c.finish(asset, s.Name(), target)
			c.logger.Info("strategy succeeded",
				zap.String("platform", string(c.platform)),
				zap.String("strategy", s.Name()),
				zap.String("url", url),
				zap.Duration("elapsed", time.Since(start)))
			return asset, nil
		}

		attempts = append(attempts, utils.Attempt{Strategy: s.Name(), Err: err})
		c.logger.Warn("strategy failed",
			zap.String("platform", string(c.platform)),
			zap.String("strategy", s.Name()),
			zap.String("url", url),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))

		// 上层已取消, 后续策略无意义
		if ctx.Err() != nil {
			break
		}
	}

	return nil, utils.NewResolveError(string(c.platform), url, attempts)
}

func usable(asset *models.VideoAsset) bool {
	if asset == nil {
		return false
	}
	if asset.Origin == models.OriginEngine {
		return true
	}
	return len(asset.Candidates) > 0
}

func (c *Chain) finish(asset *models.VideoAsset, strategy string, target *Target) {
	asset.Platform = c.platform
	asset.Strategy = strategy
	if asset.PageURL == "" {
		asset.PageURL = target.PageURL
	}
	if asset.ContentID == "" {
		asset.ContentID = target.ContentID
	}
	if asset.Duration < 0 {
		asset.Duration = 0
	}
}
