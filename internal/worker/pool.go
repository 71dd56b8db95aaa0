package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"fastmedia/gateway/internal/utils"
)

// Pool 有界并发执行器, 任务按下标标识, 结果由调用方按下标写回
type Pool struct {
	limiter *utils.ConcurrencyLimiter
	logger  *zap.Logger
}

// NewPool 创建执行器, size 为最大并发数
func NewPool(size int, logger *zap.Logger) *Pool {
	return &Pool{
		limiter: utils.NewConcurrencyLimiter(size),
		logger:  logger,
	}
}

// Size 最大并发数
func (p *Pool) Size() int {
	return p.limiter.Cap()
}

// Run 对 0..n-1 执行 fn, 全部结束后返回
// ctx 结束后尚未开始的任务不再执行; 单个任务 panic 只影响自身
func (p *Pool) Run(ctx context.Context, n int, fn func(ctx context.Context, i int)) {
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		err := ctx.Err()
		if err == nil {
			err = p.limiter.AcquireContext(ctx)
		}
		if err != nil {
			p.logger.Warn("batch cancelled before item started", zap.Int("index", i), zap.Error(err))
			break
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer p.limiter.Release()
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("batch item panicked", zap.Int("index", i), zap.Any("panic", r))
				}
			}()
			fn(ctx, i)
		}(i)
	}
	wg.Wait()
}
