package cleanup

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"fastmedia/gateway/internal/config"
)

// Scheduler 定时清理调度器
type Scheduler struct {
	cron   *cron.Cron
	reaper *Reaper
	cfg    *config.CleanupConfig
	dir    string
	logger *zap.Logger
}

// NewScheduler 创建清理调度器
func NewScheduler(cfg *config.CleanupConfig, dir string, reaper *Reaper, logger *zap.Logger) *Scheduler {
	logger = logger.With(zap.String("system", "cron"))
	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(
			recoverWrapper(logger),
			cron.SkipIfStillRunning(cron.DiscardLogger),
		),
	)
	return &Scheduler{
		cron:   c,
		reaper: reaper,
		cfg:    cfg,
		dir:    dir,
		logger: logger,
	}
}

// Start 注册清理任务并启动
func (s *Scheduler) Start() error {
	if !s.cfg.Enabled {
		s.logger.Info("cleanup scheduler is disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(s.cfg.Schedule, s.RunOnce); err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", s.cfg.Schedule, err)
	}
	s.logger.Info("cleanup scheduler started",
		zap.String("schedule", s.cfg.Schedule),
		zap.Int("max_age_days", s.cfg.MaxAgeDays))

	// 启动时先执行一次
	go s.RunOnce()
	s.cron.Start()
	return nil
}

// RunOnce 执行一次清理
func (s *Scheduler) RunOnce() {
	res, err := s.reaper.Reap(s.dir, s.cfg.GetMaxAge())
	if err != nil {
		s.logger.Error("cleanup failed", zap.Error(err))
		return
	}
	s.logger.Info("cleanup finished", zap.Int("count", res.Count), zap.Int64("bytes", res.Bytes))
}

// Stop 停止调度器并等待正在执行的任务结束
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("cleanup scheduler stopped")
}

func recoverWrapper(logger *zap.Logger) cron.JobWrapper {
	return func(j cron.Job) cron.Job {
		return cron.FuncJob(func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("cron job panicked", zap.Any("panic", r))
				}
			}()
			j.Run()
		})
	}
}
