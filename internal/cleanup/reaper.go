package cleanup

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Result 一次清理的统计
type Result struct {
	Count int   `json:"count"`
	Bytes int64 `json:"bytes"`
}

// Reaper 按修改时间删除过期临时文件
type Reaper struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewReaper 创建清理器
func NewReaper(logger *zap.Logger) *Reaper {
	return &Reaper{logger: logger, now: time.Now}
}

// Reap 递归删除 dir 下修改时间早于 maxAge 的文件, 返回删除数量和释放字节数
// 单个文件删除失败只记录日志; 目录不存在视为无事可做
func (r *Reaper) Reap(dir string, maxAge time.Duration) (Result, error) {
	var res Result
	if maxAge <= 0 {
		return res, nil
	}
	cutoff := r.now().Add(-maxAge)
	var staleDirs []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			r.logger.Warn("walk failed", zap.String("path", path), zap.Error(err))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			// 中断下载遗留的暂存目录, 须在删除其内容之前记录修改时间
			if strings.HasPrefix(d.Name(), ".staging-") {
				if info, err := d.Info(); err == nil && info.ModTime().Before(cutoff) {
					staleDirs = append(staleDirs, path)
				}
			}
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.Mode().IsRegular() {
			return nil
		}
		if !info.ModTime().Before(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				r.logger.Warn("failed to delete expired file", zap.String("path", path), zap.Error(err))
			}
			return nil
		}
		res.Count++
		res.Bytes += info.Size()
		return nil
	})
	if err != nil {
		return res, err
	}

	for _, d := range staleDirs {
		// 非空目录删除失败, 留待下次
		os.Remove(d)
	}

	if res.Count > 0 {
		r.logger.Info("expired files removed",
			zap.String("dir", dir),
			zap.Int("count", res.Count),
			zap.Int64("bytes", res.Bytes))
	}
	return res, nil
}
