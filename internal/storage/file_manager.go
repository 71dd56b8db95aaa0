package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"go.uber.org/zap"

	"fastmedia/gateway/internal/models"
	"fastmedia/gateway/internal/utils"
)

// FileManager 临时文件管理: 状态查询、删除、磁盘空间检查
type FileManager struct {
	paths        *PathGenerator
	maxDiskUsage float64
	logger       *zap.Logger
}

// NewFileManager 创建文件管理器
func NewFileManager(paths *PathGenerator, maxDiskUsage float64, logger *zap.Logger) *FileManager {
	return &FileManager{
		paths:        paths,
		maxDiskUsage: maxDiskUsage,
		logger:       logger,
	}
}

// Paths 路径生成器
func (m *FileManager) Paths() *PathGenerator {
	return m.paths
}

// Status 查询文件状态; 不存在或无法访问都视为不存在, 从不返回错误
func (m *FileManager) Status(filePath string) models.TempFileStatus {
	info, err := os.Stat(filePath)
	if err != nil || !info.Mode().IsRegular() {
		return models.TempFileStatus{Exists: false}
	}
	return models.TempFileStatus{
		Exists:       true,
		Size:         info.Size(),
		ModifiedTime: info.ModTime(),
	}
}

// Size 文件大小, 不存在时为 0
func (m *FileManager) Size(filePath string) int64 {
	return m.Status(filePath).Size
}

// Cleanup 删除文件; 幂等, 失败只记录日志. 返回是否真正删除了文件
func (m *FileManager) Cleanup(filePath string) bool {
	if filePath == "" {
		return false
	}
	if err := os.Remove(filePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			m.logger.Debug("file already deleted", zap.String("path", filePath))
			return false
		}
		m.logger.Warn("failed to delete file", zap.String("path", filePath), zap.Error(err))
		return false
	}
	m.logger.Info("deleted file", zap.String("path", filePath))
	return true
}

// DiskUsage 磁盘使用情况
type DiskUsage struct {
	Total       uint64  // 总空间(字节)
	Available   uint64  // 可用空间(字节)
	Used        uint64  // 已用空间(字节)
	UsedPercent float64 // 使用百分比
}

// CheckDiskSpace 检查磁盘空间
func (m *FileManager) CheckDiskSpace(path string) (*DiskUsage, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return nil, fmt.Errorf("failed to get disk stats: %w", err)
	}

	total := stat.Blocks * uint64(stat.Bsize)
	available := stat.Bavail * uint64(stat.Bsize)
	used := total - available
	usedPercent := 0.0
	if total > 0 {
		usedPercent = float64(used) / float64(total) * 100
	}

	return &DiskUsage{
		Total:       total,
		Available:   available,
		Used:        used,
		UsedPercent: usedPercent,
	}, nil
}

// EnsureCapacity 磁盘使用率超过阈值时拒绝写入; 无法获取使用率时放行
func (m *FileManager) EnsureCapacity() error {
	if m.maxDiskUsage <= 0 {
		return nil
	}
	usage, err := m.CheckDiskSpace(m.paths.BaseDir())
	if err != nil {
		m.logger.Warn("disk usage unavailable", zap.Error(err))
		return nil
	}
	if usage.UsedPercent > m.maxDiskUsage {
		m.logger.Warn("disk usage above threshold",
			zap.Float64("used_percent", usage.UsedPercent),
			zap.Float64("threshold", m.maxDiskUsage))
		return fmt.Errorf("%w: %.1f%% used", utils.ErrDiskFull, usage.UsedPercent)
	}
	return nil
}

// Write 在文件类型目录下写入 {name}.{ext}, 写入前检查磁盘空间
func (m *FileManager) Write(ft models.FileType, name, ext string, r io.Reader) (string, error) {
	if err := m.EnsureCapacity(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(m.paths.Dir(ft), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	dest := m.paths.Path(ft, name, ext)
	if err := writeAtomic(dest, r); err != nil {
		return "", err
	}
	return dest, nil
}
