package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"fastmedia/gateway/internal/config"
	"fastmedia/gateway/internal/utils"
)

// Decoder 媒体解码服务: 输入本地文件, 输出新文件路径
type Decoder interface {
	// ExtractAudio 提取音轨为 mp3
	ExtractAudio(ctx context.Context, src, dest string) (string, error)
	// ExtractFrame 截取 ts 秒处的一帧为 jpg
	ExtractFrame(ctx context.Context, src string, ts float64, dest string) (string, error)
}

// FFmpeg 基于 ffmpeg 命令行的解码器
type FFmpeg struct {
	binaryPath string
	quality    string
	timeout    time.Duration
	logger     *zap.Logger
}

// NewFFmpeg 创建解码器
func NewFFmpeg(cfg *config.FFmpegConfig, logger *zap.Logger) *FFmpeg {
	quality := strings.TrimSuffix(strings.ToLower(cfg.AudioQuality), "k")
	if _, err := strconv.Atoi(quality); err != nil {
		quality = "192"
	}
	return &FFmpeg{
		binaryPath: cfg.BinaryPath,
		quality:    quality,
		timeout:    time.Duration(cfg.Timeout) * time.Second,
		logger:     logger,
	}
}

func (f *FFmpeg) audioArgs(src, dest string) []string {
	return []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", src,
		"-vn",
		"-acodec", "libmp3lame",
		"-b:a", f.quality + "k",
		dest,
	}
}

func frameArgs(src string, ts float64, dest string) []string {
	if ts < 0 {
		ts = 0
	}
	return []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-ss", strconv.FormatFloat(ts, 'f', 3, 64),
		"-i", src,
		"-frames:v", "1",
		"-q:v", "2",
		dest,
	}
}

// ExtractAudio 提取音轨
func (f *FFmpeg) ExtractAudio(ctx context.Context, src, dest string) (string, error) {
	if err := f.run(ctx, f.audioArgs(src, dest)); err != nil {
		return "", err
	}
	return checkOutput(dest)
}

// ExtractFrame 截取一帧
func (f *FFmpeg) ExtractFrame(ctx context.Context, src string, ts float64, dest string) (string, error) {
	if err := f.run(ctx, frameArgs(src, ts, dest)); err != nil {
		return "", err
	}
	return checkOutput(dest)
}

func (f *FFmpeg) run(ctx context.Context, args []string) error {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, f.binaryPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	f.logger.Debug("ffmpeg finished",
		zap.Duration("elapsed", time.Since(start)),
		zap.Bool("ok", err == nil))
	if err == nil {
		return nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: ffmpeg exceeded %s", utils.ErrTimeout, f.timeout)
	}
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%w: %v", utils.ErrFFmpegFailed, err)
	}
	msg := strings.TrimSpace(stderr.String())
	if msg == "" {
		msg = err.Error()
	}
	return fmt.Errorf("%w: %s", utils.ErrFFmpegFailed, utils.TruncateString(msg, 500))
}

func checkOutput(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		return "", fmt.Errorf("%w: no output at %s", utils.ErrFFmpegFailed, path)
	}
	return path, nil
}
