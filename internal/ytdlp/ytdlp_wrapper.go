package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"fastmedia/gateway/internal/config"
	"fastmedia/gateway/internal/utils"
)

// VideoInfo yt-dlp返回的视频信息
type VideoInfo struct {
	ID                string                     `json:"id"`
	Title             string                     `json:"title"`
	Description       string                     `json:"description"`
	Tags              []string                   `json:"tags"`
	Duration          float64                    `json:"duration"`
	Thumbnail         string                     `json:"thumbnail"`
	Uploader          string                     `json:"uploader"`
	Extractor         string                     `json:"extractor"`
	ExtractorKey      string                     `json:"extractor_key"`
	WebpageURL        string                     `json:"webpage_url"`
	URL               string                     `json:"url"`
	Ext               string                     `json:"ext"`
	VCodec            string                     `json:"vcodec"`
	Height            int                        `json:"height"`
	Timestamp         *float64                   `json:"timestamp"`
	Formats           []utils.VideoFormat        `json:"formats"`
	Subtitles         map[string][]SubtitleTrack `json:"subtitles"`
	AutomaticCaptions map[string][]SubtitleTrack `json:"automatic_captions"`
}

// SubtitleTrack 单条字幕轨道, 同一语言可有多种格式
type SubtitleTrack struct {
	Ext  string `json:"ext"`
	URL  string `json:"url"`
	Name string `json:"name"`
}

// Options 单次调用的引擎参数
type Options struct {
	Format                   string
	Headers                  map[string]string
	NoPlaylist               bool
	PlaylistEnd              int
	Retries                  int
	FragmentRetries          int
	SocketTimeout            int
	SkipUnavailableFragments bool
	IgnoreErrors             bool
	Proxy                    string
	CookieFile               string
	MergeFormat              string
	ExtraArgs                []string
}

// OptionsFor 由平台配置生成引擎参数
func OptionsFor(pc *config.PlatformConfig) Options {
	if pc == nil {
		return Options{}
	}
	opts := Options{
		Format:                   pc.Format,
		Headers:                  pc.Headers,
		NoPlaylist:               pc.NoPlaylist,
		PlaylistEnd:              pc.PlaylistEnd,
		Retries:                  pc.Retries,
		FragmentRetries:          pc.FragmentRetries,
		SocketTimeout:            pc.SocketTimeout,
		SkipUnavailableFragments: pc.SkipUnavailableFragments,
		IgnoreErrors:             pc.IgnoreErrors,
		CookieFile:               pc.CookieFile,
		ExtraArgs:                pc.ExtraArgs,
	}
	if strings.Contains(pc.Format, "+") {
		opts.MergeFormat = "mp4"
	}
	return opts
}

// Engine 通用视频提取引擎
type Engine interface {
	ExtractInfo(ctx context.Context, url string, opts Options) (*VideoInfo, error)
	// Download 下载到 outputBase.<ext>, 返回最终文件路径
	Download(ctx context.Context, url string, opts Options, outputBase string) (string, error)
}

// Wrapper yt-dlp命令封装器
type Wrapper struct {
	binaryPath      string
	timeout         time.Duration
	downloadTimeout time.Duration
	cookiesDir      string
	defaultArgs     []string
	logger          *zap.Logger
}

// NewWrapper 创建yt-dlp封装器
func NewWrapper(cfg *config.YTDLPConfig, logger *zap.Logger) *Wrapper {
	return &Wrapper{
		binaryPath:      cfg.BinaryPath,
		timeout:         cfg.GetTimeout(),
		downloadTimeout: cfg.GetDownloadTimeout(),
		cookiesDir:      cfg.CookiesDir,
		defaultArgs:     cfg.DefaultArgs,
		logger:          logger,
	}
}

// buildArgs 构建命令参数
func (w *Wrapper) buildArgs(url string, opts Options) []string {
	var args []string

	// 添加默认参数
	args = append(args, w.defaultArgs...)

	if opts.Format != "" {
		args = append(args, "-f", opts.Format)
	}
	if opts.NoPlaylist {
		args = append(args, "--no-playlist")
	}
	if opts.PlaylistEnd > 0 {
		args = append(args, "--playlist-end", strconv.Itoa(opts.PlaylistEnd))
	}
	if opts.Retries > 0 {
		args = append(args, "--retries", strconv.Itoa(opts.Retries))
	}
	if opts.FragmentRetries > 0 {
		args = append(args, "--fragment-retries", strconv.Itoa(opts.FragmentRetries))
	}
	if opts.SocketTimeout > 0 {
		args = append(args, "--socket-timeout", strconv.Itoa(opts.SocketTimeout))
	}
	if opts.SkipUnavailableFragments {
		args = append(args, "--skip-unavailable-fragments")
	}
	if opts.IgnoreErrors {
		args = append(args, "--ignore-errors")
	}

	// 请求头按名称排序,保证参数稳定
	keys := make([]string, 0, len(opts.Headers))
	for k := range opts.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--add-header", k+":"+opts.Headers[k])
	}

	// 添加代理 (如果配置了)
	if opts.Proxy != "" {
		args = append(args, "--proxy", opts.Proxy)
	}

	// 添加 cookie 文件 (如果存在)
	if cookieFile := w.cookiePath(opts.CookieFile); cookieFile != "" {
		if _, err := os.Stat(cookieFile); err == nil {
			args = append(args, "--cookies", cookieFile)
		}
	}

	// 添加额外参数 (平台特定)
	args = append(args, opts.ExtraArgs...)

	return args
}

func (w *Wrapper) cookiePath(name string) string {
	if name == "" || filepath.IsAbs(name) || w.cookiesDir == "" {
		return name
	}
	return filepath.Join(w.cookiesDir, name)
}

// ExtractInfo 提取视频信息(不下载)
func (w *Wrapper) ExtractInfo(ctx context.Context, url string, opts Options) (*VideoInfo, error) {
	args := append([]string{"--dump-json", "--skip-download"}, w.buildArgs(url, opts)...)
	args = append(args, "--", url)

	stdout, err := w.run(ctx, w.timeout, args)
	if err != nil {
		return nil, err
	}

	line := firstJSONLine(stdout)
	if line == nil {
		return nil, fmt.Errorf("%w: empty yt-dlp output", utils.ErrNoPlayURL)
	}

	var info VideoInfo
	if err := json.Unmarshal(line, &info); err != nil {
		return nil, fmt.Errorf("failed to parse yt-dlp output: %w", err)
	}
	return &info, nil
}

// Download 下载视频到 outputBase.<ext>
func (w *Wrapper) Download(ctx context.Context, url string, opts Options, outputBase string) (string, error) {
	args := []string{
		"--no-simulate",
		"--print", "after_move:filepath",
		"--no-part",
		"--no-mtime",
		"-o", outputBase + ".%(ext)s",
	}
	if opts.MergeFormat != "" {
		args = append(args, "--merge-output-format", opts.MergeFormat)
	}
	args = append(args, w.buildArgs(url, opts)...)
	args = append(args, "--", url)

	stdout, err := w.run(ctx, w.downloadTimeout, args)
	if err != nil {
		return "", err
	}

	if path := lastLine(stdout); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	// 未打印路径时按前缀查找
	matches, _ := filepath.Glob(outputBase + ".*")
	for _, m := range matches {
		if fi, err := os.Stat(m); err == nil && fi.Mode().IsRegular() && fi.Size() > 0 {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: yt-dlp produced no file", utils.ErrYTDLPFailed)
}

func (w *Wrapper) run(ctx context.Context, timeout time.Duration, args []string) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, w.binaryPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	w.logger.Debug("yt-dlp finished",
		zap.Duration("elapsed", time.Since(start)),
		zap.Bool("ok", err == nil))
	if err == nil {
		return stdout.Bytes(), nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: yt-dlp exceeded %s", utils.ErrTimeout, timeout)
	}
	if errors.Is(err, exec.ErrNotFound) {
		return nil, fmt.Errorf("%w: %v", utils.ErrYTDLPNotFound, err)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	msg := strings.TrimSpace(stderr.String())
	if msg == "" {
		msg = err.Error()
	}
	// ignore-errors 模式下可能仍有可用输出
	if stdout.Len() > 0 && firstJSONLine(stdout.Bytes()) != nil {
		w.logger.Warn("yt-dlp exited with errors but produced output", zap.String("stderr", utils.TruncateString(msg, 300)))
		return stdout.Bytes(), nil
	}
	return nil, fmt.Errorf("%w: %s", utils.MapYTDLPError(msg), utils.TruncateString(msg, 500))
}

func firstJSONLine(out []byte) []byte {
	for _, line := range bytes.Split(out, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) > 0 && line[0] == '{' {
			return line
		}
	}
	return nil
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
