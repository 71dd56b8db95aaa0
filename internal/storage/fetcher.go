package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"fastmedia/gateway/internal/httpclient"
	"fastmedia/gateway/internal/models"
	"fastmedia/gateway/internal/utils"
	"fastmedia/gateway/internal/ytdlp"
)

const sandboxPayload = "fastmedia sandbox placeholder\n"

// Source 抓取来源
type Source struct {
	Asset *models.VideoAsset
	// Client 直链下载使用的平台客户端
	Client *http.Client
	// EngineOptions 引擎下载参数, 与解析时一致
	EngineOptions ytdlp.Options
	// NameSuffix 中间文件后缀, 避免与同一内容的成品文件重名
	NameSuffix string
}

// Fetcher 把解析结果的字节流写入临时目录
type Fetcher struct {
	files   *FileManager
	engine  ytdlp.Engine
	timeout time.Duration
	logger  *zap.Logger
}

// NewFetcher 创建抓取器; timeout 为单次下载上限
func NewFetcher(files *FileManager, engine ytdlp.Engine, timeout time.Duration, logger *zap.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &Fetcher{
		files:   files,
		engine:  engine,
		timeout: timeout,
		logger:  logger,
	}
}

// FetchInto 抓取资源到指定类型目录, 返回本地路径
func (f *Fetcher) FetchInto(ctx context.Context, src Source, ft models.FileType) (string, error) {
	asset := src.Asset
	if asset == nil {
		return "", utils.ErrNoPlayURL
	}
	if err := f.files.EnsureCapacity(); err != nil {
		return "", err
	}

	paths := f.files.Paths()
	dir := paths.Dir(ft)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	name := paths.Name(asset.Tag(), asset.ContentID) + SanitizeFilename(src.NameSuffix)

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	switch asset.Origin {
	case models.OriginSandbox:
		dest := paths.Path(ft, name, "mp4")
		if err := writeAtomic(dest, strings.NewReader(sandboxPayload)); err != nil {
			return "", err
		}
		return dest, nil

	case models.OriginEngine:
		return f.fetchEngine(ctx, asset.PageURL, src.EngineOptions, dir, name)
	}

	var lastErr error
	for _, cand := range asset.Candidates {
		var (
			p   string
			err error
		)
		if isManifestURL(cand.URL) {
			p, err = f.fetchEngine(ctx, cand.URL, src.EngineOptions, dir, name)
		} else {
			dest := filepath.Join(dir, name)
			if ext := candidateExt(cand); ext != "" {
				dest = paths.Path(ft, name, ext)
			}
			p, _, err = f.Download(ctx, src.Client, cand.URL, dest)
		}
		if err == nil {
			return p, nil
		}
		f.logger.Warn("candidate fetch failed",
			zap.String("url", utils.TruncateString(cand.URL, 120)),
			zap.String("quality", cand.Quality),
			zap.Error(err))
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr == nil {
		lastErr = utils.ErrNoPlayURL
	}
	return "", lastErr
}

// fetchEngine 引擎下载到独立暂存目录, 完成后移入目标目录
func (f *Fetcher) fetchEngine(ctx context.Context, target string, opts ytdlp.Options, dir, name string) (string, error) {
	if f.engine == nil {
		return "", utils.ErrYTDLPNotFound
	}
	staging, err := os.MkdirTemp(dir, ".staging-")
	if err != nil {
		return "", fmt.Errorf("failed to create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	out, err := f.engine.Download(ctx, target, opts, filepath.Join(staging, name))
	if err != nil {
		return "", err
	}
	dest := filepath.Join(dir, filepath.Base(out))
	if err := os.Rename(out, dest); err != nil {
		return "", fmt.Errorf("failed to move download: %w", err)
	}
	f.logger.Info("engine download finished", zap.String("path", dest), zap.Int64("bytes", f.files.Size(dest)))
	return dest, nil
}

// Download 流式下载到 dest, 先写临时文件再改名, 返回最终路径和字节数
// dest 没有扩展名时按响应的 Content-Type 补全, 无法判断时用 mp4
func (f *Fetcher) Download(ctx context.Context, client *http.Client, mediaURL, dest string) (string, int64, error) {
	if client == nil {
		client = http.DefaultClient
	}
	// 下载时长由 ctx 控制, 不受接口超时约束
	client = httpclient.WithTimeout(client, 0, false)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", utils.ErrInvalidURL, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", 0, fmt.Errorf("%w: %v", utils.ErrTimeout, err)
		}
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return "", 0, downloadStatusError(resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); strings.HasPrefix(ct, "text/html") {
		return "", 0, fmt.Errorf("%w: got html instead of media", utils.ErrAPILimited)
	}

	if filepath.Ext(dest) == "" {
		ext := ExtFromContentType(resp.Header.Get("Content-Type"))
		dest += "." + normalizeExt(ext)
	}

	counter := &countingReader{r: resp.Body}
	if err := writeAtomic(dest, counter); err != nil {
		if ctx.Err() != nil {
			return "", 0, fmt.Errorf("%w: %v", utils.ErrTimeout, err)
		}
		return "", 0, err
	}
	if counter.n == 0 {
		os.Remove(dest)
		return "", 0, fmt.Errorf("%w: empty response body", utils.ErrNoPlayURL)
	}

	f.logger.Info("download finished", zap.String("path", dest), zap.Int64("bytes", counter.n))
	return dest, counter.n, nil
}

// writeAtomic 写入同目录临时文件后改名, 失败时不留下半截文件
func writeAtomic(dest string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("failed to chmod file: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		cleanup()
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func downloadStatusError(code int) error {
	switch code {
	case http.StatusNotFound, http.StatusGone:
		return fmt.Errorf("%w: http %d", utils.ErrVideoNotFound, code)
	case http.StatusForbidden, http.StatusTooManyRequests:
		return fmt.Errorf("%w: http %d", utils.ErrAPILimited, code)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: http %d", utils.ErrVideoPrivate, code)
	default:
		return fmt.Errorf("unexpected status: http %d", code)
	}
}

func isManifestURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	return ext == ".m3u8" || ext == ".mpd"
}

// candidateExt 候选的扩展名, 未知时返回空串
func candidateExt(c models.MediaCandidate) string {
	if c.Ext != "" {
		return normalizeExt(c.Ext)
	}
	if u, err := url.Parse(c.URL); err == nil {
		if ext := strings.TrimPrefix(path.Ext(u.Path), "."); ext != "" {
			return normalizeExt(ext)
		}
	}
	return ""
}

// ExtFromContentType 按 Content-Type 推断扩展名
func ExtFromContentType(ct string) string {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	switch mt {
	case "image/jpeg":
		return "jpg"
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	case "video/mp4":
		return "mp4"
	case "video/webm":
		return "webm"
	case "audio/mpeg":
		return "mp3"
	case "audio/mp4":
		return "m4a"
	}
	return ""
}
