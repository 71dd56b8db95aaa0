package service

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fastmedia/gateway/internal/cleanup"
	"fastmedia/gateway/internal/config"
	"fastmedia/gateway/internal/media"
	"fastmedia/gateway/internal/models"
	"fastmedia/gateway/internal/storage"
	"fastmedia/gateway/internal/utils"
	"fastmedia/gateway/internal/worker"
	"fastmedia/gateway/internal/ytdlp"
)

// ErrInvalidFileType 文件类型不在 video/bgm/thumbnail/text 之内
var ErrInvalidFileType = errors.New("invalid file type")

const sourceSuffix = "-source"

// URLNormalizer URL 标准化
type URLNormalizer interface {
	Normalize(ctx context.Context, raw string) string
}

// Classifier 平台识别
type Classifier interface {
	Detect(rawURL string) models.Platform
}

// Resolver 策略链解析
type Resolver interface {
	Resolve(ctx context.Context, url string, platform models.Platform) (*models.VideoAsset, error)
	Client(platform models.Platform) *http.Client
	EngineOptions(ctx context.Context, asset *models.VideoAsset) ytdlp.Options
}

// GatewayService 媒体获取服务: 标准化、识别、解析、抓取及衍生产物
type GatewayService struct {
	cfg        *config.Config
	normalizer URLNormalizer
	classifier Classifier
	resolver   Resolver
	fetcher    *storage.Fetcher
	files      *storage.FileManager
	decoder    media.Decoder
	reaper     *cleanup.Reaper
	pool       *worker.Pool
	progress   worker.Publisher
	logger     *zap.Logger
}

// NewGatewayService 创建服务
func NewGatewayService(
	cfg *config.Config,
	normalizer URLNormalizer,
	classifier Classifier,
	resolver Resolver,
	fetcher *storage.Fetcher,
	files *storage.FileManager,
	decoder media.Decoder,
	progress worker.Publisher,
	logger *zap.Logger,
) *GatewayService {
	if progress == nil {
		progress = worker.NoopPublisher{}
	}
	return &GatewayService{
		cfg:        cfg,
		normalizer: normalizer,
		classifier: classifier,
		resolver:   resolver,
		fetcher:    fetcher,
		files:      files,
		decoder:    decoder,
		reaper:     cleanup.NewReaper(logger),
		pool:       worker.NewPool(cfg.Batch.MaxConcurrent, logger),
		progress:   progress,
		logger:     logger,
	}
}

// MaxBatchSize 单次批处理最多URL数
func (s *GatewayService) MaxBatchSize() int {
	return s.cfg.Batch.MaxURLs
}

// resolved 单条URL的解析上下文
type resolved struct {
	raw       string
	processed string
	platform  models.Platform
	asset     *models.VideoAsset
}

// prepare 标准化、识别并解析; 不支持的平台在策略链之前失败
func (s *GatewayService) prepare(ctx context.Context, raw string) (*resolved, error) {
	r := &resolved{raw: raw}
	r.processed = s.normalizer.Normalize(ctx, raw)
	r.platform = s.classifier.Detect(r.processed)

	s.logger.Info("resolving",
		zap.String("url", raw),
		zap.String("processed_url", r.processed),
		zap.String("platform", string(r.platform)))

	asset, err := s.resolver.Resolve(ctx, r.processed, r.platform)
	if err != nil {
		return r, err
	}
	r.asset = asset
	return r, nil
}

func (s *GatewayService) source(ctx context.Context, r *resolved) storage.Source {
	return storage.Source{
		Asset:         r.asset,
		Client:        s.resolver.Client(r.platform),
		EngineOptions: s.resolver.EngineOptions(ctx, r.asset),
	}
}

// failed 构造失败结果, 错误信息为面向用户的分类文本
func (s *GatewayService) failed(r *resolved, err error) models.FetchResult {
	kind := utils.KindOf(err)
	s.logger.Warn("request failed",
		zap.String("url", r.raw),
		zap.String("platform", string(r.platform)),
		zap.String("kind", string(kind)),
		zap.Error(err))
	res := models.Failed(r.raw, r.platform, string(kind), utils.UserMessage(err))
	res.ProcessedURL = r.processed
	return res
}

// succeeded 构造成功结果
func (s *GatewayService) succeeded(r *resolved, path string) models.FetchResult {
	a := r.asset
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	return models.FetchResult{
		URL:              r.raw,
		ProcessedURL:     r.processed,
		Status:           models.StatusSuccess,
		Title:            a.Title,
		Platform:         r.platform,
		TempFilePath:     path,
		DownloadFilename: storage.DownloadFilename(a.Tag(), a.Title, a.ContentID, ext),
		Filesize:         s.files.Size(path),
		Duration:         a.Duration,
		Uploader:         a.Uploader,
		Method:           a.Strategy,
	}
}

// ResolveAndFetch 解析并下载单个URL
func (s *GatewayService) ResolveAndFetch(ctx context.Context, raw string) models.FetchResult {
	r, err := s.prepare(ctx, raw)
	if err != nil {
		return s.failed(r, err)
	}
	path, err := s.fetcher.FetchInto(ctx, s.source(ctx, r), models.FileTypeVideo)
	if err != nil {
		return s.failed(r, err)
	}
	return s.succeeded(r, path)
}

// ResolveAndFetchBatch 批量下载; 结果与输入等长同序, 单条失败不影响其他条目
func (s *GatewayService) ResolveAndFetchBatch(ctx context.Context, urls []string) []models.FetchResult {
	return s.runBatch(ctx, "download", urls, s.ResolveAndFetch)
}

// runBatch 有界并发执行, 按下标写回结果
func (s *GatewayService) runBatch(ctx context.Context, op string, urls []string, fn func(context.Context, string) models.FetchResult) []models.FetchResult {
	batchID := uuid.NewString()
	results := make([]models.FetchResult, len(urls))
	for i, u := range urls {
		// 未能执行(取消或异常)的条目保留此结果
		results[i] = models.Failed(u, "", string(utils.KindGeneric), utils.KindGeneric.Message())
	}

	start := time.Now()
	var finished int32
	itemTimeout := s.cfg.Batch.GetItemTimeout()

	s.pool.Run(ctx, len(urls), func(ctx context.Context, i int) {
		if itemTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, itemTimeout)
			defer cancel()
		}
		res := fn(ctx, urls[i])
		results[i] = res

		done := int(atomic.AddInt32(&finished, 1))
		msg := &models.ProgressMessage{
			BatchID:  batchID,
			Index:    i,
			Total:    len(urls),
			URL:      urls[i],
			Status:   res.Status,
			Message:  res.Error,
			Finished: done,
		}
		if err := s.progress.Publish(context.WithoutCancel(ctx), msg); err != nil {
			s.logger.Debug("progress publish failed", zap.Error(err))
		}
	})

	ok := 0
	for _, r := range results {
		if r.Status == models.StatusSuccess {
			ok++
		}
	}
	s.logger.Info("batch finished",
		zap.String("op", op),
		zap.String("batch_id", batchID),
		zap.Int("total", len(urls)),
		zap.Int("succeeded", ok),
		zap.Duration("elapsed", time.Since(start)))
	return results
}

// GetVideoInfo 只解析不下载
func (s *GatewayService) GetVideoInfo(ctx context.Context, raw string) (*models.VideoInfo, error) {
	r, err := s.prepare(ctx, raw)
	if err != nil {
		return nil, err
	}
	a := r.asset
	return &models.VideoInfo{
		Title:        a.Title,
		Duration:     a.Duration,
		Uploader:     a.Uploader,
		Thumbnail:    a.ThumbnailURL,
		Platform:     r.platform,
		OriginalURL:  raw,
		ProcessedURL: r.processed,
		Strategy:     a.Strategy,
	}, nil
}

// TempFilePath 校验文件类型与路径, 返回存储目录内的路径
func (s *GatewayService) TempFilePath(path, fileType string) (string, error) {
	ft, ok := models.ParseFileType(fileType)
	if !ok {
		return "", ErrInvalidFileType
	}
	return s.files.Paths().Contains(ft, path)
}

// CheckTempFile 查询临时文件状态; 文件不存在不是错误
func (s *GatewayService) CheckTempFile(path, fileType string) (models.TempFileStatus, error) {
	p, err := s.TempFilePath(path, fileType)
	if err != nil {
		return models.TempFileStatus{}, err
	}
	return s.files.Status(p), nil
}

// CleanupTempFile 删除临时文件; 重复删除返回 false 而不是错误
func (s *GatewayService) CleanupTempFile(path, fileType string) (bool, error) {
	p, err := s.TempFilePath(path, fileType)
	if err != nil {
		return false, err
	}
	return s.files.Cleanup(p), nil
}

// ReapExpired 立即清理过期临时文件
func (s *GatewayService) ReapExpired() (cleanup.Result, error) {
	return s.reaper.Reap(s.files.Paths().BaseDir(), s.cfg.Cleanup.GetMaxAge())
}

// derivedPath 由中间文件路径得到成品路径: 去掉后缀并替换扩展名
func derivedPath(dir, source, ext string) string {
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	base = strings.TrimSuffix(base, sourceSuffix)
	return filepath.Join(dir, base+"."+ext)
}
