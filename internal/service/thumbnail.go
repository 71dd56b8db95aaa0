package service

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"go.uber.org/zap"
	_ "golang.org/x/image/webp"

	"fastmedia/gateway/internal/models"
	"fastmedia/gateway/internal/utils"
)

var imageExts = map[string]string{
	"jpeg": "jpg",
	"png":  "png",
	"gif":  "gif",
	"webp": "webp",
}

// ExtractThumbnail 获取封面: 时间点为0且平台提供封面时优先使用原图, 否则从视频截帧
func (s *GatewayService) ExtractThumbnail(ctx context.Context, raw string, ts float64) models.FetchResult {
	r, err := s.prepare(ctx, raw)
	if err != nil {
		return s.failed(r, err)
	}
	a := r.asset
	dir := s.files.Paths().Dir(models.FileTypeThumbnail)

	if ts <= 0 && a.ThumbnailURL != "" && !a.Sandbox {
		path, err := s.originalThumbnail(ctx, r, dir)
		if err == nil {
			return s.succeeded(r, path)
		}
		s.logger.Warn("original thumbnail unusable, extracting frame", zap.String("url", raw), zap.Error(err))
	}

	src := s.source(ctx, r)
	src.NameSuffix = sourceSuffix
	input, err := s.fetcher.FetchInto(ctx, src, models.FileTypeThumbnail)
	if err != nil {
		return s.failed(r, err)
	}
	defer s.files.Cleanup(input)

	out, err := s.decoder.ExtractFrame(ctx, input, clampTimestamp(ts, a.Duration), derivedPath(dir, input, "jpg"))
	if err != nil {
		return s.failed(r, err)
	}
	return s.succeeded(r, out)
}

// ExtractThumbnailBatch 批量获取封面
func (s *GatewayService) ExtractThumbnailBatch(ctx context.Context, urls []string, ts float64) []models.FetchResult {
	return s.runBatch(ctx, "thumbnail", urls, func(ctx context.Context, u string) models.FetchResult {
		return s.ExtractThumbnail(ctx, u, ts)
	})
}

// clampTimestamp 超过时长时取中点; 时长未知时原样使用
func clampTimestamp(ts, duration float64) float64 {
	if ts < 0 {
		return 0
	}
	if duration > 0 && ts > duration {
		return duration / 2
	}
	return ts
}

// originalThumbnail 下载平台封面并校验确为图片
func (s *GatewayService) originalThumbnail(ctx context.Context, r *resolved, dir string) (string, error) {
	a := r.asset
	if err := s.files.EnsureCapacity(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	paths := s.files.Paths()
	name := paths.Name(a.Tag(), a.ContentID)
	tmp, _, err := s.fetcher.Download(ctx, s.resolver.Client(r.platform), a.ThumbnailURL, paths.Path(models.FileTypeThumbnail, name+sourceSuffix, "img"))
	if err != nil {
		return "", err
	}

	format, err := imageFormat(tmp)
	if err != nil {
		s.files.Cleanup(tmp)
		return "", err
	}
	dest := paths.Path(models.FileTypeThumbnail, name, imageExts[format])
	if err := os.Rename(tmp, dest); err != nil {
		s.files.Cleanup(tmp)
		return "", err
	}
	return dest, nil
}

func imageFormat(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	_, format, err := image.DecodeConfig(f)
	if err != nil {
		return "", fmt.Errorf("%w: thumbnail is not an image: %v", utils.ErrNoPlayURL, err)
	}
	if _, ok := imageExts[format]; !ok {
		return "", fmt.Errorf("%w: unsupported image format %s", utils.ErrNoPlayURL, format)
	}
	return format, nil
}
