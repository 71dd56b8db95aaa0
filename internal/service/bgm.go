package service

import (
	"context"

	"go.uber.org/zap"

	"fastmedia/gateway/internal/models"
)

const audioFormat = "bestaudio/best"

// ExtractBGM 解析并提取背景音乐
func (s *GatewayService) ExtractBGM(ctx context.Context, raw string) models.FetchResult {
	r, err := s.prepare(ctx, raw)
	if err != nil {
		return s.failed(r, err)
	}

	src := s.source(ctx, r)
	src.EngineOptions.Format = audioFormat
	src.EngineOptions.MergeFormat = ""
	src.NameSuffix = sourceSuffix

	input, err := s.fetcher.FetchInto(ctx, src, models.FileTypeBGM)
	if err != nil {
		return s.failed(r, err)
	}
	defer s.files.Cleanup(input)

	dir := s.files.Paths().Dir(models.FileTypeBGM)
	out, err := s.decoder.ExtractAudio(ctx, input, derivedPath(dir, input, "mp3"))
	if err != nil {
		return s.failed(r, err)
	}

	s.logger.Info("bgm extracted", zap.String("url", raw), zap.String("path", out))
	return s.succeeded(r, out)
}

// ExtractBGMBatch 批量提取背景音乐
func (s *GatewayService) ExtractBGMBatch(ctx context.Context, urls []string) []models.FetchResult {
	return s.runBatch(ctx, "bgm", urls, s.ExtractBGM)
}
