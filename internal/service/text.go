package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"fastmedia/gateway/internal/models"
	"fastmedia/gateway/internal/subtitle"
)

const maxTags = 10

// ExtractText 提取文案: 标题、作者、简介、标签及字幕, 写入文本文件
func (s *GatewayService) ExtractText(ctx context.Context, raw string) models.FetchResult {
	r, err := s.prepare(ctx, raw)
	if err != nil {
		return s.failed(r, err)
	}
	a := r.asset

	subs := s.subtitleText(ctx, r)
	content := formatText(a, subs)

	name := s.files.Paths().Name(a.Tag(), a.ContentID)
	path, err := s.files.Write(models.FileTypeText, name, "txt", strings.NewReader(content))
	if err != nil {
		return s.failed(r, err)
	}

	s.logger.Info("text extracted",
		zap.String("url", raw),
		zap.String("path", path),
		zap.Bool("has_subtitles", subs != ""))
	res := s.succeeded(r, path)
	res.TextContent = content
	res.HasSubtitles = subs != ""
	return res
}

// ExtractTextBatch 批量提取文案
func (s *GatewayService) ExtractTextBatch(ctx context.Context, urls []string) []models.FetchResult {
	return s.runBatch(ctx, "text", urls, s.ExtractText)
}

// subtitleText 下载首选字幕; 字幕缺失或下载失败时只记录日志, 文案照常生成
func (s *GatewayService) subtitleText(ctx context.Context, r *resolved) string {
	sub := subtitle.Pick(r.asset.Subtitles, subtitle.DefaultLanguages)
	if sub == nil {
		return ""
	}
	text, err := subtitle.Fetch(ctx, s.resolver.Client(r.platform), sub)
	if err != nil {
		s.logger.Warn("subtitle download failed",
			zap.String("url", r.raw),
			zap.String("lang", sub.Lang),
			zap.Error(err))
		return ""
	}
	return text
}

// formatText 文案格式, 空字段不输出
func formatText(a *models.VideoAsset, subs string) string {
	var parts []string
	if a.Title != "" {
		parts = append(parts, "标题: "+a.Title)
	}
	if a.Uploader != "" {
		parts = append(parts, "作者: "+a.Uploader)
	}
	if a.Description != "" {
		parts = append(parts, "\n描述:\n"+a.Description)
	}
	if len(a.Tags) > 0 {
		tags := a.Tags
		if len(tags) > maxTags {
			tags = tags[:maxTags]
		}
		parts = append(parts, "\n标签: "+strings.Join(tags, ", "))
	}
	if subs != "" {
		parts = append(parts, "\n字幕内容:\n"+subs)
	}
	return strings.Join(parts, "\n")
}
