package adapter

import (
	"context"
	"sort"
	"strings"

	"fastmedia/gateway/internal/models"
	"fastmedia/gateway/internal/proxy"
	"fastmedia/gateway/internal/utils"
	"fastmedia/gateway/internal/ytdlp"
)

// EngineStrategy 委托通用提取引擎解析
type EngineStrategy struct {
	name     string
	engine   ytdlp.Engine
	opts     ytdlp.Options
	proxies  proxy.Provider
	variants func(*Target) []string
}

// NewEngineStrategy 创建引擎策略
func NewEngineStrategy(name string, engine ytdlp.Engine, opts ytdlp.Options, proxies proxy.Provider) *EngineStrategy {
	return &EngineStrategy{
		name:    name,
		engine:  engine,
		opts:    opts,
		proxies: proxies,
	}
}

// WithVariants 依次尝试多个地址形式, 第一个成功者胜出
func (s *EngineStrategy) WithVariants(fn func(*Target) []string) *EngineStrategy {
	s.variants = fn
	return s
}

func (s *EngineStrategy) Name() string { return s.name }

// Options 下载时复用与解析相同的引擎参数
func (s *EngineStrategy) Options(ctx context.Context) ytdlp.Options {
	opts := s.opts
	if s.proxies != nil {
		if p, err := s.proxies.GetProxy(ctx); err == nil {
			opts.Proxy = p
		}
	}
	return opts
}

func (s *EngineStrategy) Attempt(ctx context.Context, target *Target) (*models.VideoAsset, error) {
	opts := s.Options(ctx)

	urls := []string{target.URL}
	if s.variants != nil {
		urls = s.variants(target)
	}

	lastErr := error(utils.ErrNoPlayURL)
	seen := make(map[string]bool, len(urls))
	for _, u := range urls {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true

		info, err := s.engine.ExtractInfo(ctx, u, opts)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		return assetFromInfo(info, u), nil
	}
	return nil, lastErr
}

// assetFromInfo 引擎输出转为视频资源, pageURL 为引擎实际解析成功的地址
func assetFromInfo(info *ytdlp.VideoInfo, pageURL string) *models.VideoAsset {
	cands := utils.CandidatesFromFormats(info.Formats)
	if len(cands) == 0 && info.URL != "" {
		cands = append(cands, models.MediaCandidate{
			URL:      info.URL,
			Quality:  utils.QualityLabel(info.Height),
			Codec:    utils.NormalizeCodec(info.VCodec),
			Ext:      info.Ext,
			Delivery: models.DeliveryDirect,
			Height:   info.Height,
		})
	}

	extractor := info.ExtractorKey
	if extractor == "" {
		extractor = info.Extractor
	}
	extractor = strings.ToLower(strings.SplitN(extractor, ":", 2)[0])

	return &models.VideoAsset{
		ContentID:    info.ID,
		Extractor:    extractor,
		Title:        info.Title,
		Description:  info.Description,
		Tags:         info.Tags,
		Duration:     info.Duration,
		Uploader:     info.Uploader,
		ThumbnailURL: info.Thumbnail,
		PageURL:      pageURL,
		Candidates:   utils.RankCandidates(cands, false, 0),
		Subtitles:    subtitlesFromInfo(info),
		Origin:       models.OriginEngine,
	}
}

// subtitlesFromInfo 人工字幕在前, 自动字幕在后, 同类按语言排序
func subtitlesFromInfo(info *ytdlp.VideoInfo) []models.Subtitle {
	var subs []models.Subtitle
	add := func(tracks map[string][]ytdlp.SubtitleTrack, auto bool) {
		langs := make([]string, 0, len(tracks))
		for lang := range tracks {
			langs = append(langs, lang)
		}
		sort.Strings(langs)
		for _, lang := range langs {
			for _, t := range tracks[lang] {
				if t.URL == "" {
					continue
				}
				subs = append(subs, models.Subtitle{Lang: lang, Ext: t.Ext, URL: t.URL, Automatic: auto})
			}
		}
	}
	add(info.Subtitles, false)
	add(info.AutomaticCaptions, true)
	return subs
}
