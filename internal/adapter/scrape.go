package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"fastmedia/gateway/internal/models"
	"fastmedia/gateway/internal/utils"
)

const maxPageSize = 8 << 20

// stateVars 页面内嵌的状态对象
var stateVars = []string{"__INITIAL_STATE__", "__NUXT__", "__APOLLO_STATE__", "__APP_DATA__"}

// mediaKeys 状态对象和页面中承载播放地址的字段, 按优先级排列
var mediaKeys = []string{"playUrl", "srcNoMark", "mp4Url", "masterUrl", "photoUrl", "videoUrl"}

var (
	undefinedValue = regexp.MustCompile(`:\s*undefined\b`)

	mediaKeyPatterns = func() []*regexp.Regexp {
		out := make([]*regexp.Regexp, 0, len(mediaKeys))
		for _, k := range mediaKeys {
			out = append(out, regexp.MustCompile(`"`+k+`"\s*:\s*"([^"]+)"`))
		}
		return out
	}()

	mp4Patterns = []*regexp.Regexp{
		regexp.MustCompile(`"url"\s*:\s*"(https?:[^"]*\.mp4[^"]*?)"`),
		regexp.MustCompile(`"src"\s*:\s*"(https?:[^"]*\.mp4[^"]*?)"`),
		regexp.MustCompile(`data-src="(https?://[^"]*\.mp4[^"]*?)"`),
		regexp.MustCompile(`src="(https?://[^"]*\.mp4[^"]*?)"`),
	}

	titlePatterns = []*regexp.Regexp{
		regexp.MustCompile(`"caption"\s*:\s*"([^"]+)"`),
		regexp.MustCompile(`"title"\s*:\s*"([^"]+)"`),
	}
)

// page 已下载的页面
type page struct {
	html string
	doc  *goquery.Document
}

// scrapeHit 页面中找到的播放地址
type scrapeHit struct {
	url   string
	title string
}

// pageExtractor 按顺序执行的页面提取规则, 第一个返回有效地址者胜出
type pageExtractor struct {
	name    string
	extract func(p *page) scrapeHit
}

var pageExtractors = []pageExtractor{
	{name: "state_json", extract: extractFromState},
	{name: "json_keys", extract: extractFromKeys},
	{name: "media_tags", extract: extractFromTags},
	{name: "mp4_patterns", extract: extractFromPatterns},
}

// ScrapeStrategy 抓取页面并依次执行提取规则
type ScrapeStrategy struct {
	client        *http.Client
	headers       map[string]string
	genericTitles []string
	logger        *zap.Logger
}

// NewScrapeStrategy 创建页面抓取策略, headers 覆盖客户端默认请求头
func NewScrapeStrategy(client *http.Client, headers map[string]string, logger *zap.Logger, genericTitles ...string) *ScrapeStrategy {
	return &ScrapeStrategy{
		client:        client,
		headers:       headers,
		genericTitles: genericTitles,
		logger:        logger,
	}
}

func (s *ScrapeStrategy) Name() string { return "html_scrape" }

func (s *ScrapeStrategy) Attempt(ctx context.Context, target *Target) (*models.VideoAsset, error) {
	p, err := s.fetch(ctx, target.PageURL)
	if err != nil {
		return nil, err
	}

	for _, ex := range pageExtractors {
		hit := ex.extract(p)
		hit.url = utils.DecodeEscapedURL(strings.TrimSpace(hit.url))
		if !utils.IsValidURL(hit.url) {
			continue
		}

		s.logger.Debug("page extractor matched",
			zap.String("extractor", ex.name),
			zap.String("url", target.PageURL))

		title := trimTitle(hit.title, s.genericTitles...)
		if title == "" {
			title = pageTitle(p, s.genericTitles)
		}
		return &models.VideoAsset{
			ContentID:    target.ContentID,
			Extractor:    string(target.Platform),
			Title:        title,
			ThumbnailURL: utils.DecodeEscapedURL(metaContent(p.doc, "og:image")),
			PageURL:      target.PageURL,
			Candidates:   []models.MediaCandidate{candidateFromURL(hit.url)},
			Origin:       models.OriginDirect,
		}, nil
	}

	return nil, fmt.Errorf("%w: no media url in page %s", utils.ErrNoPlayURL, target.PageURL)
}

func (s *ScrapeStrategy) fetch(ctx context.Context, pageURL string) (*page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode); err != nil {
		return nil, fmt.Errorf("%w: fetch page", err)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: parse page: %v", utils.ErrAPILimited, err)
	}
	return &page{html: string(body), doc: doc}, nil
}

// extractFromState 解析内嵌状态对象, 递归查找播放地址
func extractFromState(p *page) scrapeHit {
	var hit scrapeHit
	p.doc.Find("script").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := sel.Text()
		for _, name := range stateVars {
			state, ok := decodeState(text, name)
			if !ok {
				continue
			}
			if h, found := walkState(state); found {
				hit = h
				return false
			}
		}
		return true
	})
	return hit
}

// decodeState 读取 window.<name> = {...} 的第一个 JSON 值
func decodeState(script, name string) (any, bool) {
	idx := strings.Index(script, "window."+name)
	if idx < 0 {
		return nil, false
	}
	rest := script[idx+len("window."+name):]
	eq := strings.Index(rest, "=")
	if eq < 0 {
		return nil, false
	}
	rest = undefinedValue.ReplaceAllString(rest[eq+1:], ":null")

	var v any
	if err := json.NewDecoder(strings.NewReader(rest)).Decode(&v); err != nil {
		return nil, false
	}
	return v, true
}

// walkState 深度优先查找播放地址; 同一对象内按字段优先级, 子对象按键名顺序
func walkState(v any) (scrapeHit, bool) {
	switch node := v.(type) {
	case map[string]any:
		for _, key := range mediaKeys {
			if s, ok := node[key].(string); ok {
				if u := utils.DecodeEscapedURL(s); utils.IsValidURL(u) {
					return scrapeHit{url: u, title: firstString(node, "caption", "title", "desc")}, true
				}
			}
		}
		keys := make([]string, 0, len(node))
		for k := range node {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if h, ok := walkState(node[k]); ok {
				return h, true
			}
		}
	case []any:
		for _, item := range node {
			if h, ok := walkState(item); ok {
				return h, true
			}
		}
	}
	return scrapeHit{}, false
}

// extractFromKeys 直接匹配页面文本中的地址字段
func extractFromKeys(p *page) scrapeHit {
	for _, re := range mediaKeyPatterns {
		for _, m := range re.FindAllStringSubmatch(p.html, -1) {
			if u := utils.DecodeEscapedURL(m[1]); utils.IsValidURL(u) {
				return scrapeHit{url: u}
			}
		}
	}
	return scrapeHit{}
}

// extractFromTags 查找 video/source 标签和 og:video
func extractFromTags(p *page) scrapeHit {
	for _, sel := range []string{"video[src]", "video source[src]", "source[type='video/mp4'][src]"} {
		if src, ok := p.doc.Find(sel).First().Attr("src"); ok && src != "" {
			return scrapeHit{url: src}
		}
	}
	for _, prop := range []string{"og:video", "og:video:url", "og:video:secure_url"} {
		if v := metaContent(p.doc, prop); v != "" {
			return scrapeHit{url: v}
		}
	}
	return scrapeHit{}
}

// extractFromPatterns 兜底: 匹配任意 mp4 地址
func extractFromPatterns(p *page) scrapeHit {
	for _, re := range mp4Patterns {
		if m := re.FindStringSubmatch(p.html); len(m) == 2 {
			return scrapeHit{url: m[1]}
		}
	}
	return scrapeHit{}
}

// metaContent 同时兼容 property 与 name 两种写法
func metaContent(doc *goquery.Document, key string) string {
	sel := doc.Find(fmt.Sprintf(`meta[property="%s"], meta[name="%s"]`, key, key)).First()
	return strings.TrimSpace(sel.AttrOr("content", ""))
}

func pageTitle(p *page, generic []string) string {
	if t := trimTitle(metaContent(p.doc, "og:title"), generic...); t != "" {
		return t
	}
	if t := trimTitle(p.doc.Find("title").First().Text(), generic...); t != "" {
		return t
	}
	for _, re := range titlePatterns {
		if m := re.FindStringSubmatch(p.html); len(m) == 2 {
			if t := trimTitle(m[1], generic...); t != "" {
				return t
			}
		}
	}
	return ""
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// candidateFromURL 页面中找到的单个地址
func candidateFromURL(u string) models.MediaCandidate {
	c := models.MediaCandidate{
		URL:      u,
		Quality:  "unknown",
		Ext:      "mp4",
		Delivery: models.DeliveryDirect,
	}
	clean := u
	if i := strings.IndexAny(clean, "?#"); i >= 0 {
		clean = clean[:i]
	}
	switch ext := strings.TrimPrefix(strings.ToLower(path.Ext(clean)), "."); ext {
	case "m3u8", "mpd":
		c.Ext = "mp4"
		c.Delivery = models.DeliveryManifest
	case "mp4", "webm", "mov", "flv", "m4v":
		c.Ext = ext
	}
	return c
}
