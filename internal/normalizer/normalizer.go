package normalizer

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"go.uber.org/zap"

	"fastmedia/gateway/internal/config"
	"fastmedia/gateway/internal/detector"
	"fastmedia/gateway/internal/models"
	"fastmedia/gateway/internal/utils"
)

// SharePatterns 分享文本中优先提取的链接形式
// 匹配结果不含查询参数: 这几种快手链接只靠路径中的ID定位, 白名单中的
// shareToken/shareId 只对 chenzhongtech/gifshow 等分享页生效
var SharePatterns = []*regexp.Regexp{
	regexp.MustCompile(`https://v\.kuaishou\.com/[A-Za-z0-9]+`),
	regexp.MustCompile(`https://www\.kuaishou\.com/f/[A-Za-z0-9\-]+`),
	regexp.MustCompile(`https://www\.kuaishou\.com/short-video/[A-Za-z0-9]+`),
}

// Normalizer URL标准化器: 提取链接、解析短链、清理查询参数
type Normalizer struct {
	platforms *config.PlatformsConfig
	detector  *detector.PlatformDetector
	client    *http.Client
	timeout   time.Duration
	logger    *zap.Logger
}

// New 创建标准化器, client 用于短链跳转(需跟随跳转)
func New(cfg *config.Config, det *detector.PlatformDetector, client *http.Client, logger *zap.Logger) *Normalizer {
	timeout := cfg.Normalizer.GetRedirectTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Normalizer{
		platforms: &cfg.Platforms,
		detector:  det,
		client:    client,
		timeout:   timeout,
		logger:    logger,
	}
}

// Normalize 标准化用户输入,从不返回错误;最坏情况返回去空白的原始输入
func (n *Normalizer) Normalize(ctx context.Context, raw string) string {
	u := utils.ExtractURL(raw, SharePatterns...)
	if !utils.IsValidURL(u) {
		return u
	}

	u = n.resolveShortLink(ctx, u)

	pc := n.platforms.Get(n.detector.Detect(u))
	if pc == nil {
		return u
	}
	return utils.CleanQuery(u, pc.QueryAllowList)
}

// shortLinkPlatform 返回短链所属平台配置
func (n *Normalizer) shortLinkPlatform(host string) *config.PlatformConfig {
	for _, tag := range models.PlatformPriority {
		pc := n.platforms.Get(tag)
		if pc == nil || pc.Disabled {
			continue
		}
		for _, h := range pc.ShortLinkHosts {
			if utils.HostMatches(host, h) {
				return pc
			}
		}
	}
	return nil
}

// resolveShortLink 跟随短链跳转; 超时、非200、落地域名不符时保留原URL
func (n *Normalizer) resolveShortLink(ctx context.Context, rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	pc := n.shortLinkPlatform(parsed.Host)
	if pc == nil {
		return rawURL
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return rawURL
	}
	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("short link redirect failed", zap.String("url", rawURL), zap.Error(err))
		return rawURL
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK || resp.Request == nil || resp.Request.URL == nil {
		n.logger.Warn("short link redirect rejected",
			zap.String("url", rawURL),
			zap.Int("status", resp.StatusCode))
		return rawURL
	}

	final := resp.Request.URL
	for _, domain := range pc.Domains {
		if utils.HostMatches(final.Host, domain) {
			n.logger.Debug("short link resolved", zap.String("from", rawURL), zap.String("to", final.String()))
			return final.String()
		}
	}

	n.logger.Warn("short link landed on unexpected host",
		zap.String("url", rawURL),
		zap.String("final", final.String()))
	return rawURL
}
