package adapter

import (
	"context"
	"net/http"
	"regexp"

	"go.uber.org/zap"

	"fastmedia/gateway/internal/config"
	"fastmedia/gateway/internal/httpclient"
	"fastmedia/gateway/internal/models"
	"fastmedia/gateway/internal/proxy"
	"fastmedia/gateway/internal/utils"
	"fastmedia/gateway/internal/ytdlp"
)

const mobileUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"

var xiaohongshuIDPattern = regexp.MustCompile(`/(?:explore|discovery/item)/([0-9A-Za-z]+)`)

// Registry 平台到策略链的映射
type Registry struct {
	chains        map[models.Platform]*Chain
	clients       map[models.Platform]*http.Client
	defaultClient *http.Client
	platforms     *config.PlatformsConfig
	logger        *zap.Logger
}

// NewRegistry 按配置为每个平台组装策略链和 HTTP 客户端
func NewRegistry(cfg *config.Config, engine ytdlp.Engine, proxies proxy.Provider, logger *zap.Logger) (*Registry, error) {
	if proxies == nil {
		proxies = proxy.DirectProvider{}
	}
	proxyFunc := proxy.ProxyFunc(proxies, logger)

	r := &Registry{
		chains:    make(map[models.Platform]*Chain),
		clients:   make(map[models.Platform]*http.Client),
		platforms: &cfg.Platforms,
		logger:    logger,
	}

	def, err := httpclient.New(httpclient.Options{ProxyFunc: proxyFunc, RetryMax: 1})
	if err != nil {
		return nil, err
	}
	r.defaultClient = def

	for _, tag := range models.PlatformPriority {
		pc := cfg.Platforms.Get(tag)
		if pc.Disabled {
			continue
		}
		client, err := httpclient.New(httpclient.Options{
			Headers:   pc.Headers,
			RateLimit: pc.RateLimit,
			Burst:     pc.Burst,
			ProxyFunc: proxyFunc,
			Timeout:   pc.GetAPITimeout(),
			RetryMax:  1,
		})
		if err != nil {
			return nil, err
		}
		r.clients[tag] = client

		chain := r.buildChain(tag, pc, client, engine, proxies)
		if cfg.Sandbox {
			chain.strategies = append(chain.strategies, SandboxStrategy{})
		}
		r.chains[tag] = chain
	}
	return r, nil
}

func (r *Registry) buildChain(tag models.Platform, pc *config.PlatformConfig, client *http.Client, engine ytdlp.Engine, proxies proxy.Provider) *Chain {
	opts := ytdlp.OptionsFor(pc)
	logger := r.logger.With(zap.String("platform", string(tag)))

	switch tag {
	case models.PlatformBilibili:
		relaxed := opts
		relaxed.Format = "best[height<=480]/best"
		relaxed.MergeFormat = ""
		relaxed.IgnoreErrors = true
		return NewChain(tag, nil, logger,
			NewEngineStrategy("ytdlp", engine, opts, proxies),
			NewEngineStrategy("ytdlp_relaxed", engine, relaxed, proxies),
		)

	case models.PlatformKuaishou:
		return NewChain(tag, KuaishouLocator(client, logger), logger,
			NewKuaishouReco(client, pc, logger),
			NewKuaishouDetail(client, pc, logger),
			NewEngineStrategy("ytdlp", engine, opts, proxies).WithVariants(KuaishouVariants),
			NewScrapeStrategy(client, nil, logger, "快手", "快手视频"),
		)

	case models.PlatformXiaohongshu:
		mobile := opts
		mobile.Format = "best"
		mobile.Headers = map[string]string{"User-Agent": mobileUA}
		for k, v := range opts.Headers {
			if k != "User-Agent" {
				mobile.Headers[k] = v
			}
		}
		return NewChain(tag, contentIDLocator(xiaohongshuIDPattern), logger,
			NewEngineStrategy("ytdlp_desktop", engine, opts, proxies),
			NewEngineStrategy("ytdlp_mobile", engine, mobile, proxies),
			NewScrapeStrategy(client, nil, logger, "小红书", "小红书 - 你的生活指南"),
		)

	default:
		return NewChain(tag, nil, logger, NewEngineStrategy("ytdlp", engine, opts, proxies))
	}
}

// contentIDLocator 仅从地址中提取内容ID, 不发请求
func contentIDLocator(re *regexp.Regexp) Locator {
	return func(_ context.Context, target *Target) {
		if m := re.FindStringSubmatch(target.URL); len(m) == 2 {
			target.ContentID = m[1]
		}
	}
}

// Resolve 解析视频资源; 不支持的平台直接失败, 不调用任何策略
func (r *Registry) Resolve(ctx context.Context, url string, platform models.Platform) (*models.VideoAsset, error) {
	chain, ok := r.chains[platform]
	if !ok {
		return nil, utils.NewResolveError(string(platform), url, []utils.Attempt{
			{Strategy: "classify", Err: utils.ErrUnsupportedPlatform},
		})
	}
	return chain.Resolve(ctx, url)
}

// Chain 获取平台策略链
func (r *Registry) Chain(platform models.Platform) (*Chain, bool) {
	c, ok := r.chains[platform]
	return c, ok
}

// Client 平台 HTTP 客户端(注入平台请求头并限速)
func (r *Registry) Client(platform models.Platform) *http.Client {
	if c, ok := r.clients[platform]; ok {
		return c
	}
	return r.defaultClient
}

// EngineOptions 下载引擎解析出的资源时使用的参数, 与解析时一致
func (r *Registry) EngineOptions(ctx context.Context, asset *models.VideoAsset) ytdlp.Options {
	if chain, ok := r.chains[asset.Platform]; ok {
		for _, s := range chain.strategies {
			if es, ok := s.(*EngineStrategy); ok && es.Name() == asset.Strategy {
				return es.Options(ctx)
			}
		}
	}
	return ytdlp.OptionsFor(r.platforms.Get(asset.Platform))
}
