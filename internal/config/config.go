package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"fastmedia/gateway/internal/models"
)

// Config 应用配置
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Redis      RedisConfig      `yaml:"redis"`
	YTDLP      YTDLPConfig      `yaml:"ytdlp"`
	FFmpeg     FFmpegConfig     `yaml:"ffmpeg"`
	Storage    StorageConfig    `yaml:"storage"`
	Cleanup    CleanupConfig    `yaml:"cleanup"`
	Batch      BatchConfig      `yaml:"batch"`
	Normalizer NormalizerConfig `yaml:"normalizer"`
	Proxy      ProxyConfig      `yaml:"proxy"`
	Platforms  PlatformsConfig  `yaml:"platforms"`
	// Sandbox 仅测试环境使用: 所有策略失败时返回占位资源
	Sandbox bool `yaml:"sandbox"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
	Mode     string `yaml:"mode"` // debug / release
	// AllowedOrigins 跨域白名单, 为空时允许所有来源
	AllowedOrigins []string `yaml:"allowed_origins"`
	// MaxBodyBytes 请求体上限(字节)
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// RateLimitConfig 接口限流配置
type RateLimitConfig struct {
	GlobalRPS float64 `yaml:"global_rps"`
	IPRPS     float64 `yaml:"ip_rps"`
	Burst     int     `yaml:"burst"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// YTDLPConfig yt-dlp配置
type YTDLPConfig struct {
	BinaryPath      string   `yaml:"binary_path"`
	Timeout         int      `yaml:"timeout"`          // 解析超时(秒)
	DownloadTimeout int      `yaml:"download_timeout"` // 下载超时(秒)
	CookiesDir      string   `yaml:"cookies_dir"`
	DefaultArgs     []string `yaml:"default_args"`
}

// FFmpegConfig 媒体解码配置
type FFmpegConfig struct {
	BinaryPath   string `yaml:"binary_path"`
	AudioQuality string `yaml:"audio_quality"` // kbps
	Timeout      int    `yaml:"timeout"`       // 秒
}

// StorageConfig 临时文件存储配置
type StorageConfig struct {
	BaseDir      string  `yaml:"base_dir"`
	MaxDiskUsage float64 `yaml:"max_disk_usage"` // 百分比,超过时拒绝下载
}

// CleanupConfig 清理配置
type CleanupConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Schedule   string `yaml:"schedule"` // cron 表达式(含秒)
	MaxAgeDays int    `yaml:"max_age_days"`
}

// BatchConfig 批处理配置
type BatchConfig struct {
	MaxConcurrent int `yaml:"max_concurrent"`
	MaxURLs       int `yaml:"max_urls"`
	ItemTimeout   int `yaml:"item_timeout"` // 单条超时(秒)
}

// NormalizerConfig URL 标准化配置
type NormalizerConfig struct {
	RedirectTimeout int    `yaml:"redirect_timeout"` // 秒
	UserAgent       string `yaml:"user_agent"`
}

// ProxyConfig 代理配置
type ProxyConfig struct {
	Provider    string `yaml:"provider"` // none / static / api
	StaticURL   string `yaml:"static_url"`
	APIEndpoint string `yaml:"api_endpoint"`
	APIKey      string `yaml:"api_key"`
	Timeout     int    `yaml:"timeout"`
	RetryCount  int    `yaml:"retry_count"`
}

// PlatformsConfig 各平台配置
type PlatformsConfig struct {
	DouyinTikTok PlatformConfig `yaml:"douyin_tiktok"`
	Bilibili     PlatformConfig `yaml:"bilibili"`
	YouTube      PlatformConfig `yaml:"youtube"`
	Twitter      PlatformConfig `yaml:"twitter"`
	Kuaishou     PlatformConfig `yaml:"kuaishou"`
	Xiaohongshu  PlatformConfig `yaml:"xiaohongshu"`
}

// PlatformConfig 平台特定配置
type PlatformConfig struct {
	Disabled       bool              `yaml:"disabled"`
	Domains        []string          `yaml:"domains"`
	ShortLinkHosts []string          `yaml:"short_link_hosts"`
	QueryAllowList []string          `yaml:"query_allow_list"`
	Headers        map[string]string `yaml:"headers"`

	// 通用提取引擎参数
	Format                   string   `yaml:"format"`
	NoPlaylist               bool     `yaml:"no_playlist"`
	PlaylistEnd              int      `yaml:"playlist_end"`
	Retries                  int      `yaml:"retries"`
	FragmentRetries          int      `yaml:"fragment_retries"`
	SocketTimeout            int      `yaml:"socket_timeout"`
	SkipUnavailableFragments bool     `yaml:"skip_unavailable_fragments"`
	IgnoreErrors             bool     `yaml:"ignore_errors"`
	CookieFile               string   `yaml:"cookie_file"`
	ExtraArgs                []string `yaml:"extra_args"`

	// 直连接口/页面抓取参数
	APIEndpoint      string  `yaml:"api_endpoint"`
	APITimeout       int     `yaml:"api_timeout"` // 秒
	PreferNewerCodec bool    `yaml:"prefer_newer_codec"`
	MaxHeight        int     `yaml:"max_height"`
	RateLimit        float64 `yaml:"rate_limit"` // 每秒请求数, 0 表示不限
	Burst            int     `yaml:"burst"`
}

// Get 获取平台配置,不存在时返回 nil
func (p *PlatformsConfig) Get(platform models.Platform) *PlatformConfig {
	switch platform {
	case models.PlatformDouyinTikTok:
		return &p.DouyinTikTok
	case models.PlatformBilibili:
		return &p.Bilibili
	case models.PlatformYouTube:
		return &p.YouTube
	case models.PlatformTwitter:
		return &p.Twitter
	case models.PlatformKuaishou:
		return &p.Kuaishou
	case models.PlatformXiaohongshu:
		return &p.Xiaohongshu
	default:
		return nil
	}
}

// GetAPITimeout 接口请求超时
func (c *PlatformConfig) GetAPITimeout() time.Duration {
	if c.APITimeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.APITimeout) * time.Second
}

// LoadConfig 加载配置文件,未设置的字段使用默认值
func LoadConfig(configPath string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// applyEnv 从环境变量覆盖配置
func applyEnv(cfg *Config) {
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		cfg.Redis.Addr = redisAddr
		cfg.Redis.Enabled = true
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		cfg.Redis.Password = redisPassword
	}
	if dir := os.Getenv("FASTMEDIA_TEMP_DIR"); dir != "" {
		cfg.Storage.BaseDir = dir
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if proxyAPIKey := os.Getenv("PROXY_API_KEY"); proxyAPIKey != "" {
		cfg.Proxy.APIKey = proxyAPIKey
	}
}

// applyDefaults 补齐被配置文件置零的关键字段
func applyDefaults(cfg *Config) {
	def := Default()

	if cfg.Server.Port == 0 {
		cfg.Server.Port = def.Server.Port
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		cfg.Server.MaxBodyBytes = def.Server.MaxBodyBytes
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = def.RateLimit.Burst
	}
	if cfg.YTDLP.BinaryPath == "" {
		cfg.YTDLP.BinaryPath = def.YTDLP.BinaryPath
	}
	if cfg.YTDLP.Timeout == 0 {
		cfg.YTDLP.Timeout = def.YTDLP.Timeout
	}
	if cfg.YTDLP.DownloadTimeout == 0 {
		cfg.YTDLP.DownloadTimeout = def.YTDLP.DownloadTimeout
	}
	if cfg.FFmpeg.BinaryPath == "" {
		cfg.FFmpeg.BinaryPath = def.FFmpeg.BinaryPath
	}
	if cfg.Storage.BaseDir == "" {
		cfg.Storage.BaseDir = def.Storage.BaseDir
	}
	if cfg.Cleanup.MaxAgeDays <= 0 {
		cfg.Cleanup.MaxAgeDays = def.Cleanup.MaxAgeDays
	}
	if cfg.Cleanup.Schedule == "" {
		cfg.Cleanup.Schedule = def.Cleanup.Schedule
	}
	if cfg.Batch.MaxConcurrent <= 0 {
		cfg.Batch.MaxConcurrent = def.Batch.MaxConcurrent
	}
	if cfg.Batch.MaxURLs <= 0 {
		cfg.Batch.MaxURLs = def.Batch.MaxURLs
	}
	if cfg.Normalizer.RedirectTimeout <= 0 {
		cfg.Normalizer.RedirectTimeout = def.Normalizer.RedirectTimeout
	}
	for _, tag := range models.PlatformPriority {
		p, d := cfg.Platforms.Get(tag), def.Platforms.Get(tag)
		if len(p.Domains) == 0 {
			p.Domains = d.Domains
		}
		if p.Format == "" {
			p.Format = def.YTDLPFormat()
		}
	}
}

// GetTimeout 获取解析超时时间
func (c *YTDLPConfig) GetTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// GetDownloadTimeout 获取下载超时时间
func (c *YTDLPConfig) GetDownloadTimeout() time.Duration {
	return time.Duration(c.DownloadTimeout) * time.Second
}

// GetRedirectTimeout 短链跳转超时
func (c *NormalizerConfig) GetRedirectTimeout() time.Duration {
	return time.Duration(c.RedirectTimeout) * time.Second
}

// GetItemTimeout 批处理单条超时, 0 表示不额外限制
func (c *BatchConfig) GetItemTimeout() time.Duration {
	return time.Duration(c.ItemTimeout) * time.Second
}

// GetMaxAge 临时文件最长保留时间
func (c *CleanupConfig) GetMaxAge() time.Duration {
	return time.Duration(c.MaxAgeDays) * 24 * time.Hour
}

// YTDLPFormat 通用格式偏好: 不超过720p, 否则480p, 否则最佳, 否则最差
func (c *Config) YTDLPFormat() string {
	return "best[height<=720]/best[height<=480]/best/worst"
}

// Default 默认配置
func Default() *Config {
	desktopUA := "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	general := "best[height<=720]/best[height<=480]/best/worst"

	return &Config{
		Server:    ServerConfig{Port: 8080, GRPCPort: 9090, Mode: "release", MaxBodyBytes: 1 << 20},
		RateLimit: RateLimitConfig{GlobalRPS: 50, IPRPS: 2, Burst: 5},
		Redis:     RedisConfig{Addr: "localhost:6379", PoolSize: 10},
		YTDLP: YTDLPConfig{
			BinaryPath:      "yt-dlp",
			Timeout:         60,
			DownloadTimeout: 300,
		},
		FFmpeg:  FFmpegConfig{BinaryPath: "ffmpeg", AudioQuality: "192", Timeout: 120},
		Storage: StorageConfig{BaseDir: filepath.Join(os.TempDir(), "fastmedia"), MaxDiskUsage: 90},
		Cleanup: CleanupConfig{Enabled: true, Schedule: "0 0 * * * *", MaxAgeDays: 7},
		Batch:   BatchConfig{MaxConcurrent: 3, MaxURLs: 20, ItemTimeout: 600},
		Normalizer: NormalizerConfig{
			RedirectTimeout: 10,
			UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		},
		Proxy: ProxyConfig{Provider: "none", Timeout: 10, RetryCount: 3},
		Platforms: PlatformsConfig{
			DouyinTikTok: PlatformConfig{
				Domains:        []string{"douyin.com", "iesdouyin.com", "tiktok.com"},
				ShortLinkHosts: []string{"v.douyin.com", "vm.tiktok.com", "vt.tiktok.com"},
				QueryAllowList: []string{"modal_id"},
				Headers: map[string]string{
					"User-Agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
					"Referer":    "https://www.tiktok.com/",
				},
				Format: "best/worst",
			},
			Bilibili: PlatformConfig{
				Domains:                  []string{"bilibili.com", "b23.tv"},
				ShortLinkHosts:           []string{"b23.tv"},
				QueryAllowList:           []string{"p", "t", "dm"},
				Format:                   "30032+30232/30016+30232/best[height<=480]+bestaudio/best",
				NoPlaylist:               true,
				PlaylistEnd:              1,
				Retries:                  3,
				FragmentRetries:          5,
				SocketTimeout:            30,
				SkipUnavailableFragments: true,
				IgnoreErrors:             true,
			},
			YouTube: PlatformConfig{
				Domains:        []string{"youtube.com", "youtu.be"},
				ShortLinkHosts: []string{"youtu.be"},
				QueryAllowList: []string{"v", "t"},
				Format:         general,
				NoPlaylist:     true,
			},
			Twitter: PlatformConfig{
				Domains:        []string{"twitter.com", "x.com"},
				ShortLinkHosts: []string{"t.co"},
				Format:         general,
			},
			Kuaishou: PlatformConfig{
				Domains:        []string{"kuaishou.com", "chenzhongtech.com", "gifshow.com"},
				// 仅作用于未被分享链接规则截断的URL, 如 chenzhongtech 分享页
				QueryAllowList: []string{"photoId", "shareObjectId", "shareId", "shareToken"},
				Headers: map[string]string{
					"User-Agent":                desktopUA,
					"Referer":                   "https://www.kuaishou.com/",
					"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
					"Accept-Language":           "zh-CN,zh;q=0.9,en;q=0.8",
					"Connection":                "keep-alive",
					"Upgrade-Insecure-Requests": "1",
					"Sec-Fetch-Dest":            "document",
					"Sec-Fetch-Mode":            "navigate",
					"Sec-Fetch-Site":            "none",
					"Sec-Fetch-User":            "?1",
					"Cache-Control":             "max-age=0",
				},
				Format:           "best/worst",
				APIEndpoint:      "https://www.kuaishou.com/graphql",
				APITimeout:       10,
				PreferNewerCodec: true,
				RateLimit:        1,
				Burst:            2,
			},
			Xiaohongshu: PlatformConfig{
				Domains:        []string{"xiaohongshu.com", "xhslink.com"},
				ShortLinkHosts: []string{"xhslink.com"},
				QueryAllowList: []string{"source", "xhsshare", "xsec_token", "xsec_source"},
				Headers: map[string]string{
					"User-Agent":      desktopUA,
					"Referer":         "https://www.xiaohongshu.com/",
					"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
					"Accept-Language": "zh-CN,zh;q=0.9,en;q=0.8",
				},
				Format:     "best/worst",
				APITimeout: 10,
				RateLimit:  1,
				Burst:      2,
			},
		},
	}
}
