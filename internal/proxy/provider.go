package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"fastmedia/gateway/internal/config"
)

// Provider 代理来源, 返回空字符串表示直连
type Provider interface {
	GetProxy(ctx context.Context) (string, error)
}

// NewProvider 根据配置创建代理提供者
func NewProvider(cfg *config.ProxyConfig, logger *zap.Logger) Provider {
	switch strings.ToLower(cfg.Provider) {
	case "static":
		return &StaticProvider{proxyURL: strings.TrimSpace(cfg.StaticURL)}
	case "api":
		return NewAPIProvider(cfg, logger)
	default:
		return DirectProvider{}
	}
}

// ProxyFunc 适配 http.Transport.Proxy; 获取失败时直连
func ProxyFunc(p Provider, logger *zap.Logger) func(*http.Request) (*url.URL, error) {
	return func(req *http.Request) (*url.URL, error) {
		raw, err := p.GetProxy(req.Context())
		if err != nil {
			logger.Warn("proxy unavailable, using direct connection", zap.Error(err))
			return nil, nil
		}
		if raw == "" {
			return nil, nil
		}
		return url.Parse(raw)
	}
}

// ProxyResponse 代理 API 响应
type ProxyResponse struct {
	IP       string `json:"ip"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	ExpireAt string `json:"expire_at"`
}

// APIProvider 从代理 API 获取代理, 在过期前复用
type APIProvider struct {
	apiKey     string
	endpoint   string
	client     *http.Client
	retryCount int
	logger     *zap.Logger

	mu       sync.Mutex
	current  string
	expireAt time.Time
}

// NewAPIProvider 创建代理 API 提供者
func NewAPIProvider(cfg *config.ProxyConfig, logger *zap.Logger) *APIProvider {
	return &APIProvider{
		apiKey:   cfg.APIKey,
		endpoint: cfg.APIEndpoint,
		client: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		retryCount: cfg.RetryCount,
		logger:     logger,
	}
}

// GetProxy 获取代理, 缓存未过期时直接返回
func (p *APIProvider) GetProxy(ctx context.Context) (string, error) {
	p.mu.Lock()
	if p.current != "" && time.Now().Before(p.expireAt) {
		cur := p.current
		p.mu.Unlock()
		return cur, nil
	}
	p.mu.Unlock()

	proxyURL, expireAt, err := p.getProxyWithRetry(ctx)
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	p.current, p.expireAt = proxyURL, expireAt
	p.mu.Unlock()
	return proxyURL, nil
}

// fetch 请求一次代理 API
func (p *APIProvider) fetch(ctx context.Context) (string, time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint, nil)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("proxy API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, fmt.Errorf("proxy API returned %d", resp.StatusCode)
	}

	var proxyResp ProxyResponse
	if err := json.NewDecoder(resp.Body).Decode(&proxyResp); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if proxyResp.IP == "" || proxyResp.Port == 0 {
		return "", time.Time{}, fmt.Errorf("proxy API returned empty address")
	}

	// 格式化代理 URL
	u := url.URL{Scheme: "http", Host: fmt.Sprintf("%s:%d", proxyResp.IP, proxyResp.Port)}
	if proxyResp.Username != "" && proxyResp.Password != "" {
		u.User = url.UserPassword(proxyResp.Username, proxyResp.Password)
	}

	// 未给出过期时间时只用一次
	expireAt := time.Now()
	if t, err := time.Parse(time.RFC3339, proxyResp.ExpireAt); err == nil {
		expireAt = t
	}

	p.logger.Info("got proxy", zap.String("ip", proxyResp.IP), zap.Time("expire_at", expireAt))
	return u.String(), expireAt, nil
}

// getProxyWithRetry 带重试的获取代理, 指数退避
func (p *APIProvider) getProxyWithRetry(ctx context.Context) (string, time.Time, error) {
	retries := p.retryCount
	if retries <= 0 {
		retries = 1
	}

	var lastErr error
	for i := 0; i < retries; i++ {
		proxyURL, expireAt, err := p.fetch(ctx)
		if err == nil {
			return proxyURL, expireAt, nil
		}

		lastErr = err
		p.logger.Warn("failed to get proxy",
			zap.Int("attempt", i+1),
			zap.Int("max", retries),
			zap.Error(err))

		if i == retries-1 {
			break
		}
		waitTime := time.Duration(math.Pow(2, float64(i))) * time.Second
		select {
		case <-time.After(waitTime):
		case <-ctx.Done():
			return "", time.Time{}, ctx.Err()
		}
	}

	return "", time.Time{}, fmt.Errorf("failed to get proxy after %d attempts: %w", retries, lastErr)
}

// StaticProvider 固定代理
type StaticProvider struct {
	proxyURL string
}

// GetProxy 返回固定代理
func (p *StaticProvider) GetProxy(ctx context.Context) (string, error) {
	return p.proxyURL, nil
}

// DirectProvider 不使用代理
type DirectProvider struct{}

// GetProxy 返回空代理(直连)
func (DirectProvider) GetProxy(ctx context.Context) (string, error) {
	return "", nil
}
