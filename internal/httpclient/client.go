package httpclient

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultRetryMax = 1
)

// Transport 为同一平台的所有请求注入固定浏览器头,并按平台限速
type Transport struct {
	Base http.RoundTripper

	// Headers 仅在请求未显式设置同名头时注入
	Headers map[string]string

	// Limiter 为 nil 时不限速
	Limiter *rate.Limiter

	// RetryMax 最大重试次数(不含首次),只对无 body 的 GET/HEAD 生效
	RetryMax int
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	canRetry := (req.Method == http.MethodGet || req.Method == http.MethodHead) && req.Body == nil
	max := t.RetryMax
	if max < 0 || !canRetry {
		max = 0
	}

	var lastErr error
	for attempt := 0; attempt <= max; attempt++ {
		if t.Limiter != nil {
			if err := t.Limiter.Wait(req.Context()); err != nil {
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, err
			}
		}

		r := req.Clone(req.Context())
		for k, v := range t.Headers {
			if r.Header.Get(k) == "" {
				r.Header.Set(k, v)
			}
		}

		resp, err := base.RoundTrip(r)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if req.Context().Err() != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// Options 客户端选项
type Options struct {
	Headers   map[string]string
	RateLimit float64 // 每秒请求数, 0 表示不限
	Burst     int
	ProxyURL  string
	// ProxyFunc 动态代理, 优先于 ProxyURL
	ProxyFunc func(*http.Request) (*url.URL, error)
	Timeout   time.Duration
	RetryMax  int
	// NoRedirect 不跟随跳转,直接返回 3xx 响应
	NoRedirect bool
}

// New 构造 HTTP client
func New(opts Options) (*http.Client, error) {
	base := &http.Transport{
		Proxy:                 nil,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
	}

	if opts.ProxyFunc != nil {
		base.Proxy = opts.ProxyFunc
	} else if proxyURL := strings.TrimSpace(opts.ProxyURL); proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, err
		}
		base.Proxy = http.ProxyURL(u)
	}

	tr := &Transport{
		Base:     base,
		Headers:  opts.Headers,
		RetryMax: opts.RetryMax,
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		tr.Limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}
	if opts.NoRedirect {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return client, nil
}

// WithTimeout 复用同一 Transport(共享限速与连接池),仅替换超时/跳转策略
func WithTimeout(c *http.Client, timeout time.Duration, noRedirect bool) *http.Client {
	clone := &http.Client{
		Transport: c.Transport,
		Timeout:   timeout,
		Jar:       c.Jar,
	}
	if noRedirect {
		clone.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return clone
}
