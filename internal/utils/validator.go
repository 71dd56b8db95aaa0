package utils

import (
	"net/url"
	"regexp"
	"strings"
)

var urlInTextPattern = regexp.MustCompile(`https?://[^\s"'<>，。！？、]+`)

// IsValidURL 验证URL格式是否有效
func IsValidURL(rawURL string) bool {
	if rawURL == "" {
		return false
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	// 必须是http或https协议
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	// 必须有host
	if u.Host == "" {
		return false
	}

	return true
}

// ExtractURL 从分享文本中提取第一个 http(s) 链接,找不到时返回去空白的原文
func ExtractURL(text string, patterns ...*regexp.Regexp) string {
	text = strings.TrimSpace(text)
	for _, p := range patterns {
		if m := p.FindString(text); m != "" {
			return m
		}
	}
	if m := urlInTextPattern.FindString(text); m != "" {
		return m
	}
	return text
}

// HostMatches host 是否等于 domain 或为其子域名
func HostMatches(host, domain string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	domain = strings.ToLower(domain)
	if i := strings.LastIndex(host, ":"); i >= 0 && !strings.Contains(host[i:], "]") {
		host = host[:i]
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// CleanQuery 仅保留白名单中的查询参数,按 scheme+host+path+query 重建URL
// 参数按名称排序,保证结果稳定
func CleanQuery(rawURL string, allow []string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}

	kept := url.Values{}
	q := u.Query()
	for _, name := range allow {
		if vals, ok := q[name]; ok && len(vals) > 0 {
			kept.Set(name, vals[0])
		}
	}

	clean := url.URL{
		Scheme:   strings.ToLower(u.Scheme),
		Host:     strings.ToLower(u.Host),
		Path:     u.Path,
		RawPath:  u.RawPath,
		RawQuery: kept.Encode(),
	}
	return clean.String()
}

// DecodeEscapedURL 还原JSON中转义的地址
func DecodeEscapedURL(s string) string {
	r := strings.NewReplacer(`\u002F`, "/", `\u002f`, "/", `\/`, "/", `\u0026`, "&", `&amp;`, "&")
	return r.Replace(s)
}
