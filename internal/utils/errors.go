package utils

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// URL相关错误
	ErrInvalidURL          = errors.New("invalid URL")
	ErrUnsupportedPlatform = errors.New("unsupported platform")

	// 视频相关错误
	ErrVideoNotFound  = errors.New("video not found")
	ErrVideoPrivate   = errors.New("video is private")
	ErrVideoDeleted   = errors.New("video has been deleted")
	ErrGeoRestricted  = errors.New("video is geo-restricted")
	ErrAgeRestricted  = errors.New("video is age-restricted")
	ErrPlaylistFailed = errors.New("playlist resolution failed")
	ErrAPILimited     = errors.New("platform API limited or unparsable response")
	ErrNoPlayURL      = errors.New("no playable URL found")

	// 系统相关错误
	ErrTimeout        = errors.New("network timeout")
	ErrYTDLPNotFound  = errors.New("yt-dlp binary not found")
	ErrYTDLPFailed    = errors.New("yt-dlp execution failed")
	ErrFFmpegFailed   = errors.New("ffmpeg execution failed")
	ErrTempFileAbsent = errors.New("temp file missing")
	ErrOutsideStore   = errors.New("path outside temp store")
	ErrDiskFull       = errors.New("insufficient disk space")
)

// ErrorKind 对外暴露的错误类别
type ErrorKind string

const (
	KindUnsupportedPlatform ErrorKind = "UnsupportedPlatform"
	KindNetworkTimeout      ErrorKind = "NetworkTimeout"
	KindRegionRestricted    ErrorKind = "RegionRestricted"
	KindPrivate             ErrorKind = "PrivateOrPermissionDenied"
	KindPlaylistFailed      ErrorKind = "PlaylistResolutionFailed"
	KindAPILimited          ErrorKind = "APIRateLimitedOrParseError"
	KindUnavailable         ErrorKind = "ResourceUnavailableOrDeleted"
	KindTempFileMissing     ErrorKind = "TempFileMissing"
	KindGeneric             ErrorKind = "GenericFailure"
)

// Message 面向用户的错误描述
func (k ErrorKind) Message() string {
	switch k {
	case KindUnsupportedPlatform:
		return "Unsupported platform: this link is not from a supported video site"
	case KindNetworkTimeout:
		return "Network timeout, please check the connection and retry"
	case KindRegionRestricted:
		return "This video is region-restricted and cannot be downloaded from the current region"
	case KindPrivate:
		return "This video is private or requires permission to download"
	case KindPlaylistFailed:
		return "Series/playlist resolution failed, please use the link of a single episode"
	case KindAPILimited:
		return "Platform API limited the request or returned an unreadable response, please retry later"
	case KindUnavailable:
		return "This video is unavailable, it may have been deleted or made private"
	case KindTempFileMissing:
		return "Temp file does not exist"
	default:
		return "Download failed"
	}
}

// sentinelKinds 结构化错误到类别的映射,优先于字符串匹配
var sentinelKinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrUnsupportedPlatform, KindUnsupportedPlatform},
	{ErrInvalidURL, KindUnsupportedPlatform},
	{ErrTimeout, KindNetworkTimeout},
	{context.DeadlineExceeded, KindNetworkTimeout},
	{ErrGeoRestricted, KindRegionRestricted},
	{ErrVideoPrivate, KindPrivate},
	{ErrAgeRestricted, KindPrivate},
	{ErrPlaylistFailed, KindPlaylistFailed},
	{ErrAPILimited, KindAPILimited},
	{ErrVideoNotFound, KindUnavailable},
	{ErrVideoDeleted, KindUnavailable},
	{ErrTempFileAbsent, KindTempFileMissing},
	// 服务端自身故障, 文本里的 "not found" 等字样与视频无关
	{ErrYTDLPNotFound, KindGeneric},
	{ErrFFmpegFailed, KindGeneric},
	{ErrDiskFull, KindGeneric},
}

// classifyRules 按顺序匹配错误文本(启发式,仅此一处需要调整)
var classifyRules = []struct {
	kind     ErrorKind
	keywords []string
}{
	{KindUnsupportedPlatform, []string{"unsupported url", "unsupported platform"}},
	{KindAPILimited, []string{"json", "parse", "too many requests", "http error 429", "rate limit"}},
	{KindRegionRestricted, []string{"region", "geoblock", "geo-restricted", "geo restricted", "not available in your country"}},
	{KindPrivate, []string{"private", "permission", "login required", "sign in", "age-restricted"}},
	{KindPlaylistFailed, []string{"playlist"}},
	{KindNetworkTimeout, []string{"timeout", "timed out", "network", "deadline exceeded", "connection reset", "connection refused"}},
	{KindUnavailable, []string{"unavailable", "has been deleted", "not found", "http error 404", "removed"}},
}

// ClassifyError 根据底层错误文本归类
func ClassifyError(raw string) ErrorKind {
	lower := strings.ToLower(raw)
	for _, rule := range classifyRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.kind
			}
		}
	}
	return KindGeneric
}

// MapYTDLPError 将yt-dlp的错误输出映射到具体错误
func MapYTDLPError(stderr string) error {
	lowerStderr := strings.ToLower(stderr)

	switch {
	case strings.Contains(lowerStderr, "private video"):
		return ErrVideoPrivate
	case strings.Contains(lowerStderr, "has been deleted"):
		return ErrVideoDeleted
	case strings.Contains(lowerStderr, "video unavailable"):
		return ErrVideoNotFound
	case strings.Contains(lowerStderr, "not available in your country"):
		return ErrGeoRestricted
	case strings.Contains(lowerStderr, "age-restricted"):
		return ErrAgeRestricted
	case strings.Contains(lowerStderr, "executable file not found") || strings.Contains(lowerStderr, "no such file"):
		return ErrYTDLPNotFound
	case strings.Contains(lowerStderr, "timed out") || strings.Contains(lowerStderr, "timeout"):
		return ErrTimeout
	default:
		return ErrYTDLPFailed
	}
}

// KindOf 获取错误类别: 先看结构化错误,再退回文本匹配
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var re *ResolveError
	if errors.As(err, &re) && re.Kind != "" {
		return re.Kind
	}
	for _, sk := range sentinelKinds {
		if errors.Is(err, sk.err) {
			return sk.kind
		}
	}
	// 未识别的 yt-dlp 失败只按其 stderr 归类, 没有命中时为通用失败
	if errors.Is(err, ErrYTDLPFailed) {
		return ClassifyError(strings.ReplaceAll(err.Error(), ErrYTDLPFailed.Error(), ""))
	}
	return ClassifyError(err.Error())
}

// Attempt 记录一次策略尝试
type Attempt struct {
	Strategy string
	Err      error
}

// ResolveError 策略链全部失败后的聚合错误
type ResolveError struct {
	Kind     ErrorKind
	Platform string
	URL      string
	Attempts []Attempt
	Err      error
}

// NewResolveError 从尝试记录中挑选信息量最大的错误
// 取最后一个可归类(非通用)的错误,否则取最后一个错误
func NewResolveError(platform, url string, attempts []Attempt) *ResolveError {
	re := &ResolveError{Platform: platform, URL: url, Attempts: attempts, Kind: KindGeneric}
	for i := len(attempts) - 1; i >= 0; i-- {
		if attempts[i].Err == nil {
			continue
		}
		if re.Err == nil {
			re.Err = attempts[i].Err
		}
		if kind := KindOf(attempts[i].Err); kind != KindGeneric {
			re.Err = attempts[i].Err
			re.Kind = kind
			break
		}
	}
	if re.Err == nil {
		re.Err = ErrNoPlayURL
	}
	return re
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("platform=%s: all %d strategies failed: %v", e.Platform, len(e.Attempts), e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// UserMessage 对外错误信息: 类别描述 + 底层原因
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	kind := KindOf(err)
	if kind == KindUnsupportedPlatform || kind == KindTempFileMissing {
		return kind.Message()
	}
	var re *ResolveError
	cause := err
	if errors.As(err, &re) && re.Err != nil {
		cause = re.Err
	}
	return fmt.Sprintf("%s (%s)", kind.Message(), TruncateString(cause.Error(), 300))
}

// TruncateString 截断过长的字符串
func TruncateString(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
