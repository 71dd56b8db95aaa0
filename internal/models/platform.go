package models

// Platform 平台标签
type Platform string

const (
	PlatformDouyinTikTok Platform = "douyin_tiktok"
	PlatformBilibili     Platform = "bilibili"
	PlatformYouTube      Platform = "youtube"
	PlatformTwitter      Platform = "twitter"
	PlatformKuaishou     Platform = "kuaishou"
	PlatformXiaohongshu  Platform = "xiaohongshu"
	PlatformUnsupported  Platform = "unsupported"
)

// PlatformPriority 平台匹配优先级(同时命中时先者胜出)
var PlatformPriority = []Platform{
	PlatformDouyinTikTok,
	PlatformBilibili,
	PlatformYouTube,
	PlatformTwitter,
	PlatformKuaishou,
	PlatformXiaohongshu,
}

// IsSupported 是否为已支持平台
func (p Platform) IsSupported() bool {
	for _, known := range PlatformPriority {
		if p == known {
			return true
		}
	}
	return false
}

// FileTag 用于文件名的平台标识
func (p Platform) FileTag() string {
	if p == "" {
		return string(PlatformUnsupported)
	}
	return string(p)
}
