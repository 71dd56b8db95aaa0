package detector

import (
	"net/url"

	"fastmedia/gateway/internal/config"
	"fastmedia/gateway/internal/models"
	"fastmedia/gateway/internal/utils"
)

type domainRule struct {
	platform models.Platform
	domains  []string
}

// PlatformDetector 平台检测器
type PlatformDetector struct {
	rules []domainRule
}

// NewPlatformDetector 根据平台配置的域名表创建检测器,按固定优先级匹配
func NewPlatformDetector(platforms *config.PlatformsConfig) *PlatformDetector {
	d := &PlatformDetector{}
	for _, tag := range models.PlatformPriority {
		pc := platforms.Get(tag)
		if pc == nil || pc.Disabled || len(pc.Domains) == 0 {
			continue
		}
		d.rules = append(d.rules, domainRule{platform: tag, domains: pc.Domains})
	}
	return d
}

// Detect 检测URL所属平台,无法识别时返回 unsupported
func (d *PlatformDetector) Detect(rawURL string) models.Platform {
	if !utils.IsValidURL(rawURL) {
		return models.PlatformUnsupported
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return models.PlatformUnsupported
	}

	for _, rule := range d.rules {
		for _, domain := range rule.domains {
			if utils.HostMatches(u.Host, domain) {
				return rule.platform
			}
		}
	}
	return models.PlatformUnsupported
}
