package detector

import (
	"testing"

	"fastmedia/gateway/internal/config"
	"fastmedia/gateway/internal/models"
)

func TestDetect(t *testing.T) {
	d := NewPlatformDetector(&config.Default().Platforms)

	cases := []struct {
		url  string
		want models.Platform
	}{
		{"https://www.douyin.com/video/7300000000000000000", models.PlatformDouyinTikTok},
		{"https://www.tiktok.com/@user/video/1", models.PlatformDouyinTikTok},
		{"https://www.bilibili.com/video/BV1xx411c7mD", models.PlatformBilibili},
		{"https://b23.tv/abcd", models.PlatformBilibili},
		{"https://youtu.be/dQw4w9WgXcQ", models.PlatformYouTube},
		{"https://m.youtube.com/watch?v=x", models.PlatformYouTube},
		{"https://x.com/user/status/1", models.PlatformTwitter},
		{"https://v.kuaishou.com/AbC12", models.PlatformKuaishou},
		{"https://www.xiaohongshu.com/explore/abc", models.PlatformXiaohongshu},
		{"https://box.com/file", models.PlatformUnsupported},
		{"https://example.com/v.mp4", models.PlatformUnsupported},
		{"not-a-url", models.PlatformUnsupported},
		{"", models.PlatformUnsupported},
	}
	for _, c := range cases {
		if got := d.Detect(c.url); got != c.want {
			t.Fatalf("Detect(%q)=%s, want %s", c.url, got, c.want)
		}
	}
}

func TestDetect_DisabledPlatform(t *testing.T) {
	cfg := config.Default()
	cfg.Platforms.Twitter.Disabled = true
	d := NewPlatformDetector(&cfg.Platforms)
	if got := d.Detect("https://twitter.com/a/status/1"); got != models.PlatformUnsupported {
		t.Fatalf("disabled platform detected as %s", got)
	}
}
