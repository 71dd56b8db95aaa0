package normalizer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"fastmedia/gateway/internal/config"
	"fastmedia/gateway/internal/detector"
)

// routeTo 把所有请求转发到测试服务器,同时保留原始请求URL
type routeTo struct {
	target *url.URL
}

func (r routeTo) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = r.target.Scheme
	out.URL.Host = r.target.Host
	resp, err := http.DefaultTransport.RoundTrip(out)
	if err != nil {
		return nil, err
	}
	resp.Request = req
	return resp, nil
}

func newTestNormalizer(t *testing.T, handler http.Handler, redirectTimeout int) *Normalizer {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	target, _ := url.Parse(srv.URL)

	cfg := config.Default()
	cfg.Normalizer.RedirectTimeout = redirectTimeout
	client := &http.Client{Transport: routeTo{target: target}}
	return New(cfg, detector.NewPlatformDetector(&cfg.Platforms), client, zaptest.NewLogger(t))
}

func bilibiliShortLink() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Host == "b23.tv" && r.URL.Path == "/abcd":
			http.Redirect(w, r, "https://www.bilibili.com/video/BV1xx411c7mD?spm_id_from=333&p=2", http.StatusFound)
		case r.Host == "b23.tv" && r.URL.Path == "/elsewhere":
			http.Redirect(w, r, "https://example.com/landing", http.StatusFound)
		case r.Host == "b23.tv" && r.URL.Path == "/gone":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusOK)
		}
	})
}

func TestNormalize_ResolvesShortLink(t *testing.T) {
	n := newTestNormalizer(t, bilibiliShortLink(), 10)
	got := n.Normalize(context.Background(), "【分享】 https://b23.tv/abcd 快来看")
	want := "https://www.bilibili.com/video/BV1xx411c7mD?p=2"
	if got != want {
		t.Fatalf("Normalize=%q, want %q", got, want)
	}
}

func TestNormalize_RedirectFailuresKeepOriginal(t *testing.T) {
	n := newTestNormalizer(t, bilibiliShortLink(), 10)
	for _, in := range []string{"https://b23.tv/gone", "https://b23.tv/elsewhere"} {
		if got := n.Normalize(context.Background(), in); got != in {
			t.Fatalf("Normalize(%q)=%q, want original", in, got)
		}
	}
}

func TestNormalize_RedirectTimeoutIsBounded(t *testing.T) {
	hang := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})
	n := newTestNormalizer(t, hang, 1)

	start := time.Now()
	got := n.Normalize(context.Background(), "https://b23.tv/slow")
	elapsed := time.Since(start)

	if got != "https://b23.tv/slow" {
		t.Fatalf("Normalize=%q, want pre-redirect url", got)
	}
	if elapsed > 3*time.Second {
		t.Fatalf("redirect resolution blocked for %s", elapsed)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	n := newTestNormalizer(t, bilibiliShortLink(), 10)
	inputs := []string{
		"https://b23.tv/abcd",
		"https://www.bilibili.com/video/BV1?p=1&vd_source=x&t=5",
		"https://www.xiaohongshu.com/explore/66aa?xsec_token=AB%3D&xsec_source=pc_share&utm=1",
		"https://www.youtube.com/watch?v=abc&feature=share&si=zzz",
		"https://x.com/u/status/1?s=20&t=abc",
		"分享 https://v.kuaishou.com/AbC12 复制链接",
		"https://example.com/page?a=1",
		"not-a-url",
		"   ",
		"",
	}
	for _, in := range inputs {
		once := n.Normalize(context.Background(), in)
		twice := n.Normalize(context.Background(), once)
		if once != twice {
			t.Fatalf("not idempotent for %q: %q -> %q", in, once, twice)
		}
	}
}

func TestNormalize_AllowLists(t *testing.T) {
	n := newTestNormalizer(t, bilibiliShortLink(), 10)
	cases := []struct {
		in, want string
	}{
		{
			"https://www.xiaohongshu.com/explore/66aa?xsec_token=AB&xsec_source=pc_share&utm=1",
			"https://www.xiaohongshu.com/explore/66aa?xsec_source=pc_share&xsec_token=AB",
		},
		{
			"https://www.youtube.com/watch?v=abc&feature=share",
			"https://www.youtube.com/watch?v=abc",
		},
		{
			"https://x.com/u/status/1?s=20",
			"https://x.com/u/status/1",
		},
		{
			"https://example.com/page?a=1#frag",
			"https://example.com/page?a=1#frag",
		},
		{"  not-a-url  ", "not-a-url"},
	}
	for _, c := range cases {
		if got := n.Normalize(context.Background(), c.in); got != c.want {
			t.Fatalf("Normalize(%q)=%q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalize_KuaishouShareShapes(t *testing.T) {
	n := newTestNormalizer(t, bilibiliShortLink(), 10)
	cases := []struct {
		in, want string
	}{
		// 分享链接规则只保留路径
		{
			"快手 https://www.kuaishou.com/f/X-abc123?shareToken=TKN&shareId=9 打开",
			"https://www.kuaishou.com/f/X-abc123",
		},
		{
			"https://www.kuaishou.com/short-video/3xabc?authorId=1&shareId=9",
			"https://www.kuaishou.com/short-video/3xabc",
		},
		// 分享页走通用规则, 白名单参数保留
		{
			"https://v.m.chenzhongtech.com/fw/photo/3xabc?photoId=3xabc&shareId=9&shareToken=TKN&fid=1&cc=share_copylink",
			"https://v.m.chenzhongtech.com/fw/photo/3xabc?photoId=3xabc&shareId=9&shareToken=TKN",
		},
	}
	for _, c := range cases {
		if got := n.Normalize(context.Background(), c.in); got != c.want {
			t.Fatalf("Normalize(%q)=%q, want %q", c.in, got, c.want)
		}
	}
}
