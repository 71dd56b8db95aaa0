package utils

import (
	"regexp"
	"testing"
)

func TestExtractURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"看看这个视频 https://b23.tv/abcd 快来", "https://b23.tv/abcd"},
		{"  https://www.youtube.com/watch?v=x  ", "https://www.youtube.com/watch?v=x"},
		{"【标题】https://www.xiaohongshu.com/explore/1?xsec_token=t，复制打开", "https://www.xiaohongshu.com/explore/1?xsec_token=t"},
		{"not-a-url", "not-a-url"},
		{"", ""},
	}
	for _, c := range cases {
		if got := ExtractURL(c.in); got != c.want {
			t.Fatalf("ExtractURL(%q)=%q, want %q", c.in, got, c.want)
		}
	}
}

func TestExtractURL_PatternsFirst(t *testing.T) {
	p := regexp.MustCompile(`https://v\.kuaishou\.com/[A-Za-z0-9]+`)
	in := "https://other.example/x 再看 https://v.kuaishou.com/AbC12 更多"
	if got := ExtractURL(in, p); got != "https://v.kuaishou.com/AbC12" {
		t.Fatalf("ExtractURL=%q", got)
	}
}

func TestHostMatches(t *testing.T) {
	cases := []struct {
		host, domain string
		want         bool
	}{
		{"www.bilibili.com", "bilibili.com", true},
		{"bilibili.com", "bilibili.com", true},
		{"x.com", "x.com", true},
		{"box.com", "x.com", false},
		{"127.0.0.1:8080", "127.0.0.1", true},
		{"WWW.YOUTUBE.COM", "youtube.com", true},
	}
	for _, c := range cases {
		if got := HostMatches(c.host, c.domain); got != c.want {
			t.Fatalf("HostMatches(%q,%q)=%v", c.host, c.domain, got)
		}
	}
}

func TestCleanQuery(t *testing.T) {
	in := "https://www.bilibili.com/video/BV1xx?spm_id_from=333&p=2&vd_source=abc&t=30#reply"
	want := "https://www.bilibili.com/video/BV1xx?p=2&t=30"
	got := CleanQuery(in, []string{"p", "t", "dm"})
	if got != want {
		t.Fatalf("CleanQuery=%q, want %q", got, want)
	}
	if again := CleanQuery(got, []string{"p", "t", "dm"}); again != got {
		t.Fatalf("CleanQuery not idempotent: %q -> %q", got, again)
	}
	if got := CleanQuery("https://x.com/a/status/1?s=20", nil); got != "https://x.com/a/status/1" {
		t.Fatalf("CleanQuery drop-all=%q", got)
	}
}

func TestDecodeEscapedURL(t *testing.T) {
	in := `https:\u002F\u002Fv.example.com\u002Fa.mp4?x=1\u0026y=2`
	if got := DecodeEscapedURL(in); got != "https://v.example.com/a.mp4?x=1&y=2" {
		t.Fatalf("DecodeEscapedURL=%q", got)
	}
	if got := DecodeEscapedURL(`https:\/\/a.b\/c`); got != "https://a.b/c" {
		t.Fatalf("DecodeEscapedURL=%q", got)
	}
}
