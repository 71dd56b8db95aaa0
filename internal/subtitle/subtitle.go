// Package subtitle 字幕轨道选择、下载与纯文本提取
package subtitle

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"fastmedia/gateway/internal/httpclient"
	"fastmedia/gateway/internal/models"
)

const (
	fetchTimeout = 10 * time.Second
	maxBytes     = 10 << 20
)

// DefaultLanguages 字幕语言优先级: 中文优先, 其次英文
var DefaultLanguages = []string{"zh", "zh-CN", "zh-Hans", "en", "en-US"}

var (
	htmlTag   = regexp.MustCompile(`<[^>]+>`)
	cueTiming = regexp.MustCompile(`\d{2}:\d{2}:\d{2}[.,]\d{3}\s*-->\s*\d{2}:\d{2}:\d{2}[.,]\d{3}`)
	blankRun  = regexp.MustCompile(`\s+`)
	digits    = regexp.MustCompile(`^\d+$`)
)

// 同一语言下优先可直接解析的格式
var extRank = map[string]int{"vtt": 0, "srt": 1}

// Pick 按语言优先级选择字幕; 同一语言人工字幕优先于自动字幕
func Pick(subs []models.Subtitle, langs []string) *models.Subtitle {
	for _, lang := range langs {
		var best *models.Subtitle
		for i := range subs {
			sub := &subs[i]
			if sub.URL == "" || !strings.EqualFold(sub.Lang, lang) {
				continue
			}
			if best == nil || better(sub, best) {
				best = sub
			}
		}
		if best != nil {
			return best
		}
	}
	return nil
}

func better(a, b *models.Subtitle) bool {
	if a.Automatic != b.Automatic {
		return !a.Automatic
	}
	return rank(a.Ext) < rank(b.Ext)
}

func rank(ext string) int {
	if r, ok := extRank[strings.ToLower(ext)]; ok {
		return r
	}
	return len(extRank)
}

// Fetch 下载字幕并转为纯文本, 最多读取10MB
func Fetch(ctx context.Context, client *http.Client, sub *models.Subtitle) (string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	client = httpclient.WithTimeout(client, fetchTimeout, false)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sub.URL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid subtitle URL: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading subtitle: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("subtitle download returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
	if err != nil {
		return "", fmt.Errorf("reading subtitle: %w", err)
	}
	return Parse(string(body), sub.URL, sub.Ext), nil
}

// Parse 按地址后缀、格式或内容判断字幕格式并提取文本
func Parse(content, url, ext string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	path := strings.ToLower(strings.SplitN(url, "?", 2)[0])
	ext = strings.ToLower(ext)
	switch {
	case ext == "vtt" || strings.HasSuffix(path, ".vtt") || strings.Contains(strings.ToLower(content), "webvtt"):
		return ParseVTT(content)
	case ext == "srt" || strings.HasSuffix(path, ".srt") || strings.Contains(content, "-->"):
		return ParseSRT(content)
	default:
		return PlainText(content)
	}
}

// ParseVTT 去掉头部、时间轴和样式标签, 相邻重复行只保留一次(自动字幕常见)
func ParseVTT(content string) string {
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.Contains(line, "-->") || strings.HasPrefix(line, "WEBVTT") {
			continue
		}
		if strings.HasPrefix(line, "Kind:") || strings.HasPrefix(line, "Language:") {
			continue
		}
		lines = appendLine(lines, htmlTag.ReplaceAllString(line, ""))
	}
	return strings.Join(lines, "\n")
}

// ParseSRT 去掉序号和时间轴
func ParseSRT(content string) string {
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || digits.MatchString(line) || strings.Contains(line, "-->") {
			continue
		}
		lines = appendLine(lines, htmlTag.ReplaceAllString(line, ""))
	}
	return strings.Join(lines, "\n")
}

// PlainText 未知格式: 去掉标签和时间轴, 合并空白
func PlainText(content string) string {
	clean := htmlTag.ReplaceAllString(content, "")
	clean = cueTiming.ReplaceAllString(clean, "")
	return strings.TrimSpace(blankRun.ReplaceAllString(clean, " "))
}

func appendLine(lines []string, line string) []string {
	line = strings.TrimSpace(line)
	if line == "" || (len(lines) > 0 && lines[len(lines)-1] == line) {
		return lines
	}
	return append(lines, line)
}
