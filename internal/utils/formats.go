package utils

import (
	"sort"
	"strconv"
	"strings"

	"fastmedia/gateway/internal/models"
)

// VideoFormat yt-dlp返回的格式信息
type VideoFormat struct {
	FormatID   string  `json:"format_id"`
	URL        string  `json:"url"`
	Ext        string  `json:"ext"`
	Resolution string  `json:"resolution"`
	Protocol   string  `json:"protocol"`
	Filesize   int64   `json:"filesize"`
	FPS        float64 `json:"fps"`
	VCodec     string  `json:"vcodec"`
	ACodec     string  `json:"acodec"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	TBR        float64 `json:"tbr"`
}

// CandidatesFromFormats 将yt-dlp格式列表转换为候选地址(过滤纯音频)
func CandidatesFromFormats(rawFormats []VideoFormat) []models.MediaCandidate {
	var result []models.MediaCandidate

	for _, f := range rawFormats {
		if f.URL == "" {
			continue
		}
		// 过滤掉纯音频格式
		if f.VCodec == "none" {
			continue
		}

		height := f.Height
		if height == 0 {
			height = extractHeight(f.Resolution)
		}

		delivery := models.DeliveryDirect
		if isManifestProtocol(f.Protocol) {
			delivery = models.DeliveryManifest
		}

		result = append(result, models.MediaCandidate{
			URL:      f.URL,
			Quality:  formatQuality(height),
			Codec:    NormalizeCodec(f.VCodec),
			Ext:      f.Ext,
			Delivery: delivery,
			Width:    f.Width,
			Height:   height,
			Bitrate:  int64(f.TBR * 1000),
			Filesize: f.Filesize,
		})
	}

	return result
}

func isManifestProtocol(protocol string) bool {
	p := strings.ToLower(protocol)
	return strings.Contains(p, "m3u8") || strings.Contains(p, "dash") || strings.Contains(p, "f4m")
}

// NormalizeCodec 统一编码名称
func NormalizeCodec(codec string) string {
	c := strings.ToLower(codec)
	switch {
	case c == "":
		return ""
	case strings.HasPrefix(c, "avc") || strings.HasPrefix(c, "h264"):
		return "h264"
	case strings.HasPrefix(c, "hvc") || strings.HasPrefix(c, "hev") || strings.HasPrefix(c, "h265"):
		return "h265"
	case strings.HasPrefix(c, "av01") || c == "av1":
		return "av1"
	case strings.HasPrefix(c, "vp09") || strings.HasPrefix(c, "vp9"):
		return "vp9"
	default:
		return c
	}
}

// codecRank 编码新旧程度,越新越高
func codecRank(codec string) int {
	switch codec {
	case "av1":
		return 4
	case "h265":
		return 3
	case "vp9":
		return 2
	case "h264":
		return 1
	default:
		return 0
	}
}

// RankCandidates 候选地址排序: 直链优先于清单,其次按编码偏好,再按分辨率
// preferNewer=false 时旧编码(兼容性好)优先
func RankCandidates(cands []models.MediaCandidate, preferNewer bool, maxHeight int) []models.MediaCandidate {
	ranked := make([]models.MediaCandidate, len(cands))
	copy(ranked, cands)

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if (a.Delivery == models.DeliveryDirect) != (b.Delivery == models.DeliveryDirect) {
			return a.Delivery == models.DeliveryDirect
		}
		ca, cb := codecRank(a.Codec), codecRank(b.Codec)
		if ca != cb {
			if preferNewer {
				return ca > cb
			}
			// 未知编码(0)始终排在已知编码之后
			if ca == 0 || cb == 0 {
				return ca > cb
			}
			return ca < cb
		}
		fa, fb := fitsHeight(a.Height, maxHeight), fitsHeight(b.Height, maxHeight)
		if fa != fb {
			return fa
		}
		if fa {
			return a.Height > b.Height
		}
		return a.Height < b.Height
	})

	return ranked
}

func fitsHeight(height, maxHeight int) bool {
	return maxHeight <= 0 || height <= maxHeight
}

// extractHeight 从分辨率字符串提取高度
func extractHeight(resolution string) int {
	if resolution == "" {
		return 0
	}

	// 格式: "1920x1080" 或 "1080p"
	parts := strings.Split(resolution, "x")
	if len(parts) == 2 {
		height, _ := strconv.Atoi(parts[1])
		return height
	}

	resolution = strings.TrimSuffix(resolution, "p")
	height, _ := strconv.Atoi(resolution)
	return height
}

// formatQuality 将高度转换为质量标签
func formatQuality(height int) string {
	switch {
	case height == 0:
		return "unknown"
	case height >= 2160:
		return "4K"
	case height >= 1440:
		return "2K"
	case height >= 1080:
		return "1080p"
	case height >= 720:
		return "720p"
	case height >= 480:
		return "480p"
	case height >= 360:
		return "360p"
	default:
		return "240p"
	}
}

// QualityLabel 对外暴露的质量标签
func QualityLabel(height int) string {
	return formatQuality(height)
}
