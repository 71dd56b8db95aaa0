package adapter

import (
	"bytes"
	"encoding/json"
	"sort"

	"fastmedia/gateway/internal/models"
	"fastmedia/gateway/internal/utils"
)

// manifestDoc 自适应清单: 多组 representation, 按码率/分辨率区分
type manifestDoc struct {
	AdaptationSet []struct {
		Representation []representation `json:"representation"`
	} `json:"adaptationSet"`
}

type representation struct {
	URL          string   `json:"url"`
	BackupURL    []string `json:"backupUrl"`
	QualityType  string   `json:"qualityType"`
	QualityLabel string   `json:"qualityLabel"`
	Codecs       string   `json:"codecs"`
	Width        int      `json:"width"`
	Height       int      `json:"height"`
	AvgBitrate   int64    `json:"avgBitrate"`
	FileSize     int64    `json:"fileSize"`
}

// ParseManifest 遍历清单中的所有 representation
// raw 可以是清单对象、以字符串形式嵌入的清单, 或按编码分组的清单集合(如 {"h264":{...},"hevc":{...}})
func ParseManifest(raw json.RawMessage, codec string) []models.MediaCandidate {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil || inner == "" {
			return nil
		}
		return ParseManifest(json.RawMessage(inner), codec)
	}
	if raw[0] != '{' {
		return nil
	}

	var doc manifestDoc
	if err := json.Unmarshal(raw, &doc); err == nil && len(doc.AdaptationSet) > 0 {
		return walkManifest(doc, codec)
	}

	var grouped map[string]json.RawMessage
	if err := json.Unmarshal(raw, &grouped); err != nil {
		return nil
	}
	keys := make([]string, 0, len(grouped))
	for k := range grouped {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []models.MediaCandidate
	for _, k := range keys {
		c := utils.NormalizeCodec(k)
		if c != "h264" && c != "h265" && c != "av1" && c != "vp9" {
			continue
		}
		out = append(out, ParseManifest(grouped[k], c)...)
	}
	return out
}

func walkManifest(doc manifestDoc, codec string) []models.MediaCandidate {
	var out []models.MediaCandidate
	for _, set := range doc.AdaptationSet {
		for _, rep := range set.Representation {
			u := utils.DecodeEscapedURL(rep.URL)
			if u == "" && len(rep.BackupURL) > 0 {
				u = utils.DecodeEscapedURL(rep.BackupURL[0])
			}
			if !utils.IsValidURL(u) {
				continue
			}

			c := codec
			if rep.Codecs != "" {
				c = utils.NormalizeCodec(rep.Codecs)
			}
			quality := rep.QualityType
			if quality == "" {
				quality = rep.QualityLabel
			}
			if quality == "" {
				quality = utils.QualityLabel(rep.Height)
			}

			out = append(out, models.MediaCandidate{
				URL:      u,
				Quality:  quality,
				Codec:    c,
				Ext:      "mp4",
				Delivery: models.DeliveryManifest,
				Width:    rep.Width,
				Height:   rep.Height,
				Bitrate:  rep.AvgBitrate,
				Filesize: rep.FileSize,
			})
		}
	}
	return out
}
