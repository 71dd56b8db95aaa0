package models

import (
	"encoding/json"
	"strings"
)

// URLList URL 列表; 同时接受 JSON 数组和逗号分隔的字符串, 自动去掉空白项
type URLList []string

// UnmarshalJSON 解析数组或逗号分隔字符串
func (l *URLList) UnmarshalJSON(data []byte) error {
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		var joined string
		if err2 := json.Unmarshal(data, &joined); err2 != nil {
			return err
		}
		raw = strings.Split(joined, ",")
	}

	out := make([]string, 0, len(raw))
	for _, u := range raw {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	*l = out
	return nil
}

// BatchRequest 批量下载/提取BGM/提取文案请求
type BatchRequest struct {
	URLs URLList `json:"urls"`
}

// ThumbnailRequest 批量提取封面请求
type ThumbnailRequest struct {
	URLs      URLList `json:"urls"`
	Timestamp float64 `json:"timestamp"`
}

// VideoInfoRequest 视频信息请求
type VideoInfoRequest struct {
	URL string `json:"url" binding:"required"`
}

// TempFileQuery 临时文件查询参数
type TempFileQuery struct {
	Path     string `form:"path" binding:"required"`
	FileType string `form:"file_type"`
	Filename string `form:"filename"`
}
