package models

import "time"

// FetchStatus 单条结果状态
type FetchStatus string

const (
	StatusSuccess FetchStatus = "success"
	StatusError   FetchStatus = "error"
)

// FetchResult 单个URL的处理结果
// TempFilePath 与 Error 二者恰有其一
type FetchResult struct {
	URL              string      `json:"url"`
	ProcessedURL     string      `json:"processed_url,omitempty"`
	Status           FetchStatus `json:"status"`
	Title            string      `json:"title,omitempty"`
	Platform         Platform    `json:"platform,omitempty"`
	TempFilePath     string      `json:"temp_filepath,omitempty"`
	DownloadFilename string      `json:"download_filename,omitempty"`
	Filesize         int64       `json:"filesize"`
	Duration         float64     `json:"duration"`
	Uploader         string      `json:"uploader,omitempty"`
	Timestamp        *float64    `json:"timestamp,omitempty"`
	Method           string      `json:"method,omitempty"`
	TextContent      string      `json:"text_content,omitempty"`
	HasSubtitles     bool        `json:"has_subtitles,omitempty"`
	Error            string      `json:"error,omitempty"`
	ErrorKind        string      `json:"error_kind,omitempty"`
}

// Failed 构造失败结果
func Failed(url string, platform Platform, kind, message string) FetchResult {
	return FetchResult{
		URL:       url,
		Status:    StatusError,
		Platform:  platform,
		Error:     message,
		ErrorKind: kind,
	}
}

// FileType 临时文件类型,决定使用哪个存储目录
type FileType string

const (
	FileTypeVideo     FileType = "video"
	FileTypeBGM       FileType = "bgm"
	FileTypeThumbnail FileType = "thumbnail"
	FileTypeText      FileType = "text"
)

// ParseFileType 解析文件类型,空值视为视频
func ParseFileType(s string) (FileType, bool) {
	switch FileType(s) {
	case "", FileTypeVideo:
		return FileTypeVideo, true
	case FileTypeBGM:
		return FileTypeBGM, true
	case FileTypeThumbnail:
		return FileTypeThumbnail, true
	case FileTypeText:
		return FileTypeText, true
	default:
		return "", false
	}
}

// TempFileStatus 临时文件状态,文件不存在不是错误
type TempFileStatus struct {
	Exists       bool      `json:"exists"`
	Size         int64     `json:"size,omitempty"`
	ModifiedTime time.Time `json:"modified_time,omitempty"`
}

// VideoInfo 只解析不下载时返回的信息
type VideoInfo struct {
	Title        string   `json:"title"`
	Duration     float64  `json:"duration"`
	Uploader     string   `json:"uploader"`
	Thumbnail    string   `json:"thumbnail"`
	Platform     Platform `json:"platform"`
	OriginalURL  string   `json:"original_url"`
	ProcessedURL string   `json:"processed_url"`
	Strategy     string   `json:"strategy"`
}

// ProgressMessage 批处理进度消息
type ProgressMessage struct {
	BatchID  string      `json:"batch_id"`
	Index    int         `json:"index"`
	Total    int         `json:"total"`
	URL      string      `json:"url"`
	Status   FetchStatus `json:"status"`
	Message  string      `json:"message,omitempty"`
	Finished int         `json:"finished"`
}
