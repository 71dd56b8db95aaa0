package models

// Delivery 媒体地址的交付方式
type Delivery string

const (
	DeliveryDirect   Delivery = "direct"
	DeliveryManifest Delivery = "manifest"
)

// Origin 资源由哪类策略解析得到,决定后续抓取方式
type Origin string

const (
	// OriginEngine 由通用提取引擎解析,抓取时也交给引擎(合并音视频等)
	OriginEngine Origin = "engine"
	// OriginDirect 由接口/页面解析出可直接下载的地址
	OriginDirect Origin = "direct"
	// OriginSandbox 沙箱模式下的占位资源
	OriginSandbox Origin = "sandbox"
)

// MediaCandidate 候选媒体地址
type MediaCandidate struct {
	URL      string   `json:"url"`
	Quality  string   `json:"quality"`
	Codec    string   `json:"codec"`
	Ext      string   `json:"ext"`
	Delivery Delivery `json:"delivery"`
	Width    int      `json:"width,omitempty"`
	Height   int      `json:"height,omitempty"`
	Bitrate  int64    `json:"bitrate,omitempty"`
	Filesize int64    `json:"filesize,omitempty"`
}

// VideoAsset 解析成功后的视频资源描述,仅在单次请求内有效
type VideoAsset struct {
	ContentID    string           `json:"content_id"`
	Platform     Platform         `json:"platform"`
	Extractor    string           `json:"extractor"`
	Title        string           `json:"title"`
	Description  string           `json:"description,omitempty"`
	Tags         []string         `json:"tags,omitempty"`
	Duration     float64          `json:"duration"`
	Uploader     string           `json:"uploader"`
	ThumbnailURL string           `json:"thumbnail_url,omitempty"`
	PageURL      string           `json:"page_url"`
	Candidates   []MediaCandidate `json:"candidates"`
	Subtitles    []Subtitle       `json:"subtitles,omitempty"`
	Origin       Origin           `json:"origin"`
	Strategy     string           `json:"strategy"`
	Sandbox      bool             `json:"sandbox,omitempty"`
}

// Subtitle 字幕轨道, Automatic 表示平台自动生成
type Subtitle struct {
	Lang      string `json:"lang"`
	Ext       string `json:"ext"`
	URL       string `json:"url"`
	Automatic bool   `json:"automatic,omitempty"`
}

// Best 返回排序后的首选候选地址
func (a *VideoAsset) Best() (MediaCandidate, bool) {
	if a == nil || len(a.Candidates) == 0 {
		return MediaCandidate{}, false
	}
	return a.Candidates[0], true
}

// Tag 文件名前缀: 优先使用提取器名称,否则使用平台标签
func (a *VideoAsset) Tag() string {
	if a.Extractor != "" {
		return a.Extractor
	}
	return a.Platform.FileTag()
}
