package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"fastmedia/gateway/internal/config"
	"fastmedia/gateway/internal/httpclient"
	"fastmedia/gateway/internal/models"
	"fastmedia/gateway/internal/utils"
)

// kuaishouIDPatterns 按顺序尝试的内容ID提取规则
var kuaishouIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/short-video/([^?/#]+)`),
	regexp.MustCompile(`[?&]photoId=([^&#]+)`),
	regexp.MustCompile(`[?&]shareObjectId=([^&#]+)`),
}

// ExtractKuaishouID 从地址中提取作品ID
func ExtractKuaishouID(rawURL string) string {
	for _, p := range kuaishouIDPatterns {
		if m := p.FindStringSubmatch(rawURL); len(m) == 2 {
			if id, err := url.QueryUnescape(m[1]); err == nil {
				return id
			}
			return m[1]
		}
	}
	return ""
}

// KuaishouLocator 分享链接不跟随跳转, 读取 Location 作为落地页, 再提取作品ID
func KuaishouLocator(client *http.Client, logger *zap.Logger) Locator {
	noRedirect := httpclient.WithTimeout(client, client.Timeout, true)

	return func(ctx context.Context, target *Target) {
		if id := ExtractKuaishouID(target.URL); id != "" {
			target.ContentID = id
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL, nil)
		if err != nil {
			return
		}
		resp, err := noRedirect.Do(req)
		if err != nil {
			logger.Warn("kuaishou share redirect failed", zap.String("url", target.URL), zap.Error(err))
			return
		}
		resp.Body.Close()

		if resp.StatusCode >= 300 && resp.StatusCode < 400 {
			if loc, err := resp.Location(); err == nil {
				target.PageURL = loc.String()
			}
		}
		target.ContentID = ExtractKuaishouID(target.PageURL)
		logger.Debug("kuaishou share located",
			zap.String("url", target.URL),
			zap.String("page_url", target.PageURL),
			zap.String("photo_id", target.ContentID))
	}
}

// KuaishouVariants 引擎依次尝试: 分享链接、落地页、标准作品页
func KuaishouVariants(target *Target) []string {
	urls := []string{target.URL, target.PageURL}
	if target.ContentID != "" {
		urls = append(urls, "https://www.kuaishou.com/short-video/"+url.PathEscape(target.ContentID))
	}
	return urls
}

const recoQuery = `fragment photoContent on PhotoEntity {
  __typename
  id
  duration
  caption
  originCaption
  coverUrl
  photoUrl
  photoH265Url
  manifest
  manifestH265
  videoResource
  timestamp
}

query visionShortVideoReco($semKeyword: String, $semCrowd: String, $utmSource: String, $utmMedium: String, $page: String, $photoId: String, $utmCampaign: String) {
  visionShortVideoReco(semKeyword: $semKeyword, semCrowd: $semCrowd, utmSource: $utmSource, utmMedium: $utmMedium, page: $page, photoId: $photoId, utmCampaign: $utmCampaign) {
    llsid
    feeds {
      type
      author {
        id
        name
        __typename
      }
      photo {
        ...photoContent
        __typename
      }
      __typename
    }
    __typename
  }
}`

const detailQuery = `query visionVideoDetail($photoId: String, $type: String) { visionVideoDetail(photoId: $photoId, type: $type) { photo { id caption duration playUrl photoUrl } } }`

// ksPhoto 作品数据, 两种查询共用
type ksPhoto struct {
	ID            string          `json:"id"`
	Caption       string          `json:"caption"`
	OriginCaption string          `json:"originCaption"`
	Duration      float64         `json:"duration"` // 毫秒
	CoverURL      string          `json:"coverUrl"`
	PlayURL       string          `json:"playUrl"`
	PhotoURL      string          `json:"photoUrl"`
	PhotoH265URL  string          `json:"photoH265Url"`
	Manifest      json.RawMessage `json:"manifest"`
	ManifestH265  json.RawMessage `json:"manifestH265"`
	VideoResource json.RawMessage `json:"videoResource"`
}

type graphqlRequest struct {
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
	Query         string         `json:"query"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// KuaishouGraphQL 通过作品接口获取播放地址
type KuaishouGraphQL struct {
	name      string
	client    *http.Client
	endpoint  string
	params    url.Values
	operation string
	query     string
	preferNew bool
	maxHeight int
	logger    *zap.Logger
}

// NewKuaishouReco 推荐流查询, 返回完整的编码/清单信息
func NewKuaishouReco(client *http.Client, pc *config.PlatformConfig, logger *zap.Logger) *KuaishouGraphQL {
	return &KuaishouGraphQL{
		name:      "graphql_reco",
		client:    client,
		endpoint:  pc.APIEndpoint,
		params:    url.Values{"v": {"3.9.48"}, "kpn": {"30"}},
		operation: "visionShortVideoReco",
		query:     recoQuery,
		preferNew: pc.PreferNewerCodec,
		maxHeight: pc.MaxHeight,
		logger:    logger,
	}
}

// NewKuaishouDetail 公开详情查询, 仅返回播放地址
func NewKuaishouDetail(client *http.Client, pc *config.PlatformConfig, logger *zap.Logger) *KuaishouGraphQL {
	return &KuaishouGraphQL{
		name:      "graphql_detail",
		client:    client,
		endpoint:  pc.APIEndpoint,
		operation: "visionVideoDetail",
		query:     detailQuery,
		preferNew: pc.PreferNewerCodec,
		maxHeight: pc.MaxHeight,
		logger:    logger,
	}
}

func (s *KuaishouGraphQL) Name() string { return s.name }

func (s *KuaishouGraphQL) variables(photoID string) map[string]any {
	if s.operation == "visionVideoDetail" {
		return map[string]any{"photoId": photoID, "type": "PHOTO"}
	}
	return map[string]any{
		"utmSource":   "pc_share",
		"utmMedium":   "pc_share",
		"page":        "detail",
		"photoId":     photoID,
		"utmCampaign": "pc_share",
	}
}

func (s *KuaishouGraphQL) Attempt(ctx context.Context, target *Target) (*models.VideoAsset, error) {
	if target.ContentID == "" {
		return nil, fmt.Errorf("%w: photo id not found in %s", utils.ErrNoPlayURL, target.PageURL)
	}

	data, err := s.post(ctx, target.ContentID)
	if err != nil {
		return nil, err
	}

	photo, author, err := s.photoFrom(data)
	if err != nil {
		return nil, err
	}

	cands := photoCandidates(photo)
	if len(cands) == 0 {
		return nil, fmt.Errorf("%w: %s returned no media url", utils.ErrNoPlayURL, s.operation)
	}

	title := photo.Caption
	if title == "" {
		title = photo.OriginCaption
	}
	id := photo.ID
	if id == "" {
		id = target.ContentID
	}

	return &models.VideoAsset{
		ContentID:    id,
		Extractor:    string(models.PlatformKuaishou),
		Title:        title,
		Duration:     photo.Duration / 1000,
		Uploader:     author,
		ThumbnailURL: utils.DecodeEscapedURL(photo.CoverURL),
		PageURL:      "https://www.kuaishou.com/short-video/" + url.PathEscape(id),
		Candidates:   utils.RankCandidates(cands, s.preferNew, s.maxHeight),
		Origin:       models.OriginDirect,
	}, nil
}

func (s *KuaishouGraphQL) post(ctx context.Context, photoID string) (json.RawMessage, error) {
	body, err := json.Marshal(graphqlRequest{
		OperationName: s.operation,
		Variables:     s.variables(photoID),
		Query:         s.query,
	})
	if err != nil {
		return nil, err
	}

	endpoint := s.endpoint
	if len(s.params) > 0 {
		endpoint += "?" + s.params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Origin", "https://www.kuaishou.com")
	req.Header.Set("Referer", "https://www.kuaishou.com/short-video/"+url.PathEscape(photoID))
	req.Header.Set("Sec-Fetch-Dest", "empty")
	req.Header.Set("Sec-Fetch-Mode", "cors")
	req.Header.Set("Sec-Fetch-Site", "same-origin")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", s.operation, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%s read: %w", s.operation, err)
	}
	if err := statusError(resp.StatusCode); err != nil {
		return nil, fmt.Errorf("%w: %s", err, s.operation)
	}

	var gr graphqlResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return nil, fmt.Errorf("%w: %s response is not json: %v", utils.ErrAPILimited, s.operation, err)
	}
	if len(gr.Errors) > 0 && (len(gr.Data) == 0 || bytes.Equal(gr.Data, []byte("null"))) {
		return nil, fmt.Errorf("%w: %s: %s", utils.ErrAPILimited, s.operation, gr.Errors[0].Message)
	}
	return gr.Data, nil
}

func (s *KuaishouGraphQL) photoFrom(data json.RawMessage) (*ksPhoto, string, error) {
	if s.operation == "visionVideoDetail" {
		var d struct {
			VisionVideoDetail *struct {
				Photo *ksPhoto `json:"photo"`
			} `json:"visionVideoDetail"`
		}
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, "", fmt.Errorf("%w: detail parse: %v", utils.ErrAPILimited, err)
		}
		if d.VisionVideoDetail == nil || d.VisionVideoDetail.Photo == nil {
			return nil, "", fmt.Errorf("%w: detail has no photo", utils.ErrVideoNotFound)
		}
		return d.VisionVideoDetail.Photo, "", nil
	}

	var d struct {
		VisionShortVideoReco *struct {
			Feeds []struct {
				Author struct {
					Name string `json:"name"`
				} `json:"author"`
				Photo *ksPhoto `json:"photo"`
			} `json:"feeds"`
		} `json:"visionShortVideoReco"`
	}
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, "", fmt.Errorf("%w: reco parse: %v", utils.ErrAPILimited, err)
	}
	if d.VisionShortVideoReco == nil || len(d.VisionShortVideoReco.Feeds) == 0 || d.VisionShortVideoReco.Feeds[0].Photo == nil {
		return nil, "", fmt.Errorf("%w: reco returned no feeds", utils.ErrAPILimited)
	}
	feed := d.VisionShortVideoReco.Feeds[0]
	return feed.Photo, feed.Author.Name, nil
}

// photoCandidates 汇总直连地址与清单中的所有候选
func photoCandidates(p *ksPhoto) []models.MediaCandidate {
	var out []models.MediaCandidate
	seen := make(map[string]bool)
	add := func(c models.MediaCandidate) {
		if !utils.IsValidURL(c.URL) || seen[c.URL] {
			return
		}
		seen[c.URL] = true
		out = append(out, c)
	}

	for _, d := range []struct {
		url, codec string
	}{
		{p.PhotoURL, "h264"},
		{p.PhotoH265URL, "h265"},
		{p.PlayURL, "h264"},
	} {
		add(models.MediaCandidate{
			URL:      utils.DecodeEscapedURL(d.url),
			Quality:  "standard",
			Codec:    d.codec,
			Ext:      "mp4",
			Delivery: models.DeliveryDirect,
		})
	}

	for _, c := range ParseManifest(p.VideoResource, "") {
		add(c)
	}
	for _, c := range ParseManifest(p.Manifest, "h264") {
		add(c)
	}
	for _, c := range ParseManifest(p.ManifestH265, "h265") {
		add(c)
	}
	return out
}

// statusError HTTP 状态码映射为错误类别
func statusError(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound || code == http.StatusGone:
		return fmt.Errorf("%w: http %d", utils.ErrVideoNotFound, code)
	case code == http.StatusForbidden || code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: http %d", utils.ErrAPILimited, code)
	case code == http.StatusUnauthorized:
		return fmt.Errorf("%w: http %d", utils.ErrVideoPrivate, code)
	default:
		return fmt.Errorf("unexpected http status %d", code)
	}
}

// trimTitle 去掉平台默认标题
func trimTitle(title string, generic ...string) string {
	title = strings.TrimSpace(title)
	for _, g := range generic {
		if title == g {
			return ""
		}
	}
	return title
}
