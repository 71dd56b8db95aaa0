package adapter

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"fastmedia/gateway/internal/models"
	"fastmedia/gateway/internal/utils"
	"fastmedia/gateway/internal/ytdlp"
)

// countingStrategy 记录调用次数的测试策略
type countingStrategy struct {
	name  string
	asset *models.VideoAsset
	err   error
	calls int
}

func (s *countingStrategy) Name() string { return s.name }

func (s *countingStrategy) Attempt(ctx context.Context, target *Target) (*models.VideoAsset, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.asset, nil
}

// fakeEngine 替代 yt-dlp 的引擎
type fakeEngine struct {
	mu    sync.Mutex
	calls []string
	opts  []ytdlp.Options
	infos map[string]*ytdlp.VideoInfo
	err   error
}

func (f *fakeEngine) ExtractInfo(ctx context.Context, url string, opts ytdlp.Options) (*ytdlp.VideoInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	f.opts = append(f.opts, opts)
	if info, ok := f.infos[url]; ok {
		return info, nil
	}
	if f.err != nil {
		return nil, f.err
	}
	return nil, utils.ErrVideoNotFound
}

func (f *fakeEngine) Download(ctx context.Context, url string, opts ytdlp.Options, outputBase string) (string, error) {
	return "", errors.New("not used")
}

func (f *fakeEngine) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func directAsset(title string) *models.VideoAsset {
	return &models.VideoAsset{
		Title:      title,
		Origin:     models.OriginDirect,
		Candidates: []models.MediaCandidate{{URL: "https://cdn.example.com/" + title + ".mp4", Delivery: models.DeliveryDirect}},
	}
}

func TestChain_StopsAtFirstSuccess(t *testing.T) {
	a := &countingStrategy{name: "a", err: utils.ErrAPILimited}
	b := &countingStrategy{name: "b", asset: directAsset("from-b")}
	c := &countingStrategy{name: "c", asset: directAsset("from-c")}

	chain := NewChain(models.PlatformKuaishou, nil, zaptest.NewLogger(t), a, b, c)
	asset, err := chain.Resolve(context.Background(), "https://www.kuaishou.com/short-video/abc")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if asset.Title != "from-b" || asset.Strategy != "b" || asset.Platform != models.PlatformKuaishou {
		t.Fatalf("unexpected asset: %+v", asset)
	}
	if a.calls != 1 || b.calls != 1 || c.calls != 0 {
		t.Fatalf("calls a=%d b=%d c=%d, want 1 1 0", a.calls, b.calls, c.calls)
	}
}

func TestChain_EmptyAssetCountsAsFailure(t *testing.T) {
	a := &countingStrategy{name: "a", asset: &models.VideoAsset{Origin: models.OriginDirect}}
	b := &countingStrategy{name: "b", asset: directAsset("ok")}

	chain := NewChain(models.PlatformXiaohongshu, nil, zaptest.NewLogger(t), a, b)
	asset, err := chain.Resolve(context.Background(), "https://www.xiaohongshu.com/explore/1")
	if err != nil || asset.Strategy != "b" {
		t.Fatalf("expected b to win, got %+v err=%v", asset, err)
	}
}

func TestChain_AggregatedFailure(t *testing.T) {
	a := &countingStrategy{name: "a", err: utils.ErrGeoRestricted}
	b := &countingStrategy{name: "b", err: errors.New("markup changed")}

	chain := NewChain(models.PlatformKuaishou, nil, zaptest.NewLogger(t), a, b)
	_, err := chain.Resolve(context.Background(), "https://v.kuaishou.com/x")

	var re *utils.ResolveError
	if !errors.As(err, &re) {
		t.Fatalf("expected ResolveError, got %T", err)
	}
	if len(re.Attempts) != 2 {
		t.Fatalf("attempts=%d, want 2", len(re.Attempts))
	}
	if re.Kind != utils.KindRegionRestricted {
		t.Fatalf("kind=%s, want most informative %s", re.Kind, utils.KindRegionRestricted)
	}
}

func TestChain_LocatorRunsOnce(t *testing.T) {
	located := 0
	locate := func(_ context.Context, target *Target) {
		located++
		target.PageURL = "https://www.kuaishou.com/short-video/3x"
		target.ContentID = "3x"
	}
	a := &countingStrategy{name: "a", err: utils.ErrAPILimited}
	b := &countingStrategy{name: "b", asset: directAsset("ok")}

	chain := NewChain(models.PlatformKuaishou, locate, zaptest.NewLogger(t), a, b)
	asset, err := chain.Resolve(context.Background(), "https://v.kuaishou.com/x")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if located != 1 {
		t.Fatalf("locator ran %d times", located)
	}
	if asset.ContentID != "3x" || asset.PageURL != "https://www.kuaishou.com/short-video/3x" {
		t.Fatalf("target not propagated: %+v", asset)
	}
}

func TestChain_CancelledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a := &countingStrategy{name: "a", err: context.Canceled}
	b := &countingStrategy{name: "b", asset: directAsset("ok")}
	cancel()

	chain := NewChain(models.PlatformBilibili, nil, zaptest.NewLogger(t), a, b)
	if _, err := chain.Resolve(ctx, "https://www.bilibili.com/video/BV1"); err == nil {
		t.Fatalf("expected failure on cancelled context")
	}
	if b.calls != 0 {
		t.Fatalf("strategy b should not run after cancellation")
	}
}

func TestEngineStrategy_Variants(t *testing.T) {
	engine := &fakeEngine{infos: map[string]*ytdlp.VideoInfo{
		"https://www.kuaishou.com/short-video/3x": {
			ID:           "3x",
			Title:        "demo",
			ExtractorKey: "Kuaishou",
			URL:          "https://cdn/3x.mp4",
			Ext:          "mp4",
		},
	}}
	s := NewEngineStrategy("ytdlp", engine, ytdlp.Options{Format: "best"}, nil).WithVariants(KuaishouVariants)

	target := &Target{
		URL:       "https://v.kuaishou.com/x",
		PageURL:   "https://v.kuaishou.com/x",
		ContentID: "3x",
	}
	asset, err := s.Attempt(context.Background(), target)
	if err != nil {
		t.Fatalf("Attempt: %v", err)
	}
	if engine.callCount() != 2 {
		t.Fatalf("engine called %d times, want 2 (duplicate variant skipped)", engine.callCount())
	}
	if asset.Origin != models.OriginEngine || asset.Extractor != "kuaishou" || asset.PageURL != "https://www.kuaishou.com/short-video/3x" {
		t.Fatalf("unexpected asset: %+v", asset)
	}
	if best, ok := asset.Best(); !ok || best.URL != "https://cdn/3x.mp4" {
		t.Fatalf("best=%+v", best)
	}
}

func TestAssetFromInfo_TextFields(t *testing.T) {
	info := &ytdlp.VideoInfo{
		ID:          "abc",
		Title:       "demo",
		Description: "desc",
		Tags:        []string{"a", "b"},
		URL:         "https://cdn/abc.mp4",
		Subtitles: map[string][]ytdlp.SubtitleTrack{
			"en": {{Ext: "vtt", URL: "https://s/en.vtt"}},
			"de": {{Ext: "vtt", URL: ""}},
		},
		AutomaticCaptions: map[string][]ytdlp.SubtitleTrack{
			"zh-Hans": {{Ext: "json3", URL: "https://s/zh.json3"}, {Ext: "vtt", URL: "https://s/zh.vtt"}},
		},
	}

	asset := assetFromInfo(info, "https://www.youtube.com/watch?v=abc")
	if asset.Description != "desc" || len(asset.Tags) != 2 {
		t.Fatalf("unexpected text fields: %+v", asset)
	}
	want := []models.Subtitle{
		{Lang: "en", Ext: "vtt", URL: "https://s/en.vtt"},
		{Lang: "zh-Hans", Ext: "json3", URL: "https://s/zh.json3", Automatic: true},
		{Lang: "zh-Hans", Ext: "vtt", URL: "https://s/zh.vtt", Automatic: true},
	}
	if len(asset.Subtitles) != len(want) {
		t.Fatalf("subtitles=%+v", asset.Subtitles)
	}
	for i := range want {
		if asset.Subtitles[i] != want[i] {
			t.Fatalf("subtitles[%d]=%+v, want %+v", i, asset.Subtitles[i], want[i])
		}
	}
}
