package router

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"fastmedia/gateway/internal/cleanup"
	"fastmedia/gateway/internal/config"
	"fastmedia/gateway/internal/handler"
	"fastmedia/gateway/internal/models"
)

type stubMedia struct{}

func (stubMedia) ResolveAndFetchBatch(_ context.Context, urls []string) []models.FetchResult {
	return make([]models.FetchResult, len(urls))
}
func (stubMedia) ExtractBGMBatch(_ context.Context, urls []string) []models.FetchResult {
	return make([]models.FetchResult, len(urls))
}
func (stubMedia) ExtractThumbnailBatch(_ context.Context, urls []string, _ float64) []models.FetchResult {
	return make([]models.FetchResult, len(urls))
}
func (stubMedia) ExtractTextBatch(_ context.Context, urls []string) []models.FetchResult {
	return make([]models.FetchResult, len(urls))
}
func (stubMedia) GetVideoInfo(context.Context, string) (*models.VideoInfo, error) {
	return &models.VideoInfo{}, nil
}
func (stubMedia) TempFilePath(path, _ string) (string, error) { return path, nil }
func (stubMedia) CheckTempFile(string, string) (models.TempFileStatus, error) {
	return models.TempFileStatus{}, nil
}
func (stubMedia) CleanupTempFile(string, string) (bool, error) { return false, nil }
func (stubMedia) ReapExpired() (cleanup.Result, error) { return cleanup.Result{}, nil }
func (stubMedia) MaxBatchSize() int { return 5 }

func newRouter(t *testing.T, rl config.RateLimitConfig, maxBody int64) http.Handler {
	t.Helper()
	cfg := config.Default()
	cfg.Server.Mode = "test"
	cfg.Server.MaxBodyBytes = maxBody
	cfg.RateLimit = rl
	return SetupRouter(&Dependencies{
		Config:       cfg,
		MediaHandler: handler.NewMediaHandler(stubMedia{}, zap.NewNop()),
		Logger:       zap.NewNop(),
	})
}

func post(r http.Handler, path, body string) int {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "10.0.0.1:1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRoutes(t *testing.T) {
	r := newRouter(t, config.RateLimitConfig{}, 1<<20)
	for _, path := range []string{"/api/download_videos", "/api/extract_bgm", "/api/extract_thumbnail", "/api/extract_text"} {
		if code := post(r, path, `{"urls":["https://www.youtube.com/watch?v=x"]}`); code != http.StatusOK {
			t.Fatalf("%s status=%d", path, code)
		}
	}
	if code := post(r, "/api/cleanup_expired", ""); code != http.StatusOK {
		t.Fatalf("cleanup_expired status=%d", code)
	}
	if code := post(r, "/api/unknown", "{}"); code != http.StatusNotFound {
		t.Fatalf("unknown route status=%d", code)
	}
}

func TestBatchRoutesAreRateLimited(t *testing.T) {
	r := newRouter(t, config.RateLimitConfig{IPRPS: 0.001, Burst: 2}, 1<<20)
	body := `{"urls":["https://b23.tv/x"]}`
	for i := 0; i < 2; i++ {
		if code := post(r, "/api/download_videos", body); code != http.StatusOK {
			t.Fatalf("request %d status=%d", i, code)
		}
	}
	if code := post(r, "/api/download_videos", body); code != http.StatusTooManyRequests {
		t.Fatalf("status=%d, want 429", code)
	}
	// 临时文件接口不限流
	if code := post(r, "/api/cleanup_expired", ""); code != http.StatusOK {
		t.Fatalf("cleanup_expired status=%d", code)
	}
}

func TestBodyLimit(t *testing.T) {
	r := newRouter(t, config.RateLimitConfig{}, 64)
	big := `{"urls":["https://www.youtube.com/watch?v=` + string(bytes.Repeat([]byte("a"), 200)) + `"]}`
	if code := post(r, "/api/download_videos", big); code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", code)
	}
}
