package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"fastmedia/gateway/internal/cleanup"
	"fastmedia/gateway/internal/config"
	"fastmedia/gateway/internal/models"
	"fastmedia/gateway/internal/service"
	"fastmedia/gateway/internal/storage"
	"fastmedia/gateway/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeMedia struct {
	dir     string
	batches [][]string
	ts      float64
	infoErr error
	cleaned []string
}

func (f *fakeMedia) results(urls []string) []models.FetchResult {
	f.batches = append(f.batches, urls)
	out := make([]models.FetchResult, len(urls))
	for i, u := range urls {
		out[i] = models.FetchResult{URL: u, Status: models.StatusSuccess, TempFilePath: "/tmp/x"}
	}
	return out
}

func (f *fakeMedia) ResolveAndFetchBatch(_ context.Context, urls []string) []models.FetchResult {
	return f.results(urls)
}

func (f *fakeMedia) ExtractBGMBatch(_ context.Context, urls []string) []models.FetchResult {
	return f.results(urls)
}

func (f *fakeMedia) ExtractThumbnailBatch(_ context.Context, urls []string, ts float64) []models.FetchResult {
	f.ts = ts
	return f.results(urls)
}

func (f *fakeMedia) ExtractTextBatch(_ context.Context, urls []string) []models.FetchResult {
	out := f.results(urls)
	for i := range out {
		out[i].TextContent = "标题: T"
		out[i].HasSubtitles = true
	}
	return out
}

func (f *fakeMedia) GetVideoInfo(_ context.Context, raw string) (*models.VideoInfo, error) {
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	return &models.VideoInfo{Title: "T", OriginalURL: raw}, nil
}

func (f *fakeMedia) TempFilePath(path, fileType string) (string, error) {
	if _, ok := models.ParseFileType(fileType); !ok {
		return "", service.ErrInvalidFileType
	}
	if !strings.HasPrefix(path, f.dir+string(filepath.Separator)) {
		return "", utils.ErrOutsideStore
	}
	return path, nil
}

func (f *fakeMedia) CheckTempFile(path, fileType string) (models.TempFileStatus, error) {
	p, err := f.TempFilePath(path, fileType)
	if err != nil {
		return models.TempFileStatus{}, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return models.TempFileStatus{}, nil
	}
	return models.TempFileStatus{Exists: true, Size: info.Size(), ModifiedTime: info.ModTime()}, nil
}

func (f *fakeMedia) CleanupTempFile(path, fileType string) (bool, error) {
	p, err := f.TempFilePath(path, fileType)
	if err != nil {
		return false, err
	}
	f.cleaned = append(f.cleaned, p)
	return os.Remove(p) == nil, nil
}

func (f *fakeMedia) ReapExpired() (cleanup.Result, error) {
	return cleanup.Result{Count: 2, Bytes: 10}, nil
}

func (f *fakeMedia) MaxBatchSize() int { return 3 }

func newTestRouter(t *testing.T, svc MediaService) *gin.Engine {
	t.Helper()
	r := gin.New()
	h := NewMediaHandler(svc, zap.NewNop())
	api := r.Group("/api")
	api.POST("/download_videos", h.DownloadVideos)
	api.POST("/extract_bgm", h.ExtractBGM)
	api.POST("/extract_thumbnail", h.ExtractThumbnail)
	api.POST("/extract_text", h.ExtractText)
	api.POST("/video_info", h.VideoInfo)
	api.GET("/temp_file", h.TempFileStatus)
	api.DELETE("/temp_file", h.CleanupTempFile)
	api.GET("/download_file", h.DownloadFile)
	api.POST("/cleanup_expired", h.CleanupExpired)
	return r
}

func doJSON(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return env
}

func TestBatchEndpoints(t *testing.T) {
	svc := &fakeMedia{dir: t.TempDir()}
	r := newTestRouter(t, svc)

	for _, path := range []string{"/api/download_videos", "/api/extract_bgm", "/api/extract_text"} {
		if w := doJSON(r, http.MethodPost, path, `{"urls":[]}`); w.Code != http.StatusBadRequest {
			t.Fatalf("%s empty list status=%d", path, w.Code)
		}
		if w := doJSON(r, http.MethodPost, path, `{"urls":"a,b,c,d"}`); w.Code != http.StatusBadRequest {
			t.Fatalf("%s oversized batch status=%d", path, w.Code)
		}
		if w := doJSON(r, http.MethodPost, path, `not json`); w.Code != http.StatusBadRequest {
			t.Fatalf("%s malformed body status=%d", path, w.Code)
		}
	}

	w := doJSON(r, http.MethodPost, "/api/download_videos", `{"urls":"https://b23.tv/abcd, not-a-url"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var data models.BatchData
	if err := json.Unmarshal(decode(t, w).Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Total != 2 || data.Results[1].URL != "not-a-url" {
		t.Fatalf("data=%+v", data)
	}

	w = doJSON(r, http.MethodPost, "/api/extract_thumbnail", `{"urls":["https://x.com/a/status/1"],"timestamp":3.5}`)
	if w.Code != http.StatusOK || svc.ts != 3.5 {
		t.Fatalf("status=%d ts=%v", w.Code, svc.ts)
	}
	if w := doJSON(r, http.MethodPost, "/api/extract_thumbnail", `{"urls":["u"],"timestamp":-1}`); w.Code != http.StatusBadRequest {
		t.Fatalf("negative timestamp status=%d", w.Code)
	}

	w = doJSON(r, http.MethodPost, "/api/extract_text", `{"urls":"https://www.youtube.com/watch?v=x"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("extract_text status=%d body=%s", w.Code, w.Body.String())
	}
	data = models.BatchData{}
	if err := json.Unmarshal(decode(t, w).Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Total != 1 || data.Results[0].TextContent != "标题: T" || !data.Results[0].HasSubtitles {
		t.Fatalf("data=%+v", data)
	}
}

func TestVideoInfo_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{utils.NewResolveError("unsupported", "u", []utils.Attempt{{Strategy: "classify", Err: utils.ErrUnsupportedPlatform}}), http.StatusBadRequest},
		{utils.ErrVideoPrivate, http.StatusForbidden},
		{utils.ErrVideoDeleted, http.StatusNotFound},
		{utils.ErrTimeout, http.StatusGatewayTimeout},
		{errors.New("weird"), http.StatusBadGateway},
	}
	for _, c := range cases {
		r := newTestRouter(t, &fakeMedia{infoErr: c.err})
		w := doJSON(r, http.MethodPost, "/api/video_info", `{"url":"https://www.youtube.com/watch?v=x"}`)
		if w.Code != c.want {
			t.Fatalf("err=%v status=%d, want %d", c.err, w.Code, c.want)
		}
		if c.err != nil && !strings.Contains(w.Body.String(), `"error_kind":"`+string(utils.KindOf(c.err))+`"`) {
			t.Fatalf("err=%v body=%s", c.err, w.Body.String())
		}
	}
	r := newTestRouter(t, &fakeMedia{})
	if w := doJSON(r, http.MethodPost, "/api/video_info", `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("missing url status=%d", w.Code)
	}
}

func TestTempFileEndpoints(t *testing.T) {
	dir := t.TempDir()
	svc := &fakeMedia{dir: dir}
	r := newTestRouter(t, svc)
	p := filepath.Join(dir, "bilibili-BV1.mp4")
	if err := os.WriteFile(p, []byte("video-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	q := func(path, ft string) string {
		return url.Values{"path": {path}, "file_type": {ft}}.Encode()
	}

	w := doJSON(r, http.MethodGet, "/api/temp_file?"+q(p, "video"), "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"exists":true`) {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if w := doJSON(r, http.MethodGet, "/api/temp_file?"+q(p, "audio"), ""); w.Code != http.StatusBadRequest {
		t.Fatalf("bad file type status=%d", w.Code)
	}
	if w := doJSON(r, http.MethodGet, "/api/temp_file?"+q("/etc/passwd", "video"), ""); w.Code != http.StatusBadRequest {
		t.Fatalf("outside path status=%d", w.Code)
	}
	if w := doJSON(r, http.MethodGet, "/api/temp_file", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("missing path status=%d", w.Code)
	}

	w = doJSON(r, http.MethodGet, "/api/download_file?"+q(p, "video")+"&filename=My:Video.mp4", "")
	if w.Code != http.StatusOK || w.Body.String() != "video-bytes" {
		t.Fatalf("download status=%d body=%q", w.Code, w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "My_Video.mp4") {
		t.Fatalf("Content-Disposition=%q", cd)
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Fatalf("file should be removed after download")
	}

	w = doJSON(r, http.MethodGet, "/api/download_file?"+q(p, "video"), "")
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), `"error_kind":"TempFileMissing"`) {
		t.Fatalf("second download status=%d body=%s", w.Code, w.Body.String())
	}
	if env := decode(t, w); env.Message != utils.KindTempFileMissing.Message() {
		t.Fatalf("message=%q", env.Message)
	}
	for i := 0; i < 2; i++ {
		w := doJSON(r, http.MethodDelete, "/api/temp_file?"+q(p, "video"), "")
		if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"deleted":false`) {
			t.Fatalf("cleanup %d status=%d body=%s", i, w.Code, w.Body.String())
		}
	}

	w = doJSON(r, http.MethodPost, "/api/cleanup_expired", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"count":2`) {
		t.Fatalf("cleanup_expired status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestKindToCode(t *testing.T) {
	cases := map[utils.ErrorKind]codes.Code{
		utils.KindUnsupportedPlatform: codes.InvalidArgument,
		utils.KindNetworkTimeout:      codes.DeadlineExceeded,
		utils.KindRegionRestricted:    codes.PermissionDenied,
		utils.KindPrivate:             codes.PermissionDenied,
		utils.KindPlaylistFailed:      codes.FailedPrecondition,
		utils.KindAPILimited:          codes.ResourceExhausted,
		utils.KindUnavailable:         codes.NotFound,
		utils.KindTempFileMissing:     codes.NotFound,
		utils.KindGeneric:             codes.Unknown,
	}
	for kind, want := range cases {
		if got := kindToCode(kind); got != want {
			t.Fatalf("kindToCode(%s)=%s, want %s", kind, got, want)
		}
	}

	st, _ := status.FromError(StatusError(utils.ErrGeoRestricted))
	if st.Code() != codes.PermissionDenied || !strings.HasPrefix(st.Message(), utils.KindRegionRestricted.Message()) {
		t.Fatalf("status=%v", st)
	}
	if StatusError(nil) != nil {
		t.Fatalf("nil error should map to nil status")
	}
}

func TestGRPCServerHealth(t *testing.T) {
	srv, hs := NewGRPCServer()
	defer srv.Stop()
	for _, name := range []string{"", ServiceName} {
		resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{Service: name})
		if err != nil {
			t.Fatalf("Check(%q): %v", name, err)
		}
		if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			t.Fatalf("Check(%q)=%s", name, resp.GetStatus())
		}
	}
}

func TestHealthCheck_MissingBinaryDegrades(t *testing.T) {
	cfg := config.Default()
	files := storage.NewFileManager(storage.NewPathGenerator(&config.StorageConfig{BaseDir: t.TempDir()}), 100, zap.NewNop())
	_, hs := NewGRPCServer()
	h := NewHealthHandler(cfg, nil, files, hs, "test", zap.NewNop())

	h.lookPath = func(string) (string, error) { return "/usr/bin/true", nil }
	if resp := h.Check(context.Background()); resp.Status != "healthy" || resp.Dependencies["ffmpeg"] != "healthy" {
		t.Fatalf("resp=%+v", resp)
	}

	h.lookPath = func(bin string) (string, error) {
		if bin == cfg.FFmpeg.BinaryPath {
			return "", errors.New("not found")
		}
		return bin, nil
	}
	resp := h.Check(context.Background())
	if resp.Status != "degraded" || resp.Dependencies["ffmpeg"] != "missing" {
		t.Fatalf("resp=%+v", resp)
	}
	st, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil || st.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("grpc status=%v err=%v", st.GetStatus(), err)
	}

	r := gin.New()
	r.GET("/health", h.HealthCheck)
	if w := doJSON(r, http.MethodGet, "/health", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", w.Code)
	}
}
