package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fastmedia/gateway/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(handlers...)
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/panic", func(c *gin.Context) { panic("boom") })
	return r
}

func do(r http.Handler, method, path string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIPRateLimit(t *testing.T) {
	rl := NewRateLimiter(&config.RateLimitConfig{IPRPS: 0.001, Burst: 2})
	r := newEngine(IPRateLimit(rl))

	for i := 0; i < 2; i++ {
		if w := do(r, http.MethodGet, "/ping", nil); w.Code != http.StatusOK {
			t.Fatalf("request %d: status=%d", i, w.Code)
		}
	}
	if w := do(r, http.MethodGet, "/ping", nil); w.Code != http.StatusTooManyRequests {
		t.Fatalf("third request status=%d, want 429", w.Code)
	}
}

func TestIPRateLimit_Unlimited(t *testing.T) {
	rl := NewRateLimiter(&config.RateLimitConfig{})
	r := newEngine(IPRateLimit(rl))
	for i := 0; i < 20; i++ {
		if w := do(r, http.MethodGet, "/ping", nil); w.Code != http.StatusOK {
			t.Fatalf("request %d: status=%d", i, w.Code)
		}
	}
}

func TestLoggerAndRecovery(t *testing.T) {
	r := newEngine(Logger(zap.NewNop()), Recovery(zap.NewNop()))

	w := do(r, http.MethodGet, "/ping", map[string]string{"X-Request-ID": "rid-1"})
	if w.Header().Get("X-Request-ID") != "rid-1" {
		t.Fatalf("request id not echoed")
	}
	w = do(r, http.MethodGet, "/panic", nil)
	if w.Code != http.StatusInternalServerError || w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("status=%d request id=%q", w.Code, w.Header().Get("X-Request-ID"))
	}
}

func TestCORS(t *testing.T) {
	r := newEngine(CORS([]string{"https://app.example"}))
	w := do(r, http.MethodOptions, "/ping", map[string]string{"Origin": "https://app.example"})
	if w.Code != http.StatusNoContent || w.Header().Get("Access-Control-Allow-Origin") != "https://app.example" {
		t.Fatalf("preflight status=%d origin=%q", w.Code, w.Header().Get("Access-Control-Allow-Origin"))
	}
	w = do(r, http.MethodGet, "/ping", map[string]string{"Origin": "https://evil.example"})
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unexpected origin allowed")
	}
}
