package handler

import (
	"context"
	"net/http"
	"os/exec"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"fastmedia/gateway/internal/config"
	"fastmedia/gateway/internal/models"
	"fastmedia/gateway/internal/storage"
)

// HealthHandler 健康检查处理器
type HealthHandler struct {
	cfg         *config.Config
	redisClient *redis.Client
	files       *storage.FileManager
	grpcHealth  *health.Server
	lookPath    func(string) (string, error)
	startTime   time.Time
	version     string
	logger      *zap.Logger
}

// NewHealthHandler 创建健康检查处理器; redisClient 与 grpcHealth 可为 nil
func NewHealthHandler(
	cfg *config.Config,
	redisClient *redis.Client,
	files *storage.FileManager,
	grpcHealth *health.Server,
	version string,
	logger *zap.Logger,
) *HealthHandler {
	return &HealthHandler{
		cfg:         cfg,
		redisClient: redisClient,
		files:       files,
		grpcHealth:  grpcHealth,
		lookPath:    exec.LookPath,
		startTime:   time.Now(),
		version:     version,
		logger:      logger,
	}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version"`
	Uptime       int64             `json:"uptime"`
	Dependencies map[string]string `json:"dependencies"`
}

// Check 检查各依赖并同步 gRPC 健康状态
func (h *HealthHandler) Check(ctx context.Context) HealthResponse {
	deps := make(map[string]string)
	healthy := true

	for name, bin := range map[string]string{"yt-dlp": h.cfg.YTDLP.BinaryPath, "ffmpeg": h.cfg.FFmpeg.BinaryPath} {
		if _, err := h.lookPath(bin); err != nil {
			deps[name] = "missing"
			healthy = false
		} else {
			deps[name] = "healthy"
		}
	}

	if h.redisClient != nil {
		if err := h.redisClient.Ping(ctx).Err(); err != nil {
			// 进度推送不可用不影响主流程
			deps["redis"] = "unhealthy"
		} else {
			deps["redis"] = "healthy"
		}
	}

	if err := h.files.EnsureCapacity(); err != nil {
		deps["disk"] = "full"
		healthy = false
	} else {
		deps["disk"] = "healthy"
	}

	resp := HealthResponse{
		Status:       "healthy",
		Version:      h.version,
		Uptime:       int64(time.Since(h.startTime).Seconds()),
		Dependencies: deps,
	}
	if !healthy {
		resp.Status = "degraded"
	}

	if h.grpcHealth != nil {
		st := healthpb.HealthCheckResponse_SERVING
		if !healthy {
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
		h.grpcHealth.SetServingStatus(ServiceName, st)
	}
	return resp
}

// HealthCheck 健康检查
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	resp := h.Check(ctx)
	code := http.StatusOK
	if resp.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, models.Response{Code: 0, Message: resp.Status, Data: resp})
}

// Live 存活检查
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// Watch 周期性刷新 gRPC 健康状态, ctx 结束时返回
func (h *HealthHandler) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			resp := h.Check(checkCtx)
			cancel()
			if resp.Status != "healthy" {
				h.logger.Warn("health degraded", zap.Any("dependencies", resp.Dependencies))
			}
		case <-ctx.Done():
			return
		}
	}
}
