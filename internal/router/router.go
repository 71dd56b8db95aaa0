package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fastmedia/gateway/internal/config"
	"fastmedia/gateway/internal/handler"
	"fastmedia/gateway/internal/middleware"
)

// Dependencies 路由依赖
type Dependencies struct {
	Config        *config.Config
	MediaHandler  *handler.MediaHandler
	HealthHandler *handler.HealthHandler
	Logger        *zap.Logger
}

// SetupRouter 设置路由
func SetupRouter(deps *Dependencies) *gin.Engine {
	if deps.Config.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// 全局中间件
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.CORS(deps.Config.Server.AllowedOrigins))
	r.Use(middleware.BodyLimit(deps.Config.Server.MaxBodyBytes))

	rateLimiter := middleware.NewRateLimiter(&deps.Config.RateLimit)

	// 健康检查
	if deps.HealthHandler != nil {
		r.GET("/health", deps.HealthHandler.HealthCheck)
		r.GET("/live", deps.HealthHandler.Live)
	}

	media := deps.MediaHandler
	api := r.Group("/api")
	{
		// 批处理接口按 IP 限流
		batch := api.Group("")
		batch.Use(middleware.IPRateLimit(rateLimiter))
		batch.POST("/download_videos", media.DownloadVideos)
		batch.POST("/extract_bgm", media.ExtractBGM)
		batch.POST("/extract_thumbnail", media.ExtractThumbnail)
		batch.POST("/extract_text", media.ExtractText)
		batch.POST("/video_info", media.VideoInfo)

		// 临时文件
		api.GET("/temp_file", media.TempFileStatus)
		api.DELETE("/temp_file", media.CleanupTempFile)
		api.GET("/download_file", media.DownloadFile)
		api.POST("/cleanup_expired", media.CleanupExpired)
	}

	return r
}
