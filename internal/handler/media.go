package handler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc/status"

	"fastmedia/gateway/internal/cleanup"
	"fastmedia/gateway/internal/models"
	"fastmedia/gateway/internal/service"
	"fastmedia/gateway/internal/storage"
	"fastmedia/gateway/internal/utils"
)

// MediaService 媒体服务接口
type MediaService interface {
	ResolveAndFetchBatch(ctx context.Context, urls []string) []models.FetchResult
	ExtractBGMBatch(ctx context.Context, urls []string) []models.FetchResult
	ExtractThumbnailBatch(ctx context.Context, urls []string, ts float64) []models.FetchResult
	ExtractTextBatch(ctx context.Context, urls []string) []models.FetchResult
	GetVideoInfo(ctx context.Context, raw string) (*models.VideoInfo, error)
	TempFilePath(path, fileType string) (string, error)
	CheckTempFile(path, fileType string) (models.TempFileStatus, error)
	CleanupTempFile(path, fileType string) (bool, error)
	ReapExpired() (cleanup.Result, error)
	MaxBatchSize() int
}

// MediaHandler 媒体接口处理器
type MediaHandler struct {
	svc    MediaService
	logger *zap.Logger
}

// NewMediaHandler 创建媒体接口处理器
func NewMediaHandler(svc MediaService, logger *zap.Logger) *MediaHandler {
	return &MediaHandler{
		svc:    svc,
		logger: logger,
	}
}

// checkBatch 校验URL列表; 失败时已写回响应
func (h *MediaHandler) checkBatch(c *gin.Context, urls []string) bool {
	if len(urls) == 0 {
		models.BadRequest(c, "please provide at least one valid video URL")
		return false
	}
	if max := h.svc.MaxBatchSize(); max > 0 && len(urls) > max {
		models.BadRequest(c, fmt.Sprintf("too many URLs: %d (max %d)", len(urls), max))
		return false
	}
	return true
}

// DownloadVideos 批量下载
func (h *MediaHandler) DownloadVideos(c *gin.Context) {
	var req models.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		models.BadRequest(c, "invalid request body")
		return
	}
	if !h.checkBatch(c, req.URLs) {
		return
	}
	results := h.svc.ResolveAndFetchBatch(c.Request.Context(), req.URLs)
	models.Success(c, models.NewBatchData(results))
}

// ExtractBGM 批量提取背景音乐
func (h *MediaHandler) ExtractBGM(c *gin.Context) {
	var req models.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		models.BadRequest(c, "invalid request body")
		return
	}
	if !h.checkBatch(c, req.URLs) {
		return
	}
	results := h.svc.ExtractBGMBatch(c.Request.Context(), req.URLs)
	models.Success(c, models.NewBatchData(results))
}

// ExtractThumbnail 批量提取封面
func (h *MediaHandler) ExtractThumbnail(c *gin.Context) {
	var req models.ThumbnailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		models.BadRequest(c, "invalid request body")
		return
	}
	if !h.checkBatch(c, req.URLs) {
		return
	}
	if req.Timestamp < 0 {
		models.BadRequest(c, "timestamp must not be negative")
		return
	}
	results := h.svc.ExtractThumbnailBatch(c.Request.Context(), req.URLs, req.Timestamp)
	models.Success(c, models.NewBatchData(results))
}

// ExtractText 批量提取文案
func (h *MediaHandler) ExtractText(c *gin.Context) {
	var req models.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		models.BadRequest(c, "invalid request body")
		return
	}
	if !h.checkBatch(c, req.URLs) {
		return
	}
	results := h.svc.ExtractTextBatch(c.Request.Context(), req.URLs)
	models.Success(c, models.NewBatchData(results))
}

// VideoInfo 只解析不下载
func (h *MediaHandler) VideoInfo(c *gin.Context) {
	var req models.VideoInfoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		models.BadRequest(c, "url is required")
		return
	}
	info, err := h.svc.GetVideoInfo(c.Request.Context(), req.URL)
	if err != nil {
		writeError(c, err)
		return
	}
	models.Success(c, info)
}

// writeError 按错误类别写回响应, HTTP 状态码与 gRPC 状态码一一对应
func writeError(c *gin.Context, err error) {
	st := status.Convert(StatusError(err))
	code := httpStatus(st.Code())
	c.JSON(code, models.Response{
		Code:    code,
		Message: st.Message(),
		Data:    gin.H{"error_kind": utils.KindOf(err)},
	})
}

// tempFileError 临时文件接口的参数错误
func (h *MediaHandler) tempFileError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidFileType):
		models.BadRequest(c, "file_type must be one of video, bgm, thumbnail, text")
	case errors.Is(err, utils.ErrOutsideStore):
		models.BadRequest(c, "path is outside the temp directory")
	default:
		models.InternalError(c, err.Error())
	}
}

// TempFileStatus 查询临时文件状态
func (h *MediaHandler) TempFileStatus(c *gin.Context) {
	var q models.TempFileQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		models.BadRequest(c, "path is required")
		return
	}
	st, err := h.svc.CheckTempFile(q.Path, q.FileType)
	if err != nil {
		h.tempFileError(c, err)
		return
	}
	models.Success(c, st)
}

// CleanupTempFile 删除临时文件, 重复删除同样成功
func (h *MediaHandler) CleanupTempFile(c *gin.Context) {
	var q models.TempFileQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		models.BadRequest(c, "path is required")
		return
	}
	deleted, err := h.svc.CleanupTempFile(q.Path, q.FileType)
	if err != nil {
		h.tempFileError(c, err)
		return
	}
	models.Success(c, gin.H{"deleted": deleted})
}

// DownloadFile 以附件形式返回临时文件, 传输结束后删除
func (h *MediaHandler) DownloadFile(c *gin.Context) {
	var q models.TempFileQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		models.BadRequest(c, "path is required")
		return
	}
	path, err := h.svc.TempFilePath(q.Path, q.FileType)
	if err != nil {
		h.tempFileError(c, err)
		return
	}
	st, err := h.svc.CheckTempFile(path, q.FileType)
	if err != nil {
		h.tempFileError(c, err)
		return
	}
	if !st.Exists {
		writeError(c, fmt.Errorf("%w: %s", utils.ErrTempFileAbsent, filepath.Base(path)))
		return
	}

	name := storage.SanitizeFilename(q.Filename)
	if name == "" {
		name = filepath.Base(path)
	}

	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.FileAttachment(path, name)

	if _, err := h.svc.CleanupTempFile(path, q.FileType); err != nil {
		h.logger.Warn("cleanup after download failed", zap.String("path", path), zap.Error(err))
	}
}

// CleanupExpired 立即清理过期临时文件
func (h *MediaHandler) CleanupExpired(c *gin.Context) {
	res, err := h.svc.ReapExpired()
	if err != nil {
		models.InternalError(c, err.Error())
		return
	}
	models.Success(c, res)
}
