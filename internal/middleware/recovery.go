package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Recovery Panic 恢复中间件
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				requestID := c.GetString("request_id")
				logger.Error("panic recovered",
					zap.Any("panic", err),
					zap.String("request_id", requestID),
					zap.ByteString("stack", debug.Stack()))

				c.JSON(http.StatusInternalServerError, gin.H{
					"code":       500,
					"message":    "internal server error",
					"request_id": requestID,
				})
				c.Abort()
			}
		}()
		c.Next()
	}
}
