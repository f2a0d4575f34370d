package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourusername/manga-dl-go/pkg/logger"
)

// RequestIDKey is the gin context key holding the request ID
const RequestIDKey = "request_id"

// Logger returns a gin middleware that tags each request with an ID and logs
// it on completion. Proxied requests are also written to the proxy log when
// multiLogger is set.
func Logger(log *zap.Logger, multiLogger *logger.MultiLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(RequestIDKey, requestID)
		c.Header("X-Request-ID", requestID)

		log.Debug("HTTP request started",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", path))

		c.Next()

		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Int("size", c.Writer.Size()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}

		log.Info("HTTP request", fields...)

		if multiLogger != nil && strings.HasPrefix(path, "/api/") {
			multiLogger.LogProxyRequest(fields...)
		}
	}
}
