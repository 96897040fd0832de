package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pulsecheck/pulsecheck/pkg/logger"
)

// Logger writes one structured access-log line per request. Health and
// metrics probes are skipped to keep the log readable under scraping.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/health" || path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
		}

		log := logger.WithModule("http")
		if status >= http.StatusInternalServerError {
			log.Error("request failed", fields...)
			return
		}
		log.Info("request", fields...)
	}
}
