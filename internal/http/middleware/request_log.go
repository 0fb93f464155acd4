package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/procurement-graph/internal/http/response"
	"github.com/yungbote/procurement-graph/internal/platform/ctxutil"
	"github.com/yungbote/procurement-graph/internal/platform/logger"
)

// RequestLogger logs one line per admin API request. Scrapes of /metrics and
// /healthcheck that succeed are logged at debug.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if log == nil {
			return
		}

		status := c.Writer.Status()
		fields := []interface{}{
			"method", strings.ToUpper(c.Request.Method),
			"route", routeLabel(c),
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if c.FullPath() == "" {
			fields = append(fields, "path", c.Request.URL.Path)
		}
		// Pipeline handlers record the run they started or read.
		if runID := c.GetString(response.RunIDKey); runID != "" {
			fields = append(fields, "run_id", runID)
		}
		fields = append(fields, ctxutil.LogFields(c.Request.Context())...)

		switch {
		case status >= 500:
			log.Error("HTTP request", fields...)
		case status >= 400:
			log.Warn("HTTP request", fields...)
		case opsRoutes[c.FullPath()]:
			log.Debug("HTTP request", fields...)
		default:
			log.Info("HTTP request", fields...)
		}
	}
}
