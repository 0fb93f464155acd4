package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/procurement-graph/internal/observability"
)

const unmatchedRoute = "unmatched"

// opsRoutes are scraped by infrastructure rather than called by operators.
var opsRoutes = map[string]bool{
	"/metrics":     true,
	"/healthcheck": true,
}

// routeLabel keeps label cardinality bounded: unknown paths collapse into one value.
func routeLabel(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return unmatchedRoute
}

func methodLabel(method string) string {
	switch m := strings.ToUpper(method); m {
	case "GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS":
		return m
	default:
		return "OTHER"
	}
}

// Metrics instruments admin API requests. /metrics scrapes are not counted.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if c.FullPath() == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		m.ApiInflightInc()
		defer m.ApiInflightDec()

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		m.ObserveAPI(methodLabel(c.Request.Method), routeLabel(c), status, time.Since(start))
	}
}
