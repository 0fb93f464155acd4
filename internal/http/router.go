package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/procurement-graph/internal/http/handlers"
	httpMW "github.com/yungbote/procurement-graph/internal/http/middleware"
	"github.com/yungbote/procurement-graph/internal/observability"
	"github.com/yungbote/procurement-graph/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string
	CORSOrigins []string
	Metrics     *observability.Metrics

	HealthHandler *httpH.HealthHandler
	RunHandler    *httpH.RunHandler
	LiveHandler   *httpH.LiveHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "procgraph"
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	{
		if cfg.RunHandler != nil {
			api.POST("/rebuild", cfg.RunHandler.Rebuild)
			api.GET("/integrity", cfg.RunHandler.Integrity)
			api.GET("/runs", cfg.RunHandler.ListRuns)
			api.GET("/runs/:id", cfg.RunHandler.GetRun)
		}
		if cfg.LiveHandler != nil {
			api.GET("/live", cfg.LiveHandler.List)
		}
	}

	return r
}
