package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/procurement-graph/internal/config"
	"github.com/yungbote/procurement-graph/internal/data/graph"
	"github.com/yungbote/procurement-graph/internal/data/runs"
	httpserver "github.com/yungbote/procurement-graph/internal/http"
	httpH "github.com/yungbote/procurement-graph/internal/http/handlers"
	"github.com/yungbote/procurement-graph/internal/observability"
	"github.com/yungbote/procurement-graph/internal/pipeline"
	"github.com/yungbote/procurement-graph/internal/platform/logger"
	"github.com/yungbote/procurement-graph/internal/realtime/bus"
	"github.com/yungbote/procurement-graph/internal/source"
)

type App struct {
	Log      *logger.Logger
	Cfg      config.Config
	Clients  Clients
	Store    graph.Store
	Runs     runs.RunRepo
	Metrics  *observability.Metrics
	Pipeline *pipeline.Pipeline
	Live     *bus.Tracker

	otelShutdown func(context.Context) error
}

// New wires every dependency cfg asks for. log may be nil, in which case one is built
// from cfg.LogMode.
func New(ctx context.Context, cfg config.Config, log *logger.Logger) (*App, error) {
	if log == nil {
		logMode := cfg.LogMode
		if logMode == "" {
			logMode = "development"
		}
		l, err := logger.New(logMode)
		if err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
		log = l
	}

	shutdown := observability.InitOTel(ctx, log, cfg.Otel)

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}

	store, err := wireStore(log, cfg, clients)
	if err != nil {
		clients.close(ctx)
		log.Sync()
		return nil, err
	}

	var repo runs.RunRepo
	if clients.RunsDB != nil {
		repo = runs.NewRunRepo(clients.RunsDB, log)
	}

	metrics := observability.NewMetrics()
	p, err := pipeline.New(pipeline.Deps{
		Store:   store,
		Source:  source.New(log, clients.Objects),
		Runs:    repo,
		Bus:     clients.Bus,
		Metrics: metrics,
		Log:     log,
	})
	if err != nil {
		clients.close(ctx)
		log.Sync()
		return nil, err
	}

	return &App{
		Log:          log,
		Cfg:          cfg,
		Clients:      clients,
		Store:        store,
		Runs:         repo,
		Metrics:      metrics,
		Pipeline:     p,
		Live:         bus.NewTracker(0),
		otelShutdown: shutdown,
	}, nil
}

func wireStore(log *logger.Logger, cfg config.Config, c Clients) (graph.Store, error) {
	switch strings.ToLower(cfg.Store.Backend) {
	case config.BackendNeo4j:
		return graph.NewNeo4jStore(c.Neo4j, log)
	case config.BackendMemory, "":
		log.Warn("using in-memory graph store; the graph lives only as long as this process")
		return graph.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// Server builds the admin HTTP server on top of the wired pipeline.
func (a *App) Server() *httpserver.Server {
	return httpserver.NewServer(a.Cfg.HTTP.Addr, httpserver.RouterConfig{
		Log:           a.Log,
		ServiceName:   a.Cfg.Otel.ServiceName,
		CORSOrigins:   a.Cfg.HTTP.CORSOrigins,
		Metrics:       a.Metrics,
		HealthHandler: httpH.NewHealthHandler(),
		RunHandler:    httpH.NewRunHandler(a.Log, a.Pipeline, a.Runs, a.Cfg.Inputs, a.Cfg.HTTP.InputRoot),
		LiveHandler:   httpH.NewLiveHandler(a.Live),
	})
}

// WatchRuns forwards run events from the bus into Live and the metrics until ctx is done.
func (a *App) WatchRuns(ctx context.Context) error {
	return a.Clients.Bus.StartForwarder(ctx, func(ev bus.Event) {
		a.Log.Debug("run event", "run_id", ev.RunID, "stage", ev.Stage, "status", ev.Status)
		a.Live.Observe(ev)
		a.Metrics.AddBusEvent(ev.Stage, ev.Status)
	})
}

func (a *App) Close(ctx context.Context) {
	if a == nil {
		return
	}
	a.Clients.close(ctx)
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil && a.Log != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
