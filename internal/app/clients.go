package app

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/procurement-graph/internal/config"
	runsdb "github.com/yungbote/procurement-graph/internal/data/runs"
	"github.com/yungbote/procurement-graph/internal/platform/gcp"
	"github.com/yungbote/procurement-graph/internal/platform/logger"
	"github.com/yungbote/procurement-graph/internal/platform/neo4jdb"
	"github.com/yungbote/procurement-graph/internal/realtime/bus"
)

type Clients struct {
	Neo4j   *neo4jdb.Client
	Objects gcp.ObjectReader
	Bus     bus.Bus
	RunsDB  *gorm.DB
}

func wireClients(ctx context.Context, log *logger.Logger, cfg config.Config) (Clients, error) {
	log.Info("Wiring clients...")
	var c Clients

	if strings.EqualFold(cfg.Store.Backend, config.BackendNeo4j) {
		client, err := neo4jdb.New(ctx, log, cfg.Store.Neo4j)
		if err != nil {
			return Clients{}, fmt.Errorf("init neo4j: %w", err)
		}
		c.Neo4j = client
	}

	// Redis
	c.Bus = bus.NewLocal()
	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		b, err := bus.NewRedisBus(log, cfg.Redis)
		if err != nil {
			c.close(ctx)
			return Clients{}, fmt.Errorf("init redis run bus: %w", err)
		}
		c.Bus = b
	}

	// Gcs, only when some input lives in a bucket
	if needsObjects(cfg.Inputs) || cfg.Storage.EmulatorHost != "" || cfg.Storage.Credentials != "" {
		objects, err := gcp.NewObjectReader(ctx, log, cfg.Storage)
		if err != nil {
			c.close(ctx)
			return Clients{}, fmt.Errorf("init gcs reader: %w", err)
		}
		c.Objects = objects
	}

	if cfg.RunsEnabled() {
		db, err := runsdb.Open(cfg.Runs, log)
		if err != nil {
			c.close(ctx)
			return Clients{}, fmt.Errorf("init run ledger: %w", err)
		}
		c.RunsDB = db
	}
	return c, nil
}

func needsObjects(inputs []string) bool {
	for _, in := range inputs {
		if _, _, ok := gcp.ParseURI(in); ok {
			return true
		}
	}
	return false
}

func (c *Clients) close(ctx context.Context) {
	if c.Neo4j != nil {
		_ = c.Neo4j.Close(ctx)
	}
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
	if c.Objects != nil {
		_ = c.Objects.Close()
	}
	if c.RunsDB != nil {
		if sqlDB, err := c.RunsDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
