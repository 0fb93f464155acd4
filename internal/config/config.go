// Package config loads procgraph settings from an optional YAML file and the environment.
// Environment variables win over the file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	runsdb "github.com/yungbote/procurement-graph/internal/data/runs"
	"github.com/yungbote/procurement-graph/internal/observability"
	"github.com/yungbote/procurement-graph/internal/platform/envutil"
	"github.com/yungbote/procurement-graph/internal/platform/gcp"
	"github.com/yungbote/procurement-graph/internal/platform/neo4jdb"
	"github.com/yungbote/procurement-graph/internal/realtime/bus"
)

const EnvConfigPath = "PROCGRAPH_CONFIG"

const (
	BackendMemory = "memory"
	BackendNeo4j  = "neo4j"

	RunsDisabled = "none"
)

type StoreConfig struct {
	Backend string         `yaml:"backend"`
	Neo4j   neo4jdb.Config `yaml:"neo4j"`
}

type HTTPConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
	// InputRoot bounds the local files a rebuild request may name. Empty allows only
	// gs:// URIs and the configured inputs.
	InputRoot string `yaml:"input_root"`
}

type Config struct {
	LogMode string `yaml:"log_mode"`
	// Inputs are the record files used when a command or request names none.
	Inputs  []string                 `yaml:"inputs"`
	Store   StoreConfig              `yaml:"store"`
	Storage gcp.StorageConfig        `yaml:"storage"`
	Redis   bus.RedisConfig          `yaml:"redis"`
	Runs    runsdb.Config            `yaml:"runs"`
	HTTP    HTTPConfig               `yaml:"http"`
	Otel    observability.OtelConfig `yaml:"otel"`
}

func Default() Config {
	return Config{
		LogMode: "development",
		Store: StoreConfig{
			Backend: BackendMemory,
			Neo4j: neo4jdb.Config{
				User:        "neo4j",
				Timeout:     10 * time.Second,
				MaxPoolSize: 50,
			},
		},
		Redis: bus.RedisConfig{Channel: "procgraph.runs"},
		Runs:  runsdb.Config{Driver: "sqlite", DSN: "procgraph-runs.db"},
		HTTP:  HTTPConfig{Addr: ":8080"},
		Otel: observability.OtelConfig{
			ServiceName: "procgraph",
			SampleRatio: 0.1,
		},
	}
}

// Load reads path (or $PROCGRAPH_CONFIG when path is empty), applies the environment
// and validates the result. No file at all is fine.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = strings.TrimSpace(os.Getenv(EnvConfigPath))
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.LogMode = envutil.String("LOG_MODE", c.LogMode)
	c.Inputs = envutil.List("PROCGRAPH_INPUTS", c.Inputs)

	c.Store.Backend = envutil.String("STORE_BACKEND", c.Store.Backend)
	n := &c.Store.Neo4j
	n.URI = envutil.String("NEO4J_URI", n.URI)
	n.User = envutil.String("NEO4J_USER", n.User)
	n.Password = envutil.String("NEO4J_PASSWORD", n.Password)
	n.Database = envutil.String("NEO4J_DATABASE", n.Database)
	n.Timeout = envutil.Seconds("NEO4J_TIMEOUT_SECONDS", n.Timeout)
	n.MaxPoolSize = envutil.Int("NEO4J_MAX_POOL_SIZE", n.MaxPoolSize)

	c.Storage.EmulatorHost = envutil.String("STORAGE_EMULATOR_HOST", c.Storage.EmulatorHost)
	c.Storage.Credentials = envutil.String("GOOGLE_APPLICATION_CREDENTIALS_JSON",
		envutil.String("GOOGLE_APPLICATION_CREDENTIALS", c.Storage.Credentials))

	c.Redis.Addr = envutil.String("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Channel = envutil.String("REDIS_CHANNEL", c.Redis.Channel)

	c.Runs.Driver = envutil.String("RUNS_DB_DRIVER", c.Runs.Driver)
	c.Runs.DSN = envutil.String("RUNS_DB_DSN", c.Runs.DSN)

	c.HTTP.Addr = envutil.String("HTTP_ADDR", c.HTTP.Addr)
	c.HTTP.CORSOrigins = envutil.List("CORS_ORIGINS", c.HTTP.CORSOrigins)
	c.HTTP.InputRoot = envutil.String("HTTP_INPUT_ROOT", c.HTTP.InputRoot)

	o := &c.Otel
	o.Enabled = envutil.Bool("OTEL_ENABLED", o.Enabled)
	o.ServiceName = envutil.String("OTEL_SERVICE_NAME", o.ServiceName)
	o.Environment = envutil.String("OTEL_ENVIRONMENT", o.Environment)
	o.Version = envutil.String("OTEL_SERVICE_VERSION", o.Version)
	o.SampleRatio = envutil.Float("OTEL_SAMPLE_RATIO", o.SampleRatio)
	o.Endpoint = envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", o.Endpoint)
	o.Insecure = envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", o.Insecure)
	if h := observability.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")); h != nil {
		o.Headers = h
	}
}

func (c Config) Validate() error {
	switch strings.ToLower(c.Store.Backend) {
	case BackendMemory:
	case BackendNeo4j:
		if strings.TrimSpace(c.Store.Neo4j.URI) == "" {
			return fmt.Errorf("config: store.neo4j.uri (NEO4J_URI) is required for the neo4j backend")
		}
	default:
		return fmt.Errorf("config: unknown store backend %q (want %s or %s)", c.Store.Backend, BackendMemory, BackendNeo4j)
	}
	switch strings.ToLower(c.Runs.Driver) {
	case "sqlite", RunsDisabled:
	case "postgres":
		if strings.TrimSpace(c.Runs.DSN) == "" {
			return fmt.Errorf("config: runs.dsn (RUNS_DB_DSN) is required for postgres")
		}
	default:
		return fmt.Errorf("config: unknown runs driver %q", c.Runs.Driver)
	}
	if c.Otel.SampleRatio < 0 || c.Otel.SampleRatio > 1 {
		return fmt.Errorf("config: otel.sample_ratio must be within [0,1], got %v", c.Otel.SampleRatio)
	}
	return nil
}

func (c Config) RunsEnabled() bool {
	return !strings.EqualFold(c.Runs.Driver, RunsDisabled)
}
