package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "procgraph.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Backend != BackendMemory || cfg.HTTP.Addr != ":8080" || !cfg.RunsEnabled() {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeConfig(t, `
log_mode: production
inputs: [a.json, gs://raw/2024/]
store:
  backend: neo4j
  neo4j:
    uri: bolt://graph:7687
    timeout: 30s
redis:
  addr: redis:6379
runs:
  driver: none
http:
  input_root: /data/records
otel:
  enabled: true
  sample_ratio: 0.5
`)
	t.Setenv("NEO4J_URI", "neo4j://override:7687")
	t.Setenv("NEO4J_MAX_POOL_SIZE", "12")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "x-api-key=abc, bad")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogMode != "production" || len(cfg.Inputs) != 2 || cfg.Inputs[1] != "gs://raw/2024/" {
		t.Fatalf("file values: %+v", cfg)
	}
	if cfg.Store.Neo4j.URI != "neo4j://override:7687" || cfg.Store.Neo4j.MaxPoolSize != 12 {
		t.Fatalf("env overlay: %+v", cfg.Store.Neo4j)
	}
	if cfg.Store.Neo4j.Timeout != 30*time.Second {
		t.Fatalf("timeout: %v", cfg.Store.Neo4j.Timeout)
	}
	if cfg.RunsEnabled() {
		t.Fatalf("runs ledger should be disabled")
	}
	if cfg.HTTP.InputRoot != "/data/records" {
		t.Fatalf("http input root: %q", cfg.HTTP.InputRoot)
	}
	if !cfg.Otel.Enabled || cfg.Otel.SampleRatio != 0.5 || cfg.Otel.Headers["x-api-key"] != "abc" {
		t.Fatalf("otel: %+v", cfg.Otel)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"unknown backend", func(c *Config) { c.Store.Backend = "dgraph" }, false},
		{"neo4j without uri", func(c *Config) { c.Store.Backend = BackendNeo4j }, false},
		{"postgres without dsn", func(c *Config) { c.Runs.Driver = "postgres"; c.Runs.DSN = "" }, false},
		{"unknown runs driver", func(c *Config) { c.Runs.Driver = "mysql" }, false},
		{"bad ratio", func(c *Config) { c.Otel.SampleRatio = 2 }, false},
	}
	for _, tc := range cases {
		cfg := Default()
		tc.mutate(&cfg)
		err := cfg.Validate()
		if (err == nil) != tc.ok {
			t.Fatalf("%s: Validate() = %v, ok want %v", tc.name, err, tc.ok)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestInputRootFromEnv(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	t.Setenv("HTTP_INPUT_ROOT", "/mnt/ocds")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.InputRoot != "/mnt/ocds" {
		t.Fatalf("input root = %q", cfg.HTTP.InputRoot)
	}
}
