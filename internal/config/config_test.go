package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	lookup := mapLookup(map[string]string{})
	cfg, err := Load("tablechat-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Auth.Required {
		t.Fatal("Auth.Required should default to false in dev")
	}
	if cfg.ChatStore.MaxOpenConns != 20 {
		t.Fatalf("ChatStore.MaxOpenConns = %d", cfg.ChatStore.MaxOpenConns)
	}
	if cfg.Warehouse.Driver != "postgres" {
		t.Fatalf("Warehouse.Driver = %q", cfg.Warehouse.Driver)
	}
	if cfg.Completion.MaxTokens != 1024 {
		t.Fatalf("Completion.MaxTokens = %d", cfg.Completion.MaxTokens)
	}
	if cfg.Pipeline.StrictGuard {
		t.Fatal("Pipeline.StrictGuard should default to false")
	}
	if cfg.ObjectStore.Endpoint != "localhost:9000" {
		t.Fatalf("ObjectStore.Endpoint = %q", cfg.ObjectStore.Endpoint)
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	lookup := mapLookup(map[string]string{"TABLECHAT_PROFILE": "prod"})
	cfg, err := Load("tablechat-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required should default to true in prod")
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.ObjectStore.UseSSL {
		t.Fatal("ObjectStore.UseSSL should default to true in prod")
	}
}

func TestLoadOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"TABLECHAT_HTTP_ADDR":                ":9999",
		"TABLECHAT_HTTP_READ_TIMEOUT":        "12s",
		"TABLECHAT_WAREHOUSE_DRIVER":         "duckdb",
		"TABLECHAT_WAREHOUSE_PATH":           "/data/analytics.duckdb",
		"TABLECHAT_COMPLETION_DEFAULT_MODEL": "gpt-4o",
		"TABLECHAT_COMPLETION_MAX_TOKENS":    "2048",
		"TABLECHAT_PIPELINE_STRICT_GUARD":    "true",
		"TABLECHAT_LOG_LEVEL":                "warn",
	})
	cfg, err := Load("tablechat-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.Address != ":9999" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.HTTP.ReadTimeout != 12*time.Second {
		t.Fatalf("HTTP.ReadTimeout = %v", cfg.HTTP.ReadTimeout)
	}
	if cfg.Warehouse.Driver != "duckdb" {
		t.Fatalf("Warehouse.Driver = %q", cfg.Warehouse.Driver)
	}
	if cfg.Warehouse.Path != "/data/analytics.duckdb" {
		t.Fatalf("Warehouse.Path = %q", cfg.Warehouse.Path)
	}
	if cfg.Completion.DefaultModel != "gpt-4o" {
		t.Fatalf("Completion.DefaultModel = %q", cfg.Completion.DefaultModel)
	}
	if cfg.Completion.MaxTokens != 2048 {
		t.Fatalf("Completion.MaxTokens = %d", cfg.Completion.MaxTokens)
	}
	if !cfg.Pipeline.StrictGuard {
		t.Fatal("Pipeline.StrictGuard should be true")
	}
	if cfg.Observability.LogLevel != slog.LevelWarn {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"profile":          {"TABLECHAT_PROFILE": "staging"},
		"warehouse driver": {"TABLECHAT_WAREHOUSE_DRIVER": "sqlite"},
		"duration":         {"TABLECHAT_HTTP_READ_TIMEOUT": "soon"},
		"bool":             {"TABLECHAT_AUTH_REQUIRED": "yep"},
		"log level":        {"TABLECHAT_LOG_LEVEL": "loud"},
	}
	for name, env := range cases {
		if _, err := Load("tablechat-api", mapLookup(env)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
