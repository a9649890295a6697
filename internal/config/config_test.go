package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()

	if cfg.DataPath != DefaultDataPath {
		t.Errorf("expected data path %s, got %s", DefaultDataPath, cfg.DataPath)
	}
	if cfg.Graph.Backend != GraphBackendNeo4j {
		t.Errorf("expected default backend neo4j, got %s", cfg.Graph.Backend)
	}
	if cfg.Graph.PoolSize != 50 {
		t.Errorf("expected pool size 50, got %d", cfg.Graph.PoolSize)
	}
	if cfg.Graph.AcquireTimeout != 60*time.Second {
		t.Errorf("expected acquire timeout 60s, got %s", cfg.Graph.AcquireTimeout)
	}
	if cfg.Vector.Port != 6334 {
		t.Errorf("expected qdrant port 6334, got %d", cfg.Vector.Port)
	}
	if cfg.Embedding.Provider != EmbeddingProviderOpenAI {
		t.Errorf("expected default provider openai, got %s", cfg.Embedding.Provider)
	}
	if cfg.Storage.Driver != StorageDriverSQLite {
		t.Errorf("expected default driver sqlite, got %s", cfg.Storage.Driver)
	}
	if len(cfg.Index.IncludeExtensions) == 0 {
		t.Error("expected default include extensions")
	}
	for _, ext := range cfg.Index.IncludeExtensions {
		if !strings.HasPrefix(ext, ".") {
			t.Errorf("extension %q missing leading dot", ext)
		}
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DATA_PATH", "/tmp/cg-test-data")
	t.Setenv("GRAPH_BACKEND", "falkordb")
	t.Setenv("FALKORDB_ADDR", "falkor.example:6379")
	t.Setenv("FALKORDB_GRAPH", "mygraph")
	t.Setenv("QDRANT_HOST", "qdrant.example")
	t.Setenv("QDRANT_PORT", "7443")
	t.Setenv("QDRANT_USE_TLS", "true")
	t.Setenv("EMBEDDING_PROVIDER", "gemini")
	t.Setenv("EMBEDDING_DIMENSIONS", "768")
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("POSTGRES_DSN", "postgres://localhost/test")
	t.Setenv("INDEX_INCLUDE_EXTENSIONS", ".go, .py")
	t.Setenv("CODEGRAPH_AUTH_ENABLED", "true")

	cfg := Default()
	applyEnvOverrides(cfg)

	if cfg.DataPath != "/tmp/cg-test-data" {
		t.Errorf("DATA_PATH override not applied, got %s", cfg.DataPath)
	}
	if cfg.Graph.Backend != GraphBackendFalkorDB {
		t.Errorf("GRAPH_BACKEND override not applied, got %s", cfg.Graph.Backend)
	}
	if cfg.Graph.URI != "falkor.example:6379" {
		t.Errorf("FALKORDB_ADDR override not applied, got %s", cfg.Graph.URI)
	}
	if cfg.Graph.Database != "mygraph" {
		t.Errorf("FALKORDB_GRAPH override not applied, got %s", cfg.Graph.Database)
	}
	if cfg.Vector.Host != "qdrant.example" || cfg.Vector.Port != 7443 {
		t.Errorf("qdrant overrides not applied: %s:%d", cfg.Vector.Host, cfg.Vector.Port)
	}
	if !cfg.Vector.UseTLS {
		t.Error("QDRANT_USE_TLS override not applied")
	}
	if cfg.Embedding.Provider != EmbeddingProviderGemini {
		t.Errorf("EMBEDDING_PROVIDER override not applied, got %s", cfg.Embedding.Provider)
	}
	if cfg.Embedding.Dimensions != 768 {
		t.Errorf("EMBEDDING_DIMENSIONS override not applied, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Storage.Driver != StorageDriverPostgres || cfg.Storage.PostgresDSN == "" {
		t.Errorf("storage overrides not applied: %s %q", cfg.Storage.Driver, cfg.Storage.PostgresDSN)
	}
	if len(cfg.Index.IncludeExtensions) != 2 || cfg.Index.IncludeExtensions[0] != ".go" {
		t.Errorf("INDEX_INCLUDE_EXTENSIONS override not applied: %v", cfg.Index.IncludeExtensions)
	}
	if !cfg.Auth.Enabled {
		t.Error("CODEGRAPH_AUTH_ENABLED override not applied")
	}
}

func TestNeo4jEnvOverridesIgnoredForFalkorDB(t *testing.T) {
	t.Setenv("GRAPH_BACKEND", "falkordb")
	t.Setenv("NEO4J_URI", "bolt://wrong:7687")
	t.Setenv("FALKORDB_ADDR", "right:6379")

	cfg := Default()
	applyEnvOverrides(cfg)

	if cfg.Graph.URI != "right:6379" {
		t.Errorf("expected falkordb address to win, got %s", cfg.Graph.URI)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "codegraph.yaml")

	original := Default()
	original.DataPath = filepath.Join(dir, "data")
	original.Graph.URI = "bolt://graph.example:7687"
	original.Vector.Collection = "roundtrip"
	if err := original.Save(path); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if loaded.Graph.URI != original.Graph.URI {
		t.Errorf("graph URI did not round-trip: %s", loaded.Graph.URI)
	}
	if loaded.Vector.Collection != "roundtrip" {
		t.Errorf("vector collection did not round-trip: %s", loaded.Vector.Collection)
	}
}

func TestLoadWithoutConfigFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() without a config file failed: %v", err)
	}
	if cfg.Graph.Backend != GraphBackendNeo4j {
		t.Errorf("expected default backend, got %s", cfg.Graph.Backend)
	}
	if cfg.Vector.Port != 6334 {
		t.Errorf("expected default port, got %d", cfg.Vector.Port)
	}
}

func TestValidateContexts(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		context ValidationContext
		wantErr string
	}{
		{
			name:    "token context ignores backends",
			mutate:  func(c *Config) { c.Graph.URI = "" },
			context: ContextToken,
			wantErr: "",
		},
		{
			name:    "index context requires embedding key",
			mutate:  func(c *Config) {},
			context: ContextIndex,
			wantErr: "OPENAI_API_KEY",
		},
		{
			name:    "graph context requires neo4j password",
			mutate:  func(c *Config) {},
			context: ContextGraph,
			wantErr: "NEO4J_PASSWORD",
		},
		{
			name: "postgres driver requires dsn",
			mutate: func(c *Config) {
				c.Storage.Driver = StorageDriverPostgres
				c.Embedding.APIKey = "sk-test"
			},
			context: ContextIndex,
			wantErr: "POSTGRES_DSN",
		},
		{
			name: "unknown backend rejected",
			mutate: func(c *Config) {
				c.Graph.Backend = "dgraph"
			},
			context: ContextGraph,
			wantErr: "unknown graph backend",
		},
		{
			name: "falkordb address must not carry scheme",
			mutate: func(c *Config) {
				c.Graph.Backend = GraphBackendFalkorDB
				c.Graph.URI = "redis://localhost:6379"
			},
			context: ContextGraph,
			wantErr: "host:port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			result := Validate(cfg, nil, tt.context)
			if tt.wantErr == "" {
				if !result.Valid {
					t.Errorf("expected valid, got errors: %v", result.Errors)
				}
				return
			}
			if result.Valid {
				t.Fatalf("expected invalid result")
			}
			err := result.Err()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidatePassesWithCredentials(t *testing.T) {
	cfg := Default()
	cfg.Embedding.APIKey = "sk-test"
	cfg.Graph.Password = "s3cret"

	result := Validate(cfg, nil, ContextAll)
	if !result.Valid {
		t.Errorf("expected valid config, got errors: %v", result.Errors)
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" .ts, .tsx ,,.py ")
	want := []string{".ts", ".tsx", ".py"}
	if len(got) != len(want) {
		t.Fatalf("expected %d items, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandPath("~/x"); got != filepath.Join(home, "x") {
		t.Errorf("expected home expansion, got %s", got)
	}
	if got := expandPath("/abs/path"); got != "/abs/path" {
		t.Errorf("absolute path should pass through, got %s", got)
	}
}

func TestMaskSecret(t *testing.T) {
	if got := MaskSecret(""); got != "(not set)" {
		t.Errorf("empty secret: got %q", got)
	}
	if got := MaskSecret("short"); got != "***" {
		t.Errorf("short secret: got %q", got)
	}
	masked := MaskSecret("sk-proj-abcdefghijklmnop1234")
	if !strings.HasPrefix(masked, "sk-proj") || !strings.HasSuffix(masked, "1234") {
		t.Errorf("unexpected mask: %q", masked)
	}
	if strings.Contains(masked, "abcdefghijklmnop") {
		t.Errorf("mask leaked the middle: %q", masked)
	}
}
