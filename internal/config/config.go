// Package config loads and validates process configuration. Values merge
// in precedence order: built-in defaults, then the YAML config file, then
// environment variables (with .env discovery for development trees).
// Secrets prefer the OS keychain over plaintext storage.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backend and driver names accepted by the configuration.
const (
	GraphBackendNeo4j    = "neo4j"
	GraphBackendFalkorDB = "falkordb"

	StorageDriverSQLite   = "sqlite"
	StorageDriverPostgres = "postgres"

	EmbeddingProviderOpenAI = "openai"
	EmbeddingProviderGemini = "gemini"
)

// DefaultDataPath is where indexes, tokens and clones live unless
// DATA_PATH says otherwise.
const DefaultDataPath = "./data"

// Config holds all configuration settings.
type Config struct {
	// DataPath is the root directory for local state: the metadata
	// database, tokens.json, models.json and repository clones.
	DataPath string `yaml:"data_path" mapstructure:"data_path"`

	Graph     GraphConfig     `yaml:"graph" mapstructure:"graph"`
	Vector    VectorConfig    `yaml:"vector" mapstructure:"vector"`
	Embedding EmbeddingConfig `yaml:"embedding" mapstructure:"embedding"`
	Storage   StorageConfig   `yaml:"storage" mapstructure:"storage"`
	Index     IndexConfig     `yaml:"index" mapstructure:"index"`
	GitHub    GitHubConfig    `yaml:"github" mapstructure:"github"`
	Auth      AuthConfig      `yaml:"auth" mapstructure:"auth"`
}

// GraphConfig is the graph backend connection.
type GraphConfig struct {
	// Backend selects the dialect: "neo4j" or "falkordb".
	Backend string `yaml:"backend" mapstructure:"backend"`
	// URI is the bolt address for neo4j (bolt://host:7687) and the
	// redis address (host:port) for falkordb.
	URI      string `yaml:"uri" mapstructure:"uri"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	// Database is the neo4j database name or the falkordb graph key.
	Database       string        `yaml:"database" mapstructure:"database"`
	PoolSize       int           `yaml:"pool_size" mapstructure:"pool_size"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout" mapstructure:"acquire_timeout"`
	QueryTimeout   time.Duration `yaml:"query_timeout" mapstructure:"query_timeout"`
}

// VectorConfig is the vector store connection.
type VectorConfig struct {
	Host       string `yaml:"host" mapstructure:"host"`
	Port       int    `yaml:"port" mapstructure:"port"`
	APIKey     string `yaml:"api_key" mapstructure:"api_key"`
	UseTLS     bool   `yaml:"use_tls" mapstructure:"use_tls"`
	Collection string `yaml:"collection" mapstructure:"collection"`
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	Provider string `yaml:"provider" mapstructure:"provider"`
	Model    string `yaml:"model" mapstructure:"model"`
	// Dimensions overrides the model's native dimensionality where the
	// model supports it; zero keeps the native size.
	Dimensions int    `yaml:"dimensions" mapstructure:"dimensions"`
	APIKey     string `yaml:"api_key" mapstructure:"api_key"`
	// RateLimit caps embedding requests per second; zero disables
	// client-side throttling.
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// StorageConfig is the repository metadata store.
type StorageConfig struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver      string `yaml:"driver" mapstructure:"driver"`
	PostgresDSN string `yaml:"postgres_dsn" mapstructure:"postgres_dsn"`
}

// IndexConfig scopes what the indexing pipeline reads.
type IndexConfig struct {
	// IncludeExtensions gates files by lowercased extension with the
	// leading dot.
	IncludeExtensions []string `yaml:"include_extensions" mapstructure:"include_extensions"`
	// ExcludePatterns are gitignore-style globs.
	ExcludePatterns []string `yaml:"exclude_patterns" mapstructure:"exclude_patterns"`
	// MaxChunkBytes bounds a single chunk; zero keeps the chunker default.
	MaxChunkBytes int `yaml:"max_chunk_bytes" mapstructure:"max_chunk_bytes"`
}

// GitHubConfig tunes the remote resolution client.
type GitHubConfig struct {
	Token string `yaml:"token" mapstructure:"token"`
	// RateLimit is API requests per second.
	RateLimit int `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// AuthConfig gates bearer-token authentication on the tool server.
type AuthConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataPath: DefaultDataPath,
		Graph: GraphConfig{
			Backend:        GraphBackendNeo4j,
			URI:            "bolt://localhost:7687",
			Username:       "neo4j",
			Database:       "neo4j",
			PoolSize:       50,
			AcquireTimeout: 60 * time.Second,
			QueryTimeout:   30 * time.Second,
		},
		Vector: VectorConfig{
			Host:       "localhost",
			Port:       6334,
			Collection: "codegraph",
		},
		Embedding: EmbeddingConfig{
			Provider:  EmbeddingProviderOpenAI,
			Model:     "text-embedding-3-small",
			RateLimit: 5,
		},
		Storage: StorageConfig{
			Driver: StorageDriverSQLite,
		},
		Index: IndexConfig{
			IncludeExtensions: []string{
				".js", ".jsx", ".mjs", ".cjs",
				".ts", ".tsx", ".mts", ".cts",
				".py", ".pyi",
			},
			ExcludePatterns: []string{
				"node_modules/**",
				"vendor/**",
				"dist/**",
				"build/**",
				"coverage/**",
				"__pycache__/**",
				"**/*.min.js",
				"**/*.bundle.js",
			},
		},
		GitHub: GitHubConfig{
			RateLimit: 10,
		},
	}
}

// Load reads configuration from the given file (or the standard search
// locations when path is empty), then applies environment overrides.
// A missing config file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	v.SetDefault("data_path", cfg.DataPath)
	v.SetDefault("graph", cfg.Graph)
	v.SetDefault("vector", cfg.Vector)
	v.SetDefault("embedding", cfg.Embedding)
	v.SetDefault("storage", cfg.Storage)
	v.SetDefault("index", cfg.Index)
	v.SetDefault("github", cfg.GitHub)
	v.SetDefault("auth", cfg.Auth)

	v.SetEnvPrefix("CODEGRAPH")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("codegraph")
		v.AddConfigPath(".")
		if homeDir, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".codegraph"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file is fine; defaults plus env cover it.
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.DataPath = expandPath(cfg.DataPath)

	return cfg, nil
}

// applyEnvOverrides layers the 12-factor environment names over whatever
// the file provided. Env always wins so CI and containers never need a
// config file.
func applyEnvOverrides(cfg *Config) {
	if path := os.Getenv("DATA_PATH"); path != "" {
		cfg.DataPath = path
	}

	// Graph backend.
	if backend := os.Getenv("GRAPH_BACKEND"); backend != "" {
		cfg.Graph.Backend = strings.ToLower(backend)
	}
	if uri := os.Getenv("GRAPH_URI"); uri != "" {
		cfg.Graph.URI = uri
	}
	if size := os.Getenv("GRAPH_POOL_SIZE"); size != "" {
		if n, err := strconv.Atoi(size); err == nil {
			cfg.Graph.PoolSize = n
		}
	}
	switch cfg.Graph.Backend {
	case GraphBackendFalkorDB:
		if addr := os.Getenv("FALKORDB_ADDR"); addr != "" {
			cfg.Graph.URI = addr
		}
		if graphKey := os.Getenv("FALKORDB_GRAPH"); graphKey != "" {
			cfg.Graph.Database = graphKey
		}
		if pass := os.Getenv("FALKORDB_PASSWORD"); pass != "" {
			cfg.Graph.Password = pass
		}
	default:
		if uri := os.Getenv("NEO4J_URI"); uri != "" {
			cfg.Graph.URI = uri
		}
		if user := os.Getenv("NEO4J_USERNAME"); user != "" {
			cfg.Graph.Username = user
		}
		if pass := os.Getenv("NEO4J_PASSWORD"); pass != "" {
			cfg.Graph.Password = pass
		}
		if db := os.Getenv("NEO4J_DATABASE"); db != "" {
			cfg.Graph.Database = db
		}
	}

	// Vector backend.
	if host := os.Getenv("QDRANT_HOST"); host != "" {
		cfg.Vector.Host = host
	}
	if port := os.Getenv("QDRANT_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			cfg.Vector.Port = n
		}
	}
	if key := os.Getenv("QDRANT_API_KEY"); key != "" {
		cfg.Vector.APIKey = key
	}
	if tls := os.Getenv("QDRANT_USE_TLS"); tls != "" {
		cfg.Vector.UseTLS = tls == "true" || tls == "1"
	}
	if collection := os.Getenv("QDRANT_COLLECTION"); collection != "" {
		cfg.Vector.Collection = collection
	}

	// Embedding provider. Provider API keys resolve through the
	// credential chain (env, then keychain, then file) in Credentials.
	if provider := os.Getenv("EMBEDDING_PROVIDER"); provider != "" {
		cfg.Embedding.Provider = strings.ToLower(provider)
	}
	if model := os.Getenv("EMBEDDING_MODEL"); model != "" {
		cfg.Embedding.Model = model
	}
	if dims := os.Getenv("EMBEDDING_DIMENSIONS"); dims != "" {
		if n, err := strconv.Atoi(dims); err == nil {
			cfg.Embedding.Dimensions = n
		}
	}
	if rate := os.Getenv("EMBEDDING_RATE_LIMIT"); rate != "" {
		if f, err := strconv.ParseFloat(rate, 64); err == nil {
			cfg.Embedding.RateLimit = f
		}
	}

	// Metadata storage.
	if driver := os.Getenv("STORAGE_DRIVER"); driver != "" {
		cfg.Storage.Driver = strings.ToLower(driver)
	}
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		cfg.Storage.PostgresDSN = dsn
	}

	// Index filter.
	if exts := os.Getenv("INDEX_INCLUDE_EXTENSIONS"); exts != "" {
		cfg.Index.IncludeExtensions = splitList(exts)
	}
	if patterns := os.Getenv("INDEX_EXCLUDE_PATTERNS"); patterns != "" {
		cfg.Index.ExcludePatterns = splitList(patterns)
	}

	// GitHub API.
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		cfg.GitHub.Token = token
	}
	if rate := os.Getenv("GITHUB_RATE_LIMIT"); rate != "" {
		if n, err := strconv.Atoi(rate); err == nil {
			cfg.GitHub.RateLimit = n
		}
	}

	// Tool-server auth.
	if enabled := os.Getenv("CODEGRAPH_AUTH_ENABLED"); enabled != "" {
		cfg.Auth.Enabled = enabled == "true" || enabled == "1"
	}
}

// Save writes the configuration to path as YAML, creating parent
// directories as needed.
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	v.Set("data_path", c.DataPath)
	v.Set("graph", c.Graph)
	v.Set("vector", c.Vector)
	v.Set("embedding", c.Embedding)
	v.Set("storage", c.Storage)
	v.Set("index", c.Index)
	v.Set("github", c.GitHub)
	v.Set("auth", c.Auth)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// DefaultConfigPath is where `configure` saves and where Load searches
// after the working directory.
func DefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "codegraph.yaml"
	}
	return filepath.Join(homeDir, ".codegraph", "config.yaml")
}

// splitList parses a comma-separated env value into trimmed items.
func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// expandPath expands a leading ~ to the home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}
