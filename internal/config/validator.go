package config

import (
	"fmt"
	"strings"

	"github.com/codegraphhq/codegraph/internal/errors"
)

// ValidationContext names the slice of configuration a command needs.
// Validating only what a command touches keeps `token list` working on a
// machine with no graph database.
type ValidationContext string

const (
	// ContextIndex - index/update commands need metadata storage, the
	// vector backend and an embedding key.
	ContextIndex ValidationContext = "index"
	// ContextGraph - graph populate/query commands need the graph backend.
	ContextGraph ValidationContext = "graph"
	// ContextServe - the tool server needs everything.
	ContextServe ValidationContext = "serve"
	// ContextToken - token commands need only the data path.
	ContextToken ValidationContext = "token"
	// ContextAll - validate the full configuration.
	ContextAll ValidationContext = "all"
)

// ValidationResult collects what a validation pass found.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// AddError records a fatal finding.
func (vr *ValidationResult) AddError(format string, args ...interface{}) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, fmt.Sprintf(format, args...))
}

// AddWarning records a non-fatal finding.
func (vr *ValidationResult) AddWarning(format string, args ...interface{}) {
	vr.Warnings = append(vr.Warnings, fmt.Sprintf(format, args...))
}

// Err folds the findings into a single configuration error, or nil when
// the result is valid.
func (vr *ValidationResult) Err() error {
	if vr.Valid {
		return nil
	}
	return errors.Configf("configuration invalid:\n  - %s", strings.Join(vr.Errors, "\n  - "))
}

// Validate checks the configuration slice a context needs. Credentials
// resolve through the priority chain so a key in the keychain passes even
// when the config file carries none. Messages state the remediation.
func Validate(cfg *Config, creds *Credentials, context ValidationContext) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if cfg.DataPath == "" {
		result.AddError("data path is empty. Set DATA_PATH or data_path in the config file")
	}

	if context == ContextIndex || context == ContextServe || context == ContextAll {
		validateStorage(cfg, result)
		validateVector(cfg, result)
		validateEmbedding(cfg, creds, result)
	}

	if context == ContextGraph || context == ContextServe || context == ContextAll {
		validateGraph(cfg, creds, result)
	}

	return result
}

func validateStorage(cfg *Config, result *ValidationResult) {
	switch cfg.Storage.Driver {
	case StorageDriverSQLite, "":
	case StorageDriverPostgres:
		if cfg.Storage.PostgresDSN == "" {
			result.AddError("storage driver is postgres but no DSN is set. Set POSTGRES_DSN")
		}
	default:
		result.AddError("unknown storage driver %q (supported: sqlite, postgres)", cfg.Storage.Driver)
	}
}

func validateVector(cfg *Config, result *ValidationResult) {
	if cfg.Vector.Host == "" {
		result.AddError("vector store host is empty. Set QDRANT_HOST")
	}
	if cfg.Vector.Port <= 0 || cfg.Vector.Port > 65535 {
		result.AddError("vector store port %d is out of range. Set QDRANT_PORT", cfg.Vector.Port)
	}
	if cfg.Vector.Collection == "" {
		result.AddWarning("vector collection is empty; the default %q will be used", "codegraph")
	}
}

func validateEmbedding(cfg *Config, creds *Credentials, result *ValidationResult) {
	switch cfg.Embedding.Provider {
	case EmbeddingProviderOpenAI, EmbeddingProviderGemini:
	default:
		result.AddError("unknown embedding provider %q (supported: openai, gemini)", cfg.Embedding.Provider)
		return
	}

	key := cfg.Embedding.APIKey
	if creds != nil {
		key = creds.EmbeddingAPIKey()
	}
	if key == "" {
		envName := "OPENAI_API_KEY"
		if cfg.Embedding.Provider == EmbeddingProviderGemini {
			envName = "GEMINI_API_KEY"
		}
		result.AddError("no %s API key found. Set %s or run `cgraph configure`", cfg.Embedding.Provider, envName)
	}
	if cfg.Embedding.Dimensions < 0 {
		result.AddError("embedding dimensions %d is negative", cfg.Embedding.Dimensions)
	}
}

func validateGraph(cfg *Config, creds *Credentials, result *ValidationResult) {
	switch cfg.Graph.Backend {
	case GraphBackendNeo4j, GraphBackendFalkorDB:
	default:
		result.AddError("unknown graph backend %q (supported: neo4j, falkordb)", cfg.Graph.Backend)
		return
	}

	if cfg.Graph.URI == "" {
		if cfg.Graph.Backend == GraphBackendFalkorDB {
			result.AddError("graph URI is empty. Set FALKORDB_ADDR (host:port)")
		} else {
			result.AddError("graph URI is empty. Set NEO4J_URI (bolt://host:7687)")
		}
		return
	}

	if cfg.Graph.Backend == GraphBackendNeo4j {
		if !strings.Contains(cfg.Graph.URI, "://") {
			result.AddError("neo4j URI %q has no scheme. Use bolt:// or neo4j://", cfg.Graph.URI)
		}
		pass := cfg.Graph.Password
		if creds != nil {
			pass = creds.GraphPassword()
		}
		if pass == "" {
			result.AddError("no neo4j password found. Set NEO4J_PASSWORD or run `cgraph configure`")
		}
	} else if strings.Contains(cfg.Graph.URI, "://") {
		result.AddError("falkordb address %q must be host:port without a scheme", cfg.Graph.URI)
	}
}
