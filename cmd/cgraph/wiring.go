package main

import (
	"context"
	"os"

	"github.com/codegraphhq/codegraph/internal/config"
	"github.com/codegraphhq/codegraph/internal/coordinator"
	"github.com/codegraphhq/codegraph/internal/embeddings"
	"github.com/codegraphhq/codegraph/internal/errors"
	"github.com/codegraphhq/codegraph/internal/gitremote"
	"github.com/codegraphhq/codegraph/internal/graph"
	"github.com/codegraphhq/codegraph/internal/indexer"
	"github.com/codegraphhq/codegraph/internal/pipeline"
	"github.com/codegraphhq/codegraph/internal/storage"
	"github.com/codegraphhq/codegraph/internal/vectorstore"
)

// validateConfig runs the per-command configuration check. Warnings go to
// the logger; errors abort with remediation in the message.
func validateConfig(vctx config.ValidationContext) error {
	result := config.Validate(cfg, creds, vctx)
	for _, warning := range result.Warnings {
		logger.Warn(warning)
	}
	return result.Err()
}

func openStore() (storage.RepositoryStore, error) {
	return storage.New(storage.Config{
		Driver:   cfg.Storage.Driver,
		DSN:      cfg.Storage.PostgresDSN,
		DataPath: cfg.DataPath,
	}, logger)
}

func openVectors() (*vectorstore.Store, error) {
	return vectorstore.New(vectorstore.Config{
		Host:       cfg.Vector.Host,
		Port:       cfg.Vector.Port,
		APIKey:     cfg.Vector.APIKey,
		UseTLS:     cfg.Vector.UseTLS,
		Collection: cfg.Vector.Collection,
	})
}

func openEmbedder(ctx context.Context) (embeddings.Provider, error) {
	return embeddings.New(ctx, embeddings.Config{
		Provider:   cfg.Embedding.Provider,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		APIKey:     creds.EmbeddingAPIKey(),
		RateLimit:  cfg.Embedding.RateLimit,
	})
}

// graphConfig maps the loaded configuration onto the adapter config,
// resolving the password through the credential chain.
func graphConfig() graph.Config {
	return graph.Config{
		Backend:        graph.Backend(cfg.Graph.Backend),
		URI:            cfg.Graph.URI,
		Username:       cfg.Graph.Username,
		Password:       creds.GraphPassword(),
		Database:       cfg.Graph.Database,
		PoolSize:       cfg.Graph.PoolSize,
		AcquireTimeout: cfg.Graph.AcquireTimeout,
		QueryTimeout:   cfg.Graph.QueryTimeout,
	}
}

// openGraph builds and connects the configured graph adapter. Callers own
// the Close.
func openGraph(ctx context.Context) (graph.Adapter, error) {
	adapter, err := graph.New(graphConfig())
	if err != nil {
		return nil, err
	}
	if err := adapter.Connect(ctx); err != nil {
		return nil, errors.Connectionf(err, "connect to %s at %s", cfg.Graph.Backend, cfg.Graph.URI)
	}
	return adapter, nil
}

func newRemote() *gitremote.Client {
	return gitremote.NewClient(creds.GitHubToken(), cfg.GitHub.RateLimit)
}

func newPipeline(vectors *vectorstore.Store, embedder embeddings.Provider) *pipeline.Pipeline {
	return pipeline.New(vectors, embedder, logger)
}

func newCoordinator(store storage.RepositoryStore, pipe *pipeline.Pipeline) *coordinator.Coordinator {
	return coordinator.New(store, pipe, newRemote(), coordinator.Config{
		CollectionName:    cfg.Vector.Collection,
		IncludeExtensions: cfg.Index.IncludeExtensions,
		ExcludePatterns:   cfg.Index.ExcludePatterns,
	}, logger)
}

// newIndexEngine wires the full-index engine. dims comes from the
// constructed embedding provider so the vector collection and the
// repository record always carry the provider's real dimensionality.
func newIndexEngine(store storage.RepositoryStore, pipe *pipeline.Pipeline, vectors *vectorstore.Store, dropper indexer.GraphDropper, dims int) *indexer.Engine {
	return indexer.New(store, pipe, vectors, dropper, newRemote(), indexer.Config{
		DataPath:            cfg.DataPath,
		CollectionName:      cfg.Vector.Collection,
		IncludeExtensions:   cfg.Index.IncludeExtensions,
		ExcludePatterns:     cfg.Index.ExcludePatterns,
		EmbeddingProvider:   cfg.Embedding.Provider,
		EmbeddingModel:      cfg.Embedding.Model,
		EmbeddingDimensions: dims,
	}, logger)
}

// transferGraphConfig resolves coordinates for a transfer endpoint. The
// configured backend reuses the loaded config; the other side falls back
// to its environment variables and local defaults.
func transferGraphConfig(backend string) (graph.Config, error) {
	switch backend {
	case config.GraphBackendNeo4j, config.GraphBackendFalkorDB:
	default:
		return graph.Config{}, errors.Validationf("unknown graph backend %q (expected neo4j or falkordb)", backend)
	}

	if backend == cfg.Graph.Backend {
		return graphConfig(), nil
	}

	if backend == config.GraphBackendNeo4j {
		return graph.Config{
			Backend:  graph.BackendNeo4j,
			URI:      envOrDefault("NEO4J_URI", "bolt://localhost:7687"),
			Username: envOrDefault("NEO4J_USERNAME", "neo4j"),
			Password: os.Getenv("NEO4J_PASSWORD"),
			Database: envOrDefault("NEO4J_DATABASE", "neo4j"),
		}, nil
	}
	return graph.Config{
		Backend:  graph.BackendFalkorDB,
		URI:      envOrDefault("FALKORDB_ADDR", "localhost:6379"),
		Password: os.Getenv("FALKORDB_PASSWORD"),
		Database: envOrDefault("FALKORDB_GRAPH", "codegraph"),
	}, nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
