package main

import (
	"github.com/spf13/cobra"

	"github.com/codegraphhq/codegraph/internal/auth"
	"github.com/codegraphhq/codegraph/internal/config"
	"github.com/codegraphhq/codegraph/internal/graphquery"
	"github.com/codegraphhq/codegraph/internal/logging"
	"github.com/codegraphhq/codegraph/internal/mcp"
	"github.com/codegraphhq/codegraph/internal/metrics"
)

var serveMCPCmd = &cobra.Command{
	Use:   "serve-mcp",
	Short: "Serve the tool API over stdio",
	Long: `Run the MCP tool server on stdin/stdout for AI assistant integration.
The protocol owns stdout; logs go to stderr and the log file.`,
	RunE: runServeMCP,
}

func runServeMCP(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if err := validateConfig(config.ContextServe); err != nil {
		return err
	}

	// Long-running process: route component logs to a file instead of the
	// stderr fallback so assistant sessions stay quiet.
	if err := logging.Initialize(logging.DefaultConfig(verbose)); err != nil {
		logger.WithError(err).Warn("File logging unavailable, components log to stderr")
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	vectors, err := openVectors()
	if err != nil {
		return err
	}
	defer vectors.Close()

	embedder, err := openEmbedder(ctx)
	if err != nil {
		return err
	}

	adapter, err := openGraph(ctx)
	if err != nil {
		return err
	}
	defer adapter.Close(ctx)

	query := graphquery.New(adapter, graphquery.Options{
		Timeout:   cfg.Graph.QueryTimeout,
		Collector: metrics.NewCollector(metrics.DefaultCapacity, logging.ForComponent("metrics")),
	})

	resolver, err := mcp.NewWorkspaceResolver(cfg.DataPath, store)
	if err != nil {
		return err
	}
	defer resolver.Close()

	var validator mcp.TokenValidator
	if cfg.Auth.Enabled {
		tokenStore, err := auth.NewTokenStore(cfg.DataPath)
		if err != nil {
			return err
		}
		validator = auth.NewTokenService(tokenStore)
		logger.Info("Bearer token authentication enabled")
	}

	server, err := mcp.NewServer(mcp.ServerConfig{
		ServerName:    "codegraph",
		ServerVersion: Version,
		Query:         query,
		Graph:         adapter,
		Embedder:      embedder,
		Vectors:       vectors,
		Repos:         store,
		Validator:     validator,
		Resolver:      resolver,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	return server.Run(ctx)
}
