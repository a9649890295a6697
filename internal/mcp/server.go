package mcp

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/codegraphhq/codegraph/internal/auth"
	"github.com/codegraphhq/codegraph/internal/embeddings"
	"github.com/codegraphhq/codegraph/internal/errors"
	"github.com/codegraphhq/codegraph/internal/graph"
	"github.com/codegraphhq/codegraph/internal/graphquery"
	"github.com/codegraphhq/codegraph/internal/mcp/tools"
	"github.com/codegraphhq/codegraph/internal/storage"
	"github.com/codegraphhq/codegraph/internal/vectorstore"
)

// ServerConfig carries everything a serving session needs. Validator
// and Resolver are optional: leaving them nil disables authentication
// and workspace resolution respectively.
type ServerConfig struct {
	ServerName    string
	ServerVersion string

	Query    *graphquery.Service
	Graph    graph.Adapter
	Embedder embeddings.Provider
	Vectors  *vectorstore.Store
	Repos    storage.RepositoryStore

	Validator TokenValidator
	Resolver  *WorkspaceResolver

	Logger *logrus.Logger
}

// Server binds the full tool set to a stdio transport.
type Server struct {
	handler *Handler
	logger  *logrus.Logger
}

// NewServer wires the tool surface onto a handler. Every tool exposed
// today is a query, so all register with the read scope; mutating
// tools would take write.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Query == nil || cfg.Graph == nil {
		return nil, errors.Validation("mcp server requires the graph query service and adapter")
	}
	if cfg.Embedder == nil || cfg.Vectors == nil {
		return nil, errors.Validation("mcp server requires an embedding provider and vector store")
	}
	if cfg.Repos == nil {
		return nil, errors.Validation("mcp server requires the repository metadata store")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	handler := NewHandler(HandlerOptions{
		ServerName:    cfg.ServerName,
		ServerVersion: cfg.ServerVersion,
		Validator:     cfg.Validator,
		Logger:        cfg.Logger,
	})

	// A nil *WorkspaceResolver must reach the tools as a nil interface,
	// so the conversion is guarded.
	var resolver tools.WorkspaceResolver
	if cfg.Resolver != nil {
		resolver = cfg.Resolver
	}

	handler.RegisterTool("search_code", auth.ScopeRead, tools.NewSearchCodeTool(cfg.Embedder, cfg.Vectors, resolver))
	handler.RegisterTool("get_dependencies", auth.ScopeRead, tools.NewGetDependenciesTool(cfg.Query, resolver))
	handler.RegisterTool("get_dependents", auth.ScopeRead, tools.NewGetDependentsTool(cfg.Query, resolver))
	handler.RegisterTool("get_path", auth.ScopeRead, tools.NewGetPathTool(cfg.Query, resolver))
	handler.RegisterTool("get_architecture", auth.ScopeRead, tools.NewGetArchitectureTool(cfg.Query, resolver))
	handler.RegisterTool("get_context", auth.ScopeRead, tools.NewGetContextTool(cfg.Graph, resolver))
	handler.RegisterTool("list_repositories", auth.ScopeRead, tools.NewListRepositoriesTool(cfg.Repos))

	return &Server{handler: handler, logger: cfg.Logger}, nil
}

// Run serves the session over stdin/stdout until EOF or cancellation.
func (s *Server) Run(ctx context.Context) error {
	s.logger.WithFields(logrus.Fields{
		"tools": len(s.handler.tools),
		"auth":  s.handler.validator != nil,
	}).Info("MCP server listening on stdio")

	return NewStdioTransport(s.handler).Start(ctx)
}
