// Package tools implements the callable surface of the MCP server: one
// Tool per operation, each coercing loosely typed JSON-RPC arguments
// into the typed requests of the underlying services.
package tools

import (
	"context"

	"github.com/codegraphhq/codegraph/internal/graph"
	"github.com/codegraphhq/codegraph/internal/graphquery"
)

// JSONRPCRequest represents a JSON-RPC 2.0 request
type JSONRPCRequest struct {
	JSONRPC string                 `json:"jsonrpc"`
	ID      interface{}            `json:"id"`
	Method  string                 `json:"method"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      interface{}   `json:"id"`
	Result  interface{}   `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
}

// JSONRPCError represents a JSON-RPC 2.0 error
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// GraphQuerier is the slice of the structural query service the graph
// tools dispatch to.
type GraphQuerier interface {
	GetDependencies(ctx context.Context, req graphquery.DependenciesRequest) (*graph.DependencyResult, error)
	GetDependents(ctx context.Context, req graphquery.DependenciesRequest) (*graphquery.DependentsResult, error)
	GetPath(ctx context.Context, req graphquery.PathRequest) (*graphquery.PathResult, error)
	GetArchitecture(ctx context.Context, req graphquery.ArchitectureRequest) (*graphquery.ArchitectureResult, error)
}

// WorkspaceResolver maps a caller's working directory to the name of an
// indexed repository. Tools fall back to it when no explicit repository
// argument is given; a nil resolver disables the fallback.
type WorkspaceResolver interface {
	Resolve(ctx context.Context, workspacePath string) (string, error)
}
