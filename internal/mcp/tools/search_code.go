package tools

import (
	"context"
	"fmt"

	"github.com/codegraphhq/codegraph/internal/models"
	"github.com/codegraphhq/codegraph/internal/vectorstore"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

// Embedder turns query text into a vector using the same model the
// index was built with.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorSearcher runs similarity search over indexed chunks.
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, filter vectorstore.SearchFilter, limit int) ([]models.SearchResult, error)
}

// SearchCodeTool implements the search_code tool: it embeds the query
// text and returns the closest indexed chunks.
type SearchCodeTool struct {
	embedder Embedder
	store    VectorSearcher
	resolver WorkspaceResolver
}

// NewSearchCodeTool creates a new SearchCodeTool.
func NewSearchCodeTool(embedder Embedder, store VectorSearcher, resolver WorkspaceResolver) *SearchCodeTool {
	return &SearchCodeTool{embedder: embedder, store: store, resolver: resolver}
}

// Execute runs the semantic search.
func (t *SearchCodeTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	query := stringArg(args, "query")
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}

	limit := intArg(args, "limit", defaultSearchLimit)
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	repository, err := repositoryArg(ctx, args, t.resolver)
	if err != nil {
		return nil, err
	}

	filter := vectorstore.SearchFilter{
		Repository:   repository,
		Repositories: stringListArg(args, "repositories"),
		Extension:    stringArg(args, "extension"),
		MinScore:     float32(floatArg(args, "min_score", 0)),
	}

	vectors, err := t.embedder.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedding provider returned %d vectors for one query", len(vectors))
	}

	results, err := t.store.Search(ctx, vectors[0], filter, limit)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"query":   query,
		"count":   len(results),
		"results": results,
	}, nil
}

// GetSchema returns the JSON schema for the tool.
func (t *SearchCodeTool) GetSchema() map[string]interface{} {
	return map[string]interface{}{
		"description": "Semantic search over indexed code: embeds the query and returns the closest chunks",
		"inputSchema": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural-language or code query",
				},
				"repository": map[string]interface{}{
					"type":        "string",
					"description": "Restrict results to one indexed repository",
				},
				"repositories": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Restrict results to a set of indexed repositories",
				},
				"workspace_path": map[string]interface{}{
					"type":        "string",
					"description": "Caller working directory, resolved to an indexed repository when no repository is given",
				},
				"extension": map[string]interface{}{
					"type":        "string",
					"description": "Restrict results to files with this extension, e.g. .go",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum results to return (default 10, max 50)",
				},
				"min_score": map[string]interface{}{
					"type":        "number",
					"description": "Drop results scoring below this similarity",
				},
			},
			"required": []string{"query"},
		},
	}
}
