package tools

import (
	"context"
	"fmt"

	"github.com/codegraphhq/codegraph/internal/graph"
)

// ContextFetcher assembles working context around seed entities.
type ContextFetcher interface {
	GetContext(ctx context.Context, q graph.ContextQuery) (*graph.ContextResult, error)
}

// GetContextTool implements the get_context tool: imports, callers,
// callees, siblings and documentation around a set of seed entities.
type GetContextTool struct {
	graph    ContextFetcher
	resolver WorkspaceResolver
}

// NewGetContextTool creates a new GetContextTool.
func NewGetContextTool(fetcher ContextFetcher, resolver WorkspaceResolver) *GetContextTool {
	return &GetContextTool{graph: fetcher, resolver: resolver}
}

// Execute runs the context query.
func (t *GetContextTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	seeds := stringListArg(args, "seeds")
	if len(seeds) == 0 {
		return nil, fmt.Errorf("at least one seed entity is required")
	}

	repository, err := repositoryArg(ctx, args, t.resolver)
	if err != nil {
		return nil, err
	}

	var include []graph.ContextKind
	for _, kind := range stringListArg(args, "include") {
		include = append(include, graph.ContextKind(kind))
	}

	q := graph.ContextQuery{
		Seeds:      seeds,
		Repository: repository,
		Include:    include,
		Limit:      intArg(args, "limit", 0),
	}
	return t.graph.GetContext(ctx, q)
}

// GetSchema returns the JSON schema for the tool.
func (t *GetContextTool) GetSchema() map[string]interface{} {
	return map[string]interface{}{
		"description": "Assemble working context around seed entities: imports, callers, callees, siblings, documentation",
		"inputSchema": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"seeds": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Entity paths or qualified names to gather context around",
				},
				"repository": map[string]interface{}{
					"type":        "string",
					"description": "Indexed repository to query",
				},
				"workspace_path": map[string]interface{}{
					"type":        "string",
					"description": "Caller working directory, resolved to an indexed repository when no repository is given",
				},
				"include": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Context facets to include: imports, callers, callees, siblings, documentation (default all)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum context items per seed and facet",
				},
			},
			"required": []string{"seeds"},
		},
	}
}
