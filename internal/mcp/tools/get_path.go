package tools

import (
	"context"
	"fmt"

	"github.com/codegraphhq/codegraph/internal/graphquery"
)

// GetPathTool implements the get_path tool: the shortest relationship
// chain connecting two entities.
type GetPathTool struct {
	service  GraphQuerier
	resolver WorkspaceResolver
}

// NewGetPathTool creates a new GetPathTool.
func NewGetPathTool(service GraphQuerier, resolver WorkspaceResolver) *GetPathTool {
	return &GetPathTool{service: service, resolver: resolver}
}

// Execute runs the path query.
func (t *GetPathTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	from := stringArg(args, "from_entity")
	to := stringArg(args, "to_entity")
	if from == "" || to == "" {
		return nil, fmt.Errorf("from_entity and to_entity are required")
	}

	repository, err := repositoryArg(ctx, args, t.resolver)
	if err != nil {
		return nil, err
	}

	req := graphquery.PathRequest{
		FromEntity:        from,
		ToEntity:          to,
		Repository:        repository,
		MaxHops:           intArg(args, "max_hops", 0),
		RelationshipTypes: relationshipTypesArg(args),
	}
	return t.service.GetPath(ctx, req)
}

// GetSchema returns the JSON schema for the tool.
func (t *GetPathTool) GetSchema() map[string]interface{} {
	return map[string]interface{}{
		"description": "Find the shortest dependency path between two code entities",
		"inputSchema": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"from_entity": map[string]interface{}{
					"type":        "string",
					"description": "Path or qualified name of the starting entity",
				},
				"to_entity": map[string]interface{}{
					"type":        "string",
					"description": "Path or qualified name of the target entity",
				},
				"repository": map[string]interface{}{
					"type":        "string",
					"description": "Indexed repository to query",
				},
				"workspace_path": map[string]interface{}{
					"type":        "string",
					"description": "Caller working directory, resolved to an indexed repository when no repository is given",
				},
				"max_hops": map[string]interface{}{
					"type":        "integer",
					"description": "Longest path to consider, at most 10 (default 5)",
				},
				"relationship_types": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Restrict the path to these relationship types",
				},
			},
			"required": []string{"from_entity", "to_entity"},
		},
	}
}
