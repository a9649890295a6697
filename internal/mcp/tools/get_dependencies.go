package tools

import (
	"context"
	"fmt"

	"github.com/codegraphhq/codegraph/internal/graphquery"
)

// GetDependenciesTool implements the get_dependencies tool: what an
// entity imports, calls or contains.
type GetDependenciesTool struct {
	service  GraphQuerier
	resolver WorkspaceResolver
}

// NewGetDependenciesTool creates a new GetDependenciesTool.
func NewGetDependenciesTool(service GraphQuerier, resolver WorkspaceResolver) *GetDependenciesTool {
	return &GetDependenciesTool{service: service, resolver: resolver}
}

// Execute runs the dependency query.
func (t *GetDependenciesTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	req, err := dependenciesRequest(ctx, args, t.resolver)
	if err != nil {
		return nil, err
	}
	return t.service.GetDependencies(ctx, req)
}

// GetSchema returns the JSON schema for the tool.
func (t *GetDependenciesTool) GetSchema() map[string]interface{} {
	return dependenciesSchema("List what a code entity depends on, direct and optionally transitive")
}

// dependenciesRequest builds the shared request shape of
// get_dependencies and get_dependents. Depth 0 lets the query service
// apply its default.
func dependenciesRequest(ctx context.Context, args map[string]interface{}, resolver WorkspaceResolver) (graphquery.DependenciesRequest, error) {
	entityPath := stringArg(args, "entity_path")
	if entityPath == "" {
		return graphquery.DependenciesRequest{}, fmt.Errorf("entity_path is required")
	}

	repository, err := repositoryArg(ctx, args, resolver)
	if err != nil {
		return graphquery.DependenciesRequest{}, err
	}

	return graphquery.DependenciesRequest{
		EntityType:        graphquery.EntityType(stringArg(args, "entity_type")),
		EntityPath:        entityPath,
		Repository:        repository,
		Depth:             intArg(args, "depth", 0),
		IncludeTransitive: boolArg(args, "include_transitive"),
		RelationshipTypes: relationshipTypesArg(args),
	}, nil
}

func dependenciesSchema(description string) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"inputSchema": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"entity_path": map[string]interface{}{
					"type":        "string",
					"description": "Path or qualified name of the entity to analyze",
				},
				"entity_type": map[string]interface{}{
					"type":        "string",
					"description": "One of file, function, class, module (default file)",
				},
				"repository": map[string]interface{}{
					"type":        "string",
					"description": "Indexed repository to query",
				},
				"workspace_path": map[string]interface{}{
					"type":        "string",
					"description": "Caller working directory, resolved to an indexed repository when no repository is given",
				},
				"depth": map[string]interface{}{
					"type":        "integer",
					"description": "Traversal depth between 1 and 5 (default 3)",
				},
				"include_transitive": map[string]interface{}{
					"type":        "boolean",
					"description": "Include entities reachable beyond one hop",
				},
				"relationship_types": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Restrict traversal to these relationship types, e.g. IMPORTS, CALLS",
				},
			},
			"required": []string{"entity_path"},
		},
	}
}
