package tools

import (
	"context"
	"fmt"

	"github.com/codegraphhq/codegraph/internal/graphquery"
)

// GetArchitectureTool implements the get_architecture tool: a rolled-up
// module tree with inter-module dependency edges.
type GetArchitectureTool struct {
	service  GraphQuerier
	resolver WorkspaceResolver
}

// NewGetArchitectureTool creates a new GetArchitectureTool.
func NewGetArchitectureTool(service GraphQuerier, resolver WorkspaceResolver) *GetArchitectureTool {
	return &GetArchitectureTool{service: service, resolver: resolver}
}

// Execute runs the architecture query.
func (t *GetArchitectureTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	repository, err := repositoryArg(ctx, args, t.resolver)
	if err != nil {
		return nil, err
	}
	if repository == "" {
		return nil, fmt.Errorf("repository is required (pass repository or workspace_path)")
	}

	req := graphquery.ArchitectureRequest{
		Repository:      repository,
		Scope:           stringArg(args, "scope"),
		DetailLevel:     graphquery.DetailLevel(stringArg(args, "detail_level")),
		IncludeExternal: boolArg(args, "include_external"),
	}
	return t.service.GetArchitecture(ctx, req)
}

// GetSchema returns the JSON schema for the tool.
func (t *GetArchitectureTool) GetSchema() map[string]interface{} {
	return map[string]interface{}{
		"description": "Summarise a repository's structure as a module tree with cross-module dependencies",
		"inputSchema": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"repository": map[string]interface{}{
					"type":        "string",
					"description": "Indexed repository to summarise",
				},
				"workspace_path": map[string]interface{}{
					"type":        "string",
					"description": "Caller working directory, resolved to an indexed repository when no repository is given",
				},
				"scope": map[string]interface{}{
					"type":        "string",
					"description": "Restrict the summary to a path prefix, e.g. src/services",
				},
				"detail_level": map[string]interface{}{
					"type":        "string",
					"description": "One of packages, modules, files, entities (default modules)",
				},
				"include_external": map[string]interface{}{
					"type":        "boolean",
					"description": "Include third-party modules in the tree",
				},
			},
		},
	}
}
