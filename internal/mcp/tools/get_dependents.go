package tools

import "context"

// GetDependentsTool implements the get_dependents tool: the reverse
// dependency view, with blast-radius numbers attached.
type GetDependentsTool struct {
	service  GraphQuerier
	resolver WorkspaceResolver
}

// NewGetDependentsTool creates a new GetDependentsTool.
func NewGetDependentsTool(service GraphQuerier, resolver WorkspaceResolver) *GetDependentsTool {
	return &GetDependentsTool{service: service, resolver: resolver}
}

// Execute runs the impact query.
func (t *GetDependentsTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	req, err := dependenciesRequest(ctx, args, t.resolver)
	if err != nil {
		return nil, err
	}
	return t.service.GetDependents(ctx, req)
}

// GetSchema returns the JSON schema for the tool.
func (t *GetDependentsTool) GetSchema() map[string]interface{} {
	return dependenciesSchema("List what depends on a code entity, with impact counts for change planning")
}
