package tools

import (
	"context"

	"github.com/codegraphhq/codegraph/internal/models"
)

// RepositoryLister is the slice of the metadata store this tool reads.
type RepositoryLister interface {
	ListRepositories(ctx context.Context) ([]*models.RepositoryInfo, error)
}

// ListRepositoriesTool implements the list_repositories tool.
type ListRepositoriesTool struct {
	store RepositoryLister
}

// NewListRepositoriesTool creates a new ListRepositoriesTool.
func NewListRepositoriesTool(store RepositoryLister) *ListRepositoriesTool {
	return &ListRepositoriesTool{store: store}
}

// Execute lists the indexed repositories, optionally filtered by status.
func (t *ListRepositoriesTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	repos, err := t.store.ListRepositories(ctx)
	if err != nil {
		return nil, err
	}

	if status := stringArg(args, "status"); status != "" {
		filtered := make([]*models.RepositoryInfo, 0, len(repos))
		for _, repo := range repos {
			if string(repo.Status) == status {
				filtered = append(filtered, repo)
			}
		}
		repos = filtered
	}

	return map[string]interface{}{
		"count":        len(repos),
		"repositories": repos,
	}, nil
}

// GetSchema returns the JSON schema for the tool.
func (t *ListRepositoriesTool) GetSchema() map[string]interface{} {
	return map[string]interface{}{
		"description": "List the repositories available for search and graph queries",
		"inputSchema": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"status": map[string]interface{}{
					"type":        "string",
					"description": "Only return repositories in this status, e.g. ready",
				},
			},
		},
	}
}
