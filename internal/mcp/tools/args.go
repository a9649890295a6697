package tools

import (
	"context"

	"github.com/codegraphhq/codegraph/internal/models"
)

// Arguments arrive as decoded JSON, so numbers come in as float64 and
// lists as []interface{}. The helpers below coerce the shapes tools
// accept; anything unparseable falls back to the zero value or the
// caller's default rather than erroring.

func stringArg(args map[string]interface{}, key string) string {
	s, _ := args[key].(string)
	return s
}

func boolArg(args map[string]interface{}, key string) bool {
	b, _ := args[key].(bool)
	return b
}

func intArg(args map[string]interface{}, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return fallback
	}
}

func floatArg(args map[string]interface{}, key string, fallback float64) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return fallback
	}
}

func stringListArg(args map[string]interface{}, key string) []string {
	switch v := args[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func relationshipTypesArg(args map[string]interface{}) []models.RelationshipType {
	names := stringListArg(args, "relationship_types")
	if len(names) == 0 {
		return nil
	}
	out := make([]models.RelationshipType, 0, len(names))
	for _, name := range names {
		out = append(out, models.RelationshipType(name))
	}
	return out
}

// repositoryArg resolves the repository a tool should query: an explicit
// "repository" argument wins, otherwise "workspace_path" is resolved
// through the workspace resolver when one is wired. An empty result is
// not an error here; tools that need a repository reject it themselves.
func repositoryArg(ctx context.Context, args map[string]interface{}, resolver WorkspaceResolver) (string, error) {
	if repo := stringArg(args, "repository"); repo != "" {
		return repo, nil
	}
	ws := stringArg(args, "workspace_path")
	if ws == "" || resolver == nil {
		return "", nil
	}
	return resolver.Resolve(ctx, ws)
}
