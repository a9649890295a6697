package graph

import (
	"github.com/codegraphhq/codegraph/internal/errors"
	"github.com/codegraphhq/codegraph/internal/retry"
)

// New is the only construction site for graph adapters. The returned
// adapter applies the configured retry policy to retryable failures.
func New(cfg Config) (Adapter, error) {
	cfg = cfg.withDefaults()

	var adapter Adapter
	switch cfg.Backend {
	case BackendNeo4j:
		adapter = newNeo4jAdapter(cfg)
	case BackendFalkorDB:
		adapter = newFalkorAdapter(cfg)
	default:
		return nil, errors.Validationf("unsupported graph backend %q (expected neo4j or falkordb)", cfg.Backend)
	}

	policy := cfg.Retry
	if policy == nil {
		policy = retry.DefaultConfig()
	}
	return newRetryingAdapter(adapter, policy), nil
}
