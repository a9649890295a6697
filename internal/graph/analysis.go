package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/codegraphhq/codegraph/internal/errors"
)

// queryRunner abstracts the adapter's read path so dependency and
// context analysis share one implementation across dialects.
type queryRunner func(ctx context.Context, cypher string, params map[string]any) ([]Record, error)

var allContextKinds = []ContextKind{
	ContextImports,
	ContextCallers,
	ContextCallees,
	ContextSiblings,
	ContextDocumentation,
}

const (
	defaultDependencyDepth = 3
	defaultContextLimit    = 20
	maxContextLimit        = 100
)

func analyzeDependencies(ctx context.Context, d queryDialect, run queryRunner, q DependencyQuery) (*DependencyResult, error) {
	started := time.Now()
	direction := q.Direction
	if direction == "" {
		direction = DirectionDependsOn
	}
	var directions []Direction
	switch direction {
	case DirectionDependsOn, DirectionDependedOnBy:
		directions = []Direction{direction}
	case DirectionBoth:
		directions = []Direction{DirectionDependsOn, DirectionDependedOnBy}
	default:
		return nil, errors.Validationf("unknown dependency direction %q", q.Direction)
	}

	maxDepth := q.MaxDepth
	if maxDepth <= 0 {
		maxDepth = defaultDependencyDepth
	}
	maxDepth = clampDepth(maxDepth)

	if err := ensureFileExists(ctx, d, run, q.Target, q.Repository); err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	collect := func(minHops, maxHops int) ([]DependencyEntry, error) {
		var entries []DependencyEntry
		for _, dir := range directions {
			cypher, params, err := d.buildDependencies(q, dir, minHops, maxHops)
			if err != nil {
				return nil, err
			}
			records, err := run(ctx, cypher, params)
			if err != nil {
				return nil, err
			}
			for _, rec := range records {
				node := recordToTraversalNode(rec)
				if node.ID == "" || seen[node.ID] {
					continue
				}
				seen[node.ID] = true
				entries = append(entries, DependencyEntry{
					ID:         node.ID,
					Labels:     node.Labels,
					Properties: node.Properties,
				})
			}
		}
		return entries, nil
	}

	direct, err := collect(1, 1)
	if err != nil {
		return nil, err
	}
	var transitive []DependencyEntry
	if q.Transitive && maxDepth >= 2 {
		transitive, err = collect(2, maxDepth)
		if err != nil {
			return nil, err
		}
	}

	return &DependencyResult{
		Direct:      direct,
		Transitive:  transitive,
		ImpactScore: impactScore(len(direct), len(transitive)),
		Metadata: map[string]any{
			"target":                q.Target,
			"repository":            q.Repository,
			"direction":             string(direction),
			"transitive":            q.Transitive,
			"max_depth":             maxDepth,
			"query_time_ms":         time.Since(started).Milliseconds(),
			"from_cache":            false,
			"repositories_searched": repositoriesSearched(q.Repository),
		},
	}, nil
}

// repositoriesSearched renders the metadata contract's repository list;
// an unscoped query searched every repository, reported as an empty
// list rather than an absent key.
func repositoriesSearched(repository string) []string {
	if repository == "" {
		return []string{}
	}
	return []string{repository}
}

// ensureFileExists turns an absent target into EntityNotFound before
// any dependency pattern runs.
func ensureFileExists(ctx context.Context, d queryDialect, run queryRunner, path, repository string) error {
	if path == "" {
		return errors.Validation("dependency analysis requires a target path")
	}
	b := NewCypherBuilder()
	match := buildFileMatch(b, path, repository)
	cypher := fmt.Sprintf("%s RETURN %s(f) AS id LIMIT 1", match, d.idFunc)
	records, err := run(ctx, cypher, b.Params())
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return errors.EntityNotFound("file", path)
	}
	return nil
}

func getContext(ctx context.Context, d queryDialect, run queryRunner, q ContextQuery) (*ContextResult, error) {
	started := time.Now()
	if len(q.Seeds) == 0 {
		return nil, errors.Validation("context query requires at least one seed")
	}
	include := q.Include
	if len(include) == 0 {
		include = allContextKinds
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultContextLimit
	}
	if limit > maxContextLimit {
		limit = maxContextLimit
	}

	result := &ContextResult{Items: []ContextItem{}}
	for _, seed := range q.Seeds {
		if seed == "" {
			return nil, errors.Validation("context seed must not be empty")
		}
		for _, kind := range include {
			cypher, params, err := d.buildContext(kind, seed, q.Repository, limit)
			if err != nil {
				return nil, err
			}
			records, err := run(ctx, cypher, params)
			if err != nil {
				return nil, err
			}
			for _, rec := range records {
				result.Items = append(result.Items, ContextItem{
					Seed: seed,
					Kind: kind,
					Node: recordToTraversalNode(rec),
				})
			}
		}
	}

	kinds := make([]string, len(include))
	for i, k := range include {
		kinds[i] = string(k)
	}
	result.Metadata = map[string]any{
		"seeds":                 len(q.Seeds),
		"kinds":                 kinds,
		"limit":                 limit,
		"query_time_ms":         time.Since(started).Milliseconds(),
		"from_cache":            false,
		"repositories_searched": repositoriesSearched(q.Repository),
	}
	return result, nil
}
