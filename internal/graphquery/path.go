package graphquery

import (
	"context"
	"fmt"
	"time"

	"github.com/codegraphhq/codegraph/internal/graph"
	"github.com/codegraphhq/codegraph/internal/models"
)

// GetPath finds the shortest route between two entities, matched by
// file path or entity name within the repository.
func (s *Service) GetPath(ctx context.Context, req PathRequest) (*PathResult, error) {
	started := time.Now()
	if err := req.normalise(); err != nil {
		s.record(models.QueryGetPath, req.Repository, started, req.MaxHops, false, 0, err)
		return nil, err
	}

	key := cacheKey("getPath", req)
	if cached, ok := s.cache.get(key); ok {
		result := clonePathResult(cached.(*PathResult))
		stampMetadata(result.Metadata, true, started, req.Repository)
		s.record(models.QueryGetPath, req.Repository, started, req.MaxHops, true, pathNodeCount(result), nil)
		return result, nil
	}

	cypher, params, err := buildPathQuery(req)
	if err != nil {
		s.record(models.QueryGetPath, req.Repository, started, req.MaxHops, false, 0, err)
		return nil, err
	}

	records, err := s.run(ctx, cypher, params)
	if err != nil {
		err = s.classify(err, started)
		s.record(models.QueryGetPath, req.Repository, started, req.MaxHops, false, 0, err)
		return nil, err
	}

	result := &PathResult{
		Metadata: map[string]any{
			"from":       req.FromEntity,
			"to":         req.ToEntity,
			"repository": req.Repository,
			"max_hops":   req.MaxHops,
		},
	}
	if len(records) > 0 {
		result.PathExists = true
		result.Path = decodePath(records[0])
	}

	s.cache.put(key, req.Repository, result)
	out := clonePathResult(result)
	stampMetadata(out.Metadata, false, started, req.Repository)
	s.record(models.QueryGetPath, req.Repository, started, req.MaxHops, false, pathNodeCount(out), nil)
	return out, nil
}

// run applies the per-query timeout around one backend round trip.
func (s *Service) run(ctx context.Context, cypher string, params map[string]any) ([]graph.Record, error) {
	queryCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.adapter.RunQuery(queryCtx, cypher, params)
}

// buildPathQuery projects path contents as plain lists so both dialects
// decode identically; ORDER BY hops LIMIT 1 selects a shortest route
// portably (shortestPath placement rules differ between backends).
func buildPathQuery(req PathRequest) (string, map[string]any, error) {
	types := req.RelationshipTypes
	if len(types) == 0 {
		types = models.AllRelationshipTypes
	}
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	pattern, err := graph.RelationshipPattern(names)
	if err != nil {
		return "", nil, err
	}

	b := graph.NewCypherBuilder()
	fromParam := b.AddParam(req.FromEntity)
	toParam := b.AddParam(req.ToEntity)
	repoParam := b.AddParam(req.Repository)

	// Module nodes carry no repository property; they may appear inside
	// a path, and as endpoints they match by name alone.
	cypher := fmt.Sprintf(
		"MATCH (a) WHERE (a.path = %s OR a.name = %s) AND (a.repository = %s OR a.repository IS NULL) "+
			"MATCH (b) WHERE (b.path = %s OR b.name = %s) AND (b.repository = %s OR b.repository IS NULL) "+
			"MATCH p = (a)-[:%s*1..%d]->(b) "+
			"RETURN [n IN nodes(p) | properties(n)] AS nodes, [r IN relationships(p) | type(r)] AS relTypes, length(p) AS hops "+
			"ORDER BY hops LIMIT 1",
		fromParam, fromParam, repoParam,
		toParam, toParam, repoParam,
		pattern, req.MaxHops)
	return cypher, b.Params(), nil
}

func decodePath(rec graph.Record) *Path {
	path := &Path{}
	if rawNodes, ok := rec["nodes"].([]any); ok {
		for _, raw := range rawNodes {
			if props, ok := raw.(map[string]any); ok {
				path.Nodes = append(path.Nodes, props)
			}
		}
	}
	if rawTypes, ok := rec["relTypes"].([]any); ok {
		for _, raw := range rawTypes {
			if s, ok := raw.(string); ok {
				path.RelationshipTypes = append(path.RelationshipTypes, s)
			}
		}
	}
	if hops, ok := rec["hops"].(int64); ok {
		path.Hops = int(hops)
	}
	return path
}

func pathNodeCount(r *PathResult) int {
	if r.Path == nil {
		return 0
	}
	return len(r.Path.Nodes)
}

// clonePathResult deep-copies a cached path so callers cannot reach the
// cached node maps through the returned value.
func clonePathResult(r *PathResult) *PathResult {
	out := *r
	out.Metadata = cloneMetadata(r.Metadata)
	if r.Path != nil {
		path := *r.Path
		path.Nodes = make([]map[string]any, len(r.Path.Nodes))
		for i, node := range r.Path.Nodes {
			path.Nodes[i] = cloneProperties(node)
		}
		path.RelationshipTypes = append([]string(nil), r.Path.RelationshipTypes...)
		out.Path = &path
	}
	return &out
}
