package graph

import (
	"fmt"
	"strings"

	"github.com/codegraphhq/codegraph/internal/errors"
	"github.com/codegraphhq/codegraph/internal/models"
)

// Both dialects speak Cypher; only the node id function differs. The
// builders here produce query text plus bound parameters, with every
// dynamic label, type or depth validated or clamped before interpolation.

type queryDialect struct {
	idFunc string // "elementId" for neo4j, "id" for falkordb
}

// relPatternFor renders the relationship alternation for a traversal,
// or "" for an untyped pattern.
func relPatternFor(types []models.RelationshipType) (string, error) {
	if len(types) == 0 {
		return "", nil
	}
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	pattern, err := RelationshipPattern(names)
	if err != nil {
		return "", err
	}
	return ":" + pattern, nil
}

// buildStartMatch renders the MATCH clause resolving the traversal start.
func (d queryDialect) buildStartMatch(q TraversalQuery, b *CypherBuilder) (string, error) {
	if q.StartID != "" {
		return fmt.Sprintf("MATCH (start) WHERE %s(start) = %s", d.idFunc, b.AddParam(startIDValue(d, q.StartID))), nil
	}
	if q.StartLabel == "" {
		return "", errors.Validation("traversal requires a start node id or label")
	}
	if !IsValidIdentifier(q.StartLabel) {
		return "", errors.Validationf("invalid start label %q", q.StartLabel)
	}
	if len(q.StartProps) == 0 {
		return "", errors.Validation("traversal start match requires at least one property")
	}
	if err := ValidatePropertyKeys(q.StartProps); err != nil {
		return "", err
	}
	clauses := make([]string, 0, len(q.StartProps))
	for _, key := range sortedKeys(q.StartProps) {
		clauses = append(clauses, fmt.Sprintf("%s: %s", key, b.AddParam(q.StartProps[key])))
	}
	return fmt.Sprintf("MATCH (start:%s {%s})", q.StartLabel, strings.Join(clauses, ", ")), nil
}

// buildResolveStart renders the start-node lookup query.
func (d queryDialect) buildResolveStart(q TraversalQuery) (string, map[string]any, error) {
	b := NewCypherBuilder()
	match, err := d.buildStartMatch(q, b)
	if err != nil {
		return "", nil, err
	}
	cypher := fmt.Sprintf("%s RETURN %s(start) AS id, labels(start) AS labels, properties(start) AS props LIMIT 1",
		match, d.idFunc)
	return cypher, b.Params(), nil
}

// buildTraversal renders the variable-length walk. Depth is clamped
// before interpolation into the pattern bounds.
func (d queryDialect) buildTraversal(q TraversalQuery) (string, map[string]any, error) {
	if err := validateRelationshipTypes(q.Relationships); err != nil {
		return "", nil, err
	}
	relPattern, err := relPatternFor(q.Relationships)
	if err != nil {
		return "", nil, err
	}
	depth := clampDepth(q.Depth)

	b := NewCypherBuilder()
	match, err := d.buildStartMatch(q, b)
	if err != nil {
		return "", nil, err
	}

	repoParam := b.AddParam(q.Repository)
	cypher := fmt.Sprintf(
		"%s MATCH p = (start)-[%s*1..%d]->(n) WHERE (%s = '' OR n.repository = %s) "+
			"RETURN %s(n) AS id, labels(n) AS labels, properties(n) AS props, min(length(p)) AS depth "+
			"ORDER BY depth",
		match, relPattern, depth, repoParam, repoParam, d.idFunc)
	return cypher, b.Params(), nil
}

// buildFileMatch renders the File lookup for dependency analysis.
func buildFileMatch(b *CypherBuilder, path, repository string) string {
	pathParam := b.AddParam(path)
	if repository == "" {
		return fmt.Sprintf("MATCH (f:%s {path: %s})", models.LabelFile, pathParam)
	}
	repoParam := b.AddParam(repository)
	return fmt.Sprintf("MATCH (f:%s {path: %s, repository: %s})", models.LabelFile, pathParam, repoParam)
}

// buildDependencies renders dependency edges at the given hop range.
// Direction decides which end of the pattern the target file occupies.
func (d queryDialect) buildDependencies(q DependencyQuery, direction Direction, minHops, maxHops int) (string, map[string]any, error) {
	if q.Target == "" {
		return "", nil, errors.Validation("dependency analysis requires a target path")
	}
	relTypes := q.Relationships
	if len(relTypes) == 0 {
		relTypes = dependencyRelTypes
	}
	relPattern, err := relPatternFor(relTypes)
	if err != nil {
		return "", nil, err
	}

	b := NewCypherBuilder()
	match := buildFileMatch(b, q.Target, q.Repository)

	var pattern string
	if direction == DirectionDependedOnBy {
		pattern = fmt.Sprintf("(n)-[%s*%d..%d]->(f)", relPattern, minHops, maxHops)
	} else {
		pattern = fmt.Sprintf("(f)-[%s*%d..%d]->(n)", relPattern, minHops, maxHops)
	}

	cypher := fmt.Sprintf(
		"%s MATCH %s RETURN DISTINCT %s(n) AS id, labels(n) AS labels, properties(n) AS props",
		match, pattern, d.idFunc)
	return cypher, b.Params(), nil
}

// buildContext renders one context facet for one seed.
func (d queryDialect) buildContext(kind ContextKind, seed, repository string, limit int) (string, map[string]any, error) {
	b := NewCypherBuilder()
	seedParam := b.AddParam(seed)
	repoParam := b.AddParam(repository)
	repoFilter := func(nodeVar string) string {
		return fmt.Sprintf("(%s = '' OR %s.repository = %s)", repoParam, nodeVar, repoParam)
	}
	ret := fmt.Sprintf("RETURN DISTINCT %s(x) AS id, labels(x) AS labels, properties(x) AS props LIMIT %d", d.idFunc, limit)

	var cypher string
	switch kind {
	case ContextImports:
		cypher = fmt.Sprintf("MATCH (f:%s {path: %s}) WHERE %s MATCH (f)-[:%s]->(x:%s) %s",
			models.LabelFile, seedParam, repoFilter("f"), models.RelImports, models.LabelModule, ret)
	case ContextCallers:
		cypher = fmt.Sprintf("MATCH (x:%s)-[:%s]->(fn:%s {name: %s}) WHERE %s %s",
			models.LabelFunction, models.RelCalls, models.LabelFunction, seedParam, repoFilter("fn"), ret)
	case ContextCallees:
		cypher = fmt.Sprintf("MATCH (fn:%s {name: %s})-[:%s]->(x:%s) WHERE %s %s",
			models.LabelFunction, seedParam, models.RelCalls, models.LabelFunction, repoFilter("fn"), ret)
	case ContextSiblings:
		cypher = fmt.Sprintf("MATCH (f:%s)-[:%s]->(e {name: %s}) WHERE %s MATCH (f)-[:%s]->(x) WHERE x.name <> %s %s",
			models.LabelFile, models.RelDefines, seedParam, repoFilter("f"), models.RelDefines, seedParam, ret)
	case ContextDocumentation:
		cypher = fmt.Sprintf("MATCH (x:%s)-[:%s]->(e {name: %s}) WHERE %s %s",
			models.LabelConcept, models.RelReferences, seedParam, repoFilter("e"), ret)
	default:
		return "", nil, errors.Validationf("unknown context kind %q", kind)
	}
	return cypher, b.Params(), nil
}

// recordToTraversalNode normalises a projected row. The id column may be
// a string (neo4j element ids) or an integer (falkordb internal ids).
func recordToTraversalNode(rec Record) TraversalNode {
	node := TraversalNode{
		ID:         idToString(rec["id"]),
		Properties: map[string]any{},
	}
	if labels, ok := rec["labels"].([]any); ok {
		for _, l := range labels {
			if s, ok := l.(string); ok {
				node.Labels = append(node.Labels, s)
			}
		}
	} else if labels, ok := rec["labels"].([]string); ok {
		node.Labels = labels
	}
	if props, ok := rec["props"].(map[string]any); ok {
		node.Properties = props
	}
	if depth, ok := rec["depth"].(int64); ok {
		node.Depth = int(depth)
	}
	return node
}

func idToString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case int64:
		return fmt.Sprintf("%d", id)
	case int:
		return fmt.Sprintf("%d", id)
	case float64:
		return fmt.Sprintf("%d", int64(id))
	default:
		return ""
	}
}

// startIDValue converts a caller-facing id string back to the backend's
// native id type.
func startIDValue(d queryDialect, id string) any {
	if d.idFunc == "id" {
		var n int64
		if _, err := fmt.Sscanf(id, "%d", &n); err == nil {
			return n
		}
	}
	return id
}
