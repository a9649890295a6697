package migration

import (
	"context"
	"fmt"
	"strings"

	"github.com/codegraphhq/codegraph/internal/graph"
	"github.com/codegraphhq/codegraph/internal/models"
)

// importNodes recreates exported nodes in the target. Each created node
// carries its source id under SourceIDProperty; the returned remap keys
// source ids to the target's native ids for edge creation. Items that fail
// validation are skipped and reported, everything else aborts.
func (m *Migrator) importNodes(ctx context.Context, nodes []ExportedNode) (map[string]any, []ItemError, error) {
	idf := idFunc(m.target.Backend())
	remap := make(map[string]any, len(nodes))
	var skipped []ItemError

	for _, node := range nodes {
		if err := ctx.Err(); err != nil {
			return remap, skipped, err
		}
		if err := graph.ValidateLabels(node.Labels); err != nil {
			skipped = append(skipped, ItemError{Kind: "node", SourceID: node.SourceID, Reason: err.Error()})
			continue
		}

		props := make(map[string]any, len(node.Properties)+1)
		for k, v := range node.Properties {
			props[k] = v
		}
		props[SourceIDProperty] = node.SourceID

		cypher := fmt.Sprintf("CREATE (n:%s) SET n = $props RETURN %s(n) AS id",
			strings.Join(node.Labels, ":"), idf)
		records, err := m.target.RunQuery(ctx, cypher, map[string]any{"props": props})
		if err != nil {
			if skippable(err) {
				skipped = append(skipped, ItemError{Kind: "node", SourceID: node.SourceID, Reason: err.Error()})
				continue
			}
			return remap, skipped, err
		}
		if len(records) == 0 {
			skipped = append(skipped, ItemError{Kind: "node", SourceID: node.SourceID, Reason: "create returned no id"})
			continue
		}
		remap[node.SourceID] = records[0]["id"]
	}
	return remap, skipped, nil
}

// importRelationships recreates exported edges between remapped endpoints.
// Edges whose endpoints were skipped (or whose type fails validation) are
// reported, not fatal.
func (m *Migrator) importRelationships(ctx context.Context, rels []ExportedRelationship, remap map[string]any) (int, []ItemError, error) {
	idf := idFunc(m.target.Backend())
	imported := 0
	var skipped []ItemError

	for _, rel := range rels {
		if err := ctx.Err(); err != nil {
			return imported, skipped, err
		}
		if err := graph.ValidateRelationshipType(models.RelationshipType(rel.Type)); err != nil {
			skipped = append(skipped, ItemError{Kind: "relationship", SourceID: rel.SourceID, Reason: err.Error()})
			continue
		}
		start, ok := remap[rel.StartSourceID]
		if !ok {
			skipped = append(skipped, ItemError{
				Kind:     "relationship",
				SourceID: rel.SourceID,
				Reason:   fmt.Sprintf("start node %s was not imported", rel.StartSourceID),
			})
			continue
		}
		end, ok := remap[rel.EndSourceID]
		if !ok {
			skipped = append(skipped, ItemError{
				Kind:     "relationship",
				SourceID: rel.SourceID,
				Reason:   fmt.Sprintf("end node %s was not imported", rel.EndSourceID),
			})
			continue
		}

		props := rel.Properties
		if props == nil {
			props = map[string]any{}
		}
		cypher := fmt.Sprintf(
			"MATCH (a) WHERE %s(a) = $start MATCH (b) WHERE %s(b) = $end CREATE (a)-[r:%s]->(b) SET r = $props RETURN %s(r) AS id",
			idf, idf, rel.Type, idf)
		records, err := m.target.RunQuery(ctx, cypher, map[string]any{"start": start, "end": end, "props": props})
		if err != nil {
			if skippable(err) {
				skipped = append(skipped, ItemError{Kind: "relationship", SourceID: rel.SourceID, Reason: err.Error()})
				continue
			}
			return imported, skipped, err
		}
		if len(records) == 0 {
			skipped = append(skipped, ItemError{Kind: "relationship", SourceID: rel.SourceID, Reason: "endpoints not found in target"})
			continue
		}
		imported++
	}
	return imported, skipped, nil
}
