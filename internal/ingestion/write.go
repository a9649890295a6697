package ingestion

import (
	"context"
	"fmt"
	"strconv"

	"github.com/codegraphhq/codegraph/internal/errors"
	"github.com/codegraphhq/codegraph/internal/graph"
	"github.com/codegraphhq/codegraph/internal/models"
)

// write upserts every node, resolves backend ids, and merges the edges.
// Node writes go first so every edge endpoint exists; identity keys make
// the whole sequence idempotent.
func (b *GraphBuilder) write(ctx context.Context, repository string, data *graphData) (nodes, rels int, err error) {
	for _, group := range groupByLabel(data.nodes) {
		for start := 0; start < len(group); start += b.cfg.BatchSize {
			end := min(start+b.cfg.BatchSize, len(group))
			n, err := b.adapter.UpsertNodes(ctx, group[start:end])
			nodes += n
			if err != nil {
				return nodes, rels, err
			}
		}
	}

	ids, err := b.fetchIDs(ctx, repository)
	if err != nil {
		return nodes, rels, err
	}

	resolved := resolveEdges(data.edges, ids)
	for start := 0; start < len(resolved); start += b.cfg.BatchSize {
		end := min(start+b.cfg.BatchSize, len(resolved))
		n, err := b.adapter.CreateRelationships(ctx, resolved[start:end])
		rels += n
		if err != nil {
			return nodes, rels, err
		}
	}
	return nodes, rels, nil
}

// groupByLabel buckets nodes by primary label in first-seen order, so
// each UNWIND batch stays label-coherent.
func groupByLabel(all []*models.GraphNode) [][]*models.GraphNode {
	byLabel := map[string][]*models.GraphNode{}
	var order []string
	for _, node := range all {
		label := node.PrimaryLabel()
		if _, seen := byLabel[label]; !seen {
			order = append(order, label)
		}
		byLabel[label] = append(byLabel[label], node)
	}
	groups := make([][]*models.GraphNode, 0, len(order))
	for _, label := range order {
		groups = append(groups, byLabel[label])
	}
	return groups
}

// fetchIDs reads back the backend ids for every node the repository can
// reference. Module ids are global because Module nodes are shared
// across repositories.
func (b *GraphBuilder) fetchIDs(ctx context.Context, repository string) (map[nodeKey]string, error) {
	idFn := "id"
	if b.adapter.Backend() == graph.BackendNeo4j {
		idFn = "elementId"
	}

	ids := map[nodeKey]string{}
	queries := []struct {
		label  string
		scoped bool // filtered to the repository property
		fields string
		key    func(rec graph.Record) nodeKey
	}{
		{
			label:  models.LabelRepository,
			fields: "n.name AS name",
			key: func(rec graph.Record) nodeKey {
				return nodeKey{label: models.LabelRepository, name: recString(rec, "name")}
			},
		},
		{
			label: models.LabelFile, scoped: true,
			fields: "n.path AS path",
			key: func(rec graph.Record) nodeKey {
				return nodeKey{label: models.LabelFile, filePath: recString(rec, "path")}
			},
		},
		{
			label: models.LabelFunction, scoped: true,
			fields: "n.filePath AS path, n.name AS name",
			key: func(rec graph.Record) nodeKey {
				return nodeKey{label: models.LabelFunction, filePath: recString(rec, "path"), name: recString(rec, "name")}
			},
		},
		{
			label: models.LabelClass, scoped: true,
			fields: "n.filePath AS path, n.name AS name",
			key: func(rec graph.Record) nodeKey {
				return nodeKey{label: models.LabelClass, filePath: recString(rec, "path"), name: recString(rec, "name")}
			},
		},
		{
			label:  models.LabelModule,
			fields: "n.name AS name",
			key: func(rec graph.Record) nodeKey {
				return nodeKey{label: models.LabelModule, name: recString(rec, "name")}
			},
		},
		{
			label: models.LabelChunk, scoped: true,
			fields: "n.chromaId AS chromaId",
			key: func(rec graph.Record) nodeKey {
				return nodeKey{label: models.LabelChunk, name: recString(rec, "chromaId")}
			},
		},
	}

	for _, q := range queries {
		cb := graph.NewCypherBuilder()
		where := ""
		if q.scoped {
			where = fmt.Sprintf(" WHERE n.repository = %s", cb.AddParam(repository))
		}
		cypher := fmt.Sprintf("MATCH (n:%s)%s RETURN %s(n) AS id, %s", q.label, where, idFn, q.fields)
		records, err := b.adapter.RunQuery(ctx, cypher, cb.Params())
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			id := idString(rec["id"])
			if id == "" {
				continue
			}
			ids[q.key(rec)] = id
		}
	}
	return ids, nil
}

// resolveEdges swaps node keys for backend ids, dropping duplicates and
// any edge whose endpoint was not written. Output is grouped by type in
// the closed-set order so batches stay type-coherent.
func resolveEdges(edges []edgeSpec, ids map[nodeKey]string) []*models.GraphRelationship {
	byType := map[models.RelationshipType][]*models.GraphRelationship{}
	seen := map[string]bool{}
	for _, e := range edges {
		fromID, ok := ids[e.from]
		if !ok {
			continue
		}
		toID, ok := ids[e.to]
		if !ok {
			continue
		}
		dedupe := string(e.relType) + "|" + fromID + "|" + toID
		if seen[dedupe] {
			continue
		}
		seen[dedupe] = true
		byType[e.relType] = append(byType[e.relType], &models.GraphRelationship{
			Type:   e.relType,
			FromID: fromID,
			ToID:   toID,
		})
	}

	var out []*models.GraphRelationship
	for _, relType := range models.AllRelationshipTypes {
		out = append(out, byType[relType]...)
	}
	return out
}

// Drop removes a repository's graph: every node carrying its repository
// property, the Repository node itself, and any Module left without
// importers.
func (b *GraphBuilder) Drop(ctx context.Context, repository string) error {
	if repository == "" {
		return errors.Validation("repository name is required")
	}
	b.log.Info("dropping repository graph", "repository", repository)

	statements := []string{
		"MATCH (n) WHERE n.repository = %s DETACH DELETE n",
		"MATCH (r:Repository {name: %s}) DETACH DELETE r",
	}
	for _, stmt := range statements {
		cb := graph.NewCypherBuilder()
		cypher := fmt.Sprintf(stmt, cb.AddParam(repository))
		if _, err := b.adapter.RunQuery(ctx, cypher, cb.Params()); err != nil {
			return err
		}
	}

	_, err := b.adapter.RunQuery(ctx, "MATCH (m:Module) WHERE NOT (m)<-[:IMPORTS]-() DELETE m", nil)
	return err
}

func recString(rec graph.Record, field string) string {
	if s, ok := rec[field].(string); ok {
		return s
	}
	return ""
}

// idString accepts both id dialects: neo4j element ids are strings,
// falkordb internal ids are integers.
func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case int64:
		return strconv.FormatInt(id, 10)
	case int:
		return strconv.Itoa(id)
	case float64:
		return strconv.FormatInt(int64(id), 10)
	}
	return ""
}
