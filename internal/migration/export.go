package migration

import (
	"context"
	"fmt"
)

// exportNodes streams every source node in id order. Paging with SKIP over
// a fixed ORDER BY keeps the walk deterministic while the source is
// quiescent, which a transfer assumes anyway.
func (m *Migrator) exportNodes(ctx context.Context) ([]ExportedNode, error) {
	idf := idFunc(m.source.Backend())
	var out []ExportedNode
	for skip := 0; ; skip += m.opts.BatchSize {
		cypher := fmt.Sprintf(
			"MATCH (n) RETURN %s(n) AS id, labels(n) AS labels, properties(n) AS props ORDER BY id SKIP %d LIMIT %d",
			idf, skip, m.opts.BatchSize)
		records, err := m.source.RunQuery(ctx, cypher, nil)
		if err != nil {
			return nil, err
		}

		for _, rec := range records {
			out = append(out, ExportedNode{
				SourceID:   idString(rec["id"]),
				Labels:     stringList(rec["labels"]),
				Properties: propsMap(rec["props"]),
			})
		}
		m.logger.WithField("exported", len(out)).Debug("Node export page complete")

		if len(records) < m.opts.BatchSize {
			return out, nil
		}
	}
}

// exportRelationships streams every source edge in id order, endpoints
// recorded by source node id.
func (m *Migrator) exportRelationships(ctx context.Context) ([]ExportedRelationship, error) {
	idf := idFunc(m.source.Backend())
	var out []ExportedRelationship
	for skip := 0; ; skip += m.opts.BatchSize {
		cypher := fmt.Sprintf(
			"MATCH (a)-[r]->(b) RETURN %s(r) AS id, type(r) AS type, %s(a) AS start, %s(b) AS end, properties(r) AS props ORDER BY id SKIP %d LIMIT %d",
			idf, idf, idf, skip, m.opts.BatchSize)
		records, err := m.source.RunQuery(ctx, cypher, nil)
		if err != nil {
			return nil, err
		}

		for _, rec := range records {
			out = append(out, ExportedRelationship{
				SourceID:      idString(rec["id"]),
				Type:          asString(rec["type"]),
				StartSourceID: idString(rec["start"]),
				EndSourceID:   idString(rec["end"]),
				Properties:    propsMap(rec["props"]),
			})
		}
		m.logger.WithField("exported", len(out)).Debug("Relationship export page complete")

		if len(records) < m.opts.BatchSize {
			return out, nil
		}
	}
}

// idString renders a backend id (string element id or integer) as a map
// key. Unknown shapes render empty and fail downstream validation.
func idString(v any) string {
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

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func propsMap(v any) map[string]any {
	if props, ok := v.(map[string]any); ok {
		return props
	}
	return map[string]any{}
}
