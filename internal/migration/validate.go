package migration

import (
	"context"
	"fmt"
	"math/rand"
	"reflect"
	"sort"

	"golang.org/x/sync/errgroup"
)

type graphCounts struct {
	nodes   int64
	rels    int64
	byLabel map[string]int64
	byType  map[string]int64
}

// validate compares the target against the source: aggregate counts,
// per-label and per-type counts, then a random spot-check of exported
// nodes located by source id in the target.
func (m *Migrator) validate(ctx context.Context, nodes []ExportedNode) ([]Discrepancy, error) {
	src, err := collectCounts(ctx, m.source)
	if err != nil {
		return nil, err
	}
	tgt, err := collectCounts(ctx, m.target)
	if err != nil {
		return nil, err
	}

	var discrepancies []Discrepancy
	if src.nodes != tgt.nodes {
		discrepancies = append(discrepancies, Discrepancy{
			Check:  "node_count",
			Detail: fmt.Sprintf("source has %d nodes, target has %d", src.nodes, tgt.nodes),
		})
	}
	if src.rels != tgt.rels {
		discrepancies = append(discrepancies, Discrepancy{
			Check:  "relationship_count",
			Detail: fmt.Sprintf("source has %d relationships, target has %d", src.rels, tgt.rels),
		})
	}
	discrepancies = append(discrepancies, compareCountMaps("label_count", src.byLabel, tgt.byLabel)...)
	discrepancies = append(discrepancies, compareCountMaps("type_count", src.byType, tgt.byType)...)

	sampled, err := m.sampleCheck(ctx, nodes)
	if err != nil {
		return nil, err
	}
	return append(discrepancies, sampled...), nil
}

// collectCounts fans the four count queries out concurrently; each
// goroutine writes a distinct field.
func collectCounts(ctx context.Context, q Querier) (*graphCounts, error) {
	counts := &graphCounts{
		byLabel: map[string]int64{},
		byType:  map[string]int64{},
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := scalarCount(ctx, q, "MATCH (n) RETURN count(n) AS count")
		counts.nodes = n
		return err
	})
	g.Go(func() error {
		n, err := scalarCount(ctx, q, "MATCH ()-[r]->() RETURN count(r) AS count")
		counts.rels = n
		return err
	})
	g.Go(func() error {
		byLabel, err := groupedCounts(ctx, q, "MATCH (n) UNWIND labels(n) AS key RETURN key, count(*) AS count")
		counts.byLabel = byLabel
		return err
	})
	g.Go(func() error {
		byType, err := groupedCounts(ctx, q, "MATCH ()-[r]->() RETURN type(r) AS key, count(*) AS count")
		counts.byType = byType
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return counts, nil
}

func scalarCount(ctx context.Context, q Querier, cypher string) (int64, error) {
	records, err := q.RunQuery(ctx, cypher, nil)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}
	return asInt64(records[0]["count"]), nil
}

func groupedCounts(ctx context.Context, q Querier, cypher string) (map[string]int64, error) {
	records, err := q.RunQuery(ctx, cypher, nil)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(records))
	for _, rec := range records {
		key := asString(rec["key"])
		if key == "" {
			continue
		}
		out[key] = asInt64(rec["count"])
	}
	return out, nil
}

// compareCountMaps walks the union of keys in sorted order so discrepancy
// output is stable.
func compareCountMaps(check string, src, tgt map[string]int64) []Discrepancy {
	keys := make(map[string]bool, len(src)+len(tgt))
	for k := range src {
		keys[k] = true
	}
	for k := range tgt {
		keys[k] = true
	}
	ordered := make([]string, 0, len(keys))
	for k := range keys {
		ordered = append(ordered, k)
	}
	sort.Strings(ordered)

	var out []Discrepancy
	for _, key := range ordered {
		if src[key] != tgt[key] {
			out = append(out, Discrepancy{
				Check:  check,
				Detail: fmt.Sprintf("%s: source has %d, target has %d", key, src[key], tgt[key]),
			})
		}
	}
	return out
}

// sampleCheck looks random exported nodes up in the target by source id
// and compares their properties.
func (m *Migrator) sampleCheck(ctx context.Context, nodes []ExportedNode) ([]Discrepancy, error) {
	cypher := fmt.Sprintf("MATCH (n) WHERE n.%s = $sid RETURN properties(n) AS props LIMIT 1", SourceIDProperty)

	var out []Discrepancy
	for _, node := range sampleNodes(nodes, m.opts.SampleSize) {
		records, err := m.target.RunQuery(ctx, cypher, map[string]any{"sid": node.SourceID})
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			out = append(out, Discrepancy{
				Check:  "sample_presence",
				Detail: fmt.Sprintf("node %s is missing from the target", node.SourceID),
			})
			continue
		}
		if !propsEquivalent(node.Properties, propsMap(records[0]["props"])) {
			out = append(out, Discrepancy{
				Check:  "sample_properties",
				Detail: fmt.Sprintf("node %s has diverging properties in the target", node.SourceID),
			})
		}
	}
	return out, nil
}

func sampleNodes(nodes []ExportedNode, k int) []ExportedNode {
	if len(nodes) <= k {
		return nodes
	}
	picked := make([]ExportedNode, 0, k)
	for _, idx := range rand.Perm(len(nodes))[:k] {
		picked = append(picked, nodes[idx])
	}
	return picked
}

// propsEquivalent compares property bags after dropping the reserved
// source id and normalising numeric widths, so values survive crossing
// driver boundaries.
func propsEquivalent(want, got map[string]any) bool {
	return reflect.DeepEqual(normalizeProps(want, false), normalizeProps(got, true))
}

func normalizeProps(props map[string]any, dropSourceID bool) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if dropSourceID && k == SourceIDProperty {
			continue
		}
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case float32:
		return float64(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = item
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeValue(item)
		}
		return out
	default:
		return v
	}
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
