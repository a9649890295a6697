package graph

import (
	"strings"
	"testing"

	"github.com/codegraphhq/codegraph/internal/models"
)

func TestBuildTraversalClampsDepth(t *testing.T) {
	d := queryDialect{idFunc: "elementId"}
	q := TraversalQuery{
		StartID:       "4:abc:1",
		Relationships: []models.RelationshipType{models.RelImports},
		Depth:         6,
	}
	cypher, _, err := d.buildTraversal(q)
	if err != nil {
		t.Fatalf("buildTraversal() error = %v", err)
	}
	if !strings.Contains(cypher, "*1..5]") {
		t.Errorf("depth 6 not clamped to 5: %s", cypher)
	}

	q.Depth = 0
	cypher, _, err = d.buildTraversal(q)
	if err != nil {
		t.Fatalf("buildTraversal() error = %v", err)
	}
	if !strings.Contains(cypher, "*1..1]") {
		t.Errorf("depth 0 not defaulted to 1: %s", cypher)
	}
}

func TestBuildTraversalShape(t *testing.T) {
	d := queryDialect{idFunc: "id"}
	q := TraversalQuery{
		StartLabel:    "File",
		StartProps:    map[string]any{"path": "src/app.ts", "repository": "acme"},
		Relationships: []models.RelationshipType{models.RelImports, models.RelCalls},
		Depth:         3,
		Repository:    "acme",
	}
	cypher, params, err := d.buildTraversal(q)
	if err != nil {
		t.Fatalf("buildTraversal() error = %v", err)
	}
	if !strings.Contains(cypher, "MATCH (start:File {path: $p0, repository: $p1})") {
		t.Errorf("start match wrong: %s", cypher)
	}
	if !strings.Contains(cypher, "[:IMPORTS|CALLS*1..3]") {
		t.Errorf("relationship pattern wrong: %s", cypher)
	}
	if !strings.Contains(cypher, "RETURN id(n) AS id") {
		t.Errorf("id selector not applied: %s", cypher)
	}
	if !strings.Contains(cypher, "ORDER BY depth") {
		t.Errorf("missing depth ordering: %s", cypher)
	}
	if params["p2"] != "acme" {
		t.Errorf("repository param wrong: %v", params)
	}
}

func TestBuildTraversalRejectsUnsafeInput(t *testing.T) {
	d := queryDialect{idFunc: "elementId"}

	_, _, err := d.buildTraversal(TraversalQuery{
		StartLabel: "File) DETACH DELETE (n",
		StartProps: map[string]any{"path": "a.ts"},
	})
	if err == nil {
		t.Error("unsafe start label accepted")
	}

	_, _, err = d.buildTraversal(TraversalQuery{
		StartID:       "1",
		Relationships: []models.RelationshipType{"CALLS]->() DELETE"},
	})
	if err == nil {
		t.Error("unsafe relationship type accepted")
	}

	_, _, err = d.buildTraversal(TraversalQuery{})
	if err == nil {
		t.Error("traversal without start accepted")
	}
}

func TestBuildContextKinds(t *testing.T) {
	d := queryDialect{idFunc: "elementId"}

	for _, kind := range allContextKinds {
		cypher, _, err := d.buildContext(kind, "main", "acme", 20)
		if err != nil {
			t.Fatalf("buildContext(%s) error = %v", kind, err)
		}
		if !strings.Contains(cypher, "LIMIT 20") {
			t.Errorf("buildContext(%s) missing limit: %s", kind, cypher)
		}
		if !strings.Contains(cypher, "RETURN DISTINCT elementId(x) AS id") {
			t.Errorf("buildContext(%s) projection wrong: %s", kind, cypher)
		}
	}

	if _, _, err := d.buildContext("neighbours", "main", "", 20); err == nil {
		t.Error("unknown context kind accepted")
	}
}

func TestRecordToTraversalNode(t *testing.T) {
	rec := Record{
		"id":     int64(42),
		"labels": []any{"File"},
		"props":  map[string]any{"path": "src/app.ts"},
		"depth":  int64(2),
	}
	node := recordToTraversalNode(rec)
	if node.ID != "42" {
		t.Errorf("ID = %s; want 42", node.ID)
	}
	if len(node.Labels) != 1 || node.Labels[0] != "File" {
		t.Errorf("Labels = %v", node.Labels)
	}
	if node.Properties["path"] != "src/app.ts" {
		t.Errorf("Properties = %v", node.Properties)
	}
	if node.Depth != 2 {
		t.Errorf("Depth = %d; want 2", node.Depth)
	}

	// Neo4j element ids pass through untouched.
	node = recordToTraversalNode(Record{"id": "4:abc:7", "labels": []any{"Function"}})
	if node.ID != "4:abc:7" {
		t.Errorf("ID = %s; want 4:abc:7", node.ID)
	}
}
