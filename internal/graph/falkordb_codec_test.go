package graph

import (
	"strings"
	"testing"
)

func TestDecodeGraphReplyRows(t *testing.T) {
	// [columns, rows, statistics] as delivered over RESP.
	raw := []any{
		[]any{"id", "labels", "props"},
		[]any{
			[]any{
				int64(7),
				[]any{"File"},
				[]any{
					[]any{"path", "src/app.ts"},
					[]any{"repository", "acme"},
				},
			},
		},
		[]any{"Query internal execution time: 0.3 ms"},
	}

	records, stats, err := decodeGraphReply(raw)
	if err != nil {
		t.Fatalf("decodeGraphReply() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d; want 1", len(records))
	}
	rec := records[0]
	if rec["id"] != int64(7) {
		t.Errorf("id = %v", rec["id"])
	}
	props, ok := rec["props"].(map[string]any)
	if !ok {
		t.Fatalf("props type = %T; want map", rec["props"])
	}
	if props["path"] != "src/app.ts" || props["repository"] != "acme" {
		t.Errorf("props = %v", props)
	}
	if len(stats) != 1 || !strings.Contains(stats[0], "execution time") {
		t.Errorf("stats = %v", stats)
	}
}

func TestDecodeGraphReplyStatsOnly(t *testing.T) {
	raw := []any{
		[]any{"Nodes deleted: 2", "Query internal execution time: 0.1 ms"},
	}
	records, stats, err := decodeGraphReply(raw)
	if err != nil {
		t.Fatalf("decodeGraphReply() error = %v", err)
	}
	if records != nil {
		t.Errorf("records = %v; want nil", records)
	}
	if statInt(stats, "Nodes deleted") != 2 {
		t.Errorf("Nodes deleted = %d; want 2", statInt(stats, "Nodes deleted"))
	}
	if statInt(stats, "Relationships deleted") != 0 {
		t.Error("missing counter should read 0")
	}
}

func TestDecodeNodeEnvelope(t *testing.T) {
	// RETURN n projects the verbose entity envelope.
	raw := []any{
		[]any{"id", int64(3)},
		[]any{"labels", []any{"Function"}},
		[]any{"properties", []any{[]any{"name", "run"}, []any{"startLine", int64(10)}}},
	}
	decoded, ok := decodeFalkorValue(raw).(map[string]any)
	if !ok {
		t.Fatalf("decoded type = %T; want map", decodeFalkorValue(raw))
	}
	if decoded["id"] != int64(3) {
		t.Errorf("id = %v", decoded["id"])
	}
	props, ok := decoded["properties"].(map[string]any)
	if !ok {
		t.Fatalf("properties type = %T", decoded["properties"])
	}
	if props["name"] != "run" || props["startLine"] != int64(10) {
		t.Errorf("properties = %v", props)
	}
}

func TestCypherParamsPrologue(t *testing.T) {
	prologue, err := cypherParamsPrologue(map[string]any{
		"p1": int64(5),
		"p0": "O'Reilly\\path",
	})
	if err != nil {
		t.Fatalf("cypherParamsPrologue() error = %v", err)
	}
	// Keys render sorted; quote and backslash are escaped.
	want := `CYPHER p0='O\'Reilly\\path' p1=5`
	if prologue != want {
		t.Errorf("prologue = %s; want %s", prologue, want)
	}
}

func TestCypherParamsPrologueRejectsUnsafeNames(t *testing.T) {
	if _, err := cypherParamsPrologue(map[string]any{"bad name": 1}); err == nil {
		t.Error("unsafe parameter name accepted")
	}
}

func TestSerializeCypherValue(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{"null", nil, "null"},
		{"string", "abc", "'abc'"},
		{"bool", true, "true"},
		{"int", 42, "42"},
		{"float", 1.5, "1.5"},
		{"string slice", []string{"a", "b"}, "['a', 'b']"},
		{"any slice", []any{int64(1), "x"}, "[1, 'x']"},
		{"map sorted", map[string]any{"b": 2, "a": 1}, "{a: 1, b: 2}"},
		{"nested", []map[string]any{{"path": "a.ts"}}, "[{path: 'a.ts'}]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := serializeCypherValue(tt.input)
			if err != nil {
				t.Fatalf("serializeCypherValue(%v) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("serializeCypherValue(%v) = %s; want %s", tt.input, got, tt.want)
			}
		})
	}

	if _, err := serializeCypherValue(struct{}{}); err == nil {
		t.Error("unsupported type accepted")
	}

	if _, err := serializeCypherValue(map[string]any{"bad key": 1}); err == nil {
		t.Error("unsafe map key accepted")
	}
}
