package vectorstore

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/codegraphhq/codegraph/internal/errors"
	"github.com/codegraphhq/codegraph/internal/models"
)

func TestPointIDDeterministic(t *testing.T) {
	a := PointID("acme:src/app.ts:0")
	b := PointID("acme:src/app.ts:0")
	if a != b {
		t.Errorf("same chunk id produced different points: %s vs %s", a, b)
	}
	if c := PointID("acme:src/app.ts:1"); c == a {
		t.Errorf("distinct chunk ids collided on %s", c)
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Errorf("point id %q is not a uuid: %v", a, err)
	}
}

func TestDocToPointRoundTrip(t *testing.T) {
	indexed := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	modified := time.Date(2025, 3, 13, 18, 2, 7, 0, time.UTC)
	doc := models.DocumentInput{
		ID:        "acme:src/app.ts:2",
		Content:   "export function main() {}",
		Embedding: []float32{0.1, 0.2, 0.3},
		Metadata: models.DocumentMetadata{
			FilePath:       "src/app.ts",
			Repository:     "acme",
			ChunkIndex:     2,
			TotalChunks:    5,
			ChunkStartLine: 121,
			ChunkEndLine:   180,
			FileExtension:  ".ts",
			FileSizeBytes:  4096,
			ContentHash:    "deadbeef",
			IndexedAt:      indexed,
			FileModifiedAt: modified,
		},
	}

	point, err := docToPoint(doc)
	if err != nil {
		t.Fatalf("docToPoint() error = %v", err)
	}
	if got := point.GetId().GetUuid(); got != PointID(doc.ID) {
		t.Errorf("point id = %s; want %s", got, PointID(doc.ID))
	}
	if got := point.GetVectors().GetVector().GetData(); len(got) != 3 {
		t.Errorf("vector length = %d; want 3", len(got))
	}

	result := scoredPointToResult(&qdrant.ScoredPoint{
		Score:   0.87,
		Payload: point.GetPayload(),
	})
	if result.ID != doc.ID {
		t.Errorf("ID = %s; want %s", result.ID, doc.ID)
	}
	if result.Score != 0.87 {
		t.Errorf("Score = %v; want 0.87", result.Score)
	}
	if result.Content != doc.Content {
		t.Errorf("Content = %q", result.Content)
	}
	if result.Metadata != doc.Metadata {
		t.Errorf("Metadata = %+v; want %+v", result.Metadata, doc.Metadata)
	}
}

func TestDocToPointValidation(t *testing.T) {
	tests := []struct {
		name string
		doc  models.DocumentInput
	}{
		{"missing id", models.DocumentInput{Embedding: []float32{0.1}}},
		{"missing embedding", models.DocumentInput{ID: "acme:a.ts:0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := docToPoint(tt.doc)
			if err == nil {
				t.Fatal("docToPoint() error = nil; want validation error")
			}
			if kind := errors.KindOf(err); kind != errors.KindValidation {
				t.Errorf("kind = %v; want %v", kind, errors.KindValidation)
			}
		})
	}
}

func TestPayloadTimeIgnoresGarbage(t *testing.T) {
	payload := map[string]*qdrant.Value{"indexed_at": stringValue("not a timestamp")}
	if got := payloadTime(payload, "indexed_at"); !got.IsZero() {
		t.Errorf("payloadTime = %v; want zero", got)
	}
	if got := payloadTime(payload, "absent"); !got.IsZero() {
		t.Errorf("payloadTime on absent key = %v; want zero", got)
	}
}

func TestSearchFilterShapes(t *testing.T) {
	if got := searchFilter(SearchFilter{}); got != nil {
		t.Errorf("empty filter = %+v; want nil", got)
	}

	f := searchFilter(SearchFilter{Repository: "acme", Extension: ".py"})
	if f == nil || len(f.Must) != 2 || len(f.Should) != 0 {
		t.Fatalf("must filter = %+v", f)
	}
	if key, val := condKeyword(t, f.Must[0]); key != "repository" || val != "acme" {
		t.Errorf("must[0] = %s=%s", key, val)
	}
	if key, val := condKeyword(t, f.Must[1]); key != "file_extension" || val != ".py" {
		t.Errorf("must[1] = %s=%s", key, val)
	}

	f = searchFilter(SearchFilter{Repositories: []string{"acme", "widgets"}})
	if f == nil || len(f.Must) != 0 || len(f.Should) != 2 {
		t.Fatalf("should filter = %+v", f)
	}
	if key, val := condKeyword(t, f.Should[1]); key != "repository" || val != "widgets" {
		t.Errorf("should[1] = %s=%s", key, val)
	}

	// MinScore is a threshold, not a payload condition.
	if got := searchFilter(SearchFilter{MinScore: 0.5}); got != nil {
		t.Errorf("min-score-only filter = %+v; want nil", got)
	}
}

func TestFileFilterConditions(t *testing.T) {
	f := fileFilter("acme", "src/db.ts")
	if len(f.Must) != 2 {
		t.Fatalf("conditions = %d; want 2", len(f.Must))
	}
	if key, val := condKeyword(t, f.Must[0]); key != "repository" || val != "acme" {
		t.Errorf("must[0] = %s=%s", key, val)
	}
	if key, val := condKeyword(t, f.Must[1]); key != "file_path" || val != "src/db.ts" {
		t.Errorf("must[1] = %s=%s", key, val)
	}
}

func condKeyword(t *testing.T, cond *qdrant.Condition) (string, string) {
	t.Helper()
	field := cond.GetField()
	if field == nil {
		t.Fatalf("condition %+v is not a field condition", cond)
	}
	return field.GetKey(), field.GetMatch().GetKeyword()
}
