package graph

import (
	"strings"
	"testing"

	"github.com/codegraphhq/codegraph/internal/models"
)

func TestNeo4jSchemaDialect(t *testing.T) {
	s := SchemaFor(BackendNeo4j)

	joined := strings.Join(s.All(), "\n")
	if !strings.Contains(joined, "REQUIRE (n.repository, n.path) IS NODE KEY") {
		t.Errorf("missing composite file identity:\n%s", joined)
	}
	if !strings.Contains(joined, "REQUIRE n.name IS UNIQUE") {
		t.Errorf("missing unique constraint rendering:\n%s", joined)
	}
	if len(s.Fulltext) == 0 {
		t.Fatal("neo4j dialect must include the fulltext index")
	}
	if !strings.Contains(s.Fulltext[0], "FULLTEXT INDEX") || !strings.Contains(s.Fulltext[0], "Function|Class") {
		t.Errorf("fulltext index wrong: %s", s.Fulltext[0])
	}

	// Schema init is idempotent; every statement carries IF NOT EXISTS.
	for _, stmt := range s.All() {
		if !strings.Contains(stmt, "IF NOT EXISTS") {
			t.Errorf("statement missing IF NOT EXISTS: %s", stmt)
		}
	}
}

func TestFalkorSchemaDialect(t *testing.T) {
	s := SchemaFor(BackendFalkorDB)

	joined := strings.Join(s.All(), "\n")
	if strings.Contains(joined, "NODE KEY") {
		t.Errorf("falkordb dialect must not use NODE KEY:\n%s", joined)
	}
	if len(s.Fulltext) != 0 {
		t.Errorf("falkordb dialect must omit fulltext indexes, got %v", s.Fulltext)
	}
	if !strings.Contains(joined, "ASSERT n.file_id IS UNIQUE") {
		t.Errorf("composite file identity must collapse onto file_id:\n%s", joined)
	}
	if !strings.Contains(joined, "ASSERT n.unique_id IS UNIQUE") {
		t.Errorf("entity identity must collapse onto unique_id:\n%s", joined)
	}
}

func TestKeyProperties(t *testing.T) {
	tests := []struct {
		backend Backend
		label   string
		want    []string
	}{
		{BackendNeo4j, models.LabelFile, []string{"repository", "path"}},
		{BackendFalkorDB, models.LabelFile, []string{"file_id"}},
		{BackendNeo4j, models.LabelFunction, []string{"repository", "filePath", "name"}},
		{BackendFalkorDB, models.LabelFunction, []string{"unique_id"}},
		{BackendNeo4j, models.LabelRepository, []string{"name"}},
		{BackendFalkorDB, models.LabelRepository, []string{"name"}},
		{BackendNeo4j, models.LabelChunk, []string{"chromaId"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.backend)+"/"+tt.label, func(t *testing.T) {
			got, err := KeyProperties(tt.backend, tt.label)
			if err != nil {
				t.Fatalf("KeyProperties() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("KeyProperties() = %v; want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("KeyProperties()[%d] = %s; want %s", i, got[i], tt.want[i])
				}
			}
		})
	}

	if _, err := KeyProperties(BackendNeo4j, "Mystery"); err == nil {
		t.Error("KeyProperties(unknown label) = nil error; want rejection")
	}
}

func TestSyntheticIdentities(t *testing.T) {
	if got := FileID("acme", "src/app.ts"); got != "acme::src/app.ts" {
		t.Errorf("FileID() = %s", got)
	}
	if got := EntityUniqueID("acme", "src/app.ts", "main"); got != "acme:src/app.ts:main" {
		t.Errorf("EntityUniqueID() = %s", got)
	}
}

func TestApplySyntheticKeys(t *testing.T) {
	file := models.NewFileNode("acme", "src/app.ts", ".ts", "h1")

	applySyntheticKeys(BackendNeo4j, file)
	if _, ok := file.Properties["file_id"]; ok {
		t.Error("neo4j dialect must not add synthetic keys")
	}

	applySyntheticKeys(BackendFalkorDB, file)
	if got := file.Property("file_id"); got != "acme::src/app.ts" {
		t.Errorf("file_id = %s; want acme::src/app.ts", got)
	}

	fn := models.NewFunctionNode("acme", "src/app.ts", "main", "main()", 1, 10)
	applySyntheticKeys(BackendFalkorDB, fn)
	if got := fn.Property("unique_id"); got != "acme:src/app.ts:main" {
		t.Errorf("unique_id = %s; want acme:src/app.ts:main", got)
	}

	// Existing synthetic keys are left alone.
	fn.Properties["unique_id"] = "preset"
	applySyntheticKeys(BackendFalkorDB, fn)
	if got := fn.Property("unique_id"); got != "preset" {
		t.Errorf("unique_id overwritten to %s; want preset", got)
	}
}
