package graph

import (
	"context"
	"strings"
	"testing"

	"github.com/codegraphhq/codegraph/internal/errors"
)

type fakeRunner struct {
	calls   []string
	respond func(cypher string, params map[string]any) ([]Record, error)
}

func (f *fakeRunner) run(ctx context.Context, cypher string, params map[string]any) ([]Record, error) {
	f.calls = append(f.calls, cypher)
	return f.respond(cypher, params)
}

func depRecord(id string) Record {
	return Record{"id": id, "labels": []any{"File"}, "props": map[string]any{"path": id}}
}

func TestAnalyzeDependenciesDirectOnly(t *testing.T) {
	runner := &fakeRunner{respond: func(cypher string, params map[string]any) ([]Record, error) {
		switch {
		case strings.Contains(cypher, "LIMIT 1"):
			return []Record{{"id": "f1"}}, nil
		case strings.Contains(cypher, "*1..1]"):
			return []Record{depRecord("d1"), depRecord("d2")}, nil
		default:
			t.Fatalf("unexpected query: %s", cypher)
			return nil, nil
		}
	}}

	d := queryDialect{idFunc: "elementId"}
	result, err := analyzeDependencies(context.Background(), d, runner.run, DependencyQuery{
		Target:     "src/app.ts",
		Repository: "acme",
		Direction:  DirectionDependsOn,
	})
	if err != nil {
		t.Fatalf("analyzeDependencies() error = %v", err)
	}

	if len(result.Direct) != 2 {
		t.Fatalf("Direct = %d entries; want 2", len(result.Direct))
	}
	if len(result.Transitive) != 0 {
		t.Errorf("Transitive = %d entries; want 0", len(result.Transitive))
	}
	if result.ImpactScore != 0.1 {
		t.Errorf("ImpactScore = %v; want 0.1", result.ImpactScore)
	}
	if result.Metadata["direction"] != "dependsOn" {
		t.Errorf("metadata direction = %v", result.Metadata["direction"])
	}
}

func TestAnalyzeDependenciesBothDirectionsDedupe(t *testing.T) {
	runner := &fakeRunner{respond: func(cypher string, params map[string]any) ([]Record, error) {
		switch {
		case strings.Contains(cypher, "LIMIT 1"):
			return []Record{{"id": "f1"}}, nil
		case strings.Contains(cypher, "*1..1]"):
			// The same neighbour shows up in both directions.
			return []Record{depRecord("dup")}, nil
		case strings.Contains(cypher, "*2..3]"):
			return []Record{depRecord("t1"), depRecord("dup")}, nil
		default:
			t.Fatalf("unexpected query: %s", cypher)
			return nil, nil
		}
	}}

	d := queryDialect{idFunc: "elementId"}
	result, err := analyzeDependencies(context.Background(), d, runner.run, DependencyQuery{
		Target:     "src/app.ts",
		Direction:  DirectionBoth,
		Transitive: true,
		MaxDepth:   3,
	})
	if err != nil {
		t.Fatalf("analyzeDependencies() error = %v", err)
	}

	if len(result.Direct) != 1 || result.Direct[0].ID != "dup" {
		t.Errorf("Direct = %+v; want single dup entry", result.Direct)
	}
	if len(result.Transitive) != 1 || result.Transitive[0].ID != "t1" {
		t.Errorf("Transitive = %+v; want single t1 entry", result.Transitive)
	}
	// direct=1, transitive=1: (1 + 0.5) / 20
	if result.ImpactScore != 0.075 {
		t.Errorf("ImpactScore = %v; want 0.075", result.ImpactScore)
	}
}

func TestAnalyzeDependenciesMissingFile(t *testing.T) {
	runner := &fakeRunner{respond: func(cypher string, params map[string]any) ([]Record, error) {
		return nil, nil
	}}

	d := queryDialect{idFunc: "elementId"}
	_, err := analyzeDependencies(context.Background(), d, runner.run, DependencyQuery{
		Target: "missing.ts",
	})
	if errors.KindOf(err) != errors.KindEntityNotFound {
		t.Errorf("error kind = %v; want EntityNotFound", errors.KindOf(err))
	}
}

func TestAnalyzeDependenciesValidation(t *testing.T) {
	runner := &fakeRunner{respond: func(cypher string, params map[string]any) ([]Record, error) {
		t.Fatal("no query should execute for invalid input")
		return nil, nil
	}}
	d := queryDialect{idFunc: "elementId"}

	_, err := analyzeDependencies(context.Background(), d, runner.run, DependencyQuery{
		Target:    "src/app.ts",
		Direction: "sideways",
	})
	if errors.KindOf(err) != errors.KindValidation {
		t.Errorf("error kind = %v; want Validation", errors.KindOf(err))
	}
}

func TestGetContextDefaults(t *testing.T) {
	runner := &fakeRunner{respond: func(cypher string, params map[string]any) ([]Record, error) {
		return []Record{{"id": int64(1), "labels": []any{"Function"}, "props": map[string]any{"name": "x"}}}, nil
	}}

	d := queryDialect{idFunc: "id"}
	result, err := getContext(context.Background(), d, runner.run, ContextQuery{
		Seeds: []string{"main"},
	})
	if err != nil {
		t.Fatalf("getContext() error = %v", err)
	}

	// One query per default context kind.
	if len(runner.calls) != len(allContextKinds) {
		t.Errorf("ran %d queries; want %d", len(runner.calls), len(allContextKinds))
	}
	if len(result.Items) != len(allContextKinds) {
		t.Errorf("Items = %d; want %d", len(result.Items), len(allContextKinds))
	}
	if result.Metadata["limit"] != defaultContextLimit {
		t.Errorf("metadata limit = %v; want %d", result.Metadata["limit"], defaultContextLimit)
	}
	if result.Items[0].Seed != "main" {
		t.Errorf("item seed = %s; want main", result.Items[0].Seed)
	}
}

func TestGetContextLimitCap(t *testing.T) {
	runner := &fakeRunner{respond: func(cypher string, params map[string]any) ([]Record, error) {
		if !strings.Contains(cypher, "LIMIT 100") {
			t.Errorf("limit not capped: %s", cypher)
		}
		return nil, nil
	}}

	d := queryDialect{idFunc: "id"}
	result, err := getContext(context.Background(), d, runner.run, ContextQuery{
		Seeds:   []string{"main"},
		Include: []ContextKind{ContextCallers},
		Limit:   500,
	})
	if err != nil {
		t.Fatalf("getContext() error = %v", err)
	}
	if result.Metadata["limit"] != maxContextLimit {
		t.Errorf("metadata limit = %v; want %d", result.Metadata["limit"], maxContextLimit)
	}
}

func TestGetContextValidation(t *testing.T) {
	d := queryDialect{idFunc: "id"}
	noRun := func(ctx context.Context, cypher string, params map[string]any) ([]Record, error) {
		t.Fatal("no query should execute for invalid input")
		return nil, nil
	}

	if _, err := getContext(context.Background(), d, noRun, ContextQuery{}); errors.KindOf(err) != errors.KindValidation {
		t.Error("empty seeds accepted")
	}
	if _, err := getContext(context.Background(), d, noRun, ContextQuery{Seeds: []string{""}}); errors.KindOf(err) != errors.KindValidation {
		t.Error("empty seed string accepted")
	}
}

func TestAnalysisMetadataContract(t *testing.T) {
	runner := &fakeRunner{respond: func(cypher string, params map[string]any) ([]Record, error) {
		if strings.Contains(cypher, "LIMIT 1") {
			return []Record{{"id": "f1"}}, nil
		}
		return []Record{depRecord("d1")}, nil
	}}
	d := queryDialect{idFunc: "elementId"}

	assertContract := func(md map[string]any) {
		t.Helper()
		if _, ok := md["query_time_ms"].(int64); !ok {
			t.Errorf("query_time_ms missing or wrong type: %v", md["query_time_ms"])
		}
		if md["from_cache"] != false {
			t.Errorf("from_cache = %v; want false", md["from_cache"])
		}
		repos, ok := md["repositories_searched"].([]string)
		if !ok {
			t.Fatalf("repositories_searched missing: %v", md["repositories_searched"])
		}
		if len(repos) != 1 || repos[0] != "acme" {
			t.Errorf("repositories_searched = %v; want [acme]", repos)
		}
	}

	deps, err := analyzeDependencies(context.Background(), d, runner.run, DependencyQuery{
		Target:     "src/app.ts",
		Repository: "acme",
	})
	if err != nil {
		t.Fatalf("analyzeDependencies() error = %v", err)
	}
	assertContract(deps.Metadata)

	ctxResult, err := getContext(context.Background(), d, runner.run, ContextQuery{
		Seeds:      []string{"main"},
		Repository: "acme",
		Include:    []ContextKind{ContextCallers},
	})
	if err != nil {
		t.Fatalf("getContext() error = %v", err)
	}
	assertContract(ctxResult.Metadata)

	// An unscoped context query still reports the key, as an empty list.
	unscoped, err := getContext(context.Background(), d, runner.run, ContextQuery{
		Seeds:   []string{"main"},
		Include: []ContextKind{ContextCallers},
	})
	if err != nil {
		t.Fatalf("getContext() error = %v", err)
	}
	if repos, ok := unscoped.Metadata["repositories_searched"].([]string); !ok || len(repos) != 0 {
		t.Errorf("unscoped repositories_searched = %v; want []", unscoped.Metadata["repositories_searched"])
	}
}
