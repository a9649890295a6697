package tools

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codegraphhq/codegraph/internal/graph"
	"github.com/codegraphhq/codegraph/internal/graphquery"
	"github.com/codegraphhq/codegraph/internal/models"
	"github.com/codegraphhq/codegraph/internal/vectorstore"
)

type fakeQuerier struct {
	lastDeps graphquery.DependenciesRequest
	lastPath graphquery.PathRequest
	lastArch graphquery.ArchitectureRequest

	depsResult *graph.DependencyResult
	dependents *graphquery.DependentsResult
	pathResult *graphquery.PathResult
	archResult *graphquery.ArchitectureResult
	err        error
}

func (f *fakeQuerier) GetDependencies(_ context.Context, req graphquery.DependenciesRequest) (*graph.DependencyResult, error) {
	f.lastDeps = req
	return f.depsResult, f.err
}

func (f *fakeQuerier) GetDependents(_ context.Context, req graphquery.DependenciesRequest) (*graphquery.DependentsResult, error) {
	f.lastDeps = req
	return f.dependents, f.err
}

func (f *fakeQuerier) GetPath(_ context.Context, req graphquery.PathRequest) (*graphquery.PathResult, error) {
	f.lastPath = req
	return f.pathResult, f.err
}

func (f *fakeQuerier) GetArchitecture(_ context.Context, req graphquery.ArchitectureRequest) (*graphquery.ArchitectureResult, error) {
	f.lastArch = req
	return f.archResult, f.err
}

type fakeResolver struct {
	repo  string
	err   error
	calls int
}

func (f *fakeResolver) Resolve(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.repo, f.err
}

type fakeEmbedder struct {
	lastTexts []string
	vectors   [][]float32
	err       error
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.lastTexts = texts
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors, nil
}

type fakeSearcher struct {
	lastVector []float32
	lastFilter vectorstore.SearchFilter
	lastLimit  int
	results    []models.SearchResult
	err        error
}

func (f *fakeSearcher) Search(_ context.Context, vector []float32, filter vectorstore.SearchFilter, limit int) ([]models.SearchResult, error) {
	f.lastVector = vector
	f.lastFilter = filter
	f.lastLimit = limit
	return f.results, f.err
}

type fakeFetcher struct {
	lastQuery graph.ContextQuery
	result    *graph.ContextResult
	err       error
}

func (f *fakeFetcher) GetContext(_ context.Context, q graph.ContextQuery) (*graph.ContextResult, error) {
	f.lastQuery = q
	return f.result, f.err
}

type fakeLister struct {
	repos []*models.RepositoryInfo
	err   error
}

func (f *fakeLister) ListRepositories(_ context.Context) ([]*models.RepositoryInfo, error) {
	return f.repos, f.err
}

func TestSearchCode(t *testing.T) {
	embedder := &fakeEmbedder{vectors: [][]float32{{0.1, 0.2, 0.3}}}
	searcher := &fakeSearcher{results: []models.SearchResult{
		{ID: "a", Score: 0.91},
		{ID: "b", Score: 0.72},
	}}
	tool := NewSearchCodeTool(embedder, searcher, nil)

	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"query":      "http handler registration",
		"repository": "payments",
		"extension":  ".go",
		"limit":      float64(5),
		"min_score":  0.4,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"http handler registration"}, embedder.lastTexts)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, searcher.lastVector)
	assert.Equal(t, "payments", searcher.lastFilter.Repository)
	assert.Equal(t, ".go", searcher.lastFilter.Extension)
	assert.InDelta(t, 0.4, float64(searcher.lastFilter.MinScore), 1e-6)
	assert.Equal(t, 5, searcher.lastLimit)

	out, ok := result.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 2, out["count"])
	assert.Len(t, out["results"], 2)
	assert.Equal(t, "http handler registration", out["query"])
}

func TestSearchCodeLimitBounds(t *testing.T) {
	embedder := &fakeEmbedder{vectors: [][]float32{{1}}}
	searcher := &fakeSearcher{}
	tool := NewSearchCodeTool(embedder, searcher, nil)

	cases := []struct {
		name string
		arg  interface{}
		want int
	}{
		{"default", nil, defaultSearchLimit},
		{"negative", float64(-3), defaultSearchLimit},
		{"capped", float64(500), maxSearchLimit},
		{"in range", float64(25), 25},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			args := map[string]interface{}{"query": "q"}
			if tc.arg != nil {
				args["limit"] = tc.arg
			}
			_, err := tool.Execute(context.Background(), args)
			require.NoError(t, err)
			assert.Equal(t, tc.want, searcher.lastLimit)
		})
	}
}

func TestSearchCodeResolvesWorkspace(t *testing.T) {
	embedder := &fakeEmbedder{vectors: [][]float32{{1}}}
	searcher := &fakeSearcher{}
	resolver := &fakeResolver{repo: "payments"}
	tool := NewSearchCodeTool(embedder, searcher, resolver)

	_, err := tool.Execute(context.Background(), map[string]interface{}{
		"query":          "q",
		"workspace_path": "/home/dev/payments",
	})
	require.NoError(t, err)
	assert.Equal(t, "payments", searcher.lastFilter.Repository)
	assert.Equal(t, 1, resolver.calls)

	// An explicit repository wins without touching the resolver.
	_, err = tool.Execute(context.Background(), map[string]interface{}{
		"query":          "q",
		"repository":     "billing",
		"workspace_path": "/home/dev/payments",
	})
	require.NoError(t, err)
	assert.Equal(t, "billing", searcher.lastFilter.Repository)
	assert.Equal(t, 1, resolver.calls)
}

func TestSearchCodeErrors(t *testing.T) {
	t.Run("missing query", func(t *testing.T) {
		tool := NewSearchCodeTool(&fakeEmbedder{}, &fakeSearcher{}, nil)
		_, err := tool.Execute(context.Background(), map[string]interface{}{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "query is required")
	})

	t.Run("embedder failure", func(t *testing.T) {
		tool := NewSearchCodeTool(&fakeEmbedder{err: fmt.Errorf("quota exhausted")}, &fakeSearcher{}, nil)
		_, err := tool.Execute(context.Background(), map[string]interface{}{"query": "q"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "embed query")
	})

	t.Run("wrong vector count", func(t *testing.T) {
		tool := NewSearchCodeTool(&fakeEmbedder{vectors: [][]float32{}}, &fakeSearcher{}, nil)
		_, err := tool.Execute(context.Background(), map[string]interface{}{"query": "q"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "0 vectors")
	})

	t.Run("resolver failure", func(t *testing.T) {
		resolver := &fakeResolver{err: fmt.Errorf("no such workspace")}
		tool := NewSearchCodeTool(&fakeEmbedder{vectors: [][]float32{{1}}}, &fakeSearcher{}, resolver)
		_, err := tool.Execute(context.Background(), map[string]interface{}{
			"query":          "q",
			"workspace_path": "/nowhere",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no such workspace")
	})
}

func TestGetDependencies(t *testing.T) {
	svc := &fakeQuerier{depsResult: &graph.DependencyResult{}}
	tool := NewGetDependenciesTool(svc, nil)

	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"entity_path":        "src/api/server.ts",
		"entity_type":        "function",
		"repository":         "payments",
		"depth":              float64(2),
		"include_transitive": true,
		"relationship_types": []interface{}{"IMPORTS", "CALLS"},
	})
	require.NoError(t, err)
	assert.Same(t, svc.depsResult, result)

	assert.Equal(t, graphquery.DependenciesRequest{
		EntityType:        graphquery.EntityFunction,
		EntityPath:        "src/api/server.ts",
		Repository:        "payments",
		Depth:             2,
		IncludeTransitive: true,
		RelationshipTypes: []models.RelationshipType{"IMPORTS", "CALLS"},
	}, svc.lastDeps)
}

func TestGetDependenciesRequiresEntityPath(t *testing.T) {
	tool := NewGetDependenciesTool(&fakeQuerier{}, nil)
	_, err := tool.Execute(context.Background(), map[string]interface{}{"repository": "payments"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entity_path is required")
}

func TestGetDependents(t *testing.T) {
	svc := &fakeQuerier{dependents: &graphquery.DependentsResult{}}
	resolver := &fakeResolver{repo: "payments"}
	tool := NewGetDependentsTool(svc, resolver)

	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"entity_path":    "src/models/user.ts",
		"workspace_path": "/home/dev/payments",
	})
	require.NoError(t, err)
	assert.Same(t, svc.dependents, result)
	assert.Equal(t, "payments", svc.lastDeps.Repository)
	assert.Equal(t, "src/models/user.ts", svc.lastDeps.EntityPath)
}

func TestGetPath(t *testing.T) {
	svc := &fakeQuerier{pathResult: &graphquery.PathResult{PathExists: true}}
	tool := NewGetPathTool(svc, nil)

	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"from_entity":        "src/api/server.ts",
		"to_entity":          "src/db/pool.ts",
		"repository":         "payments",
		"max_hops":           float64(4),
		"relationship_types": []interface{}{"IMPORTS"},
	})
	require.NoError(t, err)
	assert.Same(t, svc.pathResult, result)

	assert.Equal(t, graphquery.PathRequest{
		FromEntity:        "src/api/server.ts",
		ToEntity:          "src/db/pool.ts",
		Repository:        "payments",
		MaxHops:           4,
		RelationshipTypes: []models.RelationshipType{"IMPORTS"},
	}, svc.lastPath)
}

func TestGetPathRequiresEndpoints(t *testing.T) {
	tool := NewGetPathTool(&fakeQuerier{}, nil)
	for _, args := range []map[string]interface{}{
		{"to_entity": "b"},
		{"from_entity": "a"},
		{},
	} {
		_, err := tool.Execute(context.Background(), args)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "from_entity and to_entity are required")
	}
}

func TestGetArchitecture(t *testing.T) {
	svc := &fakeQuerier{archResult: &graphquery.ArchitectureResult{}}
	tool := NewGetArchitectureTool(svc, nil)

	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"repository":       "payments",
		"scope":            "src/services",
		"detail_level":     "files",
		"include_external": true,
	})
	require.NoError(t, err)
	assert.Same(t, svc.archResult, result)

	assert.Equal(t, graphquery.ArchitectureRequest{
		Repository:      "payments",
		Scope:           "src/services",
		DetailLevel:     graphquery.DetailFiles,
		IncludeExternal: true,
	}, svc.lastArch)
}

func TestGetArchitectureRequiresRepository(t *testing.T) {
	tool := NewGetArchitectureTool(&fakeQuerier{}, nil)
	_, err := tool.Execute(context.Background(), map[string]interface{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repository is required")
}

func TestGetContext(t *testing.T) {
	fetcher := &fakeFetcher{result: &graph.ContextResult{}}
	tool := NewGetContextTool(fetcher, nil)

	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"seeds":      []interface{}{"src/api/server.ts", "handleRequest"},
		"repository": "payments",
		"include":    []interface{}{"imports", "callers"},
		"limit":      float64(7),
	})
	require.NoError(t, err)
	assert.Same(t, fetcher.result, result)

	assert.Equal(t, graph.ContextQuery{
		Seeds:      []string{"src/api/server.ts", "handleRequest"},
		Repository: "payments",
		Include:    []graph.ContextKind{graph.ContextImports, graph.ContextCallers},
		Limit:      7,
	}, fetcher.lastQuery)
}

func TestGetContextRequiresSeeds(t *testing.T) {
	tool := NewGetContextTool(&fakeFetcher{}, nil)
	_, err := tool.Execute(context.Background(), map[string]interface{}{"repository": "payments"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seed entity is required")
}

func TestListRepositories(t *testing.T) {
	lister := &fakeLister{repos: []*models.RepositoryInfo{
		{Name: "payments", Status: models.RepoStatusReady},
		{Name: "billing", Status: models.RepoStatusReady},
		{Name: "broken", Status: models.RepoStatusError},
	}}
	tool := NewListRepositoriesTool(lister)

	result, err := tool.Execute(context.Background(), map[string]interface{}{})
	require.NoError(t, err)
	out := result.(map[string]interface{})
	assert.Equal(t, 3, out["count"])

	result, err = tool.Execute(context.Background(), map[string]interface{}{"status": "ready"})
	require.NoError(t, err)
	out = result.(map[string]interface{})
	assert.Equal(t, 2, out["count"])
	for _, repo := range out["repositories"].([]*models.RepositoryInfo) {
		assert.Equal(t, models.RepoStatusReady, repo.Status)
	}
}

func TestListRepositoriesError(t *testing.T) {
	tool := NewListRepositoriesTool(&fakeLister{err: fmt.Errorf("store offline")})
	_, err := tool.Execute(context.Background(), map[string]interface{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store offline")
}

func TestArgCoercion(t *testing.T) {
	args := map[string]interface{}{
		"float":  float64(3),
		"int":    4,
		"text":   "hello",
		"flag":   true,
		"mixed":  []interface{}{"a", 2, "", "b"},
		"typed":  []string{"x", "y"},
		"rubble": "not a list",
	}

	assert.Equal(t, 3, intArg(args, "float", 9))
	assert.Equal(t, 4, intArg(args, "int", 9))
	assert.Equal(t, 9, intArg(args, "missing", 9))
	assert.Equal(t, 9, intArg(args, "text", 9))

	assert.InDelta(t, 3.0, floatArg(args, "float", 9), 1e-9)
	assert.InDelta(t, 4.0, floatArg(args, "int", 9), 1e-9)
	assert.InDelta(t, 9.0, floatArg(args, "missing", 9), 1e-9)

	assert.Equal(t, "hello", stringArg(args, "text"))
	assert.Equal(t, "", stringArg(args, "missing"))
	assert.True(t, boolArg(args, "flag"))
	assert.False(t, boolArg(args, "missing"))

	assert.Equal(t, []string{"a", "b"}, stringListArg(args, "mixed"))
	assert.Equal(t, []string{"x", "y"}, stringListArg(args, "typed"))
	assert.Nil(t, stringListArg(args, "rubble"))
	assert.Nil(t, stringListArg(args, "missing"))
}

func TestRepositoryArg(t *testing.T) {
	ctx := context.Background()

	repo, err := repositoryArg(ctx, map[string]interface{}{"repository": "explicit"}, &fakeResolver{repo: "resolved"})
	require.NoError(t, err)
	assert.Equal(t, "explicit", repo)

	repo, err = repositoryArg(ctx, map[string]interface{}{"workspace_path": "/w"}, &fakeResolver{repo: "resolved"})
	require.NoError(t, err)
	assert.Equal(t, "resolved", repo)

	// No resolver wired: the workspace hint is ignored.
	repo, err = repositoryArg(ctx, map[string]interface{}{"workspace_path": "/w"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "", repo)

	repo, err = repositoryArg(ctx, map[string]interface{}{}, &fakeResolver{repo: "resolved"})
	require.NoError(t, err)
	assert.Equal(t, "", repo)
}
