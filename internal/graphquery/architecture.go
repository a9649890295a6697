package graphquery

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/codegraphhq/codegraph/internal/errors"
	"github.com/codegraphhq/codegraph/internal/graph"
	"github.com/codegraphhq/codegraph/internal/models"
)

type fileRow struct {
	path      string
	extension string
}

type entityRow struct {
	name  string
	label string
}

// GetArchitecture assembles a hierarchical view of a repository from its
// File nodes, at the requested detail level.
func (s *Service) GetArchitecture(ctx context.Context, req ArchitectureRequest) (*ArchitectureResult, error) {
	started := time.Now()
	if err := req.normalise(); err != nil {
		s.record(models.QueryGetArchitecture, req.Repository, started, 0, false, 0, err)
		return nil, err
	}

	key := cacheKey("getArchitecture", req)
	if cached, ok := s.cache.get(key); ok {
		result := cloneArchitectureResult(cached.(*ArchitectureResult))
		stampMetadata(result.Metadata, true, started)
		s.record(models.QueryGetArchitecture, req.Repository, started, 0, true, countTreeNodes(result.Root), nil)
		return result, nil
	}

	result, err := s.assembleArchitecture(ctx, req)
	if err != nil {
		err = s.classify(err, started)
		s.record(models.QueryGetArchitecture, req.Repository, started, 0, false, 0, err)
		return nil, err
	}

	s.cache.put(key, req.Repository, result)
	out := cloneArchitectureResult(result)
	stampMetadata(out.Metadata, false, started)
	s.record(models.QueryGetArchitecture, req.Repository, started, 0, false, countTreeNodes(out.Root), nil)
	return out, nil
}

func (s *Service) assembleArchitecture(ctx context.Context, req ArchitectureRequest) (*ArchitectureResult, error) {
	if err := s.ensureRepositoryExists(ctx, req.Repository); err != nil {
		return nil, err
	}

	files, err := s.fetchFiles(ctx, req)
	if err != nil {
		return nil, err
	}

	var entities map[string][]entityRow
	if req.DetailLevel == DetailEntities {
		entities, err = s.fetchEntities(ctx, req)
		if err != nil {
			return nil, err
		}
	}

	root := buildArchitectureTree(req.Repository, req.DetailLevel, files, entities)

	deps, err := s.fetchModuleDependencies(ctx, req)
	if err != nil {
		return nil, err
	}

	if req.IncludeExternal {
		externals, err := s.fetchExternalModules(ctx, req)
		if err != nil {
			return nil, err
		}
		for _, name := range externals {
			root.Children = append(root.Children, &ArchitectureNode{Name: name, Type: "external_module"})
		}
	}

	return &ArchitectureResult{
		Root:                    root,
		InterModuleDependencies: deps,
		Metadata: map[string]any{
			"repository":   req.Repository,
			"scope":        req.Scope,
			"detail_level": string(req.DetailLevel),
			"file_count":   len(files),
		},
	}, nil
}

func (s *Service) ensureRepositoryExists(ctx context.Context, repository string) error {
	b := graph.NewCypherBuilder()
	p := b.AddParam(repository)
	cypher := fmt.Sprintf("MATCH (r:Repository {name: %s}) RETURN r.name AS name LIMIT 1", p)
	records, err := s.run(ctx, cypher, b.Params())
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return errors.EntityNotFound("repository", repository)
	}
	return nil
}

func (s *Service) fetchFiles(ctx context.Context, req ArchitectureRequest) ([]fileRow, error) {
	b := graph.NewCypherBuilder()
	repoParam := b.AddParam(req.Repository)
	scope := ""
	if req.Scope != "" {
		scope = fmt.Sprintf(" AND f.path STARTS WITH %s", b.AddParam(req.Scope))
	}
	cypher := fmt.Sprintf(
		"MATCH (f:File) WHERE f.repository = %s%s RETURN f.path AS path, f.extension AS extension ORDER BY path",
		repoParam, scope)
	records, err := s.run(ctx, cypher, b.Params())
	if err != nil {
		return nil, err
	}
	files := make([]fileRow, 0, len(records))
	for _, rec := range records {
		row := fileRow{}
		if p, ok := rec["path"].(string); ok {
			row.path = p
		}
		if e, ok := rec["extension"].(string); ok {
			row.extension = e
		}
		if row.path != "" {
			files = append(files, row)
		}
	}
	return files, nil
}

func (s *Service) fetchEntities(ctx context.Context, req ArchitectureRequest) (map[string][]entityRow, error) {
	b := graph.NewCypherBuilder()
	repoParam := b.AddParam(req.Repository)
	scope := ""
	if req.Scope != "" {
		scope = fmt.Sprintf(" AND f.path STARTS WITH %s", b.AddParam(req.Scope))
	}
	cypher := fmt.Sprintf(
		"MATCH (f:File)-[:DEFINES]->(e) WHERE f.repository = %s%s "+
			"RETURN f.path AS path, labels(e) AS labels, e.name AS name ORDER BY path, e.startLine",
		repoParam, scope)
	records, err := s.run(ctx, cypher, b.Params())
	if err != nil {
		return nil, err
	}
	entities := make(map[string][]entityRow)
	for _, rec := range records {
		path, _ := rec["path"].(string)
		name, _ := rec["name"].(string)
		if path == "" || name == "" {
			continue
		}
		entities[path] = append(entities[path], entityRow{name: name, label: primaryLabel(rec["labels"])})
	}
	return entities, nil
}

// fetchModuleDependencies aggregates cross-file call edges by top-level
// directory. Calls within a single module are dropped.
func (s *Service) fetchModuleDependencies(ctx context.Context, req ArchitectureRequest) ([]ModuleDependency, error) {
	b := graph.NewCypherBuilder()
	repoParam := b.AddParam(req.Repository)
	cypher := fmt.Sprintf(
		"MATCH (f1:Function)-[:CALLS]->(f2:Function) "+
			"WHERE f1.repository = %s AND f2.repository = %s AND f1.filePath <> f2.filePath "+
			"RETURN f1.filePath AS fromPath, f2.filePath AS toPath, count(*) AS weight",
		repoParam, repoParam)
	records, err := s.run(ctx, cypher, b.Params())
	if err != nil {
		return nil, err
	}

	weights := make(map[string]map[string]int)
	for _, rec := range records {
		fromPath, _ := rec["fromPath"].(string)
		toPath, _ := rec["toPath"].(string)
		weight, _ := rec["weight"].(int64)
		from := topSegment(fromPath)
		to := topSegment(toPath)
		if from == to || fromPath == "" || toPath == "" {
			continue
		}
		if weights[from] == nil {
			weights[from] = make(map[string]int)
		}
		weights[from][to] += int(weight)
	}

	deps := make([]ModuleDependency, 0, len(weights))
	for from, targets := range weights {
		for to, weight := range targets {
			deps = append(deps, ModuleDependency{FromModule: from, ToModule: to, Weight: weight})
		}
	}
	sort.Slice(deps, func(i, j int) bool {
		if deps[i].FromModule != deps[j].FromModule {
			return deps[i].FromModule < deps[j].FromModule
		}
		return deps[i].ToModule < deps[j].ToModule
	})
	return deps, nil
}

func (s *Service) fetchExternalModules(ctx context.Context, req ArchitectureRequest) ([]string, error) {
	b := graph.NewCypherBuilder()
	repoParam := b.AddParam(req.Repository)
	cypher := fmt.Sprintf(
		"MATCH (f:File)-[:IMPORTS]->(m:Module) WHERE f.repository = %s RETURN DISTINCT m.name AS name ORDER BY name",
		repoParam)
	records, err := s.run(ctx, cypher, b.Params())
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(records))
	for _, rec := range records {
		if name, ok := rec["name"].(string); ok && name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// buildArchitectureTree folds sorted file paths into a directory tree and
// then trims it to the requested detail level.
func buildArchitectureTree(repository string, level DetailLevel, files []fileRow, entities map[string][]entityRow) *ArchitectureNode {
	root := &ArchitectureNode{
		Name:    repository,
		Type:    "repository",
		Metrics: map[string]any{"file_count": 0},
	}
	index := map[string]*ArchitectureNode{"": root}

	for _, f := range files {
		segments := strings.Split(f.path, "/")
		dirs := segments[:len(segments)-1]

		parent := root
		prefix := ""
		bumpFileCount(root)
		for _, dir := range dirs {
			if prefix == "" {
				prefix = dir
			} else {
				prefix = prefix + "/" + dir
			}
			node, ok := index[prefix]
			if !ok {
				node = &ArchitectureNode{
					Name:    dir,
					Type:    "module",
					Path:    prefix,
					Metrics: map[string]any{"file_count": 0},
				}
				index[prefix] = node
				parent.Children = append(parent.Children, node)
			}
			bumpFileCount(node)
			parent = node
		}

		if level == DetailFiles || level == DetailEntities {
			fileNode := &ArchitectureNode{
				Name: segments[len(segments)-1],
				Type: "file",
				Path: f.path,
			}
			if level == DetailEntities {
				for _, e := range entities[f.path] {
					fileNode.Children = append(fileNode.Children, &ArchitectureNode{
						Name: e.name,
						Type: e.label,
						Path: f.path,
					})
				}
			}
			parent.Children = append(parent.Children, fileNode)
		}
	}

	if level == DetailPackages {
		collapseToPackages(root)
	}
	return root
}

func bumpFileCount(node *ArchitectureNode) {
	if node.Metrics == nil {
		node.Metrics = map[string]any{"file_count": 0}
	}
	if n, ok := node.Metrics["file_count"].(int); ok {
		node.Metrics["file_count"] = n + 1
	}
}

// collapseToPackages keeps only the top-level directories, relabelled as
// packages with their subtree file counts intact.
func collapseToPackages(root *ArchitectureNode) {
	packages := make([]*ArchitectureNode, 0, len(root.Children))
	for _, child := range root.Children {
		if child.Type != "module" {
			continue
		}
		child.Type = "package"
		child.Children = nil
		packages = append(packages, child)
	}
	root.Children = packages
}

// topSegment names the module a file belongs to. Files at the repository
// root fall into ".".
func topSegment(path string) string {
	if i := strings.IndexByte(path, '/'); i > 0 {
		return path[:i]
	}
	return "."
}

func primaryLabel(raw any) string {
	switch labels := raw.(type) {
	case []any:
		for _, l := range labels {
			if s, ok := l.(string); ok && s != "Entity" {
				return strings.ToLower(s)
			}
		}
	case []string:
		for _, l := range labels {
			if l != "Entity" {
				return strings.ToLower(l)
			}
		}
	}
	return "entity"
}

func countTreeNodes(root *ArchitectureNode) int {
	if root == nil {
		return 0
	}
	count := 1
	for _, child := range root.Children {
		count += countTreeNodes(child)
	}
	return count
}

// cloneArchitectureResult deep-copies the tree; the architecture
// surface reports detail_level in place of repositories_searched, so
// only the tree and metadata need owning copies.
func cloneArchitectureResult(r *ArchitectureResult) *ArchitectureResult {
	out := *r
	out.Root = cloneArchitectureNode(r.Root)
	out.InterModuleDependencies = append([]ModuleDependency(nil), r.InterModuleDependencies...)
	out.Metadata = cloneMetadata(r.Metadata)
	return &out
}

func cloneArchitectureNode(node *ArchitectureNode) *ArchitectureNode {
	if node == nil {
		return nil
	}
	out := *node
	out.Metrics = cloneProperties(node.Metrics)
	if node.Children != nil {
		out.Children = make([]*ArchitectureNode, len(node.Children))
		for i, child := range node.Children {
			out.Children[i] = cloneArchitectureNode(child)
		}
	}
	return &out
}
