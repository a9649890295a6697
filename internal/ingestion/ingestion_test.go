package ingestion

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codegraphhq/codegraph/internal/chunking"
	"github.com/codegraphhq/codegraph/internal/errors"
	"github.com/codegraphhq/codegraph/internal/graph"
	"github.com/codegraphhq/codegraph/internal/models"
)

type storedNode struct {
	id    int64
	label string
	props map[string]any
}

// fakeGraph emulates the adapter's merge semantics: nodes are keyed by
// their identity properties and keep their id across upserts.
type fakeGraph struct {
	graph.Adapter

	nextID    int64
	nodes     map[string]*storedNode
	rels      []*models.GraphRelationship
	ops       []string
	upsertErr error
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{nodes: map[string]*storedNode{}}
}

func (f *fakeGraph) Backend() graph.Backend { return graph.BackendFalkorDB }

func (f *fakeGraph) UpsertNodes(_ context.Context, nodes []*models.GraphNode) (int, error) {
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	label := ""
	for _, node := range nodes {
		label = node.PrimaryLabel()
		f.upsert(node)
	}
	f.ops = append(f.ops, fmt.Sprintf("upsert:%s:%d", label, len(nodes)))
	return len(nodes), nil
}

func (f *fakeGraph) upsert(node *models.GraphNode) *storedNode {
	key := fakeIdentityKey(node.PrimaryLabel(), node.Properties)
	if existing, ok := f.nodes[key]; ok {
		existing.props = node.Properties
		return existing
	}
	f.nextID++
	stored := &storedNode{id: f.nextID, label: node.PrimaryLabel(), props: node.Properties}
	f.nodes[key] = stored
	return stored
}

func (f *fakeGraph) CreateRelationships(_ context.Context, rels []*models.GraphRelationship) (int, error) {
	f.rels = append(f.rels, rels...)
	f.ops = append(f.ops, fmt.Sprintf("rels:%d", len(rels)))
	return len(rels), nil
}

func (f *fakeGraph) RunQuery(_ context.Context, cypher string, params map[string]any) ([]graph.Record, error) {
	switch {
	case strings.Contains(cypher, "DETACH DELETE n"):
		f.ops = append(f.ops, "drop-nodes")
		for key, node := range f.nodes {
			if propString(node.props, "repository") == soleParam(params) {
				delete(f.nodes, key)
			}
		}
		return nil, nil
	case strings.Contains(cypher, "DETACH DELETE r"):
		f.ops = append(f.ops, "drop-repo")
		for key, node := range f.nodes {
			if node.label == models.LabelRepository && propString(node.props, "name") == soleParam(params) {
				delete(f.nodes, key)
			}
		}
		return nil, nil
	case strings.Contains(cypher, "DELETE m"):
		f.ops = append(f.ops, "drop-modules")
		imported := map[string]bool{}
		for _, rel := range f.rels {
			if rel.Type == models.RelImports {
				imported[rel.ToID] = true
			}
		}
		for key, node := range f.nodes {
			if node.label == models.LabelModule && !imported[strconv.FormatInt(node.id, 10)] {
				delete(f.nodes, key)
			}
		}
		return nil, nil
	}

	for _, label := range []string{
		models.LabelRepository, models.LabelFile, models.LabelFunction,
		models.LabelClass, models.LabelModule, models.LabelChunk,
	} {
		if !strings.Contains(cypher, ":"+label+")") {
			continue
		}
		f.ops = append(f.ops, "idmap:"+label)
		var records []graph.Record
		for _, node := range f.nodes {
			if node.label != label {
				continue
			}
			if strings.Contains(cypher, "WHERE") && propString(node.props, "repository") != soleParam(params) {
				continue
			}
			rec := graph.Record{"id": node.id}
			switch label {
			case models.LabelRepository, models.LabelModule:
				rec["name"] = node.props["name"]
			case models.LabelFile:
				rec["path"] = node.props["path"]
			case models.LabelFunction, models.LabelClass:
				rec["path"] = node.props["filePath"]
				rec["name"] = node.props["name"]
			case models.LabelChunk:
				rec["chromaId"] = node.props["chromaId"]
			}
			records = append(records, rec)
		}
		return records, nil
	}
	return nil, fmt.Errorf("unexpected cypher: %s", cypher)
}

func fakeIdentityKey(label string, props map[string]any) string {
	switch label {
	case models.LabelRepository, models.LabelModule:
		return label + "|" + propString(props, "name")
	case models.LabelFile:
		return label + "|" + propString(props, "repository") + "|" + propString(props, "path")
	case models.LabelFunction, models.LabelClass:
		return label + "|" + propString(props, "repository") + "|" + propString(props, "filePath") + "|" + propString(props, "name")
	case models.LabelChunk:
		return label + "|" + propString(props, "chromaId")
	}
	return label
}

func propString(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

func soleParam(params map[string]any) string {
	for _, v := range params {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func (f *fakeGraph) findNode(t *testing.T, label string, match map[string]any) *storedNode {
	t.Helper()
	for _, node := range f.nodes {
		if node.label != label {
			continue
		}
		found := true
		for k, v := range match {
			if node.props[k] != v {
				found = false
				break
			}
		}
		if found {
			return node
		}
	}
	t.Fatalf("node %s %v not found", label, match)
	return nil
}

func (f *fakeGraph) hasRel(relType models.RelationshipType, from, to *storedNode) bool {
	fromID := strconv.FormatInt(from.id, 10)
	toID := strconv.FormatInt(to.id, 10)
	for _, rel := range f.rels {
		if rel.Type == relType && rel.FromID == fromID && rel.ToID == toID {
			return true
		}
	}
	return false
}

func (f *fakeGraph) countByLabel(label string) int {
	count := 0
	for _, node := range f.nodes {
		if node.label == label {
			count++
		}
	}
	return count
}

func writeFixtureRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"src/app.ts": `import { connect } from "./db";
import express from "express";

export function main() {
  const conn = connect();
  serve(conn);
}

export function serve(conn) {
  console.log(conn);
}
`,
		"src/db.ts": `import fs from "node:fs";

export function connect() {
  return fs.readFileSync("config");
}
`,
		"src/lib/util.ts": `import { connect } from "../db";

export function helper() {
  return connect();
}
`,
		"models.py": `import os

class Base:
    def save(self):
        return os.getcwd()

class User(Base):
    def run(self):
        return self.save()
`,
		"README.md": "# demo\n",
	}
	for rel, content := range files {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	}
	return root
}

func TestGraphBuilder_PopulateBuildsRepositoryGraph(t *testing.T) {
	fake := newFakeGraph()
	builder := NewGraphBuilder(fake, Config{Workers: 2, BatchSize: 3})

	stats, err := builder.Populate(context.Background(), PopulateJob{
		Repository: "demo",
		URL:        "https://example.com/demo.git",
		LocalPath:  writeFixtureRepo(t),
	})
	require.NoError(t, err, "populate should succeed")

	assert.Equal(t, 5, stats.FilesTotal)
	assert.Equal(t, 5, stats.FilesParsed)
	assert.Equal(t, 0, stats.FilesFailed)
	assert.Equal(t, 6, stats.Functions)
	assert.Equal(t, 2, stats.Classes)
	assert.Equal(t, 5, stats.Imports)
	assert.Equal(t, 5, stats.Chunks)
	assert.Equal(t, 13, stats.EntitiesTotal)
	assert.Equal(t, 22, stats.Nodes)
	assert.Equal(t, 33, stats.Relationships)
	assert.Empty(t, stats.Errors)

	assert.Equal(t, 1, fake.countByLabel(models.LabelRepository))
	assert.Equal(t, 5, fake.countByLabel(models.LabelFile))
	assert.Equal(t, 6, fake.countByLabel(models.LabelFunction))
	assert.Equal(t, 2, fake.countByLabel(models.LabelClass))
	assert.Equal(t, 3, fake.countByLabel(models.LabelModule))
	assert.Equal(t, 5, fake.countByLabel(models.LabelChunk))

	repo := fake.findNode(t, models.LabelRepository, map[string]any{"name": "demo"})
	assert.Equal(t, "https://example.com/demo.git", repo.props["url"])

	app := fake.findNode(t, models.LabelFile, map[string]any{"path": "src/app.ts"})
	assert.Equal(t, ".ts", app.props["extension"])
	assert.Len(t, propString(app.props, "hash"), 64)

	db := fake.findNode(t, models.LabelFile, map[string]any{"path": "src/db.ts"})
	util := fake.findNode(t, models.LabelFile, map[string]any{"path": "src/lib/util.ts"})
	pyFile := fake.findNode(t, models.LabelFile, map[string]any{"path": "models.py"})

	main := fake.findNode(t, models.LabelFunction, map[string]any{"name": "main"})
	serve := fake.findNode(t, models.LabelFunction, map[string]any{"name": "serve"})
	connect := fake.findNode(t, models.LabelFunction, map[string]any{"name": "connect"})
	run := fake.findNode(t, models.LabelFunction, map[string]any{"name": "User.run"})
	save := fake.findNode(t, models.LabelFunction, map[string]any{"name": "Base.save"})
	assert.Equal(t, "models.py", run.props["filePath"])

	base := fake.findNode(t, models.LabelClass, map[string]any{"name": "Base"})
	user := fake.findNode(t, models.LabelClass, map[string]any{"name": "User"})
	assert.Equal(t, "class", user.props["type"])

	express := fake.findNode(t, models.LabelModule, map[string]any{"name": "express"})
	assert.Equal(t, "npm", express.props["type"])
	fsMod := fake.findNode(t, models.LabelModule, map[string]any{"name": "fs"})
	assert.Equal(t, "builtin", fsMod.props["type"])
	osMod := fake.findNode(t, models.LabelModule, map[string]any{"name": "os"})
	assert.Equal(t, "builtin", osMod.props["type"])

	readmeChunk := fake.findNode(t, models.LabelChunk, map[string]any{
		"chromaId": chunking.ChunkID("demo", "README.md", 0),
	})

	assert.True(t, fake.hasRel(models.RelContains, repo, app), "repository should contain files")
	assert.True(t, fake.hasRel(models.RelBelongsTo, app, repo), "files should belong to the repository")
	readme := fake.findNode(t, models.LabelFile, map[string]any{"path": "README.md"})
	assert.True(t, fake.hasRel(models.RelContains, readme, readmeChunk), "files should contain their chunks")
	assert.True(t, fake.hasRel(models.RelDefines, app, main))
	assert.True(t, fake.hasRel(models.RelDefines, pyFile, user))
	assert.True(t, fake.hasRel(models.RelImports, app, express))
	assert.True(t, fake.hasRel(models.RelReferences, app, db), "relative import should reference the target file")
	assert.True(t, fake.hasRel(models.RelReferences, util, db), "parent-relative import should resolve")
	assert.True(t, fake.hasRel(models.RelCalls, main, serve), "same-file call should link")
	assert.True(t, fake.hasRel(models.RelCalls, main, connect), "unique cross-file call should link")
	assert.True(t, fake.hasRel(models.RelCalls, run, save), "method short-name call should resolve in-file")
	assert.True(t, fake.hasRel(models.RelExtends, user, base))
}

func TestGraphBuilder_ReparseKeepsNodeIdentity(t *testing.T) {
	fake := newFakeGraph()
	builder := NewGraphBuilder(fake, Config{Workers: 2})
	root := writeFixtureRepo(t)
	job := PopulateJob{Repository: "demo", LocalPath: root}

	_, err := builder.Populate(context.Background(), job)
	require.NoError(t, err)
	appBefore := fake.findNode(t, models.LabelFile, map[string]any{"path": "src/app.ts"}).id
	mainBefore := fake.findNode(t, models.LabelFunction, map[string]any{"name": "main"}).id
	total := len(fake.nodes)

	_, err = builder.Populate(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, total, len(fake.nodes), "reparse should not duplicate nodes")
	assert.Equal(t, appBefore, fake.findNode(t, models.LabelFile, map[string]any{"path": "src/app.ts"}).id)
	assert.Equal(t, mainBefore, fake.findNode(t, models.LabelFunction, map[string]any{"name": "main"}).id)
}

func TestGraphBuilder_ForceDropsExistingGraph(t *testing.T) {
	fake := newFakeGraph()
	fake.upsert(models.NewFileNode("demo", "stale/old.ts", ".ts", "deadbeef"))
	fake.upsert(models.NewModuleNode("leftover", "npm", ""))

	builder := NewGraphBuilder(fake, Config{Workers: 2})
	_, err := builder.Populate(context.Background(), PopulateJob{
		Repository: "demo",
		LocalPath:  writeFixtureRepo(t),
		Force:      true,
	})
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(fake.ops), 3)
	assert.Equal(t, []string{"drop-nodes", "drop-repo", "drop-modules"}, fake.ops[:3],
		"force should drop before any write")

	for _, node := range fake.nodes {
		assert.NotEqual(t, "stale/old.ts", node.props["path"], "stale file should be gone")
		assert.NotEqual(t, "leftover", node.props["name"])
	}
}

func TestGraphBuilder_ValidationErrors(t *testing.T) {
	builder := NewGraphBuilder(newFakeGraph(), Config{})

	_, err := builder.Populate(context.Background(), PopulateJob{LocalPath: "/tmp/x"})
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))

	_, err = builder.Populate(context.Background(), PopulateJob{Repository: "demo"})
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
}

func TestGraphBuilder_WriteFailureSurfaces(t *testing.T) {
	fake := newFakeGraph()
	fake.upsertErr = errors.Operation(fmt.Errorf("connection reset"), "graph write failed", true)

	builder := NewGraphBuilder(fake, Config{Workers: 2})
	stats, err := builder.Populate(context.Background(), PopulateJob{
		Repository: "demo",
		LocalPath:  writeFixtureRepo(t),
	})
	require.Error(t, err)
	assert.Nil(t, stats)
	assert.Equal(t, errors.KindOperation, errors.KindOf(err))
}
