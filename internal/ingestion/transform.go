package ingestion

import (
	"path"
	"sort"
	"strings"
	"time"

	"github.com/codegraphhq/codegraph/internal/models"
	"github.com/codegraphhq/codegraph/internal/treesitter"
)

// nodeKey identifies a node by its label and identity properties, before
// backend ids exist. Repository, Module and Chunk nodes leave filePath
// empty; File nodes leave name empty.
type nodeKey struct {
	label    string
	filePath string
	name     string
}

type edgeSpec struct {
	relType models.RelationshipType
	from    nodeKey
	to      nodeKey
}

// graphData is the transform output: every node and edge one Populate
// run writes, plus the counters the stats report.
type graphData struct {
	nodes []*models.GraphNode
	edges []edgeSpec

	functions int
	classes   int
	imports   int
	chunks    int
}

// entityRef locates one indexed entity for call and heritage resolution.
type entityRef struct {
	key nodeKey
}

type pendingCall struct {
	from     nodeKey
	filePath string
	callee   string
}

type pendingHeritage struct {
	relType  models.RelationshipType
	from     nodeKey
	filePath string
	target   string
}

// transform maps parsed artifacts onto graph nodes and edge specs. It is
// pure: all writes happen later, keyed by the identity properties set here.
func (b *GraphBuilder) transform(job PopulateJob, artifacts []*fileArtifact) *graphData {
	data := &graphData{}
	repoKey := nodeKey{label: models.LabelRepository, name: job.Repository}
	data.nodes = append(data.nodes, models.NewRepositoryNode(job.Repository, job.URL, time.Now().UTC(), models.RepoStatusReady))

	fileSet := make(map[string]bool, len(artifacts))
	for _, a := range artifacts {
		fileSet[a.path] = true
	}

	functionsByName := map[string][]entityRef{}
	methodsByShort := map[string][]entityRef{}
	classesByName := map[string][]entityRef{}
	moduleNodes := map[string]*models.GraphNode{}

	var calls []pendingCall
	var heritage []pendingHeritage

	for _, a := range artifacts {
		fileKey := nodeKey{label: models.LabelFile, filePath: a.path}
		ext := strings.ToLower(path.Ext(a.path))
		data.nodes = append(data.nodes, models.NewFileNode(job.Repository, a.path, ext, a.hash))
		data.edges = append(data.edges,
			edgeSpec{relType: models.RelContains, from: repoKey, to: fileKey},
			edgeSpec{relType: models.RelBelongsTo, from: fileKey, to: repoKey},
		)

		for _, chunk := range a.chunks {
			chunkKey := nodeKey{label: models.LabelChunk, name: chunk.id}
			data.nodes = append(data.nodes, models.NewChunkNode(chunk.id, chunk.index, a.path, job.Repository))
			data.edges = append(data.edges, edgeSpec{relType: models.RelContains, from: fileKey, to: chunkKey})
			data.chunks++
		}

		if a.parse == nil {
			continue
		}

		for _, e := range a.parse.Entities {
			switch e.Kind {
			case treesitter.KindFunction, treesitter.KindMethod:
				key := nodeKey{label: models.LabelFunction, filePath: a.path, name: e.Name}
				data.nodes = append(data.nodes, models.NewFunctionNode(job.Repository, a.path, e.Name, e.Signature, e.StartLine, e.EndLine))
				data.edges = append(data.edges, edgeSpec{relType: models.RelDefines, from: fileKey, to: key})
				data.functions++

				functionsByName[e.Name] = append(functionsByName[e.Name], entityRef{key: key})
				if e.Kind == treesitter.KindMethod {
					if i := strings.LastIndex(e.Name, "."); i >= 0 {
						short := e.Name[i+1:]
						methodsByShort[short] = append(methodsByShort[short], entityRef{key: key})
					}
				}
				for _, callee := range e.Calls {
					calls = append(calls, pendingCall{from: key, filePath: a.path, callee: callee})
				}

			case treesitter.KindClass, treesitter.KindInterface:
				key := nodeKey{label: models.LabelClass, filePath: a.path, name: e.Name}
				data.nodes = append(data.nodes, models.NewClassNode(job.Repository, a.path, e.Name, classType(e), e.StartLine, e.EndLine))
				data.edges = append(data.edges, edgeSpec{relType: models.RelDefines, from: fileKey, to: key})
				data.classes++

				classesByName[e.Name] = append(classesByName[e.Name], entityRef{key: key})
				for _, target := range e.Extends {
					heritage = append(heritage, pendingHeritage{relType: models.RelExtends, from: key, filePath: a.path, target: target})
				}
				for _, target := range e.Implements {
					heritage = append(heritage, pendingHeritage{relType: models.RelImplements, from: key, filePath: a.path, target: target})
				}
			}
		}

		for _, imp := range a.parse.Imports {
			data.imports++
			if isRelativeImport(a.parse.Language, imp.Path) {
				if target, ok := resolveRelativeImport(a.parse.Language, a.path, imp.Path, fileSet); ok {
					data.edges = append(data.edges, edgeSpec{
						relType: models.RelReferences,
						from:    fileKey,
						to:      nodeKey{label: models.LabelFile, filePath: target},
					})
				}
				continue
			}
			name, moduleType := classifyModule(a.parse.Language, imp.Path)
			if name == "" {
				continue
			}
			if _, seen := moduleNodes[name]; !seen {
				moduleNodes[name] = models.NewModuleNode(name, moduleType, "")
			}
			data.edges = append(data.edges, edgeSpec{
				relType: models.RelImports,
				from:    fileKey,
				to:      nodeKey{label: models.LabelModule, name: name},
			})
		}
	}

	names := make([]string, 0, len(moduleNodes))
	for name := range moduleNodes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		data.nodes = append(data.nodes, moduleNodes[name])
	}

	for _, call := range calls {
		if to, ok := resolveCallee(call, functionsByName, methodsByShort); ok {
			data.edges = append(data.edges, edgeSpec{relType: models.RelCalls, from: call.from, to: to})
		}
	}
	for _, h := range heritage {
		if to, ok := resolveClass(h.target, h.filePath, classesByName); ok {
			data.edges = append(data.edges, edgeSpec{relType: h.relType, from: h.from, to: to})
		}
	}

	return data
}

// classType folds an extracted declaration into the Class node type
// property. The extractor prefixes type alias and enum signatures.
func classType(e treesitter.Entity) string {
	switch {
	case e.Kind == treesitter.KindInterface:
		return "interface"
	case strings.HasPrefix(e.Signature, "enum "):
		return "enum"
	case strings.HasPrefix(e.Signature, "type "):
		return "type"
	default:
		return "class"
	}
}

// resolveCallee links a call site to a function node. Same-file matches
// win; otherwise a repo-wide match must be unique. Bare names that only
// exist as methods resolve within the defining file.
func resolveCallee(call pendingCall, byName, byShort map[string][]entityRef) (nodeKey, bool) {
	if refs := byName[call.callee]; len(refs) > 0 {
		if key, ok := uniqueInFile(refs, call.filePath); ok {
			return key, true
		}
		if len(refs) == 1 {
			return refs[0].key, true
		}
		return nodeKey{}, false
	}
	if refs := byShort[call.callee]; len(refs) > 0 {
		return uniqueInFile(refs, call.filePath)
	}
	return nodeKey{}, false
}

// resolveClass links a heritage clause to a class node, trying the exact
// name first and the final dotted segment second.
func resolveClass(name, filePath string, byName map[string][]entityRef) (nodeKey, bool) {
	for _, candidate := range heritageCandidates(name) {
		refs := byName[candidate]
		if len(refs) == 0 {
			continue
		}
		if key, ok := uniqueInFile(refs, filePath); ok {
			return key, true
		}
		if len(refs) == 1 {
			return refs[0].key, true
		}
	}
	return nodeKey{}, false
}

func heritageCandidates(name string) []string {
	candidates := []string{name}
	if i := strings.LastIndex(name, "."); i >= 0 && i+1 < len(name) {
		candidates = append(candidates, name[i+1:])
	}
	return candidates
}

func uniqueInFile(refs []entityRef, filePath string) (nodeKey, bool) {
	var found nodeKey
	count := 0
	for _, r := range refs {
		if r.key.filePath == filePath {
			found = r.key
			count++
		}
	}
	if count == 1 {
		return found, true
	}
	return nodeKey{}, false
}
