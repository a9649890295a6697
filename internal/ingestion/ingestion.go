// Package ingestion turns a repository working tree into the code graph.
// It scans and parses source files, maps the extracted entities onto graph
// nodes and relationships, and writes them through the graph adapter in
// batches.
package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/codegraphhq/codegraph/internal/chunking"
	"github.com/codegraphhq/codegraph/internal/errors"
	"github.com/codegraphhq/codegraph/internal/graph"
	"github.com/codegraphhq/codegraph/internal/logging"
	"github.com/codegraphhq/codegraph/internal/scanner"
	"github.com/codegraphhq/codegraph/internal/treesitter"
)

const (
	// DefaultWorkers is the number of concurrent parse workers.
	DefaultWorkers = 20
	// DefaultBatchSize caps nodes or relationships per graph write.
	DefaultBatchSize = 100
)

// Config tunes a GraphBuilder.
type Config struct {
	Workers   int // concurrent parse workers
	BatchSize int // nodes/relationships per graph write
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	return c
}

// PopulateJob describes one repository ingestion run.
type PopulateJob struct {
	Repository string // repository name, the graph identity key
	URL        string // origin URL stored on the Repository node
	LocalPath  string // working tree to scan
	// Filter selects the files to ingest; nil admits everything the
	// scanner finds.
	Filter *scanner.Filter
	// Force drops the repository's existing graph before building.
	Force bool
}

// BuildStats counts the work done by one Populate run.
type BuildStats struct {
	FilesTotal    int
	FilesParsed   int
	FilesFailed   int
	EntitiesTotal int
	Functions     int
	Classes       int
	Imports       int
	Chunks        int
	Nodes         int
	Relationships int
	Duration      time.Duration
	Errors        []error
}

// GraphBuilder maps parsed source files onto the code graph. One builder
// may run any number of Populate jobs.
type GraphBuilder struct {
	adapter graph.Adapter
	chunker *chunking.Chunker
	cfg     Config
	log     *slog.Logger
}

// NewGraphBuilder wires a builder to a connected graph adapter.
func NewGraphBuilder(adapter graph.Adapter, cfg Config) *GraphBuilder {
	return &GraphBuilder{
		adapter: adapter,
		chunker: chunking.NewChunker(0),
		cfg:     cfg.withDefaults(),
		log:     logging.ForComponent("ingestion"),
	}
}

// fileArtifact is everything extracted from one file on disk. parse is
// nil for files no grammar covers; they still become File and Chunk
// nodes so the architecture tree and the vector bridge stay complete.
type fileArtifact struct {
	path   string // repository-relative POSIX path
	hash   string // sha256 of the content
	size   int64
	mtime  time.Time
	parse  *treesitter.FileParse
	chunks []chunkRef
}

type chunkRef struct {
	id    string
	index int
}

// Populate scans, parses and writes one repository's code graph. Per-file
// failures are collected into the returned stats, never raised; an error
// return means the run as a whole could not proceed.
func (b *GraphBuilder) Populate(ctx context.Context, job PopulateJob) (*BuildStats, error) {
	started := time.Now()
	if job.Repository == "" {
		return nil, errors.Validation("repository name is required")
	}
	if job.LocalPath == "" {
		return nil, errors.Validation("repository local path is required")
	}
	filter := job.Filter
	if filter == nil {
		var err error
		filter, err = scanner.NewFilter(nil, nil)
		if err != nil {
			return nil, err
		}
	}

	paths, err := scanner.Scan(job.LocalPath, filter)
	if err != nil {
		return nil, errors.Operation(err, "repository scan failed", false)
	}

	b.log.Info("starting graph population",
		"repository", job.Repository,
		"path", job.LocalPath,
		"files", len(paths),
		"workers", b.cfg.Workers,
		"force", job.Force,
	)

	if job.Force {
		if err := b.Drop(ctx, job.Repository); err != nil {
			return nil, err
		}
	}

	artifacts, parseErrors := b.parseFiles(ctx, job, paths)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stats := &BuildStats{
		FilesTotal:  len(paths),
		FilesParsed: len(artifacts),
		FilesFailed: len(parseErrors),
		Errors:      parseErrors,
	}

	b.log.Info("parsing complete",
		"parsed", stats.FilesParsed,
		"failed", stats.FilesFailed,
	)

	data := b.transform(job, artifacts)
	stats.Functions = data.functions
	stats.Classes = data.classes
	stats.Imports = data.imports
	stats.Chunks = data.chunks
	stats.EntitiesTotal = data.functions + data.classes + data.imports

	b.log.Info("entities extracted",
		"total", stats.EntitiesTotal,
		"functions", stats.Functions,
		"classes", stats.Classes,
		"imports", stats.Imports,
		"chunks", stats.Chunks,
	)

	nodes, rels, err := b.write(ctx, job.Repository, data)
	if err != nil {
		return nil, err
	}
	stats.Nodes = nodes
	stats.Relationships = rels
	stats.Duration = time.Since(started)

	b.log.Info("graph population complete",
		"repository", job.Repository,
		"nodes", stats.Nodes,
		"relationships", stats.Relationships,
		"duration", stats.Duration,
	)
	return stats, nil
}

// parseFiles loads and parses files with a worker pool. Each worker owns
// its own parser because tree-sitter parsers are single-threaded.
func (b *GraphBuilder) parseFiles(ctx context.Context, job PopulateJob, paths []string) ([]*fileArtifact, []error) {
	files := make(chan string)
	go func() {
		defer close(files)
		for _, p := range paths {
			select {
			case files <- p:
			case <-ctx.Done():
				return
			}
		}
	}()

	results := make(chan *fileArtifact, b.cfg.Workers)
	errs := make(chan error, b.cfg.Workers)

	var wg sync.WaitGroup
	for w := 0; w < b.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			parser := treesitter.NewParser()
			defer parser.Close()

			for rel := range files {
				artifact, err := b.loadFile(parser, job, rel)
				if err != nil {
					errs <- fmt.Errorf("%s: %w", rel, err)
				} else {
					results <- artifact
				}

				select {
				case <-ctx.Done():
					return
				default:
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
		close(errs)
	}()

	var artifacts []*fileArtifact
	var parseErrors []error
	for results != nil || errs != nil {
		select {
		case artifact, ok := <-results:
			if !ok {
				results = nil
				continue
			}
			artifacts = append(artifacts, artifact)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			parseErrors = append(parseErrors, err)
		}
	}

	// Worker completion order is nondeterministic; sort so node and edge
	// construction is stable.
	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].path < artifacts[j].path })
	return artifacts, parseErrors
}

func (b *GraphBuilder) loadFile(parser *treesitter.Parser, job PopulateJob, rel string) (*fileArtifact, error) {
	abs := filepath.Join(job.LocalPath, filepath.FromSlash(rel))
	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}

	size := int64(len(content))
	var mtime time.Time
	if info, err := os.Stat(abs); err == nil {
		size = info.Size()
		mtime = info.ModTime()
	}

	sum := sha256.Sum256(content)
	artifact := &fileArtifact{
		path:  rel,
		hash:  hex.EncodeToString(sum[:]),
		size:  size,
		mtime: mtime,
	}
	for _, chunk := range b.chunker.ChunkFile(job.Repository, rel, content, chunking.FileInfo{SizeBytes: size, ModifiedAt: mtime}) {
		artifact.chunks = append(artifact.chunks, chunkRef{id: chunk.ID, index: chunk.ChunkIndex})
	}

	if treesitter.Supported(rel) {
		parse, err := parser.Parse(rel, content)
		if err != nil {
			return nil, err
		}
		artifact.parse = parse
	}
	return artifact, nil
}
