// Package pipeline applies file-level diffs to the vector store: read,
// chunk, embed and upsert for surviving paths, cascading deletes for the
// rest. One bad file never aborts a batch.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/codegraphhq/codegraph/internal/chunking"
	"github.com/codegraphhq/codegraph/internal/errors"
	"github.com/codegraphhq/codegraph/internal/models"
	"github.com/codegraphhq/codegraph/internal/scanner"
)

// EmbeddingBatchSize caps the texts sent to the provider in one call,
// the lowest common maximum across providers.
const EmbeddingBatchSize = 100

// BatchErrorPath is the synthetic path recorded when the cross-file
// embedding/storage stage fails, as opposed to a single file.
const BatchErrorPath = "(batch embedding/storage)"

// UpdateOptions scopes one ProcessChanges run. CollectionName documents
// which vector collection the batch targets; the store itself is bound
// to its collection at construction.
type UpdateOptions struct {
	Repository        string
	LocalPath         string
	CollectionName    string
	IncludeExtensions []string
	ExcludePatterns   []string
}

// Embedder is the slice of the embedding provider the pipeline uses.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore is the slice of the vector backend the pipeline uses.
type VectorStore interface {
	Upsert(ctx context.Context, docs []models.DocumentInput) (int, error)
	DeleteByFile(ctx context.Context, repository, filePath string) (int, error)
}

// Pipeline incrementally updates a repository's stored chunks.
type Pipeline struct {
	store    VectorStore
	embedder Embedder
	chunker  *chunking.Chunker
	logger   *logrus.Logger
}

// New creates a pipeline over the given backends.
func New(store VectorStore, embedder Embedder, logger *logrus.Logger) *Pipeline {
	return &Pipeline{
		store:    store,
		embedder: embedder,
		chunker:  chunking.NewChunker(0),
		logger:   logger,
	}
}

// ProcessChanges applies a change batch. Changes outside the extension
// and exclusion scope are dropped up front. Per-file failures land in
// result.Errors and the batch continues; only validation of the options
// themselves returns an error.
func (p *Pipeline) ProcessChanges(ctx context.Context, changes []models.FileChange, opts UpdateOptions) (*models.UpdateResult, error) {
	start := time.Now()
	if opts.Repository == "" {
		return nil, errors.Validation("repository must not be empty")
	}
	if opts.LocalPath == "" {
		return nil, errors.Validation("local path must not be empty")
	}
	filter, err := scanner.NewFilter(opts.IncludeExtensions, opts.ExcludePatterns)
	if err != nil {
		return nil, err
	}

	filtered := make([]models.FileChange, 0, len(changes))
	for _, change := range changes {
		if filter.Match(change.Path) {
			filtered = append(filtered, change)
		}
	}

	p.logger.WithFields(logrus.Fields{
		"repository": opts.Repository,
		"changes":    len(changes),
		"in_scope":   len(filtered),
	}).Info("Processing repository changes")

	result := &models.UpdateResult{}
	var pending []models.FileChunk

	for _, change := range filtered {
		switch change.Status {
		case models.ChangeAdded:
			chunks, err := p.readAndChunk(opts, change.Path)
			if err != nil {
				p.recordFileError(result, change.Path, err)
				continue
			}
			pending = append(pending, chunks...)
			result.Stats.FilesAdded++

		case models.ChangeModified:
			deleted, err := p.store.DeleteByFile(ctx, opts.Repository, change.Path)
			if err != nil {
				p.recordFileError(result, change.Path, err)
				continue
			}
			result.Stats.ChunksDeleted += deleted
			chunks, err := p.readAndChunk(opts, change.Path)
			if err != nil {
				p.recordFileError(result, change.Path, err)
				continue
			}
			pending = append(pending, chunks...)
			result.Stats.FilesModified++

		case models.ChangeDeleted:
			deleted, err := p.store.DeleteByFile(ctx, opts.Repository, change.Path)
			if err != nil {
				p.recordFileError(result, change.Path, err)
				continue
			}
			result.Stats.ChunksDeleted += deleted
			result.Stats.FilesDeleted++

		case models.ChangeRenamed:
			if change.PreviousPath == "" {
				p.recordFileError(result, change.Path, errors.Validation("renamed change carries no previous path"))
				continue
			}
			deleted, err := p.store.DeleteByFile(ctx, opts.Repository, change.PreviousPath)
			if err != nil {
				p.recordFileError(result, change.Path, err)
				continue
			}
			result.Stats.ChunksDeleted += deleted
			chunks, err := p.readAndChunk(opts, change.Path)
			if err != nil {
				p.recordFileError(result, change.Path, err)
				continue
			}
			pending = append(pending, chunks...)
			result.Stats.FilesModified++

		default:
			p.logger.WithFields(logrus.Fields{
				"path":   change.Path,
				"status": change.Status,
			}).Warn("Skipping change with unknown status")
		}
	}

	if len(pending) > 0 {
		upserted, err := p.embedAndStore(ctx, opts.Repository, pending)
		result.Stats.ChunksUpserted = upserted
		if err != nil {
			result.Errors = append(result.Errors, models.UpdateError{
				Path:    BatchErrorPath,
				Message: err.Error(),
			})
			p.logger.WithError(err).Error("Embedding/storage batch failed")
		}
	}

	result.DurationMs = time.Since(start).Milliseconds()
	p.logger.WithFields(logrus.Fields{
		"repository":      opts.Repository,
		"files_added":     result.Stats.FilesAdded,
		"files_modified":  result.Stats.FilesModified,
		"files_deleted":   result.Stats.FilesDeleted,
		"chunks_upserted": result.Stats.ChunksUpserted,
		"chunks_deleted":  result.Stats.ChunksDeleted,
		"errors":          len(result.Errors),
		"duration_ms":     result.DurationMs,
	}).Info("Repository changes processed")
	return result, nil
}

func (p *Pipeline) readAndChunk(opts UpdateOptions, relPath string) ([]models.FileChunk, error) {
	absPath := filepath.Join(opts.LocalPath, filepath.FromSlash(relPath))
	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, errors.FileProcessing(err, relPath)
	}
	info := chunking.FileInfo{SizeBytes: int64(len(content))}
	if stat, err := os.Stat(absPath); err == nil {
		info.SizeBytes = stat.Size()
		info.ModifiedAt = stat.ModTime().UTC()
	}
	return p.chunker.ChunkFile(opts.Repository, relPath, content, info), nil
}

func (p *Pipeline) recordFileError(result *models.UpdateResult, path string, err error) {
	result.Errors = append(result.Errors, models.UpdateError{Path: path, Message: err.Error()})
	p.logger.WithError(err).WithField("path", path).Warn("File update failed")
}

// embedAndStore embeds the accumulated chunks in provider-sized batches
// and upserts every document in a single store call. Vectors line up
// with chunks by index within each batch; a short vector array is a
// contract violation and fails the whole stage.
func (p *Pipeline) embedAndStore(ctx context.Context, repository string, chunks []models.FileChunk) (int, error) {
	indexedAt := time.Now().UTC()
	docs := make([]models.DocumentInput, 0, len(chunks))

	for batchStart := 0; batchStart < len(chunks); batchStart += EmbeddingBatchSize {
		batchEnd := batchStart + EmbeddingBatchSize
		if batchEnd > len(chunks) {
			batchEnd = len(chunks)
		}
		batch := chunks[batchStart:batchEnd]

		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = chunk.Content
		}
		vectors, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return 0, err
		}
		if len(vectors) != len(batch) {
			return 0, errors.Operation(nil,
				fmt.Sprintf("embedding provider returned %d vectors for %d chunks", len(vectors), len(batch)),
				false)
		}
		for i, chunk := range batch {
			docs = append(docs, documentFromChunk(chunk, vectors[i], indexedAt))
		}
	}

	upserted, err := p.store.Upsert(ctx, docs)
	if err != nil {
		return 0, err
	}
	p.logger.WithFields(logrus.Fields{
		"repository": repository,
		"documents":  upserted,
	}).Debug("Documents upserted")
	return upserted, nil
}

func documentFromChunk(chunk models.FileChunk, embedding []float32, indexedAt time.Time) models.DocumentInput {
	return models.DocumentInput{
		ID:        chunk.ID,
		Content:   chunk.Content,
		Embedding: embedding,
		Metadata: models.DocumentMetadata{
			FilePath:       chunk.FilePath,
			Repository:     chunk.Repository,
			ChunkIndex:     chunk.ChunkIndex,
			TotalChunks:    chunk.TotalChunks,
			ChunkStartLine: chunk.StartLine,
			ChunkEndLine:   chunk.EndLine,
			FileExtension:  chunk.Metadata.Extension,
			FileSizeBytes:  chunk.Metadata.FileSizeBytes,
			ContentHash:    chunk.Metadata.ContentHash,
			IndexedAt:      indexedAt,
			FileModifiedAt: chunk.Metadata.FileModifiedAt,
		},
	}
}
