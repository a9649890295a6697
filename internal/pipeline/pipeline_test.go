package pipeline

import (
	"context"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codegraphhq/codegraph/internal/chunking"
	"github.com/codegraphhq/codegraph/internal/errors"
	"github.com/codegraphhq/codegraph/internal/models"
)

type fakeStore struct {
	upserted  []models.DocumentInput
	upsertErr error
	deletes   []string
	deleteErr map[string]error
	existing  map[string]int
}

func (s *fakeStore) Upsert(_ context.Context, docs []models.DocumentInput) (int, error) {
	if s.upsertErr != nil {
		return 0, s.upsertErr
	}
	s.upserted = append(s.upserted, docs...)
	return len(docs), nil
}

func (s *fakeStore) DeleteByFile(_ context.Context, repository, filePath string) (int, error) {
	if err := s.deleteErr[filePath]; err != nil {
		return 0, err
	}
	s.deletes = append(s.deletes, repository+"|"+filePath)
	return s.existing[filePath], nil
}

type fakeEmbedder struct {
	batches [][]string
	err     error
}

func (e *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.batches = append(e.batches, texts)
	if e.err != nil {
		return nil, e.err
	}
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = []float32{float32(i), 0.5}
	}
	return vectors, nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

func testOptions(root string) UpdateOptions {
	return UpdateOptions{
		Repository:        "acme",
		LocalPath:         root,
		IncludeExtensions: []string{".ts"},
	}
}

func TestProcessChanges_AppliesEveryStatus(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/app.ts", "export function main() {}\n")
	writeFile(t, root, "src/db.ts", "export function connect() {}\n")
	writeFile(t, root, "src/renamed.ts", "export function helper() {}\n")

	store := &fakeStore{existing: map[string]int{
		"src/db.ts":       2,
		"src/gone.ts":     3,
		"src/previous.ts": 1,
	}}
	embedder := &fakeEmbedder{}
	p := New(store, embedder, testLogger())

	changes := []models.FileChange{
		{Path: "src/app.ts", Status: models.ChangeAdded},
		{Path: "src/db.ts", Status: models.ChangeModified},
		{Path: "src/gone.ts", Status: models.ChangeDeleted},
		{Path: "src/renamed.ts", Status: models.ChangeRenamed, PreviousPath: "src/previous.ts"},
	}
	result, err := p.ProcessChanges(context.Background(), changes, testOptions(root))
	require.NoError(t, err)
	require.Empty(t, result.Errors)

	assert.Equal(t, 1, result.Stats.FilesAdded)
	assert.Equal(t, 2, result.Stats.FilesModified, "renamed counts as modified")
	assert.Equal(t, 1, result.Stats.FilesDeleted)
	assert.Equal(t, 6, result.Stats.ChunksDeleted)
	assert.Equal(t, 3, result.Stats.ChunksUpserted)
	assert.GreaterOrEqual(t, result.DurationMs, int64(0))

	assert.Equal(t, []string{"acme|src/db.ts", "acme|src/gone.ts", "acme|src/previous.ts"}, store.deletes)

	require.Len(t, store.upserted, 3)
	assert.Equal(t, chunking.ChunkID("acme", "src/app.ts", 0), store.upserted[0].ID)
	assert.Equal(t, "acme", store.upserted[0].Metadata.Repository)
	assert.Equal(t, ".ts", store.upserted[0].Metadata.FileExtension)
	assert.False(t, store.upserted[0].Metadata.IndexedAt.IsZero())

	total := result.Stats.FilesAdded + result.Stats.FilesModified + result.Stats.FilesDeleted
	assert.LessOrEqual(t, total, len(changes))
}

func TestProcessChanges_FiltersScope(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/app.ts", "let a = 1\n")

	store := &fakeStore{}
	embedder := &fakeEmbedder{}
	p := New(store, embedder, testLogger())

	opts := testOptions(root)
	opts.ExcludePatterns = []string{"node_modules/**", "**/*.min.ts"}

	changes := []models.FileChange{
		{Path: "src/app.ts", Status: models.ChangeAdded},
		{Path: "README.md", Status: models.ChangeAdded},
		{Path: "node_modules/pkg/index.ts", Status: models.ChangeAdded},
		{Path: "dist/bundle.min.ts", Status: models.ChangeAdded},
	}
	result, err := p.ProcessChanges(context.Background(), changes, opts)
	require.NoError(t, err)

	assert.Empty(t, result.Errors, "out-of-scope changes are dropped, not failed")
	assert.Equal(t, 1, result.Stats.FilesAdded)
	assert.Equal(t, 1, result.Stats.ChunksUpserted)
}

func TestProcessChanges_PerFileErrorsDoNotAbort(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/ok.ts", "let ok = true\n")

	store := &fakeStore{}
	embedder := &fakeEmbedder{}
	p := New(store, embedder, testLogger())

	changes := []models.FileChange{
		{Path: "src/missing.ts", Status: models.ChangeAdded},
		{Path: "src/ok.ts", Status: models.ChangeAdded},
	}
	result, err := p.ProcessChanges(context.Background(), changes, testOptions(root))
	require.NoError(t, err)

	require.Len(t, result.Errors, 1)
	assert.Equal(t, "src/missing.ts", result.Errors[0].Path)
	assert.Equal(t, 1, result.Stats.FilesAdded)
	assert.Equal(t, 1, result.Stats.ChunksUpserted)
}

func TestProcessChanges_RenamedRequiresPreviousPath(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/new.ts", "let x = 1\n")

	store := &fakeStore{}
	p := New(store, &fakeEmbedder{}, testLogger())

	changes := []models.FileChange{
		{Path: "src/new.ts", Status: models.ChangeRenamed},
	}
	result, err := p.ProcessChanges(context.Background(), changes, testOptions(root))
	require.NoError(t, err)

	require.Len(t, result.Errors, 1)
	assert.Equal(t, "src/new.ts", result.Errors[0].Path)
	assert.Zero(t, result.Stats.FilesModified)
	assert.Empty(t, store.deletes)
}

func TestProcessChanges_UnknownStatusSkipsWithoutError(t *testing.T) {
	root := t.TempDir()
	store := &fakeStore{}
	p := New(store, &fakeEmbedder{}, testLogger())

	changes := []models.FileChange{
		{Path: "src/odd.ts", Status: models.ChangeStatus("copied")},
	}
	result, err := p.ProcessChanges(context.Background(), changes, testOptions(root))
	require.NoError(t, err)

	assert.Empty(t, result.Errors)
	assert.Equal(t, models.UpdateStats{}, result.Stats)
}

func TestProcessChanges_ModifiedDeleteFailureSkipsRead(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/db.ts", "let x = 1\n")

	store := &fakeStore{deleteErr: map[string]error{
		"src/db.ts": stderrors.New("backend down"),
	}}
	embedder := &fakeEmbedder{}
	p := New(store, embedder, testLogger())

	changes := []models.FileChange{
		{Path: "src/db.ts", Status: models.ChangeModified},
	}
	result, err := p.ProcessChanges(context.Background(), changes, testOptions(root))
	require.NoError(t, err)

	require.Len(t, result.Errors, 1)
	assert.Zero(t, result.Stats.FilesModified)
	assert.Zero(t, result.Stats.ChunksUpserted)
	assert.Empty(t, embedder.batches)
}

func TestProcessChanges_BatchFailureIsOneSyntheticError(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/a.ts", "let a = 1\n")
	writeFile(t, root, "src/b.ts", "let b = 2\n")

	store := &fakeStore{}
	embedder := &fakeEmbedder{err: stderrors.New("provider exploded")}
	p := New(store, embedder, testLogger())

	changes := []models.FileChange{
		{Path: "src/a.ts", Status: models.ChangeAdded},
		{Path: "src/b.ts", Status: models.ChangeAdded},
	}
	result, err := p.ProcessChanges(context.Background(), changes, testOptions(root))
	require.NoError(t, err, "batch failures are recorded, not rethrown")

	require.Len(t, result.Errors, 1)
	assert.Equal(t, BatchErrorPath, result.Errors[0].Path)
	assert.Contains(t, result.Errors[0].Message, "provider exploded")
	assert.Equal(t, 2, result.Stats.FilesAdded)
	assert.Zero(t, result.Stats.ChunksUpserted)
}

func TestProcessChanges_UpsertFailureIsOneSyntheticError(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/a.ts", "let a = 1\n")

	store := &fakeStore{upsertErr: stderrors.New("qdrant down")}
	p := New(store, &fakeEmbedder{}, testLogger())

	changes := []models.FileChange{{Path: "src/a.ts", Status: models.ChangeAdded}}
	result, err := p.ProcessChanges(context.Background(), changes, testOptions(root))
	require.NoError(t, err)

	require.Len(t, result.Errors, 1)
	assert.Equal(t, BatchErrorPath, result.Errors[0].Path)
	assert.Zero(t, result.Stats.ChunksUpserted)
}

func TestProcessChanges_EmbeddingBatchBoundary(t *testing.T) {
	// Each 2500-byte line exceeds the chunker's 2000-byte limit, so one
	// line becomes one chunk.
	line := strings.Repeat("x", 2499) + "\n"

	root := t.TempDir()
	writeFile(t, root, "src/exact.ts", strings.Repeat(line, EmbeddingBatchSize))

	store := &fakeStore{}
	embedder := &fakeEmbedder{}
	p := New(store, embedder, testLogger())

	changes := []models.FileChange{{Path: "src/exact.ts", Status: models.ChangeAdded}}
	result, err := p.ProcessChanges(context.Background(), changes, testOptions(root))
	require.NoError(t, err)
	require.Empty(t, result.Errors)

	require.Len(t, embedder.batches, 1, "exactly 100 chunks is a single provider call")
	assert.Len(t, embedder.batches[0], EmbeddingBatchSize)
	assert.Equal(t, EmbeddingBatchSize, result.Stats.ChunksUpserted)

	writeFile(t, root, "src/over.ts", strings.Repeat(line, EmbeddingBatchSize+1))
	store2 := &fakeStore{}
	embedder2 := &fakeEmbedder{}
	p2 := New(store2, embedder2, testLogger())

	changes = []models.FileChange{{Path: "src/over.ts", Status: models.ChangeAdded}}
	result, err = p2.ProcessChanges(context.Background(), changes, testOptions(root))
	require.NoError(t, err)
	require.Empty(t, result.Errors)

	require.Len(t, embedder2.batches, 2, "101 chunks spills into a second call")
	assert.Len(t, embedder2.batches[0], EmbeddingBatchSize)
	assert.Len(t, embedder2.batches[1], 1)
	assert.Equal(t, EmbeddingBatchSize+1, result.Stats.ChunksUpserted)

	// Positional matching: the first vector of the second batch lands on
	// the 101st document.
	assert.Equal(t, float32(0), store2.upserted[EmbeddingBatchSize].Embedding[0])
	assert.Equal(t, float32(99), store2.upserted[EmbeddingBatchSize-1].Embedding[0])
}

func TestProcessChanges_OptionValidation(t *testing.T) {
	p := New(&fakeStore{}, &fakeEmbedder{}, testLogger())

	_, err := p.ProcessChanges(context.Background(), nil, UpdateOptions{LocalPath: "/tmp"})
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))

	_, err = p.ProcessChanges(context.Background(), nil, UpdateOptions{Repository: "acme"})
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
}
