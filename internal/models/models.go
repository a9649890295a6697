package models

import (
	"time"
)

// RepositoryStatus is the lifecycle state of an indexed repository.
type RepositoryStatus string

const (
	RepoStatusReady    RepositoryStatus = "ready"
	RepoStatusIndexing RepositoryStatus = "indexing"
	RepoStatusError    RepositoryStatus = "error"
)

// RepositoryInfo is the metadata record for an indexed repository.
// Name is the primary key, derived from the URL and required unique.
type RepositoryInfo struct {
	Name                    string           `json:"name" db:"name"`
	URL                     string           `json:"url" db:"url"`
	Branch                  string           `json:"branch" db:"branch"`
	Status                  RepositoryStatus `json:"status" db:"status"`
	FileCount               int              `json:"file_count" db:"file_count"`
	ChunkCount              int              `json:"chunk_count" db:"chunk_count"`
	LastIndexedAt           time.Time        `json:"last_indexed_at" db:"last_indexed_at"`
	LastIndexedCommitSHA    string           `json:"last_indexed_commit_sha" db:"last_indexed_commit_sha"`
	LastIncrementalUpdateAt *time.Time       `json:"last_incremental_update_at,omitempty" db:"last_incremental_update_at"`
	IncrementalUpdateCount  int              `json:"incremental_update_count" db:"incremental_update_count"`
	IndexDurationMs         int64            `json:"index_duration_ms" db:"index_duration_ms"`
	EmbeddingProvider       string           `json:"embedding_provider" db:"embedding_provider"`
	EmbeddingModel          string           `json:"embedding_model" db:"embedding_model"`
	EmbeddingDimensions     int              `json:"embedding_dimensions" db:"embedding_dimensions"`
	LocalPath               string           `json:"local_path,omitempty" db:"local_path"`
	UpdateInProgress        bool             `json:"update_in_progress" db:"update_in_progress"`
	UpdateStartedAt         *time.Time       `json:"update_started_at,omitempty" db:"update_started_at"`
	ErrorMessage            string           `json:"error_message,omitempty" db:"error_message"`
}

// ChangeStatus classifies a file-level diff entry.
type ChangeStatus string

const (
	ChangeAdded    ChangeStatus = "added"
	ChangeModified ChangeStatus = "modified"
	ChangeDeleted  ChangeStatus = "deleted"
	ChangeRenamed  ChangeStatus = "renamed"
)

// FileChange is one entry of a repository diff. PreviousPath is set only
// for renames.
type FileChange struct {
	Path         string       `json:"path"`
	Status       ChangeStatus `json:"status"`
	PreviousPath string       `json:"previous_path,omitempty"`
}

// ChunkMetadata describes the source file a chunk was cut from.
type ChunkMetadata struct {
	Extension      string    `json:"extension"`
	FileSizeBytes  int64     `json:"file_size_bytes"`
	ContentHash    string    `json:"content_hash"`
	FileModifiedAt time.Time `json:"file_modified_at"`
}

// FileChunk is a contiguous slice of a source file. Its ID follows the
// contract "{repository}:{filePath}:{chunkIndex}" and must be reproducible
// from inputs alone; deletion by stored file path depends on it.
type FileChunk struct {
	ID          string        `json:"id"`
	Content     string        `json:"content"`
	FilePath    string        `json:"file_path"`
	Repository  string        `json:"repository"`
	ChunkIndex  int           `json:"chunk_index"`
	TotalChunks int           `json:"total_chunks"`
	StartLine   int           `json:"start_line"`
	EndLine     int           `json:"end_line"`
	Metadata    ChunkMetadata `json:"metadata"`
}

// DocumentMetadata is the payload stored alongside each vector. Key names
// are a cross-component contract with the vector backend.
type DocumentMetadata struct {
	FilePath       string    `json:"file_path"`
	Repository     string    `json:"repository"`
	ChunkIndex     int       `json:"chunk_index"`
	TotalChunks    int       `json:"total_chunks"`
	ChunkStartLine int       `json:"chunk_start_line"`
	ChunkEndLine   int       `json:"chunk_end_line"`
	FileExtension  string    `json:"file_extension"`
	FileSizeBytes  int64     `json:"file_size_bytes"`
	ContentHash    string    `json:"content_hash"`
	IndexedAt      time.Time `json:"indexed_at"`
	FileModifiedAt time.Time `json:"file_modified_at"`
}

// DocumentInput is a chunk augmented with its embedding, ready for upsert.
// Upserting the same ID replaces the previous document.
type DocumentInput struct {
	ID        string           `json:"id"`
	Content   string           `json:"content"`
	Embedding []float32        `json:"embedding"`
	Metadata  DocumentMetadata `json:"metadata"`
}

// SearchResult is one semantic search hit from the vector backend.
type SearchResult struct {
	ID       string           `json:"id"`
	Score    float32          `json:"score"`
	Content  string           `json:"content"`
	Metadata DocumentMetadata `json:"metadata"`
}

// UpdateStats counts the work done by one pipeline run.
type UpdateStats struct {
	FilesAdded     int `json:"files_added"`
	FilesModified  int `json:"files_modified"`
	FilesDeleted   int `json:"files_deleted"`
	ChunksUpserted int `json:"chunks_upserted"`
	ChunksDeleted  int `json:"chunks_deleted"`
}

// UpdateError records a per-file failure without aborting the batch.
type UpdateError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// UpdateResult is the outcome of one ProcessChanges call.
type UpdateResult struct {
	Stats      UpdateStats   `json:"stats"`
	Errors     []UpdateError `json:"errors"`
	DurationMs int64         `json:"duration_ms"`
}

// UpdateStatus summarises an update batch for history.
type UpdateStatus string

const (
	UpdateSuccess UpdateStatus = "success"
	UpdatePartial UpdateStatus = "partial"
	UpdateFailed  UpdateStatus = "failed"
)

// UpdateHistoryEntry is one append-only record of an incremental update.
type UpdateHistoryEntry struct {
	Timestamp      time.Time    `json:"timestamp" db:"timestamp"`
	Repository     string       `json:"repository" db:"repository"`
	PreviousCommit string       `json:"previous_commit" db:"previous_commit"`
	NewCommit      string       `json:"new_commit" db:"new_commit"`
	FilesAdded     int          `json:"files_added" db:"files_added"`
	FilesModified  int          `json:"files_modified" db:"files_modified"`
	FilesDeleted   int          `json:"files_deleted" db:"files_deleted"`
	ChunksUpserted int          `json:"chunks_upserted" db:"chunks_upserted"`
	ChunksDeleted  int          `json:"chunks_deleted" db:"chunks_deleted"`
	DurationMs     int64        `json:"duration_ms" db:"duration_ms"`
	ErrorCount     int          `json:"error_count" db:"error_count"`
	Status         UpdateStatus `json:"status" db:"status"`
}

// CoordinatorStatus is the outcome class of one coordinated update.
type CoordinatorStatus string

const (
	CoordinatorNoChanges CoordinatorStatus = "no_changes"
	CoordinatorUpdated   CoordinatorStatus = "updated"
	CoordinatorFailed    CoordinatorStatus = "failed"
)

// CoordinatorResult is returned by the update coordinator.
type CoordinatorResult struct {
	Status     CoordinatorStatus `json:"status"`
	CommitSHA  string            `json:"commit_sha,omitempty"`
	Stats      UpdateStats       `json:"stats"`
	Errors     []UpdateError     `json:"errors"`
	DurationMs int64             `json:"duration_ms"`
}

// QueryType names the graph query surface operations.
type QueryType string

const (
	QueryGetDependencies QueryType = "getDependencies"
	QueryGetDependents   QueryType = "getDependents"
	QueryGetPath         QueryType = "getPath"
	QueryGetArchitecture QueryType = "getArchitecture"
)

// GraphQueryRecord is one metrics sample; retained in a bounded ring.
type GraphQueryRecord struct {
	QueryType   QueryType `json:"query_type"`
	Timestamp   time.Time `json:"timestamp"`
	DurationMs  int64     `json:"duration_ms"`
	ResultCount int       `json:"result_count"`
	Depth       int       `json:"depth,omitempty"`
	FromCache   bool      `json:"from_cache"`
	Repository  string    `json:"repository"`
	Error       string    `json:"error,omitempty"`
}
