// Package storage persists repository metadata and update history. The
// graph and vector backends hold the indexed content; this store holds
// the bookkeeping that coordinates them.
package storage

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/codegraphhq/codegraph/internal/models"
)

// ErrNotFound is returned when the addressed repository is absent.
var ErrNotFound = errors.New("repository not found")

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	// DefaultDataPath holds the sqlite file unless configured otherwise.
	DefaultDataPath = "./data"

	sqliteFileName = "codegraph.db"
)

// Config selects and parameterises a metadata backend.
type Config struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string
	// DSN is the postgres connection string.
	DSN string
	// DataPath is the directory holding the sqlite file.
	DataPath string
}

// RepositoryStore is the persistence contract for repository metadata.
type RepositoryStore interface {
	SaveRepository(ctx context.Context, repo *models.RepositoryInfo) error
	GetRepository(ctx context.Context, name string) (*models.RepositoryInfo, error)
	ListRepositories(ctx context.Context) ([]*models.RepositoryInfo, error)
	DeleteRepository(ctx context.Context, name string) error

	// SetUpdateInProgress flips the interrupted-update marker. A crash
	// while the marker is set is what the recovery flow looks for.
	SetUpdateInProgress(ctx context.Context, name string, inProgress bool, at *time.Time) error
	ListInterrupted(ctx context.Context) ([]*models.RepositoryInfo, error)

	AppendHistory(ctx context.Context, entry *models.UpdateHistoryEntry) error
	ListHistory(ctx context.Context, repository string, limit int) ([]*models.UpdateHistoryEntry, error)

	Close() error
}

// New builds the configured store.
func New(cfg Config, logger *logrus.Logger) (RepositoryStore, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		dataPath := cfg.DataPath
		if dataPath == "" {
			dataPath = DefaultDataPath
		}
		return NewSQLiteStore(filepath.Join(dataPath, sqliteFileName), logger)
	case DriverPostgres:
		return NewPostgresStore(cfg.DSN, logger)
	default:
		return nil, errors.New("unknown storage driver " + cfg.Driver + " (supported: sqlite, postgres)")
	}
}

// repoColumns matches the db tags on models.RepositoryInfo. Keep the
// order aligned with the insert statements in both backends.
const repoColumns = `name, url, branch, status, file_count, chunk_count,
	last_indexed_at, last_indexed_commit_sha, last_incremental_update_at,
	incremental_update_count, index_duration_ms, embedding_provider,
	embedding_model, embedding_dimensions, local_path, update_in_progress,
	update_started_at, error_message`

const repoNamedValues = `:name, :url, :branch, :status, :file_count,
	:chunk_count, :last_indexed_at, :last_indexed_commit_sha,
	:last_incremental_update_at, :incremental_update_count,
	:index_duration_ms, :embedding_provider, :embedding_model,
	:embedding_dimensions, :local_path, :update_in_progress,
	:update_started_at, :error_message`

const historyColumns = `timestamp, repository, previous_commit, new_commit,
	files_added, files_modified, files_deleted, chunks_upserted,
	chunks_deleted, duration_ms, error_count, status`

const historyNamedValues = `:timestamp, :repository, :previous_commit,
	:new_commit, :files_added, :files_modified, :files_deleted,
	:chunks_upserted, :chunks_deleted, :duration_ms, :error_count, :status`
