package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/codegraphhq/codegraph/internal/models"
)

// SQLiteStore is the default single-machine metadata backend.
type SQLiteStore struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewSQLiteStore opens (creating if needed) the metadata database at
// path. WAL mode keeps the serve-mcp reader from blocking CLI writers.
func NewSQLiteStore(path string, logger *logrus.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("connect to sqlite: %w", err)
	}
	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	store := &SQLiteStore{db: db, logger: logger}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS repositories (
		name TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		branch TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'ready',
		file_count INTEGER NOT NULL DEFAULT 0,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		last_indexed_at TIMESTAMP,
		last_indexed_commit_sha TEXT NOT NULL DEFAULT '',
		last_incremental_update_at TIMESTAMP,
		incremental_update_count INTEGER NOT NULL DEFAULT 0,
		index_duration_ms INTEGER NOT NULL DEFAULT 0,
		embedding_provider TEXT NOT NULL DEFAULT '',
		embedding_model TEXT NOT NULL DEFAULT '',
		embedding_dimensions INTEGER NOT NULL DEFAULT 0,
		local_path TEXT NOT NULL DEFAULT '',
		update_in_progress INTEGER NOT NULL DEFAULT 0,
		update_started_at TIMESTAMP,
		error_message TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS update_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TIMESTAMP NOT NULL,
		repository TEXT NOT NULL,
		previous_commit TEXT NOT NULL DEFAULT '',
		new_commit TEXT NOT NULL DEFAULT '',
		files_added INTEGER NOT NULL DEFAULT 0,
		files_modified INTEGER NOT NULL DEFAULT 0,
		files_deleted INTEGER NOT NULL DEFAULT 0,
		chunks_upserted INTEGER NOT NULL DEFAULT 0,
		chunks_deleted INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		error_count INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_repo ON update_history(repository, timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRepository inserts or replaces the full metadata record.
func (s *SQLiteStore) SaveRepository(ctx context.Context, repo *models.RepositoryInfo) error {
	query := `INSERT OR REPLACE INTO repositories (` + repoColumns + `)
		VALUES (` + repoNamedValues + `)`
	if _, err := s.db.NamedExecContext(ctx, query, repo); err != nil {
		return fmt.Errorf("save repository %s: %w", repo.Name, err)
	}
	return nil
}

func (s *SQLiteStore) GetRepository(ctx context.Context, name string) (*models.RepositoryInfo, error) {
	var repo models.RepositoryInfo
	query := `SELECT ` + repoColumns + ` FROM repositories WHERE name = ?`
	err := s.db.GetContext(ctx, &repo, query, name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get repository %s: %w", name, err)
	}
	return &repo, nil
}

func (s *SQLiteStore) ListRepositories(ctx context.Context) ([]*models.RepositoryInfo, error) {
	var repos []*models.RepositoryInfo
	query := `SELECT ` + repoColumns + ` FROM repositories ORDER BY name`
	if err := s.db.SelectContext(ctx, &repos, query); err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	return repos, nil
}

// DeleteRepository removes the record and its history.
func (s *SQLiteStore) DeleteRepository(ctx context.Context, name string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete repository %s: %w", name, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM repositories WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete repository %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM update_history WHERE repository = ?`, name); err != nil {
		return fmt.Errorf("delete history for %s: %w", name, err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) SetUpdateInProgress(ctx context.Context, name string, inProgress bool, at *time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE repositories SET update_in_progress = ?, update_started_at = ? WHERE name = ?`,
		inProgress, at, name)
	if err != nil {
		return fmt.Errorf("set update marker for %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListInterrupted(ctx context.Context) ([]*models.RepositoryInfo, error) {
	var repos []*models.RepositoryInfo
	query := `SELECT ` + repoColumns + ` FROM repositories WHERE update_in_progress = 1 ORDER BY name`
	if err := s.db.SelectContext(ctx, &repos, query); err != nil {
		return nil, fmt.Errorf("list interrupted repositories: %w", err)
	}
	return repos, nil
}

// AppendHistory writes one immutable history row.
func (s *SQLiteStore) AppendHistory(ctx context.Context, entry *models.UpdateHistoryEntry) error {
	query := `INSERT INTO update_history (` + historyColumns + `)
		VALUES (` + historyNamedValues + `)`
	if _, err := s.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("append history for %s: %w", entry.Repository, err)
	}
	return nil
}

func (s *SQLiteStore) ListHistory(ctx context.Context, repository string, limit int) ([]*models.UpdateHistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []*models.UpdateHistoryEntry
	query := `SELECT ` + historyColumns + ` FROM update_history
		WHERE repository = ? ORDER BY timestamp DESC, id DESC LIMIT ?`
	if err := s.db.SelectContext(ctx, &entries, query, repository, limit); err != nil {
		return nil, fmt.Errorf("list history for %s: %w", repository, err)
	}
	return entries, nil
}
