package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/codegraphhq/codegraph/internal/models"
)

// PostgresStore backs metadata with PostgreSQL for shared deployments.
type PostgresStore struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewPostgresStore connects and ensures the schema exists.
func NewPostgresStore(dsn string, logger *logrus.Logger) (*PostgresStore, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store := &PostgresStore{db: db, logger: logger}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS repositories (
		name TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		branch TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'ready',
		file_count INTEGER NOT NULL DEFAULT 0,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		last_indexed_at TIMESTAMPTZ,
		last_indexed_commit_sha TEXT NOT NULL DEFAULT '',
		last_incremental_update_at TIMESTAMPTZ,
		incremental_update_count INTEGER NOT NULL DEFAULT 0,
		index_duration_ms BIGINT NOT NULL DEFAULT 0,
		embedding_provider TEXT NOT NULL DEFAULT '',
		embedding_model TEXT NOT NULL DEFAULT '',
		embedding_dimensions INTEGER NOT NULL DEFAULT 0,
		local_path TEXT NOT NULL DEFAULT '',
		update_in_progress BOOLEAN NOT NULL DEFAULT FALSE,
		update_started_at TIMESTAMPTZ,
		error_message TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS update_history (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL,
		repository TEXT NOT NULL,
		previous_commit TEXT NOT NULL DEFAULT '',
		new_commit TEXT NOT NULL DEFAULT '',
		files_added INTEGER NOT NULL DEFAULT 0,
		files_modified INTEGER NOT NULL DEFAULT 0,
		files_deleted INTEGER NOT NULL DEFAULT 0,
		chunks_upserted INTEGER NOT NULL DEFAULT 0,
		chunks_deleted INTEGER NOT NULL DEFAULT 0,
		duration_ms BIGINT NOT NULL DEFAULT 0,
		error_count INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_repo ON update_history(repository, timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) SaveRepository(ctx context.Context, repo *models.RepositoryInfo) error {
	query := `INSERT INTO repositories (` + repoColumns + `)
		VALUES (` + repoNamedValues + `)
		ON CONFLICT (name) DO UPDATE SET
			url = EXCLUDED.url,
			branch = EXCLUDED.branch,
			status = EXCLUDED.status,
			file_count = EXCLUDED.file_count,
			chunk_count = EXCLUDED.chunk_count,
			last_indexed_at = EXCLUDED.last_indexed_at,
			last_indexed_commit_sha = EXCLUDED.last_indexed_commit_sha,
			last_incremental_update_at = EXCLUDED.last_incremental_update_at,
			incremental_update_count = EXCLUDED.incremental_update_count,
			index_duration_ms = EXCLUDED.index_duration_ms,
			embedding_provider = EXCLUDED.embedding_provider,
			embedding_model = EXCLUDED.embedding_model,
			embedding_dimensions = EXCLUDED.embedding_dimensions,
			local_path = EXCLUDED.local_path,
			update_in_progress = EXCLUDED.update_in_progress,
			update_started_at = EXCLUDED.update_started_at,
			error_message = EXCLUDED.error_message`
	if _, err := s.db.NamedExecContext(ctx, query, repo); err != nil {
		return fmt.Errorf("save repository %s: %w", repo.Name, err)
	}
	return nil
}

func (s *PostgresStore) GetRepository(ctx context.Context, name string) (*models.RepositoryInfo, error) {
	var repo models.RepositoryInfo
	query := `SELECT ` + repoColumns + ` FROM repositories WHERE name = $1`
	err := s.db.GetContext(ctx, &repo, query, name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get repository %s: %w", name, err)
	}
	return &repo, nil
}

func (s *PostgresStore) ListRepositories(ctx context.Context) ([]*models.RepositoryInfo, error) {
	var repos []*models.RepositoryInfo
	query := `SELECT ` + repoColumns + ` FROM repositories ORDER BY name`
	if err := s.db.SelectContext(ctx, &repos, query); err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	return repos, nil
}

func (s *PostgresStore) DeleteRepository(ctx context.Context, name string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete repository %s: %w", name, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM repositories WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete repository %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM update_history WHERE repository = $1`, name); err != nil {
		return fmt.Errorf("delete history for %s: %w", name, err)
	}
	return tx.Commit()
}

func (s *PostgresStore) SetUpdateInProgress(ctx context.Context, name string, inProgress bool, at *time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE repositories SET update_in_progress = $1, update_started_at = $2 WHERE name = $3`,
		inProgress, at, name)
	if err != nil {
		return fmt.Errorf("set update marker for %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListInterrupted(ctx context.Context) ([]*models.RepositoryInfo, error) {
	var repos []*models.RepositoryInfo
	query := `SELECT ` + repoColumns + ` FROM repositories WHERE update_in_progress ORDER BY name`
	if err := s.db.SelectContext(ctx, &repos, query); err != nil {
		return nil, fmt.Errorf("list interrupted repositories: %w", err)
	}
	return repos, nil
}

func (s *PostgresStore) AppendHistory(ctx context.Context, entry *models.UpdateHistoryEntry) error {
	query := `INSERT INTO update_history (` + historyColumns + `)
		VALUES (` + historyNamedValues + `)`
	if _, err := s.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("append history for %s: %w", entry.Repository, err)
	}
	return nil
}

func (s *PostgresStore) ListHistory(ctx context.Context, repository string, limit int) ([]*models.UpdateHistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []*models.UpdateHistoryEntry
	query := `SELECT ` + historyColumns + ` FROM update_history
		WHERE repository = $1 ORDER BY timestamp DESC, id DESC LIMIT $2`
	if err := s.db.SelectContext(ctx, &entries, query, repository, limit); err != nil {
		return nil, fmt.Errorf("list history for %s: %w", repository, err)
	}
	return entries, nil
}
