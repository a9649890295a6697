package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/codegraphhq/codegraph/internal/errors"
	"github.com/codegraphhq/codegraph/internal/gitremote"
	"github.com/codegraphhq/codegraph/internal/gitrepo"
	"github.com/codegraphhq/codegraph/internal/logging"
	"github.com/codegraphhq/codegraph/internal/models"
	"github.com/codegraphhq/codegraph/internal/storage"
)

const (
	identityFileName = "identity.db"
	workspaceBucket  = "workspace_identity"
)

// RepositoryDirectory is the slice of the metadata store the resolver
// needs to confirm a repository is indexed.
type RepositoryDirectory interface {
	GetRepository(ctx context.Context, name string) (*models.RepositoryInfo, error)
}

// cacheEntry is the JSON value stored per workspace path.
type cacheEntry struct {
	Repository string    `json:"repository"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// WorkspaceResolver maps a caller's working directory to the indexed
// repository it belongs to. Resolutions are cached in bbolt so repeat
// lookups skip the git probe; a cached name is re-checked against the
// directory on every hit so removed repositories fall out of the cache.
type WorkspaceResolver struct {
	db        *bolt.DB
	directory RepositoryDirectory
	remoteURL func(ctx context.Context, dir string) (string, error)
	log       *slog.Logger
}

// NewWorkspaceResolver opens (or creates) the identity cache under
// dataPath and binds it to the repository directory.
func NewWorkspaceResolver(dataPath string, directory RepositoryDirectory) (*WorkspaceResolver, error) {
	if dataPath == "" {
		return nil, errors.Validation("workspace resolver requires a data path")
	}
	if directory == nil {
		return nil, errors.Validation("workspace resolver requires a repository directory")
	}
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, errors.Operation(err, "create identity cache directory", false)
	}

	db, err := bolt.Open(filepath.Join(dataPath, identityFileName), 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Operation(err, "open identity cache", true)
	}

	return &WorkspaceResolver{
		db:        db,
		directory: directory,
		remoteURL: gitrepo.RemoteURL,
		log:       logging.ForComponent("mcp"),
	}, nil
}

// Close releases the cache database.
func (r *WorkspaceResolver) Close() error {
	return r.db.Close()
}

// Resolve maps workspacePath to the name of an indexed repository. The
// origin remote of the surrounding git checkout is tried first, then
// the directory's base name. Successful resolutions are cached.
func (r *WorkspaceResolver) Resolve(ctx context.Context, workspacePath string) (string, error) {
	if workspacePath == "" {
		return "", errors.Validation("workspace path is empty")
	}
	abs, err := filepath.Abs(filepath.Clean(workspacePath))
	if err != nil {
		return "", errors.Validationf("workspace path %q is not resolvable", workspacePath)
	}

	if name, ok := r.cached(abs); ok {
		indexed, err := r.indexed(ctx, name)
		if err != nil {
			return "", err
		}
		if indexed {
			return name, nil
		}
		r.invalidate(abs)
	}

	name, err := r.resolveUncached(ctx, abs)
	if err != nil {
		return "", err
	}
	if err := r.store(abs, name); err != nil {
		r.log.Warn("failed to cache workspace identity", "path", abs, "error", err)
	}
	return name, nil
}

func (r *WorkspaceResolver) resolveUncached(ctx context.Context, abs string) (string, error) {
	// Not every workspace is a git checkout, so a failed probe just
	// moves on to the base-name match.
	if remote, err := r.remoteURL(ctx, abs); err == nil && remote != "" {
		name := gitremote.RepoNameFromURL(remote)
		indexed, err := r.indexed(ctx, name)
		if err != nil {
			return "", err
		}
		if indexed {
			return name, nil
		}
	}

	base := filepath.Base(abs)
	indexed, err := r.indexed(ctx, base)
	if err != nil {
		return "", err
	}
	if indexed {
		return base, nil
	}

	return "", errors.EntityNotFound("repository", abs)
}

// indexed distinguishes "not indexed" from a failing metadata store;
// only the former falls through to the next resolution strategy.
func (r *WorkspaceResolver) indexed(ctx context.Context, name string) (bool, error) {
	if name == "" {
		return false, nil
	}
	_, err := r.directory.GetRepository(ctx, name)
	if err == nil {
		return true, nil
	}
	if stderrors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	return false, err
}

func (r *WorkspaceResolver) cached(path string) (string, bool) {
	var entry cacheEntry
	err := r.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(workspaceBucket))
		if bucket == nil {
			return bolt.ErrBucketNotFound
		}
		data := bucket.Get([]byte(path))
		if data == nil {
			return bolt.ErrBucketNotFound
		}
		return json.Unmarshal(data, &entry)
	})
	if err != nil || entry.Repository == "" {
		return "", false
	}
	return entry.Repository, true
}

func (r *WorkspaceResolver) store(path, repository string) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(workspaceBucket))
		if err != nil {
			return err
		}
		data, err := json.Marshal(cacheEntry{Repository: repository, ResolvedAt: time.Now().UTC()})
		if err != nil {
			return err
		}
		return bucket.Put([]byte(path), data)
	})
}

func (r *WorkspaceResolver) invalidate(path string) {
	_ = r.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(workspaceBucket))
		if bucket == nil {
			return nil
		}
		return bucket.Delete([]byte(path))
	})
}
