// Package indexer performs the initial full indexing of a repository:
// clone, scan, chunk, embed and store. It also implements the
// wipe-and-rebuild path that interrupted-update recovery falls back to
// when a repository's clone is gone.
package indexer

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/codegraphhq/codegraph/internal/errors"
	"github.com/codegraphhq/codegraph/internal/gitremote"
	"github.com/codegraphhq/codegraph/internal/gitrepo"
	"github.com/codegraphhq/codegraph/internal/models"
	"github.com/codegraphhq/codegraph/internal/pipeline"
	"github.com/codegraphhq/codegraph/internal/scanner"
	"github.com/codegraphhq/codegraph/internal/storage"
)

// Pipeline applies one batch of file changes to the vector index.
type Pipeline interface {
	ProcessChanges(ctx context.Context, changes []models.FileChange, opts pipeline.UpdateOptions) (*models.UpdateResult, error)
}

// VectorStore is the slice of the vector backend the indexer drives
// directly; per-document writes go through the pipeline.
type VectorStore interface {
	EnsureCollection(ctx context.Context, dims int) error
	DeleteByRepository(ctx context.Context, repository string) (int, error)
}

// GraphDropper removes a repository's nodes from the code graph. Nil is
// fine; removal then covers the vector index and metadata only.
type GraphDropper interface {
	Drop(ctx context.Context, repository string) error
}

// RemoteResolver answers default-branch lookups without a local clone.
// Nil is fine; the engine then asks git.
type RemoteResolver interface {
	DefaultBranch(ctx context.Context, owner, name string) (string, error)
}

// GitRepo is the slice of the local-clone surface the indexer drives.
type GitRepo interface {
	Path() string
	Fetch(ctx context.Context) error
	Head(ctx context.Context) (string, error)
	RemoteHead(ctx context.Context, branch string) (string, error)
	DefaultBranch(ctx context.Context) (string, error)
	Checkout(ctx context.Context, sha string) error
}

// Config carries the indexing scope and the embedding identity recorded
// on every repository.
type Config struct {
	DataPath          string
	CollectionName    string
	IncludeExtensions []string
	ExcludePatterns   []string

	EmbeddingProvider   string
	EmbeddingModel      string
	EmbeddingDimensions int
}

// Engine indexes repositories from scratch. It shares the pipeline with
// the incremental coordinator, expressing a full index as one all-added
// change batch so both paths age identically.
type Engine struct {
	repos    storage.RepositoryStore
	pipeline Pipeline
	vectors  VectorStore
	graph    GraphDropper
	remote   RemoteResolver
	cfg      Config
	logger   *logrus.Logger

	// openRepo and cloneRepo are swapped in tests; production always
	// touches real clones.
	openRepo  func(path string) (GitRepo, error)
	cloneRepo func(ctx context.Context, url, path string) (GitRepo, error)
}

// New wires an engine. graph and remote may be nil.
func New(repos storage.RepositoryStore, pipe Pipeline, vectors VectorStore, graph GraphDropper, remote RemoteResolver, cfg Config, logger *logrus.Logger) *Engine {
	return &Engine{
		repos:    repos,
		pipeline: pipe,
		vectors:  vectors,
		graph:    graph,
		remote:   remote,
		cfg:      cfg,
		logger:   logger,
		openRepo: func(path string) (GitRepo, error) {
			return gitrepo.Open(path)
		},
		cloneRepo: func(ctx context.Context, url, path string) (GitRepo, error) {
			return gitrepo.Clone(ctx, url, path)
		},
	}
}

// Index clones and fully indexes the repository at url. The repository
// name derives from the URL and is the metadata primary key; indexing an
// already-registered name is rejected.
func (e *Engine) Index(ctx context.Context, url string) (*models.RepositoryInfo, *models.UpdateResult, error) {
	start := time.Now()

	name := gitremote.RepoNameFromURL(url)
	if name == "" || name == "." || name == "/" {
		return nil, nil, errors.Validationf("cannot derive a repository name from %q", url)
	}
	if _, err := e.repos.GetRepository(ctx, name); err == nil {
		return nil, nil, errors.Validationf(
			"repository %s is already indexed. Run `cgraph update %s` to refresh it or `cgraph remove %s` first",
			name, name, name)
	} else if !stderrors.Is(err, storage.ErrNotFound) {
		return nil, nil, errors.Operation(err, fmt.Sprintf("load repository %s", name), false)
	}

	localPath := filepath.Join(e.cfg.DataPath, "repos", name)
	repo, err := e.ensureClone(ctx, url, localPath)
	if err != nil {
		return nil, nil, err
	}

	branch, head, err := e.resolveHead(ctx, url, repo)
	if err != nil {
		return nil, nil, err
	}
	if err := repo.Checkout(ctx, head); err != nil {
		return nil, nil, errors.Operation(err, fmt.Sprintf("checkout %s", head), false)
	}

	info := &models.RepositoryInfo{
		Name:                name,
		URL:                 url,
		Branch:              branch,
		Status:              models.RepoStatusIndexing,
		LocalPath:           repo.Path(),
		EmbeddingProvider:   e.cfg.EmbeddingProvider,
		EmbeddingModel:      e.cfg.EmbeddingModel,
		EmbeddingDimensions: e.cfg.EmbeddingDimensions,
	}
	if err := e.repos.SaveRepository(ctx, info); err != nil {
		return nil, nil, errors.Operation(err, fmt.Sprintf("register repository %s", name), false)
	}

	result, err := e.buildIndex(ctx, info)
	if err != nil {
		info.Status = models.RepoStatusError
		info.ErrorMessage = err.Error()
		if saveErr := e.repos.SaveRepository(ctx, info); saveErr != nil {
			e.logger.WithError(saveErr).Error("Failed to record indexing failure")
		}
		return info, nil, err
	}

	e.finalize(info, result, head, start)
	if err := e.repos.SaveRepository(ctx, info); err != nil {
		return info, result, errors.Operation(err, fmt.Sprintf("save repository %s", name), false)
	}

	e.logger.WithFields(logrus.Fields{
		"repository": name,
		"commit":     head,
		"files":      info.FileCount,
		"chunks":     info.ChunkCount,
		"errors":     len(result.Errors),
		"duration":   time.Since(start).Round(time.Millisecond),
	}).Info("Repository indexed")
	return info, result, nil
}

// Reindex wipes a repository's vector documents and rebuilds the index
// from the current remote head. It satisfies the coordinator's recovery
// dependency.
func (e *Engine) Reindex(ctx context.Context, info *models.RepositoryInfo) error {
	start := time.Now()

	wiped, err := e.vectors.DeleteByRepository(ctx, info.Name)
	if err != nil {
		return errors.Operation(err, fmt.Sprintf("wipe vector documents for %s", info.Name), true)
	}
	e.logger.WithFields(logrus.Fields{
		"repository": info.Name,
		"documents":  wiped,
	}).Info("Existing vector documents removed")

	localPath := info.LocalPath
	if localPath == "" {
		localPath = filepath.Join(e.cfg.DataPath, "repos", info.Name)
	}
	repo, err := e.ensureClone(ctx, info.URL, localPath)
	if err != nil {
		return err
	}

	branch := info.Branch
	if branch == "" {
		branch, err = repo.DefaultBranch(ctx)
		if err != nil {
			return errors.Operation(err, "resolve default branch", false)
		}
	}
	if err := repo.Fetch(ctx); err != nil {
		return errors.Connection(err, fmt.Sprintf("fetch %s", info.Name))
	}
	head, err := repo.RemoteHead(ctx, branch)
	if err != nil {
		return errors.Operation(err, fmt.Sprintf("resolve origin/%s", branch), false)
	}
	if err := repo.Checkout(ctx, head); err != nil {
		return errors.Operation(err, fmt.Sprintf("checkout %s", head), false)
	}

	info.Branch = branch
	info.LocalPath = repo.Path()
	result, err := e.buildIndex(ctx, info)
	if err != nil {
		return err
	}

	e.finalize(info, result, head, start)
	info.UpdateInProgress = false
	info.UpdateStartedAt = nil
	if err := e.repos.SaveRepository(ctx, info); err != nil {
		return errors.Operation(err, fmt.Sprintf("save repository %s", info.Name), false)
	}

	e.logger.WithFields(logrus.Fields{
		"repository": info.Name,
		"commit":     head,
		"files":      info.FileCount,
		"chunks":     info.ChunkCount,
	}).Info("Repository reindexed")
	return nil
}

// Remove deletes a repository's vector documents, graph nodes and
// metadata. The clone stays on disk; a later index run reuses it.
func (e *Engine) Remove(ctx context.Context, name string) error {
	info, err := e.repos.GetRepository(ctx, name)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.EntityNotFound("repository", name)
		}
		return errors.Operation(err, fmt.Sprintf("load repository %s", name), false)
	}

	deleted, err := e.vectors.DeleteByRepository(ctx, info.Name)
	if err != nil {
		return errors.Operation(err, fmt.Sprintf("delete vector documents for %s", name), true)
	}

	if e.graph != nil {
		if err := e.graph.Drop(ctx, info.Name); err != nil {
			return errors.Operation(err, fmt.Sprintf("drop graph nodes for %s", name), true)
		}
	}

	if err := e.repos.DeleteRepository(ctx, info.Name); err != nil {
		return errors.Operation(err, fmt.Sprintf("delete repository %s", name), false)
	}

	e.logger.WithFields(logrus.Fields{
		"repository": name,
		"documents":  deleted,
		"graph":      e.graph != nil,
	}).Info("Repository removed")
	return nil
}

// buildIndex scans the working tree and pushes every in-scope file
// through the pipeline as an added change.
func (e *Engine) buildIndex(ctx context.Context, info *models.RepositoryInfo) (*models.UpdateResult, error) {
	if err := e.vectors.EnsureCollection(ctx, e.cfg.EmbeddingDimensions); err != nil {
		return nil, errors.Operation(err, "ensure vector collection", true)
	}

	filter, err := scanner.NewFilter(e.cfg.IncludeExtensions, e.cfg.ExcludePatterns)
	if err != nil {
		return nil, err
	}
	paths, err := scanner.Scan(info.LocalPath, filter)
	if err != nil {
		return nil, errors.Operation(err, fmt.Sprintf("scan %s", info.LocalPath), false)
	}

	changes := make([]models.FileChange, len(paths))
	for i, p := range paths {
		changes[i] = models.FileChange{Path: p, Status: models.ChangeAdded}
	}
	e.logger.WithFields(logrus.Fields{
		"repository": info.Name,
		"files":      len(changes),
	}).Info("Indexing working tree")

	result, err := e.pipeline.ProcessChanges(ctx, changes, pipeline.UpdateOptions{
		Repository:        info.Name,
		LocalPath:         info.LocalPath,
		CollectionName:    e.cfg.CollectionName,
		IncludeExtensions: e.cfg.IncludeExtensions,
		ExcludePatterns:   e.cfg.ExcludePatterns,
	})
	if err != nil {
		return nil, err
	}
	if batchFailed(result) {
		return nil, errors.Operation(nil,
			fmt.Sprintf("embedding/storage batch failed: %s", lastError(result)), true)
	}
	return result, nil
}

// finalize folds a pipeline result into the repository record.
func (e *Engine) finalize(info *models.RepositoryInfo, result *models.UpdateResult, head string, start time.Time) {
	now := time.Now().UTC()
	info.Status = models.RepoStatusReady
	info.FileCount = result.Stats.FilesAdded + result.Stats.FilesModified
	info.ChunkCount = result.Stats.ChunksUpserted
	info.LastIndexedAt = now
	info.LastIndexedCommitSHA = head
	info.IndexDurationMs = time.Since(start).Milliseconds()
	info.ErrorMessage = ""
	if len(result.Errors) > 0 {
		info.ErrorMessage = fmt.Sprintf("%d files failed during indexing", len(result.Errors))
	}
}

// ensureClone opens an existing clone at path or clones url into it.
func (e *Engine) ensureClone(ctx context.Context, url, path string) (GitRepo, error) {
	if _, statErr := os.Stat(path); statErr == nil {
		repo, err := e.openRepo(path)
		if err == nil {
			return repo, nil
		}
		e.logger.WithError(err).WithField("path", path).Warn("Existing directory is not a usable clone; recloning")
		if err := os.RemoveAll(path); err != nil {
			return nil, errors.Operation(err, fmt.Sprintf("clear %s", path), false)
		}
	}

	if url == "" {
		return nil, errors.Validation("repository URL is required to clone")
	}
	repo, err := e.cloneRepo(ctx, url, path)
	if err != nil {
		return nil, errors.Connection(err, fmt.Sprintf("clone %s", url))
	}
	return repo, nil
}

// resolveHead finds the branch to track and its current commit. The API
// resolver is preferred for the default branch; git answers when it is
// absent or fails.
func (e *Engine) resolveHead(ctx context.Context, url string, repo GitRepo) (branch, head string, err error) {
	if e.remote != nil {
		if owner, name, parseErr := gitremote.ParseRepoURL(url); parseErr == nil {
			if b, apiErr := e.remote.DefaultBranch(ctx, owner, name); apiErr == nil {
				branch = b
			}
		}
	}
	if branch == "" {
		branch, err = repo.DefaultBranch(ctx)
		if err != nil {
			return "", "", errors.Operation(err, "resolve default branch", false)
		}
	}

	head, err = repo.RemoteHead(ctx, branch)
	if err != nil {
		// A fresh clone may lack the remote-tracking ref name the API
		// reported; fall back to wherever HEAD landed.
		head, err = repo.Head(ctx)
		if err != nil {
			return "", "", errors.Operation(err, "resolve HEAD", false)
		}
	}
	return branch, head, nil
}

func batchFailed(result *models.UpdateResult) bool {
	for _, e := range result.Errors {
		if e.Path == pipeline.BatchErrorPath {
			return true
		}
	}
	return false
}

func lastError(result *models.UpdateResult) string {
	if len(result.Errors) == 0 {
		return ""
	}
	return result.Errors[len(result.Errors)-1].Message
}
