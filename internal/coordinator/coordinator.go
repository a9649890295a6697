// Package coordinator serialises incremental updates per repository: it
// owns the diff-to-pipeline flow, the update history, and the
// interrupted-update marker that makes crashes recoverable.
package coordinator

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/codegraphhq/codegraph/internal/errors"
	"github.com/codegraphhq/codegraph/internal/gitremote"
	"github.com/codegraphhq/codegraph/internal/gitrepo"
	"github.com/codegraphhq/codegraph/internal/models"
	"github.com/codegraphhq/codegraph/internal/pipeline"
	"github.com/codegraphhq/codegraph/internal/storage"
)

// DefaultPollConcurrency bounds the update-all pre-flight fan-out.
const DefaultPollConcurrency = 4

// Pipeline applies one batch of file changes to the vector index.
type Pipeline interface {
	ProcessChanges(ctx context.Context, changes []models.FileChange, opts pipeline.UpdateOptions) (*models.UpdateResult, error)
}

// GitRepo is the slice of the local-clone surface the coordinator drives.
type GitRepo interface {
	Fetch(ctx context.Context) error
	RemoteHead(ctx context.Context, branch string) (string, error)
	Checkout(ctx context.Context, sha string) error
	Diff(ctx context.Context, from, to string) ([]models.FileChange, error)
	Path() string
}

// RemoteResolver answers "where is the branch now" without a fetch. Nil is
// fine; the coordinator then always fetches.
type RemoteResolver interface {
	BranchHead(ctx context.Context, owner, name, branch string) (string, error)
}

// Reindexer wipes and fully re-indexes one repository. Recovery invokes it
// for clones that no longer exist.
type Reindexer interface {
	Reindex(ctx context.Context, info *models.RepositoryInfo) error
}

// Config carries the filter and collection settings handed to the pipeline
// on every update.
type Config struct {
	CollectionName    string
	IncludeExtensions []string
	ExcludePatterns   []string
	PollConcurrency   int
}

// Coordinator runs the update flow for indexed repositories. Per-repository
// writes are serialised; no two updates run on the same repository at once.
type Coordinator struct {
	repos    storage.RepositoryStore
	pipeline Pipeline
	remote   RemoteResolver
	reindex  Reindexer
	cfg      Config
	logger   *logrus.Logger

	// openRepo is swapped in tests; production always opens real clones.
	openRepo func(path string) (GitRepo, error)
}

// New wires a coordinator. remote may be nil to force git-fetch head
// resolution.
func New(repos storage.RepositoryStore, pipe Pipeline, remote RemoteResolver, cfg Config, logger *logrus.Logger) *Coordinator {
	if cfg.PollConcurrency <= 0 {
		cfg.PollConcurrency = DefaultPollConcurrency
	}
	return &Coordinator{
		repos:    repos,
		pipeline: pipe,
		remote:   remote,
		cfg:      cfg,
		logger:   logger,
		openRepo: func(path string) (GitRepo, error) {
			return gitrepo.Open(path)
		},
	}
}

// SetReindexer installs the full-reindex dependency used by recovery. It is
// a setter because the index engine is constructed after the coordinator.
func (c *Coordinator) SetReindexer(r Reindexer) {
	c.reindex = r
}

// UpdateRepository brings one repository's index up to the remote head.
//
// The update-in-progress marker is set before any index mutation and
// cleared only after the history entry and metadata have been persisted, so
// a crash anywhere in between leaves the repository detectably interrupted.
func (c *Coordinator) UpdateRepository(ctx context.Context, name string) (*models.CoordinatorResult, error) {
	start := time.Now()

	info, err := c.loadReady(ctx, name)
	if err != nil {
		return nil, err
	}

	repo, err := c.openRepo(info.LocalPath)
	if err != nil {
		return nil, errors.Validationf("local clone for %s is missing or broken at %s; re-run `cgraph index %s`", name, info.LocalPath, name)
	}

	markerAt := time.Now().UTC()
	if err := c.repos.SetUpdateInProgress(ctx, name, true, &markerAt); err != nil {
		return nil, errors.Operation(err, "failed to set update marker", false)
	}

	head, fetched, err := c.resolveRemoteHead(ctx, info, repo)
	if err != nil {
		return nil, c.failBeforeMutation(ctx, name, errors.Operation(err, "failed to resolve remote head", true))
	}

	if head == info.LastIndexedCommitSHA {
		if err := c.repos.SetUpdateInProgress(ctx, name, false, nil); err != nil {
			return nil, errors.Operation(err, "failed to clear update marker", false)
		}
		c.logger.WithFields(logrus.Fields{"repository": name, "commit": head}).Info("Repository is up to date")
		return &models.CoordinatorResult{
			Status:     models.CoordinatorNoChanges,
			CommitSHA:  head,
			DurationMs: time.Since(start).Milliseconds(),
		}, nil
	}

	if !fetched {
		if err := repo.Fetch(ctx); err != nil {
			return nil, c.failBeforeMutation(ctx, name, errors.Operation(err, "failed to fetch repository", true))
		}
	}

	changes, err := repo.Diff(ctx, info.LastIndexedCommitSHA, head)
	if err != nil {
		return nil, c.failBeforeMutation(ctx, name, errors.Operation(err, "failed to diff commits; if the remote rewrote history, re-run `cgraph index`", false))
	}

	if len(changes) == 0 {
		if err := c.repos.SetUpdateInProgress(ctx, name, false, nil); err != nil {
			return nil, errors.Operation(err, "failed to clear update marker", false)
		}
		c.logger.WithFields(logrus.Fields{"repository": name, "commit": head}).Info("Head moved but no files changed")
		return &models.CoordinatorResult{
			Status:     models.CoordinatorNoChanges,
			CommitSHA:  head,
			DurationMs: time.Since(start).Milliseconds(),
		}, nil
	}

	// The pipeline reads file contents from the worktree, so it has to sit
	// at the commit the diff targets.
	if err := repo.Checkout(ctx, head); err != nil {
		return nil, c.failBeforeMutation(ctx, name, errors.Operation(err, "failed to check out new head", false))
	}

	c.logger.WithFields(logrus.Fields{
		"repository": name,
		"from":       info.LastIndexedCommitSHA,
		"to":         head,
		"changes":    len(changes),
	}).Info("Applying incremental update")

	result, err := c.pipeline.ProcessChanges(ctx, changes, pipeline.UpdateOptions{
		Repository:        name,
		LocalPath:         info.LocalPath,
		CollectionName:    c.cfg.CollectionName,
		IncludeExtensions: c.cfg.IncludeExtensions,
		ExcludePatterns:   c.cfg.ExcludePatterns,
	})
	if err != nil {
		// ProcessChanges only errors on bad options, before touching the
		// index; the marker can be cleared safely.
		return nil, c.failBeforeMutation(ctx, name, errors.Operation(err, "pipeline rejected the update", false))
	}

	status := models.CoordinatorUpdated
	if batchFailed(result) {
		status = models.CoordinatorFailed
	}

	entry := &models.UpdateHistoryEntry{
		Timestamp:      time.Now().UTC(),
		Repository:     name,
		PreviousCommit: info.LastIndexedCommitSHA,
		NewCommit:      head,
		FilesAdded:     result.Stats.FilesAdded,
		FilesModified:  result.Stats.FilesModified,
		FilesDeleted:   result.Stats.FilesDeleted,
		ChunksUpserted: result.Stats.ChunksUpserted,
		ChunksDeleted:  result.Stats.ChunksDeleted,
		DurationMs:     result.DurationMs,
		ErrorCount:     len(result.Errors),
		Status:         historyStatus(result),
	}
	if err := c.repos.AppendHistory(ctx, entry); err != nil {
		// The index mutated but the audit trail did not land; the marker
		// stays set so the repository shows up as interrupted.
		return nil, errors.Operation(err, "update applied but history append failed; run `cgraph reset-update "+name+" --recover`", false)
	}

	if status == models.CoordinatorUpdated {
		now := time.Now().UTC()
		info.LastIndexedCommitSHA = head
		info.LastIncrementalUpdateAt = &now
		info.IncrementalUpdateCount++
		info.FileCount = clampCount(info.FileCount + result.Stats.FilesAdded - result.Stats.FilesDeleted)
		info.ChunkCount = clampCount(info.ChunkCount + result.Stats.ChunksUpserted - result.Stats.ChunksDeleted)
		// Marker survives the metadata save; only the explicit clear below
		// removes it.
		info.UpdateInProgress = true
		info.UpdateStartedAt = &markerAt
		if err := c.repos.SaveRepository(ctx, info); err != nil {
			return nil, errors.Operation(err, "update applied but metadata save failed; run `cgraph reset-update "+name+" --recover`", false)
		}
	}

	if err := c.repos.SetUpdateInProgress(ctx, name, false, nil); err != nil {
		return nil, errors.Operation(err, "failed to clear update marker", false)
	}

	c.logger.WithFields(logrus.Fields{
		"repository":      name,
		"status":          string(status),
		"commit":          head,
		"files_added":     result.Stats.FilesAdded,
		"files_modified":  result.Stats.FilesModified,
		"files_deleted":   result.Stats.FilesDeleted,
		"chunks_upserted": result.Stats.ChunksUpserted,
		"chunks_deleted":  result.Stats.ChunksDeleted,
		"errors":          len(result.Errors),
	}).Info("Incremental update finished")

	return &models.CoordinatorResult{
		Status:     status,
		CommitSHA:  head,
		Stats:      result.Stats,
		Errors:     result.Errors,
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}

// RepoUpdate is one repository's outcome from UpdateAll.
type RepoUpdate struct {
	Repository string                    `json:"repository"`
	Skipped    string                    `json:"skipped,omitempty"`
	Result     *models.CoordinatorResult `json:"result,omitempty"`
	Err        error                     `json:"-"`
}

// UpdateAll updates every eligible repository. Pre-flight checks (and
// remote head polls, when an API resolver is configured) fan out bounded;
// the updates themselves run one at a time because per-repository writes
// are serialised anyway and the embedding provider is the shared
// bottleneck.
func (c *Coordinator) UpdateAll(ctx context.Context) ([]RepoUpdate, error) {
	repos, err := c.repos.ListRepositories(ctx)
	if err != nil {
		return nil, errors.Operation(err, "failed to list repositories", false)
	}

	updates := make([]RepoUpdate, len(repos))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.PollConcurrency)
	for i, info := range repos {
		g.Go(func() error {
			updates[i] = c.preflight(gctx, info)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := range updates {
		if updates[i].Skipped != "" || updates[i].Result != nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			updates[i].Err = err
			continue
		}
		result, err := c.UpdateRepository(ctx, updates[i].Repository)
		updates[i].Result = result
		updates[i].Err = err
	}

	return updates, nil
}

// preflight decides whether a repository is worth an update attempt. An
// up-to-date answer from the remote API short-circuits to no_changes
// without touching the clone.
func (c *Coordinator) preflight(ctx context.Context, info *models.RepositoryInfo) RepoUpdate {
	update := RepoUpdate{Repository: info.Name}

	switch {
	case info.Status != models.RepoStatusReady:
		update.Skipped = "status is " + string(info.Status)
		return update
	case info.UpdateInProgress:
		update.Skipped = "update already in progress"
		return update
	case info.LastIndexedCommitSHA == "":
		update.Skipped = "never indexed"
		return update
	case info.Branch == "":
		update.Skipped = "no branch recorded"
		return update
	}

	if c.remote == nil {
		return update
	}
	owner, repoName, err := gitremote.ParseRepoURL(info.URL)
	if err != nil {
		return update
	}
	head, err := c.remote.BranchHead(ctx, owner, repoName, info.Branch)
	if err != nil {
		c.logger.WithError(err).WithField("repository", info.Name).Warn("Remote head poll failed, will try full update")
		return update
	}
	if head == info.LastIndexedCommitSHA {
		update.Result = &models.CoordinatorResult{
			Status:    models.CoordinatorNoChanges,
			CommitSHA: head,
		}
	}
	return update
}

// loadReady fetches the repository record and rejects anything that must
// not be updated right now.
func (c *Coordinator) loadReady(ctx context.Context, name string) (*models.RepositoryInfo, error) {
	info, err := c.repos.GetRepository(ctx, name)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.EntityNotFound("repository", name)
		}
		return nil, errors.Operation(err, "failed to load repository metadata", false)
	}
	if info.Status != models.RepoStatusReady {
		return nil, errors.Validationf("repository %s is not ready (status: %s)", name, info.Status)
	}
	if info.UpdateInProgress {
		return nil, errors.Validationf("repository %s already has an update in progress; if it was interrupted, run `cgraph reset-update %s --recover`", name, name)
	}
	if info.LastIndexedCommitSHA == "" {
		return nil, errors.Validationf("repository %s has never been indexed; run `cgraph index %s`", name, info.URL)
	}
	if info.Branch == "" {
		return nil, errors.Validationf("repository %s has no branch recorded; re-run `cgraph index %s`", name, info.URL)
	}
	return info, nil
}

// resolveRemoteHead prefers the API resolver and falls back to a fetch.
// fetched reports whether remote-tracking refs are already current.
func (c *Coordinator) resolveRemoteHead(ctx context.Context, info *models.RepositoryInfo, repo GitRepo) (head string, fetched bool, err error) {
	if c.remote != nil {
		if owner, repoName, perr := gitremote.ParseRepoURL(info.URL); perr == nil {
			head, aerr := c.remote.BranchHead(ctx, owner, repoName, info.Branch)
			if aerr == nil {
				return head, false, nil
			}
			c.logger.WithError(aerr).WithField("repository", info.Name).Warn("Remote API head check failed, falling back to git fetch")
		}
	}

	if err := repo.Fetch(ctx); err != nil {
		return "", false, err
	}
	head, err = repo.RemoteHead(ctx, info.Branch)
	return head, true, err
}

// failBeforeMutation clears the marker on failures that happen before any
// index write, so a plain retry works without a recovery pass.
func (c *Coordinator) failBeforeMutation(ctx context.Context, name string, cause error) error {
	if err := c.repos.SetUpdateInProgress(ctx, name, false, nil); err != nil {
		c.logger.WithError(err).WithField("repository", name).Warn("Failed to clear update marker after early failure")
	}
	return cause
}

// batchFailed reports whether the whole embedding/storage batch failed, in
// which case nothing was upserted and the indexed commit must not advance.
func batchFailed(result *models.UpdateResult) bool {
	for _, e := range result.Errors {
		if e.Path == pipeline.BatchErrorPath {
			return true
		}
	}
	return false
}

func historyStatus(result *models.UpdateResult) models.UpdateStatus {
	switch {
	case batchFailed(result):
		return models.UpdateFailed
	case len(result.Errors) > 0:
		return models.UpdatePartial
	default:
		return models.UpdateSuccess
	}
}

func clampCount(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
