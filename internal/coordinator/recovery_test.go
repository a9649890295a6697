package coordinator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codegraphhq/codegraph/internal/errors"
	"github.com/codegraphhq/codegraph/internal/models"
)

type fakeReindexer struct {
	calls int
	err   error
	got   *models.RepositoryInfo
}

func (f *fakeReindexer) Reindex(_ context.Context, info *models.RepositoryInfo) error {
	f.calls++
	f.got = info
	return f.err
}

func interruptedRepo(name string, startedAgo time.Duration) *models.RepositoryInfo {
	info := readyRepo(name)
	info.UpdateInProgress = true
	at := time.Now().UTC().Add(-startedAgo)
	info.UpdateStartedAt = &at
	return info
}

func TestDetectInterruptedUpdates(t *testing.T) {
	clean := readyRepo("clean")
	stuck := interruptedRepo("stuck", 5*time.Minute)

	store := newMemStore(clean, stuck)
	c := newTestCoordinator(store, &fakePipe{}, nil, &fakeGit{head: "aaa111"})

	interrupted, err := c.DetectInterruptedUpdates(context.Background())
	require.NoError(t, err)
	require.Len(t, interrupted, 1)

	item := interrupted[0]
	assert.Equal(t, "stuck", item.Name)
	assert.Equal(t, "aaa111", item.LastIndexedSHA)
	assert.False(t, item.StartedAt.IsZero())
	assert.GreaterOrEqual(t, item.Elapsed, 5*time.Minute)
}

func TestEvaluateRecoveryStrategy(t *testing.T) {
	store := newMemStore()
	c := newTestCoordinator(store, &fakePipe{}, nil, nil)
	c.openRepo = func(path string) (GitRepo, error) {
		if path == "/data/repos/alive" {
			return &fakeGit{}, nil
		}
		return nil, fmt.Errorf("no clone")
	}

	withClone := interruptedRepo("alive", time.Minute)
	strategy := c.EvaluateRecoveryStrategy(withClone)
	assert.Equal(t, RecoveryResume, strategy.Type)
	assert.True(t, strategy.CanAutoRecover)
	assert.Contains(t, strategy.EstimatedWork, "aaa111")

	withoutClone := interruptedRepo("gone", time.Minute)
	strategy = c.EvaluateRecoveryStrategy(withoutClone)
	assert.Equal(t, RecoveryFullReindex, strategy.Type)
	assert.True(t, strategy.CanAutoRecover)

	neverIndexed := interruptedRepo("fresh", time.Minute)
	neverIndexed.LastIndexedCommitSHA = ""
	strategy = c.EvaluateRecoveryStrategy(neverIndexed)
	assert.Equal(t, RecoveryManual, strategy.Type)
	assert.False(t, strategy.CanAutoRecover)
}

func TestExecuteRecovery_Resume(t *testing.T) {
	stuck := interruptedRepo("stuck", time.Minute)
	store := newMemStore(stuck)
	git := &fakeGit{head: "aaa111"}
	c := newTestCoordinator(store, &fakePipe{}, nil, git)

	outcome, err := c.ExecuteRecovery(context.Background(), stuck, RecoveryStrategy{Type: RecoveryResume})
	require.NoError(t, err)

	assert.Equal(t, RecoveryResume, outcome.Strategy)
	require.NotNil(t, outcome.Update)
	assert.Equal(t, models.CoordinatorNoChanges, outcome.Update.Status)
	assert.False(t, store.repos["stuck"].UpdateInProgress)
}

func TestExecuteRecovery_ResumeReplaysPendingChanges(t *testing.T) {
	stuck := interruptedRepo("stuck", time.Minute)
	store := newMemStore(stuck)
	git := &fakeGit{
		head: "bbb222",
		diff: []models.FileChange{{Path: "src/a.ts", Status: models.ChangeAdded}},
	}
	pipe := &fakePipe{result: &models.UpdateResult{
		Stats: models.UpdateStats{FilesAdded: 1, ChunksUpserted: 2},
	}}
	c := newTestCoordinator(store, pipe, nil, git)

	outcome, err := c.ExecuteRecovery(context.Background(), stuck, RecoveryStrategy{Type: RecoveryResume})
	require.NoError(t, err)

	require.NotNil(t, outcome.Update)
	assert.Equal(t, models.CoordinatorUpdated, outcome.Update.Status)
	assert.Equal(t, 1, pipe.calls)
	assert.Equal(t, "bbb222", store.repos["stuck"].LastIndexedCommitSHA)
	assert.False(t, store.repos["stuck"].UpdateInProgress)
}

func TestExecuteRecovery_FullReindex(t *testing.T) {
	stuck := interruptedRepo("stuck", time.Minute)
	store := newMemStore(stuck)
	c := newTestCoordinator(store, &fakePipe{}, nil, nil)

	// Without the dependency wired, recovery refuses with a pointer to the
	// manual command.
	_, err := c.ExecuteRecovery(context.Background(), stuck, RecoveryStrategy{Type: RecoveryFullReindex})
	require.Error(t, err)
	assert.Equal(t, errors.KindConfig, errors.KindOf(err))
	assert.Contains(t, err.Error(), "cgraph index")

	reindexer := &fakeReindexer{}
	c.SetReindexer(reindexer)

	outcome, err := c.ExecuteRecovery(context.Background(), stuck, RecoveryStrategy{Type: RecoveryFullReindex})
	require.NoError(t, err)

	assert.Equal(t, RecoveryFullReindex, outcome.Strategy)
	assert.Equal(t, 1, reindexer.calls)
	assert.Equal(t, "stuck", reindexer.got.Name)
	assert.False(t, store.repos["stuck"].UpdateInProgress)
}

func TestExecuteRecovery_Manual(t *testing.T) {
	stuck := interruptedRepo("stuck", time.Minute)
	stuck.LastIndexedCommitSHA = ""
	store := newMemStore(stuck)
	c := newTestCoordinator(store, &fakePipe{}, nil, nil)

	outcome, err := c.ExecuteRecovery(context.Background(), stuck, RecoveryStrategy{Type: RecoveryManual})
	require.NoError(t, err)

	assert.Equal(t, RecoveryManual, outcome.Strategy)
	assert.Nil(t, outcome.Update)

	repo := store.repos["stuck"]
	assert.False(t, repo.UpdateInProgress)
	assert.Nil(t, repo.UpdateStartedAt)
	assert.Equal(t, models.RepoStatusError, repo.Status)
	assert.NotEmpty(t, repo.ErrorMessage)
}

func TestClearUpdateMarker(t *testing.T) {
	stuck := interruptedRepo("stuck", time.Minute)
	store := newMemStore(stuck)
	c := newTestCoordinator(store, &fakePipe{}, nil, nil)

	require.NoError(t, c.ClearUpdateMarker(context.Background(), "stuck"))
	assert.False(t, store.repos["stuck"].UpdateInProgress)

	err := c.ClearUpdateMarker(context.Background(), "missing")
	assert.Equal(t, errors.KindEntityNotFound, errors.KindOf(err))
}
