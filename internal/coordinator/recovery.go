package coordinator

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/codegraphhq/codegraph/internal/errors"
	"github.com/codegraphhq/codegraph/internal/models"
	"github.com/codegraphhq/codegraph/internal/storage"
)

// RecoveryType classifies how an interrupted update can be repaired.
type RecoveryType string

const (
	RecoveryResume      RecoveryType = "resume"
	RecoveryFullReindex RecoveryType = "full_reindex"
	RecoveryManual      RecoveryType = "manual_required"
)

// InterruptedUpdate describes one repository whose update marker is set but
// whose coordinator is no longer running.
type InterruptedUpdate struct {
	Name           string        `json:"name"`
	StartedAt      time.Time     `json:"started_at"`
	Elapsed        time.Duration `json:"elapsed"`
	LastIndexedSHA string        `json:"last_indexed_sha"`
}

// RecoveryStrategy is the evaluated repair plan for one interrupted update.
type RecoveryStrategy struct {
	Type           RecoveryType `json:"type"`
	Reason         string       `json:"reason"`
	CanAutoRecover bool         `json:"can_auto_recover"`
	EstimatedWork  string       `json:"estimated_work,omitempty"`
}

// RecoveryOutcome reports what ExecuteRecovery actually did.
type RecoveryOutcome struct {
	Repository string                    `json:"repository"`
	Strategy   RecoveryType              `json:"strategy"`
	Update     *models.CoordinatorResult `json:"update,omitempty"`
	Message    string                    `json:"message"`
}

// DetectInterruptedUpdates lists repositories whose marker is still set.
// With per-repository updates serialised in one process, a set marker and
// no running update means the process died mid-flight.
func (c *Coordinator) DetectInterruptedUpdates(ctx context.Context) ([]InterruptedUpdate, error) {
	infos, err := c.repos.ListInterrupted(ctx)
	if err != nil {
		return nil, errors.Operation(err, "failed to list interrupted updates", false)
	}

	interrupted := make([]InterruptedUpdate, 0, len(infos))
	for _, info := range infos {
		item := InterruptedUpdate{
			Name:           info.Name,
			LastIndexedSHA: info.LastIndexedCommitSHA,
		}
		if info.UpdateStartedAt != nil {
			item.StartedAt = *info.UpdateStartedAt
			item.Elapsed = time.Since(*info.UpdateStartedAt)
		}
		interrupted = append(interrupted, item)
	}
	return interrupted, nil
}

// EvaluateRecoveryStrategy decides the repair plan: resume when the last
// indexed commit and the clone both survive, full re-index when only the
// commit survives, manual otherwise.
func (c *Coordinator) EvaluateRecoveryStrategy(info *models.RepositoryInfo) RecoveryStrategy {
	hasSHA := info.LastIndexedCommitSHA != ""

	cloneOK := false
	if info.LocalPath != "" {
		if _, err := c.openRepo(info.LocalPath); err == nil {
			cloneOK = true
		}
	}

	switch {
	case hasSHA && cloneOK:
		return RecoveryStrategy{
			Type:           RecoveryResume,
			Reason:         "last indexed commit and local clone are both present",
			CanAutoRecover: true,
			EstimatedWork:  fmt.Sprintf("re-apply changes since %s", shortSHA(info.LastIndexedCommitSHA)),
		}
	case hasSHA:
		return RecoveryStrategy{
			Type:           RecoveryFullReindex,
			Reason:         fmt.Sprintf("local clone is missing at %s", info.LocalPath),
			CanAutoRecover: true,
			EstimatedWork:  fmt.Sprintf("full re-index of %s", info.URL),
		}
	default:
		return RecoveryStrategy{
			Type:           RecoveryManual,
			Reason:         "no last indexed commit recorded; the index state is unknown",
			CanAutoRecover: false,
		}
	}
}

// ExecuteRecovery runs the chosen strategy.
//
// Resume re-runs the normal update from the recorded commit; the pipeline's
// delete-before-insert and deterministic document ids make replaying a
// half-applied batch converge. Manual recovery clears the marker, parks the
// repository in error state, and changes nothing else.
func (c *Coordinator) ExecuteRecovery(ctx context.Context, info *models.RepositoryInfo, strategy RecoveryStrategy) (*RecoveryOutcome, error) {
	outcome := &RecoveryOutcome{Repository: info.Name, Strategy: strategy.Type}

	switch strategy.Type {
	case RecoveryResume:
		if err := c.ClearUpdateMarker(ctx, info.Name); err != nil {
			return nil, err
		}
		result, err := c.UpdateRepository(ctx, info.Name)
		if err != nil {
			return nil, err
		}
		outcome.Update = result
		outcome.Message = fmt.Sprintf("resumed from %s: %s", shortSHA(info.LastIndexedCommitSHA), result.Status)
		c.logger.WithFields(logrus.Fields{"repository": info.Name, "status": string(result.Status)}).Info("Recovered interrupted update")
		return outcome, nil

	case RecoveryFullReindex:
		if c.reindex == nil {
			return nil, errors.Config(fmt.Sprintf("automatic re-index is not wired up; run `cgraph index %s` manually", info.URL))
		}
		if err := c.ClearUpdateMarker(ctx, info.Name); err != nil {
			return nil, err
		}
		if err := c.reindex.Reindex(ctx, info); err != nil {
			return nil, errors.Operation(err, "full re-index failed", false)
		}
		outcome.Message = fmt.Sprintf("re-indexed %s from scratch", info.Name)
		c.logger.WithField("repository", info.Name).Info("Recovered via full re-index")
		return outcome, nil

	case RecoveryManual:
		info.UpdateInProgress = false
		info.UpdateStartedAt = nil
		info.Status = models.RepoStatusError
		info.ErrorMessage = "interrupted update could not be recovered automatically; re-index required"
		if err := c.repos.SaveRepository(ctx, info); err != nil {
			return nil, errors.Operation(err, "failed to park repository in error state", false)
		}
		outcome.Message = "marker cleared; repository needs a manual re-index"
		c.logger.WithField("repository", info.Name).Warn("Interrupted update requires manual recovery")
		return outcome, nil

	default:
		return nil, errors.Validationf("unknown recovery strategy: %s", strategy.Type)
	}
}

// ClearUpdateMarker force-clears the interrupted-update marker. Backs the
// plain `cgraph reset-update` path.
func (c *Coordinator) ClearUpdateMarker(ctx context.Context, name string) error {
	if err := c.repos.SetUpdateInProgress(ctx, name, false, nil); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.EntityNotFound("repository", name)
		}
		return errors.Operation(err, "failed to clear update marker", false)
	}
	return nil
}

func shortSHA(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}
