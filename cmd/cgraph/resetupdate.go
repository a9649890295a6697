package main

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/codegraphhq/codegraph/internal/coordinator"
	"github.com/codegraphhq/codegraph/internal/errors"
	"github.com/codegraphhq/codegraph/internal/storage"
)

// An update younger than this may still be running in another process;
// clearing its marker then would let two writers race.
const resetUpdateGuard = 10 * time.Minute

var (
	resetRecover bool
	resetForce   bool
)

var resetUpdateCmd = &cobra.Command{
	Use:   "reset-update <repo>",
	Short: "Clear an interrupted update marker",
	Long: `Clear the update-in-progress marker left behind by a crashed update.
With --recover, evaluate what state survived and repair the index by
resuming the update or re-indexing from scratch.`,
	Args: cobra.ExactArgs(1),
	RunE: runResetUpdate,
}

func init() {
	resetUpdateCmd.Flags().BoolVar(&resetRecover, "recover", false, "repair the index instead of just clearing the marker")
	resetUpdateCmd.Flags().BoolVar(&resetForce, "force", false, "skip the recent-update guard; with --recover, re-index even when state is unknown")
}

func runResetUpdate(cmd *cobra.Command, args []string) error {
	if resetRecover {
		return runRecover(cmd, args[0])
	}
	ctx := cmd.Context()
	name := args[0]

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	info, err := store.GetRepository(ctx, name)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.EntityNotFound("repository", name)
		}
		return err
	}
	if !info.UpdateInProgress {
		fmt.Printf("✓ No interrupted update for %s\n", name)
		return nil
	}

	if info.UpdateStartedAt != nil && !resetForce {
		if elapsed := time.Since(*info.UpdateStartedAt); elapsed < resetUpdateGuard {
			return errors.Validationf(
				"update of %s started only %s ago and may still be running; pass --force to clear anyway",
				name, elapsed.Round(time.Second))
		}
	}

	coord := newCoordinator(store, nil)
	if err := coord.ClearUpdateMarker(ctx, name); err != nil {
		return err
	}

	if jsonOut {
		return printJSON(map[string]any{"repository": name, "marker_cleared": true})
	}
	fmt.Printf("✅ Cleared update marker for %s\n", name)
	fmt.Printf("💡 Run 'cgraph update %s' to bring the index current\n", name)
	return nil
}

func runRecover(cmd *cobra.Command, name string) error {
	ctx := cmd.Context()

	coord, store, cleanup, err := updateCoordinator(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	info, err := store.GetRepository(ctx, name)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.EntityNotFound("repository", name)
		}
		return err
	}
	if !info.UpdateInProgress {
		fmt.Printf("✓ No interrupted update for %s\n", name)
		return nil
	}

	strategy := coord.EvaluateRecoveryStrategy(info)
	if strategy.Type == coordinator.RecoveryManual && resetForce {
		strategy = coordinator.RecoveryStrategy{
			Type:           coordinator.RecoveryFullReindex,
			Reason:         "forced full re-index (--force)",
			CanAutoRecover: true,
			EstimatedWork:  fmt.Sprintf("full re-index of %s", info.URL),
		}
	}

	if !jsonOut {
		fmt.Printf("🔍 Recovery strategy for %s: %s\n", name, strategy.Type)
		fmt.Printf("   %s\n", strategy.Reason)
		if strategy.EstimatedWork != "" {
			fmt.Printf("   Estimated work: %s\n", strategy.EstimatedWork)
		}
	}

	outcome, err := coord.ExecuteRecovery(ctx, info, strategy)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(outcome)
	}

	switch outcome.Strategy {
	case coordinator.RecoveryManual:
		fmt.Printf("⚠️  %s\n", outcome.Message)
		fmt.Printf("💡 Run 'cgraph index %s' to rebuild, or retry with --force\n", info.URL)
	default:
		fmt.Printf("✅ %s\n", outcome.Message)
	}
	return nil
}
