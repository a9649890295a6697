package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/codegraphhq/codegraph/internal/config"
	"github.com/codegraphhq/codegraph/internal/coordinator"
	"github.com/codegraphhq/codegraph/internal/errors"
	"github.com/codegraphhq/codegraph/internal/models"
	"github.com/codegraphhq/codegraph/internal/storage"
)

var updateCmd = &cobra.Command{
	Use:   "update <repo>",
	Short: "Incrementally update an indexed repository",
	Long: `Fetch the repository, diff against the last indexed commit and re-embed
only the files that changed. A repository that falls too far behind is
scheduled for a full reindex instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runUpdate,
}

var updateAllCmd = &cobra.Command{
	Use:   "update-all",
	Short: "Incrementally update every indexed repository",
	RunE:  runUpdateAll,
}

func runUpdate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name := args[0]

	coord, _, cleanup, err := updateCoordinator(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if !jsonOut {
		fmt.Printf("🔄 Updating %s...\n", name)
	}

	result, err := coord.UpdateRepository(ctx, name)
	if err != nil {
		return err
	}

	if jsonOut {
		if err := printJSON(result); err != nil {
			return err
		}
	} else {
		printUpdateResult(name, result)
	}

	// A failed batch reports through the result, not the error return.
	if result.Status == models.CoordinatorFailed {
		return errors.New(errors.KindOperation, fmt.Sprintf("update of %s failed", name))
	}
	return nil
}

func runUpdateAll(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	coord, _, cleanup, err := updateCoordinator(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if !jsonOut {
		fmt.Printf("🔄 Updating all repositories...\n")
	}
	start := time.Now()

	updates, err := coord.UpdateAll(ctx)
	if err != nil {
		return err
	}

	if jsonOut {
		out := make([]map[string]any, 0, len(updates))
		for _, u := range updates {
			entry := map[string]any{"repository": u.Repository}
			if u.Skipped != "" {
				entry["skipped"] = u.Skipped
			}
			if u.Result != nil {
				entry["result"] = u.Result
			}
			if u.Err != nil {
				entry["error"] = u.Err.Error()
			}
			out = append(out, entry)
		}
		if err := printJSON(out); err != nil {
			return err
		}
	}

	var failed int
	for _, u := range updates {
		switch {
		case u.Err != nil:
			failed++
			if !jsonOut {
				fmt.Printf("❌ %s: %v\n", u.Repository, u.Err)
			}
		case u.Skipped != "":
			if !jsonOut {
				fmt.Printf("⏭️  %s: %s\n", u.Repository, u.Skipped)
			}
		case u.Result != nil && u.Result.Status == models.CoordinatorFailed:
			failed++
			if !jsonOut {
				printUpdateResult(u.Repository, u.Result)
			}
		default:
			if !jsonOut {
				printUpdateResult(u.Repository, u.Result)
			}
		}
	}

	if !jsonOut {
		fmt.Printf("\n📊 %d repositories in %s, %d failed\n",
			len(updates), time.Since(start).Round(time.Second), failed)
	}
	if failed > 0 {
		return errors.New(errors.KindOperation, fmt.Sprintf("%d of %d updates failed", failed, len(updates)))
	}
	return nil
}

// updateCoordinator assembles the incremental-update stack shared by
// update, update-all and recovery. The cleanup closes both stores.
func updateCoordinator(ctx context.Context) (*coordinator.Coordinator, storage.RepositoryStore, func(), error) {
	if err := validateConfig(config.ContextIndex); err != nil {
		return nil, nil, nil, err
	}

	store, err := openStore()
	if err != nil {
		return nil, nil, nil, err
	}
	vectors, err := openVectors()
	if err != nil {
		store.Close()
		return nil, nil, nil, err
	}
	embedder, err := openEmbedder(ctx)
	if err != nil {
		store.Close()
		vectors.Close()
		return nil, nil, nil, err
	}

	pipe := newPipeline(vectors, embedder)
	coord := newCoordinator(store, pipe)
	engine := newIndexEngine(store, pipe, vectors, nil, embedder.Dimensions())
	coord.SetReindexer(engine)

	cleanup := func() {
		vectors.Close()
		store.Close()
	}
	return coord, store, cleanup, nil
}

func printUpdateResult(name string, result *models.CoordinatorResult) {
	switch result.Status {
	case models.CoordinatorNoChanges:
		fmt.Printf("✓ %s already up to date @ %s\n", name, shortSHA(result.CommitSHA))
	case models.CoordinatorUpdated:
		fmt.Printf("✅ %s updated to %s (%s)\n", name, shortSHA(result.CommitSHA),
			time.Duration(result.DurationMs)*time.Millisecond)
		fmt.Printf("   +%d ~%d -%d files, %d chunks upserted, %d deleted\n",
			result.Stats.FilesAdded, result.Stats.FilesModified, result.Stats.FilesDeleted,
			result.Stats.ChunksUpserted, result.Stats.ChunksDeleted)
		if len(result.Errors) > 0 {
			fmt.Printf("   ⚠️  %d files failed, see logs for details\n", len(result.Errors))
		}
	case models.CoordinatorFailed:
		fmt.Printf("❌ %s update failed\n", name)
		for _, e := range result.Errors {
			fmt.Printf("   %s: %s\n", e.Path, e.Message)
		}
	}
}
