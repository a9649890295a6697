package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codegraphhq/codegraph/internal/indexer"
	"github.com/codegraphhq/codegraph/internal/ingestion"
)

var removeCmd = &cobra.Command{
	Use:   "remove <repo>",
	Short: "Remove a repository from the index and the graph",
	Long: `Delete the repository's vectors, drop its graph and remove its metadata
record. The local clone stays on disk so a later 'cgraph index' is cheap.`,
	Args: cobra.ExactArgs(1),
	RunE: runRemove,
}

func runRemove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name := args[0]

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	vectors, err := openVectors()
	if err != nil {
		return err
	}
	defer vectors.Close()

	// The graph side is best effort: an unreachable backend skips the drop
	// visibly instead of blocking the removal.
	var dropper indexer.GraphDropper
	adapter, err := openGraph(ctx)
	if err != nil {
		logger.WithError(err).Warn("Graph backend unreachable, skipping graph drop")
		if !jsonOut {
			fmt.Printf("⚠️  Graph backend unreachable, skipping graph drop\n")
		}
	} else {
		defer adapter.Close(ctx)
		dropper = ingestion.NewGraphBuilder(adapter, ingestion.Config{})
	}

	engine := newIndexEngine(store, nil, vectors, dropper, cfg.Embedding.Dimensions)
	if err := engine.Remove(ctx, name); err != nil {
		return err
	}

	if jsonOut {
		return printJSON(map[string]any{
			"repository":    name,
			"removed":       true,
			"graph_dropped": dropper != nil,
		})
	}
	fmt.Printf("✅ Removed %s\n", name)
	fmt.Printf("   Local clone kept under %s/repos\n", cfg.DataPath)
	return nil
}
