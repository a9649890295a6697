package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/codegraphhq/codegraph/internal/config"
)

var indexCmd = &cobra.Command{
	Use:   "index <url>",
	Short: "Clone and fully index a repository",
	Long: `Clone the repository, chunk every in-scope file, embed the chunks and
store them in the vector collection. Run 'cgraph graph populate' afterwards
to build the code graph.`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	url := args[0]

	if err := validateConfig(config.ContextIndex); err != nil {
		return err
	}

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

	embedder, err := openEmbedder(ctx)
	if err != nil {
		return err
	}

	engine := newIndexEngine(store, newPipeline(vectors, embedder), vectors, nil, embedder.Dimensions())

	if !jsonOut {
		fmt.Printf("🔄 Indexing %s...\n", url)
	}
	start := time.Now()

	info, result, err := engine.Index(ctx, url)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(map[string]any{
			"repository": info,
			"result":     result,
		})
	}

	fmt.Printf("✅ Indexed %s in %s\n", info.Name, time.Since(start).Round(time.Second))
	fmt.Printf("   Branch: %s @ %s\n", info.Branch, shortSHA(info.LastIndexedCommitSHA))
	fmt.Printf("   Files: %d, chunks: %d\n", info.FileCount, info.ChunkCount)
	if len(result.Errors) > 0 {
		fmt.Printf("   ⚠️  %d files failed, see logs for details\n", len(result.Errors))
	}
	fmt.Printf("💡 Run 'cgraph graph populate %s' to build the code graph\n", info.Name)
	return nil
}
