package main

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/codegraphhq/codegraph/internal/config"
	"github.com/codegraphhq/codegraph/internal/errors"
	"github.com/codegraphhq/codegraph/internal/graph"
	"github.com/codegraphhq/codegraph/internal/ingestion"
	"github.com/codegraphhq/codegraph/internal/migration"
	"github.com/codegraphhq/codegraph/internal/scanner"
	"github.com/codegraphhq/codegraph/internal/storage"
)

var (
	populateForce  bool
	transferSource string
	transferTarget string
	transferDryRun bool
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Build and manage the code graph",
}

var graphPopulateCmd = &cobra.Command{
	Use:   "populate <repo>",
	Short: "Parse an indexed repository into the code graph",
	Long: `Parse the repository's source with tree-sitter and write file, function,
class and import nodes plus their relationships to the graph backend.
Requires the repository to be indexed first.`,
	Args: cobra.ExactArgs(1),
	RunE: runGraphPopulate,
}

var graphTransferCmd = &cobra.Command{
	Use:   "transfer --source <backend> --target <backend>",
	Short: "Copy the graph between neo4j and falkordb",
	Long: `Export every node and relationship from the source backend and import
them into the target, then spot-check the copy. The backend matching the
active configuration uses its configured coordinates; the other side reads
NEO4J_* or FALKORDB_* environment variables.`,
	RunE: runGraphTransfer,
}

func init() {
	graphPopulateCmd.Flags().BoolVar(&populateForce, "force", false, "drop the repository's existing graph before building")

	graphTransferCmd.Flags().StringVar(&transferSource, "source", "", "source backend (neo4j or falkordb)")
	graphTransferCmd.Flags().StringVar(&transferTarget, "target", "", "target backend (neo4j or falkordb)")
	graphTransferCmd.Flags().BoolVar(&transferDryRun, "dry-run", false, "export and report counts without writing")
	graphTransferCmd.MarkFlagRequired("source")
	graphTransferCmd.MarkFlagRequired("target")

	graphCmd.AddCommand(graphPopulateCmd, graphTransferCmd)
}

func runGraphPopulate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name := args[0]

	if err := validateConfig(config.ContextGraph); err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	info, err := store.GetRepository(ctx, name)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.Validationf("repository %s is not indexed; run `cgraph index <url>` first", name)
		}
		return err
	}
	if info.LocalPath == "" {
		return errors.Validationf("repository %s has no local clone recorded; re-run `cgraph index %s`", name, info.URL)
	}

	adapter, err := openGraph(ctx)
	if err != nil {
		return err
	}
	defer adapter.Close(ctx)

	filter, err := scanner.NewFilter(cfg.Index.IncludeExtensions, cfg.Index.ExcludePatterns)
	if err != nil {
		return err
	}

	builder := ingestion.NewGraphBuilder(adapter, ingestion.Config{})

	if !jsonOut {
		fmt.Printf("🔄 Populating graph for %s (%s)...\n", name, cfg.Graph.Backend)
	}

	stats, err := builder.Populate(ctx, ingestion.PopulateJob{
		Repository: name,
		URL:        info.URL,
		LocalPath:  info.LocalPath,
		Filter:     filter,
		Force:      populateForce,
	})
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(map[string]any{
			"repository":    name,
			"files_total":   stats.FilesTotal,
			"files_parsed":  stats.FilesParsed,
			"files_failed":  stats.FilesFailed,
			"functions":     stats.Functions,
			"classes":       stats.Classes,
			"imports":       stats.Imports,
			"nodes":         stats.Nodes,
			"relationships": stats.Relationships,
			"duration_ms":   stats.Duration.Milliseconds(),
		})
	}

	fmt.Printf("✅ Graph built for %s in %s\n", name, stats.Duration.Round(time.Second))
	fmt.Printf("   Files: %d parsed / %d total", stats.FilesParsed, stats.FilesTotal)
	if stats.FilesFailed > 0 {
		fmt.Printf(" (%d failed)", stats.FilesFailed)
	}
	fmt.Println()
	fmt.Printf("   Entities: %d functions, %d classes, %d imports\n",
		stats.Functions, stats.Classes, stats.Imports)
	fmt.Printf("   Written: %d nodes, %d relationships\n", stats.Nodes, stats.Relationships)
	return nil
}

func runGraphTransfer(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if transferSource == transferTarget {
		return errors.Validation("source and target backends must differ")
	}

	sourceCfg, err := transferGraphConfig(transferSource)
	if err != nil {
		return err
	}
	targetCfg, err := transferGraphConfig(transferTarget)
	if err != nil {
		return err
	}

	source, err := graph.New(sourceCfg)
	if err != nil {
		return err
	}
	if err := source.Connect(ctx); err != nil {
		return errors.Connectionf(err, "connect to source %s at %s", transferSource, sourceCfg.URI)
	}
	defer source.Close(ctx)

	target, err := graph.New(targetCfg)
	if err != nil {
		return err
	}
	if err := target.Connect(ctx); err != nil {
		return errors.Connectionf(err, "connect to target %s at %s", transferTarget, targetCfg.URI)
	}
	defer target.Close(ctx)

	migrator, err := migration.New(source, target, migration.Options{DryRun: transferDryRun}, logger)
	if err != nil {
		return err
	}

	if !jsonOut {
		mode := "Transferring"
		if transferDryRun {
			mode = "Dry run:"
		}
		fmt.Printf("🔄 %s %s → %s...\n", mode, transferSource, transferTarget)
	}

	result, err := migrator.Run(ctx)
	if err != nil {
		return err
	}

	if jsonOut {
		if err := printJSON(result); err != nil {
			return err
		}
	} else {
		printTransferResult(result)
	}

	if !result.DryRun && !result.IsValid {
		return errors.New(errors.KindOperation, "transfer validation failed; the target may be incomplete")
	}
	return nil
}

func printTransferResult(result *migration.Result) {
	if result.DryRun {
		fmt.Printf("📊 Dry run: %d nodes and %d relationships would transfer\n",
			result.NodesExported, result.RelationshipsExported)
		return
	}

	fmt.Printf("✅ Transferred %d/%d nodes, %d/%d relationships in %s\n",
		result.NodesImported, result.NodesExported,
		result.RelationshipsImported, result.RelationshipsExported,
		(time.Duration(result.DurationMs) * time.Millisecond).Round(time.Millisecond))
	if len(result.Skipped) > 0 {
		fmt.Printf("   ⚠️  %d items skipped\n", len(result.Skipped))
	}
	if len(result.Discrepancies) > 0 {
		fmt.Printf("   ⚠️  %d validation discrepancies:\n", len(result.Discrepancies))
		for i, d := range result.Discrepancies {
			if i == 5 {
				fmt.Printf("      ... and %d more\n", len(result.Discrepancies)-5)
				break
			}
			fmt.Printf("      %s: %s\n", d.Check, d.Detail)
		}
	}
	if result.IsValid {
		fmt.Printf("   Validation passed (run %s)\n", result.RunID)
	}
}
