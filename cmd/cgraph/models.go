package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/codegraphhq/codegraph/internal/embeddings"
	"github.com/codegraphhq/codegraph/internal/errors"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage the embedding model catalog",
	Long: `Inspect and edit the embedding model catalog at {DATA_PATH}/models.json.
The catalog records the dimensionality of every usable embedding model; the
active provider/model pair must have an entry before indexing.`,
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog entries",
	RunE:  runModelsList,
}

var modelsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the catalog path and the active model's entry",
	RunE:  runModelsStatus,
}

var modelsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Embed one probe text with the active model",
	RunE:  runModelsValidate,
}

var modelsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Empty the catalog",
	RunE:  runModelsClear,
}

var modelsPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the catalog file path",
	RunE:  runModelsPath,
}

var modelsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Merge entries from a JSON file into the catalog",
	Args:  cobra.ExactArgs(1),
	RunE:  runModelsImport,
}

func init() {
	modelsCmd.AddCommand(modelsListCmd, modelsStatusCmd, modelsValidateCmd,
		modelsClearCmd, modelsPathCmd, modelsImportCmd)
}

func openCatalog() (*embeddings.Catalog, error) {
	return embeddings.NewCatalog(cfg.DataPath)
}

func runModelsList(cmd *cobra.Command, args []string) error {
	catalog, err := openCatalog()
	if err != nil {
		return err
	}

	entries := catalog.List()
	if jsonOut {
		return printJSON(entries)
	}

	if len(entries) == 0 {
		fmt.Printf("Catalog is empty. Run 'cgraph models import <file>' to add entries.\n")
		return nil
	}

	fmt.Printf("📚 Embedding models (%d):\n", len(entries))
	for _, entry := range entries {
		marker := "  "
		if entry.Provider == cfg.Embedding.Provider && entry.Model == cfg.Embedding.Model {
			marker = "▶ "
		}
		fmt.Printf("  %s%-8s %-28s %d dims\n", marker, entry.Provider, entry.Model, entry.Dimensions)
	}
	return nil
}

func runModelsStatus(cmd *cobra.Command, args []string) error {
	catalog, err := openCatalog()
	if err != nil {
		return err
	}

	status := catalog.Status(cfg.Embedding.Provider, cfg.Embedding.Model)
	if jsonOut {
		return printJSON(status)
	}

	fmt.Printf("📚 Model catalog: %s (%d entries)\n", status.Path, status.Entries)
	if status.Active != nil {
		fmt.Printf("✅ Active model %s/%s is catalogued at %d dims\n",
			status.Active.Provider, status.Active.Model, status.Active.Dimensions)
	} else {
		fmt.Printf("⚠️  Active model %s/%s has no catalog entry\n",
			cfg.Embedding.Provider, cfg.Embedding.Model)
		fmt.Printf("💡 Run 'cgraph models validate' to probe it, or import an entry\n")
	}
	return nil
}

func runModelsValidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	catalog, err := openCatalog()
	if err != nil {
		return err
	}

	apiKey := creds.EmbeddingAPIKey()
	if apiKey == "" {
		return errors.Configf("no API key for %s; run `cgraph configure` or set the provider's environment variable",
			cfg.Embedding.Provider)
	}

	// Probe the catalogued dimensionality when an entry exists, otherwise
	// whatever the config asks for.
	entry := embeddings.CatalogEntry{
		Provider:   cfg.Embedding.Provider,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
	}
	if status := catalog.Status(entry.Provider, entry.Model); status.Active != nil {
		entry = *status.Active
	}

	if !jsonOut {
		fmt.Printf("🔄 Probing %s/%s...\n", entry.Provider, entry.Model)
	}

	result := embeddings.Probe(ctx, entry, apiKey)
	if jsonOut {
		if err := printJSON(result); err != nil {
			return err
		}
	} else if result.OK {
		fmt.Printf("✅ %s/%s embeds at %d dims (%dms)\n",
			result.Provider, result.Model, result.Dimensions, result.DurationMs)
	} else {
		fmt.Printf("❌ %s/%s failed: %s\n", result.Provider, result.Model, result.Error)
	}

	if !result.OK {
		return errors.New(errors.KindOperation, "model validation failed")
	}
	return nil
}

func runModelsClear(cmd *cobra.Command, args []string) error {
	catalog, err := openCatalog()
	if err != nil {
		return err
	}
	if err := catalog.Clear(); err != nil {
		return err
	}

	if jsonOut {
		return printJSON(map[string]any{"cleared": true, "path": catalog.Path()})
	}
	fmt.Printf("✅ Catalog cleared: %s\n", catalog.Path())
	return nil
}

func runModelsPath(cmd *cobra.Command, args []string) error {
	catalog, err := openCatalog()
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(map[string]string{"path": catalog.Path()})
	}
	fmt.Println(catalog.Path())
	return nil
}

func runModelsImport(cmd *cobra.Command, args []string) error {
	catalog, err := openCatalog()
	if err != nil {
		return err
	}

	start := time.Now()
	stats, err := catalog.Import(args[0])
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(stats)
	}
	fmt.Printf("✅ Imported %s in %s: %d added, %d updated\n",
		args[0], time.Since(start).Round(time.Millisecond), stats.Added, stats.Updated)
	return nil
}
