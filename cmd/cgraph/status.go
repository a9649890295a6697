package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/codegraphhq/codegraph/internal/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and indexed repositories",
	Long:  `Display the active configuration, every indexed repository and any interrupted updates that need attention.`,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	repos, err := store.ListRepositories(ctx)
	if err != nil {
		return err
	}
	interrupted, err := store.ListInterrupted(ctx)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(map[string]any{
			"data_path": cfg.DataPath,
			"graph": map[string]string{
				"backend": cfg.Graph.Backend,
				"uri":     cfg.Graph.URI,
			},
			"vector": map[string]any{
				"host":       cfg.Vector.Host,
				"port":       cfg.Vector.Port,
				"collection": cfg.Vector.Collection,
			},
			"embedding": map[string]string{
				"provider": cfg.Embedding.Provider,
				"model":    cfg.Embedding.Model,
			},
			"repositories": repos,
			"interrupted":  len(interrupted),
		})
	}

	fmt.Printf("🔍 CodeGraph Status\n")
	fmt.Printf("%s\n", strings.Repeat("═", 50))

	fmt.Printf("\n📋 Configuration:\n")
	fmt.Printf("  Data path: %s\n", cfg.DataPath)
	fmt.Printf("  Metadata: %s\n", cfg.Storage.Driver)
	fmt.Printf("  Graph: %s (%s)\n", cfg.Graph.Backend, cfg.Graph.URI)
	fmt.Printf("  Vectors: %s:%d / %s\n", cfg.Vector.Host, cfg.Vector.Port, cfg.Vector.Collection)
	fmt.Printf("  Embeddings: %s / %s\n", cfg.Embedding.Provider, cfg.Embedding.Model)

	fmt.Printf("\n📚 Repositories (%d):\n", len(repos))
	if len(repos) == 0 {
		fmt.Printf("  None indexed yet. Run 'cgraph index <url>' to get started.\n")
	}
	for _, repo := range repos {
		fmt.Printf("  %s %s\n", statusIcon(repo), repo.Name)
		fmt.Printf("      %s @ %s\n", repo.Branch, shortSHA(repo.LastIndexedCommitSHA))
		fmt.Printf("      %d files, %d chunks, indexed %s\n",
			repo.FileCount, repo.ChunkCount, relativeTime(repo.LastIndexedAt))
		if repo.Status == models.RepoStatusError && repo.ErrorMessage != "" {
			fmt.Printf("      ⚠️  %s\n", repo.ErrorMessage)
		}
	}

	if len(interrupted) > 0 {
		fmt.Printf("\n⚠️  Interrupted updates (%d):\n", len(interrupted))
		for _, repo := range interrupted {
			fmt.Printf("  %s", repo.Name)
			if repo.UpdateStartedAt != nil {
				fmt.Printf(" (started %s)", relativeTime(*repo.UpdateStartedAt))
			}
			fmt.Println()
		}
		fmt.Printf("  Run 'cgraph reset-update <repo> --recover' to repair.\n")
	}

	return nil
}

func statusIcon(repo *models.RepositoryInfo) string {
	switch repo.Status {
	case models.RepoStatusReady:
		return "✅"
	case models.RepoStatusIndexing:
		return "🔄"
	default:
		return "❌"
	}
}

func relativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
