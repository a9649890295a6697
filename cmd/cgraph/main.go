package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/codegraphhq/codegraph/internal/config"
	"github.com/codegraphhq/codegraph/internal/logging"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	cfgFile string
	verbose bool
	jsonOut bool
	logger  *logrus.Logger
	cfg     *config.Config
	creds   *config.Credentials
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	logging.Close()
	if err == nil {
		return
	}
	if stderrors.Is(err, context.Canceled) || ctx.Err() != nil {
		fmt.Fprintln(os.Stderr, "Interrupted")
		os.Exit(130)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

var rootCmd = &cobra.Command{
	Use:   "cgraph",
	Short: "CodeGraph - semantic code search and architecture graphs for AI assistants",
	Long: `CodeGraph indexes source repositories into a vector store and a code
graph so AI coding assistants can search code semantically and walk
dependencies, callers and architecture over a tool interface.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = logrus.New()
		if verbose {
			logger.SetLevel(logrus.DebugLevel)
		} else {
			logger.SetLevel(logrus.InfoLevel)
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			logger.WithError(err).Warn("Failed to load config, using defaults")
			cfg = config.Default()
		}
		creds = config.NewCredentials(cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./codegraph.yaml or ~/.codegraph/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "machine-readable JSON output")

	rootCmd.SetVersionTemplate(`CodeGraph {{.Version}}
Build time: ` + BuildTime + `
Git commit: ` + GitCommit + `
`)

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(updateAllCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(resetUpdateCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(configureCmd)
	rootCmd.AddCommand(serveMCPCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if jsonOut {
			printJSON(map[string]string{
				"version":    Version,
				"build_time": BuildTime,
				"git_commit": GitCommit,
			})
			return
		}
		fmt.Printf("CodeGraph %s\n", Version)
		fmt.Printf("Build time: %s\n", BuildTime)
		fmt.Printf("Git commit: %s\n", GitCommit)
	},
}

// printJSON writes v to stdout as indented JSON. Every command's --json
// path funnels through here so the shapes stay consistent.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode JSON output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortSHA(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}
