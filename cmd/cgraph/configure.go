package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codegraphhq/codegraph/internal/config"
	"github.com/codegraphhq/codegraph/internal/errors"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Interactive setup wizard",
	Long: `Walk through backend connections, embedding credentials and storage
settings. Secrets go to the OS keychain; everything else is written to the
config file.`,
	RunE: runConfigure,
}

func runConfigure(cmd *cobra.Command, args []string) error {
	if !config.IsInteractive() {
		return errors.Validation("configure needs an interactive terminal; edit the config file or set environment variables instead")
	}

	reader := bufio.NewReader(os.Stdin)
	keychain := creds.Keyring()
	keychainOK := keychain.IsAvailable()

	fmt.Printf("🔧 CodeGraph Setup\n")
	fmt.Printf("%s\n", strings.Repeat("═", 50))
	fmt.Printf("Press Enter to keep the value in brackets.\n")
	if !keychainOK {
		fmt.Printf("⚠️  OS keychain unavailable; secrets must come from environment variables.\n")
	}

	fmt.Printf("\n[1/6] Local data\n")
	cfg.DataPath = promptString(reader, "Data directory", cfg.DataPath)

	fmt.Printf("\n[2/6] Graph backend\n")
	cfg.Graph.Backend = promptChoice(reader, "Backend", []string{config.GraphBackendNeo4j, config.GraphBackendFalkorDB}, cfg.Graph.Backend)
	if cfg.Graph.Backend == config.GraphBackendNeo4j {
		if !strings.HasPrefix(cfg.Graph.URI, "bolt") && !strings.HasPrefix(cfg.Graph.URI, "neo4j") {
			cfg.Graph.URI = "bolt://localhost:7687"
		}
		cfg.Graph.URI = promptString(reader, "Bolt URI", cfg.Graph.URI)
		cfg.Graph.Username = promptString(reader, "Username", cfg.Graph.Username)
		cfg.Graph.Database = promptString(reader, "Database", cfg.Graph.Database)
	} else {
		if strings.Contains(cfg.Graph.URI, "://") {
			cfg.Graph.URI = "localhost:6379"
		}
		cfg.Graph.URI = promptString(reader, "Redis address", cfg.Graph.URI)
		if cfg.Graph.Database == "" || cfg.Graph.Database == "neo4j" {
			cfg.Graph.Database = "codegraph"
		}
		cfg.Graph.Database = promptString(reader, "Graph key", cfg.Graph.Database)
	}
	storeSecret(keychain, keychainOK,
		fmt.Sprintf("%s password (empty to skip)", cfg.Graph.Backend),
		config.KeyringGraphPasswordItem, graphPasswordEnvName())

	fmt.Printf("\n[3/6] Vector store (Qdrant)\n")
	cfg.Vector.Host = promptString(reader, "Host", cfg.Vector.Host)
	cfg.Vector.Port = promptInt(reader, "gRPC port", cfg.Vector.Port)
	cfg.Vector.Collection = promptString(reader, "Collection", cfg.Vector.Collection)

	fmt.Printf("\n[4/6] Embeddings\n")
	previous := cfg.Embedding.Provider
	cfg.Embedding.Provider = promptChoice(reader, "Provider", []string{config.EmbeddingProviderOpenAI, config.EmbeddingProviderGemini}, cfg.Embedding.Provider)
	if cfg.Embedding.Provider != previous {
		if cfg.Embedding.Provider == config.EmbeddingProviderGemini {
			cfg.Embedding.Model = "gemini-embedding-001"
		} else {
			cfg.Embedding.Model = "text-embedding-3-small"
		}
	}
	cfg.Embedding.Model = promptString(reader, "Model", cfg.Embedding.Model)
	storeSecret(keychain, keychainOK,
		fmt.Sprintf("%s API key (empty to skip)", cfg.Embedding.Provider),
		embeddingKeyringItem(), embeddingKeyEnvName())

	fmt.Printf("\n[5/6] Metadata storage\n")
	cfg.Storage.Driver = promptChoice(reader, "Driver", []string{config.StorageDriverSQLite, config.StorageDriverPostgres}, cfg.Storage.Driver)
	if cfg.Storage.Driver == config.StorageDriverPostgres {
		cfg.Storage.PostgresDSN = promptString(reader, "Postgres DSN", cfg.Storage.PostgresDSN)
	}

	fmt.Printf("\n[6/6] GitHub (optional, raises API rate limits)\n")
	storeSecret(keychain, keychainOK,
		"GitHub token (empty to skip)", config.KeyringGitHubTokenItem, "GITHUB_TOKEN")

	path := cfgFile
	if path == "" {
		path = config.DefaultConfigPath()
	}
	if err := cfg.Save(path); err != nil {
		return err
	}

	fmt.Printf("\n%s\n", strings.Repeat("═", 50))
	fmt.Printf("✅ Configuration saved to %s\n", path)
	fmt.Printf("💡 Next: cgraph index <repository-url>\n")
	return nil
}

func promptString(reader *bufio.Reader, label, current string) string {
	if current != "" {
		fmt.Printf("  %s [%s]: ", label, current)
	} else {
		fmt.Printf("  %s: ", label)
	}
	line, err := reader.ReadString('\n')
	if err != nil {
		return current
	}
	if line = strings.TrimSpace(line); line != "" {
		return line
	}
	return current
}

func promptInt(reader *bufio.Reader, label string, current int) int {
	for {
		raw := promptString(reader, label, strconv.Itoa(current))
		n, err := strconv.Atoi(raw)
		if err == nil && n > 0 {
			return n
		}
		fmt.Printf("  ⚠️  %q is not a valid port\n", raw)
	}
}

func promptChoice(reader *bufio.Reader, label string, options []string, current string) string {
	joined := strings.Join(options, "/")
	for {
		answer := strings.ToLower(promptString(reader, fmt.Sprintf("%s (%s)", label, joined), current))
		for _, opt := range options {
			if answer == opt {
				return opt
			}
		}
		fmt.Printf("  ⚠️  Pick one of: %s\n", joined)
	}
}

// storeSecret captures a secret without echo and stores it in the OS
// keychain. Without a keychain it only points at the environment variable;
// secrets never land in the config file.
func storeSecret(keychain *config.KeyringManager, keychainOK bool, label, item, envName string) {
	if !keychainOK {
		fmt.Printf("  %s: set %s in your environment\n", label, envName)
		return
	}

	existing, _ := keychain.Get(item)
	if existing != "" {
		fmt.Printf("  %s [%s]: ", label, config.MaskSecret(existing))
	} else {
		fmt.Printf("  %s: ", label)
	}

	secret, err := config.ReadSecret()
	if err != nil || secret == "" {
		return
	}
	if err := keychain.Set(item, secret); err != nil {
		fmt.Printf("  ⚠️  Keychain save failed (%v); set %s instead\n", err, envName)
		return
	}
	fmt.Printf("  ✓ Saved to OS keychain (%s)\n", config.MaskSecret(secret))
}

func graphPasswordEnvName() string {
	if cfg.Graph.Backend == config.GraphBackendFalkorDB {
		return "FALKORDB_PASSWORD"
	}
	return "NEO4J_PASSWORD"
}

func embeddingKeyEnvName() string {
	if cfg.Embedding.Provider == config.EmbeddingProviderGemini {
		return "GEMINI_API_KEY"
	}
	return "OPENAI_API_KEY"
}

func embeddingKeyringItem() string {
	if cfg.Embedding.Provider == config.EmbeddingProviderGemini {
		return config.KeyringGeminiKeyItem
	}
	return config.KeyringOpenAIKeyItem
}
