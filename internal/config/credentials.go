package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"
)

// Credentials resolves secrets through a priority chain:
// environment variable, then OS keychain, then the loaded config file.
// Nothing here prompts; interactive capture belongs to `configure`.
type Credentials struct {
	keyring *KeyringManager
	cfg     *Config
}

// NewCredentials builds the resolver for a loaded configuration.
func NewCredentials(cfg *Config) *Credentials {
	return &Credentials{keyring: NewKeyringManager(), cfg: cfg}
}

// EmbeddingAPIKey resolves the API key for the configured embedding
// provider. An empty result means no key is configured anywhere.
func (c *Credentials) EmbeddingAPIKey() string {
	envName := "OPENAI_API_KEY"
	if c.cfg.Embedding.Provider == EmbeddingProviderGemini {
		envName = "GEMINI_API_KEY"
	}
	if key := os.Getenv(envName); key != "" {
		return key
	}

	if c.keyring.IsAvailable() {
		if key, err := c.keyring.Get(embeddingKeyItem(c.cfg.Embedding.Provider)); err == nil && key != "" {
			return key
		}
	}

	return c.cfg.Embedding.APIKey
}

// GraphPassword resolves the graph backend password.
func (c *Credentials) GraphPassword() string {
	envName := "NEO4J_PASSWORD"
	if c.cfg.Graph.Backend == GraphBackendFalkorDB {
		envName = "FALKORDB_PASSWORD"
	}
	if pass := os.Getenv(envName); pass != "" {
		return pass
	}

	if c.keyring.IsAvailable() {
		if pass, err := c.keyring.Get(KeyringGraphPasswordItem); err == nil && pass != "" {
			return pass
		}
	}

	return c.cfg.Graph.Password
}

// GitHubToken resolves the GitHub API token. The token is optional;
// public repositories work without one.
func (c *Credentials) GitHubToken() string {
	for _, envName := range []string{"GITHUB_TOKEN", "GH_TOKEN"} {
		if token := os.Getenv(envName); token != "" {
			return token
		}
	}

	if c.keyring.IsAvailable() {
		if token, err := c.keyring.Get(KeyringGitHubTokenItem); err == nil && token != "" {
			return token
		}
	}

	return c.cfg.GitHub.Token
}

// Keyring exposes the underlying keychain for `configure`.
func (c *Credentials) Keyring() *KeyringManager {
	return c.keyring
}

// ReadSecret reads a secret from stdin without echoing when stdin is a
// terminal; piped input falls back to a plain line read.
func ReadSecret() (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(raw)), nil
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// IsInteractive reports whether stdin is a terminal.
func IsInteractive() bool {
	return term.IsTerminal(int(syscall.Stdin))
}
