package config

import (
	"fmt"
	"log/slog"

	"github.com/zalando/go-keyring"
)

const (
	// KeyringService is the service name in the OS keychain.
	KeyringService = "CodeGraph"

	// Keychain item names.
	KeyringOpenAIKeyItem     = "openai-api-key"
	KeyringGeminiKeyItem     = "gemini-api-key"
	KeyringGraphPasswordItem = "graph-password"
	KeyringGitHubTokenItem   = "github-token"
)

// KeyringManager stores secrets in the OS keychain:
// macOS Keychain, Windows Credential Manager, or Linux Secret Service.
type KeyringManager struct {
	logger *slog.Logger
}

// NewKeyringManager creates a keyring manager.
func NewKeyringManager() *KeyringManager {
	return &KeyringManager{
		logger: slog.Default().With("component", "keyring"),
	}
}

// Set stores one secret under the given item name.
func (km *KeyringManager) Set(item, secret string) error {
	if secret == "" {
		return fmt.Errorf("secret for %s cannot be empty", item)
	}
	if err := keyring.Set(KeyringService, item, secret); err != nil {
		km.logger.Error("failed to save secret to keychain", "item", item, "error", err)
		return fmt.Errorf("failed to save to OS keychain: %w", err)
	}
	km.logger.Info("secret saved to keychain", "service", KeyringService, "item", item)
	return nil
}

// Get retrieves one secret. A missing entry returns "" without error.
func (km *KeyringManager) Get(item string) (string, error) {
	secret, err := keyring.Get(KeyringService, item)
	if err == keyring.ErrNotFound {
		return "", nil
	}
	if err != nil {
		km.logger.Error("failed to read secret from keychain", "item", item, "error", err)
		return "", fmt.Errorf("failed to read from OS keychain: %w", err)
	}
	return secret, nil
}

// Delete removes one secret. Deleting a missing entry is not an error.
func (km *KeyringManager) Delete(item string) error {
	err := keyring.Delete(KeyringService, item)
	if err == keyring.ErrNotFound {
		return nil
	}
	if err != nil {
		km.logger.Error("failed to delete secret from keychain", "item", item, "error", err)
		return fmt.Errorf("failed to delete from OS keychain: %w", err)
	}
	km.logger.Info("secret deleted from keychain", "item", item)
	return nil
}

// IsAvailable reports whether the OS keychain works on this system.
// Headless systems (CI) usually lack one.
func (km *KeyringManager) IsAvailable() bool {
	_, err := keyring.Get(KeyringService, "availability-probe")
	if err == keyring.ErrNotFound {
		return true
	}
	if err != nil {
		km.logger.Debug("keychain not available", "error", err)
		return false
	}
	return true
}

// embeddingKeyItem maps a provider name to its keychain item.
func embeddingKeyItem(provider string) string {
	if provider == EmbeddingProviderGemini {
		return KeyringGeminiKeyItem
	}
	return KeyringOpenAIKeyItem
}

// MaskSecret masks a secret for display, keeping the first seven and
// last four characters.
func MaskSecret(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	if len(secret) < 12 {
		return "***"
	}
	return fmt.Sprintf("%s...%s", secret[:7], secret[len(secret)-4:])
}
