package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// loadEnvFiles loads .env files before viper reads the environment.
// Discovery walks upward from the working directory so commands run from
// a subdirectory of a development tree still find the project .env.
// Already-set variables are never overwritten.
func loadEnvFiles() {
	if path, err := findEnvFile(); err == nil {
		_ = godotenv.Load(path)
	}

	// A user-level .env provides credentials for packaged installs.
	if homeDir, err := os.UserHomeDir(); err == nil {
		homeEnv := filepath.Join(homeDir, ".codegraph", ".env")
		if _, err := os.Stat(homeEnv); err == nil {
			_ = godotenv.Load(homeEnv)
		}
	}
}

// findEnvFile searches the working directory and its ancestors for a
// .env file.
func findEnvFile() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		candidate := filepath.Join(dir, ".env")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", os.ErrNotExist
		}
		dir = parent
	}
}
