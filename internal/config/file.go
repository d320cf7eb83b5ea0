package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

const (
	defaultConfigPath = "~/.config/storefront/config.toml"
	defaultDotEnvPath = ".env"
)

type fileValues struct {
	API struct {
		BaseURL   string  `toml:"base_url"`
		Timeout   string  `toml:"timeout"`
		UserAgent string  `toml:"user_agent"`
		RateLimit float64 `toml:"rate_limit"`
	} `toml:"api"`
	Credentials struct {
		Mode           string `toml:"mode"`
		TokenFile      string `toml:"token_file"`
		Passphrase     string `toml:"passphrase"`
		GoogleClientID string `toml:"google_client_id"`
	} `toml:"credentials"`
	Log struct {
		Level string `toml:"level"`
	} `toml:"log"`
}

func loadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		path = defaultDotEnvPath
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func loadFile(path string) (fileValues, error) {
	var values fileValues

	resolved, err := resolvePath(path)
	if err != nil {
		return values, err
	}

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return values, nil
		}
		return values, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return values, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(bytes, &values); err != nil {
		return values, fmt.Errorf("parse config: %w", err)
	}
	return values, nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return ExpandPath(defaultConfigPath)
	}
	return ExpandPath(path)
}

// ExpandPath resolves a leading "~" to the user's home directory and returns
// an absolute path.
func ExpandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
