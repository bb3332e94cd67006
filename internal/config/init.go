package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrConfigExists indicates a config file is already present and force was
// not requested.
var ErrConfigExists = errors.New("config file already exists")

// DefaultYAML renders the default configuration as a commented YAML
// document. sqlite_path depends on the config directory, so it is a
// parameter rather than a constant.
func DefaultYAML(configDir string) string {
	return fmt.Sprintf(`# lore configuration. Environment variables (LORE_*, DATABASE_URL)
# override values in this file.

# AI provider: "ollama" (default) or "gemini"
provider: %s
model_name: llama3
temperature: 0.7
ollama_host: http://localhost:11434
embedder_model: %s

# Retrieval
top_k: %d
min_score: %g

# Ingestion
chunk_size: %d

# Session storage (SQLite)
sqlite_path: %s

# Vector corpus (PostgreSQL + pgvector)
postgres_host: localhost
postgres_port: 5432
postgres_user: lore
postgres_password: lore_dev_password
postgres_db_name: lore
postgres_ssl_mode: disable

# HTTP server (serve mode only)
http_addr: %s
`,
		ProviderOllama,
		DefaultOllamaEmbedderModel,
		DefaultTopK,
		DefaultMinScore,
		DefaultChunkSize,
		filepath.Join(configDir, "lore.db"),
		DefaultHTTPAddr,
	)
}

// WriteDefault writes the default config.yaml into dir and returns its
// path. When the file already exists, force makes a timestamped backup and
// overwrites; without force ErrConfigExists is returned. backup is empty
// unless a backup was taken.
func WriteDefault(dir string, force bool) (path, backup string, err error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", "", fmt.Errorf("creating config directory: %w", err)
	}
	path = filepath.Join(dir, "config.yaml")

	if _, statErr := os.Stat(path); statErr == nil {
		if !force {
			return "", "", fmt.Errorf("%w: %s", ErrConfigExists, path)
		}
		backup = path + ".bak-" + time.Now().Format("20060102-1504")
		existing, readErr := os.ReadFile(path)
		if readErr != nil {
			return "", "", fmt.Errorf("reading existing config: %w", readErr)
		}
		if writeErr := os.WriteFile(backup, existing, 0o600); writeErr != nil {
			return "", "", fmt.Errorf("backing up existing config: %w", writeErr)
		}
	} else if !os.IsNotExist(statErr) {
		return "", "", fmt.Errorf("checking existing config: %w", statErr)
	}

	if err := os.WriteFile(path, []byte(DefaultYAML(dir)), 0o600); err != nil {
		return "", "", fmt.Errorf("writing config file: %w", err)
	}
	return path, backup, nil
}
