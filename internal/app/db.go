package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDBPath resolves the database path.
// Order of precedence:
// 1) CLI override (e.g. --db-path)
// 2) Environment variable: SCOUT_DB_PATH
// 3) config.yaml: db_path
// 4) Default: ~/.config/scout/scout.db
// Returns an absolute path to scout.db and ensures the parent directory exists.
func GetDBPath() (string, error) {
	if override := getDBPathOverride(); override != "" {
		return EnsureDBDir(override)
	}

	if envPath := os.Getenv("SCOUT_DB_PATH"); envPath != "" {
		return EnsureDBDir(envPath)
	}

	cfg, err := LoadSettings()
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.DBPath != "" {
		return EnsureDBDir(cfg.DBPath)
	}

	configDir, err := ConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine config directory: %w", err)
	}
	return EnsureDBDir(filepath.Join(configDir, "scout.db"))
}

// GetLocksDir resolves the directory holding per-entity discovery lock files.
// Order of precedence mirrors GetDBPath:
// 1) CLI override (--locks-dir)
// 2) SCOUT_LOCKS_DIR
// 3) config.yaml: locks_dir
// 4) Default: ~/.config/scout/locks
// The directory is created if missing.
func GetLocksDir() (string, error) {
	if override := getLocksDirOverride(); override != "" {
		return ensureDir(override)
	}

	if envDir := os.Getenv("SCOUT_LOCKS_DIR"); envDir != "" {
		return ensureDir(envDir)
	}

	cfg, err := LoadSettings()
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.LocksDir != "" {
		return ensureDir(cfg.LocksDir)
	}

	configDir, err := ConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine config directory: %w", err)
	}
	return ensureDir(filepath.Join(configDir, "locks"))
}

// EnsureDBDir ensures the parent directory of dbPath exists.
func EnsureDBDir(dbPath string) (string, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create database directory: %w", err)
	}
	return dbPath, nil
}

func ensureDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return dir, nil
}
