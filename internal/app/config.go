package app

import (
	"os"
	"path/filepath"
)

// ConfigDir returns ~/.config/scout/ on all platforms.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "scout"), nil
}

// EnsureConfigDir creates the config directory and default config.yaml if missing.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}

	configFile := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return os.WriteFile(configFile, []byte(defaultConfig), 0600)
	}
	return nil
}

const defaultConfig = `# scout configuration
# Run: scout --help

# Optional: override the SQLite database location.
# Can also be set via SCOUT_DB_PATH or --db-path.
# db_path: ~/.config/scout/scout.db

# Optional: directory holding per-entity discovery lock files.
# Can also be set via SCOUT_LOCKS_DIR or --locks-dir.
# locks_dir: ~/.config/scout/locks

# Lock staleness ceiling in minutes. A lock file older than this is
# reclaimable even when the holder pid cannot be probed.
# lock_stale_minutes: 30

# Default lock acquisition timeout in seconds for discovery start.
# lock_timeout_seconds: 10

# Circuit breakers registered at startup. Each entry guards one named
# downstream operation.
# breakers:
#   - name: ai.generate
#     threshold: 3
#     reset_timeout_seconds: 60
#   - name: datasource.fetch
#     threshold: 5
#     reset_timeout_seconds: 30
`
