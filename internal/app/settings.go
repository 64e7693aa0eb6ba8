package app

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Settings represents configuration loaded from config.yaml.
// Field names match snake_case YAML keys.
type Settings struct {
	DBPath             string            `yaml:"db_path"`
	LocksDir           string            `yaml:"locks_dir"`
	LockStaleMinutes   int               `yaml:"lock_stale_minutes"`
	LockTimeoutSeconds int               `yaml:"lock_timeout_seconds"`
	Breakers           []BreakerSettings `yaml:"breakers"`
}

// BreakerSettings declares one circuit breaker to register at startup.
type BreakerSettings struct {
	Name                string `yaml:"name"`
	Threshold           int    `yaml:"threshold"`
	ResetTimeoutSeconds int    `yaml:"reset_timeout_seconds"`
}

// LockSettings are effective runtime values used by the lock manager and tracker.
type LockSettings struct {
	StaleMinutes   int `json:"stale_minutes"`
	TimeoutSeconds int `json:"timeout_seconds"`
}

const (
	defaultLockStaleMinutes   = 30
	defaultLockTimeoutSeconds = 10
)

// EffectiveLockSettings returns validated lock settings with defaults.
// Invalid or missing config values fall back to safe defaults.
func EffectiveLockSettings() LockSettings {
	cfg := LockSettings{
		StaleMinutes:   defaultLockStaleMinutes,
		TimeoutSeconds: defaultLockTimeoutSeconds,
	}

	s, err := LoadSettings()
	if err != nil {
		return cfg
	}

	if s.LockStaleMinutes > 0 {
		cfg.StaleMinutes = s.LockStaleMinutes
	}
	if s.LockTimeoutSeconds > 0 {
		cfg.TimeoutSeconds = s.LockTimeoutSeconds
	}

	// A ceiling above a day means a crashed holder blocks discovery for a day.
	if cfg.StaleMinutes > 1440 {
		cfg.StaleMinutes = 1440
	}
	if cfg.TimeoutSeconds > 600 {
		cfg.TimeoutSeconds = 600
	}
	return cfg
}

// settingsOnce, settings, settingsErr implement the sync.Once lazy-load singleton for config.
// pathOverrideMu guards process-wide overrides for CLI --db-path / --locks-dir.
//
//nolint:gochecknoglobals // sync.Once singleton + RWMutex override are intentional process-wide state
var (
	settingsOnce sync.Once
	settings     Settings
	settingsErr  error

	pathOverrideMu   sync.RWMutex
	dbPathOverride   string
	locksDirOverride string
)

// SetDBPathOverride sets a process-wide database path override.
// Intended for CLI flag support (e.g. --db-path).
func SetDBPathOverride(path string) {
	pathOverrideMu.Lock()
	dbPathOverride = path
	pathOverrideMu.Unlock()
}

func getDBPathOverride() string {
	pathOverrideMu.RLock()
	v := dbPathOverride
	pathOverrideMu.RUnlock()
	return v
}

// SetLocksDirOverride sets a process-wide locks directory override.
// Intended for CLI flag support (e.g. --locks-dir).
func SetLocksDirOverride(dir string) {
	pathOverrideMu.Lock()
	locksDirOverride = dir
	pathOverrideMu.Unlock()
}

func getLocksDirOverride() string {
	pathOverrideMu.RLock()
	v := locksDirOverride
	pathOverrideMu.RUnlock()
	return v
}

// LoadSettings loads configuration once using the documented lookup order.
// Lookup order (first found wins):
// 1) ~/.config/scout/config.yaml
// 2) /etc/scout/config.yaml
// 3) ./config.yaml (lowest priority; allows repo-local overrides if desired)
// Environment variables are handled separately.
func LoadSettings() (Settings, error) {
	settingsOnce.Do(func() {
		settings = Settings{}

		// 1) User config (~/.config/scout/config.yaml)
		dir, err := ConfigDir()
		if err != nil {
			settingsErr = err
			return
		}
		if s, err := loadSettingsFile(filepath.Join(dir, "config.yaml")); err == nil {
			settings = s
			return
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			settingsErr = err
			return
		}

		// 2) /etc
		if s, err := loadSettingsFile(filepath.Join(string(os.PathSeparator), "etc", "scout", "config.yaml")); err == nil {
			settings = s
			return
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			settingsErr = err
			return
		}

		// 3) Local ./config.yaml (lowest priority)
		if s, err := loadSettingsFile("config.yaml"); err == nil {
			settings = s
			return
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			settingsErr = err
			return
		}
	})

	return settings, settingsErr
}

func loadSettingsFile(path string) (Settings, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, err
	}

	var s Settings
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}
