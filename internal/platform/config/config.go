package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings holds the tunables an operator may override in settings.yaml.
// Zero values fall back to defaults.
type Settings struct {
	// GraceWindowDays is the rolling window within which at most one streak
	// grace may be consumed.
	GraceWindowDays int `yaml:"grace_window_days"`
	// GraceMinAgeDays keeps a grace from covering the most recent N days.
	GraceMinAgeDays int `yaml:"grace_min_age_days"`
	// AutoExpireHours discards an active session untouched for this long.
	AutoExpireHours int `yaml:"auto_expire_hours"`
	// DebounceMillis is the quiet period before a page edit fans out.
	DebounceMillis int `yaml:"debounce_millis"`
}

type Config struct {
	DataPath     string
	DBPath       string
	SnapshotPath string
	SyncDir      string
	Settings     Settings
}

const (
	defaultGraceWindowDays = 7
	defaultGraceMinAgeDays = 2
	defaultAutoExpireHours = 12
	defaultDebounceMillis  = 300
)

func New(dataPath string) (Config, error) {
	if dataPath == "" {
		return Config{}, fmt.Errorf("data path is required")
	}
	cfg := Config{
		DataPath:     dataPath,
		DBPath:       filepath.Join(dataPath, ".leaflog", "leaflog.db"),
		SnapshotPath: filepath.Join(dataPath, ".leaflog", "snapshot.json"),
		SyncDir:      filepath.Join(dataPath, ".leaflog", "sync"),
		Settings: Settings{
			GraceWindowDays: defaultGraceWindowDays,
			GraceMinAgeDays: defaultGraceMinAgeDays,
			AutoExpireHours: defaultAutoExpireHours,
			DebounceMillis:  defaultDebounceMillis,
		},
	}
	if err := cfg.loadSettings(filepath.Join(dataPath, ".leaflog", "settings.yaml")); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadSettings(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read settings: %w", err)
	}
	loaded := Settings{}
	if err := yaml.Unmarshal(raw, &loaded); err != nil {
		return fmt.Errorf("decode settings: %w", err)
	}
	if loaded.GraceWindowDays > 0 {
		c.Settings.GraceWindowDays = loaded.GraceWindowDays
	}
	if loaded.GraceMinAgeDays > 0 {
		c.Settings.GraceMinAgeDays = loaded.GraceMinAgeDays
	}
	if loaded.AutoExpireHours > 0 {
		c.Settings.AutoExpireHours = loaded.AutoExpireHours
	}
	if loaded.DebounceMillis > 0 {
		c.Settings.DebounceMillis = loaded.DebounceMillis
	}
	return nil
}

func (c Config) AutoExpireThreshold() time.Duration {
	return time.Duration(c.Settings.AutoExpireHours) * time.Hour
}

func (c Config) DebounceQuietPeriod() time.Duration {
	return time.Duration(c.Settings.DebounceMillis) * time.Millisecond
}
