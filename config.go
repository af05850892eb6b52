package main

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"orgterm/internal/layout"
	"orgterm/internal/store"
	"orgterm/internal/viewport"
)

type Config struct {
	DirectoryFile   string             `yaml:"directory_file" env:"DIRECTORY_FILE"`
	CacheFile       string             `yaml:"cache_file" env:"CACHE_FILE"`
	CacheQuotaBytes int                `yaml:"cache_quota_bytes" env:"CACHE_QUOTA_BYTES"`
	Remote          store.RemoteConfig `yaml:"remote" envPrefix:"REMOTE_"`
	SyncDelay       time.Duration      `yaml:"sync_delay" env:"SYNC_DELAY"`
	Editor          bool               `yaml:"editor" env:"EDITOR_MODE"`
	ReadOnly        bool               `yaml:"read_only" env:"READ_ONLY"`
	User            string             `yaml:"user" env:"USER_NAME"`
	LogLevel        string             `yaml:"log_level" env:"LOG_LEVEL"`
	LogFile         string             `yaml:"log_file" env:"LOG_FILE"`
	MetricsAddr     string             `yaml:"metrics_addr" env:"METRICS_ADDR"`
	Confirmations   bool               `yaml:"confirmations" env:"CONFIRMATIONS"`

	SidebarWidth   float64 `yaml:"sidebar_width" env:"SIDEBAR_WIDTH"`
	ToolbarHeight  float64 `yaml:"toolbar_height" env:"TOOLBAR_HEIGHT"`
	TopOffset      float64 `yaml:"top_offset" env:"TOP_OFFSET"`
	WorldPadding   float64 `yaml:"world_padding" env:"WORLD_PADDING"`
	MinimapPadding float64 `yaml:"minimap_padding" env:"MINIMAP_PADDING"`
	CellWidth      float64 `yaml:"cell_width" env:"CELL_WIDTH"`
	CellHeight     float64 `yaml:"cell_height" env:"CELL_HEIGHT"`
}

func defaultConfig() *Config {
	dir := stateDir()
	return &Config{
		DirectoryFile:   filepath.Join(dir, "employees.json"),
		CacheFile:       filepath.Join(dir, "cache.db"),
		CacheQuotaBytes: store.DefaultQuota,
		SyncDelay:       1200 * time.Millisecond,
		Editor:          true,
		LogLevel:        "info",
		LogFile:         filepath.Join(dir, "orgterm.log"),
		Confirmations:   true,
		SidebarWidth:    340,
		ToolbarHeight:   80,
		TopOffset:       40,
		WorldPadding:    400,
		MinimapPadding:  16,
		CellWidth:       8,
		CellHeight:      16,
	}
}

func stateDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "orgterm")
	}
	return "."
}

func defaultConfigPath() string {
	return filepath.Join(stateDir(), "config.yaml")
}

// loadConfig layers the YAML file, .env files and ORGTERM_* variables over
// the defaults. A missing config file is not an error.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	if path == "" {
		path = defaultConfigPath()
	}
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, config); err != nil {
			return nil, errors.Wrapf(err, "parse %s", path)
		}
	case !os.IsNotExist(err):
		return nil, errors.Wrapf(err, "read %s", path)
	}

	if err := loadEnvFiles(".env", ".env.local"); err != nil {
		return nil, err
	}
	if err := env.ParseWithOptions(config, env.Options{Prefix: "ORGTERM_"}); err != nil {
		return nil, errors.Wrap(err, "parse environment")
	}
	if config.CellWidth <= 0 || config.CellHeight <= 0 {
		return nil, errors.Errorf("cell size must be positive, got %gx%g", config.CellWidth, config.CellHeight)
	}

	config.DirectoryFile = expandHome(config.DirectoryFile)
	config.CacheFile = expandHome(config.CacheFile)
	config.LogFile = expandHome(config.LogFile)
	return config, nil
}

func loadEnvFiles(files ...string) error {
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return errors.Wrap(godotenv.Load(existing...), "load env files")
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func (c *Config) canEdit() bool {
	return c.Editor && !c.ReadOnly
}

func (c *Config) viewportConfig() viewport.Config {
	vc := viewport.DefaultConfig()
	vc.Sidebar = c.SidebarWidth
	vc.TopOffset = c.TopOffset
	vc.FitReserveHeight = c.ToolbarHeight
	vc.FitReserveWidth = c.SidebarWidth + 20
	vc.WorldPadding = c.WorldPadding
	vc.MinimapPadding = c.MinimapPadding
	return vc
}

func (c *Config) layoutConfig() layout.Config {
	return layout.DefaultConfig()
}
