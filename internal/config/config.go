package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"sheetlocator/internal/registry"
	"sheetlocator/internal/service"
)

// EnvPath names the environment variable consulted when no -config flag is given.
const EnvPath = "SHEETLOC_CONFIG"

// Config is the full runtime configuration.
type Config struct {
	Server   ServerConfig       `yaml:"server"`
	DataDir  string             `yaml:"data_dir"`
	Datasets []registry.Dataset `yaml:"datasets"`
	Gates    service.Gates      `yaml:"gates"`
	Timeouts Timeouts           `yaml:"timeouts"`
	Watch    WatchConfig        `yaml:"watch"`
	Reload   ReloadConfig       `yaml:"reload"`
	Oplog    OplogConfig        `yaml:"oplog"`
}

type ServerConfig struct {
	Addr      string  `yaml:"addr"`
	RateLimit float64 `yaml:"rate_limit"` // mutation requests per second per client; 0 disables
	Burst     int     `yaml:"burst"`
}

type Timeouts struct {
	Load time.Duration `yaml:"load"`
	Save time.Duration `yaml:"save"`
}

type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

type ReloadConfig struct {
	Schedule string `yaml:"schedule"` // cron expression
}

type OplogConfig struct {
	Path string `yaml:"path"` // empty disables the operation history
}

// Default returns the built-in configuration: the stock reporting workbooks
// under data/, served on :8000.
func Default() Config {
	return Config{
		Server:   ServerConfig{Addr: ":8000", Burst: 10},
		DataDir:  "data",
		Datasets: registry.Defaults(),
		Gates:    service.DefaultGates(),
		Timeouts: Timeouts{Load: 30 * time.Second, Save: 30 * time.Second},
		Watch:    WatchConfig{Enabled: true, Debounce: 500 * time.Millisecond},
		Oplog:    OplogConfig{Path: "data/.sheetlocator/oplog.db"},
	}
}

// ResolvePath picks the config file: the flag value, else $SHEETLOC_CONFIG.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(EnvPath)
}

// Load reads the YAML file at path over the defaults. An empty path yields
// the defaults unchanged; a named file that does not exist is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values a YAML file could get wrong.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is empty"))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, errors.New("server.rate_limit is negative"))
	}
	for name, g := range map[string]float64{
		"read": c.Gates.Read, "update": c.Gates.Update, "insert": c.Gates.Insert, "delete": c.Gates.Delete,
	} {
		if g < 0 || g > 1 {
			errs = append(errs, fmt.Errorf("gates.%s = %v, want a value in [0, 1]", name, g))
		}
	}
	if c.Timeouts.Load < 0 || c.Timeouts.Save < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	return errors.Join(errs...)
}

// Service returns the CRUD service settings.
func (c Config) Service() service.Config {
	return service.Config{
		Gates:           c.Gates,
		LoadTimeout:     c.Timeouts.Load,
		SaveTimeout:     c.Timeouts.Save,
		LoadConcurrency: 4,
	}
}

// ReloadSettings returns the watcher and schedule settings.
func (c Config) ReloadSettings() service.ReloadConfig {
	return service.ReloadConfig{
		Watch:    c.Watch.Enabled,
		Debounce: c.Watch.Debounce,
		Schedule: c.Reload.Schedule,
	}
}
