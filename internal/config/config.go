// Package config loads the core's configuration once into an immutable
// value, per spec §9 ("Global configuration... is loaded once and passed
// as an immutable value into constructors; avoid process-wide singletons
// beyond the repository handle itself"). The env-var-prefix-plus-viper
// shape is carried over from KartikBazzad-bunbase/pkg/config's Load,
// extended with an optional commented-JSON override file layered under
// the environment (hujson, as calvinalkan-agent-task parses its own
// config) and a file watch instead of polling.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"github.com/tailscale/hujson"
)

// ErrConfigError wraps any failure loading or parsing configuration, per
// spec §7's ConfigError taxonomy entry.
var ErrConfigError = errors.New("config: load failed")

// EnvPrefix is the environment variable prefix this module's settings are
// bound under (e.g. CHRONDB_DATA_DIR).
const EnvPrefix = "CHRONDB"

// Config is the immutable configuration value threaded into every
// constructor that needs it.
type Config struct {
	DataDir        string `mapstructure:"data_dir"`
	IndexDir       string `mapstructure:"index_dir"`
	WalDir         string `mapstructure:"wal_dir"`
	DefaultBranch  string `mapstructure:"default_branch"`
	CommitterName  string `mapstructure:"committer_name"`
	CommitterEmail string `mapstructure:"committer_email"`

	PushOnCommit bool   `mapstructure:"push_on_commit"`
	RemoteName   string `mapstructure:"remote_name"`

	MaxRetries  int           `mapstructure:"max_retries"`
	BaseDelayMs int           `mapstructure:"base_delay_ms"`
	CacheSize   int           `mapstructure:"cache_size"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`

	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`

	MetricsAddr string `mapstructure:"metrics_addr"`
}

// Defaults returns the configuration used when neither an override file
// nor environment variables supply a value.
func Defaults() Config {
	return Config{
		DataDir:        "data",
		IndexDir:       "index",
		WalDir:         "wal",
		DefaultBranch:  "main",
		CommitterName:  "chrondb",
		CommitterEmail: "chrondb@localhost",
		PushOnCommit:   false,
		RemoteName:     "origin",
		MaxRetries:     3,
		BaseDelayMs:    10,
		CacheSize:      1000,
		CacheTTL:       60 * time.Second,
		LogLevel:       "info",
	}
}

// Load builds a Config starting from Defaults, layering in overrideFile
// (a hujson/JSONC document, skipped if path is empty or missing) and
// finally environment variables prefixed with CHRONDB_, which always win.
func Load(overrideFile string) (Config, error) {
	v := viper.New()
	v.SetConfigType("json")

	def := Defaults()
	for key, val := range map[string]any{
		"data_dir":        def.DataDir,
		"index_dir":       def.IndexDir,
		"wal_dir":         def.WalDir,
		"default_branch":  def.DefaultBranch,
		"committer_name":  def.CommitterName,
		"committer_email": def.CommitterEmail,
		"push_on_commit":  def.PushOnCommit,
		"remote_name":     def.RemoteName,
		"max_retries":     def.MaxRetries,
		"base_delay_ms":   def.BaseDelayMs,
		"cache_size":      def.CacheSize,
		"cache_ttl":       def.CacheTTL,
		"log_level":       def.LogLevel,
	} {
		v.SetDefault(key, val)
	}

	if overrideFile != "" {
		if raw, err := os.ReadFile(overrideFile); err == nil {
			standard, err := hujson.Standardize(raw)
			if err != nil {
				return Config{}, fmt.Errorf("%w: parse %q: %v", ErrConfigError, overrideFile, err)
			}
			if err := v.ReadConfig(bytes.NewReader(standard)); err != nil {
				return Config{}, fmt.Errorf("%w: load %q: %v", ErrConfigError, overrideFile, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("%w: read %q: %v", ErrConfigError, overrideFile, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: unmarshal: %v", ErrConfigError, err)
	}
	return cfg, nil
}

// WatchFile installs a fsnotify watch on overrideFile and invokes onChange
// with a freshly reloaded Config whenever it's written, per spec §9's
// preference for push-based reload over polling. The returned func stops
// the watch.
func WatchFile(overrideFile string, onChange func(Config)) (stop func(), err error) {
	if overrideFile == "" {
		return func() {}, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: watch %q: %v", ErrConfigError, overrideFile, err)
	}
	if err := watcher.Add(overrideFile); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("%w: watch %q: %v", ErrConfigError, overrideFile, err)
	}

	go func() {
		for event := range watcher.Events {
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(overrideFile)
			if err != nil {
				continue
			}
			onChange(cfg)
		}
	}()

	return func() { watcher.Close() }, nil
}
