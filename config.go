package cdo

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Cache key modes.
const (
	CacheKeyStem = "stem"
	CacheKeyPath = "path"
)

// Config holds the tool settings. It is decoded by viper from flags,
// CDO_* environment variables and an optional .cdo.yaml file.
type Config struct {
	Compiler       string        `mapstructure:"compiler"`
	Extension      string        `mapstructure:"extension"`
	EntryMarker    string        `mapstructure:"entry_marker"`
	CacheDir       string        `mapstructure:"cache_dir"`
	CacheKey       string        `mapstructure:"cache_key"`
	StrictExit     bool          `mapstructure:"strict_exit"`
	CompileTimeout time.Duration `mapstructure:"compile_timeout"`
	RunTimeout     time.Duration `mapstructure:"run_timeout"`
	WatchDebounce  time.Duration `mapstructure:"watch_debounce"`
	LogLevel       string        `mapstructure:"log_level"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Compiler:      DefaultCompiler,
		Extension:     DefaultExtension,
		EntryMarker:   DefaultEntryMarker,
		CacheDir:      DefaultCacheDir,
		CacheKey:      CacheKeyStem,
		WatchDebounce: 100 * time.Millisecond,
		LogLevel:      "warn",
	}
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Compiler) == "" {
		errs = append(errs, errors.New("compiler must not be empty"))
	}
	if !strings.HasPrefix(c.Extension, ".") || len(c.Extension) < 2 {
		errs = append(errs, fmt.Errorf("extension %q must start with a dot", c.Extension))
	}
	if c.EntryMarker == "" {
		errs = append(errs, errors.New("entry_marker must not be empty"))
	}
	if c.CacheDir == "" || strings.ContainsAny(c.CacheDir, `/\`) {
		errs = append(errs, fmt.Errorf("cache_dir %q must be a plain directory name", c.CacheDir))
	}
	if c.CacheKey != CacheKeyStem && c.CacheKey != CacheKeyPath {
		errs = append(errs, fmt.Errorf("cache_key %q must be %q or %q", c.CacheKey, CacheKeyStem, CacheKeyPath))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.CompileTimeout < 0 || c.RunTimeout < 0 || c.WatchDebounce < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	return newValidationError(errs)
}

// MarshalYAML renders durations in their text form.
func (c Config) MarshalYAML() (interface{}, error) {
	return struct {
		Compiler       string `yaml:"compiler"`
		Extension      string `yaml:"extension"`
		EntryMarker    string `yaml:"entry_marker"`
		CacheDir       string `yaml:"cache_dir"`
		CacheKey       string `yaml:"cache_key"`
		StrictExit     bool   `yaml:"strict_exit"`
		CompileTimeout string `yaml:"compile_timeout"`
		RunTimeout     string `yaml:"run_timeout"`
		WatchDebounce  string `yaml:"watch_debounce"`
		LogLevel       string `yaml:"log_level"`
	}{
		Compiler:       c.Compiler,
		Extension:      c.Extension,
		EntryMarker:    c.EntryMarker,
		CacheDir:       c.CacheDir,
		CacheKey:       c.CacheKey,
		StrictExit:     c.StrictExit,
		CompileTimeout: c.CompileTimeout.String(),
		RunTimeout:     c.RunTimeout.String(),
		WatchDebounce:  c.WatchDebounce.String(),
		LogLevel:       c.LogLevel,
	}, nil
}

// YAML returns the configuration as a YAML document.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// storeOptions translates the settings that affect the cache layout.
func (c Config) storeOptions() []Option {
	if c.CacheKey == CacheKeyPath {
		return []Option{WithPathKeys()}
	}
	return nil
}
