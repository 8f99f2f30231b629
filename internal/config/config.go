// Package config loads the user configuration for sefer.
//
// The file lives at $XDG_CONFIG_HOME/sefer/config.yaml (fallback
// ~/.config/sefer/config.yaml). A missing file yields Defaults. Environment
// variables override file values; command-line flags override both.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/FocuswithJustin/sefer/internal/validation"
)

// DefaultAPIURL is the public Sefaria API.
const DefaultAPIURL = "https://www.sefaria.org"

// Env var names used as overrides.
const (
	EnvAPIURL    = "SEFER_API_URL"
	EnvLanguage  = "SEFER_LANGUAGE"
	EnvCacheDir  = "SEFER_CACHE_DIR"
	EnvFlagLog   = "SEFER_FLAG_LOG"
	EnvLogLevel  = "SEFER_LOG_LEVEL"
	EnvLogFormat = "SEFER_LOG_FORMAT"
)

// Duration is a time.Duration that reads and writes as "24h" in YAML.
type Duration time.Duration

// UnmarshalYAML accepts a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// StyleConfig controls terminal presentation.
type StyleConfig struct {
	Color string `yaml:"color"` // "auto" | "always" | "never"
}

// Config is the user-editable configuration.
type Config struct {
	APIURL    string      `yaml:"api_url"`
	Language  string      `yaml:"language"` // "en" | "he"
	Numbers   bool        `yaml:"numbers"`
	CacheDir  string      `yaml:"cache_dir"`
	CacheTTL  Duration    `yaml:"cache_ttl"`
	FlagLog   bool        `yaml:"flag_log"`
	LogLevel  string      `yaml:"log_level"`
	LogFormat string      `yaml:"log_format"`
	Timeout   Duration    `yaml:"timeout"`
	Style     StyleConfig `yaml:"style"`
}

// Defaults returns the application defaults.
func Defaults() Config {
	return Config{
		APIURL:    DefaultAPIURL,
		Language:  "en",
		Numbers:   false,
		CacheDir:  defaultCacheDir(),
		CacheTTL:  Duration(7 * 24 * time.Hour),
		FlagLog:   false,
		LogLevel:  "warn",
		LogFormat: "text",
		Timeout:   Duration(30 * time.Second),
		Style:     StyleConfig{Color: "auto"},
	}
}

// Path returns the config file location.
func Path() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "sefer", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "sefer", "config.yaml")
	}
	return filepath.Join(home, ".config", "sefer", "config.yaml")
}

func defaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "sefer")
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "sefer")
	}
	return filepath.Join(os.TempDir(), "sefer")
}

// Load reads the config at path, falling back to Defaults when the file does
// not exist, then applies environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes cfg to path, creating parent directories.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvAPIURL); v != "" {
		c.APIURL = v
	}
	if v := os.Getenv(EnvLanguage); v != "" {
		c.Language = v
	}
	if v := os.Getenv(EnvCacheDir); v != "" {
		c.CacheDir = v
	}
	if v := os.Getenv(EnvFlagLog); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvFlagLog, err)
		}
		c.FlagLog = b
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.LogFormat = v
	}
	return nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var result *multierror.Error

	if u, err := url.Parse(c.APIURL); err != nil || u.Scheme == "" || u.Host == "" {
		result = multierror.Append(result, fmt.Errorf("api_url: %q is not an absolute URL", c.APIURL))
	}
	switch c.Language {
	case "en", "he":
	default:
		result = multierror.Append(result, fmt.Errorf("language: %q must be en or he", c.Language))
	}
	if err := validation.ValidatePath(c.CacheDir); err != nil {
		result = multierror.Append(result, fmt.Errorf("cache_dir: %w", err))
	}
	if c.CacheTTL < 0 {
		result = multierror.Append(result, fmt.Errorf("cache_ttl: must not be negative"))
	}
	if c.Timeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("timeout: must be positive"))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		result = multierror.Append(result, fmt.Errorf("log_level: unknown level %q", c.LogLevel))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		result = multierror.Append(result, fmt.Errorf("log_format: %q must be text or json", c.LogFormat))
	}
	switch c.Style.Color {
	case "auto", "always", "never":
	default:
		result = multierror.Append(result, fmt.Errorf("style.color: %q must be auto, always or never", c.Style.Color))
	}

	return result.ErrorOrNil()
}

// Hebrew reports whether passages should be shown in Hebrew.
func (c Config) Hebrew() bool {
	return c.Language == "he"
}
