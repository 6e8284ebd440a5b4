// Package config loads eval-copilot configuration from file and environment.
//
// Precedence (highest to lowest):
//  1. Command-line flags (applied by cmd)
//  2. Environment variables (EVAL_COPILOT_*)
//  3. Config file
//  4. Built-in defaults
//
// Config file search order:
//  1. the path given with --config
//  2. .eval-copilot.yaml in current directory
//  3. ~/.config/eval-copilot/config.yaml
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all eval-copilot configuration.
type Config struct {
	// LLM settings
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	MaxTokens  int64  `yaml:"max_tokens"`
	Timeout    string `yaml:"timeout"` // Go duration string, e.g. "60s"
	MaxRetries *int   `yaml:"max_retries"`

	// Evaluation defaults
	Rubric   string `yaml:"rubric"`
	Parallel int    `yaml:"parallel"`
	Record   bool   `yaml:"record"` // persist every evaluation to the store

	// Logging
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // text or json

	// Evaluation store
	DBPath string `yaml:"db_path"`

	// OTEL
	OTELEndpoint string `yaml:"otel_endpoint"`
	OTELHeaders  string `yaml:"otel_headers"` // Comma-separated key=value pairs, e.g. "Authorization=Basic abc123"

	// Parsed values (not from YAML, set by Resolve)
	TimeoutDuration time.Duration `yaml:"-"`

	// ConfigFile is the path to the config file that was loaded (empty if none).
	ConfigFile string `yaml:"-"`
}

// Defaults returns a Config with all default values.
func Defaults() *Config {
	retries := 2
	return &Config{
		Provider:   "anthropic",
		MaxTokens:  4096,
		Timeout:    "60s",
		MaxRetries: &retries,
		Rubric:     "general",
		Parallel:   4,
		LogLevel:   "info",
		LogFormat:  "text",
		DBPath:     defaultDBPath(),
	}
}

// Load reads configuration from file and environment variables.
// Environment variables always override file values. An explicit path
// that cannot be read is an error; the implicit locations are optional.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	path, data, err := findConfigFile(path)
	if err != nil {
		return nil, err
	}
	if path != "" {
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
		cfg.ConfigFile = path
		mergeFile(cfg, &fileCfg)
	}

	if err := mergeEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Resolve fills provider-dependent fallbacks and parses derived values.
// Call it after command-line flags have been applied.
func (c *Config) Resolve() error {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))

	// API key fallbacks
	if c.APIKey == "" {
		switch c.Provider {
		case "anthropic":
			c.APIKey = firstEnv("ANTHROPIC_API_KEY", "AZURE_OPENAI_API_KEY")
		case "openai":
			c.APIKey = firstEnv("OPENAI_API_KEY", "AZURE_OPENAI_API_KEY")
		}
	}

	// Azure base URL fallback
	if c.BaseURL == "" {
		if rn := os.Getenv("AZURE_RESOURCE_NAME"); rn != "" {
			switch c.Provider {
			case "anthropic":
				// The SDK appends v1/messages.
				c.BaseURL = fmt.Sprintf("https://%s.services.ai.azure.com/anthropic/", rn)
			case "openai":
				c.BaseURL = fmt.Sprintf("https://%s.openai.azure.com/openai/v1", rn)
			}
		}
	}

	var err error
	c.TimeoutDuration, err = parseDurationOrDisable(c.Timeout, 60*time.Second)
	if err != nil {
		return fmt.Errorf("invalid timeout %q: %w", c.Timeout, err)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("invalid max_tokens %d: must be positive", c.MaxTokens)
	}
	if c.Parallel <= 0 {
		return fmt.Errorf("invalid parallel %d: must be positive", c.Parallel)
	}
	if c.Retries() < 0 {
		return fmt.Errorf("invalid max_retries %d: must not be negative", c.Retries())
	}
	return nil
}

// Retries returns the configured retry budget of the model client.
func (c *Config) Retries() int {
	if c.MaxRetries == nil {
		return 0
	}
	return *c.MaxRetries
}

// ExtraHeaders returns the HTTP headers the provider endpoint needs beyond
// the SDK defaults. Azure deployments authenticate with "api-key".
func (c *Config) ExtraHeaders() map[string]string {
	headers := map[string]string{}
	if c.APIKey != "" && (os.Getenv("AZURE_RESOURCE_NAME") != "" || IsAzureEndpoint(c.BaseURL)) {
		headers["api-key"] = c.APIKey
	}
	return headers
}

// findConfigFile returns the first config file found and its contents, or
// an empty path when there is none.
func findConfigFile(explicit string) (string, []byte, error) {
	if explicit != "" {
		data, err := os.ReadFile(explicit)
		if err != nil {
			return "", nil, fmt.Errorf("reading config file: %w", err)
		}
		return explicit, data, nil
	}

	if data, err := os.ReadFile(".eval-copilot.yaml"); err == nil {
		return ".eval-copilot.yaml", data, nil
	}

	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, ".config", "eval-copilot", "config.yaml")
		if data, err := os.ReadFile(path); err == nil {
			return path, data, nil
		}
	}

	return "", nil, nil
}

// mergeFile applies non-zero file values onto cfg.
func mergeFile(cfg *Config, file *Config) {
	if file.Provider != "" {
		cfg.Provider = file.Provider
	}
	if file.Model != "" {
		cfg.Model = file.Model
	}
	if file.BaseURL != "" {
		cfg.BaseURL = file.BaseURL
	}
	if file.APIKey != "" {
		cfg.APIKey = file.APIKey
	}
	if file.MaxTokens > 0 {
		cfg.MaxTokens = file.MaxTokens
	}
	if file.Timeout != "" {
		cfg.Timeout = file.Timeout
	}
	if file.MaxRetries != nil {
		cfg.MaxRetries = file.MaxRetries
	}
	if file.Rubric != "" {
		cfg.Rubric = file.Rubric
	}
	if file.Parallel > 0 {
		cfg.Parallel = file.Parallel
	}
	if file.Record {
		cfg.Record = file.Record
	}
	if file.LogLevel != "" {
		cfg.LogLevel = file.LogLevel
	}
	if file.LogFormat != "" {
		cfg.LogFormat = file.LogFormat
	}
	if file.DBPath != "" {
		cfg.DBPath = file.DBPath
	}
	if file.OTELEndpoint != "" {
		cfg.OTELEndpoint = file.OTELEndpoint
	}
	if file.OTELHeaders != "" {
		cfg.OTELHeaders = file.OTELHeaders
	}
}

// mergeEnv applies environment variables onto cfg. Env always wins over the file.
func mergeEnv(cfg *Config) error {
	if v := os.Getenv("EVAL_COPILOT_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("EVAL_COPILOT_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("EVAL_COPILOT_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("EVAL_COPILOT_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("EVAL_COPILOT_MAX_TOKENS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid EVAL_COPILOT_MAX_TOKENS %q: %w", v, err)
		}
		cfg.MaxTokens = n
	}
	if v := os.Getenv("EVAL_COPILOT_TIMEOUT"); v != "" {
		cfg.Timeout = v
	}
	if v := os.Getenv("EVAL_COPILOT_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid EVAL_COPILOT_MAX_RETRIES %q: %w", v, err)
		}
		cfg.MaxRetries = &n
	}
	if v := os.Getenv("EVAL_COPILOT_RUBRIC"); v != "" {
		cfg.Rubric = v
	}
	if v := os.Getenv("EVAL_COPILOT_PARALLEL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid EVAL_COPILOT_PARALLEL %q: %w", v, err)
		}
		cfg.Parallel = n
	}
	if v := os.Getenv("EVAL_COPILOT_RECORD"); v == "true" || v == "1" {
		cfg.Record = true
	}
	if v := os.Getenv("EVAL_COPILOT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("EVAL_COPILOT_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("EVAL_COPILOT_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := firstEnv("EVAL_COPILOT_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.OTELEndpoint = v
	}
	if v := firstEnv("EVAL_COPILOT_OTEL_HEADERS", "OTEL_EXPORTER_OTLP_HEADERS"); v != "" {
		cfg.OTELHeaders = v
	}
	return nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func defaultDBPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "eval-copilot", "evaluations.duckdb")
	}
	return "evaluations.duckdb"
}

// parseDurationOrDisable parses a duration string. "0", "off", "disable" return 0.
// Empty string returns the fallback value.
func parseDurationOrDisable(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	if s == "0" || s == "off" || s == "disable" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration")
	}
	return d, nil
}

// IsAzureEndpoint returns true if the URL is an Azure endpoint.
func IsAzureEndpoint(url string) bool {
	return strings.Contains(url, ".azure.com") || strings.Contains(url, ".azure.us")
}
