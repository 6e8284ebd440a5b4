package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// envKeys are cleared before each Load test so the host environment does
// not leak into the result.
var envKeys = []string{
	"EVAL_COPILOT_PROVIDER", "EVAL_COPILOT_MODEL", "EVAL_COPILOT_BASE_URL",
	"EVAL_COPILOT_API_KEY", "EVAL_COPILOT_MAX_TOKENS", "EVAL_COPILOT_TIMEOUT",
	"EVAL_COPILOT_MAX_RETRIES", "EVAL_COPILOT_RUBRIC", "EVAL_COPILOT_PARALLEL",
	"EVAL_COPILOT_RECORD", "EVAL_COPILOT_LOG_LEVEL", "EVAL_COPILOT_LOG_FORMAT",
	"EVAL_COPILOT_DB_PATH", "EVAL_COPILOT_OTEL_ENDPOINT", "EVAL_COPILOT_OTEL_HEADERS",
	"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_HEADERS",
	"AZURE_OPENAI_API_KEY", "ANTHROPIC_API_KEY", "OPENAI_API_KEY",
	"AZURE_RESOURCE_NAME",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
	// Keep ~/.config out of the picture.
	t.Setenv("HOME", t.TempDir())
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(orig) })
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Provider != "anthropic" {
		t.Errorf("Provider: got %q, want %q", cfg.Provider, "anthropic")
	}
	if cfg.Model != "" {
		t.Errorf("Model: got %q, want empty (provider default)", cfg.Model)
	}
	if cfg.MaxTokens != 4096 {
		t.Errorf("MaxTokens: got %d, want %d", cfg.MaxTokens, 4096)
	}
	if cfg.Parallel != 4 {
		t.Errorf("Parallel: got %d, want %d", cfg.Parallel, 4)
	}
	if cfg.Rubric != "general" {
		t.Errorf("Rubric: got %q, want %q", cfg.Rubric, "general")
	}
	if cfg.Retries() != 2 {
		t.Errorf("Retries: got %d, want 2", cfg.Retries())
	}
}

func TestIsAzureEndpoint(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://myresource.openai.azure.com/openai/v1", true},
		{"https://myresource.services.ai.azure.com/anthropic/", true},
		{"https://myresource.azure.us/foo", true},
		{"https://api.anthropic.com/", false},
		{"https://api.openai.com/v1", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got := IsAzureEndpoint(tt.url)
			if got != tt.want {
				t.Errorf("IsAzureEndpoint(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestParseDurationOrDisable(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantMs  int64
		wantErr bool
	}{
		{"empty returns fallback", "", 5000, false},
		{"zero disables", "0", 0, false},
		{"off disables", "off", 0, false},
		{"disable disables", "disable", 0, false},
		{"valid duration", "30s", 30000, false},
		{"valid short duration", "500ms", 500, false},
		{"invalid", "not-a-duration", 0, true},
		{"negative", "-5s", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDurationOrDisable(tt.input, 5*time.Second)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseDurationOrDisable(%q): error = %v, wantErr = %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got.Milliseconds() != tt.wantMs {
				t.Errorf("parseDurationOrDisable(%q) = %v, want %dms", tt.input, got, tt.wantMs)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	content := `provider: openai
model: gpt-4o-mini
api_key: test-key-123
max_tokens: 8192
timeout: "15s"
max_retries: 0
rubric: groundedness
parallel: 8
record: true
log_format: json
db_path: /tmp/evals.duckdb
`
	if err := os.WriteFile(filepath.Join(dir, ".eval-copilot.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	chdir(t, dir)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if err := cfg.Resolve(); err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	if cfg.ConfigFile != ".eval-copilot.yaml" {
		t.Errorf("ConfigFile: got %q", cfg.ConfigFile)
	}
	if cfg.Provider != "openai" {
		t.Errorf("Provider: got %q, want %q", cfg.Provider, "openai")
	}
	if cfg.Model != "gpt-4o-mini" {
		t.Errorf("Model: got %q, want %q", cfg.Model, "gpt-4o-mini")
	}
	if cfg.APIKey != "test-key-123" {
		t.Errorf("APIKey: got %q, want %q", cfg.APIKey, "test-key-123")
	}
	if cfg.MaxTokens != 8192 {
		t.Errorf("MaxTokens: got %d, want %d", cfg.MaxTokens, 8192)
	}
	if cfg.TimeoutDuration != 15*time.Second {
		t.Errorf("TimeoutDuration: got %v, want 15s", cfg.TimeoutDuration)
	}
	if cfg.Retries() != 0 {
		t.Errorf("Retries: got %d, want 0 (explicit zero in file)", cfg.Retries())
	}
	if cfg.Rubric != "groundedness" || cfg.Parallel != 8 || !cfg.Record {
		t.Errorf("evaluation settings: got rubric=%q parallel=%d record=%v", cfg.Rubric, cfg.Parallel, cfg.Record)
	}
	if cfg.LogFormat != "json" || cfg.LogLevel != "info" {
		t.Errorf("logging: got format=%q level=%q", cfg.LogFormat, cfg.LogLevel)
	}
	if cfg.DBPath != "/tmp/evals.duckdb" {
		t.Errorf("DBPath: got %q", cfg.DBPath)
	}
}

func TestLoadExplicitPath(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	if err := os.WriteFile(path, []byte("rubric: fluency\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}
	if cfg.Rubric != "fluency" || cfg.ConfigFile != path {
		t.Errorf("got rubric=%q file=%q", cfg.Rubric, cfg.ConfigFile)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load with a missing explicit path should fail")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("provider: [unterminated\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	content := `provider: openai
model: gpt-4o-mini
api_key: file-key
parallel: 2
`
	if err := os.WriteFile(filepath.Join(dir, ".eval-copilot.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	chdir(t, dir)

	t.Setenv("EVAL_COPILOT_PROVIDER", "anthropic")
	t.Setenv("EVAL_COPILOT_MODEL", "claude-sonnet-4-5")
	t.Setenv("EVAL_COPILOT_API_KEY", "env-key")
	t.Setenv("EVAL_COPILOT_PARALLEL", "16")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://localhost:4318")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Provider != "anthropic" {
		t.Errorf("Provider: got %q, want %q (env should override file)", cfg.Provider, "anthropic")
	}
	if cfg.Model != "claude-sonnet-4-5" {
		t.Errorf("Model: got %q, want %q (env should override file)", cfg.Model, "claude-sonnet-4-5")
	}
	if cfg.APIKey != "env-key" {
		t.Errorf("APIKey: got %q, want %q (env should override file)", cfg.APIKey, "env-key")
	}
	if cfg.Parallel != 16 {
		t.Errorf("Parallel: got %d, want 16", cfg.Parallel)
	}
	if cfg.OTELEndpoint != "http://localhost:4318" {
		t.Errorf("OTELEndpoint: got %q", cfg.OTELEndpoint)
	}
}

func TestInvalidNumericEnv(t *testing.T) {
	for _, key := range []string{"EVAL_COPILOT_MAX_TOKENS", "EVAL_COPILOT_MAX_RETRIES", "EVAL_COPILOT_PARALLEL"} {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			chdir(t, t.TempDir())
			t.Setenv(key, "many")
			if _, err := Load(""); err == nil {
				t.Errorf("expected error for %s=many", key)
			}
		})
	}
}

func TestResolveAPIKeyFallbacks(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		env      map[string]string
		want     string
	}{
		{"anthropic key", "anthropic", map[string]string{"ANTHROPIC_API_KEY": "a", "OPENAI_API_KEY": "o"}, "a"},
		{"openai key", "openai", map[string]string{"ANTHROPIC_API_KEY": "a", "OPENAI_API_KEY": "o"}, "o"},
		{"azure fallback", "openai", map[string]string{"AZURE_OPENAI_API_KEY": "z"}, "z"},
		{"provider is case-insensitive", "OpenAI", map[string]string{"OPENAI_API_KEY": "o"}, "o"},
		{"none", "anthropic", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg := Defaults()
			cfg.Provider = tt.provider
			if err := cfg.Resolve(); err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if cfg.APIKey != tt.want {
				t.Errorf("APIKey = %q, want %q", cfg.APIKey, tt.want)
			}
		})
	}
}

func TestResolveAzure(t *testing.T) {
	clearEnv(t)
	t.Setenv("AZURE_RESOURCE_NAME", "myres")
	t.Setenv("AZURE_OPENAI_API_KEY", "azkey")

	cfg := Defaults()
	if err := cfg.Resolve(); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.BaseURL != "https://myres.services.ai.azure.com/anthropic/" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if got := cfg.ExtraHeaders()["api-key"]; got != "azkey" {
		t.Errorf("api-key header = %q, want azkey", got)
	}

	cfg = Defaults()
	cfg.Provider = "openai"
	if err := cfg.Resolve(); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.BaseURL != "https://myres.openai.azure.com/openai/v1" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
}

func TestResolveValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad timeout", func(c *Config) { c.Timeout = "soon" }},
		{"zero max tokens", func(c *Config) { c.MaxTokens = 0 }},
		{"zero parallel", func(c *Config) { c.Parallel = 0 }},
		{"negative retries", func(c *Config) { n := -1; c.MaxRetries = &n }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			cfg := Defaults()
			tt.mutate(cfg)
			if err := cfg.Resolve(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
