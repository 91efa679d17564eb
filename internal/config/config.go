// Package config loads the top-level toolforge configuration document: one
// nested struct per concern (store, LLM, limits, logging), following the
// teacher's internal/config.Config layout (env-var expansion, strict
// unknown-field rejection, per-section defaults). Hot-reload is a non-goal
// (spec.md §1) so this is a load-once call, never watched.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document for the toolforge process.
type Config struct {
	Store   StoreConfig   `yaml:"store"`
	LLM     LLMConfig     `yaml:"llm"`
	Limits  LimitsConfig  `yaml:"limits"`
	Logging LoggingConfig `yaml:"logging"`
}

// StoreConfig locates the registry database, artifact tree, and logs.
type StoreConfig struct {
	Dir              string `yaml:"dir"`
	ConstraintsFile  string `yaml:"constraints_file"`
}

// LLMConfig configures the OpenAI-compatible LanguageModel adapter
// (spec.md §6.1). Leaving APIKey empty selects the mock model.
type LLMConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// LimitsConfig mirrors internal/constraints.Limits so both the sandbox and
// the refiner attempt budget can be set from one document.
type LimitsConfig struct {
	SandboxTimeout time.Duration `yaml:"sandbox_timeout"`
	MaxRefineAttempts int        `yaml:"max_refine_attempts"`
}

// LoggingConfig configures the process-wide slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// Load reads path, expands ${VAR} references against the process
// environment (so secrets like the LLM API key never need to sit in the
// file itself), rejects unknown fields, and fills in defaults.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}

	expanded := os.ExpandEnv(string(raw))

	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a Config populated entirely with defaults, used when no
// config file is given on the command line.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Store.Dir == "" {
		cfg.Store.Dir = "./data"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.Timeout <= 0 {
		cfg.LLM.Timeout = 180 * time.Second
	}
	if cfg.Limits.SandboxTimeout <= 0 {
		cfg.Limits.SandboxTimeout = 30 * time.Second
	}
	if cfg.Limits.MaxRefineAttempts <= 0 {
		cfg.Limits.MaxRefineAttempts = 3
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}
