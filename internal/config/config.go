// Package config loads codeloop configuration from YAML with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all codeloop configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Generator collaborator configuration
	Generator GeneratorConfig `yaml:"generator"`

	// Attempt loop configuration
	Workflow WorkflowConfig `yaml:"workflow"`

	// Test synthesis configuration
	Synth SynthConfig `yaml:"synth"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// GeneratorConfig configures the code-generating model.
type GeneratorConfig struct {
	Provider string `yaml:"provider"` // gemini, static
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Timeout  string `yaml:"timeout"`
}

// WorkflowConfig configures the bounded retry loop.
type WorkflowConfig struct {
	MaxAttempts    int    `yaml:"max_attempts"`
	SandboxTimeout string `yaml:"sandbox_timeout"`
	PreValidation  bool   `yaml:"pre_validation"`
}

// SynthConfig configures test synthesis.
type SynthConfig struct {
	// Optional YAML file with extra task-pattern rules, appended
	// after the built-in table.
	RulesPath string `yaml:"rules_path"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"` // debug, info, warn, error
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "codeloop",
		Version: "0.3.0",

		Generator: GeneratorConfig{
			Provider: "gemini",
			Model:    "gemini-3-flash-preview",
			Timeout:  "120s",
		},

		Workflow: WorkflowConfig{
			MaxAttempts:    5,
			SandboxTimeout: "30s",
			PreValidation:  true,
		},

		Synth: SynthConfig{},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. Missing file returns defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Generator.APIKey = key
		if c.Generator.Provider == "" {
			c.Generator.Provider = "gemini"
		}
	}
	if model := os.Getenv("CODELOOP_MODEL"); model != "" {
		c.Generator.Model = model
	}
	if v := os.Getenv("CODELOOP_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Workflow.MaxAttempts = n
		}
	}
	if v := os.Getenv("CODELOOP_SANDBOX_TIMEOUT"); v != "" {
		if _, err := time.ParseDuration(v); err == nil {
			c.Workflow.SandboxTimeout = v
		}
	}
	if p := os.Getenv("CODELOOP_RULES"); p != "" {
		c.Synth.RulesPath = p
	}
}

// GetGeneratorTimeout returns the generator timeout as a duration.
func (c *Config) GetGeneratorTimeout() time.Duration {
	d, err := time.ParseDuration(c.Generator.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetSandboxTimeout returns the sandbox timeout as a duration.
func (c *Config) GetSandboxTimeout() time.Duration {
	d, err := time.ParseDuration(c.Workflow.SandboxTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}
