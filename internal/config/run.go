package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pcastell/mend/internal/models"
	"github.com/pcastell/mend/internal/util"
)

// RunConfig is the parsed run.yaml configuration for one invocation.
// One run covers one or more independent episodes.
type RunConfig struct {
	Name                        *string         `yaml:"name,omitempty" json:"name,omitempty"`
	RunsDir                     string          `yaml:"runs_dir" json:"runs_dir"`
	MaxIterations               int             `yaml:"max_iterations" json:"max_iterations"`
	PerAttemptTimeoutSec        float64         `yaml:"per_attempt_timeout_sec" json:"per_attempt_timeout_sec"`
	MaxConsecutiveInfraFailures int             `yaml:"max_consecutive_infra_failures" json:"max_consecutive_infra_failures"`
	NConcurrentTasks            int             `yaml:"n_concurrent_tasks" json:"n_concurrent_tasks"`
	FeedbackMaxBytes            int             `yaml:"feedback_max_bytes" json:"feedback_max_bytes"`
	LogLevel                    string          `yaml:"log_level,omitempty" json:"log_level,omitempty"`
	Generator                   GeneratorConfig `yaml:"generator" json:"generator"`
	Sandbox                     SandboxConfig   `yaml:"sandbox" json:"sandbox"`
	History                     HistoryConfig   `yaml:"history" json:"history"`
	Visualizer                  VisualConfig    `yaml:"visualizer,omitempty" json:"visualizer,omitempty"`
}

// GeneratorConfig configures the text-generation provider.
type GeneratorConfig struct {
	BaseURL    string  `yaml:"base_url" json:"base_url"`
	Model      string  `yaml:"model" json:"model"`
	APIKeyEnv  string  `yaml:"api_key_env" json:"api_key_env"`
	TimeoutSec float64 `yaml:"timeout_sec" json:"timeout_sec"`
	MaxTokens  int     `yaml:"max_tokens" json:"max_tokens"`
}

// SandboxConfig configures the isolation mechanism.
type SandboxConfig struct {
	Type string `yaml:"type" json:"type"`
	// Image is the container image the attempt runs in.
	Image string `yaml:"image" json:"image"`
	// Command runs the attempt script inside the sandbox. The script
	// is placed at /work/main.py before the command starts.
	Command string `yaml:"command" json:"command"`
	CPUs    int    `yaml:"cpus" json:"cpus"`
	// Memory is a size string such as "256M" or "1G".
	Memory string `yaml:"memory" json:"memory"`
	// ProviderConfig carries provider-specific options (e.g. modal
	// app name or regions).
	ProviderConfig map[string]any `yaml:"provider_config,omitempty" json:"provider_config,omitempty"`
}

// HistoryConfig configures the episode store.
type HistoryConfig struct {
	Path string `yaml:"path" json:"path"`
}

// VisualConfig configures the optional thought-rendering side-channel.
// Disabled when Command is empty.
type VisualConfig struct {
	Command string `yaml:"command,omitempty" json:"command,omitempty"`
	OutDir  string `yaml:"out_dir,omitempty" json:"out_dir,omitempty"`
}

// PerAttemptTimeout returns the per-attempt budget as a duration.
func (c RunConfig) PerAttemptTimeout() time.Duration {
	return time.Duration(c.PerAttemptTimeoutSec * float64(time.Second))
}

// Timeout returns the provider-level budget for one generation call.
func (g GeneratorConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSec * float64(time.Second))
}

// MemoryMB returns the sandbox memory limit in MiB, 0 when unset.
func (c SandboxConfig) MemoryMB() (int, error) {
	return util.ParseMemory(c.Memory)
}

// DefaultRunConfig returns a RunConfig with default values.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		RunsDir:                     "runs",
		MaxIterations:               5,
		PerAttemptTimeoutSec:        15.0,
		MaxConsecutiveInfraFailures: 3,
		NConcurrentTasks:            1,
		FeedbackMaxBytes:            2000,
		LogLevel:                    "info",
		Generator: GeneratorConfig{
			BaseURL:    "https://api.openai.com/v1",
			APIKeyEnv:  "OPENAI_API_KEY",
			TimeoutSec: 120.0,
			MaxTokens:  4096,
		},
		Sandbox: SandboxConfig{
			Type:    "docker",
			Image:   "python:3.12-slim",
			Command: "python3 /work/main.py",
			CPUs:    1,
			Memory:  "256M",
		},
		History: HistoryConfig{
			Path: "mend.db",
		},
	}
}

// LoadRunConfig loads and parses a run.yaml file, overlaying it on
// the defaults and validating the result.
func LoadRunConfig(path string) (RunConfig, error) {
	cfg := DefaultRunConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading run config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &models.ConfigurationError{Reason: fmt.Sprintf("parsing %s: %v", path, err)}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks the recognized options. All violations are reported
// as ConfigurationError: fatal before any episode starts.
func (c RunConfig) Validate() error {
	if c.MaxIterations <= 0 {
		return &models.ConfigurationError{Field: "max_iterations", Reason: "must be a positive integer"}
	}
	if c.PerAttemptTimeoutSec <= 0 {
		return &models.ConfigurationError{Field: "per_attempt_timeout_sec", Reason: "must be positive"}
	}
	if c.MaxConsecutiveInfraFailures <= 0 {
		return &models.ConfigurationError{Field: "max_consecutive_infra_failures", Reason: "must be a positive integer"}
	}
	if c.NConcurrentTasks <= 0 {
		return &models.ConfigurationError{Field: "n_concurrent_tasks", Reason: "must be a positive integer"}
	}
	if c.FeedbackMaxBytes <= 0 {
		return &models.ConfigurationError{Field: "feedback_max_bytes", Reason: "must be positive"}
	}
	switch c.Sandbox.Type {
	case "docker", "modal":
	default:
		return &models.ConfigurationError{Field: "sandbox.type", Reason: fmt.Sprintf("unsupported sandbox type %q", c.Sandbox.Type)}
	}
	if c.Sandbox.Image == "" {
		return &models.ConfigurationError{Field: "sandbox.image", Reason: "must not be empty"}
	}
	if _, err := c.Sandbox.MemoryMB(); err != nil {
		return &models.ConfigurationError{Field: "sandbox.memory", Reason: err.Error()}
	}
	if c.Generator.Model == "" {
		return &models.ConfigurationError{Field: "generator.model", Reason: "must not be empty"}
	}
	if c.Generator.BaseURL == "" {
		return &models.ConfigurationError{Field: "generator.base_url", Reason: "must not be empty"}
	}
	if c.History.Path == "" {
		return &models.ConfigurationError{Field: "history.path", Reason: "must not be empty"}
	}
	return nil
}
