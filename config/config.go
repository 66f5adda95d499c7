// Package config provides configuration loading and management for docroute.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/docroute/tokens"
)

// Config represents the complete docroute configuration.
type Config struct {
	Inference InferenceConfig `yaml:"inference"`
	Batch     BatchConfig     `yaml:"batch"`
	Routing   RoutingConfig   `yaml:"routing"`
	Fallback  FallbackConfig  `yaml:"fallback"`
	Logs      LogsConfig      `yaml:"logs"`
	NATS      NATSConfig      `yaml:"nats"`
	Inbox     InboxConfig     `yaml:"inbox"`

	// Budgets maps model IDs to token budgets used for context selection.
	Budgets map[string]tokens.Budget `yaml:"budgets,omitempty"`
}

// InferenceConfig configures the remote inference endpoint.
type InferenceConfig struct {
	// BaseURL is the chat-completions API root.
	BaseURL string `yaml:"base_url"`
	// Temperature controls randomness (0.0-1.0).
	Temperature float64 `yaml:"temperature"`
	// TimeoutSeconds bounds one inference invocation.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// BatchConfig configures batch assembly.
type BatchConfig struct {
	// MaxBatchSize caps the number of tasks per batch.
	MaxBatchSize int `yaml:"max_batch_size"`
	// MaxTokensPerBatch caps cumulative token estimates per batch.
	MaxTokensPerBatch int `yaml:"max_tokens_per_batch"`
	// MinFreeMemoryMB triggers adaptive downsizing when the first GPU
	// reports less free memory.
	MinFreeMemoryMB int `yaml:"min_free_memory_mb"`
	// Workers bounds concurrent plan execution.
	Workers int `yaml:"workers"`
}

// RoutingConfig configures the heuristic router.
type RoutingConfig struct {
	// MinContextTokens is the minimum context capacity a profiled
	// candidate must offer.
	MinContextTokens int `yaml:"min_context_tokens"`
}

// FallbackConfig configures failure handling.
type FallbackConfig struct {
	// RetryLimit bounds retries for decode and schema failures.
	RetryLimit int `yaml:"retry_limit"`
}

// LogsConfig configures the persistent observability outputs.
type LogsConfig struct {
	// Dir is the directory for JSON log files.
	Dir string `yaml:"dir"`
}

// NATSConfig configures the optional event publisher.
type NATSConfig struct {
	// URL is the NATS server URL (empty = publishing disabled).
	URL string `yaml:"url"`
}

// InboxConfig configures watch mode.
type InboxConfig struct {
	// Dir is the watched document directory.
	Dir string `yaml:"dir"`
	// DebounceMS is the debounce delay in milliseconds.
	DebounceMS int `yaml:"debounce_ms"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Inference: InferenceConfig{
			BaseURL:        "https://openrouter.ai/api/v1",
			Temperature:    0.2,
			TimeoutSeconds: 120,
		},
		Batch: BatchConfig{
			MaxBatchSize:      8,
			MaxTokensPerBatch: 8000,
			MinFreeMemoryMB:   8000,
			Workers:           2,
		},
		Routing: RoutingConfig{
			MinContextTokens: 2000,
		},
		Fallback: FallbackConfig{
			RetryLimit: 2,
		},
		Logs: LogsConfig{
			Dir: "logs",
		},
		NATS: NATSConfig{
			URL: "",
		},
		Inbox: InboxConfig{
			Dir:        "inbox",
			DebounceMS: 500,
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Inference.BaseURL == "" {
		return fmt.Errorf("inference.base_url is required")
	}
	if c.Inference.Temperature < 0 || c.Inference.Temperature > 1 {
		return fmt.Errorf("inference.temperature must be between 0 and 1")
	}
	if c.Batch.MaxBatchSize < 1 {
		return fmt.Errorf("batch.max_batch_size must be at least 1")
	}
	if c.Batch.MaxTokensPerBatch < 1 {
		return fmt.Errorf("batch.max_tokens_per_batch must be at least 1")
	}
	if c.Fallback.RetryLimit < 0 {
		return fmt.Errorf("fallback.retry_limit must not be negative")
	}
	if c.Logs.Dir == "" {
		return fmt.Errorf("logs.dir is required")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for
// non-zero values).
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Inference.BaseURL != "" {
		c.Inference.BaseURL = other.Inference.BaseURL
	}
	if other.Inference.Temperature != 0 {
		c.Inference.Temperature = other.Inference.Temperature
	}
	if other.Inference.TimeoutSeconds != 0 {
		c.Inference.TimeoutSeconds = other.Inference.TimeoutSeconds
	}

	if other.Batch.MaxBatchSize != 0 {
		c.Batch.MaxBatchSize = other.Batch.MaxBatchSize
	}
	if other.Batch.MaxTokensPerBatch != 0 {
		c.Batch.MaxTokensPerBatch = other.Batch.MaxTokensPerBatch
	}
	if other.Batch.MinFreeMemoryMB != 0 {
		c.Batch.MinFreeMemoryMB = other.Batch.MinFreeMemoryMB
	}
	if other.Batch.Workers != 0 {
		c.Batch.Workers = other.Batch.Workers
	}

	if other.Routing.MinContextTokens != 0 {
		c.Routing.MinContextTokens = other.Routing.MinContextTokens
	}
	if other.Fallback.RetryLimit != 0 {
		c.Fallback.RetryLimit = other.Fallback.RetryLimit
	}

	if other.Logs.Dir != "" {
		c.Logs.Dir = other.Logs.Dir
	}
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}
	if other.Inbox.Dir != "" {
		c.Inbox.Dir = other.Inbox.Dir
	}
	if other.Inbox.DebounceMS != 0 {
		c.Inbox.DebounceMS = other.Inbox.DebounceMS
	}

	for modelID, budget := range other.Budgets {
		if c.Budgets == nil {
			c.Budgets = make(map[string]tokens.Budget)
		}
		c.Budgets[modelID] = budget
	}
}
