package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/docroute/tokens"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty base url", func(c *Config) { c.Inference.BaseURL = "" }},
		{"temperature above 1", func(c *Config) { c.Inference.Temperature = 1.5 }},
		{"zero batch size", func(c *Config) { c.Batch.MaxBatchSize = 0 }},
		{"zero token cap", func(c *Config) { c.Batch.MaxTokensPerBatch = 0 }},
		{"negative retry limit", func(c *Config) { c.Fallback.RetryLimit = -1 }},
		{"empty logs dir", func(c *Config) { c.Logs.Dir = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docroute.yaml")
	content := `
batch:
  max_batch_size: 16
routing:
  min_context_tokens: 4096
logs:
  dir: /var/log/docroute
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	c, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 16, c.Batch.MaxBatchSize)
	assert.Equal(t, 4096, c.Routing.MinContextTokens)
	assert.Equal(t, "/var/log/docroute", c.Logs.Dir)
	// Untouched fields keep defaults.
	assert.Equal(t, 8000, c.Batch.MaxTokensPerBatch)
	assert.Equal(t, "https://openrouter.ai/api/v1", c.Inference.BaseURL)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestMergePrecedence(t *testing.T) {
	base := DefaultConfig()
	base.Merge(&Config{
		Batch:   BatchConfig{MaxBatchSize: 4, Workers: 8},
		NATS:    NATSConfig{URL: "nats://broker:4222"},
		Inbox:   InboxConfig{Dir: "/data/inbox"},
		Routing: RoutingConfig{MinContextTokens: 1024},
	})

	assert.Equal(t, 4, base.Batch.MaxBatchSize)
	assert.Equal(t, 8, base.Batch.Workers)
	assert.Equal(t, "nats://broker:4222", base.NATS.URL)
	assert.Equal(t, "/data/inbox", base.Inbox.Dir)
	assert.Equal(t, 1024, base.Routing.MinContextTokens)
	// Zero values in the overlay leave the base untouched.
	assert.Equal(t, 8000, base.Batch.MaxTokensPerBatch)
	assert.Equal(t, 2, base.Fallback.RetryLimit)
}

func TestLoadFromFileParsesBudgets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docroute.yaml")
	content := `
budgets:
  google/gemini-pro:
    max_input: 30000
    max_output: 2048
    safety_margin: 0.1
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	c, err := LoadFromFile(path)
	require.NoError(t, err)

	budget, ok := c.Budgets["google/gemini-pro"]
	require.True(t, ok)
	assert.Equal(t, 30000, budget.MaxInput)
	assert.Equal(t, 2048, budget.MaxOutput)
	assert.InDelta(t, 0.1, budget.SafetyMargin, 1e-9)
}

func TestMergeBudgetsByKey(t *testing.T) {
	base := DefaultConfig()
	base.Budgets = map[string]tokens.Budget{
		"model-a": {MaxInput: 1000, MaxOutput: 100},
	}

	base.Merge(&Config{Budgets: map[string]tokens.Budget{
		"model-a": {MaxInput: 2000, MaxOutput: 200},
		"model-b": {MaxInput: 500, MaxOutput: 50},
	}})

	assert.Equal(t, 2000, base.Budgets["model-a"].MaxInput)
	assert.Equal(t, 500, base.Budgets["model-b"].MaxInput)
}

func TestMergeNilIsNoop(t *testing.T) {
	c := DefaultConfig()
	c.Merge(nil)
	require.NoError(t, c.Validate())
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	c := DefaultConfig()
	c.Batch.MaxBatchSize = 3
	require.NoError(t, c.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Batch.MaxBatchSize)
}

func TestLoaderEnvOverlay(t *testing.T) {
	t.Setenv("NATS_URL", "nats://env:4222")
	t.Setenv("OPENROUTER_BASE_URL", "https://env.example/api/v1")

	loader := NewLoader(nil)
	c := DefaultConfig()
	loader.applyEnv(c)

	assert.Equal(t, "nats://env:4222", c.NATS.URL)
	assert.Equal(t, "https://env.example/api/v1", c.Inference.BaseURL)
}
