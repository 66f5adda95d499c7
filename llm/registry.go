package llm

import (
	"context"
	"os"
	"sync"

	"github.com/c360studio/docroute/task"
)

// Built-in default model identifiers per task type.
const (
	defaultClassificationModel = "google/gemini-pro"
	defaultExtractionModel     = "anthropic/claude-3.5-sonnet"
	defaultRAGModel            = "perplexity/sonar-medium-online"
	defaultFallbackModel       = "openai/gpt-4o-mini"
)

// Registry resolves the default model for each task type. Overrides can come
// from the environment or be set at runtime.
type Registry struct {
	mu       sync.RWMutex
	models   map[task.Type]string
	fallback string
}

// NewRegistry creates a registry with the built-in defaults.
func NewRegistry() *Registry {
	return &Registry{
		models: map[task.Type]string{
			task.TypeClassification: defaultClassificationModel,
			task.TypeExtraction:     defaultExtractionModel,
			task.TypeRAG:            defaultRAGModel,
			task.TypeSummarization:  defaultFallbackModel,
		},
		fallback: defaultFallbackModel,
	}
}

// RegistryFromEnv creates a registry with OPENROUTER_MODEL_* overrides
// applied on top of the defaults.
func RegistryFromEnv() *Registry {
	r := NewRegistry()
	overrides := map[task.Type]string{
		task.TypeClassification: os.Getenv("OPENROUTER_MODEL_CLASSIFICATION"),
		task.TypeExtraction:     os.Getenv("OPENROUTER_MODEL_EXTRACTION"),
		task.TypeRAG:            os.Getenv("OPENROUTER_MODEL_RAG"),
		task.TypeSummarization:  os.Getenv("OPENROUTER_MODEL_SUMMARIZATION"),
	}
	for taskType, model := range overrides {
		if model != "" {
			r.models[taskType] = model
		}
	}
	if model := os.Getenv("OPENROUTER_MODEL_DEFAULT"); model != "" {
		r.fallback = model
	}
	return r
}

// ModelFor returns the model identifier for a task type, falling back to
// the default model for unknown types.
func (r *Registry) ModelFor(taskType task.Type) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if model, ok := r.models[taskType]; ok && model != "" {
		return model
	}
	return r.fallback
}

// Set overrides the model for one task type at runtime.
func (r *Registry) Set(taskType task.Type, model string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[taskType] = model
}

// ConfigFromEnv reads the OpenRouter connection settings.
func ConfigFromEnv() Config {
	return Config{
		APIKey:  os.Getenv("OPENROUTER_API_KEY"),
		BaseURL: os.Getenv("OPENROUTER_BASE_URL"),
		AppURL:  os.Getenv("OPENROUTER_APP_URL"),
		AppName: os.Getenv("OPENROUTER_APP_NAME"),
	}
}

// CompleteTask resolves an empty request model through the registry before
// dispatching.
func (c *Client) CompleteTask(ctx context.Context, taskType task.Type, req Request) (*Response, error) {
	if req.Model == "" {
		req.Model = c.registry.ModelFor(taskType)
	}
	return c.Complete(ctx, req)
}
