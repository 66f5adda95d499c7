// Package llm provides the OpenRouter chat-completions client used for
// remote inference, with transient/fatal error classification, retry with
// jittered backoff, and per-task default model resolution.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxResponseSize limits the response body to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// defaultRequestTimeout bounds one inference invocation wall-clock.
const defaultRequestTimeout = 120 * time.Second

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`    // "system", "user", or "assistant"
	Content string `json:"content"` // Message content
}

// Request defines an inference request.
type Request struct {
	// Model is the model identifier. Empty resolves through the registry
	// default for the task type carried in Metadata.
	Model string

	// Messages is the chat history to send.
	Messages []Message

	// Temperature controls randomness. nil uses the endpoint default.
	Temperature *float64

	// MaxTokens limits response length. 0 uses the endpoint default.
	MaxTokens int

	// ResponseFormat optionally requests structured output, for example
	// {"type": "json_object"}.
	ResponseFormat map[string]string

	// Metadata is forwarded verbatim for provider-side attribution.
	Metadata map[string]string
}

// TokenUsage represents token consumption details for one call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response contains the inference result.
type Response struct {
	// RequestID uniquely identifies this call for log correlation.
	RequestID string

	// Content is the generated text.
	Content string

	// Model is the model that actually served the request.
	Model string

	// Usage contains token consumption metrics.
	Usage TokenUsage

	// FinishReason indicates why generation stopped.
	FinishReason string
}

// Config holds the OpenRouter connection settings.
type Config struct {
	APIKey  string
	BaseURL string
	AppURL  string
	AppName string
}

// DefaultBaseURL is the OpenRouter API root.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// Enabled reports whether remote inference is configured.
func (c Config) Enabled() bool {
	return c.APIKey != ""
}

// Client is an OpenRouter chat-completions client.
type Client struct {
	config      Config
	httpClient  *http.Client
	retryConfig RetryConfig
	logger      *slog.Logger
	registry    *Registry
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) ClientOption {
	return func(client *Client) {
		client.retryConfig = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

// WithRegistry sets the model registry used to resolve default models.
func WithRegistry(registry *Registry) ClientOption {
	return func(client *Client) {
		client.registry = registry
	}
}

// NewClient creates a client for the given connection settings.
func NewClient(config Config, opts ...ClientOption) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}

	c := &Client{
		config:      config,
		retryConfig: DefaultRetryConfig(),
		httpClient: &http.Client{
			Timeout: defaultRequestTimeout,
		},
		logger:   slog.Default(),
		registry: NewRegistry(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Complete sends a completion request, retrying transient failures with
// jittered exponential backoff.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if !c.config.Enabled() {
		return nil, NewFatalError(fmt.Errorf("no API key configured"))
	}
	if req.Model == "" {
		return nil, NewFatalError(fmt.Errorf("model is required"))
	}
	if len(req.Messages) == 0 {
		return nil, NewFatalError(fmt.Errorf("at least one message is required"))
	}

	requestID := uuid.New().String()

	var lastErr error
	for attempt := 1; attempt <= c.retryConfig.MaxAttempts; attempt++ {
		resp, err := c.doRequest(ctx, req)
		if err == nil {
			resp.RequestID = requestID
			return resp, nil
		}

		lastErr = err
		if IsFatal(err) {
			return nil, err
		}

		if attempt < c.retryConfig.MaxAttempts {
			backoff := c.retryConfig.backoff(attempt)
			c.logger.Debug("Request failed, retrying",
				"attempt", attempt,
				"max_attempts", c.retryConfig.MaxAttempts,
				"backoff", backoff,
				"error", err)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return nil, fmt.Errorf("all attempts failed for model %s: %w", req.Model, lastErr)
}

// chatRequest is the wire shape of a chat-completions call.
type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []Message         `json:"messages"`
	Temperature    *float64          `json:"temperature,omitempty"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// chatResponse is the wire shape of a chat-completions reply. Usage field
// spellings differ across providers, so both are accepted.
type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		InputTokens      int `json:"input_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		OutputTokens     int `json:"output_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// doRequest executes a single HTTP request against the chat endpoint.
func (c *Client) doRequest(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(chatRequest{
		Model:          req.Model,
		Messages:       req.Messages,
		Temperature:    req.Temperature,
		MaxTokens:      req.MaxTokens,
		ResponseFormat: req.ResponseFormat,
		Metadata:       req.Metadata,
	})
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	url := strings.TrimSuffix(c.config.BaseURL, "/") + "/chat/completions"
	c.logger.Debug("Sending inference request",
		"model", req.Model,
		"url", url,
		"messages", len(req.Messages))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	if c.config.AppURL != "" {
		httpReq.Header.Set("HTTP-Referer", c.config.AppURL)
	}
	if c.config.AppName != "" {
		httpReq.Header.Set("X-Title", c.config.AppName)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Network errors are transient
		return nil, NewTransientError(fmt.Errorf("HTTP request failed: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("read response body: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(httpResp.StatusCode, respBody)
	}

	return parseResponse(respBody, req.Model)
}

// parseResponse extracts the first choice and normalizes usage fields.
func parseResponse(body []byte, requestedModel string) (*Response, error) {
	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, NewTransientError(fmt.Errorf("parse response: %w", err))
	}
	if len(parsed.Choices) == 0 {
		return nil, NewTransientError(fmt.Errorf("response contains no choices"))
	}

	usage := TokenUsage{
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
		TotalTokens:      parsed.Usage.TotalTokens,
	}
	if usage.PromptTokens == 0 {
		usage.PromptTokens = parsed.Usage.InputTokens
	}
	if usage.CompletionTokens == 0 {
		usage.CompletionTokens = parsed.Usage.OutputTokens
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}

	model := parsed.Model
	if model == "" {
		model = requestedModel
	}

	return &Response{
		Content:      parsed.Choices[0].Message.Content,
		Model:        model,
		Usage:        usage,
		FinishReason: parsed.Choices[0].FinishReason,
	}, nil
}

// classifyHTTPError determines if an HTTP error is transient or fatal.
func classifyHTTPError(statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}

	err := fmt.Errorf("inference API error (status %d): %s", statusCode, bodyStr)

	switch {
	case statusCode == http.StatusTooManyRequests:
		// Rate limiting is transient
		return NewTransientError(err)
	case statusCode >= 500:
		// Server errors are transient
		return NewTransientError(err)
	case statusCode == http.StatusUnauthorized,
		statusCode == http.StatusForbidden:
		// Auth errors are fatal
		return NewFatalError(err)
	case statusCode == http.StatusBadRequest:
		// Bad requests are fatal
		return NewFatalError(err)
	default:
		// Unknown errors default to fatal
		return NewFatalError(err)
	}
}
