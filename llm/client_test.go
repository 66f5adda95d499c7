package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/docroute/task"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 1.0,
		MaxBackoff:        time.Millisecond,
	}
}

func testClient(serverURL string, opts ...ClientOption) *Client {
	base := []ClientOption{WithRetryConfig(fastRetryConfig())}
	return NewClient(Config{APIKey: "test-key", BaseURL: serverURL}, append(base, opts...)...)
}

func TestCompleteSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "openai/gpt-4o-mini", body["model"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"model": "openai/gpt-4o-mini",
			"choices": [{"message": {"role": "assistant", "content": "{\"a\":1}"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17}
		}`))
	}))
	defer server.Close()

	client := testClient(server.URL)
	resp, err := client.Complete(context.Background(), Request{
		Model:    "openai/gpt-4o-mini",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "{\"a\":1}", resp.Content)
	assert.Equal(t, 12, resp.Usage.PromptTokens)
	assert.Equal(t, 17, resp.Usage.TotalTokens)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.NotEmpty(t, resp.RequestID)
}

func TestCompleteAcceptsAlternateUsageSpelling(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"choices": [{"message": {"role": "assistant", "content": "ok"}}],
			"usage": {"input_tokens": 7, "output_tokens": 3}
		}`))
	}))
	defer server.Close()

	client := testClient(server.URL)
	resp, err := client.Complete(context.Background(), Request{
		Model:    "m",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})

	require.NoError(t, err)
	assert.Equal(t, 7, resp.Usage.PromptTokens)
	assert.Equal(t, 3, resp.Usage.CompletionTokens)
	// Total derived when absent.
	assert.Equal(t, 10, resp.Usage.TotalTokens)
	// Response model falls back to the requested one.
	assert.Equal(t, "m", resp.Model)
}

func TestCompleteRetriesTransientFailures(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"choices": [{"message": {"content": "recovered"}}], "usage": {}}`))
	}))
	defer server.Close()

	client := testClient(server.URL)
	resp, err := client.Complete(context.Background(), Request{
		Model:    "m",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Content)
	assert.Equal(t, 3, attempts)
}

func TestCompleteFatalStopsImmediately(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := testClient(server.URL)
	_, err := client.Complete(context.Background(), Request{
		Model:    "m",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})

	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.Equal(t, 1, attempts)
}

func TestCompleteExhaustsRetries(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := testClient(server.URL)
	_, err := client.Complete(context.Background(), Request{
		Model:    "m",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, err.Error(), "all attempts failed")
}

func TestCompleteValidation(t *testing.T) {
	client := NewClient(Config{APIKey: "k"})

	_, err := client.Complete(context.Background(), Request{Messages: []Message{{Role: "user", Content: "x"}}})
	assert.Error(t, err)

	_, err = client.Complete(context.Background(), Request{Model: "m"})
	assert.Error(t, err)

	disabled := NewClient(Config{})
	_, err = disabled.Complete(context.Background(), Request{Model: "m", Messages: []Message{{Role: "user", Content: "x"}}})
	assert.True(t, IsFatal(err))
}

func TestCompleteTaskResolvesModelFromRegistry(t *testing.T) {
	var requested string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		requested = body["model"].(string)
		w.Write([]byte(`{"choices": [{"message": {"content": "ok"}}], "usage": {}}`))
	}))
	defer server.Close()

	registry := NewRegistry()
	registry.Set(task.TypeExtraction, "custom/extractor")
	client := testClient(server.URL, WithRegistry(registry))

	_, err := client.CompleteTask(context.Background(), task.TypeExtraction, Request{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "custom/extractor", requested)

	// An explicit model wins over the registry default.
	_, err = client.CompleteTask(context.Background(), task.TypeExtraction, Request{
		Model:    "explicit/model",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "explicit/model", requested)
}

func TestCompleteForwardsAttributionHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "https://example.com", r.Header.Get("HTTP-Referer"))
		assert.Equal(t, "docroute", r.Header.Get("X-Title"))
		w.Write([]byte(`{"choices": [{"message": {"content": "ok"}}], "usage": {}}`))
	}))
	defer server.Close()

	client := NewClient(
		Config{APIKey: "k", BaseURL: server.URL, AppURL: "https://example.com", AppName: "docroute"},
		WithRetryConfig(fastRetryConfig()),
	)
	_, err := client.Complete(context.Background(), Request{
		Model:    "m",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
}

func TestClassifyHTTPError(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusUnauthorized, false},
		{http.StatusForbidden, false},
		{http.StatusBadRequest, false},
		{http.StatusTeapot, false},
	}

	for _, tt := range tests {
		err := classifyHTTPError(tt.status, []byte("body"))
		assert.Equal(t, tt.transient, IsTransient(err), "status %d", tt.status)
	}
}
