package obs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// maxElasticResponse caps how much of an Elasticsearch reply is read back.
const maxElasticResponse = 1 * 1024 * 1024

// ElasticConfig holds connection settings for the observability index.
type ElasticConfig struct {
	BaseURL  string
	APIKey   string
	Username string
	Password string
	Timeout  time.Duration
}

// ElasticConfigFromEnv reads ELASTICSEARCH_* variables once. An empty URL
// means indexing is disabled.
func ElasticConfigFromEnv() ElasticConfig {
	cfg := ElasticConfig{
		BaseURL:  strings.TrimSpace(os.Getenv("ELASTICSEARCH_URL")),
		APIKey:   strings.TrimSpace(os.Getenv("ELASTICSEARCH_API_KEY")),
		Username: strings.TrimSpace(os.Getenv("ELASTICSEARCH_USERNAME")),
		Password: strings.TrimSpace(os.Getenv("ELASTICSEARCH_PASSWORD")),
		Timeout:  10 * time.Second,
	}
	if raw := os.Getenv("ELASTICSEARCH_TIMEOUT_S"); raw != "" {
		if seconds, err := strconv.ParseFloat(raw, 64); err == nil && seconds > 0 {
			cfg.Timeout = time.Duration(seconds * float64(time.Second))
		}
	}
	return cfg
}

// Elastic is a minimal client for POSTing log records to <base>/<index>/_doc.
type Elastic struct {
	baseURL    string
	authHeader string
	httpClient *http.Client
}

// NewElastic builds a client from config. Returns nil when no base URL is
// configured, which callers treat as indexing disabled.
func NewElastic(cfg ElasticConfig) *Elastic {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil
	}

	auth := ""
	switch {
	case cfg.APIKey != "":
		auth = "ApiKey " + cfg.APIKey
	case cfg.Username != "" && cfg.Password != "":
		credentials := cfg.Username + ":" + cfg.Password
		auth = "Basic " + base64.StdEncoding.EncodeToString([]byte(credentials))
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Elastic{
		baseURL:    base,
		authHeader: auth,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Index posts one document to the named index. Non-2xx responses are errors
// so callers can log them; callers must never treat them as fatal.
func (e *Elastic) Index(ctx context.Context, index string, document any) error {
	payload, err := json.Marshal(document)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	url := fmt.Sprintf("%s/%s/_doc", e.baseURL, index)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create index request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.authHeader != "" {
		req.Header.Set("Authorization", e.authHeader)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("index into %s: %w", index, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxElasticResponse))
		detail := string(body)
		if len(detail) > 200 {
			detail = detail[:200] + "..."
		}
		return fmt.Errorf("index into %s: status %d: %s", index, resp.StatusCode, detail)
	}
	return nil
}

// Index name defaults per record class.
const (
	DefaultIndexBenchmarks = "benchmark-results"
	DefaultIndexBatch      = "batch-events"
	DefaultIndexRouter     = "router-decisions"
	DefaultIndexRuns       = "pipeline-run-summary"
	DefaultIndexPreprocess = "preprocess-records"
)

// Indexes maps record classes to index names.
type Indexes struct {
	Benchmarks string
	Batch      string
	Router     string
	Runs       string
	Preprocess string
}

// IndexesFromEnv reads ELASTICSEARCH_INDEX_* overrides, falling back to the
// defaults.
func IndexesFromEnv() Indexes {
	return Indexes{
		Benchmarks: envOr("ELASTICSEARCH_INDEX_BENCHMARKS", DefaultIndexBenchmarks),
		Batch:      envOr("ELASTICSEARCH_INDEX_BATCH", DefaultIndexBatch),
		Router:     envOr("ELASTICSEARCH_INDEX_ROUTER", DefaultIndexRouter),
		Runs:       envOr("ELASTICSEARCH_INDEX_RUNS", DefaultIndexRuns),
		Preprocess: envOr("ELASTICSEARCH_INDEX_PREPROCESS", DefaultIndexPreprocess),
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
