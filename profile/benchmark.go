package profile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/c360studio/docroute/obs"
	"github.com/c360studio/docroute/task"
	"github.com/c360studio/docroute/tokens"
)

// defaultInvokeTimeout bounds a single benchmark invocation.
const defaultInvokeTimeout = 120 * time.Second

// InvokeResult carries what a model endpoint reports back for one call.
type InvokeResult struct {
	OutputTokens int
}

// InvokeFunc calls a model endpoint with a document. Implementations must
// return an error on transport or model failure.
type InvokeFunc func(ctx context.Context, modelID string, taskType task.Type, document string) (InvokeResult, error)

// BenchmarkRequest names one benchmark invocation to perform.
type BenchmarkRequest struct {
	ModelID      string    `json:"model_id"`
	TaskType     task.Type `json:"task_type"`
	DocumentID   string    `json:"document_id"`
	DocumentPath string    `json:"document_path"`
}

// Runner executes benchmark requests against a model endpoint and records
// the observations through a ResultWriter.
type Runner struct {
	invoke  InvokeFunc
	writer  *ResultWriter
	timeout time.Duration
	logger  *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithInvokeTimeout overrides the per-invocation wall-clock timeout.
func WithInvokeTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.timeout = d
	}
}

// WithRunnerLogger sets the logger.
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a benchmark runner.
func NewRunner(invoke InvokeFunc, writer *ResultWriter, opts ...RunnerOption) *Runner {
	r := &Runner{
		invoke:  invoke,
		writer:  writer,
		timeout: defaultInvokeTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes each request in order. Endpoint failures become recorded
// errors, never aborts; the writer is flushed once at the end.
func (r *Runner) Run(ctx context.Context, requests []BenchmarkRequest) ([]BenchmarkResult, error) {
	results := make([]BenchmarkResult, 0, len(requests))
	for _, request := range requests {
		raw, err := os.ReadFile(request.DocumentPath)
		if err != nil {
			return results, fmt.Errorf("read benchmark document %s: %w", request.DocumentPath, err)
		}
		document := string(raw)

		started := time.Now()
		invokeCtx, cancel := context.WithTimeout(ctx, r.timeout)
		out, invokeErr := r.invoke(invokeCtx, request.ModelID, request.TaskType, document)
		cancel()
		finished := time.Now()

		result := BenchmarkResult{
			ModelID:      request.ModelID,
			TaskType:     request.TaskType,
			DocumentID:   request.DocumentID,
			StartedAt:    started,
			FinishedAt:   finished,
			InputTokens:  tokens.Estimate(document),
			OutputTokens: out.OutputTokens,
		}
		if invokeErr != nil {
			result.Error = invokeErr.Error()
			r.logger.Warn("Benchmark invocation failed",
				"model", request.ModelID,
				"task", request.TaskType,
				"document", request.DocumentID,
				"error", invokeErr)
		}

		r.writer.Add(ctx, result)
		results = append(results, result)
	}

	if err := r.writer.Flush(); err != nil {
		return results, err
	}
	return results, nil
}

// ResultWriter persists benchmark results as a JSON array and mirrors each
// record to the configured index.
type ResultWriter struct {
	outputPath string
	indexName  string
	indexer    obs.Indexer
	logger     *slog.Logger
	records    []BenchmarkResult
}

// NewResultWriter creates a writer. indexer may be nil.
func NewResultWriter(outputPath, indexName string, indexer obs.Indexer, logger *slog.Logger) *ResultWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultWriter{
		outputPath: outputPath,
		indexName:  indexName,
		indexer:    indexer,
		logger:     logger,
	}
}

// resultRecord is the persisted shape: the result plus derived duration.
type resultRecord struct {
	BenchmarkResult
	DurationMS float64 `json:"duration_ms"`
}

// Add appends a result and mirrors it to the index when configured.
func (w *ResultWriter) Add(ctx context.Context, result BenchmarkResult) {
	w.records = append(w.records, result)
	if w.indexer == nil {
		return
	}
	record := resultRecord{BenchmarkResult: result, DurationMS: result.DurationMS()}
	if err := w.indexer.Index(ctx, w.indexName, record); err != nil {
		w.logger.Warn("Failed to index benchmark result", "index", w.indexName, "error", err)
	}
}

// Flush writes all accumulated records to the output path atomically.
func (w *ResultWriter) Flush() error {
	records := make([]resultRecord, len(w.records))
	for i, r := range w.records {
		records[i] = resultRecord{BenchmarkResult: r, DurationMS: r.DurationMS()}
	}

	return obs.WriteJSONArray(w.outputPath, records)
}
