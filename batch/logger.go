package batch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/c360studio/docroute/obs"
)

// BatchLog is the persisted record of one batch execution attempt.
type BatchLog struct {
	ModelID         string `json:"model_id"`
	BatchSize       int    `json:"batch_size"`
	EstimatedTokens int    `json:"estimated_tokens"`
	ActualTokens    int    `json:"actual_tokens"`
	GpuFreeMemoryMB *int   `json:"gpu_free_memory_mb,omitempty"`
	Success         bool   `json:"success"`
	Error           string `json:"error,omitempty"`
	Reason          string `json:"reason"`
}

// BatchLogger collects batch execution events. Records append in insert
// order; Flush writes them as a JSON array and each record is mirrored to
// the configured index as it arrives.
type BatchLogger struct {
	outputPath string
	indexName  string
	indexer    obs.Indexer
	sampler    Sampler
	logger     *slog.Logger

	mu      sync.Mutex
	records []BatchLog
}

// NewBatchLogger creates a logger. indexer and sampler may be nil; with a
// sampler set, each record carries the free memory of the first GPU.
func NewBatchLogger(outputPath, indexName string, indexer obs.Indexer, sampler Sampler, logger *slog.Logger) *BatchLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchLogger{
		outputPath: outputPath,
		indexName:  indexName,
		indexer:    indexer,
		sampler:    sampler,
		logger:     logger,
	}
}

// Record appends the event for one execution attempt.
func (l *BatchLogger) Record(ctx context.Context, result Result) {
	entry := BatchLog{
		ModelID:         result.Plan.ModelID,
		BatchSize:       len(result.Plan.Tasks),
		EstimatedTokens: result.Plan.TotalTokens,
		ActualTokens:    EstimateTokens(result.Plan.Tasks),
		Success:         result.Success,
		Error:           result.Error,
		Reason:          result.Plan.Reason,
	}
	if l.sampler != nil {
		if status := l.sampler.Sample(ctx); len(status) > 0 {
			free := status[0].FreeMB
			entry.GpuFreeMemoryMB = &free
		}
	}

	l.mu.Lock()
	l.records = append(l.records, entry)
	l.mu.Unlock()

	if l.indexer != nil {
		if err := l.indexer.Index(ctx, l.indexName, entry); err != nil {
			l.logger.Warn("Failed to index batch event", "index", l.indexName, "error", err)
		}
	}
}

// Flush writes all recorded events to the output path.
func (l *BatchLogger) Flush() error {
	l.mu.Lock()
	records := append([]BatchLog(nil), l.records...)
	l.mu.Unlock()
	return obs.WriteJSONArray(l.outputPath, records)
}
