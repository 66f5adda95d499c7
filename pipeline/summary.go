package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/c360studio/docroute/obs"
)

// Status names the pipeline stage a document last completed.
type Status string

const (
	StatusCollected    Status = "collected"
	StatusPreprocessed Status = "preprocessed"
	StatusRouted       Status = "routed"
	StatusBatched      Status = "batched"
	StatusInferred     Status = "inferred"
	StatusValidated    Status = "validated"
)

// BatchEvent summarizes one batch execution attempt involving a document.
type BatchEvent struct {
	ModelID   string `json:"model_id"`
	BatchSize int    `json:"batch_size"`
	Tokens    int    `json:"tokens"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Reason    string `json:"reason"`
}

// FallbackEvent records one fallback decision taken for a document.
type FallbackEvent struct {
	ErrorKind  string `json:"error_kind"`
	Action     string `json:"action"`
	Reason     string `json:"reason,omitempty"`
	RetryCount int    `json:"retry_count,omitempty"`
	NextModel  string `json:"next_model,omitempty"`
}

// RunRecord is the per-document entry in a run summary.
type RunRecord struct {
	DocID            string          `json:"doc_id"`
	SourceType       string          `json:"source_type"`
	Variant          string          `json:"variant,omitempty"`
	Status           Status          `json:"status"`
	ChosenModel      string          `json:"chosen_model,omitempty"`
	RouterReason     string          `json:"router_reason,omitempty"`
	TokenEstimate    int             `json:"token_estimate,omitempty"`
	OutputTokens     int             `json:"output_tokens,omitempty"`
	BatchEvents      []BatchEvent    `json:"batch_events,omitempty"`
	FallbackEvents   []FallbackEvent `json:"fallback_events,omitempty"`
	ValidationStatus string          `json:"validation_status,omitempty"`
	Error            string          `json:"error,omitempty"`
	StartedAt        time.Time       `json:"started_at"`
	FinishedAt       time.Time       `json:"finished_at"`
}

// Succeeded reports whether the document reached full validation.
func (r RunRecord) Succeeded() bool {
	return r.Status == StatusValidated && r.ValidationStatus == "valid"
}

// RunSummary accumulates per-document records across one pipeline run.
type RunSummary struct {
	outputPath string
	indexName  string
	indexer    obs.Indexer
	logger     *slog.Logger

	mu      sync.Mutex
	records []RunRecord
}

// NewRunSummary creates a summary sink. indexer may be nil.
func NewRunSummary(outputPath, indexName string, indexer obs.Indexer, logger *slog.Logger) *RunSummary {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunSummary{
		outputPath: outputPath,
		indexName:  indexName,
		indexer:    indexer,
		logger:     logger,
	}
}

// Record appends one document's outcome.
func (s *RunSummary) Record(ctx context.Context, record RunRecord) {
	s.mu.Lock()
	s.records = append(s.records, record)
	s.mu.Unlock()

	if s.indexer != nil {
		if err := s.indexer.Index(ctx, s.indexName, record); err != nil {
			s.logger.Warn("Failed to index run record", "index", s.indexName, "error", err)
		}
	}
}

// Records returns a copy of the accumulated records.
func (s *RunSummary) Records() []RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RunRecord(nil), s.records...)
}

// Flush writes the summary to the output path.
func (s *RunSummary) Flush() error {
	s.mu.Lock()
	records := append([]RunRecord(nil), s.records...)
	s.mu.Unlock()
	return obs.WriteJSONArray(s.outputPath, records)
}
