package router

import (
	"context"
	"log/slog"
	"sync"

	"github.com/c360studio/docroute/document"
	"github.com/c360studio/docroute/obs"
)

// DecisionLog is the persisted record of one routing decision.
type DecisionLog struct {
	DocumentFeatures document.Features  `json:"document_features"`
	TaskType         string             `json:"task_type"`
	Constraints      Constraints        `json:"constraints"`
	ChosenModel      string             `json:"chosen_model,omitempty"`
	Candidates       []CandidateVerdict `json:"candidates"`
}

// DecisionLogger collects routing decisions for auditability. Records append
// in insert order; Flush writes them as a JSON array and mirrors each record
// to the configured index.
type DecisionLogger struct {
	outputPath string
	indexName  string
	indexer    obs.Indexer
	logger     *slog.Logger

	mu      sync.Mutex
	records []DecisionLog
}

// NewDecisionLogger creates a logger. indexer may be nil.
func NewDecisionLogger(outputPath, indexName string, indexer obs.Indexer, logger *slog.Logger) *DecisionLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &DecisionLogger{
		outputPath: outputPath,
		indexName:  indexName,
		indexer:    indexer,
		logger:     logger,
	}
}

// Record appends the decision for one routing call.
func (l *DecisionLogger) Record(ctx context.Context, in Inputs, decision Decision) {
	entry := DecisionLog{
		DocumentFeatures: in.DocumentFeatures,
		TaskType:         in.TaskType.String(),
		Constraints:      in.Constraints,
		ChosenModel:      decision.ModelID,
		Candidates:       decision.Candidates,
	}

	l.mu.Lock()
	l.records = append(l.records, entry)
	l.mu.Unlock()

	if l.indexer != nil {
		if err := l.indexer.Index(ctx, l.indexName, entry); err != nil {
			l.logger.Warn("Failed to index routing decision", "index", l.indexName, "error", err)
		}
	}
}

// Flush writes all recorded decisions to the output path.
func (l *DecisionLogger) Flush() error {
	l.mu.Lock()
	records := append([]DecisionLog(nil), l.records...)
	l.mu.Unlock()
	return obs.WriteJSONArray(l.outputPath, records)
}
