package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/c360studio/docroute/document"
	"github.com/c360studio/docroute/obs"
)

// PreprocessRecord captures the structural signals derived for one document
// before routing.
type PreprocessRecord struct {
	DocID            string            `json:"doc_id"`
	Variant          string            `json:"variant,omitempty"`
	Features         document.Features `json:"features"`
	SectionsKept     int               `json:"sections_kept"`
	SectionsDropped  int               `json:"sections_dropped"`
	SelectedSections []string          `json:"selected_sections,omitempty"`
}

// PreprocessLogger collects preprocessing records for a run.
type PreprocessLogger struct {
	outputPath string
	indexName  string
	indexer    obs.Indexer
	logger     *slog.Logger

	mu      sync.Mutex
	records []PreprocessRecord
}

// NewPreprocessLogger creates a logger. indexer may be nil.
func NewPreprocessLogger(outputPath, indexName string, indexer obs.Indexer, logger *slog.Logger) *PreprocessLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &PreprocessLogger{
		outputPath: outputPath,
		indexName:  indexName,
		indexer:    indexer,
		logger:     logger,
	}
}

// Record appends one preprocessing result.
func (l *PreprocessLogger) Record(ctx context.Context, record PreprocessRecord) {
	l.mu.Lock()
	l.records = append(l.records, record)
	l.mu.Unlock()

	if l.indexer != nil {
		if err := l.indexer.Index(ctx, l.indexName, record); err != nil {
			l.logger.Warn("Failed to index preprocess record", "index", l.indexName, "error", err)
		}
	}
}

// Flush writes all records to the output path.
func (l *PreprocessLogger) Flush() error {
	l.mu.Lock()
	records := append([]PreprocessRecord(nil), l.records...)
	l.mu.Unlock()
	return obs.WriteJSONArray(l.outputPath, records)
}
