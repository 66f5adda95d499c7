// Package obs provides the observability sinks shared by the pipeline:
// atomic JSON log files, an Elasticsearch indexer, a NATS event publisher,
// and Prometheus metrics. Sink failures are warnings, never fatal.
package obs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Indexer mirrors a record to an external document index. A nil Indexer
// disables mirroring.
type Indexer interface {
	Index(ctx context.Context, index string, document any) error
}

// WriteJSONArray persists a slice as an indented JSON array, creating parent
// directories and writing through a temp file + rename so readers never
// observe a partial log.
func WriteJSONArray(path string, v any) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal log records: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp log file: %w", err)
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write log file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close log file: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
