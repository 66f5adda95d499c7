package batch

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// GpuProcess is one process occupying GPU memory.
type GpuProcess struct {
	PID      int    `json:"pid"`
	Name     string `json:"name"`
	MemoryMB int    `json:"memory_mb"`
}

// GpuStatus is a point-in-time snapshot of one GPU.
type GpuStatus struct {
	Index     int          `json:"index"`
	Name      string       `json:"name"`
	TotalMB   int          `json:"total_mb"`
	UsedMB    int          `json:"used_mb"`
	FreeMB    int          `json:"free_mb"`
	Processes []GpuProcess `json:"processes,omitempty"`
}

// Sampler probes GPU state. Sampling is best-effort: an empty result means
// no GPU information is available and callers skip memory-based downsizing.
type Sampler interface {
	Sample(ctx context.Context) []GpuStatus
}

// StaticSampler returns a fixed snapshot. Useful for tests and for hosts
// without GPUs (the zero value reports no GPUs).
type StaticSampler struct {
	Statuses []GpuStatus
}

// Sample implements Sampler.
func (s StaticSampler) Sample(context.Context) []GpuStatus {
	return s.Statuses
}

// defaultSMITimeout bounds the vendor CLI invocation.
const defaultSMITimeout = 5 * time.Second

// NvidiaSMISampler shells out to nvidia-smi in CSV mode. Any failure, parse
// error included, degrades to an empty sample.
type NvidiaSMISampler struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewNvidiaSMISampler creates a sampler using the nvidia-smi binary on PATH.
func NewNvidiaSMISampler(logger *slog.Logger) *NvidiaSMISampler {
	if logger == nil {
		logger = slog.Default()
	}
	return &NvidiaSMISampler{binary: "nvidia-smi", timeout: defaultSMITimeout, logger: logger}
}

// Sample implements Sampler.
func (s *NvidiaSMISampler) Sample(ctx context.Context) []GpuStatus {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.binary,
		"--query-gpu=index,name,memory.total,memory.used,memory.free",
		"--format=csv,noheader,nounits")
	output, err := cmd.Output()
	if err != nil {
		s.logger.Debug("GPU sampling unavailable", "error", err)
		return nil
	}

	statuses, err := parseSMIOutput(string(output))
	if err != nil {
		s.logger.Warn("Unparseable nvidia-smi output", "error", err)
		return nil
	}
	return statuses
}

func parseSMIOutput(output string) ([]GpuStatus, error) {
	var statuses []GpuStatus
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != 5 {
			return nil, fmt.Errorf("expected 5 fields, got %d in %q", len(fields), line)
		}

		index, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil {
			return nil, fmt.Errorf("parse gpu index: %w", err)
		}
		total, err := strconv.Atoi(strings.TrimSpace(fields[2]))
		if err != nil {
			return nil, fmt.Errorf("parse total memory: %w", err)
		}
		used, err := strconv.Atoi(strings.TrimSpace(fields[3]))
		if err != nil {
			return nil, fmt.Errorf("parse used memory: %w", err)
		}
		free, err := strconv.Atoi(strings.TrimSpace(fields[4]))
		if err != nil {
			return nil, fmt.Errorf("parse free memory: %w", err)
		}

		statuses = append(statuses, GpuStatus{
			Index:   index,
			Name:    strings.TrimSpace(fields[1]),
			TotalMB: total,
			UsedMB:  used,
			FreeMB:  free,
		})
	}
	return statuses, nil
}
