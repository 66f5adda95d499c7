package profile

import (
	"sync"
	"time"

	"github.com/c360studio/docroute/task"
)

// BenchmarkResult is one benchmark observation for a (model, task, document).
type BenchmarkResult struct {
	ModelID      string    `json:"model_id"`
	TaskType     task.Type `json:"task_type"`
	DocumentID   string    `json:"document_id"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Error        string    `json:"error,omitempty"`
}

// DurationMS returns the wall-clock duration of the benchmark in milliseconds.
func (r BenchmarkResult) DurationMS() float64 {
	return float64(r.FinishedAt.Sub(r.StartedAt)) / float64(time.Millisecond)
}

// Aggregator combines benchmark results into model profiles.
type Aggregator struct{}

// NewAggregator creates an Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Aggregate groups results by (model, task) and summarizes each group.
// The same input always yields the same profiles.
func (a *Aggregator) Aggregate(results []BenchmarkResult) map[string]ModelProfile {
	grouped := make(map[string]map[task.Type][]BenchmarkResult)
	for _, result := range results {
		tasks, ok := grouped[result.ModelID]
		if !ok {
			tasks = make(map[task.Type][]BenchmarkResult)
			grouped[result.ModelID] = tasks
		}
		tasks[result.TaskType] = append(tasks[result.TaskType], result)
	}

	profiles := make(map[string]ModelProfile, len(grouped))
	for modelID, tasks := range grouped {
		profile := ModelProfile{ModelID: modelID, Tasks: make(map[task.Type]TaskProfile, len(tasks))}
		for taskType, taskResults := range tasks {
			profile.Tasks[taskType] = summarize(taskResults)
		}
		profiles[modelID] = profile
	}
	return profiles
}

func summarize(results []BenchmarkResult) TaskProfile {
	if len(results) == 0 {
		return TaskProfile{}
	}

	var latencySum, tokenSum float64
	errorCount := 0
	for _, r := range results {
		latencySum += r.DurationMS()
		tokenSum += float64(r.InputTokens + r.OutputTokens)
		if r.Error != "" {
			errorCount++
		}
	}

	n := float64(len(results))
	return TaskProfile{
		LatencyMS: latencySum / n,
		Tokens:    tokenSum / n,
		ErrorRate: float64(errorCount) / n,
		Samples:   len(results),
	}
}

// Store is a read-mostly holder of aggregated profiles. Workers read
// concurrently; an aggregation pass swaps the whole map atomically.
type Store struct {
	mu       sync.RWMutex
	profiles map[string]ModelProfile
}

// NewStore creates an empty profile store.
func NewStore() *Store {
	return &Store{profiles: make(map[string]ModelProfile)}
}

// Replace swaps in a freshly aggregated profile set.
func (s *Store) Replace(profiles map[string]ModelProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles = profiles
}

// Get returns the profile for a model and whether one exists.
func (s *Store) Get(modelID string) (ModelProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[modelID]
	return p, ok
}

// Models returns the IDs of all profiled models.
func (s *Store) Models() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.profiles))
	for id := range s.profiles {
		ids = append(ids, id)
	}
	return ids
}
