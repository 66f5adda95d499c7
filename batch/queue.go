// Package batch holds the resource-aware batching machinery: the priority
// task queue, the GPU-aware batch planner, and the executor with its OOM
// split fallback.
package batch

import (
	"container/heap"
	"sync"

	"github.com/c360studio/docroute/task"
)

// taskHeap implements heap.Interface over tasks ordered by
// (priority, deadline).
type taskHeap []task.Task

func (h taskHeap) Len() int            { return len(h) }
func (h taskHeap) Less(i, j int) bool  { return h[i].Less(h[j]) }
func (h taskHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)         { *h = append(*h, x.(task.Task)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Queue is a priority-ordered task queue shared between producers and the
// worker pool. Insert and pop require mutual exclusion.
type Queue struct {
	mu   sync.Mutex
	heap taskHeap
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Add inserts a task. A zero deadline orders as +infinity.
func (q *Queue) Add(t task.Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	heap.Push(&q.heap, t)
}

// Len returns the number of pending tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// PopNextBatch removes up to size tasks of the requested type. Tasks of
// other types encountered along the way are buffered and re-inserted, so the
// queue's multiset of tasks minus the returned batch is preserved. An empty
// taskType matches any task.
func (q *Queue) PopNextBatch(size int, taskType task.Type) []task.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	var batch []task.Task
	var buffer []task.Task

	for q.heap.Len() > 0 && len(batch) < size {
		candidate := heap.Pop(&q.heap).(task.Task)
		if taskType != "" && candidate.TaskType != taskType {
			buffer = append(buffer, candidate)
			continue
		}
		batch = append(batch, candidate)
	}

	for _, skipped := range buffer {
		heap.Push(&q.heap, skipped)
	}

	return batch
}

// GroupForBatching is a non-destructive snapshot: it maps each effective
// model to the pending tasks whose cumulative token estimates stay within
// maxTokens. Tasks that would overflow a group's cap are left out of the
// snapshot but remain in the queue (soft peek).
func (q *Queue) GroupForBatching(maxTokens int) map[string][]task.Task {
	q.mu.Lock()
	snapshot := make([]task.Task, len(q.heap))
	copy(snapshot, q.heap)
	q.mu.Unlock()

	groups := make(map[string][]task.Task)
	budgets := make(map[string]int)

	for _, t := range snapshot {
		key := t.EffectiveModel()
		if budgets[key]+t.TokenEstimate > maxTokens {
			continue
		}
		groups[key] = append(groups[key], t)
		budgets[key] += t.TokenEstimate
	}

	return groups
}

// EstimateTokens sums the token estimates of the given tasks.
func EstimateTokens(tasks []task.Task) int {
	total := 0
	for _, t := range tasks {
		total += t.TokenEstimate
	}
	return total
}
