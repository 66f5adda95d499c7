package pipeline

import (
	"strings"
	"sync"
)

// promptStore carries per-document prompts into plan execution and the
// resulting outputs back out. Keys are document IDs.
type promptStore struct {
	mu      sync.Mutex
	prompts map[string]string
	outputs map[string]inferenceOutput
}

type inferenceOutput struct {
	text         string
	outputTokens int
}

func (s *promptStore) store(docID, prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prompts == nil {
		s.prompts = make(map[string]string)
		s.outputs = make(map[string]inferenceOutput)
	}
	s.prompts[docID] = prompt
}

func (s *promptStore) load(docID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prompt, ok := s.prompts[docID]
	return prompt, ok
}

func (s *promptStore) storeOutput(docID, text string, outputTokens int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outputs == nil {
		s.outputs = make(map[string]inferenceOutput)
	}
	s.outputs[docID] = inferenceOutput{text: text, outputTokens: outputTokens}
}

func (s *promptStore) loadOutput(docID string) (string, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, ok := s.outputs[docID]
	return out.text, out.outputTokens, ok
}

func (s *promptStore) clear(docID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.prompts, docID)
	delete(s.outputs, docID)
}

// joinSections concatenates selected section bodies for prompting.
func joinSections(parts []string) string {
	return strings.Join(parts, "\n\n")
}

// containsFold is a case-insensitive substring check.
func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
