package document

import (
	"strings"

	"github.com/c360studio/docroute/tokens"
)

// Chunk is a token-bounded slice of document text with provenance offsets.
type Chunk struct {
	Text          string `json:"text"`
	StartOffset   int    `json:"start_offset"`
	EndOffset     int    `json:"end_offset"`
	SectionTitle  string `json:"section_title,omitempty"`
	TokenEstimate int    `json:"token_estimate"`
}

// Chunker splits documents into token-aware chunks with overlap.
type Chunker struct {
	maxTokens     int
	overlapTokens int
}

// NewChunker creates a Chunker. Non-positive arguments fall back to the
// defaults of 512 max tokens and 64 overlap tokens.
func NewChunker(maxTokens, overlapTokens int) *Chunker {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	if overlapTokens < 0 {
		overlapTokens = 64
	}
	return &Chunker{maxTokens: maxTokens, overlapTokens: overlapTokens}
}

// ChunkText slices flat text into overlapping windows sized by the
// chars-per-token heuristic.
func (c *Chunker) ChunkText(text string) []Chunk {
	var chunks []Chunk
	start := 0
	length := len(text)
	window := c.maxTokens * 4
	overlap := c.overlapTokens * 4

	for start < length {
		end := start + window
		if end > length {
			end = length
		}
		body := text[start:end]
		chunks = append(chunks, Chunk{
			Text:          body,
			StartOffset:   start,
			EndOffset:     end,
			TokenEstimate: tokens.Estimate(body),
		})
		if end == length {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// ChunkSections accumulates each section's paragraphs into chunks that close
// once they reach the token ceiling, preserving section titles.
func (c *Chunker) ChunkSections(sections []NormalizedSection) []Chunk {
	var chunks []Chunk
	offset := 0

	flush := func(buffer []string, title string) {
		if len(buffer) == 0 {
			return
		}
		text := strings.Join(buffer, "\n")
		chunks = append(chunks, Chunk{
			Text:          text,
			StartOffset:   offset,
			EndOffset:     offset + len(text),
			SectionTitle:  title,
			TokenEstimate: tokens.Estimate(text),
		})
		offset += len(text)
	}

	for _, section := range sections {
		var buffer []string
		for _, paragraph := range section.Paragraphs {
			buffer = append(buffer, paragraph)
			if tokens.Estimate(strings.Join(buffer, "\n")) >= c.maxTokens {
				flush(buffer, section.Title)
				buffer = nil
			}
		}
		flush(buffer, section.Title)
	}

	return chunks
}
