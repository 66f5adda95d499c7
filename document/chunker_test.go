package document

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkTextRespectsWindow(t *testing.T) {
	c := NewChunker(10, 2) // 40-char window, 8-char overlap
	text := strings.Repeat("a", 100)

	chunks := c.ChunkText(text)
	require.NotEmpty(t, chunks)

	for _, chunk := range chunks {
		assert.LessOrEqual(t, chunk.TokenEstimate, 10)
		assert.Equal(t, chunk.Text, text[chunk.StartOffset:chunk.EndOffset])
	}
	assert.Equal(t, len(text), chunks[len(chunks)-1].EndOffset)
}

func TestChunkTextEmpty(t *testing.T) {
	c := NewChunker(10, 2)
	assert.Empty(t, c.ChunkText(""))
}

func TestChunkSectionsClosesAtCeiling(t *testing.T) {
	c := NewChunker(5, 0) // close a chunk once it reaches 5 tokens
	sections := []NormalizedSection{
		{Title: "A", Paragraphs: []string{strings.Repeat("x", 12), strings.Repeat("y", 12), strings.Repeat("z", 12)}},
	}

	chunks := c.ChunkSections(sections)
	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		assert.Equal(t, "A", chunk.SectionTitle)
		assert.Greater(t, chunk.TokenEstimate, 0)
	}
}
