package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPrefersFencedBlocks(t *testing.T) {
	input := "noise {\"a\":1} more ```json\n{\"b\":2}\n``` tail"

	value, kind := Extract(input)

	require.Empty(t, kind)
	assert.Equal(t, map[string]any{"b": float64(2)}, value)
}

func TestExtractUntaggedFence(t *testing.T) {
	value, kind := Extract("```\n{\"x\": true}\n```")
	require.Empty(t, kind)
	assert.Equal(t, map[string]any{"x": true}, value)
}

func TestExtractUppercaseFenceTag(t *testing.T) {
	value, kind := Extract("```JSON\n{\"y\": 7}\n```")
	require.Empty(t, kind)
	assert.Equal(t, map[string]any{"y": float64(7)}, value)
}

func TestExtractWholeTrimmedObject(t *testing.T) {
	value, kind := Extract("  {\"name\": \"acme\"}  ")
	require.Empty(t, kind)
	assert.Equal(t, map[string]any{"name": "acme"}, value)
}

func TestExtractBareBraceSpan(t *testing.T) {
	value, kind := Extract("The answer is {\"n\": 3} as requested.")
	require.Empty(t, kind)
	assert.Equal(t, map[string]any{"n": float64(3)}, value)
}

func TestExtractSkipsUnparseableFenceCandidates(t *testing.T) {
	input := "```json\nnot json\n```\n```json\n{\"ok\": 1}\n```"
	value, kind := Extract(input)
	require.Empty(t, kind)
	assert.Equal(t, map[string]any{"ok": float64(1)}, value)
}

func TestExtractDecodeErrorCarriesFirstFailure(t *testing.T) {
	_, kind := Extract("```json\n{broken\n```")
	assert.Equal(t, KindDecodeError, BaseKind(kind))
	assert.NotEqual(t, KindDecodeError, kind)
}

func TestExtractNoCandidate(t *testing.T) {
	_, kind := Extract("plain prose with no braces at all")
	assert.Equal(t, KindNoJSONCandidate, kind)
}

func TestBaseKind(t *testing.T) {
	assert.Equal(t, "decode_error", BaseKind("decode_error:unexpected EOF"))
	assert.Equal(t, "timeout", BaseKind("timeout"))
}
