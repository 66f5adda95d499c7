package obs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSONArrayCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "logs", "records.json")

	require.NoError(t, WriteJSONArray(path, []string{"a", "b"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded []string
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, []string{"a", "b"}, decoded)
}

func TestWriteJSONArrayReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.json")

	require.NoError(t, WriteJSONArray(path, []int{1, 2, 3}))
	require.NoError(t, WriteJSONArray(path, []int{4}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded []int
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, []int{4}, decoded)
}

func TestWriteJSONArrayLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteJSONArray(filepath.Join(dir, "records.json"), []int{1}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "records.json", entries[0].Name())
}

func TestWriteJSONArrayRejectsUnmarshalable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.json")
	assert.Error(t, WriteJSONArray(path, []any{make(chan int)}))
}
