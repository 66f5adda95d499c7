package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherEmitsEventForNewDocument(t *testing.T) {
	inbox := t.TempDir()
	w, err := NewWatcher(inbox, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	path := filepath.Join(inbox, "report.md")
	require.NoError(t, os.WriteFile(path, []byte("# Quarterly Report"), 0644))

	select {
	case event := <-w.Events():
		assert.Equal(t, "report.md", event.Path)
		assert.Equal(t, path, event.AbsPath)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for watch event")
	}
}

func TestWatcherIgnoresUnwatchedExtensions(t *testing.T) {
	inbox := t.TempDir()
	w, err := NewWatcher(inbox, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(inbox, "archive.zip"), []byte("xx"), 0644))

	select {
	case event := <-w.Events():
		t.Fatalf("unexpected event for %s", event.Path)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcherCreatesInboxDirectory(t *testing.T) {
	inbox := filepath.Join(t.TempDir(), "nested", "inbox")
	w, err := NewWatcher(inbox, WithExtensions([]string{"md"}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	info, err := os.Stat(inbox)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
