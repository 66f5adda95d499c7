package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// eventChannelBuffer is the size of the watch event channel.
const eventChannelBuffer = 256

// defaultDebounce is how long the watcher waits for more changes before
// emitting events.
const defaultDebounce = 500 * time.Millisecond

// WatchEvent signals a document file appearing or changing in the inbox.
type WatchEvent struct {
	// Path is the file path relative to the inbox directory.
	Path string

	// AbsPath is the absolute file path.
	AbsPath string
}

// Watcher watches an inbox directory and emits debounced events for new or
// modified document files. Deletions are ignored: a removed inbox file has
// nothing left to process.
type Watcher struct {
	inboxDir   string
	debounce   time.Duration
	extensions map[string]bool
	watcher    *fsnotify.Watcher
	logger     *slog.Logger

	pendingMu sync.Mutex
	pending   map[string]struct{}

	events chan WatchEvent
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce overrides the debounce delay.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithExtensions sets the watched file extensions (default .md, .txt,
// .html).
func WithExtensions(exts []string) WatcherOption {
	return func(w *Watcher) {
		w.extensions = make(map[string]bool)
		for _, ext := range exts {
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			w.extensions[strings.ToLower(ext)] = true
		}
	}
}

// WithWatcherLogger sets the slog logger.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = logger }
}

// NewWatcher creates an inbox watcher.
func NewWatcher(inboxDir string, opts ...WatcherOption) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		inboxDir: inboxDir,
		debounce: defaultDebounce,
		extensions: map[string]bool{
			".md":   true,
			".txt":  true,
			".html": true,
		},
		watcher: fsw,
		logger:  slog.Default(),
		pending: make(map[string]struct{}),
		events:  make(chan WatchEvent, eventChannelBuffer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Events returns the channel of watch events.
func (w *Watcher) Events() <-chan WatchEvent {
	return w.events
}

// Start begins watching. The inbox directory is created if missing.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.inboxDir, 0755); err != nil {
		return err
	}
	if err := w.watcher.Add(w.inboxDir); err != nil {
		return err
	}

	go w.processEvents(ctx)

	w.logger.Info("Inbox watcher started",
		"inbox_dir", w.inboxDir,
		"debounce", w.debounce)
	return nil
}

// Stop stops the watcher. The events channel is closed by processEvents
// when it exits.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

// processEvents accumulates fsnotify events and flushes on a debounce tick.
func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.events)
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "error", err)

		case <-ticker.C:
			w.flushPending()
		}
	}
}

func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	ext := strings.ToLower(filepath.Ext(event.Name))
	if !w.extensions[ext] {
		return
	}

	w.pendingMu.Lock()
	w.pending[event.Name] = struct{}{}
	w.pendingMu.Unlock()
}

func (w *Watcher) flushPending() {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	toProcess := make([]string, 0, len(w.pending))
	for path := range w.pending {
		toProcess = append(toProcess, path)
	}
	w.pending = make(map[string]struct{})
	w.pendingMu.Unlock()

	for _, path := range toProcess {
		// The file may be gone by flush time.
		if _, err := os.Stat(path); err != nil {
			continue
		}
		relPath, _ := filepath.Rel(w.inboxDir, path)

		select {
		case w.events <- WatchEvent{Path: relPath, AbsPath: path}:
			w.logger.Debug("Inbox document detected", "path", relPath)
		default:
			w.logger.Warn("Event channel full, dropping event", "path", relPath)
		}
	}
}
