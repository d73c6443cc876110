package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const DefaultWatchDebounce = 500 * time.Millisecond

// Watcher reports definition files in a directory that were written, created
// or renamed into place. Bursts of events for one file are debounced.
type Watcher struct {
	dir      string
	debounce time.Duration
	onChange func(ctx context.Context, path string)
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]time.Time
}

func NewWatcher(dir string, debounce time.Duration, onChange func(ctx context.Context, path string), logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	return &Watcher{
		dir:      dir,
		debounce: debounce,
		onChange: onChange,
		logger:   logger.With("module", "workflow_watcher"),
		pending:  make(map[string]time.Time),
	}
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	defer func() {
		if err := fsw.Close(); err != nil {
			w.logger.ErrorContext(ctx, "Failed to close watcher", "error", err)
		}
	}()

	err = fsw.Add(w.dir)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	w.logger.InfoContext(ctx, "Watching workflow definitions", "dir", w.dir)

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 && IsDefinitionFile(event.Name) {
				w.mu.Lock()
				w.pending[filepath.Clean(event.Name)] = time.Now()
				w.mu.Unlock()
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}

			w.logger.ErrorContext(ctx, "Watcher error", "error", err)

		case <-ticker.C:
			for _, path := range w.ready(time.Now()) {
				w.onChange(ctx, path)
			}
		}
	}
}

// ready removes and returns the paths quiet for at least the debounce interval.
func (w *Watcher) ready(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	paths := make([]string, 0)

	for path, seen := range w.pending {
		if now.Sub(seen) >= w.debounce {
			paths = append(paths, path)
			delete(w.pending, path)
		}
	}

	return paths
}
