package backup

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/stillpointapp/stillpoint/internal/store"
)

// WatcherConfig holds configuration for the import watcher.
type WatcherConfig struct {
	// DebounceInterval is how long a file must be quiet before it is
	// imported. This batches partially written snapshots.
	DebounceInterval time.Duration

	// Logger for watcher activity.
	Logger *log.Logger
}

// DefaultWatcherConfig returns sensible defaults.
func DefaultWatcherConfig() *WatcherConfig {
	return &WatcherConfig{
		DebounceInterval: 500 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[backup] ", log.LstdFlags),
	}
}

// Watcher imports snapshot files dropped into a directory. This supports
// file-based handoff between devices: export on one machine, drop the file
// into the watched directory on another, and the state is restored.
//
// A successfully imported file is renamed with an ".imported" suffix so it
// is not processed again.
type Watcher struct {
	st     *store.Store
	dir    string
	config *WatcherConfig

	watcher       *fsnotify.Watcher
	changeQueue   map[string]time.Time
	changeQueueMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a Watcher over the given drop directory.
func NewWatcher(st *store.Store, dir string, config *WatcherConfig) (*Watcher, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if dir == "" {
		return nil, fmt.Errorf("dir cannot be empty")
	}
	if config == nil {
		config = DefaultWatcherConfig()
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create drop directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		st:          st,
		dir:         dir,
		config:      config,
		watcher:     watcher,
		changeQueue: make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start begins watching. This blocks until ctx is cancelled or the watcher
// is stopped.
func (w *Watcher) Start(ctx context.Context) error {
	// Pick up files that were dropped before the watcher started.
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to read drop directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !isSnapshotFile(entry.Name()) {
			continue
		}
		w.queueChange(filepath.Join(w.dir, entry.Name()))
	}

	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch drop directory: %w", err)
	}
	w.config.Logger.Printf("Watching: %s", w.dir)

	w.wg.Add(2)
	go w.watchFileEvents()
	go w.processChangeQueue()

	select {
	case <-ctx.Done():
		return w.Stop()
	case <-w.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the watcher.
func (w *Watcher) Stop() error {
	w.cancel()
	if err := w.watcher.Close(); err != nil {
		w.config.Logger.Printf("Error closing watcher: %v", err)
	}
	w.wg.Wait()
	w.config.Logger.Printf("Watcher stopped")
	return nil
}

// watchFileEvents monitors filesystem events and queues snapshot files.
func (w *Watcher) watchFileEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !isSnapshotFile(filepath.Base(event.Name)) {
				continue
			}
			w.queueChange(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// queueChange records a file for debounced processing.
func (w *Watcher) queueChange(path string) {
	w.changeQueueMu.Lock()
	defer w.changeQueueMu.Unlock()
	w.changeQueue[path] = time.Now()
}

// processChangeQueue imports files once they have been quiet long enough.
func (w *Watcher) processChangeQueue() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.processPendingFiles()
		}
	}
}

func (w *Watcher) processPendingFiles() {
	w.changeQueueMu.Lock()
	defer w.changeQueueMu.Unlock()

	now := time.Now()
	for path, queuedAt := range w.changeQueue {
		if now.Sub(queuedAt) < w.config.DebounceInterval {
			continue
		}
		delete(w.changeQueue, path)

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		result, err := Import(w.st, path)
		if err != nil {
			w.config.Logger.Printf("Error importing %s: %v", path, err)
			continue
		}
		w.config.Logger.Printf("Imported %s: tasks=%d sessions=%d",
			filepath.Base(path), result.Tasks, result.MeditationSessions+result.FocusSessions)

		if err := os.Rename(path, path+".imported"); err != nil {
			w.config.Logger.Printf("Warning: failed to mark %s imported: %v", path, err)
		}
	}
}

// isSnapshotFile reports whether name looks like a droppable snapshot.
func isSnapshotFile(name string) bool {
	return strings.HasSuffix(name, ".json") && !strings.HasSuffix(name, ".imported")
}
