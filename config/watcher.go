// Package config's FileWatcher watches one or more agentloop config files
// for changes and drives HotReloadManager's reload path, combining an
// fsnotify-style polling loop with debouncing so a burst of writes from an
// editor's save-then-rename sequence collapses into one reload.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// --- file watcher types ---

// FileWatcher watches configuration files for changes.
type FileWatcher struct {
	mu sync.RWMutex

	paths         []string
	debounceDelay time.Duration

	running   bool
	stopChan  chan struct{}
	eventChan chan FileEvent

	callbacks []func(event FileEvent)

	logger *zap.Logger

	// lastModTimes backs the polling fallback: agentloop config files are
	// usually mounted from a ConfigMap or a local disk without reliable
	// inotify support in containers, so mtime polling is the only
	// dependable signal rather than an optimization on top of fsnotify.
	lastModTimes map[string]time.Time
}

// FileEvent represents a file change event.
type FileEvent struct {
	Path string `json:"path"`

	Op FileOp `json:"op"`

	Timestamp time.Time `json:"timestamp"`

	Error error `json:"error,omitempty"`
}

// FileOp represents file operation types.
type FileOp int

const (
	FileOpCreate FileOp = iota
	FileOpWrite
	FileOpRemove
	FileOpRename
	FileOpChmod
)

// String returns the string representation of FileOp.
func (op FileOp) String() string {
	switch op {
	case FileOpCreate:
		return "CREATE"
	case FileOpWrite:
		return "WRITE"
	case FileOpRemove:
		return "REMOVE"
	case FileOpRename:
		return "RENAME"
	case FileOpChmod:
		return "CHMOD"
	default:
		return "UNKNOWN"
	}
}

// --- file watcher options ---

// WatcherOption configures the FileWatcher.
type WatcherOption func(*FileWatcher)

// WithDebounceDelay sets the debounce delay for file events.
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		w.debounceDelay = d
	}
}

// WithWatcherLogger sets the logger for the watcher.
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *FileWatcher) {
		w.logger = logger
	}
}

// --- file watcher implementation ---

// recognizedConfigExt is the set of extensions agentloop's loader actually
// parses (config/loader.go); AddPath rejects anything else so a hot-reload
// watcher is never pointed at, say, a .bak file left next to config.yaml.
var recognizedConfigExt = map[string]bool{
	".yaml": true,
	".yml":  true,
	".json": true,
}

func isRecognizedConfigPath(path string) bool {
	return recognizedConfigExt[strings.ToLower(filepath.Ext(path))]
}

// NewFileWatcher creates a new file watcher over paths, each of which must
// carry one of agentloop's recognized config extensions (.yaml, .yml,
// .json).
func NewFileWatcher(paths []string, opts ...WatcherOption) (*FileWatcher, error) {
	for _, path := range paths {
		if !isRecognizedConfigPath(path) {
			return nil, fmt.Errorf("watch path %q: unrecognized config extension (want .yaml, .yml, or .json)", path)
		}
	}

	w := &FileWatcher{
		paths:         paths,
		debounceDelay: 100 * time.Millisecond,
		stopChan:      make(chan struct{}),
		eventChan:     make(chan FileEvent, 100),
		callbacks:     make([]func(FileEvent), 0),
		lastModTimes:  make(map[string]time.Time),
		logger:        zap.NewNop(),
	}

	for _, opt := range opts {
		opt(w)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				w.logger.Warn("config file does not exist, will watch for creation",
					zap.String("path", path))
			} else {
				return nil, fmt.Errorf("failed to stat path %s: %w", path, err)
			}
		}
	}

	return w, nil
}

// OnChange registers a callback for every file change event, regardless of
// operation.
func (w *FileWatcher) OnChange(callback func(FileEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// OnConfigChange registers a callback for the two operations that actually
// warrant a config reload -- a file being written or (re)created, as when
// an editor replaces the file via a temp-file-then-rename sequence. This is
// the filter HotReloadManager.handleFileChange used to apply by hand; moving
// it here means every caller gets the same "reload on write/create only"
// policy instead of re-deriving it.
func (w *FileWatcher) OnConfigChange(callback func(FileEvent)) {
	w.OnChange(func(event FileEvent) {
		if event.Op == FileOpWrite || event.Op == FileOpCreate {
			callback(event)
		}
	})
}

// Start begins watching for file changes.
func (w *FileWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	for _, path := range w.paths {
		if info, err := os.Stat(path); err == nil {
			w.lastModTimes[path] = info.ModTime()
		}
	}

	go w.pollLoop(ctx)
	go w.dispatchLoop(ctx)

	w.logger.Info("file watcher started",
		zap.Strings("paths", w.paths),
		zap.Duration("debounce_delay", w.debounceDelay))

	return nil
}

// Stop stops the file watcher.
func (w *FileWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	close(w.stopChan)
	w.running = false

	w.logger.Info("file watcher stopped")
	return nil
}

// pollLoop polls files for changes (fallback for systems without fsnotify).
func (w *FileWatcher) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.checkFiles()
		}
	}
}

// checkFiles checks all watched files for modifications.
func (w *FileWatcher) checkFiles() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, path := range w.paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				if _, existed := w.lastModTimes[path]; existed {
					delete(w.lastModTimes, path)
					w.eventChan <- FileEvent{
						Path:      path,
						Op:        FileOpRemove,
						Timestamp: time.Now(),
					}
				}
			}
			continue
		}

		lastMod, existed := w.lastModTimes[path]
		if !existed {
			w.lastModTimes[path] = info.ModTime()
			w.eventChan <- FileEvent{
				Path:      path,
				Op:        FileOpCreate,
				Timestamp: time.Now(),
			}
		} else if info.ModTime().After(lastMod) {
			w.lastModTimes[path] = info.ModTime()
			w.eventChan <- FileEvent{
				Path:      path,
				Op:        FileOpWrite,
				Timestamp: time.Now(),
			}
		}
	}
}

// dispatchLoop dispatches events to callbacks with debouncing.
func (w *FileWatcher) dispatchLoop(ctx context.Context) {
	var (
		pendingEvents = make(map[string]FileEvent)
		pendingMu     sync.Mutex
		debounceTimer *time.Timer
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case event := <-w.eventChan:
			pendingMu.Lock()
			pendingEvents[event.Path] = event
			pendingMu.Unlock()

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounceDelay, func() {
				w.mu.RLock()
				callbacks := make([]func(FileEvent), len(w.callbacks))
				copy(callbacks, w.callbacks)
				w.mu.RUnlock()

				pendingMu.Lock()
				events := pendingEvents
				pendingEvents = make(map[string]FileEvent)
				pendingMu.Unlock()

				for path, evt := range events {
					w.logger.Debug("dispatching file event",
						zap.String("path", path),
						zap.String("op", evt.Op.String()))

					for _, cb := range callbacks {
						cb(evt)
					}
				}
			})
		}
	}
}

// AddPath adds a new path to watch. path must carry a recognized config
// extension, same as NewFileWatcher.
func (w *FileWatcher) AddPath(path string) error {
	if !isRecognizedConfigPath(path) {
		return fmt.Errorf("watch path %q: unrecognized config extension (want .yaml, .yml, or .json)", path)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, p := range w.paths {
		if p == path {
			return nil
		}
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	w.paths = append(w.paths, absPath)

	if info, err := os.Stat(absPath); err == nil {
		w.lastModTimes[absPath] = info.ModTime()
	}

	w.logger.Info("added path to watcher", zap.String("path", absPath))
	return nil
}

// RemovePath removes a path from watching.
func (w *FileWatcher) RemovePath(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	absPath, _ := filepath.Abs(path)

	for i, p := range w.paths {
		if p == absPath {
			w.paths = append(w.paths[:i], w.paths[i+1:]...)
			delete(w.lastModTimes, absPath)
			w.logger.Info("removed path from watcher", zap.String("path", absPath))
			return nil
		}
	}

	return fmt.Errorf("path not found: %s", path)
}

// Paths returns the list of watched paths.
func (w *FileWatcher) Paths() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	paths := make([]string, len(w.paths))
	copy(paths, w.paths)
	return paths
}

// IsRunning returns whether the watcher is running.
func (w *FileWatcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}
