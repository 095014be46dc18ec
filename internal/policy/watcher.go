package policy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ReloadFunc is invoked after a debounced batch of file changes
type ReloadFunc func() error

// ReloadedEvent reports the outcome of one reload
type ReloadedEvent struct {
	Timestamp time.Time
	Error     error
}

// DirWatcher monitors a directory for YAML/JSON file changes and calls a
// reload function once changes settle
type DirWatcher struct {
	watcher         *fsnotify.Watcher
	path            string
	reload          ReloadFunc
	logger          *zap.Logger
	debounceTimeout time.Duration
	debounceTimer   *time.Timer
	eventChan       chan ReloadedEvent
	stopChan        chan struct{}
	mu              sync.Mutex
	isWatching      bool
}

// NewDirWatcher creates a watcher for path
func NewDirWatcher(path string, reload ReloadFunc, logger *zap.Logger) (*DirWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &DirWatcher{
		watcher:         watcher,
		path:            path,
		reload:          reload,
		logger:          logger,
		debounceTimeout: 500 * time.Millisecond,
		eventChan:       make(chan ReloadedEvent, 10),
		stopChan:        make(chan struct{}),
	}, nil
}

// Watch starts watching the directory until ctx is done or Stop is called
func (w *DirWatcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.isWatching {
		w.mu.Unlock()
		return fmt.Errorf("watcher is already running")
	}
	w.isWatching = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.path); err != nil {
		w.mu.Lock()
		w.isWatching = false
		w.mu.Unlock()
		return fmt.Errorf("failed to add path to watcher: %w", err)
	}

	w.logger.Info("Starting directory watcher",
		zap.String("path", w.path),
		zap.Duration("debounce", w.debounceTimeout),
	)

	go w.watchLoop(ctx)
	return nil
}

func (w *DirWatcher) watchLoop(ctx context.Context) {
	defer func() {
		w.mu.Lock()
		w.isWatching = false
		w.mu.Unlock()
		w.logger.Info("Directory watcher stopped", zap.String("path", w.path))
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if IsRuleFile(event.Name) {
				w.handleEvent(event)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", zap.Error(err))
		}
	}
}

// handleEvent restarts the debounce timer
func (w *DirWatcher) handleEvent(event fsnotify.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.logger.Debug("File change detected",
		zap.String("file", event.Name),
		zap.String("op", event.Op.String()),
	)

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounceTimeout, w.performReload)
}

func (w *DirWatcher) performReload() {
	err := w.reload()
	if err != nil {
		w.logger.Error("Reload failed", zap.String("path", w.path), zap.Error(err))
	} else {
		w.logger.Info("Reloaded directory", zap.String("path", w.path))
	}

	// Drop the event rather than block when nobody is listening
	select {
	case w.eventChan <- ReloadedEvent{Timestamp: time.Now(), Error: err}:
	default:
	}
}

// EventChan returns a channel for receiving reload events
func (w *DirWatcher) EventChan() <-chan ReloadedEvent {
	return w.eventChan
}

// Stop stops watching for file changes
func (w *DirWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	select {
	case <-w.stopChan:
		return nil
	default:
	}
	close(w.stopChan)

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}

	if err := w.watcher.Close(); err != nil {
		w.logger.Error("Error closing watcher", zap.Error(err))
		return err
	}
	return nil
}

// SetDebounceTimeout sets the debounce timeout for file changes
func (w *DirWatcher) SetDebounceTimeout(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounceTimeout = d
}

// IsWatching returns true if the watcher is currently active
func (w *DirWatcher) IsWatching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.isWatching
}
