// Package watcher batches filesystem events and hands them to callbacks.
package watcher

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FileFilter decides whether a path is interesting.
type FileFilter func(path string) bool

// ChangeHandler receives one debounced batch of changed paths.
type ChangeHandler func(paths []string)

// FileWatcher watches a fixed set of directories with debouncing.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	delay   time.Duration
	logger  *zap.Logger

	mu       sync.Mutex
	filters  []FileFilter
	handlers []ChangeHandler
	pending  map[string]struct{}
	timer    *time.Timer
}

// New creates a watcher that flushes batches after delay of quiet.
func New(delay time.Duration, logger *zap.Logger) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileWatcher{
		watcher: w,
		delay:   delay,
		logger:  logger.Named("Watcher"),
		pending: make(map[string]struct{}),
	}, nil
}

// AddFilter adds a filter; all filters must accept a path.
func (fw *FileWatcher) AddFilter(f FileFilter) {
	fw.mu.Lock()
	fw.filters = append(fw.filters, f)
	fw.mu.Unlock()
}

// AddHandler registers a batch callback.
func (fw *FileWatcher) AddHandler(h ChangeHandler) {
	fw.mu.Lock()
	fw.handlers = append(fw.handlers, h)
	fw.mu.Unlock()
}

// AddPath watches a single directory (not recursive).
func (fw *FileWatcher) AddPath(path string) error {
	return fw.watcher.Add(filepath.Clean(path))
}

// Start consumes events until ctx is cancelled.
func (fw *FileWatcher) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				fw.Stop()
				return
			case ev, ok := <-fw.watcher.Events:
				if !ok {
					return
				}
				fw.handle(ev)
			case err, ok := <-fw.watcher.Errors:
				if !ok {
					return
				}
				fw.logger.Warn("watch error", zap.Error(err))
			}
		}
	}()
}

// Stop releases the underlying watcher.
func (fw *FileWatcher) Stop() {
	fw.mu.Lock()
	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.mu.Unlock()
	_ = fw.watcher.Close()
}

func (fw *FileWatcher) handle(ev fsnotify.Event) {
	if ev.Op == fsnotify.Chmod {
		return
	}
	fw.mu.Lock()
	defer fw.mu.Unlock()
	for _, f := range fw.filters {
		if !f(ev.Name) {
			return
		}
	}
	fw.pending[ev.Name] = struct{}{}
	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.timer = time.AfterFunc(fw.delay, fw.flush)
}

func (fw *FileWatcher) flush() {
	fw.mu.Lock()
	paths := make([]string, 0, len(fw.pending))
	for p := range fw.pending {
		paths = append(paths, p)
	}
	fw.pending = make(map[string]struct{})
	handlers := append([]ChangeHandler(nil), fw.handlers...)
	fw.mu.Unlock()

	if len(paths) == 0 {
		return
	}
	for _, h := range handlers {
		h(paths)
	}
}

// ExtFilter accepts files with one of exts and ignores dotfiles (atomic-write temps).
func ExtFilter(exts ...string) FileFilter {
	return func(path string) bool {
		base := filepath.Base(path)
		if strings.HasPrefix(base, ".") {
			return false
		}
		if len(exts) == 0 {
			return true
		}
		for _, ext := range exts {
			if strings.EqualFold(filepath.Ext(base), ext) {
				return true
			}
		}
		return false
	}
}
