// Package watch provides the file system watcher a filer directory uses for
// live updates
package watch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gro/fsys"
	"gro/scanner"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces rapid changes (e.g., save + format)
const DefaultDebounce = 100 * time.Millisecond

// FSNotify is the fsnotify-backed Watcher
type FSNotify struct {
	root     string
	fs       fsys.FS
	watcher  *fsnotify.Watcher
	ignore   *scanner.IgnoreCache
	debounce time.Duration
	logger   *slog.Logger

	events    chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	started   bool

	// known files and directories, relative paths; owned by the event loop
	// once Init returns
	files map[string]bool
	dirs  map[string]bool
}

var _ Watcher = (*FSNotify)(nil)

// Option configures an FSNotify watcher.
type Option func(*FSNotify)

// WithDebounce sets the quiet period after the last event on a path before
// it is reported.
func WithDebounce(d time.Duration) Option {
	return func(w *FSNotify) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger used for watcher diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(w *FSNotify) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewFSNotify creates a new watcher for the given root
func NewFSNotify(root string, opts ...Option) (*FSNotify, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid root path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	host := fsys.NewOS()
	w := &FSNotify{
		root:     absRoot,
		fs:       host,
		watcher:  watcher,
		ignore:   scanner.NewIgnoreCache(host, absRoot),
		debounce: DefaultDebounce,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		events:   make(chan Event, 256),
		done:     make(chan struct{}),
		files:    make(map[string]bool),
		dirs:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Events implements Watcher.
func (w *FSNotify) Events() <-chan Event { return w.events }

// Init scans the root, adds every directory to the watcher and starts the
// event loop.
func (w *FSNotify) Init(ctx context.Context) ([]scanner.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if w.started {
		return nil, fmt.Errorf("watch: %s already initialized", w.root)
	}
	w.started = true

	start := time.Now()

	// Watch first so files created during the scan are not missed.
	if err := w.addWatchDirs(w.root); err != nil {
		return nil, fmt.Errorf("failed to add watch dirs: %w", err)
	}

	files, err := scanner.ScanFiles(w.fs, w.root, w.ignore)
	if err != nil {
		return nil, fmt.Errorf("initial scan failed: %w", err)
	}
	for _, f := range files {
		w.files[f.Path] = true
	}

	w.logger.Debug("watch: full scan",
		slog.String("root", w.root),
		slog.Int("files", len(files)),
		slog.Duration("took", time.Since(start)))

	w.wg.Add(1)
	go w.eventLoop()
	return files, nil
}

// Close gracefully shuts down the watcher and closes the Events channel
func (w *FSNotify) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		w.wg.Wait()
		close(w.events)
	})
	return err
}

// addWatchDirs recursively adds directories to the watcher
func (w *FSNotify) addWatchDirs(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip errors
		}
		if !info.IsDir() {
			return nil
		}
		if path != w.root && w.ignore.Ignored(path, true) {
			return filepath.SkipDir
		}
		if rel, ok := w.rel(path); ok && rel != "" {
			w.dirs[rel] = true
		}
		return w.watcher.Add(path)
	})
}

func (w *FSNotify) rel(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return "", false
	}
	if rel == "." {
		return "", true
	}
	return filepath.ToSlash(rel), true
}
