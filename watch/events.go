package watch

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gro/scanner"

	"github.com/fsnotify/fsnotify"
)

// eventLoop processes file system events. Raw events are coalesced per path
// and flushed once no event has arrived for the debounce window.
func (w *FSNotify) eventLoop() {
	defer w.wg.Done()

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op == fsnotify.Chmod {
				continue
			}
			if filepath.Base(event.Name) == ".gitignore" {
				w.ignore.Invalidate(filepath.Dir(event.Name))
			}
			pending[event.Name] = struct{}{}
			timer.Reset(w.debounce)

		case <-timer.C:
			names := make([]string, 0, len(pending))
			for name := range pending {
				names = append(names, name)
			}
			clear(pending)
			sort.Strings(names)
			for _, name := range names {
				if !w.handleEvent(name) {
					return
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch: error", slog.String("root", w.root), slog.Any("error", err))
		}
	}
}

// handleEvent turns the current state of one changed path into events.
// It returns false once the watcher is closing.
func (w *FSNotify) handleEvent(path string) bool {
	rel, ok := w.rel(path)
	if !ok || rel == "" {
		return true
	}

	info, err := os.Stat(path)
	if err != nil {
		return w.handleRemove(rel)
	}

	if w.ignore.Ignored(path, info.IsDir()) {
		return true
	}

	// If a new directory was created, add it to the watcher and report the
	// files that landed in it before the watch was in place
	if info.IsDir() {
		if w.dirs[rel] {
			return true
		}
		if err := w.addWatchDirs(path); err != nil {
			w.logger.Warn("watch: add dir", slog.String("path", path), slog.Any("error", err))
		}
		files, err := scanner.ScanFiles(w.fs, path, w.ignore)
		if err != nil {
			w.logger.Warn("watch: scan dir", slog.String("path", path), slog.Any("error", err))
			return true
		}
		for _, f := range files {
			child := rel + "/" + f.Path
			if w.files[child] {
				continue
			}
			w.files[child] = true
			if !w.emit(Event{Time: time.Now(), Op: OpCreate, Path: child, Info: f.Info}) {
				return false
			}
		}
		return true
	}

	op := OpUpdate
	if !w.files[rel] {
		op = OpCreate
		w.files[rel] = true
	}
	return w.emit(Event{Time: time.Now(), Op: op, Path: rel, Info: info})
}

func (w *FSNotify) handleRemove(rel string) bool {
	switch {
	case w.files[rel]:
		delete(w.files, rel)
		return w.emit(Event{Time: time.Now(), Op: OpDelete, Path: rel})

	case w.dirs[rel]:
		prefix := rel + "/"
		for f := range w.files {
			if strings.HasPrefix(f, prefix) {
				delete(w.files, f)
			}
		}
		for d := range w.dirs {
			if d == rel || strings.HasPrefix(d, prefix) {
				delete(w.dirs, d)
			}
		}
		return w.emit(Event{Time: time.Now(), Op: OpDelete, Path: rel, IsDir: true})
	}
	return true
}

func (w *FSNotify) emit(e Event) bool {
	w.logger.Debug("watch: event", slog.String("op", string(e.Op)), slog.String("path", e.Path))
	select {
	case w.events <- e:
		return true
	case <-w.done:
		return false
	}
}
