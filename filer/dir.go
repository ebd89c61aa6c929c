package filer

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"

	"gro/fsys"
	"gro/scanner"
	"gro/watch"
)

// ChangeType is the kind of change a Dir reports.
type ChangeType string

const (
	ChangeInit   ChangeType = "init"
	ChangeCreate ChangeType = "create"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// Change is one file event under a Dir. Path is relative to the Dir, with
// forward slashes.
type Change struct {
	Type  ChangeType
	Path  string
	Info  fs.FileInfo // nil for deletes
	IsDir bool        // a whole directory was deleted
}

// ChangeFunc receives the changes of a Dir.
type ChangeFunc func(ctx context.Context, change Change, dir *Dir) error

// Dir wraps one root directory, buildable or served-only, and the watcher
// that reports its changes.
type Dir struct {
	Path      string
	Buildable bool

	fs       fsys.FS
	watcher  watch.Watcher
	onChange ChangeFunc
	logger   *slog.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewDir returns a Dir for path. A nil watcher makes Init a one-shot scan.
func NewDir(path string, buildable bool, fsy fsys.FS, w watch.Watcher, onChange ChangeFunc, logger *slog.Logger) *Dir {
	return &Dir{
		Path:      filepath.Clean(path),
		Buildable: buildable,
		fs:        fsy,
		watcher:   w,
		onChange:  onChange,
		logger:    logger,
	}
}

// Watching reports whether the Dir forwards live changes.
func (d *Dir) Watching() bool { return d.watcher != nil }

// Init creates the directory if needed and reports every file under it as a
// ChangeInit, in walk order. A watching Dir then forwards live changes until
// Close.
func (d *Dir) Init(ctx context.Context) error {
	if err := d.fs.MkdirAll(d.Path); err != nil {
		return fmt.Errorf("filer: create dir %s: %w", d.Path, err)
	}

	var (
		files []scanner.FileInfo
		err   error
	)
	if d.watcher != nil {
		files, err = d.watcher.Init(ctx)
	} else {
		files, err = scanner.ScanFiles(d.fs, d.Path, scanner.NewIgnoreCache(d.fs, d.Path))
	}
	if err != nil {
		return fmt.Errorf("filer: scan %s: %w", d.Path, err)
	}

	for _, f := range files {
		if err := d.onChange(ctx, Change{Type: ChangeInit, Path: f.Path, Info: f.Info}, d); err != nil {
			return err
		}
	}

	if d.watcher != nil {
		d.wg.Add(1)
		go d.forward(context.WithoutCancel(ctx))
	}
	return nil
}

// forward delivers watcher events one at a time until the watcher closes.
func (d *Dir) forward(ctx context.Context) {
	defer d.wg.Done()
	for e := range d.watcher.Events() {
		change := Change{Path: e.Path, Info: e.Info, IsDir: e.IsDir}
		switch e.Op {
		case watch.OpCreate:
			change.Type = ChangeCreate
		case watch.OpUpdate:
			change.Type = ChangeUpdate
		case watch.OpDelete:
			change.Type = ChangeDelete
		default:
			continue
		}
		if err := d.onChange(ctx, change, d); err != nil {
			d.logger.Error("filer: handle change",
				slog.String("dir", d.Path),
				slog.String("path", e.Path),
				slog.String("op", string(e.Op)),
				slog.Any("error", err))
		}
	}
}

// Close stops the watcher and waits for the forwarding loop to drain.
func (d *Dir) Close() error {
	var err error
	d.closeOnce.Do(func() {
		if d.watcher != nil {
			err = d.watcher.Close()
		}
		d.wg.Wait()
	})
	return err
}

// id returns the absolute id of a path relative to the Dir.
func (d *Dir) id(rel string) string {
	return filepath.Join(d.Path, filepath.FromSlash(rel))
}
