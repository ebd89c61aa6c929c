package filer

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"gro/buildcfg"
	"gro/builder"
	"gro/fsys"
	"gro/mime"
	"gro/paths"
	"gro/sourcemeta"
	"gro/watch"
)

var (
	// ErrInvalidOptions wraps every configuration problem New reports.
	ErrInvalidOptions = errors.New("filer: invalid options")
	// ErrMissingDependency is recorded on a source whose import resolves
	// to no known source file.
	ErrMissingDependency = errors.New("filer: missing dependency")
	// ErrClosed is returned by operations on a closed filer.
	ErrClosed = errors.New("filer: closed")
)

// ServedDir maps a directory onto the path space FindByPath resolves
// against. Paths are relative to ServedAt, which defaults to Dir.
type ServedDir struct {
	Dir      string
	ServedAt string
}

// Options configures a Filer.
type Options struct {
	FS  fsys.FS
	Dev bool

	// SourceDirs are buildable roots.
	SourceDirs []string
	ServedDirs []ServedDir

	BuildConfigs   []*buildcfg.Config
	RequiredBuilds []string
	Builder        builder.Resolver

	Watch    bool
	Debounce time.Duration
	// NewWatcher creates the watcher for one directory when Watch is set.
	// Defaults to an fsnotify watcher.
	NewWatcher func(dir string) (watch.Watcher, error)

	BuildDir  string
	Target    string
	SourceMap bool
	Types     bool

	Logger *slog.Logger
	// MetaStore defaults to JSON files under the build dir.
	MetaStore sourcemeta.Store
	Mime      *mime.Registry
}

func (o *Options) applyDefaults() {
	if o.FS == nil {
		o.FS = fsys.NewOS()
	}
	if o.BuildDir == "" {
		o.BuildDir = paths.DefaultBuildDir
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.Mime == nil {
		o.Mime = mime.Default()
	}
	if o.Target == "" {
		o.Target = "es2020"
	}
	if o.Watch && o.NewWatcher == nil {
		debounce, logger := o.Debounce, o.Logger
		o.NewWatcher = func(dir string) (watch.Watcher, error) {
			return watch.NewFSNotify(dir, watch.WithDebounce(debounce), watch.WithLogger(logger))
		}
	}
	for i, sd := range o.ServedDirs {
		if sd.ServedAt == "" {
			o.ServedDirs[i].ServedAt = sd.Dir
		}
	}
}

// validate reports every configuration problem at once.
func (o *Options) validate() error {
	var errs []error
	if len(o.SourceDirs) == 0 && len(o.ServedDirs) == 0 {
		errs = append(errs, errors.New("at least one source or served dir is required"))
	}
	buildDir := filepath.Clean(o.BuildDir)
	for _, dir := range o.SourceDirs {
		if !filepath.IsAbs(dir) {
			errs = append(errs, fmt.Errorf("source dir %q must be absolute", dir))
			continue
		}
		if within(buildDir, dir) || within(dir, buildDir) {
			errs = append(errs, fmt.Errorf("source dir %q overlaps build dir %q", dir, buildDir))
		}
	}
	for i, a := range o.SourceDirs {
		for _, b := range o.SourceDirs[i+1:] {
			if within(a, b) || within(b, a) {
				errs = append(errs, fmt.Errorf("source dirs %q and %q overlap", a, b))
			}
		}
	}
	for _, sd := range o.ServedDirs {
		if !filepath.IsAbs(sd.Dir) || !filepath.IsAbs(sd.ServedAt) {
			errs = append(errs, fmt.Errorf("served dir %q must be absolute", sd.Dir))
		}
	}
	if len(o.SourceDirs) > 0 {
		if len(o.BuildConfigs) == 0 {
			errs = append(errs, errors.New("source dirs require at least one build config"))
		}
		if o.Builder == nil {
			errs = append(errs, errors.New("source dirs require a builder"))
		}
	}
	if err := buildcfg.Validate(o.BuildConfigs, o.RequiredBuilds...); err != nil {
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidOptions, errors.Join(errs...))
}

// within reports whether path is dir or lies under it.
func within(dir, path string) bool {
	dir, path = filepath.Clean(dir), filepath.Clean(path)
	return path == dir || strings.HasPrefix(path, dir+string(filepath.Separator))
}
