// Package cmd implements the gro commands on top of the filer.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"gro/builder"
	"gro/config"
	"gro/filer"
	"gro/fsys"
	"gro/sourcemeta"
	"gro/watch"
)

// ErrBuildFailed is returned by build when any source failed to build.
var ErrBuildFailed = errors.New("build failed")

// Env carries the process level collaborators of a command.
type Env struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
	// Builder resolves the builder for each source. Defaults to copying
	// sources into the output tree unchanged.
	Builder builder.Resolver
	// NewWatcher overrides the fsnotify watcher used by dev.
	NewWatcher func(dir string) (watch.Watcher, error)
}

// Commands lists the command names Run accepts.
var Commands = []string{"dev", "build", "status"}

// Run executes the named command against cfg.
func Run(ctx context.Context, env Env, name string, cfg *config.Config, args []string) error {
	if env.Logger == nil {
		env.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if env.Builder == nil {
		env.Builder = builder.Single(builder.Passthrough{})
	}
	switch name {
	case "dev":
		return runDev(ctx, env, cfg, args)
	case "build":
		return runBuild(ctx, env, cfg)
	case "status":
		return runStatus(env, cfg, args)
	default:
		return fmt.Errorf("unknown command: %s\nAvailable: %s", name, strings.Join(Commands, ", "))
	}
}

// newFiler builds a filer from the project config. The returned close
// function releases the meta store.
func newFiler(env Env, cfg *config.Config, dev, watching bool) (*filer.Filer, func() error, error) {
	opts := filer.Options{
		FS:             fsys.NewOS(),
		Mime:           cfg.Mime(),
		Dev:            dev,
		SourceDirs:     cfg.SourceDirs,
		BuildConfigs:   cfg.BuildConfigs(),
		RequiredBuilds: cfg.RequiredBuilds,
		Builder:        env.Builder,
		Watch:          watching,
		Debounce:       cfg.Debounce,
		NewWatcher:     env.NewWatcher,
		BuildDir:       cfg.BuildDir,
		Target:         cfg.Target,
		SourceMap:      cfg.SourceMap,
		Types:          cfg.Types,
		Logger:         env.Logger,
	}
	for _, sd := range cfg.ServedDirs {
		opts.ServedDirs = append(opts.ServedDirs, filer.ServedDir{Dir: sd.Dir, ServedAt: sd.ServedAt})
	}

	closeStore := func() error { return nil }
	if cfg.MetaStore == config.MetaStoreSQLite && len(cfg.SourceDirs) > 0 {
		if err := opts.FS.MkdirAll(cfg.BuildDir); err != nil {
			return nil, nil, fmt.Errorf("create build dir: %w", err)
		}
		store, err := sourcemeta.OpenSQLite(cfg.SQLitePath(dev), env.Logger)
		if err != nil {
			return nil, nil, err
		}
		opts.MetaStore = store
		closeStore = store.Close
	}

	f, err := filer.New(opts)
	if err != nil {
		_ = closeStore()
		return nil, nil, err
	}
	return f, func() error {
		return errors.Join(f.Close(), closeStore())
	}, nil
}
