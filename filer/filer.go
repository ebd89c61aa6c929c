// Package filer is the incremental build engine: it tracks the files under
// a set of root directories, builds them through pluggable builders for
// every matching build config and keeps the outputs, their dependency graph
// and the persisted source meta in sync with the file system.
package filer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"gro/buildcfg"
	"gro/builder"
	"gro/depgraph"
	"gro/fsys"
	"gro/mime"
	"gro/paths"
	"gro/sourcemeta"
)

// Filer owns the filer directories, the in-memory file maps and the
// dependency graph.
type Filer struct {
	fs       fsys.FS
	dev      bool
	buildDir string
	configs  []*buildcfg.Config
	resolver builder.Resolver
	served   []ServedDir
	meta     sourcemeta.Store
	mimes    *mime.Registry
	logger   *slog.Logger
	bc       *builder.Context
	graph    *depgraph.Graph

	dirs []*Dir

	mu      sync.RWMutex
	sources map[string]*SourceFile
	builds  map[string]*BuildFile

	lockMu  sync.Mutex
	idLocks map[string]*idLock

	initMu      sync.Mutex
	initialized bool
	pending     []string // source ids discovered during Init, built after every dir scanned
	stored      map[string]*sourcemeta.Data

	subMu   sync.Mutex
	subs    map[int]func(BuildEvent)
	nextSub int
	pubMu   sync.Mutex

	closed atomic.Bool
}

// New validates opts and returns a Filer. No file system work happens
// until Init.
func New(opts Options) (*Filer, error) {
	opts.ServedDirs = append([]ServedDir(nil), opts.ServedDirs...)
	opts.applyDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	f := &Filer{
		fs:       opts.FS,
		dev:      opts.Dev,
		buildDir: filepath.Clean(opts.BuildDir),
		configs:  opts.BuildConfigs,
		resolver: opts.Builder,
		served:   opts.ServedDirs,
		meta:     opts.MetaStore,
		mimes:    opts.Mime,
		logger:   opts.Logger,
		graph:    depgraph.New(),
		sources:  make(map[string]*SourceFile),
		builds:   make(map[string]*BuildFile),
		idLocks:  make(map[string]*idLock),
		subs:     make(map[int]func(BuildEvent)),
	}
	f.bc = &builder.Context{
		FS:           f.fs,
		BuildConfigs: f.configs,
		BuildDir:     f.buildDir,
		Dev:          f.dev,
		SourceMap:    opts.SourceMap,
		Types:        opts.Types,
		Target:       opts.Target,
		Logger:       f.logger,
		FindByID:     f.contentsByID,
	}

	for _, dir := range opts.SourceDirs {
		d, err := f.newDir(opts, dir, true)
		if err != nil {
			return nil, err
		}
		f.dirs = append(f.dirs, d)
	}
	for _, sd := range opts.ServedDirs {
		if f.coveredByDir(sd.Dir) || within(f.buildDir, sd.Dir) {
			continue
		}
		d, err := f.newDir(opts, sd.Dir, false)
		if err != nil {
			return nil, err
		}
		f.dirs = append(f.dirs, d)
	}

	if f.meta == nil && f.hasBuildableDirs() {
		f.meta = sourcemeta.NewFSStore(f.fs, f.buildDir, f.dev, f.sourceBasePath, f.logger)
	}
	return f, nil
}

func (f *Filer) newDir(opts Options, path string, buildable bool) (*Dir, error) {
	d := NewDir(path, buildable, f.fs, nil, f.OnChange, f.logger)
	if opts.Watch {
		w, err := opts.NewWatcher(d.Path)
		if err != nil {
			return nil, fmt.Errorf("filer: watch %s: %w", d.Path, err)
		}
		d.watcher = w
	}
	return d, nil
}

func (f *Filer) coveredByDir(path string) bool {
	for _, d := range f.dirs {
		if within(d.Path, path) {
			return true
		}
	}
	return false
}

func (f *Filer) hasBuildableDirs() bool {
	for _, d := range f.dirs {
		if d.Buildable {
			return true
		}
	}
	return false
}

// Dirs returns the filer directories in configuration order.
func (f *Filer) Dirs() []*Dir { return append([]*Dir(nil), f.dirs...) }

// Init loads the persisted source meta, scans every directory and brings
// each buildable source up to date, reusing outputs whose source is
// unchanged. File system failures are returned.
func (f *Filer) Init(ctx context.Context) error {
	f.initMu.Lock()
	if f.initialized {
		f.initMu.Unlock()
		return fmt.Errorf("filer: already initialized")
	}
	f.initMu.Unlock()

	buildable := f.hasBuildableDirs()
	if buildable {
		if err := f.fs.MkdirAll(f.buildDir); err != nil {
			return fmt.Errorf("filer: create build dir %s: %w", f.buildDir, err)
		}
		stored, err := f.meta.Load(ctx)
		if err != nil {
			return err
		}
		f.stored = stored
		if err := builder.InitAll(ctx, f.resolver, f.bc); err != nil {
			return fmt.Errorf("filer: init builders: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, d := range f.dirs {
		d := d
		g.Go(func() error { return d.Init(gctx) })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	f.initMu.Lock()
	pending := f.pending
	f.pending = nil
	f.initialized = true
	f.initMu.Unlock()
	sort.Strings(pending)

	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, id := range pending {
		id := id
		g.Go(func() error { return f.reconcile(gctx, id) })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if buildable {
		if err := f.pruneStale(ctx); err != nil {
			return err
		}
	}
	f.stored = nil

	f.logger.Info("filer: initialized",
		slog.Any("build_configs", buildcfg.Names(f.configs)),
		slog.Int("sources", f.SourceCount()),
		slog.Int("builds", f.BuildCount()))
	return nil
}

// OnChange applies one change reported by dir. It is the only entry point
// that mutates file state. Changes arriving after Close are discarded.
func (f *Filer) OnChange(ctx context.Context, change Change, dir *Dir) error {
	if f.closed.Load() {
		return nil
	}
	id := dir.id(change.Path)

	switch change.Type {
	case ChangeInit, ChangeCreate, ChangeUpdate:
		if change.Type == ChangeInit {
			f.initMu.Lock()
			if !f.initialized {
				defer f.initMu.Unlock()
				return f.register(id, dir, change)
			}
			f.initMu.Unlock()
		}
		return f.update(ctx, id, dir, change, false)

	case ChangeDelete:
		if change.IsDir || f.SourceFile(id) == nil {
			return f.removeTree(ctx, id)
		}
		return f.remove(ctx, id)
	}
	return fmt.Errorf("filer: unknown change type %q", change.Type)
}

// register records a file discovered during Init. Called with initMu held.
func (f *Filer) register(id string, dir *Dir, change Change) error {
	contents, err := f.fs.ReadFile(id)
	if err != nil {
		return fmt.Errorf("filer: read %s: %w", id, err)
	}
	sf := newSourceFile(id, dir, contents, change.Info, f.fs, f.mimes)
	f.mu.Lock()
	f.sources[id] = sf
	f.mu.Unlock()
	if dir.Buildable {
		f.pending = append(f.pending, id)
	}
	return nil
}

// update handles a created or changed file, and forced rebuilds.
func (f *Filer) update(ctx context.Context, id string, dir *Dir, change Change, force bool) error {
	unlock := f.lockID(id)
	defer unlock()

	contents, err := f.fs.ReadFile(id)
	if err != nil {
		return fmt.Errorf("filer: read %s: %w", id, err)
	}

	sf := f.SourceFile(id)
	if sf == nil {
		sf = newSourceFile(id, dir, contents, change.Info, f.fs, f.mimes)
		f.mu.Lock()
		f.sources[id] = sf
		f.mu.Unlock()
		if !sf.buildable {
			return nil
		}
		return f.buildSource(ctx, sf, f.selectingConfigs(id))
	}

	prevHash := sf.ContentHash()
	if hashContents(contents) == prevHash && !force {
		return nil
	}
	sf.setContents(contents, change.Info)
	if !sf.buildable {
		return nil
	}

	// Configs that built the file before are rebuilt when they still select
	// it; the rest lose their outputs.
	selecting := f.selectingConfigs(id)
	selected := make(map[string]bool, len(selecting))
	for _, cfg := range selecting {
		selected[cfg.Name] = true
	}
	for _, name := range sf.BuildNames() {
		if !selected[name] {
			if err := f.removeBuild(ctx, sf, name); err != nil {
				return err
			}
		}
	}
	return f.buildSource(ctx, sf, selecting)
}

// Rebuild forces a rebuild of a source even when its contents are
// unchanged. Dependents are not rebuilt; callers opt in via Dependents.
func (f *Filer) Rebuild(ctx context.Context, id string) error {
	if f.closed.Load() {
		return ErrClosed
	}
	sf := f.SourceFile(id)
	if sf == nil {
		return fmt.Errorf("filer: rebuild %s: %w", id, errNotFound)
	}
	rel := paths.ToBasePath(sf.filerDir.Path, id)
	return f.update(ctx, id, sf.filerDir, Change{Type: ChangeUpdate, Path: rel}, true)
}

var errNotFound = errors.New("no such source file")

// selectingConfigs returns the configs whose input selects id, in
// configuration order.
func (f *Filer) selectingConfigs(id string) []*buildcfg.Config {
	var out []*buildcfg.Config
	for _, cfg := range f.configs {
		if cfg.Selects(id) {
			out = append(out, cfg)
		}
	}
	return out
}

// idLock is the mutex of one source id, counted so it can be dropped once
// nobody holds or waits for it.
type idLock struct {
	mu   sync.Mutex
	refs int
}

// lockID serializes operations on one source id.
func (f *Filer) lockID(id string) func() {
	f.lockMu.Lock()
	l, ok := f.idLocks[id]
	if !ok {
		l = &idLock{}
		f.idLocks[id] = l
	}
	l.refs++
	f.lockMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		f.lockMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(f.idLocks, id)
		}
		f.lockMu.Unlock()
	}
}

// removeTree removes every source under a deleted directory.
func (f *Filer) removeTree(ctx context.Context, dirID string) error {
	prefix := dirID + string(filepath.Separator)
	f.mu.RLock()
	var ids []string
	for id := range f.sources {
		if strings.HasPrefix(id, prefix) {
			ids = append(ids, id)
		}
	}
	f.mu.RUnlock()
	sort.Strings(ids)

	var errs []error
	for _, id := range ids {
		if err := f.remove(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// remove deletes a source, its outputs on disk and in memory, its meta
// record and its outgoing edges, then checks the files that imported it.
func (f *Filer) remove(ctx context.Context, id string) error {
	unlock := f.lockID(id)
	sf := f.SourceFile(id)
	if sf == nil {
		unlock()
		return nil
	}

	var errs []error
	for _, name := range sf.BuildNames() {
		if err := f.removeBuild(ctx, sf, name); err != nil {
			errs = append(errs, err)
		}
	}
	f.graph.RemoveDependent(id)
	if sf.buildable {
		if err := f.meta.Delete(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	sf.setState(StateRemoved)
	f.mu.Lock()
	delete(f.sources, id)
	f.mu.Unlock()
	unlock()

	f.logger.Debug("filer: removed source", slog.String("source_id", id))

	for _, dependent := range f.graph.Dependents(id) {
		f.checkDependencies(dependent)
	}
	return errors.Join(errs...)
}

// Close stops every directory. In-flight changes finish and commit; later
// ones are discarded.
func (f *Filer) Close() error {
	if f.closed.Swap(true) {
		return nil
	}
	var errs []error
	for _, d := range f.dirs {
		if err := d.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SourceFile returns the tracked source with the given id, or nil.
func (f *Filer) SourceFile(id string) *SourceFile {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.sources[id]
}

// BuildFile returns the tracked build output with the given id, or nil.
func (f *Filer) BuildFile(id string) *BuildFile {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.builds[id]
}

// FindByID returns the source or build file with the given id.
func (f *Filer) FindByID(id string) (File, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if sf, ok := f.sources[id]; ok {
		return sf, true
	}
	if bf, ok := f.builds[id]; ok {
		return bf, true
	}
	return nil, false
}

func (f *Filer) contentsByID(id string) ([]byte, bool) {
	file, ok := f.FindByID(id)
	if !ok {
		return nil, false
	}
	return file.Contents(), true
}

// FindByPath resolves a path relative to the served dirs, in order. A
// miss is not an error.
func (f *Filer) FindByPath(path string) (File, bool) {
	rel := filepath.FromSlash(strings.TrimPrefix(path, "/"))
	for _, sd := range f.served {
		id := filepath.Join(sd.ServedAt, rel)
		if !within(sd.Dir, id) {
			continue
		}
		if file, ok := f.FindByID(id); ok {
			return file, true
		}
	}
	return nil, false
}

// Dependents returns the sources that import id, sorted.
func (f *Filer) Dependents(id string) []string { return f.graph.Dependents(id) }

// Dependencies returns the sources id imports, sorted.
func (f *Filer) Dependencies(id string) []string { return f.graph.Dependencies(id) }

// Graph exposes the dependency graph for reporting.
func (f *Filer) Graph() *depgraph.Graph { return f.graph }

// SourceIDs returns every tracked source id, sorted.
func (f *Filer) SourceIDs() []string {
	f.mu.RLock()
	ids := make([]string, 0, len(f.sources))
	for id := range f.sources {
		ids = append(ids, id)
	}
	f.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (f *Filer) SourceCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.sources)
}

func (f *Filer) BuildCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.builds)
}

// sourceBasePath maps a source id to its path under its buildable dir.
func (f *Filer) sourceBasePath(id string) (string, bool) {
	for _, d := range f.dirs {
		if d.Buildable && within(d.Path, id) && id != d.Path {
			return paths.ToBasePath(d.Path, id), true
		}
	}
	return "", false
}
