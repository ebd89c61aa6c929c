package filer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"gro/buildcfg"
	"gro/builder"
	"gro/paths"
	"gro/sourcemeta"
)

// reconcile brings one source discovered during Init up to date. Outputs
// recorded in its meta are reused when the content hash matches and every
// artifact is still on disk.
func (f *Filer) reconcile(ctx context.Context, id string) error {
	unlock := f.lockID(id)
	defer unlock()

	sf := f.SourceFile(id)
	if sf == nil {
		return nil
	}
	selecting := f.selectingConfigs(id)

	stored := f.stored[id]
	if stored != nil && stored.ContentHash == sf.ContentHash() {
		ok, err := f.loadStored(sf, stored, selecting)
		if err != nil {
			return err
		}
		if ok {
			f.logger.Debug("filer: reused outputs", slog.String("source_id", id))
			return nil
		}
	}
	if err := f.buildSource(ctx, sf, selecting); err != nil {
		return err
	}

	// Outputs of the previous session this build did not produce again.
	if stored != nil {
		for _, b := range stored.Builds {
			buildID := b.ID
			if f.BuildFile(buildID) != nil || (sf.BuildFiles(b.BuildName) == nil && sf.Failure(b.BuildName) != nil) {
				continue
			}
			if err := f.fs.Remove(buildID); err != nil {
				return fmt.Errorf("filer: remove %s: %w", buildID, err)
			}
		}
	}
	return nil
}

// loadStored restores the outputs described by a meta record. It reports
// false, changing nothing, when the record no longer matches the configs or
// the disk.
func (f *Filer) loadStored(sf *SourceFile, stored *sourcemeta.Data, selecting []*buildcfg.Config) (bool, error) {
	byName := make(map[string]*buildcfg.Config, len(selecting))
	for _, cfg := range selecting {
		byName[cfg.Name] = cfg
	}
	recorded := make(map[string]bool)
	for _, b := range stored.Builds {
		if byName[b.BuildName] == nil {
			return false, nil
		}
		recorded[b.BuildName] = true
		ok, err := f.fs.Exists(b.ID)
		if err != nil {
			return false, fmt.Errorf("filer: stat %s: %w", b.ID, err)
		}
		if !ok {
			return false, nil
		}
	}
	if len(recorded) != len(selecting) {
		return false, nil
	}

	files := make(map[string][]*BuildFile, len(recorded))
	for _, b := range stored.Builds {
		contents, err := f.fs.ReadFile(b.ID)
		if err != nil {
			return false, fmt.Errorf("filer: read %s: %w", b.ID, err)
		}
		bf := newBuildFile(b.ID, b.Encoding, contents, byName[b.BuildName], sf.id, b.Dependencies, f.fs, f.mimes)
		files[b.BuildName] = append(files[b.BuildName], bf)
	}

	for _, cfg := range selecting {
		if missing := f.commitBuild(sf, cfg, files[cfg.Name]); len(missing) > 0 {
			sf.setFailure(cfg.Name, errors.Join(missing...))
		}
	}
	sf.setState(StateBuilt)
	return true, nil
}

// buildSource builds sf for each config and persists its meta. Builder
// failures are recorded on the source; write failures are returned.
func (f *Filer) buildSource(ctx context.Context, sf *SourceFile, configs []*buildcfg.Config) error {
	if sf.State() == StateUnbuilt {
		sf.setState(StateBuilding)
	} else {
		sf.setState(StateRebuilding)
	}

	var errs []error
	failed := false
	for _, cfg := range configs {
		ok, err := f.buildFor(ctx, sf, cfg)
		if err != nil {
			errs = append(errs, err)
		}
		failed = failed || !ok
	}
	// The record keeps the last hash every builder accepted, so a failing
	// source is built again on the next Init.
	if !failed {
		if err := f.saveMeta(ctx, sf); err != nil {
			errs = append(errs, err)
		}
	}
	sf.setState(StateBuilt)
	return errors.Join(errs...)
}

// buildFor runs the builder for one (source, config) pairing and replaces
// the pairing's outputs with the result. It reports false when the builder
// failed.
func (f *Filer) buildFor(ctx context.Context, sf *SourceFile, cfg *buildcfg.Config) (bool, error) {
	src := sf.source()
	b := f.resolver.Resolve(src, cfg)
	if b == nil {
		return true, f.removeBuild(ctx, sf, cfg.Name)
	}

	start := time.Now()
	outputs, err := b.Build(ctx, src, cfg, f.bc)
	if err != nil {
		f.logger.Error("filer: build failed",
			slog.String("source_id", sf.id),
			slog.String("build_name", cfg.Name),
			slog.Any("error", err))
		sf.setFailure(cfg.Name, err)
		f.publish(BuildEvent{SourceID: sf.id, BuildName: cfg.Name, Err: err, Duration: time.Since(start)})
		return false, nil
	}

	prev := make(map[string]*BuildFile)
	for _, bf := range sf.BuildFiles(cfg.Name) {
		prev[bf.id] = bf
	}

	next := make([]*BuildFile, 0, len(outputs))
	var written int
	for _, out := range outputs {
		bf := newBuildFile(out.ID, out.Encoding, out.Contents, cfg, sf.id, out.Dependencies, f.fs, f.mimes)
		if old, ok := prev[bf.id]; !ok || old.ContentHash() != bf.ContentHash() {
			if err := f.fs.WriteFile(bf.id, bf.Contents()); err != nil {
				return true, fmt.Errorf("filer: write %s: %w", bf.id, err)
			}
			written++
		}
		delete(prev, bf.id)
		next = append(next, bf)
	}

	// What the previous build produced and this one did not is stale.
	for id := range prev {
		if err := f.fs.Remove(id); err != nil {
			return true, fmt.Errorf("filer: remove %s: %w", id, err)
		}
		f.mu.Lock()
		delete(f.builds, id)
		f.mu.Unlock()
	}

	missing := f.commitBuild(sf, cfg, next)
	if len(missing) > 0 {
		sf.setFailure(cfg.Name, errors.Join(missing...))
	} else {
		sf.setFailure(cfg.Name, nil)
	}

	f.logger.Debug("filer: built",
		slog.String("source_id", sf.id),
		slog.String("build_name", cfg.Name),
		slog.Int("files", len(next)),
		slog.Int("written", written),
		slog.Duration("took", time.Since(start)))

	ids := make([]string, 0, len(next))
	for _, bf := range next {
		ids = append(ids, bf.id)
	}
	f.publish(BuildEvent{SourceID: sf.id, BuildName: cfg.Name, BuildIDs: ids, Written: written, Duration: time.Since(start)})
	return true, nil
}

// commitBuild installs the outputs of one pairing in memory and replaces
// its edges in the dependency graph. It returns one error per import that
// resolves to no known source.
func (f *Filer) commitBuild(sf *SourceFile, cfg *buildcfg.Config, files []*BuildFile) []error {
	var deps []string
	var missing []error
	for _, bf := range files {
		for i := range bf.dependencies {
			id, err := f.resolveDependency(bf, &bf.dependencies[i])
			switch {
			case err != nil:
				f.logger.Warn("filer: unresolved import",
					slog.String("source_id", sf.id),
					slog.String("build_name", cfg.Name),
					slog.String("specifier", bf.dependencies[i].Specifier))
				missing = append(missing, err)
			case id != "":
				deps = append(deps, id)
			}
		}
	}

	f.mu.Lock()
	for _, bf := range files {
		f.builds[bf.id] = bf
	}
	f.mu.Unlock()
	sf.setBuildFiles(cfg.Name, files)
	f.graph.Update(sf.id, cfg.Name, deps)
	return missing
}

// resolveDependency maps an import of bf to the source id it refers to.
// Package imports are marked external and resolve to "". Relative imports
// that match no known source return ErrMissingDependency.
func (f *Filer) resolveDependency(bf *BuildFile, dep *builder.Dependency) (string, error) {
	if dep.MappedSpecifier == "" {
		dep.MappedSpecifier = dep.Specifier
	}
	if dep.OriginalSpecifier == "" {
		dep.OriginalSpecifier = dep.Specifier
	}
	if dep.External {
		if dep.BuildID == "" {
			dep.BuildID = dep.Specifier
		}
		return "", nil
	}
	if paths.IsBareSpecifier(dep.Specifier) {
		dep.External = true
		if dep.BuildID == "" {
			dep.BuildID = dep.Specifier
		}
		return "", nil
	}

	buildID := dep.BuildID
	if buildID == "" || !filepath.IsAbs(buildID) {
		specifier := dep.MappedSpecifier
		if specifier == "" {
			specifier = dep.Specifier
		}
		buildID = filepath.Join(filepath.Dir(bf.id), filepath.FromSlash(specifier))
		dep.BuildID = buildID
	}

	// <buildDir>/<mode>/<buildName>/<basePath>
	rel := strings.TrimPrefix(buildID, paths.ToBuildOutDir(f.buildDir, f.dev)+string(filepath.Separator))
	if paths.IsBuildID(f.buildDir, f.dev, buildID) && strings.Contains(rel, string(filepath.Separator)) {
		for _, d := range f.dirs {
			if !d.Buildable {
				continue
			}
			for _, candidate := range paths.SourceIDCandidates(d.Path, f.buildDir, f.dev, buildID) {
				if f.SourceFile(candidate) != nil {
					return candidate, nil
				}
			}
		}
	}
	return "", fmt.Errorf("%w: %q imported by %s", ErrMissingDependency, dep.Specifier, bf.id)
}

// checkDependencies re-resolves the imports of a source after one of the
// files it imported went away, recording a failure for each build that now
// has unresolved imports.
func (f *Filer) checkDependencies(id string) {
	unlock := f.lockID(id)
	defer unlock()

	sf := f.SourceFile(id)
	if sf == nil {
		return
	}
	for _, name := range sf.BuildNames() {
		var missing []error
		for _, bf := range sf.BuildFiles(name) {
			for i := range bf.dependencies {
				if _, err := f.resolveDependency(bf, &bf.dependencies[i]); err != nil {
					missing = append(missing, err)
				}
			}
		}
		if len(missing) > 0 {
			err := errors.Join(missing...)
			f.logger.Warn("filer: dependency removed",
				slog.String("source_id", id),
				slog.String("build_name", name),
				slog.Any("error", err))
			sf.setFailure(name, err)
		}
	}
}

// removeBuild deletes every output of one pairing from disk and memory.
func (f *Filer) removeBuild(ctx context.Context, sf *SourceFile, buildName string) error {
	files := sf.BuildFiles(buildName)
	var cfg *buildcfg.Config
	var errs []error
	for _, bf := range files {
		cfg = bf.config
		if err := f.fs.Remove(bf.id); err != nil {
			errs = append(errs, fmt.Errorf("filer: remove %s: %w", bf.id, err))
		}
		f.mu.Lock()
		delete(f.builds, bf.id)
		f.mu.Unlock()
	}
	sf.setBuildFiles(buildName, nil)
	sf.setFailure(buildName, nil)
	f.graph.RemoveBuild(sf.id, buildName)

	if cfg != nil {
		src := sf.source()
		if r, ok := f.resolver.Resolve(src, cfg).(builder.Remover); ok {
			if err := r.OnRemove(ctx, src, cfg, f.bc); err != nil {
				f.logger.Warn("filer: builder cleanup failed",
					slog.String("source_id", sf.id),
					slog.String("build_name", buildName),
					slog.Any("error", err))
			}
		}
	}
	return errors.Join(errs...)
}

// saveMeta persists the outputs of every build of sf, or drops the record
// when there are none.
func (f *Filer) saveMeta(ctx context.Context, sf *SourceFile) error {
	data := &sourcemeta.Data{SourceID: sf.id, ContentHash: sf.ContentHash()}
	for _, cfg := range f.configs {
		for _, bf := range sf.BuildFiles(cfg.Name) {
			data.Builds = append(data.Builds, sourcemeta.Build{
				ID:           bf.id,
				BuildName:    cfg.Name,
				Dependencies: bf.dependencies,
				Encoding:     bf.encoding,
			})
		}
	}
	if len(data.Builds) == 0 {
		return f.meta.Delete(ctx, sf.id)
	}
	return f.meta.Save(ctx, data)
}

// pruneStale drops meta records, and their outputs, for sources that no
// longer exist.
func (f *Filer) pruneStale(ctx context.Context) error {
	var errs []error
	for id, stored := range f.stored {
		if sf := f.SourceFile(id); sf != nil && sf.buildable {
			continue
		}
		for _, buildID := range stored.BuildIDs() {
			if f.BuildFile(buildID) != nil {
				continue
			}
			if err := f.fs.Remove(buildID); err != nil {
				errs = append(errs, fmt.Errorf("filer: remove %s: %w", buildID, err))
			}
		}
		if _, ok := f.sourceBasePath(id); ok {
			if err := f.meta.Delete(ctx, id); err != nil {
				errs = append(errs, err)
			}
		}
		f.logger.Debug("filer: pruned stale meta", slog.String("source_id", id))
	}
	return errors.Join(errs...)
}
