package sourcemeta

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"gro/fsys"
	"gro/paths"
)

// Store loads and saves source meta records.
type Store interface {
	// Load returns every readable record keyed by source id. Corrupt
	// records are skipped.
	Load(ctx context.Context) (map[string]*Data, error)
	Save(ctx context.Context, d *Data) error
	Delete(ctx context.Context, sourceID string) error
}

// FSStore keeps one JSON file per source under <buildDir>/<mode>_meta,
// mirroring the source tree.
type FSStore struct {
	fs       fsys.FS
	dir      string
	basePath func(sourceID string) (string, bool)
	logger   *slog.Logger
}

var _ Store = (*FSStore)(nil)

// NewFSStore returns a store rooted at the meta dir of buildDir. basePath
// maps a source id to its path relative to its source dir.
func NewFSStore(fsy fsys.FS, buildDir string, dev bool, basePath func(sourceID string) (string, bool), logger *slog.Logger) *FSStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSStore{
		fs:       fsy,
		dir:      paths.ToSourceMetaDir(buildDir, dev),
		basePath: basePath,
		logger:   logger,
	}
}

func (s *FSStore) path(sourceID string) (string, error) {
	base, ok := s.basePath(sourceID)
	if !ok {
		return "", fmt.Errorf("sourcemeta: %s is outside every source dir", sourceID)
	}
	return filepath.Join(s.dir, filepath.FromSlash(base)+paths.MetaExtension), nil
}

func (s *FSStore) Load(ctx context.Context) (map[string]*Data, error) {
	out := make(map[string]*Data)
	ok, err := s.fs.Exists(s.dir)
	if err != nil {
		return nil, fmt.Errorf("sourcemeta: stat %s: %w", s.dir, err)
	}
	if !ok {
		return out, nil
	}
	err = s.fs.Walk(s.dir, func(path string, info fs.FileInfo) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, paths.MetaExtension) {
			return nil
		}
		raw, err := s.fs.ReadFile(path)
		if err != nil {
			return fmt.Errorf("sourcemeta: read %s: %w", path, err)
		}
		d, err := Unmarshal(raw)
		if err != nil {
			s.logger.Warn("skipping source meta", slog.String("path", path), slog.Any("error", err))
			return nil
		}
		out[d.SourceID] = &d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *FSStore) Save(_ context.Context, d *Data) error {
	path, err := s.path(d.SourceID)
	if err != nil {
		return err
	}
	raw, err := Marshal(*d)
	if err != nil {
		return fmt.Errorf("sourcemeta: encode %s: %w", d.SourceID, err)
	}
	if err := s.fs.WriteFile(path, raw); err != nil {
		return fmt.Errorf("sourcemeta: write %s: %w", path, err)
	}
	return nil
}

func (s *FSStore) Delete(_ context.Context, sourceID string) error {
	path, err := s.path(sourceID)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("sourcemeta: remove %s: %w", path, err)
	}
	return nil
}
