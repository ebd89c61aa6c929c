// Package builder defines the pluggable compiler capability the filer runs
// for every (source file, build config) pair.
package builder

import (
	"context"
	"log/slog"

	"gro/buildcfg"
	"gro/fsys"
	"gro/mime"
)

// Source is the read-only view of a source file handed to a Builder.
type Source struct {
	ID          string
	Filename    string
	Dir         string
	DirBasePath string // path of Dir relative to its root source dir, "" at the root
	Extension   string
	Encoding    mime.Encoding
	Contents    []byte
	ContentHash string
	// SourceDir is the root source dir the file was found under.
	SourceDir string
}

// Dependency is an import edge declared by a build output.
type Dependency struct {
	Specifier         string // as written in the importing code
	MappedSpecifier   string // after rewriting, e.g. ".ts" -> ".js"
	OriginalSpecifier string
	BuildID           string // build id the specifier resolves to
	External          bool   // a package import the filer does not track
}

// NewDependency returns a dependency whose derived fields all default to
// the specifier.
func NewDependency(specifier string) Dependency {
	return Dependency{
		Specifier:         specifier,
		MappedSpecifier:   specifier,
		OriginalSpecifier: specifier,
		BuildID:           specifier,
	}
}

// Output is one build file produced by a Builder.
type Output struct {
	ID           string
	Encoding     mime.Encoding
	Contents     []byte
	Dependencies []Dependency
}

// Context is shared by every build call of one filer.
type Context struct {
	FS           fsys.FS
	BuildConfigs []*buildcfg.Config
	BuildDir     string
	Dev          bool
	SourceMap    bool
	Types        bool
	Target       string
	Logger       *slog.Logger
	// FindByID returns the contents of a file the filer currently tracks,
	// source or build output.
	FindByID func(id string) ([]byte, bool)
}

// Builder compiles one source file for one build config.
type Builder interface {
	Build(ctx context.Context, src Source, cfg *buildcfg.Config, bc *Context) ([]Output, error)
}

// Remover is implemented by builders that need to clean up when a source
// stops being built for a config.
type Remover interface {
	OnRemove(ctx context.Context, src Source, cfg *buildcfg.Config, bc *Context) error
}

// Initializer is implemented by builders that need setup before the first build.
type Initializer interface {
	Init(ctx context.Context, bc *Context) error
}

// Func adapts a function to the Builder interface.
type Func func(ctx context.Context, src Source, cfg *buildcfg.Config, bc *Context) ([]Output, error)

func (f Func) Build(ctx context.Context, src Source, cfg *buildcfg.Config, bc *Context) ([]Output, error) {
	return f(ctx, src, cfg, bc)
}
