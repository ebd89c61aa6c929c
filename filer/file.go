package filer

import (
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gro/buildcfg"
	"gro/builder"
	"gro/fsys"
	"gro/mime"
)

// File is the read view shared by source and build files.
type File interface {
	ID() string
	Filename() string
	Dir() string
	Extension() string
	Encoding() mime.Encoding
	Contents() []byte
	ContentHash() string
	Stats() (fs.FileInfo, error)
	MimeType() string
}

// State is the lifecycle position of a source file.
type State string

const (
	StateUnbuilt    State = "unbuilt"
	StateBuilding   State = "building"
	StateBuilt      State = "built"
	StateRebuilding State = "rebuilding"
	StateRemoved    State = "removed"
)

// baseFile holds the identity and lazily derived fields of a file.
type baseFile struct {
	id        string
	filename  string
	dir       string
	extension string
	encoding  mime.Encoding
	fs        fsys.FS
	mimes     *mime.Registry

	mu       sync.Mutex
	contents []byte
	hash     string
	hashOK   bool
	stats    fs.FileInfo
	statsOK  bool
	mimeType string
	mimeOK   bool
}

func newBaseFile(id string, encoding mime.Encoding, contents []byte, fsy fsys.FS, mimes *mime.Registry) baseFile {
	return baseFile{
		id:        id,
		filename:  filepath.Base(id),
		dir:       filepath.Dir(id),
		extension: extension(id),
		encoding:  encoding,
		fs:        fsy,
		mimes:     mimes,
		contents:  contents,
	}
}

// extension keeps compound suffixes the build layer cares about (.svelte.js,
// .js.map, .d.ts) and otherwise falls back to filepath.Ext.
func extension(id string) string {
	base := filepath.Base(id)
	for _, ext := range []string{".d.ts", ".svelte.js", ".js.map", ".svelte.md"} {
		if strings.HasSuffix(base, ext) && base != ext {
			return ext
		}
	}
	return filepath.Ext(base)
}

func (f *baseFile) ID() string              { return f.id }
func (f *baseFile) Filename() string        { return f.filename }
func (f *baseFile) Dir() string             { return f.dir }
func (f *baseFile) Extension() string       { return f.extension }
func (f *baseFile) Encoding() mime.Encoding { return f.encoding }

func (f *baseFile) Contents() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contents
}

// ContentHash returns the sha256 of the contents, hex encoded.
func (f *baseFile) ContentHash() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.hashOK {
		f.hash = hashContents(f.contents)
		f.hashOK = true
	}
	return f.hash
}

func (f *baseFile) Stats() (fs.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statsOK {
		return f.stats, nil
	}
	info, err := f.fs.Stat(f.id)
	if err != nil {
		return nil, err
	}
	f.stats, f.statsOK = info, true
	return info, nil
}

func (f *baseFile) MimeType() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.mimeOK {
		f.mimeType = f.mimes.Lookup(f.filename)
		f.mimeOK = true
	}
	return f.mimeType
}

// setContents replaces the contents and drops every derived value.
func (f *baseFile) setContents(contents []byte, info fs.FileInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contents = contents
	f.hash, f.hashOK = "", false
	f.stats, f.statsOK = info, info != nil
}

func hashContents(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// SourceFile is one file found under a filer directory.
type SourceFile struct {
	baseFile

	sourceDir   string
	dirBasePath string
	buildable   bool
	filerDir    *Dir

	smu      sync.RWMutex
	state    State
	builds   map[string][]*BuildFile // by build name
	failures map[string]error        // by build name
}

var _ File = (*SourceFile)(nil)

func newSourceFile(id string, dir *Dir, contents []byte, info fs.FileInfo, fsy fsys.FS, mimes *mime.Registry) *SourceFile {
	sf := &SourceFile{
		baseFile:  newBaseFile(id, mimes.Encoding(id), contents, fsy, mimes),
		sourceDir: dir.Path,
		buildable: dir.Buildable,
		filerDir:  dir,
		state:     StateUnbuilt,
		builds:    make(map[string][]*BuildFile),
		failures:  make(map[string]error),
	}
	if info != nil {
		sf.stats, sf.statsOK = info, true
	}
	rel, err := filepath.Rel(dir.Path, filepath.Dir(id))
	if err == nil && rel != "." {
		sf.dirBasePath = filepath.ToSlash(rel) + "/"
	}
	return sf
}

// SourceDir returns the root directory the file was found under.
func (s *SourceFile) SourceDir() string { return s.sourceDir }

// DirBasePath is the file's directory relative to its root, with a trailing
// slash, or "" at the root.
func (s *SourceFile) DirBasePath() string { return s.dirBasePath }

func (s *SourceFile) Buildable() bool { return s.buildable }

func (s *SourceFile) State() State {
	s.smu.RLock()
	defer s.smu.RUnlock()
	return s.state
}

func (s *SourceFile) setState(st State) {
	s.smu.Lock()
	s.state = st
	s.smu.Unlock()
}

// BuildNames returns the names of the builds that produced files, sorted.
func (s *SourceFile) BuildNames() []string {
	s.smu.RLock()
	defer s.smu.RUnlock()
	names := make([]string, 0, len(s.builds))
	for name := range s.builds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildFiles returns the files the named build produced.
func (s *SourceFile) BuildFiles(buildName string) []*BuildFile {
	s.smu.RLock()
	defer s.smu.RUnlock()
	return append([]*BuildFile(nil), s.builds[buildName]...)
}

func (s *SourceFile) setBuildFiles(buildName string, files []*BuildFile) {
	s.smu.Lock()
	defer s.smu.Unlock()
	if len(files) == 0 {
		delete(s.builds, buildName)
		return
	}
	s.builds[buildName] = files
}

// Failure returns the last error recorded for the named build, if any.
func (s *SourceFile) Failure(buildName string) error {
	s.smu.RLock()
	defer s.smu.RUnlock()
	return s.failures[buildName]
}

// Failures returns a copy of every recorded failure by build name.
func (s *SourceFile) Failures() map[string]error {
	s.smu.RLock()
	defer s.smu.RUnlock()
	out := make(map[string]error, len(s.failures))
	for k, v := range s.failures {
		out[k] = v
	}
	return out
}

func (s *SourceFile) setFailure(buildName string, err error) {
	s.smu.Lock()
	defer s.smu.Unlock()
	if err == nil {
		delete(s.failures, buildName)
		return
	}
	s.failures[buildName] = err
}

// source returns the builder view of the file.
func (s *SourceFile) source() builder.Source {
	return builder.Source{
		ID:          s.id,
		Filename:    s.filename,
		Dir:         s.dir,
		DirBasePath: s.dirBasePath,
		Extension:   s.extension,
		Encoding:    s.encoding,
		Contents:    s.Contents(),
		ContentHash: s.ContentHash(),
		SourceDir:   s.sourceDir,
	}
}

// BuildFile is one artifact produced from a source file by one build.
type BuildFile struct {
	baseFile

	config       *buildcfg.Config
	sourceID     string
	dependencies []builder.Dependency
}

var _ File = (*BuildFile)(nil)

func newBuildFile(id string, encoding mime.Encoding, contents []byte, cfg *buildcfg.Config, sourceID string, deps []builder.Dependency, fsy fsys.FS, mimes *mime.Registry) *BuildFile {
	if encoding == "" {
		encoding = mimes.Encoding(id)
	}
	if len(deps) == 0 {
		deps = nil
	} else {
		deps = append([]builder.Dependency(nil), deps...)
	}
	return &BuildFile{
		baseFile:     newBaseFile(id, encoding, contents, fsy, mimes),
		config:       cfg,
		sourceID:     sourceID,
		dependencies: deps,
	}
}

// Config returns the build config that produced the file.
func (b *BuildFile) Config() *buildcfg.Config { return b.config }

func (b *BuildFile) SourceID() string { return b.sourceID }

// Dependencies returns the imports the file declares, or nil.
func (b *BuildFile) Dependencies() []builder.Dependency { return b.dependencies }
