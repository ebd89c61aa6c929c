package scanner

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"gro/fsys"

	ignore "github.com/sabhiram/go-gitignore"
)

// IgnoredDirs are never scanned or watched, wherever they appear. Build
// output names like dist are left to .gitignore, since a source tree may
// legitimately contain them.
var IgnoredDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	".svelte-kit":  true,
	".DS_Store":    true,
}

// IgnoreCache answers ignore queries for one root, loading the .gitignore of
// each directory on first use. Nested .gitignore files apply to their own
// subtree in addition to their ancestors'.
type IgnoreCache struct {
	fs    fsys.FS
	root  string
	mu    sync.Mutex
	byDir map[string]*ignore.GitIgnore // nil value: directory has no .gitignore
}

// NewIgnoreCache returns a cache for root.
func NewIgnoreCache(fsy fsys.FS, root string) *IgnoreCache {
	return &IgnoreCache{fs: fsy, root: filepath.Clean(root), byDir: make(map[string]*ignore.GitIgnore)}
}

// LoadGitignore compiles dir/.gitignore, or returns nil when there is none.
func LoadGitignore(fsy fsys.FS, dir string) *ignore.GitIgnore {
	data, err := fsy.ReadFile(filepath.Join(dir, ".gitignore"))
	if err != nil {
		return nil
	}
	return ignore.CompileIgnoreLines(strings.Split(string(data), "\n")...)
}

func (c *IgnoreCache) gitignore(dir string) *ignore.GitIgnore {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gi, ok := c.byDir[dir]; ok {
		return gi
	}
	gi := LoadGitignore(c.fs, dir)
	c.byDir[dir] = gi
	return gi
}

// Invalidate forgets the cached .gitignore of dir, e.g. after it changed.
func (c *IgnoreCache) Invalidate(dir string) {
	c.mu.Lock()
	delete(c.byDir, filepath.Clean(dir))
	c.mu.Unlock()
}

// Ignored reports whether an absolute path under the root is excluded.
func (c *IgnoreCache) Ignored(path string, isDir bool) bool {
	if c == nil {
		return false
	}
	path = filepath.Clean(path)
	if path == c.root {
		return false
	}
	rel, err := filepath.Rel(c.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for i, part := range parts {
		last := i == len(parts)-1
		if IgnoredDirs[part] && (!last || isDir || part == ".DS_Store") {
			return true
		}
	}

	// Check every ancestor's .gitignore, root first.
	dir := c.root
	for i := 0; i < len(parts); i++ {
		if gi := c.gitignore(dir); gi != nil {
			sub := strings.Join(parts[i:], "/")
			if isDir {
				sub += "/"
			}
			if gi.MatchesPath(sub) {
				return true
			}
		}
		dir = filepath.Join(dir, parts[i])
	}
	return false
}

// ScanFiles walks root and returns every non-ignored file in walk order.
func ScanFiles(fsy fsys.FS, root string, cache *IgnoreCache) ([]FileInfo, error) {
	root = filepath.Clean(root)
	var files []FileInfo
	err := fsy.Walk(root, func(path string, info fs.FileInfo) error {
		if path == root {
			return nil
		}
		if cache.Ignored(path, info.IsDir()) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, FileInfo{
			Path: filepath.ToSlash(rel),
			Size: info.Size(),
			Ext:  filepath.Ext(path),
			Info: info,
		})
		return nil
	})
	if err != nil && !errors.Is(err, filepath.SkipDir) {
		return nil, err
	}
	return files, nil
}
