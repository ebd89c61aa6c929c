// Package mime resolves MIME types and text/binary encodings by file
// extension. A Registry is an explicit object: build one with NewRegistry, or
// share the process-wide instance returned by Default.
package mime

import (
	stdmime "mime"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Encoding of file contents.
type Encoding string

const (
	UTF8   Encoding = "utf8"
	Binary Encoding = "binary"
)

const defaultCacheSize = 512

var builtin = map[string]string{
	".ts":     "text/typescript",
	".js":     "text/javascript",
	".mjs":    "text/javascript",
	".cjs":    "text/javascript",
	".svelte": "text/svelte",
	".map":    "application/json",
	".json":   "application/json",
	".md":     "text/markdown",
	".html":   "text/html",
	".css":    "text/css",
	".svg":    "image/svg+xml",
	".txt":    "text/plain",
	".yaml":   "text/yaml",
	".yml":    "text/yaml",
}

// Registry maps extensions to MIME types. Lookups are memoized in an LRU
// cache; Add invalidates it. Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	custom map[string]string
	cache  *lru.Cache[string, string]
}

// NewRegistry returns a registry seeded with the built-in table.
func NewRegistry() *Registry {
	cache, err := lru.New[string, string](defaultCacheSize)
	if err != nil {
		// only fails for a non-positive size
		panic(err)
	}
	r := &Registry{custom: make(map[string]string, len(builtin)), cache: cache}
	for ext, t := range builtin {
		r.custom[ext] = t
	}
	return r
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry, created on first use.
func Default() *Registry {
	defaultOnce.Do(func() { defaultRegistry = NewRegistry() })
	return defaultRegistry
}

// Add registers (or overrides) the MIME type for an extension like ".svx".
func (r *Registry) Add(ext, mimeType string) {
	ext = strings.ToLower(ext)
	r.mu.Lock()
	r.custom[ext] = mimeType
	r.mu.Unlock()
	r.cache.Purge()
}

// Lookup returns the MIME type for a filename, or "" when unknown.
func (r *Registry) Lookup(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return ""
	}
	if t, ok := r.cache.Get(ext); ok {
		return t
	}
	r.mu.RLock()
	t, ok := r.custom[ext]
	r.mu.RUnlock()
	if !ok {
		t = stdmime.TypeByExtension(ext)
		if i := strings.IndexByte(t, ';'); i >= 0 {
			t = strings.TrimSpace(t[:i])
		}
	}
	r.cache.Add(ext, t)
	return t
}

// Encoding infers whether a file is read as text or bytes.
func (r *Registry) Encoding(filename string) Encoding {
	t := r.Lookup(filename)
	switch {
	case strings.HasPrefix(t, "text/"),
		t == "application/json",
		t == "application/javascript",
		t == "image/svg+xml",
		t == "application/xml":
		return UTF8
	case t == "" && filepath.Ext(filename) == "":
		return UTF8
	}
	return Binary
}
