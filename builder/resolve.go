package builder

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"strings"

	"gro/buildcfg"
)

// Resolver picks the Builder for a (source, config) pair. A nil result
// means the pair produces no build files.
type Resolver interface {
	Resolve(src Source, cfg *buildcfg.Config) Builder
	// Builders lists every distinct Builder the resolver can return, so
	// they can be initialized up front.
	Builders() []Builder
}

type single struct{ b Builder }

// Single resolves every pair to b.
func Single(b Builder) Resolver { return single{b: b} }

func (s single) Resolve(Source, *buildcfg.Config) Builder { return s.b }
func (s single) Builders() []Builder                     { return []Builder{s.b} }

// ExtensionTable resolves by source extension, falling back to Default.
type ExtensionTable struct {
	ByExtension map[string]Builder
	Default     Builder
}

// ByExtension returns a resolver keyed by lowercase extension (".ts").
func ByExtension(table map[string]Builder, fallback Builder) *ExtensionTable {
	normalized := make(map[string]Builder, len(table))
	for ext, b := range table {
		normalized[strings.ToLower(ext)] = b
	}
	return &ExtensionTable{ByExtension: normalized, Default: fallback}
}

func (t *ExtensionTable) Resolve(src Source, _ *buildcfg.Config) Builder {
	if b, ok := t.ByExtension[strings.ToLower(src.Extension)]; ok {
		return b
	}
	return t.Default
}

func (t *ExtensionTable) Builders() []Builder {
	var out []Builder
	seen := make(map[Builder]bool)
	add := func(b Builder) {
		if b == nil {
			return
		}
		// func-typed builders are not comparable and cannot be map keys
		if reflect.TypeOf(b).Comparable() {
			if seen[b] {
				return
			}
			seen[b] = true
		}
		out = append(out, b)
	}
	exts := make([]string, 0, len(t.ByExtension))
	for ext := range t.ByExtension {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	for _, ext := range exts {
		add(t.ByExtension[ext])
	}
	add(t.Default)
	return out
}

// InitAll runs Init on every resolvable builder that implements Initializer.
func InitAll(ctx context.Context, r Resolver, bc *Context) error {
	var errs []error
	for _, b := range r.Builders() {
		if in, ok := b.(Initializer); ok {
			if err := in.Init(ctx, bc); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
