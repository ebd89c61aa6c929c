// Package paths maps between source ids, base paths and build output ids.
//
// Layout:
//
//	<buildDir>/dev/<buildName>/<basePath>        build artifacts (prod: prod/)
//	<buildDir>/dev_meta/<sourceBasePath>.json    source meta records (prod: prod_meta/)
//
// Every function here is pure. Passing a path that does not belong to the
// directory it is mapped against is a programmer error and panics.
package paths

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	TSExtension     = ".ts"
	JSExtension     = ".js"
	SvelteExtension = ".svelte"
	MapExtension    = ".map"
	MetaExtension   = ".json"

	DefaultBuildDir = ".gro"
)

// Mode returns the output mode directory name.
func Mode(dev bool) string {
	if dev {
		return "dev"
	}
	return "prod"
}

// ToBuildOutDir returns <buildDir>/<dev|prod>.
func ToBuildOutDir(buildDir string, dev bool) string {
	return filepath.Join(buildDir, Mode(dev))
}

// ToBuildOutPath returns the output id for a base path under one build target.
func ToBuildOutPath(buildDir string, dev bool, buildName, basePath string) string {
	return filepath.Join(ToBuildOutDir(buildDir, dev), buildName, basePath)
}

// ToSourceMetaDir returns <buildDir>/<dev|prod>_meta.
func ToSourceMetaDir(buildDir string, dev bool) string {
	return filepath.Join(buildDir, Mode(dev)+"_meta")
}

// ToSourceMetaPath returns the meta record path for a source base path.
func ToSourceMetaPath(buildDir string, dev bool, sourceBasePath string) string {
	return filepath.Join(ToSourceMetaDir(buildDir, dev), sourceBasePath+MetaExtension)
}

// ToBuildExtension rewrites a source path to the extension its compiled
// output carries: .ts -> .js, .svelte -> .svelte.js.
func ToBuildExtension(p string) string {
	switch {
	case strings.HasSuffix(p, ".d.ts"):
		return p
	case strings.HasSuffix(p, TSExtension):
		return strings.TrimSuffix(p, TSExtension) + JSExtension
	case strings.HasSuffix(p, SvelteExtension):
		return p + JSExtension
	}
	return p
}

// ToBasePath returns id relative to dir, using forward slashes.
func ToBasePath(dir, id string) string {
	rel, err := filepath.Rel(dir, id)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		panic(fmt.Sprintf("paths: %q is not inside %q", id, dir))
	}
	return filepath.ToSlash(rel)
}

// ToBuildBasePath returns the base path a source id builds to.
func ToBuildBasePath(sourceDir, sourceID string) string {
	return ToBuildExtension(ToBasePath(sourceDir, sourceID))
}

// ToBuildID returns the output id a source builds to for one build target.
func ToBuildID(sourceDir, buildDir string, dev bool, buildName, sourceID string) string {
	return ToBuildOutPath(buildDir, dev, buildName, ToBuildBasePath(sourceDir, sourceID))
}

// SplitBuildID splits a build id into its build name and base path.
func SplitBuildID(buildDir string, dev bool, buildID string) (buildName, basePath string) {
	rel := ToBasePath(ToBuildOutDir(buildDir, dev), buildID)
	name, rest, ok := strings.Cut(rel, "/")
	if !ok || name == "" || rest == "" {
		panic(fmt.Sprintf("paths: %q is not a build id under %q", buildID, buildDir))
	}
	return name, rest
}

// IsBuildID reports whether id lives under the build output dir.
func IsBuildID(buildDir string, dev bool, id string) bool {
	out := ToBuildOutDir(buildDir, dev) + string(filepath.Separator)
	return strings.HasPrefix(id, out)
}

// SourceIDCandidates returns the source ids a build id may have come from,
// in the order they should be tried.
func SourceIDCandidates(sourceDir, buildDir string, dev bool, buildID string) []string {
	_, basePath := SplitBuildID(buildDir, dev, buildID)
	base := filepath.Join(sourceDir, filepath.FromSlash(basePath))
	switch {
	case strings.HasSuffix(base, SvelteExtension+JSExtension):
		return []string{strings.TrimSuffix(base, JSExtension)}
	case strings.HasSuffix(base, JSExtension):
		return []string{strings.TrimSuffix(base, JSExtension) + TSExtension, base}
	}
	return []string{base}
}

// ToSourceID maps a build id back to its source id. The .ts source is tried
// first, then .js. When neither exists the first candidate is returned.
func ToSourceID(sourceDir, buildDir string, dev bool, buildID string, exists func(string) bool) string {
	candidates := SourceIDCandidates(sourceDir, buildDir, dev, buildID)
	for _, c := range candidates {
		if exists != nil && exists(c) {
			return c
		}
	}
	return candidates[0]
}

// IsBareSpecifier reports whether an import specifier refers to a package
// rather than a path.
func IsBareSpecifier(specifier string) bool {
	if specifier == "" {
		return false
	}
	if strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../") ||
		strings.HasPrefix(specifier, "/") || specifier == "." || specifier == ".." {
		return false
	}
	return !strings.Contains(specifier, "://")
}
