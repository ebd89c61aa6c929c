// Package buildcfg defines build target configs and the rules for which
// source files each one selects.
package buildcfg

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar"
)

// Platform a build target compiles for.
type Platform string

const (
	PlatformNode    Platform = "node"
	PlatformBrowser Platform = "browser"
)

var (
	ErrInvalid         = errors.New("invalid build config")
	ErrDuplicateName   = errors.New("duplicate build config name")
	ErrMissingRequired = errors.New("missing required build config")
)

// Input selects source ids. Exactly one of Path, Pattern or Filter is set.
//
// A Path selects the id equal to it; a Path ending in a separator selects
// every id under that directory. A Pattern is a doublestar glob matched
// against the absolute id.
type Input struct {
	Path    string
	Pattern string
	Filter  func(id string) bool
}

// PathInput is shorthand for a literal path input.
func PathInput(p string) Input { return Input{Path: p} }

// DirInput selects every id under dir.
func DirInput(dir string) Input {
	return Input{Path: strings.TrimSuffix(dir, string(filepath.Separator)) + string(filepath.Separator)}
}

// PatternInput selects ids matching a glob like "/p/src/**/*.ts".
func PatternInput(pattern string) Input { return Input{Pattern: pattern} }

// FilterInput selects ids for which fn returns true.
func FilterInput(fn func(id string) bool) Input { return Input{Filter: fn} }

func (in Input) set() int {
	n := 0
	if in.Path != "" {
		n++
	}
	if in.Pattern != "" {
		n++
	}
	if in.Filter != nil {
		n++
	}
	return n
}

func (in Input) matches(id string) bool {
	switch {
	case in.Filter != nil:
		return in.Filter(id)
	case in.Pattern != "":
		ok, err := doublestar.PathMatch(in.Pattern, id)
		return err == nil && ok
	case strings.HasSuffix(in.Path, string(filepath.Separator)):
		return strings.HasPrefix(id, in.Path)
	default:
		return id == in.Path
	}
}

func (in Input) String() string {
	switch {
	case in.Filter != nil:
		return "<filter>"
	case in.Pattern != "":
		return in.Pattern
	default:
		return in.Path
	}
}

// Config is one named build target.
type Config struct {
	Name     string
	Platform Platform
	Input    []Input
}

// Selects reports whether the config builds the given source id.
func (c *Config) Selects(id string) bool {
	for _, in := range c.Input {
		if in.matches(id) {
			return true
		}
	}
	return false
}

// Validate checks a config set. All problems are reported together.
func Validate(configs []*Config, required ...string) error {
	var errs []error
	seen := make(map[string]bool, len(configs))
	for i, c := range configs {
		if c == nil {
			errs = append(errs, fmt.Errorf("%w: configs[%d] is nil", ErrInvalid, i))
			continue
		}
		prefix := fmt.Sprintf("configs[%d] %q", i, c.Name)
		if c.Name == "" {
			errs = append(errs, fmt.Errorf("%w: %s: name is required", ErrInvalid, prefix))
		} else if strings.ContainsAny(c.Name, `/\`) || c.Name == "." || c.Name == ".." {
			errs = append(errs, fmt.Errorf("%w: %s: name must be a single path segment", ErrInvalid, prefix))
		}
		if seen[c.Name] {
			errs = append(errs, fmt.Errorf("%w: %q", ErrDuplicateName, c.Name))
		}
		seen[c.Name] = true
		if c.Platform != PlatformNode && c.Platform != PlatformBrowser {
			errs = append(errs, fmt.Errorf("%w: %s: platform %q must be one of: node, browser", ErrInvalid, prefix, c.Platform))
		}
		if len(c.Input) == 0 {
			errs = append(errs, fmt.Errorf("%w: %s: input is required", ErrInvalid, prefix))
		}
		for j, in := range c.Input {
			if in.set() != 1 {
				errs = append(errs, fmt.Errorf("%w: %s: input[%d] must set exactly one of path, pattern, filter", ErrInvalid, prefix, j))
				continue
			}
			if in.Path != "" && !filepath.IsAbs(in.Path) {
				errs = append(errs, fmt.Errorf("%w: %s: input[%d] path %q must be absolute", ErrInvalid, prefix, j, in.Path))
			}
			if in.Pattern != "" {
				if _, err := filepath.Match(in.Pattern, ""); err != nil {
					errs = append(errs, fmt.Errorf("%w: %s: input[%d] pattern %q: %v", ErrInvalid, prefix, j, in.Pattern, err))
				}
			}
		}
	}
	for _, name := range required {
		if !seen[name] {
			errs = append(errs, fmt.Errorf("%w: %q", ErrMissingRequired, name))
		}
	}
	return errors.Join(errs...)
}

// Names returns the config names, sorted.
func Names(configs []*Config) []string {
	names := make([]string, 0, len(configs))
	for _, c := range configs {
		names = append(names, c.Name)
	}
	sort.Strings(names)
	return names
}
