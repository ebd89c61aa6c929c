// Package config loads the project file gro.yaml that drives the command
// line. Relative paths in the file are resolved against the directory that
// holds it, and a few settings can be overridden from the environment or a
// .env file next to it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"gro/buildcfg"
	"gro/mime"
	"gro/paths"
)

// FileName is the config file looked up in the project root.
const FileName = "gro.yaml"

// Environment variables that override the file.
const (
	EnvBuildDir  = "GRO_BUILD_DIR"
	EnvLogLevel  = "GRO_LOG_LEVEL"
	EnvMetaStore = "GRO_META_STORE"
)

// LogLevel is the minimum level the command line logs at.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

var validLogLevels = map[LogLevel]slog.Level{
	LogLevelDebug: slog.LevelDebug,
	LogLevelInfo:  slog.LevelInfo,
	LogLevelWarn:  slog.LevelWarn,
	LogLevelError: slog.LevelError,
}

// Level maps the config value to a slog level. Unknown values log at info.
func (l LogLevel) Level() slog.Level {
	if lvl, ok := validLogLevels[l]; ok {
		return lvl
	}
	return slog.LevelInfo
}

// MetaStore selects where source meta records are kept.
type MetaStore string

const (
	// MetaStoreFS keeps one JSON file per source under the build dir.
	MetaStoreFS MetaStore = "fs"
	// MetaStoreSQLite keeps the records of each mode in
	// <build_dir>/<dev|prod>_meta.db.
	MetaStoreSQLite MetaStore = "sqlite"
)

// ServedDir is a directory FindByPath serves from.
type ServedDir struct {
	Dir string `yaml:"dir"`
	// ServedAt is the root request paths are relative to. Defaults to Dir.
	ServedAt string `yaml:"served_at"`
}

// UnmarshalYAML accepts either a plain path or a {dir, served_at} mapping.
func (s *ServedDir) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		return value.Decode(&s.Dir)
	}
	type plain ServedDir
	return value.Decode((*plain)(s))
}

// Build is one build target as written in the file.
type Build struct {
	Name     string            `yaml:"name"`
	Platform buildcfg.Platform `yaml:"platform"`
	// Input entries ending in "/" select a directory, entries with glob
	// meta characters are patterns, anything else is a single file.
	Input []string `yaml:"input"`
}

// Config is the parsed project file.
type Config struct {
	// Root is the directory holding the config file.
	Root string `yaml:"-"`

	BuildDir       string      `yaml:"build_dir"`
	SourceDirs     []string    `yaml:"source_dirs"`
	ServedDirs     []ServedDir `yaml:"served_dirs"`
	Builds         []Build     `yaml:"builds"`
	RequiredBuilds []string    `yaml:"required_builds"`

	Target    string `yaml:"target"`
	SourceMap bool   `yaml:"source_map"`
	Types     bool   `yaml:"types"`
	// MimeTypes adds or overrides extension to MIME type mappings, such as
	// ".svx": "text/markdown".
	MimeTypes map[string]string `yaml:"mime_types"`

	LogLevel  LogLevel      `yaml:"log_level"`
	MetaStore MetaStore     `yaml:"meta_store"`
	Debounce  time.Duration `yaml:"debounce"`
}

// Load reads <root>/gro.yaml, applies defaults and environment overrides,
// and validates the result. A missing file yields the defaults, src/ built
// for node. Every validation problem is reported together.
func Load(root string) (*Config, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("config: resolve root: %w", err)
	}
	return LoadFile(filepath.Join(root, FileName))
}

// LoadFile is Load for an explicit file path.
func LoadFile(path string) (*Config, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve %s: %w", path, err)
	}
	root := filepath.Dir(path)

	cfg := &Config{Root: root, SourceMap: true}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.Root = root
	}

	env, err := environment(root)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv(env)
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// environment merges <root>/.env with the process environment, whose
// non-empty values win.
func environment(root string) (map[string]string, error) {
	env := make(map[string]string)
	dotenv := filepath.Join(root, ".env")
	if _, err := os.Stat(dotenv); err == nil {
		vals, err := godotenv.Read(dotenv)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", dotenv, err)
		}
		env = vals
	}
	for _, key := range []string{EnvBuildDir, EnvLogLevel, EnvMetaStore} {
		if v := os.Getenv(key); v != "" {
			env[key] = v
		}
	}
	return env, nil
}

func (c *Config) applyEnv(env map[string]string) {
	if v := env[EnvBuildDir]; v != "" {
		c.BuildDir = v
	}
	if v := env[EnvLogLevel]; v != "" {
		c.LogLevel = LogLevel(strings.ToLower(v))
	}
	if v := env[EnvMetaStore]; v != "" {
		c.MetaStore = MetaStore(strings.ToLower(v))
	}
}

func (c *Config) applyDefaults() {
	if c.BuildDir == "" {
		c.BuildDir = paths.DefaultBuildDir
	}
	c.BuildDir = c.abs(c.BuildDir)
	if len(c.SourceDirs) == 0 && len(c.ServedDirs) == 0 {
		c.SourceDirs = []string{"src"}
	}
	for i, dir := range c.SourceDirs {
		c.SourceDirs[i] = c.abs(dir)
	}
	for i := range c.ServedDirs {
		sd := &c.ServedDirs[i]
		sd.Dir = c.abs(sd.Dir)
		if sd.ServedAt == "" {
			sd.ServedAt = sd.Dir
		} else {
			sd.ServedAt = c.abs(sd.ServedAt)
		}
	}
	if len(c.Builds) == 0 && len(c.SourceDirs) > 0 {
		node := Build{Name: "node", Platform: buildcfg.PlatformNode}
		for _, dir := range c.SourceDirs {
			node.Input = append(node.Input, dir+"/")
		}
		c.Builds = []Build{node}
	}
	for i := range c.Builds {
		if c.Builds[i].Platform == "" {
			c.Builds[i].Platform = buildcfg.PlatformNode
		}
	}
	if c.Target == "" {
		c.Target = "es2020"
	}
	if c.LogLevel == "" {
		c.LogLevel = LogLevelInfo
	}
	if c.MetaStore == "" {
		c.MetaStore = MetaStoreFS
	}
	if c.Debounce == 0 {
		c.Debounce = 100 * time.Millisecond
	}
}

func (c *Config) validate() error {
	var errs []error
	for _, dir := range c.SourceDirs {
		if within(c.BuildDir, dir) || within(dir, c.BuildDir) {
			errs = append(errs, fmt.Errorf("source dir %q overlaps build_dir %q", dir, c.BuildDir))
		}
	}
	for i, sd := range c.ServedDirs {
		if sd.Dir == "" {
			errs = append(errs, fmt.Errorf("served_dirs[%d]: dir is required", i))
		}
	}
	for i, b := range c.Builds {
		for j, in := range b.Input {
			if strings.TrimSpace(in) == "" {
				errs = append(errs, fmt.Errorf("builds[%d] %q: input[%d] is empty", i, b.Name, j))
			}
		}
	}
	if _, ok := validLogLevels[c.LogLevel]; !ok {
		errs = append(errs, fmt.Errorf("log_level %q must be one of: debug, info, warn, error", c.LogLevel))
	}
	if c.MetaStore != MetaStoreFS && c.MetaStore != MetaStoreSQLite {
		errs = append(errs, fmt.Errorf("meta_store %q must be one of: fs, sqlite", c.MetaStore))
	}
	for ext := range c.MimeTypes {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			errs = append(errs, fmt.Errorf("mime_types key %q must be an extension like \".svx\"", ext))
		}
	}
	if c.Debounce < 0 {
		errs = append(errs, fmt.Errorf("debounce %s must not be negative", c.Debounce))
	}
	if err := buildcfg.Validate(c.BuildConfigs(), c.RequiredBuilds...); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// BuildConfigs converts the builds section into build target configs.
func (c *Config) BuildConfigs() []*buildcfg.Config {
	configs := make([]*buildcfg.Config, 0, len(c.Builds))
	for _, b := range c.Builds {
		cfg := &buildcfg.Config{Name: b.Name, Platform: b.Platform}
		for _, in := range b.Input {
			cfg.Input = append(cfg.Input, c.input(in))
		}
		configs = append(configs, cfg)
	}
	return configs
}

func (c *Config) input(in string) buildcfg.Input {
	in = strings.TrimSpace(in)
	switch {
	case strings.ContainsAny(in, "*?[{"):
		return buildcfg.PatternInput(c.abs(in))
	case strings.HasSuffix(in, "/"):
		return buildcfg.DirInput(c.abs(in))
	default:
		return buildcfg.PathInput(c.abs(in))
	}
}

// Mime returns a MIME registry with the configured types added.
func (c *Config) Mime() *mime.Registry {
	r := mime.NewRegistry()
	for ext, t := range c.MimeTypes {
		r.Add(ext, t)
	}
	return r
}

// SQLitePath returns the database file of the sqlite meta store.
func (c *Config) SQLitePath(dev bool) string {
	return filepath.Join(c.BuildDir, paths.Mode(dev)+"_meta.db")
}

func (c *Config) abs(p string) string {
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(c.Root, filepath.FromSlash(p))
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
