package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gro/buildcfg"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvBuildDir, EnvLogLevel, EnvMetaStore} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, dir, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(contents), 0o644))
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, root, cfg.Root)
	assert.Equal(t, filepath.Join(root, ".gro"), cfg.BuildDir)
	assert.Equal(t, []string{filepath.Join(root, "src")}, cfg.SourceDirs)
	assert.Equal(t, "es2020", cfg.Target)
	assert.True(t, cfg.SourceMap)
	assert.Equal(t, LogLevelInfo, cfg.LogLevel)
	assert.Equal(t, MetaStoreFS, cfg.MetaStore)
	assert.Equal(t, 100*time.Millisecond, cfg.Debounce)

	configs := cfg.BuildConfigs()
	require.Len(t, configs, 1)
	assert.Equal(t, "node", configs[0].Name)
	assert.True(t, configs[0].Selects(filepath.Join(root, "src", "lib", "a.ts")))
	assert.False(t, configs[0].Selects(filepath.Join(root, "other", "a.ts")))
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	writeConfig(t, root, `
build_dir: out
source_dirs: [src, lib]
served_dirs:
  - static
  - dir: out/dev/browser
    served_at: out/dev
builds:
  - name: node
    input: [src/]
  - name: browser
    platform: browser
    input: ["lib/**/*.ts", src/main.ts]
required_builds: [browser]
target: es2022
source_map: false
types: true
log_level: debug
meta_store: sqlite
debounce: 250ms
mime_types:
  .svx: text/markdown
`)

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "out"), cfg.BuildDir)
	assert.Equal(t, []string{filepath.Join(root, "src"), filepath.Join(root, "lib")}, cfg.SourceDirs)
	assert.Equal(t, []ServedDir{
		{Dir: filepath.Join(root, "static"), ServedAt: filepath.Join(root, "static")},
		{Dir: filepath.Join(root, "out", "dev", "browser"), ServedAt: filepath.Join(root, "out", "dev")},
	}, cfg.ServedDirs)
	assert.Equal(t, "es2022", cfg.Target)
	assert.False(t, cfg.SourceMap)
	assert.True(t, cfg.Types)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel.Level())
	assert.Equal(t, MetaStoreSQLite, cfg.MetaStore)
	assert.Equal(t, filepath.Join(root, "out", "dev_meta.db"), cfg.SQLitePath(true))
	assert.Equal(t, 250*time.Millisecond, cfg.Debounce)
	assert.Equal(t, "text/markdown", cfg.Mime().Lookup("post.svx"))

	configs := cfg.BuildConfigs()
	require.Len(t, configs, 2)
	assert.Equal(t, buildcfg.PlatformNode, configs[0].Platform, "platform defaults to node")
	browser := configs[1]
	assert.Equal(t, buildcfg.PlatformBrowser, browser.Platform)
	assert.True(t, browser.Selects(filepath.Join(root, "lib", "deep", "x.ts")))
	assert.True(t, browser.Selects(filepath.Join(root, "src", "main.ts")))
	assert.False(t, browser.Selects(filepath.Join(root, "src", "other.ts")))
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	writeConfig(t, root, "log_level: warn\nmeta_store: fs\n")
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("GRO_LOG_LEVEL=ERROR\nGRO_BUILD_DIR=cache\n"), 0o644))

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, LogLevelError, cfg.LogLevel)
	assert.Equal(t, filepath.Join(root, "cache"), cfg.BuildDir)

	// the process environment wins over .env
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvMetaStore, "sqlite")
	cfg, err = Load(root)
	require.NoError(t, err)
	assert.Equal(t, LogLevelDebug, cfg.LogLevel)
	assert.Equal(t, MetaStoreSQLite, cfg.MetaStore)
}

func TestLoadValidation(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	writeConfig(t, root, `
build_dir: src/.gro
builds:
  - name: node
    input: [src/]
  - name: node
    platform: wasm
    input: [src/]
required_builds: [browser]
log_level: loud
meta_store: redis
debounce: -1s
mime_types:
  svx: text/markdown
`)

	_, err := Load(root)
	require.Error(t, err)
	assert.ErrorIs(t, err, buildcfg.ErrDuplicateName)
	assert.ErrorIs(t, err, buildcfg.ErrMissingRequired)
	assert.ErrorIs(t, err, buildcfg.ErrInvalid)
	for _, want := range []string{"overlaps build_dir", "log_level", "meta_store", "debounce", "mime_types"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoadParseError(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	writeConfig(t, root, "source_dirs: [unterminated\n")

	_, err := Load(root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse")
}

func TestLogLevelFallback(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, LogLevel("verbose").Level())
	assert.Equal(t, slog.LevelWarn, LogLevelWarn.Level())
}
