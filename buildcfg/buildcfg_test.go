package buildcfg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelects(t *testing.T) {
	cfg := &Config{
		Name:     "node",
		Platform: PlatformNode,
		Input: []Input{
			PathInput("/p/src/index.ts"),
			DirInput("/p/src/server"),
			PatternInput("/p/src/**/*.test.ts"),
			FilterInput(func(id string) bool { return strings.HasSuffix(id, ".json") }),
		},
	}

	tests := []struct {
		id   string
		want bool
	}{
		{"/p/src/index.ts", true},
		{"/p/src/index.js", false},
		{"/p/src/server/main.ts", true},
		{"/p/src/serverless.ts", false},
		{"/p/src/lib/deep/a.test.ts", true},
		{"/p/src/lib/a.ts", false},
		{"/p/src/data.json", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cfg.Selects(tt.id), tt.id)
	}
}

func TestOverlappingConfigsSelectIndependently(t *testing.T) {
	node := &Config{Name: "node", Platform: PlatformNode, Input: []Input{DirInput("/p/src")}}
	browser := &Config{Name: "browser", Platform: PlatformBrowser, Input: []Input{PathInput("/p/src/shared.ts")}}
	assert.True(t, node.Selects("/p/src/shared.ts"))
	assert.True(t, browser.Selects("/p/src/shared.ts"))
	assert.False(t, browser.Selects("/p/src/server.ts"))
}

func TestValidate(t *testing.T) {
	good := []*Config{
		{Name: "node", Platform: PlatformNode, Input: []Input{DirInput("/p/src")}},
		{Name: "browser", Platform: PlatformBrowser, Input: []Input{PatternInput("/p/src/**/*.svelte")}},
	}
	require.NoError(t, Validate(good, "node"))

	err := Validate(good, "system")
	assert.ErrorIs(t, err, ErrMissingRequired)

	dup := []*Config{good[0], {Name: "node", Platform: PlatformNode, Input: []Input{DirInput("/p/lib")}}}
	assert.ErrorIs(t, Validate(dup), ErrDuplicateName)

	bad := []*Config{
		{Name: "", Platform: "deno"},
		{Name: "a/b", Platform: PlatformNode, Input: []Input{{}}},
		{Name: "rel", Platform: PlatformNode, Input: []Input{PathInput("src/a.ts")}},
		{Name: "both", Platform: PlatformNode, Input: []Input{{Path: "/a", Pattern: "/b"}}},
		{Name: "glob", Platform: PlatformNode, Input: []Input{PatternInput("/p/[")}},
		nil,
	}
	err = Validate(bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)
	msg := err.Error()
	for _, want := range []string{
		"name is required",
		`platform "deno"`,
		"input is required",
		"single path segment",
		"must set exactly one",
		"must be absolute",
		`pattern "/p/["`,
		"configs[5] is nil",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"browser", "node"}, Names([]*Config{{Name: "node"}, {Name: "browser"}}))
}
