package mime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookup(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, "text/typescript", r.Lookup("/src/a.ts"))
	assert.Equal(t, "application/json", r.Lookup("/x/a.js.map"))
	assert.Equal(t, "text/html", r.Lookup("INDEX.HTML"))
	assert.Equal(t, "image/png", r.Lookup("logo.png"))
	assert.Equal(t, "", r.Lookup("Makefile"))
}

func TestAddOverridesCachedLookup(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, "", r.Lookup("doc.svx"))
	r.Add(".svx", "text/svelte")
	assert.Equal(t, "text/svelte", r.Lookup("doc.svx"))
}

func TestEncoding(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, UTF8, r.Encoding("a.ts"))
	assert.Equal(t, UTF8, r.Encoding("a.js.map"))
	assert.Equal(t, UTF8, r.Encoding("icon.svg"))
	assert.Equal(t, UTF8, r.Encoding("LICENSE"))
	assert.Equal(t, Binary, r.Encoding("logo.png"))
	assert.Equal(t, Binary, r.Encoding("blob.unknownext"))
}

func TestDefaultIsShared(t *testing.T) {
	assert.Same(t, Default(), Default())
}
