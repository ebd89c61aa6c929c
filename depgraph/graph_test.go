package depgraph

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestUpdateAndQuery(t *testing.T) {
	g := New()
	g.Update("/src/a.ts", "browser", []string{"/src/b.ts", "/src/c.ts"})
	g.Update("/src/d.ts", "browser", []string{"/src/b.ts"})

	assert.Equal(t, []string{"/src/a.ts", "/src/d.ts"}, g.Dependents("/src/b.ts"))
	assert.Equal(t, []string{"/src/a.ts"}, g.Dependents("/src/c.ts"))
	assert.Equal(t, []string{"/src/b.ts", "/src/c.ts"}, g.Dependencies("/src/a.ts"))
	assert.Nil(t, g.Dependents("/src/a.ts"))

	// replacing the edge set drops the old reverse edges
	g.Update("/src/a.ts", "browser", []string{"/src/c.ts"})
	assert.Equal(t, []string{"/src/d.ts"}, g.Dependents("/src/b.ts"))
}

func TestEdgesPerBuild(t *testing.T) {
	g := New()
	g.Update("/src/a.ts", "browser", []string{"/src/b.ts"})
	g.Update("/src/a.ts", "node", []string{"/src/b.ts", "/src/n.ts"})

	assert.Equal(t, []string{"/src/b.ts", "/src/n.ts"}, g.Dependencies("/src/a.ts"))
	assert.Equal(t, []string{"/src/b.ts"}, g.BuildDependencies("/src/a.ts", "browser"))

	g.RemoveBuild("/src/a.ts", "node")
	assert.Equal(t, []string{"/src/a.ts"}, g.Dependents("/src/b.ts"), "browser still imports b")
	assert.Nil(t, g.Dependents("/src/n.ts"))

	g.RemoveBuild("/src/a.ts", "browser")
	assert.Nil(t, g.Dependents("/src/b.ts"))
	assert.Nil(t, g.Dependencies("/src/a.ts"))
}

func TestRemoveDependent(t *testing.T) {
	g := New()
	g.Update("/a", "x", []string{"/b"})
	g.Update("/a", "y", []string{"/b", "/c"})
	g.Update("/c", "x", []string{"/a"})

	g.RemoveDependent("/a")
	assert.Nil(t, g.Dependents("/b"))
	assert.Nil(t, g.Dependents("/c"))
	// edges into /a are owned by /c and survive
	assert.Equal(t, []string{"/c"}, g.Dependents("/a"))
}

func TestSelfAndEmptyEdgesIgnored(t *testing.T) {
	g := New()
	g.Update("/a", "x", []string{"/a", "", "/b", "/b"})
	assert.Equal(t, []string{"/b"}, g.Dependencies("/a"))
	assert.Nil(t, g.Dependents("/a"))

	g.Update("/a", "x", nil)
	imports, importers := g.Snapshot()
	assert.Empty(t, imports)
	assert.Empty(t, importers)
}

func TestHubFiles(t *testing.T) {
	g := New()
	for i := 0; i < 3; i++ {
		g.Update(fmt.Sprintf("/src/user%d.ts", i), "browser", []string{"/src/hub.ts", "/src/leaf.ts"})
	}
	g.Update("/src/user0.ts", "node", []string{"/src/hub.ts"})
	g.Update("/src/user1.ts", "browser", []string{"/src/hub.ts"})

	assert.True(t, g.IsHub("/src/hub.ts"))
	assert.False(t, g.IsHub("/src/leaf.ts"))
	assert.Equal(t, []string{"/src/hub.ts"}, g.HubFiles())
	assert.Equal(t, []string{"/src/hub.ts", "/src/leaf.ts"}, g.ConnectedFiles("/src/user0.ts"))
}

func TestFromImports(t *testing.T) {
	g := New()
	for i := 0; i < 3; i++ {
		g.Update(fmt.Sprintf("/src/user%d.ts", i), "browser", []string{"/src/hub.ts"})
	}
	g.Update("/src/user0.ts", "node", []string{"/src/leaf.ts"})
	imports, importers := g.Snapshot()

	rebuilt := FromImports(imports)
	gotImports, gotImporters := rebuilt.Snapshot()
	if diff := cmp.Diff(imports, gotImports); diff != "" {
		t.Errorf("imports mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(importers, gotImporters); diff != "" {
		t.Errorf("importers mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, rebuilt.IsHub("/src/hub.ts"))
	assert.False(t, rebuilt.IsHub("/src/leaf.ts"))
	assert.Equal(t, []string{"/src/hub.ts", "/src/leaf.ts"}, rebuilt.ConnectedFiles("/src/user0.ts"))
}

func TestSnapshotConsistency(t *testing.T) {
	g := New()
	g.Update("/a", "x", []string{"/b", "/c"})
	g.Update("/b", "x", []string{"/c"})
	g.Update("/b", "y", []string{"/d"})

	imports, importers := g.Snapshot()
	wantImports := map[string][]string{
		"/a": {"/b", "/c"},
		"/b": {"/c", "/d"},
	}
	wantImporters := map[string][]string{
		"/b": {"/a"},
		"/c": {"/a", "/b"},
		"/d": {"/b"},
	}
	if diff := cmp.Diff(wantImports, imports); diff != "" {
		t.Errorf("imports mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantImporters, importers); diff != "" {
		t.Errorf("importers mismatch (-want +got):\n%s", diff)
	}

	// every reverse edge has a forward edge
	for dep, users := range importers {
		for _, u := range users {
			assert.Contains(t, imports[u], dep)
		}
	}
}

func TestConcurrentUpdates(t *testing.T) {
	g := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("/src/f%d.ts", i)
			g.Update(id, "browser", []string{"/src/shared.ts"})
			_ = g.Dependents("/src/shared.ts")
			if i%2 == 0 {
				g.RemoveDependent(id)
			}
		}(i)
	}
	wg.Wait()
	assert.Len(t, g.Dependents("/src/shared.ts"), 25)
}
