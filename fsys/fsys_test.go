package fsys

import (
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseFS runs the same behavioral checks against any FS rooted at root.
func exerciseFS(t *testing.T, fsys FS, root string) {
	t.Helper()

	a := filepath.Join(root, "a", "b", "c.txt")
	require.NoError(t, fsys.WriteFile(a, []byte("hello")))

	ok, err := fsys.Exists(a)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = fsys.Exists(filepath.Join(root, "a", "b"))
	require.NoError(t, err)
	assert.True(t, ok, "parent dirs are created by WriteFile")

	data, err := fsys.ReadFile(a)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	info, err := fsys.Stat(a)
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())
	assert.False(t, info.IsDir())

	_, err = fsys.Stat(filepath.Join(root, "missing"))
	assert.ErrorIs(t, err, fs.ErrNotExist)

	copied := filepath.Join(root, "copy", "c.txt")
	require.NoError(t, fsys.Copy(a, copied))
	data, err = fsys.ReadFile(copied)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, fsys.WriteFile(filepath.Join(root, "a", "z.txt"), []byte("z")))
	var walked []string
	require.NoError(t, fsys.Walk(filepath.Join(root, "a"), func(p string, info fs.FileInfo) error {
		rel, _ := filepath.Rel(root, p)
		walked = append(walked, filepath.ToSlash(rel))
		return nil
	}))
	assert.Equal(t, []string{"a", "a/b", "a/b/c.txt", "a/z.txt"}, walked)

	walked = nil
	require.NoError(t, fsys.Walk(filepath.Join(root, "a"), func(p string, info fs.FileInfo) error {
		if info.IsDir() && info.Name() == "b" {
			return fs.SkipDir
		}
		rel, _ := filepath.Rel(root, p)
		walked = append(walked, filepath.ToSlash(rel))
		return nil
	}))
	assert.Equal(t, []string{"a", "a/z.txt"}, walked)

	require.NoError(t, fsys.Remove(filepath.Join(root, "a")))
	ok, err = fsys.Exists(a)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, fsys.Remove(filepath.Join(root, "never-existed")))
}

func TestOS(t *testing.T) {
	exerciseFS(t, NewOS(), t.TempDir())
}

func TestMem(t *testing.T) {
	exerciseFS(t, NewMem(), "/root")
}

func TestMemLenCountsDirectories(t *testing.T) {
	m := NewMem()
	require.NoError(t, m.WriteFile("/served/a.html", []byte("a")))
	require.NoError(t, m.WriteFile("/served/c/c.svelte.md", []byte("c")))
	// /served, /served/c, and the two files
	assert.Equal(t, 4, m.Len())
}

func TestMemReadReturnsCopy(t *testing.T) {
	m := NewMem()
	require.NoError(t, m.WriteFile("/x", []byte("abc")))
	data, err := m.ReadFile("/x")
	require.NoError(t, err)
	data[0] = 'z'
	again, err := m.ReadFile("/x")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}
