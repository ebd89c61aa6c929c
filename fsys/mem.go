package fsys

import (
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"
)

// Mem is an in-memory FS over afero's MemMapFs. Paths must be absolute.
type Mem struct {
	*Afero
}

// NewMem returns an empty in-memory filesystem.
func NewMem() *Mem {
	return &Mem{Afero: NewAfero(afero.NewMemMapFs())}
}

// Len returns the number of stored entries below the root, directories
// included.
func (m *Mem) Len() int {
	n := 0
	root := string(filepath.Separator)
	_ = afero.Walk(m.fs, root, func(p string, _ fs.FileInfo, err error) error {
		if err == nil && p != root {
			n++
		}
		return nil
	})
	return n
}
