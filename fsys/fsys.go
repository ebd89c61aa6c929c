// Package fsys is the filesystem capability the filer builds on, backed by
// afero. NewOS wraps the host filesystem; NewMem is an in-memory double.
package fsys

import (
	"io/fs"
)

// WalkFunc is called for every entry under a walked root, directories
// included, in lexical order. Returning fs.SkipDir from a directory skips it.
type WalkFunc func(path string, info fs.FileInfo) error

// FS abstracts the filesystem operations used by the filer.
type FS interface {
	Exists(path string) (bool, error)
	Stat(path string) (fs.FileInfo, error)
	ReadFile(path string) ([]byte, error)
	// WriteFile writes data to path, creating missing parent directories.
	WriteFile(path string, data []byte) error
	// Remove deletes path and everything under it. Missing paths are not an error.
	Remove(path string) error
	Copy(src, dst string) error
	MkdirAll(path string) error
	Walk(root string, fn WalkFunc) error
}
