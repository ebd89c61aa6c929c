package fsys

import (
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"
)

// Afero is the FS backed by an afero.Fs.
type Afero struct {
	fs afero.Fs
}

var _ FS = (*Afero)(nil)

// NewAfero wraps fsy.
func NewAfero(fsy afero.Fs) *Afero {
	return &Afero{fs: fsy}
}

// NewOS returns the FS backed by the host filesystem.
func NewOS() *Afero {
	return NewAfero(afero.NewOsFs())
}

func (a *Afero) Exists(path string) (bool, error) { return afero.Exists(a.fs, path) }

func (a *Afero) Stat(path string) (fs.FileInfo, error) { return a.fs.Stat(path) }

func (a *Afero) ReadFile(path string) ([]byte, error) { return afero.ReadFile(a.fs, path) }

// WriteFile writes into a temp file in the target directory and renames it
// over path so readers never observe a partial file.
func (a *Afero) WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := a.fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := afero.TempFile(a.fs, dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = a.fs.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = a.fs.Remove(tmp)
		return err
	}
	if err := a.fs.Chmod(tmp, 0o644); err != nil {
		_ = a.fs.Remove(tmp)
		return err
	}
	return a.fs.Rename(tmp, path)
}

func (a *Afero) Remove(path string) error { return a.fs.RemoveAll(path) }

func (a *Afero) Copy(src, dst string) error {
	info, err := a.fs.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		data, err := afero.ReadFile(a.fs, src)
		if err != nil {
			return err
		}
		return a.WriteFile(dst, data)
	}
	return afero.Walk(a.fs, src, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return a.fs.MkdirAll(target, 0o755)
		}
		data, err := afero.ReadFile(a.fs, p)
		if err != nil {
			return err
		}
		return a.WriteFile(target, data)
	})
}

func (a *Afero) MkdirAll(path string) error { return a.fs.MkdirAll(path, 0o755) }

func (a *Afero) Walk(root string, fn WalkFunc) error {
	return afero.Walk(a.fs, root, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		return fn(p, info)
	})
}
