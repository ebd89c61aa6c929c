package scanner

import "io/fs"

// FileInfo represents a single file found under a scanned root.
type FileInfo struct {
	Path string      `json:"path"` // relative to the root, forward slashes
	Size int64       `json:"size"`
	Ext  string      `json:"ext"`
	Info fs.FileInfo `json:"-"`
}
