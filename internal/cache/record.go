package cache

import (
	"path/filepath"

	"github.com/skyline93/bundlecache/internal/fs"
)

// Record describes one cached bundle.
type Record struct {
	InfoFilePath string
	DataFilePath string
	DataFileCRC  string
	DataFileSize int64
}

// folder returns the directory holding the files of the record.
func (r Record) folder() string {
	return filepath.Dir(r.InfoFilePath)
}

// deleteFolder removes the files of the record together with their folder.
func (r Record) deleteFolder(fsys fs.FS) error {
	return fs.RemoveAll(fsys, r.folder())
}
