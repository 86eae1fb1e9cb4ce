package fs

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// FS is the filesystem abstraction the cache operates on. Production code uses
// Local, tests an in-memory filesystem.
type FS = afero.Fs

// Local returns the operating system filesystem.
func Local() FS {
	return afero.NewOsFs()
}

// Default permission bits for cache directories and files.
const (
	DirMode  os.FileMode = 0o755
	FileMode os.FileMode = 0o644
)

// Exists returns true if name exists and is a regular file.
func Exists(fsys FS, name string) bool {
	fi, err := fsys.Stat(name)
	if err != nil {
		return false
	}
	return fi.Mode().IsRegular()
}

// DirExists returns true if name exists and is a directory.
func DirExists(fsys FS, name string) bool {
	fi, err := fsys.Stat(name)
	if err != nil {
		return false
	}
	return fi.IsDir()
}

// IsNotExist returns true if err reports a missing file.
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

// RemoveIfExists removes a file, returning no error if it does not exist.
func RemoveIfExists(fsys FS, filename string) error {
	err := fsys.Remove(filename)
	if err != nil && IsNotExist(err) {
		err = nil
	}
	return err
}

// RemoveAll removes path and any children it contains. A missing path is not
// an error.
func RemoveAll(fsys FS, path string) error {
	return fsys.RemoveAll(path)
}

// CreateFileDirectory makes sure the parent directory of filename exists.
func CreateFileDirectory(fsys FS, filename string) error {
	return fsys.MkdirAll(filepath.Dir(filename), DirMode)
}

// CopyFile copies src to dst, truncating dst. The destination is synced to
// stable storage before it is closed.
func CopyFile(fsys FS, src, dst string) (int64, error) {
	in, err := fsys.Open(src)
	if err != nil {
		return 0, errors.Wrap(err, "Open")
	}
	defer func() { _ = in.Close() }()

	out, err := fsys.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, FileMode)
	if err != nil {
		return 0, errors.Wrap(err, "OpenFile")
	}

	n, err := io.Copy(out, in)
	if err != nil {
		_ = out.Close()
		return n, errors.Wrap(err, "Copy")
	}

	return n, syncAndClose(out)
}

// WriteFile writes data to name with truncate semantics and syncs it before
// the handle is released.
func WriteFile(fsys FS, name string, data []byte) error {
	f, err := fsys.OpenFile(name, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, FileMode)
	if err != nil {
		return errors.Wrap(err, "OpenFile")
	}

	if _, err = f.Write(data); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "Write")
	}

	return syncAndClose(f)
}

// ReadFile returns the whole content of name.
func ReadFile(fsys FS, name string) ([]byte, error) {
	return afero.ReadFile(fsys, name)
}

func syncAndClose(f afero.File) error {
	err := f.Sync()
	if err != nil && !isSyncNotSupported(err) {
		_ = f.Close()
		return errors.Wrap(err, "Sync")
	}

	return errors.Wrap(f.Close(), "Close")
}

// SyncDir flushes changes to the directory dir.
func SyncDir(fsys FS, dir string) error {
	d, err := fsys.Open(dir)
	if err != nil {
		return err
	}

	err = d.Sync()
	if err != nil && isSyncNotSupported(err) {
		err = nil
	}

	cerr := d.Close()
	if err == nil {
		err = cerr
	}

	return err
}
