//go:build !windows

package fs

import (
	"errors"
	"runtime"

	"golang.org/x/sys/unix"
)

func isMacENOTTY(err error) bool {
	return runtime.GOOS == "darwin" && errors.Is(err, unix.ENOTTY)
}

// isSyncNotSupported returns true if fsync failed because the file system
// cannot sync this kind of file (e.g. directories on some network mounts).
func isSyncNotSupported(err error) bool {
	return errors.Is(err, unix.ENOTSUP) || errors.Is(err, unix.ENOENT) ||
		errors.Is(err, unix.EINVAL) || isMacENOTTY(err)
}
