package fs

import (
	"errors"

	"golang.org/x/sys/windows"
)

// isSyncNotSupported returns true for the errors Windows reports when a
// directory handle is flushed.
func isSyncNotSupported(err error) bool {
	return errors.Is(err, windows.ERROR_ACCESS_DENIED) || errors.Is(err, windows.ERROR_INVALID_HANDLE)
}
