package cache

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/crc32"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/skyline93/bundlecache/internal/bundle"
	"github.com/skyline93/bundlecache/internal/fs"
	"github.com/skyline93/bundlecache/internal/metrics"
)

// VerifyResult classifies a cached file.
type VerifyResult uint8

// Verification outcomes. Every result other than VerifySucceed is a failure.
const (
	VerifyCacheNotFound VerifyResult = iota
	VerifySucceed
	VerifyFileNotExisted
	VerifyFileSizeMismatch
	VerifyFileCRCMismatch
	VerifyException
)

func (r VerifyResult) String() string {
	switch r {
	case VerifyCacheNotFound:
		return "cache not found"
	case VerifySucceed:
		return "succeed"
	case VerifyFileNotExisted:
		return "file not existed"
	case VerifyFileSizeMismatch:
		return "file size mismatch"
	case VerifyFileCRCMismatch:
		return "file crc mismatch"
	case VerifyException:
		return "exception"
	}
	return "invalid"
}

// Ok returns true for VerifySucceed.
func (r VerifyResult) Ok() bool {
	return r == VerifySucceed
}

// CRC returns the hex encoded CRC32 (IEEE) of data.
func CRC(data []byte) string {
	return fmt.Sprintf("%08x", crc32.ChecksumIEEE(data))
}

// FileCRC returns the hex encoded CRC32 (IEEE) of the file at path.
func FileCRC(fsys fs.FS, path string) (string, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "Open")
	}
	defer func() { _ = f.Close() }()

	h := crc32.NewIEEE()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.Wrap(err, "Copy")
	}
	return fmt.Sprintf("%08x", h.Sum32()), nil
}

// VerifyFile checks the file at path against the expected size and CRC. Each
// level runs the checks of the lower levels first.
func VerifyFile(fsys fs.FS, path string, size int64, crc string, level VerifyLevel) VerifyResult {
	if level == VerifyNone {
		return VerifySucceed
	}

	fi, err := fsys.Stat(path)
	if err != nil {
		if fs.IsNotExist(err) {
			return VerifyFileNotExisted
		}
		log.Warnf("unable to stat %v: %v", path, err)
		return VerifyException
	}
	if !fi.Mode().IsRegular() {
		return VerifyFileNotExisted
	}
	if level == VerifyLow {
		return VerifySucceed
	}

	if fi.Size() != size {
		return VerifyFileSizeMismatch
	}
	if level == VerifyMiddle {
		return VerifySucceed
	}

	got, err := FileCRC(fsys, path)
	if err != nil {
		log.Warnf("unable to compute crc of %v: %v", path, err)
		return VerifyException
	}
	if !strings.EqualFold(got, crc) {
		return VerifyFileCRCMismatch
	}
	return VerifySucceed
}

// Verify classifies the cached copy of b at level. It never repairs anything.
func (c *Cache) Verify(b bundle.Bundle, level VerifyLevel) VerifyResult {
	r, ok := c.records.Get(b.GUID)
	if !ok {
		metrics.VerifyResults.WithLabelValues(level.String(), VerifyCacheNotFound.String()).Inc()
		return VerifyCacheNotFound
	}

	res := VerifyFile(c.fs, r.DataFilePath, r.DataFileSize, r.DataFileCRC, level)
	metrics.VerifyResults.WithLabelValues(level.String(), res.String()).Inc()
	if !res.Ok() {
		log.WithFields(log.Fields{"guid": b.GUID, "level": level}).Warnf("cache file verification failed: %v", res)
	}
	return res
}

// VerifyErr is like Verify but returns ErrNotFound or a *VerifyError for
// failures.
func (c *Cache) VerifyErr(b bundle.Bundle, level VerifyLevel) error {
	switch res := c.Verify(b, level); res {
	case VerifySucceed:
		return nil
	case VerifyCacheNotFound:
		return errors.Wrapf(ErrNotFound, "bundle %v", b.GUID)
	default:
		return &VerifyError{GUID: b.GUID, Level: level, Result: res}
	}
}
