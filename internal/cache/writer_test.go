package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyline93/bundlecache/internal/layout"
)

// faultFs fails every OpenFile of a path for which fail returns true.
type faultFs struct {
	afero.Fs
	fail func(name string) bool
}

func (f *faultFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if f.fail != nil && f.fail(name) {
		return nil, &os.PathError{Op: "open", Path: name, Err: errors.New("injected fault")}
	}
	return f.Fs.OpenFile(name, flag, perm)
}

func TestWriteBundle(t *testing.T) {
	c := newTestCache(t, afero.NewMemMapFs(), NewOptions())
	b := testBundle("guid-1", "content")

	assert.False(t, c.Exists(b))
	writeBundle(t, c, b, "content")
	assert.True(t, c.Exists(b))

	data, err := afero.ReadFile(c.FS(), c.Paths().DataFile(b))
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))

	crc, size, err := readInfoFile(c.FS(), c.Paths().InfoFile(b))
	require.NoError(t, err)
	assert.Equal(t, b.FileCRC, crc)
	assert.Equal(t, b.FileSize, size)

	assert.Equal(t, filepath.Join(testRoot, layout.BundleFilesFolderName, b.FileHash[:2], b.GUID, layout.BundleDataFileName),
		c.Paths().DataFile(b))
}

func TestWriteBundleAppendsExtension(t *testing.T) {
	opts := NewOptions()
	opts.AppendFileExtension = true
	c := newTestCache(t, afero.NewMemMapFs(), opts)

	b := testBundle("ext", "x")
	b.FileExtension = "bundle"
	writeBundle(t, c, b, "x")

	assert.True(t, strings.HasSuffix(c.BundleFilePath(b), "data.bundle"))
	ok, _ := afero.Exists(c.FS(), c.BundleFilePath(b))
	assert.True(t, ok)
}

func TestWriteBundleSameContentTwoIDs(t *testing.T) {
	c := newTestCache(t, afero.NewMemMapFs(), NewOptions())
	a := testBundle("a", "same")
	b := testBundle("b", "same")

	stageFile(t, c.FS(), "/staging/shared", "same")
	require.NoError(t, c.WriteBundle(a, "/staging/shared"))
	require.NoError(t, c.WriteBundle(b, "/staging/shared"))

	ra, _ := c.Record(a)
	rb, _ := c.Record(b)
	assert.NotEqual(t, ra.DataFilePath, rb.DataFilePath)
	assert.NotEqual(t, ra.InfoFilePath, rb.InfoFilePath)

	_, err := c.DeleteBundle("a")
	require.NoError(t, err)
	assert.True(t, c.Exists(b))
	assert.Equal(t, VerifySucceed, c.Verify(b, VerifyHigh))
}

func TestWriteBundleTwiceFails(t *testing.T) {
	c := newTestCache(t, afero.NewMemMapFs(), NewOptions())
	b := testBundle("dup", "original")
	writeBundle(t, c, b, "original")

	infoBefore, err := afero.ReadFile(c.FS(), c.Paths().InfoFile(b))
	require.NoError(t, err)

	stageFile(t, c.FS(), "/staging/other", "replaced")
	err = c.WriteBundle(b, "/staging/other")
	assert.ErrorIs(t, err, ErrAlreadyCached)

	data, err := afero.ReadFile(c.FS(), c.Paths().DataFile(b))
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
	infoAfter, err := afero.ReadFile(c.FS(), c.Paths().InfoFile(b))
	require.NoError(t, err)
	assert.Equal(t, infoBefore, infoAfter)
}

func TestWriteBundleMissingStagedFile(t *testing.T) {
	c := newTestCache(t, afero.NewMemMapFs(), NewOptions())
	b := testBundle("missing", "x")

	err := c.WriteBundle(b, "/staging/none")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIOFailure)

	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "copy", ioErr.Op)
	assert.False(t, c.Exists(b))
}

func TestWriteBundleCrashAfterCopy(t *testing.T) {
	mem := afero.NewMemMapFs()
	fault := &faultFs{Fs: mem}
	c := newTestCache(t, fault, NewOptions())
	b := testBundle("crash", "payload")

	fault.fail = func(name string) bool {
		return filepath.Base(name) == layout.BundleInfoFileName
	}

	stageFile(t, mem, "/staging/crash", "payload")
	err := c.WriteBundle(b, "/staging/crash")
	require.Error(t, err)
	assert.False(t, c.Exists(b))

	// the copied data file is left behind without a record
	orphan, _ := afero.Exists(mem, c.Paths().DataFile(b))
	assert.True(t, orphan)

	fault.fail = nil
	require.NoError(t, c.WriteBundle(b, "/staging/crash"))
	assert.True(t, c.Exists(b))
	assert.Equal(t, VerifySucceed, c.Verify(b, VerifyHigh))
}

func TestWriteBundleOverwritesOrphanFiles(t *testing.T) {
	c := newTestCache(t, afero.NewMemMapFs(), NewOptions())
	b := testBundle("orphan", "fresh")

	stageFile(t, c.FS(), c.Paths().DataFile(b), "stale stale stale")
	stageFile(t, c.FS(), c.Paths().InfoFile(b), "garbage")

	writeBundle(t, c, b, "fresh")
	assert.Equal(t, VerifySucceed, c.Verify(b, VerifyHigh))
}

func TestWriteBundleBuckets(t *testing.T) {
	c := newTestCache(t, afero.NewMemMapFs(), NewOptions())
	stageFile(t, c.FS(), "/staging/x", "x")

	for i := 0; i < 256; i++ {
		b := testBundle(fmt.Sprintf("guid-%03d", i), "x")
		b.FileHash = fmt.Sprintf("%02x%s", i, b.FileHash[2:])
		require.NoError(t, c.WriteBundle(b, "/staging/x"))
	}

	buckets, err := afero.ReadDir(c.FS(), c.Paths().BundlesRoot())
	require.NoError(t, err)
	require.Len(t, buckets, 256)
	for _, fi := range buckets {
		entries, err := afero.ReadDir(c.FS(), filepath.Join(c.Paths().BundlesRoot(), fi.Name()))
		require.NoError(t, err)
		assert.Len(t, entries, 1, "bucket %v", fi.Name())
	}
}
