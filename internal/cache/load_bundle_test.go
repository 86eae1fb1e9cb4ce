package cache

import (
	"path"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyline93/bundlecache/internal/bundle"
	"github.com/skyline93/bundlecache/internal/task"
)

// fakeDecryption prefixes the file content instead of decrypting it.
type fakeDecryption struct {
	fsys       afero.Fs
	failLoad   bool
	fallbackOK bool
	calls      []string
}

func (d *fakeDecryption) ReadFileData(info DecryptFileInfo) ([]byte, error) {
	d.calls = append(d.calls, "ReadFileData")
	data, err := afero.ReadFile(d.fsys, info.FileLoadPath)
	if err != nil {
		return nil, err
	}
	return append([]byte("plain:"), data...), nil
}

func (d *fakeDecryption) ReadFileText(info DecryptFileInfo) (string, error) {
	data, err := d.ReadFileData(info)
	return string(data), err
}

func (d *fakeDecryption) LoadBundle(info DecryptFileInfo) (DecryptResult, error) {
	d.calls = append(d.calls, "LoadBundle")
	if d.failLoad {
		return DecryptResult{}, errors.New("decrypt failed")
	}
	data, err := afero.ReadFile(d.fsys, info.FileLoadPath)
	return DecryptResult{Data: data}, err
}

func (d *fakeDecryption) LoadBundleAsync(info DecryptFileInfo) (DecryptResult, error) {
	return d.LoadBundle(info)
}

func (d *fakeDecryption) LoadBundleFallback(info DecryptFileInfo) (DecryptResult, error) {
	d.calls = append(d.calls, "LoadBundleFallback")
	if !d.fallbackOK {
		return DecryptResult{}, errors.New("fallback failed")
	}
	data, err := afero.ReadFile(d.fsys, info.FileLoadPath)
	return DecryptResult{Data: data}, err
}

func TestLoadBundleAsset(t *testing.T) {
	c := newTestCache(t, afero.NewMemMapFs(), NewOptions())
	b := testBundle("asset", "bytes")
	writeBundle(t, c, b, "bytes")

	tk := c.LoadBundleFile(b)
	require.NoError(t, runTask(t, c, tk.Task))
	assert.Equal(t, "bytes", string(tk.Result().Data))
	assert.Equal(t, c.BundleFilePath(b), tk.Result().Path)
}

func TestLoadBundleRaw(t *testing.T) {
	c := newTestCache(t, afero.NewMemMapFs(), NewOptions())
	b := testBundle("raw", "raw bytes")
	b.Type = bundle.RawBundle
	writeBundle(t, c, b, "raw bytes")

	tk := c.LoadBundleFile(b)
	require.NoError(t, runTask(t, c, tk.Task))
	assert.Equal(t, c.BundleFilePath(b), tk.Result().Path)
	assert.Nil(t, tk.Result().Data)
}

func TestLoadBundleUnsupportedType(t *testing.T) {
	c := newTestCache(t, afero.NewMemMapFs(), NewOptions())
	b := testBundle("virtual", "x")
	b.Type = bundle.Virtual

	tk := c.LoadBundleFile(b)
	assert.Equal(t, task.Failed, tk.Status())
	assert.Contains(t, tk.Error(), "virtual")
	assert.Equal(t, LoadResult{}, tk.Result())
}

func TestLoadBundleEncryptedWithoutCapability(t *testing.T) {
	c := newTestCache(t, afero.NewMemMapFs(), NewOptions())
	b := testBundle("enc", "x")
	b.Encrypted = true
	writeBundle(t, c, b, "x")

	tk := c.LoadBundleFile(b)
	assert.ErrorIs(t, runTask(t, c, tk.Task), ErrMissingCapability)
	assert.True(t, c.Exists(b))
}

func TestLoadBundleEncryptedFallback(t *testing.T) {
	fsys := afero.NewMemMapFs()
	dec := &fakeDecryption{fsys: fsys, failLoad: true, fallbackOK: true}
	opts := NewOptions()
	opts.DecryptionServices = dec
	c := newTestCache(t, fsys, opts)

	b := testBundle("enc", "cipher")
	b.Encrypted = true
	writeBundle(t, c, b, "cipher")

	tk := c.LoadBundleFile(b)
	require.NoError(t, runTask(t, c, tk.Task))
	assert.Equal(t, "cipher", string(tk.Result().Data))
	assert.Equal(t, []string{"LoadBundle", "LoadBundleFallback"}, dec.calls)
}

func TestLoadBundleFailureKeepsIntactRecord(t *testing.T) {
	fsys := afero.NewMemMapFs()
	opts := NewOptions()
	opts.DecryptionServices = &fakeDecryption{fsys: fsys, failLoad: true}
	c := newTestCache(t, fsys, opts)

	b := testBundle("enc", "cipher")
	b.Encrypted = true
	writeBundle(t, c, b, "cipher")

	err := runTask(t, c, c.LoadBundleFile(b).Task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrVerifyMismatch)
	assert.True(t, c.Exists(b))
}

func TestLoadBundleFailureRemovesCorruptRecord(t *testing.T) {
	fsys := afero.NewMemMapFs()
	opts := NewOptions()
	opts.DecryptionServices = &fakeDecryption{fsys: fsys, failLoad: true}
	c := newTestCache(t, fsys, opts)

	b := testBundle("enc", "cipher")
	b.Encrypted = true
	writeBundle(t, c, b, "cipher")
	stageFile(t, fsys, c.BundleFilePath(b), "CIPHER")

	err := runTask(t, c, c.LoadBundleFile(b).Task)
	assert.ErrorIs(t, err, ErrVerifyMismatch)
	assert.False(t, c.Exists(b))
	exists, _ := afero.DirExists(fsys, c.Paths().BundleDir(b))
	assert.False(t, exists)
}

func TestLoadBundleDownloadsFirst(t *testing.T) {
	fsys := afero.NewMemMapFs()
	c, _ := newRemoteCache(t, fsys, nil)
	b := testBundle("remote", "remote bytes")
	stageFile(t, fsys, path.Join(mirrorDir, b.Name), "remote bytes")

	tk := c.LoadBundleFile(b)
	require.NoError(t, runTask(t, c, tk.Task))
	assert.Equal(t, "remote bytes", string(tk.Result().Data))
	assert.True(t, c.Exists(b))
	require.Len(t, tk.Children(), 1)
}

func TestLoadBundleAbortAbortsDownload(t *testing.T) {
	fsys := afero.NewMemMapFs()
	c, center := newRemoteCache(t, fsys, stallFetcher{})
	b := testBundle("remote", "remote bytes")

	tk := c.LoadBundleFile(b)
	c.Start(tk.Task)
	c.Update()
	c.Update()
	require.Len(t, tk.Children(), 1)

	tk.Abort()
	center.Wait()
	assert.ErrorIs(t, tk.Children()[0].Err(), task.ErrAborted)
	assert.EqualValues(t, 1, center.Aborts())
}
