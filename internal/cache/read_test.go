package cache

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadBundle(t *testing.T) {
	c := newTestCache(t, afero.NewMemMapFs(), NewOptions())
	b := testBundle("plain", "text content")

	_, err := c.ReadBundleData(b)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.ReadBundleText(b)
	assert.ErrorIs(t, err, ErrNotFound)

	writeBundle(t, c, b, "text content")

	data, err := c.ReadBundleData(b)
	require.NoError(t, err)
	assert.Equal(t, "text content", string(data))

	text, err := c.ReadBundleText(b)
	require.NoError(t, err)
	assert.Equal(t, "text content", text)
}

func TestReadEncryptedBundle(t *testing.T) {
	fsys := afero.NewMemMapFs()
	c := newTestCache(t, fsys, NewOptions())
	b := testBundle("enc", "secret")
	b.Encrypted = true
	writeBundle(t, c, b, "secret")

	_, err := c.ReadBundleData(b)
	assert.ErrorIs(t, err, ErrMissingCapability)
	_, err = c.ReadBundleText(b)
	assert.ErrorIs(t, err, ErrMissingCapability)

	opts := NewOptions()
	opts.DecryptionServices = &fakeDecryption{fsys: fsys}
	c = newTestCache(t, fsys, opts)
	writeBundle(t, c, b, "secret")

	data, err := c.ReadBundleData(b)
	require.NoError(t, err)
	assert.Equal(t, "plain:secret", string(data))

	text, err := c.ReadBundleText(b)
	require.NoError(t, err)
	assert.Equal(t, "plain:secret", text)
}

func TestReadBundleAfterExtensionSettingChanged(t *testing.T) {
	fsys := afero.NewMemMapFs()
	opts := NewOptions()
	opts.AppendFileExtension = true

	first := newTestCache(t, fsys, opts)
	b := testBundle("ext", "payload")
	b.FileExtension = ".rawfile"
	writeBundle(t, first, b, "payload")

	c := newTestCache(t, fsys, NewOptions())
	op := c.InitializeAsync()
	require.NoError(t, runTask(t, c, op.Task))

	rec, ok := c.Record(b)
	require.True(t, ok)
	assert.Equal(t, rec.DataFilePath, c.BundleFilePath(b))
	assert.True(t, c.Exists(b))
	assert.Equal(t, VerifySucceed, c.Verify(b, VerifyHigh))

	data, err := c.ReadBundleData(b)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}
