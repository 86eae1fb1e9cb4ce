package fs

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFileMem(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/src", []byte("hello"), FileMode))
	require.NoError(t, CreateFileDirectory(fsys, "/a/b/dst"))

	n, err := CopyFile(fsys, "/src", "/a/b/dst")
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)

	data, err := ReadFile(fsys, "/a/b/dst")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestCopyFileMissingSource(t *testing.T) {
	fsys := afero.NewMemMapFs()
	_, err := CopyFile(fsys, "/missing", "/dst")
	assert.Error(t, err)
	assert.False(t, Exists(fsys, "/dst"))
}

func TestRemoveIfExists(t *testing.T) {
	fsys := afero.NewMemMapFs()
	assert.NoError(t, RemoveIfExists(fsys, "/nope"))

	require.NoError(t, WriteFile(fsys, "/f", []byte("x")))
	assert.True(t, Exists(fsys, "/f"))
	assert.NoError(t, RemoveIfExists(fsys, "/f"))
	assert.False(t, Exists(fsys, "/f"))
}

func TestWriteFileAndSyncDirLocal(t *testing.T) {
	fsys := Local()
	dir := t.TempDir()
	name := filepath.Join(dir, "file")

	require.NoError(t, WriteFile(fsys, name, []byte("first")))
	require.NoError(t, WriteFile(fsys, name, []byte("2")))
	require.NoError(t, SyncDir(fsys, dir))

	data, err := ReadFile(fsys, name)
	require.NoError(t, err)
	assert.Equal(t, "2", string(data))
	assert.True(t, DirExists(fsys, dir))
	assert.False(t, DirExists(fsys, name))
}
