package cache

import (
	"sort"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordStore(t *testing.T) {
	fsys := afero.NewMemMapFs()
	s := NewRecordStore(fsys)

	rec := Record{
		InfoFilePath: "/root/bundles/aa/g1/info",
		DataFilePath: "/root/bundles/aa/g1/data",
		DataFileCRC:  "00000000",
		DataFileSize: 0,
	}
	stageFile(t, fsys, rec.InfoFilePath, "")
	stageFile(t, fsys, rec.DataFilePath, "")

	assert.False(t, s.Exists("g1"))
	require.NoError(t, s.Insert("g1", rec))
	require.NoError(t, s.Insert("g2", Record{InfoFilePath: "/root/bundles/bb/g2/info"}))

	err := s.Insert("g1", Record{})
	assert.ErrorIs(t, err, ErrAlreadyCached)
	got, ok := s.Get("g1")
	require.True(t, ok)
	assert.Equal(t, rec, got)

	keys := s.Keys()
	sort.Strings(keys)
	assert.Equal(t, []string{"g1", "g2"}, keys)
	assert.Equal(t, 2, s.Len())

	removed, err := s.Remove("g1")
	require.NoError(t, err)
	assert.True(t, removed)
	exists, _ := afero.DirExists(fsys, "/root/bundles/aa/g1")
	assert.False(t, exists)

	removed, err = s.Remove("g1")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, 1, s.Len())
}
