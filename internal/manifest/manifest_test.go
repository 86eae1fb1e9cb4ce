package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyline93/bundlecache/internal/bundle"
)

func testManifest() *Manifest {
	return &Manifest{
		PackageName:    "DefaultPackage",
		PackageVersion: "v1",
		Bundles: []bundle.Bundle{
			{GUID: "a", Name: "a.bundle", FileHash: "aa11", FileCRC: "00000001", FileSize: 1, Tags: []string{"ui"}},
			{GUID: "b", Name: "b.bundle", FileHash: "bb22", FileCRC: "00000002", FileSize: 2, Type: bundle.RawBundle},
		},
	}
}

func TestManifestLookup(t *testing.T) {
	m := testManifest()
	b, ok := m.Bundle("b")
	require.True(t, ok)
	assert.Equal(t, "b.bundle", b.Name)
	assert.False(t, m.Has("c"))
	assert.Equal(t, []string{"a", "b"}, m.GUIDs().List())

	tagged := m.BundlesWithTags([]string{"ui"})
	require.Len(t, tagged, 1)
	assert.Equal(t, "a", tagged[0].GUID)
}

func TestManifestValidateDuplicate(t *testing.T) {
	m := testManifest()
	m.Bundles = append(m.Bundles, m.Bundles[0])
	assert.Error(t, m.Validate())
}

func TestCodecRoundTrip(t *testing.T) {
	c := NewCodec()
	data, err := c.Encode(testManifest())
	require.NoError(t, err)
	assert.EqualValues(t, formatZstd, data[0])

	m, err := c.DecodeManifest(data)
	require.NoError(t, err)
	assert.Equal(t, "v1", m.PackageVersion)
	assert.Equal(t, FormatVersion, m.FileVersion)
	assert.Len(t, m.Bundles, 2)
	assert.Equal(t, bundle.RawBundle, m.Bundles[1].Type)
}

func TestCodecAcceptsJSON(t *testing.T) {
	m, err := NewCodec().DecodeManifest([]byte(`{"package_name":"p","package_version":"2","bundles":[]}`))
	require.NoError(t, err)
	assert.Equal(t, "2", m.PackageVersion)
}

func TestCodecRejectsGarbage(t *testing.T) {
	c := NewCodec()
	_, err := c.DecodeManifest(nil)
	assert.Error(t, err)
	_, err = c.DecodeManifest([]byte{0x7f, 1, 2})
	assert.Error(t, err)
}

func TestHash(t *testing.T) {
	data := []byte("manifest")
	h := Hash(data)
	assert.Len(t, h, 64)
	assert.True(t, MatchHash(data, []byte(h+"\n")))
	assert.False(t, MatchHash([]byte("other"), []byte(h)))
}

func TestNaming(t *testing.T) {
	assert.Equal(t, "pkg.version", VersionFileName("pkg"))
	assert.Equal(t, "pkg_v1.hash", HashFileName("pkg", "v1"))
	assert.Equal(t, "pkg_v1.bytes", FileName("pkg", "v1"))
}
