package bundle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBundleValidate(t *testing.T) {
	good := Bundle{GUID: "a1", FileHash: "ab12", FileSize: 3}
	require.NoError(t, good.Validate())

	for name, b := range map[string]Bundle{
		"no guid":       {FileHash: "ab"},
		"slash in guid": {GUID: "a/b", FileHash: "ab"},
		"dotdot guid":   {GUID: "..", FileHash: "ab"},
		"short hash":    {GUID: "a1", FileHash: "a"},
		"negative size": {GUID: "a1", FileHash: "ab", FileSize: -1},
	} {
		assert.Error(t, b.Validate(), name)
	}
}

func TestBundleExtension(t *testing.T) {
	assert.Equal(t, "", Bundle{}.Extension())
	assert.Equal(t, ".bundle", Bundle{FileExtension: "bundle"}.Extension())
	assert.Equal(t, ".bundle", Bundle{FileExtension: ".bundle"}.Extension())
}

func TestBundleHasAnyTag(t *testing.T) {
	b := Bundle{Tags: []string{"ui", "level1"}}
	assert.True(t, b.HasAnyTag([]string{"level1"}))
	assert.True(t, b.HasAnyTag([]string{"x", "ui"}))
	assert.False(t, b.HasAnyTag([]string{"x"}))
	assert.False(t, b.HasAnyTag(nil))
}

func TestGUIDSet(t *testing.T) {
	s := NewGUIDSet("c", "a")
	s.Insert("b")
	assert.True(t, s.Has("a"))
	assert.Equal(t, []string{"a", "b", "c"}, s.List())

	s.Delete("a")
	assert.False(t, s.Has("a"))
}
