package manifest

import (
	"fmt"
	"sync"

	"github.com/skyline93/bundlecache/internal/bundle"
)

// Manifest lists every bundle of one package version.
type Manifest struct {
	FileVersion    string          `json:"file_version"`
	PackageName    string          `json:"package_name"`
	PackageVersion string          `json:"package_version"`
	Bundles        []bundle.Bundle `json:"bundles"`

	indexOnce sync.Once
	index     map[string]int
}

// FormatVersion is the file version written by Encode.
const FormatVersion = "1"

func (m *Manifest) buildIndex() {
	m.indexOnce.Do(func() {
		m.index = make(map[string]int, len(m.Bundles))
		for i, b := range m.Bundles {
			m.index[b.GUID] = i
		}
	})
}

// Bundle returns the bundle with the given GUID.
func (m *Manifest) Bundle(guid string) (bundle.Bundle, bool) {
	m.buildIndex()
	i, ok := m.index[guid]
	if !ok {
		return bundle.Bundle{}, false
	}
	return m.Bundles[i], true
}

// Has returns true if the manifest references guid.
func (m *Manifest) Has(guid string) bool {
	_, ok := m.Bundle(guid)
	return ok
}

// GUIDs returns the set of all bundle GUIDs in the manifest.
func (m *Manifest) GUIDs() bundle.GUIDSet {
	set := bundle.NewGUIDSet()
	for _, b := range m.Bundles {
		set.Insert(b.GUID)
	}
	return set
}

// BundlesWithTags returns the bundles carrying at least one of tags.
func (m *Manifest) BundlesWithTags(tags []string) []bundle.Bundle {
	var list []bundle.Bundle
	for _, b := range m.Bundles {
		if b.HasAnyTag(tags) {
			list = append(list, b)
		}
	}
	return list
}

// Validate checks that the manifest is usable by the cache.
func (m *Manifest) Validate() error {
	if m.PackageName == "" {
		return fmt.Errorf("manifest has no package name")
	}
	if m.PackageVersion == "" {
		return fmt.Errorf("manifest %v has no package version", m.PackageName)
	}
	seen := bundle.NewGUIDSet()
	for _, b := range m.Bundles {
		if err := b.Validate(); err != nil {
			return err
		}
		if seen.Has(b.GUID) {
			return fmt.Errorf("manifest %v: duplicate bundle %v", m.PackageName, b.GUID)
		}
		seen.Insert(b.GUID)
	}
	return nil
}
