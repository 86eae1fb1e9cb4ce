package bundle

import (
	"fmt"
	"strings"
)

// Type is the build type of a bundle.
type Type uint8

// These are the bundle types a manifest can describe.
const (
	Unknown Type = iota
	Virtual
	AssetBundle
	RawBundle
)

func (t Type) String() string {
	s := "invalid"
	switch t {
	case Unknown:
		s = "unknown"
	case Virtual:
		s = "virtual"
	case AssetBundle:
		s = "asset"
	case RawBundle:
		s = "raw"
	}
	return s
}

// Bundle describes one unit of packaged content. A Bundle is read from a
// manifest and never modified afterwards.
type Bundle struct {
	GUID          string   `json:"guid"`
	Name          string   `json:"name"`
	FileHash      string   `json:"file_hash"`
	FileCRC       string   `json:"file_crc"`
	FileSize      int64    `json:"file_size"`
	FileExtension string   `json:"file_extension,omitempty"`
	Encrypted     bool     `json:"encrypted,omitempty"`
	Type          Type     `json:"type"`
	Tags          []string `json:"tags,omitempty"`
}

// Validate checks the fields the cache relies on for path derivation.
func (b Bundle) Validate() error {
	if b.GUID == "" {
		return fmt.Errorf("bundle %q has no GUID", b.Name)
	}
	if strings.ContainsAny(b.GUID, `/\`) || b.GUID == "." || b.GUID == ".." {
		return fmt.Errorf("invalid GUID %q", b.GUID)
	}
	if len(b.FileHash) < 2 {
		return fmt.Errorf("bundle %v: file hash %q is too short", b.GUID, b.FileHash)
	}
	if b.FileSize < 0 {
		return fmt.Errorf("bundle %v: negative file size %d", b.GUID, b.FileSize)
	}
	return nil
}

// Extension returns the file extension with a leading dot, or "" if unset.
func (b Bundle) Extension() string {
	if b.FileExtension == "" || strings.HasPrefix(b.FileExtension, ".") {
		return b.FileExtension
	}
	return "." + b.FileExtension
}

// HasAnyTag returns true if the bundle carries at least one of tags.
func (b Bundle) HasAnyTag(tags []string) bool {
	for _, want := range tags {
		for _, have := range b.Tags {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Str returns a short description used in log messages.
func (b Bundle) Str() string {
	if b.Name == "" {
		return b.GUID
	}
	return fmt.Sprintf("%s(%s)", b.Name, b.GUID)
}
