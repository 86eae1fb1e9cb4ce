// Package layout derives the on-disk location of every file the bundle cache
// owns. The layout of a package root is
//
//	<root>/bundles/<first 2 chars of FileHash>/<GUID>/data[.ext]
//	<root>/bundles/<first 2 chars of FileHash>/<GUID>/info
//	<root>/temp/<GUID>
//	<root>/manifest/...
//
// Bucketing by hash prefix keeps each bundles/ subdirectory at roughly 1/256
// of the total bundle count.
package layout

import (
	"path/filepath"
	"sync"

	"github.com/skyline93/bundlecache/internal/bundle"
)

// Directory and file names below the package root.
const (
	BundleFilesFolderName   = "bundles"
	ManifestFilesFolderName = "manifest"
	TempFilesFolderName     = "temp"

	BundleDataFileName = "data"
	BundleInfoFileName = "info"
)

// Resolver computes and memoizes bundle paths below a package root. Paths
// are pure functions of the bundle identity, so memoized entries are never
// invalidated.
type Resolver struct {
	root         string
	bundlesRoot  string
	manifestRoot string
	tempRoot     string
	appendExt    bool

	mu        sync.Mutex
	dataPaths map[string]string
	infoPaths map[string]string
	tempPaths map[string]string
}

// New returns a Resolver for root. If appendExt is set, data files carry the
// bundle's file extension.
func New(root string, appendExt bool) *Resolver {
	return &Resolver{
		root:         root,
		bundlesRoot:  filepath.Join(root, BundleFilesFolderName),
		manifestRoot: filepath.Join(root, ManifestFilesFolderName),
		tempRoot:     filepath.Join(root, TempFilesFolderName),
		appendExt:    appendExt,
		dataPaths:    make(map[string]string),
		infoPaths:    make(map[string]string),
		tempPaths:    make(map[string]string),
	}
}

// Root returns the package root.
func (r *Resolver) Root() string { return r.root }

// BundlesRoot returns the directory holding all bucket directories.
func (r *Resolver) BundlesRoot() string { return r.bundlesRoot }

// ManifestRoot returns the directory holding version and manifest files.
func (r *Resolver) ManifestRoot() string { return r.manifestRoot }

// TempRoot returns the directory holding staged downloads.
func (r *Resolver) TempRoot() string { return r.tempRoot }

// ManifestFile returns the path of a file in the manifest directory.
func (r *Resolver) ManifestFile(name string) string {
	return filepath.Join(r.manifestRoot, name)
}

// bucket returns the bucket directory name for b.
func bucket(b bundle.Bundle) string {
	if len(b.FileHash) < 2 {
		panic("FileHash is empty or too short")
	}
	return b.FileHash[:2]
}

// BundleDir returns the directory containing the data and info file of b.
func (r *Resolver) BundleDir(b bundle.Bundle) string {
	return filepath.Join(r.bundlesRoot, bucket(b), b.GUID)
}

// DataFile returns the cached data file path of b.
func (r *Resolver) DataFile(b bundle.Bundle) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.dataPaths[b.GUID]
	if !ok {
		p = filepath.Join(r.bundlesRoot, bucket(b), b.GUID, BundleDataFileName)
		if r.appendExt {
			p += b.Extension()
		}
		r.dataPaths[b.GUID] = p
	}
	return p
}

// InfoFile returns the sidecar info file path of b.
func (r *Resolver) InfoFile(b bundle.Bundle) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.infoPaths[b.GUID]
	if !ok {
		p = filepath.Join(r.bundlesRoot, bucket(b), b.GUID, BundleInfoFileName)
		r.infoPaths[b.GUID] = p
	}
	return p
}

// TempFile returns the staging path used while b is downloaded.
func (r *Resolver) TempFile(b bundle.Bundle) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.tempPaths[b.GUID]
	if !ok {
		p = filepath.Join(r.tempRoot, b.GUID)
		r.tempPaths[b.GUID] = p
	}
	return p
}
