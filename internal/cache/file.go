package cache

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/skyline93/bundlecache/internal/fs"
	"github.com/skyline93/bundlecache/internal/layout"
)

// bundleFolder is a directory found below the bundle root.
type bundleFolder struct {
	guid string
	path string
}

// listDirs returns the subdirectories of dir. A missing dir yields no
// entries.
func (c *Cache) listDirs(dir string) ([]os.FileInfo, error) {
	entries, err := afero.ReadDir(c.fs, dir)
	if err != nil {
		if fs.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "ReadDir")
	}

	dirs := entries[:0]
	for _, fi := range entries {
		if fi.IsDir() {
			dirs = append(dirs, fi)
		}
	}
	return dirs, nil
}

// bucketDirs returns the bucket directories below the bundle root.
func (c *Cache) bucketDirs() ([]string, error) {
	entries, err := c.listDirs(c.paths.BundlesRoot())
	if err != nil {
		return nil, err
	}

	var buckets []string
	for _, fi := range entries {
		if len(fi.Name()) != 2 {
			log.Debugf("skipping unexpected directory %v in bundle root", fi.Name())
			continue
		}
		buckets = append(buckets, filepath.Join(c.paths.BundlesRoot(), fi.Name()))
	}
	return buckets, nil
}

// bundleFolders returns the bundle folders of one bucket.
func (c *Cache) bundleFolders(bucket string) ([]bundleFolder, error) {
	entries, err := c.listDirs(bucket)
	if err != nil {
		return nil, err
	}

	folders := make([]bundleFolder, 0, len(entries))
	for _, fi := range entries {
		folders = append(folders, bundleFolder{guid: fi.Name(), path: filepath.Join(bucket, fi.Name())})
	}
	return folders, nil
}

// dataFileIn returns the data file of a bundle folder, with or without an
// extension.
func (c *Cache) dataFileIn(folder string) (string, bool) {
	entries, err := afero.ReadDir(c.fs, folder)
	if err != nil {
		return "", false
	}

	for _, fi := range entries {
		if !fi.Mode().IsRegular() {
			continue
		}
		name := fi.Name()
		if strings.TrimSuffix(name, filepath.Ext(name)) == layout.BundleDataFileName {
			return filepath.Join(folder, name), true
		}
	}
	return "", false
}

// deleteAllBundleFiles removes the bundle root and forgets every record.
func (c *Cache) deleteAllBundleFiles() error {
	c.records.reset()
	c.updateGauge()
	return errors.Wrap(fs.RemoveAll(c.fs, c.paths.BundlesRoot()), "RemoveAll")
}

// deleteAllManifestFiles removes the manifest root.
func (c *Cache) deleteAllManifestFiles() error {
	return errors.Wrap(fs.RemoveAll(c.fs, c.paths.ManifestRoot()), "RemoveAll")
}
