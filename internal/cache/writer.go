package cache

import (
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/skyline93/bundlecache/internal/bundle"
	"github.com/skyline93/bundlecache/internal/fs"
	"github.com/skyline93/bundlecache/internal/metrics"
)

// WriteBundle moves the complete file at stagedPath into the cache and
// registers b. The steps run in this order:
//
//  1. remove stale info and data files of b
//  2. create the bundle directory
//  3. copy the staged file to the data file
//  4. write the info file
//  5. insert the record
//
// A failure before step 5 leaves b unrecorded. Files written so far are not
// rolled back; they are overwritten by the next write of b or removed by a
// clear. Registering a bundle that already has a record fails with
// ErrAlreadyCached before any file is touched.
func (c *Cache) WriteBundle(b bundle.Bundle, stagedPath string) error {
	if c.records.Exists(b.GUID) {
		return errors.Wrapf(ErrAlreadyCached, "bundle %v", b.GUID)
	}

	infoPath := c.paths.InfoFile(b)
	dataPath := c.paths.DataFile(b)

	fail := func(op, path string, err error) error {
		log.WithFields(log.Fields{"guid": b.GUID, "path": path}).Errorf("failed to write cache file: %s: %v", op, err)
		return &IOError{Op: op, Path: path, Err: err}
	}

	if err := fs.RemoveIfExists(c.fs, infoPath); err != nil {
		return fail("remove", infoPath, err)
	}
	if err := fs.RemoveIfExists(c.fs, dataPath); err != nil {
		return fail("remove", dataPath, err)
	}

	if err := fs.CreateFileDirectory(c.fs, dataPath); err != nil {
		return fail("mkdir", filepath.Dir(dataPath), err)
	}

	if _, err := fs.CopyFile(c.fs, stagedPath, dataPath); err != nil {
		return fail("copy", dataPath, err)
	}

	if err := c.info.Write(c.fs, infoPath, b.FileCRC, b.FileSize); err != nil {
		return fail("write", infoPath, err)
	}

	if err := fs.SyncDir(c.fs, filepath.Dir(dataPath)); err != nil {
		log.Debugf("unable to sync %v: %v", filepath.Dir(dataPath), err)
	}

	err := c.records.Insert(b.GUID, Record{
		InfoFilePath: infoPath,
		DataFilePath: dataPath,
		DataFileCRC:  b.FileCRC,
		DataFileSize: b.FileSize,
	})
	if err != nil {
		return err
	}

	metrics.RecordsWritten.WithLabelValues(c.packageName).Inc()
	c.updateGauge()
	log.WithField("guid", b.GUID).Debugf("cached %v", b.Str())
	return nil
}
