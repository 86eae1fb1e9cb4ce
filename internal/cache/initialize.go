package cache

import (
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/skyline93/bundlecache/internal/fs"
	"github.com/skyline93/bundlecache/internal/layout"
	"github.com/skyline93/bundlecache/internal/task"
)

// InitializeTask rebuilds the record store from the bundle folders on disk.
type InitializeTask struct {
	*task.Task
	step *initializeStep
}

// Recorded returns the number of bundles found intact.
func (t *InitializeTask) Recorded() int { return t.step.recorded }

// Removed returns the number of bundle folders deleted because they failed
// verification.
func (t *InitializeTask) Removed() int { return t.step.removed }

// InitializeAsync returns the task scanning the cache. Bundles whose info
// file is unreadable or whose data file fails verification at the configured
// level (at least Low) are deleted.
func (c *Cache) InitializeAsync() *InitializeTask {
	step := &initializeStep{c: c}
	return &InitializeTask{Task: task.New("InitializeTask", step), step: step}
}

type initializeStep struct {
	c *Cache

	buckets     []string
	bucketCount int
	folders     []bundleFolder

	recorded int
	removed  int
}

func (s *initializeStep) Start(t *task.Task) {
	c := s.c

	if err := c.checkFootprint(); err != nil {
		t.Fail(errors.Wrap(err, "footprint"))
		return
	}

	if err := c.fs.MkdirAll(c.paths.TempRoot(), fs.DirMode); err != nil {
		t.Fail(errors.Wrap(err, "create temp root"))
		return
	}

	buckets, err := c.bucketDirs()
	if err != nil {
		t.Fail(err)
		return
	}
	s.buckets = buckets
	s.bucketCount = len(buckets)
}

func (s *initializeStep) Update(t *task.Task) {
	for budget := s.c.opts.ScanPerTick; budget > 0; budget-- {
		if len(s.folders) == 0 {
			if len(s.buckets) == 0 {
				s.finish(t)
				return
			}

			bucket := s.buckets[0]
			s.buckets = s.buckets[1:]
			folders, err := s.c.bundleFolders(bucket)
			if err != nil {
				t.Fail(err)
				return
			}
			s.folders = folders
			continue
		}

		folder := s.folders[0]
		s.folders = s.folders[1:]
		s.scan(folder)
	}

	if s.bucketCount > 0 {
		t.SetProgress(float64(s.bucketCount-len(s.buckets)) / float64(s.bucketCount))
	}
}

func (s *initializeStep) Abort(t *task.Task) {}

// scan records one bundle folder or deletes it.
func (s *initializeStep) scan(folder bundleFolder) {
	c := s.c
	infoPath := filepath.Join(folder.path, layout.BundleInfoFileName)

	reject := func(reason string) {
		log.WithFields(log.Fields{"guid": folder.guid, "path": folder.path}).Warnf("removing cache folder: %v", reason)
		if err := fs.RemoveAll(c.fs, folder.path); err != nil {
			log.Errorf("unable to remove %v: %v", folder.path, err)
		}
		s.removed++
	}

	if r, ok := c.records.Get(folder.guid); ok {
		if r.folder() == folder.path {
			s.recorded++
			return
		}
		reject("duplicate of " + r.folder())
		return
	}

	dataPath, ok := c.dataFileIn(folder.path)
	if !ok {
		reject("data file missing")
		return
	}

	crc, size, err := readInfoFile(c.fs, infoPath)
	if err != nil {
		reject(err.Error())
		return
	}

	level := c.opts.VerifyLevel
	if level < VerifyLow {
		level = VerifyLow
	}
	if res := VerifyFile(c.fs, dataPath, size, crc, level); !res.Ok() {
		reject(res.String())
		return
	}

	err = c.records.Insert(folder.guid, Record{
		InfoFilePath: infoPath,
		DataFilePath: dataPath,
		DataFileCRC:  crc,
		DataFileSize: size,
	})
	if err != nil {
		reject(err.Error())
		return
	}
	s.recorded++
}

func (s *initializeStep) finish(t *task.Task) {
	s.c.updateGauge()
	log.WithFields(log.Fields{"recorded": s.recorded, "removed": s.removed}).
		Infof("cache %v initialized", s.c.packageName)
	t.Succeed()
}
