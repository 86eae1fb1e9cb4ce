package cache

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/skyline93/bundlecache/internal/bundle"
	"github.com/skyline93/bundlecache/internal/fs"
	"github.com/skyline93/bundlecache/internal/task"
)

// LoadResult is the outcome of loading a bundle. Raw bundles are handed out
// by path, asset bundles by content.
type LoadResult struct {
	Path string
	Data []byte
}

// LoadBundleTask loads one bundle, downloading it first if needed.
type LoadBundleTask struct {
	*task.Task
	step *loadBundleStep
}

// Result returns the loaded bundle once the task succeeded.
func (t *LoadBundleTask) Result() LoadResult {
	if t.step == nil {
		return LoadResult{}
	}
	return t.step.result
}

// LoadBundleFile returns a task loading b. Only asset and raw bundles are
// supported.
func (c *Cache) LoadBundleFile(b bundle.Bundle) *LoadBundleTask {
	const name = "LoadBundleTask"

	if b.Type != bundle.AssetBundle && b.Type != bundle.RawBundle {
		err := errors.Errorf("load bundle type %v is not supported", b.Type)
		return &LoadBundleTask{Task: task.Completed(name, err)}
	}

	step := &loadBundleStep{c: c, b: b}
	return &LoadBundleTask{Task: task.New(name, step), step: step}
}

type loadBundleStep struct {
	c        *Cache
	b        bundle.Bundle
	download *DownloadFileTask
	result   LoadResult
}

func (s *loadBundleStep) Start(t *task.Task) {
	if s.b.Encrypted && s.b.Type == bundle.AssetBundle && s.c.opts.DecryptionServices == nil {
		t.Fail(missingCapability("DecryptionServices"))
		return
	}

	if !s.c.Exists(s.b) {
		s.download = s.c.DownloadFileAsync(s.b, DownloadOptions{})
		t.Spawn(s.download.Task)
	}
}

func (s *loadBundleStep) Update(t *task.Task) {
	if s.download != nil {
		s.download.Update()
		if !s.download.IsDone() {
			t.SetProgress(s.download.Progress())
			return
		}
		if err := s.download.Err(); err != nil {
			t.Fail(err)
			return
		}
	}

	res, err := s.load()
	if err != nil {
		s.handleFailure(t, err)
		return
	}
	s.result = res
	t.Succeed()
}

func (s *loadBundleStep) Abort(t *task.Task) {}

func (s *loadBundleStep) load() (LoadResult, error) {
	c, b := s.c, s.b
	path := c.BundleFilePath(b)

	if b.Type == bundle.RawBundle {
		if !fs.Exists(c.fs, path) {
			return LoadResult{}, errors.Errorf("raw bundle file %v does not exist", path)
		}
		return LoadResult{Path: path}, nil
	}

	if b.Encrypted {
		res, err := c.LoadEncryptedBundle(b, LoadSync)
		if err != nil {
			log.WithField("guid", b.GUID).Warnf("load failed, trying fallback: %v", err)
			res, err = c.LoadEncryptedBundle(b, LoadFallback)
		}
		if err != nil {
			return LoadResult{}, err
		}
		return LoadResult{Path: path, Data: res.Data}, nil
	}

	data, err := fs.ReadFile(c.fs, path)
	if err != nil {
		return LoadResult{}, err
	}
	return LoadResult{Path: path, Data: data}, nil
}

// handleFailure verifies the cached copy after a failed load. A corrupt copy
// is deleted so that the next load downloads it again.
func (s *loadBundleStep) handleFailure(t *task.Task, loadErr error) {
	c, b := s.c, s.b

	res := c.Verify(b, VerifyHigh)
	if res.Ok() {
		t.Fail(errors.Wrapf(loadErr, "load %v", b.Str()))
		return
	}

	if _, err := c.DeleteBundle(b.GUID); err != nil {
		log.Errorf("unable to delete corrupt bundle %v: %v", b.GUID, err)
	}
	log.WithField("guid", b.GUID).Warnf("removed corrupt cache file: %v", res)
	t.Fail(&VerifyError{GUID: b.GUID, Level: VerifyHigh, Result: res})
}
