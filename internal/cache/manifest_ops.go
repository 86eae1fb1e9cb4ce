package cache

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/skyline93/bundlecache/internal/download"
	"github.com/skyline93/bundlecache/internal/fs"
	"github.com/skyline93/bundlecache/internal/manifest"
	"github.com/skyline93/bundlecache/internal/task"
)

// fileRequest fetches a small package file through the download center.
type fileRequest struct {
	c        *Cache
	handle   *jobHandle
	fileName string
}

// requestFile starts the transfer of fileName from the remote services.
// query is appended to both URLs.
func (c *Cache) requestFile(fileName, query string) *fileRequest {
	remote := c.opts.RemoteServices
	job := c.center.DownloadAsync(download.Request{
		Key:         c.packageName + "/" + fileName,
		MainURL:     remote.RemoteMainURL(fileName) + query,
		FallbackURL: remote.RemoteFallbackURL(fileName) + query,
		TempPath:    filepath.Join(c.paths.TempRoot(), fileName+"."+uuid.NewString()),
	})
	return &fileRequest{c: c, handle: referenceJob(job), fileName: fileName}
}

// poll returns the content of the file once the transfer finished. done is
// false while the transfer is running. The staged file is shared by every
// observer of the job and removed by the last one.
func (r *fileRequest) poll() (data []byte, done bool, err error) {
	job := r.handle.job
	if !job.IsDone() {
		return nil, false, nil
	}

	if job.Status() == task.Failed {
		err = errors.Wrapf(job.Err(), "request %v", r.fileName)
	} else {
		data, err = fs.ReadFile(r.c.fs, job.TempPath())
	}
	r.release()
	return data, true, err
}

// release drops the job reference and removes the staged file of a finished
// job nobody observes any more.
func (r *fileRequest) release() {
	if r == nil {
		return
	}
	r.handle.release()

	job := r.handle.job
	if job.IsDone() && job.Refs() == 0 {
		if err := fs.RemoveIfExists(r.c.fs, job.TempPath()); err != nil {
			log.Warnf("unable to remove %v: %v", job.TempPath(), err)
		}
	}
}

// deadline reports whether a timeout started at start expired.
type deadline struct {
	at time.Time
}

func newDeadline(timeout time.Duration) deadline {
	if timeout <= 0 {
		return deadline{}
	}
	return deadline{at: time.Now().Add(timeout)}
}

func (d deadline) expired() bool {
	return !d.at.IsZero() && time.Now().After(d.at)
}

// RequestVersionTask fetches the latest package version.
type RequestVersionTask struct {
	*task.Task
	step *requestVersionStep
}

// Version returns the fetched version once the task succeeded.
func (t *RequestVersionTask) Version() string {
	if t.step == nil {
		return ""
	}
	return t.step.version
}

// RequestPackageVersionAsync returns a task fetching the version file of the
// package. appendTimeTicks adds a query defeating intermediate caches. The
// task fails with ErrTimeout when timeout elapses first.
func (c *Cache) RequestPackageVersionAsync(appendTimeTicks bool, timeout time.Duration) *RequestVersionTask {
	const name = "RequestVersionTask"
	if c.opts.RemoteServices == nil {
		return &RequestVersionTask{Task: task.Completed(name, missingCapability("RemoteServices"))}
	}

	step := &requestVersionStep{c: c, appendTimeTicks: appendTimeTicks, timeout: timeout}
	return &RequestVersionTask{Task: task.New(name, step), step: step}
}

type requestVersionStep struct {
	c               *Cache
	appendTimeTicks bool
	timeout         time.Duration

	deadline deadline
	req      *fileRequest
	version  string
}

func (s *requestVersionStep) Start(t *task.Task) {
	query := ""
	if s.appendTimeTicks {
		query = fmt.Sprintf("?t=%d", time.Now().UnixNano())
	}
	s.deadline = newDeadline(s.timeout)
	s.req = s.c.requestFile(manifest.VersionFileName(s.c.packageName), query)
}

func (s *requestVersionStep) Update(t *task.Task) {
	data, done, err := s.req.poll()
	if !done {
		if s.deadline.expired() {
			s.req.release()
			t.Fail(errors.Wrapf(ErrTimeout, "request package version after %v", s.timeout))
		}
		return
	}
	if err != nil {
		t.Fail(err)
		return
	}

	version := strings.TrimSpace(string(data))
	if version == "" {
		t.Fail(errors.New("remote package version is empty"))
		return
	}
	s.version = version
	t.Succeed()
}

func (s *requestVersionStep) Abort(t *task.Task) {
	s.req.release()
}

// LoadManifestTask loads the manifest of one package version.
type LoadManifestTask struct {
	*task.Task
	step *loadManifestStep
}

// Manifest returns the loaded manifest once the task succeeded.
func (t *LoadManifestTask) Manifest() *manifest.Manifest {
	if t.step == nil {
		return nil
	}
	return t.step.manifest
}

// LoadPackageManifestAsync returns a task loading the manifest of version.
// A cached manifest whose SHA-256 matches its hash file is used as is;
// otherwise the hash and the manifest are downloaded, checked and persisted.
func (c *Cache) LoadPackageManifestAsync(version string, timeout time.Duration) *LoadManifestTask {
	const name = "LoadManifestTask"
	if c.opts.ManifestServices == nil {
		return &LoadManifestTask{Task: task.Completed(name, missingCapability("ManifestServices"))}
	}
	if version == "" {
		return &LoadManifestTask{Task: task.Completed(name, errors.New("package version is empty"))}
	}

	step := &loadManifestStep{c: c, version: version, timeout: timeout}
	return &LoadManifestTask{Task: task.New(name, step), step: step}
}

type loadManifestStep struct {
	c       *Cache
	version string
	timeout time.Duration

	deadline deadline
	req      *fileRequest
	haveHash bool
	hash     []byte
	manifest *manifest.Manifest
}

func (s *loadManifestStep) hashPath() string {
	return s.c.paths.ManifestFile(manifest.HashFileName(s.c.packageName, s.version))
}

func (s *loadManifestStep) manifestPath() string {
	return s.c.paths.ManifestFile(manifest.FileName(s.c.packageName, s.version))
}

func (s *loadManifestStep) Start(t *task.Task) {
	c := s.c

	if m, ok := s.loadCached(); ok {
		s.manifest = m
		t.Succeed()
		return
	}

	if c.opts.RemoteServices == nil {
		t.Fail(missingCapability("RemoteServices"))
		return
	}

	s.deadline = newDeadline(s.timeout)
	s.req = c.requestFile(manifest.HashFileName(c.packageName, s.version), "")
}

// loadCached decodes the manifest from the manifest root if it matches its
// hash file. Stale files are removed.
func (s *loadManifestStep) loadCached() (*manifest.Manifest, bool) {
	c := s.c
	hash, err := fs.ReadFile(c.fs, s.hashPath())
	if err != nil {
		return nil, false
	}
	data, err := fs.ReadFile(c.fs, s.manifestPath())
	if err == nil && manifest.MatchHash(data, hash) {
		m, err := c.opts.ManifestServices.DecodeManifest(data)
		if err == nil {
			return m, true
		}
		log.Warnf("unable to decode cached manifest %v: %v", s.version, err)
	}

	log.Infof("removing stale manifest files of version %v", s.version)
	for _, path := range []string{s.hashPath(), s.manifestPath()} {
		if err := fs.RemoveIfExists(c.fs, path); err != nil {
			log.Warnf("unable to remove stale manifest file %v: %v", path, err)
		}
	}
	return nil, false
}

func (s *loadManifestStep) Update(t *task.Task) {
	c := s.c

	data, done, err := s.req.poll()
	if !done {
		if s.deadline.expired() {
			s.req.release()
			t.Fail(errors.Wrapf(ErrTimeout, "load manifest %v after %v", s.version, s.timeout))
		}
		return
	}
	if err != nil {
		t.Fail(err)
		return
	}

	if !s.haveHash {
		s.haveHash = true
		s.hash = data
		t.SetProgress(0.5)
		s.req = c.requestFile(manifest.FileName(c.packageName, s.version), "")
		return
	}

	if !manifest.MatchHash(data, s.hash) {
		t.Fail(errors.Errorf("manifest %v does not match its hash", s.version))
		return
	}

	m, err := c.opts.ManifestServices.DecodeManifest(data)
	if err != nil {
		t.Fail(errors.Wrap(err, "decode manifest"))
		return
	}

	if err := s.persist(data); err != nil {
		t.Fail(err)
		return
	}
	s.manifest = m
	t.Succeed()
}

func (s *loadManifestStep) persist(data []byte) error {
	c := s.c
	if err := c.fs.MkdirAll(c.paths.ManifestRoot(), fs.DirMode); err != nil {
		return errors.Wrap(err, "create manifest root")
	}
	if err := fs.WriteFile(c.fs, s.manifestPath(), data); err != nil {
		return errors.Wrap(err, "write manifest")
	}
	return errors.Wrap(fs.WriteFile(c.fs, s.hashPath(), s.hash), "write manifest hash")
}

func (s *loadManifestStep) Abort(t *task.Task) {
	s.req.release()
}
