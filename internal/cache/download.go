package cache

import (
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/skyline93/bundlecache/internal/bundle"
	"github.com/skyline93/bundlecache/internal/download"
	"github.com/skyline93/bundlecache/internal/fs"
	"github.com/skyline93/bundlecache/internal/metrics"
	"github.com/skyline93/bundlecache/internal/task"
)

// jobHandle is one reference to a shared download job. It is released at
// most once.
type jobHandle struct {
	job  *download.Job
	once sync.Once
}

func referenceJob(j *download.Job) *jobHandle {
	j.Reference()
	return &jobHandle{job: j}
}

func (h *jobHandle) release() {
	if h == nil {
		return
	}
	h.once.Do(h.job.Release)
}

// DownloadOptions selects where a bundle is fetched from. Empty URLs are
// resolved through the remote services.
type DownloadOptions struct {
	MainURL     string
	FallbackURL string

	// ImportFilePath imports a local file instead of downloading.
	ImportFilePath string
}

// DownloadFileTask fetches one bundle into the cache.
type DownloadFileTask struct {
	*task.Task
	step *downloadStep
}

// DownloadedBytes returns the number of bytes staged so far.
func (t *DownloadFileTask) DownloadedBytes() int64 {
	if t.step == nil || t.step.handle == nil {
		return 0
	}
	return t.step.handle.job.DownloadedBytes()
}

// DownloadFileAsync returns a task downloading b and writing it to the
// cache. The task references the shared transfer for b when it is created
// and releases it exactly once, when it finishes or is aborted. A bundle that
// is cached already succeeds without a transfer.
func (c *Cache) DownloadFileAsync(b bundle.Bundle, opts DownloadOptions) *DownloadFileTask {
	const name = "DownloadFileTask"

	if err := b.Validate(); err != nil {
		return &DownloadFileTask{Task: task.Completed(name, err)}
	}

	step := &downloadStep{c: c, b: b}
	if opts.ImportFilePath != "" {
		step.importPath = opts.ImportFilePath
		return &DownloadFileTask{Task: task.New("ImportFileTask", step), step: step}
	}

	mainURL, fallbackURL := opts.MainURL, opts.FallbackURL
	if mainURL == "" {
		if c.opts.RemoteServices == nil {
			return &DownloadFileTask{Task: task.Completed(name, missingCapability("RemoteServices"))}
		}
		mainURL = c.opts.RemoteServices.RemoteMainURL(b.Name)
		fallbackURL = c.opts.RemoteServices.RemoteFallbackURL(b.Name)
	}

	job := c.center.DownloadAsync(download.Request{
		Key:          b.GUID,
		MainURL:      mainURL,
		FallbackURL:  fallbackURL,
		TempPath:     c.paths.TempFile(b),
		ExpectedSize: b.FileSize,
	})
	step.handle = referenceJob(job)
	return &DownloadFileTask{Task: task.New(name, step), step: step}
}

type downloadStep struct {
	c          *Cache
	b          bundle.Bundle
	handle     *jobHandle
	importPath string
}

func (s *downloadStep) Start(t *task.Task) {
	if s.c.Exists(s.b) {
		s.handle.release()
		t.Succeed()
		return
	}

	if s.importPath != "" {
		staged := s.c.paths.TempFile(s.b)
		if err := s.c.importFile(s.b, s.importPath, staged); err != nil {
			s.fail(t, err)
			return
		}
		s.finish(t, staged)
	}
}

func (s *downloadStep) Update(t *task.Task) {
	if s.handle == nil {
		return
	}

	job := s.handle.job
	if !job.IsDone() {
		t.SetProgress(job.Progress())
		return
	}

	s.handle.release()
	if job.Status() == task.Failed {
		s.fail(t, job.Err())
		return
	}
	s.finish(t, job.TempPath())
}

func (s *downloadStep) Abort(t *task.Task) {
	s.handle.release()
	metrics.DownloadTasks.WithLabelValues(metrics.ResultAborted).Inc()
}

// finish verifies the staged file and writes it to the cache.
func (s *downloadStep) finish(t *task.Task, staged string) {
	c, b := s.c, s.b

	// another observer of the same transfer got here first
	if c.Exists(b) {
		s.succeed(t)
		return
	}

	if res := VerifyFile(c.fs, staged, b.FileSize, b.FileCRC, VerifyHigh); !res.Ok() {
		if err := fs.RemoveIfExists(c.fs, staged); err != nil {
			log.Warnf("unable to remove staged file %v: %v", staged, err)
		}
		s.fail(t, &VerifyError{GUID: b.GUID, Level: VerifyHigh, Result: res})
		return
	}

	if err := c.WriteBundle(b, staged); err != nil {
		s.fail(t, err)
		return
	}

	if err := fs.RemoveIfExists(c.fs, staged); err != nil {
		log.Warnf("unable to remove staged file %v: %v", staged, err)
	}
	s.succeed(t)
}

func (s *downloadStep) succeed(t *task.Task) {
	metrics.DownloadTasks.WithLabelValues(metrics.ResultSuccess).Inc()
	t.Succeed()
}

func (s *downloadStep) fail(t *task.Task, err error) {
	log.WithField("guid", s.b.GUID).Warnf("download of %v failed: %v", s.b.Str(), err)
	metrics.DownloadTasks.WithLabelValues(metrics.ResultErrored).Inc()
	t.Fail(err)
}

// importFile copies a file shipped with the application to the staging
// path.
func (c *Cache) importFile(b bundle.Bundle, src, staged string) error {
	if err := fs.CreateFileDirectory(c.fs, staged); err != nil {
		return errors.Wrap(err, "create temp root")
	}

	if svc := c.opts.CopyLocalFileServices; svc != nil {
		return svc.CopyLocalFile(CopyLocalFileInfo{
			BundleGUID: b.GUID,
			SourcePath: src,
			TargetPath: staged,
		})
	}

	_, err := fs.CopyFile(c.fs, src, staged)
	return err
}
