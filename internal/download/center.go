// Package download is the transport collaborator of the bundle cache. It
// starts, deduplicates, reference-counts and aborts transfers; the bytes are
// moved by a Fetcher on goroutines owned by the Center.
package download

import (
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/skyline93/bundlecache/internal/fs"
	"github.com/skyline93/bundlecache/internal/task"
	"golang.org/x/sync/errgroup"
)

// Options bundles the transfer limits of a Center.
type Options struct {
	// MaxConcurrency limits the number of transfers running at once.
	MaxConcurrency int
	// MaxRequestsPerTick limits how many pending transfers Update starts.
	MaxRequestsPerTick int
	// ResumeMinimumSize is the smallest expected size for which a partial
	// staged file is resumed instead of restarted.
	ResumeMinimumSize int64
	// ResumeResponseCodes lists the response codes after which a partial
	// staged file is kept for resuming.
	ResumeResponseCodes []int
	// MaxRetries is the number of additional attempts after a failure.
	MaxRetries int
	// RetryInterval is the initial backoff between attempts.
	RetryInterval time.Duration
}

// NewOptions returns the default transfer options.
func NewOptions() Options {
	return Options{
		MaxConcurrency:     math.MaxInt32,
		MaxRequestsPerTick: math.MaxInt32,
		ResumeMinimumSize:  math.MaxInt64,
		MaxRetries:         3,
		RetryInterval:      500 * time.Millisecond,
	}
}

// Request describes one transfer.
type Request struct {
	// Key identifies the transfer; requests with the same key share a job
	// while it is unfinished.
	Key         string
	MainURL     string
	FallbackURL string
	// TempPath is where the staged file is written.
	TempPath string
	// ExpectedSize is checked after the transfer when larger than zero.
	ExpectedSize int64
}

// ErrSizeMismatch is returned when a finished transfer has the wrong length.
var ErrSizeMismatch = errors.New("downloaded size mismatch")

// Center runs transfers.
type Center struct {
	fs      fs.FS
	fetcher Fetcher
	opts    Options

	mu      sync.Mutex
	jobs    map[string]*Job
	pending []*Job
	running int
	// staging holds the temp paths written by live transfer goroutines,
	// including aborted ones that have not returned yet.
	staging map[string]struct{}

	wg     errgroup.Group
	aborts atomic.Int64
}

// NewCenter returns a Center writing staged files to fsys.
func NewCenter(fsys fs.FS, fetcher Fetcher, opts Options) *Center {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = math.MaxInt32
	}
	if opts.MaxRequestsPerTick <= 0 {
		opts.MaxRequestsPerTick = math.MaxInt32
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 500 * time.Millisecond
	}
	return &Center{
		fs:      fsys,
		fetcher: fetcher,
		opts:    opts,
		jobs:    make(map[string]*Job),
		staging: make(map[string]struct{}),
	}
}

// DownloadAsync returns the unfinished job for req.Key, or queues a new one.
// The returned job is not referenced; observers must call Reference.
func (c *Center) DownloadAsync(req Request) *Job {
	c.mu.Lock()
	defer c.mu.Unlock()

	if j, ok := c.jobs[req.Key]; ok && !j.IsDone() {
		return j
	}

	j := &Job{req: req, center: c}
	c.jobs[req.Key] = j
	c.pending = append(c.pending, j)
	log.WithField("key", req.Key).Debug("download queued")
	return j
}

// Update starts pending transfers within the configured limits and forgets
// finished jobs.
func (c *Center) Update() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, j := range c.jobs {
		if j.IsDone() {
			delete(c.jobs, key)
		}
	}

	var deferred []*Job
	started := 0
	for len(c.pending) > 0 && started < c.opts.MaxRequestsPerTick && c.running < c.opts.MaxConcurrency {
		j := c.pending[0]
		c.pending[0] = nil
		c.pending = c.pending[1:]

		temp := j.req.TempPath
		if _, busy := c.staging[temp]; busy {
			// a previous transfer still writes the same staged file
			if !j.IsDone() {
				deferred = append(deferred, j)
			}
			continue
		}

		ctx, ok := j.begin()
		if !ok {
			continue
		}

		c.running++
		started++
		c.staging[temp] = struct{}{}
		c.wg.Go(func() error {
			err := c.transfer(ctx, j)
			j.complete(err)

			c.mu.Lock()
			c.running--
			delete(c.staging, temp)
			c.mu.Unlock()
			return nil
		})
	}
	c.pending = append(deferred, c.pending...)
}

// Running returns the number of transfers currently in flight.
func (c *Center) Running() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// AbortAll aborts every unfinished job exactly once.
func (c *Center) AbortAll() {
	c.mu.Lock()
	jobs := make([]*Job, 0, len(c.jobs))
	for _, j := range c.jobs {
		jobs = append(jobs, j)
	}
	c.jobs = make(map[string]*Job)
	c.pending = nil
	c.mu.Unlock()

	for _, j := range jobs {
		j.abort()
	}
}

// Aborts returns how many transfers have been aborted so far.
func (c *Center) Aborts() int64 {
	return c.aborts.Load()
}

// Wait blocks until all transfer goroutines have returned.
func (c *Center) Wait() {
	_ = c.wg.Wait()
}

func (c *Center) resumable(err error) bool {
	var re *ResponseError
	if !errors.As(err, &re) {
		return false
	}
	for _, code := range c.opts.ResumeResponseCodes {
		if code == re.Code {
			return true
		}
	}
	return false
}

// transfer fetches the request into its staged file, retrying with
// exponential backoff.
func (c *Center) transfer(ctx context.Context, j *Job) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.opts.RetryInterval
	eb.MaxElapsedTime = 0

	var policy backoff.BackOff = eb
	if c.opts.MaxRetries >= 0 {
		policy = backoff.WithMaxRetries(eb, uint64(c.opts.MaxRetries))
	}

	attempt := 0
	op := func() error {
		url := j.req.MainURL
		if attempt%2 == 1 && j.req.FallbackURL != "" {
			url = j.req.FallbackURL
		}
		attempt++

		err := c.fetchOnce(ctx, j, url)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		if !c.resumable(err) {
			if rerr := fs.RemoveIfExists(c.fs, j.req.TempPath); rerr != nil {
				log.Warnf("unable to remove staged file %v: %v", j.req.TempPath, rerr)
			}
		}
		log.WithFields(log.Fields{"key": j.req.Key, "url": url, "attempt": attempt}).
			Warnf("download failed: %v", err)
		return err
	}

	return backoff.Retry(op, backoff.WithContext(policy, ctx))
}

func (c *Center) fetchOnce(ctx context.Context, j *Job, url string) error {
	temp := j.req.TempPath
	if err := c.fs.MkdirAll(filepath.Dir(temp), fs.DirMode); err != nil {
		return errors.Wrap(err, "MkdirAll")
	}

	var offset int64
	if fi, err := c.fs.Stat(temp); err == nil {
		expected := j.req.ExpectedSize
		if expected > 0 && expected >= c.opts.ResumeMinimumSize && fi.Size() < expected {
			offset = fi.Size()
		}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if offset > 0 {
		flags |= os.O_APPEND
		log.WithField("key", j.req.Key).Debugf("resuming download at offset %d", offset)
	} else {
		flags |= os.O_TRUNC
	}

	f, err := c.fs.OpenFile(temp, flags, fs.FileMode)
	if err != nil {
		return errors.Wrap(err, "OpenFile")
	}

	j.downloaded.Store(offset)
	err = c.fetcher.Fetch(ctx, url, offset, &countingWriter{w: f, n: &j.downloaded})
	cerr := f.Close()
	if err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	if j.req.ExpectedSize > 0 {
		if got := j.downloaded.Load(); got != j.req.ExpectedSize {
			return errors.Wrapf(ErrSizeMismatch, "%v: want %d, got %d", j.req.Key, j.req.ExpectedSize, got)
		}
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n *atomic.Int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n.Add(int64(n))
	return n, err
}

// Job is a shared, reference-counted transfer. Every observer references the
// job once and releases it once; the transfer is aborted when the last
// reference is released before it finished.
type Job struct {
	req    Request
	center *Center

	mu     sync.Mutex
	status task.Status
	err    error
	refs   int
	cancel context.CancelFunc

	downloaded atomic.Int64
}

// Key returns the request key.
func (j *Job) Key() string { return j.req.Key }

// TempPath returns the staged file path.
func (j *Job) TempPath() string { return j.req.TempPath }

// Status returns the transfer state.
func (j *Job) Status() task.Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// IsDone returns true once the transfer succeeded, failed or was aborted.
func (j *Job) IsDone() bool {
	s := j.Status()
	return s == task.Succeeded || s == task.Failed
}

// Err returns the failure reason of a finished transfer.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// DownloadedBytes returns how many bytes have been staged.
func (j *Job) DownloadedBytes() int64 {
	return j.downloaded.Load()
}

// Progress returns the transfer progress in [0, 1] when the size is known.
func (j *Job) Progress() float64 {
	if j.Status() == task.Succeeded {
		return 1
	}
	if j.req.ExpectedSize <= 0 {
		return 0
	}
	p := float64(j.downloaded.Load()) / float64(j.req.ExpectedSize)
	if p > 1 {
		p = 1
	}
	return p
}

// Refs returns the current reference count.
func (j *Job) Refs() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.refs
}

// Reference adds an observer.
func (j *Job) Reference() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.refs++
}

// Release drops an observer. Releasing the last reference of an unfinished
// transfer aborts it.
func (j *Job) Release() {
	j.mu.Lock()
	if j.refs > 0 {
		j.refs--
	}
	last := j.refs == 0
	j.mu.Unlock()

	if last {
		j.abort()
	}
}

func (j *Job) begin() (context.Context, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != task.Pending {
		return nil, false
	}

	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel
	j.status = task.Executing
	return ctx, true
}

func (j *Job) complete(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.cancel != nil {
		j.cancel()
	}
	if j.status != task.Executing {
		// aborted while the transfer was still running
		return
	}
	if err != nil {
		j.status = task.Failed
		j.err = err
		return
	}
	j.status = task.Succeeded
}

// abort stops an unfinished transfer. It returns false if the job was
// already finished, so each job is aborted at most once.
func (j *Job) abort() bool {
	j.mu.Lock()
	if j.status == task.Succeeded || j.status == task.Failed {
		j.mu.Unlock()
		return false
	}
	j.status = task.Failed
	j.err = task.ErrAborted
	cancel := j.cancel
	j.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	j.center.aborts.Add(1)
	log.WithField("key", j.req.Key).Debug("download aborted")
	return true
}
