package download

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyline93/bundlecache/internal/task"
)

func testOptions() Options {
	opts := NewOptions()
	opts.MaxRetries = 0
	opts.RetryInterval = time.Millisecond
	return opts
}

func newMirror(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fsys, name, []byte(content), 0o644))
	}
	return fsys
}

func TestDownloadSuccess(t *testing.T) {
	fsys := newMirror(t, map[string]string{"/mirror/a.bundle": "payload"})
	c := NewCenter(fsys, FileFetcher{FS: fsys}, testOptions())

	j := c.DownloadAsync(Request{Key: "a", MainURL: "file:///mirror/a.bundle", TempPath: "/temp/a", ExpectedSize: 7})
	j.Reference()
	assert.Equal(t, task.Pending, j.Status())

	c.Update()
	c.Wait()

	require.Equal(t, task.Succeeded, j.Status(), "err: %v", j.Err())
	assert.Equal(t, 1.0, j.Progress())
	data, err := afero.ReadFile(fsys, j.TempPath())
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	// a finished job is forgotten on the next tick
	c.Update()
	assert.NotSame(t, j, c.DownloadAsync(Request{Key: "a"}))
}

func TestDownloadDeduplicatesByKey(t *testing.T) {
	fsys := afero.NewMemMapFs()
	c := NewCenter(fsys, FileFetcher{FS: fsys}, testOptions())

	a := c.DownloadAsync(Request{Key: "k", TempPath: "/t/k"})
	b := c.DownloadAsync(Request{Key: "k", TempPath: "/t/k"})
	assert.Same(t, a, b)
}

func TestDownloadMissingSourceFails(t *testing.T) {
	fsys := afero.NewMemMapFs()
	c := NewCenter(fsys, FileFetcher{FS: fsys}, testOptions())

	j := c.DownloadAsync(Request{Key: "m", MainURL: "/mirror/missing", TempPath: "/temp/m"})
	j.Reference()
	c.Update()
	c.Wait()

	require.Equal(t, task.Failed, j.Status())
	var re *ResponseError
	require.ErrorAs(t, j.Err(), &re)
	assert.Equal(t, CodeNotFound, re.Code)
	exists, _ := afero.Exists(fsys, "/temp/m")
	assert.False(t, exists)
}

func TestDownloadSizeMismatch(t *testing.T) {
	fsys := newMirror(t, map[string]string{"/mirror/s": "abc"})
	c := NewCenter(fsys, FileFetcher{FS: fsys}, testOptions())

	j := c.DownloadAsync(Request{Key: "s", MainURL: "/mirror/s", TempPath: "/temp/s", ExpectedSize: 10})
	j.Reference()
	c.Update()
	c.Wait()

	assert.ErrorIs(t, j.Err(), ErrSizeMismatch)
}

func TestDownloadMaxRequestsPerTick(t *testing.T) {
	fsys := newMirror(t, map[string]string{"/m/1": "1", "/m/2": "2", "/m/3": "3"})
	opts := testOptions()
	opts.MaxRequestsPerTick = 1
	c := NewCenter(fsys, FileFetcher{FS: fsys}, opts)

	jobs := []*Job{
		c.DownloadAsync(Request{Key: "1", MainURL: "/m/1", TempPath: "/t/1"}),
		c.DownloadAsync(Request{Key: "2", MainURL: "/m/2", TempPath: "/t/2"}),
		c.DownloadAsync(Request{Key: "3", MainURL: "/m/3", TempPath: "/t/3"}),
	}
	for _, j := range jobs {
		j.Reference()
	}

	c.Update()
	assert.NotEqual(t, task.Pending, jobs[0].Status())
	assert.Equal(t, task.Pending, jobs[1].Status())
	assert.Equal(t, task.Pending, jobs[2].Status())

	c.Update()
	c.Update()
	c.Wait()
	for _, j := range jobs {
		assert.Equal(t, task.Succeeded, j.Status())
	}
}

// blockingFetcher blocks until the transfer context is cancelled.
type blockingFetcher struct {
	started chan struct{}
}

func (f *blockingFetcher) Fetch(ctx context.Context, url string, offset int64, w io.Writer) error {
	close(f.started)
	<-ctx.Done()
	return ctx.Err()
}

func TestReleaseKeepsTransferForOtherObservers(t *testing.T) {
	fsys := afero.NewMemMapFs()
	fetcher := &blockingFetcher{started: make(chan struct{})}
	c := NewCenter(fsys, fetcher, testOptions())

	j := c.DownloadAsync(Request{Key: "shared", TempPath: "/t/shared"})
	j.Reference()
	observer := c.DownloadAsync(Request{Key: "shared", TempPath: "/t/shared"})
	observer.Reference()
	require.Same(t, j, observer)
	assert.Equal(t, 2, j.Refs())

	c.Update()
	<-fetcher.started

	observer.Release()
	assert.Equal(t, task.Executing, j.Status())
	assert.EqualValues(t, 0, c.Aborts())

	// the owner aborts the transfer exactly once
	c.AbortAll()
	c.AbortAll()
	j.Release()
	c.Wait()

	assert.EqualValues(t, 1, c.Aborts())
	assert.ErrorIs(t, j.Err(), task.ErrAborted)
}

func TestReleaseLastReferenceAborts(t *testing.T) {
	fsys := afero.NewMemMapFs()
	fetcher := &blockingFetcher{started: make(chan struct{})}
	c := NewCenter(fsys, fetcher, testOptions())

	j := c.DownloadAsync(Request{Key: "solo", TempPath: "/t/solo"})
	j.Reference()
	c.Update()
	<-fetcher.started

	j.Release()
	c.Wait()
	assert.EqualValues(t, 1, c.Aborts())
	assert.Equal(t, task.Failed, j.Status())
}

// flakyFetcher delivers half of the payload, fails with a resumable code,
// then delivers the rest.
type flakyFetcher struct {
	payload string
	calls   atomic.Int32
	offsets []int64
}

func (f *flakyFetcher) Fetch(ctx context.Context, url string, offset int64, w io.Writer) error {
	f.offsets = append(f.offsets, offset)
	if f.calls.Add(1) == 1 {
		half := len(f.payload) / 2
		if _, err := io.WriteString(w, f.payload[:half]); err != nil {
			return err
		}
		return &ResponseError{URL: url, Code: CodeServiceUnavailable, Err: io.ErrUnexpectedEOF}
	}
	_, err := io.WriteString(w, f.payload[offset:])
	return err
}

func TestDownloadResumesPartialFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	fetcher := &flakyFetcher{payload: "0123456789"}
	opts := testOptions()
	opts.MaxRetries = 2
	opts.ResumeMinimumSize = 1
	opts.ResumeResponseCodes = []int{CodeServiceUnavailable}
	c := NewCenter(fsys, fetcher, opts)

	j := c.DownloadAsync(Request{Key: "r", MainURL: "x", TempPath: "/t/r", ExpectedSize: 10})
	j.Reference()
	c.Update()
	c.Wait()

	require.Equal(t, task.Succeeded, j.Status(), "err: %v", j.Err())
	assert.Equal(t, []int64{0, 5}, fetcher.offsets)
	data, err := afero.ReadFile(fsys, "/t/r")
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))
}

func TestDownloadRestartsWithoutResumeCode(t *testing.T) {
	fsys := afero.NewMemMapFs()
	fetcher := &flakyFetcher{payload: "0123456789"}
	opts := testOptions()
	opts.MaxRetries = 2
	opts.ResumeMinimumSize = 1
	c := NewCenter(fsys, fetcher, opts)

	j := c.DownloadAsync(Request{Key: "r", MainURL: "x", TempPath: "/t/r", ExpectedSize: 10})
	j.Reference()
	c.Update()
	c.Wait()

	require.Equal(t, task.Succeeded, j.Status(), "err: %v", j.Err())
	assert.Equal(t, []int64{0, 0}, fetcher.offsets)
}

// gatedFetcher ignores cancellation until gate is closed, like a transfer
// finishing its last write after an abort.
type gatedFetcher struct {
	started chan struct{}
	gate    chan struct{}
	calls   atomic.Int32
}

func (f *gatedFetcher) Fetch(ctx context.Context, url string, offset int64, w io.Writer) error {
	if f.calls.Add(1) == 1 {
		close(f.started)
		<-f.gate
		return ctx.Err()
	}
	_, err := io.WriteString(w, "fresh")
	return err
}

func TestRestartWaitsForAbortedTransfer(t *testing.T) {
	fsys := afero.NewMemMapFs()
	fetcher := &gatedFetcher{started: make(chan struct{}), gate: make(chan struct{})}
	c := NewCenter(fsys, fetcher, testOptions())

	old := c.DownloadAsync(Request{Key: "k", TempPath: "/t/k"})
	old.Reference()
	c.Update()
	<-fetcher.started

	old.Release()
	require.True(t, old.IsDone())

	c.Update()
	fresh := c.DownloadAsync(Request{Key: "k", TempPath: "/t/k"})
	fresh.Reference()
	require.NotSame(t, old, fresh)

	// the aborted goroutine still owns /t/k
	c.Update()
	assert.Equal(t, task.Pending, fresh.Status())
	assert.EqualValues(t, 1, fetcher.calls.Load())

	close(fetcher.gate)
	require.Eventually(t, func() bool { return c.Running() == 0 }, 5*time.Second, time.Millisecond)

	c.Update()
	c.Wait()
	require.Equal(t, task.Succeeded, fresh.Status(), "err: %v", fresh.Err())
	data, err := afero.ReadFile(fsys, "/t/k")
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(data))
}
