// Package cache stores downloaded bundles on disk and keeps an in-memory
// record of every bundle that is fully cached.
//
// A bundle is cached if and only if it has a record. Records are created by
// WriteBundle as the last step of a write and rebuilt from the info files by
// the initialize task after a restart. Every multi-step operation is a
// task.Task advanced by Update.
package cache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/skyline93/bundlecache/internal/bundle"
	"github.com/skyline93/bundlecache/internal/download"
	"github.com/skyline93/bundlecache/internal/fs"
	"github.com/skyline93/bundlecache/internal/layout"
	"github.com/skyline93/bundlecache/internal/metrics"
	"github.com/skyline93/bundlecache/internal/task"
)

// DefaultTickInterval is the tick period used by Wait.
const DefaultTickInterval = 10 * time.Millisecond

// Cache is the bundle cache of one package.
type Cache struct {
	fs          fs.FS
	packageName string
	opts        Options

	paths   *layout.Resolver
	records *RecordStore
	info    *infoCodec

	center DownloadCenter
	sched  *task.Scheduler

	// TickInterval is the tick period used by Wait.
	TickInterval time.Duration
}

// New returns the cache of packageName stored below root. If center is nil
// a download.Center reading from fsys is used.
func New(fsys fs.FS, root, packageName string, opts Options, center DownloadCenter) (*Cache, error) {
	if packageName == "" {
		return nil, errors.New("package name is empty")
	}
	if root == "" {
		return nil, errors.New("cache root is empty")
	}
	if err := opts.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid options")
	}

	if center == nil {
		center = download.NewCenter(fsys, download.FileFetcher{FS: fsys}, opts.DownloadOptions())
	}

	c := &Cache{
		fs:           fsys,
		packageName:  packageName,
		opts:         opts,
		paths:        layout.New(root, opts.AppendFileExtension),
		records:      NewRecordStore(fsys),
		info:         newInfoCodec(),
		center:       center,
		TickInterval: DefaultTickInterval,
	}
	c.sched = task.NewScheduler(center.Update)
	return c, nil
}

// PackageName returns the name of the cached package.
func (c *Cache) PackageName() string { return c.packageName }

// Root returns the package root directory.
func (c *Cache) Root() string { return c.paths.Root() }

// Options returns the configuration of the cache.
func (c *Cache) Options() Options { return c.opts }

// Paths returns the path resolver of the cache.
func (c *Cache) Paths() *layout.Resolver { return c.paths }

// FS returns the filesystem the cache operates on.
func (c *Cache) FS() fs.FS { return c.fs }

// Scheduler returns the scheduler advanced by Update.
func (c *Cache) Scheduler() *task.Scheduler { return c.sched }

// Start hands t to the scheduler.
func (c *Cache) Start(t *task.Task) *task.Task {
	return c.sched.Start(t)
}

// Update advances the download center and every started task by one tick.
func (c *Cache) Update() {
	c.sched.Tick()
}

// Wait starts t and ticks until it is done or ctx is cancelled.
func (c *Cache) Wait(ctx context.Context, t *task.Task) error {
	return c.sched.Wait(ctx, t, c.TickInterval)
}

// Destroy aborts every task and every transfer.
func (c *Cache) Destroy() {
	c.sched.AbortAll()
	c.center.AbortAll()
	log.WithField("package", c.packageName).Debug("cache destroyed")
}

// Belong reports whether the cache is responsible for b. The cache is the
// fallback of every package, so this is always true.
func (c *Cache) Belong(b bundle.Bundle) bool {
	return true
}

// Exists returns true if b has a record.
func (c *Cache) Exists(b bundle.Bundle) bool {
	return c.records.Exists(b.GUID)
}

// NeedDownload returns true if b must be fetched before it can be loaded.
func (c *Cache) NeedDownload(b bundle.Bundle) bool {
	return c.Belong(b) && !c.Exists(b)
}

// NeedUnpack is always false; cached bundles are never packed.
func (c *Cache) NeedUnpack(b bundle.Bundle) bool {
	return false
}

// NeedImport returns true if b may be imported from a local file.
func (c *Cache) NeedImport(b bundle.Bundle) bool {
	return c.Belong(b) && !c.Exists(b)
}

// BundleFilePath returns the data file path of b. A cached bundle resolves
// to the file of its record, which may carry an extension the current options
// would not add.
func (c *Cache) BundleFilePath(b bundle.Bundle) string {
	if r, ok := c.records.Get(b.GUID); ok {
		return r.DataFilePath
	}
	return c.paths.DataFile(b)
}

// FileCount returns the number of cached bundles.
func (c *Cache) FileCount() int {
	return c.records.Len()
}

// CachedGUIDs returns the GUIDs of all cached bundles in no particular order.
func (c *Cache) CachedGUIDs() []string {
	return c.records.Keys()
}

// Record returns the record of b.
func (c *Cache) Record(b bundle.Bundle) (Record, bool) {
	return c.records.Get(b.GUID)
}

// Records returns the record store.
func (c *Cache) Records() *RecordStore {
	return c.records
}

// DeleteBundle removes the record of guid and its files. It reports whether
// the bundle was cached.
func (c *Cache) DeleteBundle(guid string) (bool, error) {
	ok, err := c.records.Remove(guid)
	if ok {
		c.updateGauge()
	}
	return ok, err
}

func (c *Cache) updateGauge() {
	metrics.Records.WithLabelValues(c.packageName).Set(float64(c.records.Len()))
}
