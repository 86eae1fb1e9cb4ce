package cache

import (
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/skyline93/bundlecache/internal/bundle"
	"github.com/skyline93/bundlecache/internal/fs"
	"github.com/skyline93/bundlecache/internal/manifest"
	"github.com/skyline93/bundlecache/internal/metrics"
	"github.com/skyline93/bundlecache/internal/task"
)

// ClearMode selects what a clear operation removes.
type ClearMode uint8

// Clear modes. The zero value is invalid.
const (
	ClearAllBundleFiles ClearMode = iota + 1
	ClearUnusedBundleFiles
	ClearBundleFilesByTags
	ClearAllManifestFiles
	ClearUnusedManifestFiles
)

var clearModeNames = map[ClearMode]string{
	ClearAllBundleFiles:      "ClearAllBundleFiles",
	ClearUnusedBundleFiles:   "ClearUnusedBundleFiles",
	ClearBundleFilesByTags:   "ClearBundleFilesByTags",
	ClearAllManifestFiles:    "ClearAllManifestFiles",
	ClearUnusedManifestFiles: "ClearUnusedManifestFiles",
}

func (m ClearMode) String() string {
	if s, ok := clearModeNames[m]; ok {
		return s
	}
	return "invalid"
}

// ParseClearMode parses the name of a clear mode, ignoring case.
func ParseClearMode(s string) (ClearMode, error) {
	for m, name := range clearModeNames {
		if strings.EqualFold(s, name) {
			return m, nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidMode, "%q", s)
}

// ClearOptions parameterises a clear operation.
type ClearOptions struct {
	Mode ClearMode
	// Tags selects the bundles removed by ClearBundleFilesByTags.
	Tags []string
}

// ClearCacheFilesAsync returns the task for the clear mode in opts. The
// manifest lists the bundles still in use; it is required by the unused and
// tag based modes. An unknown mode yields a failed task.
func (c *Cache) ClearCacheFilesAsync(m *manifest.Manifest, opts ClearOptions) *task.Task {
	const name = "ClearCacheTask"

	needManifest := func() error {
		if m == nil {
			return errors.Errorf("%v requires a manifest", opts.Mode)
		}
		return nil
	}

	switch opts.Mode {
	case ClearAllBundleFiles:
		return task.New(name, &clearBundlesStep{c: c, mode: opts.Mode, wipeRoot: true,
			selector: func(string) bool { return true }})

	case ClearUnusedBundleFiles:
		if err := needManifest(); err != nil {
			return task.Completed(name, err)
		}
		used := m.GUIDs()
		return task.New(name, &clearBundlesStep{c: c, mode: opts.Mode,
			selector: func(guid string) bool { return !used.Has(guid) }})

	case ClearBundleFilesByTags:
		if err := needManifest(); err != nil {
			return task.Completed(name, err)
		}
		if len(opts.Tags) == 0 {
			return task.Completed(name, errors.New("ClearBundleFilesByTags requires tags"))
		}
		tagged := bundle.NewGUIDSet()
		for _, b := range m.BundlesWithTags(opts.Tags) {
			tagged.Insert(b.GUID)
		}
		return task.New(name, &clearBundlesStep{c: c, mode: opts.Mode,
			selector: tagged.Has})

	case ClearAllManifestFiles:
		return task.New(name, &clearManifestStep{c: c})

	case ClearUnusedManifestFiles:
		if err := needManifest(); err != nil {
			return task.Completed(name, err)
		}
		return task.New(name, &clearManifestStep{c: c, keep: c.manifestFilesOf(m)})
	}

	return task.Completed(name, errors.Wrapf(ErrInvalidMode, "mode %d", opts.Mode))
}

// clearBundlesStep removes the records chosen by selector, a bounded number
// per tick.
type clearBundlesStep struct {
	c        *Cache
	mode     ClearMode
	selector func(guid string) bool
	// wipeRoot also removes folders without a record.
	wipeRoot bool

	guids   []string
	total   int
	removed int
	errs    *multierror.Error
}

func (s *clearBundlesStep) Start(t *task.Task) {
	for _, guid := range s.c.records.Keys() {
		if s.selector(guid) {
			s.guids = append(s.guids, guid)
		}
	}
	s.total = len(s.guids)
	log.Infof("%v: removing %d of %d cached bundles", s.mode, s.total, s.c.records.Len())
}

func (s *clearBundlesStep) Update(t *task.Task) {
	for budget := s.c.opts.DeletePerTick; budget > 0 && len(s.guids) > 0; budget-- {
		guid := s.guids[0]
		s.guids = s.guids[1:]

		ok, err := s.c.DeleteBundle(guid)
		if err != nil {
			s.errs = multierror.Append(s.errs, errors.Wrapf(err, "delete %v", guid))
		}
		if ok {
			s.removed++
		}
	}

	if len(s.guids) > 0 {
		t.SetProgress(float64(s.total-len(s.guids)) / float64(s.total))
		return
	}

	if s.wipeRoot {
		if err := s.c.deleteAllBundleFiles(); err != nil {
			s.errs = multierror.Append(s.errs, err)
		}
	}

	metrics.ClearedRecords.WithLabelValues(s.mode.String()).Add(float64(s.removed))
	if err := s.errs.ErrorOrNil(); err != nil {
		t.Fail(err)
		return
	}
	t.Succeed()
}

func (s *clearBundlesStep) Abort(t *task.Task) {}

// clearManifestStep removes the files of the manifest root, except keep. A
// nil keep removes the root itself.
type clearManifestStep struct {
	c    *Cache
	keep map[string]struct{}
}

func (s *clearManifestStep) Start(t *task.Task) {}

func (s *clearManifestStep) Update(t *task.Task) {
	if s.keep == nil {
		if err := s.c.deleteAllManifestFiles(); err != nil {
			t.Fail(err)
			return
		}
		t.Succeed()
		return
	}

	root := s.c.paths.ManifestRoot()
	entries, err := afero.ReadDir(s.c.fs, root)
	if err != nil {
		if fs.IsNotExist(err) {
			t.Succeed()
			return
		}
		t.Fail(errors.Wrap(err, "ReadDir"))
		return
	}

	var errs *multierror.Error
	for _, fi := range entries {
		if _, ok := s.keep[fi.Name()]; ok || fi.IsDir() {
			continue
		}
		path := filepath.Join(root, fi.Name())
		log.Debugf("removing unused manifest file %v", path)
		if err := fs.RemoveIfExists(s.c.fs, path); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		t.Fail(err)
		return
	}
	t.Succeed()
}

func (s *clearManifestStep) Abort(t *task.Task) {}

// manifestFilesOf returns the manifest root files in use by m.
func (c *Cache) manifestFilesOf(m *manifest.Manifest) map[string]struct{} {
	keep := make(map[string]struct{})
	for _, name := range []string{
		manifest.VersionFileName(c.packageName),
		manifest.HashFileName(c.packageName, m.PackageVersion),
		manifest.FileName(c.packageName, m.PackageVersion),
		manifest.FootPrintFileName,
	} {
		keep[name] = struct{}{}
	}
	return keep
}
