package cache

import (
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/skyline93/bundlecache/internal/fs"
	"github.com/skyline93/bundlecache/internal/manifest"
)

func (c *Cache) footprintPath() string {
	return c.paths.ManifestFile(manifest.FootPrintFileName)
}

// checkFootprint compares the stored application version with the configured
// one. When a different version opened the cache before, the install clear
// mode is applied. The footprint is rewritten afterwards.
func (c *Cache) checkFootprint() error {
	if c.opts.AppVersion == "" {
		return nil
	}

	path := c.footprintPath()
	data, err := fs.ReadFile(c.fs, path)
	switch {
	case err == nil:
		stored := strings.TrimSpace(string(data))
		if stored == c.opts.AppVersion {
			return nil
		}
		log.WithFields(log.Fields{"stored": stored, "current": c.opts.AppVersion}).
			Infof("application version changed, applying install clear mode %v", c.opts.InstallClearMode)
		if err := c.applyInstallClear(); err != nil {
			return err
		}
	case !fs.IsNotExist(err):
		return errors.Wrap(err, "read footprint")
	}

	return c.writeFootprint()
}

func (c *Cache) writeFootprint() error {
	path := c.footprintPath()
	if err := fs.CreateFileDirectory(c.fs, path); err != nil {
		return errors.Wrap(err, "create manifest root")
	}
	return errors.Wrap(fs.WriteFile(c.fs, path, []byte(c.opts.AppVersion)), "write footprint")
}

func (c *Cache) applyInstallClear() error {
	switch c.opts.InstallClearMode {
	case InstallClearNone:
		return nil
	case InstallClearAllCacheFiles:
		if err := c.deleteAllBundleFiles(); err != nil {
			return err
		}
		return c.deleteAllManifestFiles()
	case InstallClearAllBundleFiles:
		return c.deleteAllBundleFiles()
	case InstallClearAllManifestFiles:
		return c.deleteAllManifestFiles()
	}
	return errors.Errorf("invalid install clear mode %v", c.opts.InstallClearMode)
}
