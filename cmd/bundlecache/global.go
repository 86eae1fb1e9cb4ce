package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/skyline93/bundlecache/internal/cache"
	"github.com/skyline93/bundlecache/internal/config"
	"github.com/skyline93/bundlecache/internal/crypto"
	"github.com/skyline93/bundlecache/internal/fs"
	"github.com/skyline93/bundlecache/internal/logging"
	"github.com/skyline93/bundlecache/internal/manifest"
)

// GlobalOptions hold all global options for bundlecache.
type GlobalOptions struct {
	ConfigFile string
	Root       string
	Package    string
	LogLevel   string
	Password   string

	cfg *config.Config
}

var globalOptions GlobalOptions

// passwordEnv holds the key file password when --password is not given.
const passwordEnv = "BUNDLECACHE_PASSWORD"

func init() {
	f := cmdRoot.PersistentFlags()
	f.StringVarP(&globalOptions.ConfigFile, "config", "c", "", "read the configuration from `file`")
	f.StringVar(&globalOptions.Root, "root", "", "cache root `directory` (default: Root from the configuration)")
	f.StringVarP(&globalOptions.Package, "package", "p", "", "package `name` (default: Package from the configuration)")
	f.StringVar(&globalOptions.LogLevel, "log-level", "", "log `level` (debug, info, warn, error)")
	f.StringVar(&globalOptions.Password, "password", "", "key file password (default: $"+passwordEnv+")")
}

func setupGlobal(cmd *cobra.Command) error {
	cfg, err := config.Load(globalOptions.ConfigFile)
	if err != nil {
		return err
	}

	if globalOptions.Root != "" {
		cfg.Root = globalOptions.Root
	}
	if globalOptions.Package != "" {
		cfg.Package = globalOptions.Package
	}
	if globalOptions.LogLevel != "" {
		cfg.Log.Level = globalOptions.LogLevel
	}
	if globalOptions.Password == "" {
		globalOptions.Password = os.Getenv(passwordEnv)
	}

	if _, err := logging.Setup(cfg.Log); err != nil {
		return err
	}

	globalOptions.cfg = cfg
	return nil
}

// openKey opens the configured key file, or returns nil if there is none.
func openKey(gopts GlobalOptions) (*crypto.Key, error) {
	if gopts.cfg.KeyFile == "" {
		return nil, nil
	}
	if gopts.Password == "" {
		return nil, errors.Errorf("key file %v needs a password, use --password or $%s", gopts.cfg.KeyFile, passwordEnv)
	}
	return crypto.OpenKey(fs.Local(), gopts.cfg.KeyFile, gopts.Password)
}

// openCache creates the cache of the configured package and runs the
// initialization scan.
func openCache(ctx context.Context, gopts GlobalOptions) (*cache.Cache, error) {
	cfg := gopts.cfg
	fsys := fs.Local()

	opts := cfg.CacheOptions()
	opts.ManifestServices = manifest.NewCodec()

	key, err := openKey(gopts)
	if err != nil {
		return nil, err
	}
	if key != nil {
		opts.DecryptionServices = crypto.NewService(fsys, key)
	}

	root, err := filepath.Abs(filepath.Join(cfg.Root, cfg.Package))
	if err != nil {
		return nil, errors.Wrap(err, "resolve cache root")
	}

	c, err := cache.New(fsys, root, cfg.Package, opts, nil)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	op := c.InitializeAsync()
	if err := c.Wait(ctx, op.Task); err != nil {
		c.Destroy()
		return nil, errors.Wrap(err, "initialize cache")
	}

	log.WithFields(log.Fields{
		"root":     root,
		"recorded": op.Recorded(),
		"removed":  op.Removed(),
		"duration": time.Since(start),
	}).Debug("cache initialized")

	return c, nil
}

// loadManifest loads the manifest of version, asking the mirror for the
// current version when version is empty.
func loadManifest(ctx context.Context, c *cache.Cache, version string, timeout time.Duration) (*manifest.Manifest, error) {
	if version == "" {
		req := c.RequestPackageVersionAsync(true, timeout)
		if err := c.Wait(ctx, req.Task); err != nil {
			return nil, errors.Wrap(err, "request package version")
		}
		version = req.Version()
	}

	op := c.LoadPackageManifestAsync(version, timeout)
	if err := c.Wait(ctx, op.Task); err != nil {
		return nil, errors.Wrapf(err, "load manifest %v", version)
	}
	return op.Manifest(), nil
}
