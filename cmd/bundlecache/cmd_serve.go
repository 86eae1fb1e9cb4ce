package main

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/skyline93/bundlecache/internal/manifest"
	"github.com/skyline93/bundlecache/internal/server"
)

var cmdServe = &cobra.Command{
	Use:   "serve [flags]",
	Short: "Serve a read-only view of the cache over HTTP",
	Long: `
The "serve" command exposes the cached bundles and the cache metrics:

  GET /bundles         list of cached bundles
  GET /bundles/:guid   content of a cached bundle (needs --version)
  GET /metrics         prometheus metrics
`,
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context(), serveOptions, globalOptions)
	},
}

// ServeOptions bundles all options for the serve command.
type ServeOptions struct {
	Listen  string
	Version string
	Timeout time.Duration
}

var serveOptions ServeOptions

func init() {
	cmdRoot.AddCommand(cmdServe)

	f := cmdServe.Flags()
	f.StringVar(&serveOptions.Listen, "listen", "", "listen `address` (default: Listen from the configuration)")
	f.StringVar(&serveOptions.Version, "version", "", "package `version` whose manifest resolves bundle GUIDs")
	f.DurationVar(&serveOptions.Timeout, "timeout", 60*time.Second, "timeout for the manifest request")
}

func runServe(ctx context.Context, opts ServeOptions, gopts GlobalOptions) error {
	c, err := openCache(ctx, gopts)
	if err != nil {
		return err
	}
	defer c.Destroy()

	var m *manifest.Manifest
	if opts.Version != "" {
		m, err = loadManifest(ctx, c, opts.Version, opts.Timeout)
		if err != nil {
			return err
		}
	}

	app, err := server.NewApp(server.AppOptions{Cache: c, Manifest: m})
	if err != nil {
		return err
	}

	addr := opts.Listen
	if addr == "" {
		addr = gopts.cfg.Listen
	}

	wg, wgCtx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		log.WithField("addr", addr).Info("serving bundle cache")
		return app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
	})
	wg.Go(func() error {
		<-wgCtx.Done()
		return app.Shutdown()
	})

	err = wg.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}
