package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/skyline93/bundlecache/internal/cache"
)

var cmdFetch = &cobra.Command{
	Use:   "fetch [flags]",
	Short: "Download the bundles of a package version",
	Long: `
The "fetch" command loads the manifest of a package version and downloads every
bundle that is not cached yet from the configured mirror.

EXIT STATUS
===========

Exit status is 0 if every bundle is cached afterwards, and 1 otherwise.
`,
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFetch(cmd.Context(), fetchOptions, globalOptions)
	},
}

// FetchOptions bundles all options for the fetch command.
type FetchOptions struct {
	Version string
	Tags    []string
	Timeout time.Duration
}

var fetchOptions FetchOptions

func init() {
	cmdRoot.AddCommand(cmdFetch)

	f := cmdFetch.Flags()
	f.StringVar(&fetchOptions.Version, "version", "", "package `version` (default: ask the mirror)")
	f.StringSliceVar(&fetchOptions.Tags, "tag", nil, "only fetch bundles with `tag` (can be specified multiple times)")
	f.DurationVar(&fetchOptions.Timeout, "timeout", 60*time.Second, "timeout for version and manifest requests")
}

func runFetch(ctx context.Context, opts FetchOptions, gopts GlobalOptions) error {
	if !gopts.cfg.Remote.Configured() {
		return errors.New("no mirror configured, set Remote.MainURL")
	}

	c, err := openCache(ctx, gopts)
	if err != nil {
		return err
	}
	defer c.Destroy()

	m, err := loadManifest(ctx, c, opts.Version, opts.Timeout)
	if err != nil {
		return err
	}

	bundles := m.Bundles
	if len(opts.Tags) > 0 {
		bundles = m.BundlesWithTags(opts.Tags)
	}

	var tasks []*cache.DownloadFileTask
	for _, b := range bundles {
		if !c.NeedDownload(b) {
			continue
		}
		tasks = append(tasks, c.DownloadFileAsync(b, cache.DownloadOptions{}))
	}
	for _, t := range tasks {
		c.Start(t.Task)
	}

	var (
		result     *multierror.Error
		downloaded int64
	)
	for _, t := range tasks {
		if err := c.Wait(ctx, t.Task); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.WithField("task", t.Name()).Warn(err)
			result = multierror.Append(result, err)
			continue
		}
		downloaded += t.DownloadedBytes()
	}

	fmt.Printf("package %v version %v: %d of %d bundles fetched, %s downloaded\n",
		m.PackageName, m.PackageVersion, len(tasks)-errorCount(result), len(tasks),
		humanize.Bytes(uint64(downloaded)))

	return result.ErrorOrNil()
}

func errorCount(err *multierror.Error) int {
	if err == nil {
		return 0
	}
	return len(err.Errors)
}
