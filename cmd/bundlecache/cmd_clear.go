package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/skyline93/bundlecache/internal/cache"
	"github.com/skyline93/bundlecache/internal/manifest"
)

var cmdClear = &cobra.Command{
	Use:   "clear [flags]",
	Short: "Remove cached files",
	Long: `
The "clear" command removes cached files. The modes are:

  ClearAllBundleFiles        remove every cached bundle
  ClearUnusedBundleFiles     remove bundles not listed in the manifest
  ClearBundleFilesByTags     remove bundles carrying one of the --tag values
  ClearAllManifestFiles      remove every manifest file
  ClearUnusedManifestFiles   remove manifest files of other versions

The modes that need a manifest load the one given by --version.
`,
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runClear(cmd.Context(), clearOptions, globalOptions)
	},
}

// ClearOptions bundles all options for the clear command.
type ClearOptions struct {
	Mode    string
	Tags    []string
	Version string
	Timeout time.Duration
}

var clearOptions ClearOptions

func init() {
	cmdRoot.AddCommand(cmdClear)

	f := cmdClear.Flags()
	f.StringVar(&clearOptions.Mode, "mode", cache.ClearUnusedBundleFiles.String(), "clear `mode`")
	f.StringSliceVar(&clearOptions.Tags, "tag", nil, "bundle `tag` for ClearBundleFilesByTags (can be specified multiple times)")
	f.StringVar(&clearOptions.Version, "version", "", "package `version` of the manifest to keep (default: ask the mirror)")
	f.DurationVar(&clearOptions.Timeout, "timeout", 60*time.Second, "timeout for version and manifest requests")
}

func needsManifest(mode cache.ClearMode) bool {
	switch mode {
	case cache.ClearUnusedBundleFiles, cache.ClearBundleFilesByTags, cache.ClearUnusedManifestFiles:
		return true
	}
	return false
}

func runClear(ctx context.Context, opts ClearOptions, gopts GlobalOptions) error {
	mode, err := cache.ParseClearMode(opts.Mode)
	if err != nil {
		return err
	}

	c, err := openCache(ctx, gopts)
	if err != nil {
		return err
	}
	defer c.Destroy()

	var m *manifest.Manifest
	if needsManifest(mode) {
		m, err = loadManifest(ctx, c, opts.Version, opts.Timeout)
		if err != nil {
			return err
		}
	}

	before := c.FileCount()
	t := c.ClearCacheFilesAsync(m, cache.ClearOptions{Mode: mode, Tags: opts.Tags})
	if err := c.Wait(ctx, t); err != nil {
		return err
	}

	fmt.Printf("%v: %d bundles removed, %d left\n", mode, before-c.FileCount(), c.FileCount())
	return nil
}
