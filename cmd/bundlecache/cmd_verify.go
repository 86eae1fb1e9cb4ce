package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/skyline93/bundlecache/internal/bundle"
	"github.com/skyline93/bundlecache/internal/cache"
)

var cmdVerify = &cobra.Command{
	Use:   "verify [flags]",
	Short: "Verify the cached bundles",
	Long: `
The "verify" command checks every cached bundle at the given level and reports
the failures. With --delete, failed bundles are removed from the cache.

EXIT STATUS
===========

Exit status is 0 if every bundle passed, and 1 otherwise.
`,
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVerify(cmd.Context(), verifyOptions, globalOptions)
	},
}

// VerifyOptions bundles all options for the verify command.
type VerifyOptions struct {
	Level  string
	Delete bool
}

var verifyOptions VerifyOptions

func init() {
	cmdRoot.AddCommand(cmdVerify)

	f := cmdVerify.Flags()
	f.StringVar(&verifyOptions.Level, "level", "high", "verify `level` (none, low, middle, high)")
	f.BoolVar(&verifyOptions.Delete, "delete", false, "remove bundles that fail verification")
}

func runVerify(ctx context.Context, opts VerifyOptions, gopts GlobalOptions) error {
	level, err := cache.ParseVerifyLevel(opts.Level)
	if err != nil {
		return err
	}

	c, err := openCache(ctx, gopts)
	if err != nil {
		return err
	}
	defer c.Destroy()

	guids := c.CachedGUIDs()
	sort.Strings(guids)

	failed := 0
	for _, guid := range guids {
		res := c.Verify(bundle.Bundle{GUID: guid}, level)
		if res.Ok() {
			continue
		}

		failed++
		fmt.Printf("%v: %v\n", guid, res)
		if opts.Delete {
			if _, err := c.DeleteBundle(guid); err != nil {
				return err
			}
		}
	}

	fmt.Printf("%d bundles verified at level %v, %d failed\n", len(guids), level, failed)
	if failed > 0 && !opts.Delete {
		return errors.Errorf("%d bundles failed verification", failed)
	}
	return nil
}
