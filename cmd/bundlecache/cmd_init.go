package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var cmdInit = &cobra.Command{
	Use:   "init",
	Short: "Scan the cache directory and rebuild the records",
	Long: `
The "init" command scans the bundle folders of the package, verifies every
cached file and removes folders that fail verification.

EXIT STATUS
===========

Exit status is 0 if the command was successful, and non-zero if there was any error.
`,
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit(cmd.Context(), globalOptions)
	},
}

func init() {
	cmdRoot.AddCommand(cmdInit)
}

func runInit(ctx context.Context, gopts GlobalOptions) error {
	c, err := openCache(ctx, gopts)
	if err != nil {
		return err
	}
	defer c.Destroy()

	fmt.Printf("cache %v: %d bundles cached\n", c.Root(), c.FileCount())
	return nil
}
