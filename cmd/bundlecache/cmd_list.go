package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var cmdList = &cobra.Command{
	Use:   "list",
	Short: "List cached bundles",
	Long: `
The "list" command prints the GUID, size and CRC of every cached bundle.
`,
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runList(cmd.Context(), globalOptions)
	},
}

func init() {
	cmdRoot.AddCommand(cmdList)
}

func runList(ctx context.Context, gopts GlobalOptions) error {
	c, err := openCache(ctx, gopts)
	if err != nil {
		return err
	}
	defer c.Destroy()

	guids := c.CachedGUIDs()
	sort.Strings(guids)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "GUID\tSIZE\tCRC")

	var total uint64
	for _, guid := range guids {
		rec, ok := c.Records().Get(guid)
		if !ok {
			continue
		}
		total += uint64(rec.DataFileSize)
		fmt.Fprintf(w, "%s\t%s\t%s\n", guid, humanize.Bytes(uint64(rec.DataFileSize)), rec.DataFileCRC)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("%d bundles, %s\n", len(guids), humanize.Bytes(total))
	return nil
}
