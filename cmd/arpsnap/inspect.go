package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fastpath/netcore/pkg/arpcache"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <snapshot-file>",
	Short: "Decode and print a CBOR-encoded cache snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	blob, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("arpsnap: read %s: %w", args[0], err)
	}

	entries, err := arpcache.ImportSnapshot(blob)
	if err != nil {
		return fmt.Errorf("arpsnap: decode %s: %w", args[0], err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "IP\tMAC\tVERSION")
	for _, e := range entries {
		fmt.Fprintf(w, "%d.%d.%d.%d\t%s\t%d\n", e.IP[0], e.IP[1], e.IP[2], e.IP[3], e.MAC, e.Version)
	}
	return w.Flush()
}
