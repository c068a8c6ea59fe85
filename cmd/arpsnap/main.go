package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "arpsnap",
	Short: "Inspect CBOR-encoded SharedArpCache snapshots",
	Long: `arpsnap decodes a snapshot blob produced by arpcache.ExportSnapshot
(any process embedding this module can dump one for offline inspection)
and prints it as a table. It never touches a live cache itself.`,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
