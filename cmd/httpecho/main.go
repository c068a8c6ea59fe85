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
	Use:   "httpecho",
	Short: "HTTP/1.1+H2C echo server running over the embedded kernel-bypass network stack",
	Long: `httpecho serves an HTTP echo handler over the stack's TCP sockets via
httpbridge, auto-detecting cleartext HTTP/2 (h2c) vs HTTP/1.1 per
connection, realizing the protocol-auto-detect scenario end to end.`,
	RunE: runHTTPEcho,
}
