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
	Use:   "echoserver",
	Short: "TCP echo server running over the embedded kernel-bypass network stack",
	Long: `echoserver runs one TCP echo listener per reactor core, demonstrating
AppRunner, the per-core Reactor, and the TcpListener/TcpStream async
sockets end to end.

It uses netapp.LoopbackDriver as its Driver, since this repo carries no
real NIC/EAL bindings (out of scope); wire in a hardware Driver to run
against an actual kernel-bypass NIC.`,
	RunE: runEchoServer,
}
