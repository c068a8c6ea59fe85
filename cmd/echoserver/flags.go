package main

import (
	"github.com/spf13/viper"
)

func init() {
	rootCmd.Flags().String("ip", "10.0.0.2", "local IPv4 address")
	rootCmd.Flags().String("gateway", "10.0.0.1", "default gateway")
	rootCmd.Flags().Uint16("port", 7000, "listen port")
	rootCmd.Flags().Int("cores", 1, "number of reactor cores (demo Driver only, see LoopbackDriver)")
	rootCmd.Flags().Int("backlog", 16, "per-core listen backlog")
	rootCmd.Flags().String("admin-addr", "", "optional host-stack admin API address, e.g. 127.0.0.1:8081 (empty disables it)")

	viper.BindPFlag("echoserver.ip", rootCmd.Flags().Lookup("ip"))
	viper.BindPFlag("echoserver.gateway", rootCmd.Flags().Lookup("gateway"))
	viper.BindPFlag("echoserver.port", rootCmd.Flags().Lookup("port"))
	viper.BindPFlag("echoserver.cores", rootCmd.Flags().Lookup("cores"))
	viper.BindPFlag("echoserver.backlog", rootCmd.Flags().Lookup("backlog"))
	viper.BindPFlag("echoserver.admin-addr", rootCmd.Flags().Lookup("admin-addr"))
}
