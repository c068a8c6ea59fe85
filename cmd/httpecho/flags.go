package main

import "github.com/spf13/viper"

func init() {
	rootCmd.Flags().String("ip", "10.0.0.2", "local IPv4 address")
	rootCmd.Flags().String("gateway", "10.0.0.1", "default gateway")
	rootCmd.Flags().Uint16("port", 8080, "listen port")
	rootCmd.Flags().Int("backlog", 16, "listen backlog")

	viper.BindPFlag("httpecho.ip", rootCmd.Flags().Lookup("ip"))
	viper.BindPFlag("httpecho.gateway", rootCmd.Flags().Lookup("gateway"))
	viper.BindPFlag("httpecho.port", rootCmd.Flags().Lookup("port"))
	viper.BindPFlag("httpecho.backlog", rootCmd.Flags().Lookup("backlog"))
}
