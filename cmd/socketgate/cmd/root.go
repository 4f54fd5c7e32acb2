// Package cmd provides the CLI commands for socketgate.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/socketgate/socketgate/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "socketgate",
	Short: "socketgate - Sails socket bridge for HTTP applications",
	Long: `socketgate accepts Sails socket clients and turns every virtual request
they send into an ordinary HTTP request against an upstream application.

Each connection keeps its own cookie jar, replays sticky handshake headers
and strips configured response headers before replying.

Quick start:
  1. Create a config file: socketgate.yaml
  2. Run: socketgate start

Configuration:
  Config is loaded from socketgate.yaml in the current directory,
  $HOME/.socketgate/, or /etc/socketgate/.

  Environment variables can override config values with the SOCKETGATE_ prefix.
  Example: SOCKETGATE_UPSTREAM_URL=http://127.0.0.1:8080

Commands:
  start       Start the gateway
  stop        Stop the running gateway
  config      Print the effective configuration
  hash-token  Generate an Argon2id hash for the admin token
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./socketgate.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
