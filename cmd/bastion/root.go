package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "bastion",
	Short: "Bastion - multi-level security access-control engine",
	Long: `Bastion is a multi-level security access-control engine that serves
classified records behind classification and need-to-know enforcement.

It provides:
  - Record and cell-level access decisions with redaction
  - Search-time security filtering and field masking
  - A synchronous, tamper-evident audit trail
  - Operator-editable sharing policy with hot reload`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
