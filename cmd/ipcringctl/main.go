// Command ipcringctl constructs and drives FFADO-style IPC ring buffers
// from a YAML configuration file: serve a live master/slave endpoint,
// tap a ring read-only for diagnostics, or inspect whether a ring's
// shared memory region currently exists.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ipcringctl",
	Short: "Drive FFADO-style IPC ring buffers from a YAML config",
}

func main() {
	rootCmd.AddCommand(serveCmd, tapCmd, inspectCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}
