package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adiknoth/ffado-sub007/internal/config"
	"github.com/adiknoth/ffado-sub007/internal/constants"
)

var inspectConfigPath string

// inspectCmd reports whether a ring's shared memory region currently
// exists on disk, without opening the ring itself. mqueue's Create/Open
// registry is scoped to a single process (see DESIGN.md), so there is
// no way for this short-lived process to introspect another process's
// ping/pong queue depth the way it can stat a /dev/shm file; this
// subcommand is scoped to what can honestly be observed from outside.
var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Report whether a ring's shared memory region exists",
	RunE: func(_ *cobra.Command, _ []string) error {
		return runInspect(inspectConfigPath)
	},
}

func init() {
	inspectCmd.Flags().StringVarP(&inspectConfigPath, "config", "c", "", "path to the ring's YAML config (required)")
	inspectCmd.MarkFlagRequired("config")
}

func runInspect(path string) error {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	regionPath := "/dev/shm/" + cfg.Ring.Name + constants.RegionSuffix
	info, err := os.Stat(regionPath)

	fmt.Printf("ring:   %s\n", cfg.Ring.Name)
	fmt.Printf("role:   %s\n", cfg.Ring.Role)
	fmt.Printf("slots:  %d\n", cfg.Ring.Slots)
	fmt.Printf("block:  %s\n", cfg.Ring.BlockSize)
	fmt.Printf("region: %s\n", regionPath)

	switch {
	case err == nil:
		fmt.Printf("status: present (%d bytes)\n", info.Size())
	case os.IsNotExist(err):
		fmt.Println("status: absent")
	default:
		return fmt.Errorf("stat %s: %w", regionPath, err)
	}
	return nil
}
