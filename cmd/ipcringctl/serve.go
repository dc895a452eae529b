package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	ipcring "github.com/adiknoth/ffado-sub007"
	"github.com/adiknoth/ffado-sub007/internal/config"
	"github.com/adiknoth/ffado-sub007/internal/logging"
)

var serveConfigPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Open a ring endpoint per a config file and stream blocks until signaled",
	RunE: func(_ *cobra.Command, _ []string) error {
		return runServe(serveConfigPath)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "path to the ring's YAML config (required)")
	serveCmd.MarkFlagRequired("config")
}

func runServe(path string) error {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logging.NewLogger(&logging.Config{Level: logging.ParseLevel(cfg.Logging.Level), Output: os.Stderr})
	logging.SetDefault(log)

	ringCfg := ringConfigFrom(cfg, log)

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

	log.Info("ring opened", "name", cfg.Ring.Name, "role", cfg.Ring.Role, "direction", cfg.Ring.Direction,
		"slots", cfg.Ring.Slots, "block_size", cfg.Ring.BlockSize)

	done := make(chan struct{})
	go serveLoop(ring, log, done)

	waitForSignal(log)
	close(done)
	time.Sleep(10 * time.Millisecond) // let a blocked Write/Read's next iteration observe done

	snap := ring.Metrics().Snapshot()
	log.Info("final metrics", "written", snap.BlocksWritten, "read", snap.BlocksRead,
		"overruns", snap.Overruns, "warnings", snap.Warnings)
	return nil
}

// serveLoop drives the ring until done is closed: a master/outward ring
// writes an incrementing counter payload every block, a slave/inward
// ring reads and logs each one (the teacher pack's device lifecycle has
// no equivalent steady-state loop, so this follows the shape of its
// signal-wait-then-cleanup main instead, just run continuously between
// the open and the signal).
func serveLoop(ring *ipcring.Ring, log *logging.Logger, done <-chan struct{}) {
	info := ring.Info()
	buf := make([]byte, info.BlockSize)

	var counter uint64
	for {
		select {
		case <-done:
			return
		default:
		}

		var err error
		if info.Direction == ipcring.DirectionOutward {
			for i := range buf {
				buf[i] = 0
			}
			copy(buf, fmt.Sprintf("seq:%d", counter))
			err = ring.Write(buf)
			counter++
		} else {
			err = ring.Read(buf)
		}

		switch {
		case err == nil:
			continue
		case errors.Is(err, ipcring.ErrAgain):
			time.Sleep(time.Millisecond)
		case errors.Is(err, ipcring.ErrTimeout):
			continue
		default:
			log.Warn("ring I/O error", "error", err)
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func ringConfigFrom(cfg *config.Config, log *logging.Logger) ipcring.Config {
	return ipcring.Config{
		Name:          cfg.Ring.Name,
		Direction:     cfg.Ring.Direction,
		Blocking:      false,
		Slots:         cfg.Ring.Slots,
		BlockSize:     int(cfg.Ring.BlockSize),
		QueueCapacity: cfg.Ring.MaxMessages,
		Logger:        log.WithRing(cfg.Ring.Name),
	}
}

// waitForSignal blocks until SIGINT or SIGTERM, logging whichever
// arrives (grounded on the teacher pack's cmd/ublk-mem/main.go signal
// handling, minus its SIGUSR1 stack-dump hook, which has no analogue
// here since there is no long-lived kernel device to debug mid-flight).
func waitForSignal(log *logging.Logger) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	sig := <-ch
	log.Info("received shutdown signal", "signal", sig)
}
