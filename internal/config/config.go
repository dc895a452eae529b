// Package config loads the YAML configuration for an ipcringctl
// instance, following the LoadConfig-over-DefaultConfig pattern of the
// retrieval pack's sakateka-yanet2 coordinator (coordinator/cfg.go).
package config

import (
	"fmt"
	"os"

	"github.com/c2h5oh/datasize"
	"gopkg.in/yaml.v3"

	"github.com/adiknoth/ffado-sub007/internal/constants"
)

// Role selects which side of a ring this process opens.
type Role string

const (
	RoleMaster Role = "master"
	RoleSlave  Role = "slave"
)

// Direction selects which half of the ping/pong pair this process
// writes to versus listens on (spec §5: outward vs inward).
type Direction string

const (
	DirectionOutward Direction = "outward"
	DirectionInward  Direction = "inward"
)

// Config is the top-level ipcringctl configuration.
type Config struct {
	// Ring names the shared memory region and its ping/pong queues.
	Ring RingConfig `yaml:"ring"`
	// Logging controls the leveled logger.
	Logging LoggingConfig `yaml:"logging"`
}

// RingConfig describes one ring buffer endpoint.
type RingConfig struct {
	// Name is the base name shared by the region and its queues.
	Name string `yaml:"name"`
	// Role selects master (creates and owns) or slave (opens existing).
	Role Role `yaml:"role"`
	// Direction selects which side of the ping/pong pair this process drives.
	Direction Direction `yaml:"direction"`
	// Slots is the number of fixed-size blocks in the region (N in spec §3).
	Slots int `yaml:"slots"`
	// BlockSize is the size of each block, accepting human-readable
	// forms like "4KB" via datasize.ByteSize (spec §3, B).
	BlockSize datasize.ByteSize `yaml:"block_size"`
	// MaxMessages bounds the ping/pong queue depth.
	MaxMessages int `yaml:"max_messages"`
}

// LoggingConfig controls the leveled logger's verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the configuration used when a YAML file omits a field.
func DefaultConfig() *Config {
	return &Config{
		Ring: RingConfig{
			Role:        RoleMaster,
			Direction:   DirectionOutward,
			Slots:       constants.DefaultNumSlots,
			BlockSize:   datasize.ByteSize(constants.DefaultBlockSize),
			MaxMessages: constants.MaxMessages,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// LoadConfig reads and parses a YAML configuration file, applying
// DefaultConfig for any field the file leaves unset.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if cfg.Ring.Name == "" {
		return nil, fmt.Errorf("config: %s: ring.name is required", path)
	}
	if cfg.Ring.Role != RoleMaster && cfg.Ring.Role != RoleSlave {
		return nil, fmt.Errorf("config: %s: ring.role must be %q or %q, got %q", path, RoleMaster, RoleSlave, cfg.Ring.Role)
	}
	if cfg.Ring.Direction != DirectionOutward && cfg.Ring.Direction != DirectionInward {
		return nil, fmt.Errorf("config: %s: ring.direction must be %q or %q, got %q", path, DirectionOutward, DirectionInward, cfg.Ring.Direction)
	}
	if cfg.Ring.Slots <= 0 {
		return nil, fmt.Errorf("config: %s: ring.slots must be positive", path)
	}
	if cfg.Ring.BlockSize <= 0 {
		return nil, fmt.Errorf("config: %s: ring.block_size must be positive", path)
	}

	return cfg, nil
}
