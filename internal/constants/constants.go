// Package constants collects the default tunables shared across the ring
// buffer, message queue and shared memory layers.
package constants

import "time"

// Wire format constants (see spec §6).
const (
	// WireMagic identifies a well-formed message header.
	WireMagic uint32 = 0x57439812
	// WireVersion is the only wire version this module speaks.
	WireVersion uint32 = 0x00000000
)

// Message kinds carried on the ping/pong queues.
const (
	KindDataWritten uint32 = 1
	KindDataAck     uint32 = 2
)

// Queue bounds, recommended in spec §6.
const (
	// MaxMessages bounds how many messages a ping/pong queue may hold.
	MaxMessages = 10
	// MaxMessageSize bounds the serialised size of one message.
	MaxMessageSize = 1024
)

// DefaultQueueTimeout is the reference per-queue blocking timeout (spec §4.2).
const DefaultQueueTimeout = 10 * time.Second

// DefaultPriority is the only priority class the core protocol uses.
const DefaultPriority = 0

// RegionSuffix, PingSuffix and PongSuffix name the three kernel-level
// objects backing one ring (spec §6): "<name>:mem", "<name>:ping",
// "<name>:pong".
const (
	RegionSuffix = ":mem"
	PingSuffix   = ":ping"
	PongSuffix   = ":pong"
)

// DefaultNumSlots and DefaultBlockSize seed the CLI's default config and are
// the values a ring Config falls back to when Slots or BlockSize is left
// zero. Both ends of a ring must still use the same N and B.
const (
	DefaultNumSlots  = 4
	DefaultBlockSize = 4096
)
