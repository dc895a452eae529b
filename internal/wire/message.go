// Package wire implements the fixed 20-byte message format the ring
// buffer's ping/pong queues carry (spec §3, §6): a magic/version header
// plus a {kind, slot, seq} payload. The layout is little-endian and
// manually packed field-by-field, in the style of the teacher pack's
// internal/uapi marshal/unmarshal functions, rather than relying on
// encoding/binary's struct-reflection Write/Read.
package wire

import (
	"encoding/binary"
	"errors"

	"github.com/adiknoth/ffado-sub007/internal/constants"
)

// Size is the fixed wire size of one message: magic(4) + version(4) +
// kind(4) + slot(4) + seq(4).
const Size = 20

// ErrBadMagic and ErrBadVersion are returned by Unmarshal when a message
// fails the header check (spec §3 invariant on receive, §8 property 5/11).
var (
	ErrBadMagic      = errors.New("wire: bad magic")
	ErrBadVersion    = errors.New("wire: bad version")
	ErrShortMessage  = errors.New("wire: message too short")
)

// Message is the decoded form of one ping/pong entry.
type Message struct {
	Kind uint32 // constants.KindDataWritten or constants.KindDataAck
	Slot uint32
	Seq  uint32
}

// Marshal serialises msg into buf and returns the Size-byte slice
// written: buf[:Size] when buf holds at least Size bytes, otherwise a
// newly allocated Size-byte slice (buf is left untouched).
func Marshal(msg Message, buf []byte) []byte {
	if len(buf) < Size {
		buf = make([]byte, Size)
	}
	binary.LittleEndian.PutUint32(buf[0:4], constants.WireMagic)
	binary.LittleEndian.PutUint32(buf[4:8], constants.WireVersion)
	binary.LittleEndian.PutUint32(buf[8:12], msg.Kind)
	binary.LittleEndian.PutUint32(buf[12:16], msg.Slot)
	binary.LittleEndian.PutUint32(buf[16:20], msg.Seq)
	return buf[:Size]
}

// Unmarshal decodes data into a Message, rejecting anything whose magic
// or version does not match (spec §6: "A receiver MUST reject any
// message whose magic or version does not match").
func Unmarshal(data []byte) (Message, error) {
	if len(data) < Size {
		return Message{}, ErrShortMessage
	}
	magic := binary.LittleEndian.Uint32(data[0:4])
	if magic != constants.WireMagic {
		return Message{}, ErrBadMagic
	}
	version := binary.LittleEndian.Uint32(data[4:8])
	if version != constants.WireVersion {
		return Message{}, ErrBadVersion
	}
	return Message{
		Kind: binary.LittleEndian.Uint32(data[8:12]),
		Slot: binary.LittleEndian.Uint32(data[12:16]),
		Seq:  binary.LittleEndian.Uint32(data[16:20]),
	}, nil
}
