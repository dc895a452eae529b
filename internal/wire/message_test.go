package wire

import (
	"encoding/binary"
	"testing"

	"github.com/adiknoth/ffado-sub007/internal/constants"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	msg := Message{Kind: constants.KindDataWritten, Slot: 2, Seq: 17}
	buf := Marshal(msg, make([]byte, Size))

	got, err := Unmarshal(buf)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != msg {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, msg)
	}
}

func TestMarshalGrowsShortBuffer(t *testing.T) {
	buf := Marshal(Message{Kind: constants.KindDataAck, Slot: 1, Seq: 1}, nil)
	if len(buf) != Size {
		t.Fatalf("len(buf) = %d, want %d", len(buf), Size)
	}
}

func TestUnmarshalRejectsShortMessage(t *testing.T) {
	_, err := Unmarshal(make([]byte, Size-1))
	if err != ErrShortMessage {
		t.Fatalf("Unmarshal() = %v, want ErrShortMessage", err)
	}
}

func TestUnmarshalRejectsBadMagic(t *testing.T) {
	buf := Marshal(Message{Kind: constants.KindDataWritten}, make([]byte, Size))
	binary.LittleEndian.PutUint32(buf[0:4], 0xdeadbeef)

	_, err := Unmarshal(buf)
	if err != ErrBadMagic {
		t.Fatalf("Unmarshal() = %v, want ErrBadMagic", err)
	}
}

func TestUnmarshalRejectsBadVersion(t *testing.T) {
	buf := Marshal(Message{Kind: constants.KindDataWritten}, make([]byte, Size))
	binary.LittleEndian.PutUint32(buf[4:8], constants.WireVersion+1)

	_, err := Unmarshal(buf)
	if err != ErrBadVersion {
		t.Fatalf("Unmarshal() = %v, want ErrBadVersion", err)
	}
}
