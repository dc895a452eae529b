package mqueue

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/adiknoth/ffado-sub007/internal/interfaces"
	"github.com/adiknoth/ffado-sub007/internal/wire"
)

func TestSendReceiveRoundTrip(t *testing.T) {
	q := New("test:ping", 4)
	defer q.Close()

	msg := interfaces.Message{Kind: 1, Slot: 0, Seq: 1}
	if res := q.Send(msg, time.Second); res != interfaces.Ok {
		t.Fatalf("Send() = %v, want Ok", res)
	}

	got, res := q.Receive(time.Second)
	if res != interfaces.Ok {
		t.Fatalf("Receive() = %v, want Ok", res)
	}
	if got != msg {
		t.Fatalf("Receive() = %+v, want %+v", got, msg)
	}
}

func TestReceiveAgainOnEmptyZeroTimeout(t *testing.T) {
	q := New("test:ping", 4)
	defer q.Close()

	_, res := q.Receive(0)
	if res != interfaces.Again {
		t.Fatalf("Receive() = %v, want Again", res)
	}
}

func TestSendTimeoutWhenFull(t *testing.T) {
	q := New("test:ping", 2)
	defer q.Close()

	for i := 0; i < 2; i++ {
		if res := q.Send(interfaces.Message{Seq: uint32(i)}, time.Second); res != interfaces.Ok {
			t.Fatalf("Send(%d) = %v, want Ok", i, res)
		}
	}

	res := q.Send(interfaces.Message{Seq: 99}, 20*time.Millisecond)
	if res != interfaces.Timeout {
		t.Fatalf("Send() on full queue = %v, want Timeout", res)
	}
}

func TestArmNotificationFiresOnceOnNextSend(t *testing.T) {
	q := New("test:ping", 4)
	defer q.Close()

	fired := make(chan interfaces.Message, 1)
	if err := q.SetNotificationHandler(func(m interfaces.Message) { fired <- m }); err != nil {
		t.Fatalf("SetNotificationHandler: %v", err)
	}
	if err := q.ArmNotification(); err != nil {
		t.Fatalf("ArmNotification: %v", err)
	}

	msg := interfaces.Message{Kind: 2, Slot: 3, Seq: 7}
	if res := q.Send(msg, time.Second); res != interfaces.Ok {
		t.Fatalf("Send() = %v, want Ok", res)
	}

	select {
	case got := <-fired:
		if got != msg {
			t.Fatalf("handler got %+v, want %+v", got, msg)
		}
	case <-time.After(time.Second):
		t.Fatal("notification handler did not fire")
	}

	// Second send after the one-shot fire must not notify again.
	if res := q.Send(interfaces.Message{Seq: 8}, time.Second); res != interfaces.Ok {
		t.Fatalf("Send() = %v, want Ok", res)
	}
	select {
	case got := <-fired:
		t.Fatalf("handler fired a second time unexpectedly: %+v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestArmNotificationTwiceErrors(t *testing.T) {
	q := New("test:ping", 4)
	defer q.Close()

	_ = q.SetNotificationHandler(func(interfaces.Message) {})
	if err := q.ArmNotification(); err != nil {
		t.Fatalf("ArmNotification: %v", err)
	}
	if err := q.ArmNotification(); err != ErrAlreadyArmed {
		t.Fatalf("ArmNotification() = %v, want ErrAlreadyArmed", err)
	}
}

func TestArmNotificationRequiresHandler(t *testing.T) {
	q := New("test:ping", 4)
	defer q.Close()

	if err := q.ArmNotification(); err != ErrHandlerRequired {
		t.Fatalf("ArmNotification() = %v, want ErrHandlerRequired", err)
	}
}

func TestDisarmNotificationWithoutArmErrors(t *testing.T) {
	q := New("test:ping", 4)
	defer q.Close()

	if err := q.DisarmNotification(); err != ErrNotArmed {
		t.Fatalf("DisarmNotification() = %v, want ErrNotArmed", err)
	}
}

func TestCloseIsIdempotentError(t *testing.T) {
	q := New("test:ping", 4)
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := q.Close(); err != ErrClosed {
		t.Fatalf("second Close() = %v, want ErrClosed", err)
	}
}

func TestReceiveRejectsBadMagic(t *testing.T) {
	q := New("test:ping", 4)
	defer q.Close()

	good := wire.Marshal(wire.Message{Kind: 1, Slot: 0, Seq: 0}, make([]byte, wire.Size))
	bad := make([]byte, wire.Size)
	copy(bad, good)
	binary.LittleEndian.PutUint32(bad[0:4], 0xdeadbeef)

	if res := q.SendRaw(bad, time.Second); res != interfaces.Ok {
		t.Fatalf("SendRaw(bad) = %v, want Ok", res)
	}
	if _, res := q.Receive(time.Second); res != interfaces.Error {
		t.Fatalf("Receive() on bad magic = %v, want Error", res)
	}

	// A subsequent valid message must still be delivered normally.
	if res := q.SendRaw(good, time.Second); res != interfaces.Ok {
		t.Fatalf("SendRaw(good) = %v, want Ok", res)
	}
	msg, res := q.Receive(time.Second)
	if res != interfaces.Ok {
		t.Fatalf("Receive() on good message = %v, want Ok", res)
	}
	if msg.Kind != 1 {
		t.Fatalf("msg = %+v, want Kind=1", msg)
	}
}

func TestSendReceiveAfterCloseErrors(t *testing.T) {
	q := New("test:ping", 4)
	_ = q.Close()

	if res := q.Send(interfaces.Message{}, 0); res != interfaces.Error {
		t.Fatalf("Send() after Close = %v, want Error", res)
	}
	if _, res := q.Receive(0); res != interfaces.Error {
		t.Fatalf("Receive() after Close = %v, want Error", res)
	}
}
