package ipcring

import (
	"errors"
	"syscall"
	"testing"
)

func TestStructuredError(t *testing.T) {
	err := NewRingError("CommitWrite", "session", ErrCodeOverrun, "slot not yet consumed")

	if err.Op != "CommitWrite" {
		t.Errorf("Op = %q, want CommitWrite", err.Op)
	}
	if err.Code != ErrCodeOverrun {
		t.Errorf("Code = %q, want %q", err.Code, ErrCodeOverrun)
	}
	want := "ipcring: slot not yet consumed (op=CommitWrite)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestErrorWithErrno(t *testing.T) {
	err := NewErrorWithErrno("Open", ErrCodePermissionDenied, syscall.EACCES)

	if err.Errno != syscall.EACCES {
		t.Errorf("Errno = %v, want EACCES", err.Errno)
	}
	if !IsErrno(err, syscall.EACCES) {
		t.Error("IsErrno() = false, want true")
	}
}

func TestSlotError(t *testing.T) {
	err := NewSlotError("ReserveRead", "session", 2, ErrCodeAgain, "slot empty")

	if err.Slot != 2 {
		t.Errorf("Slot = %d, want 2", err.Slot)
	}
	if !IsCode(err, ErrCodeAgain) {
		t.Error("IsCode(ErrCodeAgain) = false, want true")
	}
}

func TestErrorIsSentinel(t *testing.T) {
	err := NewError("Receive", ErrCodeTimeout, "deadline exceeded")

	if !errors.Is(err, ErrTimeout) {
		t.Error("errors.Is(err, ErrTimeout) = false, want true")
	}
	if errors.Is(err, ErrAgain) {
		t.Error("errors.Is(err, ErrAgain) = true, want false")
	}
}

func TestWrapErrorPreservesStructuredFields(t *testing.T) {
	inner := NewSlotError("CommitRead", "session", 1, ErrCodeOverrun, "overrun")
	wrapped := WrapError("Read", inner)

	if wrapped.Op != "Read" {
		t.Errorf("Op = %q, want Read", wrapped.Op)
	}
	if wrapped.Code != ErrCodeOverrun || wrapped.Slot != 1 {
		t.Errorf("wrapped = %+v, want Code=%q Slot=1", wrapped, ErrCodeOverrun)
	}
}

func TestWrapErrorMapsErrno(t *testing.T) {
	wrapped := WrapError("Lock", syscall.ENOMEM)

	if wrapped.Code != ErrCodeInsufficientMemory {
		t.Errorf("Code = %q, want %q", wrapped.Code, ErrCodeInsufficientMemory)
	}
}

func TestWrapErrorNil(t *testing.T) {
	if WrapError("op", nil) != nil {
		t.Error("WrapError(op, nil) should return nil")
	}
}

func TestIsCodeAndIsErrnoOnNil(t *testing.T) {
	if IsCode(nil, ErrCodeTimeout) {
		t.Error("IsCode(nil, ...) should be false")
	}
	if IsErrno(nil, syscall.EIO) {
		t.Error("IsErrno(nil, ...) should be false")
	}
}
