package ipcring

import (
	"errors"
	"fmt"
	"syscall"
)

// Error is a structured ring buffer error, in the shape of the teacher
// pack's own *Error type (see its errors.go): an operation tag, the
// resource it happened on, a coarse category, an optional kernel
// errno, and the wrapped cause.
type Error struct {
	Op    string    // operation that failed, e.g. "CommitWrite", "ArmNotification"
	Ring  string     // ring name (empty if not applicable)
	Slot  int        // slot index, -1 if not applicable
	Code  ErrorCode
	Errno syscall.Errno // kernel errno, 0 if not applicable
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.Ring != "" {
		parts = append(parts, fmt.Sprintf("ring=%s", e.Ring))
	}
	if e.Slot >= 0 {
		parts = append(parts, fmt.Sprintf("slot=%d", e.Slot))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", e.Errno))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if len(parts) > 0 {
		return fmt.Sprintf("ipcring: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("ipcring: %s", msg)
}

// Unwrap supports errors.Is/As against the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is supports errors.Is against both *Error and the package's sentinel
// SentinelError values, comparing by Code.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if se, ok := target.(SentinelError); ok {
		return e.Code == ErrorCode(se)
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// ErrorCode enumerates the coarse outcomes spec §7 distinguishes.
type ErrorCode string

const (
	ErrCodeAgain              ErrorCode = "would block"
	ErrCodeTimeout            ErrorCode = "timed out"
	ErrCodeOverrun            ErrorCode = "ring overrun"
	ErrCodeBadMagic           ErrorCode = "bad wire magic"
	ErrCodeBadVersion         ErrorCode = "bad wire version"
	ErrCodeClosed             ErrorCode = "ring closed"
	ErrCodeInvalidParameters  ErrorCode = "invalid parameters"
	ErrCodeNotArmed           ErrorCode = "notification not armed"
	ErrCodeAlreadyArmed       ErrorCode = "notification already armed"
	ErrCodeIOError            ErrorCode = "I/O error"
	ErrCodePermissionDenied   ErrorCode = "permission denied"
	ErrCodeInsufficientMemory ErrorCode = "insufficient memory"
)

// SentinelError lets callers write errors.Is(err, ipcring.ErrAgain)
// without reaching for the full *Error shape.
type SentinelError string

func (e SentinelError) Error() string { return string(e) }

// Sentinel errors, analogous to the teacher pack's legacy UblkError
// constants kept alongside the structured *Error type.
const (
	ErrAgain   SentinelError = SentinelError(ErrCodeAgain)
	ErrTimeout SentinelError = SentinelError(ErrCodeTimeout)
	ErrOverrun SentinelError = SentinelError(ErrCodeOverrun)
	ErrClosed  SentinelError = SentinelError(ErrCodeClosed)
)

// NewError creates a structured error with no ring/slot context.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Slot: -1, Code: code, Msg: msg}
}

// NewErrorWithErrno creates a structured error carrying a kernel errno.
func NewErrorWithErrno(op string, code ErrorCode, errno syscall.Errno) *Error {
	return &Error{Op: op, Slot: -1, Code: code, Errno: errno, Msg: errno.Error()}
}

// NewRingError creates a structured error scoped to a named ring.
func NewRingError(op, ring string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Ring: ring, Slot: -1, Code: code, Msg: msg}
}

// NewSlotError creates a structured error scoped to a ring slot.
func NewSlotError(op, ring string, slot int, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Ring: ring, Slot: slot, Code: code, Msg: msg}
}

// WrapError wraps inner with ring context, preserving an existing
// *Error's fields (updating only Op) or mapping a raw syscall.Errno to
// a coarse ErrorCode.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}

	if re, ok := inner.(*Error); ok {
		return &Error{Op: op, Ring: re.Ring, Slot: re.Slot, Code: re.Code, Errno: re.Errno, Msg: re.Msg, Inner: re.Inner}
	}

	if errno, ok := inner.(syscall.Errno); ok {
		return &Error{Op: op, Slot: -1, Code: mapErrnoToCode(errno), Errno: errno, Msg: errno.Error(), Inner: inner}
	}

	return &Error{Op: op, Slot: -1, Code: ErrCodeIOError, Msg: inner.Error(), Inner: inner}
}

func mapErrnoToCode(errno syscall.Errno) ErrorCode {
	switch errno {
	case syscall.EINVAL, syscall.E2BIG:
		return ErrCodeInvalidParameters
	case syscall.EPERM, syscall.EACCES:
		return ErrCodePermissionDenied
	case syscall.ENOMEM, syscall.ENOSPC:
		return ErrCodeInsufficientMemory
	case syscall.ETIMEDOUT:
		return ErrCodeTimeout
	default:
		return ErrCodeIOError
	}
}

// IsCode reports whether err is (or wraps) a structured *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsErrno reports whether err is (or wraps) a structured *Error carrying the given errno.
func IsErrno(err error, errno syscall.Errno) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Errno == errno
	}
	return false
}
