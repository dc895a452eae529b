// Package rmutex implements the scoped mutex described in spec §4.1: a
// non-recursive, error-checking lock with a best-effort "is locked?"
// probe, plus a Guard helper that releases on every exit path.
//
// This mirrors the teacher pack's pattern of guarding short, per-resource
// critical sections with a plain sync.Mutex (see the per-tag
// tagMutexes []sync.Mutex in the teacher's queue runner), generalised to
// the reservation locks the ring buffer holds across a blocking
// suspension (spec §5).
package rmutex

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrNotLocked is returned by Unlock when the mutex is not currently held.
var ErrNotLocked = errors.New("rmutex: not locked")

// Mutex is a non-recursive, error-checking lock. Relocking from the same
// goroutine without an intervening Unlock deadlocks, exactly as
// sync.Mutex does; the spec leaves that choice open and this module picks
// non-recursive to match sync.Mutex's semantics.
type Mutex struct {
	mu     sync.Mutex
	locked atomic.Bool
}

// Lock blocks until the mutex is acquired.
func (m *Mutex) Lock() {
	m.mu.Lock()
	m.locked.Store(true)
}

// TryLock attempts to acquire the mutex without blocking.
func (m *Mutex) TryLock() bool {
	if !m.mu.TryLock() {
		return false
	}
	m.locked.Store(true)
	return true
}

// Unlock releases the mutex. Unlocking an unlocked mutex returns
// ErrNotLocked rather than panicking, per spec §4.1.
func (m *Mutex) Unlock() error {
	if !m.locked.CompareAndSwap(true, false) {
		return ErrNotLocked
	}
	m.mu.Unlock()
	return nil
}

// IsLocked is a best-effort, non-atomic-with-respect-to-callers probe.
// It exists only for defensive assertions, never as a synchronisation
// primitive (spec §4.1).
func (m *Mutex) IsLocked() bool {
	return m.locked.Load()
}

// Guard is a scoped acquisition helper: it locks m on construction and
// releases it on Release, or is a no-op if already released. This is the
// Go re-expression of the RAII scoped-lock pattern in
// original_source/libffado/src/libutil/PosixMutex.h.
type Guard struct {
	m        *Mutex
	released bool
}

// Acquire locks m and returns a Guard that releases it exactly once.
func Acquire(m *Mutex) *Guard {
	m.Lock()
	return &Guard{m: m}
}

// Release unlocks the guarded mutex. Calling Release more than once, or
// after EarlyRelease, is a no-op.
func (g *Guard) Release() {
	if g.released {
		return
	}
	g.released = true
	_ = g.m.Unlock()
}

// EarlyRelease releases the lock before the guard would normally go out
// of scope and marks it so a later Release is a no-op. This mirrors the
// spec's early_unlock() on the scoped-acquisition helper.
func (g *Guard) EarlyRelease() {
	g.Release()
}
