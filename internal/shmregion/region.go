// Package shmregion implements the named shared memory region of spec
// §4.3: a fixed-size POSIX shared memory object mapped by both the
// master and the slave side of a ring.
//
// The backing store is a plain file under /dev/shm/<name>, sized with
// Truncate and mapped with golang.org/x/sys/unix.Mmap, the same
// approach the retrieval pack's AlephTX shm/seqlock reference uses
// (there via raw syscall.Mmap; here via the teacher pack's existing
// golang.org/x/sys dependency for parity with its unix.Mmap use in
// internal/uring/minimal.go). Locking pages resident uses unix.Mlock,
// mirroring the same file's intent to keep a hot IPC region out of
// swap.
package shmregion

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/adiknoth/ffado-sub007/internal/interfaces"
)

// ErrClosed is returned by operations on a closed Region.
var ErrClosed = errors.New("shmregion: region closed")

// ErrOutOfBounds is returned when a requested Block falls outside the
// mapped region.
var ErrOutOfBounds = errors.New("shmregion: block out of bounds")

const shmDir = "/dev/shm"

// Region is a named, fixed-size memory mapping backed by a file under
// /dev/shm.
type Region struct {
	name   string
	path   string
	size   int
	data   []byte
	access interfaces.Access
	owner  bool // true if this side created (and will unlink) the object
	locked bool

	mu     sync.Mutex
	closed bool
}

var _ interfaces.Region = (*Region)(nil)

// Create makes a new named region of the given size, mapped
// read-write, owned by the caller (the ring's master side per spec
// §5). Creating over an existing name truncates it.
func Create(name string, size int) (*Region, error) {
	path := shmDir + "/" + name
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("shmregion: create %s: %w", path, err)
	}
	defer f.Close()

	if err := f.Truncate(int64(size)); err != nil {
		return nil, fmt.Errorf("shmregion: truncate %s: %w", path, err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shmregion: mmap %s: %w", path, err)
	}

	return &Region{name: name, path: path, size: size, data: data, access: interfaces.ReadWrite, owner: true}, nil
}

// Open maps an existing named region (the ring's slave side). access
// controls the mmap protection: ReadOnly maps PROT_READ only.
func Open(name string, size int, access interfaces.Access) (*Region, error) {
	path := shmDir + "/" + name
	flag := os.O_RDWR
	prot := unix.PROT_READ | unix.PROT_WRITE
	if access == interfaces.ReadOnly {
		flag = os.O_RDONLY
		prot = unix.PROT_READ
	}

	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("shmregion: open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("shmregion: stat %s: %w", path, err)
	}
	if int(info.Size()) < size {
		return nil, fmt.Errorf("shmregion: %s is %d bytes, want at least %d", path, info.Size(), size)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, prot, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shmregion: mmap %s: %w", path, err)
	}

	return &Region{name: name, path: path, size: size, data: data, access: access}, nil
}

// Block returns a slice view of [offset, offset+length) into the
// mapping. The slice aliases the mapped memory: callers on the
// ReadOnly side must not write through it.
func (r *Region) Block(offset, length int) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if offset < 0 || length < 0 || offset+length > r.size {
		return nil, ErrOutOfBounds
	}
	return r.data[offset : offset+length], nil
}

// Size returns the region's total mapped size in bytes.
func (r *Region) Size() int { return r.size }

// LockInMemory pins or unpins the mapping's pages against swap via
// mlock(2)/munlock(2) (spec §4.3: "implementations may lock the region
// into physical memory").
func (r *Region) LockInMemory(lock bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if lock == r.locked {
		return nil
	}
	var err error
	if lock {
		err = unix.Mlock(r.data)
	} else {
		err = unix.Munlock(r.data)
	}
	if err != nil {
		return fmt.Errorf("shmregion: lock=%v: %w", lock, err)
	}
	r.locked = lock
	return nil
}

// Close unmaps the region. The owning (creating) side additionally
// unlinks the backing /dev/shm object; a non-owning side just drops
// its mapping, leaving the object for the owner to remove.
func (r *Region) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	var err error
	if r.locked {
		_ = unix.Munlock(r.data)
	}
	if uerr := unix.Munmap(r.data); uerr != nil {
		err = fmt.Errorf("shmregion: munmap %s: %w", r.path, uerr)
	}
	if r.owner {
		if rerr := os.Remove(r.path); rerr != nil && !os.IsNotExist(rerr) && err == nil {
			err = fmt.Errorf("shmregion: unlink %s: %w", r.path, rerr)
		}
	}
	return err
}

// Name returns the region's configured name.
func (r *Region) Name() string { return r.name }
