// Package serial implements the Serialiser: a stable, checksummed,
// little-endian on-disk layout for the whole Engine, written through
// a raw sector device abstraction the caller owns exclusively for the
// duration of Save or Load (spec.md §4.7, §5). The exclusive-lock
// pattern is grounded on cmd/bd/sync.go's flock.New/TryLock/Unlock
// guard around its own state file.
package serial

import (
	"fmt"
	"os"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"github.com/ghartrid/voltree/internal/apierr"
)

// Device is the raw sector-addressable storage the Serialiser reads
// and writes through (spec.md §6.2). Implementations need not support
// concurrent use; the Engine guarantees at most one Save or Load is
// in flight against a given Device at a time.
type Device interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Flush() error
}

// FileDevice is a Device backed by a regular file, guarded by an
// external advisory lock file so two processes never save/load the
// same volume concurrently (spec.md §5 "exclusive external lock only
// around sector-device save/load").
type FileDevice struct {
	f    *os.File
	lock *flock.Flock
}

// NewFileDevice opens path for read/write (creating it if absent) and
// acquires an exclusive, non-blocking lock on path+".lock". The
// caller must call Close when done.
func NewFileDevice(path string) (*FileDevice, error) {
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("%w: acquiring volume lock: %v", apierr.ErrIO, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: volume %s is locked by another process", apierr.ErrIO, path)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("opening volume file: %w", err)
	}
	return &FileDevice{f: f, lock: lock}, nil
}

func (d *FileDevice) ReadAt(p []byte, off int64) (int, error) {
	return d.f.ReadAt(p, off)
}

func (d *FileDevice) WriteAt(p []byte, off int64) (int, error) {
	return d.f.WriteAt(p, off)
}

// Flush durably syncs file data to storage via fdatasync, avoiding an
// unnecessary metadata-only sync (golang.org/x/sys/unix).
func (d *FileDevice) Flush() error {
	return unix.Fdatasync(int(d.f.Fd()))
}

// Close releases the file handle and the exclusive lock.
func (d *FileDevice) Close() error {
	err := d.f.Close()
	if unlockErr := d.lock.Unlock(); unlockErr != nil && err == nil {
		err = unlockErr
	}
	return err
}

// MemDevice is an in-memory Device, for tests and for volumes that
// never persist to disk.
type MemDevice struct {
	buf []byte
}

// NewMemDevice returns an empty in-memory Device.
func NewMemDevice() *MemDevice {
	return &MemDevice{}
}

func (d *MemDevice) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || int(off) > len(d.buf) {
		return 0, fmt.Errorf("serial: read offset %d out of range", off)
	}
	n := copy(p, d.buf[off:])
	if n < len(p) {
		return n, fmt.Errorf("serial: short read at offset %d", off)
	}
	return n, nil
}

func (d *MemDevice) WriteAt(p []byte, off int64) (int, error) {
	end := int(off) + len(p)
	if end > len(d.buf) {
		grown := make([]byte, end)
		copy(grown, d.buf)
		d.buf = grown
	}
	copy(d.buf[off:end], p)
	return len(p), nil
}

func (d *MemDevice) Flush() error { return nil }

// Bytes returns the device's current backing buffer, for tests that
// want to inspect the raw encoded layout.
func (d *MemDevice) Bytes() []byte { return d.buf }
