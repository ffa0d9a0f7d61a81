// Package rawmap owns a single file-backed, fixed-length, memory-mapped
// region prefixed by a 16-byte header. It is the bottom layer every other
// map in limlog (segment data, sidecar index) is built on: it knows nothing
// about logs or index entries, only about a header and a byte range.
package rawmap

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/tysonmote/gommap"
	"golang.org/x/sys/unix"

	"github.com/distlimit/limlog/internal/codec"
)

// ErrLocked is returned by Open when another process already holds the
// exclusive lock on the target file.
var ErrLocked = errors.New("rawmap: file is locked by another process")

// RawMap is a file-backed mutable memory region with a 16-byte header
// prefix. The caller is responsible for exclusivity of any mutable range it
// hands out via RangeMut; RawMap itself only guarantees the mapping and the
// header.
type RawMap struct {
	file   *os.File
	mm     gommap.MMap
	length uint64 // total mapped length, including the 16-byte header

	// readOnly marks a map from OpenReadOnly: it holds no lock and its file
	// is not open for writing, so Close neither truncates nor unlocks it.
	readOnly bool

	closeOnce sync.Once
	closeErr  error
}

// Open opens (creating if absent) the file at path, acquires an exclusive
// OS file lock, sizes the file to length (>= codec.HeaderSize), maps it, and
// writes header at offset 0 — unless the file already existed with a
// header, in which case the existing header's magic must match header's, or
// Open fails with codec.ErrHeaderMismatch. This is a deliberate correction
// of the naive "always overwrite the header" behavior: a mismatched
// pre-existing header is refused, never silently clobbered.
func Open(path string, length uint64, header codec.Header) (*RawMap, error) {
	if length < codec.HeaderSize {
		return nil, fmt.Errorf("rawmap: length %d smaller than header size %d", length, codec.HeaderSize)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("rawmap: open %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		return nil, fmt.Errorf("rawmap: flock %s: %w", path, err)
	}

	if err := verifyExistingHeader(f, header); err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, err
	}

	if err := f.Truncate(int64(length)); err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, fmt.Errorf("rawmap: truncate %s to %d: %w", path, length, err)
	}

	mm, err := gommap.Map(f.Fd(), gommap.PROT_READ|gommap.PROT_WRITE, gommap.MAP_SHARED)
	if err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, fmt.Errorf("rawmap: mmap %s: %w", path, err)
	}

	copy(mm[0:codec.HeaderSize], header[:])

	return &RawMap{file: f, mm: mm, length: length}, nil
}

// verifyExistingHeader checks, without yet truncating or mapping anything,
// whether f already carries a header and if so that its magic matches want.
// A brand-new (empty) file has nothing to verify.
func verifyExistingHeader(f *os.File, want codec.Header) error {
	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("rawmap: stat %s: %w", f.Name(), err)
	}
	if fi.Size() < codec.HeaderSize {
		return nil
	}
	buf := make([]byte, codec.HeaderSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return fmt.Errorf("rawmap: read existing header of %s: %w", f.Name(), err)
	}
	var existing codec.Header
	copy(existing[:], buf)
	if err := existing.Validate(want.Magic()); err != nil {
		return fmt.Errorf("rawmap: %s: %w", f.Name(), err)
	}
	return nil
}

// OpenReadOnly maps an existing, already-finished file exactly at its
// current on-disk length, without acquiring the exclusive lock and without
// writing a header. It is used to give readers a view of a segment or index
// file that has already been truncated to its final size and will never be
// written to again.
func OpenReadOnly(path string, want codec.Header) (*RawMap, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("rawmap: open %s read-only: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("rawmap: stat %s: %w", path, err)
	}
	if fi.Size() < codec.HeaderSize {
		f.Close()
		return nil, fmt.Errorf("rawmap: %s shorter than header size", path)
	}
	if err := verifyExistingHeader(f, want); err != nil {
		f.Close()
		return nil, err
	}
	mm, err := gommap.Map(f.Fd(), gommap.PROT_READ, gommap.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("rawmap: mmap %s read-only: %w", path, err)
	}
	return &RawMap{file: f, mm: mm, length: uint64(fi.Size()), readOnly: true}, nil
}

// UsableLen returns the number of bytes available past the header.
func (r *RawMap) UsableLen() uint64 {
	return r.length - codec.HeaderSize
}

// Range returns a view into [HeaderSize+offset, HeaderSize+offset+len).
func (r *RawMap) Range(offset, length uint64) []byte {
	start := codec.HeaderSize + offset
	return r.mm[start : start+length]
}

// RangeMut is identical to Range; the distinction is documentation only —
// callers of RangeMut are asserting they hold exclusive write access to
// this range. RawMap itself does not enforce that, by design: enforcement
// lives in SegmentMap/IndexMap, which only ever expose RangeMut through a
// single-writer code path.
func (r *RawMap) RangeMut(offset, length uint64) []byte {
	return r.Range(offset, length)
}

// FlushRange asynchronously flushes [offset, offset+len) to disk.
func (r *RawMap) FlushRange(offset, length uint64) error {
	start := codec.HeaderSize + offset
	if length == 0 {
		return nil
	}
	// msync needs a page-aligned start address; the mapping itself begins on
	// a page boundary, so round start down to the page that contains it.
	aligned := start &^ uint64(os.Getpagesize()-1)
	sub := r.mm[aligned : start+length]
	if err := sub.Sync(gommap.MS_ASYNC); err != nil {
		return fmt.Errorf("rawmap: flush range [%d,%d) of %s: %w", offset, offset+length, r.file.Name(), err)
	}
	return nil
}

// FlushSync synchronously flushes the whole mapping to disk.
func (r *RawMap) FlushSync() error {
	if err := r.mm.Sync(gommap.MS_SYNC); err != nil {
		return fmt.Errorf("rawmap: sync flush %s: %w", r.file.Name(), err)
	}
	return nil
}

// Close flushes synchronously, unmaps (which must happen before truncation —
// Windows refuses to shrink a file that is still mapped), truncates the
// file to HeaderSize+finalLen, and releases the file lock. Close must run
// at most once; subsequent calls are no-ops returning the first error. A map
// from OpenReadOnly is flushed, unmapped and closed only: finalLen is ignored.
func (r *RawMap) Close(finalLen uint64) error {
	r.closeOnce.Do(func() {
		r.closeErr = r.closeLocked(finalLen)
	})
	return r.closeErr
}

func (r *RawMap) closeLocked(finalLen uint64) error {
	if err := r.mm.Sync(gommap.MS_SYNC); err != nil {
		return fmt.Errorf("rawmap: final sync of %s: %w", r.file.Name(), err)
	}
	if err := r.mm.UnsafeUnmap(); err != nil {
		return fmt.Errorf("rawmap: unmap %s: %w", r.file.Name(), err)
	}
	if !r.readOnly {
		if err := r.file.Truncate(int64(codec.HeaderSize + finalLen)); err != nil {
			return fmt.Errorf("rawmap: truncate %s to final length: %w", r.file.Name(), err)
		}
		if err := unix.Flock(int(r.file.Fd()), unix.LOCK_UN); err != nil {
			return fmt.Errorf("rawmap: unlock %s: %w", r.file.Name(), err)
		}
	}
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("rawmap: close %s: %w", r.file.Name(), err)
	}
	return nil
}

// Name returns the path of the underlying file.
func (r *RawMap) Name() string {
	return r.file.Name()
}
