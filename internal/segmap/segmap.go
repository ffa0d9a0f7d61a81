// Package segmap implements SegmentMap: the shared, single-writer/
// many-reader view over one segment's data file.
package segmap

import (
	"fmt"
	"sync/atomic"

	"github.com/distlimit/limlog/internal/codec"
	"github.com/distlimit/limlog/internal/rawmap"
)

// SegmentMap tracks a committed-prefix offset atomically over a RawMap,
// exposing a safe reader view of [0, offset) and an exclusive writer view
// of [offset, len). Exactly one goroutine (the appender) may ever call
// MutTail, Commit or Finish; any number of goroutines may concurrently call
// Slice, Remaining and IsFinished.
type SegmentMap struct {
	raw *rawmap.RawMap

	offset   atomic.Uint64
	finished atomic.Bool

	refs atomic.Int32
}

// New wraps raw as a fresh, empty, writable SegmentMap with one reference
// held on behalf of the caller (conventionally the appender).
func New(raw *rawmap.RawMap) *SegmentMap {
	s := &SegmentMap{raw: raw}
	s.refs.Store(1)
	return s
}

// NewFinished wraps raw as an already-finished SegmentMap whose committed
// offset is simply its current usable length — valid because a finished
// segment's file is always truncated to exactly header+committed bytes
// (invariant 4). One reference is held on behalf of the caller.
func NewFinished(raw *rawmap.RawMap) *SegmentMap {
	s := &SegmentMap{raw: raw}
	s.offset.Store(raw.UsableLen())
	s.finished.Store(true)
	s.refs.Store(1)
	return s
}

// NewRecovered wraps raw as a writable (not yet finished) SegmentMap whose
// committed offset was determined by index replay rather than by the file's
// length (the file stays at full preallocated capacity until it finishes).
func NewRecovered(raw *rawmap.RawMap, committedOffset uint64) *SegmentMap {
	s := &SegmentMap{raw: raw}
	s.offset.Store(committedOffset)
	s.refs.Store(1)
	return s
}

// Name returns the underlying file's path.
func (s *SegmentMap) Name() string {
	return s.raw.Name()
}

// Offset returns the current committed-prefix offset (acquire load).
func (s *SegmentMap) Offset() uint64 {
	return s.offset.Load()
}

// Remaining returns the number of unwritten bytes left in the segment.
func (s *SegmentMap) Remaining() uint64 {
	return s.raw.UsableLen() - s.offset.Load()
}

// IsFinished reports whether the segment has been marked immutable.
func (s *SegmentMap) IsFinished() bool {
	return s.finished.Load()
}

// MutTail returns the writable byte range [offset, UsableLen()). The caller
// (the appender) must be the only goroutine ever calling this.
func (s *SegmentMap) MutTail() []byte {
	off := s.offset.Load()
	return s.raw.RangeMut(off, s.raw.UsableLen()-off)
}

// Slice returns the reader-safe range [min(from, offset), offset). from is
// clamped rather than rejected: readers may safely over-ask.
func (s *SegmentMap) Slice(from uint64) []byte {
	off := s.offset.Load()
	if from > off {
		from = off
	}
	return s.raw.Range(from, off-from)
}

// Commit flushes [offset, offset+n) asynchronously and then publishes the
// new offset with release-ordering semantics, via the same atomic variable
// readers load with acquire-ordering semantics in Offset/Slice/Remaining.
// This ordering is the entire reason a reader that snapshots a reference to
// this SegmentMap can dereference the committed prefix without a lock:
// nothing below the published offset ever changes again.
func (s *SegmentMap) Commit(n uint64) error {
	off := s.offset.Load()
	if err := s.raw.FlushRange(off, n); err != nil {
		return fmt.Errorf("segmap: commit: %w", err)
	}
	s.offset.Store(off + n)
	return nil
}

// Finish marks the segment immutable and synchronously flushes the entire
// mapping. Finish transitions finished false→true exactly once; calling it
// again is a no-op.
func (s *SegmentMap) Finish() error {
	if !s.finished.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.raw.FlushSync(); err != nil {
		return fmt.Errorf("segmap: finish: %w", err)
	}
	return nil
}

// Acquire increments the reference count and returns s, for callers (chiefly
// Reader) that want to retain s across a scan. Every Acquire must be paired
// with a Release.
func (s *SegmentMap) Acquire() *SegmentMap {
	s.refs.Add(1)
	return s
}

// Release decrements the reference count. When it reaches zero, the
// underlying RawMap is closed — flushed, truncated to the committed
// offset, unmapped and unlocked — exactly once, regardless of how many
// holders (the appender plus any number of readers) called Release.
func (s *SegmentMap) Release() error {
	if s.refs.Add(-1) > 0 {
		return nil
	}
	return s.raw.Close(s.offset.Load())
}

// HeaderMagic is reported for callers (segpair) that need to open the
// matching RawMap with the right expected header.
var HeaderMagic = codec.LogMagic
