// Package idxmap implements IndexMap, the sidecar index every segment pair
// keeps alongside its data file: a fixed-width, append-only sequence of
// (id, offset) entries pointing into the matching data segment.
package idxmap

import (
	"fmt"
	"sync/atomic"

	"github.com/distlimit/limlog/internal/codec"
	"github.com/distlimit/limlog/internal/rawmap"
)

// IndexMap is written by exactly one goroutine (the appender, right after
// each committed log) and read by any number of goroutines doing id or
// timestamp lookups via binary search over the fixed-width entries.
type IndexMap struct {
	raw *rawmap.RawMap

	// cursor counts entries written, not bytes: the byte offset of the
	// next entry is cursor * codec.IndexEntrySize.
	cursor atomic.Uint64

	refs atomic.Int32
}

// New wraps raw as a fresh, empty IndexMap with one reference held on
// behalf of the caller.
func New(raw *rawmap.RawMap) *IndexMap {
	m := &IndexMap{raw: raw}
	m.refs.Store(1)
	return m
}

// NewAt wraps raw as an IndexMap already holding n entries, for the
// recovery path where the cursor is determined by replaying the file rather
// than starting from zero.
func NewAt(raw *rawmap.RawMap, n uint64) *IndexMap {
	m := &IndexMap{raw: raw}
	m.cursor.Store(n)
	m.refs.Store(1)
	return m
}

func (m *IndexMap) capacity() uint64 {
	return m.raw.UsableLen() / codec.IndexEntrySize
}

// Len returns the number of entries currently written.
func (m *IndexMap) Len() uint64 {
	return m.cursor.Load()
}

// IsFull reports whether another entry would not fit.
func (m *IndexMap) IsFull() bool {
	return m.cursor.Load() >= m.capacity()
}

// Push appends one (id, offset) entry. The single writer must check IsFull
// before calling Push; Push itself refuses to write past capacity.
func (m *IndexMap) Push(id codec.ID, offset uint64) error {
	cur := m.cursor.Load()
	if cur >= m.capacity() {
		return fmt.Errorf("idxmap: %s: index is full at %d entries", m.raw.Name(), cur)
	}
	start := cur * codec.IndexEntrySize
	dst := m.raw.RangeMut(start, codec.IndexEntrySize)
	if err := codec.EncodeIndexEntry(dst, codec.IndexEntry{ID: id, Offset: offset}); err != nil {
		return fmt.Errorf("idxmap: push: %w", err)
	}
	if err := m.raw.FlushRange(start, codec.IndexEntrySize); err != nil {
		return fmt.Errorf("idxmap: push: flush: %w", err)
	}
	m.cursor.Store(cur + 1)
	return nil
}

// At reads the i'th entry (0-indexed). i must be < Len().
func (m *IndexMap) At(i uint64) (codec.IndexEntry, error) {
	if i >= m.cursor.Load() {
		return codec.IndexEntry{}, fmt.Errorf("idxmap: At(%d): only %d entries present", i, m.cursor.Load())
	}
	start := i * codec.IndexEntrySize
	return codec.DecodeIndexEntry(m.raw.Range(start, codec.IndexEntrySize))
}

// RawEntry reads the i'th fixed-width slot directly, including unwritten
// (all-zero) slots past the cursor — used by segpair's recovery replay,
// which must distinguish "unwritten sentinel" from "decode error".
func (m *IndexMap) RawEntry(i uint64) []byte {
	start := i * codec.IndexEntrySize
	return m.raw.Range(start, codec.IndexEntrySize)
}

// Finish synchronously flushes the whole mapping. Called once the matching
// data segment finishes.
func (m *IndexMap) Finish() error {
	if err := m.raw.FlushSync(); err != nil {
		return fmt.Errorf("idxmap: finish: %w", err)
	}
	return nil
}

// Acquire increments the reference count and returns m.
func (m *IndexMap) Acquire() *IndexMap {
	m.refs.Add(1)
	return m
}

// Release decrements the reference count, closing the underlying RawMap
// (truncated to Len()*IndexEntrySize bytes) once the last holder releases.
func (m *IndexMap) Release() error {
	if m.refs.Add(-1) > 0 {
		return nil
	}
	return m.raw.Close(m.cursor.Load() * codec.IndexEntrySize)
}

// Name returns the underlying file's path.
func (m *IndexMap) Name() string {
	return m.raw.Name()
}
