// Package shared holds the state a Topic's appender and all of its readers
// observe in common: the active segment pointer, swapped atomically on
// every roll-over, and the notification gate readers park on.
package shared

import (
	"sync/atomic"

	"github.com/distlimit/limlog/internal/notify"
	"github.com/distlimit/limlog/internal/segmap"
)

// Shared is the cross-goroutine state a Topic constructs once and hands to
// its appender and to every Reader/Writer it spawns.
type Shared struct {
	Directory string
	LogSize   uint64
	IndexSize uint64

	active atomic.Pointer[segmap.SegmentMap]
	Gate   *notify.Gate
}

// New returns a Shared with the given active segment installed, already
// acquired on behalf of Shared itself (callers that want their own
// reference must Acquire it).
func New(directory string, logSize, indexSize uint64, initial *segmap.SegmentMap) *Shared {
	s := &Shared{
		Directory: directory,
		LogSize:   logSize,
		IndexSize: indexSize,
		Gate:      notify.New(),
	}
	s.active.Store(initial)
	return s
}

// Swap installs next as the active segment and returns the previous one.
// The caller receiving the previous segment is responsible for eventually
// releasing it; the caller that produced next must have already left one
// reference on it for Shared to hold.
func (s *Shared) Swap(next *segmap.SegmentMap) *segmap.SegmentMap {
	prev := s.active.Swap(next)
	s.Gate.Broadcast()
	return prev
}

// Current returns the active segment, acquiring a reference on behalf of
// the caller. The caller must Release it when done.
func (s *Shared) Current() *segmap.SegmentMap {
	return s.active.Load().Acquire()
}
