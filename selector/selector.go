// Package selector implements read-only range queries over a topic's
// finished segments: binary search by identifier or by the identifier's
// embedded timestamp over a segment's fixed-width sidecar index, plus
// directory-wide segment enumeration for operational listing. Every pair is
// opened read-only. ByID and ByTime expect an already-finished pair — the
// active segment's index is still being mutated by the appender and is not
// a stable binary-search target; Segments lists every complete pair,
// including one still being written.
package selector

import (
	"fmt"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/distlimit/limlog/internal/codec"
	"github.com/distlimit/limlog/internal/segpair"
)

// ByID binary-searches a finished pair's sidecar index for the first entry
// whose identifier is >= id, returning that entry's payload-space offset
// into the data file. found is false if every entry sorts before id.
//
// stem must name an already-finished segment, never the topic's current
// live tail: a still-active segment's index is being concurrently appended
// to by the writer side and is not a stable binary-search target. Callers
// that also hold the owning Topic should exclude its active stem (the last
// one segpair.Discover returns) before calling into this package.
func ByID(dir, stem string, id codec.ID) (offset uint64, found bool, err error) {
	pair, err := segpair.OpenFinished(dir, stem)
	if err != nil {
		return 0, false, fmt.Errorf("selector: ByID: %w", err)
	}
	defer pair.Release()

	n := int(pair.Idx.Len())
	i := sort.Search(n, func(i int) bool {
		e, entryErr := pair.Idx.At(uint64(i))
		if entryErr != nil {
			return true
		}
		return !e.ID.Less(id)
	})
	if i == n {
		return 0, false, nil
	}
	e, err := pair.Idx.At(uint64(i))
	if err != nil {
		return 0, false, fmt.Errorf("selector: ByID: %w", err)
	}
	return e.Offset, true, nil
}

// ByTime binary-searches the same way, keyed off the millisecond timestamp
// embedded in the top 48 bits of each entry's identifier — a ULID's own
// layout, so no separate timestamp index is needed.
func ByTime(dir, stem string, t time.Time) (offset uint64, found bool, err error) {
	var want codec.ID
	ms := ulid.Timestamp(t)
	for i := 0; i < 6; i++ {
		want[5-i] = byte(ms >> (8 * i))
	}
	return ByID(dir, stem, want)
}

// SegmentSummary describes one finished segment pair for operational
// listing.
type SegmentSummary struct {
	Stem       string   `json:"stem"`
	EntryCount uint64   `json:"entry_count"`
	DataBytes  uint64   `json:"data_bytes"`
	FirstID    codec.ID `json:"first_id"`
	LastID     codec.ID `json:"last_id"`
}

// Segments enumerates every complete pair in dir, in stem (time) order. If
// a topic is still actively writing to the directory, the last entry
// returned is that live segment; its EntryCount/DataBytes reflect a
// snapshot, not a stable value, since the appender may still be appending
// to it. A pair whose index is empty still appears, with a zero
// FirstID/LastID.
func Segments(dir string) ([]SegmentSummary, error) {
	stems, err := segpair.Discover(dir)
	if err != nil {
		return nil, fmt.Errorf("selector: segments: %w", err)
	}

	summaries := make([]SegmentSummary, 0, len(stems))
	for _, stem := range stems {
		pair, err := segpair.OpenFinished(dir, stem)
		if err != nil {
			return nil, fmt.Errorf("selector: segments: %w", err)
		}

		s := SegmentSummary{
			Stem:       stem,
			EntryCount: pair.Idx.Len(),
			DataBytes:  pair.Data.Offset(),
		}
		if s.EntryCount > 0 {
			first, err := pair.Idx.At(0)
			if err == nil {
				s.FirstID = first.ID
			}
			last, err := pair.Idx.At(s.EntryCount - 1)
			if err == nil {
				s.LastID = last.ID
			}
		}
		if err := pair.Release(); err != nil {
			return nil, fmt.Errorf("selector: segments: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}
