// Package segpair manages the lifecycle of one segment pair: a `.limlog`
// data file and its `.idx` sidecar, sharing a time-ordered stem. It knows
// how to mint a fresh pair, how to recover the true committed offset of a
// pair left behind by a crash, and how to enumerate the complete pairs in a
// topic directory.
package segpair

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/distlimit/limlog/internal/codec"
	"github.com/distlimit/limlog/internal/idxmap"
	"github.com/distlimit/limlog/internal/rawmap"
	"github.com/distlimit/limlog/internal/segmap"
)

const (
	// DataExt is the extension of a segment's data file.
	DataExt = ".limlog"
	// IndexExt is the extension of a segment's sidecar index file.
	IndexExt = ".idx"
)

// Pair bundles the two live maps of one segment.
type Pair struct {
	Stem string
	Data *segmap.SegmentMap
	Idx  *idxmap.IndexMap
}

// Release releases both maps. Call once the caller (appender or reader) is
// done with this pair.
func (p *Pair) Release() error {
	dataErr := p.Data.Release()
	idxErr := p.Idx.Release()
	if dataErr != nil {
		return dataErr
	}
	return idxErr
}

func dataPath(dir, stem string) string { return filepath.Join(dir, stem+DataExt) }
func idxPath(dir, stem string) string  { return filepath.Join(dir, stem+IndexExt) }

// NewStem mints a fresh, time-ordered 26-character Crockford base32 stem —
// the canonical string form of a ulid.ULID, directly usable as a filename
// segment and lexicographically sortable in time order.
func NewStem() string {
	return ulid.Make().String()
}

// Create mints a new stem and creates both files at their configured
// capacities, returning a fresh, empty, writable Pair.
func Create(dir string, logSize, indexSize uint64) (*Pair, error) {
	stem := NewStem()

	dataRaw, err := rawmap.Open(dataPath(dir, stem), codec.HeaderSize+logSize, codec.NewHeader(codec.LogMagic))
	if err != nil {
		return nil, fmt.Errorf("segpair: create %s: %w", stem, err)
	}
	idxRaw, err := rawmap.Open(idxPath(dir, stem), codec.HeaderSize+indexSize, codec.NewHeader(codec.IndexMagic))
	if err != nil {
		dataRaw.Close(0)
		return nil, fmt.Errorf("segpair: create %s: %w", stem, err)
	}

	return &Pair{
		Stem: stem,
		Data: segmap.New(dataRaw),
		Idx:  idxmap.New(idxRaw),
	}, nil
}

// RecoverTail opens an existing pair at its full configured capacity and
// determines the true committed data offset by replaying the sidecar index
// from its start, stopping at the first all-zero sentinel entry (an
// unwritten slot) or at the index's capacity. The offset of the last valid
// entry, decoded forward through the data file, yields the true committed
// byte count — the data header itself never records this, by format
// design (Open Question 2).
func RecoverTail(dir, stem string, logSize, indexSize uint64) (*Pair, error) {
	dataRaw, err := rawmap.Open(dataPath(dir, stem), codec.HeaderSize+logSize, codec.NewHeader(codec.LogMagic))
	if err != nil {
		return nil, fmt.Errorf("segpair: recover %s: %w", stem, err)
	}
	idxRaw, err := rawmap.Open(idxPath(dir, stem), codec.HeaderSize+indexSize, codec.NewHeader(codec.IndexMagic))
	if err != nil {
		dataRaw.Close(0)
		return nil, fmt.Errorf("segpair: recover %s: %w", stem, err)
	}

	capacity := idxRaw.UsableLen() / codec.IndexEntrySize
	var validEntries uint64
	var lastEntry codec.IndexEntry
	haveEntry := false

	for i := uint64(0); i < capacity; i++ {
		start := i * codec.IndexEntrySize
		raw := idxRaw.Range(start, codec.IndexEntrySize)
		var id codec.ID
		copy(id[:], raw[:codec.IDSize])
		if id.IsZero() {
			break
		}
		entry, err := codec.DecodeIndexEntry(raw)
		if err != nil {
			break
		}
		lastEntry = entry
		haveEntry = true
		validEntries++
	}

	var committed uint64
	if haveEntry {
		body := dataRaw.Range(lastEntry.Offset, dataRaw.UsableLen()-lastEntry.Offset)
		log, n, res := codec.TryDecodeLog(body)
		if res != codec.DecodeOK {
			return nil, fmt.Errorf("segpair: recover %s: index entry at offset %d does not decode a valid log", stem, lastEntry.Offset)
		}
		if log.ID != lastEntry.ID {
			return nil, fmt.Errorf("segpair: recover %s: index/data id mismatch at offset %d", stem, lastEntry.Offset)
		}
		committed = lastEntry.Offset + uint64(n)
	}

	return &Pair{
		Stem: stem,
		Data: segmap.NewRecovered(dataRaw, committed),
		Idx:  idxmap.NewAt(idxRaw, validEntries),
	}, nil
}

// OpenFinished opens an already-finished pair read-only, deriving the
// committed offset from the data file's length (finished segments are
// truncated to exactly header+committed bytes) rather than from index
// replay.
func OpenFinished(dir, stem string) (*Pair, error) {
	dataRaw, err := rawmap.OpenReadOnly(dataPath(dir, stem), codec.NewHeader(codec.LogMagic))
	if err != nil {
		return nil, fmt.Errorf("segpair: open finished %s: %w", stem, err)
	}
	idxRaw, err := rawmap.OpenReadOnly(idxPath(dir, stem), codec.NewHeader(codec.IndexMagic))
	if err != nil {
		dataRaw.Close(dataRaw.UsableLen())
		return nil, fmt.Errorf("segpair: open finished %s: %w", stem, err)
	}

	idxEntries := idxRaw.UsableLen() / codec.IndexEntrySize
	return &Pair{
		Stem: stem,
		Data: segmap.NewFinished(dataRaw),
		Idx:  idxmap.NewAt(idxRaw, idxEntries),
	}, nil
}

// Discover lists the stems of complete pairs (both files present) in dir,
// sorted ascending — time order, since stems are ULID canonical strings.
// Any stem missing either extension is ignored.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("segpair: discover %s: %w", dir, err)
	}

	hasData := map[string]bool{}
	hasIdx := map[string]bool{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		switch {
		case strings.HasSuffix(name, DataExt):
			hasData[strings.TrimSuffix(name, DataExt)] = true
		case strings.HasSuffix(name, IndexExt):
			hasIdx[strings.TrimSuffix(name, IndexExt)] = true
		}
	}

	var stems []string
	for stem := range hasData {
		if hasIdx[stem] {
			stems = append(stems, stem)
		}
	}
	sort.Strings(stems)
	return stems, nil
}
