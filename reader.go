package limlog

import (
	"context"
	"fmt"

	"github.com/distlimit/limlog/internal/codec"
	"github.com/distlimit/limlog/internal/segmap"
	"github.com/distlimit/limlog/internal/segpair"
)

// readerFromStart is the sentinel offset passed internally to mean "start
// from the very first historical segment", distinguishing Topic.Reader()
// from Topic.ReaderAt(k) at a single construction path.
const readerFromStart = ^uint64(0)

// Reader streams a topic's logs in append order, following roll-overs as
// they happen. Once it catches up to the live tail, PollNext blocks until a
// new log arrives or the caller's context is done (then it returns
// ErrNoLogYet).
type Reader struct {
	topic *Topic

	// historical holds the stems of already-finished segments still ahead
	// of the reader (only populated by Topic.Reader(); ReaderAt starts
	// directly on the live tail and never consults this).
	historical []string

	cur    *segmap.SegmentMap
	readAt uint64
}

// ErrNoLogYet is returned by PollNext when its ctx is done before a new log
// became available; the caller may call PollNext again — this is the "Pending"
// outcome of the engine's poll-next algorithm, never treated as an error.
var ErrNoLogYet = fmt.Errorf("limlog: no log available yet")

// ErrEndOfStream is returned by PollNext once the active segment is
// finished and no later segment exists — the topic was closed and every
// record has been delivered.
var ErrEndOfStream = fmt.Errorf("limlog: end of stream")

func newReader(t *Topic, offset uint64) (*Reader, error) {
	if offset == readerFromStart {
		stems, err := segpair.Discover(t.cfg.Directory)
		if err != nil {
			return nil, fmt.Errorf("limlog: reader: %w", err)
		}

		if len(stems) == 0 {
			return &Reader{topic: t, cur: t.shared.Current(), readAt: 0}, nil
		}

		// Segments roll over in time order: every stem but the very last
		// one is guaranteed finished (a new stem is only minted once its
		// predecessor has finished). The last stem is the one currently
		// installed as Shared's active segment — opened already by Topic's
		// constructor — so it is followed live via Shared.Current() rather
		// than reopened independently here.
		r := &Reader{topic: t}
		if err := r.openHistorical(stems[:len(stems)-1]); err != nil {
			return nil, err
		}
		return r, nil
	}

	cur := t.shared.Current()
	max := cur.Offset()
	if offset > max {
		cur.Release()
		return nil, &InvalidOffsetError{Maximum: max, Got: offset}
	}

	// cur is already our own acquired reference (from shared.Current()
	// above); the Reader simply takes ownership of it, no further Acquire
	// needed.
	return &Reader{topic: t, cur: cur, readAt: offset}, nil
}

// openHistorical installs the oldest stem in stems as the reader's current
// segment (opened read-only, self-describing via file length) and keeps
// the rest queued as historical for later PollNext calls to advance into.
// No stem is skipped here: the caller passes only the stems before the live
// active one, which is followed through Shared.Current() once the queue is
// drained.
func (r *Reader) openHistorical(stems []string) error {
	r.historical = stems
	return r.advanceToNextHistorical()
}

// advanceToNextHistorical pops the next queued stem and opens it, or falls
// back to the live active segment once the historical queue is drained.
func (r *Reader) advanceToNextHistorical() error {
	if len(r.historical) == 0 {
		r.cur = r.topic.shared.Current()
		r.readAt = 0
		return nil
	}

	stem := r.historical[0]
	r.historical = r.historical[1:]

	pair, err := segpair.OpenFinished(r.topic.cfg.Directory, stem)
	if err != nil {
		// A stem that cannot be opened read-only is not reported: the
		// reader falls back to following the live active segment via
		// Shared, and any stems still queued stay in r.historical.
		r.cur = r.topic.shared.Current()
		r.readAt = 0
		return nil
	}
	// Readers only ever need the data map; the sidecar index belongs to
	// selector-style lookups, not to straight-line streaming.
	if err := pair.Idx.Release(); err != nil {
		pair.Data.Release()
		return fmt.Errorf("limlog: reader: %w", err)
	}
	r.cur = pair.Data
	r.readAt = 0
	return nil
}

// PollNext implements the engine's poll-next algorithm: it returns the next
// log in append order, ErrNoLogYet if none is available right now, or
// ErrEndOfStream once the topic has been closed and every record
// delivered. ctx governs how long PollNext is willing to suspend waiting
// for a notification; a context with no deadline waits until the next
// commit, finish, or cancellation.
func (r *Reader) PollNext(ctx context.Context) (codec.Log, error) {
	for {
		if r.cur.Offset()-r.readAt < uint64(codec.MinLogSize) {
			if r.cur.IsFinished() {
				if len(r.historical) > 0 {
					prev := r.cur
					if err := r.advanceToNextHistorical(); err != nil {
						return codec.Log{}, err
					}
					prev.Release()
					continue
				}

				current := r.topic.shared.Current()
				if current.IsFinished() && current == r.cur {
					current.Release()
					return codec.Log{}, ErrEndOfStream
				}
				r.cur.Release()
				r.cur = current
				r.readAt = 0
				continue
			}

			gate := r.topic.shared.Gate.Subscribe()
			// Re-check after subscribing: a commit between our first check
			// and this subscribe must still be observed via the offset
			// read itself, not missed by a stale channel reference.
			if r.cur.Offset()-r.readAt >= uint64(codec.MinLogSize) || r.cur.IsFinished() {
				continue
			}
			select {
			case <-gate:
				continue
			case <-ctx.Done():
				return codec.Log{}, ErrNoLogYet
			}
		}

		slice := r.cur.Slice(r.readAt)
		log, n, res := codec.TryDecodeLog(slice)
		switch res {
		case codec.DecodeOK:
			r.readAt += uint64(n)
			return log, nil
		case codec.DecodeNeedMore:
			gate := r.topic.shared.Gate.Subscribe()
			if r.cur.Offset()-r.readAt >= uint64(codec.MinLogSize) || r.cur.IsFinished() {
				continue
			}
			select {
			case <-gate:
				continue
			case <-ctx.Done():
				return codec.Log{}, ErrNoLogYet
			}
		default:
			return codec.Log{}, &DecodeError{Segment: r.cur.Name(), Offset: r.readAt, Err: fmt.Errorf("malformed log")}
		}
	}
}

// Close releases the Reader's held segment reference. Dropping a Reader
// without calling Close is always safe (no partial state is left behind)
// but leaks the reference until the process exits; Close should be called
// once the reader is no longer needed.
func (r *Reader) Close() error {
	if r.cur == nil {
		return nil
	}
	err := r.cur.Release()
	r.cur = nil
	return err
}
