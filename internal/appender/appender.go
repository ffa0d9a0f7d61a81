// Package appender runs the single background actor that owns a topic's
// write path: it drains a bounded FIFO of incoming logs, serializes each
// one into the active segment pair, and rolls over to a fresh pair when
// the current one cannot accept the next record.
package appender

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/distlimit/limlog/internal/codec"
	"github.com/distlimit/limlog/internal/segpair"
	"github.com/distlimit/limlog/internal/shared"
)

// Request is one enqueued write, submitted by a Writer handle and drained
// by the appender.
type Request struct {
	Log  codec.Log
	Done chan<- error
}

// Appender is the single-owner actor described by the engine's
// background-task-plus-channel discipline: no mutable state is shared with
// writer handles except through the in channel.
type Appender struct {
	shared *shared.Shared
	in     <-chan Request
	log    *zap.SugaredLogger
	m      *Metrics

	pair *segpair.Pair
}

// Metrics are the counters the appender updates as it commits records and
// rolls segments. A nil *Metrics disables instrumentation.
type Metrics struct {
	RecordsWritten   func()
	BytesWritten     func(n float64)
	SegmentRollovers func()
}

// New constructs an Appender over the topic's first (or recovered) pair.
// pair must already be installed as shared's active segment by the caller.
func New(sh *shared.Shared, pair *segpair.Pair, in <-chan Request, log *zap.SugaredLogger, m *Metrics) *Appender {
	return &Appender{shared: sh, in: in, log: log, m: m, pair: pair}
}

// Run drives the outer roll-over supervisor until ctx is cancelled or in is
// closed. It returns the first fatal error encountered, or nil on clean
// shutdown.
func (a *Appender) Run(ctx context.Context) error {
	var remainder *Request

	for {
		var err error
		remainder, err = a.innerLoop(ctx, remainder)
		if err != nil {
			return err
		}
		if remainder == nil {
			// Channel closed: clean shutdown. The appender's own reference
			// to the final segment is released here; Shared (and any
			// readers still scanning it) keep theirs.
			finishErr := a.finishCurrent()
			// Wake parked readers so they observe the finished segment.
			a.shared.Gate.Broadcast()
			releaseErr := a.pair.Release()
			if finishErr != nil {
				return finishErr
			}
			return releaseErr
		}

		if err := a.rollOver(); err != nil {
			return err
		}
	}
}

// innerLoop drains requests into the current pair until one doesn't fit
// (returned as the new remainder, to be retried against the next segment)
// or the input channel closes (remainder nil, err nil).
func (a *Appender) innerLoop(ctx context.Context, carried *Request) (*Request, error) {
	pending := carried

	for {
		if pending != nil {
			done, err := a.tryWrite(pending)
			if err != nil {
				a.reply(pending, err)
				return nil, err
			}
			if !done {
				// Doesn't fit in this segment: surface as the remainder for
				// the outer supervisor to roll over against.
				return pending, nil
			}
			a.reply(pending, nil)
			pending = nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case req, ok := <-a.in:
			if !ok {
				return nil, nil
			}
			pending = &req
		}

		if a.pair.Data.Remaining() < uint64(codec.MinLogSize) || a.pair.Idx.IsFull() {
			return pending, nil
		}
	}
}

// tryWrite attempts to commit one request against the current pair. It
// returns false (without error) when the record does not fit and must be
// retried as the next segment's first write.
func (a *Appender) tryWrite(req *Request) (bool, error) {
	l := req.Log
	need := uint64(l.EncodedSize())

	if a.pair.Data.Remaining() < need || a.pair.Idx.IsFull() {
		return false, nil
	}

	off := a.pair.Data.Offset()
	n, err := codec.Encode(a.pair.Data.MutTail(), l)
	if err != nil {
		return false, fmt.Errorf("appender: encode: %w", err)
	}
	if err := a.pair.Data.Commit(uint64(n)); err != nil {
		return false, fmt.Errorf("appender: commit data: %w", err)
	}

	// The data bytes are now durable and visible to readers even if the
	// index push below fails; recovery on next open replays the index to
	// find this exact boundary again.
	if err := a.pair.Idx.Push(l.ID, off); err != nil {
		if a.log != nil {
			a.log.Errorw("index push failed after data commit", "error", err, "stem", a.pair.Stem)
		}
		return false, fmt.Errorf("appender: push index: %w", err)
	}

	a.shared.Gate.Broadcast()

	if a.m != nil {
		if a.m.RecordsWritten != nil {
			a.m.RecordsWritten()
		}
		if a.m.BytesWritten != nil {
			a.m.BytesWritten(float64(n))
		}
	}

	if a.pair.Data.Remaining() < uint64(codec.MinLogSize) || a.pair.Idx.IsFull() {
		return true, nil
	}
	return true, nil
}

// CurrentPair returns the pair the appender is presently writing to, so a
// caller that aborted the supervisor (rather than letting it drain to a
// clean channel-close shutdown) can release the appender's outstanding
// reference once Run has returned.
func (a *Appender) CurrentPair() *segpair.Pair {
	return a.pair
}

func (a *Appender) reply(req *Request, err error) {
	if req.Done != nil {
		req.Done <- err
	}
}

// rollOver finishes the current pair, creates a fresh one, and installs it
// as the shared active segment.
func (a *Appender) rollOver() error {
	if err := a.finishCurrent(); err != nil {
		return err
	}

	next, err := segpair.Create(a.shared.Directory, a.shared.LogSize, a.shared.IndexSize)
	if err != nil {
		return fmt.Errorf("appender: create next segment: %w", err)
	}

	// Shared needs a reference distinct from the appender's own, so the two
	// can later be released independently of one another (and independently
	// of any reader still holding its own acquired reference).
	prevShared := a.shared.Swap(next.Data.Acquire())
	if prevShared != nil {
		if err := prevShared.Release(); err != nil {
			return fmt.Errorf("appender: release previous segment: %w", err)
		}
	}

	// The appender itself is done with the old pair now that it has rolled.
	if err := a.pair.Release(); err != nil {
		return fmt.Errorf("appender: release previous pair: %w", err)
	}

	if a.log != nil {
		a.log.Infow("rolled over to new segment", "stem", next.Stem)
	}
	if a.m != nil && a.m.SegmentRollovers != nil {
		a.m.SegmentRollovers()
	}

	a.pair = next
	return nil
}

func (a *Appender) finishCurrent() error {
	if err := a.pair.Data.Finish(); err != nil {
		return fmt.Errorf("appender: finish data: %w", err)
	}
	if err := a.pair.Idx.Finish(); err != nil {
		return fmt.Errorf("appender: finish index: %w", err)
	}
	return nil
}
