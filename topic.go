// Package limlog implements an embedded, append-only log engine for a
// single named topic: producers submit opaque byte records, consumers
// stream them back in append order, optionally resuming from a byte
// offset. Records persist into fixed-capacity, memory-mapped segment
// files; a sidecar index records each record's identifier and byte offset.
package limlog

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/distlimit/limlog/internal/appender"
	"github.com/distlimit/limlog/internal/segpair"
	"github.com/distlimit/limlog/internal/shared"
)

// Topic owns one directory's worth of segment pairs, the appender
// supervisor that writes them, and the id generator shared by every Writer
// it returns.
type Topic struct {
	cfg     Config
	shared  *shared.Shared
	metrics *topicMetrics

	in  chan appender.Request
	app *appender.Appender

	cancel   context.CancelFunc
	done     chan struct{}
	runErr   error
	stopOnce sync.Once
	closing  atomic.Bool

	gen *idGenerator
}

// Open constructs or recovers a topic in the configured directory. If the
// directory is empty, a fresh first segment pair is created; otherwise the
// most recent pair is reopened and its true committed offset recovered by
// index replay, and every earlier pair is left untouched for readers to
// discover.
func Open(opts ...Option) (*Topic, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, fmt.Errorf("limlog: %w", err)
		}
	}

	stems, err := segpair.Discover(cfg.Directory)
	if err != nil {
		return nil, fmt.Errorf("limlog: open: %w", err)
	}

	var pair *segpair.Pair
	if len(stems) == 0 {
		pair, err = segpair.Create(cfg.Directory, cfg.LogSize, cfg.IndexSize)
	} else {
		pair, err = segpair.RecoverTail(cfg.Directory, stems[len(stems)-1], cfg.LogSize, cfg.IndexSize)
	}
	if err != nil {
		return nil, fmt.Errorf("limlog: open: %w", err)
	}

	sh := shared.New(cfg.Directory, cfg.LogSize, cfg.IndexSize, pair.Data.Acquire())

	var metrics *topicMetrics
	if cfg.Registerer != nil {
		metrics = newTopicMetrics(cfg.Registerer, cfg.Directory)
	}

	in := make(chan appender.Request, cfg.ChannelSize)
	app := appender.New(sh, pair, in, cfg.Logger, metrics.appenderMetrics())

	ctx, cancel := context.WithCancel(context.Background())
	t := &Topic{
		cfg:     cfg,
		shared:  sh,
		metrics: metrics,
		in:      in,
		app:     app,
		cancel:  cancel,
		done:    make(chan struct{}),
		gen:     newIDGenerator(),
	}

	go func() {
		t.runErr = app.Run(ctx)
		close(t.done)
	}()

	return t, nil
}

// Writer returns a handle that stamps and enqueues records on this topic.
func (t *Topic) Writer() *Writer {
	return &Writer{topic: t}
}

// Reader returns a reader that streams the topic from its very first
// record, walking forward across every finished segment before following
// the live tail.
func (t *Topic) Reader() (*Reader, error) {
	return newReader(t, readerFromStart)
}

// ReaderAt resumes a reader directly on the active segment at payload-space
// offset k. It rejects k greater than the active segment's current
// committed offset with InvalidOffsetError.
func (t *Topic) ReaderAt(k uint64) (*Reader, error) {
	return newReader(t, k)
}

// Close drains and stops the appender cleanly: it closes the writer
// channel, waits for in-flight writes to finish committing, finishes the
// final segment, and releases the topic's own reference to it. Calling
// Close more than once, or calling it after Abort, is safe and returns the
// same terminal error both times.
func (t *Topic) Close() error {
	t.stopOnce.Do(func() {
		t.closing.Store(true)
		close(t.in)
	})
	<-t.done
	t.cancel()
	return t.runErr
}

// Abort cancels the appender supervisor immediately: writes already
// committed remain durable; anything still queued in the channel is
// dropped. The appender's outstanding reference to its current segment
// pair is released once the supervisor has stopped.
func (t *Topic) Abort() error {
	t.closing.Store(true)
	t.cancel()
	<-t.done
	if pair := t.app.CurrentPair(); pair != nil {
		pair.Release()
	}
	return t.runErr
}

// Join blocks until the appender supervisor has terminated (via Close,
// Abort, or a fatal error) and returns its terminal error, if any.
func (t *Topic) Join() error {
	<-t.done
	return t.runErr
}
