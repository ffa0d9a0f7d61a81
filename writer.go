package limlog

import (
	"fmt"

	"github.com/distlimit/limlog/internal/appender"
	"github.com/distlimit/limlog/internal/codec"
)

// Writer is a thin handle over a topic's writer-to-appender channel. A
// single Writer's calls are serialized through the topic's id generator, so
// submission order matches the order identifiers (and therefore log
// positions) are assigned.
type Writer struct {
	topic *Topic
}

// Write stamps body with a fresh time-ordered identifier and enqueues it,
// blocking if the topic's channel is full, and returns once the appender
// has durably committed it (or reports why it could not). A body that can
// never fit in a freshly rolled segment is rejected immediately with
// ErrRecordTooLarge, rather than handed to the appender to loop forever
// trying to roll over it.
func (w *Writer) Write(body []byte) (codec.ID, error) {
	max := w.topic.cfg.maxBodySize()
	if uint64(len(body)) > max {
		return codec.ID{}, fmt.Errorf("%w: body is %d bytes, maximum is %d", ErrRecordTooLarge, len(body), max)
	}

	if w.topic.closing.Load() {
		return codec.ID{}, ErrClosed
	}

	id := w.topic.gen.next()
	done := make(chan error, 1)

	select {
	case w.topic.in <- appender.Request{Log: codec.Log{ID: id, Body: body}, Done: done}:
	case <-w.topic.done:
		return codec.ID{}, ErrClosed
	}

	select {
	case err := <-done:
		if err != nil {
			return codec.ID{}, err
		}
		return id, nil
	case <-w.topic.done:
		return codec.ID{}, ErrClosed
	}
}
