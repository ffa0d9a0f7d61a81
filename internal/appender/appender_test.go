package appender

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/distlimit/limlog/internal/codec"
	"github.com/distlimit/limlog/internal/segpair"
	"github.com/distlimit/limlog/internal/shared"
)

func idFromUint64(lo uint64) codec.ID {
	var id codec.ID
	for i := 0; i < 8; i++ {
		id[15-i] = byte(lo >> (8 * i))
	}
	return id
}

func newTestTopic(t *testing.T, logSize, indexSize uint64) (*shared.Shared, chan Request, *Appender) {
	t.Helper()
	dir := t.TempDir()

	pair, err := segpair.Create(dir, logSize, indexSize)
	require.NoError(t, err)

	sh := shared.New(dir, logSize, indexSize, pair.Data.Acquire())
	in := make(chan Request, 16)
	a := New(sh, pair, in, nil, nil)
	return sh, in, a
}

func send(t *testing.T, in chan Request, id codec.ID, body []byte) error {
	t.Helper()
	done := make(chan error, 1)
	in <- Request{Log: codec.Log{ID: id, Body: body}, Done: done}
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("write did not complete")
		return nil
	}
}

func TestAppenderCommitsAndBroadcasts(t *testing.T) {
	sh, in, a := newTestTopic(t, 4096, 4096)
	ctx, cancel := context.WithCancel(context.Background())

	runDone := make(chan error, 1)
	go func() { runDone <- a.Run(ctx) }()

	gate := sh.Gate.Subscribe()
	require.NoError(t, send(t, in, idFromUint64(1), []byte{0x0A}))

	select {
	case <-gate:
	case <-time.After(time.Second):
		t.Fatal("gate was not broadcast after commit")
	}

	cur := sh.Current()
	require.EqualValues(t, 25, cur.Offset())
	require.NoError(t, cur.Release())

	close(in)
	require.NoError(t, <-runDone)
	cancel()
}

func TestAppenderRollsOverWhenSegmentFull(t *testing.T) {
	// Exactly two 25-byte records fit in a 50-byte segment.
	sh, in, a := newTestTopic(t, 50, 4096)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- a.Run(ctx) }()

	require.NoError(t, send(t, in, idFromUint64(1), []byte{0x0A}))
	require.NoError(t, send(t, in, idFromUint64(2), []byte{0x0B}))
	require.NoError(t, send(t, in, idFromUint64(3), []byte{0x0C}))

	// After the third write, the active segment must have rolled: its
	// offset resets below what the full first segment held.
	cur := sh.Current()
	require.EqualValues(t, 25, cur.Offset())
	require.NoError(t, cur.Release())

	close(in)
	require.NoError(t, <-runDone)
}

func TestAppenderAcceptsRecordThatFitsSmallSegment(t *testing.T) {
	sh, in, a := newTestTopic(t, 40, 4096)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- a.Run(ctx) }()

	_ = sh

	// A body whose encoded log size (24 + len(body)) exceeds even a freshly
	// rolled 40-byte segment can never be written; the appender should not
	// hang forever retrying rollovers. This case is guarded against before
	// submission at the Writer layer in the root package — here we only
	// confirm the channel stays responsive for records that do fit.
	require.NoError(t, send(t, in, idFromUint64(1), []byte{0x01, 0x02}))

	close(in)
	require.NoError(t, <-runDone)
}
