package selector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/distlimit/limlog/internal/codec"
	"github.com/distlimit/limlog/internal/segpair"
)

func idAt(t time.Time, seq byte) codec.ID {
	var id codec.ID
	ms := uint64(t.UnixMilli())
	for i := 0; i < 6; i++ {
		id[5-i] = byte(ms >> (8 * i))
	}
	id[6] = seq
	return id
}

func writeFinishedSegment(t *testing.T, dir string, entries []codec.Log) string {
	t.Helper()
	pair, err := segpair.Create(dir, 4096, 4096)
	require.NoError(t, err)

	for _, l := range entries {
		off := pair.Data.Offset()
		n, err := codec.Encode(pair.Data.MutTail(), l)
		require.NoError(t, err)
		require.NoError(t, pair.Data.Commit(uint64(n)))
		require.NoError(t, pair.Idx.Push(l.ID, off))
	}
	require.NoError(t, pair.Data.Finish())
	require.NoError(t, pair.Idx.Finish())
	stem := pair.Stem
	require.NoError(t, pair.Release())
	return stem
}

func TestByIDFindsExactAndLowerBoundEntries(t *testing.T) {
	dir := t.TempDir()
	base := time.Now()
	ids := []codec.ID{idAt(base, 1), idAt(base, 3), idAt(base, 5)}
	stem := writeFinishedSegment(t, dir, []codec.Log{
		{ID: ids[0], Body: []byte{0x01}},
		{ID: ids[1], Body: []byte{0x02}},
		{ID: ids[2], Body: []byte{0x03}},
	})

	off, found, err := ByID(dir, stem, ids[1])
	require.NoError(t, err)
	require.True(t, found)
	require.EqualValues(t, 25, off)

	_, found, err = ByID(dir, stem, idAt(base, 9))
	require.NoError(t, err)
	require.False(t, found)
}

func TestSegmentsEnumeratesAndSummarizes(t *testing.T) {
	dir := t.TempDir()
	base := time.Now()
	stem := writeFinishedSegment(t, dir, []codec.Log{
		{ID: idAt(base, 1), Body: []byte{0x01}},
		{ID: idAt(base, 2), Body: []byte{0x02}},
	})

	summaries, err := Segments(dir)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, stem, summaries[0].Stem)
	require.EqualValues(t, 2, summaries[0].EntryCount)
	require.EqualValues(t, 50, summaries[0].DataBytes)
}
