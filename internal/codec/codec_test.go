package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func idFromUint64(lo uint64) ID {
	var id ID
	enc.PutUint64(id[8:16], lo)
	return id
}

func TestHeaderRoundTrip(t *testing.T) {
	h := NewHeader(LogMagic)
	require.Equal(t, LogMagic, h.Magic())
	require.NoError(t, h.Validate(LogMagic))
	require.Error(t, h.Validate(IndexMagic))
}

func TestDecodeHeaderNeedsFullSize(t *testing.T) {
	_, err := DecodeHeader(make([]byte, 15))
	require.ErrorIs(t, err, ErrNeedMore)
}

func TestLogEncodeDecodeRoundTrip(t *testing.T) {
	l := Log{ID: idFromUint64(1), Body: []byte{0x0A}}
	buf := make([]byte, l.EncodedSize())
	n, err := Encode(buf, l)
	require.NoError(t, err)
	require.Equal(t, 25, n)

	got, consumed, res := TryDecodeLog(buf)
	require.Equal(t, DecodeOK, res)
	require.Equal(t, n, consumed)
	require.Equal(t, l.ID, got.ID)
	require.Equal(t, l.Body, got.Body)
}

func TestTryDecodeLogNeedMore(t *testing.T) {
	l := Log{ID: idFromUint64(1), Body: []byte{0x0A, 0x0B, 0x0C}}
	buf := make([]byte, l.EncodedSize())
	_, err := Encode(buf, l)
	require.NoError(t, err)

	// Not even enough for the fixed id+length prefix.
	_, _, res := TryDecodeLog(buf[:10])
	require.Equal(t, DecodeNeedMore, res)

	// Prefix present, body truncated.
	_, _, res = TryDecodeLog(buf[:MinLogSize+1])
	require.Equal(t, DecodeNeedMore, res)
}

func TestIndexEntryRoundTrip(t *testing.T) {
	e := IndexEntry{ID: idFromUint64(7), Offset: 1024}
	buf := make([]byte, IndexEntrySize)
	require.NoError(t, EncodeIndexEntry(buf, e))

	got, err := DecodeIndexEntry(buf)
	require.NoError(t, err)
	require.Equal(t, e, got)
}

func TestZeroIDSentinel(t *testing.T) {
	var zero ID
	require.True(t, zero.IsZero())
	require.False(t, idFromUint64(1).IsZero())
}

func TestIDOrdering(t *testing.T) {
	a := idFromUint64(1)
	b := idFromUint64(2)
	require.True(t, a.Less(b))
	require.False(t, b.Less(a))
}

func TestScenarioS2WireBytes(t *testing.T) {
	// From spec.md scenario S2: three logs with fixed 6-byte-meaningful
	// identifiers and 1-byte bodies, checked byte-for-byte.
	mk := func(lo uint64, body byte) Log {
		var id ID
		for i := 0; i < 6; i++ {
			id[5-i] = byte(lo >> (8 * i))
		}
		return Log{ID: id, Body: []byte{body}}
	}

	logs := []Log{mk(1, 0x0A), mk(2, 0x0B), mk(3, 0x0C)}
	var data []byte
	offsets := make([]uint64, len(logs))
	for i, l := range logs {
		offsets[i] = uint64(len(data))
		buf := make([]byte, l.EncodedSize())
		_, err := Encode(buf, l)
		require.NoError(t, err)
		data = append(data, buf...)
	}

	want := []byte{
		0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x0A,
	}
	require.Equal(t, want, data[:25])
	require.Equal(t, uint64(50), offsets[2])
}
