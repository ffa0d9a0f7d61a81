package rawmap

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/distlimit/limlog/internal/codec"
)

func TestOpenWritesHeaderAndSizesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seg.limlog")

	rm, err := Open(path, codec.HeaderSize+64, codec.NewHeader(codec.LogMagic))
	require.NoError(t, err)
	defer rm.Close(0)

	require.EqualValues(t, 64, rm.UsableLen())
	got := rm.Range(0, codec.HeaderSize)
	require.Equal(t, codec.LogMagic[:], got[0:8])
}

func TestOpenRejectsMismatchedHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seg.limlog")

	rm, err := Open(path, codec.HeaderSize+64, codec.NewHeader(codec.LogMagic))
	require.NoError(t, err)
	require.NoError(t, rm.Close(0))

	_, err = Open(path, codec.HeaderSize+64, codec.NewHeader(codec.IndexMagic))
	require.ErrorIs(t, err, codec.ErrHeaderMismatch)
}

func TestOpenSecondTimeFromSameProcessIsLocked(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seg.limlog")

	rm, err := Open(path, codec.HeaderSize+64, codec.NewHeader(codec.LogMagic))
	require.NoError(t, err)
	defer rm.Close(0)

	_, err = Open(path, codec.HeaderSize+64, codec.NewHeader(codec.LogMagic))
	require.ErrorIs(t, err, ErrLocked)
}

func TestCloseTruncatesToFinalLength(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seg.limlog")

	rm, err := Open(path, codec.HeaderSize+64, codec.NewHeader(codec.LogMagic))
	require.NoError(t, err)
	require.NoError(t, rm.Close(10))

	ro, err := OpenReadOnly(path, codec.NewHeader(codec.LogMagic))
	require.NoError(t, err)
	defer ro.Close(ro.UsableLen())
	require.EqualValues(t, 10, ro.UsableLen())
}

func TestCloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seg.limlog")

	rm, err := Open(path, codec.HeaderSize+64, codec.NewHeader(codec.LogMagic))
	require.NoError(t, err)
	require.NoError(t, rm.Close(5))
	require.NoError(t, rm.Close(5))
}

func TestFlushRangeAndFlushSync(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seg.limlog")

	rm, err := Open(path, codec.HeaderSize+64, codec.NewHeader(codec.LogMagic))
	require.NoError(t, err)
	defer rm.Close(64)

	copy(rm.RangeMut(0, 4), []byte{1, 2, 3, 4})
	require.NoError(t, rm.FlushRange(0, 4))
	require.NoError(t, rm.FlushSync())
}
