package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"

	"github.com/distlimit/limlog/internal/codec"
	"github.com/distlimit/limlog/internal/segpair"
)

func writeFinishedSegment(t *testing.T, dir string) (stem string, id codec.ID) {
	t.Helper()
	pair, err := segpair.Create(dir, 4096, 4096)
	require.NoError(t, err)

	u := ulid.Make()
	id = codec.ID(u)
	n, err := codec.Encode(pair.Data.MutTail(), codec.Log{ID: id, Body: []byte{0x0A}})
	require.NoError(t, err)
	require.NoError(t, pair.Data.Commit(uint64(n)))
	require.NoError(t, pair.Idx.Push(id, 0))
	require.NoError(t, pair.Data.Finish())
	require.NoError(t, pair.Idx.Finish())
	stem = pair.Stem
	require.NoError(t, pair.Release())
	return stem, id
}

func TestListSegmentsReturnsOK(t *testing.T) {
	dir := t.TempDir()
	writeFinishedSegment(t, dir)

	router := NewRouter(dir)
	req := httptest.NewRequest(http.MethodGet, "/segments", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "entry_count")
}

func TestFindInSegmentReturnsOffset(t *testing.T) {
	dir := t.TempDir()
	stem, id := writeFinishedSegment(t, dir)

	router := NewRouter(dir)
	req := httptest.NewRequest(http.MethodGet, "/segments/"+stem+"/at/"+ulid.ULID(id).String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "\"offset\":0")
}

func TestFindInSegmentRejectsMalformedID(t *testing.T) {
	dir := t.TempDir()
	router := NewRouter(dir)

	req := httptest.NewRequest(http.MethodGet, "/segments/somestem/at/not-a-ulid", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
