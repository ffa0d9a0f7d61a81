// Package codec implements the fixed-endian, fixed-width binary layout
// shared by every file limlog writes: the 16-byte file header, the log
// record encoding, and the 24-byte sidecar index entry.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HeaderSize is the size in bytes of the header prefixing every file.
	HeaderSize = 16

	// IDSize is the width of a time-ordered identifier: a 128-bit value
	// carried as 16 raw bytes (big-endian, matching ULID's own encoding).
	IDSize = 16

	// LengthSize is the width of the little-endian body-length field
	// that follows a log's identifier.
	LengthSize = 8

	// MinLogSize is the smallest a valid encoded log can be (id + length
	// + zero-byte body). Readers use this as the "do I have enough bytes
	// to attempt a decode" threshold.
	MinLogSize = IDSize + LengthSize

	// IndexEntrySize is the fixed width of one sidecar index entry:
	// a 16-byte id followed by an 8-byte little-endian payload offset.
	IndexEntrySize = IDSize + 8
)

var (
	// LogMagic prefixes a data segment file.
	LogMagic = [8]byte{'L', 'I', 'M', '_', 'L', 'O', 'G', 0}
	// IndexMagic prefixes a sidecar index file.
	IndexMagic = [8]byte{'L', 'I', 'M', '_', 'I', 'D', 'X', 0}
)

// enc is the single byte order used for every on-disk integer in this
// format. The spec calls for fixed-endian little-endian integers
// throughout; ids are carried as raw 16-byte big-endian-ULID bytes, not
// reinterpreted as a machine integer, so they are copied verbatim rather
// than encoded through this.
var enc = binary.LittleEndian

// ErrNeedMore is wrapped into the error DecodeHeader and DecodeIndexEntry
// return when their input is shorter than the fixed size they read.
// TryDecodeLog does not use it: it reports a short input as DecodeNeedMore.
var ErrNeedMore = errors.New("codec: need more bytes")

// Header is the fixed 16-byte structure prefixing every limlog file.
type Header [HeaderSize]byte

// NewHeader builds a header with the given 8-byte magic and a
// zero-initialized reserved region.
func NewHeader(magic [8]byte) Header {
	var h Header
	copy(h[0:8], magic[:])
	return h
}

// Magic returns the header's 8-byte magic.
func (h Header) Magic() [8]byte {
	var m [8]byte
	copy(m[:], h[0:8])
	return m
}

// Validate reports whether h carries the expected magic.
func (h Header) Validate(want [8]byte) error {
	if h.Magic() != want {
		return fmt.Errorf("%w: got %q, want %q", ErrHeaderMismatch, h.Magic(), want)
	}
	return nil
}

// ErrHeaderMismatch is returned when an existing file's header magic does
// not match what the caller expected to open.
var ErrHeaderMismatch = errors.New("codec: header magic mismatch")

// DecodeHeader reads a Header from the front of b. b must be at least
// HeaderSize bytes.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("codec: %w: need %d header bytes, got %d", ErrNeedMore, HeaderSize, len(b))
	}
	var h Header
	copy(h[:], b[:HeaderSize])
	return h, nil
}

// ID is a 128-bit time-ordered identifier, carried as its raw big-endian
// byte representation (the same layout ULID uses).
type ID [IDSize]byte

// IsZero reports whether id is the all-zero sentinel value. A real
// identifier's top 48 bits are a millisecond Unix timestamp, which is never
// all-zero for any timestamp after the epoch, so the all-zero value safely
// doubles as "no entry here" when scanning a zero-padded, not-yet-written
// region of a mapped file.
func (id ID) IsZero() bool {
	return id == ID{}
}

// Less reports whether id sorts strictly before other — lexicographic
// byte-wise comparison, which is time order for a big-endian time-prefixed
// identifier.
func (id ID) Less(other ID) bool {
	for i := range id {
		if id[i] != other[i] {
			return id[i] < other[i]
		}
	}
	return false
}

// Log is a decoded record: an identifier and an opaque payload.
type Log struct {
	ID   ID
	Body []byte
}

// EncodedSize returns the number of bytes Encode will write for this log.
func (l Log) EncodedSize() int {
	return MinLogSize + len(l.Body)
}

// Encode writes l into dst, which must be at least l.EncodedSize() bytes,
// and returns the number of bytes written.
func Encode(dst []byte, l Log) (int, error) {
	n := l.EncodedSize()
	if len(dst) < n {
		return 0, fmt.Errorf("codec: encode buffer too small: need %d, have %d", n, len(dst))
	}
	copy(dst[0:IDSize], l.ID[:])
	enc.PutUint64(dst[IDSize:IDSize+LengthSize], uint64(len(l.Body)))
	copy(dst[MinLogSize:n], l.Body)
	return n, nil
}

// DecodeResult distinguishes a successful decode from a partial read that
// simply needs more bytes to be available, from a genuinely malformed
// record.
type DecodeResult int

const (
	// DecodeOK indicates a full log was decoded.
	DecodeOK DecodeResult = iota
	// DecodeNeedMore indicates there were not yet enough bytes available
	// to decode a full log; this is not an error.
	DecodeNeedMore
	// DecodeErr indicates the bytes present do not form a valid log.
	DecodeErr
)

// TryDecodeLog attempts to decode one Log from the front of b. It never
// panics on a short slice: a truncated read is reported as DecodeNeedMore,
// not as an error, so callers can distinguish "wait for more bytes" from
// "this is corrupt".
func TryDecodeLog(b []byte) (Log, int, DecodeResult) {
	if len(b) < MinLogSize {
		return Log{}, 0, DecodeNeedMore
	}
	var id ID
	copy(id[:], b[0:IDSize])
	bodyLen := enc.Uint64(b[IDSize : IDSize+LengthSize])
	total := MinLogSize + bodyLen
	if total > uint64(len(b)) {
		return Log{}, 0, DecodeNeedMore
	}
	body := make([]byte, bodyLen)
	copy(body, b[MinLogSize:total])
	return Log{ID: id, Body: body}, int(total), DecodeOK
}

// IndexEntry is one fixed-width record in a sidecar index: an identifier
// and the payload-space offset of the matching log in its data segment.
type IndexEntry struct {
	ID     ID
	Offset uint64
}

// EncodeIndexEntry writes e into dst, which must be at least
// IndexEntrySize bytes.
func EncodeIndexEntry(dst []byte, e IndexEntry) error {
	if len(dst) < IndexEntrySize {
		return fmt.Errorf("codec: index entry buffer too small: need %d, have %d", IndexEntrySize, len(dst))
	}
	copy(dst[0:IDSize], e.ID[:])
	enc.PutUint64(dst[IDSize:IndexEntrySize], e.Offset)
	return nil
}

// DecodeIndexEntry reads one IndexEntry from the front of b.
func DecodeIndexEntry(b []byte) (IndexEntry, error) {
	if len(b) < IndexEntrySize {
		return IndexEntry{}, fmt.Errorf("codec: %w: need %d bytes, got %d", ErrNeedMore, IndexEntrySize, len(b))
	}
	var e IndexEntry
	copy(e.ID[:], b[0:IDSize])
	e.Offset = enc.Uint64(b[IDSize:IndexEntrySize])
	return e, nil
}
