package limlog

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/distlimit/limlog/internal/codec"
)

// idGenerator produces time-ordered 128-bit identifiers: the top 48 bits
// are milliseconds since the Unix epoch, the remainder is monotonically
// disambiguated within the same millisecond. A Topic owns one generator,
// shared by every Writer handle it returns; its calls are serialized by mu,
// matching the per-writer
// submission-order guarantee (spec.md §5: "For a single writer: logs appear
// in Writer.Write submission order").
type idGenerator struct {
	mu     sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func newIDGenerator() *idGenerator {
	return &idGenerator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (g *idGenerator) next() codec.ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	u := ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
	return codec.ID(u)
}
