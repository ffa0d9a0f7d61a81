// Package notify implements a minimal generation-counter broadcaster used
// to wake readers parked waiting for new data or for a segment to finish,
// without the classic commit/wait race: a subscriber captures the current
// generation's channel, re-checks its condition, and only then waits on
// that channel — so a commit that lands between the check and the wait
// still wakes it, because the channel it is waiting on is the one that gets
// closed by that very commit.
package notify

import "sync"

// Gate is a broadcaster with no payload: it only ever signals "something
// changed, re-check your condition". It has no queue and drops no signals
// between a Subscribe and a Broadcast because it never needs to — every
// waiter re-validates its own condition against shared state after waking.
type Gate struct {
	mu   sync.Mutex
	gen  chan struct{}
	once sync.Once
}

// New returns a ready-to-use Gate.
func New() *Gate {
	return &Gate{gen: make(chan struct{})}
}

// Subscribe returns the channel for the current generation. Callers must
// call Subscribe *before* re-checking the condition they're waiting on, then
// select on the returned channel (and a cancellation channel) only after
// that check comes back negative.
func (g *Gate) Subscribe() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gen
}

// Broadcast wakes every current subscriber by closing the current
// generation's channel and installing a fresh one for the next round.
func (g *Gate) Broadcast() {
	g.mu.Lock()
	defer g.mu.Unlock()
	close(g.gen)
	g.gen = make(chan struct{})
}
