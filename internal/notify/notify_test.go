package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBroadcastWakesExistingSubscriber(t *testing.T) {
	g := New()
	ch := g.Subscribe()

	done := make(chan struct{})
	go func() {
		<-ch
		close(done)
	}()

	g.Broadcast()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("subscriber was not woken")
	}
}

func TestSubscribeAfterBroadcastGetsFreshChannel(t *testing.T) {
	g := New()
	first := g.Subscribe()
	g.Broadcast()

	select {
	case <-first:
	default:
		t.Fatal("old generation channel should be closed")
	}

	second := g.Subscribe()
	select {
	case <-second:
		t.Fatal("new generation channel should not yet be closed")
	default:
	}
}

func TestSubscribeThenBroadcastBeforeWaitClosesTheRace(t *testing.T) {
	g := New()

	// Simulate the canonical pattern: subscribe, recheck condition, then
	// wait. A broadcast landing right after subscribe but before the wait
	// must still be observed.
	ch := g.Subscribe()
	g.Broadcast()

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("broadcast between subscribe and wait was missed")
	}
	require.True(t, true)
}
