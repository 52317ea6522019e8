package monitor

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupWindowObserve(t *testing.T) {
	w := newDedupWindow(4)

	assert.False(t, w.Observe("a"))
	assert.True(t, w.Observe("a"))
	assert.False(t, w.Observe("b"))
	assert.True(t, w.Observe("b"))
	assert.Equal(t, 2, w.Len())
}

func TestDedupWindowEvictsOldest(t *testing.T) {
	w := newDedupWindow(3)

	w.Observe("a")
	w.Observe("b")
	w.Observe("c")
	// Window full; inserting d evicts a.
	assert.False(t, w.Observe("d"))
	assert.False(t, w.Observe("a"), "evicted id should be observable again")
	assert.Equal(t, 3, w.Len())
}

func TestDedupWindowBounded(t *testing.T) {
	w := newDedupWindow(16)
	for i := 0; i < 1000; i++ {
		w.Observe(fmt.Sprintf("sig-%d", i))
	}
	assert.LessOrEqual(t, w.Len(), 16)
}

func TestConnStateTransitions(t *testing.T) {
	assert.True(t, canTransition(StateDisconnected, StateConnecting))
	assert.True(t, canTransition(StateConnecting, StateSubscribed))
	assert.True(t, canTransition(StateSubscribed, StateReconnecting))
	assert.True(t, canTransition(StateReconnecting, StateConnecting))
	assert.True(t, canTransition(StateSubscribed, StateShuttingDown))
	assert.True(t, canTransition(StateShuttingDown, StateDisconnected))

	assert.False(t, canTransition(StateDisconnected, StateSubscribed))
	assert.False(t, canTransition(StateShuttingDown, StateSubscribed))
	assert.False(t, canTransition(StateSubscribed, StateConnecting))
}

func TestConnStateString(t *testing.T) {
	assert.Equal(t, "subscribed", StateSubscribed.String())
	assert.Equal(t, "reconnecting", StateReconnecting.String())
}
