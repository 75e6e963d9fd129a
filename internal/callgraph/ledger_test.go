package callgraph

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLedger_TryVisit(t *testing.T) {
	l := NewLedger()
	assert.True(t, l.TryVisit("a"))
	assert.False(t, l.TryVisit("a"))
	assert.True(t, l.Visited("a"))
	assert.False(t, l.Visited("b"))
	assert.Equal(t, 1, l.Len())
}

func TestLedger_SeedAndForget(t *testing.T) {
	l := NewLedger("a", "b")
	assert.False(t, l.TryVisit("a"))
	l.Forget("a")
	assert.True(t, l.TryVisit("a"))
	assert.Equal(t, 2, l.Len())
}

func TestLedger_ConcurrentClaimHasOneWinner(t *testing.T) {
	l := NewLedger()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TryVisit("shared") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}
