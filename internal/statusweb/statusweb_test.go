package statusweb

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBroadcasterSendJSONDoesNotBlockWithNoSockets(t *testing.T) {
	b := NewBroadcaster()
	done := make(chan struct{})
	go func() {
		b.SendJSON(statusFrame{Kind: "status", Message: "hello"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SendJSON blocked with no connected sockets")
	}
}

func TestBroadcasterAddSocketIsConcurrencySafe(t *testing.T) {
	b := NewBroadcaster()
	assert.NotPanics(t, func() {
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				b.AddSocket(nil)
			}()
		}
		wg.Wait()
		b.mu.Lock()
		n := len(b.sockets)
		b.mu.Unlock()
		assert.Equal(t, 8, n)
	})
}
