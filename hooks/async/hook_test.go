package asynchook

import (
	"sync"
	"testing"

	"github.com/unkn0wn-root/pagecache"
)

type countHooks struct {
	pagecache.NopHooks
	mu    sync.Mutex
	hits  int
	block chan struct{}
}

func (c *countHooks) WindowHit(string, string, int) {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
}

func TestDeliversBeforeClose(t *testing.T) {
	inner := &countHooks{}
	h := New(inner, 2, 100)
	for i := 0; i < 50; i++ {
		h.WindowHit("ns", "p", 0)
	}
	h.Close()
	if inner.hits != 50 || h.Dropped() != 0 {
		t.Fatalf("hits=%d dropped=%d", inner.hits, h.Dropped())
	}
}

func TestDropsWhenFull(t *testing.T) {
	inner := &countHooks{block: make(chan struct{})}
	h := New(inner, 1, 1)
	for i := 0; i < 10; i++ {
		h.WindowHit("ns", "p", 0)
	}
	close(inner.block)
	h.Close()
	if h.Dropped() == 0 {
		t.Fatalf("expected drops with a blocked worker and queue of 1")
	}
	if uint64(inner.hits)+h.Dropped() != 10 {
		t.Fatalf("hits=%d dropped=%d do not add up", inner.hits, h.Dropped())
	}
}

func TestAfterCloseIsDropped(t *testing.T) {
	h := New(&countHooks{}, 1, 4)
	h.Close()
	h.Close() // idempotent
	h.WindowHit("ns", "p", 0)
	if h.Dropped() != 1 {
		t.Fatalf("dropped=%d", h.Dropped())
	}
}
