package prom

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := New(reg, "pagecache", "", nil)

	a.WindowHit("comments", "42", 0)
	a.WindowHit("comments", "42", 0)
	a.WindowHit("comments", "42", 3)
	a.WindowMiss("comments", "42", 0)
	a.LiveFetch("games", "top")
	a.SlotWriteLost("page:comments:42|page1")
	a.SelfHeal("k", "gen_mismatch")
	a.StoreError("get", "k", errors.New("x"))
	a.SourceError("games", "top", errors.New("x"))
	a.Recached("comments", "42", 5, 12*time.Millisecond)

	if got := testutil.ToFloat64(a.hits.WithLabelValues("comments", "0")); got != 2 {
		t.Fatalf("hits slot 0 = %v", got)
	}
	if got := testutil.ToFloat64(a.hits.WithLabelValues("comments", "3")); got != 1 {
		t.Fatalf("hits slot 3 = %v", got)
	}
	if got := testutil.ToFloat64(a.misses.WithLabelValues("comments", "0")); got != 1 {
		t.Fatalf("misses = %v", got)
	}
	if got := testutil.ToFloat64(a.writeLost); got != 1 {
		t.Fatalf("write lost = %v", got)
	}
	if got := testutil.ToFloat64(a.selfHeal.WithLabelValues("gen_mismatch")); got != 1 {
		t.Fatalf("self heal = %v", got)
	}
	if got := testutil.ToFloat64(a.storeErrs.WithLabelValues("get")); got != 1 {
		t.Fatalf("store errors = %v", got)
	}
	if n := testutil.CollectAndCount(a.recache); n != 1 {
		t.Fatalf("recache series = %d", n)
	}
}

func TestSlotLabel(t *testing.T) {
	if slotLabel(4) != "4" || slotLabel(12) != "10+" || slotLabel(-1) != "10+" {
		t.Fatalf("unexpected labels")
	}
}

func TestRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg, "pagecache", "a", nil)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected duplicate registration to panic")
		}
	}()
	New(reg, "pagecache", "a", nil)
}
