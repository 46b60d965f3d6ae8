package genstore

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestLocalSnapshotZeroForMissing(t *testing.T) {
	ctx := context.Background()
	s := NewLocalGenStore(0, 0)
	t.Cleanup(func() { _ = s.Close(ctx) })

	if _, err := s.Bump(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Bump(ctx, "b"); err != nil {
		t.Fatal(err)
	}

	for k, want := range map[string]uint64{"a": 0, "b": 2} {
		got, err := s.Snapshot(ctx, k)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Fatalf("Snapshot(%q)=%d want %d", k, got, want)
		}
	}
}

func TestLocalCompareAndBump(t *testing.T) {
	ctx := context.Background()
	s := NewLocalGenStore(0, 0)
	t.Cleanup(func() { _ = s.Close(ctx) })

	gen, ok, err := s.CompareAndBump(ctx, "k", 0)
	if err != nil || !ok || gen != 1 {
		t.Fatalf("first CAS: gen=%d ok=%v err=%v", gen, ok, err)
	}
	// stale expectation loses
	if _, ok, err := s.CompareAndBump(ctx, "k", 0); err != nil || ok {
		t.Fatalf("stale CAS should fail, ok=%v err=%v", ok, err)
	}
	gen, ok, err = s.CompareAndBump(ctx, "k", 1)
	if err != nil || !ok || gen != 2 {
		t.Fatalf("fresh CAS: gen=%d ok=%v err=%v", gen, ok, err)
	}
}

// Many goroutines racing with the same expected gen: exactly one wins.
func TestLocalCompareAndBumpSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := NewLocalGenStore(0, 0)
	t.Cleanup(func() { _ = s.Close(ctx) })

	const n = 32
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if _, ok, _ := s.CompareAndBump(ctx, "race", 0); ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestLocalCleanupPrunesOld(t *testing.T) {
	ctx := context.Background()
	s := NewLocalGenStore(0, 0)
	t.Cleanup(func() { _ = s.Close(ctx) })

	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }
	if _, err := s.Bump(ctx, "old"); err != nil {
		t.Fatal(err)
	}
	now = now.Add(30 * time.Minute)
	if _, err := s.Bump(ctx, "fresh"); err != nil {
		t.Fatal(err)
	}
	now = now.Add(40 * time.Minute)
	s.Cleanup(time.Hour)

	if g, _ := s.Snapshot(ctx, "old"); g != 0 {
		t.Fatalf("expected pruned -> 0, got %d", g)
	}
	if g, _ := s.Snapshot(ctx, "fresh"); g != 1 {
		t.Fatalf("fresh key pruned: gen=%d", g)
	}
	if s.Len() != 1 {
		t.Fatalf("Len=%d want 1", s.Len())
	}
}

func TestLocalKeysSpreadOverShards(t *testing.T) {
	ctx := context.Background()
	s := NewLocalGenStore(0, 0)
	t.Cleanup(func() { _ = s.Close(ctx) })

	if n := len(s.shards); n&(n-1) != 0 || n > 64 {
		t.Fatalf("shard count %d is not a power of two <= 64", n)
	}
	for i := 0; i < 500; i++ {
		k := "page:comments:" + time.Duration(i).String() + "|page0"
		if _, err := s.Bump(ctx, k); err != nil {
			t.Fatal(err)
		}
	}
	if s.Len() != 500 {
		t.Fatalf("Len=%d want 500", s.Len())
	}
	if len(s.shards) > 1 {
		used := 0
		for i := range s.shards {
			if len(s.shards[i].gens) > 0 {
				used++
			}
		}
		if used < 2 {
			t.Fatalf("all keys landed in one shard")
		}
	}
}

func TestLocalCloseIdempotent(t *testing.T) {
	s := NewLocalGenStore(time.Minute, time.Hour)
	if err := s.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
}
