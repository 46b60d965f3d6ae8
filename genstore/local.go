package genstore

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

type genEntry struct {
	gen     uint64
	touched int64 // unix nanos of the last bump
}

type genShard struct {
	mu   sync.Mutex
	gens map[string]genEntry
}

// LocalGenStore keeps generations in process memory. Keys are spread over
// a power-of-two number of shards so rebuilds of unrelated prefixes do not
// contend on one lock. A background sweep forgets keys not bumped within
// the retention period.
type LocalGenStore struct {
	shards []genShard
	mask   uint64
	now    func() time.Time

	stop chan struct{}
	done sync.WaitGroup
	once sync.Once
}

var _ GenStore = (*LocalGenStore)(nil)

// NewLocalGenStore starts a sweep every cleanupInterval when both
// arguments are positive.
func NewLocalGenStore(cleanupInterval, retention time.Duration) *LocalGenStore {
	n := shardCount()
	s := &LocalGenStore{
		shards: make([]genShard, n),
		mask:   uint64(n - 1),
		now:    time.Now,
	}
	for i := range s.shards {
		s.shards[i].gens = make(map[string]genEntry)
	}
	if cleanupInterval > 0 && retention > 0 {
		s.stop = make(chan struct{})
		s.done.Add(1)
		go s.sweep(cleanupInterval, retention)
	}
	return s
}

// shardCount is 2*GOMAXPROCS rounded up to a power of two, at most 64.
func shardCount() int {
	want := 2 * runtime.GOMAXPROCS(0)
	n := 1
	for n < want && n < 64 {
		n <<= 1
	}
	return n
}

func (s *LocalGenStore) shard(k string) *genShard {
	return &s.shards[xxhash.Sum64String(k)&s.mask]
}

func (s *LocalGenStore) sweep(every, retention time.Duration) {
	defer s.done.Done()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.Cleanup(retention)
		case <-s.stop:
			return
		}
	}
}

func (s *LocalGenStore) Snapshot(_ context.Context, k string) (uint64, error) {
	sh := s.shard(k)
	sh.mu.Lock()
	e := sh.gens[k]
	sh.mu.Unlock()
	return e.gen, nil
}

func (s *LocalGenStore) Bump(_ context.Context, k string) (uint64, error) {
	g, _ := s.bump(k, 0, false)
	return g, nil
}

// CompareAndBump compares and increments under the shard lock, so of two
// callers holding the same expected generation exactly one wins.
func (s *LocalGenStore) CompareAndBump(_ context.Context, k string, expected uint64) (uint64, bool, error) {
	g, ok := s.bump(k, expected, true)
	return g, ok, nil
}

func (s *LocalGenStore) bump(k string, expected uint64, compare bool) (uint64, bool) {
	now := s.now().UnixNano()
	sh := s.shard(k)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e := sh.gens[k]
	if compare && e.gen != expected {
		return e.gen, false
	}
	e.gen++
	e.touched = now
	sh.gens[k] = e
	return e.gen, true
}

// Cleanup forgets keys not bumped within retention. A forgotten key reads
// as generation 0, so the slot it guarded fails validation and self-heals.
func (s *LocalGenStore) Cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := s.now().Add(-retention).UnixNano()
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for k, e := range sh.gens {
			if e.touched < cutoff {
				delete(sh.gens, k)
			}
		}
		sh.mu.Unlock()
	}
}

// Len reports how many keys currently have a generation.
func (s *LocalGenStore) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		n += len(sh.gens)
		sh.mu.Unlock()
	}
	return n
}

func (s *LocalGenStore) Close(_ context.Context) error {
	s.once.Do(func() {
		if s.stop != nil {
			close(s.stop)
			s.done.Wait()
		}
	})
	return nil
}
