package lists

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/pagecache"
	"github.com/unkn0wn-root/pagecache/genstore"
	rp "github.com/unkn0wn-root/pagecache/provider/redis"
	"github.com/unkn0wn-root/pagecache/source"
	"github.com/unkn0wn-root/pagecache/store"
)

// ==============================
// Fixtures
// ==============================

// threads holds sorted ints per parent; Filter["parent"] selects one.
// Ordering "desc" walks a parent's items backwards.
type threads struct {
	mu    sync.Mutex
	items map[string][]int
	fail  error
}

func (s *threads) add(parent string, v int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	xs := append(s.items[parent], v)
	sort.Ints(xs)
	s.items[parent] = xs
}

func (s *threads) Exists(_ context.Context, parent string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[parent]
	return ok, nil
}

func (s *threads) Fetch(_ context.Context, q source.Query, cursor string, limit int) (source.Batch[int], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return source.Batch[int]{}, s.fail
	}
	parent, _ := q.Filter["parent"].(string)
	xs := append([]int(nil), s.items[parent]...)
	if q.Ordering == "desc" {
		sort.Sort(sort.Reverse(sort.IntSlice(xs)))
	}
	start := 0
	if cursor != "" {
		i, err := strconv.Atoi(strings.TrimPrefix(cursor, "i"))
		if err != nil || !strings.HasPrefix(cursor, "i") {
			return source.Batch[int]{}, source.ErrMalformedCursor
		}
		start = i
	}
	var b source.Batch[int]
	for i := start; i < len(xs) && len(b.Items) < limit; i++ {
		b.Items = append(b.Items, xs[i])
		b.After = append(b.After, "i"+strconv.Itoa(i+1))
	}
	return b, nil
}

func newRedisStore(t *testing.T) (store.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	p, err := rp.New(rp.Config{Client: rdb})
	if err != nil {
		t.Fatal(err)
	}
	st, err := store.New(store.Options{Provider: p, GenStore: genstore.NewRedisGenStore(rdb, genstore.RedisOptions{Namespace: "test"})})
	if err != nil {
		t.Fatal(err)
	}
	return st, mr
}

func newPager(t *testing.T, st store.Store, src source.Source[int]) pagecache.Pager[int] {
	t.Helper()
	p, err := pagecache.New[int](pagecache.Options[int]{
		Namespace:  "lists",
		Store:      st,
		Source:     src,
		WindowSize: 3,
		PageSize:   2,
	})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func parentQuery(id string) source.Query {
	return source.Query{Filter: map[string]any{"parent": id}}
}

// ==============================
// PerParent
// ==============================

func TestPerParentReadsAndInvalidates(t *testing.T) {
	ctx := context.Background()
	src := &threads{items: map[string][]int{"g1": {1, 2, 3, 4, 5}, "g2": {}}}
	st, _ := newRedisStore(t)
	l, err := NewPerParent[int](newPager(t, st, src), src, parentQuery, nil)
	if err != nil {
		t.Fatal(err)
	}

	pg, err := l.GetPage(ctx, "g1", "")
	if err != nil || len(pg.Items) != 2 || pg.Items[0] != 1 || pg.Next != "page1" {
		t.Fatalf("first page: %v %v", pg, err)
	}
	empty, err := l.GetPage(ctx, "g2", "")
	if err != nil || len(empty.Items) != 0 || empty.Next != "" {
		t.Fatalf("empty thread: %v %v", empty, err)
	}

	src.add("g1", 0)
	if again, _ := l.GetPage(ctx, "g1", ""); again.Items[0] != 1 {
		t.Fatalf("window changed before invalidate: %v", again.Items)
	}
	if err := l.Invalidate(ctx, "g1"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if fresh, _ := l.GetPage(ctx, "g1", ""); fresh.Items[0] != 0 {
		t.Fatalf("window missed the insert after invalidate: %v", fresh.Items)
	}
	// other parents are untouched
	if other, _ := l.GetPage(ctx, "g2", "page0"); len(other.Items) != 0 {
		t.Fatalf("g2 changed: %v", other.Items)
	}
}

func TestPerParentErrorsBeforeCacheIO(t *testing.T) {
	ctx := context.Background()
	src := &threads{items: map[string][]int{"g1": {1}}}
	st, mr := newRedisStore(t)
	l, _ := NewPerParent[int](newPager(t, st, src), src, parentQuery, nil)

	if _, err := l.GetPage(ctx, "nope", ""); !errors.Is(err, pagecache.ErrNotFound) {
		t.Fatalf("missing parent: want ErrNotFound, got %v", err)
	}
	// token is checked before the parent
	if _, err := l.GetPage(ctx, "nope", "page9"); !errors.Is(err, pagecache.ErrInvalidPageToken) {
		t.Fatalf("bad token: want ErrInvalidPageToken, got %v", err)
	}
	if keys := mr.Keys(); len(keys) != 0 {
		t.Fatalf("store touched: %v", keys)
	}
}

func TestPerParentInvalidateFallsBackToDrop(t *testing.T) {
	ctx := context.Background()
	src := &threads{items: map[string][]int{"g1": {1, 2, 3}}}
	st, _ := newRedisStore(t)
	p := newPager(t, st, src)
	l, _ := NewPerParent[int](p, src, parentQuery, nil)

	if _, err := l.GetPage(ctx, "g1", ""); err != nil {
		t.Fatal(err)
	}
	src.mu.Lock()
	src.fail = errors.New("db down")
	src.mu.Unlock()

	if err := l.Invalidate(ctx, "g1"); err != nil {
		t.Fatalf("drop fallback should succeed: %v", err)
	}
	if ok, _ := st.Contains(ctx, "page:lists:g1|page0"); ok {
		t.Fatalf("slot 0 should have been dropped")
	}
}

func TestPerParentInvalidateOutage(t *testing.T) {
	ctx := context.Background()
	src := &threads{items: map[string][]int{"g1": {1, 2, 3}}}
	st, mr := newRedisStore(t)
	l, _ := NewPerParent[int](newPager(t, st, src), src, parentQuery, nil)

	src.fail = errors.New("db down")
	mr.Close()

	err := l.Invalidate(ctx, "g1")
	var ie *pagecache.InvalidateError
	if !errors.As(err, &ie) || ie.RecacheErr == nil || ie.DropErr == nil {
		t.Fatalf("want InvalidateError with both causes, got %v", err)
	}
	if !errors.Is(err, pagecache.ErrSourceUnavailable) {
		t.Fatalf("recache cause should be a source error")
	}
}

// ==============================
// Global
// ==============================

func TestGlobalOrderings(t *testing.T) {
	ctx := context.Background()
	src := &threads{items: map[string][]int{"": {1, 2, 3, 4, 5, 6, 7}}}
	st, _ := newRedisStore(t)
	g, err := NewGlobal[int](newPager(t, st, src), map[string]source.Query{
		"recent": {Ordering: "desc"},
		"oldest": {},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if names := g.Orderings(); len(names) != 2 || names[0] != "oldest" || names[1] != "recent" {
		t.Fatalf("orderings: %v", names)
	}

	recent, err := g.GetPage(ctx, "recent", "")
	if err != nil || recent.Items[0] != 7 {
		t.Fatalf("recent: %v %v", recent, err)
	}
	oldest, _ := g.GetPage(ctx, "oldest", "")
	if oldest.Items[0] != 1 {
		t.Fatalf("oldest: %v", oldest)
	}
	if _, err := g.GetPage(ctx, "hot", ""); !errors.Is(err, pagecache.ErrNotFound) {
		t.Fatalf("unknown ordering: %v", err)
	}

	// the last window slot exits to a live cursor
	pg := recent
	for i := 0; i < 2; i++ {
		pg, _ = g.GetPage(ctx, "recent", pg.Next)
	}
	if strings.HasPrefix(pg.Next, "page") || pg.Next == "" {
		t.Fatalf("slot 2 next = %q, want a cursor", pg.Next)
	}
	tail, err := g.GetPage(ctx, "recent", pg.Next)
	if err != nil || len(tail.Items) != 1 || tail.Items[0] != 1 {
		t.Fatalf("tail: %v %v", tail, err)
	}

	// item mutations only show after the batch invalidation
	src.add("", 8)
	if again, _ := g.GetPage(ctx, "recent", ""); again.Items[0] != 7 {
		t.Fatalf("global list changed without invalidation")
	}
	if err := g.InvalidateAll(ctx); err != nil {
		t.Fatalf("InvalidateAll: %v", err)
	}
	if fresh, _ := g.GetPage(ctx, "recent", ""); fresh.Items[0] != 8 {
		t.Fatalf("recent after InvalidateAll: %v", fresh.Items)
	}
	if err := g.Invalidate(ctx, "hot"); !errors.Is(err, pagecache.ErrNotFound) {
		t.Fatalf("invalidate unknown ordering: %v", err)
	}
}

func TestConstructorsValidate(t *testing.T) {
	if _, err := NewPerParent[int](nil, nil, nil, nil); err == nil {
		t.Fatalf("NewPerParent accepted nil deps")
	}
	st, _ := newRedisStore(t)
	if _, err := NewGlobal[int](newPager(t, st, &threads{}), nil, nil); err == nil {
		t.Fatalf("NewGlobal accepted no orderings")
	}
}
