package pagecache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	c "github.com/unkn0wn-root/pagecache/codec"
	"github.com/unkn0wn-root/pagecache/source"
	"github.com/unkn0wn-root/pagecache/store"
)

type pager[T any] struct {
	ns          string
	store       store.Store
	src         source.Source[T]
	codec       c.Codec[Page[T]]
	log         Logger
	hooks       Hooks
	window      int
	size        int
	enabled     bool
	coalesce    bool
	sharedStore bool

	flights singleflight.Group
}

func newPager[T any](opts Options[T]) (*pager[T], error) {
	if opts.Namespace == "" {
		return nil, fmt.Errorf("pagecache: namespace is required")
	}
	if opts.Source == nil {
		return nil, fmt.Errorf("pagecache: source is required")
	}
	if opts.Store == nil && !opts.Disabled {
		return nil, fmt.Errorf("pagecache: store is required")
	}
	if opts.WindowSize < 0 || opts.PageSize < 0 {
		return nil, fmt.Errorf("pagecache: window and page size must not be negative")
	}

	p := &pager[T]{
		ns:          opts.Namespace,
		store:       opts.Store,
		src:         opts.Source,
		enabled:     !opts.Disabled,
		coalesce:    opts.CoalesceRecache,
		sharedStore: opts.SharedStore,
	}

	// defaults
	p.window = coalesce(opts.WindowSize, DefaultWindowSize)
	p.size = coalesce(opts.PageSize, DefaultPageSize)
	p.log = coalesce[Logger](opts.Logger, NopLogger{})
	p.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	p.codec = coalesce[c.Codec[Page[T]]](opts.Codec, c.Msgpack[Page[T]]{})

	return p, nil
}

func (p *pager[T]) Namespace() string { return p.ns }
func (p *pager[T]) WindowSize() int   { return p.window }
func (p *pager[T]) PageSize() int     { return p.size }
func (p *pager[T]) Enabled() bool     { return p.enabled }

func (p *pager[T]) Close(ctx context.Context) error {
	if p.sharedStore || p.store == nil {
		return nil
	}
	return p.store.Close(ctx)
}

func (p *pager[T]) GetPage(ctx context.Context, prefix, token string, q source.Query) (Page[T], error) {
	tok, err := ParseToken(token, p.window)
	if err != nil {
		return Page[T]{}, err
	}
	switch t := tok.(type) {
	case WindowToken:
		if !p.enabled {
			return p.liveWindow(ctx, prefix, int(t), q)
		}
		return p.windowPage(ctx, prefix, int(t), q)
	case CursorToken:
		return p.live(ctx, prefix, string(t), q)
	}
	panic(fmt.Sprintf("pagecache: ParseToken returned %T; Token is sealed to WindowToken and CursorToken", tok))
}

func (p *pager[T]) Recache(ctx context.Context, prefix string, q source.Query) error {
	if !p.enabled {
		return nil
	}
	_, err := p.recache(ctx, prefix, q)
	return err
}

func (p *pager[T]) Drop(ctx context.Context, prefix string) error {
	if !p.enabled {
		return nil
	}
	var errs []error
	for slot := 0; slot < p.window; slot++ {
		k := p.key(prefix, slot)
		if err := p.store.Delete(ctx, k); err != nil {
			p.storeErr("delete", k, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// windowPage serves slot n from the store, rebuilding the whole window on a miss.
func (p *pager[T]) windowPage(ctx context.Context, prefix string, n int, q source.Query) (Page[T], error) {
	k := p.key(prefix, n)
	present, err := p.store.Contains(ctx, k)
	if err != nil {
		p.storeErr("contains", k, err)
	}
	if present {
		if pg, ok := p.read(ctx, k); ok {
			p.hooks.WindowHit(p.ns, prefix, n)
			return pg, nil
		}
		// vanished or undecodable between Contains and Get; rebuild below
	}

	p.hooks.WindowMiss(p.ns, prefix, n)
	var pages []Page[T]
	if p.coalesce {
		pages, err = p.recacheShared(ctx, prefix, q)
	} else {
		pages, err = p.recache(ctx, prefix, q)
	}
	if err != nil {
		return Page[T]{}, err
	}
	if n < len(pages) {
		pg := pages[n]
		if p.coalesce {
			// every waiter of a shared flight holds the same pages
			pg.Items = slices.Clone(pg.Items)
		}
		return pg, nil
	}
	// collection ends before slot n
	return emptyPage[T](), nil
}

// recacheShared joins the in-flight rebuild of prefix or starts one. The
// rebuild is detached from the caller that started it, bounded by
// sharedRecacheTimeout; each caller stops waiting when its own ctx ends.
func (p *pager[T]) recacheShared(ctx context.Context, prefix string, q source.Query) ([]Page[T], error) {
	ch := p.flights.DoChan(prefix, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedRecacheTimeout)
		defer cancel()
		return p.recache(fctx, prefix, q)
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.([]Page[T]), nil
	case <-ctx.Done():
		return nil, &SourceUnavailableError{Prefix: prefix, Err: ctx.Err()}
	}
}

// recache rebuilds slots 0..window-1 in order and returns what it wrote.
//
// Each slot's version is read before its page is fetched, so a writer that
// lands in between makes the compare-and-swap fail and the slot keeps the
// other writer's page. Slots past the end of the collection are deleted.
func (p *pager[T]) recache(ctx context.Context, prefix string, q source.Query) ([]Page[T], error) {
	start := time.Now()
	pages := make([]Page[T], 0, p.window)
	cursor := ""
	for slot := 0; slot < p.window; slot++ {
		k := p.key(prefix, slot)
		_, ver, versioned, err := p.store.GetIdentifiable(ctx, k)
		if err != nil {
			p.storeErr("get_identifiable", k, err)
			versioned = false
		}

		pg, next, err := p.fetch(ctx, prefix, q, cursor)
		if err != nil {
			p.log.Warn("recache aborted", p.fields(prefix, "slot", slot, "written", len(pages), "err", err))
			return nil, err
		}
		cursor = next
		if cursor != "" && slot < p.window-1 {
			pg.Next = WindowToken(slot + 1).String()
		}

		p.write(ctx, k, pg, ver, versioned)
		pages = append(pages, pg)
		if cursor == "" {
			break
		}
	}
	p.clearTail(ctx, prefix, len(pages))

	took := time.Since(start)
	p.hooks.Recached(p.ns, prefix, len(pages), took)
	p.log.Debug("window recached", p.fields(prefix, "slots", len(pages), "took", took))
	return pages, nil
}

// clearTail removes slots left over from a longer version of the collection.
func (p *pager[T]) clearTail(ctx context.Context, prefix string, from int) {
	for slot := from; slot < p.window; slot++ {
		k := p.key(prefix, slot)
		present, err := p.store.Contains(ctx, k)
		if err != nil {
			p.storeErr("contains", k, err)
			continue
		}
		if !present {
			continue
		}
		if err := p.store.Delete(ctx, k); err != nil {
			p.storeErr("delete", k, err)
		}
	}
}

func (p *pager[T]) write(ctx context.Context, k string, pg Page[T], ver store.Version, versioned bool) {
	raw, err := p.codec.Encode(pg)
	if err != nil {
		p.storeErr("encode", k, err)
		return
	}
	if versioned {
		ok, err := p.store.CompareAndSwap(ctx, k, ver, raw)
		if err != nil {
			p.storeErr("cas", k, err)
			return
		}
		if !ok {
			p.hooks.SlotWriteLost(k)
			p.log.Debug("slot write lost to concurrent writer", Fields{"key": k, "version": uint64(ver)})
		}
		return
	}
	if err := p.store.Put(ctx, k, raw); err != nil {
		if errors.Is(err, store.ErrRejected) {
			p.log.Debug("slot write rejected by store", Fields{"key": k})
			return
		}
		p.storeErr("put", k, err)
	}
}

// read returns a decoded slot. Undecodable slots are deleted.
func (p *pager[T]) read(ctx context.Context, k string) (Page[T], bool) {
	raw, ok, err := p.store.Get(ctx, k)
	if err != nil {
		p.storeErr("get", k, err)
		return Page[T]{}, false
	}
	if !ok {
		return Page[T]{}, false
	}
	pg, err := p.codec.Decode(raw)
	if err != nil {
		_ = p.store.Delete(ctx, k)
		p.hooks.SelfHeal(k, "value_decode")
		p.log.Warn("dropped undecodable slot", Fields{"key": k, "err": err})
		return Page[T]{}, false
	}
	if pg.Items == nil {
		pg.Items = []T{}
	}
	return pg, true
}

// live serves a cursor token straight from the source. Never cached.
func (p *pager[T]) live(ctx context.Context, prefix, cursor string, q source.Query) (Page[T], error) {
	pg, next, err := p.fetch(ctx, prefix, q, cursor)
	if err != nil {
		return Page[T]{}, err
	}
	pg.Next = next
	p.hooks.LiveFetch(p.ns, prefix)
	return pg, nil
}

// liveWindow serves slot n of a disabled pager by reading from the start.
// Only reachable with a token issued before the pager was disabled.
func (p *pager[T]) liveWindow(ctx context.Context, prefix string, n int, q source.Query) (Page[T], error) {
	skip := n * p.size
	b, err := p.fetchBatch(ctx, prefix, q, "", skip+p.size+1)
	if err != nil {
		return Page[T]{}, err
	}
	p.hooks.LiveFetch(p.ns, prefix)
	if len(b.Items) <= skip {
		return emptyPage[T](), nil
	}
	b.Items, b.After = b.Items[skip:], b.After[skip:]
	pg, next := p.trim(b)
	pg.Next = next
	return pg, nil
}

// fetch reads one page plus a lookahead item starting after cursor. next is
// the source cursor resuming after the page, or "" at the end.
func (p *pager[T]) fetch(ctx context.Context, prefix string, q source.Query, cursor string) (Page[T], string, error) {
	b, err := p.fetchBatch(ctx, prefix, q, cursor, p.size+1)
	if err != nil {
		return Page[T]{}, "", err
	}
	pg, next := p.trim(b)
	return pg, next, nil
}

func (p *pager[T]) fetchBatch(ctx context.Context, prefix string, q source.Query, cursor string, limit int) (source.Batch[T], error) {
	b, err := p.src.Fetch(ctx, q, cursor, limit)
	if err == nil && len(b.After) != len(b.Items) {
		err = fmt.Errorf("source returned %d cursors for %d items", len(b.After), len(b.Items))
	}
	if err != nil {
		if errors.Is(err, source.ErrMalformedCursor) {
			return source.Batch[T]{}, &InvalidPageTokenError{Token: cursor, Reason: "rejected by source", Err: err}
		}
		p.hooks.SourceError(p.ns, prefix, err)
		return source.Batch[T]{}, &SourceUnavailableError{Prefix: prefix, Err: err}
	}
	if len(b.Items) > limit {
		b.Items, b.After = b.Items[:limit], b.After[:limit]
	}
	return b, nil
}

// trim cuts a lookahead batch to one page.
func (p *pager[T]) trim(b source.Batch[T]) (Page[T], string) {
	if len(b.Items) > p.size {
		return Page[T]{Items: b.Items[:p.size:p.size]}, b.After[p.size-1]
	}
	if b.Items == nil {
		return emptyPage[T](), ""
	}
	return Page[T]{Items: b.Items}, ""
}

func (p *pager[T]) storeErr(op, k string, err error) {
	p.hooks.StoreError(op, k, err)
	p.log.Warn("store "+op+" failed", Fields{"key": k, "err": err})
}

func (p *pager[T]) key(prefix string, slot int) string {
	// isolate by namespace
	return "page:" + p.ns + ":" + prefix + "|" + windowPrefix + strconv.Itoa(slot)
}
