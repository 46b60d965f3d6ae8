package lists

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/unkn0wn-root/pagecache"
	"github.com/unkn0wn-root/pagecache/source"
)

// Global is a fixed set of orderings over one collection. The prefix is the
// ordering name. Item mutations do not invalidate it; a batch job calls
// InvalidateAll once it has rewritten the sort keys.
type Global[T any] struct {
	pager     pagecache.Pager[T]
	orderings map[string]source.Query
	names     []string
	log       pagecache.Logger
}

func NewGlobal[T any](p pagecache.Pager[T], orderings map[string]source.Query, log pagecache.Logger) (*Global[T], error) {
	if p == nil || len(orderings) == 0 {
		return nil, fmt.Errorf("lists: pager and at least one ordering are required")
	}
	if log == nil {
		log = pagecache.NopLogger{}
	}
	g := &Global[T]{pager: p, orderings: make(map[string]source.Query, len(orderings)), log: log}
	for name, q := range orderings {
		g.orderings[name] = q
		g.names = append(g.names, name)
	}
	sort.Strings(g.names)
	return g, nil
}

// Orderings returns the ordering names, sorted.
func (g *Global[T]) Orderings() []string {
	return append([]string(nil), g.names...)
}

// GetPage returns one page of an ordering. A cold page0 is built on the
// spot; an unknown ordering is pagecache.ErrNotFound.
func (g *Global[T]) GetPage(ctx context.Context, ordering, token string) (pagecache.Page[T], error) {
	q, ok := g.orderings[ordering]
	if !ok {
		return pagecache.Page[T]{}, fmt.Errorf("ordering %q: %w", ordering, pagecache.ErrNotFound)
	}
	return g.pager.GetPage(ctx, ordering, token, q)
}

func (g *Global[T]) Invalidate(ctx context.Context, ordering string) error {
	q, ok := g.orderings[ordering]
	if !ok {
		return fmt.Errorf("ordering %q: %w", ordering, pagecache.ErrNotFound)
	}
	return invalidate(ctx, g.pager, g.log, ordering, func() error {
		return g.pager.Recache(ctx, ordering, q)
	})
}

// InvalidateAll rebuilds every ordering, one after another, and joins the
// failures.
func (g *Global[T]) InvalidateAll(ctx context.Context) error {
	var errs []error
	for _, name := range g.names {
		if err := g.Invalidate(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
