// Package lists wraps a pagecache.Pager with the two invalidation policies
// the application needs.
//
// PerParent caches one thread per parent id and rebuilds it synchronously on
// every mutation. Global caches a few fixed orderings of one collection and
// is only rebuilt in bulk, after a batch job has rewritten the sort keys.
package lists

import (
	"context"

	"github.com/unkn0wn-root/pagecache"
)

// OwnerChecker reports whether the parent of a thread exists.
type OwnerChecker interface {
	Exists(ctx context.Context, parentID string) (bool, error)
}

// OwnerFunc adapts a function to OwnerChecker.
type OwnerFunc func(ctx context.Context, parentID string) (bool, error)

func (f OwnerFunc) Exists(ctx context.Context, parentID string) (bool, error) {
	return f(ctx, parentID)
}

// invalidate rebuilds the window of prefix and falls back to dropping it,
// so the next reader rebuilds lazily.
func invalidate[T any](ctx context.Context, p pagecache.Pager[T], log pagecache.Logger, prefix string, rebuild func() error) error {
	recacheErr := rebuild()
	if recacheErr == nil {
		return nil
	}
	log.Warn("recache on invalidate failed; dropping window", pagecache.Fields{"ns": p.Namespace(), "prefix": prefix, "err": recacheErr})
	dropErr := p.Drop(ctx, prefix)
	if dropErr == nil {
		return nil
	}
	log.Error("invalidate failed", pagecache.Fields{"ns": p.Namespace(), "prefix": prefix, "err": dropErr})
	return &pagecache.InvalidateError{Prefix: prefix, RecacheErr: recacheErr, DropErr: dropErr}
}
