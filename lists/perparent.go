package lists

import (
	"context"
	"fmt"

	"github.com/unkn0wn-root/pagecache"
	"github.com/unkn0wn-root/pagecache/source"
)

// PerParent is a thread-per-parent list. The prefix is the parent id.
type PerParent[T any] struct {
	pager  pagecache.Pager[T]
	owners OwnerChecker
	query  func(parentID string) source.Query
	log    pagecache.Logger
}

func NewPerParent[T any](p pagecache.Pager[T], owners OwnerChecker, query func(parentID string) source.Query, log pagecache.Logger) (*PerParent[T], error) {
	if p == nil || owners == nil || query == nil {
		return nil, fmt.Errorf("lists: pager, owners and query are required")
	}
	if log == nil {
		log = pagecache.NopLogger{}
	}
	return &PerParent[T]{pager: p, owners: owners, query: query, log: log}, nil
}

// GetPage returns one page of the parent's thread. Token errors are reported
// before the parent is looked up; a missing parent is pagecache.ErrNotFound.
func (l *PerParent[T]) GetPage(ctx context.Context, parentID, token string) (pagecache.Page[T], error) {
	if _, err := pagecache.ParseToken(token, l.pager.WindowSize()); err != nil {
		return pagecache.Page[T]{}, err
	}
	ok, err := l.owners.Exists(ctx, parentID)
	if err != nil {
		return pagecache.Page[T]{}, &pagecache.SourceUnavailableError{Prefix: parentID, Err: err}
	}
	if !ok {
		return pagecache.Page[T]{}, fmt.Errorf("parent %q: %w", parentID, pagecache.ErrNotFound)
	}
	return l.pager.GetPage(ctx, parentID, token, l.query(parentID))
}

// Invalidate rebuilds the parent's window. Call it after every mutation of
// the thread and before reporting the mutation as done.
func (l *PerParent[T]) Invalidate(ctx context.Context, parentID string) error {
	return invalidate(ctx, l.pager, l.log, parentID, func() error {
		return l.pager.Recache(ctx, parentID, l.query(parentID))
	})
}
