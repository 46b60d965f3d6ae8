// Package source defines the ordered collection the pager reads from.
//
// A Source returns items in a stable order for a fixed Query and resumes
// from opaque cursors it issued itself. Cursors are only meaningful to the
// Source instance that produced them.
package source

import (
	"context"
	"errors"
)

// ErrMalformedCursor is returned (possibly wrapped) when a cursor cannot be
// decoded. The pager reports it to clients as an invalid page token.
var ErrMalformedCursor = errors.New("source: malformed cursor")

// Query is passed unchanged from the caller to the Source. The pager never
// looks inside it.
type Query struct {
	// Ordering selects one of the source's configured sort orders; "" => default.
	Ordering string
	// Filter is a set of column = value constraints.
	Filter map[string]any
}

// Batch is one fetch result. After[i] is the cursor that resumes right
// after Items[i]; len(After) == len(Items).
type Batch[T any] struct {
	Items []T
	After []string
}

// Source fetches up to limit items following cursor ("" = from the start).
type Source[T any] interface {
	Fetch(ctx context.Context, q Query, cursor string, limit int) (Batch[T], error)
}

// Func adapts a function to the Source interface.
type Func[T any] func(ctx context.Context, q Query, cursor string, limit int) (Batch[T], error)

func (f Func[T]) Fetch(ctx context.Context, q Query, cursor string, limit int) (Batch[T], error) {
	return f(ctx, q, cursor, limit)
}
