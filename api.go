package pagecache

import (
	"context"

	c "github.com/unkn0wn-root/pagecache/codec"
	"github.com/unkn0wn-root/pagecache/source"
	"github.com/unkn0wn-root/pagecache/store"
)

// Pager serves pages of the collections behind one Source.
// T is the item type. Pages are serialized with a pluggable Codec[Page[T]].
type Pager[T any] interface {
	// GetPage resolves token for the collection identified by prefix.
	// q is only consulted on a live fetch or a rebuild.
	GetPage(ctx context.Context, prefix, token string, q source.Query) (Page[T], error)
	// Recache rebuilds every window slot of prefix from the start of the
	// collection. Slots written before a source failure stay written.
	Recache(ctx context.Context, prefix string, q source.Query) error
	// Drop deletes every window slot of prefix; the next window read rebuilds.
	Drop(ctx context.Context, prefix string) error

	Namespace() string
	WindowSize() int
	PageSize() int
	Enabled() bool
	Close(context.Context) error
}

// Options tune a Pager.
// Namespace, Store and Source are required; others have sensible defaults.
type Options[T any] struct {
	// Required
	Namespace string // isolates pagers sharing one store. e.g. "comments", "games"
	Store     store.Store
	Source    source.Source[T]

	Codec      c.Codec[Page[T]] // nil => msgpack
	WindowSize int              // cached pages per prefix; 0 => 5
	PageSize   int              // items per page; 0 => 30
	Logger     Logger           // if nil, NopLogger is used
	Hooks      Hooks            // if nil, NopHooks is used

	// CoalesceRecache collapses concurrent window-miss rebuilds of the same
	// prefix inside this process into one. Explicit Recache calls are never
	// coalesced: they must observe writes that happened before the call.
	// A shared rebuild keeps running when the caller that started it goes
	// away, so the other waiters still get their page.
	CoalesceRecache bool
	// Disabled bypasses the store; window tokens are served live.
	Disabled bool
	// SharedStore keeps Close from closing Store.
	SharedStore bool
}

func New[T any](opts Options[T]) (Pager[T], error) {
	return newPager[T](opts)
}
