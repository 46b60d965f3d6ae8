// Package provider is the byte layer under store.Store.
//
// A provider must hand back exactly the bytes it was given. Slots carry their
// generation in a frame, so a provider that transforms values makes every
// read fail validation and forces a recache.
//
// Keys under "page:<ns>:" belong to pagecache. Anything else written there
// fails frame validation and is deleted on read.
package provider

import (
	"context"
	"time"
)

// Provider implementations are safe for concurrent use.
type Provider interface {
	// Get reports a miss as (nil, false, nil). err is for transport or
	// server failures only.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set returns ok=false when the backend declined the value, for example
	// under memory pressure or because it is too large. cost and ttl are
	// hints; backends without them ignore them.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del of a missing key is not an error.
	Del(ctx context.Context, key string) error

	Close(ctx context.Context) error
}
