// Package genstore keeps the per-key generations that version window slots.
//
// store.Store frames each slot with the generation current at write time;
// a slot whose frame disagrees with its generation is stale. Deleting a slot
// bumps its generation, so a recache that read the old one loses its
// compare-and-swap.
package genstore

import (
	"context"
	"time"
)

// GenStore is implemented by LocalGenStore for one process and by
// RedisGenStore when replicas share a backend.
type GenStore interface {
	// Snapshot returns the current generation, 0 if the key was never bumped.
	Snapshot(ctx context.Context, storageKey string) (uint64, error)
	Bump(ctx context.Context, storageKey string) (uint64, error)
	// CompareAndBump bumps only while the generation equals expected.
	// ok=false means another writer bumped first.
	CompareAndBump(ctx context.Context, storageKey string, expected uint64) (gen uint64, ok bool, err error)
	// Cleanup forgets generations idle for longer than retention.
	Cleanup(retention time.Duration)
	Close(context.Context) error
}
