// Package store implements the versioned key/value contract the pager needs:
// get, get-with-version, compare-and-swap, put, delete and contains.
//
// A Store composes a byte Provider with a GenStore. Every write bumps the
// key's generation and frames the value with it; reads compare the framed
// generation with the current one and treat lagging or corrupt entries as
// absent (deleting them on the way). The generation doubles as the version
// token returned by GetIdentifiable.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	gen "github.com/unkn0wn-root/pagecache/genstore"
	"github.com/unkn0wn-root/pagecache/internal/wire"
	pr "github.com/unkn0wn-root/pagecache/provider"
)

// Version identifies one write of a key. Zero is never handed out for a
// present entry.
type Version uint64

// Store is the narrow cache contract consumed by pagecache.
// All methods must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// GetIdentifiable returns the value plus the version to pass to CompareAndSwap.
	GetIdentifiable(ctx context.Context, key string) ([]byte, Version, bool, error)
	// CompareAndSwap writes value only if key is still at version v.
	CompareAndSwap(ctx context.Context, key string, v Version, value []byte) (bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Contains(ctx context.Context, key string) (bool, error)
	Close(ctx context.Context) error
}

// SetCostFunc computes the provider cost of a framed value.
type SetCostFunc func(key string, raw []byte) int64

// Options configure a generational Store. Provider is required.
type Options struct {
	Provider pr.Provider
	GenStore gen.GenStore // nil => LocalGenStore (single process only)
	TTL      time.Duration
	Cost     SetCostFunc // nil => 1 per entry

	// OnSelfHeal is called when a read drops an entry.
	// reason ∈ {"corrupt", "gen_mismatch"}. Must be cheap.
	OnSelfHeal func(key, reason string)
	// OnSetRejected is called when the provider refused a write under pressure.
	OnSetRejected func(key string)
}

// ErrRejected is returned by Put when the provider refused the write.
var ErrRejected = errors.New("store: write rejected by provider")

type generational struct {
	provider   pr.Provider
	gens       gen.GenStore
	ownGens    bool
	ttl        time.Duration
	cost       SetCostFunc
	onSelfHeal func(string, string)
	onRejected func(string)
}

var _ Store = (*generational)(nil)

const (
	defaultSweep        = time.Hour
	defaultGenRetention = 30 * 24 * time.Hour
)

// New builds a Store over a provider and a generation store.
func New(opts Options) (Store, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("store: provider is required")
	}
	s := &generational{
		provider:   opts.Provider,
		gens:       opts.GenStore,
		ttl:        opts.TTL,
		cost:       opts.Cost,
		onSelfHeal: opts.OnSelfHeal,
		onRejected: opts.OnSetRejected,
	}
	if s.gens == nil {
		s.gens = gen.NewLocalGenStore(defaultSweep, defaultGenRetention)
		s.ownGens = true
	}
	if s.cost == nil {
		s.cost = func(string, []byte) int64 { return 1 }
	}
	if s.onSelfHeal == nil {
		s.onSelfHeal = func(string, string) {}
	}
	if s.onRejected == nil {
		s.onRejected = func(string) {}
	}
	return s, nil
}

func (s *generational) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, _, ok, err := s.GetIdentifiable(ctx, key)
	return v, ok, err
}

func (s *generational) GetIdentifiable(ctx context.Context, key string) ([]byte, Version, bool, error) {
	raw, ok, err := s.provider.Get(ctx, key)
	if err != nil || !ok {
		return nil, 0, false, err
	}
	g, payload, err := wire.DecodeEntry(raw)
	if err != nil {
		s.heal(ctx, key, "corrupt")
		return nil, 0, false, nil
	}
	cur, err := s.gens.Snapshot(ctx, key)
	if err != nil {
		return nil, 0, false, err
	}
	if g != cur {
		s.heal(ctx, key, "gen_mismatch")
		return nil, 0, false, nil
	}
	return payload, Version(g), true, nil
}

// CompareAndSwap claims the next generation first and only then writes the
// bytes. A writer that loses the claim never touches the provider; a writer
// whose bytes land late (after a newer claim) leaves an entry that fails
// validation on the next read.
func (s *generational) CompareAndSwap(ctx context.Context, key string, v Version, value []byte) (bool, error) {
	g, ok, err := s.gens.CompareAndBump(ctx, key, uint64(v))
	if err != nil || !ok {
		return false, err
	}
	return s.write(ctx, key, g, value)
}

func (s *generational) Put(ctx context.Context, key string, value []byte) error {
	g, err := s.gens.Bump(ctx, key)
	if err != nil {
		return err
	}
	ok, err := s.write(ctx, key, g, value)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRejected
	}
	return nil
}

// Delete bumps the generation (so in-flight CAS writers lose) and removes
// the bytes. It only fails when both steps fail.
func (s *generational) Delete(ctx context.Context, key string) error {
	_, bumpErr := s.gens.Bump(ctx, key)
	delErr := s.provider.Del(ctx, key)
	if bumpErr != nil && delErr != nil {
		return &DeleteError{Key: key, BumpErr: bumpErr, DelErr: delErr}
	}
	return nil
}

func (s *generational) Contains(ctx context.Context, key string) (bool, error) {
	_, _, ok, err := s.GetIdentifiable(ctx, key)
	return ok, err
}

func (s *generational) Close(ctx context.Context) error {
	if s.ownGens {
		_ = s.gens.Close(ctx)
	}
	return s.provider.Close(ctx)
}

func (s *generational) write(ctx context.Context, key string, g uint64, value []byte) (bool, error) {
	raw := wire.EncodeEntry(g, value)
	ok, err := s.provider.Set(ctx, key, raw, s.cost(key, raw), s.ttl)
	if err != nil {
		return false, err
	}
	if !ok {
		s.onRejected(key)
	}
	return ok, nil
}

func (s *generational) heal(ctx context.Context, key, reason string) {
	_ = s.provider.Del(ctx, key)
	s.onSelfHeal(key, reason)
}
