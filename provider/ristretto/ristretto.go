// Package ristretto keeps window slots in an in-process Ristretto cache,
// sized by bytes.
package ristretto

import (
	"context"
	"errors"
	"time"

	rc "github.com/dgraph-io/ristretto"

	pr "github.com/unkn0wn-root/pagecache/provider"
)

// DefaultSlotBytes is the typical encoded page size used to size the
// admission counters when Config.SlotBytes is zero.
const DefaultSlotBytes = 4 << 10

type Config struct {
	// MaxBytes bounds the total size of stored slots.
	MaxBytes int64
	// SlotBytes is the expected size of one slot; 0 => DefaultSlotBytes.
	SlotBytes   int64
	BufferItems int64 // 0 => 64
	Metrics     bool
	// Synchronous waits for Ristretto's write buffer after every Set, so a
	// slot written by a recache is visible to the next Contains. Without it a
	// reader right behind the writer may see a miss and recache again.
	Synchronous bool
}

// Stats is a snapshot of the cache counters. Zero unless Config.Metrics.
type Stats struct {
	Hits, Misses uint64
	// Rejected counts sets refused by admission or dropped from a full
	// write buffer.
	Rejected uint64
	CostUsed uint64
}

type Provider struct {
	c       *rc.Cache
	maxCost int64
	sync    bool
}

var _ pr.Provider = (*Provider)(nil)

func New(cfg Config) (*Provider, error) {
	if cfg.MaxBytes <= 0 {
		return nil, errors.New("ristretto: MaxBytes must be positive")
	}
	if cfg.SlotBytes <= 0 {
		cfg.SlotBytes = DefaultSlotBytes
	}
	if cfg.BufferItems <= 0 {
		cfg.BufferItems = 64
	}
	// ten counters per slot that fits
	counters := 10 * (cfg.MaxBytes / cfg.SlotBytes)
	if counters < 100 {
		counters = 100
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters:        counters,
		MaxCost:            cfg.MaxBytes,
		BufferItems:        cfg.BufferItems,
		Metrics:            cfg.Metrics,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &Provider{c: c, maxCost: cfg.MaxBytes, sync: cfg.Synchronous}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	if !ok {
		p.c.Del(key)
		return nil, false, nil
	}
	return b, true, nil
}

// Set charges cost, or the value's length when cost is not positive.
func (p *Provider) Set(_ context.Context, key string, value []byte, cost int64, ttl time.Duration) (bool, error) {
	if cost <= 0 {
		cost = int64(len(value))
	}
	// the policy would drop it later without telling us
	if cost > p.maxCost {
		return false, nil
	}
	if !p.c.SetWithTTL(key, value, cost, ttl) {
		return false, nil
	}
	if p.sync {
		p.c.Wait()
	}
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Del(key)
	return nil
}

func (p *Provider) Close(_ context.Context) error {
	p.c.Wait()
	p.c.Close()
	return nil
}

func (p *Provider) Stats() Stats {
	m := p.c.Metrics
	if m == nil {
		return Stats{}
	}
	return Stats{
		Hits:     m.Hits(),
		Misses:   m.Misses(),
		Rejected: m.SetsRejected() + m.SetsDropped(),
		CostUsed: m.CostAdded() - m.CostEvicted(),
	}
}
